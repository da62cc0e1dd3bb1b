// Package app はインポーターの初期化と起動を担う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/config"
	"github.com/lostsidewalk/newsgears-rss-importer/internal/discovery"
	"github.com/lostsidewalk/newsgears-rss-importer/internal/fetch"
	"github.com/lostsidewalk/newsgears-rss-importer/internal/handler"
	"github.com/lostsidewalk/newsgears-rss-importer/internal/importer"
	"github.com/lostsidewalk/newsgears-rss-importer/internal/logger"
	"github.com/lostsidewalk/newsgears-rss-importer/internal/metrics"
	"github.com/lostsidewalk/newsgears-rss-importer/internal/mockdata"
	"github.com/lostsidewalk/newsgears-rss-importer/internal/normalize"
	"github.com/lostsidewalk/newsgears-rss-importer/internal/security"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting importer",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.Bool("disabled", cfg.Disabled),
		slog.Bool("importMockData", cfg.ImportMockData),
	)

	return runServe(cfg)
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	// 1. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 2. フェッチ層の初期化
	client := fetch.NewClient(ssrfGuard, log, cfg.FetchTimeout, cfg.FetchMaxSize)
	resolver := fetch.NewResolver(client, fetch.GofeedParser{}, log)

	// 3. 正規化とメトリクス
	normalizer := normalize.NewNormalizer(sanitizer, log)
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	imp := importer.New(cfg, resolver, normalizer, mockdata.NewGenerator(), collector, log)
	detector := discovery.NewDetector(ssrfGuard, cfg.FormatUserAgent(1))
	discoveryService := discovery.NewService(resolver, normalizer, detector, log, cfg.FormatUserAgent(1))
	discoveryCache := discovery.NewCache()

	// 5. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		ImportService:    imp,
		DiscoveryService: discoveryService,
		DiscoveryCache:   discoveryCache,
		Gatherer:         registry,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
