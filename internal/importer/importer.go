// Package importer はインポートサイクル全体のオーケストレーションを担う。
// 購読をユニークなフェッチターゲットへ束ね、ワーカープールで並行
// フェッチし、購読ごとの正規化レコードとメトリクスへファンインする。
// ワーカー間で共有する可変コレクションは持たず、結果は全てチャネル
// 経由で単一の集約ループへ渡る。
package importer

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/config"
	"github.com/lostsidewalk/newsgears-rss-importer/internal/fetch"
	"github.com/lostsidewalk/newsgears-rss-importer/internal/model"
	"github.com/lostsidewalk/newsgears-rss-importer/internal/normalize"
)

// FeedResolver はユニークターゲット1件のフェッチ解決を行う外部コラボレータ。
type FeedResolver interface {
	Resolve(ctx context.Context, target model.FetchTarget, userAgent string, followUnsecureRedirects bool) (*model.FetchOutcome, error)
}

// EntryNormalizer はフィードエントリを購読ごとのStagingRecordへ変換する。
type EntryNormalizer interface {
	Normalize(feed *gofeed.Feed, entry *gofeed.Item, sub *model.Subscription, importedAt time.Time) model.StagingRecord
}

// MockGenerator はネットワークに触れない決定的なモックフィードを生成する。
type MockGenerator interface {
	BuildMockResponse(sub *model.Subscription) *gofeed.Feed
}

// MetricsCollector はインポートサイクルの観測値を記録する。
type MetricsCollector interface {
	RecordFetchSuccess()
	RecordFetchFailure(errorType model.ExceptionType)
	RecordHTTPStatus(code int)
	RecordFetchLatency(d time.Duration)
	RecordStagedRecords(count int)
}

// Importer はインポートサイクルを実行するオーケストレータ。
type Importer struct {
	cfg            *config.Config
	resolver       FeedResolver
	normalizer     EntryNormalizer
	mockGen        MockGenerator
	metrics        MetricsCollector
	limiter        *rate.Limiter
	logger         *slog.Logger
	maxConcurrency int
}

// New はImporterの新しいインスタンスを生成する。並行度が未指定の場合は
// CPU数-1（最低1）を使う。
func New(cfg *config.Config, resolver FeedResolver, normalizer EntryNormalizer, mockGen MockGenerator, metrics MetricsCollector, logger *slog.Logger) *Importer {
	concurrency := cfg.FetchMaxConcurrent
	if concurrency <= 0 {
		concurrency = runtime.NumCPU() - 1
		if concurrency < 1 {
			concurrency = 1
		}
	}

	var limiter *rate.Limiter
	if cfg.FetchRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.FetchRateLimit), 1)
	}

	return &Importer{
		cfg:            cfg,
		resolver:       resolver,
		normalizer:     normalizer,
		mockGen:        mockGen,
		metrics:        metrics,
		limiter:        limiter,
		logger:         logger,
		maxConcurrency: concurrency,
	}
}

// taskResult は1ユニークターゲット分のワーカー出力。
type taskResult struct {
	records []model.StagingRecord
	metrics []model.SubscriptionMetric
}

// DoImport は1インポートサイクルを実行する。サポート対象の全購読に対し
// ちょうど1件のSubscriptionMetricを生成する。discoveryCacheは任意で、
// ヒットしたターゲットはネットワークを介さずキャッシュ済みサンプル
// エントリから複製される。コンテキストのキャンセル時は集約済みの
// 部分結果を返す。
func (im *Importer) DoImport(ctx context.Context, subs []*model.Subscription, discoveryCache map[string]*model.DiscoveryInfo) *model.ImportResult {
	result := &model.ImportResult{}

	// 管理上の無効化。モックデータフラグは無効化時にのみ意味を持ち、
	// 有効時は常に実ネットワークインポートが走る。
	if im.cfg.Disabled {
		im.logger.Warn("インポーターは無効化されているためサイクルをスキップ")
		if im.cfg.ImportMockData {
			im.logger.Warn("モックレコードをインポート")
			return im.importMockData(im.filterSupported(subs))
		}
		return result
	}

	supported := im.filterSupported(subs)

	groups := groupByTarget(supported)
	im.logger.Info("インポートサイクル開始",
		slog.Int("subscriptionCt", len(supported)),
		slog.Int("targetCt", len(groups)),
		slog.Int("concurrency", im.maxConcurrency),
	)

	results := make(chan taskResult, len(groups))
	sem := make(chan struct{}, im.maxConcurrency)
	done := make(chan struct{})

	go func() {
		defer close(done)
		var inflight int
		finished := make(chan struct{}, len(groups))
		for target, members := range groups {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				// 未発行のタスクは放棄する。発行済みタスクの完了は待つ。
				for ; inflight > 0; inflight-- {
					<-finished
				}
				return
			}
			inflight++
			go func(target model.FetchTarget, members []*model.Subscription) {
				defer func() {
					<-sem
					finished <- struct{}{}
				}()
				results <- im.importTarget(ctx, target, members, discoveryCache)
			}(target, members)
		}
		for ; inflight > 0; inflight-- {
			<-finished
		}
	}()

	aggregated := 0
	for aggregated < len(groups) {
		select {
		case r := <-results:
			result.StagingRecords = append(result.StagingRecords, r.records...)
			result.Metrics = append(result.Metrics, r.metrics...)
			aggregated++
		case <-done:
			// ディスパッチャが打ち切った場合、バッファ済みの結果だけ回収する
			for {
				select {
				case r := <-results:
					result.StagingRecords = append(result.StagingRecords, r.records...)
					result.Metrics = append(result.Metrics, r.metrics...)
				default:
					im.logger.Warn("インポートサイクル中断",
						slog.Int("aggregatedCt", len(result.Metrics)),
					)
					return result
				}
			}
		}
	}

	im.metrics.RecordStagedRecords(len(result.StagingRecords))
	im.logger.Info("インポートサイクル完了",
		slog.Int("recordCt", len(result.StagingRecords)),
		slog.Int("metricCt", len(result.Metrics)),
	)
	return result
}

// groupByTarget は購読をユニークなフェッチターゲットごとに束ねる。
func groupByTarget(subs []*model.Subscription) map[model.FetchTarget][]*model.Subscription {
	groups := make(map[model.FetchTarget][]*model.Subscription)
	for _, sub := range subs {
		t := model.TargetOf(sub)
		groups[t] = append(groups[t], sub)
	}
	return groups
}

// importTarget は1ユニークターゲットを処理する。ディスカバリキャッシュに
// ヒットした場合はネットワークを介さない。
func (im *Importer) importTarget(ctx context.Context, target model.FetchTarget, members []*model.Subscription, discoveryCache map[string]*model.DiscoveryInfo) taskResult {
	if info, ok := discoveryCache[target.URL]; ok && info != nil {
		return im.importFromCache(info, members)
	}

	if im.limiter != nil {
		if err := im.limiter.Wait(ctx); err != nil {
			return im.failureResult(target, members, err)
		}
	}

	userAgent := im.cfg.FormatUserAgent(len(members))
	start := time.Now()
	outcome, err := im.resolver.Resolve(ctx, target, userAgent, im.cfg.FollowUnsecureRedirects)
	im.metrics.RecordFetchLatency(time.Since(start))
	if err != nil {
		return im.failureResult(target, members, err)
	}
	return im.successResult(target, members, outcome)
}

// successResult は解決済みフィードをメンバー購読ごとの独立した
// レコード群へ正規化する。
func (im *Importer) successResult(target model.FetchTarget, members []*model.Subscription, outcome *model.FetchOutcome) taskResult {
	im.metrics.RecordFetchSuccess()
	im.metrics.RecordHTTPStatus(outcome.HTTPStatusCode)

	importedAt := time.Now()
	var out taskResult
	for _, sub := range members {
		importCt := 0
		for _, entry := range outcome.Feed.Items {
			if entry == nil {
				continue
			}
			out.records = append(out.records, im.normalizer.Normalize(outcome.Feed, entry, sub, importedAt))
			importCt++
		}
		out.metrics = append(out.metrics, model.SubscriptionMetric{
			SubscriptionID:        sub.SubscriptionID,
			HTTPStatusCode:        outcome.HTTPStatusCode,
			HTTPStatusMessage:     outcome.HTTPStatusMessage,
			RedirectURL:           outcome.RedirectURL,
			RedirectStatusCode:    outcome.RedirectStatusCode,
			RedirectStatusMessage: outcome.RedirectStatusMessage,
			ImportTimestamp:       importedAt,
			ImportSchedule:        sub.ImportSchedule,
			ImportCount:           importCt,
		})
		im.logger.Info("購読のインポート完了",
			slog.String("username", sub.Username),
			slog.Int64("queueId", sub.QueueID),
			slog.Int64("subscriptionId", sub.SubscriptionID),
			slog.String("url", target.URL),
			slog.Int("importCt", importCt),
		)
	}
	return out
}

// failureResult はフェッチ失敗を分類し、メンバー購読ごとのメトリクスを
// 生成する。レコードは生成されない。
func (im *Importer) failureResult(target model.FetchTarget, members []*model.Subscription, err error) taskResult {
	fe := fetch.Classify(target.URL, err)
	im.metrics.RecordFetchFailure(fe.Type)
	if fe.HTTPStatusCode != 0 {
		im.metrics.RecordHTTPStatus(fe.HTTPStatusCode)
	}

	importedAt := time.Now()
	var out taskResult
	for _, sub := range members {
		out.metrics = append(out.metrics, model.SubscriptionMetric{
			SubscriptionID:        sub.SubscriptionID,
			HTTPStatusCode:        fe.HTTPStatusCode,
			HTTPStatusMessage:     fe.HTTPStatusMessage,
			RedirectURL:           fe.RedirectURL,
			RedirectStatusCode:    fe.RedirectStatusCode,
			RedirectStatusMessage: fe.RedirectStatusMessage,
			ImportTimestamp:       importedAt,
			ImportSchedule:        sub.ImportSchedule,
			ErrorType:             fe.Type,
			ErrorDetail:           fe.Error(),
		})
		im.logger.Error("購読のインポート失敗",
			slog.String("username", sub.Username),
			slog.Int64("queueId", sub.QueueID),
			slog.Int64("subscriptionId", sub.SubscriptionID),
			slog.String("url", target.URL),
			slog.String("errorType", string(fe.Type)),
		)
	}
	return out
}

// importFromCache はディスカバリキャッシュ済みのサンプルエントリを
// メンバー購読ごとに複製する。コンテンツハッシュは複製先のキューIDで
// 再計算される。
func (im *Importer) importFromCache(info *model.DiscoveryInfo, members []*model.Subscription) taskResult {
	importedAt := time.Now()
	var out taskResult
	for _, sub := range members {
		for _, sample := range info.SampleEntries {
			rec := sample
			rec.QueueID = sub.QueueID
			rec.SubscriptionID = sub.SubscriptionID
			rec.Username = sub.Username
			rec.ImporterDesc = normalize.ImporterDesc(feedTitleOf(info), sub.URL)
			rec.ImportTimestamp = importedAt
			rec.ContentHash = normalize.RecordContentHash(sub.QueueID, &rec)
			out.records = append(out.records, rec)
		}
		out.metrics = append(out.metrics, model.SubscriptionMetric{
			SubscriptionID:        sub.SubscriptionID,
			HTTPStatusCode:        info.HTTPStatusCode,
			HTTPStatusMessage:     info.HTTPStatusMessage,
			RedirectURL:           info.RedirectFeedURL,
			RedirectStatusCode:    info.RedirectHTTPStatusCode,
			RedirectStatusMessage: info.RedirectHTTPStatusMessage,
			ImportTimestamp:       importedAt,
			ImportSchedule:        sub.ImportSchedule,
			ImportCount:           len(info.SampleEntries),
		})
		im.logger.Info("ディスカバリキャッシュからインポート",
			slog.Int64("subscriptionId", sub.SubscriptionID),
			slog.String("url", sub.URL),
			slog.Int("importCt", len(info.SampleEntries)),
		)
	}
	return out
}

// filterSupported はサポート対象のクエリ種別のみを残す。
func (im *Importer) filterSupported(subs []*model.Subscription) []*model.Subscription {
	supported := make([]*model.Subscription, 0, len(subs))
	for _, sub := range subs {
		if !sub.QueryType.Supported() {
			im.logger.Info("サポート外のクエリ種別をスキップ",
				slog.Int64("subscriptionId", sub.SubscriptionID),
				slog.String("queryType", string(sub.QueryType)),
			)
			continue
		}
		supported = append(supported, sub)
	}
	return supported
}

// importMockData はネットワークに触れずモックフィードから
// インポートサイクルを構成する。
func (im *Importer) importMockData(subs []*model.Subscription) *model.ImportResult {
	result := &model.ImportResult{}
	importedAt := time.Now()
	for _, sub := range subs {
		feed := im.mockGen.BuildMockResponse(sub)
		importCt := 0
		for _, entry := range feed.Items {
			result.StagingRecords = append(result.StagingRecords, im.normalizer.Normalize(feed, entry, sub, importedAt))
			importCt++
		}
		result.Metrics = append(result.Metrics, model.SubscriptionMetric{
			SubscriptionID:    sub.SubscriptionID,
			HTTPStatusCode:    200,
			HTTPStatusMessage: "OK",
			ImportTimestamp:   importedAt,
			ImportSchedule:    sub.ImportSchedule,
			ImportCount:       importCt,
		})
	}
	im.logger.Info("モックデータのインポート完了",
		slog.Int("recordCt", len(result.StagingRecords)),
	)
	return result
}

func feedTitleOf(info *model.DiscoveryInfo) string {
	if info.Title != nil {
		return info.Title.Value
	}
	return ""
}
