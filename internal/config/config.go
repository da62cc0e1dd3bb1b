// Package config はインポーターの設定管理を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// defaultUserAgent はフェッチ時のUser-Agentテンプレート。
// %dにはターゲットを共有する購読者数が入る。
const defaultUserAgent = "Lost Sidewalk FeedGears RSS Aggregator v.0.4 feed import process, on behalf of %d users"

// Config はインポーター全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Importer
	Disabled       bool
	ImportMockData bool

	// Fetch
	FetchTimeout            time.Duration
	FetchMaxSize            int64
	FetchMaxConcurrent      int
	FetchRateLimit          float64
	FollowUnsecureRedirects bool
	UserAgent               string

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 全項目にデフォルト値があるため必須環境変数はない。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Disabled = getEnvBool("IMPORTER_DISABLED", false)
	cfg.ImportMockData = getEnvBool("IMPORT_MOCK_DATA", false)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 20*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 10*1024*1024)
	cfg.FetchMaxConcurrent = getEnvInt("FETCH_MAX_CONCURRENT", 0)
	cfg.FetchRateLimit = getEnvFloat("FETCH_RATE_LIMIT", 0)
	cfg.FollowUnsecureRedirects = getEnvBool("FOLLOW_UNSECURE_REDIRECTS", false)
	cfg.UserAgent = getEnvString("IMPORTER_USER_AGENT", defaultUserAgent)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

// FormatUserAgent はUser-Agentテンプレートに購読者数を埋め込んで返す。
// テンプレートにプレースホルダがない場合はそのまま返す。
func (c *Config) FormatUserAgent(subscriberCt int) string {
	if !strings.Contains(c.UserAgent, "%d") {
		return c.UserAgent
	}
	return fmt.Sprintf(c.UserAgent, subscriberCt)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
