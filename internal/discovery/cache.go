package discovery

import (
	"sync"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/model"
)

// Cache はディスカバリ結果をフィードURLをキーに保持する並行安全な
// キャッシュ。インポートサイクルはスナップショットを受け取り、
// ヒットしたターゲットのネットワークフェッチを省略する。
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*model.DiscoveryInfo
}

// NewCache はCacheの新しいインスタンスを生成する。
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*model.DiscoveryInfo),
	}
}

// Put はディスカバリ結果を登録する。既存エントリは上書きされる。
func (c *Cache) Put(feedURL string, info *model.DiscoveryInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[feedURL] = info
}

// Get はフィードURLに対応するディスカバリ結果を返す。
func (c *Cache) Get(feedURL string) (*model.DiscoveryInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.entries[feedURL]
	return info, ok
}

// Snapshot は現在のエントリの浅いコピーを返す。インポートサイクル中の
// 並行更新から切り離すために使う。
func (c *Cache) Snapshot() map[string]*model.DiscoveryInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*model.DiscoveryInfo, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}
