package normalize

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/model"
)

// canonicalSource はコンテンツハッシュの入力となる正準表現。
// フィールド順序はJSONエンコードで固定され、publishedとupdatedは
// 値が無い場合キーごと省略される。ゼロ値のエポックミリ秒とは
// 区別されるため、omitemptyではなくポインタで表現する。
type canonicalSource struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Published   *int64 `json:"published,omitempty"`
	Updated     *int64 `json:"updated,omitempty"`
}

// ContentHash はキューIDとエントリの識別フィールドからコンテンツハッシュを
// 計算する。同一エントリが別キューへインポートされた場合は異なるハッシュに
// なる。ハッシュ文字列はMD5ダイジェストの大文字16進表現。
func ContentHash(queueID int64, entry *gofeed.Item) string {
	src := canonicalSource{
		Title:       entry.Title,
		Description: entry.Description,
		Link:        entry.Link,
		Published:   epochMillis(entry.PublishedParsed),
		Updated:     epochMillis(entry.UpdatedParsed),
	}
	return hashOf(queueID, src)
}

// RecordContentHash は正規化済みレコードからコンテンツハッシュを再計算する。
// ディスカバリキャッシュのサンプルエントリを別キューへ複製する際に使う。
func RecordContentHash(queueID int64, rec *model.StagingRecord) string {
	src := canonicalSource{
		Link:      rec.URL,
		Published: epochMillis(rec.PublishTimestamp),
		Updated:   epochMillis(rec.UpdatedTimestamp),
	}
	if rec.Title != nil {
		src.Title = rec.Title.Value
	}
	if rec.Description != nil {
		src.Description = rec.Description.Value
	}
	return hashOf(queueID, src)
}

func hashOf(queueID int64, src canonicalSource) string {
	// canonicalSourceのエンコードは失敗しない
	b, _ := json.Marshal(src)
	return fmt.Sprintf("%X", md5.Sum([]byte(fmt.Sprintf("%d:%s", queueID, b))))
}

func epochMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
