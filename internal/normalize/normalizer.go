// Package normalize はパース済みフィードエントリを正規化済みの
// StagingRecordへ変換する。全ての自由テキストフィールドは長さ制限まで
// 黙って切り詰められ、HTML片はサニタイズされる。
package normalize

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/model"
)

// フィールドごとの最大長（rune単位）。超過分は切り詰められ、
// インポート自体は失敗しない。
const (
	maxTitleLen       = 1024
	maxDescriptionLen = 4096
	maxContentLen     = 1048576
	maxURLLen         = 1024
	maxPersonLen      = 256
	maxCategoryLen    = 256
	maxCommentsLen    = 2048
	maxRightsLen      = 1024
	maxCategories     = 5
)

// Sanitizer はHTML片から危険なマークアップを除去する外部コラボレータ。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Normalizer はフィードエントリをStagingRecordへ正規化する。
type Normalizer struct {
	sanitizer Sanitizer
	logger    *slog.Logger
}

// NewNormalizer はNormalizerの新しいインスタンスを生成する。
func NewNormalizer(sanitizer Sanitizer, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// ImporterDesc はインポート元の説明文字列を組み立てる。フィードに
// タイトルがあればそれを、なければフィードURLを使う。
func ImporterDesc(feedTitle, feedURL string) string {
	if feedTitle != "" {
		return feedTitle
	}
	return feedURL
}

// Normalize は1フィードエントリを1購読向けのStagingRecordへ変換する。
// 同じエントリでも購読（キュー）が異なれば独立したレコードと
// コンテンツハッシュが作られる。
func (n *Normalizer) Normalize(feed *gofeed.Feed, entry *gofeed.Item, sub *model.Subscription, importedAt time.Time) model.StagingRecord {
	rec := model.StagingRecord{
		ImporterID:      model.ImporterID,
		QueueID:         sub.QueueID,
		SubscriptionID:  sub.SubscriptionID,
		ImporterDesc:    ImporterDesc(feed.Title, sub.URL),
		Title:           n.contentObject("title", "text", entry.Title, maxTitleLen),
		Description:     n.contentObject("description", "html", entry.Description, maxDescriptionLen),
		URL:             n.truncate("link", entry.Link, maxURLLen),
		URLs:            n.recordURLs(entry),
		ThumbnailURL:    n.truncate("thumbnailUrl", ThumbnailURL(entry), maxURLLen),
		Media:           mediaOf(entry),
		ITunes:          itunesOf(entry),
		ImportTimestamp: importedAt,
		ContentHash:     ContentHash(sub.QueueID, entry),
		Username:        sub.Username,
		Authors:         n.authors(entry),
		Contributors:    n.contributors(entry),
		Categories:      n.categories(entry),
		Enclosures:      enclosures(entry),
	}

	if entry.Content != "" {
		co := n.contentObject("content", "html", entry.Content, maxContentLen)
		if co != nil {
			rec.Contents = []model.ContentObject{*co}
		}
	}

	rec.Comments = n.truncate("comments", entry.Custom["comments"], maxCommentsLen)

	if dc := entry.DublinCoreExt; dc != nil {
		if len(dc.Rights) > 0 {
			rec.Rights = n.truncate("rights", dc.Rights[0], maxRightsLen)
		}
	}

	rec.PublishTimestamp = copyTime(entry.PublishedParsed)
	rec.UpdatedTimestamp = copyTime(entry.UpdatedParsed)

	return rec
}

// contentObject は値が空でなければ型タグ付きのContentObjectを作る。
// htmlタグの値はサニタイズしてから切り詰める。
func (n *Normalizer) contentObject(field, contentType, value string, maxLen int) *model.ContentObject {
	if value == "" {
		return nil
	}
	if contentType == "html" {
		value = n.sanitizer.Sanitize(value)
	}
	value = n.truncate(field, value, maxLen)
	if value == "" {
		return nil
	}
	return &model.ContentObject{
		Ident: uuid.NewString()[:8],
		Type:  contentType,
		Value: value,
	}
}

// truncate は値を最大長（rune単位）まで切り詰める。切り詰めが起きた
// 場合は診断ログを出すが、インポートは失敗させない。
func (n *Normalizer) truncate(field, value string, maxLen int) string {
	runes := []rune(value)
	if len(runes) <= maxLen {
		return value
	}
	n.logger.Warn("フィールド値が上限を超過したため切り詰め",
		slog.String("field", field),
		slog.Int("length", len(runes)),
		slog.Int("max", maxLen),
	)
	return string(runes[:maxLen])
}

// authors はエントリの著者一覧を組み立てる。先頭の著者名が存在する
// 場合、それを合成プライマリ著者として先頭に置く。名前が取れない
// 場合はDublin Coreのcreatorへフォールバックする。
func (n *Normalizer) authors(entry *gofeed.Item) []model.RecordPerson {
	var out []model.RecordPerson

	primaryName := ""
	if entry.Author != nil {
		primaryName = entry.Author.Name
	}
	if primaryName == "" {
		if dc := entry.DublinCoreExt; dc != nil && len(dc.Creator) > 0 {
			primaryName = dc.Creator[0]
		}
	}
	if primaryName != "" {
		out = append(out, model.RecordPerson{Name: n.truncate("author", primaryName, maxPersonLen)})
	}

	for _, a := range entry.Authors {
		if a == nil || a.Name == "" || a.Name == primaryName {
			continue
		}
		out = append(out, model.RecordPerson{
			Name:  n.truncate("author", a.Name, maxPersonLen),
			Email: a.Email,
		})
	}
	return out
}

// contributors はDublin Coreのcontributor一覧を投影する。
func (n *Normalizer) contributors(entry *gofeed.Item) []model.RecordPerson {
	dc := entry.DublinCoreExt
	if dc == nil {
		return nil
	}
	var out []model.RecordPerson
	for _, c := range dc.Contributor {
		if c == "" {
			continue
		}
		out = append(out, model.RecordPerson{Name: n.truncate("contributor", c, maxPersonLen)})
	}
	return out
}

// recordURLs はプライマリリンク以外のリンクを投影する。
func (n *Normalizer) recordURLs(entry *gofeed.Item) []model.RecordURL {
	var out []model.RecordURL
	for _, link := range entry.Links {
		if link == "" || link == entry.Link {
			continue
		}
		out = append(out, model.RecordURL{
			Href: n.truncate("url", link, maxURLLen),
		})
	}
	return out
}

// categories は先頭5件のカテゴリを空白除去・重複排除して返す。
func (n *Normalizer) categories(entry *gofeed.Item) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, c := range entry.Categories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		c = n.truncate("category", c, maxCategoryLen)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
		if len(out) >= maxCategories {
			break
		}
	}
	return out
}

func enclosures(entry *gofeed.Item) []model.RecordEnclosure {
	var out []model.RecordEnclosure
	for _, e := range entry.Enclosures {
		if e == nil || e.URL == "" {
			continue
		}
		length, err := strconv.ParseInt(e.Length, 10, 64)
		if err != nil {
			length = 0
		}
		out = append(out, model.RecordEnclosure{
			URL:    e.URL,
			Type:   e.Type,
			Length: length,
		})
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
