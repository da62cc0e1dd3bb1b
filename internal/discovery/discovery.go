package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/model"
)

// フィードレベルのフィールド上限（rune単位）とサンプルエントリ数の上限。
const (
	maxFeedTitleLen       = 512
	maxFeedDescriptionLen = 1024
	maxFeedFieldLen       = 512
	maxSampleEntries      = 10
	maxFeedCategories     = 5
)

// FeedResolver はユニークターゲット1件のフェッチ解決を行う外部コラボレータ。
type FeedResolver interface {
	Resolve(ctx context.Context, target model.FetchTarget, userAgent string, followUnsecureRedirects bool) (*model.FetchOutcome, error)
}

// EntryNormalizer はフィードエントリをStagingRecordへ変換する。
type EntryNormalizer interface {
	Normalize(feed *gofeed.Feed, entry *gofeed.Item, sub *model.Subscription, importedAt time.Time) model.StagingRecord
}

// Service はフィードURLのディスカバリを提供する。フィードを1回
// フェッチし、メタデータ・サンプルエントリ・HTTPSアップグレード可否を
// まとめて返す。結果はインポートサイクルのディスカバリキャッシュとして
// 再利用できる。
type Service struct {
	resolver   FeedResolver
	normalizer EntryNormalizer
	detector   *Detector
	logger     *slog.Logger
	userAgent  string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(resolver FeedResolver, normalizer EntryNormalizer, detector *Detector, logger *slog.Logger, userAgent string) *Service {
	return &Service{
		resolver:   resolver,
		normalizer: normalizer,
		detector:   detector,
		logger:     logger,
		userAgent:  userAgent,
	}
}

// Discover は入力URLのフィードを解決してメタデータを抽出する。
// 入力がHTMLページの場合は自動検出でフィードURLへ解決する。
// ディスカバリは購読前のプレビューなので、平文HTTPの別ドメイン
// リダイレクトは認証情報がない限り追跡を許可する。
func (s *Service) Discover(ctx context.Context, rawURL string, auth *model.AuthConfig) (*model.DiscoveryInfo, error) {
	feedURL, err := s.detector.DetectFeedURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	target := model.FetchTarget{URL: feedURL}
	if auth != nil {
		target.Auth = *auth
	}

	outcome, err := s.resolver.Resolve(ctx, target, s.userAgent, true)
	if err != nil {
		return nil, err
	}

	feed := outcome.Feed
	info := &model.DiscoveryInfo{
		FeedURL:                   feedURL,
		HTTPStatusCode:            outcome.HTTPStatusCode,
		HTTPStatusMessage:         outcome.HTTPStatusMessage,
		RedirectFeedURL:           outcome.RedirectURL,
		RedirectHTTPStatusCode:    outcome.RedirectStatusCode,
		RedirectHTTPStatusMessage: outcome.RedirectStatusMessage,
		Title:                     s.feedContentObject("text", feed.Title, maxFeedTitleLen),
		Description:               s.feedContentObject("text", feed.Description, maxFeedDescriptionLen),
		FeedType:                  feed.FeedType,
		Copyright:                 s.trimToLength("copyright", feed.Copyright, maxFeedFieldLen),
		Generator:                 s.trimToLength("generator", feed.Generator, maxFeedFieldLen),
		Language:                  feed.Language,
		Link:                      s.trimToLength("link", feed.Link, maxFeedFieldLen),
		IsUpgradable:              outcome.IsUpgradable,
	}

	if feed.Author != nil {
		info.Author = s.trimToLength("author", feed.Author.Name, maxFeedFieldLen)
	}
	if feed.Image != nil {
		info.ImageURL = s.trimToLength("imageUrl", feed.Image.URL, maxFeedFieldLen)
	}
	for _, c := range feed.Categories {
		if c == "" {
			continue
		}
		info.Categories = append(info.Categories, s.trimToLength("category", c, maxFeedFieldLen))
		if len(info.Categories) >= maxFeedCategories {
			break
		}
	}

	discoveredAt := time.Now()
	sampleSub := &model.Subscription{URL: feedURL}
	for i, entry := range feed.Items {
		if i >= maxSampleEntries {
			break
		}
		if entry == nil {
			continue
		}
		info.SampleEntries = append(info.SampleEntries, s.normalizer.Normalize(feed, entry, sampleSub, discoveredAt))
	}

	s.logger.Info("ディスカバリ完了",
		slog.String("feedUrl", feedURL),
		slog.String("feedType", feed.FeedType),
		slog.Int("sampleCt", len(info.SampleEntries)),
		slog.Bool("isUpgradable", info.IsUpgradable),
	)
	return info, nil
}

func (s *Service) feedContentObject(contentType, value string, maxLen int) *model.ContentObject {
	if value == "" {
		return nil
	}
	return &model.ContentObject{
		Ident: uuid.NewString()[:8],
		Type:  contentType,
		Value: s.trimToLength("feedContent", value, maxLen),
	}
}

// trimToLength は値を最大長（rune単位）まで黙って切り詰める。
func (s *Service) trimToLength(field, value string, maxLen int) string {
	runes := []rune(value)
	if len(runes) <= maxLen {
		return value
	}
	s.logger.Warn("ディスカバリフィールドが上限を超過したため切り詰め",
		slog.String("field", field),
		slog.Int("length", len(runes)),
	)
	return string(runes[:maxLen])
}
