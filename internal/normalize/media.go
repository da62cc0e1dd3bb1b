package normalize

import (
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/model"
)

// ThumbnailURL はエントリのサムネイルURLを優先順に探索して返す。
// 優先順: media:thumbnail直下、media:content配下のthumbnail、
// media:group配下のthumbnail、media:contentのurl属性、
// media:group配下のcontentのurl属性。見つからなければ空文字。
func ThumbnailURL(entry *gofeed.Item) string {
	media := mediaExtensions(entry)
	if media == nil {
		return ""
	}

	if u := firstAttr(media["thumbnail"], "url"); u != "" {
		return u
	}
	for _, content := range media["content"] {
		if u := firstAttr(content.Children["thumbnail"], "url"); u != "" {
			return u
		}
	}
	for _, group := range media["group"] {
		if u := firstAttr(group.Children["thumbnail"], "url"); u != "" {
			return u
		}
	}
	if u := firstAttr(media["content"], "url"); u != "" {
		return u
	}
	for _, group := range media["group"] {
		if u := firstAttr(group.Children["content"], "url"); u != "" {
			return u
		}
	}
	return ""
}

// mediaOf はMedia RSSモジュールの抜粋投影を組み立てる。モジュールが
// 存在しない場合はnilを返す。
func mediaOf(entry *gofeed.Item) *model.RecordMedia {
	media := mediaExtensions(entry)
	if media == nil {
		return nil
	}

	var contentURLs []string
	for _, content := range media["content"] {
		if u := content.Attrs["url"]; u != "" {
			contentURLs = append(contentURLs, u)
		}
	}
	for _, group := range media["group"] {
		for _, content := range group.Children["content"] {
			if u := content.Attrs["url"]; u != "" {
				contentURLs = append(contentURLs, u)
			}
		}
	}

	thumbnailURL := ThumbnailURL(entry)
	if thumbnailURL == "" && len(contentURLs) == 0 {
		return nil
	}
	return &model.RecordMedia{
		ThumbnailURL: thumbnailURL,
		ContentURLs:  contentURLs,
	}
}

// itunesOf はiTunesポッドキャストメタデータの投影を組み立てる。
// モジュールが存在しない場合はnilを返す。
func itunesOf(entry *gofeed.Item) *model.RecordITunes {
	it := entry.ITunesExt
	if it == nil {
		return nil
	}
	return &model.RecordITunes{
		Author:      it.Author,
		Subtitle:    it.Subtitle,
		Summary:     it.Summary,
		ImageURL:    it.Image,
		Duration:    it.Duration,
		Explicit:    it.Explicit,
		Episode:     it.Episode,
		Season:      it.Season,
		EpisodeType: it.EpisodeType,
	}
}

func mediaExtensions(entry *gofeed.Item) map[string][]ext.Extension {
	if entry.Extensions == nil {
		return nil
	}
	media, ok := entry.Extensions["media"]
	if !ok {
		return nil
	}
	return media
}

func firstAttr(exts []ext.Extension, attr string) string {
	for _, e := range exts {
		if v := e.Attrs[attr]; v != "" {
			return v
		}
	}
	return ""
}
