package handler

import (
	"time"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/model"
)

// contentObjectDTO は型タグ付きコンテンツ値のAPI表現。
type contentObjectDTO struct {
	Ident string `json:"ident"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type personDTO struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	URI   string `json:"uri,omitempty"`
}

type urlDTO struct {
	Title    string `json:"title,omitempty"`
	Type     string `json:"type,omitempty"`
	Href     string `json:"href"`
	Hreflang string `json:"hreflang,omitempty"`
	Rel      string `json:"rel,omitempty"`
}

type enclosureDTO struct {
	URL    string `json:"url"`
	Type   string `json:"type,omitempty"`
	Length int64  `json:"length,omitempty"`
}

type mediaDTO struct {
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	ContentURLs  []string `json:"content_urls,omitempty"`
}

type itunesDTO struct {
	Author      string `json:"author,omitempty"`
	Subtitle    string `json:"subtitle,omitempty"`
	Summary     string `json:"summary,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Duration    string `json:"duration,omitempty"`
	Explicit    string `json:"explicit,omitempty"`
	Episode     string `json:"episode,omitempty"`
	Season      string `json:"season,omitempty"`
	EpisodeType string `json:"episode_type,omitempty"`
}

// stagingRecordDTO は正規化済みレコードのAPI表現。
type stagingRecordDTO struct {
	ImporterID          string             `json:"importer_id"`
	QueueID             int64              `json:"queue_id"`
	SubscriptionID      int64              `json:"subscription_id"`
	ImporterDesc        string             `json:"importer_desc,omitempty"`
	Title               *contentObjectDTO  `json:"title,omitempty"`
	Description         *contentObjectDTO  `json:"description,omitempty"`
	Contents            []contentObjectDTO `json:"contents,omitempty"`
	Media               *mediaDTO          `json:"media,omitempty"`
	ITunes              *itunesDTO         `json:"itunes,omitempty"`
	URL                 string             `json:"url,omitempty"`
	URLs                []urlDTO           `json:"urls,omitempty"`
	ThumbnailURL        string             `json:"thumbnail_url,omitempty"`
	ImportTimestamp     time.Time          `json:"import_timestamp"`
	ContentHash         string             `json:"content_hash"`
	Username            string             `json:"username,omitempty"`
	Comments            string             `json:"comments,omitempty"`
	Rights              string             `json:"rights,omitempty"`
	Contributors        []personDTO        `json:"contributors,omitempty"`
	Authors             []personDTO        `json:"authors,omitempty"`
	Categories          []string           `json:"categories,omitempty"`
	PublishTimestamp    *time.Time         `json:"publish_timestamp,omitempty"`
	ExpirationTimestamp *time.Time         `json:"expiration_timestamp,omitempty"`
	Enclosures          []enclosureDTO     `json:"enclosures,omitempty"`
	UpdatedTimestamp    *time.Time         `json:"updated_timestamp,omitempty"`
}

// subscriptionMetricDTO は購読メトリクスのAPI表現。
type subscriptionMetricDTO struct {
	SubscriptionID        int64     `json:"subscription_id"`
	HTTPStatusCode        int       `json:"http_status_code,omitempty"`
	HTTPStatusMessage     string    `json:"http_status_message,omitempty"`
	RedirectURL           string    `json:"redirect_url,omitempty"`
	RedirectStatusCode    int       `json:"redirect_status_code,omitempty"`
	RedirectStatusMessage string    `json:"redirect_status_message,omitempty"`
	ImportTimestamp       time.Time `json:"import_timestamp"`
	ImportSchedule        string    `json:"import_schedule,omitempty"`
	ImportCount           int       `json:"import_ct"`
	ErrorType             string    `json:"error_type,omitempty"`
	ErrorDetail           string    `json:"error_detail,omitempty"`
}

func toContentObjectDTO(co *model.ContentObject) *contentObjectDTO {
	if co == nil {
		return nil
	}
	return &contentObjectDTO{Ident: co.Ident, Type: co.Type, Value: co.Value}
}

func toStagingRecordDTO(rec *model.StagingRecord) stagingRecordDTO {
	dto := stagingRecordDTO{
		ImporterID:          rec.ImporterID,
		QueueID:             rec.QueueID,
		SubscriptionID:      rec.SubscriptionID,
		ImporterDesc:        rec.ImporterDesc,
		Title:               toContentObjectDTO(rec.Title),
		Description:         toContentObjectDTO(rec.Description),
		URL:                 rec.URL,
		ThumbnailURL:        rec.ThumbnailURL,
		ImportTimestamp:     rec.ImportTimestamp,
		ContentHash:         rec.ContentHash,
		Username:            rec.Username,
		Comments:            rec.Comments,
		Rights:              rec.Rights,
		Categories:          rec.Categories,
		PublishTimestamp:    rec.PublishTimestamp,
		ExpirationTimestamp: rec.ExpirationTimestamp,
		UpdatedTimestamp:    rec.UpdatedTimestamp,
	}
	for _, c := range rec.Contents {
		dto.Contents = append(dto.Contents, contentObjectDTO{Ident: c.Ident, Type: c.Type, Value: c.Value})
	}
	if rec.Media != nil {
		dto.Media = &mediaDTO{ThumbnailURL: rec.Media.ThumbnailURL, ContentURLs: rec.Media.ContentURLs}
	}
	if rec.ITunes != nil {
		dto.ITunes = &itunesDTO{
			Author:      rec.ITunes.Author,
			Subtitle:    rec.ITunes.Subtitle,
			Summary:     rec.ITunes.Summary,
			ImageURL:    rec.ITunes.ImageURL,
			Duration:    rec.ITunes.Duration,
			Explicit:    rec.ITunes.Explicit,
			Episode:     rec.ITunes.Episode,
			Season:      rec.ITunes.Season,
			EpisodeType: rec.ITunes.EpisodeType,
		}
	}
	for _, u := range rec.URLs {
		dto.URLs = append(dto.URLs, urlDTO{Title: u.Title, Type: u.Type, Href: u.Href, Hreflang: u.Hreflang, Rel: u.Rel})
	}
	for _, p := range rec.Contributors {
		dto.Contributors = append(dto.Contributors, personDTO{Name: p.Name, Email: p.Email, URI: p.URI})
	}
	for _, p := range rec.Authors {
		dto.Authors = append(dto.Authors, personDTO{Name: p.Name, Email: p.Email, URI: p.URI})
	}
	for _, e := range rec.Enclosures {
		dto.Enclosures = append(dto.Enclosures, enclosureDTO{URL: e.URL, Type: e.Type, Length: e.Length})
	}
	return dto
}

func toSubscriptionMetricDTO(m *model.SubscriptionMetric) subscriptionMetricDTO {
	return subscriptionMetricDTO{
		SubscriptionID:        m.SubscriptionID,
		HTTPStatusCode:        m.HTTPStatusCode,
		HTTPStatusMessage:     m.HTTPStatusMessage,
		RedirectURL:           m.RedirectURL,
		RedirectStatusCode:    m.RedirectStatusCode,
		RedirectStatusMessage: m.RedirectStatusMessage,
		ImportTimestamp:       m.ImportTimestamp,
		ImportSchedule:        m.ImportSchedule,
		ImportCount:           m.ImportCount,
		ErrorType:             string(m.ErrorType),
		ErrorDetail:           m.ErrorDetail,
	}
}
