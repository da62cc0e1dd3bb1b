package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/discovery"
	"github.com/lostsidewalk/newsgears-rss-importer/internal/model"
)

// DiscoveryServiceInterface はディスカバリハンドラーが必要とするサービスインターフェース。
type DiscoveryServiceInterface interface {
	// Discover は入力URLのフィードを解決してメタデータを抽出する。
	Discover(ctx context.Context, rawURL string, auth *model.AuthConfig) (*model.DiscoveryInfo, error)
}

// DiscoveryHandler はフィードディスカバリのHTTPハンドラー。
type DiscoveryHandler struct {
	service DiscoveryServiceInterface
	cache   *discovery.Cache
}

// NewDiscoveryHandler はDiscoveryHandlerを生成する。
func NewDiscoveryHandler(service DiscoveryServiceInterface, cache *discovery.Cache) *DiscoveryHandler {
	return &DiscoveryHandler{
		service: service,
		cache:   cache,
	}
}

// discoverRequest はディスカバリリクエストのボディ。
type discoverRequest struct {
	URL  string         `json:"url"`
	Auth *authConfigDTO `json:"auth,omitempty"`
}

// discoveryResponse はディスカバリ結果のAPIレスポンス。
type discoveryResponse struct {
	FeedURL                   string             `json:"feed_url"`
	HTTPStatusCode            int                `json:"http_status_code"`
	HTTPStatusMessage         string             `json:"http_status_message,omitempty"`
	RedirectFeedURL           string             `json:"redirect_feed_url,omitempty"`
	RedirectHTTPStatusCode    int                `json:"redirect_http_status_code,omitempty"`
	RedirectHTTPStatusMessage string             `json:"redirect_http_status_message,omitempty"`
	Title                     *contentObjectDTO  `json:"title,omitempty"`
	Description               *contentObjectDTO  `json:"description,omitempty"`
	FeedType                  string             `json:"feed_type,omitempty"`
	Author                    string             `json:"author,omitempty"`
	Copyright                 string             `json:"copyright,omitempty"`
	Generator                 string             `json:"generator,omitempty"`
	Language                  string             `json:"language,omitempty"`
	Link                      string             `json:"link,omitempty"`
	ImageURL                  string             `json:"image_url,omitempty"`
	Categories                []string           `json:"categories,omitempty"`
	SampleEntries             []stagingRecordDTO `json:"sample_entries,omitempty"`
	IsUpgradable              bool               `json:"is_upgradable"`
}

// Discover はフィードディスカバリを処理する。結果はインポートサイクルの
// ディスカバリキャッシュにも登録される。
// POST /api/discovery
func (h *DiscoveryHandler) Discover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "リクエストボディの解析に失敗しました。")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "URLが指定されていません。")
		return
	}

	var auth *model.AuthConfig
	if req.Auth != nil {
		auth = &model.AuthConfig{
			Username: req.Auth.Username,
			Password: req.Auth.Password,
		}
	}

	info, err := h.service.Discover(r.Context(), req.URL, auth)
	if err != nil {
		writeDiscoveryError(w, err)
		return
	}

	h.cache.Put(info.FeedURL, info)

	resp := discoveryResponse{
		FeedURL:                   info.FeedURL,
		HTTPStatusCode:            info.HTTPStatusCode,
		HTTPStatusMessage:         info.HTTPStatusMessage,
		RedirectFeedURL:           info.RedirectFeedURL,
		RedirectHTTPStatusCode:    info.RedirectHTTPStatusCode,
		RedirectHTTPStatusMessage: info.RedirectHTTPStatusMessage,
		Title:                     toContentObjectDTO(info.Title),
		Description:               toContentObjectDTO(info.Description),
		FeedType:                  info.FeedType,
		Author:                    info.Author,
		Copyright:                 info.Copyright,
		Generator:                 info.Generator,
		Language:                  info.Language,
		Link:                      info.Link,
		ImageURL:                  info.ImageURL,
		Categories:                info.Categories,
		IsUpgradable:              info.IsUpgradable,
	}
	for i := range info.SampleEntries {
		resp.SampleEntries = append(resp.SampleEntries, toStagingRecordDTO(&info.SampleEntries[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeDiscoveryError はディスカバリ失敗をエラー分類に応じたHTTP
// ステータスへマップする。
func writeDiscoveryError(w http.ResponseWriter, err error) {
	var fe *model.FeedError
	if !errors.As(err, &fe) {
		writeError(w, http.StatusInternalServerError, "DISCOVERY_FAILED", "ディスカバリに失敗しました。")
		return
	}

	switch fe.Type {
	case model.ExceptionIllegalArgument:
		writeError(w, http.StatusBadRequest, string(fe.Type), "URLが不正です。")
	case model.ExceptionUnknownHost, model.ExceptionFileNotFound:
		writeError(w, http.StatusNotFound, string(fe.Type), "フィードが見つかりません。")
	case model.ExceptionUnsecureRedirect, model.ExceptionTooManyRedirects:
		writeError(w, http.StatusBadGateway, string(fe.Type), "リダイレクトを解決できません。")
	default:
		writeError(w, http.StatusBadGateway, string(fe.Type), "フィードの取得に失敗しました。")
	}
}
