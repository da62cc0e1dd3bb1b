// Package handler はインポーターのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/discovery"
	"github.com/lostsidewalk/newsgears-rss-importer/internal/model"
)

// ImportServiceInterface はインポートハンドラーが必要とするサービスインターフェース。
type ImportServiceInterface interface {
	// DoImport は1インポートサイクルを実行する。
	DoImport(ctx context.Context, subs []*model.Subscription, discoveryCache map[string]*model.DiscoveryInfo) *model.ImportResult
}

// ImportHandler はインポートサイクルのHTTPハンドラー。
type ImportHandler struct {
	service ImportServiceInterface
	cache   *discovery.Cache
}

// NewImportHandler はImportHandlerを生成する。
func NewImportHandler(service ImportServiceInterface, cache *discovery.Cache) *ImportHandler {
	return &ImportHandler{
		service: service,
		cache:   cache,
	}
}

// authConfigDTO はHTTP Basic認証設定のAPI表現。
type authConfigDTO struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// subscriptionDTO は購読定義のAPI表現。
type subscriptionDTO struct {
	SubscriptionID int64          `json:"subscription_id"`
	QueueID        int64          `json:"queue_id"`
	URL            string         `json:"url"`
	QueryType      string         `json:"query_type"`
	Title          string         `json:"title,omitempty"`
	Username       string         `json:"username,omitempty"`
	ImportSchedule string         `json:"import_schedule,omitempty"`
	Auth           *authConfigDTO `json:"auth,omitempty"`
}

// importRequest はインポートサイクル実行リクエストのボディ。
type importRequest struct {
	Subscriptions []subscriptionDTO `json:"subscriptions"`
}

// importResponse はインポートサイクルの結果。
type importResponse struct {
	StagingRecords []stagingRecordDTO      `json:"staging_records"`
	Metrics        []subscriptionMetricDTO `json:"metrics"`
}

// DoImport はインポートサイクルの実行を処理する。
// POST /api/import
func (h *ImportHandler) DoImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "リクエストボディの解析に失敗しました。")
		return
	}
	if len(req.Subscriptions) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "購読が指定されていません。")
		return
	}

	subs := make([]*model.Subscription, 0, len(req.Subscriptions))
	for _, dto := range req.Subscriptions {
		sub := &model.Subscription{
			SubscriptionID: dto.SubscriptionID,
			QueueID:        dto.QueueID,
			URL:            dto.URL,
			QueryType:      model.QueryType(dto.QueryType),
			Title:          dto.Title,
			Username:       dto.Username,
			ImportSchedule: dto.ImportSchedule,
		}
		if dto.Auth != nil {
			sub.Auth = &model.AuthConfig{
				Username: dto.Auth.Username,
				Password: dto.Auth.Password,
			}
		}
		subs = append(subs, sub)
	}

	result := h.service.DoImport(r.Context(), subs, h.cache.Snapshot())

	resp := importResponse{
		StagingRecords: make([]stagingRecordDTO, 0, len(result.StagingRecords)),
		Metrics:        make([]subscriptionMetricDTO, 0, len(result.Metrics)),
	}
	for i := range result.StagingRecords {
		resp.StagingRecords = append(resp.StagingRecords, toStagingRecordDTO(&result.StagingRecords[i]))
	}
	for i := range result.Metrics {
		resp.Metrics = append(resp.Metrics, toSubscriptionMetricDTO(&result.Metrics[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{Code: code, Message: message})
}
