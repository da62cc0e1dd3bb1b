// Package fetch はフィード取得のHTTPパイプラインを提供する。
// 単一接続のフェッチャー、有界のリダイレクト解決ステートマシン、
// HTTPSアップグレードプローブ、エラー分類を含む。
package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/model"
)

// SafeClientFactory はSSRF防止付きHTTPクライアント生成のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを確保する。
type SafeClientFactory interface {
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// RawResponse は1回のHTTP呼び出しの生の結果。
// リダイレクト応答の場合、ボディは読み捨てずそのまま保持される。
type RawResponse struct {
	StatusCode    int
	StatusMessage string
	Header        http.Header
	Body          []byte
}

// RawFetcher は単一HTTP呼び出しのインターフェース。
// リダイレクトの追跡は行わない。リゾルバとテストの両方から使用される。
type RawFetcher interface {
	Do(ctx context.Context, rawURL string, auth *model.AuthConfig, userAgent string) (*RawResponse, error)
}

// Client は1回のHTTP(S)接続でフィードの生バイト列を取得する。
// リダイレクトロジックは持たない。解決は呼び出し側（Resolver）の責務。
type Client struct {
	factory     SafeClientFactory
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(factory SafeClientFactory, logger *slog.Logger, timeout time.Duration, maxBodySize int64) *Client {
	return &Client{
		factory:     factory,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Do は指定URLへGETを1回発行し、生のレスポンスを返す。
//   - User-Agent、Accept-Encoding: gzip、Cache-Control: no-cache を付与する。
//   - authが指定された場合、Basic認証をこの接続にのみ付与する。
//     認証情報はログに出力されず、接続を越えて保持されない。
//   - リダイレクトは追跡しない。3xx応答はそのまま返される。
//   - Content-Encodingにgzipが含まれる場合（大文字小文字を区別しない
//     部分一致）、ボディを展開して返す。
//
// 接続・ソケット障害のエラーは分類のため加工せずに呼び出し側へ返す。
func (c *Client) Do(ctx context.Context, rawURL string, auth *model.AuthConfig, userAgent string) (*RawResponse, error) {
	httpClient := c.factory.NewSafeClient(c.timeout, c.maxBodySize)
	httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Cache-Control", "no-cache")

	if auth != nil && auth.Username != "" {
		req.SetBasicAuth(auth.Username, auth.Password)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, err
	}

	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Encoding")), "gzip") {
		body, err = gunzip(body, c.maxBodySize)
		if err != nil {
			return nil, err
		}
	}

	return &RawResponse{
		StatusCode:    resp.StatusCode,
		StatusMessage: statusMessage(resp),
		Header:        resp.Header,
		Body:          body,
	}, nil
}

// gunzip はgzip圧縮されたボディを上限付きで展開する。
func gunzip(body []byte, maxSize int64) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(io.LimitReader(gz, maxSize))
}

// statusMessage はレスポンスのステータス行からメッセージ部分を取り出す。
// ステータス行が "200 OK" 形式でない場合は標準のステータステキストを使う。
func statusMessage(resp *http.Response) string {
	msg := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if msg == "" {
		return http.StatusText(resp.StatusCode)
	}
	return msg
}

// isSuccess は成功（2xx）ステータスかを返す。
func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// isRedirect はこのリゾルバが追跡対象とするリダイレクト（301/302/303）かを返す。
func isRedirect(statusCode int) bool {
	return statusCode == http.StatusMovedPermanently ||
		statusCode == http.StatusFound ||
		statusCode == http.StatusSeeOther
}

// isClientError はクライアントエラー（4xx）ステータスかを返す。
func isClientError(statusCode int) bool {
	return statusCode >= 400 && statusCode < 500
}

// isServerError はサーバーエラー（5xx）ステータスかを返す。
func isServerError(statusCode int) bool {
	return statusCode >= 500
}
