package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/model"
)

const rssBody = `<?xml version="1.0"?><rss version="2.0"><channel><title>Test Feed</title><item><title>entry1</title><link>https://feed.example.com/1</link></item></channel></rss>`

// mockFetcher はURLごとに固定応答を返すRawFetcher実装。
// 発行されたリクエストのURLを記録する。
type mockFetcher struct {
	responses map[string]*RawResponse
	errs      map[string]error
	calls     []string
}

func (m *mockFetcher) Do(ctx context.Context, rawURL string, auth *model.AuthConfig, userAgent string) (*RawResponse, error) {
	m.calls = append(m.calls, rawURL)
	if err, ok := m.errs[rawURL]; ok {
		return nil, err
	}
	if resp, ok := m.responses[rawURL]; ok {
		return resp, nil
	}
	return nil, errors.New("未設定のURL: " + rawURL)
}

func (m *mockFetcher) callCount(rawURL string) int {
	ct := 0
	for _, c := range m.calls {
		if c == rawURL {
			ct++
		}
	}
	return ct
}

func okResponse(body string) *RawResponse {
	return &RawResponse{StatusCode: 200, StatusMessage: "OK", Header: http.Header{}, Body: []byte(body)}
}

func redirectResponse(location string) *RawResponse {
	h := http.Header{}
	h.Set("Location", location)
	return &RawResponse{StatusCode: 301, StatusMessage: "Moved Permanently", Header: h}
}

func statusResponse(code int, msg string) *RawResponse {
	return &RawResponse{StatusCode: code, StatusMessage: msg, Header: http.Header{}}
}

// newTestResolver はモックフェッチャーを使うResolverを生成する。
// DNS解決はホスト名の小文字化のみに差し替える。
func newTestResolver(fetcher *mockFetcher) *Resolver {
	r := NewResolver(fetcher, GofeedParser{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.lookupCanonicalHost = func(_ context.Context, host string) string {
		return strings.ToLower(host)
	}
	return r
}

// TestResolve_DirectSuccess は200応答のフィードが解決されることをテストする。
func TestResolve_DirectSuccess(t *testing.T) {
	fetcher := &mockFetcher{responses: map[string]*RawResponse{
		"https://feed.example.com/rss": okResponse(rssBody),
	}}
	r := newTestResolver(fetcher)

	outcome, err := r.Resolve(context.Background(), model.FetchTarget{URL: "https://feed.example.com/rss"}, "ua", false)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if outcome.HTTPStatusCode != 200 {
		t.Errorf("期待ステータス: 200, 結果: %d", outcome.HTTPStatusCode)
	}
	if outcome.Feed == nil || outcome.Feed.Title != "Test Feed" {
		t.Errorf("フィードがパースされるべき: %+v", outcome.Feed)
	}
	if outcome.RedirectStatusCode != 0 {
		t.Errorf("リダイレクトメタデータは空であるべき: %d", outcome.RedirectStatusCode)
	}
	// httpsフェッチにアップグレードプローブは不要
	if fetcher.callCount("https://feed.example.com/rss") != 1 {
		t.Errorf("期待フェッチ回数: 1, 結果: %d", fetcher.callCount("https://feed.example.com/rss"))
	}
}

// TestResolve_ClientError は4xx応答がHTTP_CLIENT_ERRORに分類されることをテストする。
func TestResolve_ClientError(t *testing.T) {
	fetcher := &mockFetcher{responses: map[string]*RawResponse{
		"https://feed.example.com/rss": statusResponse(404, "Not Found"),
	}}
	r := newTestResolver(fetcher)

	_, err := r.Resolve(context.Background(), model.FetchTarget{URL: "https://feed.example.com/rss"}, "ua", false)

	var fe *model.FeedError
	if !errors.As(err, &fe) {
		t.Fatalf("FeedErrorが返されるべき: %v", err)
	}
	if fe.Type != model.ExceptionHTTPClientError {
		t.Errorf("期待分類: HTTP_CLIENT_ERROR, 結果: %s", fe.Type)
	}
	if fe.HTTPStatusCode != 404 || fe.HTTPStatusMessage != "Not Found" {
		t.Errorf("ステータスメタデータが保持されるべき: %d %s", fe.HTTPStatusCode, fe.HTTPStatusMessage)
	}
}

// TestResolve_ServerError は5xx応答がHTTP_SERVER_ERRORに分類されることをテストする。
func TestResolve_ServerError(t *testing.T) {
	fetcher := &mockFetcher{responses: map[string]*RawResponse{
		"https://feed.example.com/rss": statusResponse(503, "Service Unavailable"),
	}}
	r := newTestResolver(fetcher)

	_, err := r.Resolve(context.Background(), model.FetchTarget{URL: "https://feed.example.com/rss"}, "ua", false)

	var fe *model.FeedError
	if !errors.As(err, &fe) {
		t.Fatalf("FeedErrorが返されるべき: %v", err)
	}
	if fe.Type != model.ExceptionHTTPServerError {
		t.Errorf("期待分類: HTTP_SERVER_ERROR, 結果: %s", fe.Type)
	}
}

// TestResolve_OneHopRedirect は同一ドメインの1ホップリダイレクトが解決され、
// 両ホップのメタデータが保持されることをテストする。
func TestResolve_OneHopRedirect(t *testing.T) {
	fetcher := &mockFetcher{responses: map[string]*RawResponse{
		"https://feed.example.com/old": redirectResponse("https://feed.example.com/new"),
		"https://feed.example.com/new": okResponse(rssBody),
	}}
	r := newTestResolver(fetcher)

	outcome, err := r.Resolve(context.Background(), model.FetchTarget{URL: "https://feed.example.com/old"}, "ua", false)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if outcome.HTTPStatusCode != 301 {
		t.Errorf("期待初回ステータス: 301, 結果: %d", outcome.HTTPStatusCode)
	}
	if outcome.RedirectURL != "https://feed.example.com/new" {
		t.Errorf("期待リダイレクト先: /new, 結果: %s", outcome.RedirectURL)
	}
	if outcome.RedirectStatusCode != 200 {
		t.Errorf("期待リダイレクトステータス: 200, 結果: %d", outcome.RedirectStatusCode)
	}
	if outcome.Feed == nil {
		t.Error("リダイレクト先のフィードがパースされるべき")
	}
}

// TestResolve_RedirectOfRedirect はリダイレクト先がさらにリダイレクトした場合に
// TOO_MANY_REDIRECTSで失敗することをテストする。
func TestResolve_RedirectOfRedirect(t *testing.T) {
	fetcher := &mockFetcher{responses: map[string]*RawResponse{
		"https://feed.example.com/a": redirectResponse("https://feed.example.com/b"),
		"https://feed.example.com/b": redirectResponse("https://feed.example.com/c"),
		"https://feed.example.com/c": okResponse(rssBody),
	}}
	r := newTestResolver(fetcher)

	_, err := r.Resolve(context.Background(), model.FetchTarget{URL: "https://feed.example.com/a"}, "ua", false)

	var fe *model.FeedError
	if !errors.As(err, &fe) {
		t.Fatalf("FeedErrorが返されるべき: %v", err)
	}
	if fe.Type != model.ExceptionTooManyRedirects {
		t.Errorf("期待分類: TOO_MANY_REDIRECTS, 結果: %s", fe.Type)
	}
	// 2段目のリダイレクト先は決してフェッチされない
	if fetcher.callCount("https://feed.example.com/c") != 0 {
		t.Error("2段目のリダイレクト先はフェッチされるべきではない")
	}
}

// TestResolve_UnsecureRedirectRejected は平文HTTPからの別ドメインリダイレクトが
// 既定で拒否され、リダイレクト先への接続が一切発生しないことをテストする。
func TestResolve_UnsecureRedirectRejected(t *testing.T) {
	fetcher := &mockFetcher{responses: map[string]*RawResponse{
		"http://feed.example.com/rss": redirectResponse("http://evil.example.org/rss"),
		"http://evil.example.org/rss": okResponse(rssBody),
	}}
	r := newTestResolver(fetcher)

	_, err := r.Resolve(context.Background(), model.FetchTarget{URL: "http://feed.example.com/rss"}, "ua", false)

	var fe *model.FeedError
	if !errors.As(err, &fe) {
		t.Fatalf("FeedErrorが返されるべき: %v", err)
	}
	if fe.Type != model.ExceptionUnsecureRedirect {
		t.Errorf("期待分類: UNSECURE_REDIRECT, 結果: %s", fe.Type)
	}
	if fetcher.callCount("http://evil.example.org/rss") != 0 {
		t.Error("拒否されたリダイレクト先へのリクエストは発行されるべきではない")
	}
}

// TestResolve_UnsecureRedirectWithAuthAlwaysRejected は認証情報がある場合、
// followUnsecureRedirects=trueでも別ドメインリダイレクトが拒否されることをテストする。
func TestResolve_UnsecureRedirectWithAuthAlwaysRejected(t *testing.T) {
	fetcher := &mockFetcher{responses: map[string]*RawResponse{
		"http://feed.example.com/rss":  redirectResponse("http://other.example.org/rss"),
		"http://other.example.org/rss": okResponse(rssBody),
	}}
	r := newTestResolver(fetcher)

	target := model.FetchTarget{
		URL:  "http://feed.example.com/rss",
		Auth: model.AuthConfig{Username: "u", Password: "p"},
	}
	_, err := r.Resolve(context.Background(), target, "ua", true)

	var fe *model.FeedError
	if !errors.As(err, &fe) {
		t.Fatalf("FeedErrorが返されるべき: %v", err)
	}
	if fe.Type != model.ExceptionUnsecureRedirect {
		t.Errorf("期待分類: UNSECURE_REDIRECT, 結果: %s", fe.Type)
	}
	if fetcher.callCount("http://other.example.org/rss") != 0 {
		t.Error("認証情報はリダイレクト先へ漏洩するべきではない")
	}
}

// TestResolve_UnsecureRedirectAllowed はfollowUnsecureRedirects=trueで認証情報が
// ない場合、平文HTTPの別ドメインリダイレクトが追跡されることをテストする。
func TestResolve_UnsecureRedirectAllowed(t *testing.T) {
	fetcher := &mockFetcher{responses: map[string]*RawResponse{
		"http://feed.example.com/rss":  redirectResponse("http://other.example.org/rss"),
		"http://other.example.org/rss": okResponse(rssBody),
	}}
	r := newTestResolver(fetcher)

	outcome, err := r.Resolve(context.Background(), model.FetchTarget{URL: "http://feed.example.com/rss"}, "ua", true)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if outcome.Feed == nil {
		t.Error("リダイレクト先のフィードがパースされるべき")
	}
}

// TestResolve_SameDomainUnsecureRedirect は平文HTTPでも同一ドメインの
// リダイレクトは追跡されることをテストする。
func TestResolve_SameDomainUnsecureRedirect(t *testing.T) {
	fetcher := &mockFetcher{responses: map[string]*RawResponse{
		"http://feed.example.com/old": redirectResponse("http://feed.example.com/new"),
		"http://feed.example.com/new": okResponse(rssBody),
	}}
	r := newTestResolver(fetcher)

	outcome, err := r.Resolve(context.Background(), model.FetchTarget{URL: "http://feed.example.com/old"}, "ua", false)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if outcome.Feed == nil {
		t.Error("同一ドメインのリダイレクトは追跡されるべき")
	}
}

// TestResolve_RelativeLocationRedirect は相対パスのLocationヘッダが
// フェッチ元URLに対して解決され、同一ドメインのリダイレクトとして
// 追跡されることをテストする。
func TestResolve_RelativeLocationRedirect(t *testing.T) {
	fetcher := &mockFetcher{responses: map[string]*RawResponse{
		"http://feed.example.com/rss":  redirectResponse("/rss2"),
		"http://feed.example.com/rss2": okResponse(rssBody),
	}}
	r := newTestResolver(fetcher)

	outcome, err := r.Resolve(context.Background(), model.FetchTarget{URL: "http://feed.example.com/rss"}, "ua", false)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if outcome.RedirectURL != "http://feed.example.com/rss2" {
		t.Errorf("Locationは絶対URLに解決されるべき: %s", outcome.RedirectURL)
	}
	if outcome.RedirectStatusCode != 200 {
		t.Errorf("期待リダイレクトステータス: 200, 結果: %d", outcome.RedirectStatusCode)
	}
	if outcome.Feed == nil {
		t.Error("リダイレクト先のフィードがパースされるべき")
	}
	if fetcher.callCount("http://feed.example.com/rss2") == 0 {
		t.Error("解決済みの絶対URLがフェッチされるべき")
	}
}

// TestResolve_ParseFailure はフィードでないボディがPARSING_FEED_ERRORに
// 分類され、ステータスメタデータが保持されることをテストする。
func TestResolve_ParseFailure(t *testing.T) {
	fetcher := &mockFetcher{responses: map[string]*RawResponse{
		"https://feed.example.com/rss": okResponse("<html><body>not a feed</body></html>"),
	}}
	r := newTestResolver(fetcher)

	_, err := r.Resolve(context.Background(), model.FetchTarget{URL: "https://feed.example.com/rss"}, "ua", false)

	var fe *model.FeedError
	if !errors.As(err, &fe) {
		t.Fatalf("FeedErrorが返されるべき: %v", err)
	}
	if fe.Type != model.ExceptionParsingFeed {
		t.Errorf("期待分類: PARSING_FEED_ERROR, 結果: %s", fe.Type)
	}
	if fe.HTTPStatusCode != 200 {
		t.Errorf("ステータスメタデータが保持されるべき: %d", fe.HTTPStatusCode)
	}
}

// TestResolve_TransportError はトランスポート層エラーが分類付きで返されることをテストする。
func TestResolve_TransportError(t *testing.T) {
	fetcher := &mockFetcher{errs: map[string]error{
		"https://feed.example.com/rss": context.DeadlineExceeded,
	}}
	r := newTestResolver(fetcher)

	_, err := r.Resolve(context.Background(), model.FetchTarget{URL: "https://feed.example.com/rss"}, "ua", false)

	var fe *model.FeedError
	if !errors.As(err, &fe) {
		t.Fatalf("FeedErrorが返されるべき: %v", err)
	}
	if fe.Type != model.ExceptionSocketTimeout {
		t.Errorf("期待分類: SOCKET_TIMEOUT, 結果: %s", fe.Type)
	}
}

// TestResolve_UpgradableProbe は平文HTTPで成功した場合にHTTPS版の
// 可用性がプローブされることをテストする。
func TestResolve_UpgradableProbe(t *testing.T) {
	fetcher := &mockFetcher{responses: map[string]*RawResponse{
		"http://feed.example.com/rss":  okResponse(rssBody),
		"https://feed.example.com/rss": okResponse(rssBody),
	}}
	r := newTestResolver(fetcher)

	outcome, err := r.Resolve(context.Background(), model.FetchTarget{URL: "http://feed.example.com/rss"}, "ua", false)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if !outcome.IsUpgradable {
		t.Error("HTTPS版が利用可能な場合IsUpgradableはtrueであるべき")
	}
	if fetcher.callCount("https://feed.example.com/rss") != 1 {
		t.Errorf("HTTPSプローブは1回発行されるべき: %d", fetcher.callCount("https://feed.example.com/rss"))
	}
}

// TestResolve_NotUpgradableOnProbeFailure はHTTPSプローブの失敗が
// 握りつぶされ、元の解決結果に影響しないことをテストする。
func TestResolve_NotUpgradableOnProbeFailure(t *testing.T) {
	fetcher := &mockFetcher{
		responses: map[string]*RawResponse{
			"http://feed.example.com/rss": okResponse(rssBody),
		},
		errs: map[string]error{
			"https://feed.example.com/rss": errors.New("connection refused"),
		},
	}
	r := newTestResolver(fetcher)

	outcome, err := r.Resolve(context.Background(), model.FetchTarget{URL: "http://feed.example.com/rss"}, "ua", false)
	if err != nil {
		t.Fatalf("プローブ失敗は呼び出し元へ伝播するべきではない: %v", err)
	}
	if outcome.IsUpgradable {
		t.Error("プローブ失敗時IsUpgradableはfalseであるべき")
	}
}

// TestResolve_NoProbeForHTTPS はHTTPSフェッチにアップグレードプローブが
// 発行されないことをテストする。
func TestResolve_NoProbeForHTTPS(t *testing.T) {
	fetcher := &mockFetcher{responses: map[string]*RawResponse{
		"https://feed.example.com/rss": okResponse(rssBody),
	}}
	r := newTestResolver(fetcher)

	outcome, err := r.Resolve(context.Background(), model.FetchTarget{URL: "https://feed.example.com/rss"}, "ua", false)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if outcome.IsUpgradable {
		t.Error("https対象にIsUpgradableは立つべきではない")
	}
	if len(fetcher.calls) != 1 {
		t.Errorf("期待フェッチ回数: 1, 結果: %d", len(fetcher.calls))
	}
}

// TestResolve_ProbeAfterRedirect はリダイレクト先が平文HTTPで成功した
// 場合、リダイレクト先のHTTPS版がプローブされることをテストする。
func TestResolve_ProbeAfterRedirect(t *testing.T) {
	fetcher := &mockFetcher{responses: map[string]*RawResponse{
		"http://feed.example.com/old":  redirectResponse("http://feed.example.com/new"),
		"http://feed.example.com/new":  okResponse(rssBody),
		"https://feed.example.com/new": okResponse(rssBody),
	}}
	r := newTestResolver(fetcher)

	outcome, err := r.Resolve(context.Background(), model.FetchTarget{URL: "http://feed.example.com/old"}, "ua", false)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if !outcome.IsUpgradable {
		t.Error("リダイレクト先のHTTPS版が利用可能な場合IsUpgradableはtrueであるべき")
	}
}

// TestGofeedParser_ParsesAtom はAtomフィードもパースできることをテストする。
func TestGofeedParser_ParsesAtom(t *testing.T) {
	atom := `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"><title>Atom Feed</title><entry><title>e1</title></entry></feed>`
	feed, err := GofeedParser{}.Parse([]byte(atom))
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if feed.Title != "Atom Feed" {
		t.Errorf("期待タイトル: Atom Feed, 結果: %s", feed.Title)
	}
	if _, err := (GofeedParser{}).Parse([]byte("plainly not xml")); err == nil {
		t.Error("非フィードボディはパースエラーになるべき")
	}
}
