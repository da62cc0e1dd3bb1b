package model

import "fmt"

// ExceptionType はインポート失敗原因の閉じた分類を表す。
// 1購読・1サイクルごとのSubscriptionMetricに載せて呼び出し側へ返す。
type ExceptionType string

const (
	// ExceptionHTTPClientError はHTTP 4xx応答による失敗。
	ExceptionHTTPClientError ExceptionType = "HTTP_CLIENT_ERROR"
	// ExceptionHTTPServerError はHTTP 5xx応答による失敗。
	ExceptionHTTPServerError ExceptionType = "HTTP_SERVER_ERROR"
	// ExceptionUnsecureRedirect は平文HTTPでの別ドメインリダイレクト拒否。
	ExceptionUnsecureRedirect ExceptionType = "UNSECURE_REDIRECT"
	// ExceptionTooManyRedirects はリダイレクト先がさらにリダイレクトした場合。
	ExceptionTooManyRedirects ExceptionType = "TOO_MANY_REDIRECTS"
	// ExceptionFileNotFound はファイル未検出エラー。
	ExceptionFileNotFound ExceptionType = "FILE_NOT_FOUND"
	// ExceptionSSLHandshake はTLSハンドシェイク失敗。
	ExceptionSSLHandshake ExceptionType = "SSL_HANDSHAKE"
	// ExceptionUnknownHost はDNS解決失敗（ホスト未知）。
	ExceptionUnknownHost ExceptionType = "UNKNOWN_HOST"
	// ExceptionSocketTimeout は接続・読み取りタイムアウト。
	ExceptionSocketTimeout ExceptionType = "SOCKET_TIMEOUT"
	// ExceptionConnectRefused は接続拒否。
	ExceptionConnectRefused ExceptionType = "CONNECT_REFUSED"
	// ExceptionSocketError はその他のソケットエラー。
	ExceptionSocketError ExceptionType = "SOCKET_ERROR"
	// ExceptionIllegalArgument は不正なURL等の引数エラー。
	ExceptionIllegalArgument ExceptionType = "ILLEGAL_ARGUMENT"
	// ExceptionParsingFeed はフィード本文のパース失敗。
	ExceptionParsingFeed ExceptionType = "PARSING_FEED_ERROR"
	// ExceptionIOError は汎用I/Oエラー。
	ExceptionIOError ExceptionType = "IO_ERROR"
	// ExceptionOther は上記いずれにも該当しない失敗。
	ExceptionOther ExceptionType = "OTHER"
)

// FeedError はフェッチ/パース失敗を表すタグ付きエラー。
// ネットワーク層が判別済みの結果として返すため、呼び出し側の分類は
// 実行時型検査ではなく純粋なマッチになる。
// ステータスコード駆動の失敗（4xx/5xx/リダイレクト境界）はリゾルバが
// Typeを直接割り当てる。
type FeedError struct {
	FeedURL               string
	HTTPStatusCode        int
	HTTPStatusMessage     string
	RedirectURL           string
	RedirectStatusCode    int
	RedirectStatusMessage string
	Type                  ExceptionType
	Cause                 error
}

// Error はerrorインターフェースを実装する。
func (e *FeedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Type, e.Cause.Error())
	}
	if e.HTTPStatusCode != 0 {
		return fmt.Sprintf("%s: status=%d %s", e.Type, e.HTTPStatusCode, e.HTTPStatusMessage)
	}
	return string(e.Type)
}

// Unwrap は元のエラーを返す。
func (e *FeedError) Unwrap() error {
	return e.Cause
}
