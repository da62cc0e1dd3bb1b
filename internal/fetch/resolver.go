package fetch

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/model"
)

// FeedParser は生バイト列をパース済みフィードへ変換する外部コラボレータ。
type FeedParser interface {
	Parse(body []byte) (*gofeed.Feed, error)
}

// GofeedParser はgofeedによるFeedParserの実装。
type GofeedParser struct{}

// Parse はRSS/Atomの生バイト列をパースする。
func (GofeedParser) Parse(body []byte) (*gofeed.Feed, error) {
	return gofeed.NewParser().Parse(bytes.NewReader(body))
}

// maxProbeDepth はディスカバリ/アップグレードプローブ再帰の上限。
// リダイレクト先が別スキームで元ホストへリダイレクトし返すような
// ループを断ち切る（例: http://www.virtualr.net/feed のような壊れた設定）。
const maxProbeDepth = 2

// Resolver はフェッチを有界のリダイレクト/セキュリティステートマシンで
// 解決する。リダイレクトは明示的に1ホップだけ追跡し、リダイレクト先が
// さらにリダイレクトした場合は常にエラーとする。汎用のリダイレクト
// チェーン追跡は意図的に持たない。
type Resolver struct {
	fetcher RawFetcher
	parser  FeedParser
	logger  *slog.Logger

	// lookupCanonicalHost は同一ドメイン判定に使う正規ホスト名の解決関数。
	// テストで差し替えられる。
	lookupCanonicalHost func(ctx context.Context, host string) string
}

// NewResolver はResolverの新しいインスタンスを生成する。
func NewResolver(fetcher RawFetcher, parser FeedParser, logger *slog.Logger) *Resolver {
	return &Resolver{
		fetcher:             fetcher,
		parser:              parser,
		logger:              logger,
		lookupCanonicalHost: canonicalHost,
	}
}

// Resolve は対象をフェッチし、1ホップまでのリダイレクトを解決して
// パース済みフィードを含むFetchOutcomeを返す。
// 失敗は*model.FeedErrorとして返され、Typeに閉じた分類が載る。
// followUnsecureRedirectsがfalseの場合、平文HTTPからの別ドメイン
// リダイレクトは拒否される。認証情報がある場合は設定に関わらず拒否する。
func (r *Resolver) Resolve(ctx context.Context, target model.FetchTarget, userAgent string, followUnsecureRedirects bool) (*model.FetchOutcome, error) {
	return r.resolve(ctx, target, userAgent, followUnsecureRedirects, 0)
}

func (r *Resolver) resolve(ctx context.Context, target model.FetchTarget, userAgent string, followUnsecureRedirects bool, depth int) (*model.FetchOutcome, error) {
	var auth *model.AuthConfig
	if target.HasAuth() {
		a := target.Auth
		auth = &a
	}

	resp, err := r.fetcher.Do(ctx, target.URL, auth, userAgent)
	if err != nil {
		return nil, Classify(target.URL, err)
	}

	outcome := &model.FetchOutcome{
		HTTPStatusCode:    resp.StatusCode,
		HTTPStatusMessage: resp.StatusMessage,
	}
	finalResp := resp

	switch {
	case isRedirect(resp.StatusCode):
		outcome.RedirectURL = resolveLocation(target.URL, resp.Header.Get("Location"))
		redirected, redirectErr := r.followRedirect(ctx, target, auth, userAgent, outcome, followUnsecureRedirects, depth)
		if redirectErr != nil {
			return nil, redirectErr
		}
		finalResp = redirected

	case isClientError(resp.StatusCode):
		return nil, &model.FeedError{
			FeedURL:           target.URL,
			HTTPStatusCode:    resp.StatusCode,
			HTTPStatusMessage: resp.StatusMessage,
			Type:              model.ExceptionHTTPClientError,
		}

	case isServerError(resp.StatusCode):
		return nil, &model.FeedError{
			FeedURL:           target.URL,
			HTTPStatusCode:    resp.StatusCode,
			HTTPStatusMessage: resp.StatusMessage,
			Type:              model.ExceptionHTTPServerError,
		}
	}

	// 成功した平文HTTPフェッチに対するHTTPSアップグレードの判定。
	// 助言的な結果であり、プローブ中の例外は全て握りつぶされる。
	outcome.IsUpgradable = r.probeUpgradable(ctx, target, outcome, userAgent, depth)

	feed, parseErr := r.parser.Parse(finalResp.Body)
	if parseErr != nil {
		errType := classifyError(parseErr)
		if errType == model.ExceptionOther {
			errType = model.ExceptionParsingFeed
		}
		return nil, &model.FeedError{
			FeedURL:               target.URL,
			HTTPStatusCode:        outcome.HTTPStatusCode,
			HTTPStatusMessage:     outcome.HTTPStatusMessage,
			RedirectURL:           outcome.RedirectURL,
			RedirectStatusCode:    outcome.RedirectStatusCode,
			RedirectStatusMessage: outcome.RedirectStatusMessage,
			Type:                  errType,
			Cause:                 parseErr,
		}
	}

	outcome.Feed = feed
	return outcome, nil
}

// probeUpgradable は平文HTTPで成功したフェッチに対し、同じURLのHTTPS版が
// 利用可能かを試験フェッチで判定する。結果は助言的なもので、プローブ中の
// 失敗は種類を問わず「アップグレード不可」として扱い呼び出し元へは伝播しない。
func (r *Resolver) probeUpgradable(ctx context.Context, target model.FetchTarget, outcome *model.FetchOutcome, userAgent string, depth int) bool {
	if depth >= maxProbeDepth {
		return false
	}

	var probeURL string
	switch {
	case outcome.RedirectStatusCode == 0 && isSuccess(outcome.HTTPStatusCode) && isPlainHTTP(target.URL):
		probeURL = target.URL
	case isSuccess(outcome.RedirectStatusCode) && isPlainHTTP(outcome.RedirectURL):
		probeURL = outcome.RedirectURL
	default:
		return false
	}

	probeTarget := target
	probeTarget.URL = strings.Replace(probeURL, "http", "https", 1)
	probed, err := r.resolve(ctx, probeTarget, userAgent, false, depth+1)
	if err != nil {
		r.logger.Debug("HTTPSアップグレードプローブ失敗",
			slog.String("url", probeTarget.URL),
			slog.String("error", err.Error()),
		)
		return false
	}
	return probed.Resolved()
}

// isPlainHTTP はURLが平文HTTPスキームかどうかを返す。
func isPlainHTTP(rawURL string) bool {
	return strings.EqualFold(schemeOf(rawURL), "http")
}

// followRedirect はリダイレクトの1ホップを解決する。
// セキュリティポリシー: 平文HTTPから別ドメインへのリダイレクトは、
// 認証情報がある場合は常に、ない場合も呼び出し側が明示的に許可して
// いなければ拒否する。リダイレクト先がさらにリダイレクトした場合は
// TOO_MANY_REDIRECTSで失敗する。
func (r *Resolver) followRedirect(ctx context.Context, target model.FetchTarget, auth *model.AuthConfig, userAgent string, outcome *model.FetchOutcome, followUnsecureRedirects bool, depth int) (*RawResponse, error) {
	redirectURL := outcome.RedirectURL

	fail := func(errType model.ExceptionType) *model.FeedError {
		return &model.FeedError{
			FeedURL:               target.URL,
			HTTPStatusCode:        outcome.HTTPStatusCode,
			HTTPStatusMessage:     outcome.HTTPStatusMessage,
			RedirectURL:           outcome.RedirectURL,
			RedirectStatusCode:    outcome.RedirectStatusCode,
			RedirectStatusMessage: outcome.RedirectStatusMessage,
			Type:                  errType,
		}
	}

	if depth > maxProbeDepth {
		// 何らかのリダイレクトループに捕まっている
		return nil, fail(model.ExceptionOther)
	}

	isUnsecure := strings.EqualFold(schemeOf(target.URL), "http")
	isSameDomain := r.isSameDomain(ctx, target.URL, redirectURL)
	hasAuth := auth != nil

	if isUnsecure && !isSameDomain && (hasAuth || !followUnsecureRedirects) {
		return nil, fail(model.ExceptionUnsecureRedirect)
	}

	resp, err := r.fetcher.Do(ctx, redirectURL, auth, userAgent)
	if err != nil {
		fe := Classify(redirectURL, err)
		fe.FeedURL = target.URL
		fe.HTTPStatusCode = outcome.HTTPStatusCode
		fe.HTTPStatusMessage = outcome.HTTPStatusMessage
		fe.RedirectURL = redirectURL
		return nil, fe
	}

	outcome.RedirectStatusCode = resp.StatusCode
	outcome.RedirectStatusMessage = resp.StatusMessage

	switch {
	case isRedirect(resp.StatusCode):
		return nil, fail(model.ExceptionTooManyRedirects)
	case isClientError(resp.StatusCode):
		return nil, fail(model.ExceptionHTTPClientError)
	case isServerError(resp.StatusCode):
		return nil, fail(model.ExceptionHTTPServerError)
	}

	return resp, nil
}

// isSameDomain は元URLとリダイレクト先URLのホストをそれぞれ正規ホスト名に
// 解決して比較する。どちらかのURLが解釈できない場合は別ドメインとみなす。
func (r *Resolver) isSameDomain(ctx context.Context, originalURL, redirectURL string) bool {
	originalHost := hostOf(originalURL)
	redirectHost := hostOf(redirectURL)
	if originalHost == "" || redirectHost == "" {
		return false
	}
	return r.lookupCanonicalHost(ctx, originalHost) == r.lookupCanonicalHost(ctx, redirectHost)
}

// canonicalHost はDNSでCNAMEを解決した正規ホスト名を返す。
// 解決できない場合は小文字化したホスト名をそのまま使う。
func canonicalHost(ctx context.Context, host string) string {
	cname, err := net.DefaultResolver.LookupCNAME(ctx, host)
	if err != nil || cname == "" {
		return strings.ToLower(host)
	}
	return strings.ToLower(strings.TrimSuffix(cname, "."))
}

// resolveLocation はLocationヘッダをフェッチ元URLに対して解決し、
// 相対URLを絶対URLに変換する。どちらかが解釈できない場合は
// Locationの値をそのまま返す。
func resolveLocation(baseURL, location string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return location
	}
	ref, err := url.Parse(location)
	if err != nil {
		return location
	}
	return base.ResolveReference(ref).String()
}

// hostOf はURLからホスト名（ポートなし）を取り出す。
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// schemeOf はURLからスキームを取り出す。
func schemeOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme
}
