// Package discovery はフィードURLの事前検証とメタデータ抽出を提供する。
// 購読作成前のプレビューに使われ、結果はインポートサイクルの
// ディスカバリキャッシュとしても再利用できる。
package discovery

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/model"
)

// FeedCandidate はHTMLの自動検出で見つかったフィード候補。
type FeedCandidate struct {
	URL       string
	QueryType model.QueryType
	Title     string
}

// SSRFValidator はSSRF検証と安全なHTTPクライアント生成を抽象化する。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Detector は入力URLがフィードそのものか、フィードへリンクするHTMLかを
// 判定する。
type Detector struct {
	ssrfGuard SSRFValidator
	userAgent string
}

// NewDetector はDetectorの新しいインスタンスを生成する。
func NewDetector(ssrfGuard SSRFValidator, userAgent string) *Detector {
	return &Detector{
		ssrfGuard: ssrfGuard,
		userAgent: userAgent,
	}
}

var feedContentTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
}

// ボディ解析が必要な汎用XML Content-Type
var xmlContentTypes = []string{
	"text/xml",
	"application/xml",
}

// IsDirectFeed はContent-Typeとボディから、レスポンスがRSS/Atom
// フィードそのものかを判定する。
func (d *Detector) IsDirectFeed(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)

	for _, feedCT := range feedContentTypes {
		if mediaType == feedCT {
			return true
		}
	}

	isXML := false
	for _, xmlCT := range xmlContentTypes {
		if mediaType == xmlCT {
			isXML = true
			break
		}
	}
	if !isXML || len(body) == 0 {
		return false
	}

	return isRSSOrAtomXML(body)
}

// isRSSOrAtomXML はXMLボディの先頭4KBを検査してRSS/Atomかを判定する。
func isRSSOrAtomXML(body []byte) bool {
	checkSize := 4096
	if len(body) < checkSize {
		checkSize = len(body)
	}
	prefix := strings.ToLower(string(body[:checkSize]))

	if strings.Contains(prefix, "<rss") {
		return true
	}
	if strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	if strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom") {
		return true
	}
	return false
}

// ParseFeedLinksFromHTML はHTMLのheadタグからrel="alternate"の
// RSS/Atomリンクを検出する。相対URLはbaseURLを基準に解決される。
func (d *Detector) ParseFeedLinksFromHTML(htmlBody []byte, baseURL string) []FeedCandidate {
	var candidates []FeedCandidate

	baseU, err := url.Parse(baseURL)
	if err != nil {
		return candidates
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return candidates

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "head" {
				inHead = true
				continue
			}
			if tagName == "body" {
				return candidates
			}
			if !inHead || tagName != "link" || !hasAttr {
				continue
			}

			var rel, linkType, href, title string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = string(val)
				case "title":
					title = string(val)
				}
				if !more {
					break
				}
			}

			if rel != "alternate" || href == "" {
				continue
			}

			var queryType model.QueryType
			switch linkType {
			case "application/rss+xml":
				queryType = model.QueryTypeRSS
			case "application/atom+xml":
				queryType = model.QueryTypeAtom
			default:
				continue
			}

			resolved := resolveURL(baseU, href)
			if resolved == "" {
				continue
			}

			candidates = append(candidates, FeedCandidate{
				URL:       resolved,
				QueryType: queryType,
				Title:     title,
			})

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				return candidates
			}
		}
	}
}

func resolveURL(base *url.URL, rawRef string) string {
	ref, err := url.Parse(rawRef)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// SelectBestFeed は候補の中から最適なフィードを選択する。
// 優先順位: 同一ホスト > Atom > 宣言順。
func (d *Detector) SelectBestFeed(candidates []FeedCandidate, inputURL string) *FeedCandidate {
	if len(candidates) == 0 {
		return nil
	}

	inputHost := extractHost(inputURL)

	bestIdx := 0
	bestScore := -1
	for i, c := range candidates {
		score := 0
		if extractHost(c.URL) == inputHost {
			score += 100
		}
		if c.QueryType == model.QueryTypeAtom {
			score += 10
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return &candidates[bestIdx]
}

func extractHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// DetectFeedURL は入力URLがフィードかHTMLページかを判定し、実際に
// 購読すべきフィードURLを返す。HTMLページの場合は自動検出リンクを
// たどる。検出できない場合はILLEGAL_ARGUMENT分類のエラーを返す。
func (d *Detector) DetectFeedURL(ctx context.Context, inputURL string) (string, error) {
	if inputURL == "" {
		return "", &model.FeedError{FeedURL: inputURL, Type: model.ExceptionIllegalArgument}
	}

	if d.ssrfGuard != nil {
		if err := d.ssrfGuard.ValidateURL(inputURL); err != nil {
			return "", &model.FeedError{FeedURL: inputURL, Type: model.ExceptionIllegalArgument, Cause: err}
		}
	}

	client := d.httpClient()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inputURL, nil)
	if err != nil {
		return "", &model.FeedError{FeedURL: inputURL, Type: model.ExceptionIllegalArgument, Cause: err}
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*")

	resp, err := client.Do(req)
	if err != nil {
		return "", &model.FeedError{FeedURL: inputURL, Type: model.ExceptionIOError, Cause: err}
	}
	defer resp.Body.Close()

	const maxBodySize = 5 * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", &model.FeedError{FeedURL: inputURL, Type: model.ExceptionIOError, Cause: err}
	}

	contentType := resp.Header.Get("Content-Type")
	if d.IsDirectFeed(contentType, body) {
		return inputURL, nil
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if !strings.Contains(strings.ToLower(mediaType), "html") {
		return "", &model.FeedError{FeedURL: inputURL, Type: model.ExceptionParsingFeed}
	}

	candidates := d.ParseFeedLinksFromHTML(body, inputURL)
	best := d.SelectBestFeed(candidates, inputURL)
	if best == nil {
		return "", &model.FeedError{FeedURL: inputURL, Type: model.ExceptionParsingFeed}
	}
	return best.URL, nil
}

// httpClient はHTTPクライアントを取得する。SSRFGuardが設定されている
// 場合はSSRF防止付きクライアントを返す。
func (d *Detector) httpClient() *http.Client {
	if d.ssrfGuard != nil {
		return d.ssrfGuard.NewSafeClient(10*time.Second, 5*1024*1024)
	}
	return &http.Client{Timeout: 10 * time.Second}
}
