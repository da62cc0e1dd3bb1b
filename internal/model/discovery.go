package model

// DiscoveryInfo はフィードURLの一度きりの発見・検証結果。
// 購読登録時に収集され、インポーターのディスカバリキャッシュとして
// URLをキーに渡されるとネットワークフェッチを省略できる。
type DiscoveryInfo struct {
	FeedURL                   string
	HTTPStatusCode            int
	HTTPStatusMessage         string
	RedirectFeedURL           string
	RedirectHTTPStatusCode    int
	RedirectHTTPStatusMessage string
	Title                     *ContentObject
	Description               *ContentObject
	FeedType                  string
	Author                    string
	Copyright                 string
	Generator                 string
	Language                  string
	Link                      string
	ImageURL                  string
	Categories                []string
	SampleEntries             []StagingRecord
	IsUpgradable              bool
}
