package model

import "github.com/mmcdole/gofeed"

// FetchOutcome は1ユニークFetchTargetのフェッチ解決結果。
// 同じターゲットを共有する全購読から読み取り専用で参照され、
// 生成後に変更されることはない。
type FetchOutcome struct {
	Feed                  *gofeed.Feed
	HTTPStatusCode        int
	HTTPStatusMessage     string
	RedirectURL           string
	RedirectStatusCode    int
	RedirectStatusMessage string
	IsUpgradable          bool
}

// Resolved はリダイレクト解決後の最終ステータスが成功かを返す。
func (o *FetchOutcome) Resolved() bool {
	if o.RedirectStatusCode != 0 {
		return o.RedirectStatusCode >= 200 && o.RedirectStatusCode < 300
	}
	return o.HTTPStatusCode >= 200 && o.HTTPStatusCode < 300
}
