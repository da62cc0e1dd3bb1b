// Package model はRSS/Atomインポーターのドメインモデルを定義する。
package model

import "strings"

// ImporterID はこのインポーターが生成する全StagingRecordに付与される識別子。
const ImporterID = "RssAtom"

// QueryType は購読のクエリ種別を表す。
type QueryType string

const (
	// QueryTypeRSS はRSSエンドポイントのクエリ種別。
	QueryTypeRSS QueryType = "RSS"
	// QueryTypeAtom はAtomエンドポイントのクエリ種別。
	QueryTypeAtom QueryType = "ATOM"
)

// Supported はこのインポーターが処理できるクエリ種別かを返す。
// 比較は大文字小文字を区別しない。
func (t QueryType) Supported() bool {
	return strings.EqualFold(string(t), string(QueryTypeRSS)) ||
		strings.EqualFold(string(t), string(QueryTypeAtom))
}

// AuthConfig はフィード取得時のHTTP Basic認証設定を表す。
// 認証情報は単一接続にのみ付与され、ログには一切出力しない。
type AuthConfig struct {
	Username string
	Password string
}

// Subscription は1つの購読定義を表す。呼び出し側が所有する読み取り専用の入力。
type Subscription struct {
	SubscriptionID int64
	QueueID        int64
	URL            string
	QueryType      QueryType
	Title          string
	Username       string
	ImportSchedule string
	Auth           *AuthConfig
}

// FetchTarget はネットワークフェッチの重複排除キー。
// 全フィールドが一致する購読は1回のネットワーク呼び出しに束ねられる。
// 値として比較可能であり、インポートサイクルごとに生成されて以後変更されない。
type FetchTarget struct {
	URL       string
	QueryType QueryType
	Auth      AuthConfig
}

// TargetOf は購読からFetchTargetを導出する。
func TargetOf(sub *Subscription) FetchTarget {
	t := FetchTarget{URL: sub.URL, QueryType: sub.QueryType}
	if sub.Auth != nil {
		t.Auth = *sub.Auth
	}
	return t
}

// HasAuth は認証情報が設定されているかを返す。
func (t FetchTarget) HasAuth() bool {
	return t.Auth.Username != "" && t.Auth.Password != ""
}
