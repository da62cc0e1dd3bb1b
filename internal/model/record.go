package model

import "time"

// ContentObject は型タグ付きのコンテンツ値を表す。
// Typeはtext、htmlなどのMIME風タグ。値が存在しないフィールドは
// 空のプレースホルダではなくnilで表現する。
type ContentObject struct {
	Ident string
	Type  string
	Value string
}

// RecordPerson は著者・寄稿者の簡易投影。
type RecordPerson struct {
	Name  string
	Email string
	URI   string
}

// RecordURL はエントリのリンクの簡易投影。rel=alternateのリンクは
// プライマリURLとして別に扱われるため含まれない。
type RecordURL struct {
	Title    string
	Type     string
	Href     string
	Hreflang string
	Rel      string
}

// RecordEnclosure はエンクロージャ（添付メディア）の簡易投影。
type RecordEnclosure struct {
	URL    string
	Type   string
	Length int64
}

// RecordMedia はMedia RSSモジュールの抜粋投影。
type RecordMedia struct {
	ThumbnailURL string
	ContentURLs  []string
}

// RecordITunes はiTunes系ポッドキャストメタデータの投影。
type RecordITunes struct {
	Author      string
	Subtitle    string
	Summary     string
	ImageURL    string
	Duration    string
	Explicit    string
	Episode     string
	Season      string
	EpisodeType string
}

// StagingRecord は1フィードエントリの正規化済み・コンテンツアドレス化済み
// 表現。購読ごとに独立したレコードが作られ、同じFetchOutcomeを共有する
// 購読間でも同一性は共有されない。
type StagingRecord struct {
	ImporterID          string
	QueueID             int64
	SubscriptionID      int64
	ImporterDesc        string
	Title               *ContentObject
	Description         *ContentObject
	Contents            []ContentObject
	Media               *RecordMedia
	ITunes              *RecordITunes
	URL                 string
	URLs                []RecordURL
	ThumbnailURL        string
	ImportTimestamp     time.Time
	ContentHash         string
	Username            string
	Comments            string
	Rights              string
	Contributors        []RecordPerson
	Authors             []RecordPerson
	Categories          []string
	PublishTimestamp    *time.Time
	ExpirationTimestamp *time.Time
	Enclosures          []RecordEnclosure
	UpdatedTimestamp    *time.Time
}
