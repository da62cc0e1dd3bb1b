package model

import "time"

// SubscriptionMetric は1購読・1インポートサイクルの結果レコード。
// 成功・失敗を問わず、対応クエリ種別の購読1件につき必ず1つ生成される。
type SubscriptionMetric struct {
	SubscriptionID        int64
	HTTPStatusCode        int
	HTTPStatusMessage     string
	RedirectURL           string
	RedirectStatusCode    int
	RedirectStatusMessage string
	ImportTimestamp       time.Time
	ImportSchedule        string
	ImportCount           int
	ErrorType             ExceptionType
	ErrorDetail           string
}

// ImportResult はインポートサイクルの集約結果。
// StagingRecordsは全ターゲットのレコードの和集合、Metricsは
// 対応クエリ種別の入力購読1件につき1エントリ。
type ImportResult struct {
	StagingRecords []StagingRecord
	Metrics        []SubscriptionMetric
}
