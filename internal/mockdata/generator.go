// Package mockdata はネットワークに一切触れない決定的なテスト用フィードを
// 生成する。開発・結合テスト環境でインポートパイプラインの下流を
// 駆動するために使う。
package mockdata

import (
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/model"
)

// Generator は購読ごとに決定的なモックフィードを組み立てる。
type Generator struct{}

// NewGenerator はGeneratorの新しいインスタンスを生成する。
func NewGenerator() *Generator {
	return &Generator{}
}

// BuildMockResponse は購読のキューIDから導出される1エントリの
// モックフィードを返す。フィールド値はキューIDにのみ依存する。
func (g *Generator) BuildMockResponse(sub *model.Subscription) *gofeed.Feed {
	now := time.Now()
	return &gofeed.Feed{
		Title: fmt.Sprintf("test-feed%d", sub.QueueID),
		Items: []*gofeed.Item{
			{
				Title:           fmt.Sprintf("test-title%d", sub.QueueID),
				Description:     fmt.Sprintf("test-description%d", sub.QueueID),
				Link:            fmt.Sprintf("test-url%d", sub.QueueID),
				Author:          &gofeed.Person{Name: fmt.Sprintf("test-author%d", sub.QueueID)},
				PublishedParsed: &now,
				Extensions: ext.Extensions{
					"media": {
						"thumbnail": []ext.Extension{
							{
								Name:  "thumbnail",
								Attrs: map[string]string{"url": "test-image"},
							},
						},
					},
				},
			},
		},
	}
}
