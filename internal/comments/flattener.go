// Package comments はコメントツリーの平坦化を提供する。
// 返信が隠れているコメントを順次展開し、全コメントを1つの列にまとめる。
package comments

import (
	"context"
	"log/slog"

	"github.com/BishopRed90/galleryman/internal/model"
)

// ThreadFetcher はコメントスレッド1件分の取得機能のインターフェース。
// commentIDが空の場合はルートスレッド、指定時はそのコメント配下の返信を返す。
type ThreadFetcher interface {
	Comments(ctx context.Context, itemID int64, commentID string) ([]model.Comment, error)
}

// Flattener はコメントの森を平坦な列へ展開する。
type Flattener struct {
	fetcher ThreadFetcher
	logger  *slog.Logger
}

// NewFlattener はFlattenerの新しいインスタンスを生成する。
func NewFlattener(fetcher ThreadFetcher, logger *slog.Logger) *Flattener {
	return &Flattener{fetcher: fetcher, logger: logger}
}

// Flatten は指定アイテムの全コメントをサーバーの返却順で返す。
//
// ルートを起点にワークリストを回し、各反復で1スレッド分を取得して
// 結果へ追記する。返信数を報告しているのにどのコメントの親にも
// なっていないID（子が未展開の葉）を次の展開対象として積む。
// サーバー側の巡回保証に頼らず、一度積んだIDは再度積まない。
func (f *Flattener) Flatten(ctx context.Context, itemID int64) ([]model.Comment, error) {
	var results []model.Comment

	worklist := []string{""}
	visited := map[string]bool{"": true}

	for len(worklist) > 0 {
		id := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		page, err := f.fetcher.Comments(ctx, itemID, id)
		if err != nil {
			return nil, err
		}
		results = append(results, page...)

		parents := make(map[string]bool, len(page))
		for _, c := range page {
			parents[c.ParentID] = true
		}
		for _, c := range page {
			if c.Replies > 0 && !parents[c.CommentID] && !visited[c.CommentID] {
				visited[c.CommentID] = true
				worklist = append(worklist, c.CommentID)
			}
		}
	}

	f.logger.Debug("コメントツリーを平坦化しました",
		slog.Int64("item_id", itemID),
		slog.Int("comment_count", len(results)),
	)
	return results, nil
}
