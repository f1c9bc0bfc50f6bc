// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/BishopRed90/galleryman/internal/model"
)

// RunRepository は抽出ランの永続化インターフェース。
type RunRepository interface {
	// Create は実行中状態の抽出ランを作成する。
	Create(ctx context.Context, run *model.Run) error

	// Finish は抽出ランの終了状態と集計値を記録する。
	// state、items_seen、items_emitted、bytes_downloaded、
	// error_message、finished_atを更新する。
	Finish(ctx context.Context, run *model.Run) error

	// FindByID は指定IDの抽出ランを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Run, error)

	// List は抽出ラン一覧を開始日時の降順で返す。
	List(ctx context.Context, limit int) ([]*model.Run, error)
}

// ArtifactRepository はアーカイブ済みアーティファクトの永続化インターフェース。
type ArtifactRepository interface {
	// Create はアーティファクトを記録する。
	// (item_id, file_path) の重複時は一意制約違反となるため、
	// 呼び出し側は事前にExistsで判定する。
	Create(ctx context.Context, artifact *model.Artifact) error

	// Exists は同一アイテム・同一パスのアーティファクトが記録済みかを返す。
	// ダウンローダーの重複スキップ判定に使用する。
	Exists(ctx context.Context, itemID int64, filePath string) (bool, error)

	// ListByRunID は指定ランのアーティファクト一覧を記録順で返す。
	ListByRunID(ctx context.Context, runID string) ([]*model.Artifact, error)
}

// WatchTargetRepository は定期抽出対象の永続化インターフェース。
type WatchTargetRepository interface {
	// Create は定期抽出対象を登録する。
	Create(ctx context.Context, target *model.WatchTarget) error

	// FindByID は指定IDの対象を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.WatchTarget, error)

	// FindByTarget は対象URLで検索する。重複登録の判定に使用する。
	// 見つからない場合はnilを返す。
	FindByTarget(ctx context.Context, target string) (*model.WatchTarget, error)

	// List は登録済みの全対象を作成日時の昇順で返す。
	List(ctx context.Context) ([]*model.WatchTarget, error)

	// ListDueForRun は実行予定時刻を過ぎたアクティブな対象を
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	ListDueForRun(ctx context.Context) ([]*model.WatchTarget, error)

	// UpdateRunState は対象の実行結果を反映する。
	// state、failure_count、error_message、next_run_atを更新する。
	UpdateRunState(ctx context.Context, target *model.WatchTarget) error

	// UpdateInterval は対象の抽出間隔を更新する。
	UpdateInterval(ctx context.Context, id string, seconds int) error

	// Delete は指定IDの対象を削除する。
	Delete(ctx context.Context, id string) error
}
