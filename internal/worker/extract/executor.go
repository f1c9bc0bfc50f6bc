package extract

import (
	"context"
	"log/slog"

	"github.com/BishopRed90/galleryman/internal/model"
	"github.com/BishopRed90/galleryman/internal/repository"
)

// RunExecutor は抽出ラン実行機能のインターフェース。
type RunExecutor interface {
	Run(ctx context.Context, targetURL string) (*model.Run, error)
}

// Executor は定期抽出対象へのラン実行と状態遷移の適用を担う。
// スケジューラから呼ばれ、ランの成否をバックオフ戦略へ反映する。
type Executor struct {
	runner     RunExecutor
	targetRepo repository.WatchTargetRepository
	logger     *slog.Logger
}

// NewExecutor はExecutorの新しいインスタンスを生成する。
func NewExecutor(runner RunExecutor, targetRepo repository.WatchTargetRepository, logger *slog.Logger) *Executor {
	return &Executor{
		runner:     runner,
		targetRepo: targetRepo,
		logger:     logger,
	}
}

// Extract は対象の抽出ランを実行し、結果に応じて対象の状態を更新する。
// ランの失敗自体はエラーとして返さず、バックオフとして対象へ記録する。
func (e *Executor) Extract(ctx context.Context, target *model.WatchTarget) error {
	_, err := e.runner.Run(ctx, target.Target)
	if err != nil {
		ApplyFailure(target, err.Error())
		e.logger.Warn("抽出ランが失敗したためバックオフを適用します",
			slog.String("target_id", target.ID),
			slog.Int("failure_count", target.FailureCount),
			slog.String("state", string(target.State)),
		)
	} else {
		ApplySuccess(target)
	}

	if uerr := e.targetRepo.UpdateRunState(ctx, target); uerr != nil {
		return uerr
	}
	return nil
}

var _ ExtractorService = (*Executor)(nil)
