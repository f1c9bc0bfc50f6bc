package handler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/BishopRed90/galleryman/internal/model"
	"github.com/BishopRed90/galleryman/internal/repository"
	"github.com/BishopRed90/galleryman/internal/worker/extract"
)

// 抽出間隔の許容範囲（秒）
const (
	minIntervalSeconds = 300
	maxIntervalSeconds = 86400

	// defaultIntervalSeconds は間隔未指定時のデフォルト（1時間）。
	defaultIntervalSeconds = 3600
)

// RunServiceAdapter はリポジトリ層を RunServiceInterface に適合させるアダプタ。
type RunServiceAdapter struct {
	runs      repository.RunRepository
	artifacts repository.ArtifactRepository
}

// NewRunServiceAdapter はRunServiceAdapterを生成する。
func NewRunServiceAdapter(runs repository.RunRepository, artifacts repository.ArtifactRepository) *RunServiceAdapter {
	return &RunServiceAdapter{runs: runs, artifacts: artifacts}
}

// ListRuns は抽出ランの履歴を新しい順に返す。
func (a *RunServiceAdapter) ListRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	return a.runs.List(ctx, limit)
}

// GetRun はランを取得する。見つからない場合はnilを返す。
func (a *RunServiceAdapter) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	return a.runs.FindByID(ctx, runID)
}

// ListArtifacts はランに記録されたアーティファクト一覧を返す。
func (a *RunServiceAdapter) ListArtifacts(ctx context.Context, runID string) ([]*model.Artifact, error) {
	return a.artifacts.ListByRunID(ctx, runID)
}

// WatchlistServiceAdapter はリポジトリ層を WatchlistServiceInterface に適合させるアダプタ。
// 対象URLの検証と抽出間隔のバリデーションを担う。
type WatchlistServiceAdapter struct {
	targets repository.WatchTargetRepository
}

// NewWatchlistServiceAdapter はWatchlistServiceAdapterを生成する。
func NewWatchlistServiceAdapter(targets repository.WatchTargetRepository) *WatchlistServiceAdapter {
	return &WatchlistServiceAdapter{targets: targets}
}

// Register は抽出対象を登録する。
// 対象URLの形式検証と重複チェックを行い、初回実行は即時にスケジュールする。
func (a *WatchlistServiceAdapter) Register(ctx context.Context, target string, intervalSeconds int) (*model.WatchTarget, error) {
	if _, err := extract.ParseTarget(target); err != nil {
		return nil, err
	}

	if intervalSeconds == 0 {
		intervalSeconds = defaultIntervalSeconds
	}
	if intervalSeconds < minIntervalSeconds || intervalSeconds > maxIntervalSeconds {
		return nil, model.NewInvalidIntervalError(intervalSeconds)
	}

	existing, err := a.targets.FindByTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, model.NewDuplicateTargetError()
	}

	now := time.Now().UTC()
	wt := &model.WatchTarget{
		ID:              uuid.NewString(),
		Target:          target,
		IntervalSeconds: intervalSeconds,
		NextRunAt:       now,
		State:           model.WatchTargetStateActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.targets.Create(ctx, wt); err != nil {
		return nil, err
	}
	return wt, nil
}

// List は登録済みの抽出対象一覧を返す。
func (a *WatchlistServiceAdapter) List(ctx context.Context) ([]*model.WatchTarget, error) {
	return a.targets.List(ctx)
}

// UpdateInterval は抽出間隔を更新する。
func (a *WatchlistServiceAdapter) UpdateInterval(ctx context.Context, targetID string, intervalSeconds int) (*model.WatchTarget, error) {
	if intervalSeconds < minIntervalSeconds || intervalSeconds > maxIntervalSeconds {
		return nil, model.NewInvalidIntervalError(intervalSeconds)
	}

	existing, err := a.targets.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, model.NewTargetNotFoundError(targetID)
	}

	if err := a.targets.UpdateInterval(ctx, targetID, intervalSeconds); err != nil {
		return nil, err
	}
	existing.IntervalSeconds = intervalSeconds
	return existing, nil
}

// Remove は抽出対象を削除する。
func (a *WatchlistServiceAdapter) Remove(ctx context.Context, targetID string) error {
	existing, err := a.targets.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if existing == nil {
		return model.NewTargetNotFoundError(targetID)
	}
	return a.targets.Delete(ctx, targetID)
}

// --- compile-time interface checks ---

var _ RunServiceInterface = (*RunServiceAdapter)(nil)
var _ WatchlistServiceInterface = (*WatchlistServiceAdapter)(nil)
