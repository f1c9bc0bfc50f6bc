package extract

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BishopRed90/galleryman/internal/model"
	"github.com/BishopRed90/galleryman/internal/repository"
)

// ExtractorService は定期抽出対象1件の実行インターフェース。
type ExtractorService interface {
	// Extract は対象の抽出ランを実行し、結果に応じて対象の状態を更新する。
	Extract(ctx context.Context, target *model.WatchTarget) error
}

// Scheduler は定期抽出のスケジューリングと並列制御を行う。
// ティッカーで実行予定の対象を取得し、semaphoreパターンで
// 最大並列数を制御しながら抽出を実行する。
// Eclipse APIはレート制限に敏感なため、デフォルトの並列数は1。
type Scheduler struct {
	targetRepo     repository.WatchTargetRepository
	extractor      ExtractorService
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値1を使用する。
func NewScheduler(
	targetRepo repository.WatchTargetRepository,
	extractor ExtractorService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Scheduler{
		targetRepo:     targetRepo,
		extractor:      extractor,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start はティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("抽出スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("抽出サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("抽出スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("抽出サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は実行予定の対象を1回取得し、並列で抽出を実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	// 実行予定の対象を取得（FOR UPDATE SKIP LOCKED）
	targets, err := s.targetRepo.ListDueForRun(ctx)
	if err != nil {
		return err
	}

	if len(targets) == 0 {
		s.logger.Info("実行予定の抽出対象はありません")
		return nil
	}

	s.logger.Info("抽出サイクルを開始します",
		slog.Int("target_count", len(targets)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, target := range targets {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(t *model.WatchTarget) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.extractor.Extract(ctx, t); err != nil {
				s.logger.Error("定期抽出に失敗しました",
					slog.String("target_id", t.ID),
					slog.String("target", t.Target),
					slog.String("error", err.Error()),
				)
			}
		}(target)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("抽出サイクルが完了しました",
		slog.Int("target_count", len(targets)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
