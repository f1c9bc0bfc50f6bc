package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BishopRed90/galleryman/internal/deviantart"
	"github.com/BishopRed90/galleryman/internal/download"
	"github.com/BishopRed90/galleryman/internal/model"
	"github.com/BishopRed90/galleryman/internal/repository"
	"github.com/BishopRed90/galleryman/internal/resolve"
)

// SourceAPI はランナーが使う列挙・詳細取得機能のインターフェース。
type SourceAPI interface {
	DeviationInit(ctx context.Context, deviationID int64, username, kind string) (*model.Deviation, error)
	GallectionContents(ctx context.Context, username, kind, folderID string, scraps bool, fn deviantart.DeviationFunc) error
}

// EmissionDownloader はURL出力の取得・保存機能のインターフェース。
type EmissionDownloader interface {
	Download(ctx context.Context, e *model.Emission) (*download.Result, error)
}

// RunMetrics はランナーが記録するメトリクスのインターフェース。
type RunMetrics interface {
	RecordRunSuccess(target string)
	RecordRunFailure(target string, reason string)
	RecordItemsSeen(count int)
	RecordEmission(kind string)
}

// ResolverFactory はラン1回分の解決パイプラインを生成する。
// プレミアムキャッシュと自動ウォッチの巻き戻しリストはランスコープで
// あるため、ランごとに新しいインスタンスを使う。
type ResolverFactory func() (*resolve.Resolver, *resolve.PremiumCoordinator)

// Runner は抽出ラン1回分の実行を担う。
// 対象の列挙、アイテムごとの解決、ダウンロード、アーカイブ記録を
// 1つのランとしてまとめ、結果をランレコードへ反映する。
type Runner struct {
	api         SourceAPI
	newResolver ResolverFactory
	downloader  EmissionDownloader
	runs        repository.RunRepository      // nil可（ワンショット実行）
	artifacts   repository.ArtifactRepository // nil可
	metrics     RunMetrics
	logger      *slog.Logger
}

// NewRunner はRunnerの新しいインスタンスを生成する。
func NewRunner(
	api SourceAPI,
	newResolver ResolverFactory,
	downloader EmissionDownloader,
	runs repository.RunRepository,
	artifacts repository.ArtifactRepository,
	m RunMetrics,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		api:         api,
		newResolver: newResolver,
		downloader:  downloader,
		runs:        runs,
		artifacts:   artifacts,
		metrics:     m,
		logger:      logger,
	}
}

// Run は対象URLの抽出ランを1回実行する。
// アイテム単位の失敗はランを止めず、一時的なネットワーク失敗のみ
// ランを失敗として終了させる。戻り値のランレコードは常に返る。
func (r *Runner) Run(ctx context.Context, targetURL string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.NewString(),
		Target:    targetURL,
		State:     model.RunStateRunning,
		StartedAt: time.Now().UTC(),
	}

	if r.runs != nil {
		if err := r.runs.Create(ctx, run); err != nil {
			return run, err
		}
	}

	r.logger.Info("抽出ランを開始します",
		slog.String("run_id", run.ID),
		slog.String("target", targetURL),
	)

	err := r.execute(ctx, run, targetURL)

	now := time.Now().UTC()
	run.FinishedAt = &now
	if err != nil {
		run.State = model.RunStateFailed
		run.ErrorMessage = err.Error()
		if r.metrics != nil {
			r.metrics.RecordRunFailure(targetURL, err.Error())
		}
		r.logger.Error("抽出ランが失敗しました",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
	} else {
		run.State = model.RunStateCompleted
		if r.metrics != nil {
			r.metrics.RecordRunSuccess(targetURL)
		}
		r.logger.Info("抽出ランが完了しました",
			slog.String("run_id", run.ID),
			slog.Int("items_seen", run.ItemsSeen),
			slog.Int("items_emitted", run.ItemsEmitted),
			slog.Int64("bytes_downloaded", run.BytesDownloaded),
		)
	}

	if r.runs != nil {
		if ferr := r.runs.Finish(ctx, run); ferr != nil {
			r.logger.Error("ランレコードの更新に失敗しました",
				slog.String("run_id", run.ID),
				slog.String("error", ferr.Error()),
			)
		}
	}
	return run, err
}

// execute は対象を列挙して各アイテムを処理する。
func (r *Runner) execute(ctx context.Context, run *model.Run, targetURL string) error {
	target, err := ParseTarget(targetURL)
	if err != nil {
		return err
	}

	resolver, premium := r.newResolver()
	if premium != nil {
		defer premium.Finalize(ctx)
	}

	switch target.Kind {
	case TargetDeviation:
		dev, err := r.api.DeviationInit(ctx, target.DeviationID, target.Username, "art")
		if err != nil {
			return err
		}
		return r.processItem(ctx, run, resolver, dev)

	case TargetScraps:
		return r.api.GallectionContents(ctx, target.Username, "gallery", "", true,
			func(dev *model.Deviation) error {
				return r.processItem(ctx, run, resolver, dev)
			})

	case TargetCollection:
		return r.api.GallectionContents(ctx, target.Username, "collection", target.FolderID, false,
			func(dev *model.Deviation) error {
				return r.processItem(ctx, run, resolver, dev)
			})

	default:
		return r.api.GallectionContents(ctx, target.Username, "gallery", target.FolderID, false,
			func(dev *model.Deviation) error {
				return r.processItem(ctx, run, resolver, dev)
			})
	}
}

// processItem はアイテム1件を解決して出力を処理する。
// 不正アイテムの分類済みエラーはそのアイテムで閉じ、ランは継続する。
func (r *Runner) processItem(ctx context.Context, run *model.Run, resolver *resolve.Resolver, dev *model.Deviation) error {
	run.ItemsSeen++
	if r.metrics != nil {
		r.metrics.RecordItemsSeen(1)
	}

	emissions, err := resolver.Resolve(ctx, dev, nil)
	if err != nil && !isItemLocalError(err) {
		return err
	}
	if err != nil {
		r.logger.Warn("アイテムの解決を中断しました",
			slog.Int64("deviation_id", dev.Index()),
			slog.String("error", err.Error()),
		)
	}
	return r.handleEmissions(ctx, run, resolver, emissions)
}

// handleEmissions は解決結果のEmission列を処理する。
func (r *Runner) handleEmissions(ctx context.Context, run *model.Run, resolver *resolve.Resolver, emissions []model.Emission) error {
	for i := range emissions {
		e := &emissions[i]
		switch e.Kind {
		case model.EmissionQueue:
			if err := r.expandMultiImage(ctx, run, resolver, e.Item); err != nil {
				return err
			}
		case model.EmissionURL:
			r.downloadEmission(ctx, run, e)
			if r.metrics != nil {
				r.metrics.RecordEmission(string(e.Kind))
			}
		default:
			if r.metrics != nil {
				r.metrics.RecordEmission(string(e.Kind))
			}
		}
	}
	return nil
}

// expandMultiImage はマルチ画像作品を詳細取得して全ファイルへ展開する。
// 親のメディアが1件目、追加メディアが2件目以降となる。
// 追加メディアはダウンロード記述子を持たないため、クローンした
// アイテムのメディアを差し替えてインラインメディアとして解決する。
func (r *Runner) expandMultiImage(ctx context.Context, run *model.Run, resolver *resolve.Resolver, parent *model.Deviation) error {
	detail, err := r.api.DeviationInit(ctx, parent.Index(), parent.Username(), itemKind(parent))
	if err != nil {
		if isItemLocalError(err) {
			r.logger.Warn("マルチ画像作品の詳細取得に失敗しました",
				slog.Int64("deviation_id", parent.Index()),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return err
	}

	var additional []model.AdditionalMedia
	if detail.Extended != nil {
		additional = detail.Extended.AdditionalMedia
	}
	count := 1 + len(additional)

	var seq *resolve.Sequence
	if count > 1 {
		seq = &resolve.Sequence{Num: 1, Count: count}
	}
	emissions, err := resolver.Resolve(ctx, detail, seq)
	if err != nil && !isItemLocalError(err) {
		return err
	}
	if herr := r.handleEmissions(ctx, run, resolver, emissions); herr != nil {
		return herr
	}

	for i, am := range additional {
		clone := *detail
		clone.Media = am.Media
		clone.IsDownloadable = false

		emissions, err := resolver.Resolve(ctx, &clone, &resolve.Sequence{
			Num:      i + 2,
			Count:    count,
			FileID:   am.FileID,
			Filename: am.Filename,
		})
		if err != nil && !isItemLocalError(err) {
			return err
		}
		if herr := r.handleEmissions(ctx, run, resolver, emissions); herr != nil {
			return herr
		}
	}
	return nil
}

// downloadEmission はURL出力1件を取得・保存してアーカイブへ記録する。
// 取得失敗はアイテム単位で閉じ、ランは継続する。
func (r *Runner) downloadEmission(ctx context.Context, run *model.Run, e *model.Emission) {
	result, err := r.downloader.Download(ctx, e)
	if err != nil {
		r.logger.Warn("ダウンロードに失敗しました",
			slog.Int64("index", e.Index),
			slog.String("source", e.Source),
			slog.String("error", err.Error()),
		)
		return
	}
	if result.Skipped {
		return
	}

	run.ItemsEmitted++
	run.BytesDownloaded += result.Bytes

	if r.artifacts == nil {
		return
	}
	artifact := &model.Artifact{
		ID:          uuid.NewString(),
		RunID:       run.ID,
		ItemID:      e.Index,
		SourceURL:   e.Source,
		Fallbacks:   e.Fallbacks,
		FilePath:    result.Path,
		ContentType: e.ContentType,
		ByteSize:    result.Bytes,
		IsOriginal:  e.IsOriginal,
		CreatedAt:   time.Now().UTC(),
	}
	if e.Item != nil {
		artifact.ItemUUID = e.Item.DeviationUUID()
	}
	if err := r.artifacts.Create(ctx, artifact); err != nil {
		r.logger.Error("アーティファクトの記録に失敗しました",
			slog.Int64("item_id", e.Index),
			slog.String("path", result.Path),
			slog.String("error", err.Error()),
		)
	}
}

// isItemLocalError はアイテム単位で閉じるべき分類済みエラーかを判定する。
func isItemLocalError(err error) bool {
	return model.IsExtractKind(err, model.ErrKindMalformedItem) ||
		model.IsExtractKind(err, model.ErrKindAccessDenied) ||
		model.IsExtractKind(err, model.ErrKindUnsupportedMarkup) ||
		model.IsExtractKind(err, model.ErrKindExhaustedCredential)
}

// itemKind は詳細取得に渡す作品種別を返す。
func itemKind(dev *model.Deviation) string {
	if dev.IsJournal {
		return "journal"
	}
	return "art"
}
