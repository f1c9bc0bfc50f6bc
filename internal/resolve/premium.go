package resolve

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/BishopRed90/galleryman/internal/deviantart"
	"github.com/BishopRed90/galleryman/internal/model"
)

// GatedAPI はプレミアムゲート解決に必要なAPI機能のインターフェース。
type GatedAPI interface {
	DeviationInit(ctx context.Context, deviationID int64, username, kind string) (*model.Deviation, error)
	GallectionContents(ctx context.Context, username, kind, folderID string, scraps bool, fn deviantart.DeviationFunc) error
	UserWatch(ctx context.Context, username string) (bool, error)
	UserUnwatch(ctx context.Context, username string) (bool, error)
}

// PremiumMetrics はプレミアム解放のメトリクス記録機能のインターフェース。
type PremiumMetrics interface {
	RecordPremiumUnlock(username string)
}

// coordinatorState はコーディネータの稼働状態を表す。
type coordinatorState int

const (
	coordinatorActive coordinatorState = iota
	coordinatorDisabled
)

// PremiumCoordinator はプレミアムゲート付きアイテムの解決を調整する。
//
// 認証情報がない場合は最初の遭遇時に一度だけ警告して以後無効化する。
// ゲートの判定後はアクセスの可否に関わらず所属ギャラリーを一括取得し、
// 兄弟アイテムを実行スコープのキャッシュへ展開する。これにより同一
// フォルダの2件目以降は追加のAPI呼び出しなしで解決（または拒否）できる。
//
// 並行アクセスは想定しない。1回の抽出実行につき1インスタンスを使う。
type PremiumCoordinator struct {
	api     GatedAPI
	logger  *slog.Logger
	metrics PremiumMetrics

	hasCredential bool
	autoWatch     bool
	autoUnwatch   bool

	state coordinatorState
	// キャッシュ値のnilは「このアイテムは解決不能」を意味する番兵。
	cache         map[int64]*model.Deviation
	deniedFolders map[int64]bool
	unwatch       map[string]bool
}

// NewPremiumCoordinator はPremiumCoordinatorの新しいインスタンスを生成する。
func NewPremiumCoordinator(api GatedAPI, logger *slog.Logger, m PremiumMetrics, hasCredential, autoWatch, autoUnwatch bool) *PremiumCoordinator {
	return &PremiumCoordinator{
		api:           api,
		logger:        logger,
		metrics:       m,
		hasCredential: hasCredential,
		autoWatch:     autoWatch,
		autoUnwatch:   autoUnwatch,
		state:         coordinatorActive,
		cache:         make(map[int64]*model.Deviation),
		deniedFolders: make(map[int64]bool),
		unwatch:       make(map[string]bool),
	}
}

// ResolveGated はゲート付きアイテムの解決済みデビエーションを返す。
// 認証情報の不足とアクセス拒否は初回のみ分類済みエラーを返し、
// 同じ原因でスキップされる2件目以降は (nil, nil) を返す。
// 呼び出し前提: dev.IsAccessGated() が真であること。
func (p *PremiumCoordinator) ResolveGated(ctx context.Context, dev *model.Deviation) (*model.Deviation, error) {
	if p.state == coordinatorDisabled {
		return nil, nil
	}

	if resolved, ok := p.cache[dev.DeviationID]; ok {
		return resolved, nil
	}

	folder := dev.PremiumFolder
	if p.deniedFolders[folder.GalleryID] {
		p.cache[dev.DeviationID] = nil
		return nil, nil
	}

	if !p.hasCredential {
		p.logger.Warn("セッションクッキー未設定のためプレミアムゲート解決を無効化します",
			slog.Int64("deviation_id", dev.DeviationID),
			slog.String("gate_type", folder.Type),
		)
		p.state = coordinatorDisabled
		return nil, model.NewExhaustedCredentialError()
	}

	username := dev.Username()

	detail, err := p.api.DeviationInit(ctx, dev.DeviationID, username, dev.Type)
	if err != nil {
		return nil, err
	}

	hasAccess := detail.PremiumFolder == nil || detail.PremiumFolder.HasAccess

	if !hasAccess && folder.Type == "watchers" && p.autoWatch {
		hasAccess = p.tryWatch(ctx, username, folder)
	}

	if !hasAccess {
		p.logger.Warn("プレミアムギャラリーへのアクセス権がありません",
			slog.Int64("gallery_id", folder.GalleryID),
			slog.String("gate_type", folder.Type),
			slog.String("username", username),
		)
		p.deniedFolders[folder.GalleryID] = true
		p.fillSiblings(ctx, username, folder, false)
		p.cache[dev.DeviationID] = nil
		return nil, model.NewAccessDeniedError(folder.Type)
	}

	p.fillSiblings(ctx, username, folder, true)

	resolved, ok := p.cache[dev.DeviationID]
	if !ok {
		p.logger.Warn("一括取得の結果に対象アイテムが含まれていません",
			slog.Int64("deviation_id", dev.DeviationID),
			slog.Int64("gallery_id", folder.GalleryID),
		)
		p.cache[dev.DeviationID] = nil
		return nil, nil
	}
	return resolved, nil
}

// tryWatch はウォッチ型ゲートの自動解放を試みる。成功時trueを返す。
func (p *PremiumCoordinator) tryWatch(ctx context.Context, username string, folder *model.PremiumFolder) bool {
	ok, err := p.api.UserWatch(ctx, username)
	if err != nil || !ok {
		p.logger.Warn("作者のウォッチに失敗しました",
			slog.String("username", username),
			slog.Int64("gallery_id", folder.GalleryID),
		)
		return false
	}

	if p.autoUnwatch {
		p.unwatch[username] = true
	}
	if p.metrics != nil {
		p.metrics.RecordPremiumUnlock(username)
	}
	p.logger.Info("作者をウォッチしてプレミアムギャラリーを解放しました",
		slog.String("username", username),
		slog.Int64("gallery_id", folder.GalleryID),
	)
	return true
}

// fillSiblings はフォルダの所属ギャラリーを一括取得してキャッシュへ展開する。
// grantedが偽の場合、全兄弟を解決不能の番兵としてキャッシュする。
func (p *PremiumCoordinator) fillSiblings(ctx context.Context, username string, folder *model.PremiumFolder, granted bool) {
	count := 0
	err := p.api.GallectionContents(ctx, username, "gallery",
		strconv.FormatInt(folder.GalleryID, 10), false,
		func(sibling *model.Deviation) error {
			if granted {
				p.cache[sibling.DeviationID] = sibling
			} else {
				p.cache[sibling.DeviationID] = nil
			}
			count++
			return nil
		})
	if err != nil {
		p.logger.Warn("プレミアムギャラリーの一括取得に失敗しました",
			slog.Int64("gallery_id", folder.GalleryID),
			slog.String("error", err.Error()),
		)
		return
	}
	p.logger.Info("プレミアムギャラリーの内容をキャッシュしました",
		slog.Int64("gallery_id", folder.GalleryID),
		slog.Int("item_count", count),
	)
}

// Finalize は自動ウォッチ解除の予約分を実行する。抽出実行の最後に呼ぶ。
func (p *PremiumCoordinator) Finalize(ctx context.Context) {
	for username := range p.unwatch {
		if ok, err := p.api.UserUnwatch(ctx, username); err != nil || !ok {
			p.logger.Warn("ウォッチ解除に失敗しました",
				slog.String("username", username),
			)
			continue
		}
		p.logger.Info("ウォッチを解除しました",
			slog.String("username", username),
		)
	}
	p.unwatch = make(map[string]bool)
}

var _ GatedAPI = (*deviantart.Client)(nil)
