// Package download はEmissionのファイル取得と保存を提供する。
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/BishopRed90/galleryman/internal/model"
)

// URLValidator はダウンロード前のURL安全性検証機能のインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// ArchiveChecker は取得済みアーティファクトの重複判定機能のインターフェース。
type ArchiveChecker interface {
	ArtifactExists(ctx context.Context, itemID int64, filePath string) (bool, error)
}

// DownloadMetrics はダウンロード量のメトリクス記録機能のインターフェース。
type DownloadMetrics interface {
	RecordDownloadBytes(n int64)
}

// Result は1件のダウンロード結果を表す。
type Result struct {
	Path    string // ベースディレクトリからの相対パス
	Bytes   int64
	Skipped bool // アーカイブ済みのためスキップした
}

// Downloader はEmissionをローカルファイルへ保存する。
//
// 保存先はパステンプレートをEmissionのメタデータで展開して決める。
// ソースURLは外部入力であるため、取得前に必ずバリデータを通す。
// アーカイブ連携が設定されている場合、取得済みのパスはスキップする。
type Downloader struct {
	client    *http.Client
	validator URLValidator
	archive   ArchiveChecker // nil可（ワンショット実行では重複判定なし）
	metrics   DownloadMetrics
	logger    *slog.Logger

	baseDir  string
	template string
	maxSize  int64
}

// NewDownloader はDownloaderの新しいインスタンスを生成する。
func NewDownloader(client *http.Client, validator URLValidator, archive ArchiveChecker, m DownloadMetrics, logger *slog.Logger, baseDir, template string, maxSize int64) *Downloader {
	return &Downloader{
		client:    client,
		validator: validator,
		archive:   archive,
		metrics:   m,
		logger:    logger,
		baseDir:   baseDir,
		template:  template,
		maxSize:   maxSize,
	}
}

// Download はURL種別のEmission1件を保存する。
//
// インライン本文を持つ場合はそれをそのまま書き出す。URLを持つ場合は
// 主ソースから順に試し、失敗したらフォールバックURLへ切り替える。
// すべてのソースで失敗した場合のみエラーを返す。
func (d *Downloader) Download(ctx context.Context, e *model.Emission) (*Result, error) {
	relPath := BuildPath(d.template, e.Metadata())
	if relPath == "" {
		return nil, model.NewMalformedItemError("filename")
	}

	if d.archive != nil {
		exists, err := d.archive.ArtifactExists(ctx, e.Index, relPath)
		if err != nil {
			return nil, fmt.Errorf("アーカイブの重複判定に失敗しました: %w", err)
		}
		if exists {
			d.logger.Debug("取得済みのためスキップします",
				slog.Int64("index", e.Index),
				slog.String("path", relPath),
			)
			return &Result{Path: relPath, Skipped: true}, nil
		}
	}

	if len(e.Body) > 0 {
		n, err := d.writeFile(relPath, e.Body)
		if err != nil {
			return nil, err
		}
		return &Result{Path: relPath, Bytes: n}, nil
	}

	sources := append([]string{e.Source}, e.Fallbacks...)
	var lastErr error
	for i, src := range sources {
		if src == "" {
			continue
		}
		if i > 0 {
			d.logger.Warn("フォールバックURLで再試行します",
				slog.Int64("index", e.Index),
				slog.String("url", src),
			)
		}
		n, err := d.fetch(ctx, src, relPath)
		if err != nil {
			lastErr = err
			continue
		}
		if d.metrics != nil {
			d.metrics.RecordDownloadBytes(n)
		}
		return &Result{Path: relPath, Bytes: n}, nil
	}

	if lastErr == nil {
		lastErr = model.NewMalformedItemError("source")
	}
	return nil, lastErr
}

// fetch は1つのソースURLを取得してファイルへ保存する。
func (d *Downloader) fetch(ctx context.Context, src, relPath string) (int64, error) {
	if err := d.validator.ValidateURL(src); err != nil {
		return 0, fmt.Errorf("URL検証に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return 0, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, model.NewTransientNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("予期しないHTTPステータスです: %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if d.maxSize > 0 {
		body = io.LimitReader(resp.Body, d.maxSize)
	}

	return d.writeStream(relPath, body)
}

// writeFile はインライン本文をファイルへ書き出す。
func (d *Downloader) writeFile(relPath string, body []byte) (int64, error) {
	abs := filepath.Join(d.baseDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(abs, body, 0o644); err != nil {
		return 0, err
	}
	return int64(len(body)), nil
}

// writeStream はレスポンス本文を一時ファイル経由で保存する。
// 書き込み完了後にリネームすることで、中断時の不完全なファイルが
// 最終パスに残らないようにする。
func (d *Downloader) writeStream(relPath string, body io.Reader) (int64, error) {
	abs := filepath.Join(d.baseDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), filepath.Base(abs)+".part*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}

	if err := os.Rename(tmp.Name(), abs); err != nil {
		return 0, err
	}
	return n, nil
}
