package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BishopRed90/galleryman/internal/comments"
	"github.com/BishopRed90/galleryman/internal/config"
	"github.com/BishopRed90/galleryman/internal/database"
	"github.com/BishopRed90/galleryman/internal/deviantart"
	"github.com/BishopRed90/galleryman/internal/download"
	"github.com/BishopRed90/galleryman/internal/handler"
	"github.com/BishopRed90/galleryman/internal/logger"
	"github.com/BishopRed90/galleryman/internal/markup"
	"github.com/BishopRed90/galleryman/internal/metrics"
	"github.com/BishopRed90/galleryman/internal/repository"
	"github.com/BishopRed90/galleryman/internal/resolve"
	"github.com/BishopRed90/galleryman/internal/security"
	"github.com/BishopRed90/galleryman/internal/worker/cleanup"
	"github.com/BishopRed90/galleryman/internal/worker/extract"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(logger.ParseLevel(cfg.LogLevel), w)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("service_root", cfg.ServiceRoot),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandExtract:
		return runExtract(cfg, args[1:])
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// extractionStack は抽出パイプライン一式の依存関係をまとめた構造体。
type extractionStack struct {
	client     *deviantart.Client
	downloader *download.Downloader
	factory    extract.ResolverFactory
}

// buildExtractionStack は抽出パイプラインの依存関係をワイヤリングする。
// archiveがnilの場合は取得済み判定なしのワンショット構成になる。
func buildExtractionStack(cfg *config.Config, collector *metrics.Collector, archive download.ArchiveChecker) *extractionStack {
	apiClient := &http.Client{Timeout: cfg.FetchTimeout}
	client := deviantart.NewClient(apiClient, slog.Default(),
		cfg.SessionCookie, cfg.DetailMinInterval, collector)
	client.SetRoot(cfg.ServiceRoot)

	// アーティファクトURLはAPI応答由来の外部入力のため、SSRFガード経由で取得する
	guard := security.NewSSRFGuard()
	safeClient := guard.NewSafeClient(cfg.FetchTimeout, cfg.FetchMaxSize)
	downloader := download.NewDownloader(safeClient, guard, archive, collector,
		slog.Default(), cfg.DownloadDir, cfg.FilenameTemplate, cfg.FetchMaxSize)

	renderer := markup.NewRenderer(slog.Default())
	pages := markup.NewPageExtractor(slog.Default())
	sanitizer := security.NewContentSanitizer()
	flattener := comments.NewFlattener(client, slog.Default())

	opts := resolve.Options{
		JournalMode:             cfg.JournalMode,
		Quality:                 cfg.Quality,
		OriginalQuality:         cfg.OriginalQuality,
		FetchOriginal:           cfg.FetchOriginal,
		IncludePreviews:         cfg.IncludePreviews,
		PreviewsImages:          cfg.PreviewsImages,
		UseIntermediary:         cfg.UseIntermediary,
		IntermediaryIDThreshold: cfg.IntermediaryIDThreshold,
		ExtractComments:         cfg.ExtractComments,
	}

	// プレミアムキャッシュと自動ウォッチの巻き戻しリストはランスコープのため、
	// ランごとに新しい解決パイプラインを生成する
	factory := func() (*resolve.Resolver, *resolve.PremiumCoordinator) {
		premium := resolve.NewPremiumCoordinator(client, slog.Default(), collector,
			client.HasSessionCookie(), cfg.AutoWatch, cfg.AutoUnwatch)
		resolver := resolve.NewResolver(client, premium, renderer, pages,
			flattener, sanitizer, slog.Default(), opts)
		return resolver, premium
	}

	return &extractionStack{
		client:     client,
		downloader: downloader,
		factory:    factory,
	}
}

// archiveAdapter はrepository.ArtifactRepositoryをdownload.ArchiveCheckerに適合させる。
type archiveAdapter struct {
	repo repository.ArtifactRepository
}

func (a *archiveAdapter) ArtifactExists(ctx context.Context, itemID int64, filePath string) (bool, error) {
	return a.repo.Exists(ctx, itemID, filePath)
}

// runServe は管理APIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	runRepo := repository.NewPostgresRunRepo(db)
	artifactRepo := repository.NewPostgresArtifactRepo(db)
	targetRepo := repository.NewPostgresWatchTargetRepo(db)

	// 3. メトリクスレジストリの初期化
	registry := prometheus.NewRegistry()

	// 4. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:           slog.Default(),
		MetricsHandler:   metrics.Handler(registry),
		RunService:       handler.NewRunServiceAdapter(runRepo, artifactRepo),
		WatchlistService: handler.NewWatchlistServiceAdapter(targetRepo),
	}
	router := handler.NewRouter(deps)

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は定期抽出ワーカーモードで起動する。
// DB接続を開き、抽出スケジューラとクリーンアップジョブを起動する。
// メトリクスはワーカー側のポートで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリとメトリクスの初期化
	runRepo := repository.NewPostgresRunRepo(db)
	artifactRepo := repository.NewPostgresArtifactRepo(db)
	targetRepo := repository.NewPostgresWatchTargetRepo(db)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. 抽出パイプラインのワイヤリング
	stack := buildExtractionStack(cfg, collector, &archiveAdapter{repo: artifactRepo})
	runner := extract.NewRunner(stack.client, stack.factory, stack.downloader,
		runRepo, artifactRepo, collector, slog.Default())

	// 4. スケジューラとエグゼキュータの構築
	executor := extract.NewExecutor(runner, targetRepo, slog.Default())
	scheduler := extract.NewScheduler(targetRepo, executor, slog.Default(), cfg.WorkerMaxConcurrent)

	// 5. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	cleanupJob.RetentionDays = cfg.RunRetentionDays

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("interval", cfg.WorkerInterval),
		slog.Int("max_concurrent", cfg.WorkerMaxConcurrent),
	)

	// Prometheusスクレイプ用エンドポイントをバックグラウンドで公開
	metricsServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: metrics.SetupMetricsRoute(registry),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}()

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// 抽出スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.WorkerInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runExtract はワンショット抽出モードで起動する。
// DB接続なしで対象URLの抽出ランを1回実行し、結果をログに出力する。
// ラン履歴・アーカイブ記録は残らない。
func runExtract(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("extract サブコマンドには対象URLが必要です")
	}
	targetURL := args[0]

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	stack := buildExtractionStack(cfg, collector, nil)
	runner := extract.NewRunner(stack.client, stack.factory, stack.downloader,
		nil, nil, collector, slog.Default())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	run, err := runner.Run(ctx, targetURL)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	slog.Info("extraction completed",
		slog.Int("items_seen", run.ItemsSeen),
		slog.Int("items_emitted", run.ItemsEmitted),
		slog.Int64("bytes_downloaded", run.BytesDownloaded),
	)
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
