package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BishopRed90/galleryman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// MetricsHandler はPrometheusスクレイプ用ハンドラー。
	MetricsHandler http.Handler

	// ラン履歴
	RunService RunServiceInterface

	// 定期抽出対象
	WatchlistService WatchlistServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	runHandler := NewRunHandler(deps.RunService)
	watchlistHandler := NewWatchlistHandler(deps.WatchlistService)

	// ヘルスチェック
	r.Get("/health", handleHealth)

	// Prometheusメトリクス
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// ラン履歴
	r.Route("/api/runs", func(r chi.Router) {
		r.Get("/", runHandler.ListRuns)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", runHandler.GetRun)

			// GET /api/runs/{id}/artifacts - ランごとのアーティファクト一覧
			r.Get("/artifacts", runHandler.ListArtifacts)
		})
	})

	// 定期抽出対象管理
	r.Route("/api/watchlist", func(r chi.Router) {
		r.Post("/", watchlistHandler.Register)
		r.Get("/", watchlistHandler.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Put("/", watchlistHandler.UpdateInterval)
			r.Delete("/", watchlistHandler.Remove)
		})
	})

	return r
}

// handleHealth はヘルスチェックレスポンスを返す。
// GET /health
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
