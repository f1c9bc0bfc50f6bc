package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BishopRed90/galleryman/internal/model"
)

// WatchlistServiceInterface はウォッチリストハンドラーが必要とするサービスインターフェース。
type WatchlistServiceInterface interface {
	// Register は抽出対象を登録する。
	Register(ctx context.Context, target string, intervalSeconds int) (*model.WatchTarget, error)
	// List は登録済みの抽出対象一覧を返す。
	List(ctx context.Context) ([]*model.WatchTarget, error)
	// UpdateInterval は抽出間隔を更新する。
	UpdateInterval(ctx context.Context, targetID string, intervalSeconds int) (*model.WatchTarget, error)
	// Remove は抽出対象を削除する。
	Remove(ctx context.Context, targetID string) error
}

// WatchlistHandler は定期抽出対象管理のHTTPハンドラー。
type WatchlistHandler struct {
	service WatchlistServiceInterface
}

// NewWatchlistHandler はWatchlistHandlerを生成する。
func NewWatchlistHandler(service WatchlistServiceInterface) *WatchlistHandler {
	return &WatchlistHandler{service: service}
}

// registerWatchTargetRequest は抽出対象登録リクエストのボディ。
type registerWatchTargetRequest struct {
	Target          string `json:"target"`
	IntervalSeconds int    `json:"interval_seconds"`
}

// updateWatchTargetRequest は抽出間隔更新リクエストのボディ。
type updateWatchTargetRequest struct {
	IntervalSeconds int `json:"interval_seconds"`
}

// watchTargetResponse は抽出対象のAPIレスポンス。
type watchTargetResponse struct {
	ID              string    `json:"id"`
	Target          string    `json:"target"`
	IntervalSeconds int       `json:"interval_seconds"`
	NextRunAt       time.Time `json:"next_run_at"`
	FailureCount    int       `json:"failure_count"`
	State           string    `json:"state"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// watchTargetListResponse は抽出対象一覧のAPIレスポンス。
type watchTargetListResponse struct {
	Targets []watchTargetResponse `json:"targets"`
}

// Register は抽出対象の登録を処理する。
// POST /api/watchlist
func (h *WatchlistHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerWatchTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.Target == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidTargetError("対象URLが空です"))
		return
	}

	target, err := h.service.Register(r.Context(), req.Target, req.IntervalSeconds)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toWatchTargetResponse(target))
}

// List は登録済み抽出対象の一覧を返す。
// GET /api/watchlist
func (h *WatchlistHandler) List(w http.ResponseWriter, r *http.Request) {
	targets, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := watchTargetListResponse{Targets: make([]watchTargetResponse, len(targets))}
	for i, target := range targets {
		resp.Targets[i] = toWatchTargetResponse(target)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// UpdateInterval は抽出間隔の更新を処理する。
// PUT /api/watchlist/:id
func (h *WatchlistHandler) UpdateInterval(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")

	var req updateWatchTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	target, err := h.service.UpdateInterval(r.Context(), targetID, req.IntervalSeconds)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toWatchTargetResponse(target))
}

// Remove は抽出対象の削除を処理する。
// DELETE /api/watchlist/:id
func (h *WatchlistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")

	if err := h.service.Remove(r.Context(), targetID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toWatchTargetResponse はmodel.WatchTargetからAPIレスポンスに変換する。
func toWatchTargetResponse(target *model.WatchTarget) watchTargetResponse {
	return watchTargetResponse{
		ID:              target.ID,
		Target:          target.Target,
		IntervalSeconds: target.IntervalSeconds,
		NextRunAt:       target.NextRunAt,
		FailureCount:    target.FailureCount,
		State:           string(target.State),
		ErrorMessage:    target.ErrorMessage,
		CreatedAt:       target.CreatedAt,
	}
}
