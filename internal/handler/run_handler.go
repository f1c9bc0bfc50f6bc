// Package handler は管理APIのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BishopRed90/galleryman/internal/model"
)

// RunServiceInterface はランハンドラーが必要とするサービスインターフェース。
type RunServiceInterface interface {
	// ListRuns は抽出ランの履歴を新しい順に返す。
	ListRuns(ctx context.Context, limit int) ([]*model.Run, error)
	// GetRun はランを取得する。見つからない場合はnilを返す。
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	// ListArtifacts はランに記録されたアーティファクト一覧を返す。
	ListArtifacts(ctx context.Context, runID string) ([]*model.Artifact, error)
}

// RunHandler は抽出ラン履歴のHTTPハンドラー。
type RunHandler struct {
	service RunServiceInterface
}

// NewRunHandler はRunHandlerを生成する。
func NewRunHandler(service RunServiceInterface) *RunHandler {
	return &RunHandler{service: service}
}

// runResponse は抽出ランのAPIレスポンス。
type runResponse struct {
	ID              string     `json:"id"`
	Target          string     `json:"target"`
	State           string     `json:"state"`
	ItemsSeen       int        `json:"items_seen"`
	ItemsEmitted    int        `json:"items_emitted"`
	BytesDownloaded int64      `json:"bytes_downloaded"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// artifactResponse はアーティファクト1件のAPIレスポンス。
type artifactResponse struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	ItemID      int64     `json:"item_id"`
	ItemUUID    string    `json:"item_uuid,omitempty"`
	SourceURL   string    `json:"source_url"`
	Fallbacks   []string  `json:"fallbacks,omitempty"`
	FilePath    string    `json:"file_path"`
	ContentType string    `json:"content_type,omitempty"`
	ByteSize    int64     `json:"byte_size"`
	IsOriginal  bool      `json:"is_original"`
	CreatedAt   time.Time `json:"created_at"`
}

// runListResponse はラン一覧のAPIレスポンス。
type runListResponse struct {
	Runs []runResponse `json:"runs"`
}

// artifactListResponse はアーティファクト一覧のAPIレスポンス。
type artifactListResponse struct {
	Artifacts []artifactResponse `json:"artifacts"`
}

// defaultRunListLimit はラン一覧のデフォルト取得件数。
const defaultRunListLimit = 50

// ListRuns は抽出ラン履歴の一覧を返す。
// GET /api/runs
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "limitパラメータが無効です。",
				Category: "validation",
				Action:   "limitは1から200の範囲で指定してください。",
			})
			return
		}
		limit = n
	}

	runs, err := h.service.ListRuns(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := runListResponse{Runs: make([]runResponse, len(runs))}
	for i, run := range runs {
		resp.Runs[i] = toRunResponse(run)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetRun は抽出ランの詳細を返す。
// GET /api/runs/:id
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	run, err := h.service.GetRun(r.Context(), runID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if run == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewRunNotFoundError(runID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toRunResponse(run))
}

// ListArtifacts はランに記録されたアーティファクト一覧を返す。
// GET /api/runs/:id/artifacts
func (h *RunHandler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	run, err := h.service.GetRun(r.Context(), runID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if run == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewRunNotFoundError(runID))
		return
	}

	artifacts, err := h.service.ListArtifacts(r.Context(), runID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := artifactListResponse{Artifacts: make([]artifactResponse, len(artifacts))}
	for i, a := range artifacts {
		resp.Artifacts[i] = artifactResponse{
			ID:          a.ID,
			RunID:       a.RunID,
			ItemID:      a.ItemID,
			ItemUUID:    a.ItemUUID,
			SourceURL:   a.SourceURL,
			Fallbacks:   a.Fallbacks,
			FilePath:    a.FilePath,
			ContentType: a.ContentType,
			ByteSize:    a.ByteSize,
			IsOriginal:  a.IsOriginal,
			CreatedAt:   a.CreatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- ヘルパー関数 ---

// toRunResponse はmodel.RunからAPIレスポンスに変換する。
func toRunResponse(run *model.Run) runResponse {
	return runResponse{
		ID:              run.ID,
		Target:          run.Target,
		State:           string(run.State),
		ItemsSeen:       run.ItemsSeen,
		ItemsEmitted:    run.ItemsEmitted,
		BytesDownloaded: run.BytesDownloaded,
		ErrorMessage:    run.ErrorMessage,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
	}
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidTarget, model.ErrCodeInvalidInterval:
		return http.StatusBadRequest
	case model.ErrCodeDuplicateTarget:
		return http.StatusConflict
	case model.ErrCodeTargetNotFound, model.ErrCodeRunNotFound:
		return http.StatusNotFound
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeFetchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
