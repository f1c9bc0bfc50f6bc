package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/BishopRed90/galleryman/internal/model"
)

// fakeWatchTargetRepo はWatchTargetRepositoryのテスト用実装。
type fakeWatchTargetRepo struct {
	byTarget map[string]*model.WatchTarget
	byID     map[string]*model.WatchTarget
	created  *model.WatchTarget
	deleted  string
}

func (f *fakeWatchTargetRepo) Create(_ context.Context, target *model.WatchTarget) error {
	f.created = target
	return nil
}

func (f *fakeWatchTargetRepo) FindByID(_ context.Context, id string) (*model.WatchTarget, error) {
	return f.byID[id], nil
}

func (f *fakeWatchTargetRepo) FindByTarget(_ context.Context, target string) (*model.WatchTarget, error) {
	return f.byTarget[target], nil
}

func (f *fakeWatchTargetRepo) List(context.Context) ([]*model.WatchTarget, error) { return nil, nil }
func (f *fakeWatchTargetRepo) ListDueForRun(context.Context) ([]*model.WatchTarget, error) {
	return nil, nil
}
func (f *fakeWatchTargetRepo) UpdateRunState(context.Context, *model.WatchTarget) error { return nil }
func (f *fakeWatchTargetRepo) UpdateInterval(context.Context, string, int) error        { return nil }
func (f *fakeWatchTargetRepo) Delete(_ context.Context, id string) error {
	f.deleted = id
	return nil
}

// 登録時のバリデーションとデフォルト間隔の適用を検証
func TestWatchlistServiceAdapter_Register(t *testing.T) {
	repo := &fakeWatchTargetRepo{}
	adapter := NewWatchlistServiceAdapter(repo)

	wt, err := adapter.Register(context.Background(),
		"https://www.deviantart.com/someuser/gallery", 0)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if wt.IntervalSeconds != defaultIntervalSeconds {
		t.Errorf("IntervalSeconds = %d, want %d", wt.IntervalSeconds, defaultIntervalSeconds)
	}
	if wt.State != model.WatchTargetStateActive {
		t.Errorf("State = %q, want active", wt.State)
	}
	if repo.created == nil {
		t.Error("target should be persisted")
	}
}

// 無効な対象URLが拒否されることを検証
func TestWatchlistServiceAdapter_Register_InvalidTarget(t *testing.T) {
	adapter := NewWatchlistServiceAdapter(&fakeWatchTargetRepo{})

	_, err := adapter.Register(context.Background(), "https://example.com/nope", 3600)
	if err == nil {
		t.Fatal("expected error for invalid target")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidTarget {
		t.Errorf("error = %v, want INVALID_TARGET", err)
	}
}

// 間隔の範囲チェックを検証
func TestWatchlistServiceAdapter_Register_IntervalBounds(t *testing.T) {
	adapter := NewWatchlistServiceAdapter(&fakeWatchTargetRepo{})

	for _, seconds := range []int{299, 86401, -1} {
		_, err := adapter.Register(context.Background(),
			"https://www.deviantart.com/someuser/gallery", seconds)

		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidInterval {
			t.Errorf("seconds=%d: error = %v, want INVALID_INTERVAL", seconds, err)
		}
	}
}

// 重複登録が拒否されることを検証
func TestWatchlistServiceAdapter_Register_Duplicate(t *testing.T) {
	targetURL := "https://www.deviantart.com/someuser/gallery"
	repo := &fakeWatchTargetRepo{byTarget: map[string]*model.WatchTarget{
		targetURL: {ID: "wt-1", Target: targetURL},
	}}
	adapter := NewWatchlistServiceAdapter(repo)

	_, err := adapter.Register(context.Background(), targetURL, 3600)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeDuplicateTarget {
		t.Errorf("error = %v, want DUPLICATE_TARGET", err)
	}
}

// 存在しない対象の削除でTARGET_NOT_FOUNDが返ることを検証
func TestWatchlistServiceAdapter_Remove_NotFound(t *testing.T) {
	adapter := NewWatchlistServiceAdapter(&fakeWatchTargetRepo{})

	err := adapter.Remove(context.Background(), "missing")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTargetNotFound {
		t.Errorf("error = %v, want TARGET_NOT_FOUND", err)
	}
}

// 間隔更新が対象の存在確認を伴うことを検証
func TestWatchlistServiceAdapter_UpdateInterval(t *testing.T) {
	repo := &fakeWatchTargetRepo{byID: map[string]*model.WatchTarget{
		"wt-1": {ID: "wt-1", IntervalSeconds: 3600},
	}}
	adapter := NewWatchlistServiceAdapter(repo)

	wt, err := adapter.UpdateInterval(context.Background(), "wt-1", 7200)
	if err != nil {
		t.Fatalf("UpdateInterval() error = %v", err)
	}
	if wt.IntervalSeconds != 7200 {
		t.Errorf("IntervalSeconds = %d, want 7200", wt.IntervalSeconds)
	}
}
