package extract

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BishopRed90/galleryman/internal/model"
)

// fakeWatchTargetRepo は固定の実行対象リストを返すテスト用実装。
type fakeWatchTargetRepo struct {
	due     []*model.WatchTarget
	mu      sync.Mutex
	updated []*model.WatchTarget
}

func (f *fakeWatchTargetRepo) Create(context.Context, *model.WatchTarget) error { return nil }
func (f *fakeWatchTargetRepo) FindByID(context.Context, string) (*model.WatchTarget, error) {
	return nil, nil
}
func (f *fakeWatchTargetRepo) FindByTarget(context.Context, string) (*model.WatchTarget, error) {
	return nil, nil
}
func (f *fakeWatchTargetRepo) List(context.Context) ([]*model.WatchTarget, error) { return nil, nil }
func (f *fakeWatchTargetRepo) ListDueForRun(context.Context) ([]*model.WatchTarget, error) {
	return f.due, nil
}
func (f *fakeWatchTargetRepo) UpdateRunState(_ context.Context, t *model.WatchTarget) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *t
	f.updated = append(f.updated, &c)
	return nil
}
func (f *fakeWatchTargetRepo) UpdateInterval(context.Context, string, int) error { return nil }
func (f *fakeWatchTargetRepo) Delete(context.Context, string) error              { return nil }

// fakeExtractor は呼び出された対象を記録する。
type fakeExtractor struct {
	mu      sync.Mutex
	targets []string
}

func (f *fakeExtractor) Extract(_ context.Context, t *model.WatchTarget) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, t.ID)
	return nil
}

// RunOnceが実行予定の全対象を処理することを検証
func TestScheduler_RunOnce(t *testing.T) {
	repo := &fakeWatchTargetRepo{due: []*model.WatchTarget{
		{ID: "t1", Target: "https://www.deviantart.com/a/gallery"},
		{ID: "t2", Target: "https://www.deviantart.com/b/gallery"},
	}}
	extractor := &fakeExtractor{}

	s := NewScheduler(repo, extractor, testLogger(), 1)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(extractor.targets) != 2 {
		t.Errorf("extracted targets = %d, want 2", len(extractor.targets))
	}
}

// 対象が空の場合に何も実行されないことを検証
func TestScheduler_RunOnce_NoTargets(t *testing.T) {
	repo := &fakeWatchTargetRepo{}
	extractor := &fakeExtractor{}

	s := NewScheduler(repo, extractor, testLogger(), 1)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(extractor.targets) != 0 {
		t.Errorf("extracted targets = %d, want 0", len(extractor.targets))
	}
}

// コンテキストキャンセルでStartが停止することを検証
func TestScheduler_Start_Stops(t *testing.T) {
	repo := &fakeWatchTargetRepo{}
	s := NewScheduler(repo, &fakeExtractor{}, testLogger(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after context cancel")
	}
}

// fakeRunExecutor は成否を切り替えられるラン実行のテスト用実装。
type fakeRunExecutor struct {
	fail bool
}

func (f *fakeRunExecutor) Run(_ context.Context, target string) (*model.Run, error) {
	if f.fail {
		return nil, fmt.Errorf("run failed")
	}
	return &model.Run{State: model.RunStateCompleted}, nil
}

// 成功時に対象の状態がリセットされ永続化されることを検証
func TestExecutor_Success(t *testing.T) {
	repo := &fakeWatchTargetRepo{}
	e := NewExecutor(&fakeRunExecutor{}, repo, testLogger())

	target := &model.WatchTarget{
		ID:              "t1",
		Target:          "https://www.deviantart.com/a/gallery",
		IntervalSeconds: 3600,
		FailureCount:    2,
	}
	if err := e.Extract(context.Background(), target); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(repo.updated) != 1 {
		t.Fatalf("updates = %d, want 1", len(repo.updated))
	}
	if repo.updated[0].FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0", repo.updated[0].FailureCount)
	}
}

// 失敗時にバックオフが記録されることを検証
func TestExecutor_FailureAppliesBackoff(t *testing.T) {
	repo := &fakeWatchTargetRepo{}
	e := NewExecutor(&fakeRunExecutor{fail: true}, repo, testLogger())

	target := &model.WatchTarget{
		ID:              "t1",
		Target:          "https://www.deviantart.com/a/gallery",
		IntervalSeconds: 3600,
		State:           model.WatchTargetStateActive,
	}
	if err := e.Extract(context.Background(), target); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(repo.updated) != 1 {
		t.Fatalf("updates = %d, want 1", len(repo.updated))
	}
	got := repo.updated[0]
	if got.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", got.FailureCount)
	}
	if got.ErrorMessage == "" {
		t.Error("ErrorMessage should be recorded")
	}
}
