package extract

import (
	"testing"
	"time"

	"github.com/BishopRed90/galleryman/internal/model"
)

// 指数バックオフの計算を検証
func TestCalculateBackoff(t *testing.T) {
	base := time.Hour
	tests := []struct {
		failureCount int
		want         time.Duration
	}{
		{1, time.Hour},
		{2, 2 * time.Hour},
		{3, 4 * time.Hour},
		{5, 16 * time.Hour},
		{6, 24 * time.Hour}, // 32時間は上限でクリップ
		{100, 24 * time.Hour},
	}

	for _, tt := range tests {
		if got := CalculateBackoff(tt.failureCount, base); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.failureCount, got, tt.want)
		}
	}
}

// 基準間隔が上限を超える場合もクリップされることを検証
func TestCalculateBackoff_BaseAboveMax(t *testing.T) {
	if got := CalculateBackoff(1, 48*time.Hour); got != maxBackoff {
		t.Errorf("CalculateBackoff() = %v, want %v", got, maxBackoff)
	}
}

// 成功時に失敗カウントと次回実行がリセットされることを検証
func TestApplySuccess(t *testing.T) {
	target := &model.WatchTarget{
		IntervalSeconds: 3600,
		FailureCount:    3,
		ErrorMessage:    "previous failure",
		State:           model.WatchTargetStateActive,
	}

	before := time.Now()
	ApplySuccess(target)

	if target.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0", target.FailureCount)
	}
	if target.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", target.ErrorMessage)
	}
	wantNext := before.Add(time.Hour)
	if target.NextRunAt.Before(wantNext.Add(-time.Minute)) ||
		target.NextRunAt.After(wantNext.Add(time.Minute)) {
		t.Errorf("NextRunAt = %v, want about %v", target.NextRunAt, wantNext)
	}
}

// 失敗時のバックオフ適用を検証
func TestApplyFailure_Backoff(t *testing.T) {
	target := &model.WatchTarget{
		IntervalSeconds: 3600,
		State:           model.WatchTargetStateActive,
	}

	ApplyFailure(target, "network down")

	if target.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", target.FailureCount)
	}
	if target.State != model.WatchTargetStateActive {
		t.Errorf("State = %q, want active", target.State)
	}
	if target.ErrorMessage != "network down" {
		t.Errorf("ErrorMessage = %q", target.ErrorMessage)
	}
}

// 連続失敗が閾値に達すると対象が停止することを検証
func TestApplyFailure_ThresholdStops(t *testing.T) {
	target := &model.WatchTarget{
		IntervalSeconds: 3600,
		FailureCount:    failureThreshold - 1,
		State:           model.WatchTargetStateActive,
	}

	ApplyFailure(target, "still failing")

	if target.State != model.WatchTargetStateError {
		t.Errorf("State = %q, want error", target.State)
	}
	if target.FailureCount != failureThreshold {
		t.Errorf("FailureCount = %d, want %d", target.FailureCount, failureThreshold)
	}
}
