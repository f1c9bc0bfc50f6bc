package extract

import (
	"fmt"
	"time"

	"github.com/BishopRed90/galleryman/internal/model"
)

const (
	// maxBackoff は失敗時バックオフの最大遅延（24時間）。
	maxBackoff = 24 * time.Hour
	// failureThreshold は連続失敗による対象停止の閾値。
	failureThreshold = 10
)

// CalculateBackoff は連続失敗回数と基準間隔から次回実行までの遅延を計算する。
// 基準間隔から2倍ずつ増加し、最大24時間。
func CalculateBackoff(failureCount int, base time.Duration) time.Duration {
	delay := base
	for i := 1; i < failureCount; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

// ApplySuccess はラン成功時に対象の状態をリセットする。
// 連続失敗回数を0に戻し、次回実行を通常間隔後に設定する。
func ApplySuccess(target *model.WatchTarget) {
	target.FailureCount = 0
	target.ErrorMessage = ""
	target.State = model.WatchTargetStateActive
	target.NextRunAt = time.Now().Add(time.Duration(target.IntervalSeconds) * time.Second)
	target.UpdatedAt = time.Now()
}

// ApplyFailure はラン失敗時にバックオフ戦略を適用する。
// 連続失敗回数をインクリメントし、指数バックオフで次回実行を設定する。
// 閾値に達した場合は対象をエラー状態で停止する。
func ApplyFailure(target *model.WatchTarget, reason string) {
	target.FailureCount++
	target.ErrorMessage = reason
	target.UpdatedAt = time.Now()

	if target.FailureCount >= failureThreshold {
		target.State = model.WatchTargetStateError
		target.ErrorMessage = fmt.Sprintf("連続失敗が%d回に達したため停止しました: %s",
			target.FailureCount, reason)
		return
	}

	delay := CalculateBackoff(target.FailureCount,
		time.Duration(target.IntervalSeconds)*time.Second)
	target.NextRunAt = time.Now().Add(delay)
}
