// Package model はドメインモデルを定義する。
package model

import "time"

// Run は1回の抽出ランを表す。
type Run struct {
	ID              string
	Target          string
	State           RunState
	ItemsSeen       int
	ItemsEmitted    int
	BytesDownloaded int64
	ErrorMessage    string
	StartedAt       time.Time
	FinishedAt      *time.Time
}

// RunState は抽出ランの状態を表す。
type RunState string

const (
	// RunStateRunning は実行中の抽出ラン。
	RunStateRunning RunState = "running"
	// RunStateCompleted は正常終了した抽出ラン。
	RunStateCompleted RunState = "completed"
	// RunStateFailed は失敗した抽出ラン。
	RunStateFailed RunState = "failed"
)

// Artifact はアーカイブに記録された出力1件を表す。
type Artifact struct {
	ID          string
	RunID       string
	ItemID      int64
	ItemUUID    string
	SourceURL   string
	Fallbacks   []string
	FilePath    string
	ContentType string
	ByteSize    int64
	IsOriginal  bool
	CreatedAt   time.Time
}

// WatchTarget は定期抽出の対象1件を表す。
type WatchTarget struct {
	ID              string
	Target          string
	IntervalSeconds int
	NextRunAt       time.Time
	FailureCount    int
	State           WatchTargetState
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WatchTargetState は定期抽出対象の状態を表す。
type WatchTargetState string

const (
	// WatchTargetStateActive はアクティブな定期抽出対象。
	WatchTargetStateActive WatchTargetState = "active"
	// WatchTargetStateStopped は停止された定期抽出対象。
	WatchTargetStateStopped WatchTargetState = "stopped"
	// WatchTargetStateError は連続失敗により停止した定期抽出対象。
	WatchTargetStateError WatchTargetState = "error"
)
