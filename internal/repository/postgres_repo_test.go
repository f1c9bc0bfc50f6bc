package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/BishopRed90/galleryman/internal/model"
)

// 各リポジトリがインターフェースを満たすことを検証
func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ RunRepository = (*PostgresRunRepo)(nil)
	var _ ArtifactRepository = (*PostgresArtifactRepo)(nil)
	var _ WatchTargetRepository = (*PostgresWatchTargetRepo)(nil)
}

// コンストラクタが正しく初期化されることを検証
func TestNewPostgresRepos_Initialize(t *testing.T) {
	if NewPostgresRunRepo(nil) == nil {
		t.Fatal("expected non-nil run repo")
	}
	if NewPostgresArtifactRepo(nil) == nil {
		t.Fatal("expected non-nil artifact repo")
	}
	if NewPostgresWatchTargetRepo(nil) == nil {
		t.Fatal("expected non-nil watch target repo")
	}
}

// Runモデルのフィールドが正しく構築されることを検証
func TestRunModel_Fields(t *testing.T) {
	now := time.Now()
	run := &model.Run{
		ID:        "run-id-1",
		Target:    "https://www.deviantart.com/someuser/gallery",
		State:     model.RunStateRunning,
		StartedAt: now,
	}

	if run.State != model.RunStateRunning {
		t.Errorf("run.State = %q, want %q", run.State, model.RunStateRunning)
	}
	if run.FinishedAt != nil {
		t.Error("finished_at should be nil while running")
	}
}

// Artifactのフォールバック列がnil許容であることを検証
func TestArtifactModel_NilFallbacks(t *testing.T) {
	artifact := &model.Artifact{
		ID:       "artifact-id-1",
		RunID:    "run-id-1",
		ItemID:   42,
		FilePath: "someuser/art-d16.png",
	}

	if artifact.Fallbacks != nil {
		t.Error("fallbacks should be nil by default")
	}
}

// null変換ヘルパーの往復を検証
func TestNullStringHelpers(t *testing.T) {
	if got := nullString(""); got.Valid {
		t.Error("nullString(\"\") should be invalid")
	}
	if got := nullString("x"); !got.Valid || got.String != "x" {
		t.Errorf("nullString(\"x\") = %+v", got)
	}
	if got := nullStringValue(sql.NullString{}); got != "" {
		t.Errorf("nullStringValue(invalid) = %q, want empty", got)
	}
	if got := nullStringValue(sql.NullString{String: "y", Valid: true}); got != "y" {
		t.Errorf("nullStringValue(valid) = %q, want %q", got, "y")
	}
}
