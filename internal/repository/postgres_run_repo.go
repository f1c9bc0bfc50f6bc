package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/BishopRed90/galleryman/internal/model"
)

// PostgresRunRepo はPostgreSQLを使用した抽出ランリポジトリ。
type PostgresRunRepo struct {
	db *sql.DB
}

// NewPostgresRunRepo はPostgresRunRepoを生成する。
func NewPostgresRunRepo(db *sql.DB) *PostgresRunRepo {
	return &PostgresRunRepo{db: db}
}

// Create は実行中状態の抽出ランを作成する。
func (r *PostgresRunRepo) Create(ctx context.Context, run *model.Run) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, target, state, items_seen, items_emitted,
		                   bytes_downloaded, error_message, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.Target, run.State, run.ItemsSeen, run.ItemsEmitted,
		run.BytesDownloaded, nullString(run.ErrorMessage), run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("抽出ランの作成に失敗しました: %w", err)
	}
	return nil
}

// Finish は抽出ランの終了状態と集計値を記録する。
func (r *PostgresRunRepo) Finish(ctx context.Context, run *model.Run) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET
		    state = $2,
		    items_seen = $3,
		    items_emitted = $4,
		    bytes_downloaded = $5,
		    error_message = $6,
		    finished_at = $7
		 WHERE id = $1`,
		run.ID, run.State, run.ItemsSeen, run.ItemsEmitted,
		run.BytesDownloaded, nullString(run.ErrorMessage), run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("抽出ランの更新に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの抽出ランを取得する。見つからない場合はnilを返す。
func (r *PostgresRunRepo) FindByID(ctx context.Context, id string) (*model.Run, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx,
		`SELECT id, target, state, items_seen, items_emitted,
		        bytes_downloaded, error_message, started_at, finished_at
		 FROM runs WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("抽出ランの取得に失敗しました: %w", err)
	}
	return run, nil
}

// List は抽出ラン一覧を開始日時の降順で返す。
func (r *PostgresRunRepo) List(ctx context.Context, limit int) ([]*model.Run, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, target, state, items_seen, items_emitted,
		        bytes_downloaded, error_message, started_at, finished_at
		 FROM runs
		 ORDER BY started_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("抽出ラン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("抽出ランの読み取りに失敗しました: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("抽出ラン一覧の走査に失敗しました: %w", err)
	}
	return runs, nil
}

// rowScanner はsql.Rowとsql.Rowsの共通走査インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRun は1行分の抽出ランを読み取る。
func scanRun(row rowScanner) (*model.Run, error) {
	run := &model.Run{}
	var errorMessage sql.NullString
	var finishedAt sql.NullTime

	if err := row.Scan(
		&run.ID, &run.Target, &run.State, &run.ItemsSeen, &run.ItemsEmitted,
		&run.BytesDownloaded, &errorMessage, &run.StartedAt, &finishedAt,
	); err != nil {
		return nil, err
	}

	run.ErrorMessage = nullStringValue(errorMessage)
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return run, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ RunRepository = (*PostgresRunRepo)(nil)
