package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/BishopRed90/galleryman/internal/model"
)

// PostgresWatchTargetRepo はPostgreSQLを使用した定期抽出対象リポジトリ。
type PostgresWatchTargetRepo struct {
	db *sql.DB
}

// NewPostgresWatchTargetRepo はPostgresWatchTargetRepoを生成する。
func NewPostgresWatchTargetRepo(db *sql.DB) *PostgresWatchTargetRepo {
	return &PostgresWatchTargetRepo{db: db}
}

const watchTargetColumns = `id, target, interval_seconds, next_run_at,
	        failure_count, state, error_message, created_at, updated_at`

// Create は定期抽出対象を登録する。
func (r *PostgresWatchTargetRepo) Create(ctx context.Context, target *model.WatchTarget) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO watch_targets (id, target, interval_seconds, next_run_at,
		                            failure_count, state, error_message,
		                            created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		target.ID, target.Target, target.IntervalSeconds, target.NextRunAt,
		target.FailureCount, target.State, nullString(target.ErrorMessage),
		target.CreatedAt, target.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("定期抽出対象の登録に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの対象を取得する。見つからない場合はnilを返す。
func (r *PostgresWatchTargetRepo) FindByID(ctx context.Context, id string) (*model.WatchTarget, error) {
	target, err := scanWatchTarget(r.db.QueryRowContext(ctx,
		`SELECT `+watchTargetColumns+` FROM watch_targets WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("定期抽出対象の取得に失敗しました: %w", err)
	}
	return target, nil
}

// FindByTarget は対象URLで検索する。見つからない場合はnilを返す。
func (r *PostgresWatchTargetRepo) FindByTarget(ctx context.Context, targetURL string) (*model.WatchTarget, error) {
	target, err := scanWatchTarget(r.db.QueryRowContext(ctx,
		`SELECT `+watchTargetColumns+` FROM watch_targets WHERE target = $1`,
		targetURL,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("対象URLによる検索に失敗しました: %w", err)
	}
	return target, nil
}

// List は登録済みの全対象を作成日時の昇順で返す。
func (r *PostgresWatchTargetRepo) List(ctx context.Context) ([]*model.WatchTarget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+watchTargetColumns+` FROM watch_targets ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("定期抽出対象一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return collectWatchTargets(rows)
}

// ListDueForRun は実行予定時刻を過ぎたアクティブな対象を
// FOR UPDATE SKIP LOCKEDで排他的に取得する。
// 複数のワーカープロセスが同時に走っても同じ対象を重複して
// 処理しないための排他制御である。
func (r *PostgresWatchTargetRepo) ListDueForRun(ctx context.Context) ([]*model.WatchTarget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+watchTargetColumns+`
		 FROM watch_targets
		 WHERE next_run_at <= now()
		   AND state = 'active'
		 ORDER BY next_run_at ASC
		 FOR UPDATE SKIP LOCKED`,
	)
	if err != nil {
		return nil, fmt.Errorf("実行対象の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return collectWatchTargets(rows)
}

// UpdateRunState は対象の実行結果を反映する。
func (r *PostgresWatchTargetRepo) UpdateRunState(ctx context.Context, target *model.WatchTarget) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE watch_targets SET
		    state = $2,
		    failure_count = $3,
		    error_message = $4,
		    next_run_at = $5,
		    updated_at = now()
		 WHERE id = $1`,
		target.ID, target.State, target.FailureCount,
		nullString(target.ErrorMessage), target.NextRunAt,
	)
	if err != nil {
		return fmt.Errorf("実行状態の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateInterval は対象の抽出間隔を更新する。
func (r *PostgresWatchTargetRepo) UpdateInterval(ctx context.Context, id string, seconds int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE watch_targets SET interval_seconds = $2, updated_at = now() WHERE id = $1`,
		id, seconds,
	)
	if err != nil {
		return fmt.Errorf("抽出間隔の更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDの対象を削除する。
func (r *PostgresWatchTargetRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM watch_targets WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("定期抽出対象の削除に失敗しました: %w", err)
	}
	return nil
}

// scanWatchTarget は1行分の定期抽出対象を読み取る。
func scanWatchTarget(row rowScanner) (*model.WatchTarget, error) {
	target := &model.WatchTarget{}
	var errorMessage sql.NullString

	if err := row.Scan(
		&target.ID, &target.Target, &target.IntervalSeconds, &target.NextRunAt,
		&target.FailureCount, &target.State, &errorMessage,
		&target.CreatedAt, &target.UpdatedAt,
	); err != nil {
		return nil, err
	}

	target.ErrorMessage = nullStringValue(errorMessage)
	return target, nil
}

// collectWatchTargets は走査結果を読み切って返す。
func collectWatchTargets(rows *sql.Rows) ([]*model.WatchTarget, error) {
	var targets []*model.WatchTarget
	for rows.Next() {
		target, err := scanWatchTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("定期抽出対象の読み取りに失敗しました: %w", err)
		}
		targets = append(targets, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("定期抽出対象一覧の走査に失敗しました: %w", err)
	}
	return targets, nil
}

// compile-time interface check
var _ WatchTargetRepository = (*PostgresWatchTargetRepo)(nil)
