package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/BishopRed90/galleryman/internal/model"
)

// PostgresArtifactRepo はPostgreSQLを使用したアーティファクトリポジトリ。
type PostgresArtifactRepo struct {
	db *sql.DB
}

// NewPostgresArtifactRepo はPostgresArtifactRepoを生成する。
func NewPostgresArtifactRepo(db *sql.DB) *PostgresArtifactRepo {
	return &PostgresArtifactRepo{db: db}
}

// Create はアーティファクトを記録する。
func (r *PostgresArtifactRepo) Create(ctx context.Context, artifact *model.Artifact) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, run_id, item_id, item_uuid, source_url,
		                        fallbacks, file_path, content_type, byte_size,
		                        is_original, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		artifact.ID, artifact.RunID, artifact.ItemID,
		nullString(artifact.ItemUUID), nullString(artifact.SourceURL),
		pq.Array(artifact.Fallbacks), artifact.FilePath,
		nullString(artifact.ContentType), artifact.ByteSize,
		artifact.IsOriginal, artifact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("アーティファクトの記録に失敗しました: %w", err)
	}
	return nil
}

// Exists は同一アイテム・同一パスのアーティファクトが記録済みかを返す。
func (r *PostgresArtifactRepo) Exists(ctx context.Context, itemID int64, filePath string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM artifacts WHERE item_id = $1 AND file_path = $2
		 )`,
		itemID, filePath,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("アーティファクトの重複判定に失敗しました: %w", err)
	}
	return exists, nil
}

// ListByRunID は指定ランのアーティファクト一覧を記録順で返す。
func (r *PostgresArtifactRepo) ListByRunID(ctx context.Context, runID string) ([]*model.Artifact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, run_id, item_id, item_uuid, source_url, fallbacks,
		        file_path, content_type, byte_size, is_original, created_at
		 FROM artifacts
		 WHERE run_id = $1
		 ORDER BY created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("アーティファクト一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var artifacts []*model.Artifact
	for rows.Next() {
		artifact := &model.Artifact{}
		var itemUUID, sourceURL, contentType sql.NullString
		var fallbacks pq.StringArray

		if err := rows.Scan(
			&artifact.ID, &artifact.RunID, &artifact.ItemID,
			&itemUUID, &sourceURL, &fallbacks,
			&artifact.FilePath, &contentType, &artifact.ByteSize,
			&artifact.IsOriginal, &artifact.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("アーティファクトの読み取りに失敗しました: %w", err)
		}

		artifact.ItemUUID = nullStringValue(itemUUID)
		artifact.SourceURL = nullStringValue(sourceURL)
		artifact.ContentType = nullStringValue(contentType)
		artifact.Fallbacks = fallbacks

		artifacts = append(artifacts, artifact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アーティファクト一覧の走査に失敗しました: %w", err)
	}
	return artifacts, nil
}

// compile-time interface check
var _ ArtifactRepository = (*PostgresArtifactRepo)(nil)
