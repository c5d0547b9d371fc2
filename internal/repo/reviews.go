package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"ferry/internal/domain"
)

const reviewCols = `id,job_id,intent_id,error_kind,error_message,source_path,dest_path,options_json,resolution,created_at,resolved_at,source_size,source_hash,source_modified,dest_size,dest_hash,dest_modified`

func scanReview(scan func(dest ...any) error) (domain.ReviewItem, error) {
	var it domain.ReviewItem
	var optionsJSON string
	var resolution, resolvedAt, sourceHash, sourceModified, destHash, destModified sql.NullString
	var sourceSize, destSize sql.NullInt64
	err := scan(&it.ID, &it.JobID, &it.IntentID, &it.ErrorKind, &it.ErrorMessage,
		&it.SourcePath, &it.DestPath, &optionsJSON, &resolution, &it.CreatedAt, &resolvedAt,
		&sourceSize, &sourceHash, &sourceModified, &destSize, &destHash, &destModified)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	if err := json.Unmarshal([]byte(optionsJSON), &it.Options); err != nil {
		return it, fmt.Errorf("unmarshal review options: %w", err)
	}
	it.Resolution = ptrFromNull(resolution)
	it.ResolvedAt = ptrFromNull(resolvedAt)
	it.SourceSize = int64PtrFromNull(sourceSize)
	it.SourceHash = ptrFromNull(sourceHash)
	it.SourceModified = ptrFromNull(sourceModified)
	it.DestSize = int64PtrFromNull(destSize)
	it.DestHash = ptrFromNull(destHash)
	it.DestModified = ptrFromNull(destModified)
	return it, nil
}

func (r Repo) InsertReviewItem(ctx context.Context, it domain.ReviewItem) error {
	options, err := marshalStrings(it.Options)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO review_items(`+reviewCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		it.ID, it.JobID, it.IntentID, string(it.ErrorKind), it.ErrorMessage,
		it.SourcePath, it.DestPath, options, nullableStringPtr(it.Resolution), it.CreatedAt,
		nullableStringPtr(it.ResolvedAt),
		nullableInt64Ptr(it.SourceSize), nullableStringPtr(it.SourceHash), nullableStringPtr(it.SourceModified),
		nullableInt64Ptr(it.DestSize), nullableStringPtr(it.DestHash), nullableStringPtr(it.DestModified))
	return err
}

func (r Repo) GetReviewItem(ctx context.Context, id string) (domain.ReviewItem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+reviewCols+` FROM review_items WHERE id=?`, id)
	return scanReview(row.Scan)
}

// ListOpenReviews returns unresolved review items, newest first,
// optionally scoped to one intent.
func (r Repo) ListOpenReviews(ctx context.Context, intentID string) ([]domain.ReviewItem, error) {
	query := `SELECT ` + reviewCols + ` FROM review_items WHERE resolution IS NULL`
	var args []any
	if intentID != "" {
		query += ` AND intent_id=?`
		args = append(args, intentID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ReviewItem
	for rows.Next() {
		it, err := scanReview(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

// OpenReviewForJob returns the single unresolved review item for a job.
func (r Repo) OpenReviewForJob(ctx context.Context, jobID string) (domain.ReviewItem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+reviewCols+` FROM review_items WHERE job_id=? AND resolution IS NULL LIMIT 1`, jobID)
	return scanReview(row.Scan)
}

// ResolveReviewItem sets the resolution on an open item. A resolved item
// is immutable history, so the update is conditional on resolution being
// unset; ErrNotFound means the item was missing or already resolved.
func (r Repo) ResolveReviewItem(ctx context.Context, id, resolution, resolvedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE review_items SET resolution=?, resolved_at=? WHERE id=? AND resolution IS NULL`,
		resolution, resolvedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
