package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"ferry/internal/domain"
)

const intentCols = `id,name,source_id,destinations_json,status,kind,priority,total_files,total_bytes,completed_files,completed_bytes,include_json,exclude_json,created_at,updated_at`

func scanIntent(scan func(dest ...any) error) (domain.Intent, error) {
	var in domain.Intent
	var name, includeJSON, excludeJSON sql.NullString
	var destsJSON string
	err := scan(&in.ID, &name, &in.SourceID, &destsJSON, &in.Status, &in.Kind, &in.Priority,
		&in.TotalFiles, &in.TotalBytes, &in.CompletedFiles, &in.CompletedBytes,
		&includeJSON, &excludeJSON, &in.CreatedAt, &in.UpdatedAt)
	if err == sql.ErrNoRows {
		return in, ErrNotFound
	}
	if err != nil {
		return in, err
	}
	in.Name = ptrFromNull(name)
	if err := json.Unmarshal([]byte(destsJSON), &in.DestinationIDs); err != nil {
		return in, fmt.Errorf("unmarshal intent destinations: %w", err)
	}
	if in.IncludePatterns, err = unmarshalStrings(includeJSON); err != nil {
		return in, err
	}
	if in.ExcludePatterns, err = unmarshalStrings(excludeJSON); err != nil {
		return in, err
	}
	return in, nil
}

func (r Repo) InsertIntent(ctx context.Context, in domain.Intent) error {
	dests, err := marshalStrings(in.DestinationIDs)
	if err != nil {
		return err
	}
	var includeJSON, excludeJSON any
	if len(in.IncludePatterns) > 0 {
		v, err := marshalStrings(in.IncludePatterns)
		if err != nil {
			return err
		}
		includeJSON = v
	}
	if len(in.ExcludePatterns) > 0 {
		v, err := marshalStrings(in.ExcludePatterns)
		if err != nil {
			return err
		}
		excludeJSON = v
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO intents(`+intentCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		in.ID, nullableStringPtr(in.Name), in.SourceID, dests, string(in.Status), string(in.Kind), in.Priority,
		in.TotalFiles, in.TotalBytes, in.CompletedFiles, in.CompletedBytes,
		includeJSON, excludeJSON, in.CreatedAt, in.UpdatedAt)
	return err
}

func (r Repo) GetIntent(ctx context.Context, id string) (domain.Intent, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+intentCols+` FROM intents WHERE id=?`, id)
	return scanIntent(row.Scan)
}

func (r Repo) ListIntents(ctx context.Context) ([]domain.Intent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+intentCols+` FROM intents ORDER BY priority DESC, created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Intent
	for rows.Next() {
		in, err := scanIntent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

func (r Repo) UpdateIntentStatus(ctx context.Context, id string, status domain.IntentStatus, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE intents SET status=?, updated_at=? WHERE id=?`,
		string(status), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateIntentTotals records scan results: aggregate totals plus the
// post-scan status.
func (r Repo) UpdateIntentTotals(ctx context.Context, tx *sql.Tx, id string, status domain.IntentStatus, totalFiles, totalBytes int64, updatedAt string) error {
	res, err := r.exec(tx).ExecContext(ctx, `UPDATE intents SET status=?, total_files=?, total_bytes=?, updated_at=? WHERE id=?`,
		string(status), totalFiles, totalBytes, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FinalizeIntent records the scheduler's end-of-run aggregates.
func (r Repo) FinalizeIntent(ctx context.Context, id string, status domain.IntentStatus, completedFiles, completedBytes int64, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE intents SET status=?, completed_files=?, completed_bytes=?, updated_at=? WHERE id=?`,
		string(status), completedFiles, completedBytes, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
