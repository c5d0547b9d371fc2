package repo

import (
	"context"
	"database/sql"

	"ferry/internal/domain"
)

const jobCols = `id,intent_id,source_path,dest_path,destination_id,size,bytes_transferred,status,attempts,max_attempts,last_error,error_kind,source_hash,dest_hash,started_at,completed_at,created_at`

func scanJob(scan func(dest ...any) error) (domain.TransferJob, error) {
	var j domain.TransferJob
	var lastError, errorKind, sourceHash, destHash, startedAt, completedAt sql.NullString
	err := scan(&j.ID, &j.IntentID, &j.SourcePath, &j.DestPath, &j.DestinationID,
		&j.Size, &j.BytesTransferred, &j.Status, &j.Attempts, &j.MaxAttempts,
		&lastError, &errorKind, &sourceHash, &destHash, &startedAt, &completedAt, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	if err != nil {
		return j, err
	}
	j.LastError = ptrFromNull(lastError)
	j.ErrorKind = ptrFromNull(errorKind)
	j.SourceHash = ptrFromNull(sourceHash)
	j.DestHash = ptrFromNull(destHash)
	j.StartedAt = ptrFromNull(startedAt)
	j.CompletedAt = ptrFromNull(completedAt)
	return j, nil
}

// InsertJobTx creates one transfer job. The scanner calls this in bulk
// inside a single transaction.
func (r Repo) InsertJobTx(ctx context.Context, tx *sql.Tx, j domain.TransferJob) error {
	_, err := r.exec(tx).ExecContext(ctx, `INSERT INTO transfer_jobs(`+jobCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.IntentID, j.SourcePath, j.DestPath, j.DestinationID,
		j.Size, j.BytesTransferred, string(j.Status), j.Attempts, j.MaxAttempts,
		nullableStringPtr(j.LastError), nullableStringPtr(j.ErrorKind),
		nullableStringPtr(j.SourceHash), nullableStringPtr(j.DestHash),
		nullableStringPtr(j.StartedAt), nullableStringPtr(j.CompletedAt), j.CreatedAt)
	return err
}

func (r Repo) GetJob(ctx context.Context, id string) (domain.TransferJob, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobCols+` FROM transfer_jobs WHERE id=?`, id)
	return scanJob(row.Scan)
}

// ListJobs returns jobs for an intent, optionally filtered by status.
func (r Repo) ListJobs(ctx context.Context, intentID string, status domain.JobStatus) ([]domain.TransferJob, error) {
	query := `SELECT ` + jobCols + ` FROM transfer_jobs WHERE intent_id=?`
	args := []any{intentID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TransferJob
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

// PendingJobIDs returns the ids of all pending jobs for an intent in the
// store's default order.
func (r Repo) PendingJobIDs(ctx context.Context, intentID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM transfer_jobs WHERE intent_id=? AND status=? ORDER BY created_at, id`,
		intentID, string(domain.JobPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimJob atomically flips a pending job to transferring. ErrNotFound
// means the job was not pending anymore (or does not exist); the claim
// is conditional so two dispatchers cannot both win.
func (r Repo) ClaimJob(ctx context.Context, id, startedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE transfer_jobs SET status=?, started_at=? WHERE id=? AND status=?`,
		string(domain.JobTransferring), startedAt, id, string(domain.JobPending))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetTransferringJobs is the crash-recovery sweep: anything stuck in
// transferring goes back to pending with zero progress. Returns the
// number of jobs reset.
func (r Repo) ResetTransferringJobs(ctx context.Context, intentID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE transfer_jobs SET status=?, bytes_transferred=0, started_at=NULL WHERE intent_id=? AND status=?`,
		string(domain.JobPending), intentID, string(domain.JobTransferring))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// UpdateJobProgress is the best-effort progress write issued mid-copy.
func (r Repo) UpdateJobProgress(ctx context.Context, id string, bytes int64) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE transfer_jobs SET bytes_transferred=? WHERE id=?`, bytes, id)
	return err
}

func (r Repo) CompleteJob(ctx context.Context, id, sourceHash, destHash string, bytes int64, completedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE transfer_jobs SET status=?, source_hash=?, dest_hash=?, bytes_transferred=?, completed_at=? WHERE id=?`,
		string(domain.JobComplete), sourceHash, destHash, bytes, completedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob records a failed attempt: the new status (pending for a retry,
// needs_review for an escalation), the attempt count, and the error.
func (r Repo) FailJob(ctx context.Context, id string, status domain.JobStatus, attempts int, lastError string, errorKind domain.ErrorKind) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE transfer_jobs SET status=?, attempts=?, last_error=?, error_kind=? WHERE id=?`,
		string(status), attempts, lastError, string(errorKind), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RequeueJob puts a reviewed job back in the pending pool with a fresh
// attempt budget.
func (r Repo) RequeueJob(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE transfer_jobs SET status=?, attempts=0, bytes_transferred=0 WHERE id=?`,
		string(domain.JobPending), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AcceptJob(ctx context.Context, id, completedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE transfer_jobs SET status=?, completed_at=? WHERE id=?`,
		string(domain.JobComplete), completedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SkipJob(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE transfer_jobs SET status=? WHERE id=?`,
		string(domain.JobSkipped), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountJobsByStatus returns the per-status job counts for an intent.
func (r Repo) CountJobsByStatus(ctx context.Context, intentID string) (map[domain.JobStatus]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM transfer_jobs WHERE intent_id=? GROUP BY status`, intentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[domain.JobStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

// CountAllJobsByStatus returns per-status job counts across all intents.
func (r Repo) CountAllJobsByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM transfer_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[domain.JobStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

// SumCompletedBytes totals bytes_transferred over completed jobs.
func (r Repo) SumCompletedBytes(ctx context.Context, intentID string) (int64, error) {
	var total int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(bytes_transferred),0) FROM transfer_jobs WHERE intent_id=? AND status=?`,
		intentID, string(domain.JobComplete)).Scan(&total)
	return total, err
}

func (r Repo) UpsertFileRecord(ctx context.Context, rec domain.FileRecord) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO file_records(hash,size,first_seen) VALUES (?,?,?)
ON CONFLICT(hash) DO NOTHING`, rec.Hash, rec.Size, rec.FirstSeen)
	return err
}

func (r Repo) GetFileRecord(ctx context.Context, hash string) (domain.FileRecord, error) {
	var rec domain.FileRecord
	err := r.DB.QueryRowContext(ctx, `SELECT hash,size,first_seen FROM file_records WHERE hash=?`, hash).
		Scan(&rec.Hash, &rec.Size, &rec.FirstSeen)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	return rec, err
}
