package engine

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"ferry/internal/blake3util"
	"ferry/internal/domain"
	"ferry/internal/events"
	"ferry/internal/repo"
)

// progressInterval is the number of chunks between progress writes
// (4 × 256 KiB ≈ 1 MiB).
const progressInterval = 4

// CopyResult is the outcome of one verified copy.
type CopyResult struct {
	BytesCopied int64  `json:"bytes_copied"`
	SourceHash  string `json:"source_hash"`
	DestHash    string `json:"dest_hash"`
	Verified    bool   `json:"verified"`
}

// Copy executes a single transfer job end to end: claim, stream, hash,
// verify, persist. On failure it decides between automatic retry
// (job back to pending) and escalation (needs_review plus a ReviewItem).
func (e Engine) Copy(ctx context.Context, jobID string) (CopyResult, error) {
	job, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CopyResult{}, ErrJobNotFound
		}
		return CopyResult{}, &DBError{Op: "load job", Err: err}
	}

	// Claim-if-still-pending: conditional update so a racing dispatcher
	// cannot run the same job twice.
	if err := e.Repo.ClaimJob(ctx, job.ID, e.timestamp()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CopyResult{}, ErrJobNotPending
		}
		return CopyResult{}, &DBError{Op: "claim job", Err: err}
	}

	result, cerr := e.copyAndHash(ctx, job)
	if cerr == nil {
		if err := e.Repo.CompleteJob(ctx, job.ID, result.SourceHash, result.DestHash, result.BytesCopied, e.timestamp()); err != nil {
			return CopyResult{}, &DBError{Op: "complete job", Err: err}
		}
		// Ledger and event writes are telemetry; the copy already stands.
		if err := e.Repo.UpsertFileRecord(ctx, domain.FileRecord{
			Hash:      result.SourceHash,
			Size:      result.BytesCopied,
			FirstSeen: e.timestamp(),
		}); err != nil {
			e.Log.Warn().Err(err).Str("job", job.ID).Msg("file record upsert failed")
		}
		e.appendEvent(ctx, "job.completed", job.IntentID, "transfer_job", job.ID, events.EventPayload{
			"bytes": result.BytesCopied,
			"hash":  result.SourceHash,
		})
		return result, nil
	}

	attempts := job.Attempts + 1
	status := domain.JobNeedsReview
	if cerr.Retryable() && attempts < job.MaxAttempts {
		status = domain.JobPending
	}
	if err := e.Repo.FailJob(ctx, job.ID, status, attempts, cerr.Error(), cerr.Kind); err != nil {
		return CopyResult{}, &DBError{Op: "record failure", Err: err}
	}

	if status == domain.JobNeedsReview {
		e.escalate(ctx, job, cerr)
	} else {
		e.appendEvent(ctx, "job.retried", job.IntentID, "transfer_job", job.ID, events.EventPayload{
			"attempts": attempts,
			"error":    cerr.Error(),
		})
	}
	return CopyResult{}, cerr
}

// copyAndHash is the blocking pipeline: stream the source through the
// hasher into the destination, then re-read the destination to verify
// what actually landed on disk.
func (e Engine) copyAndHash(ctx context.Context, job domain.TransferJob) (CopyResult, *CopyError) {
	if parent := filepath.Dir(job.DestPath); parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return CopyResult{}, classifyPathError(job.DestPath, err)
		}
	}

	source, err := os.Open(job.SourcePath)
	if err != nil {
		return CopyResult{}, classifyPathError(job.SourcePath, err)
	}
	defer source.Close()

	dest, err := os.Create(job.DestPath)
	if err != nil {
		return CopyResult{}, classifyPathError(job.DestPath, err)
	}

	hasher := blake3util.New()
	buf := make([]byte, blake3util.ChunkSize)
	var bytesCopied int64
	chunksSinceProgress := 0

	for {
		n, rerr := source.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			if _, werr := dest.Write(buf[:n]); werr != nil {
				dest.Close()
				return CopyResult{}, classifyPathError(job.DestPath, werr)
			}
			bytesCopied += int64(n)
			chunksSinceProgress++
			if chunksSinceProgress >= progressInterval {
				chunksSinceProgress = 0
				// Best-effort by contract: progress is telemetry, a
				// failed write here must never fail the copy.
				if perr := e.Repo.UpdateJobProgress(ctx, job.ID, bytesCopied); perr != nil {
					e.Log.Debug().Err(perr).Str("job", job.ID).Msg("progress update failed")
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			dest.Close()
			return CopyResult{}, classifyPathError(job.SourcePath, rerr)
		}
	}

	if err := dest.Close(); err != nil {
		return CopyResult{}, classifyPathError(job.DestPath, err)
	}

	sourceHash := hasher.SumHex()
	destHash, err := blake3util.HashFile(job.DestPath)
	if err != nil {
		return CopyResult{}, classifyPathError(job.DestPath, err)
	}

	if sourceHash != destHash {
		return CopyResult{}, &CopyError{
			Kind:       domain.ErrHashMismatch,
			Path:       job.DestPath,
			SourceHash: sourceHash,
			DestHash:   destHash,
		}
	}

	return CopyResult{
		BytesCopied: bytesCopied,
		SourceHash:  sourceHash,
		DestHash:    destHash,
		Verified:    true,
	}, nil
}

// escalate creates the review item for a terminal failure. Creation is
// best-effort like the rest of the telemetry around a failure: the job
// row already carries the error.
func (e Engine) escalate(ctx context.Context, job domain.TransferJob, cerr *CopyError) {
	item := domain.ReviewItem{
		ID:           e.newID(),
		JobID:        job.ID,
		IntentID:     job.IntentID,
		ErrorKind:    cerr.Kind,
		ErrorMessage: cerr.Error(),
		SourcePath:   job.SourcePath,
		DestPath:     job.DestPath,
		Options:      domain.ResolutionOptions(cerr.Kind),
		CreatedAt:    e.timestamp(),
	}
	item.SourceSize, item.SourceModified = statSnapshot(job.SourcePath)
	item.DestSize, item.DestModified = statSnapshot(job.DestPath)
	if cerr.Kind == domain.ErrHashMismatch {
		item.SourceHash = &cerr.SourceHash
		item.DestHash = &cerr.DestHash
	}
	if err := e.Repo.InsertReviewItem(ctx, item); err != nil {
		e.Log.Error().Err(err).Str("job", job.ID).Msg("review item creation failed")
		return
	}
	e.appendEvent(ctx, "job.escalated", job.IntentID, "review_item", item.ID, events.EventPayload{
		"job":        job.ID,
		"error_kind": string(cerr.Kind),
		"error":      cerr.Error(),
	})
	e.Log.Warn().Str("job", job.ID).Str("kind", string(cerr.Kind)).Msg("job escalated to review")
}

func statSnapshot(path string) (*int64, *string) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil
	}
	size := info.Size()
	modified := info.ModTime().UTC().Format(time.RFC3339)
	return &size, &modified
}

// classifyPathError maps a filesystem error onto the closed error-kind
// set. Anything unrecognized is transient I/O, the only retryable kind.
func classifyPathError(path string, err error) *CopyError {
	kind := domain.ErrIO
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = domain.ErrSourceMissing
	case errors.Is(err, fs.ErrPermission):
		kind = domain.ErrPermissionDenied
	case errors.Is(err, syscall.ENOSPC):
		kind = domain.ErrDiskFull
	}
	return &CopyError{Kind: kind, Path: path, Err: err}
}
