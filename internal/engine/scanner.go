package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"ferry/internal/domain"
	"ferry/internal/events"
	"ferry/internal/repo"
)

// ScanResult summarizes one scan of an intent's source tree.
type ScanResult struct {
	FilesFound     int64 `json:"files_found"`
	TotalBytes     int64 `json:"total_bytes"`
	JobsCreated    int64 `json:"jobs_created"`
	SkippedEntries int64 `json:"skipped_entries"`
}

type fileEntry struct {
	relativePath string
	size         int64
}

// Scan expands an intent into transfer jobs: one per (file, destination)
// pair under the source tree.
//
// Intent transitions: idle → scanning → transferring (or complete when
// the tree is empty).
func (e Engine) Scan(ctx context.Context, intentID string) (ScanResult, error) {
	intent, err := e.Repo.GetIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ScanResult{}, &ScanError{Kind: ScanIntentNotFound, Msg: intentID}
		}
		return ScanResult{}, &ScanError{Kind: ScanDatabaseError, Msg: "load intent", Err: err}
	}

	if err := e.Repo.UpdateIntentStatus(ctx, intentID, domain.IntentScanning, e.timestamp()); err != nil {
		return ScanResult{}, &ScanError{Kind: ScanDatabaseError, Msg: "transition to scanning", Err: err}
	}

	source, err := e.Repo.GetLocation(ctx, intent.SourceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ScanResult{}, &ScanError{Kind: ScanSourceLocNotFound, Msg: intent.SourceID}
		}
		return ScanResult{}, &ScanError{Kind: ScanDatabaseError, Msg: "load source location", Err: err}
	}

	entries, skipped, serr := walkSource(source.Path, intent.IncludePatterns, intent.ExcludePatterns)
	if serr != nil {
		return ScanResult{}, serr
	}

	type resolvedDest struct {
		id   string
		path string
	}
	dests := make([]resolvedDest, 0, len(intent.DestinationIDs))
	for _, destID := range intent.DestinationIDs {
		dest, err := e.Repo.GetLocation(ctx, destID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ScanResult{}, &ScanError{Kind: ScanDestLocNotFound, Msg: destID}
			}
			return ScanResult{}, &ScanError{Kind: ScanDatabaseError, Msg: "load destination location", Err: err}
		}
		dests = append(dests, resolvedDest{id: dest.ID, path: dest.Path})
	}

	var totalBytes int64
	for _, entry := range entries {
		totalBytes += entry.size
	}
	totalJobs := int64(len(entries)) * int64(len(dests))
	nextStatus := domain.IntentTransferring
	if totalJobs == 0 {
		nextStatus = domain.IntentComplete
	}

	// Jobs and intent totals land in one transaction so a crash mid-scan
	// never leaves a partially expanded intent marked transferring.
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ScanResult{}, &ScanError{Kind: ScanDatabaseError, Msg: "begin tx", Err: err}
	}
	defer tx.Rollback()

	now := e.timestamp()
	maxAttempts := e.defaultMaxAttempts()
	var jobsCreated int64
	for _, dest := range dests {
		for _, entry := range entries {
			job := domain.TransferJob{
				ID:            e.newID(),
				IntentID:      intentID,
				SourcePath:    filepath.Join(source.Path, filepath.FromSlash(entry.relativePath)),
				DestPath:      filepath.Join(dest.path, filepath.FromSlash(entry.relativePath)),
				DestinationID: dest.id,
				Size:          entry.size,
				Status:        domain.JobPending,
				MaxAttempts:   maxAttempts,
				CreatedAt:     now,
			}
			if err := e.Repo.InsertJobTx(ctx, tx, job); err != nil {
				return ScanResult{}, &ScanError{Kind: ScanDatabaseError, Msg: "insert job", Err: err}
			}
			jobsCreated++
		}
	}

	if err := e.Repo.UpdateIntentTotals(ctx, tx, intentID, nextStatus, totalJobs, totalBytes*int64(len(dests)), now); err != nil {
		return ScanResult{}, &ScanError{Kind: ScanDatabaseError, Msg: "update intent totals", Err: err}
	}
	if err := e.Events.Append(ctx, tx, "scan.completed", intentID, "intent", intentID, events.EventPayload{
		"files_found":  len(entries),
		"jobs_created": jobsCreated,
		"skipped":      skipped,
	}); err != nil {
		return ScanResult{}, &ScanError{Kind: ScanDatabaseError, Msg: "append event", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return ScanResult{}, &ScanError{Kind: ScanDatabaseError, Msg: "commit", Err: err}
	}

	e.Log.Debug().Str("intent", intentID).Int("files", len(entries)).
		Int64("jobs", jobsCreated).Int64("skipped", skipped).Msg("scan completed")

	return ScanResult{
		FilesFound:     int64(len(entries)),
		TotalBytes:     totalBytes,
		JobsCreated:    jobsCreated,
		SkippedEntries: skipped,
	}, nil
}

// walkSource collects every regular file under root, never following
// symlinks. Unreadable entries and symlinks are counted as skipped, not
// fatal; only a root-level failure aborts the walk.
func walkSource(root string, includes, excludes []string) ([]fileEntry, int64, *ScanError) {
	info, err := os.Lstat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, &ScanError{Kind: ScanSourcePathNotExists, Msg: root}
		}
		return nil, 0, &ScanError{Kind: ScanWalkError, Msg: root, Err: err}
	}
	if !info.IsDir() {
		return nil, 0, &ScanError{Kind: ScanSourcePathNotDir, Msg: root}
	}

	var entries []fileEntry
	var skipped int64
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			skipped++
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			skipped++
			return nil
		}
		if !d.Type().IsRegular() {
			skipped++
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			skipped++
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			skipped++
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !matchPatterns(rel, includes, excludes) {
			return nil
		}
		entries = append(entries, fileEntry{relativePath: rel, size: fi.Size()})
		return nil
	})
	if walkErr != nil {
		return nil, 0, &ScanError{Kind: ScanWalkError, Msg: root, Err: walkErr}
	}
	return entries, skipped, nil
}

// matchPatterns applies the intent's include/exclude globs to a
// slash-separated relative path. An empty include list selects
// everything; excludes win.
func matchPatterns(rel string, includes, excludes []string) bool {
	selected := len(includes) == 0
	for _, pattern := range includes {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			selected = true
			break
		}
		// A bare filename pattern like *.jpg should match at any depth.
		if ok, err := doublestar.Match(pattern, path.Base(rel)); err == nil && ok {
			selected = true
			break
		}
	}
	if !selected {
		return false
	}
	for _, pattern := range excludes {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return false
		}
		if ok, err := doublestar.Match(pattern, path.Base(rel)); err == nil && ok {
			return false
		}
	}
	return true
}
