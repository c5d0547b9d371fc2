package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"ferry/internal/config"
	"ferry/internal/db"
	"ferry/internal/domain"
	"ferry/internal/engine"
	"ferry/internal/migrate"
	"ferry/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default(), zerolog.Nop())
	return testEnv{Engine: eng, Ctx: context.Background()}
}

// addLocation registers a temp-dir backed location and returns it with
// its root path.
func (env testEnv) addLocation(t *testing.T, name string) (domain.Location, string) {
	t.Helper()
	root := t.TempDir()
	l, err := env.Engine.CreateLocation(env.Ctx, engine.CreateLocationOptions{
		Name:      name,
		Path:      root,
		Available: true,
	})
	if err != nil {
		t.Fatalf("create location %s: %v", name, err)
	}
	return l, root
}

func (env testEnv) addIntent(t *testing.T, sourceID string, destIDs []string, opts engine.CreateIntentOptions) domain.Intent {
	t.Helper()
	opts.SourceID = sourceID
	opts.DestinationIDs = destIDs
	in, err := env.Engine.CreateIntent(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	return in
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCreateLocationValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateLocation(env.Ctx, engine.CreateLocationOptions{Name: "", Path: "/tmp"}); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if _, err := env.Engine.CreateLocation(env.Ctx, engine.CreateLocationOptions{Name: "rel", Path: "relative/path"}); err == nil {
		t.Fatalf("expected error for relative path")
	}
	if _, err := env.Engine.CreateLocation(env.Ctx, engine.CreateLocationOptions{Name: "bad", Path: "/tmp", Kind: "cloud"}); err == nil {
		t.Fatalf("expected error for invalid kind")
	}
}

func TestCreateIntentValidation(t *testing.T) {
	env := newTestEnv(t)
	src, _ := env.addLocation(t, "src")
	dst, _ := env.addLocation(t, "dst")

	if _, err := env.Engine.CreateIntent(env.Ctx, engine.CreateIntentOptions{SourceID: src.ID}); err == nil {
		t.Fatalf("expected error without destinations")
	}
	if _, err := env.Engine.CreateIntent(env.Ctx, engine.CreateIntentOptions{
		SourceID: src.ID, DestinationIDs: []string{src.ID},
	}); err == nil {
		t.Fatalf("expected error for source == destination")
	}
	if _, err := env.Engine.CreateIntent(env.Ctx, engine.CreateIntentOptions{
		SourceID: src.ID, DestinationIDs: []string{dst.ID, dst.ID},
	}); err == nil {
		t.Fatalf("expected error for duplicate destination")
	}
	if _, err := env.Engine.CreateIntent(env.Ctx, engine.CreateIntentOptions{
		SourceID: src.ID, DestinationIDs: []string{"no-such-loc"},
	}); err == nil {
		t.Fatalf("expected error for unknown destination")
	}

	in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{})
	if in.Status != domain.IntentIdle {
		t.Fatalf("new intent status %s, want idle", in.Status)
	}
}

func TestScanExpandsJobsPerDestination(t *testing.T) {
	env := newTestEnv(t)
	src, srcRoot := env.addLocation(t, "src")
	dst1, _ := env.addLocation(t, "dst1")
	dst2, _ := env.addLocation(t, "dst2")

	writeFile(t, filepath.Join(srcRoot, "a.txt"), []byte("hello"))
	writeFile(t, filepath.Join(srcRoot, "b.txt"), []byte("hi"))
	writeFile(t, filepath.Join(srcRoot, "nested", "c.txt"), []byte("deep file!"))

	in := env.addIntent(t, src.ID, []string{dst1.ID, dst2.ID}, engine.CreateIntentOptions{})
	result, err := env.Engine.Scan(env.Ctx, in.ID)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.FilesFound != 3 {
		t.Fatalf("files found %d, want 3", result.FilesFound)
	}
	if result.TotalBytes != 17 {
		t.Fatalf("total bytes %d, want 17", result.TotalBytes)
	}
	if result.JobsCreated != 6 {
		t.Fatalf("jobs created %d, want 6", result.JobsCreated)
	}

	got, err := env.Engine.GetIntent(env.Ctx, in.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.IntentTransferring {
		t.Fatalf("intent status %s, want transferring", got.Status)
	}
	if got.TotalFiles != 6 || got.TotalBytes != 34 {
		t.Fatalf("intent totals files=%d bytes=%d, want 6/34", got.TotalFiles, got.TotalBytes)
	}

	jobs, err := env.Engine.Repo.ListJobs(env.Ctx, in.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 6 {
		t.Fatalf("job rows %d, want 6", len(jobs))
	}
	for _, j := range jobs {
		if j.Status != domain.JobPending {
			t.Fatalf("job %s status %s, want pending", j.ID, j.Status)
		}
	}
}

func TestScanEmptySourceCompletes(t *testing.T) {
	env := newTestEnv(t)
	src, _ := env.addLocation(t, "src")
	dst, _ := env.addLocation(t, "dst")
	in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{})

	result, err := env.Engine.Scan(env.Ctx, in.ID)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.JobsCreated != 0 {
		t.Fatalf("jobs created %d, want 0", result.JobsCreated)
	}
	got, _ := env.Engine.GetIntent(env.Ctx, in.ID)
	if got.Status != domain.IntentComplete {
		t.Fatalf("intent status %s, want complete", got.Status)
	}
}

func TestScanErrors(t *testing.T) {
	env := newTestEnv(t)
	dst, _ := env.addLocation(t, "dst")

	t.Run("intent not found", func(t *testing.T) {
		_, err := env.Engine.Scan(env.Ctx, "no-such-intent")
		var se *engine.ScanError
		if !errors.As(err, &se) || se.Kind != engine.ScanIntentNotFound {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("source path missing", func(t *testing.T) {
		gone := filepath.Join(t.TempDir(), "vanished")
		src, err := env.Engine.CreateLocation(env.Ctx, engine.CreateLocationOptions{Name: "gone", Path: gone})
		if err != nil {
			t.Fatal(err)
		}
		in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{})
		_, err = env.Engine.Scan(env.Ctx, in.ID)
		var se *engine.ScanError
		if !errors.As(err, &se) || se.Kind != engine.ScanSourcePathNotExists {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("source path is a file", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "not-a-dir")
		writeFile(t, file, []byte("x"))
		src, err := env.Engine.CreateLocation(env.Ctx, engine.CreateLocationOptions{Name: "flat", Path: file})
		if err != nil {
			t.Fatal(err)
		}
		in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{})
		_, err = env.Engine.Scan(env.Ctx, in.ID)
		var se *engine.ScanError
		if !errors.As(err, &se) || se.Kind != engine.ScanSourcePathNotDir {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestScanSkipsSymlinks(t *testing.T) {
	env := newTestEnv(t)
	src, srcRoot := env.addLocation(t, "src")
	dst, _ := env.addLocation(t, "dst")

	writeFile(t, filepath.Join(srcRoot, "real.txt"), []byte("real"))
	if err := os.Symlink(filepath.Join(srcRoot, "real.txt"), filepath.Join(srcRoot, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{})
	result, err := env.Engine.Scan(env.Ctx, in.ID)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.FilesFound != 1 {
		t.Fatalf("files found %d, want 1", result.FilesFound)
	}
	if result.SkippedEntries != 1 {
		t.Fatalf("skipped %d, want 1", result.SkippedEntries)
	}
}

func TestScanPatternFilters(t *testing.T) {
	env := newTestEnv(t)
	src, srcRoot := env.addLocation(t, "src")
	dst, _ := env.addLocation(t, "dst")

	writeFile(t, filepath.Join(srcRoot, "keep.jpg"), []byte("jpg"))
	writeFile(t, filepath.Join(srcRoot, "skip.raw"), []byte("raw"))
	writeFile(t, filepath.Join(srcRoot, "tmp", "cache.jpg"), []byte("tmp"))

	in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{
		IncludePatterns: []string{"*.jpg"},
		ExcludePatterns: []string{"tmp/**"},
	})
	result, err := env.Engine.Scan(env.Ctx, in.ID)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.FilesFound != 1 {
		t.Fatalf("files found %d, want 1", result.FilesFound)
	}
	jobs, _ := env.Engine.Repo.ListJobs(env.Ctx, in.ID, "")
	if len(jobs) != 1 || filepath.Base(jobs[0].SourcePath) != "keep.jpg" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

func TestCopyVerifiedEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	src, srcRoot := env.addLocation(t, "src")
	dst, dstRoot := env.addLocation(t, "dst")
	writeFile(t, filepath.Join(srcRoot, "photo.jpg"), []byte("image bytes"))

	in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{})
	if _, err := env.Engine.Scan(env.Ctx, in.ID); err != nil {
		t.Fatalf("scan: %v", err)
	}
	jobs, _ := env.Engine.Repo.ListJobs(env.Ctx, in.ID, "")
	if len(jobs) != 1 {
		t.Fatalf("job rows %d, want 1", len(jobs))
	}

	result, err := env.Engine.Copy(env.Ctx, jobs[0].ID)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if !result.Verified || result.SourceHash != result.DestHash {
		t.Fatalf("copy not verified: %+v", result)
	}
	if result.BytesCopied != 11 {
		t.Fatalf("bytes copied %d, want 11", result.BytesCopied)
	}

	data, err := os.ReadFile(filepath.Join(dstRoot, "photo.jpg"))
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(data) != "image bytes" {
		t.Fatalf("dest content %q", data)
	}

	job, _ := env.Engine.Repo.GetJob(env.Ctx, jobs[0].ID)
	if job.Status != domain.JobComplete {
		t.Fatalf("job status %s, want complete", job.Status)
	}
	if job.SourceHash == nil || job.DestHash == nil || *job.SourceHash != *job.DestHash {
		t.Fatalf("job hashes not recorded: %+v", job)
	}

	// Content ledger picked up the verified hash.
	if _, err := env.Engine.Repo.GetFileRecord(env.Ctx, result.SourceHash); err != nil {
		t.Fatalf("file record missing: %v", err)
	}
}

func TestCopyMissingSourceEscalates(t *testing.T) {
	env := newTestEnv(t)
	src, srcRoot := env.addLocation(t, "src")
	dst, _ := env.addLocation(t, "dst")
	path := filepath.Join(srcRoot, "doc.pdf")
	writeFile(t, path, []byte("contract"))

	in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{})
	if _, err := env.Engine.Scan(env.Ctx, in.ID); err != nil {
		t.Fatal(err)
	}
	jobs, _ := env.Engine.Repo.ListJobs(env.Ctx, in.ID, "")

	// Source disappears between scan and copy.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.Copy(env.Ctx, jobs[0].ID)
	var cerr *engine.CopyError
	if !errors.As(err, &cerr) || cerr.Kind != domain.ErrSourceMissing {
		t.Fatalf("unexpected error: %v", err)
	}

	job, _ := env.Engine.Repo.GetJob(env.Ctx, jobs[0].ID)
	if job.Status != domain.JobNeedsReview {
		t.Fatalf("job status %s, want needs_review", job.Status)
	}
	if job.Attempts != 1 {
		t.Fatalf("attempts %d, want 1", job.Attempts)
	}

	item, err := env.Engine.Repo.OpenReviewForJob(env.Ctx, job.ID)
	if err != nil {
		t.Fatalf("review item: %v", err)
	}
	if item.ErrorKind != domain.ErrSourceMissing {
		t.Fatalf("review kind %s", item.ErrorKind)
	}
	want := []string{domain.ResolutionSkip, domain.ResolutionRescan}
	if len(item.Options) != len(want) || item.Options[0] != want[0] || item.Options[1] != want[1] {
		t.Fatalf("review options %v, want %v", item.Options, want)
	}
}

func TestCopyRetryableErrorRequeuesUntilBound(t *testing.T) {
	env := newTestEnv(t)
	src, srcRoot := env.addLocation(t, "src")
	dst, _ := env.addLocation(t, "dst")
	path := filepath.Join(srcRoot, "blob.bin")
	writeFile(t, path, []byte("payload"))

	in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{})
	if _, err := env.Engine.Scan(env.Ctx, in.ID); err != nil {
		t.Fatal(err)
	}
	jobs, _ := env.Engine.Repo.ListJobs(env.Ctx, in.ID, "")
	if jobs[0].MaxAttempts != 3 {
		t.Fatalf("max attempts %d, want 3", jobs[0].MaxAttempts)
	}

	// Swap the scanned file for a directory: open succeeds, the first
	// read fails with EISDIR, which classifies as transient io_error.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}

	// Attempts 1 and 2 requeue: attempts go up by exactly one each time
	// and the job returns to pending with no review item.
	for want := 1; want < 3; want++ {
		_, err := env.Engine.Copy(env.Ctx, jobs[0].ID)
		var cerr *engine.CopyError
		if !errors.As(err, &cerr) || cerr.Kind != domain.ErrIO {
			t.Fatalf("attempt %d: unexpected error %v", want, err)
		}
		job, _ := env.Engine.Repo.GetJob(env.Ctx, jobs[0].ID)
		if job.Status != domain.JobPending {
			t.Fatalf("attempt %d: status %s, want pending", want, job.Status)
		}
		if job.Attempts != want {
			t.Fatalf("attempt %d: attempts %d", want, job.Attempts)
		}
		if _, err := env.Engine.Repo.OpenReviewForJob(env.Ctx, job.ID); !errors.Is(err, repo.ErrNotFound) {
			t.Fatalf("attempt %d: premature review item (err %v)", want, err)
		}
	}

	// The third failure reaches the bound and escalates.
	if _, err := env.Engine.Copy(env.Ctx, jobs[0].ID); err == nil {
		t.Fatalf("expected final attempt to fail")
	}
	job, _ := env.Engine.Repo.GetJob(env.Ctx, jobs[0].ID)
	if job.Status != domain.JobNeedsReview {
		t.Fatalf("status %s, want needs_review", job.Status)
	}
	if job.Attempts != 3 {
		t.Fatalf("attempts %d, want 3", job.Attempts)
	}
	item, err := env.Engine.Repo.OpenReviewForJob(env.Ctx, job.ID)
	if err != nil {
		t.Fatalf("review item: %v", err)
	}
	if item.ErrorKind != domain.ErrIO {
		t.Fatalf("review kind %s, want io_error", item.ErrorKind)
	}
	want := []string{domain.ResolutionRetry, domain.ResolutionSkip}
	if len(item.Options) != len(want) || item.Options[0] != want[0] || item.Options[1] != want[1] {
		t.Fatalf("review options %v, want %v", item.Options, want)
	}
}

func TestCopyClaimIsExclusive(t *testing.T) {
	env := newTestEnv(t)
	src, srcRoot := env.addLocation(t, "src")
	dst, _ := env.addLocation(t, "dst")
	writeFile(t, filepath.Join(srcRoot, "f"), []byte("x"))

	in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{})
	if _, err := env.Engine.Scan(env.Ctx, in.ID); err != nil {
		t.Fatal(err)
	}
	jobs, _ := env.Engine.Repo.ListJobs(env.Ctx, in.ID, "")

	if _, err := env.Engine.Copy(env.Ctx, jobs[0].ID); err != nil {
		t.Fatalf("first copy: %v", err)
	}
	// Not pending anymore; the second dispatch must lose the claim.
	if _, err := env.Engine.Copy(env.Ctx, jobs[0].ID); !errors.Is(err, engine.ErrJobNotPending) {
		t.Fatalf("second copy err %v, want ErrJobNotPending", err)
	}
	if _, err := env.Engine.Copy(env.Ctx, "no-such-job"); !errors.Is(err, engine.ErrJobNotFound) {
		t.Fatalf("missing job err %v, want ErrJobNotFound", err)
	}
}

func TestRunDrivesIntentToComplete(t *testing.T) {
	env := newTestEnv(t)
	src, srcRoot := env.addLocation(t, "src")
	dst, dstRoot := env.addLocation(t, "dst")
	writeFile(t, filepath.Join(srcRoot, "a.bin"), []byte("hello world"))
	writeFile(t, filepath.Join(srcRoot, "sub", "b.bin"), []byte("more"))

	in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{})
	if _, err := env.Engine.Scan(env.Ctx, in.ID); err != nil {
		t.Fatal(err)
	}
	result, err := env.Engine.Run(env.Ctx, in.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Completed != 2 || result.Failed != 0 || result.NeedsReview != 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	got, _ := env.Engine.GetIntent(env.Ctx, in.ID)
	if got.Status != domain.IntentComplete {
		t.Fatalf("intent status %s, want complete", got.Status)
	}
	if got.CompletedFiles != 2 || got.CompletedBytes != 15 {
		t.Fatalf("intent progress files=%d bytes=%d, want 2/15", got.CompletedFiles, got.CompletedBytes)
	}
	if _, err := os.Stat(filepath.Join(dstRoot, "sub", "b.bin")); err != nil {
		t.Fatalf("nested dest missing: %v", err)
	}
}

func TestRunEscalatesAndFinalizesNeedsReview(t *testing.T) {
	env := newTestEnv(t)
	src, srcRoot := env.addLocation(t, "src")
	dst, _ := env.addLocation(t, "dst")
	keep := filepath.Join(srcRoot, "keep.txt")
	gone := filepath.Join(srcRoot, "gone.txt")
	writeFile(t, keep, []byte("kept"))
	writeFile(t, gone, []byte("lost"))

	in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{})
	if _, err := env.Engine.Scan(env.Ctx, in.ID); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}

	result, err := env.Engine.Run(env.Ctx, in.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Completed != 1 || result.NeedsReview != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	got, _ := env.Engine.GetIntent(env.Ctx, in.ID)
	if got.Status != domain.IntentNeedsReview {
		t.Fatalf("intent status %s, want needs_review", got.Status)
	}
	items, _ := env.Engine.ListOpenReviews(env.Ctx, in.ID)
	if len(items) != 1 {
		t.Fatalf("open reviews %d, want 1", len(items))
	}
}

func TestRunRecoversOrphanedJobs(t *testing.T) {
	env := newTestEnv(t)
	src, srcRoot := env.addLocation(t, "src")
	dst, _ := env.addLocation(t, "dst")
	writeFile(t, filepath.Join(srcRoot, "f.txt"), []byte("payload"))

	in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{})
	if _, err := env.Engine.Scan(env.Ctx, in.ID); err != nil {
		t.Fatal(err)
	}
	jobs, _ := env.Engine.Repo.ListJobs(env.Ctx, in.ID, "")

	// Simulate a crash mid-copy: job claimed, process died.
	if err := env.Engine.Repo.ClaimJob(env.Ctx, jobs[0].ID, "2026-01-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.UpdateJobProgress(env.Ctx, jobs[0].ID, 3); err != nil {
		t.Fatal(err)
	}

	result, err := env.Engine.Run(env.Ctx, in.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Completed != 1 {
		t.Fatalf("completed %d, want 1", result.Completed)
	}
	job, _ := env.Engine.Repo.GetJob(env.Ctx, jobs[0].ID)
	if job.Status != domain.JobComplete {
		t.Fatalf("job status %s, want complete", job.Status)
	}
}

func TestRunIsIdempotentWhenNothingPending(t *testing.T) {
	env := newTestEnv(t)
	src, srcRoot := env.addLocation(t, "src")
	dst, _ := env.addLocation(t, "dst")
	writeFile(t, filepath.Join(srcRoot, "f"), []byte("once"))

	in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{})
	if _, err := env.Engine.Scan(env.Ctx, in.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Run(env.Ctx, in.ID); err != nil {
		t.Fatal(err)
	}
	result, err := env.Engine.Run(env.Ctx, in.ID)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Completed != 1 {
		t.Fatalf("completed %d, want 1 (no double work)", result.Completed)
	}
}

func TestResolveReviewPaths(t *testing.T) {
	env := newTestEnv(t)
	src, srcRoot := env.addLocation(t, "src")
	dst, _ := env.addLocation(t, "dst")
	path := filepath.Join(srcRoot, "file.txt")
	writeFile(t, path, []byte("content"))

	makeReview := func(t *testing.T) (domain.TransferJob, domain.ReviewItem) {
		t.Helper()
		in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{})
		writeFile(t, path, []byte("content"))
		if _, err := env.Engine.Scan(env.Ctx, in.ID); err != nil {
			t.Fatal(err)
		}
		if err := os.Remove(path); err != nil {
			t.Fatal(err)
		}
		if _, err := env.Engine.Run(env.Ctx, in.ID); err != nil {
			t.Fatal(err)
		}
		items, _ := env.Engine.ListOpenReviews(env.Ctx, in.ID)
		if len(items) != 1 {
			t.Fatalf("open reviews %d, want 1", len(items))
		}
		job, _ := env.Engine.Repo.GetJob(env.Ctx, items[0].JobID)
		return job, items[0]
	}

	t.Run("rescan requeues", func(t *testing.T) {
		_, item := makeReview(t)
		resolved, err := env.Engine.ResolveReview(env.Ctx, item.ID, domain.ResolutionRescan)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if resolved.Resolution == nil || *resolved.Resolution != domain.ResolutionRescan {
			t.Fatalf("resolution not recorded: %+v", resolved)
		}
		job, _ := env.Engine.Repo.GetJob(env.Ctx, item.JobID)
		if job.Status != domain.JobPending || job.Attempts != 0 {
			t.Fatalf("job %s attempts=%d, want pending/0", job.Status, job.Attempts)
		}
	})

	t.Run("skip marks job skipped", func(t *testing.T) {
		_, item := makeReview(t)
		if _, err := env.Engine.ResolveReview(env.Ctx, item.ID, domain.ResolutionSkip); err != nil {
			t.Fatalf("resolve: %v", err)
		}
		job, _ := env.Engine.Repo.GetJob(env.Ctx, item.JobID)
		if job.Status != domain.JobSkipped {
			t.Fatalf("job status %s, want skipped", job.Status)
		}
	})

	t.Run("option not offered", func(t *testing.T) {
		_, item := makeReview(t)
		// source_missing offers skip/rescan only.
		_, err := env.Engine.ResolveReview(env.Ctx, item.ID, domain.ResolutionAccept)
		if !errors.Is(err, engine.ErrResolutionNotOffered) {
			t.Fatalf("err %v, want ErrResolutionNotOffered", err)
		}
	})

	t.Run("already resolved", func(t *testing.T) {
		_, item := makeReview(t)
		if _, err := env.Engine.ResolveReview(env.Ctx, item.ID, domain.ResolutionSkip); err != nil {
			t.Fatal(err)
		}
		_, err := env.Engine.ResolveReview(env.Ctx, item.ID, domain.ResolutionSkip)
		if !errors.Is(err, engine.ErrReviewAlreadyResolved) {
			t.Fatalf("err %v, want ErrReviewAlreadyResolved", err)
		}
	})
}

func TestEventsLoggedAcrossLifecycle(t *testing.T) {
	env := newTestEnv(t)
	src, srcRoot := env.addLocation(t, "src")
	dst, _ := env.addLocation(t, "dst")
	writeFile(t, filepath.Join(srcRoot, "f"), []byte("evt"))

	in := env.addIntent(t, src.ID, []string{dst.ID}, engine.CreateIntentOptions{})
	if _, err := env.Engine.Scan(env.Ctx, in.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Run(env.Ctx, in.ID); err != nil {
		t.Fatal(err)
	}

	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, in.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, evt := range events {
		seen[evt.Type] = true
	}
	for _, want := range []string{"intent.created", "scan.completed", "job.completed", "intent.finalized"} {
		if !seen[want] {
			t.Fatalf("missing event %s in %v", want, seen)
		}
	}
}
