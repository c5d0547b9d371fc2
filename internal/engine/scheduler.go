package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"ferry/internal/domain"
	"ferry/internal/events"
	"ferry/internal/repo"
)

// maxConcurrency bounds simultaneous copies per Run invocation. The
// permit pool is scoped to the call, not the process: concurrent runs
// for different intents each get their own budget.
const maxConcurrency = 4

// RunResult is the final per-status job tally for one intent.
type RunResult struct {
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	NeedsReview int64 `json:"needs_review"`
}

// Run drives all pending jobs for an intent to completion under the
// concurrency cap, recovers jobs orphaned by a prior crash, and
// finalizes the intent's status.
func (e Engine) Run(ctx context.Context, intentID string) (RunResult, error) {
	if _, err := e.Repo.GetIntent(ctx, intentID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return RunResult{}, &SchedulerError{Kind: SchedIntentNotFound, Msg: intentID}
		}
		return RunResult{}, &SchedulerError{Kind: SchedDatabaseError, Msg: "load intent", Err: err}
	}

	// Crash recovery: a job stuck in transferring is the only trace a
	// prior process left of incomplete work. Runs unconditionally.
	reset, err := e.Repo.ResetTransferringJobs(ctx, intentID)
	if err != nil {
		return RunResult{}, &SchedulerError{Kind: SchedDatabaseError, Msg: "recover transferring jobs", Err: err}
	}
	if reset > 0 {
		e.Log.Info().Str("intent", intentID).Int64("jobs", reset).Msg("recovered orphaned jobs")
	}

	sem := semaphore.NewWeighted(maxConcurrency)
	for {
		ids, err := e.Repo.PendingJobIDs(ctx, intentID)
		if err != nil {
			return RunResult{}, &SchedulerError{Kind: SchedDatabaseError, Msg: "query pending jobs", Err: err}
		}
		if len(ids) == 0 {
			break
		}

		var wg sync.WaitGroup
		for _, id := range ids {
			if err := sem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				return RunResult{}, fmt.Errorf("acquire permit: %w", err)
			}
			wg.Add(1)
			go func(jobID string) {
				defer wg.Done()
				defer sem.Release(1)
				defer func() {
					// A panicking copy must not take down the batch; the
					// job stays transferring and the next Run resets it.
					if r := recover(); r != nil {
						e.Log.Error().Str("job", jobID).Any("panic", r).Msg("copy task panicked")
					}
				}()
				if _, err := e.Copy(ctx, jobID); err != nil {
					if errors.Is(err, ErrJobNotPending) {
						// Lost the claim or resolved externally between
						// the query and the dispatch.
						return
					}
					e.Log.Debug().Err(err).Str("job", jobID).Msg("copy failed")
				}
			}(id)
		}
		// The whole batch is awaited before re-querying so retried jobs
		// are picked up by the next iteration, not re-dispatched mid-batch.
		wg.Wait()
	}

	counts, err := e.Repo.CountJobsByStatus(ctx, intentID)
	if err != nil {
		return RunResult{}, &SchedulerError{Kind: SchedDatabaseError, Msg: "count jobs", Err: err}
	}
	result := RunResult{
		Completed:   counts[domain.JobComplete],
		Failed:      counts[domain.JobFailed],
		NeedsReview: counts[domain.JobNeedsReview],
	}

	completedBytes, err := e.Repo.SumCompletedBytes(ctx, intentID)
	if err != nil {
		return RunResult{}, &SchedulerError{Kind: SchedDatabaseError, Msg: "sum completed bytes", Err: err}
	}

	status := domain.IntentComplete
	if result.NeedsReview > 0 {
		status = domain.IntentNeedsReview
	}
	if err := e.Repo.FinalizeIntent(ctx, intentID, status, result.Completed, completedBytes, e.timestamp()); err != nil {
		return RunResult{}, &SchedulerError{Kind: SchedDatabaseError, Msg: "finalize intent", Err: err}
	}
	e.appendEvent(ctx, "intent.finalized", intentID, "intent", intentID, events.EventPayload{
		"status":       string(status),
		"completed":    result.Completed,
		"needs_review": result.NeedsReview,
	})

	e.Log.Debug().Str("intent", intentID).Str("status", string(status)).
		Int64("completed", result.Completed).Int64("needs_review", result.NeedsReview).Msg("run finished")

	return result, nil
}
