package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/shared"
)

const (
	DefaultWaitTimeout  = 300 * time.Second
	DefaultWaitInterval = 3 * time.Second
)

// WaitOpts bounds a blocking wait.
type WaitOpts struct {
	MaxWait  time.Duration        // Default: 300s
	Interval time.Duration        // Default: 3s
	Progress chan<- ProgressUpdate // Optional, non-blocking
}

func (o WaitOpts) withDefaults() WaitOpts {
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultWaitTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultWaitInterval
	}
	return o
}

// WaitForTask polls a task until SUCCESS, FAILURE or the deadline.
//
// Transient poll errors are retried until the deadline. FAILURE ends the wait immediately
// with [shared.ErrTaskFailure]; the deadline yields [shared.ErrTimeout].
func WaitForTask(ctx context.Context, gw TaskStatusGetter, taskID string, opts WaitOpts) (*models.TaskResult, error) {
	opts = opts.withDefaults()

	var result *models.TaskResult
	err := pollUntil(ctx, opts, func(ctx context.Context, step int) (bool, error) {
		status, err := gw.GetTaskStatus(ctx, taskID)
		if err != nil {
			sendProgress(opts.Progress, pollUpdate(step, fmt.Sprintf("status check failed, retrying: %v", err), nil))
			return false, nil
		}

		switch status.State {
		case models.TaskSuccess:
			r, err := status.TaskResult()
			if err != nil {
				return false, nil
			}
			result = r
			return true, nil
		case models.TaskFailure:
			return true, fmt.Errorf("%w: task %s: %s", shared.ErrTaskFailure, taskID, status.FailureMessage())
		default:
			sendProgress(opts.Progress, pollUpdate(step, fmt.Sprintf("%s: %s", status.State, status.ProgressText()), *status))
			return false, nil
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WaitForBatch polls a batch until COMPLETED or FAILED and returns its summary.
//
// FAILED ends the wait with [shared.ErrBatchFailure]. A summary fetch failure after COMPLETED
// is returned as is (it matches [shared.ErrResultFetch]) and is not retried.
func WaitForBatch(ctx context.Context, gw BatchStatusGetter, batchID string, opts WaitOpts) (*models.BatchResultSummary, error) {
	opts = opts.withDefaults()

	var summary *models.BatchResultSummary
	err := pollUntil(ctx, opts, func(ctx context.Context, step int) (bool, error) {
		batch, err := gw.GetBatchStatus(ctx, batchID)
		if err != nil {
			sendProgress(opts.Progress, pollUpdate(step, fmt.Sprintf("batch status failed, retrying: %v", err), nil))
			return false, nil
		}

		switch batch.OverallStatus {
		case models.BatchCompleted:
			sendProgress(opts.Progress, ProgressUpdate{Phase: Summarizing, Step: step, Message: "Fetching batch summary..."})
			s, err := gw.GetBatchResultSummary(ctx, batchID)
			if err != nil {
				return true, err
			}
			summary = s
			return true, nil
		case models.BatchFailed:
			return true, fmt.Errorf("%w: batch %s: %d of %d files failed", shared.ErrBatchFailure, batchID, batch.FailedFiles, batch.TotalFiles)
		default:
			msg := fmt.Sprintf("%s: %d/%d done (%.0f%%)", batch.OverallStatus, batch.CompletedFiles+batch.FailedFiles, batch.TotalFiles, batch.ProgressPercentage)
			sendProgress(opts.Progress, pollUpdate(step, msg, batch.Clone()))
			return false, nil
		}
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// pollUntil calls check immediately and then every interval until it reports done or the deadline passes.
func pollUntil(ctx context.Context, opts WaitOpts, check func(ctx context.Context, step int) (bool, error)) error {
	waitCtx, cancel := context.WithTimeout(ctx, opts.MaxWait)
	defer cancel()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for step := 1; ; step++ {
		done, err := check(waitCtx, step)
		if done {
			return err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: gave up after %v", shared.ErrTimeout, opts.MaxWait)
			}
			return waitCtx.Err()
		case <-ticker.C:
		}
	}
}
