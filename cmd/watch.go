package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/a2s/internal/formatter"
	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/server"
	"github.com/desertthunder/a2s/internal/shared"
	"github.com/desertthunder/a2s/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Watch tracks one existing task or batch through the coordinator and prints its updates until it finishes.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.String("task")
	batchID := cmd.String("batch")

	switch {
	case taskID != "" && batchID != "":
		return fmt.Errorf("%w: cannot specify both --task and --batch", shared.ErrInvalidArgument)
	case taskID == "" && batchID == "":
		return fmt.Errorf("%w: either --task or --batch must be provided", shared.ErrMissingArgument)
	}

	store, closeStore := r.resultStore()
	defer closeStore()

	coord := r.newCoordinator(ctx, store)
	updates, unsubscribe := coord.Subscribe(64)
	defer unsubscribe()

	coord.Start(ctx)
	defer coord.Stop()

	if taskID != "" {
		filename := cmd.String("filename")
		if filename == "" {
			filename = taskID
		}
		coord.TrackTask(taskID, cmd.String("file-id"), filename, "")
		coord.Tasks().Tick(ctx)
		r.writePlain("Watching task %s\n", taskID)
	} else {
		coord.TrackBatch(models.Batch{
			BatchID:       batchID,
			TotalFiles:    cmd.Int("total"),
			OverallStatus: models.BatchProcessing,
		})
		r.writePlain("Watching batch %s\n", batchID)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if done, err := r.printUpdate(u); done {
				return err
			}
		}
	}
}

// printUpdate renders one coordinator update. It reports true once the watched item is terminal.
func (r *Runner) printUpdate(u tasks.Update) (bool, error) {
	switch u.Kind {
	case tasks.TaskProgressed:
		r.writePlain("⏳ %s %s\n", u.Task.Status, u.Message)
	case tasks.TaskCompleted:
		transcript, err := formatter.ExportTranscriptToText(u.Task.Result)
		if err != nil {
			return true, err
		}
		r.writePlain("\n%s", transcript)
		return true, nil
	case tasks.TaskFailed:
		return true, fmt.Errorf("%w: task %s: %s", shared.ErrTaskFailure, u.TaskID, u.Task.Error)
	case tasks.BatchProgressed:
		r.writePlain("⏳ %s: %s\n", u.BatchID, u.Message)
	case tasks.BatchCompleted:
		r.writePlain("\n")
		return true, r.reportSummary(u.Summary, "", "")
	case tasks.BatchFailed:
		return true, fmt.Errorf("%w: batch %s", shared.ErrBatchFailure, u.BatchID)
	case tasks.BatchUnreported:
		r.writePlainln("Run 'a2s batch-result %s' to retry.", u.BatchID)
		return true, fmt.Errorf("%w: batch %s completed but its summary is unavailable", shared.ErrResultFetch, u.BatchID)
	case tasks.NotificationPosted:
		r.writePlain("• %s\n", u.Message)
	}
	return false, nil
}

// Serve runs the bridge server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.ServerAddr()
	}

	store, closeStore := r.resultStore()
	defer closeStore()

	coord := r.newCoordinator(ctx, store)
	coord.Start(ctx)
	defer coord.Stop()

	if err := coord.CheckAPI(ctx); err != nil {
		r.logger.Warn("transcription API unavailable, submissions are disabled until the next check", "err", err)
	}

	srv := server.NewServer(server.ServerOpts{
		Coordinator:    coord,
		Logger:         r.logger,
		Addr:           addr,
		AllowedOrigins: cmd.StringSlice("origin"),
	})
	return srv.ListenAndServe(ctx)
}
