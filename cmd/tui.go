package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/shared"
	"github.com/desertthunder/a2s/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the live dashboard. Files given as arguments are submitted first: one file as a
// single task, several as a batch.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/a2s-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	store, closeStore := r.resultStore()
	defer closeStore()

	coord := r.newCoordinator(ctx, store)
	coord.Start(ctx)
	defer coord.Stop()

	if err := coord.CheckAPI(ctx); err != nil {
		r.logger.Warn("transcription API unavailable", "err", err)
	}

	if len(paths) > 0 {
		uploads, closeAll, err := openUploads(paths)
		if err != nil {
			return err
		}
		defer closeAll()

		if len(uploads) == 1 {
			opts := r.uploadOptions(cmd)
			if err := opts.Validate(); err != nil {
				return err
			}
			if _, err := coord.SubmitSingle(ctx, uploads[0], opts); err != nil {
				return fmt.Errorf("failed to submit %s: %w", uploads[0].Name, err)
			}
		} else if _, err := coord.SubmitBatch(ctx, uploads, r.batchOptions(cmd)); err != nil {
			return fmt.Errorf("failed to submit batch: %w", err)
		}
	}

	for _, id := range cmd.StringSlice("task") {
		coord.TrackTask(id, "", id, "")
	}
	for _, id := range cmd.StringSlice("batch") {
		coord.TrackBatch(models.Batch{BatchID: id, OverallStatus: models.BatchProcessing})
	}

	if err := ui.Run(ctx, coord); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
