package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/a2s/internal/formatter"
	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/services"
	"github.com/desertthunder/a2s/internal/shared"
	"github.com/desertthunder/a2s/internal/tasks"
	"github.com/urfave/cli/v3"
)

// openUploads opens every path for reading. The returned func closes all of them.
func openUploads(paths []string) ([]services.Upload, func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	uploads := make([]services.Upload, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		files = append(files, f)
		uploads = append(uploads, services.Upload{Name: filepath.Base(p), Content: f})
	}
	return uploads, closeAll, nil
}

// uploadOptions merges the upload flags over the [upload] config section.
func (r *Runner) uploadOptions(cmd *cli.Command) services.UploadOptions {
	opts := services.UploadOptions{
		Model:        r.config.Upload.Model,
		Language:     r.config.Upload.Language,
		OutputFormat: r.config.Upload.OutputFormat,
		Task:         r.config.Upload.Task,
	}
	if cmd.IsSet("model") {
		opts.Model = cmd.String("model")
	}
	if cmd.IsSet("language") {
		opts.Language = cmd.String("language")
	}
	if cmd.IsSet("output-format") {
		opts.OutputFormat = cmd.String("output-format")
	}
	if cmd.IsSet("task") {
		opts.Task = cmd.String("task")
	}
	return opts
}

func (r *Runner) batchOptions(cmd *cli.Command) services.BatchOptions {
	opts := services.BatchOptions{
		UploadOptions:   r.uploadOptions(cmd),
		ConcurrentLimit: r.config.Upload.ConcurrentLimit,
	}
	if cmd.IsSet("concurrent-limit") {
		opts.ConcurrentLimit = cmd.Int("concurrent-limit")
	}
	return opts
}

// Submit uploads one file and, with --wait, blocks until its transcript is ready.
func (r *Runner) Submit(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: file is required", shared.ErrMissingArgument)
	}

	opts := r.uploadOptions(cmd)
	if err := opts.Validate(); err != nil {
		return err
	}

	uploads, closeAll, err := openUploads([]string{path})
	if err != nil {
		return err
	}
	defer closeAll()

	gw := r.gateway(ctx)
	resp, err := gw.SubmitSingle(ctx, uploads[0], opts)
	if err != nil {
		return err
	}

	r.logger.Info("task submitted", "task_id", resp.TaskID, "file_id", resp.FileID, "model", resp.ModelUsed)
	r.writePlain("✓ Uploaded %s\n", uploads[0].Name)
	r.writePlain("Task ID: %s\n", resp.TaskID)
	r.writePlain("File ID: %s\n", resp.FileID)
	r.writePlain("Model:   %s (estimated %s)\n", resp.ModelUsed, formatter.FormatDuration(resp.EstimatedTime))

	if !cmd.Bool("wait") && !cmd.Bool("download") {
		return nil
	}

	prog, stop := r.progress()
	result, err := tasks.WaitForTask(ctx, gw, resp.TaskID, r.waitOpts(prog))
	stop()
	if err != nil {
		return err
	}

	r.saveTranscription(models.Task{
		TaskID:   resp.TaskID,
		FileID:   resp.FileID,
		Filename: uploads[0].Name,
		Model:    resp.ModelUsed,
		Status:   models.TaskSuccess,
		Result:   result,
	})

	if format := cmd.String("export"); format != "" {
		written, err := formatter.WriteTranscriptExport(result, format, cmd.String("export-path"))
		if err != nil {
			return err
		}
		r.writePlainln("✓ Transcript written to %s", written)
	} else {
		transcript, err := formatter.ExportTranscriptToText(result)
		if err != nil {
			return err
		}
		r.writePlain("\n%s", transcript)
	}

	if cmd.Bool("download") {
		return r.downloadResults(ctx, []models.TaskResult{*result}, r.downloadOpts(cmd))
	}
	return nil
}

// Batch uploads the given files as one batch and, with --wait, reports its summary.
func (r *Runner) Batch(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("%w: at least one file is required", shared.ErrValidation)
	}
	if len(paths) > services.MaxBatchFiles {
		return fmt.Errorf("%w: batch accepts at most %d files, got %d", shared.ErrValidation, services.MaxBatchFiles, len(paths))
	}

	opts := r.batchOptions(cmd)
	if err := opts.Validate(); err != nil {
		return err
	}

	uploads, closeAll, err := openUploads(paths)
	if err != nil {
		return err
	}
	defer closeAll()

	gw := r.gateway(ctx)
	resp, err := gw.SubmitBatch(ctx, uploads, opts)
	if err != nil {
		return err
	}

	r.logger.Info("batch submitted", "batch_id", resp.BatchID, "files", resp.TotalFiles, "concurrent_limit", opts.Limit())
	r.writePlain("✓ Uploaded %d files\n", resp.TotalFiles)
	r.writePlain("Batch ID: %s\n", resp.BatchID)
	r.writePlain("Model:    %s (estimated %s)\n", resp.ModelUsed, formatter.FormatDuration(resp.EstimatedTotalTime))
	for _, info := range resp.Tasks {
		r.writePlain("  - %s  task %s\n", info.Filename, info.TaskID)
	}

	if !cmd.Bool("wait") && !cmd.Bool("download") {
		return nil
	}

	prog, stop := r.progress()
	summary, err := tasks.WaitForBatch(ctx, gw, resp.BatchID, r.waitOpts(prog))
	stop()
	if err != nil {
		if errors.Is(err, shared.ErrResultFetch) {
			r.logger.Warn("batch finished but its summary is unavailable", "batch_id", resp.BatchID)
			r.writePlainln("Run 'a2s batch-result %s' to retry.", resp.BatchID)
		}
		return err
	}

	r.saveBatchSummary(*summary)
	r.writePlain("\n")
	if err := r.reportSummary(summary, cmd.String("manifest"), ""); err != nil {
		return err
	}

	if cmd.Bool("download") {
		return r.downloadResults(ctx, summary.Results, r.downloadOpts(cmd))
	}
	return nil
}

func (r *Runner) saveTranscription(task models.Task) {
	history, closeFn, err := r.openHistory()
	if err != nil {
		r.logger.Warn("transcription not saved", "err", err)
		return
	}
	defer closeFn()

	if err := history.SaveTranscription(task); err != nil {
		r.logger.Warn("transcription not saved", "task_id", task.TaskID, "err", err)
	}
}
