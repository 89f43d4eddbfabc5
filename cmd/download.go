package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/a2s/internal/formatter"
	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/shared"
	"github.com/desertthunder/a2s/internal/tasks"
	"github.com/urfave/cli/v3"
)

// downloadOpts merges download flags over the [download] config section.
// Summary formats passed to batch --manifest keep the JSON download manifest.
func (r *Runner) downloadOpts(cmd *cli.Command) tasks.DownloadOpts {
	opts := tasks.DownloadOpts{
		Format:     "json",
		OutputDir:  r.config.Download.OutputDir,
		NumWorkers: r.config.Download.Workers,
		RateLimit:  r.config.Download.RateLimit,
	}
	if dir := cmd.String("output-dir"); dir != "" {
		opts.OutputDir = dir
	}
	switch f := cmd.String("manifest"); f {
	case formatter.FormatJSON, formatter.FormatCSV:
		opts.Format = f
	}
	if cmd.IsSet("workers") {
		opts.NumWorkers = cmd.Int("workers")
	}
	if cmd.IsSet("rate-limit") {
		opts.RateLimit = cmd.Float("rate-limit")
	}
	return opts
}

// Download fetches the subtitle files of a successful task, or one named artifact.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.String("task-id")
	fileID := cmd.String("file-id")
	filename := cmd.String("filename")

	switch f := cmd.String("manifest"); f {
	case formatter.FormatJSON, formatter.FormatCSV:
	default:
		return fmt.Errorf("%w: unsupported manifest format %q", shared.ErrInvalidArgument, f)
	}

	var results []models.TaskResult
	switch {
	case taskID != "" && fileID != "":
		return fmt.Errorf("%w: cannot specify both --task-id and --file-id", shared.ErrInvalidArgument)
	case taskID != "":
		status, err := r.gateway(ctx).GetTaskStatus(ctx, taskID)
		if err != nil {
			return err
		}
		if status.State != models.TaskSuccess {
			return fmt.Errorf("%w: task %s is %s", shared.ErrInvalidArgument, taskID, status.State)
		}
		result, err := status.TaskResult()
		if err != nil {
			return err
		}
		results = append(results, *result)
	case fileID != "" && filename != "":
		results = append(results, models.TaskResult{
			FileID: fileID,
			Files:  []models.FileArtifact{{Filename: filename}},
		})
	default:
		return fmt.Errorf("%w: either --task-id or --file-id with --filename must be provided", shared.ErrMissingArgument)
	}

	return r.downloadResults(ctx, results, r.downloadOpts(cmd))
}

// downloadResults runs the worker pool and prints the manifest summary.
// It fails only when nothing could be downloaded.
func (r *Runner) downloadResults(ctx context.Context, results []models.TaskResult, opts tasks.DownloadOpts) error {
	prog, stop := r.progress()
	manifest, err := tasks.DownloadArtifacts(ctx, prog, r.gateway(ctx), results, opts)
	stop()
	if err != nil {
		return err
	}

	r.writePlainln("Downloaded %d/%d files to %s", manifest.Successful, manifest.Total, manifest.OutputDirectory)
	r.writePlain("Manifest: %s\n", manifest.ManifestPath)
	for _, a := range manifest.Results {
		if !a.Success {
			r.writePlain("  ✗ %s/%s: %s\n", a.FileID, a.Filename, a.Error)
		}
	}

	if manifest.Total > 0 && manifest.Successful == 0 {
		return fmt.Errorf("%w: all %d downloads failed", shared.ErrDownload, manifest.Total)
	}
	return nil
}
