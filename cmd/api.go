package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/a2s/internal/formatter"
	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/shared"
	"github.com/urfave/cli/v3"
)

func newTable(headers ...string) *table.Table {
	return table.New().Border(lipgloss.NormalBorder()).Headers(headers...)
}

// Health prints the service health. An unhealthy status is returned as an error so scripts can test it.
func (r *Runner) Health(ctx context.Context, cmd *cli.Command) error {
	health, err := r.gateway(ctx).HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if cmd.Bool("json") {
		if err := r.writeJSON(health, true); err != nil {
			return err
		}
	} else {
		r.writePlainHeader("Audio2Sub API")
		r.writePlain("Status:     %s\n", health.Status)
		if health.Version != "" {
			r.writePlain("Version:    %s\n", health.Version)
		}
		if health.Redis != "" {
			r.writePlain("Redis:      %s\n", health.Redis)
		}
		if d := health.Deployment; d != nil {
			r.writePlain("Deployment: %s on %s (model %s)\n", d.Mode, d.Device, d.Model)
		}
	}

	if !health.Healthy() {
		return fmt.Errorf("%w: status %q", shared.ErrServiceUnavailable, health.Status)
	}
	return nil
}

// Models prints the model catalogue, marking the server default.
func (r *Runner) Models(ctx context.Context, cmd *cli.Command) error {
	catalogue, err := r.gateway(ctx).GetModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(catalogue, true)
	}

	t := newTable("Model", "Size", "Speed", "Accuracy", "Use case")
	for _, m := range catalogue.Models {
		name := m.Name
		if name == catalogue.DefaultModel {
			name += " *"
		}
		t.Row(name, m.Size, m.Speed, m.Accuracy, m.UseCase)
	}

	r.writePlain("%s\n", t.Render())
	return r.writePlain("* default model: %s\n", catalogue.DefaultModel)
}

// Status prints one status response for a task.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.StringArg("task_id")
	if taskID == "" {
		return fmt.Errorf("%w: task_id is required", shared.ErrMissingArgument)
	}

	status, err := r.gateway(ctx).GetTaskStatus(ctx, taskID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	r.writePlain("Task:  %s\n", taskID)
	r.writePlain("State: %s\n", status.State)

	switch status.State {
	case models.TaskSuccess:
		result, err := status.TaskResult()
		if err != nil {
			return err
		}
		r.writePlain("File:  %s (%s)\n", result.OriginalFilename, result.FileID)
		for _, f := range result.Files {
			r.writePlain("  - %s\n", f.Filename)
		}
	case models.TaskFailure:
		r.writePlain("Error: %s\n", status.FailureMessage())
	default:
		if text := status.ProgressText(); text != "" {
			r.writePlain("Info:  %s\n", text)
		}
	}
	return nil
}

// BatchStatus prints the aggregated counts and per-file sub-statuses of a batch.
func (r *Runner) BatchStatus(ctx context.Context, cmd *cli.Command) error {
	batchID := cmd.StringArg("batch_id")
	if batchID == "" {
		return fmt.Errorf("%w: batch_id is required", shared.ErrMissingArgument)
	}

	batch, err := r.gateway(ctx).GetBatchStatus(ctx, batchID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(batch, true)
	}

	r.writeBatch(*batch)
	return nil
}

func (r *Runner) writeBatch(batch models.Batch) {
	r.writePlain("Batch:    %s\n", batch.BatchID)
	r.writePlain("Status:   %s\n", batch.OverallStatus)
	r.writePlain("Progress: %d completed, %d failed of %d (%.0f%%)\n",
		batch.CompletedFiles, batch.FailedFiles, batch.TotalFiles, batch.ProgressPercentage)
	if batch.EstimatedCompletionTime != "" {
		r.writePlain("ETA:      %s\n", batch.EstimatedCompletionTime)
	}

	if len(batch.Tasks) == 0 {
		return
	}

	t := newTable("File ID", "Filename", "Status", "Progress", "Error")
	for _, info := range batch.Tasks {
		t.Row(info.FileID, info.Filename, strings.ToUpper(info.Status), fmt.Sprintf("%.0f%%", info.Progress), info.Error)
	}
	r.writePlain("%s\n", t.Render())
}

// BatchResult fetches the summary of a completed batch and prints or exports it.
func (r *Runner) BatchResult(ctx context.Context, cmd *cli.Command) error {
	batchID := cmd.StringArg("batch_id")
	if batchID == "" {
		return fmt.Errorf("%w: batch_id is required", shared.ErrMissingArgument)
	}

	summary, err := r.gateway(ctx).GetBatchResultSummary(ctx, batchID)
	if err != nil {
		return err
	}

	if cmd.Bool("save") {
		r.saveBatchSummary(*summary)
	}
	return r.reportSummary(summary, cmd.String("manifest"), cmd.String("path"))
}

// reportSummary writes a manifest when format is set and prints the Markdown report otherwise.
func (r *Runner) reportSummary(summary *models.BatchResultSummary, format, path string) error {
	if format != "" {
		written, err := formatter.WriteSummaryExport(summary, format, path)
		if err != nil {
			return err
		}
		r.logger.Info("batch manifest written", "path", written)
		return r.writePlain("✓ Summary written to %s\n", written)
	}

	report, err := formatter.ExportSummaryToMarkdown(summary)
	if err != nil {
		return err
	}
	return r.writePlain("%s", report)
}

func (r *Runner) saveBatchSummary(summary models.BatchResultSummary) {
	history, closeFn, err := r.openHistory()
	if err != nil {
		r.logger.Warn("batch summary not saved", "err", err)
		return
	}
	defer closeFn()

	if err := history.SaveBatchSummary(summary); err != nil {
		r.logger.Warn("batch summary not saved", "batch_id", summary.BatchID, "err", err)
	}
}
