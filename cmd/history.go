package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/desertthunder/a2s/internal/formatter"
	"github.com/urfave/cli/v3"
)

// History lists the most recent transcriptions or batch summaries, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	history, closeFn, err := r.openHistory()
	if err != nil {
		return err
	}
	defer closeFn()

	limit := cmd.Int("limit")

	if cmd.Bool("batches") {
		records, err := history.RecentBatches(limit)
		if err != nil {
			return fmt.Errorf("failed to list batch summaries: %w", err)
		}
		if cmd.Bool("json") {
			return r.writeJSON(records, true)
		}
		if len(records) == 0 {
			return r.writePlain("No batch summaries recorded\n")
		}

		t := newTable("#", "Batch ID", "Files", "Succeeded", "Failed", "Time", "Recorded")
		for _, b := range records {
			t.Row(
				strconv.Itoa(b.Sequence),
				b.BatchID,
				strconv.Itoa(b.TotalFiles),
				strconv.Itoa(b.SuccessfulFiles),
				strconv.Itoa(b.FailedFiles),
				formatter.FormatDuration(b.TotalProcessingTime),
				b.Created.Local().Format("2006-01-02 15:04"),
			)
		}
		return r.writePlain("%s\n", t.Render())
	}

	records, err := history.Recent(limit)
	if err != nil {
		return fmt.Errorf("failed to list transcriptions: %w", err)
	}
	if cmd.Bool("json") {
		return r.writeJSON(records, true)
	}
	if len(records) == 0 {
		return r.writePlain("No transcriptions recorded\n")
	}

	t := newTable("#", "Task ID", "File", "Model", "Language", "Files", "Time", "Recorded")
	for _, tr := range records {
		t.Row(
			strconv.Itoa(tr.Sequence),
			tr.TaskID,
			tr.OriginalFilename,
			tr.Model,
			tr.Language,
			strconv.Itoa(len(tr.Files)),
			formatter.FormatDuration(tr.TotalTime),
			tr.Created.Local().Format("2006-01-02 15:04"),
		)
	}
	return r.writePlain("%s\n", t.Render())
}
