package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/a2s/internal/formatter"
	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/tasks"
)

var (
	_ list.Item = resultItem{}
	_ list.Item = summaryItem{}
)

// resultItem wraps [models.TaskResult] to implement [list.Item].
type resultItem struct {
	result models.TaskResult
}

func (i resultItem) FilterValue() string { return i.result.OriginalFilename }
func (i resultItem) Title() string       { return i.result.OriginalFilename }
func (i resultItem) Description() string {
	desc := fmt.Sprintf("%s • %d chars", i.result.FileID, len(i.result.FullText))
	if i.result.Params.Model != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.result.Params.Model)
	}
	if i.result.Timing.TotalTime > 0 {
		desc = fmt.Sprintf("%s • %s", desc, formatter.FormatDuration(i.result.Timing.TotalTime))
	}
	return desc
}

// summaryItem wraps [models.BatchResultSummary] to implement [list.Item].
type summaryItem struct {
	summary models.BatchResultSummary
}

func (i summaryItem) FilterValue() string { return i.summary.BatchID }
func (i summaryItem) Title() string       { return "Batch " + i.summary.BatchID }
func (i summaryItem) Description() string {
	return fmt.Sprintf("%d succeeded • %d failed • %s",
		i.summary.SuccessfulFiles, i.summary.FailedFiles, formatter.FormatDuration(i.summary.TotalProcessingTime))
}

// resultItems lists batch summaries first, newest first, then single results.
func resultItems(state tasks.State) []list.Item {
	items := make([]list.Item, 0, len(state.CompletedBatches)+len(state.CompletedResults))
	for _, s := range state.CompletedBatches {
		items = append(items, summaryItem{summary: s})
	}
	for i := len(state.CompletedResults) - 1; i >= 0; i-- {
		items = append(items, resultItem{result: state.CompletedResults[i]})
	}
	return items
}
