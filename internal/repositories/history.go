package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/shared"
)

// History persists completed work for later listing. It satisfies the coordinator's result store.
type History struct {
	Transcriptions *TranscriptionRepository
	Batches        *BatchSummaryRepository
}

// NewHistory wraps both history repositories around db.
func NewHistory(db *sql.DB) *History {
	return &History{
		Transcriptions: NewTranscriptionRepository(db),
		Batches:        NewBatchSummaryRepository(db),
	}
}

// SaveTranscription records a successful task once. Tasks without a result are skipped.
func (h *History) SaveTranscription(task models.Task) error {
	if task.Status != models.TaskSuccess || task.Result == nil {
		return nil
	}

	if _, err := h.Transcriptions.GetByTaskID(task.TaskID); err == nil {
		return nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	if err := h.Transcriptions.Create(models.NewTranscription(task)); err != nil {
		return fmt.Errorf("failed to save transcription %s: %w", task.TaskID, err)
	}
	return nil
}

// SaveBatchSummary records a batch summary once.
func (h *History) SaveBatchSummary(summary models.BatchResultSummary) error {
	if _, err := h.Batches.GetByBatchID(summary.BatchID); err == nil {
		return nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	if err := h.Batches.Create(models.NewBatchRecord(summary)); err != nil {
		return fmt.Errorf("failed to save batch summary %s: %w", summary.BatchID, err)
	}
	return nil
}

// Recent returns up to limit transcriptions, newest first.
func (h *History) Recent(limit int) ([]*models.Transcription, error) {
	return h.Transcriptions.List(map[string]any{"limit": limit})
}

// RecentBatches returns up to limit batch summaries, newest first.
func (h *History) RecentBatches(limit int) ([]*models.BatchRecord, error) {
	return h.Batches.List(map[string]any{"limit": limit})
}
