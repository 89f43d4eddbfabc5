// package models defines the data model for the transcription client
package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/a2s/internal/shared"
)

// Model defines the base interface for all persistent models in the result history.
// Implementations include [Transcription] and [BatchRecord].
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Delete(id string) error                    // Delete soft-deletes a model by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Transcription is a persisted successful task result.
type Transcription struct {
	RecordID         string
	Sequence         int
	TaskID           string
	FileID           string
	OriginalFilename string
	Model            string
	Language         string
	OutputFormat     string
	TaskType         string
	FullText         string
	Files            []FileArtifact
	TotalTime        float64
	Created          time.Time
}

func (t *Transcription) ID() string           { return t.RecordID }
func (t *Transcription) CreatedAt() time.Time { return t.Created }

func (t *Transcription) Validate() error {
	if t.TaskID == "" {
		return fmt.Errorf("%w: missing task_id", shared.ErrValidation)
	}
	if t.FileID == "" {
		return fmt.Errorf("%w: missing file_id", shared.ErrValidation)
	}
	return nil
}

// NewTranscription builds a history record from a completed task.
func NewTranscription(task Task) *Transcription {
	tr := &Transcription{
		TaskID:           task.TaskID,
		FileID:           task.FileID,
		OriginalFilename: task.Filename,
		Model:            task.Model,
	}
	if r := task.Result; r != nil {
		if r.FileID != "" {
			tr.FileID = r.FileID
		}
		if r.OriginalFilename != "" {
			tr.OriginalFilename = r.OriginalFilename
		}
		if r.Params.Model != "" {
			tr.Model = r.Params.Model
		}
		tr.Language = r.Params.Language
		tr.OutputFormat = r.Params.OutputFormat
		tr.TaskType = r.Params.TaskType
		tr.FullText = r.FullText
		tr.Files = append([]FileArtifact(nil), r.Files...)
		tr.TotalTime = r.Timing.TotalTime
	}
	return tr
}

// BatchRecord is a persisted batch result summary.
type BatchRecord struct {
	RecordID            string
	Sequence            int
	BatchID             string
	TotalFiles          int
	SuccessfulFiles     int
	FailedFiles         int
	TotalProcessingTime float64
	Errors              []BatchFileError
	Created             time.Time
}

func (b *BatchRecord) ID() string           { return b.RecordID }
func (b *BatchRecord) CreatedAt() time.Time { return b.Created }

func (b *BatchRecord) Validate() error {
	if b.BatchID == "" {
		return fmt.Errorf("%w: missing batch_id", shared.ErrValidation)
	}
	if b.SuccessfulFiles+b.FailedFiles > b.TotalFiles {
		return fmt.Errorf("%w: %d successful + %d failed exceeds %d files", shared.ErrValidation, b.SuccessfulFiles, b.FailedFiles, b.TotalFiles)
	}
	return nil
}

// NewBatchRecord builds a history record from a fetched summary.
func NewBatchRecord(s BatchResultSummary) *BatchRecord {
	return &BatchRecord{
		BatchID:             s.BatchID,
		TotalFiles:          s.TotalFiles,
		SuccessfulFiles:     s.SuccessfulFiles,
		FailedFiles:         s.FailedFiles,
		TotalProcessingTime: s.TotalProcessingTime,
		Errors:              append([]BatchFileError(nil), s.Errors...),
	}
}
