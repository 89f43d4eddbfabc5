package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/shared"
)

const transcriptionColumns = `id, sequence, task_id, file_id, original_filename, model, language, output_format,
	task_type, full_text, artifacts, total_time, created_at`

// TranscriptionRepository implements models.Repository[*models.Transcription] for completed transcriptions.
type TranscriptionRepository struct {
	db *sql.DB
}

// NewTranscriptionRepository creates a new TranscriptionRepository with the given database connection
func NewTranscriptionRepository(db *sql.DB) *TranscriptionRepository {
	return &TranscriptionRepository{db: db}
}

// Create inserts a new transcription with generated ID and sequence
func (r *TranscriptionRepository) Create(t *models.Transcription) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	artifacts, err := encodeJSON(t.Files)
	if err != nil {
		return err
	}

	sequence, err := NextSequence(r.db, "transcriptions")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	created := time.Now().UTC()

	query := `
		INSERT INTO transcriptions (` + transcriptionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		t.TaskID,
		t.FileID,
		t.OriginalFilename,
		t.Model,
		t.Language,
		t.OutputFormat,
		t.TaskType,
		t.FullText,
		artifacts,
		t.TotalTime,
		created,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcription: %w", err)
	}

	t.RecordID, t.Sequence, t.Created = id, sequence, created
	return nil
}

// Get retrieves a transcription by record ID, excluding soft-deleted rows
func (r *TranscriptionRepository) Get(id string) (*models.Transcription, error) {
	query := `SELECT ` + transcriptionColumns + ` FROM transcriptions WHERE id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, id))
}

// GetByTaskID retrieves the transcription recorded for a task
func (r *TranscriptionRepository) GetByTaskID(taskID string) (*models.Transcription, error) {
	query := `SELECT ` + transcriptionColumns + ` FROM transcriptions WHERE task_id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, taskID))
}

// Delete soft-deletes a transcription by record ID
func (r *TranscriptionRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE transcriptions SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete transcription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: transcription %s", shared.ErrNotFound, id)
	}

	return nil
}

// List retrieves transcriptions newest first. Supported criteria: file_id, model, limit.
func (r *TranscriptionRepository) List(criteria map[string]any) ([]*models.Transcription, error) {
	query := `SELECT ` + transcriptionColumns + ` FROM transcriptions WHERE deleted_at IS NULL`
	args := []any{}

	if fileID, ok := criteria["file_id"].(string); ok && fileID != "" {
		query += " AND file_id = ?"
		args = append(args, fileID)
	}

	if model, ok := criteria["model"].(string); ok && model != "" {
		query += " AND model = ?"
		args = append(args, model)
	}

	query += " ORDER BY sequence DESC" + limitClause(criteria)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcriptions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transcription
	for rows.Next() {
		t, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *TranscriptionRepository) scan(row scanner) (*models.Transcription, error) {
	var (
		t         models.Transcription
		artifacts string
	)

	err := row.Scan(&t.RecordID, &t.Sequence, &t.TaskID, &t.FileID, &t.OriginalFilename, &t.Model, &t.Language,
		&t.OutputFormat, &t.TaskType, &t.FullText, &artifacts, &t.TotalTime, &t.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transcription not found", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transcription: %w", err)
	}

	if t.Files, err = decodeJSON[models.FileArtifact](artifacts); err != nil {
		return nil, err
	}
	return &t, nil
}
