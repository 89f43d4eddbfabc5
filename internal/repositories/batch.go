package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/shared"
)

const batchColumns = `id, sequence, batch_id, total_files, successful_files, failed_files, total_processing_time, errors, created_at`

// BatchSummaryRepository implements models.Repository[*models.BatchRecord] for batch result summaries.
type BatchSummaryRepository struct {
	db *sql.DB
}

// NewBatchSummaryRepository creates a new BatchSummaryRepository with the given database connection
func NewBatchSummaryRepository(db *sql.DB) *BatchSummaryRepository {
	return &BatchSummaryRepository{db: db}
}

// Create inserts a new batch record with generated ID and sequence
func (r *BatchSummaryRepository) Create(b *models.BatchRecord) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	errs, err := encodeJSON(b.Errors)
	if err != nil {
		return err
	}

	sequence, err := NextSequence(r.db, "batch_summaries")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	created := time.Now().UTC()

	query := `
		INSERT INTO batch_summaries (` + batchColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, id, sequence, b.BatchID, b.TotalFiles, b.SuccessfulFiles, b.FailedFiles, b.TotalProcessingTime, errs, created)
	if err != nil {
		return fmt.Errorf("failed to insert batch summary: %w", err)
	}

	b.RecordID, b.Sequence, b.Created = id, sequence, created
	return nil
}

// Get retrieves a batch record by record ID, excluding soft-deleted rows
func (r *BatchSummaryRepository) Get(id string) (*models.BatchRecord, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_summaries WHERE id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, id))
}

// GetByBatchID retrieves the summary recorded for a batch
func (r *BatchSummaryRepository) GetByBatchID(batchID string) (*models.BatchRecord, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_summaries WHERE batch_id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, batchID))
}

// Delete soft-deletes a batch record by record ID
func (r *BatchSummaryRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE batch_summaries SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete batch summary: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: batch summary %s", shared.ErrNotFound, id)
	}

	return nil
}

// List retrieves batch records newest first. Supported criteria: with_errors (bool), limit.
func (r *BatchSummaryRepository) List(criteria map[string]any) ([]*models.BatchRecord, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_summaries WHERE deleted_at IS NULL`

	if withErrors, ok := criteria["with_errors"].(bool); ok && withErrors {
		query += " AND failed_files > 0"
	}

	query += " ORDER BY sequence DESC" + limitClause(criteria)

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch summaries: %w", err)
	}
	defer rows.Close()

	var out []*models.BatchRecord
	for rows.Next() {
		b, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return out, nil
}

func (r *BatchSummaryRepository) scan(row scanner) (*models.BatchRecord, error) {
	var (
		b    models.BatchRecord
		errs string
	)

	err := row.Scan(&b.RecordID, &b.Sequence, &b.BatchID, &b.TotalFiles, &b.SuccessfulFiles, &b.FailedFiles,
		&b.TotalProcessingTime, &errs, &b.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: batch summary not found", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan batch summary: %w", err)
	}

	if b.Errors, err = decodeJSON[models.BatchFileError](errs); err != nil {
		return nil, err
	}
	return &b, nil
}
