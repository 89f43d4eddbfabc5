// package services defines the [Gateway] interface for the remote transcription service
//
// and its HTTP implementation, [Client].
package services

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/shared"
)

const (
	MaxBatchFiles          = 50
	DefaultConcurrentLimit = 3
	MinConcurrentLimit     = 1
	MaxConcurrentLimit     = 10
)

var (
	outputFormats = []string{"srt", "vtt", "both"}
	taskTypes     = []string{"transcribe", "translate"}
)

// Gateway is the set of operations the trackers and the coordinator need from the transcription service.
//
// Every call blocks until a response or failure. Implementations never retry.
type Gateway interface {
	// HealthCheck reports service readiness.
	HealthCheck(ctx context.Context) (*models.HealthStatus, error)

	// GetModels lists available transcription models and the server default.
	GetModels(ctx context.Context) (*models.ModelsResponse, error)

	// SubmitSingle uploads one media file and returns the created task.
	SubmitSingle(ctx context.Context, file Upload, opts UploadOptions) (*models.UploadResponse, error)

	// SubmitBatch uploads up to [MaxBatchFiles] files as one batch.
	SubmitBatch(ctx context.Context, files []Upload, opts BatchOptions) (*models.BatchUploadResponse, error)

	// GetTaskStatus returns the state of a task. FAILURE is a state, not an error.
	GetTaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error)

	// GetBatchStatus returns the aggregated snapshot of a batch.
	GetBatchStatus(ctx context.Context, batchID string) (*models.Batch, error)

	// GetBatchResultSummary returns the consolidated outcome of a completed batch.
	GetBatchResultSummary(ctx context.Context, batchID string) (*models.BatchResultSummary, error)

	// DownloadArtifact streams a generated subtitle file into w.
	DownloadArtifact(ctx context.Context, fileID, filename string, w io.Writer) (int64, error)
}

// Upload is a named media stream to submit.
type Upload struct {
	Name    string
	Content io.Reader
}

// UploadOptions are the optional transcription parameters. Empty fields use server defaults.
type UploadOptions struct {
	Model        string
	Language     string
	OutputFormat string // srt, vtt or both
	Task         string // transcribe or translate
}

// Validate rejects option values the service would refuse.
func (o UploadOptions) Validate() error {
	if o.OutputFormat != "" && !slices.Contains(outputFormats, o.OutputFormat) {
		return fmt.Errorf("%w: output_format must be one of %v, got %q", shared.ErrValidation, outputFormats, o.OutputFormat)
	}
	if o.Task != "" && !slices.Contains(taskTypes, o.Task) {
		return fmt.Errorf("%w: task must be one of %v, got %q", shared.ErrValidation, taskTypes, o.Task)
	}
	return nil
}

func (o UploadOptions) fields() map[string]string {
	f := map[string]string{}
	if o.Model != "" {
		f["model"] = o.Model
	}
	if o.Language != "" {
		f["language"] = o.Language
	}
	if o.OutputFormat != "" {
		f["output_format"] = o.OutputFormat
	}
	if o.Task != "" {
		f["task"] = o.Task
	}
	return f
}

// BatchOptions extends [UploadOptions] with the server-side concurrency limit.
//
// The limit is only transmitted; the client never enforces it.
type BatchOptions struct {
	UploadOptions
	ConcurrentLimit int
}

// Limit returns the effective concurrency limit, applying the default for zero.
func (o BatchOptions) Limit() int {
	if o.ConcurrentLimit == 0 {
		return DefaultConcurrentLimit
	}
	return o.ConcurrentLimit
}

func (o BatchOptions) Validate() error {
	if err := o.UploadOptions.Validate(); err != nil {
		return err
	}
	if l := o.Limit(); l < MinConcurrentLimit || l > MaxConcurrentLimit {
		return fmt.Errorf("%w: concurrent_limit must be between %d and %d, got %d",
			shared.ErrValidation, MinConcurrentLimit, MaxConcurrentLimit, l)
	}
	return nil
}

// ValidateBatch checks the file list of a batch submission.
func ValidateBatch(files []Upload) error {
	switch {
	case len(files) == 0:
		return fmt.Errorf("%w: batch requires at least one file", shared.ErrValidation)
	case len(files) > MaxBatchFiles:
		return fmt.Errorf("%w: batch accepts at most %d files, got %d", shared.ErrValidation, MaxBatchFiles, len(files))
	}
	for i, f := range files {
		if f.Name == "" || f.Content == nil {
			return fmt.Errorf("%w: file %d has no name or content", shared.ErrValidation, i)
		}
	}
	return nil
}
