package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/a2s/internal/shared"
)

// ModelInfo describes one transcription model offered by the service.
type ModelInfo struct {
	Name     string `json:"name"`
	Size     string `json:"size"`
	Speed    string `json:"speed"`
	Accuracy string `json:"accuracy"`
	UseCase  string `json:"use_case"`
}

// ModelsResponse is the model catalogue with the server default.
type ModelsResponse struct {
	Models       []ModelInfo `json:"models"`
	DefaultModel string      `json:"default_model"`
}

// Deployment describes where the service runs.
type Deployment struct {
	Mode   string `json:"mode"`
	Device string `json:"device"`
	Model  string `json:"model"`
}

// HealthStatus is the health endpoint payload.
type HealthStatus struct {
	Status     string      `json:"status"`
	Config     string      `json:"config,omitempty"`
	Redis      string      `json:"redis,omitempty"`
	Deployment *Deployment `json:"deployment,omitempty"`
	Version    string      `json:"version,omitempty"`
}

// Healthy reports whether the service declared itself usable.
func (h HealthStatus) Healthy() bool {
	switch strings.ToLower(h.Status) {
	case "healthy", "ok":
		return true
	default:
		return false
	}
}

// FileArtifact is one generated subtitle file.
type FileArtifact struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

type TranscriptionParams struct {
	Model        string `json:"model"`
	Language     string `json:"language"`
	OutputFormat string `json:"output_format"`
	TaskType     string `json:"task_type"`
}

type Timing struct {
	TotalTime          float64 `json:"total_time"`
	TotalTimeFormatted string  `json:"total_time_formatted"`
	TranscriptionTime  float64 `json:"transcription_time"`
}

// TaskResult is the payload of a successful job.
type TaskResult struct {
	Message          string              `json:"message,omitempty"`
	Status           string              `json:"status,omitempty"`
	OriginalFilename string              `json:"original_filename"`
	FileID           string              `json:"file_id"`
	Files            []FileArtifact      `json:"files"`
	FullText         string              `json:"full_text"`
	Params           TranscriptionParams `json:"transcription_params"`
	Timing           Timing              `json:"timing"`
}

// Clone returns a deep copy.
func (r *TaskResult) Clone() *TaskResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Files = append([]FileArtifact(nil), r.Files...)
	return &c
}

// TaskStatus is the raw status endpoint payload.
//
// While a job runs, Result holds the worker's progress meta rather than a [TaskResult].
type TaskStatus struct {
	State  TaskState       `json:"state"`
	Status string          `json:"status,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// ProgressText extracts the human-readable progress line.
//
// The nested result.progress string wins, then result.status, then the top-level status.
func (s TaskStatus) ProgressText() string {
	if len(s.Result) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(s.Result, &meta); err == nil {
			if p, ok := meta["progress"].(string); ok && p != "" {
				return p
			}
			if st, ok := meta["status"].(string); ok && st != "" {
				return st
			}
		}
	}
	return s.Status
}

// TaskResult decodes the result of a SUCCESS status.
func (s TaskStatus) TaskResult() (*TaskResult, error) {
	if len(s.Result) == 0 || string(s.Result) == "null" {
		return nil, fmt.Errorf("%w: %s status without result", shared.ErrMalformedResponse, s.State)
	}
	var r TaskResult
	if err := json.Unmarshal(s.Result, &r); err != nil {
		return nil, fmt.Errorf("%w: task result: %v", shared.ErrMalformedResponse, err)
	}
	return &r, nil
}

// FailureMessage returns the server's failure reason or a generic one.
func (s TaskStatus) FailureMessage() string {
	if msg := strings.TrimSpace(s.Status); msg != "" {
		return msg
	}
	return "unknown error"
}

// UploadResponse is the receipt for a single submission.
type UploadResponse struct {
	TaskID        string  `json:"task_id"`
	FileID        string  `json:"file_id"`
	Message       string  `json:"message"`
	ModelUsed     string  `json:"model_used"`
	EstimatedTime float64 `json:"estimated_time"`
}

func (u UploadResponse) Validate() error {
	if u.TaskID == "" || u.FileID == "" {
		return fmt.Errorf("%w: upload response missing task_id or file_id", shared.ErrMalformedResponse)
	}
	return nil
}

// BatchTaskInfo is the per-file sub-status of a batch.
type BatchTaskInfo struct {
	FileID        string  `json:"file_id"`
	Filename      string  `json:"filename"`
	TaskID        string  `json:"task_id"`
	Status        string  `json:"status"`
	Progress      float64 `json:"progress"`
	EstimatedTime float64 `json:"estimated_time,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// BatchUploadResponse is the receipt for a batch submission.
type BatchUploadResponse struct {
	BatchID            string          `json:"batch_id"`
	Message            string          `json:"message"`
	TotalFiles         int             `json:"total_files"`
	Tasks              []BatchTaskInfo `json:"tasks"`
	ModelUsed          string          `json:"model_used"`
	EstimatedTotalTime float64         `json:"estimated_total_time"`
}

func (b BatchUploadResponse) Validate() error {
	if b.BatchID == "" {
		return fmt.Errorf("%w: batch upload response missing batch_id", shared.ErrMalformedResponse)
	}
	if b.TotalFiles < 0 {
		return fmt.Errorf("%w: negative total_files", shared.ErrMalformedResponse)
	}
	return nil
}

// Batch is an aggregated batch snapshot.
type Batch struct {
	BatchID                 string          `json:"batch_id"`
	TotalFiles              int             `json:"total_files"`
	CompletedFiles          int             `json:"completed_files"`
	FailedFiles             int             `json:"failed_files"`
	ProgressPercentage      float64         `json:"progress_percentage"`
	OverallStatus           BatchState      `json:"overall_status"`
	Tasks                   []BatchTaskInfo `json:"tasks"`
	StartTime               string          `json:"start_time,omitempty"`
	EstimatedCompletionTime string          `json:"estimated_completion_time,omitempty"`
	ConcurrentLimit         int             `json:"concurrent_limit,omitempty"`
	ModelUsed               string          `json:"model_used,omitempty"`
}

// Validate enforces completed + failed <= total.
func (b Batch) Validate() error {
	if b.BatchID == "" {
		return fmt.Errorf("%w: batch status missing batch_id", shared.ErrMalformedResponse)
	}
	if b.CompletedFiles < 0 || b.FailedFiles < 0 || b.CompletedFiles+b.FailedFiles > b.TotalFiles {
		return fmt.Errorf("%w: batch %s reports %d completed + %d failed of %d files",
			shared.ErrMalformedResponse, b.BatchID, b.CompletedFiles, b.FailedFiles, b.TotalFiles)
	}
	return nil
}

// Clone returns a deep copy.
func (b Batch) Clone() Batch {
	b.Tasks = append([]BatchTaskInfo(nil), b.Tasks...)
	return b
}

// BatchFileError is one failed file of a batch.
type BatchFileError struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// BatchResultSummary is the consolidated outcome of a completed batch.
type BatchResultSummary struct {
	BatchID             string           `json:"batch_id"`
	TotalFiles          int              `json:"total_files"`
	SuccessfulFiles     int              `json:"successful_files"`
	FailedFiles         int              `json:"failed_files"`
	TotalProcessingTime float64          `json:"total_processing_time"`
	Results             []TaskResult     `json:"results"`
	Errors              []BatchFileError `json:"errors"`
}

func (s BatchResultSummary) Validate() error {
	if s.BatchID == "" {
		return fmt.Errorf("%w: batch result missing batch_id", shared.ErrMalformedResponse)
	}
	if s.SuccessfulFiles < 0 || s.FailedFiles < 0 || s.SuccessfulFiles+s.FailedFiles > s.TotalFiles {
		return fmt.Errorf("%w: batch %s summary reports %d successful + %d failed of %d files",
			shared.ErrMalformedResponse, s.BatchID, s.SuccessfulFiles, s.FailedFiles, s.TotalFiles)
	}
	return nil
}

// Clone returns a deep copy.
func (s BatchResultSummary) Clone() BatchResultSummary {
	results := make([]TaskResult, len(s.Results))
	for i := range s.Results {
		results[i] = *s.Results[i].Clone()
	}
	s.Results = results
	s.Errors = append([]BatchFileError(nil), s.Errors...)
	return s
}

// Task is one tracked transcription job.
type Task struct {
	TaskID          string      `json:"task_id"`
	FileID          string      `json:"file_id"`
	Filename        string      `json:"filename"`
	Model           string      `json:"model"`
	Status          TaskState   `json:"status"`
	ProgressMessage string      `json:"progress_message,omitempty"`
	Result          *TaskResult `json:"result,omitempty"`
	Error           string      `json:"error,omitempty"`
	SubmittedAt     time.Time   `json:"submitted_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Clone returns a deep copy.
func (t Task) Clone() Task {
	t.Result = t.Result.Clone()
	return t
}

// Notification is a user-visible message that expires after a TTL.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// ArtifactDownload is the outcome of fetching one subtitle file.
type ArtifactDownload struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Source   string `json:"source,omitempty"` // original media filename
	Path     string `json:"path,omitempty"`
	Bytes    int64  `json:"bytes"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// DownloadManifest summarises a bulk artifact download.
type DownloadManifest struct {
	Total           int                `json:"total"`
	Successful      int                `json:"successful"`
	Failed          int                `json:"failed"`
	OutputDirectory string             `json:"output_directory"`
	ManifestPath    string             `json:"manifest_path,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	Results         []ArtifactDownload `json:"results"`
}
