package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/a2s/internal/shared"
)

// TaskState is the lifecycle state of a single transcription job.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskProgress
	TaskSuccess
	TaskFailure
)

// String returns the wire name of the state
func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "PENDING"
	case TaskProgress:
		return "PROGRESS"
	case TaskSuccess:
		return "SUCCESS"
	case TaskFailure:
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further polling is needed.
func (s TaskState) IsTerminal() bool {
	return s == TaskSuccess || s == TaskFailure
}

// ParseTaskState maps a worker state name to a [TaskState].
//
// The worker queue also reports STARTED, RECEIVED and RETRY; these collapse onto
// PROGRESS or PENDING. REVOKED is a failure.
func ParseTaskState(v string) (TaskState, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "PENDING", "RECEIVED", "RETRY":
		return TaskPending, nil
	case "PROGRESS", "STARTED":
		return TaskProgress, nil
	case "SUCCESS":
		return TaskSuccess, nil
	case "FAILURE", "REVOKED":
		return TaskFailure, nil
	default:
		return TaskPending, fmt.Errorf("%w: unknown task state %q", shared.ErrMalformedResponse, v)
	}
}

func (s TaskState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *TaskState) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: task state: %v", shared.ErrMalformedResponse, err)
	}
	parsed, err := ParseTaskState(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// BatchState is the aggregated state of a batch.
type BatchState int

const (
	BatchPending BatchState = iota
	BatchProcessing
	BatchCompleted
	BatchFailed
)

func (s BatchState) String() string {
	switch s {
	case BatchPending:
		return "PENDING"
	case BatchProcessing:
		return "PROCESSING"
	case BatchCompleted:
		return "COMPLETED"
	case BatchFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether every file of the batch reached a final sub-status.
func (s BatchState) IsTerminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// ParseBatchState maps an overall_status value to a [BatchState].
func ParseBatchState(v string) (BatchState, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "PENDING":
		return BatchPending, nil
	case "PROCESSING", "PROGRESS":
		return BatchProcessing, nil
	case "COMPLETED":
		return BatchCompleted, nil
	case "FAILED":
		return BatchFailed, nil
	default:
		return BatchPending, fmt.Errorf("%w: unknown batch state %q", shared.ErrMalformedResponse, v)
	}
}

func (s BatchState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *BatchState) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: batch state: %v", shared.ErrMalformedResponse, err)
	}
	parsed, err := ParseBatchState(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Severity classifies a [Notification].
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)
