package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/a2s/internal/models"
)

// UpdateKind classifies an [Update] emitted by the [Coordinator].
type UpdateKind int

const (
	TaskSubmitted UpdateKind = iota
	TaskProgressed
	TaskCompleted
	TaskFailed
	BatchSubmitted
	BatchProgressed
	BatchCompleted
	BatchFailed
	BatchUnreported
	NotificationPosted
	APIChecked
)

func (k UpdateKind) String() string {
	switch k {
	case TaskSubmitted:
		return "task_submitted"
	case TaskProgressed:
		return "task_progress"
	case TaskCompleted:
		return "task_completed"
	case TaskFailed:
		return "task_failed"
	case BatchSubmitted:
		return "batch_submitted"
	case BatchProgressed:
		return "batch_progress"
	case BatchCompleted:
		return "batch_completed"
	case BatchFailed:
		return "batch_failed"
	case BatchUnreported:
		return "batch_unreported"
	case NotificationPosted:
		return "notification"
	case APIChecked:
		return "api_checked"
	default:
		return ""
	}
}

func (k UpdateKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Update is an immutable state change event. Pointer fields are private copies.
type Update struct {
	Kind         UpdateKind                 `json:"kind"`
	TaskID       string                     `json:"task_id,omitempty"`
	BatchID      string                     `json:"batch_id,omitempty"`
	Message      string                     `json:"message,omitempty"`
	Task         *models.Task               `json:"task,omitempty"`
	Batch        *models.Batch              `json:"batch,omitempty"`
	Summary      *models.BatchResultSummary `json:"summary,omitempty"`
	Notification *models.Notification       `json:"notification,omitempty"`
	At           time.Time                  `json:"at"`
}

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Polling Phase = iota
	Summarizing
	Downloading
)

func (p Phase) String() string {
	switch p {
	case Polling:
		return "poll"
	case Summarizing:
		return "summarize"
	case Downloading:
		return "download"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func taskUpdate(kind UpdateKind, task models.Task) Update {
	t := task.Clone()
	return Update{Kind: kind, TaskID: t.TaskID, Task: &t, Message: task.ProgressMessage, At: time.Now()}
}

func batchUpdate(kind UpdateKind, batch models.Batch) Update {
	b := batch.Clone()
	return Update{
		Kind:    kind,
		BatchID: b.BatchID,
		Batch:   &b,
		Message: fmt.Sprintf("%d/%d files done, %d failed", b.CompletedFiles+b.FailedFiles, b.TotalFiles, b.FailedFiles),
		At:      time.Now(),
	}
}

func pollUpdate(step int, message string, data any) ProgressUpdate {
	return ProgressUpdate{Phase: Polling, Step: step, Message: message, Data: data}
}

func downloadingUpdate(step, total int, a models.ArtifactDownload) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Downloading,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Downloading: %s...", step, total, a.Filename),
	}
}

func downloadCompletedUpdate(step, total int, a models.ArtifactDownload) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Downloading,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d bytes)", step, total, a.Filename, a.Bytes),
		Data:    a,
	}
}

func downloadFailedUpdate(step, total int, a models.ArtifactDownload) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Downloading,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, a.Filename, a.Error),
		Data:    a,
	}
}
