package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/a2s/internal/models"
)

const DefaultTaskInterval = 5 * time.Second

// TaskStatusGetter is the slice of the gateway the [TaskTracker] needs.
type TaskStatusGetter interface {
	GetTaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error)
}

// TaskTrackerOpts configures a [TaskTracker].
type TaskTrackerOpts struct {
	Gateway    TaskStatusGetter
	Interval   time.Duration     // Tick interval (default: 5s)
	Logger     *log.Logger       // Defaults to [log.Default]
	Notifier   Notifier          // Optional; receives success/failure messages
	OnUpdate   func(models.Task) // Called with a snapshot after every applied poll
	OnComplete func(models.Task) // Called exactly once per task on SUCCESS or FAILURE
}

type trackedTask struct {
	task     models.Task
	inFlight bool
	done     bool
}

// TaskTracker polls independently submitted tasks until each reaches a terminal state.
//
// Every poll runs in its own goroutine. A task has at most one request in flight, so its
// responses apply in send order; responses for terminal, untracked or stopped tasks are dropped.
type TaskTracker struct {
	gw         TaskStatusGetter
	interval   time.Duration
	logger     *log.Logger
	notifier   Notifier
	onUpdate   func(models.Task)
	onComplete func(models.Task)

	mu      sync.Mutex
	tasks   map[string]*trackedTask
	order   []string
	running bool
	stopped bool
	cancel  context.CancelFunc

	loop  sync.WaitGroup
	polls sync.WaitGroup
}

// NewTaskTracker creates a tracker. Call [TaskTracker.Start] to begin ticking.
func NewTaskTracker(opts TaskTrackerOpts) *TaskTracker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultTaskInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &TaskTracker{
		gw:         opts.Gateway,
		interval:   opts.Interval,
		logger:     opts.Logger,
		notifier:   opts.Notifier,
		onUpdate:   opts.OnUpdate,
		onComplete: opts.OnComplete,
		tasks:      make(map[string]*trackedTask),
	}
}

// Track adds a task. It returns false for terminal tasks and ids already being tracked.
// Finished tasks are dropped from the tracker, so callers that must never re-poll an id keep
// their own record of finished ids.
func (t *TaskTracker) Track(task models.Task) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if task.Status.IsTerminal() {
		return false
	}
	if _, ok := t.tasks[task.TaskID]; ok {
		return false
	}

	t.tasks[task.TaskID] = &trackedTask{task: task.Clone()}
	t.order = append(t.order, task.TaskID)
	return true
}

// Untrack forgets a task; an in-flight poll for it is discarded on arrival.
func (t *TaskTracker) Untrack(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(taskID)
}

func (t *TaskTracker) removeLocked(taskID string) {
	if _, ok := t.tasks[taskID]; !ok {
		return
	}
	delete(t.tasks, taskID)
	for i, id := range t.order {
		if id == taskID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Start launches the ticking loop. Calling Start on a running or stopped tracker does nothing.
func (t *TaskTracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running || t.stopped {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.running = true

	t.loop.Add(1)
	go func() {
		defer t.loop.Done()

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it and every in-flight poll. No poll is applied after Stop returns.
func (t *TaskTracker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()

	t.loop.Wait()
	t.polls.Wait()
}

// Tick issues one status request for every non-terminal task without one already in flight.
// It returns the number of polls launched and does not wait for them.
func (t *TaskTracker) Tick(ctx context.Context) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return 0
	}

	launched := 0
	for _, id := range t.order {
		tt := t.tasks[id]
		if tt.done || tt.inFlight {
			continue
		}
		tt.inFlight = true
		launched++

		t.polls.Add(1)
		go t.poll(ctx, id)
	}
	return launched
}

func (t *TaskTracker) poll(ctx context.Context, taskID string) {
	defer t.polls.Done()

	status, err := t.gw.GetTaskStatus(ctx, taskID)

	t.mu.Lock()
	tt, ok := t.tasks[taskID]
	if ok {
		tt.inFlight = false
	}
	if !ok || tt.done || t.stopped || ctx.Err() != nil {
		t.mu.Unlock()
		return
	}

	completed := t.apply(tt, status, err)
	snapshot := tt.task.Clone()
	if completed {
		t.removeLocked(taskID)
	}
	t.mu.Unlock()

	if t.onUpdate != nil {
		t.onUpdate(snapshot)
	}
	if completed {
		t.finish(snapshot)
	}
}

// apply folds one poll outcome into the task and reports whether it became terminal.
func (t *TaskTracker) apply(tt *trackedTask, status *models.TaskStatus, err error) bool {
	task := &tt.task
	task.UpdatedAt = time.Now()
	logger := t.logger.With("task_id", task.TaskID)

	if err != nil {
		task.Error = err.Error()
		logger.Warn("status poll failed", "err", err)
		return false
	}

	switch status.State {
	case models.TaskPending:
		if task.Status != models.TaskProgress {
			task.Status = models.TaskPending
		}
		task.Error = ""
	case models.TaskProgress:
		task.Status = models.TaskProgress
		task.ProgressMessage = status.ProgressText()
		task.Error = ""
	case models.TaskSuccess:
		result, err := status.TaskResult()
		if err != nil {
			task.Error = err.Error()
			logger.Warn("discarding success without result", "err", err)
			return false
		}
		task.Status = models.TaskSuccess
		task.Result = result
		task.Error = ""
		tt.done = true
		return true
	case models.TaskFailure:
		task.Status = models.TaskFailure
		task.Error = status.FailureMessage()
		tt.done = true
		return true
	}
	return false
}

func (t *TaskTracker) finish(task models.Task) {
	logger := t.logger.With("task_id", task.TaskID)

	switch task.Status {
	case models.TaskSuccess:
		logger.Info("task completed", "file", task.Filename)
		if t.notifier != nil {
			t.notifier.Notify(models.SeveritySuccess, fmt.Sprintf("Transcription of %s completed", displayName(task)))
		}
	case models.TaskFailure:
		logger.Error("task failed", "file", task.Filename, "err", task.Error)
		if t.notifier != nil {
			t.notifier.Notify(models.SeverityError, fmt.Sprintf("Transcription of %s failed: %s", displayName(task), task.Error))
		}
	}

	if t.onComplete != nil {
		t.onComplete(task)
	}
}

// Snapshot returns copies of every task still being polled, in tracking order.
func (t *TaskTracker) Snapshot() []models.Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.Task, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.tasks[id].task.Clone())
	}
	return out
}

// Pending returns the number of tracked tasks that have not reached a terminal state.
func (t *TaskTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, tt := range t.tasks {
		if !tt.done {
			n++
		}
	}
	return n
}

func displayName(task models.Task) string {
	if task.Filename != "" {
		return task.Filename
	}
	return task.TaskID
}
