package tasks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/services"
	"github.com/desertthunder/a2s/internal/shared"
)

// ResultStore persists completed work. Failures are logged and never affect in-memory state.
type ResultStore interface {
	SaveTranscription(task models.Task) error
	SaveBatchSummary(summary models.BatchResultSummary) error
}

// CoordinatorOpts configures a [Coordinator].
type CoordinatorOpts struct {
	Gateway         services.Gateway
	Logger          *log.Logger
	Store           ResultStore   // Optional result history
	TaskInterval    time.Duration // Default: 5s
	BatchInterval   time.Duration // Default: 3s
	NotificationTTL time.Duration // Default: 5s
}

// State is a deep copy of everything the [Coordinator] owns.
type State struct {
	ActiveTasks      []models.Task               `json:"active_tasks"`
	CompletedResults []models.TaskResult         `json:"completed_results"`
	ActiveBatches    []models.Batch              `json:"active_batches"`
	CompletedBatches []models.BatchResultSummary `json:"completed_batches"`
	Unreported       []string                    `json:"unreported_batches"`
	BatchControls    []BatchControl              `json:"batch_controls"`
	Notifications    []models.Notification       `json:"notifications"`
	APIHealthy       bool                        `json:"api_healthy"`
	Health           *models.HealthStatus        `json:"health,omitempty"`
	Models           *models.ModelsResponse      `json:"models,omitempty"`
}

// Coordinator owns the canonical active and completed collections.
//
// Submissions go through the gateway, are recorded as active, and handed to the matching
// tracker. Trackers report back through callbacks; a completed id is moved exactly once and
// never re-added.
type Coordinator struct {
	gw     services.Gateway
	logger *log.Logger
	store  ResultStore

	tasks   *TaskTracker
	batches *BatchTracker
	notes   *NotificationCenter

	mu               sync.RWMutex
	ctx              context.Context
	activeTasks      []models.Task
	completedResults []models.TaskResult
	activeBatches    []models.Batch
	completedBatches []models.BatchResultSummary
	unreported       []string
	finishedTasks    map[string]bool
	finishedBatches  map[string]bool
	health           *models.HealthStatus
	catalogue        *models.ModelsResponse
	healthy          bool

	subMu  sync.Mutex
	subs   map[int]chan Update
	nextID int
	closed bool
}

// NewCoordinator wires the trackers and the notification center around gateway.
func NewCoordinator(opts CoordinatorOpts) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	c := &Coordinator{
		gw:              opts.Gateway,
		logger:          opts.Logger,
		store:           opts.Store,
		ctx:             context.Background(),
		finishedTasks:   make(map[string]bool),
		finishedBatches: make(map[string]bool),
		subs:            make(map[int]chan Update),
	}

	c.notes = NewNotificationCenter(opts.NotificationTTL, func(n models.Notification) {
		c.publish(Update{Kind: NotificationPosted, Message: n.Message, Notification: &n, At: n.CreatedAt})
	})

	c.tasks = NewTaskTracker(TaskTrackerOpts{
		Gateway:    opts.Gateway,
		Interval:   opts.TaskInterval,
		Logger:     opts.Logger,
		Notifier:   c.notes,
		OnUpdate:   c.applyTaskSnapshot,
		OnComplete: c.RecordSingleCompletion,
	})

	c.batches = NewBatchTracker(BatchPollerOpts{
		Gateway:  opts.Gateway,
		Interval: opts.BatchInterval,
		Logger:   opts.Logger,
		Notifier: c.notes,
		Hooks: BatchHooks{
			OnUpdate:     c.applyBatchSnapshot,
			OnComplete:   func(s models.BatchResultSummary) { c.RecordBatchCompletion(s.BatchID, s) },
			OnFailed:     func(b models.Batch) { c.RecordBatchFailure(b.BatchID) },
			OnUnreported: func(id string, _ error) { c.RecordBatchUnreported(id) },
		},
	})
	return c
}

// Start begins task polling. Batch pollers started later inherit ctx.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	c.tasks.Start(ctx)
}

// Stop tears down every tracker, the notification timers and all subscriptions.
func (c *Coordinator) Stop() {
	c.tasks.Stop()
	c.batches.StopAll()
	c.notes.Close()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.closed = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

// Subscribe returns a channel of updates and a function to cancel the subscription.
// Slow subscribers miss updates rather than blocking the coordinator.
func (c *Coordinator) Subscribe(buffer int) (<-chan Update, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	ch := make(chan Update, buffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextID
	c.nextID++
	c.subs[id] = ch

	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			close(sub)
			delete(c.subs, id)
		}
	}
}

func (c *Coordinator) publish(u Update) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Notifications exposes the notification center.
func (c *Coordinator) Notifications() *NotificationCenter { return c.notes }

// Batches exposes the batch tracker for pause, resume and refresh controls.
func (c *Coordinator) Batches() *BatchTracker { return c.batches }

// Tasks exposes the single-task tracker.
func (c *Coordinator) Tasks() *TaskTracker { return c.tasks }

// CheckAPI refreshes health and the model catalogue. Submissions are refused until it succeeds
// with a healthy status.
func (c *Coordinator) CheckAPI(ctx context.Context) error {
	health, err := c.gw.HealthCheck(ctx)
	if err != nil {
		c.setHealth(nil, nil, false)
		c.notes.Error(fmt.Sprintf("Transcription service unreachable: %v", err))
		return fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, err)
	}

	catalogue, err := c.gw.GetModels(ctx)
	if err != nil {
		c.setHealth(health, nil, false)
		c.notes.Error(fmt.Sprintf("Could not load models: %v", err))
		return fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, err)
	}

	healthy := health.Healthy()
	c.setHealth(health, catalogue, healthy)
	if !healthy {
		return fmt.Errorf("%w: service reports status %q", shared.ErrServiceUnavailable, health.Status)
	}
	return nil
}

func (c *Coordinator) setHealth(h *models.HealthStatus, m *models.ModelsResponse, healthy bool) {
	c.mu.Lock()
	c.health, c.catalogue, c.healthy = h, m, healthy
	c.mu.Unlock()

	c.logger.Debug("api checked", "healthy", healthy)
	c.publish(Update{Kind: APIChecked, Message: fmt.Sprintf("healthy=%t", healthy), At: time.Now()})
}

func (c *Coordinator) requireHealthy() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.healthy {
		return fmt.Errorf("%w: API is not known to be healthy; run a health check first", shared.ErrServiceUnavailable)
	}
	return nil
}

// SubmitSingle uploads one file, records it as active and starts tracking it.
func (c *Coordinator) SubmitSingle(ctx context.Context, file services.Upload, opts services.UploadOptions) (*models.UploadResponse, error) {
	if err := c.requireHealthy(); err != nil {
		return nil, err
	}

	resp, err := c.gw.SubmitSingle(ctx, file, opts)
	if err != nil {
		c.notes.Error(fmt.Sprintf("Upload of %s failed: %v", file.Name, err))
		return nil, err
	}

	c.TrackTask(resp.TaskID, resp.FileID, file.Name, resp.ModelUsed)
	c.notes.Info(fmt.Sprintf("Uploaded %s, transcription started", file.Name))
	return resp, nil
}

// SubmitBatch uploads files as one batch, records it and starts a poller for it.
func (c *Coordinator) SubmitBatch(ctx context.Context, files []services.Upload, opts services.BatchOptions) (*models.BatchUploadResponse, error) {
	if err := services.ValidateBatch(files); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := c.requireHealthy(); err != nil {
		return nil, err
	}

	resp, err := c.gw.SubmitBatch(ctx, files, opts)
	if err != nil {
		c.notes.Error(fmt.Sprintf("Batch upload failed: %v", err))
		return nil, err
	}

	c.TrackBatch(models.Batch{
		BatchID:         resp.BatchID,
		TotalFiles:      resp.TotalFiles,
		OverallStatus:   models.BatchProcessing,
		Tasks:           resp.Tasks,
		ConcurrentLimit: opts.Limit(),
		ModelUsed:       resp.ModelUsed,
	})
	c.notes.Info(fmt.Sprintf("Uploaded %d files as batch %s", resp.TotalFiles, resp.BatchID))
	return resp, nil
}

// TrackTask records an already submitted task and hands it to the task tracker.
// It reports false when the id is active or already completed.
func (c *Coordinator) TrackTask(taskID, fileID, filename, model string) bool {
	task := newPendingTask(taskID, fileID, filename, model)
	if !c.recordTask(task) {
		return false
	}
	c.tasks.Track(task)
	return true
}

// TrackBatch records an already submitted batch and starts its poller.
func (c *Coordinator) TrackBatch(batch models.Batch) bool {
	if !c.recordBatch(batch) {
		return false
	}

	c.mu.RLock()
	ctx := c.ctx
	c.mu.RUnlock()

	c.batches.Track(ctx, batch)
	return true
}

// RecordSingleSubmission appends a PENDING task. Duplicate and completed ids are ignored.
func (c *Coordinator) RecordSingleSubmission(taskID, fileID, filename, model string) bool {
	return c.recordTask(newPendingTask(taskID, fileID, filename, model))
}

func newPendingTask(taskID, fileID, filename, model string) models.Task {
	now := time.Now()
	return models.Task{
		TaskID:      taskID,
		FileID:      fileID,
		Filename:    filename,
		Model:       model,
		Status:      models.TaskPending,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
}

func (c *Coordinator) recordTask(task models.Task) bool {
	c.mu.Lock()
	if c.finishedTasks[task.TaskID] || c.taskIndexLocked(task.TaskID) >= 0 {
		c.mu.Unlock()
		return false
	}
	c.activeTasks = append(c.activeTasks, task)
	c.mu.Unlock()

	c.logger.Info("task submitted", "task_id", task.TaskID, "file", task.Filename, "model", task.Model)
	c.publish(taskUpdate(TaskSubmitted, task))
	return true
}

// RecordSingleCompletion removes the task from active. On SUCCESS its result is appended to
// completed results. Repeated calls for the same id are no-ops.
func (c *Coordinator) RecordSingleCompletion(task models.Task) {
	c.mu.Lock()
	if i := c.taskIndexLocked(task.TaskID); i >= 0 {
		c.activeTasks = slices.Delete(c.activeTasks, i, i+1)
	}
	if c.finishedTasks[task.TaskID] {
		c.mu.Unlock()
		return
	}
	c.finishedTasks[task.TaskID] = true

	success := task.Status == models.TaskSuccess && task.Result != nil
	if success {
		c.completedResults = append(c.completedResults, *task.Result.Clone())
	}
	c.mu.Unlock()

	if success {
		c.persistTranscription(task)
		c.publish(taskUpdate(TaskCompleted, task))
		return
	}
	c.publish(taskUpdate(TaskFailed, task))
}

// RecordBatchSubmission appends a PROCESSING batch. Duplicate and completed ids are ignored.
func (c *Coordinator) RecordBatchSubmission(batchID string, totalFiles int) bool {
	return c.recordBatch(models.Batch{BatchID: batchID, TotalFiles: totalFiles, OverallStatus: models.BatchProcessing})
}

func (c *Coordinator) recordBatch(batch models.Batch) bool {
	c.mu.Lock()
	if c.finishedBatches[batch.BatchID] || c.batchIndexLocked(batch.BatchID) >= 0 {
		c.mu.Unlock()
		return false
	}
	c.activeBatches = append(c.activeBatches, batch.Clone())
	c.mu.Unlock()

	c.logger.Info("batch submitted", "batch_id", batch.BatchID, "files", batch.TotalFiles)
	c.publish(batchUpdate(BatchSubmitted, batch))
	return true
}

// RecordBatchCompletion removes the batch from active and prepends its summary, newest first.
func (c *Coordinator) RecordBatchCompletion(batchID string, summary models.BatchResultSummary) {
	c.mu.Lock()
	if !c.finishBatchLocked(batchID) {
		c.mu.Unlock()
		return
	}
	c.completedBatches = slices.Insert(c.completedBatches, 0, summary.Clone())
	c.mu.Unlock()

	c.persistBatch(summary)
	s := summary.Clone()
	c.publish(Update{
		Kind:    BatchCompleted,
		BatchID: batchID,
		Summary: &s,
		Message: fmt.Sprintf("%d succeeded, %d failed", s.SuccessfulFiles, s.FailedFiles),
		At:      time.Now(),
	})
}

// RecordBatchFailure removes a FAILED batch from active.
func (c *Coordinator) RecordBatchFailure(batchID string) {
	c.mu.Lock()
	finished := c.finishBatchLocked(batchID)
	c.mu.Unlock()
	if !finished {
		return
	}
	c.publish(Update{Kind: BatchFailed, BatchID: batchID, At: time.Now()})
}

// RecordBatchUnreported removes a COMPLETED batch whose summary could not be fetched and lists
// its id so the summary can be requested manually.
func (c *Coordinator) RecordBatchUnreported(batchID string) {
	c.mu.Lock()
	if !c.finishBatchLocked(batchID) {
		c.mu.Unlock()
		return
	}
	c.unreported = append(c.unreported, batchID)
	c.mu.Unlock()

	c.publish(Update{Kind: BatchUnreported, BatchID: batchID, Message: "summary unavailable", At: time.Now()})
}

// finishBatchLocked removes the batch from active and marks it finished. It reports whether
// this call did it. Caller holds c.mu.
func (c *Coordinator) finishBatchLocked(batchID string) bool {
	if i := c.batchIndexLocked(batchID); i >= 0 {
		c.activeBatches = slices.Delete(c.activeBatches, i, i+1)
	}
	if c.finishedBatches[batchID] {
		return false
	}
	c.finishedBatches[batchID] = true
	return true
}

func (c *Coordinator) applyTaskSnapshot(task models.Task) {
	c.mu.Lock()
	i := c.taskIndexLocked(task.TaskID)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	c.activeTasks[i] = task.Clone()
	c.mu.Unlock()

	if !task.Status.IsTerminal() {
		c.publish(taskUpdate(TaskProgressed, task))
	}
}

func (c *Coordinator) applyBatchSnapshot(batch models.Batch) {
	c.mu.Lock()
	i := c.batchIndexLocked(batch.BatchID)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	c.activeBatches[i] = batch.Clone()
	c.mu.Unlock()

	c.publish(batchUpdate(BatchProgressed, batch))
}

func (c *Coordinator) taskIndexLocked(taskID string) int {
	return slices.IndexFunc(c.activeTasks, func(t models.Task) bool { return t.TaskID == taskID })
}

func (c *Coordinator) batchIndexLocked(batchID string) int {
	return slices.IndexFunc(c.activeBatches, func(b models.Batch) bool { return b.BatchID == batchID })
}

func (c *Coordinator) persistTranscription(task models.Task) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveTranscription(task); err != nil {
		c.logger.Warn("failed to save transcription", "task_id", task.TaskID, "err", err)
	}
}

func (c *Coordinator) persistBatch(summary models.BatchResultSummary) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveBatchSummary(summary); err != nil {
		c.logger.Warn("failed to save batch summary", "batch_id", summary.BatchID, "err", err)
	}
}

// Snapshot returns a deep copy of all collections.
func (c *Coordinator) Snapshot() State {
	c.mu.RLock()
	s := State{
		ActiveTasks:      make([]models.Task, len(c.activeTasks)),
		CompletedResults: make([]models.TaskResult, len(c.completedResults)),
		ActiveBatches:    make([]models.Batch, len(c.activeBatches)),
		CompletedBatches: make([]models.BatchResultSummary, len(c.completedBatches)),
		Unreported:       append([]string{}, c.unreported...),
		APIHealthy:       c.healthy,
	}
	for i, t := range c.activeTasks {
		s.ActiveTasks[i] = t.Clone()
	}
	for i := range c.completedResults {
		s.CompletedResults[i] = *c.completedResults[i].Clone()
	}
	for i, b := range c.activeBatches {
		s.ActiveBatches[i] = b.Clone()
	}
	for i, b := range c.completedBatches {
		s.CompletedBatches[i] = b.Clone()
	}
	if c.health != nil {
		h := *c.health
		s.Health = &h
	}
	if c.catalogue != nil {
		m := *c.catalogue
		m.Models = append([]models.ModelInfo(nil), c.catalogue.Models...)
		s.Models = &m
	}
	c.mu.RUnlock()

	s.BatchControls = c.batches.Controls()
	s.Notifications = c.notes.Active()
	return s
}
