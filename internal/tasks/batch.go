package tasks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/shared"
)

const DefaultBatchInterval = 3 * time.Second

// BatchStatusGetter is the slice of the gateway the batch pollers need.
type BatchStatusGetter interface {
	GetBatchStatus(ctx context.Context, batchID string) (*models.Batch, error)
	GetBatchResultSummary(ctx context.Context, batchID string) (*models.BatchResultSummary, error)
}

// BatchHooks are the callbacks a [BatchPoller] reports through. All are optional and run outside poller locks.
type BatchHooks struct {
	OnUpdate     func(models.Batch)                   // Every applied status snapshot
	OnComplete   func(models.BatchResultSummary)      // COMPLETED and the summary was fetched
	OnFailed     func(models.Batch)                   // FAILED
	OnUnreported func(batchID string, err error)      // COMPLETED but the summary fetch failed
}

// BatchPollerOpts configures a [BatchPoller].
type BatchPollerOpts struct {
	Gateway  BatchStatusGetter
	Interval time.Duration // Poll interval (default: 3s)
	Logger   *log.Logger
	Notifier Notifier
	Hooks    BatchHooks
}

// BatchPoller polls one batch until it is terminal.
//
// It fetches immediately on start and then every interval while not paused. Resume re-arms
// the loop exactly once and fetches immediately. A fetch in flight suppresses a concurrently
// requested one. On COMPLETED the summary is fetched at most once.
type BatchPoller struct {
	id       string
	gw       BatchStatusGetter
	interval time.Duration
	logger   *log.Logger
	notifier Notifier
	hooks    BatchHooks

	fetching atomic.Bool

	mu         sync.Mutex
	batch      models.Batch
	lastErr    error
	ctx        context.Context
	cancel     context.CancelFunc
	loopCancel context.CancelFunc
	started    bool
	paused     bool
	finished   bool
	summarized bool
	stopped    bool
	wg         sync.WaitGroup
}

// NewBatchPoller creates a poller seeded with the submission snapshot.
func NewBatchPoller(initial models.Batch, opts BatchPollerOpts) *BatchPoller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultBatchInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &BatchPoller{
		id:       initial.BatchID,
		gw:       opts.Gateway,
		interval: opts.Interval,
		logger:   shared.WithLogger(opts.Logger, "batch_id", initial.BatchID),
		notifier: opts.Notifier,
		hooks:    opts.Hooks,
		batch:    initial.Clone(),
	}
}

func (p *BatchPoller) ID() string { return p.id }

// Start performs the first fetch and arms the polling loop.
func (p *BatchPoller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.armLocked()
	p.fetchAsyncLocked()
	p.mu.Unlock()
}

// armLocked starts the loop unless one is already running. Caller holds p.mu.
func (p *BatchPoller) armLocked() {
	if p.loopCancel != nil || p.paused || p.finished || p.stopped {
		return
	}

	ctx, cancel := context.WithCancel(p.ctx)
	p.loopCancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				p.fetch(p.ctx)
			}
		}
	}()
}

func (p *BatchPoller) disarmLocked() {
	if p.loopCancel != nil {
		p.loopCancel()
		p.loopCancel = nil
	}
}

// fetchAsyncLocked launches a single fetch. Caller holds p.mu.
func (p *BatchPoller) fetchAsyncLocked() {
	if p.finished || p.stopped || p.ctx == nil {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.fetch(p.ctx)
	}()
}

// Refresh requests an immediate fetch. It is allowed while paused and is a no-op once finished.
func (p *BatchPoller) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchAsyncLocked()
}

// Pause stops automatic polling. It reports whether the state changed.
func (p *BatchPoller) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused || p.finished || p.stopped {
		return false
	}
	p.paused = true
	p.disarmLocked()
	p.logger.Debug("polling paused")
	return true
}

// Resume re-arms automatic polling and fetches once. It reports whether the state changed.
func (p *BatchPoller) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.paused || p.finished || p.stopped {
		return false
	}
	p.paused = false
	if p.started {
		p.armLocked()
		p.fetchAsyncLocked()
	}
	p.logger.Debug("polling resumed")
	return true
}

// Toggle flips between paused and polling and returns the new paused state.
func (p *BatchPoller) Toggle() bool {
	if p.Paused() {
		p.Resume()
	} else {
		p.Pause()
	}
	return p.Paused()
}

// Stop cancels polling and waits for the loop and any in-flight fetch.
func (p *BatchPoller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.disarmLocked()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *BatchPoller) fetch(ctx context.Context) {
	if !p.fetching.CompareAndSwap(false, true) {
		return
	}
	defer p.fetching.Store(false)

	p.mu.Lock()
	if p.finished || p.stopped {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	batch, err := p.gw.GetBatchStatus(ctx, p.id)

	p.mu.Lock()
	if p.finished || p.stopped || ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	if err != nil {
		p.lastErr = err
		p.mu.Unlock()
		p.logger.Warn("batch status poll failed", "err", err)
		return
	}
	if err := batch.Validate(); err != nil {
		p.lastErr = err
		p.mu.Unlock()
		p.logger.Warn("rejected batch snapshot", "err", err)
		return
	}

	p.lastErr = nil
	next := batch.Clone()
	if next.ConcurrentLimit == 0 {
		next.ConcurrentLimit = p.batch.ConcurrentLimit
	}
	if next.ModelUsed == "" {
		next.ModelUsed = p.batch.ModelUsed
	}
	p.batch = next

	state := next.OverallStatus
	if state.IsTerminal() {
		p.finished = true
		p.disarmLocked()
	}
	snapshot := next.Clone()
	p.mu.Unlock()

	if p.hooks.OnUpdate != nil {
		p.hooks.OnUpdate(snapshot)
	}

	switch state {
	case models.BatchCompleted:
		p.summarize(ctx, snapshot)
	case models.BatchFailed:
		p.logger.Error("batch failed", "completed", snapshot.CompletedFiles, "failed", snapshot.FailedFiles)
		p.notify(models.SeverityError, fmt.Sprintf("Batch %s failed: %d of %d files failed", p.id, snapshot.FailedFiles, snapshot.TotalFiles))
		if p.hooks.OnFailed != nil {
			p.hooks.OnFailed(snapshot)
		}
	}
}

// summarize fetches the result summary once for a COMPLETED batch.
func (p *BatchPoller) summarize(ctx context.Context, batch models.Batch) {
	p.mu.Lock()
	if p.summarized {
		p.mu.Unlock()
		return
	}
	p.summarized = true
	p.mu.Unlock()

	summary, err := p.gw.GetBatchResultSummary(ctx, p.id)

	p.mu.Lock()
	if p.stopped || ctx.Err() != nil {
		p.mu.Unlock()
		p.logger.Debug("dropping summary outcome after stop", "err", err)
		return
	}
	if err != nil {
		p.lastErr = err
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Error("batch completed but summary fetch failed", "err", err)
		p.notify(models.SeverityError, fmt.Sprintf("Batch %s finished but its results could not be fetched: %v", p.id, err))
		if p.hooks.OnUnreported != nil {
			p.hooks.OnUnreported(p.id, err)
		}
		return
	}

	p.logger.Info("batch completed", "successful", summary.SuccessfulFiles, "failed", summary.FailedFiles)
	p.notify(models.SeveritySuccess, fmt.Sprintf("Batch completed: %d succeeded, %d failed", summary.SuccessfulFiles, summary.FailedFiles))
	if p.hooks.OnComplete != nil {
		p.hooks.OnComplete(summary.Clone())
	}
}

func (p *BatchPoller) notify(severity models.Severity, message string) {
	if p.notifier != nil {
		p.notifier.Notify(severity, message)
	}
}

// Snapshot returns a copy of the latest applied batch status.
func (p *BatchPoller) Snapshot() models.Batch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batch.Clone()
}

// LastError returns the most recent transient fetch error, nil after a successful fetch.
func (p *BatchPoller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *BatchPoller) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *BatchPoller) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// BatchControl is the display state of one batch poller.
type BatchControl struct {
	BatchID   string `json:"batch_id"`
	Paused    bool   `json:"paused"`
	Finished  bool   `json:"finished"`
	LastError string `json:"last_error,omitempty"`
}

// BatchTracker owns one [BatchPoller] per batch id.
type BatchTracker struct {
	opts BatchPollerOpts

	mu      sync.Mutex
	pollers map[string]*BatchPoller
	order   []string
}

// NewBatchTracker creates a tracker whose pollers share opts.
func NewBatchTracker(opts BatchPollerOpts) *BatchTracker {
	return &BatchTracker{opts: opts, pollers: make(map[string]*BatchPoller)}
}

// Track starts a poller for the batch. It returns nil when the id is already tracked.
func (t *BatchTracker) Track(ctx context.Context, initial models.Batch) *BatchPoller {
	t.mu.Lock()
	if _, ok := t.pollers[initial.BatchID]; ok {
		t.mu.Unlock()
		return nil
	}
	p := NewBatchPoller(initial, t.opts)
	t.pollers[initial.BatchID] = p
	t.order = append(t.order, initial.BatchID)
	t.mu.Unlock()

	p.Start(ctx)
	return p
}

func (t *BatchTracker) Get(batchID string) (*BatchPoller, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pollers[batchID]
	if !ok {
		return nil, fmt.Errorf("%w: batch %s is not tracked", shared.ErrNotFound, batchID)
	}
	return p, nil
}

func (t *BatchTracker) Pause(batchID string) error {
	p, err := t.Get(batchID)
	if err != nil {
		return err
	}
	p.Pause()
	return nil
}

func (t *BatchTracker) Resume(batchID string) error {
	p, err := t.Get(batchID)
	if err != nil {
		return err
	}
	p.Resume()
	return nil
}

// Toggle flips the poller's paused state and returns the new state.
func (t *BatchTracker) Toggle(batchID string) (bool, error) {
	p, err := t.Get(batchID)
	if err != nil {
		return false, err
	}
	return p.Toggle(), nil
}

func (t *BatchTracker) Refresh(batchID string) error {
	p, err := t.Get(batchID)
	if err != nil {
		return err
	}
	p.Refresh()
	return nil
}

// Controls lists the display state of every poller in tracking order.
func (t *BatchTracker) Controls() []BatchControl {
	t.mu.Lock()
	pollers := make([]*BatchPoller, 0, len(t.order))
	for _, id := range t.order {
		pollers = append(pollers, t.pollers[id])
	}
	t.mu.Unlock()

	out := make([]BatchControl, 0, len(pollers))
	for _, p := range pollers {
		c := BatchControl{BatchID: p.ID(), Paused: p.Paused(), Finished: p.Finished()}
		if err := p.LastError(); err != nil {
			c.LastError = err.Error()
		}
		out = append(out, c)
	}
	return out
}

// StopAll stops every poller and waits for them.
func (t *BatchTracker) StopAll() {
	t.mu.Lock()
	pollers := make([]*BatchPoller, 0, len(t.pollers))
	for _, p := range t.pollers {
		pollers = append(pollers, p)
	}
	t.mu.Unlock()

	for _, p := range pollers {
		p.Stop()
	}
}
