package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/services"
	"github.com/desertthunder/a2s/internal/shared"
)

var errNetwork = &services.APIError{Kind: shared.ErrStatusCheck, Err: errors.New("connection reset by peer")}

type statusReply struct {
	status *models.TaskStatus
	err    error
}

type batchReply struct {
	batch *models.Batch
	err   error
}

// fakeGateway replays scripted replies per id. The last reply of a script repeats.
type fakeGateway struct {
	mu sync.Mutex

	health    *models.HealthStatus
	healthErr error
	catalogue *models.ModelsResponse

	upload      *models.UploadResponse
	batchUpload *models.BatchUploadResponse
	submitCalls int

	statuses  map[string][]statusReply
	batches   map[string][]batchReply
	summaries map[string][]error
	summary   map[string]*models.BatchResultSummary
	artifacts map[string]string

	statusCalls  map[string]int
	batchCalls   map[string]int
	summaryCalls map[string]int

	// gate, when set, blocks every status and batch call until it is closed.
	gate chan struct{}
	// summaryGate, when set, blocks summary calls until it is closed or ctx is done.
	summaryGate chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		health:       &models.HealthStatus{Status: "healthy"},
		catalogue:    &models.ModelsResponse{Models: []models.ModelInfo{{Name: "base"}}, DefaultModel: "base"},
		statuses:     make(map[string][]statusReply),
		batches:      make(map[string][]batchReply),
		summaries:    make(map[string][]error),
		summary:      make(map[string]*models.BatchResultSummary),
		artifacts:    make(map[string]string),
		statusCalls:  make(map[string]int),
		batchCalls:   make(map[string]int),
		summaryCalls: make(map[string]int),
	}
}

func (g *fakeGateway) scriptTask(id string, replies ...statusReply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[id] = append(g.statuses[id], replies...)
}

func (g *fakeGateway) scriptBatch(id string, replies ...batchReply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.batches[id] = append(g.batches[id], replies...)
}

func (g *fakeGateway) setSummary(id string, s *models.BatchResultSummary, errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.summary[id] = s
	g.summaries[id] = errs
}

func (g *fakeGateway) calls(kind, id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch kind {
	case "status":
		return g.statusCalls[id]
	case "batch":
		return g.batchCalls[id]
	case "summary":
		return g.summaryCalls[id]
	case "submit":
		return g.submitCalls
	}
	return 0
}

func (g *fakeGateway) wait(ctx context.Context) error {
	g.mu.Lock()
	gate := g.gate
	g.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *fakeGateway) HealthCheck(ctx context.Context) (*models.HealthStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.healthErr != nil {
		return nil, g.healthErr
	}
	h := *g.health
	return &h, nil
}

func (g *fakeGateway) GetModels(ctx context.Context) (*models.ModelsResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := *g.catalogue
	return &m, nil
}

func (g *fakeGateway) SubmitSingle(ctx context.Context, file services.Upload, opts services.UploadOptions) (*models.UploadResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitCalls++
	if g.upload == nil {
		return nil, &services.APIError{Kind: shared.ErrUpload, StatusCode: 500, Detail: "no upload scripted"}
	}
	r := *g.upload
	return &r, nil
}

func (g *fakeGateway) SubmitBatch(ctx context.Context, files []services.Upload, opts services.BatchOptions) (*models.BatchUploadResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitCalls++
	if g.batchUpload == nil {
		return nil, &services.APIError{Kind: shared.ErrUpload, StatusCode: 500, Detail: "no batch scripted"}
	}
	r := *g.batchUpload
	return &r, nil
}

func (g *fakeGateway) GetTaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls[taskID]++

	script := g.statuses[taskID]
	if len(script) == 0 {
		return &models.TaskStatus{State: models.TaskPending, Status: "Pending..."}, nil
	}
	reply := script[0]
	if len(script) > 1 {
		g.statuses[taskID] = script[1:]
	}
	return reply.status, reply.err
}

func (g *fakeGateway) GetBatchStatus(ctx context.Context, batchID string) (*models.Batch, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.batchCalls[batchID]++

	script := g.batches[batchID]
	if len(script) == 0 {
		return &models.Batch{BatchID: batchID, OverallStatus: models.BatchProcessing}, nil
	}
	reply := script[0]
	if len(script) > 1 {
		g.batches[batchID] = script[1:]
	}
	if reply.batch == nil {
		return nil, reply.err
	}
	b := reply.batch.Clone()
	return &b, reply.err
}

func (g *fakeGateway) GetBatchResultSummary(ctx context.Context, batchID string) (*models.BatchResultSummary, error) {
	g.mu.Lock()
	g.summaryCalls[batchID]++
	gate := g.summaryGate
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if errs := g.summaries[batchID]; len(errs) > 0 {
		err := errs[0]
		g.summaries[batchID] = errs[1:]
		return nil, err
	}
	s, ok := g.summary[batchID]
	if !ok {
		return nil, &services.APIError{Kind: shared.ErrResultFetch, StatusCode: 404, Detail: "Batch not found"}
	}
	c := s.Clone()
	return &c, nil
}

func (g *fakeGateway) DownloadArtifact(ctx context.Context, fileID, filename string, w io.Writer) (int64, error) {
	g.mu.Lock()
	body, ok := g.artifacts[fileID+"/"+filename]
	g.mu.Unlock()
	if !ok {
		return 0, &services.APIError{Kind: shared.ErrDownload, StatusCode: 404, Detail: "File not found"}
	}
	return io.Copy(w, strings.NewReader(body))
}

func pending() statusReply {
	return statusReply{status: &models.TaskStatus{State: models.TaskPending, Status: "Pending..."}}
}

func progress(text string) statusReply {
	raw, _ := json.Marshal(map[string]string{"progress": text})
	return statusReply{status: &models.TaskStatus{State: models.TaskProgress, Status: "Processing", Result: raw}}
}

func success(r models.TaskResult) statusReply {
	raw, _ := json.Marshal(r)
	return statusReply{status: &models.TaskStatus{State: models.TaskSuccess, Status: "Completed", Result: raw}}
}

func failure(msg string) statusReply {
	return statusReply{status: &models.TaskStatus{State: models.TaskFailure, Status: msg}}
}

func networkError() statusReply {
	return statusReply{err: errNetwork}
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	items []models.Notification
}

func (r *recordingNotifier) Notify(severity models.Severity, message string) models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := models.Notification{ID: shared.GenerateID(), Severity: severity, Message: message}
	r.items = append(r.items, n)
	return n
}

func (r *recordingNotifier) count(severity models.Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.Severity == severity {
			n++
		}
	}
	return n
}

// memoryStore is an in-memory [ResultStore].
type memoryStore struct {
	mu        sync.Mutex
	tasks     []models.Task
	summaries []models.BatchResultSummary
	err       error
}

func (m *memoryStore) SaveTranscription(task models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *memoryStore) SaveBatchSummary(s models.BatchResultSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.summaries = append(m.summaries, s)
	return nil
}
