package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/services"
	"github.com/desertthunder/a2s/internal/shared"
	tu "github.com/desertthunder/a2s/internal/testing"
)

func newTestCoordinator(gw *fakeGateway, store ResultStore) *Coordinator {
	opts := CoordinatorOpts{
		Gateway:         gw,
		Logger:          shared.NewLogger(io.Discard),
		TaskInterval:    time.Hour,
		BatchInterval:   5 * time.Millisecond,
		NotificationTTL: time.Minute,
	}
	if store != nil {
		opts.Store = store
	}
	return NewCoordinator(opts)
}

func upload(name string) services.Upload {
	return services.Upload{Name: name, Content: strings.NewReader("audio")}
}

func TestCoordinator(t *testing.T) {
	t.Run("Lecture Scenario", func(t *testing.T) {
		gw := newFakeGateway()
		gw.upload = &models.UploadResponse{TaskID: "t1", FileID: "f1", ModelUsed: "base"}
		gw.scriptTask("t1",
			pending(),
			progress("transcribing 40%"),
			success(models.TaskResult{FileID: "f1", OriginalFilename: "lecture.mp3", FullText: "Hello world"}),
		)
		store := &memoryStore{}
		c := newTestCoordinator(gw, store)
		defer c.Stop()

		if err := c.CheckAPI(context.Background()); err != nil {
			t.Fatalf("CheckAPI failed: %v", err)
		}
		if _, err := c.SubmitSingle(context.Background(), upload("lecture.mp3"), services.UploadOptions{Model: "base"}); err != nil {
			t.Fatalf("SubmitSingle failed: %v", err)
		}

		state := c.Snapshot()
		if len(state.ActiveTasks) != 1 || state.ActiveTasks[0].Status != models.TaskPending {
			t.Fatalf("expected one pending task, got %+v", state.ActiveTasks)
		}

		tick(t, c.Tasks())
		tick(t, c.Tasks())
		if s := c.Snapshot().ActiveTasks[0]; s.ProgressMessage != "transcribing 40%" {
			t.Errorf("expected progress message to reach coordinator, got %q", s.ProgressMessage)
		}

		tick(t, c.Tasks())
		state = c.Snapshot()
		if len(state.ActiveTasks) != 0 {
			t.Errorf("expected active list to empty, got %d", len(state.ActiveTasks))
		}
		if len(state.CompletedResults) != 1 {
			t.Fatalf("expected exactly one completed result, got %d", len(state.CompletedResults))
		}
		if r := state.CompletedResults[0]; r.FileID != "f1" || r.FullText != "Hello world" {
			t.Errorf("unexpected completed result: %+v", r)
		}
		if len(store.tasks) != 1 {
			t.Errorf("expected result to be persisted once, got %d", len(store.tasks))
		}

		if c.TrackTask("t1", "f1", "lecture.mp3", "base") {
			t.Error("a completed task must not be tracked again")
		}
		if n := tick(t, c.Tasks()); n != 0 {
			t.Errorf("expected no polls for a finished task, launched %d", n)
		}
	})

	t.Run("Submit Requires Healthy API", func(t *testing.T) {
		gw := newFakeGateway()
		gw.upload = &models.UploadResponse{TaskID: "t1", FileID: "f1"}
		c := newTestCoordinator(gw, nil)
		defer c.Stop()

		_, err := c.SubmitSingle(context.Background(), upload("a.mp3"), services.UploadOptions{})
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}

		gw.health = &models.HealthStatus{Status: "unhealthy"}
		if err := c.CheckAPI(context.Background()); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected unhealthy check to fail, got %v", err)
		}
		if _, err := c.SubmitBatch(context.Background(), []services.Upload{upload("a.mp3")}, services.BatchOptions{}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}

		gw.healthErr = &services.APIError{Kind: shared.ErrConnection, Err: errors.New("dial tcp: refused")}
		if err := c.CheckAPI(context.Background()); !errors.Is(err, shared.ErrConnection) {
			t.Errorf("expected connection error, got %v", err)
		}

		if calls := gw.calls("submit", ""); calls != 0 {
			t.Errorf("expected no submissions, got %d", calls)
		}
		if c.Snapshot().APIHealthy {
			t.Error("expected API to be reported unhealthy")
		}
	})

	t.Run("Batch Of 51 Files Is Rejected", func(t *testing.T) {
		gw := newFakeGateway()
		gw.batchUpload = &models.BatchUploadResponse{BatchID: "b1", TotalFiles: 51}
		c := newTestCoordinator(gw, nil)
		defer c.Stop()

		if err := c.CheckAPI(context.Background()); err != nil {
			t.Fatalf("CheckAPI failed: %v", err)
		}

		files := make([]services.Upload, 51)
		for i := range files {
			files[i] = upload(fmt.Sprintf("f%d.mp3", i))
		}

		resp, err := c.SubmitBatch(context.Background(), files, services.BatchOptions{})
		if !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
		if resp != nil {
			t.Errorf("expected no batch, got %+v", resp)
		}
		if calls := gw.calls("submit", ""); calls != 0 {
			t.Errorf("expected no network call, got %d", calls)
		}
		if n := len(c.Snapshot().ActiveBatches); n != 0 {
			t.Errorf("expected no active batch, got %d", n)
		}
	})

	t.Run("Three File Batch Scenario", func(t *testing.T) {
		gw := newFakeGateway()
		gw.batchUpload = &models.BatchUploadResponse{BatchID: "b1", TotalFiles: 3, ModelUsed: "base"}
		gw.scriptBatch("b1", processing(1, 0), processing(2, 1), completedBatch())
		gw.setSummary("b1", threeFileSummary())
		store := &memoryStore{}
		c := newTestCoordinator(gw, store)
		defer c.Stop()
		c.Start(context.Background())

		if err := c.CheckAPI(context.Background()); err != nil {
			t.Fatalf("CheckAPI failed: %v", err)
		}

		files := []services.Upload{upload("a.mp3"), upload("b.mp3"), upload("c.mp3")}
		resp, err := c.SubmitBatch(context.Background(), files, services.BatchOptions{ConcurrentLimit: 2})
		if err != nil {
			t.Fatalf("SubmitBatch failed: %v", err)
		}
		if resp.TotalFiles != 3 {
			t.Errorf("expected total_files 3, got %d", resp.TotalFiles)
		}

		tu.Eventually(t, 2*time.Second, func() bool { return len(c.Snapshot().CompletedBatches) == 1 }, "batch should complete")

		state := c.Snapshot()
		if len(state.ActiveBatches) != 0 {
			t.Errorf("expected no active batches, got %d", len(state.ActiveBatches))
		}
		s := state.CompletedBatches[0]
		if s.SuccessfulFiles != 2 || len(s.Errors) != 1 || s.Errors[0].FileID != "f3" {
			t.Errorf("unexpected summary: %+v", s)
		}
		if calls := gw.calls("summary", "b1"); calls != 1 {
			t.Errorf("expected summary fetched once, got %d", calls)
		}
		if len(store.summaries) != 1 {
			t.Errorf("expected summary persisted once, got %d", len(store.summaries))
		}
	})

	t.Run("Unreported Batch Leaves Active Once", func(t *testing.T) {
		gw := newFakeGateway()
		gw.scriptBatch("b1", completedBatch())
		fetchErr := &services.APIError{Kind: shared.ErrResultFetch, StatusCode: 500}
		gw.setSummary("b1", threeFileSummary(), fetchErr, fetchErr)
		c := newTestCoordinator(gw, nil)
		defer c.Stop()

		updates, cancel := c.Subscribe(64)
		defer cancel()

		if !c.TrackBatch(models.Batch{BatchID: "b1", TotalFiles: 3, OverallStatus: models.BatchProcessing}) {
			t.Fatal("expected batch to be tracked")
		}

		tu.Eventually(t, time.Second, func() bool { return len(c.Snapshot().Unreported) == 1 }, "batch should be unreported")
		c.Batches().Refresh("b1")
		time.Sleep(20 * time.Millisecond)

		state := c.Snapshot()
		if len(state.ActiveBatches) != 0 || len(state.CompletedBatches) != 0 {
			t.Errorf("unexpected batches: active=%d completed=%d", len(state.ActiveBatches), len(state.CompletedBatches))
		}
		if state.Unreported[0] != "b1" {
			t.Errorf("expected b1 to be listed as unreported, got %v", state.Unreported)
		}

		var unreported, completed, errorNotes int
		for done := false; !done; {
			select {
			case u := <-updates:
				switch u.Kind {
				case BatchUnreported:
					unreported++
				case BatchCompleted:
					completed++
				case NotificationPosted:
					if u.Notification.Severity == models.SeverityError {
						errorNotes++
					}
					if u.Notification.Severity == models.SeveritySuccess {
						t.Errorf("unexpected success notification: %s", u.Message)
					}
				}
			default:
				done = true
			}
		}
		if unreported != 1 || completed != 0 || errorNotes != 1 {
			t.Errorf("expected one unreported update and one error notification, got unreported=%d completed=%d errors=%d",
				unreported, completed, errorNotes)
		}
	})

	t.Run("Failed Batch Leaves Active", func(t *testing.T) {
		gw := newFakeGateway()
		gw.scriptBatch("b1", batchReply{batch: &models.Batch{BatchID: "b1", TotalFiles: 1, FailedFiles: 1, OverallStatus: models.BatchFailed}})
		c := newTestCoordinator(gw, nil)
		defer c.Stop()

		c.TrackBatch(models.Batch{BatchID: "b1", TotalFiles: 1})
		tu.Eventually(t, time.Second, func() bool { return len(c.Snapshot().ActiveBatches) == 0 }, "failed batch should leave active")

		if c.RecordBatchSubmission("b1", 1) {
			t.Error("a finished batch must not be re-added")
		}
	})

	t.Run("Idempotent Removal", func(t *testing.T) {
		c := newTestCoordinator(newFakeGateway(), nil)
		defer c.Stop()

		c.RecordSingleSubmission("t1", "f1", "a.mp3", "base")
		if c.RecordSingleSubmission("t1", "f1", "a.mp3", "base") {
			t.Error("duplicate submission must be ignored")
		}

		done := models.Task{TaskID: "t1", FileID: "f1", Status: models.TaskSuccess, Result: &models.TaskResult{FileID: "f1"}}
		c.RecordSingleCompletion(done)
		c.RecordSingleCompletion(done)
		c.RecordSingleCompletion(models.Task{TaskID: "absent", Status: models.TaskFailure})

		if c.RecordSingleSubmission("t1", "f1", "a.mp3", "base") {
			t.Error("completed id must never be re-added")
		}

		c.RecordBatchCompletion("missing", models.BatchResultSummary{BatchID: "missing"})
		c.RecordBatchCompletion("missing", models.BatchResultSummary{BatchID: "missing"})
		c.RecordBatchFailure("missing")
		c.RecordBatchUnreported("missing")

		state := c.Snapshot()
		if len(state.ActiveTasks) != 0 || len(state.CompletedResults) != 1 {
			t.Errorf("expected 0 active and 1 completed, got %d and %d", len(state.ActiveTasks), len(state.CompletedResults))
		}
		if len(state.CompletedBatches) != 1 || len(state.Unreported) != 0 {
			t.Errorf("expected a single completed batch, got %d completed and %d unreported", len(state.CompletedBatches), len(state.Unreported))
		}
	})

	t.Run("Completed Batches Newest First", func(t *testing.T) {
		c := newTestCoordinator(newFakeGateway(), nil)
		defer c.Stop()

		for _, id := range []string{"b1", "b2", "b3"} {
			c.RecordBatchSubmission(id, 1)
		}
		for _, id := range []string{"b1", "b2", "b3"} {
			c.RecordBatchCompletion(id, models.BatchResultSummary{BatchID: id, TotalFiles: 1, SuccessfulFiles: 1})
		}

		state := c.Snapshot()
		if len(state.ActiveBatches) != 0 {
			t.Errorf("expected no active batches, got %d", len(state.ActiveBatches))
		}
		got := []string{state.CompletedBatches[0].BatchID, state.CompletedBatches[1].BatchID, state.CompletedBatches[2].BatchID}
		if got[0] != "b3" || got[2] != "b1" {
			t.Errorf("expected newest first, got %v", got)
		}
	})

	t.Run("Completing Batch Is Always Visible", func(t *testing.T) {
		c := newTestCoordinator(newFakeGateway(), nil)
		defer c.Stop()

		ids := make([]string, 50)
		for i := range ids {
			ids[i] = fmt.Sprintf("b%d", i)
			c.RecordBatchSubmission(ids[i], 1)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for _, id := range ids {
				c.RecordBatchCompletion(id, models.BatchResultSummary{BatchID: id, TotalFiles: 1, SuccessfulFiles: 1})
			}
		}()

		for finished := false; !finished; {
			select {
			case <-done:
				finished = true
			default:
			}

			state := c.Snapshot()
			if n := len(state.ActiveBatches) + len(state.CompletedBatches); n != len(ids) {
				t.Fatalf("expected every batch in active or completed, saw %d of %d", n, len(ids))
			}
		}
	})

	t.Run("Store Errors Do Not Disturb State", func(t *testing.T) {
		store := &memoryStore{err: errors.New("disk full")}
		c := newTestCoordinator(newFakeGateway(), store)
		defer c.Stop()

		c.RecordSingleSubmission("t1", "f1", "a.mp3", "base")
		c.RecordSingleCompletion(models.Task{TaskID: "t1", Status: models.TaskSuccess, Result: &models.TaskResult{FileID: "f1"}})

		if n := len(c.Snapshot().CompletedResults); n != 1 {
			t.Errorf("expected result despite store failure, got %d", n)
		}
	})

	t.Run("Snapshot Is A Deep Copy", func(t *testing.T) {
		c := newTestCoordinator(newFakeGateway(), nil)
		defer c.Stop()

		c.RecordSingleSubmission("t1", "f1", "a.mp3", "base")
		c.RecordSingleCompletion(models.Task{
			TaskID: "t1", Status: models.TaskSuccess,
			Result: &models.TaskResult{FileID: "f1", Files: []models.FileArtifact{{Filename: "a.srt"}}},
		})

		s := c.Snapshot()
		s.CompletedResults[0].Files[0].Filename = "changed"
		if c.Snapshot().CompletedResults[0].Files[0].Filename != "a.srt" {
			t.Error("snapshot mutation leaked into coordinator state")
		}
	})

	t.Run("Subscribe And Stop", func(t *testing.T) {
		c := newTestCoordinator(newFakeGateway(), nil)
		updates, cancel := c.Subscribe(8)

		c.RecordSingleSubmission("t1", "f1", "a.mp3", "base")
		select {
		case u := <-updates:
			if u.Kind != TaskSubmitted || u.TaskID != "t1" {
				t.Errorf("unexpected update: %+v", u)
			}
		case <-time.After(time.Second):
			t.Fatal("expected a task_submitted update")
		}

		c.Stop()
		if _, ok := <-updates; ok {
			t.Error("expected channel to be closed after Stop")
		}
		cancel()

		late, _ := c.Subscribe(1)
		if _, ok := <-late; ok {
			t.Error("expected subscription after Stop to be closed")
		}
	})
}
