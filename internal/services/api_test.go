package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/shared"
	tu "github.com/desertthunder/a2s/internal/testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/api", nil)
}

func uploads(n int) []Upload {
	files := make([]Upload, n)
	for i := range files {
		files[i] = Upload{Name: fmt.Sprintf("file%02d.mp3", i), Content: strings.NewReader("audio")}
	}
	return files
}

func TestClient(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("With Custom BaseURL and Client", func(t *testing.T) {
			customClient := &http.Client{}
			c := NewClient("http://example.com/api/", customClient)

			if c.baseURL != "http://example.com/api" {
				t.Errorf("expected trimmed baseURL, got %s", c.baseURL)
			}
			if c.httpClient != customClient {
				t.Error("expected custom client to be used")
			}
		})

		t.Run("With Empty BaseURL", func(t *testing.T) {
			c := NewClient("", nil)

			if c.BaseURL() != DefaultBaseURL {
				t.Errorf("expected default baseURL %s, got %s", DefaultBaseURL, c.BaseURL())
			}
			if c.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})
	})

	t.Run("HealthCheck", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.Path != "/api/health" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				tu.WriteJSON(t, w, http.StatusOK, map[string]any{
					"status":     "healthy",
					"redis":      "connected",
					"deployment": map[string]string{"mode": "gpu", "device": "cuda", "model": "base"},
					"version":    "1.2.0",
				})
			})

			h, err := c.HealthCheck(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !h.Healthy() || h.Deployment == nil || h.Deployment.Device != "cuda" {
				t.Errorf("unexpected health: %+v", h)
			}
		})

		t.Run("Non-2xx Is Connection Error", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				tu.WriteJSON(t, w, http.StatusServiceUnavailable, map[string]string{"detail": "redis down"})
			})

			_, err := c.HealthCheck(context.Background())
			if !errors.Is(err, shared.ErrConnection) {
				t.Fatalf("expected ErrConnection, got %v", err)
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T", err)
			}
			if apiErr.StatusCode != http.StatusServiceUnavailable || apiErr.Detail != "redis down" {
				t.Errorf("unexpected error fields: %+v", apiErr)
			}
		})

		t.Run("Transport Failure", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}
			c := NewClient("http://example.com/api", client)

			_, err := c.HealthCheck(context.Background())
			if !errors.Is(err, shared.ErrConnection) {
				t.Errorf("expected ErrConnection, got %v", err)
			}
		})

		t.Run("Body Read Failure", func(t *testing.T) {
			resp := &http.Response{StatusCode: http.StatusOK, Body: &tu.FCloser{}, Header: http.Header{}}
			client := &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}
			c := NewClient("http://example.com/api", client)

			_, err := c.HealthCheck(context.Background())
			if !errors.Is(err, shared.ErrMalformedResponse) {
				t.Errorf("expected ErrMalformedResponse, got %v", err)
			}
		})
	})

	t.Run("GetModels", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/models/" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			tu.WriteJSON(t, w, http.StatusOK, map[string]any{
				"models":        []map[string]string{{"name": "base", "size": "74MB", "speed": "fast", "accuracy": "good", "use_case": "general"}},
				"default_model": "base",
			})
		})

		resp, err := c.GetModels(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.DefaultModel != "base" || len(resp.Models) != 1 || resp.Models[0].UseCase != "general" {
			t.Errorf("unexpected models: %+v", resp)
		}
	})

	t.Run("SubmitSingle", func(t *testing.T) {
		t.Run("Sends Multipart Form", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/api/upload/" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				if err := r.ParseMultipartForm(1 << 20); err != nil {
					t.Fatalf("failed to parse form: %v", err)
				}

				file, header, err := r.FormFile("file")
				if err != nil {
					t.Fatalf("missing file part: %v", err)
				}
				defer file.Close()
				content, _ := io.ReadAll(file)

				if header.Filename != "lecture.mp3" || string(content) != "audio-bytes" {
					t.Errorf("unexpected upload %s %q", header.Filename, content)
				}
				if r.FormValue("model") != "base" || r.FormValue("output_format") != "srt" {
					t.Errorf("unexpected form values: %v", r.MultipartForm.Value)
				}
				if _, ok := r.MultipartForm.Value["language"]; ok {
					t.Error("empty language should not be sent")
				}

				tu.WriteJSON(t, w, http.StatusOK, map[string]any{
					"task_id": "t1", "file_id": "f1", "model_used": "base", "estimated_time": 42.5, "message": "queued",
				})
			})

			resp, err := c.SubmitSingle(context.Background(),
				Upload{Name: "lecture.mp3", Content: strings.NewReader("audio-bytes")},
				UploadOptions{Model: "base", OutputFormat: "srt"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.TaskID != "t1" || resp.FileID != "f1" || resp.EstimatedTime != 42.5 {
				t.Errorf("unexpected response: %+v", resp)
			}
		})

		t.Run("Server Detail Surfaces", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				tu.WriteJSON(t, w, http.StatusBadRequest, map[string]string{"detail": "Unsupported file type"})
			})

			_, err := c.SubmitSingle(context.Background(), Upload{Name: "a.txt", Content: strings.NewReader("x")}, UploadOptions{})
			if !errors.Is(err, shared.ErrUpload) {
				t.Fatalf("expected ErrUpload, got %v", err)
			}
			if !strings.Contains(err.Error(), "Unsupported file type") {
				t.Errorf("expected detail in error, got %v", err)
			}
		})

		t.Run("Invalid Options Never Reach Server", func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

			_, err := c.SubmitSingle(context.Background(), Upload{Name: "a.mp3", Content: strings.NewReader("x")}, UploadOptions{OutputFormat: "ass"})
			if !errors.Is(err, shared.ErrValidation) || !errors.Is(err, shared.ErrUpload) {
				t.Errorf("expected validation upload error, got %v", err)
			}
			if calls.Load() != 0 {
				t.Errorf("expected no requests, got %d", calls.Load())
			}
		})

		t.Run("Missing Ids Are Malformed", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				tu.WriteJSON(t, w, http.StatusOK, map[string]string{"message": "queued"})
			})

			_, err := c.SubmitSingle(context.Background(), Upload{Name: "a.mp3", Content: strings.NewReader("x")}, UploadOptions{})
			if !errors.Is(err, shared.ErrMalformedResponse) {
				t.Errorf("expected ErrMalformedResponse, got %v", err)
			}
		})
	})

	t.Run("SubmitBatch", func(t *testing.T) {
		t.Run("Sends Files And Concurrent Limit", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/batch-upload/" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if err := r.ParseMultipartForm(1 << 20); err != nil {
					t.Fatalf("failed to parse form: %v", err)
				}
				if n := len(r.MultipartForm.File["files"]); n != 3 {
					t.Errorf("expected 3 files, got %d", n)
				}
				if r.FormValue("concurrent_limit") != "2" {
					t.Errorf("expected concurrent_limit 2, got %q", r.FormValue("concurrent_limit"))
				}

				tu.WriteJSON(t, w, http.StatusOK, map[string]any{
					"batch_id":    "b1",
					"total_files": 3,
					"model_used":  "base",
					"tasks": []map[string]any{
						{"file_id": "f1", "filename": "file00.mp3", "task_id": "t1", "status": "PENDING"},
						{"file_id": "f2", "filename": "file01.mp3", "task_id": "t2", "status": "PENDING"},
						{"file_id": "f3", "filename": "file02.mp3", "task_id": "t3", "status": "PENDING"},
					},
				})
			})

			resp, err := c.SubmitBatch(context.Background(), uploads(3), BatchOptions{ConcurrentLimit: 2})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.BatchID != "b1" || resp.TotalFiles != 3 || len(resp.Tasks) != 3 {
				t.Errorf("unexpected response: %+v", resp)
			}
		})

		t.Run("Default Concurrent Limit", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_ = r.ParseMultipartForm(1 << 20)
				if r.FormValue("concurrent_limit") != "3" {
					t.Errorf("expected default concurrent_limit 3, got %q", r.FormValue("concurrent_limit"))
				}
				tu.WriteJSON(t, w, http.StatusOK, map[string]any{"batch_id": "b1", "total_files": 1})
			})

			if _, err := c.SubmitBatch(context.Background(), uploads(1), BatchOptions{}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})

		t.Run("Rejected Before Network", func(t *testing.T) {
			tests := []struct {
				name  string
				files []Upload
				opts  BatchOptions
			}{
				{name: "51 files", files: uploads(51)},
				{name: "no files", files: nil},
				{name: "limit too high", files: uploads(2), opts: BatchOptions{ConcurrentLimit: 11}},
				{name: "negative limit", files: uploads(2), opts: BatchOptions{ConcurrentLimit: -1}},
				{name: "bad task", files: uploads(2), opts: BatchOptions{UploadOptions: UploadOptions{Task: "summarize"}}},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					var calls atomic.Int32
					c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

					resp, err := c.SubmitBatch(context.Background(), tt.files, tt.opts)
					if !errors.Is(err, shared.ErrValidation) {
						t.Errorf("expected ErrValidation, got %v", err)
					}
					if resp != nil {
						t.Errorf("expected no batch, got %+v", resp)
					}
					if calls.Load() != 0 {
						t.Errorf("expected no requests, got %d", calls.Load())
					}
				})
			}
		})

		t.Run("Validation Detail List", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				tu.WriteJSON(t, w, http.StatusUnprocessableEntity, map[string]any{
					"detail": []map[string]any{{"loc": []any{"body", "files"}, "msg": "field required", "type": "value_error.missing"}},
				})
			})

			_, err := c.SubmitBatch(context.Background(), uploads(1), BatchOptions{})
			if !errors.Is(err, shared.ErrUpload) || !strings.Contains(err.Error(), "files: field required") {
				t.Errorf("expected upload error with validation detail, got %v", err)
			}
		})
	})

	t.Run("GetTaskStatus", func(t *testing.T) {
		t.Run("Progress", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/status/t1" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.Write([]byte(`{"state":"PROGRESS","status":"Processing","result":{"progress":"transcribing 40%"}}`))
			})

			s, err := c.GetTaskStatus(context.Background(), "t1")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if s.State != models.TaskProgress || s.ProgressText() != "transcribing 40%" {
				t.Errorf("unexpected status: %+v", s)
			}
		})

		t.Run("Failure Is A State", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"state":"FAILURE","status":"Transcription failed"}`))
			})

			s, err := c.GetTaskStatus(context.Background(), "t1")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if s.State != models.TaskFailure || s.FailureMessage() != "Transcription failed" {
				t.Errorf("unexpected status: %+v", s)
			}
		})

		t.Run("Unknown State Is Malformed", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"state":"EXPLODED"}`))
			})

			_, err := c.GetTaskStatus(context.Background(), "t1")
			if !errors.Is(err, shared.ErrStatusCheck) || !errors.Is(err, shared.ErrMalformedResponse) {
				t.Errorf("expected malformed status check error, got %v", err)
			}
		})

		t.Run("Success Without Result Is Malformed", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"state":"SUCCESS","status":"Completed"}`))
			})

			_, err := c.GetTaskStatus(context.Background(), "t1")
			if !errors.Is(err, shared.ErrMalformedResponse) {
				t.Errorf("expected ErrMalformedResponse, got %v", err)
			}
		})
	})

	t.Run("GetBatchStatus", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/batch-status/b1" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				tu.WriteJSON(t, w, http.StatusOK, map[string]any{
					"batch_id": "b1", "total_files": 3, "completed_files": 2, "failed_files": 1,
					"progress_percentage": 100, "overall_status": "COMPLETED",
					"tasks": []map[string]any{{"file_id": "f3", "filename": "c.mp3", "task_id": "t3", "status": "FAILURE", "progress": 0, "error": "decode error"}},
				})
			})

			b, err := c.GetBatchStatus(context.Background(), "b1")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if b.OverallStatus != models.BatchCompleted || b.CompletedFiles != 2 || b.Tasks[0].Error != "decode error" {
				t.Errorf("unexpected batch: %+v", b)
			}
		})

		t.Run("Count Invariant Violation Is Malformed", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				tu.WriteJSON(t, w, http.StatusOK, map[string]any{
					"batch_id": "b1", "total_files": 2, "completed_files": 2, "failed_files": 1, "overall_status": "PROCESSING",
				})
			})

			_, err := c.GetBatchStatus(context.Background(), "b1")
			if !errors.Is(err, shared.ErrMalformedResponse) || !errors.Is(err, shared.ErrStatusCheck) {
				t.Errorf("expected malformed status check error, got %v", err)
			}
		})
	})

	t.Run("GetBatchResultSummary", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/batch-result/b1" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				tu.WriteJSON(t, w, http.StatusOK, map[string]any{
					"batch_id": "b1", "total_files": 3, "successful_files": 2, "failed_files": 1,
					"total_processing_time": 30.5,
					"results": []map[string]any{{"file_id": "f1", "full_text": "a"}, {"file_id": "f2", "full_text": "b"}},
					"errors":  []map[string]string{{"file_id": "f3", "filename": "c.mp3", "error": "decode error"}},
				})
			})

			s, err := c.GetBatchResultSummary(context.Background(), "b1")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if s.SuccessfulFiles != 2 || len(s.Results) != 2 || len(s.Errors) != 1 || s.Errors[0].FileID != "f3" {
				t.Errorf("unexpected summary: %+v", s)
			}
		})

		t.Run("Failure Is Result Fetch Error", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			})

			_, err := c.GetBatchResultSummary(context.Background(), "b1")
			if !errors.Is(err, shared.ErrResultFetch) {
				t.Errorf("expected ErrResultFetch, got %v", err)
			}
			if !strings.Contains(err.Error(), "boom") {
				t.Errorf("expected raw body fallback in error, got %v", err)
			}
		})
	})

	t.Run("DownloadArtifact", func(t *testing.T) {
		t.Run("Streams Body", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/results/f1/lecture.srt" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.Write([]byte("1\n00:00:00,000 --> 00:00:01,000\nHello world\n"))
			})

			var buf strings.Builder
			n, err := c.DownloadArtifact(context.Background(), "f1", "lecture.srt", &buf)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if n == 0 || !strings.Contains(buf.String(), "Hello world") {
				t.Errorf("unexpected content %q", buf.String())
			}
		})

		t.Run("Not Found", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				tu.WriteJSON(t, w, http.StatusNotFound, map[string]string{"detail": "File not found"})
			})

			_, err := c.DownloadArtifact(context.Background(), "f1", "missing.srt", io.Discard)
			if !errors.Is(err, shared.ErrDownload) || !strings.Contains(err.Error(), "File not found") {
				t.Errorf("expected download error with detail, got %v", err)
			}
		})

		t.Run("Write Failure", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("data"))
			})

			_, err := c.DownloadArtifact(context.Background(), "f1", "a.srt", &tu.FWriter{})
			if !errors.Is(err, shared.ErrDownload) {
				t.Errorf("expected ErrDownload, got %v", err)
			}
		})
	})
}

func TestExtractDetail(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string detail", `{"detail":"File too large"}`, "File too large"},
		{"list detail", `{"detail":[{"loc":["body","model"],"msg":"invalid model"}]}`, "model: invalid model"},
		{"plain body", "Internal Server Error", "Internal Server Error"},
		{"other json", `{"error":"x"}`, `{"error":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractDetail([]byte(tt.raw)); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	long := strings.Repeat("x", maxDetailBytes+10)
	if got := extractDetail([]byte(long)); len(got) != maxDetailBytes+3 {
		t.Errorf("expected truncated detail, got length %d", len(got))
	}
}
