// HTTP client for the transcription service's FastAPI gateway
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/shared"
)

const DefaultBaseURL = "http://localhost:8000/api"

// maxDetailBytes caps how much of a non-JSON error body ends up in an error message.
const maxDetailBytes = 512

// APIError is a failed gateway call.
//
// Kind is the operation's sentinel ([shared.ErrConnection], [shared.ErrUpload], ...) so callers
// can match with [errors.Is]. Err, when set, is the underlying transport or decode failure.
type APIError struct {
	Kind       error
	StatusCode int
	Detail     string
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	switch {
	case e.Detail != "":
		b.WriteString(": " + e.Detail)
	case e.Err != nil:
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Client implements [Gateway] over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a gateway client. baseURL includes the API base path, e.g. "http://host:8000/api".
func NewClient(baseURL string, client *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// HealthCheck calls GET /health.
func (c *Client) HealthCheck(ctx context.Context) (*models.HealthStatus, error) {
	var health models.HealthStatus
	if err := c.doJSON(ctx, http.MethodGet, "/health", shared.ErrConnection, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// GetModels calls GET /models/.
func (c *Client) GetModels(ctx context.Context) (*models.ModelsResponse, error) {
	var resp models.ModelsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/models/", shared.ErrConnection, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitSingle uploads one file to POST /upload/.
func (c *Client) SubmitSingle(ctx context.Context, file Upload, opts UploadOptions) (*models.UploadResponse, error) {
	if file.Name == "" || file.Content == nil {
		return nil, &APIError{Kind: shared.ErrUpload, Err: fmt.Errorf("%w: file has no name or content", shared.ErrValidation)}
	}
	if err := opts.Validate(); err != nil {
		return nil, &APIError{Kind: shared.ErrUpload, Err: err}
	}

	body, contentType, err := buildForm("file", []Upload{file}, opts.fields())
	if err != nil {
		return nil, &APIError{Kind: shared.ErrUpload, Err: err}
	}

	var resp models.UploadResponse
	if err := c.do(ctx, http.MethodPost, "/upload/", body, contentType, shared.ErrUpload, &resp); err != nil {
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		return nil, &APIError{Kind: shared.ErrUpload, Err: err}
	}
	return &resp, nil
}

// SubmitBatch uploads files to POST /batch-upload/.
//
// An empty list, more than [MaxBatchFiles] files or invalid options are rejected before any request is made.
func (c *Client) SubmitBatch(ctx context.Context, files []Upload, opts BatchOptions) (*models.BatchUploadResponse, error) {
	if err := ValidateBatch(files); err != nil {
		return nil, &APIError{Kind: shared.ErrUpload, Err: err}
	}
	if err := opts.Validate(); err != nil {
		return nil, &APIError{Kind: shared.ErrUpload, Err: err}
	}

	fields := opts.fields()
	fields["concurrent_limit"] = strconv.Itoa(opts.Limit())

	body, contentType, err := buildForm("files", files, fields)
	if err != nil {
		return nil, &APIError{Kind: shared.ErrUpload, Err: err}
	}

	var resp models.BatchUploadResponse
	if err := c.do(ctx, http.MethodPost, "/batch-upload/", body, contentType, shared.ErrUpload, &resp); err != nil {
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		return nil, &APIError{Kind: shared.ErrUpload, Err: err}
	}
	return &resp, nil
}

// GetTaskStatus calls GET /status/{task_id}.
func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error) {
	var status models.TaskStatus
	if err := c.doJSON(ctx, http.MethodGet, "/status/"+url.PathEscape(taskID), shared.ErrStatusCheck, &status); err != nil {
		return nil, err
	}
	if status.State == models.TaskSuccess {
		if _, err := status.TaskResult(); err != nil {
			return nil, &APIError{Kind: shared.ErrStatusCheck, Err: err}
		}
	}
	return &status, nil
}

// GetBatchStatus calls GET /batch-status/{batch_id}.
func (c *Client) GetBatchStatus(ctx context.Context, batchID string) (*models.Batch, error) {
	var batch models.Batch
	if err := c.doJSON(ctx, http.MethodGet, "/batch-status/"+url.PathEscape(batchID), shared.ErrStatusCheck, &batch); err != nil {
		return nil, err
	}
	if err := batch.Validate(); err != nil {
		return nil, &APIError{Kind: shared.ErrStatusCheck, Err: err}
	}
	return &batch, nil
}

// GetBatchResultSummary calls GET /batch-result/{batch_id}.
func (c *Client) GetBatchResultSummary(ctx context.Context, batchID string) (*models.BatchResultSummary, error) {
	var summary models.BatchResultSummary
	if err := c.doJSON(ctx, http.MethodGet, "/batch-result/"+url.PathEscape(batchID), shared.ErrResultFetch, &summary); err != nil {
		return nil, err
	}
	if err := summary.Validate(); err != nil {
		return nil, &APIError{Kind: shared.ErrResultFetch, Err: err}
	}
	return &summary, nil
}

// DownloadArtifact streams GET /results/{file_id}/{filename} into w and returns the bytes written.
func (c *Client) DownloadArtifact(ctx context.Context, fileID, filename string, w io.Writer) (int64, error) {
	path := "/results/" + url.PathEscape(fileID) + "/" + url.PathEscape(filename)

	resp, err := c.send(ctx, http.MethodGet, path, nil, "", shared.ErrDownload)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &APIError{Kind: shared.ErrDownload, Err: fmt.Errorf("failed to copy response: %w", err)}
	}
	return n, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, kind error, result any) error {
	return c.do(ctx, method, path, nil, "", kind, result)
}

// do sends a request and decodes a 2xx JSON body into result.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, kind error, result any) error {
	resp, err := c.send(ctx, method, path, body, contentType, kind)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			if !errors.Is(err, shared.ErrMalformedResponse) {
				err = fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err)
			}
			return &APIError{Kind: kind, StatusCode: resp.StatusCode, Err: err}
		}
	}
	return nil
}

// send performs the request and converts transport failures and non-2xx responses into [APIError].
//
// On success the caller owns the response body.
func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string, kind error) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &APIError{Kind: kind, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Kind: kind, Err: fmt.Errorf("request failed: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &APIError{Kind: kind, StatusCode: resp.StatusCode, Detail: extractDetail(raw)}
	}
	return resp, nil
}

// extractDetail reads a FastAPI error body.
//
// "detail" may be a string or a list of validation objects with "msg" fields; anything else
// falls back to the raw body.
func extractDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			return s
		}

		var items []struct {
			Loc []any  `json:"loc"`
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(body.Detail, &items); err == nil && len(items) > 0 {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if len(it.Loc) > 0 {
					msgs = append(msgs, fmt.Sprintf("%v: %s", it.Loc[len(it.Loc)-1], it.Msg))
				} else {
					msgs = append(msgs, it.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}

	detail := strings.TrimSpace(string(raw))
	if len(detail) > maxDetailBytes {
		detail = detail[:maxDetailBytes] + "..."
	}
	return detail
}

// buildForm writes files under field plus the given form values into a multipart body.
func buildForm(field string, files []Upload, values map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, f := range files {
		part, err := writer.CreateFormFile(field, f.Name)
		if err != nil {
			return nil, "", fmt.Errorf("create form file: %w", err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", fmt.Errorf("copy %s: %w", f.Name, err)
		}
	}

	for k, v := range values {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
