// package formatter provides functions to export transcripts, batch summaries and download manifests
// to various formats (CSV, JSON, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/shared"
)

// Export formats understood by the writers in this package.
const (
	FormatText     = "txt"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatCSV      = "csv"
)

// FormatDuration renders seconds as 1h 02m 03s, 2m 05s or 4.2s.
func FormatDuration(seconds float64) string {
	if seconds < 60 {
		return strconv.FormatFloat(seconds, 'f', 1, 64) + "s"
	}

	total := int(seconds + 0.5)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	}
	return fmt.Sprintf("%dm %02ds", m, s)
}

func marshalJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

func processingTime(r *models.TaskResult) string {
	if r.Timing.TotalTimeFormatted != "" {
		return r.Timing.TotalTimeFormatted
	}
	return FormatDuration(r.Timing.TotalTime)
}

// ExportTranscriptToText renders the full transcript with a short header.
func ExportTranscriptToText(r *models.TaskResult) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("File: %s\n", r.OriginalFilename))
	buf.WriteString(fmt.Sprintf("Model: %s\n", r.Params.Model))
	if r.Params.Language != "" {
		buf.WriteString(fmt.Sprintf("Language: %s\n", r.Params.Language))
	}
	buf.WriteString(fmt.Sprintf("Processing time: %s\n\n", processingTime(r)))
	buf.WriteString(strings.TrimSpace(r.FullText))
	buf.WriteString("\n")

	return buf.Bytes(), nil
}

// ExportTranscriptToMarkdown renders the transcript with its parameters and subtitle files.
func ExportTranscriptToMarkdown(r *models.TaskResult) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", r.OriginalFilename))
	buf.WriteString(fmt.Sprintf("**File ID**: %s\n", r.FileID))
	buf.WriteString(fmt.Sprintf("**Model**: %s\n", r.Params.Model))
	if r.Params.Language != "" {
		buf.WriteString(fmt.Sprintf("**Language**: %s\n", r.Params.Language))
	}
	if r.Params.TaskType != "" {
		buf.WriteString(fmt.Sprintf("**Task**: %s\n", r.Params.TaskType))
	}
	buf.WriteString(fmt.Sprintf("**Processing time**: %s\n\n", processingTime(r)))

	if len(r.Files) > 0 {
		buf.WriteString("## Subtitles\n\n")
		for _, f := range r.Files {
			buf.WriteString(fmt.Sprintf("- %s (%s)\n", f.Filename, strings.ToUpper(f.Type)))
		}
		buf.WriteString("\n")
	}

	buf.WriteString("## Transcript\n\n")
	buf.WriteString(strings.TrimSpace(r.FullText))
	buf.WriteString("\n")

	return buf.Bytes(), nil
}

// ExportTranscriptToJSON renders the full result record.
func ExportTranscriptToJSON(r *models.TaskResult) ([]byte, error) {
	return marshalJSON(r)
}

// ExportTranscript dispatches on format. Subtitle formats are served by the API and fetched
// with the artifact downloader instead.
func ExportTranscript(r *models.TaskResult, format string) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: no transcription result", shared.ErrMissingArgument)
	}

	switch format {
	case FormatText, "text":
		return ExportTranscriptToText(r)
	case FormatMarkdown, "md":
		return ExportTranscriptToMarkdown(r)
	case FormatJSON:
		return ExportTranscriptToJSON(r)
	case "srt", "vtt":
		return nil, fmt.Errorf("%w: %s files are produced by the server; use download", shared.ErrInvalidArgument, format)
	default:
		return nil, fmt.Errorf("%w: unsupported transcript format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteTranscriptExport writes a transcript to path.
//
// Defaults to {file_id}.{ext} as the filename.
func WriteTranscriptExport(r *models.TaskResult, format, path string) (string, error) {
	data, err := ExportTranscript(r, format)
	if err != nil {
		return "", err
	}

	if path == "" {
		path = r.FileID + "." + extension(format)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	return path, nil
}

func extension(format string) string {
	switch format {
	case FormatMarkdown, "md":
		return "md"
	case FormatText, "text":
		return "txt"
	default:
		return format
	}
}

// ExportSummaryToCSV converts a batch summary to CSV with columns: File ID, Filename, Status, Characters, Error
func ExportSummaryToCSV(s *models.BatchResultSummary) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"File ID", "Filename", "Status", "Characters", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range s.Results {
		record := []string{r.FileID, r.OriginalFilename, "success", strconv.Itoa(len(r.FullText)), ""}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	for _, e := range s.Errors {
		record := []string{e.FileID, e.Filename, "failed", "0", e.Error}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportSummaryToMarkdown converts a batch summary to a Markdown report.
func ExportSummaryToMarkdown(s *models.BatchResultSummary) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# Batch %s\n\n", s.BatchID))
	buf.WriteString(fmt.Sprintf("**Files**: %d\n", s.TotalFiles))
	buf.WriteString(fmt.Sprintf("**Succeeded**: %d\n", s.SuccessfulFiles))
	buf.WriteString(fmt.Sprintf("**Failed**: %d\n", s.FailedFiles))
	buf.WriteString(fmt.Sprintf("**Processing time**: %s\n\n", FormatDuration(s.TotalProcessingTime)))

	if len(s.Results) > 0 {
		buf.WriteString("## Results\n\n")
		for i, r := range s.Results {
			buf.WriteString(fmt.Sprintf("%d. %s [%s]\n", i+1, r.OriginalFilename, r.FileID))
		}
		buf.WriteString("\n")
	}

	if len(s.Errors) > 0 {
		buf.WriteString("## Errors\n\n")
		for _, e := range s.Errors {
			buf.WriteString(fmt.Sprintf("- %s: %s\n", e.Filename, e.Error))
		}
	}

	return buf.Bytes(), nil
}

// WriteSummaryExport writes a batch summary manifest.
//
// Defaults to batch_{id}.{ext} as the filename.
func WriteSummaryExport(s *models.BatchResultSummary, format, path string) (string, error) {
	var (
		data []byte
		err  error
	)

	switch format {
	case FormatJSON:
		data, err = marshalJSON(s)
	case FormatCSV:
		data, err = ExportSummaryToCSV(s)
	case FormatMarkdown, "md":
		data, err = ExportSummaryToMarkdown(s)
	default:
		return "", fmt.Errorf("%w: unsupported summary format %q", shared.ErrInvalidArgument, format)
	}
	if err != nil {
		return "", err
	}

	if path == "" {
		path = fmt.Sprintf("batch_%s.%s", s.BatchID, extension(format))
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return path, nil
}

// ExportManifestToCSV converts a download manifest to CSV with columns: File ID, Filename, Source, Path, Bytes, Success, Error
func ExportManifestToCSV(m *models.DownloadManifest) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"File ID", "Filename", "Source", "Path", "Bytes", "Success", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range m.Results {
		record := []string{
			r.FileID,
			r.Filename,
			r.Source,
			r.Path,
			strconv.FormatInt(r.Bytes, 10),
			strconv.FormatBool(r.Success),
			r.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteDownloadManifest writes m to path as json or csv, creating the parent directory.
func WriteDownloadManifest(m *models.DownloadManifest, format, path string) error {
	var (
		data []byte
		err  error
	)

	switch format {
	case FormatJSON, "":
		data, err = marshalJSON(m)
	case FormatCSV:
		data, err = ExportManifestToCSV(m)
	default:
		return fmt.Errorf("%w: unsupported manifest format %q", shared.ErrInvalidArgument, format)
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
