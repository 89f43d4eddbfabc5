package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/a2s/internal/formatter"
	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/shared"
	"golang.org/x/time/rate"
)

// ArtifactDownloader is the slice of the gateway the downloader needs.
type ArtifactDownloader interface {
	DownloadArtifact(ctx context.Context, fileID, filename string, w io.Writer) (int64, error)
}

// DownloadOpts contains configuration for bulk artifact downloads.
type DownloadOpts struct {
	Format     string  // Manifest format: json or csv (default: json)
	OutputDir  string  // Base output directory (default: subtitles_{epoch})
	NumWorkers int     // Concurrent workers (default: 4, max: 10)
	RateLimit  float64 // Requests per second (default: 5)
}

type downloadJob struct {
	step     int
	artifact models.ArtifactDownload
}

// DownloadArtifacts fetches every subtitle file of the given results concurrently with rate limiting.
//
// Files land in OutputDir/{file_id}/{filename}. Partial failures are recorded per file and a
// manifest summarizing the run is written next to them.
func DownloadArtifacts(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	gw ArtifactDownloader,
	results []models.TaskResult,
	opts DownloadOpts,
) (*models.DownloadManifest, error) {
	if gw == nil {
		return nil, fmt.Errorf("%w: gateway not initialized", shared.ErrServiceUnavailable)
	}

	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("subtitles_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var artifacts []models.ArtifactDownload
	for _, r := range results {
		for _, f := range r.Files {
			artifacts = append(artifacts, models.ArtifactDownload{
				FileID:   r.FileID,
				Filename: filepath.Base(f.Filename),
				Source:   r.OriginalFilename,
			})
		}
	}
	total := len(artifacts)

	manifest := &models.DownloadManifest{
		Total:           total,
		OutputDirectory: opts.OutputDir,
		CreatedAt:       time.Now(),
		Results:         make([]models.ArtifactDownload, 0, total),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan downloadJob, total)
	out := make(chan models.ArtifactDownload, total)

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go downloadWorker(ctx, &wg, gw, limiter, jobs, out, opts.OutputDir)
	}

	go func() {
		defer close(jobs)
		for i, a := range artifacts {
			select {
			case <-ctx.Done():
				return
			case jobs <- downloadJob{step: i + 1, artifact: a}:
				sendProgress(prog, downloadingUpdate(i+1, total, a))
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	completed := 0
	for res := range out {
		completed++
		manifest.Results = append(manifest.Results, res)

		if res.Success {
			manifest.Successful++
			sendProgress(prog, downloadCompletedUpdate(completed, total, res))
		} else {
			manifest.Failed++
			sendProgress(prog, downloadFailedUpdate(completed, total, res))
		}
	}

	if err := ctx.Err(); err != nil {
		return manifest, fmt.Errorf("download interrupted: %w", err)
	}

	format := opts.Format
	if format == "" {
		format = "json"
	}
	manifestPath := filepath.Join(opts.OutputDir, "download_manifest."+format)
	manifest.ManifestPath = manifestPath
	if err := formatter.WriteDownloadManifest(manifest, format, manifestPath); err != nil {
		manifest.ManifestPath = ""
		return manifest, fmt.Errorf("download completed but failed to write manifest: %w", err)
	}
	return manifest, nil
}

// downloadWorker pulls jobs until the channel closes or ctx is cancelled.
func downloadWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	gw ArtifactDownloader,
	limiter *rate.Limiter,
	jobs <-chan downloadJob,
	results chan<- models.ArtifactDownload,
	outputDir string,
) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}
		results <- downloadSingleArtifact(ctx, gw, job.artifact, outputDir)
	}
}

// downloadSingleArtifact writes one artifact to disk, removing partial files on failure.
func downloadSingleArtifact(ctx context.Context, gw ArtifactDownloader, a models.ArtifactDownload, outputDir string) models.ArtifactDownload {
	dir := filepath.Join(outputDir, a.FileID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		a.Error = fmt.Sprintf("create directory: %v", err)
		return a
	}

	path := filepath.Join(dir, a.Filename)
	f, err := os.Create(path)
	if err != nil {
		a.Error = fmt.Sprintf("create file: %v", err)
		return a
	}

	n, err := gw.DownloadArtifact(ctx, a.FileID, a.Filename, f)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		a.Error = err.Error()
		return a
	}

	a.Path = path
	a.Bytes = n
	a.Success = true
	return a
}
