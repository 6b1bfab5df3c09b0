package downloader

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"vidfetch/internal/extractor"
	"vidfetch/internal/fetcher"
	"vidfetch/internal/jobs"
	"vidfetch/internal/library"
	"vidfetch/pkg/models"
)

var (
	ErrStopped     = errors.New("orchestrator is stopped")
	ErrEmptyURL    = errors.New("url must not be empty")
	ErrJobFinished = errors.New("job already finished")
)

const defaultMaxConcurrent = 4

// Resolver picks the extractor for a URL
type Resolver interface {
	Resolve(rawURL string) extractor.Extractor
}

// StreamFetcher downloads a direct stream URL
type StreamFetcher interface {
	Fetch(ctx context.Context, streamURL, destPath string, onProgress fetcher.ProgressFunc) (string, error)
}

// Transcoder remuxes a streaming reference into a playable file
type Transcoder interface {
	ToPlayableFile(ctx context.Context, streamRef, destPath string) (string, error)
}

// FullDownloader hands the whole job to an external tool. onProgress may be nil.
type FullDownloader interface {
	DownloadFull(ctx context.Context, url, destTemplate string, onProgress fetcher.ProgressFunc) (string, error)
}

// Options wires the orchestrator's collaborators. Transcoder and Backend
// may be nil, in which case their strategies always fail.
type Options struct {
	Registry      *jobs.Registry
	Library       *library.Library
	Resolver      Resolver
	Fetcher       StreamFetcher
	Transcoder    Transcoder
	Backend       FullDownloader
	MaxConcurrent int
	Logger        *zap.Logger
}

// Orchestrator runs each submitted job on its own goroutine through
// extraction and the download fallback chain
type Orchestrator struct {
	mu       sync.Mutex
	registry *jobs.Registry
	library  *library.Library
	resolver Resolver
	fetcher  StreamFetcher
	tx       Transcoder
	backend  FullDownloader
	sem      *semaphore.Weighted
	ctx      context.Context
	cancel   context.CancelFunc
	cancels  map[string]context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	log      *zap.Logger

	maxConcurrent int
}

// New creates an orchestrator. It must be started before jobs are accepted.
func New(opts Options) *Orchestrator {
	if opts.Registry == nil {
		opts.Registry = jobs.NewRegistry()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Orchestrator{
		registry:      opts.Registry,
		library:       opts.Library,
		resolver:      opts.Resolver,
		fetcher:       opts.Fetcher,
		tx:            opts.Transcoder,
		backend:       opts.Backend,
		sem:           semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		cancels:       make(map[string]context.CancelFunc),
		log:           opts.Logger.Named("orchestrator"),
		maxConcurrent: opts.MaxConcurrent,
	}
}

// Start begins accepting jobs
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil
	}

	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.running = true
	o.log.Info("orchestrator started", zap.Int("max_concurrent", o.maxConcurrent))

	return nil
}

// Stop cancels every running job and waits for them to finish
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}

	o.cancel()
	o.running = false
	o.mu.Unlock()

	o.wg.Wait()
	o.log.Info("orchestrator stopped")

	return nil
}

// Running reports whether jobs are accepted
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Submit registers a job for sourceURL and starts it in the background.
// It returns as soon as the job exists.
func (o *Orchestrator) Submit(sourceURL string) (string, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return "", ErrEmptyURL
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return "", ErrStopped
	}

	job, err := o.registry.Create(sourceURL)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(o.ctx)
	o.cancels[job.ID] = cancel

	o.wg.Add(1)
	go o.run(ctx, job.ID, sourceURL)

	o.log.Info("job submitted", zap.String("job_id", job.ID), zap.String("url", sourceURL))
	return job.ID, nil
}

// GetStatus returns a snapshot of the job
func (o *Orchestrator) GetStatus(jobID string) (models.Job, error) {
	return o.registry.Get(jobID)
}

// Cancel stops a running job. The job ends failed with FailureCancelled.
func (o *Orchestrator) Cancel(jobID string) error {
	job, err := o.registry.Get(jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrJobFinished
	}

	o.mu.Lock()
	cancel, ok := o.cancels[jobID]
	o.mu.Unlock()

	if ok {
		cancel()
		o.log.Info("job cancel requested", zap.String("job_id", jobID))
	}
	return nil
}

// Wait polls until the job is terminal or ctx is done
func (o *Orchestrator) Wait(ctx context.Context, jobID string, interval time.Duration) (models.Job, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := o.registry.Get(jobID)
		if err != nil || job.Status.IsTerminal() {
			return job, err
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ListJobs returns every tracked job, newest first, followed by files in the
// download directory that no job accounts for
func (o *Orchestrator) ListJobs() []models.Job {
	tracked := o.registry.List()

	list := make([]models.Job, 0, len(tracked))
	claimed := make(map[string]bool, len(tracked))
	for i := len(tracked) - 1; i >= 0; i-- {
		job := tracked[i]
		if job.FilePath != "" {
			claimed[job.FilePath] = true
			if o.library != nil {
				if entry, err := o.library.Stat(job.FilePath); err == nil {
					job.FileSize = entry.Size
				}
			}
		}
		list = append(list, job)
	}

	if o.library == nil {
		return list
	}

	entries, err := o.library.List()
	if err != nil {
		o.log.Warn("failed to scan download directory", zap.Error(err))
		return list
	}

	for _, entry := range entries {
		if claimed[entry.Path] {
			continue
		}
		list = append(list, models.Job{
			ID:        library.EntryID(entry.Name),
			Status:    models.JobCompleted,
			Progress:  100,
			Title:     strings.TrimSuffix(entry.Name, filepath.Ext(entry.Name)),
			FilePath:  entry.Path,
			FileSize:  entry.Size,
			CreatedAt: entry.ModTime,
			UpdatedAt: entry.ModTime,
		})
	}

	return list
}

func (o *Orchestrator) release(jobID string) {
	o.mu.Lock()
	cancel, ok := o.cancels[jobID]
	delete(o.cancels, jobID)
	o.mu.Unlock()

	if ok {
		cancel()
	}
}
