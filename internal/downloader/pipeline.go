package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"vidfetch/internal/fetcher"
	"vidfetch/internal/jobs"
	"vidfetch/pkg/models"
)

// Strategy names recorded on jobs
const (
	StrategyTranscode = "transcode"
	StrategyDirect    = "direct"
	StrategyBackend   = "backend"
)

var (
	ErrStrategiesExhausted = errors.New("all download strategies exhausted")
	errNoTranscoder        = errors.New("no transcoder configured")
	errNoFetcher           = errors.New("no stream fetcher configured")
	errNoBackend           = errors.New("no backend configured")
	errEmptyResult         = errors.New("strategy returned no file")
)

// run drives one job from extraction to a terminal state
func (o *Orchestrator) run(ctx context.Context, jobID, sourceURL string) {
	defer o.wg.Done()
	defer o.release(jobID)

	log := o.log.With(zap.String("job_id", jobID))

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.finishCancelled(jobID, log)
		return
	}
	defer o.sem.Release(1)

	if _, err := o.registry.Transition(jobID, models.JobExtractingInfo); err != nil {
		log.Error("failed to start extraction", zap.Error(err))
		return
	}

	info, err := o.extract(ctx, sourceURL)
	if err != nil {
		if ctx.Err() != nil {
			o.finishCancelled(jobID, log)
			return
		}
		log.Warn("extraction failed", zap.Error(err))
		o.fail(jobID, models.FailureExtraction, err.Error(), log)
		return
	}

	if err := o.registry.SetTitle(jobID, info.Title); err != nil {
		log.Error("failed to record title", zap.Error(err))
	}
	if _, err := o.registry.Transition(jobID, models.JobDownloading); err != nil {
		log.Error("failed to start download", zap.Error(err))
		return
	}

	log.Info("downloading",
		zap.String("title", info.Title),
		zap.Stringer("kind", info.ContainerKind),
		zap.String("output", info.OutputPath),
	)

	path, strategy, err := o.download(ctx, jobID, info, log)
	if err != nil {
		if ctx.Err() != nil {
			o.finishCancelled(jobID, log)
			return
		}
		o.fail(jobID, models.FailureStrategiesExhausted, err.Error(), log)
		return
	}

	if _, err := o.registry.Complete(jobID, path, strategy); err != nil {
		log.Error("failed to record completion", zap.Error(err))
		return
	}
	log.Info("job completed", zap.String("strategy", strategy), zap.String("path", path))
}

func (o *Orchestrator) extract(ctx context.Context, sourceURL string) (info *models.VideoInfo, err error) {
	if o.resolver == nil {
		return nil, errors.New("no extractor configured")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panicked: %v", r)
		}
	}()

	return o.resolver.Resolve(sourceURL).Extract(ctx, sourceURL)
}

// download walks the fallback chain and returns the first produced file
func (o *Orchestrator) download(ctx context.Context, jobID string, info *models.VideoInfo, log *zap.Logger) (string, string, error) {
	var failures *multierror.Error

	if info.ContainerKind == models.ContainerHLS {
		path, err := o.attempt(jobID, StrategyTranscode, log, func() (string, error) {
			if o.tx == nil {
				return "", errNoTranscoder
			}
			return o.tx.ToPlayableFile(ctx, info.StreamURL, info.OutputPath)
		})
		if err == nil {
			return path, StrategyTranscode, nil
		}
		failures = multierror.Append(failures, err)
	}

	if ctx.Err() == nil && info.StreamURL != "" {
		path, err := o.attempt(jobID, StrategyDirect, log, func() (string, error) {
			if o.fetcher == nil {
				return "", errNoFetcher
			}
			return o.fetcher.Fetch(ctx, info.StreamURL, info.OutputPath, o.progressRecorder(jobID, log))
		})
		if err == nil {
			return path, StrategyDirect, nil
		}
		failures = multierror.Append(failures, err)
	}

	if ctx.Err() == nil {
		path, err := o.attempt(jobID, StrategyBackend, log, func() (string, error) {
			if o.backend == nil {
				return "", errNoBackend
			}
			template := strings.TrimSuffix(info.OutputPath, filepath.Ext(info.OutputPath))
			return o.backend.DownloadFull(ctx, info.SourceURL, template, o.progressRecorder(jobID, log))
		})
		if err == nil {
			return path, StrategyBackend, nil
		}
		failures = multierror.Append(failures, err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", "", ctxErr
	}

	failures.ErrorFormat = joinErrors
	return "", "", fmt.Errorf("%w: %w", ErrStrategiesExhausted, failures)
}

// attempt runs one strategy, turning panics and missing files into failures
func (o *Orchestrator) attempt(jobID, name string, log *zap.Logger, fn func() (string, error)) (path string, err error) {
	if err := o.registry.AddAttempt(jobID, name); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", name, r)
			path = ""
		}
		if err != nil {
			log.Warn("strategy failed", zap.String("strategy", name), zap.Error(err))
		}
	}()

	path, err = fn()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if path == "" {
		return "", fmt.Errorf("%s: %w", name, errEmptyResult)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return "", fmt.Errorf("%s: output missing: %w", name, statErr)
	}

	return path, nil
}

// progressRecorder mirrors fetch and backend progress into the registry; logging is sampled
func (o *Orchestrator) progressRecorder(jobID string, log *zap.Logger) fetcher.ProgressFunc {
	sometimes := rate.Sometimes{First: 1, Interval: 5 * time.Second}
	return func(p fetcher.Progress) {
		err := o.registry.UpdateProgress(jobID, jobs.ProgressUpdate{
			Percent:         p.Percent,
			BytesDownloaded: p.Downloaded,
			TotalBytes:      p.Total,
			Speed:           p.BytesPerSecond,
		})
		if err != nil {
			log.Debug("failed to record progress", zap.Error(err))
		}

		sometimes.Do(func() {
			log.Info("download progress",
				zap.Int("percent", p.Percent),
				zap.Int64("downloaded", p.Downloaded),
				zap.Int64("total", p.Total),
				zap.Float64("bytes_per_second", p.BytesPerSecond),
			)
		})
	}
}

func (o *Orchestrator) fail(jobID string, kind models.FailureKind, message string, log *zap.Logger) {
	if _, err := o.registry.Fail(jobID, kind, message); err != nil {
		log.Error("failed to record failure", zap.Error(err))
		return
	}
	log.Warn("job failed", zap.String("failure_kind", string(kind)), zap.String("error", message))
}

func (o *Orchestrator) finishCancelled(jobID string, log *zap.Logger) {
	o.fail(jobID, models.FailureCancelled, "download cancelled", log)
}

func joinErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
