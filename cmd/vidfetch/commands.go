package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"vidfetch/internal/api"
	"vidfetch/internal/config"
	"vidfetch/internal/downloader"
	"vidfetch/internal/extractor"
	"vidfetch/internal/fetcher"
	"vidfetch/internal/library"
	"vidfetch/internal/logging"
	"vidfetch/internal/transcode"
	"vidfetch/internal/ytdl"
	"vidfetch/pkg/models"
)

const pollInterval = 200 * time.Millisecond

// loadConfig reads the config file and applies environment overrides
func loadConfig(c *cli.Context) (*models.Config, error) {
	mgr, err := config.NewManager(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := mgr.ApplyEnv(c.String("env-file")); err != nil {
		return nil, err
	}
	return mgr.Get(), nil
}

// setupLogging installs the process logger; the returned func flushes and restores it
func setupLogging(cfg *models.Config, development bool) (*zap.Logger, func(), error) {
	logger, err := logging.New(cfg.LogLevel, development)
	if err != nil {
		return nil, nil, err
	}
	undo := logging.Install(logger)
	return logger, func() {
		_ = logger.Sync()
		undo()
	}, nil
}

func utilsDir() string {
	return filepath.Join(config.GetDataDir(), "Utils")
}

// resolveBackendBinary returns the yt-dlp binary to run, installing it first
// when auto-install is enabled
func resolveBackendBinary(cfg *models.Config, logger *zap.Logger) string {
	if !cfg.YtdlAutoInstall {
		return cfg.YtdlPath
	}

	mgr := ytdl.NewManager(utilsDir())
	if err := mgr.EnsureInstalled(); err != nil {
		logger.Warn("failed to install yt-dlp, falling back to configured path",
			zap.String("path", cfg.YtdlPath), zap.Error(err))
		return cfg.YtdlPath
	}
	return mgr.GetYtdlpPath()
}

// newOrchestrator wires the extraction and download pipeline from cfg
func newOrchestrator(cfg *models.Config, lib *library.Library, logger *zap.Logger) *downloader.Orchestrator {
	backend := ytdl.NewBackend(
		resolveBackendBinary(cfg, logger),
		time.Duration(cfg.BackendTimeoutSec)*time.Second,
		logger,
	)

	return downloader.New(downloader.Options{
		Library:  lib,
		Resolver: extractor.NewDefaultDispatcher(nil, nil, backend, lib, logger),
		Fetcher:  fetcher.New(nil, cfg.ChunkSize, logger),
		Transcoder: transcode.New(
			cfg.FFmpegPath,
			time.Duration(cfg.TranscodeTimeoutSec)*time.Second,
			logger,
		),
		Backend:       backend,
		MaxConcurrent: cfg.MaxConcurrentJobs,
		Logger:        logger,
	})
}

func runServe(ctx context.Context, c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.WebServerPort = c.Int("port")
	}

	logger, flush, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer flush()

	lib, err := library.New(cfg.DownloadDir)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.WebServerPort, newOrchestrator(cfg, lib, logger), lib, logger)
	if err := server.Start(); err != nil {
		return err
	}
	logger.Info("serving downloads",
		zap.String("addr", server.GetActualAddr()),
		zap.String("download_dir", lib.Root()),
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return server.Stop()
}

func runFetch(ctx context.Context, c *cli.Context) error {
	urls := c.Args().Slice()
	if len(urls) == 0 {
		return errors.New("at least one URL is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if target := c.String("target"); target != "" {
		cfg.DownloadDir = target
	}

	// Bars own the terminal; keep the log quiet unless asked otherwise
	if cfg.LogLevel == models.DefaultConfig().LogLevel {
		cfg.LogLevel = "warn"
	}
	logger, flush, err := setupLogging(cfg, true)
	if err != nil {
		return err
	}
	defer flush()

	lib, err := library.New(cfg.DownloadDir)
	if err != nil {
		return err
	}

	orch := newOrchestrator(cfg, lib, logger)
	if err := orch.Start(); err != nil {
		return err
	}
	defer orch.Stop()

	var failures *multierror.Error
	for _, u := range urls {
		job, err := fetchOne(ctx, c, orch, u)
		if err != nil {
			failures = multierror.Append(failures, fmt.Errorf("%s: %w", u, err))
			continue
		}
		fmt.Fprintf(c.App.Writer, "%s -> %s\n", u, job.FilePath)
	}

	return failures.ErrorOrNil()
}

// fetchOne submits u and renders its progress until it finishes
func fetchOne(ctx context.Context, c *cli.Context, orch *downloader.Orchestrator, u string) (models.Job, error) {
	id, err := orch.Submit(u)
	if err != nil {
		return models.Job{}, err
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(c.App.ErrWriter),
		progressbar.OptionSetDescription(u),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		job, err := orch.GetStatus(id)
		if err != nil {
			return job, err
		}
		if job.Title != "" {
			bar.Describe(job.Title)
		}
		_ = bar.Set(job.Progress)

		switch job.Status {
		case models.JobCompleted:
			_ = bar.Finish()
			return job, nil
		case models.JobFailed:
			_ = bar.Clear()
			return job, errors.New(job.Error)
		}

		select {
		case <-ctx.Done():
			_ = orch.Cancel(id)
			_ = bar.Clear()
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func runInstallBackend(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	_, flush, err := setupLogging(cfg, true)
	if err != nil {
		return err
	}
	defer flush()

	mgr := ytdl.NewManager(utilsDir())

	if c.Bool("check") {
		latest, hasUpdate, err := mgr.CheckForUpdate()
		if err != nil {
			return err
		}
		switch {
		case !mgr.IsInstalled():
			fmt.Fprintf(c.App.Writer, "yt-dlp is not installed (latest %s)\n", latest)
		case hasUpdate:
			fmt.Fprintf(c.App.Writer, "update available: %s\n", latest)
		default:
			fmt.Fprintf(c.App.Writer, "yt-dlp is up to date (%s)\n", latest)
		}
		return nil
	}

	if mgr.IsInstalled() {
		if err := mgr.AutoUpdate(); err != nil {
			return err
		}
	} else if err := mgr.Download(); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "yt-dlp %s installed at %s\n", mgr.GetCurrentVersion(), mgr.GetYtdlpPath())
	return nil
}
