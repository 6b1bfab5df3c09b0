package ytdl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"

	"vidfetch/internal/fetcher"
	"vidfetch/internal/useragent"
)

var (
	ErrBackendUnavailable = errors.New("yt-dlp is not available")
	ErrBackendFailed      = errors.New("yt-dlp failed")
	ErrNoResult           = errors.New("yt-dlp returned no stream")
	ErrOutputMissing      = errors.New("yt-dlp produced no output file")
)

const (
	formatSelector   = "best[ext=mp4]/best"
	stderrTailSize   = 512
	progressInterval = 500 * time.Millisecond
)

// ProbeResult is the subset of yt-dlp's JSON dump the pipeline needs
type ProbeResult struct {
	Title     string `json:"title"`
	StreamURL string `json:"url"`
	Ext       string `json:"ext"`
	Protocol  string `json:"protocol"`
}

// Backend drives the yt-dlp executable for sites without a dedicated extractor
type Backend struct {
	binary  string
	timeout time.Duration
	log     *zap.Logger
}

// NewBackend creates a backend running binary. A zero timeout disables the limit.
func NewBackend(binary string, timeout time.Duration, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		binary:  binary,
		timeout: timeout,
		log:     logger.Named("backend"),
	}
}

// Binary returns the executable the backend runs
func (b *Backend) Binary() string {
	return b.binary
}

// command starts a yt-dlp invocation with the flags every call shares
func (b *Backend) command() *ytdlp.Command {
	return ytdlp.New().
		SetExecutable(b.binary).
		Format(formatSelector).
		NoPlaylist().
		NoWarnings().
		AddHeaders("User-Agent:" + useragent.Random())
}

// Probe asks yt-dlp for metadata and a direct stream URL without downloading
func (b *Backend) Probe(ctx context.Context, url string) (*ProbeResult, error) {
	stdout, err := b.run(ctx, b.command().DumpJSON(), url)
	if err != nil {
		return nil, err
	}

	var result ProbeResult
	if err := json.Unmarshal([]byte(firstJSONLine(stdout)), &result); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON output: %v", ErrBackendFailed, err)
	}

	if result.StreamURL == "" {
		return nil, ErrNoResult
	}

	return &result, nil
}

// DownloadFull lets yt-dlp fetch the whole video itself. destTemplate is the
// output path without extension; yt-dlp chooses the extension. The final
// file path is returned. onProgress, when set, receives yt-dlp's progress.
func (b *Backend) DownloadFull(ctx context.Context, url, destTemplate string, onProgress fetcher.ProgressFunc) (string, error) {
	if err := os.MkdirAll(filepath.Dir(destTemplate), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	dl := b.command().
		Output(destTemplate + ".%(ext)s").
		Print("after_move:filepath")
	if onProgress != nil {
		dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			onProgress(progressFromUpdate(update))
		})
	}

	stdout, err := b.run(ctx, dl, url)
	if err != nil {
		return "", err
	}

	if p := printedPath(stdout); p != "" {
		return p, nil
	}

	// Older builds ignore --print; look for what was written instead
	matches, _ := filepath.Glob(globEscape(destTemplate) + ".*")
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") || strings.HasSuffix(m, ".ytdl") {
			continue
		}
		if info, err := os.Stat(m); err == nil && !info.IsDir() {
			return m, nil
		}
	}

	return "", ErrOutputMissing
}

func (b *Backend) run(ctx context.Context, cmd *ytdlp.Command, url string) (string, error) {
	if _, err := exec.LookPath(b.binary); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	b.log.Debug("running yt-dlp", zap.String("url", url))
	result, err := cmd.Run(ctx, url)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %w", ErrBackendFailed, ctxErr)
		}
		var stderr string
		if result != nil {
			stderr = tail(result.Stderr)
		}
		return "", fmt.Errorf("%w: %v: %s", ErrBackendFailed, err, stderr)
	}
	if result == nil {
		return "", nil
	}

	return result.Stdout, nil
}

// progressFromUpdate maps a yt-dlp progress report onto the fetcher's shape
func progressFromUpdate(update ytdlp.ProgressUpdate) fetcher.Progress {
	var elapsed time.Duration
	if !update.Started.IsZero() {
		elapsed = time.Since(update.Started)
	}
	return fetcher.ProgressOf(int64(update.DownloadedBytes), int64(update.TotalBytes), elapsed)
}

func firstJSONLine(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "{") {
			return line
		}
	}
	return strings.TrimSpace(out)
}

// printedPath returns the last stdout line naming an existing file
func printedPath(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		p := strings.TrimSpace(lines[i])
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTailSize {
		s = s[len(s)-stderrTailSize:]
	}
	return s
}

func globEscape(p string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(p)
}
