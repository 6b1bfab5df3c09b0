// Package fetcher streams a remote resource into a local file with progress
// reporting. Data lands in a uniquely named ".part" sibling which is renamed
// into place only once the transfer has finished.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"vidfetch/internal/library"
	"vidfetch/internal/useragent"
)

const (
	DefaultChunkSize   = 8192
	DefaultIdleTimeout = 30 * time.Second

	headTimeout   = 10 * time.Second
	headerTimeout = 30 * time.Second
)

var errStalled = errors.New("no data received within the idle timeout")

// Kind classifies fetch failures
type Kind int

const (
	NetworkFailure Kind = iota
	HTTPStatus
	Timeout
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case HTTPStatus:
		return "http status"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	default:
		return "network failure"
	}
}

// Error describes why a fetch failed
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == HTTPStatus:
		return fmt.Sprintf("fetch: unexpected status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch: %s: %v", e.Kind, e.Err)
	default:
		return "fetch: " + e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Progress is reported after every chunk written
type Progress struct {
	Downloaded     int64
	Total          int64 // 0 when the size is unknown
	Percent        int
	Elapsed        time.Duration
	BytesPerSecond float64
}

// ProgressFunc receives progress updates; it runs on the fetching goroutine
type ProgressFunc func(Progress)

// HTTPClient is the subset of *http.Client the fetcher needs
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads streams over HTTP
type Fetcher struct {
	client      HTTPClient
	chunkSize   int
	idleTimeout time.Duration
	log         *zap.Logger
}

// New creates a fetcher. A nil client uses a client with a response header timeout.
func New(client HTTPClient, chunkSize int, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: headerTimeout,
		}}
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:      client,
		chunkSize:   chunkSize,
		idleTimeout: DefaultIdleTimeout,
		log:         logger.Named("fetcher"),
	}
}

// SetIdleTimeout bounds how long the body may go without delivering data.
// Zero or less disables the limit.
func (f *Fetcher) SetIdleTimeout(d time.Duration) {
	f.idleTimeout = d
}

// Fetch saves streamURL to destPath and returns destPath. When destPath
// already exists it is returned immediately without any request.
func (f *Fetcher) Fetch(ctx context.Context, streamURL, destPath string, onProgress ProgressFunc) (string, error) {
	if info, err := os.Stat(destPath); err == nil && !info.IsDir() {
		f.log.Debug("file already present, skipping", zap.String("path", destPath))
		return destPath, nil
	}

	total := f.probeSize(ctx, streamURL)

	reqCtx, cancelReq := context.WithCancelCause(ctx)
	defer cancelReq(nil)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, streamURL, nil)
	if err != nil {
		return "", &Error{Kind: NetworkFailure, Err: err}
	}
	req.Header.Set("User-Agent", useragent.Random())

	resp, err := f.client.Do(req)
	if err != nil {
		return "", classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Kind: HTTPStatus, StatusCode: resp.StatusCode}
	}

	if total <= 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	// Each transfer gets its own part file; concurrent fetches of one
	// destination must not write into each other
	part, err := os.CreateTemp(dir, filepath.Base(destPath)+".*"+library.PartialSuffix)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	partPath := part.Name()
	if err := part.Chmod(0644); err != nil {
		part.Close()
		os.Remove(partPath)
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	var body io.Reader = resp.Body
	if f.idleTimeout > 0 {
		idle := newIdleReader(resp.Body, f.idleTimeout, func() { cancelReq(errStalled) })
		defer idle.stop()
		body = idle
	}

	if err := f.copyTo(ctx, part, body, total, onProgress); err != nil {
		part.Close()
		os.Remove(partPath)
		if errors.Is(context.Cause(reqCtx), errStalled) {
			f.log.Warn("transfer stalled", zap.String("url", streamURL), zap.Duration("idle_timeout", f.idleTimeout))
			return "", &Error{Kind: Timeout, Err: errStalled}
		}
		return "", err
	}
	if err := part.Close(); err != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(partPath, destPath); err != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}

	return destPath, nil
}

// probeSize issues a HEAD request for Content-Length. Failures mean "unknown".
func (f *Fetcher) probeSize(ctx context.Context, streamURL string) int64 {
	ctx, cancel := context.WithTimeout(ctx, headTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, streamURL, nil)
	if err != nil {
		return 0
	}
	req.Header.Set("User-Agent", useragent.Random())

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Debug("HEAD probe failed", zap.Error(err))
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0
	}

	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil || size < 0 {
		return 0
	}
	return size
}

func (f *Fetcher) copyTo(ctx context.Context, out io.Writer, body io.Reader, total int64, onProgress ProgressFunc) error {
	buf := make([]byte, f.chunkSize)
	start := time.Now()
	var downloaded int64

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			downloaded += int64(n)
			if onProgress != nil {
				onProgress(ProgressOf(downloaded, total, time.Since(start)))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return classify(ctx, readErr)
		}
	}

	return nil
}

// idleReader fires onIdle when no bytes arrive for the idle period
type idleReader struct {
	r     io.Reader
	idle  time.Duration
	timer *time.Timer
}

func newIdleReader(r io.Reader, idle time.Duration, onIdle func()) *idleReader {
	return &idleReader{r: r, idle: idle, timer: time.AfterFunc(idle, onIdle)}
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.idle)
	}
	return n, err
}

func (ir *idleReader) stop() {
	ir.timer.Stop()
}

// ProgressOf derives percent and rate from byte counts. A zero total leaves
// Percent at 0.
func ProgressOf(downloaded, total int64, elapsed time.Duration) Progress {
	p := Progress{Downloaded: downloaded, Total: total, Elapsed: elapsed}
	if total > 0 {
		p.Percent = int(downloaded * 100 / total)
		if p.Percent > 100 {
			p.Percent = 100
		}
	}
	if secs := elapsed.Seconds(); secs > 0 {
		p.BytesPerSecond = float64(downloaded) / secs
	}
	return p
}

func classify(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		return &Error{Kind: Cancelled, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: Timeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: Timeout, Err: err}
	}
	return &Error{Kind: NetworkFailure, Err: err}
}
