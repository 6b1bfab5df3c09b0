// Package transcode remuxes streaming references (HLS playlists, mostly)
// into a single MP4 file using ffmpeg stream copy.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	stderrTail = 1024
	partSuffix = ".part"
)

// Kind classifies transcoder failures
type Kind int

const (
	ProcessUnavailable Kind = iota
	ProcessExitNonZero
	OutputFileMissing
)

func (k Kind) String() string {
	switch k {
	case ProcessUnavailable:
		return "ffmpeg unavailable"
	case ProcessExitNonZero:
		return "ffmpeg exited with error"
	default:
		return "ffmpeg produced no output"
	}
}

// Error describes why a transcode failed
type Error struct {
	Kind   Kind
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transcoder runs ffmpeg
type Transcoder struct {
	binary  string
	timeout time.Duration
	log     *zap.Logger
}

// New creates a transcoder for the given ffmpeg binary. A zero timeout disables the limit.
func New(binary string, timeout time.Duration, logger *zap.Logger) *Transcoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transcoder{binary: binary, timeout: timeout, log: logger.Named("transcode")}
}

// Args returns the ffmpeg arguments for copying ref into an MP4 at out
func Args(ref, out string) []string {
	return []string{
		"-y",
		"-i", ref,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-f", "mp4",
		out,
	}
}

// OutputPath forces the .mp4 extension onto destPath
func OutputPath(destPath string) string {
	return strings.TrimSuffix(destPath, filepath.Ext(destPath)) + ".mp4"
}

// ToPlayableFile remuxes streamRef into an MP4 next to destPath and returns its path
func (t *Transcoder) ToPlayableFile(ctx context.Context, streamRef, destPath string) (string, error) {
	out := OutputPath(destPath)
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	// ffmpeg writes beside the target so a failed run never clobbers it.
	// The name is unique per run; two jobs may transcode to the same output.
	partPath, err := reservePart(out)
	if err != nil {
		return "", err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, Args(streamRef, partPath)...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	t.log.Info("transcoding", zap.String("output", out))
	start := time.Now()

	if err := cmd.Run(); err != nil {
		os.Remove(partPath)
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return "", &Error{Kind: ProcessUnavailable, Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &Error{Kind: ProcessExitNonZero, Err: ctxErr}
		}
		return "", &Error{Kind: ProcessExitNonZero, Err: err, Stderr: tail(stderr.String())}
	}

	// The reserved part file starts empty; ffmpeg must have written into it
	if info, err := os.Stat(partPath); err != nil || info.IsDir() || info.Size() == 0 {
		os.Remove(partPath)
		return "", &Error{Kind: OutputFileMissing}
	}

	if err := os.Rename(partPath, out); err != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("failed to move output into place: %w", err)
	}

	t.log.Info("transcode finished", zap.String("output", out), zap.Duration("took", time.Since(start)))
	return out, nil
}

// reservePart creates an empty, uniquely named part file next to out
func reservePart(out string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(out), filepath.Base(out)+".*"+partSuffix)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := f.Chmod(0644); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	return f.Name(), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = s[len(s)-stderrTail:]
	}
	return s
}
