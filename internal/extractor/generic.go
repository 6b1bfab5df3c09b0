package extractor

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"vidfetch/internal/library"
	"vidfetch/internal/ytdl"
	"vidfetch/pkg/models"
)

// Prober is the backend call the generic extractor relies on
type Prober interface {
	Probe(ctx context.Context, url string) (*ytdl.ProbeResult, error)
}

// Generic handles any site the backend understands
type Generic struct {
	backend Prober
	lib     *library.Library
	log     *zap.Logger
}

// NewGeneric creates the fallback extractor backed by the yt-dlp prober
func NewGeneric(backend Prober, lib *library.Library, logger *zap.Logger) *Generic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generic{backend: backend, lib: lib, log: logger.Named("generic")}
}

// Name returns "generic"
func (g *Generic) Name() string { return "generic" }

// Extract asks the backend for metadata and a stream URL. A nil backend
// reports the source as unsupported.
func (g *Generic) Extract(ctx context.Context, rawURL string) (*models.VideoInfo, error) {
	if g.backend == nil {
		return nil, &Error{Kind: UnsupportedSource, Site: g.Name(), Err: ytdl.ErrBackendUnavailable}
	}

	result, err := g.backend.Probe(ctx, rawURL)
	if err != nil {
		return nil, &Error{Kind: UnsupportedSource, Site: g.Name(), Err: err}
	}
	if result.StreamURL == "" {
		return nil, &Error{Kind: UnsupportedSource, Site: g.Name(), Err: ytdl.ErrNoResult}
	}

	kind := probeKind(result)
	title := library.SanitizeTitle(result.Title, "video")
	g.log.Debug("backend resolved stream", zap.String("ext", result.Ext), zap.String("protocol", result.Protocol))

	return buildVideoInfo(g.lib, g.Name(), rawURL, title, result.StreamURL, kind, result.Ext)
}

func probeKind(r *ytdl.ProbeResult) models.ContainerKind {
	ext := strings.ToLower(r.Ext)
	switch {
	case strings.Contains(strings.ToLower(r.Protocol), "m3u8"), ext == "m3u8":
		return models.ContainerHLS
	case ext == "mp4":
		return models.ContainerMP4
	default:
		return models.ContainerOther
	}
}
