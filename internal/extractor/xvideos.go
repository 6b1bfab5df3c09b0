package extractor

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"vidfetch/internal/library"
	"vidfetch/pkg/models"
)

// Checked in order; HLS is preferred over the progressive MP4 variants
var xvideosPatterns = []streamPattern{
	{name: "hls", re: regexp.MustCompile(`html5player\.setVideoHLS\(['"](.+?)['"]\)`), kind: models.ContainerHLS},
	{name: "high", re: regexp.MustCompile(`html5player\.setVideoUrlHigh\(['"](.+?)['"]\)`), kind: models.ContainerMP4},
	{name: "low", re: regexp.MustCompile(`html5player\.setVideoUrlLow\(['"](.+?)['"]\)`), kind: models.ContainerMP4},
	{name: "cdn", re: regexp.MustCompile(`(https?://(?:www\.)?cdn[^'"\s]+\.mp4[^'"\s]*)`), kind: models.ContainerMP4},
}

// XVideos scrapes xvideos.com watch pages
type XVideos struct {
	scraper
}

// NewXVideos creates the xvideos extractor. A nil client uses http.DefaultClient.
func NewXVideos(client HTTPClient, lib *library.Library, logger *zap.Logger) *XVideos {
	return &XVideos{scraper: newScraper("xvideos", "xvideos_video", " - XVIDEOS.COM", client, lib, logger)}
}

// Name returns the site identifier
func (x *XVideos) Name() string { return x.site }

// Extract scrapes the watch page for an HLS playlist or MP4 URL
func (x *XVideos) Extract(ctx context.Context, rawURL string) (*models.VideoInfo, error) {
	page, err := x.fetchPage(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	title := x.title(page)

	streamURL, pattern, ok := matchFirst(xvideosPatterns, page)
	if !ok {
		return nil, x.fail(NoStreamFound, nil)
	}

	x.log.Debug("stream found", zap.String("pattern", pattern.name), zap.Stringer("kind", pattern.kind))
	return x.videoInfo(rawURL, title, streamURL, pattern.kind)
}
