package extractor

import (
	"context"
	"errors"
	"strings"

	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"

	"vidfetch/internal/library"
	"vidfetch/pkg/models"
)

// YouTubeClient is the part of *youtube.Client the extractor calls
type YouTubeClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
}

var _ YouTubeClient = (*youtube.Client)(nil)

var errNoProgressiveFormat = errors.New("no mp4 format with audio")

// YouTube resolves videos through the YouTube player API
type YouTube struct {
	client YouTubeClient
	lib    *library.Library
	log    *zap.Logger
}

// NewYouTube creates the YouTube extractor. A nil client uses a default youtube.Client.
func NewYouTube(client YouTubeClient, lib *library.Library, logger *zap.Logger) *YouTube {
	if client == nil {
		client = &youtube.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YouTube{client: client, lib: lib, log: logger.Named("youtube")}
}

// Name returns "youtube"
func (y *YouTube) Name() string { return "youtube" }

// Extract picks the best progressive MP4 format of the video
func (y *YouTube) Extract(ctx context.Context, rawURL string) (*models.VideoInfo, error) {
	video, err := y.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, &Error{Kind: classifyYouTubeErr(err), Site: y.Name(), Err: err}
	}

	title := library.SanitizeTitle(video.Title, "youtube_video")

	if video.HLSManifestURL != "" {
		return buildVideoInfo(y.lib, y.Name(), rawURL, title, video.HLSManifestURL, models.ContainerHLS, "")
	}

	format := bestProgressiveMP4(video.Formats)
	if format == nil {
		return nil, &Error{Kind: NoStreamFound, Site: y.Name(), Err: errNoProgressiveFormat}
	}

	streamURL, err := y.client.GetStreamURLContext(ctx, video, format)
	if err != nil {
		return nil, &Error{Kind: classifyYouTubeErr(err), Site: y.Name(), Err: err}
	}

	y.log.Debug("format selected", zap.Int("itag", format.ItagNo), zap.Int("height", format.Height))
	return buildVideoInfo(y.lib, y.Name(), rawURL, title, streamURL, models.ContainerMP4, "")
}

// bestProgressiveMP4 returns the tallest video/mp4 format that carries audio
func bestProgressiveMP4(formats youtube.FormatList) *youtube.Format {
	var best *youtube.Format
	withAudio := formats.WithAudioChannels()
	for i := range withAudio {
		f := &withAudio[i]
		if !strings.HasPrefix(f.MimeType, "video/mp4") || f.Height == 0 {
			continue
		}
		if best == nil || f.Height > best.Height || (f.Height == best.Height && f.Bitrate > best.Bitrate) {
			best = f
		}
	}
	return best
}

func classifyYouTubeErr(err error) Kind {
	switch {
	case errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrNotPlayableInEmbed),
		errors.Is(err, youtube.ErrInvalidCharactersInVideoID),
		errors.Is(err, youtube.ErrVideoIDMinLength):
		return UnsupportedSource
	default:
		return classifyNetErr(err)
	}
}
