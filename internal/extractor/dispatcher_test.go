package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidfetch/internal/library"
	"vidfetch/pkg/models"
)

type namedExtractor string

func (n namedExtractor) Name() string { return string(n) }

func (n namedExtractor) Extract(ctx context.Context, rawURL string) (*models.VideoInfo, error) {
	return nil, nil
}

func TestDispatcherResolve(t *testing.T) {
	d := NewDispatcher(namedExtractor("generic"))
	d.Register("xvideos.com", namedExtractor("xvideos"))
	d.Register("pornhub.com", namedExtractor("pornhub"))

	tests := []struct {
		url  string
		want string
	}{
		{url: "https://www.xvideos.com/video123/clip", want: "xvideos"},
		{url: "https://xvideos.com/video123", want: "xvideos"},
		{url: "https://WWW.XVIDEOS.COM/video123", want: "xvideos"},
		{url: "https://fr.xvideos.com:8443/video123", want: "xvideos"},
		{url: "https://www.xvideos.com./video123", want: "xvideos"},
		{url: "https://de.pornhub.com/view_video.php?viewkey=abc", want: "pornhub"},
		{url: "https://notxvideos.com/video123", want: "generic"},
		{url: "https://xvideos.com.evil.net/video123", want: "generic"},
		{url: "https://vimeo.com/123", want: "generic"},
		{url: "not a url at all", want: "generic"},
		{url: "://broken", want: "generic"},
		{url: "", want: "generic"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Resolve(tt.url).Name())
		})
	}
}

func TestNewDefaultDispatcher(t *testing.T) {
	lib, err := library.New(t.TempDir())
	require.NoError(t, err)

	d := NewDefaultDispatcher(nil, nil, nil, lib, nil)

	assert.IsType(t, &XVideos{}, d.Resolve("https://www.xvideos.com/v"))
	assert.IsType(t, &Pornhub{}, d.Resolve("https://www.pornhub.com/v"))
	assert.IsType(t, &YouTube{}, d.Resolve("https://www.youtube.com/watch?v=abc"))
	assert.IsType(t, &YouTube{}, d.Resolve("https://youtu.be/abc"))
	assert.IsType(t, &Generic{}, d.Resolve("https://example.com/v"))
}
