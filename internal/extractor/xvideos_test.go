package extractor

import (
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidfetch/pkg/models"
)

func TestXVideosExtract(t *testing.T) {
	tests := []struct {
		name       string
		page       string
		wantTitle  string
		wantStream string
		wantKind   models.ContainerKind
		wantFile   string
	}{
		{
			name: "hls preferred over high mp4",
			page: `<html><head><title>Test Clip - XVIDEOS.COM</title></head><script>
html5player.setVideoUrlHigh('https://cdn.example.com/high.mp4');
html5player.setVideoHLS('https://hls.example.com/master.m3u8');
</script></html>`,
			wantTitle:  "Test_Clip",
			wantStream: "https://hls.example.com/master.m3u8",
			wantKind:   models.ContainerHLS,
			wantFile:   "Test_Clip.m3u8",
		},
		{
			name: "high before low",
			page: `<title>Clip</title>
html5player.setVideoUrlLow("https://cdn.example.com/low.mp4");
html5player.setVideoUrlHigh("https://cdn.example.com/high.mp4");`,
			wantTitle:  "Clip",
			wantStream: "https://cdn.example.com/high.mp4",
			wantKind:   models.ContainerMP4,
			wantFile:   "Clip.mp4",
		},
		{
			name:       "low only",
			page:       `<title>Clip</title>html5player.setVideoUrlLow('https://cdn.example.com/low.mp4')`,
			wantTitle:  "Clip",
			wantStream: "https://cdn.example.com/low.mp4",
			wantKind:   models.ContainerMP4,
			wantFile:   "Clip.mp4",
		},
		{
			name:       "bare cdn link",
			page:       `<title>Clip</title><a href="https://cdn77.example.com/v/file.mp4?secure=1">`,
			wantTitle:  "Clip",
			wantStream: "https://cdn77.example.com/v/file.mp4?secure=1",
			wantKind:   models.ContainerMP4,
			wantFile:   "Clip.mp4",
		},
		{
			name:       "missing title uses default",
			page:       `html5player.setVideoHLS('https://hls.example.com/master.m3u8')`,
			wantTitle:  "xvideos_video",
			wantStream: "https://hls.example.com/master.m3u8",
			wantKind:   models.ContainerHLS,
			wantFile:   "xvideos_video.m3u8",
		},
		{
			name:       "hostile title stays inside root",
			page:       `<title>../../etc/passwd - XVIDEOS.COM</title>html5player.setVideoUrlHigh('https://cdn.example.com/high.mp4')`,
			wantTitle:  "etc_passwd",
			wantStream: "https://cdn.example.com/high.mp4",
			wantKind:   models.ContainerMP4,
			wantFile:   "etc_passwd.mp4",
		},
		{
			name:       "html entities in title",
			page:       `<title>Tom &amp; Jerry - XVIDEOS.COM</title>html5player.setVideoUrlHigh('https://cdn.example.com/high.mp4')`,
			wantTitle:  "Tom_&_Jerry",
			wantStream: "https://cdn.example.com/high.mp4",
			wantKind:   models.ContainerMP4,
			wantFile:   "Tom_&_Jerry.mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := pageServer(t, http.StatusOK, tt.page)
			lib := newTestLibrary(t)
			x := NewXVideos(srv.Client(), lib, nil)

			info, err := x.Extract(t.Context(), srv.URL)
			require.NoError(t, err)

			assert.Equal(t, tt.wantTitle, info.Title)
			assert.Equal(t, srv.URL, info.SourceURL)
			assert.Equal(t, tt.wantStream, info.StreamURL)
			assert.Equal(t, tt.wantKind, info.ContainerKind)
			assert.Equal(t, filepath.Join(lib.Root(), tt.wantFile), info.OutputPath)
			assert.True(t, lib.Contains(info.OutputPath))
		})
	}
}

func TestXVideosNoStream(t *testing.T) {
	srv, _ := pageServer(t, http.StatusOK, `<title>Nothing here</title><p>no player</p>`)
	x := NewXVideos(srv.Client(), newTestLibrary(t), nil)

	info, err := x.Extract(t.Context(), srv.URL)
	assert.Nil(t, info)
	assert.ErrorIs(t, err, ErrNoStreamFound)

	var extErr *Error
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "xvideos", extErr.Site)
}
