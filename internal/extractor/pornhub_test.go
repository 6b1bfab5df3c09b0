package extractor

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidfetch/pkg/models"
)

func TestPornhubExtract(t *testing.T) {
	tests := []struct {
		name       string
		page       string
		wantTitle  string
		wantStream string
	}{
		{
			name: "720p preferred",
			page: `<title>Some Clip - Pornhub.com</title><script>
var flashvars_123 = {"quality_480p":"https:\/\/cdn.example.com\/480.mp4","quality_720p":"https:\/\/cdn.example.com\/720.mp4"};
</script>`,
			wantTitle:  "Some_Clip",
			wantStream: "https://cdn.example.com/720.mp4",
		},
		{
			name:       "480p when no 720p",
			page:       `<title>Clip</title>var flashvars_9 = {"quality_240p":"https:\/\/cdn.example.com\/240.mp4","quality_480p":"https:\/\/cdn.example.com\/480.mp4"};`,
			wantTitle:  "Clip",
			wantStream: "https://cdn.example.com/480.mp4",
		},
		{
			name:       "240p last resort",
			page:       `<title>Clip</title>var flashvars_9 = {"quality_240p":"https:\/\/cdn.example.com\/240.mp4"};`,
			wantTitle:  "Clip",
			wantStream: "https://cdn.example.com/240.mp4",
		},
		{
			name: "media definitions sorted by quality",
			page: `var flashvars_42 = {
"mediaDefinitions":[{"format":"mp4","quality":"480","videoUrl":"https:\/\/cdn.example.com\/480.mp4"},{"format":"mp4","quality":"1080","videoUrl":"https:\/\/cdn.example.com\/1080.mp4"},{"format":"mp4","quality":"auto","videoUrl":"https:\/\/cdn.example.com\/auto.mp4"}]
};`,
			wantTitle:  "pornhub_video",
			wantStream: "https://cdn.example.com/1080.mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := pageServer(t, http.StatusOK, tt.page)
			p := NewPornhub(srv.Client(), newTestLibrary(t), nil)

			info, err := p.Extract(t.Context(), srv.URL)
			require.NoError(t, err)

			assert.Equal(t, tt.wantTitle, info.Title)
			assert.Equal(t, tt.wantStream, info.StreamURL)
			assert.Equal(t, models.ContainerMP4, info.ContainerKind)
			assert.Equal(t, ".mp4", info.OutputPath[len(info.OutputPath)-4:])
		})
	}
}

func TestPornhubNoStream(t *testing.T) {
	tests := []struct {
		name string
		page string
	}{
		{name: "no flashvars", page: `<title>Clip</title>"quality_720p":"https:\/\/cdn.example.com\/720.mp4"`},
		{name: "flashvars without qualities", page: `<title>Clip</title>var flashvars_1 = {"autoplay":true};`},
		{name: "empty media definitions", page: `var flashvars_1 = {"mediaDefinitions":[]};`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := pageServer(t, http.StatusOK, tt.page)
			p := NewPornhub(srv.Client(), newTestLibrary(t), nil)

			_, err := p.Extract(t.Context(), srv.URL)
			assert.ErrorIs(t, err, ErrNoStreamFound)
		})
	}
}
