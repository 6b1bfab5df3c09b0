package extractor

import (
	"net/url"
	"strings"

	"go.uber.org/zap"

	"vidfetch/internal/library"
)

// Dispatcher maps a URL host onto the extractor responsible for it
type Dispatcher struct {
	sites    map[string]Extractor
	fallback Extractor
}

// NewDispatcher creates a dispatcher that falls back to fallback for unknown hosts
func NewDispatcher(fallback Extractor) *Dispatcher {
	return &Dispatcher{
		sites:    make(map[string]Extractor),
		fallback: fallback,
	}
}

// NewDefaultDispatcher wires the built-in site table
func NewDefaultDispatcher(client HTTPClient, yt YouTubeClient, backend Prober, lib *library.Library, logger *zap.Logger) *Dispatcher {
	d := NewDispatcher(NewGeneric(backend, lib, logger))
	d.Register("xvideos.com", NewXVideos(client, lib, logger))
	d.Register("pornhub.com", NewPornhub(client, lib, logger))

	youTube := NewYouTube(yt, lib, logger)
	d.Register("youtube.com", youTube)
	d.Register("youtu.be", youTube)
	return d
}

// Register binds a site identifier. The host matches when it equals the
// identifier or ends with "." + identifier.
func (d *Dispatcher) Register(site string, e Extractor) {
	d.sites[strings.ToLower(site)] = e
}

// Resolve never fails: unknown or unparsable URLs get the fallback extractor
func (d *Dispatcher) Resolve(rawURL string) Extractor {
	host := hostOf(rawURL)
	if host == "" {
		return d.fallback
	}

	if e, ok := d.sites[host]; ok {
		return e
	}

	// Walk up the labels: a.b.example.com -> b.example.com -> example.com
	for i := strings.IndexByte(host, '.'); i >= 0; i = strings.IndexByte(host, '.') {
		host = host[i+1:]
		if e, ok := d.sites[host]; ok {
			return e
		}
	}

	return d.fallback
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}
