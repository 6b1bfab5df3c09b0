// Package extractor resolves a page URL into a downloadable stream.
//
// Site extractors scrape the page markup with ordered pattern lists; the
// generic extractor hands the URL to the yt-dlp backend. A Dispatcher picks
// the extractor for a URL by its host.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"vidfetch/internal/library"
	"vidfetch/internal/useragent"
	"vidfetch/pkg/models"
)

const (
	pageTimeout  = 15 * time.Second
	maxPageBytes = 16 << 20
)

// Kind classifies extraction failures
type Kind int

const (
	NoTitleFound Kind = iota
	NoStreamFound
	NetworkFailure
	NetworkTimeout
	UnsupportedSource
)

// Sentinels usable with errors.Is against any *Error of the matching kind
var (
	ErrNoTitleFound      = errors.New("no title found")
	ErrNoStreamFound     = errors.New("no stream found")
	ErrNetworkFailure    = errors.New("network failure")
	ErrNetworkTimeout    = errors.New("network timeout")
	ErrUnsupportedSource = errors.New("unsupported source")
)

func (k Kind) sentinel() error {
	switch k {
	case NoTitleFound:
		return ErrNoTitleFound
	case NoStreamFound:
		return ErrNoStreamFound
	case NetworkFailure:
		return ErrNetworkFailure
	case NetworkTimeout:
		return ErrNetworkTimeout
	default:
		return ErrUnsupportedSource
	}
}

func (k Kind) String() string {
	return k.sentinel().Error()
}

// Error is returned by every extractor
type Error struct {
	Kind Kind
	Site string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Site, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Site, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Extractor turns a page URL into a VideoInfo
type Extractor interface {
	Name() string
	Extract(ctx context.Context, rawURL string) (*models.VideoInfo, error)
}

// HTTPClient is the subset of *http.Client used for outgoing requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

var titlePattern = regexp.MustCompile(`<title>(.*?)</title>`)

// scraper holds what the page-scraping extractors share
type scraper struct {
	site         string
	defaultTitle string
	titleSuffix  string
	client       HTTPClient
	lib          *library.Library
	log          *zap.Logger
}

func newScraper(site, defaultTitle, titleSuffix string, client HTTPClient, lib *library.Library, logger *zap.Logger) scraper {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return scraper{
		site:         site,
		defaultTitle: defaultTitle,
		titleSuffix:  titleSuffix,
		client:       client,
		lib:          lib,
		log:          logger.Named(site),
	}
}

func (s *scraper) fail(kind Kind, err error) *Error {
	return &Error{Kind: kind, Site: s.site, Err: err}
}

// fetchPage downloads the page body with a randomized browser User-Agent
func (s *scraper) fetchPage(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", s.fail(UnsupportedSource, err)
	}
	req.Header.Set("User-Agent", useragent.Random())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", s.fail(classifyNetErr(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", s.fail(NetworkFailure, fmt.Errorf("page returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", s.fail(classifyNetErr(err), err)
	}

	return string(body), nil
}

// title extracts the page title, falling back to the site default
func (s *scraper) title(page string) string {
	m := titlePattern.FindStringSubmatch(page)
	if m == nil {
		s.log.Warn("page has no title, using default", zap.Error(s.fail(NoTitleFound, nil)))
		return s.defaultTitle
	}

	t := strings.TrimSpace(html.UnescapeString(m[1]))
	t = strings.TrimSpace(strings.TrimSuffix(t, s.titleSuffix))
	return library.SanitizeTitle(t, s.defaultTitle)
}

func (s *scraper) videoInfo(sourceURL, title, streamURL string, kind models.ContainerKind) (*models.VideoInfo, error) {
	return buildVideoInfo(s.lib, s.site, sourceURL, title, streamURL, kind, "")
}

func buildVideoInfo(lib *library.Library, site, sourceURL, title, streamURL string, kind models.ContainerKind, ext string) (*models.VideoInfo, error) {
	outputPath, err := lib.PathFor(title + kind.Extension(ext))
	if err != nil {
		return nil, &Error{Kind: UnsupportedSource, Site: site, Err: err}
	}

	return &models.VideoInfo{
		Title:         title,
		SourceURL:     sourceURL,
		StreamURL:     streamURL,
		ContainerKind: kind,
		OutputPath:    outputPath,
	}, nil
}

func classifyNetErr(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return NetworkTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NetworkTimeout
	}
	return NetworkFailure
}

// streamPattern is one entry of an ordered stream lookup list
type streamPattern struct {
	name string
	re   *regexp.Regexp
	kind models.ContainerKind
}

// matchFirst returns the first capture of the first pattern that matches
func matchFirst(patterns []streamPattern, page string) (string, streamPattern, bool) {
	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(page); m != nil && m[1] != "" {
			return m[1], p, true
		}
	}
	return "", streamPattern{}, false
}
