package extractor

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"vidfetch/internal/library"
	"vidfetch/pkg/models"
)

var (
	flashvarsPattern   = regexp.MustCompile(`(?s)var\s+flashvars_\d+\s*=\s*(\{.*?\});`)
	definitionsPattern = regexp.MustCompile(`(?s)"mediaDefinitions":\[(.*?)\]`)
	definitionPattern  = regexp.MustCompile(`"quality":"([^"]+)"[^}]+"videoUrl":"([^"]+)"`)

	pornhubQualities = []streamPattern{
		{name: "720p", re: regexp.MustCompile(`"quality_720p":"([^"]+)"`), kind: models.ContainerMP4},
		{name: "480p", re: regexp.MustCompile(`"quality_480p":"([^"]+)"`), kind: models.ContainerMP4},
		{name: "240p", re: regexp.MustCompile(`"quality_240p":"([^"]+)"`), kind: models.ContainerMP4},
	}

	errNoFlashvars = errors.New("flashvars block not found")
)

// Pornhub scrapes pornhub.com pages through their embedded flashvars object
type Pornhub struct {
	scraper
}

// NewPornhub creates the pornhub extractor. A nil client uses http.DefaultClient.
func NewPornhub(client HTTPClient, lib *library.Library, logger *zap.Logger) *Pornhub {
	return &Pornhub{scraper: newScraper("pornhub", "pornhub_video", " - Pornhub.com", client, lib, logger)}
}

// Name returns the site identifier
func (p *Pornhub) Name() string { return p.site }

// Extract reads the best media definition out of the page's flashvars
func (p *Pornhub) Extract(ctx context.Context, rawURL string) (*models.VideoInfo, error) {
	page, err := p.fetchPage(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	title := p.title(page)

	m := flashvarsPattern.FindStringSubmatch(page)
	if m == nil {
		return nil, p.fail(NoStreamFound, errNoFlashvars)
	}
	flashvars := m[1]

	streamURL, pattern, ok := matchFirst(pornhubQualities, flashvars)
	if ok {
		p.log.Debug("stream found", zap.String("quality", pattern.name))
	} else {
		streamURL = bestDefinition(flashvars)
	}

	if streamURL == "" {
		return nil, p.fail(NoStreamFound, nil)
	}

	return p.videoInfo(rawURL, title, unescapeSlashes(streamURL), models.ContainerMP4)
}

type mediaDefinition struct {
	quality int
	url     string
}

// bestDefinition picks the highest numeric quality from mediaDefinitions.
// Non-numeric qualities rank lowest.
func bestDefinition(flashvars string) string {
	block := definitionsPattern.FindStringSubmatch(flashvars)
	if block == nil {
		return ""
	}

	var defs []mediaDefinition
	for _, m := range definitionPattern.FindAllStringSubmatch(block[1], -1) {
		q, err := strconv.Atoi(m[1])
		if err != nil {
			q = 0
		}
		defs = append(defs, mediaDefinition{quality: q, url: m[2]})
	}
	if len(defs) == 0 {
		return ""
	}

	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].quality > defs[j].quality
	})
	return defs[0].url
}

func unescapeSlashes(s string) string {
	return strings.ReplaceAll(s, `\/`, `/`)
}
