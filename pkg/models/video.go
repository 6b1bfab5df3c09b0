package models

import "strings"

// ContainerKind classifies how a resolved stream has to be retrieved
type ContainerKind int

const (
	ContainerMP4 ContainerKind = iota
	ContainerHLS
	ContainerOther
)

func (k ContainerKind) String() string {
	switch k {
	case ContainerMP4:
		return "mp4"
	case ContainerHLS:
		return "hls"
	default:
		return "other"
	}
}

// MarshalText renders the kind as its string form in JSON payloads
func (k ContainerKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Extension returns the file extension (with leading dot) used for the kind.
// fallback is used for ContainerOther; an empty fallback yields ".mp4".
func (k ContainerKind) Extension(fallback string) string {
	switch k {
	case ContainerMP4:
		return ".mp4"
	case ContainerHLS:
		return ".m3u8"
	default:
		fallback = strings.TrimPrefix(strings.TrimSpace(fallback), ".")
		if fallback == "" {
			return ".mp4"
		}
		return "." + strings.ToLower(fallback)
	}
}

// VideoInfo describes a resolved video. It is produced once per extraction
// and never modified afterwards.
type VideoInfo struct {
	Title         string        `json:"title"`
	SourceURL     string        `json:"sourceUrl"`
	StreamURL     string        `json:"streamUrl"`
	ContainerKind ContainerKind `json:"containerKind"`
	OutputPath    string        `json:"outputPath"`
}
