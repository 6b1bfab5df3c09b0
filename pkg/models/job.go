package models

import (
	"fmt"
	"time"
)

// JobStatus represents the lifecycle phase of a download job
type JobStatus int

const (
	JobInitializing JobStatus = iota
	JobExtractingInfo
	JobDownloading
	JobCompleted
	JobFailed
)

func (s JobStatus) String() string {
	switch s {
	case JobInitializing:
		return "initializing"
	case JobExtractingInfo:
		return "extracting_info"
	case JobDownloading:
		return "downloading"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s JobStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *JobStatus) UnmarshalText(text []byte) error {
	for candidate := JobInitializing; candidate <= JobFailed; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown job status %q", string(text))
}

// IsTerminal reports whether no further transitions are allowed
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransitionTo reports whether next is a legal successor of s
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobInitializing:
		return next == JobExtractingInfo || next == JobFailed
	case JobExtractingInfo:
		return next == JobDownloading || next == JobFailed
	case JobDownloading:
		return next == JobCompleted || next == JobFailed
	default:
		return false
	}
}

// FailureKind tags why a job failed
type FailureKind string

const (
	FailureNone                FailureKind = ""
	FailureExtraction          FailureKind = "extraction_failed"
	FailureStrategiesExhausted FailureKind = "strategies_exhausted"
	FailureCancelled           FailureKind = "cancelled"
)

// Job is the externally visible state of one download request
type Job struct {
	ID              string      `json:"id"`
	Status          JobStatus   `json:"status"`
	Progress        int         `json:"progress"`
	Title           string      `json:"title,omitempty"`
	SourceURL       string      `json:"url,omitempty"`
	FilePath        string      `json:"file_path,omitempty"`
	Error           string      `json:"error,omitempty"`
	FailureKind     FailureKind `json:"failure_kind,omitempty"`
	Strategy        string      `json:"strategy,omitempty"`
	Attempts        []string    `json:"attempts,omitempty"`
	BytesDownloaded int64       `json:"bytes_downloaded,omitempty"`
	TotalBytes      int64       `json:"total_bytes,omitempty"`
	Speed           float64     `json:"speed,omitempty"`
	FileSize        int64       `json:"file_size,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Clone returns a deep copy of the job
func (j Job) Clone() Job {
	if j.Attempts != nil {
		attempts := make([]string, len(j.Attempts))
		copy(attempts, j.Attempts)
		j.Attempts = attempts
	}
	return j
}
