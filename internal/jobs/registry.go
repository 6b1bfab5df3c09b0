// Package jobs keeps the in-memory record of every download job.
package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidfetch/pkg/models"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrIDCollision       = errors.New("could not allocate a unique job id")
)

const maxIDAttempts = 8

// Registry holds job records. Every method is safe for concurrent use and
// every read returns a copy, so callers never observe a half-applied update.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*models.Job
	newID func() string
	now   func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		jobs:  make(map[string]*models.Job),
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// Create allocates a new job in the initializing state
func (r *Registry) Create(sourceURL string) (models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < maxIDAttempts; i++ {
		id := r.newID()
		if _, exists := r.jobs[id]; exists {
			continue
		}

		now := r.now()
		job := &models.Job{
			ID:        id,
			Status:    models.JobInitializing,
			SourceURL: sourceURL,
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.jobs[id] = job
		return job.Clone(), nil
	}

	return models.Job{}, ErrIDCollision
}

// Get returns a copy of the job
func (r *Registry) Get(id string) (models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return models.Job{}, ErrJobNotFound
	}
	return job.Clone(), nil
}

// List returns copies of all jobs, oldest first
func (r *Registry) List() []models.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]models.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		list = append(list, job.Clone())
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// Len returns the number of tracked jobs
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// update applies fn to the live record under the write lock
func (r *Registry) update(id string, fn func(job *models.Job) error) (models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return models.Job{}, ErrJobNotFound
	}

	// Work on a copy so a rejected update leaves the record untouched
	next := job.Clone()
	if err := fn(&next); err != nil {
		return job.Clone(), err
	}

	next.UpdatedAt = r.now()
	*job = next
	return next.Clone(), nil
}

func transition(job *models.Job, next models.JobStatus) error {
	if !job.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, next)
	}
	job.Status = next
	return nil
}

// Transition moves the job to a non-terminal status
func (r *Registry) Transition(id string, next models.JobStatus) (models.Job, error) {
	if next.IsTerminal() {
		return models.Job{}, fmt.Errorf("%w: use Complete or Fail for %s", ErrInvalidTransition, next)
	}
	return r.update(id, func(job *models.Job) error {
		return transition(job, next)
	})
}

// SetTitle records the resolved title
func (r *Registry) SetTitle(id, title string) error {
	_, err := r.update(id, func(job *models.Job) error {
		job.Title = title
		return nil
	})
	return err
}

// AddAttempt appends a strategy name to the job's attempt log
func (r *Registry) AddAttempt(id, strategy string) error {
	_, err := r.update(id, func(job *models.Job) error {
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: job is %s", ErrInvalidTransition, job.Status)
		}
		job.Attempts = append(job.Attempts, strategy)
		return nil
	})
	return err
}

// ProgressUpdate carries transfer statistics for a running job
type ProgressUpdate struct {
	Percent         int
	BytesDownloaded int64
	TotalBytes      int64
	Speed           float64
}

// UpdateProgress records transfer progress. Percent never decreases and is
// clamped to [0,100]; updates to terminal jobs are ignored.
func (r *Registry) UpdateProgress(id string, p ProgressUpdate) error {
	_, err := r.update(id, func(job *models.Job) error {
		if job.Status.IsTerminal() {
			return nil
		}

		percent := min(max(p.Percent, 0), 100)
		if percent > job.Progress {
			job.Progress = percent
		}
		job.BytesDownloaded = p.BytesDownloaded
		job.TotalBytes = p.TotalBytes
		job.Speed = p.Speed
		return nil
	})
	return err
}

// Complete marks the job completed with its file and winning strategy in one step
func (r *Registry) Complete(id, filePath, strategy string) (models.Job, error) {
	return r.update(id, func(job *models.Job) error {
		if err := transition(job, models.JobCompleted); err != nil {
			return err
		}
		job.FilePath = filePath
		job.Strategy = strategy
		job.Progress = 100
		job.Error = ""
		job.FailureKind = models.FailureNone
		job.Speed = 0
		return nil
	})
}

// Fail marks the job failed. An empty message is replaced so failed jobs
// always carry an error.
func (r *Registry) Fail(id string, kind models.FailureKind, message string) (models.Job, error) {
	if message == "" {
		message = "download failed"
	}
	return r.update(id, func(job *models.Job) error {
		if err := transition(job, models.JobFailed); err != nil {
			return err
		}
		job.Error = message
		job.FailureKind = kind
		job.Speed = 0
		return nil
	})
}
