package jobs

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidfetch/pkg/models"
)

func TestCreate(t *testing.T) {
	r := NewRegistry()

	job, err := r.Create("https://example.com/v")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobInitializing, job.Status)
	assert.Equal(t, "https://example.com/v", job.SourceURL)
	assert.Zero(t, job.Progress)
	assert.False(t, job.CreatedAt.IsZero())

	other, err := r.Create("https://example.com/v")
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, other.ID)
	assert.Equal(t, 2, r.Len())
}

func TestCreate_RetriesOnCollision(t *testing.T) {
	r := NewRegistry()
	ids := []string{"a", "a", "a", "b"}
	r.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := r.Create("u1")
	require.NoError(t, err)
	second, err := r.Create("u2")
	require.NoError(t, err)

	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "b", second.ID)
}

func TestCreate_GivesUpAfterRepeatedCollisions(t *testing.T) {
	r := NewRegistry()
	r.newID = func() string { return "same" }

	_, err := r.Create("u1")
	require.NoError(t, err)

	_, err = r.Create("u2")
	assert.ErrorIs(t, err, ErrIDCollision)
	assert.Equal(t, 1, r.Len())
}

func TestGet_ReturnsCopy(t *testing.T) {
	r := NewRegistry()
	job, err := r.Create("u")
	require.NoError(t, err)
	require.NoError(t, r.AddAttempt(job.ID, "direct"))

	got, err := r.Get(job.ID)
	require.NoError(t, err)
	got.Attempts[0] = "mutated"
	got.Progress = 99

	again, err := r.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"direct"}, again.Attempts)
	assert.Zero(t, again.Progress)
}

func TestUnknownJob(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = r.Transition("missing", models.JobExtractingInfo)
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, r.UpdateProgress("missing", ProgressUpdate{Percent: 5}), ErrJobNotFound)
	_, err = r.Complete("missing", "/x", "direct")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = r.Fail("missing", models.FailureExtraction, "boom")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

// moveTo drives a fresh job to status along legal edges
func moveTo(t *testing.T, r *Registry, status models.JobStatus) string {
	t.Helper()
	job, err := r.Create("u")
	require.NoError(t, err)

	path := map[models.JobStatus][]models.JobStatus{
		models.JobInitializing:   nil,
		models.JobExtractingInfo: {models.JobExtractingInfo},
		models.JobDownloading:    {models.JobExtractingInfo, models.JobDownloading},
		models.JobCompleted:      {models.JobExtractingInfo, models.JobDownloading},
		models.JobFailed:         nil,
	}
	for _, s := range path[status] {
		_, err := r.Transition(job.ID, s)
		require.NoError(t, err)
	}
	switch status {
	case models.JobCompleted:
		_, err = r.Complete(job.ID, "/dl/x.mp4", "direct")
		require.NoError(t, err)
	case models.JobFailed:
		_, err = r.Fail(job.ID, models.FailureExtraction, "boom")
		require.NoError(t, err)
	}
	return job.ID
}

func apply(r *Registry, id string, next models.JobStatus) error {
	var err error
	switch next {
	case models.JobCompleted:
		_, err = r.Complete(id, "/dl/y.mp4", "backend")
	case models.JobFailed:
		_, err = r.Fail(id, models.FailureStrategiesExhausted, "nope")
	default:
		_, err = r.Transition(id, next)
	}
	return err
}

func TestTransitions(t *testing.T) {
	statuses := []models.JobStatus{
		models.JobInitializing,
		models.JobExtractingInfo,
		models.JobDownloading,
		models.JobCompleted,
		models.JobFailed,
	}
	allowed := map[[2]models.JobStatus]bool{
		{models.JobInitializing, models.JobExtractingInfo}: true,
		{models.JobInitializing, models.JobFailed}:         true,
		{models.JobExtractingInfo, models.JobDownloading}:  true,
		{models.JobExtractingInfo, models.JobFailed}:       true,
		{models.JobDownloading, models.JobCompleted}:       true,
		{models.JobDownloading, models.JobFailed}:          true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				r := NewRegistry()
				id := moveTo(t, r, from)
				before, err := r.Get(id)
				require.NoError(t, err)

				err = apply(r, id, to)
				after, getErr := r.Get(id)
				require.NoError(t, getErr)

				if allowed[[2]models.JobStatus{from, to}] {
					require.NoError(t, err)
					assert.Equal(t, to, after.Status)
				} else {
					assert.ErrorIs(t, err, ErrInvalidTransition)
					assert.Equal(t, before.Status, after.Status)
					assert.Equal(t, before.FilePath, after.FilePath)
					assert.Equal(t, before.Error, after.Error)
				}
			})
		}
	}
}

func TestComplete(t *testing.T) {
	r := NewRegistry()
	id := moveTo(t, r, models.JobDownloading)
	require.NoError(t, r.UpdateProgress(id, ProgressUpdate{Percent: 40, Speed: 1000}))

	job, err := r.Complete(id, "/dl/Test_Clip.mp4", "direct")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "/dl/Test_Clip.mp4", job.FilePath)
	assert.Equal(t, "direct", job.Strategy)
	assert.Zero(t, job.Speed)
	assert.Empty(t, job.Error)
}

func TestFail(t *testing.T) {
	r := NewRegistry()
	id := moveTo(t, r, models.JobExtractingInfo)

	job, err := r.Fail(id, models.FailureExtraction, "")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, models.FailureExtraction, job.FailureKind)
	assert.NotEmpty(t, job.Error)
}

func TestTransitionRejectsTerminalTargets(t *testing.T) {
	r := NewRegistry()
	id := moveTo(t, r, models.JobDownloading)

	_, err := r.Transition(id, models.JobCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	job, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.JobDownloading, job.Status)
}

func TestUpdateProgress(t *testing.T) {
	r := NewRegistry()
	id := moveTo(t, r, models.JobDownloading)

	steps := []struct {
		percent int
		want    int
	}{
		{percent: 10, want: 10},
		{percent: 50, want: 50},
		{percent: 30, want: 50},
		{percent: 250, want: 100},
		{percent: -5, want: 100},
	}
	for _, s := range steps {
		require.NoError(t, r.UpdateProgress(id, ProgressUpdate{Percent: s.percent, BytesDownloaded: 42}))
		job, err := r.Get(id)
		require.NoError(t, err)
		assert.Equal(t, s.want, job.Progress)
		assert.Equal(t, int64(42), job.BytesDownloaded)
	}
}

func TestUpdateProgressIgnoredAfterFailure(t *testing.T) {
	r := NewRegistry()
	id := moveTo(t, r, models.JobFailed)

	require.NoError(t, r.UpdateProgress(id, ProgressUpdate{Percent: 80}))
	job, err := r.Get(id)
	require.NoError(t, err)
	assert.Zero(t, job.Progress)
	assert.ErrorIs(t, r.AddAttempt(id, "direct"), ErrInvalidTransition)
}

func TestListOrder(t *testing.T) {
	r := NewRegistry()
	var ids []string
	for i := 0; i < 5; i++ {
		job, err := r.Create(fmt.Sprintf("u%d", i))
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	list := r.List()
	require.Len(t, list, 5)
	var listed []string
	for i, job := range list {
		if i > 0 {
			assert.False(t, job.CreatedAt.Before(list[i-1].CreatedAt))
		}
		listed = append(listed, job.ID)
	}
	assert.ElementsMatch(t, ids, listed)
}

func TestConcurrentUpdatesKeepRecordsConsistent(t *testing.T) {
	r := NewRegistry()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := r.Create(fmt.Sprintf("https://example.com/%d", i))
			if !assert.NoError(t, err) {
				return
			}
			_, _ = r.Transition(job.ID, models.JobExtractingInfo)
			_ = r.SetTitle(job.ID, fmt.Sprintf("clip_%d", i))
			_, _ = r.Transition(job.ID, models.JobDownloading)
			for p := 0; p <= 90; p += 10 {
				_ = r.UpdateProgress(job.ID, ProgressUpdate{Percent: p})
			}
			if i%2 == 0 {
				_, _ = r.Complete(job.ID, fmt.Sprintf("/dl/clip_%d.mp4", i), "direct")
			} else {
				_, _ = r.Fail(job.ID, models.FailureStrategiesExhausted, "all download strategies exhausted")
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	check := func(list []models.Job) {
		for _, job := range list {
			assert.GreaterOrEqual(t, job.Progress, 0)
			assert.LessOrEqual(t, job.Progress, 100)
			switch job.Status {
			case models.JobCompleted:
				assert.Equal(t, 100, job.Progress)
				assert.NotEmpty(t, job.FilePath)
			case models.JobFailed:
				assert.NotEmpty(t, job.Error)
			}
		}
	}

	for {
		select {
		case <-done:
			list := r.List()
			require.Len(t, list, n)
			check(list)
			for _, job := range list {
				assert.True(t, job.Status.IsTerminal())
			}
			return
		default:
			check(r.List())
		}
	}
}
