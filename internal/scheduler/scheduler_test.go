package scheduler

import (
	"path/filepath"
	"testing"

	"weather-notify/internal/models"
	"weather-notify/internal/notify"
	"weather-notify/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.json")
	jobStore := store.NewJobStore(path, zap.NewNop())
	require.NoError(t, jobStore.Load())
	dispatcher := notify.NewDispatcher(nil, false, zap.NewNop())
	return New(jobStore, nil, dispatcher, zap.NewNop())
}

func TestCreateJobPersistsAndSchedules(t *testing.T) {
	s := newTestScheduler(t)

	job := models.NewForecastJob("morning", "London", "0 7 * * *")
	created, err := s.CreateJob(job)
	require.NoError(t, err)

	stored, ok := s.GetJob(created.ID)
	assert.True(t, ok)
	assert.Equal(t, "London", stored.City)

	status := s.Status()
	assert.Equal(t, 1, status.StoredJobs)
	assert.Equal(t, 1, status.ScheduledJobs)
}

func TestCreateJobRejectsInvalidCron(t *testing.T) {
	s := newTestScheduler(t)

	job := models.NewForecastJob("bad", "London", "not a cron")
	_, err := s.CreateJob(job)
	assert.ErrorIs(t, err, ErrInvalidCron)

	assert.Empty(t, s.Jobs())
}

func TestCreateJobRejectsInvalidTimezone(t *testing.T) {
	s := newTestScheduler(t)

	job := models.NewForecastJob("bad-tz", "London", "0 7 * * *")
	job.Timezone = "Mars/Olympus_Mons"
	_, err := s.CreateJob(job)
	assert.ErrorIs(t, err, ErrInvalidTimezone)

	assert.Empty(t, s.Jobs())
}

func TestCreateJobAcceptsSixFieldCron(t *testing.T) {
	s := newTestScheduler(t)

	job := models.NewForecastJob("seconds", "London", "30 0 7 * * *")
	_, err := s.CreateJob(job)
	assert.NoError(t, err)
}

func TestCreateDisabledJobIsNotScheduled(t *testing.T) {
	s := newTestScheduler(t)

	job := models.NewForecastJob("off", "London", "0 7 * * *")
	job.Enabled = false
	_, err := s.CreateJob(job)
	require.NoError(t, err)

	status := s.Status()
	assert.Equal(t, 1, status.StoredJobs)
	assert.Equal(t, 0, status.ScheduledJobs)
}

func TestUpdateJobDisableRemovesEntryKeepsRecord(t *testing.T) {
	s := newTestScheduler(t)

	job := models.NewForecastJob("toggle", "London", "0 7 * * *")
	created, err := s.CreateJob(job)
	require.NoError(t, err)

	created.Enabled = false
	_, err = s.UpdateJob(created)
	require.NoError(t, err)

	status := s.Status()
	assert.Equal(t, 1, status.StoredJobs)
	assert.Equal(t, 0, status.ScheduledJobs)
}

func TestUpdateJobUnknownID(t *testing.T) {
	s := newTestScheduler(t)

	job := models.NewForecastJob("ghost", "London", "0 7 * * *")
	_, err := s.UpdateJob(job)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestDeleteJobUnknownID(t *testing.T) {
	s := newTestScheduler(t)

	err := s.DeleteJob("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestDeleteJobRemovesEntryAndRecord(t *testing.T) {
	s := newTestScheduler(t)

	created, err := s.CreateJob(models.NewForecastJob("gone", "London", "0 7 * * *"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteJob(created.ID))

	status := s.Status()
	assert.Equal(t, 0, status.StoredJobs)
	assert.Equal(t, 0, status.ScheduledJobs)

	// Deleting again stays idempotent on the schedule side.
	assert.ErrorIs(t, s.DeleteJob(created.ID), ErrJobNotFound)
}

func TestLoadConfigJobsSkipsExisting(t *testing.T) {
	s := newTestScheduler(t)

	existing := models.NewForecastJob("keep", "London", "0 7 * * *")
	existing.City = "London"
	_, err := s.CreateJob(existing)
	require.NoError(t, err)

	fromConfig := existing
	fromConfig.City = "Paris"
	s.LoadConfigJobs(models.JobsConfig{Jobs: []models.ForecastJob{
		fromConfig,
		models.NewForecastJob("new", "Berlin", "0 8 * * *"),
	}})

	stored, ok := s.GetJob(existing.ID)
	require.True(t, ok)
	assert.Equal(t, "London", stored.City)
	assert.Equal(t, 2, s.Status().StoredJobs)
}
