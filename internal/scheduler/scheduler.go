package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"weather-notify/internal/models"
	"weather-notify/internal/notify"
	"weather-notify/internal/services"
	"weather-notify/internal/store"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	ErrInvalidCron     = errors.New("invalid cron expression")
	ErrInvalidTimezone = errors.New("invalid timezone")
	ErrJobNotFound     = errors.New("job not found")
)

// Scheduler runs persisted forecast jobs on their cron schedules. Persisted
// existence and scheduled existence are distinct: only enabled jobs get a
// cron entry, and unscheduling never touches the store.
type Scheduler struct {
	cron      *cron.Cron
	parser    cron.Parser
	store     *store.JobStore
	forecasts *services.ForecastService
	notifier  *notify.Dispatcher
	logger    *zap.Logger

	mu      sync.RWMutex
	entries map[string]cron.EntryID
	running bool
}

func New(jobStore *store.JobStore, forecasts *services.ForecastService, notifier *notify.Dispatcher, logger *zap.Logger) *Scheduler {
	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	return &Scheduler{
		cron:      cron.New(cron.WithParser(parser)),
		parser:    parser,
		store:     jobStore,
		forecasts: forecasts,
		notifier:  notifier,
		logger:    logger,
		entries:   make(map[string]cron.EntryID),
	}
}

// Init loads persisted jobs and schedules the enabled ones. Jobs that fail
// to schedule are logged and skipped, never dropped from the store.
func (s *Scheduler) Init() error {
	if err := s.store.Load(); err != nil {
		return err
	}

	for _, job := range s.store.GetEnabled() {
		if err := s.scheduleJob(job); err != nil {
			s.logger.Error("Failed to schedule stored job",
				zap.String("job_id", job.ID),
				zap.Error(err))
		}
	}

	s.logger.Info("Scheduler initialized",
		zap.Int("stored_jobs", s.store.Count()))
	return nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop halts the cron loop and waits for in-flight job runs to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for running jobs")
	}
}

// validateJob checks the cron expression and timezone independently so API
// callers get a precise rejection.
func (s *Scheduler) validateJob(job models.ForecastJob) error {
	if _, err := s.parser.Parse(job.Cron); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidCron, job.Cron, err)
	}
	if _, err := time.LoadLocation(job.Timezone); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, job.Timezone)
	}
	return nil
}

// cronSpec renders a job's schedule with its timezone attached so the entry
// fires in the job's local time.
func cronSpec(job models.ForecastJob) string {
	if job.Timezone == "" || job.Timezone == "Local" {
		return job.Cron
	}
	return fmt.Sprintf("CRON_TZ=%s %s", job.Timezone, job.Cron)
}

func (s *Scheduler) scheduleJob(job models.ForecastJob) error {
	jobID := job.ID

	entryID, err := s.cron.AddFunc(cronSpec(job), func() {
		s.runJob(jobID)
	})
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidCron, job.Cron, err)
	}

	s.mu.Lock()
	s.entries[jobID] = entryID
	s.mu.Unlock()

	s.logger.Info("Scheduled forecast job",
		zap.String("job_id", jobID),
		zap.String("name", job.Name),
		zap.String("city", job.City),
		zap.String("cron", job.Cron),
		zap.String("timezone", job.Timezone))
	return nil
}

// unscheduleJob removes a job's cron entry if it has one. Idempotent.
func (s *Scheduler) unscheduleJob(jobID string) {
	s.mu.Lock()
	entryID, ok := s.entries[jobID]
	if ok {
		delete(s.entries, jobID)
	}
	s.mu.Unlock()

	if ok {
		s.cron.Remove(entryID)
		s.logger.Info("Unscheduled job", zap.String("job_id", jobID))
	}
}

// CreateJob validates, persists, and (when enabled) schedules a job. An
// invalid job is never persisted.
func (s *Scheduler) CreateJob(job models.ForecastJob) (models.ForecastJob, error) {
	job.ApplyDefaults()

	if err := s.validateJob(job); err != nil {
		return models.ForecastJob{}, err
	}

	if err := s.store.Upsert(job); err != nil {
		return models.ForecastJob{}, err
	}

	if job.Enabled {
		if err := s.scheduleJob(job); err != nil {
			return models.ForecastJob{}, err
		}
	}

	s.logger.Info("Created job",
		zap.String("job_id", job.ID),
		zap.String("name", job.Name))
	return job, nil
}

// UpdateJob replaces an existing job, rescheduling its cron entry to match
// the new definition.
func (s *Scheduler) UpdateJob(job models.ForecastJob) (models.ForecastJob, error) {
	if !s.store.Exists(job.ID) {
		return models.ForecastJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}

	job.ApplyDefaults()

	if err := s.validateJob(job); err != nil {
		return models.ForecastJob{}, err
	}

	s.unscheduleJob(job.ID)

	if err := s.store.Upsert(job); err != nil {
		return models.ForecastJob{}, err
	}

	if job.Enabled {
		if err := s.scheduleJob(job); err != nil {
			return models.ForecastJob{}, err
		}
	}

	s.logger.Info("Updated job",
		zap.String("job_id", job.ID),
		zap.String("name", job.Name))
	return job, nil
}

// DeleteJob unschedules and removes a job.
func (s *Scheduler) DeleteJob(jobID string) error {
	s.unscheduleJob(jobID)

	removed, err := s.store.Remove(jobID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	s.logger.Info("Deleted job", zap.String("job_id", jobID))
	return nil
}

func (s *Scheduler) GetJob(jobID string) (models.ForecastJob, bool) {
	return s.store.Get(jobID)
}

func (s *Scheduler) Jobs() []models.ForecastJob {
	return s.store.GetAll()
}

// LoadConfigJobs merges jobs from the config file into the store. Stored
// jobs win: a config job whose id already exists is left untouched.
func (s *Scheduler) LoadConfigJobs(cfg models.JobsConfig) {
	for _, job := range cfg.Jobs {
		job.ApplyDefaults()
		if s.store.Exists(job.ID) {
			continue
		}
		if _, err := s.CreateJob(job); err != nil {
			s.logger.Error("Failed to load job from config",
				zap.String("job_id", job.ID),
				zap.String("name", job.Name),
				zap.Error(err))
		}
	}
}

// AddSystemJob registers an unpersisted cron entry for internal work such as
// the nightly backfill run.
func (s *Scheduler) AddSystemJob(spec string, fn func()) error {
	if _, err := s.cron.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidCron, spec, err)
	}
	return nil
}

// Status summarizes the scheduler for the status endpoint.
type Status struct {
	Running       bool `json:"running"`
	StoredJobs    int  `json:"stored_jobs"`
	ScheduledJobs int  `json:"scheduled_jobs"`
}

func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Running:       s.running,
		StoredJobs:    s.store.Count(),
		ScheduledJobs: len(s.entries),
	}
}
