package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"weather-notify/internal/models"

	"go.uber.org/zap"
)

// JobStore is a file-backed keyed collection of job definitions. It is
// independent of whether a job is currently scheduled. Writes are flushed to
// disk before the call returns.
type JobStore struct {
	mu       sync.RWMutex
	jobs     map[string]models.ForecastJob
	filePath string
	logger   *zap.Logger
}

func NewJobStore(filePath string, logger *zap.Logger) *JobStore {
	return &JobStore{
		jobs:     make(map[string]models.ForecastJob),
		filePath: filePath,
		logger:   logger,
	}
}

// Load reads the job file from disk. A missing file is not an error; the
// store starts empty.
func (s *JobStore) Load() error {
	content, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("Job storage file does not exist, starting fresh",
				zap.String("path", s.filePath))
			return nil
		}
		return fmt.Errorf("reading job storage: %w", err)
	}

	jobs := make(map[string]models.ForecastJob)
	if err := json.Unmarshal(content, &jobs); err != nil {
		return fmt.Errorf("parsing job storage: %w", err)
	}

	s.mu.Lock()
	s.jobs = jobs
	s.mu.Unlock()

	s.logger.Info("Loaded jobs from storage", zap.Int("count", len(jobs)))
	return nil
}

// save persists the current job set. Callers must hold the write lock.
func (s *JobStore) save() error {
	content, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding job storage: %w", err)
	}

	if dir := filepath.Dir(s.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating storage directory: %w", err)
		}
	}

	if err := os.WriteFile(s.filePath, content, 0o644); err != nil {
		return fmt.Errorf("writing job storage: %w", err)
	}

	return nil
}

// Upsert inserts or fully replaces a job record and persists the store.
func (s *JobStore) Upsert(job models.ForecastJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job
	return s.save()
}

// Get returns a job by ID.
func (s *JobStore) Get(id string) (models.ForecastJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	return job, ok
}

// Remove deletes a job by ID. Returns true iff something was removed.
func (s *JobStore) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return false, nil
	}
	delete(s.jobs, id)
	return true, s.save()
}

// GetAll returns every stored job.
func (s *JobStore) GetAll() []models.ForecastJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]models.ForecastJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// GetEnabled returns every stored job whose enabled flag is set.
func (s *JobStore) GetEnabled() []models.ForecastJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]models.ForecastJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if job.Enabled {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// Exists reports whether a job with the given ID is stored.
func (s *JobStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.jobs[id]
	return ok
}

// Count returns the number of stored jobs.
func (s *JobStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
