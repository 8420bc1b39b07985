package backfill

import (
	"context"
	"errors"
	"sync"
	"time"

	"weather-notify/internal/budget"
	"weather-notify/internal/models"
	"weather-notify/internal/services"

	"go.uber.org/zap"
)

// throttle between upstream history calls
const defaultCallDelay = 100 * time.Millisecond

// HistorySource is the slice of the history service the engine drives.
type HistorySource interface {
	Geocode(ctx context.Context, location string) (models.Location, error)
	GetMissingDays(city string, start, end int64, units string) ([]int64, error)
	FetchDay(ctx context.Context, city string, loc models.Location, dayStart int64, units string) (int, error)
}

// DeviceSource lists registered devices for city prioritization.
type DeviceSource interface {
	GetAll() []models.Device
}

// JobSource lists forecast jobs for city prioritization.
type JobSource interface {
	Jobs() []models.ForecastJob
}

// Config controls the backfill window and the fallback city list.
type Config struct {
	Cron           string
	MaxYears       int
	FallbackCities []string
}

// RunResult summarizes one completed backfill run.
type RunResult struct {
	StartedAt       int64 `json:"started_at"`
	FinishedAt      int64 `json:"finished_at"`
	Cities          int   `json:"cities"`
	CitiesCompleted int   `json:"cities_completed"`
	RecordsInserted int   `json:"records_inserted"`
	BudgetExhausted bool  `json:"budget_exhausted"`
}

// Engine walks a priority-ordered city list and fetches missing history days
// until the daily call budget runs out. Runs are sequential; the engine is
// driven by a cron entry.
type Engine struct {
	history   HistorySource
	devices   DeviceSource
	jobs      JobSource
	budget    *budget.Budget
	config    Config
	callDelay time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	lastRun *RunResult
}

func NewEngine(history HistorySource, devices DeviceSource, jobs JobSource, b *budget.Budget, config Config, logger *zap.Logger) *Engine {
	return &Engine{
		history:   history,
		devices:   devices,
		jobs:      jobs,
		budget:    b,
		config:    config,
		callDelay: defaultCallDelay,
		logger:    logger,
	}
}

// LastRun returns the most recent run summary, or nil before the first run.
func (e *Engine) LastRun() *RunResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRun
}

// BuildCityList produces a deduplicated city list in priority order:
// each enabled device's first city, then the rest of the enabled devices'
// cities, then enabled job cities, then configured fallbacks. First
// occurrence wins.
func BuildCityList(devices []models.Device, jobs []models.ForecastJob, fallback []string) []string {
	seen := make(map[string]struct{})
	var cities []string

	add := func(city string) {
		if _, ok := seen[city]; ok {
			return
		}
		seen[city] = struct{}{}
		cities = append(cities, city)
	}

	for _, d := range devices {
		if d.Enabled && len(d.Cities) > 0 {
			add(d.Cities[0])
		}
	}
	for _, d := range devices {
		if !d.Enabled {
			continue
		}
		for _, city := range d.Cities {
			add(city)
		}
	}
	for _, j := range jobs {
		if j.Enabled {
			add(j.City)
		}
	}
	for _, city := range fallback {
		add(city)
	}

	return cities
}

// Run executes one backfill pass. The budget is the only stop condition for
// the run as a whole; per-city and per-day failures are logged and skipped.
func (e *Engine) Run(ctx context.Context) RunResult {
	result := RunResult{StartedAt: time.Now().Unix()}
	defer func() {
		result.FinishedAt = time.Now().Unix()
		e.mu.Lock()
		e.lastRun = &result
		e.mu.Unlock()
	}()

	cities := BuildCityList(e.devices.GetAll(), e.jobs.Jobs(), e.config.FallbackCities)
	result.Cities = len(cities)

	if len(cities) == 0 {
		e.logger.Info("Backfill: no cities configured, skipping")
		return result
	}

	now := time.Now().Unix()
	startTs := now - int64(e.config.MaxYears)*365*86400
	const units = "metric"

	e.logger.Info("Starting history backfill",
		zap.Int("cities", len(cities)),
		zap.Int64("budget_remaining", e.budget.Remaining()),
		zap.Int("max_years", e.config.MaxYears))

	for _, city := range cities {
		if e.budget.Remaining() == 0 {
			e.logger.Info("Backfill: daily budget exhausted")
			result.BudgetExhausted = true
			break
		}

		location, err := e.history.Geocode(ctx, city)
		if err != nil {
			e.logger.Warn("Backfill: failed to geocode, skipping",
				zap.String("city", city),
				zap.Error(err))
			continue
		}

		missing, err := e.history.GetMissingDays(location.Name, startTs, now, units)
		if err != nil {
			e.logger.Warn("Backfill: failed to get missing days",
				zap.String("city", location.Name),
				zap.Error(err))
			continue
		}
		if len(missing) == 0 {
			e.logger.Debug("Backfill: city fully cached",
				zap.String("city", location.Name))
			result.CitiesCompleted++
			continue
		}

		e.logger.Info("Backfill: fetching missing days",
			zap.String("city", location.Name),
			zap.Int("missing", len(missing)),
			zap.Int64("budget_remaining", e.budget.Remaining()))

		cityInserted := 0
		cityComplete := true

		for _, dayTs := range missing {
			count, err := e.history.FetchDay(ctx, location.Name, location, dayTs, units)
			switch {
			case errors.Is(err, services.ErrBudgetExhausted):
				e.logger.Info("Backfill: budget exhausted mid-city",
					zap.String("city", location.Name))
				cityComplete = false
				result.BudgetExhausted = true
			case err != nil:
				e.logger.Warn("Backfill: failed to fetch day, skipping",
					zap.String("city", location.Name),
					zap.Int64("day_ts", dayTs),
					zap.Error(err))
			default:
				cityInserted += count
			}
			if !cityComplete {
				break
			}

			select {
			case <-time.After(e.callDelay):
			case <-ctx.Done():
				result.RecordsInserted += cityInserted
				return result
			}
		}

		result.RecordsInserted += cityInserted
		if cityComplete {
			result.CitiesCompleted++
			e.logger.Info("Backfill: city complete",
				zap.String("city", location.Name),
				zap.Int("inserted", cityInserted))
		} else {
			e.logger.Info("Backfill: city incomplete, budget ran out",
				zap.String("city", location.Name),
				zap.Int("inserted", cityInserted))
		}
	}

	e.logger.Info("Backfill run finished",
		zap.Int("total_inserted", result.RecordsInserted),
		zap.Int64("budget_used", e.budget.UsedToday()))
	return result
}

// CronRunner wraps Run for registration as a system cron job.
func (e *Engine) CronRunner() func() {
	return func() {
		e.logger.Info("Backfill job triggered")
		e.Run(context.Background())
	}
}
