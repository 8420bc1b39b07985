package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"weather-notify/internal/models"
	"weather-notify/internal/notify"

	"go.uber.org/zap"
)

const jobRunTimeout = 2 * time.Minute

// runJob is the cron entry body. It re-reads the job from the store so edits
// between ticks take effect, and recovers panics so one bad run cannot take
// down the cron loop.
func (s *Scheduler) runJob(jobID string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Job run panicked",
				zap.String("job_id", jobID),
				zap.Any("panic", r))
		}
	}()

	job, ok := s.store.Get(jobID)
	if !ok || !job.Enabled {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobRunTimeout)
	defer cancel()

	s.executeJob(ctx, job)
}

// executeJob fetches the job's forecast and sends a notification when the
// job's triggers say so. A failed fetch produces a single high-priority
// notification for the run; the next tick tries again.
func (s *Scheduler) executeJob(ctx context.Context, job models.ForecastJob) {
	s.logger.Info("Running scheduled forecast job",
		zap.String("job", job.Name),
		zap.String("city", job.City))

	forecast, err := s.forecasts.GetForecast(ctx, job.City, job.Units, job.IncludeHourly, job.IncludeDaily)
	if err != nil {
		s.logger.Error("Failed to fetch forecast",
			zap.String("job", job.Name),
			zap.Error(err))

		msg := &notify.Message{
			Title:    fmt.Sprintf("Weather Alert: %s Failed", job.Name),
			Body:     fmt.Sprintf("Failed to fetch forecast for %s: %v", job.City, err),
			Priority: notify.PriorityHigh,
			Tags:     []string{"warning"},
			City:     job.City,
		}
		if sendErr := s.notifier.Send(ctx, msg); sendErr != nil {
			s.logger.Error("Failed to send failure notification", zap.Error(sendErr))
		}
		return
	}

	if !shouldNotify(job.Notify, forecast) {
		s.logger.Debug("No notification triggers matched",
			zap.String("job", job.Name))
		return
	}

	msg := buildForecastMessage(forecast)
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Error("Failed to send notification",
			zap.String("job", job.Name),
			zap.Error(err))
		return
	}

	s.logger.Info("Sent forecast notification",
		zap.String("job", job.Name),
		zap.String("city", forecast.Location.Name))
}

// RunNow triggers a one-off forecast fetch for a city and notifies
// unconditionally.
func (s *Scheduler) RunNow(ctx context.Context, city, units string) error {
	s.logger.Info("Running manual forecast job", zap.String("city", city))

	forecast, err := s.forecasts.GetForecast(ctx, city, units, false, true)
	if err != nil {
		return err
	}

	return s.notifier.Send(ctx, buildForecastMessage(forecast))
}

// shouldNotify evaluates the job's trigger predicates against one forecast
// snapshot. Any true predicate triggers a send. Temperature thresholds only
// apply when current conditions are present.
func shouldNotify(cfg models.NotifyConfig, forecast *models.Forecast) bool {
	if cfg.OnRun {
		return true
	}

	if cfg.OnAlert && len(forecast.Alerts) > 0 {
		return true
	}

	if cfg.OnPrecipitation {
		for _, daily := range forecast.Daily {
			if daily.PrecipitationProbability > 0.5 {
				return true
			}
		}
	}

	if current := forecast.Current; current != nil {
		if cfg.ColdThreshold != nil && current.Temperature < *cfg.ColdThreshold {
			return true
		}
		if cfg.HeatThreshold != nil && current.Temperature > *cfg.HeatThreshold {
			return true
		}
	}

	return false
}

// buildForecastMessage summarizes a forecast snapshot into a notification.
// Alerts escalate the priority to urgent and swap the tag set.
func buildForecastMessage(forecast *models.Forecast) *notify.Message {
	var body strings.Builder

	if current := forecast.Current; current != nil {
		fmt.Fprintf(&body, "Now: %.1f (feels %.1f)\n", current.Temperature, current.FeelsLike)
		fmt.Fprintf(&body, "%s\n", current.Description)
	}

	if len(forecast.Daily) > 0 {
		today := forecast.Daily[0]
		fmt.Fprintf(&body, "Today: %.0f - %.0f\n", today.TempMin, today.TempMax)
		if today.PrecipitationProbability > 0 {
			fmt.Fprintf(&body, "Rain: %.0f%% chance\n", today.PrecipitationProbability*100)
		}
		body.WriteString(today.Summary)
	}

	priority := notify.PriorityDefault
	tags := []string{"sunny", "weather"}
	if len(forecast.Alerts) > 0 {
		body.WriteString("\n\nWEATHER ALERTS:\n")
		for _, alert := range forecast.Alerts {
			fmt.Fprintf(&body, "- %s\n", alert.Event)
		}
		priority = notify.PriorityUrgent
		tags = []string{"warning", "weather"}
	}

	return &notify.Message{
		Title:    fmt.Sprintf("%s, %s", forecast.Location.Name, forecast.Location.Country),
		Body:     body.String(),
		Priority: priority,
		Tags:     tags,
		City:     forecast.Location.Name,
	}
}
