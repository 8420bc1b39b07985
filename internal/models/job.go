package models

import "github.com/google/uuid"

// ForecastJob is a persisted, cron-scheduled unit of work that fetches a
// weather snapshot for one city and conditionally notifies. A job's persisted
// existence and its scheduled existence are distinct: disabling a job removes
// its cron registration but keeps the record.
type ForecastJob struct {
	ID            string       `json:"id"`
	Name          string       `json:"name" validate:"required"`
	City          string       `json:"city" validate:"required"`
	Units         string       `json:"units"`
	Cron          string       `json:"cron" validate:"required"`
	Timezone      string       `json:"timezone"`
	IncludeDaily  bool         `json:"includeDaily"`
	IncludeHourly bool         `json:"includeHourly"`
	Enabled       bool         `json:"enabled"`
	Notify        NotifyConfig `json:"notify"`
}

// NotifyConfig holds four independent trigger predicates. Any predicate being
// true triggers a send.
type NotifyConfig struct {
	// Send a notification on every run.
	OnRun bool `json:"onRun"`
	// Send only when the forecast carries weather alerts.
	OnAlert bool `json:"onAlert"`
	// Send when precipitation probability exceeds 50% on any forecast day.
	OnPrecipitation bool `json:"onPrecipitation"`
	// Send when current temperature drops below this value.
	ColdThreshold *float64 `json:"coldThreshold,omitempty"`
	// Send when current temperature rises above this value.
	HeatThreshold *float64 `json:"heatThreshold,omitempty"`
}

// NewForecastJob creates an enabled daily-forecast job with generated ID and
// the same defaults the config file loader applies.
func NewForecastJob(name, city, cronExpr string) ForecastJob {
	return ForecastJob{
		ID:           uuid.NewString(),
		Name:         name,
		City:         city,
		Units:        "metric",
		Cron:         cronExpr,
		Timezone:     "UTC",
		IncludeDaily: true,
		Enabled:      true,
		Notify:       NotifyConfig{OnRun: true, OnAlert: true},
	}
}

// ApplyDefaults fills zero-value fields the way config-file jobs expect.
func (j *ForecastJob) ApplyDefaults() {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Units == "" {
		j.Units = "metric"
	}
	if j.Timezone == "" {
		j.Timezone = "UTC"
	}
}

// JobsConfig is the shape of the jobs config file loaded at startup.
type JobsConfig struct {
	Jobs []ForecastJob `json:"jobs"`
}
