package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"weather-notify/internal/cache"
	"weather-notify/internal/models"
	"weather-notify/internal/notify"
	"weather-notify/internal/services"
	"weather-notify/internal/store"
	"weather-notify/pkg/client"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProvider struct {
	forecast    *models.Forecast
	forecastErr error
	panicOnGet  bool
}

func (p *stubProvider) Geocode(_ context.Context, location string) (models.Location, error) {
	return models.Location{Name: location, Country: "US", Lat: 41.8781, Lon: -87.6298}, nil
}

func (p *stubProvider) GetForecast(context.Context, models.Location, string, bool, bool) (*models.Forecast, error) {
	if p.panicOnGet {
		panic("forecast provider blew up")
	}
	return p.forecast, p.forecastErr
}

func (p *stubProvider) FetchTimemachine(context.Context, float64, float64, int64, string) ([]client.TimemachineHour, error) {
	return nil, nil
}

type captureBackend struct {
	messages []*notify.Message
}

func (b *captureBackend) Name() string { return "capture" }

func (b *captureBackend) Send(_ context.Context, msg *notify.Message) error {
	b.messages = append(b.messages, msg)
	return nil
}

func newTickScheduler(t *testing.T, provider *stubProvider) (*Scheduler, *captureBackend) {
	t.Helper()
	jobStore := store.NewJobStore(filepath.Join(t.TempDir(), "jobs.json"), zap.NewNop())
	require.NoError(t, jobStore.Load())

	geoCache := cache.New[models.Location](time.Minute, zap.NewNop())
	geocoder := services.NewGeocoder(provider, geoCache, zap.NewNop())
	forecasts := services.NewForecastService(provider, geocoder, zap.NewNop())

	backend := &captureBackend{}
	dispatcher := notify.NewDispatcher([]notify.Backend{backend}, false, zap.NewNop())

	return New(jobStore, forecasts, dispatcher, zap.NewNop()), backend
}

func testForecast(currentTemp *float64, alerts []models.Alert, precipProb float64) *models.Forecast {
	f := &models.Forecast{
		Location: models.Location{Name: "Chicago", Country: "US", Lat: 41.8781, Lon: -87.6298},
		Timezone: "America/Chicago",
		Units:    "metric",
		Daily: []models.DailyForecast{
			{
				Timestamp:                1700000000,
				Summary:                  "Partly cloudy throughout the day.",
				TempMin:                  5.2,
				TempMax:                  12.8,
				PrecipitationProbability: precipProb,
				Description:              "scattered clouds",
			},
		},
		Alerts: alerts,
	}
	if currentTemp != nil {
		f.Current = &models.CurrentConditions{
			Temperature: *currentTemp,
			FeelsLike:   *currentTemp - 1,
			Description: "clear sky",
		}
	}
	return f
}

func ptr(v float64) *float64 { return &v }

func TestShouldNotifyOnRun(t *testing.T) {
	f := testForecast(ptr(20), nil, 0)
	assert.True(t, shouldNotify(models.NotifyConfig{OnRun: true}, f))
}

func TestShouldNotifyOnAlert(t *testing.T) {
	cfg := models.NotifyConfig{OnAlert: true}

	assert.False(t, shouldNotify(cfg, testForecast(ptr(20), nil, 0)))

	alerts := []models.Alert{{Event: "Tornado Warning"}}
	assert.True(t, shouldNotify(cfg, testForecast(ptr(20), alerts, 0)))
}

func TestShouldNotifyOnPrecipitation(t *testing.T) {
	cfg := models.NotifyConfig{OnPrecipitation: true}

	assert.False(t, shouldNotify(cfg, testForecast(ptr(20), nil, 0.3)))
	assert.False(t, shouldNotify(cfg, testForecast(ptr(20), nil, 0.5)))
	assert.True(t, shouldNotify(cfg, testForecast(ptr(20), nil, 0.51)))
}

func TestShouldNotifyTemperatureThresholds(t *testing.T) {
	cold := models.NotifyConfig{ColdThreshold: ptr(0)}
	assert.True(t, shouldNotify(cold, testForecast(ptr(-5), nil, 0)))
	assert.False(t, shouldNotify(cold, testForecast(ptr(5), nil, 0)))

	heat := models.NotifyConfig{HeatThreshold: ptr(30)}
	assert.True(t, shouldNotify(heat, testForecast(ptr(35), nil, 0)))
	assert.False(t, shouldNotify(heat, testForecast(ptr(25), nil, 0)))
}

func TestShouldNotifyThresholdsIgnoredWithoutCurrent(t *testing.T) {
	cfg := models.NotifyConfig{ColdThreshold: ptr(0), HeatThreshold: ptr(30)}
	assert.False(t, shouldNotify(cfg, testForecast(nil, nil, 0)))
}

func TestShouldNotifyNoTriggers(t *testing.T) {
	assert.False(t, shouldNotify(models.NotifyConfig{}, testForecast(ptr(20), nil, 0)))
}

func TestBuildForecastMessageDefault(t *testing.T) {
	f := testForecast(ptr(10.25), nil, 0.3)

	msg := buildForecastMessage(f)

	assert.Equal(t, "Chicago, US", msg.Title)
	assert.Contains(t, msg.Body, "Now: 10.2 (feels 9.2)")
	assert.Contains(t, msg.Body, "clear sky")
	assert.Contains(t, msg.Body, "Today: 5 - 13")
	assert.Contains(t, msg.Body, "Rain: 30% chance")
	assert.Contains(t, msg.Body, "Partly cloudy throughout the day.")
	assert.Equal(t, "default", msg.Priority.String())
	assert.Equal(t, []string{"sunny", "weather"}, msg.Tags)
	assert.Equal(t, "Chicago", msg.City)
}

func TestBuildForecastMessageNoRainLine(t *testing.T) {
	f := testForecast(ptr(10), nil, 0)

	msg := buildForecastMessage(f)
	assert.NotContains(t, msg.Body, "Rain:")
}

func TestBuildForecastMessageAlertsEscalate(t *testing.T) {
	alerts := []models.Alert{
		{Event: "Flood Warning"},
		{Event: "High Wind Advisory"},
	}
	f := testForecast(ptr(10), alerts, 0)

	msg := buildForecastMessage(f)

	assert.Contains(t, msg.Body, "WEATHER ALERTS:")
	assert.Contains(t, msg.Body, "- Flood Warning\n")
	assert.Contains(t, msg.Body, "- High Wind Advisory\n")
	assert.Equal(t, "urgent", msg.Priority.String())
	assert.Equal(t, []string{"warning", "weather"}, msg.Tags)
}

func TestBuildForecastMessageWithoutCurrent(t *testing.T) {
	f := testForecast(nil, nil, 0)

	msg := buildForecastMessage(f)
	assert.NotContains(t, msg.Body, "Now:")
	assert.Contains(t, msg.Body, "Today:")
}

func TestRunJobSendsForecastNotification(t *testing.T) {
	provider := &stubProvider{forecast: testForecast(ptr(10), nil, 0)}
	s, backend := newTickScheduler(t, provider)

	created, err := s.CreateJob(models.NewForecastJob("morning", "Chicago", "0 7 * * *"))
	require.NoError(t, err)

	s.runJob(created.ID)

	require.Len(t, backend.messages, 1)
	msg := backend.messages[0]
	assert.Equal(t, "Chicago, US", msg.Title)
	assert.Equal(t, notify.PriorityDefault, msg.Priority)
	assert.Equal(t, []string{"sunny", "weather"}, msg.Tags)
}

func TestRunJobFetchFailureSendsWarning(t *testing.T) {
	provider := &stubProvider{forecastErr: errors.New("upstream down")}
	s, backend := newTickScheduler(t, provider)

	created, err := s.CreateJob(models.NewForecastJob("morning", "Chicago", "0 7 * * *"))
	require.NoError(t, err)

	s.runJob(created.ID)

	// One failure notification per tick, no retry within the tick.
	require.Len(t, backend.messages, 1)
	msg := backend.messages[0]
	assert.Equal(t, "Weather Alert: morning Failed", msg.Title)
	assert.Contains(t, msg.Body, "upstream down")
	assert.Equal(t, notify.PriorityHigh, msg.Priority)
	assert.Equal(t, []string{"warning"}, msg.Tags)
	assert.Equal(t, "Chicago", msg.City)
}

func TestRunJobNoTriggersSendsNothing(t *testing.T) {
	provider := &stubProvider{forecast: testForecast(ptr(10), nil, 0)}
	s, backend := newTickScheduler(t, provider)

	job := models.NewForecastJob("quiet", "Chicago", "0 7 * * *")
	job.Notify = models.NotifyConfig{}
	created, err := s.CreateJob(job)
	require.NoError(t, err)

	s.runJob(created.ID)

	assert.Empty(t, backend.messages)
}

func TestRunJobSkipsDisabledJob(t *testing.T) {
	provider := &stubProvider{forecast: testForecast(ptr(10), nil, 0)}
	s, backend := newTickScheduler(t, provider)

	job := models.NewForecastJob("off", "Chicago", "0 7 * * *")
	job.Enabled = false
	created, err := s.CreateJob(job)
	require.NoError(t, err)

	s.runJob(created.ID)
	s.runJob("no-such-id")

	assert.Empty(t, backend.messages)
}

func TestRunJobRecoversPanic(t *testing.T) {
	provider := &stubProvider{panicOnGet: true}
	s, backend := newTickScheduler(t, provider)

	created, err := s.CreateJob(models.NewForecastJob("boom", "Chicago", "0 7 * * *"))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		s.runJob(created.ID)
	})
	assert.Empty(t, backend.messages)

	// The schedule stays registered for the next tick.
	assert.Equal(t, 1, s.Status().ScheduledJobs)
}
