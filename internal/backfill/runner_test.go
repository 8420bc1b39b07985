package backfill

import (
	"context"
	"errors"
	"strings"
	"testing"

	"weather-notify/internal/budget"
	"weather-notify/internal/models"
	"weather-notify/internal/services"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeHistory struct {
	budget      *budget.Budget
	missingDays map[string][]int64
	geocodeErr  map[string]error
	fetchCalls  int
}

func (f *fakeHistory) Geocode(_ context.Context, location string) (models.Location, error) {
	if err, ok := f.geocodeErr[location]; ok {
		return models.Location{}, err
	}
	return models.Location{Name: location, Lat: 1, Lon: 2}, nil
}

func (f *fakeHistory) GetMissingDays(city string, _, _ int64, _ string) ([]int64, error) {
	return f.missingDays[city], nil
}

func (f *fakeHistory) FetchDay(_ context.Context, _ string, _ models.Location, _ int64, _ string) (int, error) {
	if !f.budget.RecordCall() {
		return 0, services.ErrBudgetExhausted
	}
	f.fetchCalls++
	return 24, nil
}

type fakeDevices struct{ devices []models.Device }

func (f *fakeDevices) GetAll() []models.Device { return f.devices }

type fakeJobs struct{ jobs []models.ForecastJob }

func (f *fakeJobs) Jobs() []models.ForecastJob { return f.jobs }

func newTestEngine(b *budget.Budget, history *fakeHistory, fallback []string) *Engine {
	e := NewEngine(history, &fakeDevices{}, &fakeJobs{}, b, Config{
		MaxYears:       1,
		FallbackCities: fallback,
	}, zap.NewNop())
	e.callDelay = 0
	return e
}

func TestBuildCityListPriorityOrder(t *testing.T) {
	devices := []models.Device{
		{Enabled: true, Cities: []string{"Oslo", "Bergen"}},
		{Enabled: true, Cities: []string{"Paris", "Oslo"}},
		{Enabled: false, Cities: []string{"Madrid"}},
	}
	jobs := []models.ForecastJob{
		{Enabled: true, City: "Berlin"},
		{Enabled: false, City: "Rome"},
		{Enabled: true, City: "Paris"},
	}
	fallback := []string{"London", "Berlin"}

	cities := BuildCityList(devices, jobs, fallback)

	assert.Equal(t, []string{"Oslo", "Paris", "Bergen", "Berlin", "London"}, cities)
}

func TestBuildCityListEmpty(t *testing.T) {
	assert.Empty(t, BuildCityList(nil, nil, nil))
}

func TestRunStopsWhenBudgetExhausted(t *testing.T) {
	b := budget.New(3)
	history := &fakeHistory{
		budget: b,
		missingDays: map[string][]int64{
			"CityA": {0, 86400},
			"CityB": {0, 86400},
			"CityC": {0, 86400},
		},
	}
	engine := newTestEngine(b, history, []string{"CityA", "CityB", "CityC"})

	result := engine.Run(context.Background())

	assert.Equal(t, 3, history.fetchCalls)
	assert.Equal(t, 3*24, result.RecordsInserted)
	assert.True(t, result.BudgetExhausted)
	assert.Equal(t, 3, result.Cities)
	assert.Equal(t, 1, result.CitiesCompleted)
}

func TestRunReportsExhaustionInFinalCity(t *testing.T) {
	b := budget.New(1)
	history := &fakeHistory{
		budget: b,
		missingDays: map[string][]int64{
			"OnlyCity": {0, 86400},
		},
	}
	engine := newTestEngine(b, history, []string{"OnlyCity"})

	result := engine.Run(context.Background())

	// Exhaustion mid-city must surface even with no further cities to visit.
	assert.True(t, result.BudgetExhausted)
	assert.Equal(t, 1, history.fetchCalls)
	assert.Equal(t, 0, result.CitiesCompleted)
}

func TestRunGeocodeFailureSkipsCity(t *testing.T) {
	b := budget.New(100)
	history := &fakeHistory{
		budget: b,
		missingDays: map[string][]int64{
			"Good": {0},
		},
		geocodeErr: map[string]error{"Bad": errors.New("not found")},
	}
	engine := newTestEngine(b, history, []string{"Bad", "Good"})

	result := engine.Run(context.Background())

	assert.Equal(t, 1, history.fetchCalls)
	assert.Equal(t, 24, result.RecordsInserted)
	assert.False(t, result.BudgetExhausted)
}

func TestRunNoCities(t *testing.T) {
	b := budget.New(10)
	engine := newTestEngine(b, &fakeHistory{budget: b}, nil)

	result := engine.Run(context.Background())

	assert.Zero(t, result.Cities)
	assert.Zero(t, result.RecordsInserted)
	assert.Equal(t, int64(10), b.Remaining())
}

func TestRunRecordsLastRun(t *testing.T) {
	b := budget.New(10)
	history := &fakeHistory{
		budget:      b,
		missingDays: map[string][]int64{"Solo": {0}},
	}
	engine := newTestEngine(b, history, []string{"Solo"})

	assert.Nil(t, engine.LastRun())

	engine.Run(context.Background())

	last := engine.LastRun()
	if assert.NotNil(t, last) {
		assert.Equal(t, 24, last.RecordsInserted)
		assert.Equal(t, 1, last.CitiesCompleted)
	}
}

func TestRunFullyCachedCityUsesNoBudget(t *testing.T) {
	b := budget.New(10)
	history := &fakeHistory{budget: b, missingDays: map[string][]int64{}}
	engine := newTestEngine(b, history, []string{strings.Repeat("x", 3)})

	result := engine.Run(context.Background())

	assert.Zero(t, history.fetchCalls)
	assert.Equal(t, 1, result.CitiesCompleted)
	assert.Equal(t, int64(10), b.Remaining())
}
