package services

import (
	"context"
	"fmt"

	"weather-notify/internal/models"

	"go.uber.org/zap"
)

// ForecastService resolves a city and fetches a forecast snapshot for it.
type ForecastService struct {
	provider WeatherProvider
	geocoder *Geocoder
	logger   *zap.Logger
}

func NewForecastService(provider WeatherProvider, geocoder *Geocoder, logger *zap.Logger) *ForecastService {
	return &ForecastService{
		provider: provider,
		geocoder: geocoder,
		logger:   logger,
	}
}

// Geocode resolves a free-text location through the shared cache.
func (s *ForecastService) Geocode(ctx context.Context, location string) (models.Location, error) {
	return s.geocoder.Geocode(ctx, location)
}

// GetForecast geocodes the city and fetches a forecast snapshot.
func (s *ForecastService) GetForecast(ctx context.Context, city, units string, includeHourly, includeDaily bool) (*models.Forecast, error) {
	loc, err := s.geocoder.Geocode(ctx, city)
	if err != nil {
		return nil, err
	}

	forecast, err := s.provider.GetForecast(ctx, loc, units, includeHourly, includeDaily)
	if err != nil {
		return nil, fmt.Errorf("fetching forecast for %s: %w", loc.Name, err)
	}

	s.logger.Debug("Forecast fetched",
		zap.String("city", loc.Name),
		zap.Int("daily", len(forecast.Daily)),
		zap.Int("alerts", len(forecast.Alerts)))

	return forecast, nil
}
