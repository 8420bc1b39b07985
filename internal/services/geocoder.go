package services

import (
	"context"

	"weather-notify/internal/cache"
	"weather-notify/internal/models"
	"weather-notify/pkg/client"

	"go.uber.org/zap"
)

// WeatherProvider is the upstream collaborator the core depends on. The wire
// format belongs to pkg/client; only these capabilities matter here.
type WeatherProvider interface {
	Geocode(ctx context.Context, location string) (models.Location, error)
	GetForecast(ctx context.Context, loc models.Location, units string, includeHourly, includeDaily bool) (*models.Forecast, error)
	FetchTimemachine(ctx context.Context, lat, lon float64, timestamp int64, units string) ([]client.TimemachineHour, error)
}

// Geocoder memoizes provider geocoding lookups in a TTL cache with normalized
// keys.
type Geocoder struct {
	provider WeatherProvider
	cache    *cache.Expiring[models.Location]
	logger   *zap.Logger
}

func NewGeocoder(provider WeatherProvider, geoCache *cache.Expiring[models.Location], logger *zap.Logger) *Geocoder {
	return &Geocoder{
		provider: provider,
		cache:    geoCache,
		logger:   logger,
	}
}

// Geocode resolves a location string, consulting the cache first.
func (g *Geocoder) Geocode(ctx context.Context, location string) (models.Location, error) {
	key := cache.NormalizeKey(location)

	if cached, ok := g.cache.Get(key); ok {
		return cached, nil
	}

	loc, err := g.provider.Geocode(ctx, location)
	if err != nil {
		return models.Location{}, err
	}

	g.cache.Insert(key, loc)
	g.logger.Debug("Geocoded location",
		zap.String("query", location),
		zap.String("resolved", loc.Name))

	return loc, nil
}
