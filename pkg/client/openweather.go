package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"weather-notify/internal/models"

	"go.uber.org/zap"
)

const (
	geocodingURL    = "https://api.openweathermap.org/geo/1.0/direct"
	zipGeocodingURL = "https://api.openweathermap.org/geo/1.0/zip"
	oneCallURL      = "https://api.openweathermap.org/data/3.0/onecall"
	timemachineURL  = "https://api.openweathermap.org/data/3.0/onecall/timemachine"
)

// ErrCityNotFound signals an unresolvable location string.
var ErrCityNotFound = errors.New("city not found")

// ErrSubscriptionRequired signals the One Call API rejected our key.
var ErrSubscriptionRequired = errors.New("one call API subscription required")

// OpenWeatherClient talks to the OpenWeatherMap geocoding, One Call and
// Timemachine APIs.
type OpenWeatherClient struct {
	*BaseClient
	apiKey string
	logger *zap.Logger

	// Overridable in tests.
	geocodingURL    string
	zipGeocodingURL string
	oneCallURL      string
	timemachineURL  string
}

func NewOpenWeatherClient(apiKey string, config ClientConfig, logger *zap.Logger) *OpenWeatherClient {
	return &OpenWeatherClient{
		BaseClient:      NewBaseClient("openweather", config, logger),
		apiKey:          apiKey,
		logger:          logger,
		geocodingURL:    geocodingURL,
		zipGeocodingURL: zipGeocodingURL,
		oneCallURL:      oneCallURL,
		timemachineURL:  timemachineURL,
	}
}

// isZipCode reports whether the location looks like "12345" or "12345,DE".
func isZipCode(location string) bool {
	parts := strings.Split(location, ",")
	if len(parts) > 2 {
		return false
	}
	zip := strings.TrimSpace(parts[0])
	if zip == "" {
		return false
	}
	for _, r := range zip {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type geoLocationResponse struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
}

type zipGeoResponse struct {
	Name    string  `json:"name"`
	Zip     string  `json:"zip"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
}

// Geocode resolves a free-text location (city name or zip code) to
// coordinates.
func (c *OpenWeatherClient) Geocode(ctx context.Context, location string) (models.Location, error) {
	if isZipCode(location) {
		return c.geocodeZip(ctx, location)
	}
	return c.geocodeCity(ctx, location)
}

func (c *OpenWeatherClient) geocodeCity(ctx context.Context, city string) (models.Location, error) {
	query := url.Values{}
	query.Set("q", city)
	query.Set("limit", "1")
	query.Set("appid", c.apiKey)

	body, _, err := c.Get(ctx, c.geocodingURL, query)
	if err != nil {
		return models.Location{}, fmt.Errorf("geocoding %q: %w", city, err)
	}

	var locations []geoLocationResponse
	if err := json.Unmarshal(body, &locations); err != nil {
		return models.Location{}, fmt.Errorf("parsing geocoding response: %w", err)
	}
	if len(locations) == 0 {
		return models.Location{}, fmt.Errorf("%w: %s", ErrCityNotFound, city)
	}

	loc := locations[0]
	return models.Location{
		Name:    loc.Name,
		Lat:     loc.Lat,
		Lon:     loc.Lon,
		Country: loc.Country,
		State:   loc.State,
	}, nil
}

func (c *OpenWeatherClient) geocodeZip(ctx context.Context, zip string) (models.Location, error) {
	// Zip codes without a country default to US.
	zipQuery := zip
	if !strings.Contains(zip, ",") {
		zipQuery = zip + ",US"
	}

	query := url.Values{}
	query.Set("zip", zipQuery)
	query.Set("appid", c.apiKey)

	body, status, err := c.Get(ctx, c.zipGeocodingURL, query)
	if err != nil {
		if status == http.StatusNotFound {
			return models.Location{}, fmt.Errorf("%w: %s", ErrCityNotFound, zip)
		}
		return models.Location{}, fmt.Errorf("zip geocoding %q: %w", zip, err)
	}

	var loc zipGeoResponse
	if err := json.Unmarshal(body, &loc); err != nil {
		return models.Location{}, fmt.Errorf("parsing zip geocoding response: %w", err)
	}

	return models.Location{
		Name:    loc.Name,
		Lat:     loc.Lat,
		Lon:     loc.Lon,
		Country: loc.Country,
	}, nil
}

type oneCallWeather struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type oneCallResponse struct {
	Timezone string `json:"timezone"`
	Current  *struct {
		Dt         int64            `json:"dt"`
		Temp       float64          `json:"temp"`
		FeelsLike  float64          `json:"feels_like"`
		Humidity   int              `json:"humidity"`
		Pressure   int              `json:"pressure"`
		UVI        float64          `json:"uvi"`
		Clouds     int              `json:"clouds"`
		Visibility int              `json:"visibility"`
		WindSpeed  float64          `json:"wind_speed"`
		WindDeg    int              `json:"wind_deg"`
		Sunrise    int64            `json:"sunrise"`
		Sunset     int64            `json:"sunset"`
		Weather    []oneCallWeather `json:"weather"`
	} `json:"current"`
	Hourly []struct {
		Dt        int64            `json:"dt"`
		Temp      float64          `json:"temp"`
		FeelsLike float64          `json:"feels_like"`
		Humidity  int              `json:"humidity"`
		WindSpeed float64          `json:"wind_speed"`
		Pop       float64          `json:"pop"`
		Weather   []oneCallWeather `json:"weather"`
	} `json:"hourly"`
	Daily []struct {
		Dt      int64  `json:"dt"`
		Summary string `json:"summary"`
		Temp    struct {
			Min   float64 `json:"min"`
			Max   float64 `json:"max"`
			Day   float64 `json:"day"`
			Night float64 `json:"night"`
		} `json:"temp"`
		Humidity  int              `json:"humidity"`
		Pressure  int              `json:"pressure"`
		WindSpeed float64          `json:"wind_speed"`
		Pop       float64          `json:"pop"`
		Rain      float64          `json:"rain"`
		Snow      float64          `json:"snow"`
		Weather   []oneCallWeather `json:"weather"`
	} `json:"daily"`
	Alerts []struct {
		SenderName  string `json:"sender_name"`
		Event       string `json:"event"`
		Start       int64  `json:"start"`
		End         int64  `json:"end"`
		Description string `json:"description"`
	} `json:"alerts"`
}

// GetForecast fetches a One Call forecast snapshot for the given coordinates.
func (c *OpenWeatherClient) GetForecast(ctx context.Context, loc models.Location, units string, includeHourly, includeDaily bool) (*models.Forecast, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	query.Set("units", units)
	query.Set("appid", c.apiKey)

	exclude := []string{"minutely"}
	if !includeHourly {
		exclude = append(exclude, "hourly")
	}
	if !includeDaily {
		exclude = append(exclude, "daily")
	}
	query.Set("exclude", strings.Join(exclude, ","))

	body, status, err := c.Get(ctx, c.oneCallURL, query)
	if err != nil {
		if status == http.StatusUnauthorized {
			return nil, ErrSubscriptionRequired
		}
		return nil, fmt.Errorf("fetching forecast: %w", err)
	}

	var resp oneCallResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing forecast response: %w", err)
	}

	forecast := &models.Forecast{
		Location: loc,
		Timezone: resp.Timezone,
		Units:    units,
	}

	if resp.Current != nil {
		cur := resp.Current
		current := &models.CurrentConditions{
			Timestamp:     cur.Dt,
			Temperature:   cur.Temp,
			FeelsLike:     cur.FeelsLike,
			Humidity:      cur.Humidity,
			Pressure:      cur.Pressure,
			UVIndex:       cur.UVI,
			Clouds:        cur.Clouds,
			Visibility:    cur.Visibility,
			WindSpeed:     cur.WindSpeed,
			WindDirection: cur.WindDeg,
			Sunrise:       cur.Sunrise,
			Sunset:        cur.Sunset,
		}
		if len(cur.Weather) > 0 {
			current.Description = cur.Weather[0].Description
			current.Icon = cur.Weather[0].Icon
		}
		forecast.Current = current
	}

	for _, h := range resp.Hourly {
		hour := models.HourlyForecast{
			Timestamp:                h.Dt,
			Temperature:              h.Temp,
			FeelsLike:                h.FeelsLike,
			Humidity:                 h.Humidity,
			WindSpeed:                h.WindSpeed,
			PrecipitationProbability: h.Pop,
		}
		if len(h.Weather) > 0 {
			hour.Description = h.Weather[0].Description
			hour.Icon = h.Weather[0].Icon
		}
		forecast.Hourly = append(forecast.Hourly, hour)
	}

	for _, d := range resp.Daily {
		day := models.DailyForecast{
			Timestamp:                d.Dt,
			Summary:                  d.Summary,
			TempMin:                  d.Temp.Min,
			TempMax:                  d.Temp.Max,
			TempDay:                  d.Temp.Day,
			TempNight:                d.Temp.Night,
			Humidity:                 d.Humidity,
			Pressure:                 d.Pressure,
			WindSpeed:                d.WindSpeed,
			PrecipitationProbability: d.Pop,
			RainVolume:               d.Rain,
			SnowVolume:               d.Snow,
		}
		if len(d.Weather) > 0 {
			day.Description = d.Weather[0].Description
			day.Icon = d.Weather[0].Icon
		}
		forecast.Daily = append(forecast.Daily, day)
	}

	for _, a := range resp.Alerts {
		forecast.Alerts = append(forecast.Alerts, models.Alert{
			Sender:      a.SenderName,
			Event:       a.Event,
			Start:       a.Start,
			End:         a.End,
			Description: a.Description,
		})
	}

	return forecast, nil
}

// TimemachineHour is one hourly observation returned by the Timemachine API.
type TimemachineHour struct {
	Dt         int64            `json:"dt"`
	Temp       float64          `json:"temp"`
	FeelsLike  float64          `json:"feels_like"`
	Humidity   int              `json:"humidity"`
	Pressure   int              `json:"pressure"`
	WindSpeed  float64          `json:"wind_speed"`
	WindDeg    *int             `json:"wind_deg"`
	Clouds     *int             `json:"clouds"`
	Visibility *int             `json:"visibility"`
	Weather    []oneCallWeather `json:"weather"`
	Rain       *struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Snow *struct {
		OneHour float64 `json:"1h"`
	} `json:"snow"`
}

type timemachineResponse struct {
	Data []TimemachineHour `json:"data"`
}

// FetchTimemachine fetches historical hourly observations for the UTC day
// containing the given timestamp.
func (c *OpenWeatherClient) FetchTimemachine(ctx context.Context, lat, lon float64, timestamp int64, units string) ([]TimemachineHour, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("dt", strconv.FormatInt(timestamp, 10))
	query.Set("units", units)
	query.Set("appid", c.apiKey)

	body, status, err := c.Get(ctx, c.timemachineURL, query)
	if err != nil {
		if status == http.StatusUnauthorized {
			return nil, ErrSubscriptionRequired
		}
		return nil, fmt.Errorf("fetching timemachine data: %w", err)
	}

	var resp timemachineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing timemachine response: %w", err)
	}

	return resp.Data, nil
}
