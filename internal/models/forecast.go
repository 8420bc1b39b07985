package models

// Location is a geocoded place returned by the geocoding API.
type Location struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state,omitempty"`
}

type CurrentConditions struct {
	Timestamp     int64   `json:"timestamp"`
	Temperature   float64 `json:"temperature"`
	FeelsLike     float64 `json:"feels_like"`
	Humidity      int     `json:"humidity"`
	Pressure      int     `json:"pressure"`
	UVIndex       float64 `json:"uv_index"`
	Clouds        int     `json:"clouds"`
	Visibility    int     `json:"visibility,omitempty"`
	WindSpeed     float64 `json:"wind_speed"`
	WindDirection int     `json:"wind_direction"`
	Description   string  `json:"description"`
	Icon          string  `json:"icon"`
	Sunrise       int64   `json:"sunrise,omitempty"`
	Sunset        int64   `json:"sunset,omitempty"`
}

type HourlyForecast struct {
	Timestamp                int64   `json:"timestamp"`
	Temperature              float64 `json:"temperature"`
	FeelsLike                float64 `json:"feels_like"`
	Humidity                 int     `json:"humidity"`
	WindSpeed                float64 `json:"wind_speed"`
	PrecipitationProbability float64 `json:"precipitation_probability"`
	Description              string  `json:"description"`
	Icon                     string  `json:"icon"`
}

type DailyForecast struct {
	Timestamp                int64   `json:"timestamp"`
	Summary                  string  `json:"summary,omitempty"`
	TempMin                  float64 `json:"temp_min"`
	TempMax                  float64 `json:"temp_max"`
	TempDay                  float64 `json:"temp_day"`
	TempNight                float64 `json:"temp_night"`
	Humidity                 int     `json:"humidity"`
	Pressure                 int     `json:"pressure"`
	WindSpeed                float64 `json:"wind_speed"`
	PrecipitationProbability float64 `json:"precipitation_probability"`
	RainVolume               float64 `json:"rain_volume,omitempty"`
	SnowVolume               float64 `json:"snow_volume,omitempty"`
	Description              string  `json:"description"`
	Icon                     string  `json:"icon"`
}

// Alert is a government weather alert attached to a forecast.
type Alert struct {
	Sender      string `json:"sender"`
	Event       string `json:"event"`
	Start       int64  `json:"start"`
	End         int64  `json:"end"`
	Description string `json:"description"`
}

// Forecast is a single forecast snapshot for one location. Notification
// policy is always evaluated against one snapshot, never historical state.
type Forecast struct {
	Location Location           `json:"location"`
	Timezone string             `json:"timezone"`
	Units    string             `json:"units"`
	Current  *CurrentConditions `json:"current,omitempty"`
	Hourly   []HourlyForecast   `json:"hourly,omitempty"`
	Daily    []DailyForecast    `json:"daily,omitempty"`
	Alerts   []Alert            `json:"alerts,omitempty"`
}
