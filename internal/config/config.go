package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Server struct {
		Port         string
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
		LogLevel     string
	}

	WeatherAPI struct {
		OpenWeatherAPIKey string
		DailyCallBudget   int64
	}

	Storage struct {
		JobsFile             string
		DevicesFile          string
		HistoryDB            string
		HistoryRetentionDays int
	}

	Cache struct {
		Duration        time.Duration
		CleanupInterval time.Duration
	}

	Jobs struct {
		ConfigFile string
	}

	Backfill struct {
		Cron           string
		MaxYears       int
		FallbackCities []string
	}

	Notifications struct {
		ExpoEnabled  bool
		NtfyURL      string
		NtfyTopic    string
		NtfyToken    string
		NtfyUsername string
		NtfyPassword string
		GotifyURL    string
		GotifyToken  string
		RequireAll   bool
	}

	CircuitBreaker struct {
		Threshold int
		Timeout   time.Duration
	}

	Retry struct {
		MaxRetries int
		Delay      time.Duration
		Multiplier float64
	}
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		zap.L().Info("No .env file found, using environment variables")
	}

	cfg := &Config{}

	// Server configuration
	cfg.Server.Port = getEnv("FIBER_PORT", "8080")
	cfg.Server.ReadTimeout = parseDuration(getEnv("FIBER_READ_TIMEOUT", "10s"))
	cfg.Server.WriteTimeout = parseDuration(getEnv("FIBER_WRITE_TIMEOUT", "10s"))
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", "info")

	// Weather API configuration
	cfg.WeatherAPI.OpenWeatherAPIKey = getEnv("OPENWEATHER_API_KEY", "")
	cfg.WeatherAPI.DailyCallBudget = int64(parseInt(getEnv("DAILY_CALL_BUDGET", "900")))

	// Storage configuration
	cfg.Storage.JobsFile = getEnv("JOBS_FILE", "data/jobs.json")
	cfg.Storage.DevicesFile = getEnv("DEVICES_FILE", "data/devices.json")
	cfg.Storage.HistoryDB = getEnv("HISTORY_DB", "data/history.db")
	cfg.Storage.HistoryRetentionDays = parseInt(getEnv("HISTORY_RETENTION_DAYS", "0"))

	// Cache configuration
	cfg.Cache.Duration = parseDuration(getEnv("CACHE_DURATION", "10m"))
	cfg.Cache.CleanupInterval = parseDuration(getEnv("CACHE_CLEANUP_INTERVAL", "1h"))

	// Jobs configuration file
	cfg.Jobs.ConfigFile = getEnv("JOBS_CONFIG_FILE", "")

	// Backfill configuration
	cfg.Backfill.Cron = getEnv("BACKFILL_CRON", "0 30 2 * * *")
	cfg.Backfill.MaxYears = parseInt(getEnv("BACKFILL_MAX_YEARS", "1"))
	if cities := getEnv("BACKFILL_FALLBACK_CITIES", ""); cities != "" {
		cfg.Backfill.FallbackCities = strings.Split(cities, ",")
	}

	// Notification backends
	cfg.Notifications.ExpoEnabled = parseBool(getEnv("EXPO_ENABLED", "true"))
	cfg.Notifications.NtfyURL = getEnv("NTFY_URL", "")
	cfg.Notifications.NtfyTopic = getEnv("NTFY_TOPIC", "")
	cfg.Notifications.NtfyToken = getEnv("NTFY_TOKEN", "")
	cfg.Notifications.NtfyUsername = getEnv("NTFY_USERNAME", "")
	cfg.Notifications.NtfyPassword = getEnv("NTFY_PASSWORD", "")
	cfg.Notifications.GotifyURL = getEnv("GOTIFY_URL", "")
	cfg.Notifications.GotifyToken = getEnv("GOTIFY_TOKEN", "")
	cfg.Notifications.RequireAll = parseBool(getEnv("NOTIFY_REQUIRE_ALL", "false"))

	// Circuit breaker configuration
	cfg.CircuitBreaker.Threshold = parseInt(getEnv("CIRCUIT_BREAKER_THRESHOLD", "3"))
	cfg.CircuitBreaker.Timeout = parseDuration(getEnv("CIRCUIT_BREAKER_TIMEOUT", "30s"))

	// Retry configuration
	cfg.Retry.MaxRetries = parseInt(getEnv("MAX_RETRIES", "3"))
	cfg.Retry.Delay = parseDuration(getEnv("RETRY_DELAY", "1s"))
	cfg.Retry.Multiplier = parseFloat(getEnv("RETRY_MULTIPLIER", "2"))

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		zap.L().Warn("Failed to parse duration", zap.String("value", value), zap.Error(err))
		return 0
	}
	return duration
}

func parseInt(value string) int {
	intValue, err := strconv.Atoi(value)
	if err != nil {
		zap.L().Warn("Failed to parse int", zap.String("value", value), zap.Error(err))
		return 0
	}
	return intValue
}

func parseFloat(value string) float64 {
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		zap.L().Warn("Failed to parse float", zap.String("value", value), zap.Error(err))
		return 0
	}
	return floatValue
}

func parseBool(value string) bool {
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		zap.L().Warn("Failed to parse bool", zap.String("value", value), zap.Error(err))
		return false
	}
	return boolValue
}
