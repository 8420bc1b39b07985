package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"weather-notify/internal/api"
	"weather-notify/internal/backfill"
	"weather-notify/internal/budget"
	"weather-notify/internal/cache"
	"weather-notify/internal/config"
	"weather-notify/internal/devices"
	"weather-notify/internal/models"
	"weather-notify/internal/notify"
	"weather-notify/internal/scheduler"
	"weather-notify/internal/services"
	"weather-notify/internal/store"
	"weather-notify/pkg/client"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	logger.Info("Starting Weather Notify Service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.WeatherAPI.OpenWeatherAPIKey == "" {
		logger.Fatal("OPENWEATHER_API_KEY is required")
	}

	// Shared daily API call budget
	callBudget := budget.New(cfg.WeatherAPI.DailyCallBudget)

	// Upstream weather client
	owm := client.NewOpenWeatherClient(cfg.WeatherAPI.OpenWeatherAPIKey, client.ClientConfig{
		Timeout:        cfg.Server.ReadTimeout,
		MaxRetries:     cfg.Retry.MaxRetries,
		RetryDelay:     cfg.Retry.Delay,
		Multiplier:     cfg.Retry.Multiplier,
		BreakerTimeout: cfg.CircuitBreaker.Timeout,
	}, logger)

	// Geocode cache
	geoCache := cache.New[models.Location](cfg.Cache.Duration, logger)
	geoCache.StartCleanup(cfg.Cache.CleanupInterval)
	defer geoCache.Stop()

	geocoder := services.NewGeocoder(owm, geoCache, logger)
	forecasts := services.NewForecastService(owm, geocoder, logger)

	// Stores
	jobStore := store.NewJobStore(cfg.Storage.JobsFile, logger)

	deviceStore := store.NewDeviceStore(cfg.Storage.DevicesFile, logger)
	if err := deviceStore.Load(); err != nil {
		logger.Fatal("Failed to load device store", zap.Error(err))
	}

	historyStore, err := store.OpenHistoryStore(cfg.Storage.HistoryDB, logger)
	if err != nil {
		logger.Fatal("Failed to open history store", zap.Error(err))
	}

	if cfg.Storage.HistoryRetentionDays > 0 {
		cutoff := time.Now().Unix() - int64(cfg.Storage.HistoryRetentionDays)*86400
		if deleted, err := historyStore.CleanupOld(cutoff); err != nil {
			logger.Warn("History cleanup failed", zap.Error(err))
		} else if deleted > 0 {
			logger.Info("Cleaned up old history rows", zap.Int("deleted", deleted))
		}
	}

	history := services.NewHistoryService(owm, geocoder, historyStore, callBudget, logger)

	// Devices and notification backends
	deviceSvc := devices.NewService(deviceStore, logger)

	httpClient := &http.Client{Timeout: 15 * time.Second}
	var backends []notify.Backend
	if cfg.Notifications.ExpoEnabled {
		expo := notify.NewExpoBackend(httpClient, deviceSvc, logger)
		deviceSvc.SetExpoBackend(expo)
		backends = append(backends, expo)
	}
	if cfg.Notifications.NtfyURL != "" && cfg.Notifications.NtfyTopic != "" {
		var auth *notify.NtfyAuth
		if cfg.Notifications.NtfyToken != "" || cfg.Notifications.NtfyUsername != "" {
			auth = &notify.NtfyAuth{
				Token:    cfg.Notifications.NtfyToken,
				Username: cfg.Notifications.NtfyUsername,
				Password: cfg.Notifications.NtfyPassword,
			}
		}
		backends = append(backends, notify.NewNtfyBackend(httpClient, cfg.Notifications.NtfyURL, cfg.Notifications.NtfyTopic, auth, logger))
	}
	if cfg.Notifications.GotifyURL != "" && cfg.Notifications.GotifyToken != "" {
		backends = append(backends, notify.NewGotifyBackend(httpClient, cfg.Notifications.GotifyURL, cfg.Notifications.GotifyToken, logger))
	}
	dispatcher := notify.NewDispatcher(backends, cfg.Notifications.RequireAll, logger)
	logger.Info("Notification backends configured", zap.Int("count", dispatcher.Configured()))

	// Scheduler
	sched := scheduler.New(jobStore, forecasts, dispatcher, logger)
	if err := sched.Init(); err != nil {
		logger.Fatal("Failed to initialize scheduler", zap.Error(err))
	}

	if cfg.Jobs.ConfigFile != "" {
		jobsCfg, err := loadJobsConfig(cfg.Jobs.ConfigFile)
		if err != nil {
			logger.Error("Failed to load jobs config file", zap.Error(err))
		} else {
			sched.LoadConfigJobs(jobsCfg)
		}
	}

	// Backfill engine, drives off the same budget as read-path fetches
	engine := backfill.NewEngine(history, deviceStore, sched, callBudget, backfill.Config{
		Cron:           cfg.Backfill.Cron,
		MaxYears:       cfg.Backfill.MaxYears,
		FallbackCities: cfg.Backfill.FallbackCities,
	}, logger)

	if err := sched.AddSystemJob(cfg.Backfill.Cron, engine.CronRunner()); err != nil {
		logger.Fatal("Failed to schedule backfill job", zap.Error(err))
	}

	sched.Start()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: errorHandler,
	})

	// Setup handlers and routes
	handler := api.NewHandler(sched, forecasts, history, deviceSvc, callBudget, engine, logger)
	api.SetupRoutes(app, handler)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("Starting server", zap.String("address", addr))

		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop scheduler and wait for in-flight job runs
	sched.Stop(ctx)

	// Shutdown Fiber app
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func loadJobsConfig(path string) (models.JobsConfig, error) {
	var cfg models.JobsConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func errorHandler(c *fiber.Ctx, err error) error {
	zap.L().Error("HTTP error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err))

	// Default to 500 status code
	code := fiber.StatusInternalServerError

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   err.Error(),
		"success": false,
	})
}
