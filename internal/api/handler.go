package api

import (
	"errors"
	"time"

	"weather-notify/internal/backfill"
	"weather-notify/internal/budget"
	"weather-notify/internal/devices"
	"weather-notify/internal/models"
	"weather-notify/internal/scheduler"
	"weather-notify/internal/services"
	"weather-notify/pkg/client"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var startTime = time.Now()

type Handler struct {
	scheduler *scheduler.Scheduler
	forecasts *services.ForecastService
	history   *services.HistoryService
	devices   *devices.Service
	budget    *budget.Budget
	backfill  *backfill.Engine
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewHandler(
	sched *scheduler.Scheduler,
	forecasts *services.ForecastService,
	history *services.HistoryService,
	deviceSvc *devices.Service,
	b *budget.Budget,
	engine *backfill.Engine,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		scheduler: sched,
		forecasts: forecasts,
		history:   history,
		devices:   deviceSvc,
		budget:    b,
		backfill:  engine,
		validate:  validator.New(),
		logger:    logger,
	}
}

// errorResponse maps known sentinel errors onto HTTP statuses. Anything
// unrecognized is a 500 with the underlying message attached.
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, scheduler.ErrInvalidCron),
		errors.Is(err, scheduler.ErrInvalidTimezone),
		errors.Is(err, services.ErrInvalidDateRange):
		status = fiber.StatusBadRequest
	case errors.Is(err, scheduler.ErrJobNotFound),
		errors.Is(err, devices.ErrDeviceNotFound),
		errors.Is(err, client.ErrCityNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrBudgetExhausted):
		status = fiber.StatusTooManyRequests
	case errors.Is(err, client.ErrSubscriptionRequired):
		status = fiber.StatusBadGateway
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func validationError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "Validation failed",
		"details": err.Error(),
	})
}

// GetHealth handles GET /health
func (h *Handler) GetHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(startTime).String(),
	})
}

// GetForecast handles GET /api/v1/forecast
func (h *Handler) GetForecast(c *fiber.Ctx) error {
	city := c.Query("city")
	if city == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "City parameter is required",
		})
	}
	units := c.Query("units", "metric")
	includeHourly := c.QueryBool("hourly", false)
	includeDaily := c.QueryBool("daily", true)

	h.logger.Info("Fetching forecast", zap.String("city", city))

	forecast, err := h.forecasts.GetForecast(c.Context(), city, units, includeHourly, includeDaily)
	if err != nil {
		h.logger.Error("Failed to get forecast",
			zap.String("city", city),
			zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(forecast)
}

// GetSchedulerStatus handles GET /api/v1/scheduler/status
func (h *Handler) GetSchedulerStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"scheduler": h.scheduler.Status(),
		"budget": fiber.Map{
			"limit":     h.budget.Limit(),
			"used":      h.budget.UsedToday(),
			"remaining": h.budget.Remaining(),
		},
		"last_backfill": h.backfill.LastRun(),
	})
}

// ListJobs handles GET /api/v1/scheduler/jobs
func (h *Handler) ListJobs(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"jobs": h.scheduler.Jobs(),
	})
}

// GetJob handles GET /api/v1/scheduler/jobs/:id
func (h *Handler) GetJob(c *fiber.Ctx) error {
	job, ok := h.scheduler.GetJob(c.Params("id"))
	if !ok {
		return errorResponse(c, scheduler.ErrJobNotFound)
	}
	return c.JSON(job)
}

// CreateJob handles POST /api/v1/scheduler/jobs
func (h *Handler) CreateJob(c *fiber.Ctx) error {
	var job models.ForecastJob
	if err := c.BodyParser(&job); err != nil {
		return validationError(c, err)
	}
	job.ApplyDefaults()
	if err := h.validate.Struct(job); err != nil {
		return validationError(c, err)
	}

	created, err := h.scheduler.CreateJob(job)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// UpdateJob handles PUT /api/v1/scheduler/jobs/:id
func (h *Handler) UpdateJob(c *fiber.Ctx) error {
	var job models.ForecastJob
	if err := c.BodyParser(&job); err != nil {
		return validationError(c, err)
	}
	job.ID = c.Params("id")
	job.ApplyDefaults()
	if err := h.validate.Struct(job); err != nil {
		return validationError(c, err)
	}

	updated, err := h.scheduler.UpdateJob(job)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(updated)
}

// DeleteJob handles DELETE /api/v1/scheduler/jobs/:id
func (h *Handler) DeleteJob(c *fiber.Ctx) error {
	if err := h.scheduler.DeleteJob(c.Params("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// TriggerForecast handles POST /api/v1/scheduler/trigger/:city
func (h *Handler) TriggerForecast(c *fiber.Ctx) error {
	city := c.Params("city")
	units := c.Query("units", "metric")

	if err := h.scheduler.RunNow(c.Context(), city, units); err != nil {
		h.logger.Error("Manual trigger failed",
			zap.String("city", city),
			zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"status": "triggered",
		"city":   city,
	})
}

// RegisterDevice handles POST /api/v1/devices/register
func (h *Handler) RegisterDevice(c *fiber.Ctx) error {
	var req devices.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return validationError(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	device, err := h.devices.Register(req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(device)
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// UnregisterDevice handles POST /api/v1/devices/unregister
func (h *Handler) UnregisterDevice(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return validationError(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	if err := h.devices.Unregister(req.Token); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"status": "unregistered"})
}

type settingsRequest struct {
	Token string `json:"token" validate:"required"`
	devices.SettingsRequest
}

// UpdateDeviceSettings handles PUT /api/v1/devices/settings
func (h *Handler) UpdateDeviceSettings(c *fiber.Ctx) error {
	var req settingsRequest
	if err := c.BodyParser(&req); err != nil {
		return validationError(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	device, err := h.devices.UpdateSettings(req.Token, req.SettingsRequest)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(device)
}

// SendTestNotification handles POST /api/v1/devices/test
func (h *Handler) SendTestNotification(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return validationError(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	if err := h.devices.SendTest(c.Context(), req.Token); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"status": "sent"})
}

// GetDeviceCount handles GET /api/v1/devices/count
func (h *Handler) GetDeviceCount(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"count": h.devices.Count()})
}

// GetHistory handles GET /api/v1/history/:city
func (h *Handler) GetHistory(c *fiber.Ctx) error {
	city := c.Params("city")
	units := c.Query("units", "metric")
	start := int64(c.QueryInt("start", 0))
	end := int64(c.QueryInt("end", 0))

	resp, err := h.history.GetHistory(c.Context(), city, start, end, units)
	if err != nil {
		h.logger.Error("Failed to get history",
			zap.String("city", city),
			zap.Error(err))
		return errorResponse(c, err)
	}
	return c.JSON(resp)
}

// GetDailyHistory handles GET /api/v1/history/:city/daily
func (h *Handler) GetDailyHistory(c *fiber.Ctx) error {
	city := c.Params("city")
	units := c.Query("units", "metric")
	start := int64(c.QueryInt("start", 0))
	end := int64(c.QueryInt("end", 0))

	resp, err := h.history.GetDailyHistory(c.Context(), city, start, end, units)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(resp)
}

// GetTrends handles GET /api/v1/history/:city/trends
func (h *Handler) GetTrends(c *fiber.Ctx) error {
	city := c.Params("city")
	units := c.Query("units", "metric")
	period := c.Query("period", "7d")
	start := int64(c.QueryInt("start", 0))
	end := int64(c.QueryInt("end", 0))

	resp, err := h.history.GetTrends(c.Context(), city, period, units, start, end)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(resp)
}
