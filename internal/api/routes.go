package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func SetupRoutes(app *fiber.App, handler *Handler) {
	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} ${pid} ${locals:requestid} ${status} - ${method} ${path}\n",
		TimeFormat: time.RFC3339,
	}))

	// Health check at root level
	app.Get("/health", handler.GetHealth)

	// API v1 routes
	api := app.Group("/api/v1")

	api.Get("/health", handler.GetHealth)
	api.Get("/forecast", handler.GetForecast)

	// Scheduler routes
	sched := api.Group("/scheduler")
	sched.Get("/status", handler.GetSchedulerStatus)
	sched.Get("/jobs", handler.ListJobs)
	sched.Post("/jobs", handler.CreateJob)
	sched.Get("/jobs/:id", handler.GetJob)
	sched.Put("/jobs/:id", handler.UpdateJob)
	sched.Delete("/jobs/:id", handler.DeleteJob)
	sched.Post("/trigger/:city", handler.TriggerForecast)

	// Device routes
	dev := api.Group("/devices")
	dev.Post("/register", handler.RegisterDevice)
	dev.Post("/unregister", handler.UnregisterDevice)
	dev.Put("/settings", handler.UpdateDeviceSettings)
	dev.Post("/test", handler.SendTestNotification)
	dev.Get("/count", handler.GetDeviceCount)

	// History routes
	hist := api.Group("/history")
	hist.Get("/:city", handler.GetHistory)
	hist.Get("/:city/daily", handler.GetDailyHistory)
	hist.Get("/:city/trends", handler.GetTrends)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
			"path":  c.Path(),
		})
	})
}
