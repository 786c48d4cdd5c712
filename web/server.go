package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/gavelhouse/gavel/web/handlers"
	"github.com/gavelhouse/gavel/web/middleware"
)

// NewApp builds the REST API around the engine and repositories.
func NewApp(webApp *handlers.WebApp) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Gavel API",
		ServerHeader: "Gavel",
		ErrorHandler: middleware.CustomErrorHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	app.Use(recover.New())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(middleware.LoggingMiddleware())

	setupRoutes(app, webApp)
	return app
}

func setupRoutes(app *fiber.App, webApp *handlers.WebApp) {
	app.Get("/health", handlers.HealthCheck(webApp))

	api := app.Group("/api/v1")
	api.Use(middleware.APIRateLimit())

	lots := api.Group("/lots")
	lots.Post("/:id/bids", middleware.BidRateLimit(), handlers.PlaceBid(webApp))
	lots.Post("/:id/proxy", middleware.BidRateLimit(), handlers.RegisterProxy(webApp))
	lots.Get("/:id", handlers.LotDetail(webApp))
	lots.Get("/:id/bids", handlers.LotBids(webApp))

	api.Get("/auctions/:id", handlers.AuctionDetail(webApp))

	// Operator surface. Authentication is terminated upstream; these
	// routes are not exposed on the public listener.
	admin := api.Group("/admin")
	admin.Post("/auctions", handlers.CreateAuction(webApp))
	admin.Post("/auctions/:id/lots", handlers.CreateLot(webApp))
	admin.Post("/auctions/:id/cancel", handlers.CancelAuction(webApp))
	admin.Post("/auctions/:id/suspend", handlers.SuspendAuction(webApp))
	admin.Post("/auctions/:id/pause", handlers.PauseAuction(webApp))
	admin.Post("/auctions/:id/resume", handlers.ResumeAuction(webApp))
	admin.Post("/lots/:id/close", handlers.CloseLot(webApp))
	admin.Post("/lots/:id/withdraw", handlers.WithdrawLot(webApp))
	admin.Put("/bidders/:id", handlers.UpsertBidder(webApp))

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error": fiber.Map{
				"code":    "NOT_FOUND",
				"message": "The requested endpoint does not exist",
			},
		})
	})
}
