package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/gavelhouse/gavel/gavel/database"
	"github.com/gavelhouse/gavel/gavel/database/repositories"
	"github.com/gavelhouse/gavel/gavel/engine"
	"github.com/gavelhouse/gavel/gavel/logger"
	"github.com/gavelhouse/gavel/gavel/pricecache"
	"github.com/gavelhouse/gavel/web/utils"
)

// WebApp bundles the dependencies handlers need.
type WebApp struct {
	DB       *database.DB
	Engine   *engine.Engine
	Auctions repositories.AuctionRepository
	Lots     repositories.LotRepository
	Ledger   repositories.LedgerRepository
	Bidders  repositories.BidderRepository
	// Cache is nil when Redis is not configured.
	Cache *pricecache.Cache

	Version string
	Commit  string
}

// HealthCheck reports service liveness and database reachability.
func HealthCheck(app *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := app.DB.Pool().Ping(c.Context()); err != nil {
			return utils.SendError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE",
				"database unreachable", nil)
		}
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": app.Version,
			"commit":  app.Commit,
		})
	}
}

// sendEngineError translates the engine's error taxonomy to HTTP.
// Rejections keep their machine code; anything else is a system fault.
func sendEngineError(c *fiber.Ctx, err error) error {
	if r := engine.AsRejection(err); r != nil {
		status := http.StatusConflict
		switch r.Code {
		case engine.CodeBidTooLow:
			status = http.StatusUnprocessableEntity
		case engine.CodeBidderNotVerified:
			status = http.StatusForbidden
		case engine.CodeBusy:
			status = http.StatusTooManyRequests
			c.Set("Retry-After", "1")
		}
		return utils.SendError(c, status, string(r.Code), r.Message, nil)
	}

	logger.LogError("Request hit a system fault", err, slog.String("path", c.Path()))
	return utils.SendInternalServerError(c, "internal error")
}
