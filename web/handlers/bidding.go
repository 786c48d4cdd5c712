package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gavelhouse/gavel/gavel/logger"
	"github.com/gavelhouse/gavel/web/utils"
)

type placeBidRequest struct {
	BidderID   string `json:"bidderId"`
	Amount     int64  `json:"amount"`
	MaxAutoBid int64  `json:"maxAutoBid,omitempty"`
}

type registerProxyRequest struct {
	BidderID string `json:"bidderId"`
	Ceiling  int64  `json:"ceiling"`
}

// PlaceBid submits a manual bid on a lot, optionally registering an
// auto-bid ceiling in the same request.
func PlaceBid(app *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lotID, err := c.ParamsInt("id")
		if err != nil {
			return utils.SendBadRequest(c, "invalid lot id", nil)
		}

		var req placeBidRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "invalid request body", nil)
		}
		if req.BidderID == "" {
			return utils.SendBadRequest(c, "bidderId is required", nil)
		}
		if req.Amount <= 0 {
			return utils.SendBadRequest(c, "amount must be positive", nil)
		}

		start := time.Now()
		result, err := app.Engine.PlaceBid(c.Context(), int64(lotID), req.BidderID, req.Amount, req.MaxAutoBid)
		logger.LogBid(int64(lotID), req.BidderID, req.Amount, time.Since(start), err)
		if err != nil {
			return sendEngineError(c, err)
		}

		return utils.SendCreated(c, fiber.Map{
			"lotId":          result.LotID,
			"acceptedAmount": result.AcceptedAmount,
			"status":         result.Status,
			"currentPrice":   result.CurrentPrice,
			"auctionEndTime": result.AuctionEndTime,
			"extended":       result.Extended,
		}, "bid accepted")
	}
}

// RegisterProxy creates or raises a standing auto-bid ceiling.
func RegisterProxy(app *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lotID, err := c.ParamsInt("id")
		if err != nil {
			return utils.SendBadRequest(c, "invalid lot id", nil)
		}

		var req registerProxyRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "invalid request body", nil)
		}
		if req.BidderID == "" {
			return utils.SendBadRequest(c, "bidderId is required", nil)
		}
		if req.Ceiling <= 0 {
			return utils.SendBadRequest(c, "ceiling must be positive", nil)
		}

		proxy, err := app.Engine.RegisterAutoBid(c.Context(), int64(lotID), req.BidderID, req.Ceiling)
		if err != nil {
			return sendEngineError(c, err)
		}

		return utils.SendCreated(c, fiber.Map{
			"lotId":   proxy.LotID,
			"ceiling": proxy.Ceiling,
			"active":  proxy.Active,
		}, "auto-bid registered")
	}
}
