package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/gavelhouse/gavel/gavel/database/models"
	"github.com/gavelhouse/gavel/web/utils"
)

// CloseLot force-closes a lot through the engine, bypassing the clock.
func CloseLot(app *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lotID, err := c.ParamsInt("id")
		if err != nil {
			return utils.SendBadRequest(c, "invalid lot id", nil)
		}
		result, err := app.Engine.ForceCloseLot(c.Context(), int64(lotID))
		if err != nil {
			return sendEngineError(c, err)
		}
		return utils.SendSuccess(c, result, "lot closed")
	}
}

// WithdrawLot pulls a lot from sale.
func WithdrawLot(app *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lotID, err := c.ParamsInt("id")
		if err != nil {
			return utils.SendBadRequest(c, "invalid lot id", nil)
		}
		result, err := app.Engine.WithdrawLot(c.Context(), int64(lotID))
		if err != nil {
			return sendEngineError(c, err)
		}
		return utils.SendSuccess(c, result, "lot withdrawn")
	}
}

func auctionTransition(app *WebApp, op string, fn func(c *fiber.Ctx, id int64) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auctionID, err := c.ParamsInt("id")
		if err != nil {
			return utils.SendBadRequest(c, "invalid auction id", nil)
		}
		if err := fn(c, int64(auctionID)); err != nil {
			return sendEngineError(c, err)
		}
		return utils.SendSuccess(c, fiber.Map{"auctionId": auctionID}, fmt.Sprintf("auction %s", op))
	}
}

func CancelAuction(app *WebApp) fiber.Handler {
	return auctionTransition(app, "cancelled", func(c *fiber.Ctx, id int64) error {
		return app.Engine.CancelAuction(c.Context(), id)
	})
}

func SuspendAuction(app *WebApp) fiber.Handler {
	return auctionTransition(app, "suspended", func(c *fiber.Ctx, id int64) error {
		return app.Engine.SuspendAuction(c.Context(), id)
	})
}

func PauseAuction(app *WebApp) fiber.Handler {
	return auctionTransition(app, "paused", func(c *fiber.Ctx, id int64) error {
		return app.Engine.PauseAuction(c.Context(), id)
	})
}

func ResumeAuction(app *WebApp) fiber.Handler {
	return auctionTransition(app, "resumed", func(c *fiber.Ctx, id int64) error {
		return app.Engine.ResumeAuction(c.Context(), id)
	})
}

type createAuctionRequest struct {
	Code             string    `json:"code"`
	Title            string    `json:"title"`
	Currency         string    `json:"currency"`
	BuyersPremiumBps int64     `json:"buyersPremiumBps"`
	ReservePolicy    string    `json:"reservePolicy"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
}

// CreateAuction registers a scheduled auction. Creation is the auction
// house's setup workflow, not the bidding path, so it writes through
// the repository directly.
func CreateAuction(app *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createAuctionRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "invalid request body", nil)
		}
		if req.Title == "" {
			return utils.SendBadRequest(c, "title is required", nil)
		}
		if !req.EndTime.After(req.StartTime) {
			return utils.SendBadRequest(c, "endTime must be after startTime", nil)
		}

		auction := &models.Auction{
			Code:             req.Code,
			Title:            req.Title,
			Currency:         req.Currency,
			BuyersPremiumBps: req.BuyersPremiumBps,
			ReservePolicy:    models.ReservePolicy(req.ReservePolicy),
			StartTime:        req.StartTime,
			EndTime:          req.EndTime,
			Status:           models.AuctionStatusScheduled,
		}
		if auction.Code == "" {
			auction.Code = uuid.New().String()[:8]
		}
		if auction.Currency == "" {
			auction.Currency = "USD"
		}
		if auction.ReservePolicy == "" {
			auction.ReservePolicy = models.ReservePolicyEnforce
		}

		if err := app.Auctions.Create(c.Context(), auction); err != nil {
			return sendEngineError(c, err)
		}
		return utils.SendCreated(c, fiber.Map{
			"auctionId": auction.ID,
			"code":      auction.Code,
			"status":    auction.Status,
		}, "auction created")
	}
}

type createLotRequest struct {
	LotNumber      int    `json:"lotNumber"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	StartingPrice  int64  `json:"startingPrice"`
	ReservePrice   int64  `json:"reservePrice"`
	EstimateLow    int64  `json:"estimateLow"`
	EstimateHigh   int64  `json:"estimateHigh"`
	Increment      int64  `json:"increment"`
	AutoBidEnabled *bool  `json:"autoBidEnabled"`
}

// CreateLot adds a lot to a scheduled auction.
func CreateLot(app *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auctionID, err := c.ParamsInt("id")
		if err != nil {
			return utils.SendBadRequest(c, "invalid auction id", nil)
		}

		var req createLotRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "invalid request body", nil)
		}
		if req.Title == "" {
			return utils.SendBadRequest(c, "title is required", nil)
		}
		if req.StartingPrice <= 0 {
			return utils.SendBadRequest(c, "startingPrice must be positive", nil)
		}

		lot := &models.Lot{
			AuctionID:      int64(auctionID),
			LotNumber:      req.LotNumber,
			Title:          req.Title,
			Description:    req.Description,
			StartingPrice:  req.StartingPrice,
			ReservePrice:   req.ReservePrice,
			EstimateLow:    req.EstimateLow,
			EstimateHigh:   req.EstimateHigh,
			Increment:      req.Increment,
			AutoBidEnabled: req.AutoBidEnabled == nil || *req.AutoBidEnabled,
			Status:         models.LotStatusPending,
		}
		if err := app.Lots.Create(c.Context(), lot); err != nil {
			return sendEngineError(c, err)
		}
		return utils.SendCreated(c, fiber.Map{
			"lotId":     lot.ID,
			"auctionId": lot.AuctionID,
			"lotNumber": lot.LotNumber,
		}, "lot created")
	}
}

type upsertBidderRequest struct {
	DisplayName string `json:"displayName"`
	Paddle      string `json:"paddle"`
	KYCStatus   string `json:"kycStatus"`
}

// UpsertBidder mirrors the identity collaborator's view of a bidder,
// including the KYC status the engine gates on.
func UpsertBidder(app *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bidderID := c.Params("id")
		if bidderID == "" {
			return utils.SendBadRequest(c, "bidder id is required", nil)
		}

		var req upsertBidderRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "invalid request body", nil)
		}

		bidder := &models.Bidder{
			ID:          bidderID,
			DisplayName: req.DisplayName,
			Paddle:      req.Paddle,
			KYCStatus:   models.KYCStatus(req.KYCStatus),
		}
		if bidder.Paddle == "" {
			bidder.Paddle = fmt.Sprintf("paddle-%s", uuid.New().String()[:8])
		}
		if bidder.KYCStatus == "" {
			bidder.KYCStatus = models.KYCStatusNone
		}

		if err := app.Bidders.Upsert(c.Context(), bidder); err != nil {
			return sendEngineError(c, err)
		}
		return utils.SendSuccess(c, fiber.Map{
			"bidderId":  bidder.ID,
			"paddle":    bidder.Paddle,
			"kycStatus": bidder.KYCStatus,
		}, "bidder upserted")
	}
}
