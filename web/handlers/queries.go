package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gavelhouse/gavel/gavel/database/models"
	"github.com/gavelhouse/gavel/gavel/database/repositories"
	"github.com/gavelhouse/gavel/gavel/pricecache"
	"github.com/gavelhouse/gavel/web/utils"
	webmodels "github.com/gavelhouse/gavel/web/models"
)

// LotDetail returns the lot's price/winner/bid-count projection,
// served from the hot cache when possible.
func LotDetail(app *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lotID, err := c.ParamsInt("id")
		if err != nil {
			return utils.SendBadRequest(c, "invalid lot id", nil)
		}

		if app.Cache != nil {
			if p, err := app.Cache.Get(c.Context(), int64(lotID)); err == nil {
				return utils.SendSuccess(c, p, "")
			}
		}

		lot, err := app.Lots.GetByID(c.Context(), int64(lotID))
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return utils.SendNotFound(c, "lot not found")
			}
			return sendEngineError(c, err)
		}

		paddle := paddleOf(c, app, lot.CurrentBidderID)
		if app.Cache != nil && lot.Status == models.LotStatusActive {
			_ = app.Cache.Put(c.Context(), &pricecache.Projection{
				LotID:        lot.ID,
				CurrentPrice: lot.CurrentPrice,
				Paddle:       paddle,
				TotalBids:    lot.BidCount,
				Status:       string(lot.Status),
				UpdatedAt:    time.Now(),
			})
		}

		data := fiber.Map{
			"lotId":         lot.ID,
			"auctionId":     lot.AuctionID,
			"lotNumber":     lot.LotNumber,
			"title":         lot.Title,
			"status":        lot.Status,
			"startingPrice": lot.StartingPrice,
			"estimateLow":   lot.EstimateLow,
			"estimateHigh":  lot.EstimateHigh,
			"currentPrice":  lot.CurrentPrice,
			"bidder":        paddle,
			"totalBids":     lot.BidCount,
			"isReserveMet":  lot.IsReserveMet,
		}
		if lot.Closed() {
			data["winner"] = paddleOf(c, app, lot.WinnerID)
			data["hammerPrice"] = lot.HammerPrice
			data["premiumDue"] = lot.PremiumDue
			data["totalDue"] = lot.TotalDue
		}
		return utils.SendSuccess(c, data, "")
	}
}

// LotBids returns the lot's ledger oldest first, paginated.
func LotBids(app *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lotID, err := c.ParamsInt("id")
		if err != nil {
			return utils.SendBadRequest(c, "invalid lot id", nil)
		}

		page := c.QueryInt("page", 1)
		if page < 1 {
			page = 1
		}
		limit := c.QueryInt("limit", 50)
		if limit < 1 || limit > 200 {
			limit = 50
		}

		records, total, err := app.Ledger.History(c.Context(), int64(lotID), (page-1)*limit, limit)
		if err != nil {
			return sendEngineError(c, err)
		}

		items := make([]fiber.Map, len(records))
		for i, rec := range records {
			items[i] = fiber.Map{
				"seq":       rec.Seq,
				"bidder":    paddleOf(c, app, rec.BidderID),
				"amount":    rec.Amount,
				"kind":      rec.Kind,
				"status":    rec.Status,
				"timestamp": rec.Timestamp,
			}
			if rec.Status == models.BidStatusRejected {
				items[i]["rejectReason"] = rec.RejectReason
			}
		}

		totalPages := (total + limit - 1) / limit
		return utils.SendPaginated(c, items, &webmodels.PaginationInfo{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		}, "")
	}
}

// AuctionDetail returns the auction projection with its lots.
func AuctionDetail(app *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auctionID, err := c.ParamsInt("id")
		if err != nil {
			return utils.SendBadRequest(c, "invalid auction id", nil)
		}

		auction, err := app.Auctions.GetByID(c.Context(), int64(auctionID))
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return utils.SendNotFound(c, "auction not found")
			}
			return sendEngineError(c, err)
		}

		lots, err := app.Lots.GetByAuction(c.Context(), auction.ID)
		if err != nil {
			return sendEngineError(c, err)
		}

		lotSummaries := make([]fiber.Map, len(lots))
		for i, lot := range lots {
			lotSummaries[i] = fiber.Map{
				"lotId":        lot.ID,
				"lotNumber":    lot.LotNumber,
				"title":        lot.Title,
				"status":       lot.Status,
				"currentPrice": lot.CurrentPrice,
				"totalBids":    lot.BidCount,
			}
		}

		return utils.SendSuccess(c, fiber.Map{
			"auctionId":        auction.ID,
			"code":             auction.Code,
			"title":            auction.Title,
			"status":           auction.Status,
			"currency":         auction.Currency,
			"buyersPremiumBps": auction.BuyersPremiumBps,
			"startTime":        auction.StartTime,
			"endTime":          auction.EndTime,
			"totalLots":        auction.TotalLots,
			"totalBids":        auction.TotalBids,
			"lots":             lotSummaries,
		}, "")
	}
}

// paddleOf maps an account id to its public paddle; bidder identities
// never leave the API.
func paddleOf(c *fiber.Ctx, app *WebApp, bidderID string) string {
	if bidderID == "" {
		return ""
	}
	b, err := app.Bidders.GetByID(c.Context(), bidderID)
	if err != nil {
		return ""
	}
	return b.Paddle
}
