package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/gavelhouse/gavel/gavel/database/repositories"
	"github.com/gavelhouse/gavel/gavel/logger"
)

// Clock advances auctions through their time-based lifecycle with a
// recurring sweep. A sweep re-reads end times on every pass because a
// soft-close extension moves them; one-shot timers would fire against a
// deadline that no longer exists.
type Clock struct {
	auctions repositories.AuctionRepository
	lots     repositories.LotRepository
	engine   *Engine
	interval time.Duration
	log      *slog.Logger
}

func NewClock(auctions repositories.AuctionRepository, lots repositories.LotRepository, engine *Engine, interval time.Duration, log *slog.Logger) *Clock {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Clock{
		auctions: auctions,
		lots:     lots,
		engine:   engine,
		interval: interval,
		log:      log,
	}
}

// Run sweeps until the context is cancelled. Per-auction and per-lot
// failures are logged and skipped; one stuck lot never stalls the rest
// of the sweep.
func (c *Clock) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.log.Info("Lifecycle sweep started",
		slog.String("type", "clock"),
		slog.Duration("interval", c.interval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			c.Sweep(ctx, now)
		}
	}
}

// Sweep runs one lifecycle pass at the given instant.
func (c *Clock) Sweep(ctx context.Context, now time.Time) {
	started := c.startDue(ctx, now)
	ended := c.endDue(ctx, now)
	c.settleStragglers(ctx)

	if started > 0 || ended > 0 {
		logger.LogSweep(started, ended, time.Since(now))
	}
}

func (c *Clock) startDue(ctx context.Context, now time.Time) int {
	due, err := c.auctions.GetDueToStart(ctx, now)
	if err != nil {
		c.log.Error("Sweep failed to list auctions due to start",
			slog.String("type", "clock"),
			slog.String("error", err.Error()))
		return 0
	}
	started := 0

	for _, a := range due {
		if err := c.auctions.MarkLive(ctx, a.ID); err != nil {
			c.log.Error("Failed to open auction",
				slog.String("type", "clock"),
				slog.Int64("auction_id", a.ID),
				slog.String("error", err.Error()))
			continue
		}
		opened, err := c.lots.ActivateForAuction(ctx, a.ID)
		if err != nil {
			c.log.Error("Failed to activate lots",
				slog.String("type", "clock"),
				slog.Int64("auction_id", a.ID),
				slog.String("error", err.Error()))
			continue
		}
		c.log.Info("Auction live",
			slog.String("type", "clock"),
			slog.Int64("auction_id", a.ID),
			slog.Int64("lots_opened", opened))
		started++
	}
	return started
}

func (c *Clock) endDue(ctx context.Context, now time.Time) int {
	due, err := c.auctions.GetDueToEnd(ctx, now)
	if err != nil {
		c.log.Error("Sweep failed to list auctions due to end",
			slog.String("type", "clock"),
			slog.String("error", err.Error()))
		return 0
	}
	endedCount := 0

	for _, a := range due {
		// Guarded against the end time having moved since the listing:
		// a soft-close extension re-arms the deadline and this pass
		// backs off until a later sweep.
		ended, err := c.auctions.EndIfDue(ctx, a.ID, now)
		if err != nil {
			c.log.Error("Failed to end auction",
				slog.String("type", "clock"),
				slog.Int64("auction_id", a.ID),
				slog.String("error", err.Error()))
			continue
		}
		if !ended {
			continue
		}

		c.log.Info("Auction ended",
			slog.String("type", "clock"),
			slog.Int64("auction_id", a.ID))
		c.closeRemaining(ctx, a.ID)
		endedCount++
	}
	return endedCount
}

// settleStragglers picks up lots an earlier closing pass failed on,
// e.g. because the lot section was busy when its auction ended.
func (c *Clock) settleStragglers(ctx context.Context) {
	lots, err := c.lots.GetStragglers(ctx)
	if err != nil {
		c.log.Error("Failed to list straggler lots",
			slog.String("type", "clock"),
			slog.String("error", err.Error()))
		return
	}

	for _, lot := range lots {
		if _, err := c.engine.CloseLot(ctx, lot.ID); err != nil {
			c.log.Error("Failed to close straggler lot",
				slog.String("type", "clock"),
				slog.Int64("lot_id", lot.ID),
				slog.String("error", err.Error()))
		}
	}
}

func (c *Clock) closeRemaining(ctx context.Context, auctionID int64) {
	lots, err := c.lots.GetByAuction(ctx, auctionID)
	if err != nil {
		c.log.Error("Failed to list lots for closure",
			slog.String("type", "clock"),
			slog.Int64("auction_id", auctionID),
			slog.String("error", err.Error()))
		return
	}

	for _, lot := range lots {
		if lot.Closed() {
			continue
		}
		if _, err := c.engine.CloseLot(ctx, lot.ID); err != nil {
			// Busy lots settle on a later sweep.
			c.log.Error("Failed to close lot",
				slog.String("type", "clock"),
				slog.Int64("auction_id", auctionID),
				slog.Int64("lot_id", lot.ID),
				slog.String("error", err.Error()))
		}
	}
}
