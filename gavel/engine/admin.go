package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gavelhouse/gavel/gavel/database/models"
	"github.com/gavelhouse/gavel/gavel/database/repositories"
)

// ForceCloseLot settles a lot immediately, bypassing the clock but not
// the per-lot section.
func (e *Engine) ForceCloseLot(ctx context.Context, lotID int64) (*CloseResult, error) {
	return e.CloseLot(ctx, lotID)
}

// WithdrawLot pulls a lot from sale. Any standing bids are marked lost
// and proxies deactivated; there is no winner.
func (e *Engine) WithdrawLot(ctx context.Context, lotID int64) (*CloseResult, error) {
	release, err := e.acquireLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	defer release()

	lot, err := e.lots.GetByID(ctx, lotID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, reject(CodeLotNotActive, "lot %d not found", lotID)
		}
		return nil, fault(err, "failed to load lot %d", lotID)
	}
	if lot.Closed() {
		return nil, reject(CodeLotNotActive, "lot %d already %s", lotID, lot.Status)
	}

	commit := &repositories.CloseCommit{
		LotID:     lot.ID,
		AuctionID: lot.AuctionID,
		Status:    models.LotStatusWithdrawn,
	}
	if err := e.ledger.CommitClose(ctx, commit); err != nil {
		if errors.Is(err, repositories.ErrLotAlreadyClosed) {
			return nil, reject(CodeLotNotActive, "lot %d already closed", lotID)
		}
		return nil, fault(err, "failed to withdraw lot %d", lotID)
	}

	res := &CloseResult{LotID: lotID, Status: models.LotStatusWithdrawn}
	e.closures.Add(lotID, res)

	e.log.Info("Lot withdrawn",
		slog.String("type", "clock"),
		slog.Int64("lot_id", lotID))

	e.notifier.LotClosed(LotClosedEvent{
		LotID:     lotID,
		AuctionID: lot.AuctionID,
		Status:    string(models.LotStatusWithdrawn),
		Timestamp: time.Now(),
	})
	return res, nil
}

// CancelAuction aborts an auction before or during its run and
// withdraws every lot that has not already reached a terminal state.
func (e *Engine) CancelAuction(ctx context.Context, auctionID int64) error {
	err := e.auctions.Transition(ctx, auctionID,
		[]models.AuctionStatus{
			models.AuctionStatusDraft,
			models.AuctionStatusScheduled,
			models.AuctionStatusLive,
			models.AuctionStatusPaused,
			models.AuctionStatusSuspended,
		},
		models.AuctionStatusCancelled)
	if err != nil {
		return fault(err, "failed to cancel auction %d", auctionID)
	}

	lots, err := e.lots.GetByAuction(ctx, auctionID)
	if err != nil {
		return fault(err, "failed to list lots of auction %d", auctionID)
	}
	for _, lot := range lots {
		if lot.Closed() {
			continue
		}
		if _, err := e.WithdrawLot(ctx, lot.ID); err != nil {
			e.log.Error("Failed to withdraw lot during cancellation",
				slog.String("type", "clock"),
				slog.Int64("auction_id", auctionID),
				slog.Int64("lot_id", lot.ID),
				slog.String("error", err.Error()))
		}
	}

	e.log.Info("Auction cancelled",
		slog.String("type", "clock"),
		slog.Int64("auction_id", auctionID))
	return nil
}

// SuspendAuction halts an auction pending operator review. Unlike
// pause it can also hit a scheduled auction, and resuming requires an
// explicit transition back.
func (e *Engine) SuspendAuction(ctx context.Context, auctionID int64) error {
	err := e.auctions.Transition(ctx, auctionID,
		[]models.AuctionStatus{models.AuctionStatusScheduled, models.AuctionStatusLive},
		models.AuctionStatusSuspended)
	if err != nil {
		return fault(err, "failed to suspend auction %d", auctionID)
	}
	e.log.Info("Auction suspended",
		slog.String("type", "clock"),
		slog.Int64("auction_id", auctionID))
	return nil
}

// PauseAuction temporarily stops bidding on a live auction.
func (e *Engine) PauseAuction(ctx context.Context, auctionID int64) error {
	err := e.auctions.Transition(ctx, auctionID,
		[]models.AuctionStatus{models.AuctionStatusLive},
		models.AuctionStatusPaused)
	if err != nil {
		return fault(err, "failed to pause auction %d", auctionID)
	}
	e.log.Info("Auction paused",
		slog.String("type", "clock"),
		slog.Int64("auction_id", auctionID))
	return nil
}

// ResumeAuction returns a paused auction to live.
func (e *Engine) ResumeAuction(ctx context.Context, auctionID int64) error {
	err := e.auctions.Transition(ctx, auctionID,
		[]models.AuctionStatus{models.AuctionStatusPaused},
		models.AuctionStatusLive)
	if err != nil {
		return fault(err, "failed to resume auction %d", auctionID)
	}
	e.log.Info("Auction resumed",
		slog.String("type", "clock"),
		slog.Int64("auction_id", auctionID))
	return nil
}
