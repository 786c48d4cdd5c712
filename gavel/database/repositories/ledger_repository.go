package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gavelhouse/gavel/gavel/database/models"
	"github.com/uptrace/bun"
)

// ErrStaleLotState is returned when the lot is no longer biddable at
// commit time; the status is re-checked under the row lock, not just at
// request time.
var ErrStaleLotState = errors.New("lot state changed before commit")

// ErrLotAlreadyClosed is returned by CommitClose when a concurrent
// closure won the race.
var ErrLotAlreadyClosed = errors.New("lot already closed")

// BidCommit is the atomic unit produced by one bid resolution: every
// ledger entry it yielded (the incoming bid plus any auto counter-bids),
// the resulting lot projection, and an optional anti-snipe extension of
// the auction end time. It is applied in a single transaction — either
// all of it lands or none of it does.
type BidCommit struct {
	LotID     int64
	AuctionID int64

	// Entries carry pre-assigned per-lot sequence numbers and final
	// statuses (winning for the new leader, outbid for the rest).
	Entries []*models.BidRecord

	NewPrice    int64
	NewLeaderID string
	ReserveMet  bool

	// NewEndTime, when set, pushes the auction end forward atomically
	// with the bid commit (soft close).
	NewEndTime *time.Time
}

// CloseCommit finalizes a lot: terminal status, closure result, bid
// status recomputation and proxy deactivation in one transaction.
type CloseCommit struct {
	LotID     int64
	AuctionID int64

	Status      models.LotStatus
	WinnerID    string
	HammerPrice int64
	PremiumDue  int64
	TotalDue    int64
}

type LedgerRepository interface {
	CommitBid(ctx context.Context, commit *BidCommit) error
	CommitClose(ctx context.Context, commit *CloseCommit) error
	RecordRejected(ctx context.Context, rec *models.BidRecord) error
	History(ctx context.Context, lotID int64, offset, limit int) ([]*models.BidRecord, int, error)
	LatestAccepted(ctx context.Context, lotID int64) (*models.BidRecord, error)
}

type ledgerRepository struct {
	db *bun.DB
	tx *TxManager
}

func NewLedgerRepository(db *bun.DB) LedgerRepository {
	return &ledgerRepository{db: db, tx: NewTxManager(db)}
}

func (r *ledgerRepository) CommitBid(ctx context.Context, commit *BidCommit) error {
	if len(commit.Entries) == 0 {
		return fmt.Errorf("bid commit for lot %d carries no entries", commit.LotID)
	}
	return r.tx.WithTransaction(ctx, SerializableTransactionOptions(), func(ctx context.Context, tx bun.Tx) error {
		// Re-check the lot under the row lock. The in-process per-lot
		// section already serializes bidders on this instance; the row
		// lock guards against lifecycle writes racing from elsewhere.
		lot := new(models.Lot)
		err := tx.NewSelect().
			Model(lot).
			Where("id = ?", commit.LotID).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("lot %d: %w", commit.LotID, ErrNotFound)
			}
			return fmt.Errorf("failed to lock lot: %w", err)
		}
		if !lot.Biddable() {
			return fmt.Errorf("lot %d status %s: %w", commit.LotID, lot.Status, ErrStaleLotState)
		}

		// The auction row gets the same treatment: the sweep's end
		// update and operator pauses race the bid path without taking
		// the per-lot section, so liveness holds only under this lock.
		auction := new(models.Auction)
		err = tx.NewSelect().
			Model(auction).
			Where("id = ?", commit.AuctionID).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("auction %d: %w", commit.AuctionID, ErrNotFound)
			}
			return fmt.Errorf("failed to lock auction: %w", err)
		}
		if !auction.Biddable() {
			return fmt.Errorf("auction %d status %s: %w", commit.AuctionID, auction.Status, ErrStaleLotState)
		}

		// Prior leaders lose their projection before the new entries land.
		_, err = tx.NewUpdate().
			Model((*models.BidRecord)(nil)).
			Set("status = ?", models.BidStatusOutbid).
			Where("lot_id = ?", commit.LotID).
			Where("status IN (?)", bun.In([]models.BidStatus{models.BidStatusWinning, models.BidStatusActive})).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark prior bids outbid: %w", err)
		}

		if _, err = tx.NewInsert().Model(&commit.Entries).Exec(ctx); err != nil {
			return fmt.Errorf("failed to append ledger entries: %w", err)
		}

		_, err = tx.NewUpdate().
			Model((*models.Lot)(nil)).
			Set("current_price = ?", commit.NewPrice).
			Set("current_bidder_id = ?", commit.NewLeaderID).
			Set("bid_count = bid_count + ?", len(commit.Entries)).
			Set("ledger_seq = ?", commit.Entries[len(commit.Entries)-1].Seq).
			Set("is_reserve_met = ?", commit.ReserveMet).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", commit.LotID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update lot projection: %w", err)
		}

		auctionUpdate := tx.NewUpdate().
			Model((*models.Auction)(nil)).
			Set("total_bids = total_bids + ?", len(commit.Entries)).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", commit.AuctionID)
		if commit.NewEndTime != nil {
			auctionUpdate = auctionUpdate.Set("end_time = ?", *commit.NewEndTime)
		}
		if _, err = auctionUpdate.Exec(ctx); err != nil {
			return fmt.Errorf("failed to update auction counters: %w", err)
		}

		return nil
	})
}

func (r *ledgerRepository) CommitClose(ctx context.Context, commit *CloseCommit) error {
	return r.tx.WithTransaction(ctx, SerializableTransactionOptions(), func(ctx context.Context, tx bun.Tx) error {
		lot := new(models.Lot)
		err := tx.NewSelect().
			Model(lot).
			Where("id = ?", commit.LotID).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("lot %d: %w", commit.LotID, ErrNotFound)
			}
			return fmt.Errorf("failed to lock lot: %w", err)
		}
		if lot.Closed() {
			return fmt.Errorf("lot %d: %w", commit.LotID, ErrLotAlreadyClosed)
		}

		_, err = tx.NewUpdate().
			Model((*models.Lot)(nil)).
			Set("status = ?", commit.Status).
			Set("winner_id = ?", commit.WinnerID).
			Set("hammer_price = ?", commit.HammerPrice).
			Set("premium_due = ?", commit.PremiumDue).
			Set("total_due = ?", commit.TotalDue).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", commit.LotID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to close lot: %w", err)
		}

		if commit.Status == models.LotStatusSold && commit.WinnerID != "" {
			_, err = tx.NewUpdate().
				Model((*models.BidRecord)(nil)).
				Set("status = ?", models.BidStatusWon).
				Where("lot_id = ?", commit.LotID).
				Where("bidder_id = ?", commit.WinnerID).
				Where("status = ?", models.BidStatusWinning).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to mark winning bid won: %w", err)
			}
		}

		_, err = tx.NewUpdate().
			Model((*models.BidRecord)(nil)).
			Set("status = ?", models.BidStatusLost).
			Where("lot_id = ?", commit.LotID).
			Where("status IN (?)", bun.In([]models.BidStatus{
				models.BidStatusActive, models.BidStatusOutbid, models.BidStatusWinning,
			})).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark remaining bids lost: %w", err)
		}

		_, err = tx.NewUpdate().
			Model((*models.StandingProxy)(nil)).
			Set("active = ?", false).
			Set("updated_at = ?", time.Now()).
			Where("lot_id = ?", commit.LotID).
			Where("active = ?", true).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to deactivate proxies: %w", err)
		}

		return nil
	})
}

// RecordRejected appends an audit entry for a refused bid attempt.
// Rejected entries never participate in price or winner projections.
func (r *ledgerRepository) RecordRejected(ctx context.Context, rec *models.BidRecord) error {
	rec.Status = models.BidStatusRejected
	rec.CreatedAt = time.Now()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = rec.CreatedAt
	}

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(rec).Exec(ctx); err != nil {
			return fmt.Errorf("failed to record rejected bid: %w", err)
		}

		// Rejected attempts consume sequence numbers without touching
		// the price projection.
		_, err := tx.NewUpdate().
			Model((*models.Lot)(nil)).
			Set("ledger_seq = ?", rec.Seq).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", rec.LotID).
			Where("ledger_seq < ?", rec.Seq).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to advance lot sequence: %w", err)
		}
		return nil
	})
}

// History returns the lot's ledger oldest first, plus the total count
// for pagination.
func (r *ledgerRepository) History(ctx context.Context, lotID int64, offset, limit int) ([]*models.BidRecord, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var records []*models.BidRecord
	total, err := r.db.NewSelect().
		Model(&records).
		Where("lot_id = ?", lotID).
		Order("seq ASC").
		Offset(offset).
		Limit(limit).
		ScanAndCount(ctx)

	if err != nil {
		return nil, 0, fmt.Errorf("failed to get bid history: %w", err)
	}
	return records, total, nil
}

// LatestAccepted returns the most recent non-rejected entry, or
// ErrNotFound when the lot has no accepted bids.
func (r *ledgerRepository) LatestAccepted(ctx context.Context, lotID int64) (*models.BidRecord, error) {
	rec := new(models.BidRecord)
	err := r.db.NewSelect().
		Model(rec).
		Where("lot_id = ?", lotID).
		Where("status != ?", models.BidStatusRejected).
		Order("seq DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lot %d has no accepted bids: %w", lotID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest bid: %w", err)
	}
	return rec, nil
}
