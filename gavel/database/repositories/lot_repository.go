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

type LotRepository interface {
	Create(ctx context.Context, lot *models.Lot) error
	GetByID(ctx context.Context, id int64) (*models.Lot, error)
	GetByAuction(ctx context.Context, auctionID int64) ([]*models.Lot, error)
	GetActiveByAuction(ctx context.Context, auctionID int64) ([]*models.Lot, error)
	ActivateForAuction(ctx context.Context, auctionID int64) (int64, error)
	GetStragglers(ctx context.Context) ([]*models.Lot, error)
	Transition(ctx context.Context, id int64, from []models.LotStatus, to models.LotStatus) error
}

type lotRepository struct {
	db *bun.DB
}

func NewLotRepository(db *bun.DB) LotRepository {
	return &lotRepository{db: db}
}

func (r *lotRepository) Create(ctx context.Context, lot *models.Lot) error {
	lot.CreatedAt = time.Now()
	lot.UpdatedAt = time.Now()
	if lot.Status == "" {
		lot.Status = models.LotStatusPending
	}
	if lot.CurrentPrice == 0 {
		lot.CurrentPrice = lot.StartingPrice
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(lot).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create lot: %w", err)
		}

		_, err := tx.NewUpdate().
			Model((*models.Auction)(nil)).
			Set("total_lots = total_lots + 1").
			Set("updated_at = ?", time.Now()).
			Where("id = ?", lot.AuctionID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to bump auction lot count: %w", err)
		}
		return nil
	})
	return err
}

func (r *lotRepository) GetByID(ctx context.Context, id int64) (*models.Lot, error) {
	lot := new(models.Lot)
	err := r.db.NewSelect().
		Model(lot).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lot %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}
	return lot, nil
}

func (r *lotRepository) GetByAuction(ctx context.Context, auctionID int64) ([]*models.Lot, error) {
	var lots []*models.Lot
	err := r.db.NewSelect().
		Model(&lots).
		Where("auction_id = ?", auctionID).
		Order("lot_number ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get lots: %w", err)
	}
	return lots, nil
}

func (r *lotRepository) GetActiveByAuction(ctx context.Context, auctionID int64) ([]*models.Lot, error) {
	var lots []*models.Lot
	err := r.db.NewSelect().
		Model(&lots).
		Where("auction_id = ?", auctionID).
		Where("status = ?", models.LotStatusActive).
		Order("lot_number ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get active lots: %w", err)
	}
	return lots, nil
}

// ActivateForAuction flips all pending lots of an auction to active,
// called when the auction goes live. Returns how many lots opened.
func (r *lotRepository) ActivateForAuction(ctx context.Context, auctionID int64) (int64, error) {
	result, err := r.db.NewUpdate().
		Model((*models.Lot)(nil)).
		Set("status = ?", models.LotStatusActive).
		Set("updated_at = ?", time.Now()).
		Where("auction_id = ?", auctionID).
		Where("status = ?", models.LotStatusPending).
		Exec(ctx)

	if err != nil {
		return 0, fmt.Errorf("failed to activate lots: %w", err)
	}
	return result.RowsAffected()
}

// GetStragglers returns open lots whose auction already ended, i.e.
// lots a previous closing sweep failed to settle.
func (r *lotRepository) GetStragglers(ctx context.Context) ([]*models.Lot, error) {
	var lots []*models.Lot
	err := r.db.NewSelect().
		Model(&lots).
		Join("JOIN auctions AS a ON a.id = l.auction_id").
		Where("a.status = ?", models.AuctionStatusEnded).
		Where("l.status IN (?)", bun.In([]models.LotStatus{models.LotStatusPending, models.LotStatusActive})).
		Order("l.id ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get straggler lots: %w", err)
	}
	return lots, nil
}

// Transition moves a lot to a new status only from one of the expected
// source states; lot status moves forward only, never backward.
func (r *lotRepository) Transition(ctx context.Context, id int64, from []models.LotStatus, to models.LotStatus) error {
	result, err := r.db.NewUpdate().
		Model((*models.Lot)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to transition lot %d to %s: %w", id, to, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("lot %d not in expected status for transition to %s: %w", id, to, ErrNotFound)
	}
	return nil
}
