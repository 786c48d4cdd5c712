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

type BidderRepository interface {
	GetByID(ctx context.Context, id string) (*models.Bidder, error)
	Upsert(ctx context.Context, bidder *models.Bidder) error
	SetKYCStatus(ctx context.Context, id string, status models.KYCStatus) error
}

type bidderRepository struct {
	db *bun.DB
}

func NewBidderRepository(db *bun.DB) BidderRepository {
	return &bidderRepository{db: db}
}

func (r *bidderRepository) GetByID(ctx context.Context, id string) (*models.Bidder, error) {
	bidder := new(models.Bidder)
	err := r.db.NewSelect().
		Model(bidder).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bidder %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get bidder: %w", err)
	}
	return bidder, nil
}

func (r *bidderRepository) Upsert(ctx context.Context, bidder *models.Bidder) error {
	now := time.Now()
	if bidder.CreatedAt.IsZero() {
		bidder.CreatedAt = now
	}
	bidder.UpdatedAt = now
	if bidder.KYCStatus == "" {
		bidder.KYCStatus = models.KYCStatusNone
	}

	_, err := r.db.NewInsert().
		Model(bidder).
		On("CONFLICT (id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("paddle = EXCLUDED.paddle").
		Set("kyc_status = EXCLUDED.kyc_status").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to upsert bidder: %w", err)
	}
	return nil
}

func (r *bidderRepository) SetKYCStatus(ctx context.Context, id string, status models.KYCStatus) error {
	result, err := r.db.NewUpdate().
		Model((*models.Bidder)(nil)).
		Set("kyc_status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to set kyc status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("bidder %s: %w", id, ErrNotFound)
	}
	return nil
}
