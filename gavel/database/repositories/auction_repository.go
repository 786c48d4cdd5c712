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

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type AuctionRepository interface {
	DB() *bun.DB
	Create(ctx context.Context, auction *models.Auction) error
	GetByID(ctx context.Context, id int64) (*models.Auction, error)
	GetByCode(ctx context.Context, code string) (*models.Auction, error)
	GetDueToStart(ctx context.Context, now time.Time) ([]*models.Auction, error)
	GetDueToEnd(ctx context.Context, now time.Time) ([]*models.Auction, error)
	MarkLive(ctx context.Context, id int64) error
	EndIfDue(ctx context.Context, id int64, now time.Time) (bool, error)
	Transition(ctx context.Context, id int64, from []models.AuctionStatus, to models.AuctionStatus) error
}

type auctionRepository struct {
	db *bun.DB
}

func NewAuctionRepository(db *bun.DB) AuctionRepository {
	return &auctionRepository{db: db}
}

func (r *auctionRepository) DB() *bun.DB {
	return r.db
}

func (r *auctionRepository) Create(ctx context.Context, auction *models.Auction) error {
	auction.CreatedAt = time.Now()
	auction.UpdatedAt = time.Now()
	if auction.Status == "" {
		auction.Status = models.AuctionStatusScheduled
	}

	_, err := r.db.NewInsert().Model(auction).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}
	return nil
}

func (r *auctionRepository) GetByID(ctx context.Context, id int64) (*models.Auction, error) {
	auction := new(models.Auction)
	err := r.db.NewSelect().
		Model(auction).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("auction %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return auction, nil
}

func (r *auctionRepository) GetByCode(ctx context.Context, code string) (*models.Auction, error) {
	auction := new(models.Auction)
	err := r.db.NewSelect().
		Model(auction).
		Where("code = ?", code).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("auction %s: %w", code, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return auction, nil
}

func (r *auctionRepository) GetDueToStart(ctx context.Context, now time.Time) ([]*models.Auction, error) {
	var auctions []*models.Auction
	err := r.db.NewSelect().
		Model(&auctions).
		Where("status = ?", models.AuctionStatusScheduled).
		Where("start_time <= ?", now).
		Order("start_time ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get auctions due to start: %w", err)
	}
	return auctions, nil
}

func (r *auctionRepository) GetDueToEnd(ctx context.Context, now time.Time) ([]*models.Auction, error) {
	var auctions []*models.Auction
	err := r.db.NewSelect().
		Model(&auctions).
		Where("status = ?", models.AuctionStatusLive).
		Where("end_time <= ?", now).
		Order("end_time ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get auctions due to end: %w", err)
	}
	return auctions, nil
}

func (r *auctionRepository) MarkLive(ctx context.Context, id int64) error {
	return r.Transition(ctx, id,
		[]models.AuctionStatus{models.AuctionStatusScheduled, models.AuctionStatusPaused},
		models.AuctionStatusLive)
}

// EndIfDue ends a live auction only if its end time has actually
// passed at transition time. A bid inside the soft-close window moves
// end_time forward atomically with its commit, so a sweep that picked
// the auction up under the old deadline re-checks here and backs off.
func (r *auctionRepository) EndIfDue(ctx context.Context, id int64, now time.Time) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*models.Auction)(nil)).
		Set("status = ?", models.AuctionStatusEnded).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status = ?", models.AuctionStatusLive).
		Where("end_time <= ?", now).
		Exec(ctx)

	if err != nil {
		return false, fmt.Errorf("failed to end auction %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Transition moves the auction to a new status only if its current
// status is one of the expected source states; ErrNotFound signals a
// missed guard (already transitioned or unknown id).
func (r *auctionRepository) Transition(ctx context.Context, id int64, from []models.AuctionStatus, to models.AuctionStatus) error {
	result, err := r.db.NewUpdate().
		Model((*models.Auction)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to transition auction %d to %s: %w", id, to, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("auction %d not in expected status for transition to %s: %w", id, to, ErrNotFound)
	}
	return nil
}
