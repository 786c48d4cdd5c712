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

type ProxyRepository interface {
	ActiveForLot(ctx context.Context, lotID int64) ([]*models.StandingProxy, error)
	GetActive(ctx context.Context, lotID int64, bidderID string) (*models.StandingProxy, error)
	// Supersede registers a new proxy for the bidder, deactivating any
	// prior active one on the same lot in the same transaction.
	Supersede(ctx context.Context, proxy *models.StandingProxy) error
	Deactivate(ctx context.Context, ids []int64) error
	DeactivateForBidder(ctx context.Context, lotID int64, bidderID string) error
}

type proxyRepository struct {
	db *bun.DB
}

func NewProxyRepository(db *bun.DB) ProxyRepository {
	return &proxyRepository{db: db}
}

func (r *proxyRepository) ActiveForLot(ctx context.Context, lotID int64) ([]*models.StandingProxy, error) {
	var proxies []*models.StandingProxy
	err := r.db.NewSelect().
		Model(&proxies).
		Where("lot_id = ?", lotID).
		Where("active = ?", true).
		Order("registered_seq ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get active proxies: %w", err)
	}
	return proxies, nil
}

func (r *proxyRepository) GetActive(ctx context.Context, lotID int64, bidderID string) (*models.StandingProxy, error) {
	proxy := new(models.StandingProxy)
	err := r.db.NewSelect().
		Model(proxy).
		Where("lot_id = ?", lotID).
		Where("bidder_id = ?", bidderID).
		Where("active = ?", true).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no active proxy for bidder %s on lot %d: %w", bidderID, lotID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get proxy: %w", err)
	}
	return proxy, nil
}

func (r *proxyRepository) Supersede(ctx context.Context, proxy *models.StandingProxy) error {
	proxy.Active = true
	proxy.CreatedAt = time.Now()
	proxy.UpdatedAt = time.Now()

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*models.StandingProxy)(nil)).
			Set("active = ?", false).
			Set("updated_at = ?", time.Now()).
			Where("lot_id = ?", proxy.LotID).
			Where("bidder_id = ?", proxy.BidderID).
			Where("active = ?", true).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to supersede prior proxy: %w", err)
		}

		if _, err := tx.NewInsert().Model(proxy).Exec(ctx); err != nil {
			return fmt.Errorf("failed to register proxy: %w", err)
		}
		return nil
	})
}

func (r *proxyRepository) Deactivate(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := r.db.NewUpdate().
		Model((*models.StandingProxy)(nil)).
		Set("active = ?", false).
		Set("updated_at = ?", time.Now()).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to deactivate proxies: %w", err)
	}
	return nil
}

func (r *proxyRepository) DeactivateForBidder(ctx context.Context, lotID int64, bidderID string) error {
	_, err := r.db.NewUpdate().
		Model((*models.StandingProxy)(nil)).
		Set("active = ?", false).
		Set("updated_at = ?", time.Now()).
		Where("lot_id = ?", lotID).
		Where("bidder_id = ?", bidderID).
		Where("active = ?", true).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to deactivate proxy: %w", err)
	}
	return nil
}
