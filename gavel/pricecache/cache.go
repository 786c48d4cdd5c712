package pricecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gavelhouse/gavel/gavel/engine"
)

const (
	keyTTL    = time.Hour
	opTimeout = 2 * time.Second
)

// ErrMiss is returned when the lot has no cached projection.
var ErrMiss = errors.New("price cache miss")

// Projection is the hot read model of a lot, refreshed on every
// committed event. The database stays the source of truth; this only
// shields it from hot-lot read traffic.
type Projection struct {
	LotID        int64     `json:"lotId"`
	CurrentPrice int64     `json:"currentPrice"`
	Paddle       string    `json:"bidder"`
	TotalBids    int64     `json:"totalBids"`
	Status       string    `json:"status,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Cache keeps per-lot projections in Redis and doubles as an engine
// notifier so it refreshes on the same post-commit path as the
// broadcast fan-out.
type Cache struct {
	client *redis.Client
	log    *slog.Logger
}

func New(ctx context.Context, addr, password string, db int, log *slog.Logger) (*Cache, error) {
	if log == nil {
		log = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Cache{client: client, log: log}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func lotKey(lotID int64) string {
	return fmt.Sprintf("gavel:lot:%d", lotID)
}

// Get returns the cached projection or ErrMiss.
func (c *Cache) Get(ctx context.Context, lotID int64) (*Projection, error) {
	raw, err := c.client.Get(ctx, lotKey(lotID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to read price cache: %w", err)
	}

	var p Projection
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode cached projection: %w", err)
	}
	return &p, nil
}

// Put stores a projection, used both by the notifier path and by
// read-through handlers after a database fetch.
func (c *Cache) Put(ctx context.Context, p *Projection) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode projection: %w", err)
	}
	if err := c.client.Set(ctx, lotKey(p.LotID), raw, keyTTL).Err(); err != nil {
		return fmt.Errorf("failed to write price cache: %w", err)
	}
	return nil
}

// Invalidate drops a lot's projection.
func (c *Cache) Invalidate(ctx context.Context, lotID int64) error {
	if err := c.client.Del(ctx, lotKey(lotID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate price cache: %w", err)
	}
	return nil
}

func (c *Cache) refresh(p *Projection) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := c.Put(ctx, p); err != nil {
		c.log.Error("Failed to refresh price cache",
			slog.String("type", "db"),
			slog.Int64("lot_id", p.LotID),
			slog.String("error", err.Error()))
	}
}

func (c *Cache) BidPlaced(ev engine.BidPlacedEvent) {
	c.refresh(&Projection{
		LotID:        ev.LotID,
		CurrentPrice: ev.Amount,
		Paddle:       ev.Paddle,
		TotalBids:    ev.TotalBids,
		UpdatedAt:    ev.Timestamp,
	})
}

func (c *Cache) Outbid(engine.OutbidEvent) {}

func (c *Cache) AuctionExtended(engine.AuctionExtendedEvent) {}

// LotClosed drops the hot entry so the next read goes to the stored
// closure result.
func (c *Cache) LotClosed(ev engine.LotClosedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := c.Invalidate(ctx, ev.LotID); err != nil {
		c.log.Error("Failed to invalidate closed lot",
			slog.String("type", "db"),
			slog.Int64("lot_id", ev.LotID),
			slog.String("error", err.Error()))
	}
}
