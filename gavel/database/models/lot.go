package models

import (
	"time"

	"github.com/uptrace/bun"
)

type LotStatus string

const (
	LotStatusPending   LotStatus = "pending"
	LotStatusActive    LotStatus = "active"
	LotStatusSold      LotStatus = "sold"
	LotStatusUnsold    LotStatus = "unsold"
	LotStatusWithdrawn LotStatus = "withdrawn"
	LotStatusPassed    LotStatus = "passed"
)

// Lot is a single sellable item within an auction. All monetary amounts
// are integer cents. CurrentPrice and CurrentBidderID are projections of
// the bid ledger and are only ever written by the bidding engine inside
// the same transaction that appends the ledger entries.
type Lot struct {
	bun.BaseModel `bun:"table:lots,alias:l"`

	ID        int64 `bun:"id,pk,autoincrement"`
	AuctionID int64 `bun:"auction_id,notnull"`
	LotNumber int   `bun:"lot_number,notnull"`

	Title       string `bun:"title,notnull"`
	Description string `bun:"description"`

	StartingPrice int64 `bun:"starting_price,notnull"`
	// ReservePrice of 0 means no reserve.
	ReservePrice int64 `bun:"reserve_price,notnull,default:0"`
	EstimateLow  int64 `bun:"estimate_low"`
	EstimateHigh int64 `bun:"estimate_high"`
	// Increment is the flat bid step for this lot. 0 selects the
	// engine's configured ladder, or its default step when no ladder
	// is set.
	Increment int64 `bun:"increment,notnull,default:0"`

	CurrentPrice    int64  `bun:"current_price,notnull"`
	CurrentBidderID string `bun:"current_bidder_id"`
	BidCount        int64  `bun:"bid_count,notnull,default:0"`
	IsReserveMet    bool   `bun:"is_reserve_met,notnull,default:false"`
	// LedgerSeq is the last sequence number handed out for this lot's
	// ledger. Rejected attempts consume sequence numbers too, so it can
	// run ahead of BidCount.
	LedgerSeq int64 `bun:"ledger_seq,notnull,default:0"`

	Status         LotStatus `bun:"status,notnull"`
	AutoBidEnabled bool      `bun:"auto_bid_enabled,notnull,default:true"`

	// Closure result, written exactly once by CloseLot.
	WinnerID    string `bun:"winner_id"`
	HammerPrice int64  `bun:"hammer_price,notnull,default:0"`
	PremiumDue  int64  `bun:"premium_due,notnull,default:0"`
	TotalDue    int64  `bun:"total_due,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Biddable reports whether the lot can accept ledger appends.
func (l *Lot) Biddable() bool {
	return l.Status == LotStatusActive
}

// Closed reports whether the lot reached a terminal status.
func (l *Lot) Closed() bool {
	switch l.Status {
	case LotStatusSold, LotStatusUnsold, LotStatusWithdrawn, LotStatusPassed:
		return true
	}
	return false
}
