package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BidKind string

const (
	BidKindManual BidKind = "manual"
	BidKindAuto   BidKind = "auto"
)

type BidStatus string

const (
	BidStatusActive    BidStatus = "active"
	BidStatusOutbid    BidStatus = "outbid"
	BidStatusWinning   BidStatus = "winning"
	BidStatusWon       BidStatus = "won"
	BidStatusLost      BidStatus = "lost"
	BidStatusCancelled BidStatus = "cancelled"
	BidStatusRejected  BidStatus = "rejected"
)

// BidRecord is an immutable ledger entry. Once written, lot, amount and
// timestamp never change; Status is the only mutable projection and is
// recomputed by the engine as later bids land. Rejected attempts are
// retained for audit and excluded from price/winner computation.
type BidRecord struct {
	bun.BaseModel `bun:"table:bid_records,alias:b"`

	ID        int64 `bun:"id,pk,autoincrement"`
	LotID     int64 `bun:"lot_id,notnull"`
	AuctionID int64 `bun:"auction_id,notnull"`
	// Seq is the per-lot sequence number assigned under the lot's
	// critical section. Ties on amount resolve by ledger order,
	// earliest wins.
	Seq int64 `bun:"seq,notnull"`

	BidderID string  `bun:"bidder_id,notnull"`
	Amount   int64   `bun:"amount,notnull"`
	Kind     BidKind `bun:"kind,notnull"`
	// MaxCeiling is only meaningful when the bidder registered a
	// standing proxy alongside this bid.
	MaxCeiling int64 `bun:"max_ceiling,notnull,default:0"`

	Status       BidStatus `bun:"status,notnull"`
	RejectReason string    `bun:"reject_reason"`

	Timestamp time.Time `bun:"timestamp,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
