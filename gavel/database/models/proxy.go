package models

import (
	"time"

	"github.com/uptrace/bun"
)

// StandingProxy is a bidder's declared ceiling for automatic
// counter-bidding on a lot. At most one active proxy exists per
// (lot, bidder) pair; raising a ceiling supersedes the old row rather
// than updating it in place, so the registration history survives.
type StandingProxy struct {
	bun.BaseModel `bun:"table:standing_proxies,alias:sp"`

	ID       int64  `bun:"id,pk,autoincrement"`
	LotID    int64  `bun:"lot_id,notnull"`
	BidderID string `bun:"bidder_id,notnull"`
	Ceiling  int64  `bun:"ceiling,notnull"`
	Active   bool   `bun:"active,notnull,default:true"`
	// RegisteredSeq is the lot's ledger sequence at registration time,
	// the tie-break between equal ceilings (earlier registration wins).
	RegisteredSeq int64 `bun:"registered_seq,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
