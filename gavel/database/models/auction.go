package models

import (
	"time"

	"github.com/uptrace/bun"
)

type AuctionStatus string

const (
	AuctionStatusDraft     AuctionStatus = "draft"
	AuctionStatusScheduled AuctionStatus = "scheduled"
	AuctionStatusLive      AuctionStatus = "live"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusCancelled AuctionStatus = "cancelled"
	AuctionStatusPaused    AuctionStatus = "paused"
	AuctionStatusSuspended AuctionStatus = "suspended"
)

// ReservePolicy controls what happens at close when the final bid is
// below a lot's reserve price.
type ReservePolicy string

const (
	// ReservePolicyEnforce marks the lot unsold when the reserve is not met.
	ReservePolicyEnforce ReservePolicy = "enforce"
	// ReservePolicyWaive sells to the leading bidder regardless of reserve.
	ReservePolicyWaive ReservePolicy = "waive"
)

type Auction struct {
	bun.BaseModel `bun:"table:auctions,alias:a"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Code  string `bun:"code,notnull,unique"`
	Title string `bun:"title,notnull"`

	Currency string `bun:"currency,notnull,default:'USD'"`
	// BuyersPremiumBps is the buyer's premium rate in basis points
	// (e.g. 2000 = 20%).
	BuyersPremiumBps int64         `bun:"buyers_premium_bps,notnull,default:0"`
	ReservePolicy    ReservePolicy `bun:"reserve_policy,notnull,default:'enforce'"`

	StartTime time.Time `bun:"start_time,notnull"`
	// EndTime moves forward when a bid lands inside the soft-close window.
	EndTime time.Time     `bun:"end_time,notnull"`
	Status  AuctionStatus `bun:"status,notnull"`

	TotalLots int64 `bun:"total_lots,notnull,default:0"`
	TotalBids int64 `bun:"total_bids,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Biddable reports whether bids may be accepted against lots of this auction.
func (a *Auction) Biddable() bool {
	return a.Status == AuctionStatusLive
}

// Terminal reports whether the auction can no longer change state.
func (a *Auction) Terminal() bool {
	return a.Status == AuctionStatusEnded || a.Status == AuctionStatusCancelled
}
