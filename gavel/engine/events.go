package engine

import "time"

// BidPlacedEvent announces a committed bid. Bidder identity is the
// paddle pseudonym, never the account id.
type BidPlacedEvent struct {
	LotID     int64     `json:"lotId"`
	AuctionID int64     `json:"auctionId"`
	Seq       int64     `json:"seq"`
	Amount    int64     `json:"amount"`
	TotalBids int64     `json:"totalBids"`
	Paddle    string    `json:"bidder"`
	Timestamp time.Time `json:"timestamp"`
}

// OutbidEvent targets the bidder who just lost the lead.
type OutbidEvent struct {
	LotID     int64     `json:"lotId"`
	AuctionID int64     `json:"auctionId"`
	BidderID  string    `json:"bidderId"`
	NewPrice  int64     `json:"newPrice"`
	Timestamp time.Time `json:"timestamp"`
}

// AuctionExtendedEvent announces a soft-close extension.
type AuctionExtendedEvent struct {
	AuctionID int64     `json:"auctionId"`
	LotID     int64     `json:"lotId"`
	NewEnd    time.Time `json:"newEndTime"`
	Timestamp time.Time `json:"timestamp"`
}

// LotClosedEvent announces a lot reaching a terminal state. Winner and
// HammerPrice are empty/zero for unsold and withdrawn lots.
type LotClosedEvent struct {
	LotID       int64     `json:"lotId"`
	AuctionID   int64     `json:"auctionId"`
	Status      string    `json:"status"`
	Winner      string    `json:"winner,omitempty"`
	HammerPrice int64     `json:"hammerPrice,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Notifier receives committed outcomes after the transaction lands.
// Implementations must not block: delivery is fire-and-forget relative
// to the commit, and a slow subscriber never fails a bid.
type Notifier interface {
	BidPlaced(ev BidPlacedEvent)
	Outbid(ev OutbidEvent)
	AuctionExtended(ev AuctionExtendedEvent)
	LotClosed(ev LotClosedEvent)
}

// NopNotifier drops all events.
type NopNotifier struct{}

func (NopNotifier) BidPlaced(BidPlacedEvent)             {}
func (NopNotifier) Outbid(OutbidEvent)                   {}
func (NopNotifier) AuctionExtended(AuctionExtendedEvent) {}
func (NopNotifier) LotClosed(LotClosedEvent)             {}

// MultiNotifier fans one event out to several sinks in order.
type MultiNotifier []Notifier

func (m MultiNotifier) BidPlaced(ev BidPlacedEvent) {
	for _, n := range m {
		n.BidPlaced(ev)
	}
}

func (m MultiNotifier) Outbid(ev OutbidEvent) {
	for _, n := range m {
		n.Outbid(ev)
	}
}

func (m MultiNotifier) AuctionExtended(ev AuctionExtendedEvent) {
	for _, n := range m {
		n.AuctionExtended(ev)
	}
}

func (m MultiNotifier) LotClosed(ev LotClosedEvent) {
	for _, n := range m {
		n.LotClosed(ev)
	}
}
