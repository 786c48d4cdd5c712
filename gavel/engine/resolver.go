package engine

import (
	"math"
	"sort"

	"github.com/gavelhouse/gavel/gavel/database/models"
)

// Snapshot is the ledger state the resolver works against: the lot's
// visible price and leader at the moment the per-lot section was taken.
type Snapshot struct {
	StartingPrice int64
	CurrentPrice  int64
	LeaderID      string
	HasBids       bool
}

// Incoming is the bid being resolved. Ceiling of 0 means the bidder
// declared no proxy alongside this bid.
type Incoming struct {
	BidderID string
	Amount   int64
	Ceiling  int64
	Kind     models.BidKind
}

// Standing is an active proxy ceiling competing for the lot.
type Standing struct {
	ID            int64
	BidderID      string
	Ceiling       int64
	RegisteredSeq int64
}

// ResolvedEntry is one ledger entry the resolution produced, in commit
// order. Sequence numbers and statuses are assigned by the engine.
type ResolvedEntry struct {
	BidderID   string
	Amount     int64
	Kind       models.BidKind
	MaxCeiling int64
}

// Outcome is the full result of folding an incoming bid into the
// standing proxy set.
type Outcome struct {
	Entries    []ResolvedEntry
	FinalPrice int64
	WinnerID   string
	// Exhausted lists proxies outbid beyond their ceiling; the engine
	// deactivates them after commit.
	Exhausted []int64
}

// contender is one side of a proxy duel: either the incoming bidder or
// a standing proxy that took the lead mid-resolution.
type contender struct {
	bidderID string
	ceiling  int64
	seq      int64
	proxyID  int64
}

// Resolve implements ascending proxy bidding. The incoming bid takes
// the lead at its amount, then standing proxies counter in duels: each
// duel the side with the higher ceiling wins at the loser's ceiling
// plus one increment, capped at the winner's ceiling. Tie ceilings go
// to the earlier registration. A bidder's own standing ceiling never
// counters their bid; it defends it, raising the lead's effective
// ceiling even when the bid does not restate it.
//
// The function is pure: same snapshot, proxy set and incoming bid give
// the same outcome. Each duel eliminates one proxy, so the loop is
// bounded by the proxy count.
func Resolve(snap Snapshot, proxies []Standing, in Incoming, inc IncrementFunc) Outcome {
	leader := contender{
		bidderID: in.BidderID,
		ceiling:  max64(in.Amount, in.Ceiling),
		seq:      math.MaxInt64,
	}
	price := in.Amount
	entries := []ResolvedEntry{{
		BidderID:   in.BidderID,
		Amount:     in.Amount,
		Kind:       in.Kind,
		MaxCeiling: in.Ceiling,
	}}

	remaining := make([]Standing, 0, len(proxies))
	for _, p := range proxies {
		if p.BidderID == in.BidderID {
			// The bidder's own ceiling joins the defense, keeping the
			// earlier registration's tie-break claim.
			if p.Ceiling >= leader.ceiling {
				leader.ceiling = p.Ceiling
				leader.seq = p.RegisteredSeq
				leader.proxyID = p.ID
			}
			continue
		}
		remaining = append(remaining, p)
	}
	// Strongest challengers first; equal ceilings by registration order.
	sort.Slice(remaining, func(i, j int) bool {
		if remaining[i].Ceiling != remaining[j].Ceiling {
			return remaining[i].Ceiling > remaining[j].Ceiling
		}
		return remaining[i].RegisteredSeq < remaining[j].RegisteredSeq
	})

	for len(remaining) > 0 {
		c := remaining[0]
		if c.BidderID == leader.bidderID {
			remaining = remaining[1:]
			continue
		}
		canChallenge := c.Ceiling > price ||
			(c.Ceiling == price && c.RegisteredSeq < leader.seq)
		if !canChallenge {
			break
		}
		remaining = remaining[1:]

		challengerWins := c.Ceiling > leader.ceiling ||
			(c.Ceiling == leader.ceiling && c.RegisteredSeq < leader.seq)

		if challengerWins {
			// The displaced leader exhausts its ceiling first, then the
			// challenger counters one increment above, capped at its own
			// ceiling.
			if leader.ceiling > price {
				entries = append(entries, ResolvedEntry{
					BidderID:   leader.bidderID,
					Amount:     leader.ceiling,
					Kind:       models.BidKindAuto,
					MaxCeiling: leader.ceiling,
				})
				price = leader.ceiling
			}
			counter := min64(c.Ceiling, price+inc(price))
			entries = append(entries, ResolvedEntry{
				BidderID:   c.BidderID,
				Amount:     counter,
				Kind:       models.BidKindAuto,
				MaxCeiling: c.Ceiling,
			})
			price = counter
			leader = contender{
				bidderID: c.BidderID,
				ceiling:  c.Ceiling,
				seq:      c.RegisteredSeq,
				proxyID:  c.ID,
			}
			continue
		}

		// Leader retains: the challenger pushes up to its ceiling and
		// the leader counters just above it. On a ceiling tie the
		// counter lands at the same amount, re-asserting the earlier
		// registration's claim.
		if c.Ceiling > price {
			entries = append(entries, ResolvedEntry{
				BidderID:   c.BidderID,
				Amount:     c.Ceiling,
				Kind:       models.BidKindAuto,
				MaxCeiling: c.Ceiling,
			})
			price = c.Ceiling
			counter := min64(leader.ceiling, price+inc(price))
			entries = append(entries, ResolvedEntry{
				BidderID:   leader.bidderID,
				Amount:     counter,
				Kind:       models.BidKindAuto,
				MaxCeiling: leader.ceiling,
			})
			price = counter
		}
	}

	var exhausted []int64
	for _, p := range proxies {
		if p.Ceiling < price {
			exhausted = append(exhausted, p.ID)
		}
	}

	return Outcome{
		Entries:    entries,
		FinalPrice: price,
		WinnerID:   leader.bidderID,
		Exhausted:  exhausted,
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
