package engine

// IncrementFunc returns the minimum step required above the given
// amount. Pluggable so tiered ladders can replace a flat step without
// touching the resolver.
type IncrementFunc func(amount int64) int64

// FlatIncrement steps by a fixed amount regardless of price.
func FlatIncrement(step int64) IncrementFunc {
	return func(int64) int64 {
		return step
	}
}

// IncrementTier is one rung of a tiered ladder: the step applies from
// Threshold upward until the next tier takes over.
type IncrementTier struct {
	Threshold int64
	Step      int64
}

// TieredIncrement builds an IncrementFunc from a ladder. Tiers must be
// sorted by ascending threshold; amounts below the first tier use the
// first tier's step.
func TieredIncrement(tiers []IncrementTier) IncrementFunc {
	return func(amount int64) int64 {
		if len(tiers) == 0 {
			return 0
		}
		step := tiers[0].Step
		for _, t := range tiers {
			if amount >= t.Threshold {
				step = t.Step
			}
		}
		return step
	}
}

// MinimumBid computes the lowest acceptable next bid. The first bid may
// equal the starting price; after that each bid must clear the current
// price by the increment at that price.
func MinimumBid(currentPrice, startingPrice int64, hasBids bool, inc IncrementFunc) int64 {
	if !hasBids {
		return startingPrice
	}
	return currentPrice + inc(currentPrice)
}
