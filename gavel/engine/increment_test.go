package engine

import (
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestFlatIncrement(t *testing.T) {
	inc := FlatIncrement(1000)
	check.Equal(t, int64(1000), inc(0))
	check.Equal(t, int64(1000), inc(10000))
	check.Equal(t, int64(1000), inc(999999))
}

func TestTieredIncrement(t *testing.T) {
	inc := TieredIncrement([]IncrementTier{
		{Threshold: 0, Step: 1000},
		{Threshold: 10000, Step: 2500},
		{Threshold: 50000, Step: 5000},
	})

	tests := []struct {
		name   string
		amount int64
		want   int64
	}{
		{"below first threshold", 500, 1000},
		{"last amount of first tier", 9999, 1000},
		{"exactly at second threshold", 10000, 2500},
		{"inside second tier", 49999, 2500},
		{"exactly at top threshold", 50000, 5000},
		{"far above top threshold", 1000000, 5000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check.Equal(t, tt.want, inc(tt.amount))
		})
	}

	empty := TieredIncrement(nil)
	check.Equal(t, int64(0), empty(10000))
}

func TestMinimumBid(t *testing.T) {
	inc := FlatIncrement(1000)

	// First bid may equal the starting price.
	check.Equal(t, int64(10000), MinimumBid(10000, 10000, false, inc))
	// After that each bid must clear price plus increment.
	check.Equal(t, int64(11000), MinimumBid(10000, 10000, true, inc))

	tiered := TieredIncrement([]IncrementTier{
		{Threshold: 0, Step: 1000},
		{Threshold: 50000, Step: 5000},
	})
	check.Equal(t, int64(55000), MinimumBid(50000, 10000, true, tiered))
}
