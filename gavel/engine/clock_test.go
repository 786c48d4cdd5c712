package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/gavelhouse/gavel/gavel/database/models"
)

func newTestClock(w *world, eng *Engine) *Clock {
	return NewClock(&fakeAuctions{w}, &fakeLots{w}, eng, time.Second, nil)
}

func TestSweepStartsDueAuction(t *testing.T) {
	w := newWorld()
	now := time.Now()
	w.addAuction(&models.Auction{
		ID:        1,
		Code:      "S-200",
		Status:    models.AuctionStatusScheduled,
		StartTime: now.Add(-time.Minute),
		EndTime:   now.Add(time.Hour),
	})
	w.addLot(&models.Lot{ID: 10, AuctionID: 1, StartingPrice: 10000, Status: models.LotStatusPending})
	w.addLot(&models.Lot{ID: 11, AuctionID: 1, StartingPrice: 20000, Status: models.LotStatusPending})

	eng := newTestEngine(w, nil)
	newTestClock(w, eng).Sweep(context.Background(), now)

	check.Equal(t, models.AuctionStatusLive, w.auctions[1].Status)
	check.Equal(t, models.LotStatusActive, w.lots[10].Status)
	check.Equal(t, models.LotStatusActive, w.lots[11].Status)
}

func TestSweepNotYetDue(t *testing.T) {
	w := newWorld()
	now := time.Now()
	w.addAuction(&models.Auction{
		ID:        1,
		Code:      "S-201",
		Status:    models.AuctionStatusScheduled,
		StartTime: now.Add(time.Minute),
		EndTime:   now.Add(time.Hour),
	})

	eng := newTestEngine(w, nil)
	newTestClock(w, eng).Sweep(context.Background(), now)

	check.Equal(t, models.AuctionStatusScheduled, w.auctions[1].Status)
}

func TestSweepEndsDueAuctionAndClosesLots(t *testing.T) {
	w := liveWorld()
	now := time.Now()
	w.auctions[1].EndTime = now.Add(-time.Second)
	seedLeader(w, 10, "alice", 45000)

	eng := newTestEngine(w, nil)
	newTestClock(w, eng).Sweep(context.Background(), now)

	check.Equal(t, models.AuctionStatusEnded, w.auctions[1].Status)
	check.Equal(t, models.LotStatusSold, w.lots[10].Status)
	check.Equal(t, "alice", w.lots[10].WinnerID)
	check.Equal(t, 1, w.closeCount)
}

// staleListAuctions reports an auction as due against an end time that
// has since moved, reproducing the race between the sweep listing and a
// soft-close extension.
type staleListAuctions struct {
	*fakeAuctions
	stale []*models.Auction
}

func (s *staleListAuctions) GetDueToEnd(context.Context, time.Time) ([]*models.Auction, error) {
	return s.stale, nil
}

func TestSweepBacksOffWhenEndTimeMoved(t *testing.T) {
	w := liveWorld()
	now := time.Now()
	// The listing saw the pre-extension deadline; the row has moved on.
	staleCopy := *w.auctions[1]
	staleCopy.EndTime = now.Add(-time.Second)
	w.auctions[1].EndTime = now.Add(45 * time.Second)

	eng := newTestEngine(w, nil)
	clock := &Clock{
		auctions: &staleListAuctions{fakeAuctions: &fakeAuctions{w}, stale: []*models.Auction{&staleCopy}},
		lots:     &fakeLots{w},
		engine:   eng,
		interval: time.Second,
		log:      slog.Default(),
	}
	clock.Sweep(context.Background(), now)

	// The guarded end re-checked the live row and backed off.
	check.Equal(t, models.AuctionStatusLive, w.auctions[1].Status)
	check.Equal(t, models.LotStatusActive, w.lots[10].Status)
	check.Equal(t, 0, w.closeCount)
}

func TestSweepSettlesStragglers(t *testing.T) {
	w := liveWorld()
	w.auctions[1].Status = models.AuctionStatusEnded

	eng := newTestEngine(w, nil)
	newTestClock(w, eng).Sweep(context.Background(), time.Now())

	check.Equal(t, models.LotStatusPassed, w.lots[10].Status)
	check.Equal(t, 1, w.closeCount)
}

func TestSweepSkipsBusyLot(t *testing.T) {
	w := liveWorld()
	now := time.Now()
	w.auctions[1].EndTime = now.Add(-time.Second)
	eng := newTestEngine(w, nil)

	release, err := eng.locks.acquire(context.Background(), 10)
	assert.Nil(t, err)

	newTestClock(w, eng).Sweep(context.Background(), now)

	// The auction ended but the held lot was skipped.
	check.Equal(t, models.AuctionStatusEnded, w.auctions[1].Status)
	check.Equal(t, models.LotStatusActive, w.lots[10].Status)
	release()

	// The next sweep settles it as a straggler.
	newTestClock(w, eng).Sweep(context.Background(), now.Add(time.Second))
	check.Equal(t, models.LotStatusPassed, w.lots[10].Status)
}
