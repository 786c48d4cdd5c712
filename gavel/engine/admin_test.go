package engine

import (
	"context"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/gavelhouse/gavel/gavel/database/models"
)

func TestWithdrawLot(t *testing.T) {
	w := liveWorld()
	seedLeader(w, 10, "alice", 45000)
	w.proxies = append(w.proxies, &models.StandingProxy{
		ID: 1, LotID: 10, BidderID: "bob", Ceiling: 60000, Active: true,
	})
	notes := &recordingNotifier{}
	eng := newTestEngine(w, notes)

	res, err := eng.WithdrawLot(context.Background(), 10)
	assert.Nil(t, err)
	check.Equal(t, models.LotStatusWithdrawn, res.Status)
	check.Equal(t, "", res.WinnerID)

	check.Equal(t, models.LotStatusWithdrawn, w.lots[10].Status)
	check.True(t, !w.proxies[0].Active)

	entries := w.lotEntries(10)
	assert.Equal(t, 1, len(entries))
	check.Equal(t, models.BidStatusLost, entries[0].Status)

	assert.Equal(t, 1, len(notes.closed))
	check.Equal(t, "withdrawn", notes.closed[0].Status)

	// Already withdrawn: the second attempt is refused, not repeated.
	_, err = eng.WithdrawLot(context.Background(), 10)
	rej := AsRejection(err)
	assert.NotNil(t, rej)
	check.Equal(t, CodeLotNotActive, rej.Code)
}

func TestCancelAuctionWithdrawsOpenLots(t *testing.T) {
	w := liveWorld()
	w.addLot(&models.Lot{
		ID: 11, AuctionID: 1, LotNumber: 2, StartingPrice: 5000,
		Status: models.LotStatusSold, WinnerID: "bob", HammerPrice: 5000,
	})
	eng := newTestEngine(w, nil)

	err := eng.CancelAuction(context.Background(), 1)
	assert.Nil(t, err)

	check.Equal(t, models.AuctionStatusCancelled, w.auctions[1].Status)
	check.Equal(t, models.LotStatusWithdrawn, w.lots[10].Status)
	// Lots already settled stay settled.
	check.Equal(t, models.LotStatusSold, w.lots[11].Status)
	check.Equal(t, "bob", w.lots[11].WinnerID)
}

func TestPauseBlocksBiddingUntilResume(t *testing.T) {
	w := liveWorld()
	eng := newTestEngine(w, nil)

	assert.Nil(t, eng.PauseAuction(context.Background(), 1))
	check.Equal(t, models.AuctionStatusPaused, w.auctions[1].Status)

	_, err := eng.PlaceBid(context.Background(), 10, "alice", 10000, 0)
	rej := AsRejection(err)
	assert.NotNil(t, rej)
	check.Equal(t, CodeAuctionNotLive, rej.Code)

	assert.Nil(t, eng.ResumeAuction(context.Background(), 1))
	_, err = eng.PlaceBid(context.Background(), 10, "alice", 10000, 0)
	assert.Nil(t, err)
}

func TestSuspendFromScheduled(t *testing.T) {
	w := liveWorld()
	w.auctions[1].Status = models.AuctionStatusScheduled
	eng := newTestEngine(w, nil)

	assert.Nil(t, eng.SuspendAuction(context.Background(), 1))
	check.Equal(t, models.AuctionStatusSuspended, w.auctions[1].Status)

	// Resume only applies to paused auctions.
	assert.NotNil(t, eng.ResumeAuction(context.Background(), 1))
}
