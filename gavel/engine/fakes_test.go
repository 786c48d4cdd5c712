package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"

	"github.com/gavelhouse/gavel/gavel/database/models"
	"github.com/gavelhouse/gavel/gavel/database/repositories"
)

// world is an in-memory stand-in for the storage layer, shared by the
// fake repositories so a test sees one consistent state.
type world struct {
	mu sync.Mutex

	auctions map[int64]*models.Auction
	lots     map[int64]*models.Lot
	ledger   []*models.BidRecord
	proxies  []*models.StandingProxy
	bidders  map[string]*models.Bidder

	nextProxyID int64
	closeCount  int
}

func newWorld() *world {
	return &world{
		auctions:    make(map[int64]*models.Auction),
		lots:        make(map[int64]*models.Lot),
		bidders:     make(map[string]*models.Bidder),
		nextProxyID: 1,
	}
}

func (w *world) addAuction(a *models.Auction) { w.auctions[a.ID] = a }
func (w *world) addLot(l *models.Lot)         { w.lots[l.ID] = l }
func (w *world) addBidder(b *models.Bidder)   { w.bidders[b.ID] = b }

func (w *world) lotEntries(lotID int64) []*models.BidRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*models.BidRecord
	for _, rec := range w.ledger {
		if rec.LotID == lotID {
			out = append(out, rec)
		}
	}
	return out
}

type fakeAuctions struct{ w *world }

func (f *fakeAuctions) DB() *bun.DB { return nil }

func (f *fakeAuctions) Create(_ context.Context, a *models.Auction) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.auctions[a.ID] = a
	return nil
}

func (f *fakeAuctions) GetByID(_ context.Context, id int64) (*models.Auction, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	a, ok := f.w.auctions[id]
	if !ok {
		return nil, fmt.Errorf("auction %d: %w", id, repositories.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAuctions) GetByCode(_ context.Context, code string) (*models.Auction, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, a := range f.w.auctions {
		if a.Code == code {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeAuctions) GetDueToStart(_ context.Context, now time.Time) ([]*models.Auction, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []*models.Auction
	for _, a := range f.w.auctions {
		if a.Status == models.AuctionStatusScheduled && !a.StartTime.After(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAuctions) GetDueToEnd(_ context.Context, now time.Time) ([]*models.Auction, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []*models.Auction
	for _, a := range f.w.auctions {
		if a.Status == models.AuctionStatusLive && !a.EndTime.After(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAuctions) MarkLive(ctx context.Context, id int64) error {
	return f.Transition(ctx, id,
		[]models.AuctionStatus{models.AuctionStatusScheduled, models.AuctionStatusPaused},
		models.AuctionStatusLive)
}

func (f *fakeAuctions) EndIfDue(_ context.Context, id int64, now time.Time) (bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	a, ok := f.w.auctions[id]
	if !ok {
		return false, nil
	}
	if a.Status != models.AuctionStatusLive || a.EndTime.After(now) {
		return false, nil
	}
	a.Status = models.AuctionStatusEnded
	return true, nil
}

func (f *fakeAuctions) Transition(_ context.Context, id int64, from []models.AuctionStatus, to models.AuctionStatus) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	a, ok := f.w.auctions[id]
	if !ok {
		return fmt.Errorf("auction %d: %w", id, repositories.ErrNotFound)
	}
	for _, s := range from {
		if a.Status == s {
			a.Status = to
			return nil
		}
	}
	return fmt.Errorf("auction %d not in expected status: %w", id, repositories.ErrNotFound)
}

type fakeLots struct{ w *world }

func (f *fakeLots) Create(_ context.Context, lot *models.Lot) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.lots[lot.ID] = lot
	return nil
}

func (f *fakeLots) GetByID(_ context.Context, id int64) (*models.Lot, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	l, ok := f.w.lots[id]
	if !ok {
		return nil, fmt.Errorf("lot %d: %w", id, repositories.ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLots) GetByAuction(_ context.Context, auctionID int64) ([]*models.Lot, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []*models.Lot
	for _, l := range f.w.lots {
		if l.AuctionID == auctionID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLots) GetActiveByAuction(ctx context.Context, auctionID int64) ([]*models.Lot, error) {
	all, _ := f.GetByAuction(ctx, auctionID)
	var out []*models.Lot
	for _, l := range all {
		if l.Status == models.LotStatusActive {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLots) ActivateForAuction(_ context.Context, auctionID int64) (int64, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var n int64
	for _, l := range f.w.lots {
		if l.AuctionID == auctionID && l.Status == models.LotStatusPending {
			l.Status = models.LotStatusActive
			n++
		}
	}
	return n, nil
}

func (f *fakeLots) GetStragglers(_ context.Context) ([]*models.Lot, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []*models.Lot
	for _, l := range f.w.lots {
		a, ok := f.w.auctions[l.AuctionID]
		if !ok || a.Status != models.AuctionStatusEnded {
			continue
		}
		if l.Status == models.LotStatusPending || l.Status == models.LotStatusActive {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLots) Transition(_ context.Context, id int64, from []models.LotStatus, to models.LotStatus) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	l, ok := f.w.lots[id]
	if !ok {
		return fmt.Errorf("lot %d: %w", id, repositories.ErrNotFound)
	}
	for _, s := range from {
		if l.Status == s {
			l.Status = to
			return nil
		}
	}
	return fmt.Errorf("lot %d not in expected status: %w", id, repositories.ErrNotFound)
}

type fakeLedger struct{ w *world }

func (f *fakeLedger) CommitBid(_ context.Context, commit *repositories.BidCommit) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()

	lot, ok := f.w.lots[commit.LotID]
	if !ok {
		return fmt.Errorf("lot %d: %w", commit.LotID, repositories.ErrNotFound)
	}
	if !lot.Biddable() {
		return fmt.Errorf("lot %d: %w", commit.LotID, repositories.ErrStaleLotState)
	}
	auction, ok := f.w.auctions[commit.AuctionID]
	if !ok {
		return fmt.Errorf("auction %d: %w", commit.AuctionID, repositories.ErrNotFound)
	}
	if !auction.Biddable() {
		return fmt.Errorf("auction %d: %w", commit.AuctionID, repositories.ErrStaleLotState)
	}

	for _, rec := range f.w.ledger {
		if rec.LotID != commit.LotID {
			continue
		}
		if rec.Status == models.BidStatusWinning || rec.Status == models.BidStatusActive {
			rec.Status = models.BidStatusOutbid
		}
	}
	f.w.ledger = append(f.w.ledger, commit.Entries...)

	lot.CurrentPrice = commit.NewPrice
	lot.CurrentBidderID = commit.NewLeaderID
	lot.BidCount += int64(len(commit.Entries))
	lot.LedgerSeq = commit.Entries[len(commit.Entries)-1].Seq
	lot.IsReserveMet = commit.ReserveMet

	auction.TotalBids += int64(len(commit.Entries))
	if commit.NewEndTime != nil {
		auction.EndTime = *commit.NewEndTime
	}
	return nil
}

func (f *fakeLedger) CommitClose(_ context.Context, commit *repositories.CloseCommit) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()

	lot, ok := f.w.lots[commit.LotID]
	if !ok {
		return fmt.Errorf("lot %d: %w", commit.LotID, repositories.ErrNotFound)
	}
	if lot.Closed() {
		return fmt.Errorf("lot %d: %w", commit.LotID, repositories.ErrLotAlreadyClosed)
	}

	lot.Status = commit.Status
	lot.WinnerID = commit.WinnerID
	lot.HammerPrice = commit.HammerPrice
	lot.PremiumDue = commit.PremiumDue
	lot.TotalDue = commit.TotalDue

	for _, rec := range f.w.ledger {
		if rec.LotID != commit.LotID || rec.Status == models.BidStatusRejected {
			continue
		}
		if commit.Status == models.LotStatusSold && rec.BidderID == commit.WinnerID && rec.Status == models.BidStatusWinning {
			rec.Status = models.BidStatusWon
		} else if rec.Status != models.BidStatusWon {
			rec.Status = models.BidStatusLost
		}
	}
	for _, p := range f.w.proxies {
		if p.LotID == commit.LotID {
			p.Active = false
		}
	}
	f.w.closeCount++
	return nil
}

func (f *fakeLedger) RecordRejected(_ context.Context, rec *models.BidRecord) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	rec.Status = models.BidStatusRejected
	f.w.ledger = append(f.w.ledger, rec)
	if lot, ok := f.w.lots[rec.LotID]; ok && lot.LedgerSeq < rec.Seq {
		lot.LedgerSeq = rec.Seq
	}
	return nil
}

func (f *fakeLedger) History(_ context.Context, lotID int64, offset, limit int) ([]*models.BidRecord, int, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var all []*models.BidRecord
	for _, rec := range f.w.ledger {
		if rec.LotID == lotID {
			all = append(all, rec)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (f *fakeLedger) LatestAccepted(_ context.Context, lotID int64) (*models.BidRecord, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for i := len(f.w.ledger) - 1; i >= 0; i-- {
		rec := f.w.ledger[i]
		if rec.LotID == lotID && rec.Status != models.BidStatusRejected {
			return rec, nil
		}
	}
	return nil, repositories.ErrNotFound
}

type fakeProxies struct{ w *world }

func (f *fakeProxies) ActiveForLot(_ context.Context, lotID int64) ([]*models.StandingProxy, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []*models.StandingProxy
	for _, p := range f.w.proxies {
		if p.LotID == lotID && p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeProxies) GetActive(_ context.Context, lotID int64, bidderID string) (*models.StandingProxy, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, p := range f.w.proxies {
		if p.LotID == lotID && p.BidderID == bidderID && p.Active {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeProxies) Supersede(_ context.Context, proxy *models.StandingProxy) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, p := range f.w.proxies {
		if p.LotID == proxy.LotID && p.BidderID == proxy.BidderID {
			p.Active = false
		}
	}
	proxy.ID = f.w.nextProxyID
	f.w.nextProxyID++
	proxy.Active = true
	f.w.proxies = append(f.w.proxies, proxy)
	return nil
}

func (f *fakeProxies) Deactivate(_ context.Context, ids []int64) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, p := range f.w.proxies {
		for _, id := range ids {
			if p.ID == id {
				p.Active = false
			}
		}
	}
	return nil
}

func (f *fakeProxies) DeactivateForBidder(_ context.Context, lotID int64, bidderID string) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, p := range f.w.proxies {
		if p.LotID == lotID && p.BidderID == bidderID {
			p.Active = false
		}
	}
	return nil
}

type fakeBidders struct{ w *world }

func (f *fakeBidders) GetByID(_ context.Context, id string) (*models.Bidder, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	b, ok := f.w.bidders[id]
	if !ok {
		return nil, fmt.Errorf("bidder %s: %w", id, repositories.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBidders) Upsert(_ context.Context, b *models.Bidder) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.bidders[b.ID] = b
	return nil
}

func (f *fakeBidders) SetKYCStatus(_ context.Context, id string, status models.KYCStatus) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	b, ok := f.w.bidders[id]
	if !ok {
		return repositories.ErrNotFound
	}
	b.KYCStatus = status
	return nil
}

// recordingNotifier captures events for assertions.
type recordingNotifier struct {
	mu       sync.Mutex
	placed   []BidPlacedEvent
	outbid   []OutbidEvent
	extended []AuctionExtendedEvent
	closed   []LotClosedEvent
}

func (r *recordingNotifier) BidPlaced(ev BidPlacedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placed = append(r.placed, ev)
}

func (r *recordingNotifier) Outbid(ev OutbidEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outbid = append(r.outbid, ev)
}

func (r *recordingNotifier) AuctionExtended(ev AuctionExtendedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extended = append(r.extended, ev)
}

func (r *recordingNotifier) LotClosed(ev LotClosedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, ev)
}

func testConfig() Config {
	return Config{
		SoftCloseWindow:    30 * time.Second,
		SoftCloseExtension: 60 * time.Second,
		LockTimeout:        200 * time.Millisecond,
		DefaultIncrement:   1000,
	}
}

func newTestEngine(w *world, notifier Notifier) *Engine {
	return newTestEngineCfg(w, testConfig(), notifier)
}

func newTestEngineCfg(w *world, cfg Config, notifier Notifier) *Engine {
	eng, err := New(cfg,
		&fakeAuctions{w}, &fakeLots{w}, &fakeLedger{w}, &fakeProxies{w}, &fakeBidders{w},
		notifier, nil)
	if err != nil {
		panic(err)
	}
	return eng
}

func liveWorld() *world {
	w := newWorld()
	w.addAuction(&models.Auction{
		ID:               1,
		Code:             "S-100",
		Title:            "Fine Watches",
		Currency:         "USD",
		BuyersPremiumBps: 2000,
		ReservePolicy:    models.ReservePolicyEnforce,
		Status:           models.AuctionStatusLive,
		StartTime:        time.Now().Add(-time.Hour),
		EndTime:          time.Now().Add(time.Hour),
	})
	w.addLot(&models.Lot{
		ID:             10,
		AuctionID:      1,
		LotNumber:      1,
		Title:          "Chronograph",
		StartingPrice:  10000,
		Increment:      1000,
		CurrentPrice:   10000,
		Status:         models.LotStatusActive,
		AutoBidEnabled: true,
	})
	w.addBidder(&models.Bidder{ID: "alice", Paddle: "paddle-101", KYCStatus: models.KYCStatusApproved})
	w.addBidder(&models.Bidder{ID: "bob", Paddle: "paddle-202", KYCStatus: models.KYCStatusApproved})
	w.addBidder(&models.Bidder{ID: "carol", Paddle: "paddle-303", KYCStatus: models.KYCStatusPending})
	return w
}
