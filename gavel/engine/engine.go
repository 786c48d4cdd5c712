package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"

	"github.com/gavelhouse/gavel/gavel/database/models"
	"github.com/gavelhouse/gavel/gavel/database/repositories"
)

const closureCacheSize = 1024

// Config carries the bidding rules that are deployment choices rather
// than domain law.
type Config struct {
	SoftCloseWindow    time.Duration
	SoftCloseExtension time.Duration
	LockTimeout        time.Duration
	DefaultIncrement   int64
	// Tiers is the house increment ladder for lots that do not fix a
	// flat step. Empty falls back to DefaultIncrement.
	Tiers []IncrementTier
}

// Engine is the transactional boundary of the auction: every bid,
// proxy registration and closure passes through a per-lot exclusive
// section here, and only the engine translates ledger and resolver
// errors into caller-facing results.
type Engine struct {
	cfg      Config
	auctions repositories.AuctionRepository
	lots     repositories.LotRepository
	ledger   repositories.LedgerRepository
	proxies  repositories.ProxyRepository
	bidders  repositories.BidderRepository

	locks    *lotLocks
	closures *lru.Cache
	notifier Notifier
	log      *slog.Logger
}

func New(
	cfg Config,
	auctions repositories.AuctionRepository,
	lots repositories.LotRepository,
	ledger repositories.LedgerRepository,
	proxies repositories.ProxyRepository,
	bidders repositories.BidderRepository,
	notifier Notifier,
	log *slog.Logger,
) (*Engine, error) {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}
	cache, err := lru.New(closureCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create closure cache: %w", err)
	}
	return &Engine{
		cfg:      cfg,
		auctions: auctions,
		lots:     lots,
		ledger:   ledger,
		proxies:  proxies,
		bidders:  bidders,
		locks:    newLotLocks(),
		closures: cache,
		notifier: notifier,
		log:      log,
	}, nil
}

// PlaceBidResult reports the outcome of an accepted bid from the
// caller's perspective. AcceptedAmount can exceed the requested amount
// when the caller's own ceiling auto-raised during resolution, and
// Status can be outbid immediately when a standing proxy countered.
type PlaceBidResult struct {
	LotID          int64
	AcceptedAmount int64
	Status         models.BidStatus
	CurrentPrice   int64
	LeaderID       string
	AuctionEndTime time.Time
	Extended       bool
}

// PlaceBid validates, resolves and atomically commits a manual bid. A
// non-zero maxCeiling also registers a standing proxy at that ceiling.
func (e *Engine) PlaceBid(ctx context.Context, lotID int64, bidderID string, amount, maxCeiling int64) (*PlaceBidResult, error) {
	release, err := e.acquireLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	defer release()

	lot, auction, err := e.loadBiddable(ctx, lotID)
	if err != nil {
		return nil, err
	}
	bidder, err := e.verifiedBidder(ctx, bidderID)
	if err != nil {
		return nil, err
	}

	if maxCeiling > 0 {
		if !lot.AutoBidEnabled {
			return nil, reject(CodeAutoBidDisabled, "lot %d does not accept auto-bids", lotID)
		}
		if maxCeiling < amount {
			return nil, reject(CodeBidTooLow, "ceiling %d is below bid amount %d", maxCeiling, amount)
		}
	}

	inc := e.incrementFor(lot)
	minBid := MinimumBid(lot.CurrentPrice, lot.StartingPrice, lot.BidCount > 0, inc)
	if amount < minBid {
		e.recordRejection(ctx, lot, bidderID, amount, fmt.Sprintf("minimum bid is %d", minBid))
		return nil, reject(CodeBidTooLow, "bid %d below minimum %d", amount, minBid)
	}

	standings, err := e.loadStandings(ctx, lotID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	outcome := Resolve(snapshotOf(lot), standings, Incoming{
		BidderID: bidderID,
		Amount:   amount,
		Ceiling:  maxCeiling,
		Kind:     models.BidKindManual,
	}, inc)

	applied, err := e.commitOutcome(ctx, lot, auction, outcome, now)
	if err != nil {
		return nil, err
	}

	if maxCeiling > 0 {
		sp := &models.StandingProxy{
			LotID:         lotID,
			BidderID:      bidderID,
			Ceiling:       maxCeiling,
			RegisteredSeq: applied.lastSeq,
		}
		if err := e.proxies.Supersede(ctx, sp); err != nil {
			e.log.Error("Failed to register proxy after bid commit",
				slog.String("type", "bid"),
				slog.Int64("lot_id", lotID),
				slog.String("error", err.Error()))
		}
	}

	e.afterCommit(ctx, lot, auction, outcome, applied, bidder, now)

	res := &PlaceBidResult{
		LotID:          lotID,
		AcceptedAmount: amount,
		Status:         models.BidStatusOutbid,
		CurrentPrice:   outcome.FinalPrice,
		LeaderID:       outcome.WinnerID,
		AuctionEndTime: applied.endTime,
		Extended:       applied.extended,
	}
	for _, en := range outcome.Entries {
		if en.BidderID == bidderID && en.Amount > res.AcceptedAmount {
			res.AcceptedAmount = en.Amount
		}
	}
	if outcome.WinnerID == bidderID {
		res.Status = models.BidStatusWinning
	}
	return res, nil
}

// RegisterAutoBid creates or raises a standing proxy. When the ceiling
// clears the live competition the registration itself counter-bids; on
// a lot with no accepted bids it stays dormant and produces no visible
// bid.
func (e *Engine) RegisterAutoBid(ctx context.Context, lotID int64, bidderID string, ceiling int64) (*models.StandingProxy, error) {
	release, err := e.acquireLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	defer release()

	lot, auction, err := e.loadBiddable(ctx, lotID)
	if err != nil {
		return nil, err
	}
	bidder, err := e.verifiedBidder(ctx, bidderID)
	if err != nil {
		return nil, err
	}
	if !lot.AutoBidEnabled {
		return nil, reject(CodeAutoBidDisabled, "lot %d does not accept auto-bids", lotID)
	}

	inc := e.incrementFor(lot)
	minBid := MinimumBid(lot.CurrentPrice, lot.StartingPrice, lot.BidCount > 0, inc)
	if ceiling < minBid {
		return nil, reject(CodeBidTooLow, "ceiling %d below minimum bid %d", ceiling, minBid)
	}

	sp := &models.StandingProxy{
		LotID:         lotID,
		BidderID:      bidderID,
		Ceiling:       ceiling,
		RegisteredSeq: lot.LedgerSeq,
	}
	if err := e.proxies.Supersede(ctx, sp); err != nil {
		return nil, fault(err, "failed to register proxy for lot %d", lotID)
	}

	// A ceiling that beats the live competition counter-bids at once.
	// Raising one's own ceiling while leading stays silent.
	triggers := lot.BidCount > 0 &&
		lot.CurrentBidderID != bidderID &&
		ceiling >= lot.CurrentPrice+inc(lot.CurrentPrice)
	if !triggers {
		return sp, nil
	}

	standings, err := e.loadStandings(ctx, lotID)
	if err != nil {
		return sp, err
	}

	now := time.Now()
	outcome := Resolve(snapshotOf(lot), standings, Incoming{
		BidderID: bidderID,
		Amount:   min64(ceiling, lot.CurrentPrice+inc(lot.CurrentPrice)),
		Ceiling:  ceiling,
		Kind:     models.BidKindAuto,
	}, inc)

	applied, err := e.commitOutcome(ctx, lot, auction, outcome, now)
	if err != nil {
		return sp, err
	}
	e.afterCommit(ctx, lot, auction, outcome, applied, bidder, now)

	return sp, nil
}

// CloseResult is the stored outcome of a lot closure. Winner and
// hammer fields are zero for anything but a sale.
type CloseResult struct {
	LotID       int64            `json:"lotId"`
	Status      models.LotStatus `json:"status"`
	WinnerID    string           `json:"winner,omitempty"`
	HammerPrice int64            `json:"hammerPrice,omitempty"`
	PremiumDue  int64            `json:"premiumDue,omitempty"`
	TotalDue    int64            `json:"totalDue,omitempty"`
	ReserveMet  bool             `json:"reserveMet"`
	// Reason carries the machine code explaining a non-sale.
	Reason string `json:"reason,omitempty"`
}

// CloseLot finalizes a lot, comparing the final leading bid against the
// reserve. Idempotent: closing an already-closed lot returns the stored
// result without re-evaluating.
func (e *Engine) CloseLot(ctx context.Context, lotID int64) (*CloseResult, error) {
	if cached, ok := e.closures.Get(lotID); ok {
		return cached.(*CloseResult), nil
	}

	release, err := e.acquireLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	defer release()

	lot, err := e.lots.GetByID(ctx, lotID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, reject(CodeLotNotActive, "lot %d not found", lotID)
		}
		return nil, fault(err, "failed to load lot %d", lotID)
	}
	if lot.Closed() {
		res := closeResultFromLot(lot)
		e.closures.Add(lotID, res)
		return res, nil
	}

	auction, err := e.auctions.GetByID(ctx, lot.AuctionID)
	if err != nil {
		return nil, fault(err, "failed to load auction %d", lot.AuctionID)
	}

	res := e.settle(lot, auction)
	commit := &repositories.CloseCommit{
		LotID:       lot.ID,
		AuctionID:   lot.AuctionID,
		Status:      res.Status,
		WinnerID:    res.WinnerID,
		HammerPrice: res.HammerPrice,
		PremiumDue:  res.PremiumDue,
		TotalDue:    res.TotalDue,
	}
	if err := e.ledger.CommitClose(ctx, commit); err != nil {
		if errors.Is(err, repositories.ErrLotAlreadyClosed) {
			// Lost the race to a concurrent closure; the row now holds
			// the stored result.
			closed, readErr := e.lots.GetByID(ctx, lotID)
			if readErr != nil {
				return nil, fault(readErr, "failed to re-read closed lot %d", lotID)
			}
			stored := closeResultFromLot(closed)
			e.closures.Add(lotID, stored)
			return stored, nil
		}
		return nil, fault(err, "failed to close lot %d", lotID)
	}
	e.closures.Add(lotID, res)

	e.log.Info("Lot closed",
		slog.String("type", "clock"),
		slog.Int64("lot_id", lotID),
		slog.String("status", string(res.Status)),
		slog.Int64("hammer_price", res.HammerPrice))

	e.notifier.LotClosed(LotClosedEvent{
		LotID:       lotID,
		AuctionID:   lot.AuctionID,
		Status:      string(res.Status),
		Winner:      e.paddleOf(ctx, res.WinnerID),
		HammerPrice: res.HammerPrice,
		Timestamp:   time.Now(),
	})
	return res, nil
}

// settle decides sold/unsold/passed from the final projection. Reserve
// below final price means unsold even with a leading bidder, unless the
// auction waives reserves.
func (e *Engine) settle(lot *models.Lot, auction *models.Auction) *CloseResult {
	res := &CloseResult{LotID: lot.ID}
	hasLeader := lot.CurrentBidderID != "" && lot.BidCount > 0
	reserveMet := lot.ReservePrice == 0 || lot.CurrentPrice >= lot.ReservePrice
	res.ReserveMet = hasLeader && reserveMet

	switch {
	case !hasLeader:
		res.Status = models.LotStatusPassed
	case !reserveMet && auction.ReservePolicy != models.ReservePolicyWaive:
		res.Status = models.LotStatusUnsold
		res.Reason = string(CodeReserveNotMet)
	default:
		res.Status = models.LotStatusSold
		res.WinnerID = lot.CurrentBidderID
		res.HammerPrice = lot.CurrentPrice
		res.PremiumDue = buyersPremium(lot.CurrentPrice, auction.BuyersPremiumBps)
		res.TotalDue = res.HammerPrice + res.PremiumDue
	}
	return res
}

// applied is the bookkeeping from one committed resolution.
type applied struct {
	records   []*models.BidRecord
	lastSeq   int64
	totalBids int64
	endTime   time.Time
	extended  bool
}

func (e *Engine) commitOutcome(ctx context.Context, lot *models.Lot, auction *models.Auction, outcome Outcome, now time.Time) (*applied, error) {
	winnerLast := -1
	for i, en := range outcome.Entries {
		if en.BidderID == outcome.WinnerID {
			winnerLast = i
		}
	}

	seq := lot.LedgerSeq
	records := make([]*models.BidRecord, len(outcome.Entries))
	for i, en := range outcome.Entries {
		seq++
		status := models.BidStatusOutbid
		if i == winnerLast {
			status = models.BidStatusWinning
		}
		records[i] = &models.BidRecord{
			LotID:      lot.ID,
			AuctionID:  lot.AuctionID,
			Seq:        seq,
			BidderID:   en.BidderID,
			Amount:     en.Amount,
			Kind:       en.Kind,
			MaxCeiling: en.MaxCeiling,
			Status:     status,
			Timestamp:  now,
			CreatedAt:  now,
		}
	}

	ap := &applied{
		records:   records,
		lastSeq:   seq,
		totalBids: lot.BidCount + int64(len(records)),
		endTime:   auction.EndTime,
	}
	var newEnd *time.Time
	if auction.EndTime.Sub(now) <= e.cfg.SoftCloseWindow {
		t := now.Add(e.cfg.SoftCloseExtension)
		if t.After(auction.EndTime) {
			newEnd = &t
			ap.endTime = t
			ap.extended = true
		}
	}

	commit := &repositories.BidCommit{
		LotID:       lot.ID,
		AuctionID:   lot.AuctionID,
		Entries:     records,
		NewPrice:    outcome.FinalPrice,
		NewLeaderID: outcome.WinnerID,
		ReserveMet:  lot.ReservePrice == 0 || outcome.FinalPrice >= lot.ReservePrice,
		NewEndTime:  newEnd,
	}
	if err := e.ledger.CommitBid(ctx, commit); err != nil {
		if errors.Is(err, repositories.ErrStaleLotState) {
			return nil, reject(CodeLotNotActive, "lot %d state changed before commit", lot.ID)
		}
		return nil, fault(err, "bid commit failed for lot %d", lot.ID)
	}
	return ap, nil
}

// afterCommit runs the fire-and-forget side of an accepted bid:
// exhausted-proxy cleanup, logging and event fan-out. Nothing here can
// fail the committed bid.
func (e *Engine) afterCommit(ctx context.Context, lot *models.Lot, auction *models.Auction, outcome Outcome, ap *applied, bidder *models.Bidder, now time.Time) {
	if len(outcome.Exhausted) > 0 {
		if err := e.proxies.Deactivate(ctx, outcome.Exhausted); err != nil {
			e.log.Error("Failed to deactivate exhausted proxies",
				slog.String("type", "bid"),
				slog.Int64("lot_id", lot.ID),
				slog.String("error", err.Error()))
		}
	}

	e.log.Info("Bid accepted",
		slog.String("type", "bid"),
		slog.Int64("lot_id", lot.ID),
		slog.Int64("price", outcome.FinalPrice),
		slog.Int("entries", len(ap.records)),
		slog.Bool("extended", ap.extended))

	paddle := bidder.Paddle
	if outcome.WinnerID != bidder.ID {
		paddle = e.paddleOf(ctx, outcome.WinnerID)
	}
	e.notifier.BidPlaced(BidPlacedEvent{
		LotID:     lot.ID,
		AuctionID: lot.AuctionID,
		Seq:       ap.lastSeq,
		Amount:    outcome.FinalPrice,
		TotalBids: ap.totalBids,
		Paddle:    paddle,
		Timestamp: now,
	})

	if prev := lot.CurrentBidderID; prev != "" && prev != outcome.WinnerID {
		e.notifier.Outbid(OutbidEvent{
			LotID:     lot.ID,
			AuctionID: lot.AuctionID,
			BidderID:  prev,
			NewPrice:  outcome.FinalPrice,
			Timestamp: now,
		})
	}

	if ap.extended {
		e.notifier.AuctionExtended(AuctionExtendedEvent{
			AuctionID: auction.ID,
			LotID:     lot.ID,
			NewEnd:    ap.endTime,
			Timestamp: now,
		})
	}
}

func (e *Engine) acquireLot(ctx context.Context, lotID int64) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.cfg.LockTimeout)
	defer cancel()

	release, err := e.locks.acquire(lockCtx, lotID)
	if err != nil {
		return nil, reject(CodeBusy, "lot %d is busy, retry with backoff", lotID)
	}
	return release, nil
}

func (e *Engine) loadBiddable(ctx context.Context, lotID int64) (*models.Lot, *models.Auction, error) {
	lot, err := e.lots.GetByID(ctx, lotID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, reject(CodeLotNotActive, "lot %d not found", lotID)
		}
		return nil, nil, fault(err, "failed to load lot %d", lotID)
	}
	if !lot.Biddable() {
		return nil, nil, reject(CodeLotNotActive, "lot %d is %s", lotID, lot.Status)
	}

	auction, err := e.auctions.GetByID(ctx, lot.AuctionID)
	if err != nil {
		return nil, nil, fault(err, "failed to load auction %d", lot.AuctionID)
	}
	if !auction.Biddable() {
		return nil, nil, reject(CodeAuctionNotLive, "auction %d is %s", auction.ID, auction.Status)
	}
	return lot, auction, nil
}

func (e *Engine) verifiedBidder(ctx context.Context, bidderID string) (*models.Bidder, error) {
	bidder, err := e.bidders.GetByID(ctx, bidderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, reject(CodeBidderNotVerified, "bidder %s is not registered", bidderID)
		}
		return nil, fault(err, "failed to load bidder %s", bidderID)
	}
	if !bidder.Verified() {
		return nil, reject(CodeBidderNotVerified, "bidder %s has kyc status %s", bidderID, bidder.KYCStatus)
	}
	return bidder, nil
}

func (e *Engine) loadStandings(ctx context.Context, lotID int64) ([]Standing, error) {
	active, err := e.proxies.ActiveForLot(ctx, lotID)
	if err != nil {
		return nil, fault(err, "failed to load proxies for lot %d", lotID)
	}
	standings := make([]Standing, len(active))
	for i, p := range active {
		standings[i] = Standing{
			ID:            p.ID,
			BidderID:      p.BidderID,
			Ceiling:       p.Ceiling,
			RegisteredSeq: p.RegisteredSeq,
		}
	}
	return standings, nil
}

func (e *Engine) incrementFor(lot *models.Lot) IncrementFunc {
	if lot.Increment > 0 {
		return FlatIncrement(lot.Increment)
	}
	if len(e.cfg.Tiers) > 0 {
		return TieredIncrement(e.cfg.Tiers)
	}
	return FlatIncrement(e.cfg.DefaultIncrement)
}

// recordRejection appends a rejected attempt for audit. Failures here
// are logged, never surfaced: the caller already has their rejection.
func (e *Engine) recordRejection(ctx context.Context, lot *models.Lot, bidderID string, amount int64, reason string) {
	rec := &models.BidRecord{
		LotID:        lot.ID,
		AuctionID:    lot.AuctionID,
		Seq:          lot.LedgerSeq + 1,
		BidderID:     bidderID,
		Amount:       amount,
		Kind:         models.BidKindManual,
		RejectReason: reason,
		Timestamp:    time.Now(),
	}
	if err := e.ledger.RecordRejected(ctx, rec); err != nil {
		e.log.Error("Failed to record rejected bid",
			slog.String("type", "bid"),
			slog.Int64("lot_id", lot.ID),
			slog.String("error", err.Error()))
	}
}

func (e *Engine) paddleOf(ctx context.Context, bidderID string) string {
	if bidderID == "" {
		return ""
	}
	b, err := e.bidders.GetByID(ctx, bidderID)
	if err != nil {
		return ""
	}
	return b.Paddle
}

func snapshotOf(lot *models.Lot) Snapshot {
	return Snapshot{
		StartingPrice: lot.StartingPrice,
		CurrentPrice:  lot.CurrentPrice,
		LeaderID:      lot.CurrentBidderID,
		HasBids:       lot.BidCount > 0,
	}
}

func closeResultFromLot(lot *models.Lot) *CloseResult {
	res := &CloseResult{
		LotID:       lot.ID,
		Status:      lot.Status,
		WinnerID:    lot.WinnerID,
		HammerPrice: lot.HammerPrice,
		PremiumDue:  lot.PremiumDue,
		TotalDue:    lot.TotalDue,
		ReserveMet:  lot.IsReserveMet && lot.BidCount > 0,
	}
	if lot.Status == models.LotStatusUnsold {
		res.Reason = string(CodeReserveNotMet)
	}
	return res
}

// buyersPremium computes the premium on a hammer price from a rate in
// basis points, rounding to the nearest cent.
func buyersPremium(hammer, bps int64) int64 {
	if hammer == 0 || bps == 0 {
		return 0
	}
	return decimal.NewFromInt(hammer).
		Mul(decimal.NewFromInt(bps)).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart()
}
