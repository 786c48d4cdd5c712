package engine

import (
	"errors"
	"fmt"
)

// RejectionCode identifies a client-correctable refusal. Callers map
// these to HTTP statuses; the engine is the only component that
// produces them.
type RejectionCode string

const (
	CodeBidTooLow         RejectionCode = "BID_TOO_LOW"
	CodeAuctionNotLive    RejectionCode = "AUCTION_NOT_LIVE"
	CodeLotNotActive      RejectionCode = "LOT_NOT_ACTIVE"
	CodeBidderNotVerified RejectionCode = "BIDDER_NOT_VERIFIED"
	CodeReserveNotMet     RejectionCode = "RESERVE_NOT_MET"
	CodeAutoBidDisabled   RejectionCode = "AUTO_BID_DISABLED"
	// CodeBusy is transient: the per-lot section could not be acquired
	// within the configured budget. Retryable with backoff.
	CodeBusy RejectionCode = "BUSY"
)

// Rejection is a typed refusal of a bid or lifecycle request. It is not
// a system fault: the caller can correct and retry.
type Rejection struct {
	Code    RejectionCode
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

func reject(code RejectionCode, format string, args ...interface{}) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsRejection extracts a Rejection from an error chain, or returns nil.
func AsRejection(err error) *Rejection {
	var r *Rejection
	if errors.As(err, &r) {
		return r
	}
	return nil
}

// Retryable reports whether the error is transient contention rather
// than a correctable refusal or a fault.
func Retryable(err error) bool {
	r := AsRejection(err)
	return r != nil && r.Code == CodeBusy
}

// fault wraps an integrity or storage failure so it stays
// distinguishable from client-correctable rejections. A fault means the
// whole operation aborted with no partial effect.
func fault(err error, format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, err)...)
}
