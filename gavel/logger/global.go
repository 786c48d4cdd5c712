package logger

import (
	"log/slog"
	"time"
)

// LogBid logs the outcome of a bid attempt.
func LogBid(lotID int64, bidderID string, amount int64, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "bid"),
		slog.Int64("lot_id", lotID),
		slog.String("bidder_id", bidderID),
		slog.Int64("amount", amount),
		slog.Duration("took", duration),
	}

	if err != nil {
		slog.Warn("Bid rejected", append(attrs, slog.Any("error", err))...)
	} else {
		slog.Info("Bid committed", attrs...)
	}
}

// LogSweep logs a lifecycle sweep pass.
func LogSweep(started, ended int, duration time.Duration) {
	slog.Info("Lifecycle sweep",
		slog.String("type", "sweep"),
		slog.Int("auctions_started", started),
		slog.Int("auctions_ended", ended),
		slog.Duration("took", duration))
}

// LogError logs error events.
func LogError(msg string, err error, attrs ...any) {
	baseAttrs := []any{
		slog.String("type", "error"),
		slog.Any("error", err),
	}
	slog.Error(msg, append(baseAttrs, attrs...)...)
}
