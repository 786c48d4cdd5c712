package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/gavelhouse/gavel/gavel/engine"
)

const publishTimeout = 5 * time.Second

// Publisher writes committed auction events to a durable JetStream
// stream. Downstream consumers (settlement, analytics, audit) replay
// from here; the websocket hub stays the low-latency path. Publishing
// is asynchronous and best-effort relative to the bid commit.
type Publisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream string
	log    *slog.Logger
}

// envelope wraps every event with an id and kind so consumers can
// dedupe and route without parsing the payload.
type envelope struct {
	EventID   string      `json:"eventId"`
	Kind      string      `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// New connects and ensures the stream exists. Subjects follow
// "lot.events.{lotID}" so consumers can filter per lot.
func New(url, streamName string, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        streamName,
		Description: "Committed auction events",
		Subjects:    []string{"lot.events.*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create/update stream %s: %w", streamName, err)
	}

	log.Info("Event stream ready",
		slog.String("type", "sys"),
		slog.String("stream", streamName))

	return &Publisher{conn: conn, js: js, stream: streamName, log: log}, nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// publish ships the envelope off the caller's goroutine. A failed
// publish is logged, never propagated: the commit already happened and
// consumers recover via the REST projections.
func (p *Publisher) publish(kind string, lotID int64, data interface{}) {
	go func() {
		payload, err := json.Marshal(envelope{
			EventID:   uuid.New().String(),
			Kind:      kind,
			Timestamp: time.Now().UTC(),
			Data:      data,
		})
		if err != nil {
			p.log.Error("Failed to marshal stream event",
				slog.String("type", "sys"),
				slog.String("kind", kind),
				slog.String("error", err.Error()))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		subject := fmt.Sprintf("lot.events.%d", lotID)
		if _, err := p.js.Publish(ctx, subject, payload); err != nil {
			p.log.Error("Failed to publish stream event",
				slog.String("type", "sys"),
				slog.String("subject", subject),
				slog.String("kind", kind),
				slog.String("error", err.Error()))
		}
	}()
}

func (p *Publisher) BidPlaced(ev engine.BidPlacedEvent) {
	p.publish("bid:new", ev.LotID, ev)
}

func (p *Publisher) Outbid(ev engine.OutbidEvent) {
	p.publish("outbid", ev.LotID, ev)
}

func (p *Publisher) AuctionExtended(ev engine.AuctionExtendedEvent) {
	p.publish("auction:extended", ev.LotID, ev)
}

func (p *Publisher) LotClosed(ev engine.LotClosedEvent) {
	p.publish("lot:closed", ev.LotID, ev)
}
