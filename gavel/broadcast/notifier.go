package broadcast

import (
	"encoding/json"
	"log/slog"

	"github.com/gavelhouse/gavel/gavel/engine"
)

// Notifier adapts the hub to the engine's event contract: each
// committed outcome becomes a typed JSON frame on the lot and auction
// topics, with personal alerts on the bidder topic.
type Notifier struct {
	hub *Hub
	log *slog.Logger
}

func NewNotifier(hub *Hub, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{hub: hub, log: log}
}

type frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (n *Notifier) send(eventType string, data interface{}, topics ...string) {
	payload, err := json.Marshal(frame{Type: eventType, Data: data})
	if err != nil {
		n.log.Error("Failed to marshal event",
			slog.String("type", "sys"),
			slog.String("event", eventType),
			slog.String("error", err.Error()))
		return
	}
	for _, topic := range topics {
		n.hub.Publish(topic, payload)
	}
}

func (n *Notifier) BidPlaced(ev engine.BidPlacedEvent) {
	n.send("bid:new", ev, LotTopic(ev.LotID), AuctionTopic(ev.AuctionID))
}

func (n *Notifier) Outbid(ev engine.OutbidEvent) {
	n.send("outbid", ev, BidderTopic(ev.BidderID))
}

func (n *Notifier) AuctionExtended(ev engine.AuctionExtendedEvent) {
	n.send("auction:extended", ev, LotTopic(ev.LotID), AuctionTopic(ev.AuctionID))
}

func (n *Notifier) LotClosed(ev engine.LotClosedEvent) {
	n.send("lot:closed", ev, LotTopic(ev.LotID), AuctionTopic(ev.AuctionID))
}
