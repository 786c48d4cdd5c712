package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	clientSendSize = 256
)

// LotTopic names the subscription channel for a lot's events.
func LotTopic(lotID int64) string {
	return fmt.Sprintf("lot:%d", lotID)
}

// AuctionTopic names the subscription channel for auction-wide events.
func AuctionTopic(auctionID int64) string {
	return fmt.Sprintf("auction:%d", auctionID)
}

// BidderTopic names the personal alert channel for one bidder.
func BidderTopic(bidderID string) string {
	return fmt.Sprintf("bidder:%s", bidderID)
}

type envelope struct {
	topic   string
	payload []byte
}

// Hub fans committed events out to websocket subscribers grouped by
// topic. It is an injected dependency, created in main and handed to
// whatever needs to publish; delivery is best-effort and a slow client
// gets evicted rather than blocking the rest.
type Hub struct {
	topics sync.Map // topic -> *sync.Map of *Client

	register   chan *Client
	unregister chan *Client
	publish    chan *envelope

	log *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan *envelope, 256),
		log:        log,
	}
}

// Run owns the connection lifecycle until the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		case env := <-h.publish:
			h.fanOut(env.topic, env.payload)
		}
	}
}

// Register attaches a client to its topic and starts its pumps.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Publish queues a payload for every subscriber of the topic. Never
// blocks the caller beyond the hub's own buffer.
func (h *Hub) Publish(topic string, payload []byte) {
	select {
	case h.publish <- &envelope{topic: topic, payload: payload}:
	default:
		h.log.Warn("Broadcast buffer full, dropping event",
			slog.String("type", "sys"),
			slog.String("topic", topic))
	}
}

// SubscriberCount reports how many clients watch a topic.
func (h *Hub) SubscriberCount(topic string) int {
	set, ok := h.topics.Load(topic)
	if !ok {
		return 0
	}
	count := 0
	set.(*sync.Map).Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (h *Hub) add(client *Client) {
	set, _ := h.topics.LoadOrStore(client.Topic, &sync.Map{})
	set.(*sync.Map).Store(client, true)

	h.log.Debug("Client subscribed",
		slog.String("type", "sys"),
		slog.String("client", client.ID),
		slog.String("topic", client.Topic))

	go client.writePump()
}

func (h *Hub) remove(client *Client) {
	if set, ok := h.topics.Load(client.Topic); ok {
		set.(*sync.Map).Delete(client)
	}
	client.close()

	h.log.Debug("Client unsubscribed",
		slog.String("type", "sys"),
		slog.String("client", client.ID),
		slog.String("topic", client.Topic))
}

func (h *Hub) fanOut(topic string, payload []byte) {
	set, ok := h.topics.Load(topic)
	if !ok {
		return
	}
	set.(*sync.Map).Range(func(key, _ interface{}) bool {
		client := key.(*Client)
		select {
		case client.Send <- payload:
		default:
			// Full send buffer means a stalled reader; evict it so one
			// slow client never holds up the topic.
			go func() { h.unregister <- client }()
		}
		return true
	})
}

func (h *Hub) closeAll() {
	h.topics.Range(func(_, set interface{}) bool {
		set.(*sync.Map).Range(func(key, _ interface{}) bool {
			key.(*Client).close()
			return true
		})
		return true
	})
}

// Client is one websocket subscription to a single topic.
type Client struct {
	ID    string
	Topic string
	Conn  *websocket.Conn
	Send  chan []byte

	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.Send)
		c.Conn.Close()
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains inbound frames so pongs are processed and a closed
// peer is noticed promptly. Subscribers send nothing meaningful.
func (c *Client) readPump(unregister chan *Client) {
	defer func() {
		unregister <- c
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
