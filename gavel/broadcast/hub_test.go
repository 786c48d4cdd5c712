package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/gavelhouse/gavel/gavel/engine"
)

func TestTopicNames(t *testing.T) {
	check.Equal(t, "lot:10", LotTopic(10))
	check.Equal(t, "auction:3", AuctionTopic(3))
	check.Equal(t, "bidder:alice", BidderTopic("alice"))
}

// startHub runs a hub and its websocket listener on an ephemeral port.
func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := NewServer(":0", hub, nil)
	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return hub, ts
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.Nil(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	assert.Nil(t, err)
	var decoded map[string]interface{}
	assert.Nil(t, json.Unmarshal(msg, &decoded))
	return decoded
}

func waitForSubscribers(t *testing.T, hub *Hub, topic string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount(topic) != want {
		if time.Now().After(deadline) {
			t.Fatalf("topic %s never reached %d subscribers", topic, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubDeliversToTopic(t *testing.T) {
	hub, ts := startHub(t)
	conn := dial(t, ts, "/ws/lots/10")

	hello := readFrame(t, conn)
	check.Equal(t, "connected", hello["type"].(string))
	check.Equal(t, "lot:10", hello["topic"].(string))

	waitForSubscribers(t, hub, LotTopic(10), 1)
	hub.Publish(LotTopic(10), []byte(`{"type":"bid:new","data":{"amount":12000}}`))

	frame := readFrame(t, conn)
	check.Equal(t, "bid:new", frame["type"].(string))
}

func TestHubIsolatesTopics(t *testing.T) {
	hub, ts := startHub(t)
	conn := dial(t, ts, "/ws/lots/10")
	readFrame(t, conn) // connected
	waitForSubscribers(t, hub, LotTopic(10), 1)

	// A publish on another lot must not reach this subscriber; the
	// marker published afterwards is the next frame we see.
	hub.Publish(LotTopic(11), []byte(`{"type":"bid:new"}`))
	hub.Publish(LotTopic(10), []byte(`{"type":"marker"}`))

	frame := readFrame(t, conn)
	check.Equal(t, "marker", frame["type"].(string))
}

func TestNotifierFramesEvents(t *testing.T) {
	hub, ts := startHub(t)
	lotConn := dial(t, ts, "/ws/lots/10")
	bidderConn := dial(t, ts, "/ws/bidders/alice")
	readFrame(t, lotConn)
	readFrame(t, bidderConn)
	waitForSubscribers(t, hub, LotTopic(10), 1)
	waitForSubscribers(t, hub, BidderTopic("alice"), 1)

	n := NewNotifier(hub, nil)
	n.BidPlaced(engine.BidPlacedEvent{
		LotID:     10,
		AuctionID: 1,
		Seq:       3,
		Amount:    12000,
		TotalBids: 3,
		Paddle:    "paddle-202",
		Timestamp: time.Now(),
	})
	n.Outbid(engine.OutbidEvent{
		LotID:     10,
		AuctionID: 1,
		BidderID:  "alice",
		NewPrice:  12000,
		Timestamp: time.Now(),
	})

	placed := readFrame(t, lotConn)
	check.Equal(t, "bid:new", placed["type"].(string))
	data := placed["data"].(map[string]interface{})
	check.Equal(t, 12000.0, data["amount"].(float64))
	// Public frames carry the paddle pseudonym, never the account id.
	check.Equal(t, "paddle-202", data["bidder"].(string))

	outbid := readFrame(t, bidderConn)
	check.Equal(t, "outbid", outbid["type"].(string))
}

func TestStatsEndpoint(t *testing.T) {
	hub, ts := startHub(t)
	conn := dial(t, ts, "/ws/lots/10")
	readFrame(t, conn)
	waitForSubscribers(t, hub, LotTopic(10), 1)

	resp, err := http.Get(ts.URL + "/stats/lots/10")
	assert.Nil(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	assert.Nil(t, err)
	check.Equal(t, `{"lotId":10,"subscribers":1}`, string(body))
}

func TestDisconnectDropsSubscriber(t *testing.T) {
	hub, ts := startHub(t)
	conn := dial(t, ts, "/ws/lots/10")
	readFrame(t, conn)
	waitForSubscribers(t, hub, LotTopic(10), 1)

	conn.Close()
	waitForSubscribers(t, hub, LotTopic(10), 0)
}
