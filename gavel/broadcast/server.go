package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is the edge proxy's job.
		return true
	},
}

// Server exposes the hub's topics over websocket endpoints on its own
// listener, separate from the REST API.
type Server struct {
	hub  *Hub
	srv  *http.Server
	log  *slog.Logger
	addr string
}

func NewServer(addr string, hub *Hub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{hub: hub, log: log, addr: addr}

	router := mux.NewRouter()
	router.HandleFunc("/ws/lots/{id:[0-9]+}", s.handleLot)
	router.HandleFunc("/ws/auctions/{id:[0-9]+}", s.handleAuction)
	router.HandleFunc("/ws/bidders/{id}", s.handleBidder)
	router.HandleFunc("/stats/lots/{id:[0-9]+}", s.handleStats).Methods("GET")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving websocket upgrades until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("Event stream listening",
		slog.String("type", "sys"),
		slog.String("addr", s.addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("event stream server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleLot(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid lot id", http.StatusBadRequest)
		return
	}
	s.subscribe(w, r, LotTopic(id))
}

func (s *Server) handleAuction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid auction id", http.StatusBadRequest)
		return
	}
	s.subscribe(w, r, AuctionTopic(id))
}

func (s *Server) handleBidder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, "bidder id is required", http.StatusBadRequest)
		return
	}
	s.subscribe(w, r, BidderTopic(id))
}

func (s *Server) subscribe(w http.ResponseWriter, r *http.Request, topic string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Websocket upgrade failed",
			slog.String("type", "sys"),
			slog.String("error", err.Error()))
		return
	}

	client := &Client{
		ID:    uuid.New().String(),
		Topic: topic,
		Conn:  conn,
		Send:  make(chan []byte, clientSendSize),
	}
	// Queue the greeting before the hub sees the client; once
	// registered, the hub owns Send and may close it at any time.
	client.Send <- []byte(fmt.Sprintf(`{"type":"connected","topic":"%s","clientId":"%s"}`, topic, client.ID))
	s.hub.Register(client)
	go client.readPump(s.hub.unregister)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	lotID, _ := strconv.ParseInt(id, 10, 64)

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"lotId":%s,"subscribers":%d}`, id, s.hub.SubscriberCount(LotTopic(lotID)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"healthy","service":"broadcast"}`)
}
