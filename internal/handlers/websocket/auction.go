package websocket

import (
	"net/http"
	"sync"

	"github.com/bidworks/auction-engine/internal/auth"
	"github.com/bidworks/auction-engine/internal/database"
	"github.com/bidworks/auction-engine/internal/engine"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// AuctionHandler bridges websocket clients and the bidding engine: bids
// come in as messages, committed outcomes go back out as broadcasts.
type AuctionHandler struct {
	engine           *engine.Engine
	db               database.Service
	connectedClients sync.Map
}

func NewAuctionHandler(eng *engine.Engine, db database.Service) *AuctionHandler {
	return &AuctionHandler{engine: eng, db: db}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleAuctionWebSocket integrates authentication and WebSocket handling.
func (h *AuctionHandler) HandleAuctionWebSocket(w http.ResponseWriter, r *http.Request) {
	session, err := auth.SessionFromRequest(r)
	if err != nil {
		log.Error("Invalid session: ", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Check if the user exists
	user, err := h.db.GetUserByEmail(r.Context(), session.Email)
	if err != nil {
		log.Error("User not found: ", err)
		http.Error(w, "User not found", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Infof("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		ID:          user.ID,
		Email:       user.Email,
		Conn:        conn,
		Send:        make(chan []byte, 16),
		RateLimiter: rate.NewLimiter(1, 3),
	}

	h.connectedClients.Store(client, true)

	go client.ReadMessages(h)
	go client.WriteMessages()
}

// Broadcast sends a message to all connected clients.
func (h *AuctionHandler) Broadcast(message []byte) {
	h.connectedClients.Range(func(key, _ any) bool {
		client := key.(*Client)
		select {
		case client.Send <- message:
		default:
			// Drop clients that stopped draining their queue.
			h.connectedClients.Delete(client)
			client.Disconnect(nil)
		}
		return true
	})
}
