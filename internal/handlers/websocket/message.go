package websocket

import (
	"context"
	"encoding/json"

	"github.com/bidworks/auction-engine/pkg/errors"
	"github.com/charmbracelet/log"
)

type Message struct {
	Type string `json:"type"` // Type of the message (e.g., "bid", "update")
	Data string `json:"data"` // Payload of the message
}

// ParseMessage validates and parses incoming messages.
func ParseMessage(rawMessage []byte) (*Message, error) {
	var msg Message
	err := json.Unmarshal(rawMessage, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// HandleMessage routes the message based on its type.
func (h *AuctionHandler) HandleMessage(client *Client, rawMessage []byte) {
	if !client.RateLimiter.Allow() {
		log.Warnf("Rate limit exceeded for client %s", client.ID)
		client.Send <- []byte(`{"type": "error", "message": "Rate limit exceeded"}`)
		return
	}

	msg, err := ParseMessage(rawMessage)
	if err != nil {
		log.Infof("Invalid message from client %s: %v", client.ID, err)
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid message format").ToJSON()
		return
	}

	switch msg.Type {
	case "join":
		log.Debug("Client joined the auction")
	case "bid":
		h.handleBidMessage(client, msg.Data)
	case "update":
		h.handleUpdateMessage(client, msg.Data)
	default:
		log.Warnf("Unknown message type: %s", msg.Type)
		client.Send <- errors.New(errors.ErrUnknownMessageType, "Unknown message type").ToJSON()
	}
}

func (h *AuctionHandler) handleBidMessage(client *Client, data string) {
	type BidMessage struct {
		AuctionID string `json:"auction_id"`
		Amount    int64  `json:"amount"`
	}
	var bidMsg BidMessage

	if err := json.Unmarshal([]byte(data), &bidMsg); err != nil || bidMsg.Amount <= 0 {
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid bid message").ToJSON()
		return
	}

	outcome, err := h.engine.PlaceBid(context.Background(), bidMsg.AuctionID, client.ID, bidMsg.Amount)
	if err != nil {
		client.Send <- toAppError(err).ToJSON()
		return
	}

	// The dispatcher broadcasts the committed outcome to everyone; the
	// caller additionally gets a direct acknowledgement.
	ack, err := json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{Type: "bid_accepted", Data: outcome})
	if err != nil {
		log.Error("Error marshalling bid ack: ", err)
		return
	}
	client.Send <- ack
}

func (h *AuctionHandler) handleUpdateMessage(client *Client, data string) {
	type UpdateMessage struct {
		AuctionID string `json:"auction_id"`
	}
	var updateMsg UpdateMessage

	if err := json.Unmarshal([]byte(data), &updateMsg); err != nil {
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid update message").ToJSON()
		return
	}

	ctx := context.Background()
	auction, err := h.db.GetAuctionByID(ctx, updateMsg.AuctionID)
	if err != nil {
		client.Send <- toAppError(err).ToJSON()
		return
	}
	history, err := h.db.PriceHistory(ctx, updateMsg.AuctionID)
	if err != nil {
		client.Send <- toAppError(err).ToJSON()
		return
	}

	update, err := json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{Type: "auction_state", Data: map[string]any{
		"auction": auction,
		"history": history,
	}})
	if err != nil {
		log.Error("Error marshalling auction state: ", err)
		return
	}
	client.Send <- update
}

func toAppError(err error) *errors.AppError {
	appErr := errors.From(err)
	if appErr.Code == errors.ErrInternalServer {
		log.Error("Internal error: ", err)
	}
	return appErr
}
