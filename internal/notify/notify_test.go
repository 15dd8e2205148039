package notify

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bidworks/auction-engine/pkg/types"
	"github.com/stretchr/testify/require"
)

type captureBroadcast struct {
	mu       sync.Mutex
	messages [][]byte
}

func (c *captureBroadcast) send(message []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
}

func (c *captureBroadcast) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *captureBroadcast) last() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages[len(c.messages)-1]
}

func TestDispatcherBroadcastsEvents(t *testing.T) {
	capture := &captureBroadcast{}
	d, err := NewDispatcher(2, capture.send)
	require.NoError(t, err)
	defer d.Stop()

	prev := "bob"
	d.BidPlaced(types.BidOutcome{
		AuctionID:        "a1",
		AuctionTitle:     "Vintage camera",
		SellerID:         "seller",
		BidderID:         "alice",
		NewLeaderID:      "alice",
		NewPrice:         130_000,
		PreviousPrice:    120_000,
		PreviousLeaderID: &prev,
		PriceChanged:     true,
	})

	require.Eventually(t, func() bool { return capture.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	var event struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(capture.last(), &event))
	require.Equal(t, "bid", event.Type)

	var outcome types.BidOutcome
	require.NoError(t, json.Unmarshal(event.Data, &outcome))
	require.Equal(t, "alice", outcome.NewLeaderID)
	require.Equal(t, int64(130_000), outcome.NewPrice)

	winner := "alice"
	d.AuctionEnded(types.ClosureOutcome{
		AuctionID:    "a1",
		AuctionTitle: "Vintage camera",
		SellerID:     "seller",
		WinnerID:     &winner,
		FinalPrice:   130_000,
		Sold:         true,
	})
	d.BidderRejected(types.RejectionOutcome{
		AuctionID:        "a1",
		RejectedBidderID: "bob",
	})

	require.Eventually(t, func() bool { return capture.count() == 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcherWithoutTransport(t *testing.T) {
	d, err := NewDispatcher(0, nil)
	require.NoError(t, err)

	// Nothing to broadcast to; dispatch must still not panic or block.
	d.BidPlaced(types.BidOutcome{AuctionID: "a1", BidderID: "alice", NewLeaderID: "alice"})
	d.Stop()
}
