package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/bidworks/auction-engine/internal/database"
	"github.com/bidworks/auction-engine/pkg/types"
	"github.com/stretchr/testify/require"
)

type staticSettings struct {
	trigger time.Duration
	extend  time.Duration
}

func (s staticSettings) AutoExtendSettings() (time.Duration, time.Duration) {
	return s.trigger, s.extend
}

// recordingNotifier captures committed outcomes so tests can assert on the
// post-commit fan-out without a real dispatcher.
type recordingNotifier struct {
	mu         sync.Mutex
	bids       []types.BidOutcome
	rejections []types.RejectionOutcome
	closures   []types.ClosureOutcome
}

func (n *recordingNotifier) BidPlaced(outcome types.BidOutcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bids = append(n.bids, outcome)
}

func (n *recordingNotifier) BidderRejected(outcome types.RejectionOutcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejections = append(n.rejections, outcome)
}

func (n *recordingNotifier) AuctionEnded(outcome types.ClosureOutcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closures = append(n.closures, outcome)
}

func (n *recordingNotifier) bidCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.bids)
}

type fixture struct {
	store    *database.Memory
	clock    *fakeclock.FakeClock
	notifier *recordingNotifier
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := database.NewMemory()
	clk := fakeclock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	notifier := &recordingNotifier{}
	eng := New(store, store, store, notifier, staticSettings{trigger: 5 * time.Minute, extend: 10 * time.Minute}, clk)
	return &fixture{store: store, clock: clk, notifier: notifier, engine: eng}
}

// addAuction seeds an auction with sensible defaults for fields the test
// does not care about.
func (f *fixture) addAuction(a types.Auction) types.Auction {
	if a.ID == "" {
		a.ID = "auction-1"
	}
	if a.SellerID == "" {
		a.SellerID = "seller"
	}
	if a.Title == "" {
		a.Title = "Vintage camera"
	}
	if a.StartingPrice == 0 {
		a.StartingPrice = 100_000
	}
	if a.StepPrice == 0 {
		a.StepPrice = 10_000
	}
	if a.CloseAt.IsZero() {
		a.CloseAt = f.clock.Now().Add(time.Hour)
	}
	f.store.AddAuction(a)
	a.CurrentPrice = a.StartingPrice
	return a
}

func (f *fixture) rateGood(bidderIDs ...string) {
	for _, id := range bidderIDs {
		f.store.SetRating(id, types.NewRatingScore(0.95))
	}
}

func (f *fixture) place(t *testing.T, auctionID, bidderID string, amount int64) types.BidOutcome {
	t.Helper()
	outcome, err := f.engine.PlaceBid(context.Background(), auctionID, bidderID, amount)
	require.NoError(t, err)
	return outcome
}

func (f *fixture) auction(t *testing.T, auctionID string) types.Auction {
	t.Helper()
	auction, err := f.store.GetAuctionByID(context.Background(), auctionID)
	require.NoError(t, err)
	return auction
}

func (f *fixture) history(t *testing.T, auctionID string) []types.PriceHistoryEntry {
	t.Helper()
	history, err := f.store.PriceHistory(context.Background(), auctionID)
	require.NoError(t, err)
	return history
}

func TestStartSweeperResolvesOnTick(t *testing.T) {
	f := newFixture(t)
	f.rateGood("alice")
	auction := f.addAuction(types.Auction{CloseAt: f.clock.Now().Add(time.Minute)})
	f.place(t, auction.ID, "alice", 150_000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.engine.StartSweeper(ctx, 30*time.Second)

	f.clock.WaitForWatcherAndIncrement(2 * time.Minute)

	require.Eventually(t, func() bool {
		return f.auction(t, auction.ID).EndNotified
	}, 2*time.Second, 10*time.Millisecond)

	orders := f.store.Orders()
	require.Len(t, orders, 1)
	require.Equal(t, "alice", orders[0].BuyerID)
}
