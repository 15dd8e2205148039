package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bidworks/auction-engine/pkg/errors"
	"github.com/bidworks/auction-engine/pkg/types"
	"github.com/stretchr/testify/require"
)

func seedAuction(m *Memory, id string) types.Auction {
	auction := types.Auction{
		ID:            id,
		SellerID:      "seller",
		Title:         "Vintage camera",
		StartingPrice: 100_000,
		StepPrice:     10_000,
		CloseAt:       time.Now().Add(time.Hour),
	}
	m.AddAuction(auction)
	auction.CurrentPrice = auction.StartingPrice
	return auction
}

func TestMemoryRollbackRestoresSnapshot(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	auction := seedAuction(m, "a1")

	tx, err := m.BeginAuctionTx(ctx, auction.ID)
	require.NoError(t, err)

	updated := tx.Auction()
	updated.CurrentPrice = 130_000
	require.NoError(t, tx.UpdateAuction(ctx, updated))
	require.NoError(t, tx.UpsertProxyBid(ctx, auction.ID, "alice", 150_000))
	require.NoError(t, tx.AppendHistory(ctx, auction.ID, "alice", 130_000))
	require.NoError(t, tx.InsertRejectedBidder(ctx, auction.ID, "bob", "seller"))
	require.NoError(t, tx.Rollback())

	fetched, err := m.GetAuctionByID(ctx, auction.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100_000), fetched.CurrentPrice)
	require.Empty(t, m.StandingBids(auction.ID))

	history, err := m.PriceHistory(ctx, auction.ID)
	require.NoError(t, err)
	require.Empty(t, history)

	rejected, err := m.RejectedBidders(ctx, auction.ID)
	require.NoError(t, err)
	require.Empty(t, rejected)
}

func TestMemoryProxyBidOrdering(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	auction := seedAuction(m, "a1")

	tx, err := m.BeginAuctionTx(ctx, auction.ID)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertProxyBid(ctx, auction.ID, "alice", 150_000))
	require.NoError(t, tx.UpsertProxyBid(ctx, auction.ID, "bob", 150_000))
	require.NoError(t, tx.UpsertProxyBid(ctx, auction.ID, "carol", 200_000))
	require.NoError(t, tx.Commit())

	bids := m.StandingBids(auction.ID)
	require.Len(t, bids, 3)
	require.Equal(t, "carol", bids[0].BidderID)
	// Equal maximums keep bid order.
	require.Equal(t, "alice", bids[1].BidderID)
	require.Equal(t, "bob", bids[2].BidderID)
}

func TestMemoryDeleteProxyBidWithoutStandingBid(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	auction := seedAuction(m, "a1")

	tx, err := m.BeginAuctionTx(ctx, auction.ID)
	require.NoError(t, err)
	defer tx.Rollback()

	err = tx.DeleteProxyBid(ctx, auction.ID, "ghost")
	require.True(t, errors.Is(err, errors.ErrNoStandingBid))
}

func TestMemoryBeginAuctionTxUnknownAuction(t *testing.T) {
	m := NewMemory()
	_, err := m.BeginAuctionTx(context.Background(), "missing")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestMemorySerializesPerAuction(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	auction := seedAuction(m, "a1")

	// Each section reads the price under the lock and writes back one step
	// more. Any interleaving would lose increments.
	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := m.BeginAuctionTx(ctx, auction.ID)
			if err != nil {
				return
			}
			a := tx.Auction()
			a.CurrentPrice += a.StepPrice
			if err := tx.UpdateAuction(ctx, a); err != nil {
				tx.Rollback()
				return
			}
			tx.Commit()
		}()
	}
	wg.Wait()

	fetched, err := m.GetAuctionByID(ctx, auction.ID)
	require.NoError(t, err)
	require.Equal(t, auction.StartingPrice+int64(workers)*auction.StepPrice, fetched.CurrentPrice)
}

func TestMemoryClaimEndNotificationOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	auction := seedAuction(m, "a1")

	claimed, err := m.ClaimEndNotification(ctx, auction.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = m.ClaimEndNotification(ctx, auction.ID)
	require.NoError(t, err)
	require.False(t, claimed)
}
