package engine

import (
	"context"

	"github.com/bidworks/auction-engine/internal/database"
	"github.com/bidworks/auction-engine/pkg/errors"
	"github.com/bidworks/auction-engine/pkg/types"
	"github.com/charmbracelet/log"
)

// RejectBidder bans a bidder from an auction, expunges their price history
// and standing bid, and replays the remaining proxy bids to recompute the
// leader and the visible price. Removing a bidder can change the
// second-highest reference point, so this is a full replay rather than an
// incremental update. Serialized per auction like PlaceBid.
func (e *Engine) RejectBidder(ctx context.Context, auctionID, bidderID, sellerID string) (types.RejectionOutcome, error) {
	tx, err := e.db.BeginAuctionTx(ctx, auctionID)
	if err != nil {
		return types.RejectionOutcome{}, err
	}

	outcome, err := e.resolveRejection(ctx, tx, bidderID, sellerID)
	if err != nil {
		tx.Rollback()
		return types.RejectionOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return types.RejectionOutcome{}, errors.Wrap(err, "error committing rejection")
	}

	log.Debugf("Auction %s: bidder %s rejected by seller, price %d",
		auctionID, bidderID, outcome.NewPrice)

	e.notifier.BidderRejected(outcome)
	return outcome, nil
}

func (e *Engine) resolveRejection(ctx context.Context, tx database.AuctionTx, bidderID, sellerID string) (types.RejectionOutcome, error) {
	auction := tx.Auction()
	now := e.clock.Now()

	if auction.SellerID != sellerID {
		return types.RejectionOutcome{}, errors.New(errors.ErrForbidden, "only the seller can reject bidders")
	}
	if !auction.Open(now) {
		return types.RejectionOutcome{}, errors.New(errors.ErrAuctionClosed, "bidders can only be rejected on active auctions")
	}

	bids, err := tx.ProxyBids(ctx, auction.ID)
	if err != nil {
		return types.RejectionOutcome{}, err
	}

	// The remaining bids keep the ledger's order: highest maximum first,
	// earliest bid winning ties.
	remaining := bids[:0:0]
	found := false
	for _, bid := range bids {
		if bid.BidderID == bidderID {
			found = true
			continue
		}
		remaining = append(remaining, bid)
	}
	if !found {
		return types.RejectionOutcome{}, errors.New(errors.ErrNoStandingBid, "this bidder has no standing bid on this auction")
	}

	if err := tx.InsertRejectedBidder(ctx, auction.ID, bidderID, sellerID); err != nil {
		return types.RejectionOutcome{}, err
	}
	if err := tx.DeleteBidderHistory(ctx, auction.ID, bidderID); err != nil {
		return types.RejectionOutcome{}, err
	}
	if err := tx.DeleteProxyBid(ctx, auction.ID, bidderID); err != nil {
		return types.RejectionOutcome{}, err
	}

	prevPrice := auction.CurrentPrice
	prevLeader := auction.LeadingBidderID
	wasLeader := prevLeader != nil && *prevLeader == bidderID

	var writeHistory bool
	switch len(remaining) {
	case 0:
		auction.LeadingBidderID = nil
		auction.LeadingMaxPrice = nil
		auction.CurrentPrice = auction.StartingPrice

	case 1:
		winner := remaining[0]
		auction.LeadingBidderID = &winner.BidderID
		auction.LeadingMaxPrice = &winner.MaxPrice
		auction.CurrentPrice = auction.StartingPrice
		writeHistory = wasLeader || prevPrice != auction.CurrentPrice

	default:
		winner := remaining[0]
		second := remaining[1]
		newPrice := winner.MaxPrice
		if second.MaxPrice+auction.StepPrice < newPrice {
			newPrice = second.MaxPrice + auction.StepPrice
		}
		auction.LeadingBidderID = &winner.BidderID
		auction.LeadingMaxPrice = &winner.MaxPrice
		auction.CurrentPrice = newPrice
		writeHistory = wasLeader || prevPrice != newPrice
	}

	if err := tx.UpdateAuction(ctx, auction); err != nil {
		return types.RejectionOutcome{}, err
	}
	if writeHistory && auction.LeadingBidderID != nil {
		if err := tx.AppendHistory(ctx, auction.ID, *auction.LeadingBidderID, auction.CurrentPrice); err != nil {
			return types.RejectionOutcome{}, err
		}
	}

	return types.RejectionOutcome{
		AuctionID:        auction.ID,
		AuctionTitle:     auction.Title,
		SellerID:         sellerID,
		RejectedBidderID: bidderID,
		NewLeaderID:      auction.LeadingBidderID,
		NewPrice:         auction.CurrentPrice,
		PreviousPrice:    prevPrice,
		PreviousLeaderID: prevLeader,
		WasLeader:        wasLeader,
	}, nil
}

// UnrejectBidder lifts a ban. The bidder's previous proxy bid is not
// restored; they have to bid again.
func (e *Engine) UnrejectBidder(ctx context.Context, auctionID, bidderID, sellerID string) error {
	auction, err := e.db.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return err
	}
	if auction.SellerID != sellerID {
		return errors.New(errors.ErrForbidden, "only the seller can unreject bidders")
	}
	return e.db.DeleteRejectedBidder(ctx, auctionID, bidderID)
}
