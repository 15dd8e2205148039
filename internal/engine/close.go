package engine

import (
	"context"

	"github.com/bidworks/auction-engine/pkg/types"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// ResolveExpiredAuctions processes every auction whose close time has
// passed and that has not been handled yet. Each auction is claimed with an
// atomic conditional update before any side effect, so overlapping or
// repeated sweeps never create two orders for the same auction.
func (e *Engine) ResolveExpiredAuctions(ctx context.Context) ([]types.ClosureOutcome, error) {
	now := e.clock.Now()
	expired, err := e.db.ExpiredUnnotified(ctx, now)
	if err != nil {
		return nil, err
	}

	var outcomes []types.ClosureOutcome
	for _, auction := range expired {
		claimed, err := e.db.ClaimEndNotification(ctx, auction.ID)
		if err != nil {
			log.Error("Error claiming auction closure: ", err)
			continue
		}
		if !claimed {
			// Another sweep got here first.
			continue
		}

		outcome := types.ClosureOutcome{
			AuctionID:    auction.ID,
			AuctionTitle: auction.Title,
			SellerID:     auction.SellerID,
			FinalPrice:   auction.CurrentPrice,
		}

		sale := types.SaleUnsold
		if auction.LeadingBidderID != nil {
			order, err := e.orders.CreateOrder(ctx, types.Order{
				ID:         uuid.New().String(),
				AuctionID:  auction.ID,
				SellerID:   auction.SellerID,
				BuyerID:    *auction.LeadingBidderID,
				FinalPrice: auction.CurrentPrice,
				Status:     "pending_payment",
			})
			if err != nil {
				log.Error("Error creating order for won auction: ", err)
				continue
			}
			outcome.WinnerID = auction.LeadingBidderID
			outcome.OrderID = order.ID
			outcome.Sold = true
			sale = types.SaleSold
		}

		// Buy-now settlements arrive here already closed and marked sold;
		// only auctions that expired naturally still need the final state.
		if auction.ClosedAt == nil {
			if err := e.db.MarkClosed(ctx, auction.ID, sale, now); err != nil {
				log.Error("Error marking auction closed: ", err)
			}
		}

		log.Infof("Auction %s resolved: %s at %d", auction.ID, sale, auction.CurrentPrice)

		outcomes = append(outcomes, outcome)
		e.notifier.AuctionEnded(outcome)
	}
	return outcomes, nil
}
