package engine

import (
	"context"
	"fmt"

	"github.com/bidworks/auction-engine/internal/database"
	"github.com/bidworks/auction-engine/pkg/errors"
	"github.com/bidworks/auction-engine/pkg/types"
	"github.com/bidworks/auction-engine/pkg/utils"
	"github.com/charmbracelet/log"
)

// PlaceBid resolves a proxy bid against the auction's standing state. The
// whole read-decide-write sequence runs inside one per-auction serialized
// transaction: on any precondition failure the transaction is rolled back
// and no state is persisted. Notifications go out after commit.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID string, amount int64) (types.BidOutcome, error) {
	tx, err := e.db.BeginAuctionTx(ctx, auctionID)
	if err != nil {
		return types.BidOutcome{}, err
	}

	outcome, err := e.resolveBid(ctx, tx, bidderID, amount)
	if err != nil {
		tx.Rollback()
		return types.BidOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return types.BidOutcome{}, errors.Wrap(err, "error committing bid")
	}

	log.Debugf("Auction %s: bid %d by %s -> price %d, leader %s",
		auctionID, amount, bidderID, outcome.NewPrice, outcome.NewLeaderID)

	e.notifier.BidPlaced(outcome)
	return outcome, nil
}

func (e *Engine) resolveBid(ctx context.Context, tx database.AuctionTx, bidderID string, amount int64) (types.BidOutcome, error) {
	auction := tx.Auction()
	now := e.clock.Now()

	if auction.Sale != types.SaleUnresolved || auction.ClosedAt != nil {
		return types.BidOutcome{}, errors.New(errors.ErrAuctionClosed, "this auction has already been closed")
	}
	if auction.SellerID == bidderID {
		return types.BidOutcome{}, errors.New(errors.ErrForbidden, "you cannot bid on your own auction")
	}

	rejected, err := tx.IsBidderRejected(ctx, auction.ID, bidderID)
	if err != nil {
		return types.BidOutcome{}, err
	}
	if rejected {
		return types.BidOutcome{}, errors.New(errors.ErrAlreadyRejected, "the seller has rejected your bids on this auction")
	}

	if err := e.checkEligibility(ctx, auction, bidderID); err != nil {
		return types.BidOutcome{}, err
	}

	if !now.Before(auction.CloseAt) {
		return types.BidOutcome{}, errors.New(errors.ErrAuctionClosed, "this auction has ended")
	}

	minimum := auction.CurrentPrice + auction.StepPrice
	if amount <= auction.CurrentPrice {
		return types.BidOutcome{}, errors.BidTooLow(
			fmt.Sprintf("bid must be higher than the current price (%s)", utils.FormatPrice(auction.CurrentPrice)),
			minimum,
		)
	}
	if amount < minimum {
		return types.BidOutcome{}, errors.BidTooLow(
			fmt.Sprintf("bid must be at least %s above the current price", utils.FormatPrice(auction.StepPrice)),
			minimum,
		)
	}

	// The auto-extend window is checked once per accepted bid, against the
	// close time as it was when the bid arrived.
	var extended bool
	newCloseAt := auction.CloseAt
	if auction.AutoExtend {
		trigger, extend := e.settings.AutoExtendSettings()
		newCloseAt, extended = EvaluateAutoExtend(auction.CloseAt, now, trigger, extend)
	}

	prevPrice := auction.CurrentPrice
	prevLeader := auction.LeadingBidderID

	var (
		newPrice     int64
		newLeader    string
		newMax       int64
		writeHistory bool
		settled      bool
	)

	// Buy-now short-circuit: an existing leader whose hidden maximum
	// already covers the buy-now price takes the item the moment anyone
	// else bids. The challenger's proxy bid is still recorded below.
	if auction.BuyNowPrice != nil && auction.LeadingBidderID != nil && auction.LeadingMaxPrice != nil &&
		*auction.LeadingBidderID != bidderID && *auction.LeadingMaxPrice >= *auction.BuyNowPrice {
		newPrice = *auction.BuyNowPrice
		newLeader = *auction.LeadingBidderID
		newMax = *auction.LeadingMaxPrice
		writeHistory = newPrice != prevPrice
		settled = true
	}

	if !settled {
		switch {
		case auction.LeadingBidderID != nil && *auction.LeadingBidderID == bidderID:
			// Self-raise: the visible price stays put, only the hidden
			// maximum moves. Nothing new to display, so no history row.
			newPrice = auction.CurrentPrice
			newLeader = bidderID
			newMax = amount

		case auction.LeadingBidderID == nil || auction.LeadingMaxPrice == nil:
			// First bid opens at the starting price.
			newPrice = auction.StartingPrice
			newLeader = bidderID
			newMax = amount
			writeHistory = true

		default:
			leadMax := *auction.LeadingMaxPrice
			switch {
			case amount < leadMax:
				// The incumbent's hidden maximum still wins; the visible
				// price rises just enough to beat the challenger.
				newPrice = amount
				newLeader = *auction.LeadingBidderID
				newMax = leadMax
			case amount == leadMax:
				// Exact tie: the earlier bid keeps the lead.
				newPrice = amount
				newLeader = *auction.LeadingBidderID
				newMax = leadMax
			default:
				// Overtake: pay one step over the old maximum, capped at
				// the challenger's own maximum.
				newPrice = leadMax + auction.StepPrice
				if newPrice > amount {
					newPrice = amount
				}
				newLeader = bidderID
				newMax = amount
			}
			writeHistory = newPrice != prevPrice
		}

		if auction.BuyNowPrice != nil && newPrice >= *auction.BuyNowPrice {
			newPrice = *auction.BuyNowPrice
			settled = true
		}
	}

	auction.CurrentPrice = newPrice
	auction.LeadingBidderID = &newLeader
	auction.LeadingMaxPrice = &newMax
	if settled {
		auction.Sale = types.SaleSold
		closedAt := now
		auction.ClosedAt = &closedAt
		auction.CloseAt = now
	} else if extended {
		auction.CloseAt = newCloseAt
	}

	if err := tx.UpdateAuction(ctx, auction); err != nil {
		return types.BidOutcome{}, err
	}
	if writeHistory {
		if err := tx.AppendHistory(ctx, auction.ID, newLeader, newPrice); err != nil {
			return types.BidOutcome{}, err
		}
	}
	// The caller's hidden maximum is remembered in every branch, including
	// a buy-now settlement they lost, because future resolution (or a
	// rejection replay) needs it.
	if err := tx.UpsertProxyBid(ctx, auction.ID, bidderID, amount); err != nil {
		return types.BidOutcome{}, err
	}

	outcome := types.BidOutcome{
		AuctionID:        auction.ID,
		AuctionTitle:     auction.Title,
		SellerID:         auction.SellerID,
		BidderID:         bidderID,
		Amount:           amount,
		NewPrice:         newPrice,
		NewLeaderID:      newLeader,
		PreviousPrice:    prevPrice,
		PreviousLeaderID: prevLeader,
		PriceChanged:     newPrice != prevPrice,
		Sold:             settled,
	}
	if extended && !settled {
		outcome.Extended = true
		outcome.NewCloseAt = &newCloseAt
	}
	return outcome, nil
}

func (e *Engine) checkEligibility(ctx context.Context, auction types.Auction, bidderID string) error {
	hasReviews, err := e.ratings.HasAnyReviews(ctx, bidderID)
	if err != nil {
		return errors.Wrap(err, "error checking bidder reviews")
	}
	if !hasReviews {
		if !auction.AllowUnratedBidders {
			return errors.Ineligible(
				"this seller does not allow unrated bidders on this auction",
				errors.RuleUnratedNotAllowed,
			)
		}
		return nil
	}

	score, err := e.ratings.GetRatingScore(ctx, bidderID)
	if err != nil {
		return errors.Wrap(err, "error getting bidder rating")
	}
	if !score.Reviewed || score.Ratio <= ratingThreshold {
		return errors.Ineligible(
			"your rating must be above 80% to place bids",
			errors.RuleRatingTooLow,
		)
	}
	return nil
}
