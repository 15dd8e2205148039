package notify

import (
	"encoding/json"

	"code.cloudfoundry.org/workpool"
	"github.com/bidworks/auction-engine/pkg/types"
	"github.com/bidworks/auction-engine/pkg/utils"
	"github.com/charmbracelet/log"
)

// Dispatcher fans committed engine outcomes out to interested parties:
// live websocket clients and the (logged) per-user notifications the
// original email flow covered. Dispatch is fire-and-forget on a bounded
// worker pool; the engine never blocks on it and failures are logged, not
// retried.
type Dispatcher struct {
	pool      *workpool.WorkPool
	broadcast func(message []byte)
}

// NewDispatcher creates a dispatcher with the given number of workers.
// broadcast pushes an event to all connected clients; pass nil when no
// live transport is attached.
func NewDispatcher(workers int, broadcast func(message []byte)) (*Dispatcher, error) {
	if workers <= 0 {
		workers = 4
	}
	pool, err := workpool.NewWorkPool(workers)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{pool: pool, broadcast: broadcast}, nil
}

// Stop drains the worker pool.
func (d *Dispatcher) Stop() {
	d.pool.Stop()
}

func (d *Dispatcher) BidPlaced(outcome types.BidOutcome) {
	d.pool.Submit(func() {
		d.send("bid", outcome)

		log.Infof("Notify seller %s: new bid on %q, price %s",
			outcome.SellerID, outcome.AuctionTitle, utils.FormatPrice(outcome.NewPrice))

		if outcome.Winning() {
			log.Infof("Notify bidder %s: you are winning %q", outcome.BidderID, outcome.AuctionTitle)
		} else {
			log.Infof("Notify bidder %s: bid placed on %q", outcome.BidderID, outcome.AuctionTitle)
		}

		// The previous leader only hears about it when the visible price
		// actually moved.
		if prev := outcome.PreviousLeaderID; prev != nil && *prev != outcome.BidderID && outcome.PriceChanged {
			if outcome.NewLeaderID != *prev {
				log.Infof("Notify bidder %s: you have been outbid on %q", *prev, outcome.AuctionTitle)
			} else {
				log.Infof("Notify bidder %s: price updated on %q", *prev, outcome.AuctionTitle)
			}
		}

		if outcome.Sold {
			log.Infof("Auction %q sold via buy-now at %s",
				outcome.AuctionTitle, utils.FormatPrice(outcome.NewPrice))
		}
	})
}

func (d *Dispatcher) BidderRejected(outcome types.RejectionOutcome) {
	d.pool.Submit(func() {
		d.send("rejection", outcome)
		log.Infof("Notify bidder %s: your bid on %q was rejected by the seller",
			outcome.RejectedBidderID, outcome.AuctionTitle)
	})
}

func (d *Dispatcher) AuctionEnded(outcome types.ClosureOutcome) {
	d.pool.Submit(func() {
		d.send("auction_end", outcome)
		if outcome.Sold && outcome.WinnerID != nil {
			log.Infof("Notify winner %s: you won %q at %s",
				*outcome.WinnerID, outcome.AuctionTitle, utils.FormatPrice(outcome.FinalPrice))
			log.Infof("Notify seller %s: %q sold at %s",
				outcome.SellerID, outcome.AuctionTitle, utils.FormatPrice(outcome.FinalPrice))
		} else {
			log.Infof("Notify seller %s: %q ended with no sale", outcome.SellerID, outcome.AuctionTitle)
		}
	})
}

func (d *Dispatcher) send(eventType string, payload any) {
	if d.broadcast == nil {
		return
	}
	message, err := json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{Type: eventType, Data: payload})
	if err != nil {
		log.Error("Error marshalling notification: ", err)
		return
	}
	d.broadcast(message)
}
