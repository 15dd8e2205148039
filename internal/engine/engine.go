package engine

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/bidworks/auction-engine/internal/database"
	"github.com/bidworks/auction-engine/pkg/types"
	"github.com/charmbracelet/log"
)

// A bidder's aggregate rating must exceed this ratio of positive reviews
// before they may bid on any auction.
const ratingThreshold = 0.8

// RatingService provides bidder reputation lookups.
type RatingService interface {
	GetRatingScore(ctx context.Context, userID string) (types.RatingScore, error)
	HasAnyReviews(ctx context.Context, userID string) (bool, error)
}

// OrderService creates the downstream order when an auction is won. The
// post-sale workflow behind it is not this engine's concern.
type OrderService interface {
	CreateOrder(ctx context.Context, order types.Order) (types.Order, error)
}

// Notifier receives committed outcomes for asynchronous fan-out. Calls must
// not block: the engine invokes them after commit, outside any lock.
type Notifier interface {
	BidPlaced(outcome types.BidOutcome)
	BidderRejected(outcome types.RejectionOutcome)
	AuctionEnded(outcome types.ClosureOutcome)
}

// SettingsProvider exposes the process-wide auto-extend configuration.
// Implementations may hot-reload the values between calls.
type SettingsProvider interface {
	AutoExtendSettings() (trigger, extend time.Duration)
}

// Engine is the transactional core of the auction: bid resolution, bidder
// rejection and end-of-auction closure. All state lives in the store; the
// engine itself is stateless and safe for concurrent use.
type Engine struct {
	db       database.Service
	ratings  RatingService
	orders   OrderService
	notifier Notifier
	settings SettingsProvider
	clock    clock.Clock
}

func New(db database.Service, ratings RatingService, orders OrderService, notifier Notifier, settings SettingsProvider, clk clock.Clock) *Engine {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Engine{
		db:       db,
		ratings:  ratings,
		orders:   orders,
		notifier: notifier,
		settings: settings,
		clock:    clk,
	}
}

// StartSweeper runs the close resolver on a fixed interval until the
// context is cancelled.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := e.clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if _, err := e.ResolveExpiredAuctions(ctx); err != nil {
					log.Error("Error resolving expired auctions: ", err)
				}
			}
		}
	}()
}

type nopNotifier struct{}

func (nopNotifier) BidPlaced(types.BidOutcome)            {}
func (nopNotifier) BidderRejected(types.RejectionOutcome) {}
func (nopNotifier) AuctionEnded(types.ClosureOutcome)     {}
