package types

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// SaleState is the tri-state outcome of an auction. It maps to a nullable
// boolean column: NULL while the auction is unresolved, true once sold,
// false once it ended without a sale.
type SaleState int

const (
	SaleUnresolved SaleState = iota
	SaleSold
	SaleUnsold
)

func (s SaleState) String() string {
	switch s {
	case SaleSold:
		return "sold"
	case SaleUnsold:
		return "unsold"
	default:
		return "unresolved"
	}
}

// Scan implements sql.Scanner for the nullable boolean representation.
func (s *SaleState) Scan(value any) error {
	if value == nil {
		*s = SaleUnresolved
		return nil
	}
	sold, ok := value.(bool)
	if !ok {
		return fmt.Errorf("cannot scan %T into SaleState", value)
	}
	if sold {
		*s = SaleSold
	} else {
		*s = SaleUnsold
	}
	return nil
}

// Value implements driver.Valuer.
func (s SaleState) Value() (driver.Value, error) {
	switch s {
	case SaleSold:
		return true, nil
	case SaleUnsold:
		return false, nil
	default:
		return nil, nil
	}
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Auction is one row of the auction record store. All prices are integer
// minor units (e.g. cents); they are never represented as floats.
type Auction struct {
	ID                  string     `json:"id"`
	SellerID            string     `json:"sellerId"`
	Title               string     `json:"title"`
	StartingPrice       int64      `json:"startingPrice"`
	StepPrice           int64      `json:"stepPrice"`
	BuyNowPrice         *int64     `json:"buyNowPrice,omitempty"`
	CurrentPrice        int64      `json:"currentPrice"`
	LeadingBidderID     *string    `json:"leadingBidderId,omitempty"`
	LeadingMaxPrice     *int64     `json:"leadingMaxPrice,omitempty"`
	CloseAt             time.Time  `json:"closeAt"`
	AutoExtend          bool       `json:"autoExtend"`
	AllowUnratedBidders bool       `json:"allowUnratedBidders"`
	Sale                SaleState  `json:"sale"`
	ClosedAt            *time.Time `json:"closedAt,omitempty"`
	EndNotified         bool       `json:"endNotified"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Open reports whether the auction can still accept bids at the given time.
func (a Auction) Open(now time.Time) bool {
	return a.Sale == SaleUnresolved && a.ClosedAt == nil && now.Before(a.CloseAt)
}

// ProxyBid is a bidder's standing maximum on one auction. There is at most
// one row per (auction, bidder); a new bid replaces the previous maximum.
type ProxyBid struct {
	AuctionID string    `json:"auctionId"`
	BidderID  string    `json:"bidderId"`
	MaxPrice  int64     `json:"maxPrice"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PriceHistoryEntry records one visible-price change. Entries are append
// only and never mutated; the rejection resolver is the only component
// allowed to delete them (expunging a banned bidder's trail).
type PriceHistoryEntry struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auctionId"`
	BidderID  string    `json:"bidderId"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"createdAt"`
}

// RejectedBidder is a seller-issued ban on one auction.
type RejectedBidder struct {
	AuctionID string    `json:"auctionId"`
	BidderID  string    `json:"bidderId"`
	SellerID  string    `json:"sellerId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Order struct {
	ID         string    `json:"id"`
	AuctionID  string    `json:"auctionId"`
	SellerID   string    `json:"sellerId"`
	BuyerID    string    `json:"buyerId"`
	FinalPrice int64     `json:"finalPrice"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RatingScore is a user's aggregate review ratio. The zero value means the
// user has no reviews at all, which is a distinct state from a score of 0.
type RatingScore struct {
	Ratio    float64 `json:"ratio"`
	Reviewed bool    `json:"reviewed"`
}

// NewRatingScore returns a score for a user with at least one review.
func NewRatingScore(ratio float64) RatingScore {
	return RatingScore{Ratio: ratio, Reviewed: true}
}

// NoRating is the sentinel for a user with no reviews yet.
func NoRating() RatingScore {
	return RatingScore{}
}

// BidOutcome is the committed result of a PlaceBid call. It carries enough
// of the previous state for notification dispatch to happen after commit.
type BidOutcome struct {
	AuctionID        string     `json:"auctionId"`
	AuctionTitle     string     `json:"auctionTitle"`
	SellerID         string     `json:"sellerId"`
	BidderID         string     `json:"bidderId"`
	Amount           int64      `json:"amount"`
	NewPrice         int64      `json:"newPrice"`
	NewLeaderID      string     `json:"newLeaderId"`
	PreviousPrice    int64      `json:"previousPrice"`
	PreviousLeaderID *string    `json:"previousLeaderId,omitempty"`
	PriceChanged     bool       `json:"priceChanged"`
	Sold             bool       `json:"sold"`
	Extended         bool       `json:"extended"`
	NewCloseAt       *time.Time `json:"newCloseAt,omitempty"`
}

// Winning reports whether the caller ended up as the leader.
func (o BidOutcome) Winning() bool {
	return o.NewLeaderID == o.BidderID
}

// RejectionOutcome is the committed result of a RejectBidder call.
type RejectionOutcome struct {
	AuctionID        string  `json:"auctionId"`
	AuctionTitle     string  `json:"auctionTitle"`
	SellerID         string  `json:"sellerId"`
	RejectedBidderID string  `json:"rejectedBidderId"`
	NewLeaderID      *string `json:"newLeaderId,omitempty"`
	NewPrice         int64   `json:"newPrice"`
	PreviousPrice    int64   `json:"previousPrice"`
	PreviousLeaderID *string `json:"previousLeaderId,omitempty"`
	WasLeader        bool    `json:"wasLeader"`
}

// ClosureOutcome is one processed auction from an expiry sweep.
type ClosureOutcome struct {
	AuctionID    string  `json:"auctionId"`
	AuctionTitle string  `json:"auctionTitle"`
	SellerID     string  `json:"sellerId"`
	WinnerID     *string `json:"winnerId,omitempty"`
	FinalPrice   int64   `json:"finalPrice"`
	OrderID      string  `json:"orderId,omitempty"`
	Sold         bool    `json:"sold"`
}
