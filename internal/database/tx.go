package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bidworks/auction-engine/pkg/errors"
	"github.com/bidworks/auction-engine/pkg/types"
)

// auctionTx is the Postgres implementation of AuctionTx. The row lock taken
// by SELECT ... FOR UPDATE in BeginAuctionTx serializes every read-modify-
// write sequence against the same auction; rows of other auctions stay
// untouched, so bids on different auctions proceed fully in parallel.
type auctionTx struct {
	tx      *sql.Tx
	auction types.Auction
}

// BeginAuctionTx starts a serializable transaction and locks the auction row.
func (s *service) BeginAuctionTx(ctx context.Context, auctionID string) (AuctionTx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}

	query := `SELECT ` + auctionColumns + ` FROM public."Auctions" WHERE "id" = $1 FOR UPDATE`
	auction, err := scanAuction(tx.QueryRowContext(ctx, query, auctionID))
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, errors.New(errors.ErrNotFound, "auction not found")
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("error getting auction by id in tx: %w", err)
	}

	return &auctionTx{tx: tx, auction: auction}, nil
}

func (t *auctionTx) Auction() types.Auction {
	return t.auction
}

func (t *auctionTx) UpdateAuction(ctx context.Context, auction types.Auction) error {
	query := `
        UPDATE public."Auctions"
        SET "currentPrice" = $1,
            "leadingBidderId" = $2,
            "leadingMaxPrice" = $3,
            "closeAt" = $4,
            "isSold" = $5,
            "closedAt" = $6,
            "updatedAt" = now()
        WHERE "id" = $7`
	_, err := t.tx.ExecContext(ctx, query,
		auction.CurrentPrice,
		auction.LeadingBidderID,
		auction.LeadingMaxPrice,
		auction.CloseAt,
		auction.Sale,
		auction.ClosedAt,
		auction.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating auction in tx: %w", err)
	}
	return nil
}

// UpsertProxyBid replaces the bidder's standing maximum. The unique
// constraint on ("auctionId", "bidderId") is what guarantees at most one
// live entry per pair.
func (t *auctionTx) UpsertProxyBid(ctx context.Context, auctionID, bidderID string, maxPrice int64) error {
	query := `
        INSERT INTO public."ProxyBids" ("auctionId", "bidderId", "maxPrice", "updatedAt")
        VALUES ($1, $2, $3, now())
        ON CONFLICT ("auctionId", "bidderId")
        DO UPDATE SET
            "maxPrice" = EXCLUDED."maxPrice",
            "updatedAt" = now()`
	_, err := t.tx.ExecContext(ctx, query, auctionID, bidderID, maxPrice)
	if err != nil {
		return fmt.Errorf("error upserting proxy bid in tx: %w", err)
	}
	return nil
}

func (t *auctionTx) ProxyBids(ctx context.Context, auctionID string) ([]types.ProxyBid, error) {
	query := `
        SELECT "auctionId", "bidderId", "maxPrice", "updatedAt"
        FROM public."ProxyBids"
        WHERE "auctionId" = $1
        ORDER BY "maxPrice" DESC, "updatedAt" ASC`
	rows, err := t.tx.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("error getting proxy bids in tx: %w", err)
	}
	defer rows.Close()

	var bids []types.ProxyBid
	for rows.Next() {
		var bid types.ProxyBid
		if err := rows.Scan(&bid.AuctionID, &bid.BidderID, &bid.MaxPrice, &bid.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning proxy bid: %w", err)
		}
		bids = append(bids, bid)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over proxy bids: %w", err)
	}
	return bids, nil
}

func (t *auctionTx) DeleteProxyBid(ctx context.Context, auctionID, bidderID string) error {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM public."ProxyBids" WHERE "auctionId" = $1 AND "bidderId" = $2`,
		auctionID, bidderID,
	)
	if err != nil {
		return fmt.Errorf("error deleting proxy bid in tx: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error deleting proxy bid in tx: %w", err)
	}
	if affected == 0 {
		return errors.New(errors.ErrNoStandingBid, "bidder has no standing bid on this auction")
	}
	return nil
}

func (t *auctionTx) AppendHistory(ctx context.Context, auctionID, bidderID string, price int64) error {
	query := `
        INSERT INTO public."PriceHistory" ("id", "auctionId", "bidderId", "price")
        VALUES (gen_random_uuid(), $1, $2, $3)`
	_, err := t.tx.ExecContext(ctx, query, auctionID, bidderID, price)
	if err != nil {
		return fmt.Errorf("error appending price history in tx: %w", err)
	}
	return nil
}

func (t *auctionTx) DeleteBidderHistory(ctx context.Context, auctionID, bidderID string) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM public."PriceHistory" WHERE "auctionId" = $1 AND "bidderId" = $2`,
		auctionID, bidderID,
	)
	if err != nil {
		return fmt.Errorf("error deleting bidder history in tx: %w", err)
	}
	return nil
}

func (t *auctionTx) IsBidderRejected(ctx context.Context, auctionID, bidderID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS (
            SELECT 1 FROM public."RejectedBidders"
            WHERE "auctionId" = $1 AND "bidderId" = $2
        )`,
		auctionID, bidderID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking rejected bidder in tx: %w", err)
	}
	return exists, nil
}

// InsertRejectedBidder records the ban, ignoring a duplicate so rejection
// stays idempotent.
func (t *auctionTx) InsertRejectedBidder(ctx context.Context, auctionID, bidderID, sellerID string) error {
	query := `
        INSERT INTO public."RejectedBidders" ("auctionId", "bidderId", "sellerId")
        VALUES ($1, $2, $3)
        ON CONFLICT ("auctionId", "bidderId") DO NOTHING`
	_, err := t.tx.ExecContext(ctx, query, auctionID, bidderID, sellerID)
	if err != nil {
		return fmt.Errorf("error inserting rejected bidder in tx: %w", err)
	}
	return nil
}

func (t *auctionTx) Commit() error {
	return t.tx.Commit()
}

func (t *auctionTx) Rollback() error {
	return t.tx.Rollback()
}
