package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/bidworks/auction-engine/configs"
	"github.com/bidworks/auction-engine/pkg/errors"
	"github.com/bidworks/auction-engine/pkg/types"
	"github.com/charmbracelet/log"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
)

// Service represents a service that interacts with a database.
type Service interface {
	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health() map[string]string

	// Close terminates the database connection.
	// It returns an error if the connection cannot be closed.
	Close() error

	// USER METHODS
	GetUserByEmail(ctx context.Context, email string) (types.User, error)

	// AUCTION METHODS
	CreateAuction(ctx context.Context, auction types.Auction) (types.Auction, error)
	GetAuctionByID(ctx context.Context, auctionID string) (types.Auction, error)
	OpenAuctions(ctx context.Context) ([]types.Auction, error)
	PriceHistory(ctx context.Context, auctionID string) ([]types.PriceHistoryEntry, error)
	RejectedBidders(ctx context.Context, auctionID string) ([]types.RejectedBidder, error)
	DeleteRejectedBidder(ctx context.Context, auctionID, bidderID string) error

	// RATING METHODS
	GetRatingScore(ctx context.Context, userID string) (types.RatingScore, error)
	HasAnyReviews(ctx context.Context, userID string) (bool, error)

	// ORDER METHODS
	CreateOrder(ctx context.Context, order types.Order) (types.Order, error)

	// CLOSE SWEEP METHODS
	ExpiredUnnotified(ctx context.Context, now time.Time) ([]types.Auction, error)
	ClaimEndNotification(ctx context.Context, auctionID string) (bool, error)
	MarkClosed(ctx context.Context, auctionID string, sale types.SaleState, closedAt time.Time) error

	// BeginAuctionTx opens the per-auction serialized section: a
	// transaction holding an exclusive row lock on the auction until
	// Commit or Rollback. No two sections on the same auction interleave;
	// sections on different auctions proceed in parallel.
	BeginAuctionTx(ctx context.Context, auctionID string) (AuctionTx, error)
}

// AuctionTx is the set of mutations permitted inside the serialized
// section. All writes to the auction record, the proxy bid ledger and the
// price history go through this interface and commit atomically.
type AuctionTx interface {
	// Auction returns the row snapshot taken under the lock.
	Auction() types.Auction

	UpdateAuction(ctx context.Context, auction types.Auction) error
	UpsertProxyBid(ctx context.Context, auctionID, bidderID string, maxPrice int64) error
	// ProxyBids returns the auction's standing bids ordered by max price
	// descending, earliest update first on ties.
	ProxyBids(ctx context.Context, auctionID string) ([]types.ProxyBid, error)
	DeleteProxyBid(ctx context.Context, auctionID, bidderID string) error
	AppendHistory(ctx context.Context, auctionID, bidderID string, price int64) error
	DeleteBidderHistory(ctx context.Context, auctionID, bidderID string) error
	IsBidderRejected(ctx context.Context, auctionID, bidderID string) (bool, error)
	InsertRejectedBidder(ctx context.Context, auctionID, bidderID, sellerID string) error

	Commit() error
	Rollback() error
}

type service struct {
	db *sql.DB
}

var dbInstance *service

func New(cfg *configs.Config) Service {
	// Reuse Connection
	if dbInstance != nil {
		return dbInstance
	}
	dbConfig := cfg.Database
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.Name,
		dbConfig.SSLMode,
	)
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatal("Error opening database: ", err)
	}

	dbInstance = &service{
		db: db,
	}
	return dbInstance
}

// Health checks the health of the database connection by pinging the database.
// It returns a map with keys indicating various health statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	// Ping the database
	err := s.db.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	return stats
}

// Close closes the database connection.
func (s *service) Close() error {
	log.Info("Disconnected from database")
	return s.db.Close()
}

const auctionColumns = `
            "id",
            "sellerId",
            "title",
            "startingPrice",
            "stepPrice",
            "buyNowPrice",
            "currentPrice",
            "leadingBidderId",
            "leadingMaxPrice",
            "closeAt",
            "autoExtend",
            "allowUnratedBidders",
            "isSold",
            "closedAt",
            "endNotified",
            "createdAt",
            "updatedAt"`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (types.Auction, error) {
	var auction types.Auction
	err := row.Scan(
		&auction.ID,
		&auction.SellerID,
		&auction.Title,
		&auction.StartingPrice,
		&auction.StepPrice,
		&auction.BuyNowPrice,
		&auction.CurrentPrice,
		&auction.LeadingBidderID,
		&auction.LeadingMaxPrice,
		&auction.CloseAt,
		&auction.AutoExtend,
		&auction.AllowUnratedBidders,
		&auction.Sale,
		&auction.ClosedAt,
		&auction.EndNotified,
		&auction.CreatedAt,
		&auction.UpdatedAt,
	)
	return auction, err
}

func (s *service) GetUserByEmail(ctx context.Context, email string) (types.User, error) {
	var user types.User
	err := s.db.QueryRowContext(ctx,
		`SELECT "id", "name", "email", "role" FROM public."Users" WHERE "email" = $1`,
		email,
	).Scan(&user.ID, &user.Name, &user.Email, &user.Role)
	if err == sql.ErrNoRows {
		return types.User{}, errors.New(errors.ErrNotFound, "user not found")
	}
	if err != nil {
		return types.User{}, fmt.Errorf("error getting user by email: %w", err)
	}
	return user, nil
}

// CreateAuction inserts a new auction row. The visible price always opens
// at the starting price.
func (s *service) CreateAuction(ctx context.Context, auction types.Auction) (types.Auction, error) {
	query := `
        INSERT INTO public."Auctions" (
            "sellerId", "title", "startingPrice", "stepPrice", "buyNowPrice",
            "currentPrice", "closeAt", "autoExtend", "allowUnratedBidders"
        )
        VALUES ($1, $2, $3, $4, $5, $3, $6, $7, $8)
        RETURNING ` + auctionColumns
	created, err := scanAuction(s.db.QueryRowContext(ctx, query,
		auction.SellerID,
		auction.Title,
		auction.StartingPrice,
		auction.StepPrice,
		auction.BuyNowPrice,
		auction.CloseAt,
		auction.AutoExtend,
		auction.AllowUnratedBidders,
	))
	if err != nil {
		return types.Auction{}, errors.Wrap(err, "error creating auction")
	}
	return created, nil
}

func (s *service) GetAuctionByID(ctx context.Context, auctionID string) (types.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM public."Auctions" WHERE "id" = $1`
	auction, err := scanAuction(s.db.QueryRowContext(ctx, query, auctionID))
	if err == sql.ErrNoRows {
		return types.Auction{}, errors.New(errors.ErrNotFound, "auction not found")
	}
	if err != nil {
		return types.Auction{}, fmt.Errorf("error getting auction by id: %w", err)
	}
	return auction, nil
}

func (s *service) OpenAuctions(ctx context.Context) ([]types.Auction, error) {
	query := `
        SELECT ` + auctionColumns + `
        FROM public."Auctions"
        WHERE "closedAt" IS NULL AND "closeAt" > now()
        ORDER BY "closeAt" ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error getting open auctions: %w", err)
	}
	defer rows.Close()

	var auctions []types.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning auction: %w", err)
		}
		auctions = append(auctions, auction)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over auctions: %w", err)
	}
	return auctions, nil
}

func (s *service) PriceHistory(ctx context.Context, auctionID string) ([]types.PriceHistoryEntry, error) {
	query := `
        SELECT "id", "auctionId", "bidderId", "price", "createdAt"
        FROM public."PriceHistory"
        WHERE "auctionId" = $1
        ORDER BY "createdAt" ASC`
	rows, err := s.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("error getting price history: %w", err)
	}
	defer rows.Close()

	var entries []types.PriceHistoryEntry
	for rows.Next() {
		var e types.PriceHistoryEntry
		if err := rows.Scan(&e.ID, &e.AuctionID, &e.BidderID, &e.Price, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning price history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over price history: %w", err)
	}
	return entries, nil
}

func (s *service) RejectedBidders(ctx context.Context, auctionID string) ([]types.RejectedBidder, error) {
	query := `
        SELECT "auctionId", "bidderId", "sellerId", "createdAt"
        FROM public."RejectedBidders"
        WHERE "auctionId" = $1
        ORDER BY "createdAt" ASC`
	rows, err := s.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("error getting rejected bidders: %w", err)
	}
	defer rows.Close()

	var rejected []types.RejectedBidder
	for rows.Next() {
		var r types.RejectedBidder
		if err := rows.Scan(&r.AuctionID, &r.BidderID, &r.SellerID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning rejected bidder: %w", err)
		}
		rejected = append(rejected, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rejected bidders: %w", err)
	}
	return rejected, nil
}

func (s *service) DeleteRejectedBidder(ctx context.Context, auctionID, bidderID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM public."RejectedBidders" WHERE "auctionId" = $1 AND "bidderId" = $2`,
		auctionID, bidderID,
	)
	if err != nil {
		return fmt.Errorf("error deleting rejected bidder: %w", err)
	}
	return nil
}

// GetRatingScore computes the bidder's aggregate rating as the ratio of
// positive reviews. A user with no reviews gets the no-rating sentinel,
// which is distinct from a score of zero.
func (s *service) GetRatingScore(ctx context.Context, userID string) (types.RatingScore, error) {
	var positive, total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FILTER (WHERE "positive"), COUNT(*) FROM public."Reviews" WHERE "revieweeId" = $1`,
		userID,
	).Scan(&positive, &total)
	if err != nil {
		return types.RatingScore{}, fmt.Errorf("error getting rating score: %w", err)
	}
	if total == 0 {
		return types.NoRating(), nil
	}
	return types.NewRatingScore(float64(positive) / float64(total)), nil
}

func (s *service) HasAnyReviews(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM public."Reviews" WHERE "revieweeId" = $1)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking reviews: %w", err)
	}
	return exists, nil
}

func (s *service) CreateOrder(ctx context.Context, order types.Order) (types.Order, error) {
	query := `
        INSERT INTO public."Orders" ("id", "auctionId", "sellerId", "buyerId", "finalPrice", "status")
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING "id", "auctionId", "sellerId", "buyerId", "finalPrice", "status", "createdAt"`
	var created types.Order
	err := s.db.QueryRowContext(ctx, query,
		order.ID, order.AuctionID, order.SellerID, order.BuyerID, order.FinalPrice, order.Status,
	).Scan(
		&created.ID,
		&created.AuctionID,
		&created.SellerID,
		&created.BuyerID,
		&created.FinalPrice,
		&created.Status,
		&created.CreatedAt,
	)
	if err != nil {
		return types.Order{}, errors.Wrap(err, "error creating order")
	}

	log.Debugf("Order %s created for auction %s at %d", created.ID, created.AuctionID, created.FinalPrice)

	return created, nil
}

func (s *service) ExpiredUnnotified(ctx context.Context, now time.Time) ([]types.Auction, error) {
	query := `
        SELECT ` + auctionColumns + `
        FROM public."Auctions"
        WHERE "closeAt" <= $1 AND "endNotified" = false
        ORDER BY "closeAt" ASC`
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("error getting expired auctions: %w", err)
	}
	defer rows.Close()

	var auctions []types.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning auction: %w", err)
		}
		auctions = append(auctions, auction)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over auctions: %w", err)
	}
	return auctions, nil
}

// ClaimEndNotification atomically marks the auction as processed by the
// close resolver. It returns false when another sweep already claimed it,
// which is what keeps overlapping sweeps from creating two orders.
func (s *service) ClaimEndNotification(ctx context.Context, auctionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE public."Auctions" SET "endNotified" = true, "updatedAt" = now()
         WHERE "id" = $1 AND "endNotified" = false`,
		auctionID,
	)
	if err != nil {
		return false, fmt.Errorf("error claiming end notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error claiming end notification: %w", err)
	}
	return affected > 0, nil
}

func (s *service) MarkClosed(ctx context.Context, auctionID string, sale types.SaleState, closedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE public."Auctions" SET "isSold" = $1, "closedAt" = $2, "updatedAt" = now() WHERE "id" = $3`,
		sale, closedAt, auctionID,
	)
	if err != nil {
		return fmt.Errorf("error marking auction closed: %w", err)
	}
	return nil
}
