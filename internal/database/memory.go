package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bidworks/auction-engine/pkg/errors"
	"github.com/bidworks/auction-engine/pkg/types"
	"github.com/google/uuid"
)

// Memory is an in-memory Service used by unit tests and local development.
// Per-auction serialization comes from a sharded lock keyed by auction id
// instead of a database row lock; everything else behaves like the
// Postgres implementation, including rollback discarding all writes.
type Memory struct {
	mu       sync.RWMutex
	auctions map[string]types.Auction
	bids     map[string]map[string]memoryBid
	history  map[string][]types.PriceHistoryEntry
	rejected map[string]map[string]types.RejectedBidder
	ratings  map[string]types.RatingScore
	users    map[string]types.User
	orders   []types.Order
	locks    map[string]*sync.Mutex
	seq      uint64
}

type memoryBid struct {
	types.ProxyBid
	seq uint64
}

func NewMemory() *Memory {
	return &Memory{
		auctions: make(map[string]types.Auction),
		bids:     make(map[string]map[string]memoryBid),
		history:  make(map[string][]types.PriceHistoryEntry),
		rejected: make(map[string]map[string]types.RejectedBidder),
		ratings:  make(map[string]types.RatingScore),
		users:    make(map[string]types.User),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *Memory) Health() map[string]string {
	return map[string]string{"status": "up", "message": "in-memory store"}
}

func (m *Memory) Close() error { return nil }

// AddAuction seeds an auction row.
func (m *Memory) AddAuction(auction types.Auction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if auction.CurrentPrice == 0 {
		auction.CurrentPrice = auction.StartingPrice
	}
	m.auctions[auction.ID] = auction
}

func (m *Memory) CreateAuction(_ context.Context, auction types.Auction) (types.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if auction.ID == "" {
		auction.ID = uuid.New().String()
	}
	auction.CurrentPrice = auction.StartingPrice
	auction.CreatedAt = time.Now()
	auction.UpdatedAt = auction.CreatedAt
	m.auctions[auction.ID] = auction
	return auction, nil
}

// StandingBids exposes the proxy bid ledger for tests and tooling, ordered
// like the transactional read.
func (m *Memory) StandingBids(auctionID string) []types.ProxyBid {
	tx := &memoryTx{store: m}
	bids, _ := tx.ProxyBids(context.Background(), auctionID)
	return bids
}

// AddUser seeds a user row.
func (m *Memory) AddUser(user types.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.Email] = user
}

// SetRating seeds a bidder's aggregate rating.
func (m *Memory) SetRating(userID string, score types.RatingScore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratings[userID] = score
}

// Orders returns a copy of all created orders.
func (m *Memory) Orders() []types.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Order(nil), m.orders...)
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[email]
	if !ok {
		return types.User{}, errors.New(errors.ErrNotFound, "user not found")
	}
	return user, nil
}

func (m *Memory) GetAuctionByID(_ context.Context, auctionID string) (types.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	auction, ok := m.auctions[auctionID]
	if !ok {
		return types.Auction{}, errors.New(errors.ErrNotFound, "auction not found")
	}
	return auction, nil
}

func (m *Memory) OpenAuctions(_ context.Context) ([]types.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	var open []types.Auction
	for _, a := range m.auctions {
		if a.ClosedAt == nil && a.CloseAt.After(now) {
			open = append(open, a)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CloseAt.Before(open[j].CloseAt) })
	return open, nil
}

func (m *Memory) PriceHistory(_ context.Context, auctionID string) ([]types.PriceHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.PriceHistoryEntry(nil), m.history[auctionID]...), nil
}

func (m *Memory) RejectedBidders(_ context.Context, auctionID string) ([]types.RejectedBidder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rejected []types.RejectedBidder
	for _, r := range m.rejected[auctionID] {
		rejected = append(rejected, r)
	}
	sort.Slice(rejected, func(i, j int) bool { return rejected[i].CreatedAt.Before(rejected[j].CreatedAt) })
	return rejected, nil
}

func (m *Memory) DeleteRejectedBidder(_ context.Context, auctionID, bidderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rejected[auctionID], bidderID)
	return nil
}

func (m *Memory) GetRatingScore(_ context.Context, userID string) (types.RatingScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	score, ok := m.ratings[userID]
	if !ok {
		return types.NoRating(), nil
	}
	return score, nil
}

func (m *Memory) HasAnyReviews(_ context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ratings[userID].Reviewed, nil
}

func (m *Memory) CreateOrder(_ context.Context, order types.Order) (types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.CreatedAt = time.Now()
	m.orders = append(m.orders, order)
	return order, nil
}

func (m *Memory) ExpiredUnnotified(_ context.Context, now time.Time) ([]types.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var expired []types.Auction
	for _, a := range m.auctions {
		if !a.CloseAt.After(now) && !a.EndNotified {
			expired = append(expired, a)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].CloseAt.Before(expired[j].CloseAt) })
	return expired, nil
}

func (m *Memory) ClaimEndNotification(_ context.Context, auctionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	auction, ok := m.auctions[auctionID]
	if !ok || auction.EndNotified {
		return false, nil
	}
	auction.EndNotified = true
	m.auctions[auctionID] = auction
	return true, nil
}

func (m *Memory) MarkClosed(_ context.Context, auctionID string, sale types.SaleState, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	auction, ok := m.auctions[auctionID]
	if !ok {
		return errors.New(errors.ErrNotFound, "auction not found")
	}
	auction.Sale = sale
	auction.ClosedAt = &closedAt
	m.auctions[auctionID] = auction
	return nil
}

func (m *Memory) auctionLock(auctionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[auctionID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[auctionID] = lock
	}
	return lock
}

// BeginAuctionTx takes the auction's lock and snapshots its state so a
// rollback can discard every write made inside the section.
func (m *Memory) BeginAuctionTx(_ context.Context, auctionID string) (AuctionTx, error) {
	lock := m.auctionLock(auctionID)
	lock.Lock()

	m.mu.RLock()
	auction, ok := m.auctions[auctionID]
	m.mu.RUnlock()
	if !ok {
		lock.Unlock()
		return nil, errors.New(errors.ErrNotFound, "auction not found")
	}

	return &memoryTx{
		store:     m,
		lock:      lock,
		auctionID: auctionID,
		auction:   auction,
		snapshot:  m.snapshot(auctionID),
	}, nil
}

type auctionSnapshot struct {
	auction  types.Auction
	bids     map[string]memoryBid
	history  []types.PriceHistoryEntry
	rejected map[string]types.RejectedBidder
}

func (m *Memory) snapshot(auctionID string) auctionSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bids := make(map[string]memoryBid, len(m.bids[auctionID]))
	for k, v := range m.bids[auctionID] {
		bids[k] = v
	}
	rejected := make(map[string]types.RejectedBidder, len(m.rejected[auctionID]))
	for k, v := range m.rejected[auctionID] {
		rejected[k] = v
	}
	return auctionSnapshot{
		auction:  m.auctions[auctionID],
		bids:     bids,
		history:  append([]types.PriceHistoryEntry(nil), m.history[auctionID]...),
		rejected: rejected,
	}
}

type memoryTx struct {
	store     *Memory
	lock      *sync.Mutex
	auctionID string
	auction   types.Auction
	snapshot  auctionSnapshot
	done      bool
}

func (t *memoryTx) Auction() types.Auction {
	return t.auction
}

func (t *memoryTx) UpdateAuction(_ context.Context, auction types.Auction) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	auction.UpdatedAt = time.Now()
	t.store.auctions[auction.ID] = auction
	return nil
}

func (t *memoryTx) UpsertProxyBid(_ context.Context, auctionID, bidderID string, maxPrice int64) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.bids[auctionID] == nil {
		t.store.bids[auctionID] = make(map[string]memoryBid)
	}
	t.store.seq++
	t.store.bids[auctionID][bidderID] = memoryBid{
		ProxyBid: types.ProxyBid{
			AuctionID: auctionID,
			BidderID:  bidderID,
			MaxPrice:  maxPrice,
			UpdatedAt: time.Now(),
		},
		seq: t.store.seq,
	}
	return nil
}

func (t *memoryTx) ProxyBids(_ context.Context, auctionID string) ([]types.ProxyBid, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	entries := make([]memoryBid, 0, len(t.store.bids[auctionID]))
	for _, b := range t.store.bids[auctionID] {
		entries = append(entries, b)
	}
	// Highest maximum first; the earlier bid wins ties.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].MaxPrice != entries[j].MaxPrice {
			return entries[i].MaxPrice > entries[j].MaxPrice
		}
		return entries[i].seq < entries[j].seq
	})
	bids := make([]types.ProxyBid, len(entries))
	for i, e := range entries {
		bids[i] = e.ProxyBid
	}
	return bids, nil
}

func (t *memoryTx) DeleteProxyBid(_ context.Context, auctionID, bidderID string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.bids[auctionID][bidderID]; !ok {
		return errors.New(errors.ErrNoStandingBid, "bidder has no standing bid on this auction")
	}
	delete(t.store.bids[auctionID], bidderID)
	return nil
}

func (t *memoryTx) AppendHistory(_ context.Context, auctionID, bidderID string, price int64) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.history[auctionID] = append(t.store.history[auctionID], types.PriceHistoryEntry{
		ID:        uuid.New().String(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Price:     price,
		CreatedAt: time.Now(),
	})
	return nil
}

func (t *memoryTx) DeleteBidderHistory(_ context.Context, auctionID, bidderID string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	kept := t.store.history[auctionID][:0]
	for _, e := range t.store.history[auctionID] {
		if e.BidderID != bidderID {
			kept = append(kept, e)
		}
	}
	t.store.history[auctionID] = kept
	return nil
}

func (t *memoryTx) IsBidderRejected(_ context.Context, auctionID, bidderID string) (bool, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.rejected[auctionID][bidderID]
	return ok, nil
}

func (t *memoryTx) InsertRejectedBidder(_ context.Context, auctionID, bidderID, sellerID string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.rejected[auctionID] == nil {
		t.store.rejected[auctionID] = make(map[string]types.RejectedBidder)
	}
	if _, ok := t.store.rejected[auctionID][bidderID]; ok {
		return nil
	}
	t.store.rejected[auctionID][bidderID] = types.RejectedBidder{
		AuctionID: auctionID,
		BidderID:  bidderID,
		SellerID:  sellerID,
		CreatedAt: time.Now(),
	}
	return nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.lock.Unlock()
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true

	t.store.mu.Lock()
	t.store.auctions[t.auctionID] = t.snapshot.auction
	t.store.bids[t.auctionID] = t.snapshot.bids
	t.store.history[t.auctionID] = t.snapshot.history
	t.store.rejected[t.auctionID] = t.snapshot.rejected
	t.store.mu.Unlock()

	t.lock.Unlock()
	return nil
}
