package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/bidworks/auction-engine/internal/auth"
	"github.com/bidworks/auction-engine/internal/database"
	"github.com/bidworks/auction-engine/internal/engine"
	"github.com/bidworks/auction-engine/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fixedSettings struct{}

func (fixedSettings) AutoExtendSettings() (time.Duration, time.Duration) {
	return 5 * time.Minute, 10 * time.Minute
}

// testRouter wires the handlers behind a stub session so handler behavior
// can be tested without minting a real session cookie.
func testRouter(t *testing.T, userID string) (*gin.Engine, *database.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := database.NewMemory()
	clk := fakeclock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	eng := engine.New(store, store, store, nil, fixedSettings{}, clk)
	h := NewHandler(eng, store)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(sessionKey, auth.Session{UserID: userID, Email: userID + "@example.com"})
	})
	router.GET("/api/auctions/:id/bidding", h.getBiddingInfo)
	router.POST("/api/auctions/:id/bids", h.placeBid)
	router.GET("/api/auctions/:id/rejections", h.listRejections)
	router.POST("/api/auctions/:id/rejections", h.rejectBidder)
	router.DELETE("/api/auctions/:id/rejections/:bidderID", h.unrejectBidder)

	store.AddAuction(types.Auction{
		ID:                  "a1",
		SellerID:            "seller",
		Title:               "Vintage camera",
		StartingPrice:       100_000,
		StepPrice:           10_000,
		CloseAt:             clk.Now().Add(time.Hour),
		AllowUnratedBidders: true,
	})
	return router, store
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPlaceBidEndpoint(t *testing.T) {
	router, store := testRouter(t, "alice")

	w := doJSON(router, http.MethodPost, "/api/auctions/a1/bids", `{"amount": 150000}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"newPrice":100000`)
	require.Len(t, store.StandingBids("a1"), 1)
}

func TestPlaceBidEndpointRejectsBadPayload(t *testing.T) {
	router, _ := testRouter(t, "alice")

	for _, body := range []string{``, `{}`, `{"amount": -5}`, `{"amount": "high"}`} {
		w := doJSON(router, http.MethodPost, "/api/auctions/a1/bids", body)
		require.Equal(t, http.StatusBadRequest, w.Code, "payload %q", body)
	}
}

func TestPlaceBidEndpointMapsDomainErrors(t *testing.T) {
	router, _ := testRouter(t, "seller")

	// The seller bidding on their own auction is forbidden.
	w := doJSON(router, http.MethodPost, "/api/auctions/a1/bids", `{"amount": 150000}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, http.MethodPost, "/api/auctions/missing/bids", `{"amount": 150000}`)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestBiddingInfoEndpoint(t *testing.T) {
	router, _ := testRouter(t, "alice")
	doJSON(router, http.MethodPost, "/api/auctions/a1/bids", `{"amount": 150000}`)

	w := doJSON(router, http.MethodGet, "/api/auctions/a1/bidding", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"auction"`)
	require.Contains(t, w.Body.String(), `"history"`)
}

func TestRejectionEndpoints(t *testing.T) {
	aliceRouter, store := testRouter(t, "alice")
	doJSON(aliceRouter, http.MethodPost, "/api/auctions/a1/bids", `{"amount": 150000}`)

	sellerRouter := routerFor(t, store, "seller")

	w := doJSON(sellerRouter, http.MethodPost, "/api/auctions/a1/rejections", `{"bidder_id": "alice"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(sellerRouter, http.MethodGet, "/api/auctions/a1/rejections", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "alice")

	// Only the seller can reject.
	w = doJSON(aliceRouter, http.MethodPost, "/api/auctions/a1/rejections", `{"bidder_id": "seller"}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(sellerRouter, http.MethodDelete, "/api/auctions/a1/rejections/alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(sellerRouter, http.MethodGet, "/api/auctions/a1/rejections", "")
	require.NotContains(t, w.Body.String(), "alice")
}

// routerFor builds a second router over the same store for a different
// caller identity.
func routerFor(t *testing.T, store *database.Memory, userID string) *gin.Engine {
	t.Helper()
	clk := fakeclock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	eng := engine.New(store, store, store, nil, fixedSettings{}, clk)
	h := NewHandler(eng, store)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(sessionKey, auth.Session{UserID: userID})
	})
	router.POST("/api/auctions/:id/rejections", h.rejectBidder)
	router.GET("/api/auctions/:id/rejections", h.listRejections)
	router.DELETE("/api/auctions/:id/rejections/:bidderID", h.unrejectBidder)
	return router
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := database.NewMemory()
	clk := fakeclock.NewFakeClock(time.Now())
	h := NewHandler(engine.New(store, store, store, nil, fixedSettings{}, clk), store)
	router := h.Router()

	w := doJSON(router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"up"`)
}

func TestAPIRequiresSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := database.NewMemory()
	clk := fakeclock.NewFakeClock(time.Now())
	h := NewHandler(engine.New(store, store, store, nil, fixedSettings{}, clk), store)
	router := h.Router()

	w := doJSON(router, http.MethodGet, "/api/auctions/a1/bidding", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
