package api

import (
	"net/http"

	"github.com/bidworks/auction-engine/internal/auth"
	"github.com/bidworks/auction-engine/internal/database"
	"github.com/bidworks/auction-engine/internal/engine"
	"github.com/bidworks/auction-engine/pkg/errors"
	"github.com/gin-gonic/gin"
)

// Handler exposes the engine's operations over HTTP for callers that do
// not hold a websocket connection (seller tooling, server-rendered pages).
type Handler struct {
	engine *engine.Engine
	db     database.Service
}

func NewHandler(eng *engine.Engine, db database.Service) *Handler {
	return &Handler{engine: eng, db: db}
}

// Router builds the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", h.health)

	authed := router.Group("/api", h.sessionMiddleware())
	{
		authed.GET("/auctions/:id/bidding", h.getBiddingInfo)
		authed.POST("/auctions/:id/bids", h.placeBid)
		authed.GET("/auctions/:id/rejections", h.listRejections)
		authed.POST("/auctions/:id/rejections", h.rejectBidder)
		authed.DELETE("/auctions/:id/rejections/:bidderID", h.unrejectBidder)
	}

	return router
}

const sessionKey = "session"

// sessionMiddleware resolves the caller's identity from the session cookie.
func (h *Handler) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := auth.SessionFromRequest(c.Request)
		if err != nil {
			jsonError(c, http.StatusUnauthorized, errors.From(err))
			c.Abort()
			return
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) auth.Session {
	return c.MustGet(sessionKey).(auth.Session)
}

func (h *Handler) health(c *gin.Context) {
	stats := h.db.Health()
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, stats)
}

func (h *Handler) getBiddingInfo(c *gin.Context) {
	auctionID := c.Param("id")

	auction, err := h.db.GetAuctionByID(c.Request.Context(), auctionID)
	if err != nil {
		jsonDomainError(c, err)
		return
	}
	history, err := h.db.PriceHistory(c.Request.Context(), auctionID)
	if err != nil {
		jsonDomainError(c, err)
		return
	}

	jsonResponse(c, http.StatusOK, gin.H{
		"auction": auction,
		"history": history,
	})
}

func (h *Handler) placeBid(c *gin.Context) {
	var req struct {
		Amount int64 `json:"amount" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, errors.New(errors.ErrBadMessageFormat, "invalid bid payload"))
		return
	}

	session := sessionFrom(c)
	outcome, err := h.engine.PlaceBid(c.Request.Context(), c.Param("id"), session.UserID, req.Amount)
	if err != nil {
		jsonDomainError(c, err)
		return
	}
	jsonResponse(c, http.StatusOK, outcome)
}

func (h *Handler) listRejections(c *gin.Context) {
	rejected, err := h.db.RejectedBidders(c.Request.Context(), c.Param("id"))
	if err != nil {
		jsonDomainError(c, err)
		return
	}
	jsonResponse(c, http.StatusOK, rejected)
}

func (h *Handler) rejectBidder(c *gin.Context) {
	var req struct {
		BidderID string `json:"bidder_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, errors.New(errors.ErrBadMessageFormat, "invalid rejection payload"))
		return
	}

	session := sessionFrom(c)
	outcome, err := h.engine.RejectBidder(c.Request.Context(), c.Param("id"), req.BidderID, session.UserID)
	if err != nil {
		jsonDomainError(c, err)
		return
	}
	jsonResponse(c, http.StatusOK, outcome)
}

func (h *Handler) unrejectBidder(c *gin.Context) {
	session := sessionFrom(c)
	err := h.engine.UnrejectBidder(c.Request.Context(), c.Param("id"), c.Param("bidderID"), session.UserID)
	if err != nil {
		jsonDomainError(c, err)
		return
	}
	jsonResponse(c, http.StatusOK, gin.H{"unrejected": true})
}

func jsonResponse(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"status": status,
		"data":   data,
	})
}

func jsonError(c *gin.Context, status int, appErr *errors.AppError) {
	c.JSON(status, gin.H{
		"status": status,
		"error":  appErr,
	})
}

func jsonDomainError(c *gin.Context, err error) {
	appErr := errors.From(err)
	jsonError(c, errors.HTTPStatus(appErr.Code), appErr)
}
