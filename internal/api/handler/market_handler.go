package handler

import (
	"net/http"
	"time"

	"github.com/evetabi/settlement/internal/api/middleware"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/evetabi/settlement/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketHandler serves market creation and query endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

// Create godoc
// POST /api/markets [JWT]
// Body: {"question":"...","options":["A","B"],"expires_at":"RFC3339",
// "resolution_mode":"AUTHORITY","resolver_id":"uuid"}
func (h *MarketHandler) Create(c *gin.Context) {
	var body struct {
		Question       string    `json:"question"        binding:"required"`
		Options        []string  `json:"options"         binding:"required,min=1"`
		ExpiresAt      time.Time `json:"expires_at"      binding:"required"`
		ResolutionMode *string   `json:"resolution_mode"`
		ResolverID     *string   `json:"resolver_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	req := domain.CreateMarketRequest{
		Question:  body.Question,
		Options:   body.Options,
		ExpiresAt: body.ExpiresAt,
	}
	if body.ResolutionMode != nil {
		mode := domain.ResolutionMode(*body.ResolutionMode)
		req.ResolutionMode = &mode
	}
	if body.ResolverID != nil {
		id, err := uuid.Parse(*body.ResolverID)
		if err != nil {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid resolver_id")
			return
		}
		req.ResolverID = &id
	}

	view, err := h.marketSvc.CreateMarket(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		respondDomainError(c, err, "could not create market")
		return
	}
	respondSuccess(c, http.StatusCreated, view)
}

// GetByID godoc
// GET /api/markets/:id
func (h *MarketHandler) GetByID(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	view, err := h.marketSvc.GetMarket(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "could not fetch market")
		return
	}
	respondSuccess(c, http.StatusOK, view)
}

// ListMarkets godoc
// GET /api/markets?status=resolved&page=1&limit=20
func (h *MarketHandler) ListMarkets(c *gin.Context) {
	status := c.Query("status")
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	markets, total, err := h.marketSvc.ListMarkets(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondDomainError(c, err, "could not list markets")
		return
	}
	respondList(c, markets, total, page, limit)
}

// Quote godoc
// GET /api/markets/:id/quote?option_id=uuid&side=YES&action=buy&quantity=10
func (h *MarketHandler) Quote(c *gin.Context) {
	marketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	optionID, err := uuid.Parse(c.Query("option_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid option_id")
		return
	}
	side, err := domain.ParseSide(c.Query("side"))
	if err != nil {
		respondDomainError(c, err, "")
		return
	}
	action := domain.TradeAction(c.DefaultQuery("action", string(domain.TradeBuy)))
	if action != domain.TradeBuy && action != domain.TradeSell {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "action must be buy or sell")
		return
	}
	qty, err := decimal.NewFromString(c.Query("quantity"))
	if err != nil {
		respondDomainError(c, domain.ErrInvalidQuantity, "")
		return
	}

	quote, err := h.marketSvc.Quote(c.Request.Context(), marketID, optionID, side, action, qty)
	if err != nil {
		respondDomainError(c, err, "could not quote trade")
		return
	}
	respondSuccess(c, http.StatusOK, quote)
}
