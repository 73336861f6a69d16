package handler

import (
	"net/http"

	"github.com/evetabi/settlement/internal/api/middleware"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/evetabi/settlement/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// TradeHandler serves curve buy and sell endpoints.
type TradeHandler struct {
	tradeSvc *service.TradeService
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(tradeSvc *service.TradeService) *TradeHandler {
	return &TradeHandler{tradeSvc: tradeSvc}
}

type tradeBody struct {
	Side     string `json:"side"     binding:"required"`
	Quantity string `json:"quantity" binding:"required"`
}

// Buy godoc
// POST /api/markets/:id/options/:optionId/buy [JWT]
// Body: {"side":"YES","quantity":"10.5"}
func (h *TradeHandler) Buy(c *gin.Context) { h.trade(c, domain.TradeBuy) }

// Sell godoc
// POST /api/markets/:id/options/:optionId/sell [JWT]
func (h *TradeHandler) Sell(c *gin.Context) { h.trade(c, domain.TradeSell) }

func (h *TradeHandler) trade(c *gin.Context, action domain.TradeAction) {
	marketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	optionID, ok := uuidParam(c, "optionId")
	if !ok {
		return
	}

	var body tradeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	side, err := domain.ParseSide(body.Side)
	if err != nil {
		respondDomainError(c, err, "")
		return
	}
	qty, err := decimal.NewFromString(body.Quantity)
	if err != nil {
		respondDomainError(c, domain.ErrInvalidQuantity, "")
		return
	}

	actor := middleware.GetActor(c)
	var trade *domain.Trade
	if action == domain.TradeBuy {
		trade, err = h.tradeSvc.Buy(c.Request.Context(), actor, marketID, optionID, side, qty)
	} else {
		trade, err = h.tradeSvc.Sell(c.Request.Context(), actor, marketID, optionID, side, qty)
	}
	if err != nil {
		respondDomainError(c, err, "could not execute trade")
		return
	}
	respondSuccess(c, http.StatusCreated, trade)
}

// Holdings godoc
// GET /api/markets/:id/holdings/me [JWT]
func (h *TradeHandler) Holdings(c *gin.Context) {
	marketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	holdings, err := h.tradeSvc.Holdings(c.Request.Context(), middleware.GetActor(c), marketID)
	if err != nil {
		respondDomainError(c, err, "could not fetch holdings")
		return
	}
	respondSuccess(c, http.StatusOK, holdings)
}
