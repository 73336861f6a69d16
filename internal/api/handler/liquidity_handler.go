package handler

import (
	"net/http"

	"github.com/evetabi/settlement/internal/api/middleware"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/evetabi/settlement/internal/service"
	"github.com/gin-gonic/gin"
)

// LiquidityHandler serves the shared pool endpoints.
type LiquidityHandler struct {
	liquiditySvc *service.LiquidityService
}

// NewLiquidityHandler creates a LiquidityHandler.
func NewLiquidityHandler(liquiditySvc *service.LiquidityService) *LiquidityHandler {
	return &LiquidityHandler{liquiditySvc: liquiditySvc}
}

// Add godoc
// POST /api/markets/:id/liquidity [JWT]
// Body: {"amount":"250.00"}
func (h *LiquidityHandler) Add(c *gin.Context) {
	marketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	amount, err := domain.ParseMicros(body.Amount)
	if err != nil {
		respondDomainError(c, err, "")
		return
	}

	res, err := h.liquiditySvc.AddLiquidity(c.Request.Context(), middleware.GetActor(c), marketID, amount)
	if err != nil {
		respondDomainError(c, err, "could not add liquidity")
		return
	}
	respondSuccess(c, http.StatusCreated, res)
}

// Withdraw godoc
// POST /api/markets/:id/liquidity/withdraw [JWT]
// Body: {"shares":1000000}
func (h *LiquidityHandler) Withdraw(c *gin.Context) {
	marketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body struct {
		Shares int64 `json:"shares" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	res, err := h.liquiditySvc.RemoveLiquidity(c.Request.Context(), middleware.GetActor(c), marketID, body.Shares)
	if err != nil {
		respondDomainError(c, err, "could not remove liquidity")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

// Claim godoc
// POST /api/markets/:id/liquidity/claim [JWT]
func (h *LiquidityHandler) Claim(c *gin.Context) {
	marketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	res, err := h.liquiditySvc.ClaimLpRewards(c.Request.Context(), middleware.GetActor(c), marketID)
	if err != nil {
		respondDomainError(c, err, "could not claim rewards")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

// Mine godoc
// GET /api/markets/:id/liquidity/me [JWT]
func (h *LiquidityHandler) Mine(c *gin.Context) {
	marketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	pos, err := h.liquiditySvc.GetPosition(c.Request.Context(), middleware.GetActor(c), marketID)
	if err != nil {
		respondDomainError(c, err, "could not fetch position")
		return
	}
	respondSuccess(c, http.StatusOK, pos)
}
