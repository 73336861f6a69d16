package handler

import (
	"net/http"

	"github.com/evetabi/settlement/internal/service"
	"github.com/gin-gonic/gin"
)

// SettlementHandler serves settlement record verification.
type SettlementHandler struct {
	settlementSvc *service.SettlementService
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(settlementSvc *service.SettlementService) *SettlementHandler {
	return &SettlementHandler{settlementSvc: settlementSvc}
}

// Verify godoc
// GET /api/settlements/:id/verify
func (h *SettlementHandler) Verify(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	v, err := h.settlementSvc.VerifySettlement(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "could not verify settlement")
		return
	}
	respondSuccess(c, http.StatusOK, v)
}

// ListByMarket godoc
// GET /api/markets/:id/settlements
func (h *SettlementHandler) ListByMarket(c *gin.Context) {
	marketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	records, err := h.settlementSvc.ListSettlements(c.Request.Context(), marketID)
	if err != nil {
		respondDomainError(c, err, "could not list settlements")
		return
	}
	respondSuccess(c, http.StatusOK, records)
}
