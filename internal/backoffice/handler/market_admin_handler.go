package handler

import (
	"log"
	"net/http"

	"github.com/evetabi/settlement/internal/api/middleware"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/evetabi/settlement/internal/service"
	"github.com/gin-gonic/gin"
)

// MarketAdminHandler serves /admin/markets endpoints.
type MarketAdminHandler struct {
	marketSvc     *service.MarketService
	liquiditySvc  *service.LiquidityService
	resolutionSvc *service.ResolutionService
	settlementSvc *service.SettlementService
}

// NewMarketAdminHandler creates a MarketAdminHandler.
func NewMarketAdminHandler(
	marketSvc *service.MarketService,
	liquiditySvc *service.LiquidityService,
	resolutionSvc *service.ResolutionService,
	settlementSvc *service.SettlementService,
) *MarketAdminHandler {
	return &MarketAdminHandler{
		marketSvc:     marketSvc,
		liquiditySvc:  liquiditySvc,
		resolutionSvc: resolutionSvc,
		settlementSvc: settlementSvc,
	}
}

// List godoc
// GET /admin/markets?status=disputed&page=1&limit=50
func (h *MarketAdminHandler) List(c *gin.Context) {
	status := c.Query("status")
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	markets, total, err := h.marketSvc.ListMarkets(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondDomainError(c, err, "could not list markets")
		return
	}
	respondList(c, markets, total, page, limit)
}

// Detail godoc
// GET /admin/markets/:id
func (h *MarketAdminHandler) Detail(c *gin.Context) {
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

// Resolve godoc
// POST /admin/markets/:id/options/:optionId/resolve
// Body: {"outcome":"YES"}
// Direct resolution; the market's mode still decides whether an admin may.
func (h *MarketAdminHandler) Resolve(c *gin.Context) {
	marketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	optionID, ok := uuidParam(c, "optionId")
	if !ok {
		return
	}
	var body struct {
		Outcome string `json:"outcome" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	outcome, err := domain.ParseSide(body.Outcome)
	if err != nil {
		respondDomainError(c, domain.ErrInvalidOutcome, "")
		return
	}

	res, err := h.resolutionSvc.DirectResolveOption(c.Request.Context(), middleware.GetActor(c), marketID, optionID, outcome)
	if err != nil {
		respondDomainError(c, err, "could not resolve option")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

// Settlements godoc
// GET /admin/markets/:id/settlements
// Every record of the market, oldest first, with its hash re-verified.
func (h *MarketAdminHandler) Settlements(c *gin.Context) {
	marketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	records, err := h.settlementSvc.ListSettlements(ctx, marketID)
	if err != nil {
		respondDomainError(c, err, "could not list settlements")
		return
	}
	out := make([]*service.Verification, 0, len(records))
	for _, rec := range records {
		ok, computed, err := rec.Verify()
		if err != nil {
			respondDomainError(c, err, "could not verify settlement")
			return
		}
		out = append(out, &service.Verification{Record: rec, Valid: ok, ComputedHash: computed})
	}
	respondSuccess(c, http.StatusOK, out)
}

// Submissions godoc
// GET /admin/markets/:id/options/:optionId/submissions
func (h *MarketAdminHandler) Submissions(c *gin.Context) {
	marketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	optionID, ok := uuidParam(c, "optionId")
	if !ok {
		return
	}
	subs, err := h.resolutionSvc.ListSubmissions(c.Request.Context(), marketID, optionID)
	if err != nil {
		respondDomainError(c, err, "could not list submissions")
		return
	}
	respondSuccess(c, http.StatusOK, subs)
}

// Liquidity godoc
// GET /admin/markets/:id/liquidity
// Share ledger audit: pool total against the sum of positions.
func (h *MarketAdminHandler) Liquidity(c *gin.Context) {
	marketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	audit, err := h.liquiditySvc.AuditShares(c.Request.Context(), marketID)
	if err != nil {
		respondDomainError(c, err, "could not audit liquidity")
		return
	}
	if !audit.Consistent {
		log.Printf("[backoffice] WARN share mismatch market=%s pool=%d positions=%d",
			marketID, audit.PoolShares, audit.PositionShares)
	}
	respondSuccess(c, http.StatusOK, audit)
}
