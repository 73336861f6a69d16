package handler

import (
	"net/http"

	"github.com/evetabi/settlement/internal/domain"
	"github.com/evetabi/settlement/internal/service"
	"github.com/gin-gonic/gin"
)

// DashboardHandler serves the /admin/dashboard endpoint.
type DashboardHandler struct {
	marketSvc  *service.MarketService
	disputeSvc *service.DisputeService
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(marketSvc *service.MarketService, disputeSvc *service.DisputeService) *DashboardHandler {
	return &DashboardHandler{marketSvc: marketSvc, disputeSvc: disputeSvc}
}

// Dashboard godoc
// GET /admin/dashboard
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	// ── Markets per status ───────────────────────────────────────────────────
	markets := gin.H{}
	for _, st := range []domain.MarketStatus{domain.StatusOpen, domain.StatusDisputed, domain.StatusResolved} {
		_, total, err := h.marketSvc.ListMarkets(ctx, string(st), 1, 0)
		if err != nil {
			respondDomainError(c, err, "could not load dashboard")
			return
		}
		markets[string(st)] = total
	}

	// ── Review queue ─────────────────────────────────────────────────────────
	queue := gin.H{}
	for _, st := range []domain.DisputeStatus{domain.DisputePending, domain.DisputeReviewed} {
		disputes, err := h.disputeSvc.ListDisputes(ctx, string(st), nil, 100, 0)
		if err != nil {
			respondDomainError(c, err, "could not load dashboard")
			return
		}
		queue[string(st)] = len(disputes)
		if st == domain.DisputePending && len(disputes) > 0 {
			queue["oldest_pending_at"] = disputes[0].CreatedAt
		}
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"markets":  markets,
		"disputes": queue,
	})
}
