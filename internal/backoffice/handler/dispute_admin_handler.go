package handler

import (
	"net/http"

	"github.com/evetabi/settlement/internal/api/middleware"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/evetabi/settlement/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DisputeAdminHandler serves /admin/disputes endpoints.
type DisputeAdminHandler struct {
	disputeSvc *service.DisputeService
}

// NewDisputeAdminHandler creates a DisputeAdminHandler.
func NewDisputeAdminHandler(disputeSvc *service.DisputeService) *DisputeAdminHandler {
	return &DisputeAdminHandler{disputeSvc: disputeSvc}
}

// List godoc
// GET /admin/disputes?status=pending&market_id=uuid&page=1&limit=50
// Oldest first, so the review queue reads top-down.
func (h *DisputeAdminHandler) List(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !domain.DisputeStatus(status).IsOpen() && !domain.DisputeStatus(status).IsTerminal() {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "unknown dispute status")
		return
	}
	var marketID *uuid.UUID
	if v := c.Query("market_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market_id")
			return
		}
		marketID = &id
	}
	page, limit := adminPagination(c)

	disputes, err := h.disputeSvc.ListDisputes(c.Request.Context(), status, marketID, limit, (page-1)*limit)
	if err != nil {
		respondDomainError(c, err, "could not list disputes")
		return
	}
	respondList(c, disputes, len(disputes), page, limit)
}

// Detail godoc
// GET /admin/disputes/:id
func (h *DisputeAdminHandler) Detail(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	d, err := h.disputeSvc.GetDispute(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "could not fetch dispute")
		return
	}
	respondSuccess(c, http.StatusOK, d)
}

// Review godoc
// POST /admin/disputes/:id/review
// Body: {"status":"resolved","notes":"feed misread the close"}
func (h *DisputeAdminHandler) Review(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status" binding:"required"`
		Notes  string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	res, err := h.disputeSvc.ReviewDispute(c.Request.Context(), middleware.GetActor(c), id, domain.DisputeStatus(body.Status), body.Notes)
	if err != nil {
		respondDomainError(c, err, "could not review dispute")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}
