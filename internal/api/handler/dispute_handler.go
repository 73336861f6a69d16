package handler

import (
	"net/http"

	"github.com/evetabi/settlement/internal/api/middleware"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/evetabi/settlement/internal/service"
	"github.com/gin-gonic/gin"
)

// DisputeHandler serves dispute filing.
type DisputeHandler struct {
	disputeSvc *service.DisputeService
}

// NewDisputeHandler creates a DisputeHandler.
func NewDisputeHandler(disputeSvc *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{disputeSvc: disputeSvc}
}

// File godoc
// POST /api/markets/:id/options/:optionId/disputes [JWT]
// Body: {"reason":"...","evidence":{"kind":"text","text":"..."}}
func (h *DisputeHandler) File(c *gin.Context) {
	marketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	optionID, ok := uuidParam(c, "optionId")
	if !ok {
		return
	}
	var body struct {
		Reason   string           `json:"reason" binding:"required"`
		Evidence *domain.Evidence `json:"evidence"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	d, err := h.disputeSvc.FileDispute(c.Request.Context(), middleware.GetActor(c), service.FileDisputeRequest{
		MarketID: marketID,
		OptionID: optionID,
		Reason:   body.Reason,
		Evidence: body.Evidence,
	})
	if err != nil {
		respondDomainError(c, err, "could not file dispute")
		return
	}
	respondSuccess(c, http.StatusCreated, d)
}
