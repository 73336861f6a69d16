package handler

import (
	"net/http"

	"github.com/evetabi/settlement/internal/api/middleware"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/evetabi/settlement/internal/service"
	"github.com/gin-gonic/gin"
)

// ResolutionHandler serves option resolution endpoints. Authority checks
// happen in the service against the market's resolution mode.
type ResolutionHandler struct {
	resolutionSvc *service.ResolutionService
}

// NewResolutionHandler creates a ResolutionHandler.
func NewResolutionHandler(resolutionSvc *service.ResolutionService) *ResolutionHandler {
	return &ResolutionHandler{resolutionSvc: resolutionSvc}
}

// Resolve godoc
// POST /api/markets/:id/options/:optionId/resolve [JWT]
// Body: {"outcome":"YES"}
func (h *ResolutionHandler) Resolve(c *gin.Context) {
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

// Submit godoc
// POST /api/markets/:id/options/:optionId/submissions [JWT]
// Body: {"outcome":"NO","evidence":{"kind":"url","url":"https://..."}}
func (h *ResolutionHandler) Submit(c *gin.Context) {
	marketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	optionID, ok := uuidParam(c, "optionId")
	if !ok {
		return
	}
	var body struct {
		Outcome  string           `json:"outcome" binding:"required"`
		Evidence *domain.Evidence `json:"evidence"`
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

	res, err := h.resolutionSvc.SubmitResolution(c.Request.Context(), middleware.GetActor(c), marketID, optionID, outcome, body.Evidence)
	if err != nil {
		respondDomainError(c, err, "could not record submission")
		return
	}
	respondSuccess(c, http.StatusCreated, res)
}
