package api

import (
	"net/http"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/Domenick1991/exhibitions/internal/service/entry"
	"github.com/gin-gonic/gin"
)

type TicketHandler struct {
	validator entry.ValidatorUseCase
}

type validateRequest struct {
	Token string `json:"token"`
}

func NewTicketHandler(validator entry.ValidatorUseCase) *TicketHandler {
	return &TicketHandler{validator: validator}
}

func (h *TicketHandler) Register(router *gin.RouterGroup) {
	router.POST("/validate", h.validate)
}

func (h *TicketHandler) validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_body", err.Error())
		return
	}
	if req.Token == "" {
		writeError(c, domain.ErrTokenRequired)
		return
	}

	res, err := h.validator.Validate(c.Request.Context(), actorFrom(c), req.Token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(outcomeStatus(res.Outcome), res)
}

func outcomeStatus(o entry.Outcome) int {
	switch o {
	case entry.Accepted:
		return http.StatusOK
	case entry.InvalidToken:
		return http.StatusBadRequest
	case entry.UnknownTicket:
		return http.StatusNotFound
	default:
		return http.StatusConflict
	}
}
