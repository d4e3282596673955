package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/Domenick1991/exhibitions/internal/service/notification"
	"github.com/Domenick1991/exhibitions/internal/service/registration"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Redeliverer interface {
	Redeliver(ctx context.Context, actor domain.Actor, id string) (notification.Outcome, error)
}

type TicketRenderer interface {
	DataURI(token string) (string, error)
}

type RegistrationHandler struct {
	service     registration.RegistrationUseCase
	redeliverer Redeliverer
	renderer    TicketRenderer
	logger      *zap.Logger
}

type createRegistrationRequest struct {
	EventID  int64 `json:"event_id"`
	Quantity int   `json:"quantity"`
}

type registrationResponse struct {
	ID                 string     `json:"id"`
	EventID            int64      `json:"event_id"`
	RegistrantID       int64      `json:"registrant_id"`
	Quantity           int        `json:"quantity"`
	Status             string     `json:"status"`
	Token              string     `json:"token,omitempty"`
	TicketImage        string     `json:"ticket_image,omitempty"`
	NotificationStatus string     `json:"notification_status"`
	NotificationError  string     `json:"notification_error,omitempty"`
	NotifiedAt         *time.Time `json:"notified_at,omitempty"`
	ValidationStatus   string     `json:"validation_status"`
	ValidatedAt        *time.Time `json:"validated_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
}

func NewRegistrationHandler(service registration.RegistrationUseCase, redeliverer Redeliverer, renderer TicketRenderer, logger *zap.Logger) *RegistrationHandler {
	return &RegistrationHandler{service: service, redeliverer: redeliverer, renderer: renderer, logger: logger}
}

func (h *RegistrationHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("", h.list)
	router.GET("/mine", h.mine)
	router.GET("/:id", h.get)
	router.DELETE("/:id", h.cancel)
	router.POST("/:id/notification", h.redeliver)
}

func (h *RegistrationHandler) create(c *gin.Context) {
	var req createRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_body", err.Error())
		return
	}

	reg, err := h.service.Register(c.Request.Context(), actorFrom(c), registration.RegisterInput{
		EventID:  req.EventID,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.toResponse(reg))
}

func (h *RegistrationHandler) cancel(c *gin.Context) {
	reg, err := h.service.Cancel(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponse(reg))
}

func (h *RegistrationHandler) get(c *gin.Context) {
	reg, err := h.service.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponse(reg))
}

func (h *RegistrationHandler) mine(c *gin.Context) {
	regs, err := h.service.ListMine(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponses(regs))
}

func (h *RegistrationHandler) list(c *gin.Context) {
	var eventID int64
	if raw := c.Query("event_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid_event_id", "event_id must be an integer")
			return
		}
		eventID = id
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		badRequest(c, "invalid_limit", "limit must be an integer")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		badRequest(c, "invalid_offset", "offset must be an integer")
		return
	}

	regs, err := h.service.ListByEvent(c.Request.Context(), actorFrom(c), eventID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponses(regs))
}

func (h *RegistrationHandler) redeliver(c *gin.Context) {
	outcome, err := h.redeliverer.Redeliver(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *RegistrationHandler) toResponses(regs []domain.Registration) []registrationResponse {
	out := make([]registrationResponse, 0, len(regs))
	for i := range regs {
		out = append(out, h.toResponse(&regs[i]))
	}
	return out
}

func (h *RegistrationHandler) toResponse(reg *domain.Registration) registrationResponse {
	resp := registrationResponse{
		ID:                 reg.ID,
		EventID:            reg.EventID,
		RegistrantID:       reg.RegistrantID,
		Quantity:           reg.Quantity,
		Status:             string(reg.Status),
		Token:              reg.Token,
		NotificationStatus: string(reg.NotificationStatus),
		NotificationError:  reg.NotificationError,
		NotifiedAt:         reg.NotifiedAt,
		ValidationStatus:   string(reg.ValidationStatus),
		ValidatedAt:        reg.ValidatedAt,
		CreatedAt:          reg.CreatedAt,
		ConfirmedAt:        reg.ConfirmedAt,
		CancelledAt:        reg.CancelledAt,
	}
	if reg.Token != "" && reg.Active() && h.renderer != nil {
		image, err := h.renderer.DataURI(reg.Token)
		if err != nil {
			h.logger.Warn("failed to render ticket image", zap.String("registration_id", reg.ID), zap.Error(err))
		} else {
			resp.TicketImage = image
		}
	}
	return resp
}
