package api

import (
	"net/http"
	"strconv"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/Domenick1991/exhibitions/internal/service/exhibitions"
	"github.com/gin-gonic/gin"
)

type ExhibitionHandler struct {
	service exhibitions.ExhibitionUseCase
}

type exhibitionResponse struct {
	domain.Exhibition
	RemainingCapacity int `json:"remaining_capacity"`
}

type setCapacityRequest struct {
	Capacity int `json:"capacity"`
}

func NewExhibitionHandler(service exhibitions.ExhibitionUseCase) *ExhibitionHandler {
	return &ExhibitionHandler{service: service}
}

func (h *ExhibitionHandler) Register(public, admin *gin.RouterGroup) {
	public.GET("", h.list)
	public.GET("/:id", h.get)
	admin.PUT("/:id/capacity", h.setCapacity)
}

// list serves the published catalog. limit=0 returns everything after offset.
func (h *ExhibitionHandler) list(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		badRequest(c, "invalid_limit", "limit must be a non-negative integer")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		badRequest(c, "invalid_offset", "offset must be a non-negative integer")
		return
	}

	list, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	list = page(list, limit, offset)
	out := make([]exhibitionResponse, 0, len(list))
	for _, e := range list {
		out = append(out, exhibitionResponse{Exhibition: e, RemainingCapacity: e.Remaining()})
	}
	c.JSON(http.StatusOK, out)
}

func (h *ExhibitionHandler) get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	e, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exhibitionResponse{Exhibition: *e, RemainingCapacity: e.Remaining()})
}

func (h *ExhibitionHandler) setCapacity(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req setCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_body", err.Error())
		return
	}
	e, err := h.service.SetCapacity(c.Request.Context(), actorFrom(c), id, req.Capacity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exhibitionResponse{Exhibition: *e, RemainingCapacity: e.Remaining()})
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, domain.ErrInvalidEventID)
		return 0, false
	}
	return id, true
}
