package api

import (
	"errors"
	"net/http"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Remaining *int   `json:"remaining,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrInvalidQuantity, "invalid_quantity"},
	{domain.ErrInvalidEventID, "invalid_event_id"},
	{domain.ErrInvalidCapacity, "invalid_capacity"},
	{domain.ErrEventUnavailable, "event_unavailable"},
	{domain.ErrTokenRequired, "token_required"},
	{domain.ErrNotificationState, "no_ticket_issued"},
	{domain.ErrDuplicateRegistration, "duplicate_registration"},
	{domain.ErrCapacityExceeded, "capacity_exceeded"},
	{domain.ErrAlreadyCancelled, "already_cancelled"},
	{domain.ErrAlreadyValidated, "already_validated"},
	{domain.ErrCapacityBelowReserved, "capacity_below_reserved"},
	{domain.ErrTokenAlreadyIssued, "token_already_issued"},
	{domain.ErrWriteConflict, "write_conflict"},
	{domain.ErrExhibitionNotFound, "exhibition_not_found"},
	{domain.ErrRegistrationNotFound, "registration_not_found"},
	{domain.ErrRegistrantNotFound, "registrant_not_found"},
	{domain.ErrForbidden, "forbidden"},
}

func statusFor(err error) int {
	switch {
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case domain.IsAuthorizationError(err):
		return http.StatusForbidden
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	case domain.IsConflictError(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error onto the JSON error envelope. Unknown errors are
// reported as 500 without their message.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := errorBody{Code: "internal_error", Message: "internal server error"}
	if status != http.StatusInternalServerError {
		body.Message = err.Error()
		for _, e := range errorCodes {
			if errors.Is(err, e.err) {
				body.Code = e.code
				break
			}
		}
	}

	var capErr *domain.CapacityExceededError
	if errors.As(err, &capErr) {
		remaining := capErr.Remaining
		body.Remaining = &remaining
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorResponse{Error: body})
}

func badRequest(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: errorBody{Code: code, Message: message}})
}
