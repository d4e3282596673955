package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/Domenick1991/exhibitions/internal/service/notification"
	"github.com/Domenick1991/exhibitions/internal/service/registration"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockRegistrationUseCase struct {
	mock.Mock
}

func (m *MockRegistrationUseCase) Register(ctx context.Context, actor domain.Actor, input registration.RegisterInput) (*domain.Registration, error) {
	args := m.Called(ctx, actor, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Registration), args.Error(1)
}

func (m *MockRegistrationUseCase) Cancel(ctx context.Context, actor domain.Actor, id string) (*domain.Registration, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Registration), args.Error(1)
}

func (m *MockRegistrationUseCase) Get(ctx context.Context, actor domain.Actor, id string) (*domain.Registration, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Registration), args.Error(1)
}

func (m *MockRegistrationUseCase) ListMine(ctx context.Context, actor domain.Actor) ([]domain.Registration, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Registration), args.Error(1)
}

func (m *MockRegistrationUseCase) ListByEvent(ctx context.Context, actor domain.Actor, eventID int64, limit, offset int) ([]domain.Registration, error) {
	args := m.Called(ctx, actor, eventID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Registration), args.Error(1)
}

type MockRedeliverer struct {
	mock.Mock
}

func (m *MockRedeliverer) Redeliver(ctx context.Context, actor domain.Actor, id string) (notification.Outcome, error) {
	args := m.Called(ctx, actor, id)
	return args.Get(0).(notification.Outcome), args.Error(1)
}

type stubRenderer struct{}

func (stubRenderer) DataURI(token string) (string, error) {
	return "data:image/png;base64,QR(" + token + ")", nil
}

var owner = domain.Actor{ID: 7}

func newTestContext(method, target string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(actorKey, owner)
	return c, w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestRegistrationHandler_create(t *testing.T) {
	mockService := &MockRegistrationUseCase{}
	handler := NewRegistrationHandler(mockService, nil, stubRenderer{}, zap.NewNop())

	c, w := newTestContext(http.MethodPost, "/api/registrations", createRegistrationRequest{EventID: 3, Quantity: 2})

	reg := &domain.Registration{
		ID:                 "r1",
		EventID:            3,
		RegistrantID:       7,
		Quantity:           2,
		Status:             domain.RegistrationStatusConfirmed,
		Token:              "tok",
		NotificationStatus: domain.NotificationNotSent,
		ValidationStatus:   domain.ValidationUnvalidated,
	}
	mockService.On("Register", c.Request.Context(), owner, registration.RegisterInput{EventID: 3, Quantity: 2}).Return(reg, nil)

	handler.create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response registrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "r1", response.ID)
	assert.Equal(t, "confirmed", response.Status)
	assert.Equal(t, "tok", response.Token)
	assert.Equal(t, "data:image/png;base64,QR(tok)", response.TicketImage)
	assert.Equal(t, "not_sent", response.NotificationStatus)
	mockService.AssertExpectations(t)
}

func TestRegistrationHandler_create_InvalidBody(t *testing.T) {
	handler := NewRegistrationHandler(&MockRegistrationUseCase{}, nil, nil, zap.NewNop())

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/registrations", bytes.NewBufferString("{"))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_body", decodeError(t, w).Code)
}

func TestRegistrationHandler_create_Errors(t *testing.T) {
	testCases := []struct {
		name      string
		err       error
		status    int
		code      string
		remaining *int
	}{
		{name: "invalid quantity", err: domain.ErrInvalidQuantity, status: http.StatusBadRequest, code: "invalid_quantity"},
		{name: "unavailable", err: domain.ErrEventUnavailable, status: http.StatusBadRequest, code: "event_unavailable"},
		{name: "duplicate", err: domain.ErrDuplicateRegistration, status: http.StatusConflict, code: "duplicate_registration"},
		{name: "capacity", err: &domain.CapacityExceededError{Remaining: 0}, status: http.StatusConflict, code: "capacity_exceeded", remaining: new(int)},
		{name: "not found", err: domain.ErrExhibitionNotFound, status: http.StatusNotFound, code: "exhibition_not_found"},
		{name: "write conflict", err: domain.ErrWriteConflict, status: http.StatusConflict, code: "write_conflict"},
		{name: "internal", err: errors.New("pq: connection reset"), status: http.StatusInternalServerError, code: "internal_error"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := &MockRegistrationUseCase{}
			handler := NewRegistrationHandler(mockService, nil, nil, zap.NewNop())
			c, w := newTestContext(http.MethodPost, "/api/registrations", createRegistrationRequest{EventID: 1, Quantity: 1})
			mockService.On("Register", mock.Anything, owner, mock.Anything).Return(nil, tc.err)

			handler.create(c)

			assert.Equal(t, tc.status, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tc.code, body.Code)
			assert.Equal(t, tc.remaining, body.Remaining)
			assert.NotContains(t, body.Message, "pq:")
		})
	}
}

func TestRegistrationHandler_cancel(t *testing.T) {
	mockService := &MockRegistrationUseCase{}
	handler := NewRegistrationHandler(mockService, nil, stubRenderer{}, zap.NewNop())

	c, w := newTestContext(http.MethodDelete, "/api/registrations/r1", nil)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}

	reg := &domain.Registration{ID: "r1", Status: domain.RegistrationStatusCancelled, Token: "tok"}
	mockService.On("Cancel", c.Request.Context(), owner, "r1").Return(reg, nil)

	handler.cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response registrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "cancelled", response.Status)
	assert.Empty(t, response.TicketImage)
	mockService.AssertExpectations(t)
}

func TestRegistrationHandler_cancel_Forbidden(t *testing.T) {
	mockService := &MockRegistrationUseCase{}
	handler := NewRegistrationHandler(mockService, nil, nil, zap.NewNop())

	c, w := newTestContext(http.MethodDelete, "/api/registrations/r1", nil)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	mockService.On("Cancel", c.Request.Context(), owner, "r1").Return(nil, domain.ErrForbidden)

	handler.cancel(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decodeError(t, w).Code)
}

func TestRegistrationHandler_list(t *testing.T) {
	mockService := &MockRegistrationUseCase{}
	handler := NewRegistrationHandler(mockService, nil, nil, zap.NewNop())

	c, w := newTestContext(http.MethodGet, "/api/registrations?event_id=4&limit=20&offset=40", nil)
	mockService.On("ListByEvent", c.Request.Context(), owner, int64(4), 20, 40).
		Return([]domain.Registration{{ID: "a"}, {ID: "b"}}, nil)

	handler.list(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response []registrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Len(t, response, 2)
	mockService.AssertExpectations(t)
}

func TestRegistrationHandler_list_BadQuery(t *testing.T) {
	handler := NewRegistrationHandler(&MockRegistrationUseCase{}, nil, nil, zap.NewNop())

	c, w := newTestContext(http.MethodGet, "/api/registrations?event_id=abc", nil)
	handler.list(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegistrationHandler_mine(t *testing.T) {
	mockService := &MockRegistrationUseCase{}
	handler := NewRegistrationHandler(mockService, nil, nil, zap.NewNop())

	c, w := newTestContext(http.MethodGet, "/api/registrations/mine", nil)
	mockService.On("ListMine", c.Request.Context(), owner).Return([]domain.Registration{}, nil)

	handler.mine(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestRegistrationHandler_redeliver(t *testing.T) {
	mockRedeliverer := &MockRedeliverer{}
	handler := NewRegistrationHandler(&MockRegistrationUseCase{}, mockRedeliverer, nil, zap.NewNop())

	c, w := newTestContext(http.MethodPost, "/api/registrations/r1/notification", nil)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	mockRedeliverer.On("Redeliver", c.Request.Context(), owner, "r1").Return(notification.DeliveryFailed("timeout"), nil)

	handler.redeliver(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"delivered":false,"reason":"timeout"}`, w.Body.String())
}
