package exhibitions

import (
	"context"
	"errors"
	"testing"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/Domenick1991/exhibitions/internal/repository/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockExhibitionRepository struct {
	mock.Mock
}

func (m *MockExhibitionRepository) List(ctx context.Context, publishedOnly bool) ([]domain.Exhibition, error) {
	args := m.Called(ctx, publishedOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Exhibition), args.Error(1)
}

func (m *MockExhibitionRepository) GetByID(ctx context.Context, id int64) (*domain.Exhibition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Exhibition), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetExhibitions(ctx context.Context) ([]domain.Exhibition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Exhibition), args.Error(1)
}

func (m *MockCache) SetExhibitions(ctx context.Context, exhibitions []domain.Exhibition) error {
	return m.Called(ctx, exhibitions).Error(0)
}

func (m *MockCache) GetExhibition(ctx context.Context, id int64) (*domain.Exhibition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Exhibition), args.Error(1)
}

func (m *MockCache) SetExhibition(ctx context.Context, e *domain.Exhibition) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockCache) InvalidateExhibition(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func TestExhibitionService_List_CacheMiss(t *testing.T) {
	mockRepo := &MockExhibitionRepository{}
	mockCache := &MockCache{}
	service := NewExhibitionService(mockRepo, nil, mockCache, zap.NewNop())
	ctx := context.Background()

	list := []domain.Exhibition{{ID: 1, Title: "Bauhaus", Capacity: 100, Active: true, Published: true}}
	mockCache.On("GetExhibitions", ctx).Return(nil, nil).Once()
	mockRepo.On("List", mock.Anything, true).Return(list, nil).Once()
	mockCache.On("SetExhibitions", mock.Anything, list).Return(nil).Once()

	result, err := service.List(ctx)

	assert.NoError(t, err)
	assert.Equal(t, list, result)
	mockCache.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
}

func TestExhibitionService_List_CacheHit(t *testing.T) {
	mockRepo := &MockExhibitionRepository{}
	mockCache := &MockCache{}
	service := NewExhibitionService(mockRepo, nil, mockCache, zap.NewNop())
	ctx := context.Background()

	list := []domain.Exhibition{{ID: 2, Title: "Ceramics"}}
	mockCache.On("GetExhibitions", ctx).Return(list, nil).Once()

	result, err := service.List(ctx)

	assert.NoError(t, err)
	assert.Equal(t, list, result)
	mockRepo.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestExhibitionService_List_CacheErrorFallsBackToRepository(t *testing.T) {
	mockRepo := &MockExhibitionRepository{}
	mockCache := &MockCache{}
	service := NewExhibitionService(mockRepo, nil, mockCache, zap.NewNop())
	ctx := context.Background()

	list := []domain.Exhibition{{ID: 3}}
	mockCache.On("GetExhibitions", ctx).Return(nil, errors.New("connection refused")).Once()
	mockRepo.On("List", mock.Anything, true).Return(list, nil).Once()
	mockCache.On("SetExhibitions", mock.Anything, list).Return(errors.New("connection refused")).Once()

	result, err := service.List(ctx)

	assert.NoError(t, err)
	assert.Equal(t, list, result)
}

func TestExhibitionService_List_WithoutCache(t *testing.T) {
	mockRepo := &MockExhibitionRepository{}
	service := NewExhibitionService(mockRepo, nil, nil, zap.NewNop())
	ctx := context.Background()

	mockRepo.On("List", mock.Anything, true).Return(nil, errors.New("db down")).Once()

	_, err := service.List(ctx)
	assert.EqualError(t, err, "db down")
}

func TestExhibitionService_GetByID(t *testing.T) {
	mockRepo := &MockExhibitionRepository{}
	mockCache := &MockCache{}
	service := NewExhibitionService(mockRepo, nil, mockCache, zap.NewNop())
	ctx := context.Background()

	e := &domain.Exhibition{ID: 4, Title: "Sculpture"}
	mockCache.On("GetExhibition", ctx, int64(4)).Return(nil, nil).Once()
	mockRepo.On("GetByID", mock.Anything, int64(4)).Return(e, nil).Once()
	mockCache.On("SetExhibition", mock.Anything, e).Return(nil).Once()

	result, err := service.GetByID(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "Sculpture", result.Title)

	mockCache.On("GetExhibition", ctx, int64(5)).Return(nil, nil).Once()
	mockRepo.On("GetByID", mock.Anything, int64(5)).Return(nil, domain.ErrExhibitionNotFound).Once()
	_, err = service.GetByID(ctx, 5)
	assert.ErrorIs(t, err, domain.ErrExhibitionNotFound)

	_, err = service.GetByID(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidEventID)

	mockCache.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
}

func TestExhibitionService_SharedLoadIgnoresCallerCancellation(t *testing.T) {
	mockRepo := &MockExhibitionRepository{}
	mockCache := &MockCache{}
	service := NewExhibitionService(mockRepo, nil, mockCache, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	live := mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })

	list := []domain.Exhibition{{ID: 1, Title: "Bauhaus", Published: true}}
	mockCache.On("GetExhibitions", mock.Anything).Return(nil, nil).Once()
	mockRepo.On("List", live, true).Return(list, nil).Once()
	mockCache.On("SetExhibitions", live, list).Return(nil).Once()

	result, err := service.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, list, result)

	e := &domain.Exhibition{ID: 4, Title: "Sculpture"}
	mockCache.On("GetExhibition", mock.Anything, int64(4)).Return(nil, nil).Once()
	mockRepo.On("GetByID", live, int64(4)).Return(e, nil).Once()
	mockCache.On("SetExhibition", live, e).Return(nil).Once()

	got, err := service.GetByID(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "Sculpture", got.Title)

	mockRepo.AssertExpectations(t)
	mockCache.AssertExpectations(t)
}

func TestExhibitionService_SetCapacity(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.PutExhibition(domain.Exhibition{ID: 1, Title: "Prints", Capacity: 5, Active: true, Published: true})
	mockCache := &MockCache{}
	service := NewExhibitionService(store.Exhibitions(), store, mockCache, zap.NewNop())
	admin := domain.Actor{ID: 1, Admin: true}

	_, err := store.Ledger().Reserve(ctx, 1, 3)
	require.NoError(t, err)

	_, err = service.SetCapacity(ctx, domain.Actor{ID: 2}, 1, 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = service.SetCapacity(ctx, admin, 1, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidCapacity)

	_, err = service.SetCapacity(ctx, admin, 1, 2)
	assert.ErrorIs(t, err, domain.ErrCapacityBelowReserved)

	_, err = service.SetCapacity(ctx, admin, 99, 2)
	assert.ErrorIs(t, err, domain.ErrExhibitionNotFound)

	mockCache.On("InvalidateExhibition", ctx, int64(1)).Return(nil).Once()
	updated, err := service.SetCapacity(ctx, admin, 1, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, updated.Capacity)
	assert.Equal(t, 5, updated.Remaining())
	mockCache.AssertExpectations(t)
}
