package exhibitions

import (
	"context"
	"errors"
	"strconv"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/Domenick1991/exhibitions/internal/ledger"
	"github.com/Domenick1991/exhibitions/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type ExhibitionUseCase interface {
	List(ctx context.Context) ([]domain.Exhibition, error)
	GetByID(ctx context.Context, id int64) (*domain.Exhibition, error)
	SetCapacity(ctx context.Context, actor domain.Actor, id int64, capacity int) (*domain.Exhibition, error)
}

// Cache is the read-through store for the public catalog.
type Cache interface {
	GetExhibitions(ctx context.Context) ([]domain.Exhibition, error)
	SetExhibitions(ctx context.Context, exhibitions []domain.Exhibition) error
	GetExhibition(ctx context.Context, id int64) (*domain.Exhibition, error)
	SetExhibition(ctx context.Context, e *domain.Exhibition) error
	InvalidateExhibition(ctx context.Context, id int64) error
}

type ExhibitionService struct {
	repo   repository.ExhibitionRepository
	tx     repository.Transactor
	cache  Cache
	logger *zap.Logger
	group  singleflight.Group
}

// NewExhibitionService accepts a nil cache.
func NewExhibitionService(repo repository.ExhibitionRepository, tx repository.Transactor, cache Cache, logger *zap.Logger) *ExhibitionService {
	return &ExhibitionService{repo: repo, tx: tx, cache: cache, logger: logger}
}

func (s *ExhibitionService) List(ctx context.Context) ([]domain.Exhibition, error) {
	if s.cache != nil {
		cached, err := s.cache.GetExhibitions(ctx)
		if err != nil {
			s.logger.Warn("exhibition cache read failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	// The shared call outlives any single caller, so it must not inherit the leader's cancellation.
	v, err, _ := s.group.Do("list", func() (any, error) {
		sctx := context.WithoutCancel(ctx)
		list, err := s.repo.List(sctx, true)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.SetExhibitions(sctx, list); err != nil {
				s.logger.Warn("exhibition cache write failed", zap.Error(err))
			}
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Exhibition), nil
}

// GetByID returns published and unpublished exhibitions alike; registration decides
// what an unpublished one means.
func (s *ExhibitionService) GetByID(ctx context.Context, id int64) (*domain.Exhibition, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidEventID
	}
	if s.cache != nil {
		cached, err := s.cache.GetExhibition(ctx, id)
		if err != nil {
			s.logger.Warn("exhibition cache read failed", zap.Int64("exhibition_id", id), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	v, err, _ := s.group.Do(strconv.FormatInt(id, 10), func() (any, error) {
		sctx := context.WithoutCancel(ctx)
		e, err := s.repo.GetByID(sctx, id)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.SetExhibition(sctx, e); err != nil {
				s.logger.Warn("exhibition cache write failed", zap.Int64("exhibition_id", id), zap.Error(err))
			}
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	e := *v.(*domain.Exhibition)
	return &e, nil
}

// Lookup reads straight from storage. Registration and entry checks use it so that a
// stale catalog entry never decides availability.
func (s *ExhibitionService) Lookup(ctx context.Context, id int64) (*domain.Exhibition, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ExhibitionService) SetCapacity(ctx context.Context, actor domain.Actor, id int64, capacity int) (*domain.Exhibition, error) {
	if !actor.Admin {
		return nil, domain.ErrForbidden
	}
	if capacity <= 0 {
		return nil, domain.ErrInvalidCapacity
	}

	err := s.tx.WithinEvent(ctx, id, func(ctx context.Context, uow repository.UnitOfWork) error {
		return uow.Ledger().SetCapacity(ctx, id, capacity)
	})
	switch {
	case errors.Is(err, ledger.ErrCapacityBelowReserved):
		return nil, domain.ErrCapacityBelowReserved
	case errors.Is(err, ledger.ErrUnknownEvent):
		return nil, domain.ErrExhibitionNotFound
	case err != nil:
		return nil, err
	}

	s.invalidate(ctx, id)
	s.logger.Info("exhibition capacity changed",
		zap.Int64("exhibition_id", id), zap.Int("capacity", capacity), zap.Int64("actor_id", actor.ID))
	return s.repo.GetByID(ctx, id)
}

// Invalidate drops cached copies after remaining capacity changed.
func (s *ExhibitionService) Invalidate(ctx context.Context, id int64) {
	s.invalidate(ctx, id)
}

func (s *ExhibitionService) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateExhibition(ctx, id); err != nil {
		s.logger.Warn("exhibition cache invalidation failed", zap.Int64("exhibition_id", id), zap.Error(err))
	}
}

var _ ExhibitionUseCase = (*ExhibitionService)(nil)
