package memstore

import (
	"context"
	"time"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/Domenick1991/exhibitions/internal/ledger"
	"github.com/Domenick1991/exhibitions/internal/repository"
)

// WithinEvent holds the event's ledger lock for the duration of fn. Registration writes
// are staged and applied together with the ledger changes.
func (s *Store) WithinEvent(ctx context.Context, eventID int64, fn func(ctx context.Context, uow repository.UnitOfWork) error) error {
	s.mu.RLock()
	_, ok := s.exhibitions[eventID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrExhibitionNotFound
	}

	ltx, err := s.ledger.Begin(ctx, eventID)
	if err != nil {
		return err
	}
	u := &unit{
		store:     s,
		ltx:       ltx,
		inserted:  make(map[string]*domain.Registration),
		cancelled: make(map[string]time.Time),
	}
	if err := fn(ctx, u); err != nil {
		ltx.Rollback()
		return err
	}

	s.mu.Lock()
	for id, reg := range u.inserted {
		s.registrations[id] = reg
	}
	for id, at := range u.cancelled {
		if reg, ok := s.registrations[id]; ok {
			reg.Status = domain.RegistrationStatusCancelled
			reg.CancelledAt = &at
			reg.UpdatedAt = at
		}
	}
	s.mu.Unlock()
	ltx.Commit()
	return nil
}

type unit struct {
	store     *Store
	ltx       *ledger.MemoryTx
	inserted  map[string]*domain.Registration
	cancelled map[string]time.Time
}

func (u *unit) Registrations() repository.RegistrationWriter { return u }

func (u *unit) Ledger() ledger.Ledger { return u.ltx }

func (u *unit) FindActive(_ context.Context, registrantID, eventID int64) (*domain.Registration, error) {
	for _, reg := range u.inserted {
		if reg.RegistrantID == registrantID && reg.EventID == eventID && reg.Active() {
			cp := *reg
			return &cp, nil
		}
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	for id, reg := range u.store.registrations {
		if _, gone := u.cancelled[id]; gone {
			continue
		}
		if reg.RegistrantID == registrantID && reg.EventID == eventID && reg.Active() {
			cp := *reg
			return &cp, nil
		}
	}
	return nil, nil
}

func (u *unit) GetByID(_ context.Context, id string) (*domain.Registration, error) {
	if reg, ok := u.inserted[id]; ok {
		cp := *reg
		return &cp, nil
	}
	u.store.mu.RLock()
	reg, ok := u.store.registrations[id]
	var cp domain.Registration
	if ok {
		cp = *reg
	}
	u.store.mu.RUnlock()
	if !ok {
		return nil, domain.ErrRegistrationNotFound
	}
	if at, gone := u.cancelled[id]; gone {
		cp.Status = domain.RegistrationStatusCancelled
		cp.CancelledAt = &at
	}
	return &cp, nil
}

func (u *unit) Insert(ctx context.Context, reg *domain.Registration) error {
	existing, err := u.FindActive(ctx, reg.RegistrantID, reg.EventID)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.ErrDuplicateRegistration
	}
	now := time.Now().UTC()
	reg.CreatedAt = now
	reg.UpdatedAt = now
	cp := *reg
	u.inserted[reg.ID] = &cp
	return nil
}

func (u *unit) Confirm(_ context.Context, id, token string, at time.Time) error {
	reg, ok := u.inserted[id]
	if !ok {
		// Only registrations created in this unit can still be pending.
		return domain.ErrTokenAlreadyIssued
	}
	if reg.Token != "" || reg.Status != domain.RegistrationStatusPending {
		return domain.ErrTokenAlreadyIssued
	}
	reg.Status = domain.RegistrationStatusConfirmed
	reg.Token = token
	reg.ConfirmedAt = &at
	reg.UpdatedAt = at
	return nil
}

func (u *unit) Cancel(ctx context.Context, id string, at time.Time) error {
	if reg, ok := u.inserted[id]; ok {
		if !reg.Active() {
			return domain.ErrAlreadyCancelled
		}
		reg.Status = domain.RegistrationStatusCancelled
		reg.CancelledAt = &at
		reg.UpdatedAt = at
		return nil
	}
	reg, err := u.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !reg.Active() {
		return domain.ErrAlreadyCancelled
	}
	u.cancelled[id] = at
	return nil
}

var (
	_ repository.Transactor         = (*Store)(nil)
	_ repository.RegistrationWriter = (*unit)(nil)
)
