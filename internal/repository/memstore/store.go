// Package memstore keeps exhibitions, registrants and registrations in process memory.
// It backs the memory database driver and the service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/exhibitions/config"
	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/Domenick1991/exhibitions/internal/ledger"
	"github.com/Domenick1991/exhibitions/internal/repository"
)

type Store struct {
	ledger *ledger.Memory

	mu            sync.RWMutex
	exhibitions   map[int64]domain.Exhibition
	registrants   map[int64]domain.Registrant
	registrations map[string]*domain.Registration
}

func New() *Store {
	return &Store{
		ledger:        ledger.NewMemory(),
		exhibitions:   make(map[int64]domain.Exhibition),
		registrants:   make(map[int64]domain.Registrant),
		registrations: make(map[string]*domain.Registration),
	}
}

// NewSeeded builds a store from the seed section of the configuration.
func NewSeeded(seed config.SeedConfig) *Store {
	s := New()
	for _, e := range seed.Exhibitions {
		s.PutExhibition(domain.Exhibition{
			ID:        e.ID,
			Title:     e.Title,
			Location:  e.Location,
			StartsAt:  e.StartsAt,
			EndsAt:    e.EndsAt,
			Capacity:  e.Capacity,
			Active:    e.Active,
			Published: e.Published,
		})
	}
	for _, r := range seed.Registrants {
		s.PutRegistrant(domain.Registrant{ID: r.ID, Email: r.Email, Name: r.Name, IsAdmin: r.IsAdmin})
	}
	return s
}

// PutExhibition adds or replaces an exhibition. Capacity of an existing exhibition is
// left to the ledger.
func (s *Store) PutExhibition(e domain.Exhibition) {
	now := time.Now().UTC()
	s.mu.Lock()
	if prev, ok := s.exhibitions[e.ID]; ok {
		e.CreatedAt = prev.CreatedAt
	} else {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	s.exhibitions[e.ID] = e
	s.mu.Unlock()

	s.ledger.Open(e.ID, e.Capacity, e.OpenForRegistration())
}

func (s *Store) PutRegistrant(r domain.Registrant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrants[r.ID] = r
}

// Ledger exposes the capacity ledger shared by all units of work.
func (s *Store) Ledger() *ledger.Memory {
	return s.ledger
}

func (s *Store) Exhibitions() repository.ExhibitionRepository { return exhibitionRepo{s} }

func (s *Store) Registrants() repository.RegistrantRepository { return registrantRepo{s} }

func (s *Store) Registrations() repository.RegistrationRepository { return registrationRepo{s} }

type exhibitionRepo struct{ s *Store }

func (r exhibitionRepo) List(_ context.Context, publishedOnly bool) ([]domain.Exhibition, error) {
	r.s.mu.RLock()
	list := make([]domain.Exhibition, 0, len(r.s.exhibitions))
	for _, e := range r.s.exhibitions {
		if publishedOnly && !e.OpenForRegistration() {
			continue
		}
		list = append(list, e)
	}
	r.s.mu.RUnlock()

	for i := range list {
		r.s.fillCapacity(&list[i])
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartsAt.Equal(list[j].StartsAt) {
			return list[i].StartsAt.Before(list[j].StartsAt)
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (r exhibitionRepo) GetByID(_ context.Context, id int64) (*domain.Exhibition, error) {
	r.s.mu.RLock()
	e, ok := r.s.exhibitions[id]
	r.s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrExhibitionNotFound
	}
	r.s.fillCapacity(&e)
	return &e, nil
}

func (s *Store) fillCapacity(e *domain.Exhibition) {
	if capacity, reserved, err := s.ledger.Snapshot(e.ID); err == nil {
		e.Capacity = capacity
		e.ReservedUnits = reserved
	}
}

type registrantRepo struct{ s *Store }

func (r registrantRepo) GetByID(_ context.Context, id int64) (*domain.Registrant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.registrants[id]
	if !ok {
		return nil, domain.ErrRegistrantNotFound
	}
	return &u, nil
}

type registrationRepo struct{ s *Store }

func (r registrationRepo) GetByID(_ context.Context, id string) (*domain.Registration, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	reg, ok := r.s.registrations[id]
	if !ok {
		return nil, domain.ErrRegistrationNotFound
	}
	cp := *reg
	return &cp, nil
}

func (r registrationRepo) ListByRegistrant(_ context.Context, registrantID int64) ([]domain.Registration, error) {
	return r.s.filter(func(reg *domain.Registration) bool {
		return reg.RegistrantID == registrantID
	}, 0, 0, newestFirst), nil
}

func (r registrationRepo) ListByEvent(_ context.Context, eventID int64, limit, offset int) ([]domain.Registration, error) {
	return r.s.filter(func(reg *domain.Registration) bool {
		return eventID == 0 || reg.EventID == eventID
	}, limit, offset, newestFirst), nil
}

func (r registrationRepo) ListFailedNotifications(_ context.Context, limit int) ([]domain.Registration, error) {
	return r.s.filter(func(reg *domain.Registration) bool {
		return reg.NotificationStatus == domain.NotificationFailed && reg.Status == domain.RegistrationStatusConfirmed
	}, limit, 0, oldestUpdateFirst), nil
}

func (r registrationRepo) RecordNotification(_ context.Context, id string, status domain.NotificationStatus, reason string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reg, ok := r.s.registrations[id]
	if !ok {
		return domain.ErrRegistrationNotFound
	}
	if status == domain.NotificationFailed && reg.NotificationStatus == domain.NotificationSent {
		return nil
	}
	reg.NotificationStatus = status
	reg.NotificationError = reason
	reg.NotifiedAt = &at
	reg.UpdatedAt = at
	return nil
}

func (r registrationRepo) MarkValidated(_ context.Context, id string, at time.Time) (*domain.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reg, ok := r.s.registrations[id]
	switch {
	case !ok:
		return nil, domain.ErrRegistrationNotFound
	case reg.Status == domain.RegistrationStatusCancelled:
		return nil, domain.ErrAlreadyCancelled
	case reg.Validated() || reg.Status != domain.RegistrationStatusConfirmed:
		return nil, domain.ErrAlreadyValidated
	}
	reg.ValidationStatus = domain.ValidationValidated
	reg.ValidatedAt = &at
	reg.UpdatedAt = at
	cp := *reg
	return &cp, nil
}

func newestFirst(a, b *domain.Registration) bool { return a.CreatedAt.After(b.CreatedAt) }

func oldestUpdateFirst(a, b *domain.Registration) bool { return a.UpdatedAt.Before(b.UpdatedAt) }

func (s *Store) filter(keep func(*domain.Registration) bool, limit, offset int, less func(a, b *domain.Registration) bool) []domain.Registration {
	s.mu.RLock()
	matched := make([]*domain.Registration, 0)
	for _, reg := range s.registrations {
		if keep(reg) {
			cp := *reg
			matched = append(matched, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if less(matched[i], matched[j]) {
			return true
		}
		if less(matched[j], matched[i]) {
			return false
		}
		return matched[i].ID < matched[j].ID
	})

	if offset >= len(matched) {
		return []domain.Registration{}
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	out := make([]domain.Registration, len(matched))
	for i, reg := range matched {
		out[i] = *reg
	}
	return out
}
