package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/Domenick1991/exhibitions/internal/kafka"
	"github.com/Domenick1991/exhibitions/internal/ledger"
	"github.com/Domenick1991/exhibitions/internal/repository"
	"github.com/Domenick1991/exhibitions/internal/telemetry"
	"github.com/Domenick1991/exhibitions/internal/ticket"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

type RegistrationUseCase interface {
	Register(ctx context.Context, actor domain.Actor, input RegisterInput) (*domain.Registration, error)
	Cancel(ctx context.Context, actor domain.Actor, id string) (*domain.Registration, error)
	Get(ctx context.Context, actor domain.Actor, id string) (*domain.Registration, error)
	ListMine(ctx context.Context, actor domain.Actor) ([]domain.Registration, error)
	ListByEvent(ctx context.Context, actor domain.Actor, eventID int64, limit, offset int) ([]domain.Registration, error)
}

type RegisterInput struct {
	EventID  int64 `json:"event_id"`
	Quantity int   `json:"quantity"`
}

// EventDirectory is the exhibition collaborator. Lookup must not be served from a cache.
type EventDirectory interface {
	Lookup(ctx context.Context, id int64) (*domain.Exhibition, error)
	Invalidate(ctx context.Context, id int64)
}

type RegistrantLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.Registrant, error)
}

// Notifier takes a confirmed registration off the request path.
type Notifier interface {
	Enqueue(ctx context.Context, registrationID string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

type RegistrationService struct {
	registrations      repository.RegistrationRepository
	tx                 repository.Transactor
	events             EventDirectory
	registrants        RegistrantLookup
	codec              *ticket.Codec
	notifier           Notifier
	producer           Producer
	registrationsTopic string
	maxQuantity        int
	logger             *zap.Logger
	now                func() time.Time
}

type Option func(*RegistrationService)

// WithProducer publishes lifecycle events to topic.
func WithProducer(producer Producer, topic string) Option {
	return func(s *RegistrationService) {
		s.producer = producer
		s.registrationsTopic = topic
	}
}

// WithMaxQuantity lowers the per-registration ticket limit. It cannot be raised above
// domain.MaxTicketsPerRegistration.
func WithMaxQuantity(n int) Option {
	return func(s *RegistrationService) {
		if n > 0 && n < domain.MaxTicketsPerRegistration {
			s.maxQuantity = n
		}
	}
}

func NewRegistrationService(
	registrations repository.RegistrationRepository,
	tx repository.Transactor,
	events EventDirectory,
	registrants RegistrantLookup,
	codec *ticket.Codec,
	notifier Notifier,
	logger *zap.Logger,
	opts ...Option,
) *RegistrationService {
	s := &RegistrationService{
		registrations: registrations,
		tx:            tx,
		events:        events,
		registrants:   registrants,
		codec:         codec,
		notifier:      notifier,
		maxQuantity:   domain.MaxTicketsPerRegistration,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register reserves capacity, records the registration and issues its token as one unit.
// Either a confirmed registration comes back or nothing changed.
func (s *RegistrationService) Register(ctx context.Context, actor domain.Actor, input RegisterInput) (*domain.Registration, error) {
	ctx, span := telemetry.StartSpan(ctx, "registration.register",
		attribute.Int64("exhibition.id", input.EventID), attribute.Int("quantity", input.Quantity))
	defer span.End()

	if input.Quantity < 1 || input.Quantity > s.maxQuantity {
		return nil, domain.ErrInvalidQuantity
	}
	if input.EventID <= 0 {
		return nil, domain.ErrInvalidEventID
	}
	event, err := s.events.Lookup(ctx, input.EventID)
	if err != nil {
		return nil, err
	}
	if !event.OpenForRegistration() {
		return nil, domain.ErrEventUnavailable
	}
	if _, err := s.registrants.GetByID(ctx, actor.ID); err != nil {
		return nil, err
	}

	var reg *domain.Registration
	err = s.tx.WithinEvent(ctx, input.EventID, func(ctx context.Context, uow repository.UnitOfWork) error {
		existing, err := uow.Registrations().FindActive(ctx, actor.ID, input.EventID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateRegistration
		}

		handle, err := uow.Ledger().Reserve(ctx, input.EventID, input.Quantity)
		if err != nil {
			return capacityError(err)
		}

		r := &domain.Registration{
			ID:                 uuid.NewString(),
			EventID:            input.EventID,
			RegistrantID:       actor.ID,
			ReservationID:      handle.ID,
			Quantity:           input.Quantity,
			Status:             domain.RegistrationStatusPending,
			NotificationStatus: domain.NotificationNotSent,
			ValidationStatus:   domain.ValidationUnvalidated,
		}
		if err := uow.Registrations().Insert(ctx, r); err != nil {
			return err
		}

		issuedAt := s.now()
		token, err := s.codec.Encode(ticket.NewPayload(r.ID, r.RegistrantID, r.EventID, r.Quantity, issuedAt))
		if err != nil {
			return fmt.Errorf("mint ticket token: %w", err)
		}
		if err := uow.Registrations().Confirm(ctx, r.ID, token, issuedAt); err != nil {
			return err
		}
		r.Status = domain.RegistrationStatusConfirmed
		r.Token = token
		r.ConfirmedAt = &issuedAt
		reg = r
		return nil
	})
	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return nil, err
	}

	s.logger.Info("registration confirmed",
		zap.String("registration_id", reg.ID),
		zap.Int64("exhibition_id", reg.EventID),
		zap.Int64("registrant_id", reg.RegistrantID),
		zap.Int("quantity", reg.Quantity))
	s.events.Invalidate(ctx, reg.EventID)
	s.publish(ctx, kafka.EventRegistrationConfirmed, reg)
	s.notify(ctx, reg)
	return reg, nil
}

func capacityError(err error) error {
	var insufficient *ledger.InsufficientCapacityError
	switch {
	case errors.As(err, &insufficient):
		return &domain.CapacityExceededError{Remaining: insufficient.Remaining}
	case errors.Is(err, ledger.ErrEventNotAvailable):
		return domain.ErrEventUnavailable
	case errors.Is(err, ledger.ErrUnknownEvent):
		return domain.ErrExhibitionNotFound
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return domain.ErrInvalidQuantity
	}
	return err
}

// notify hands the registration to the dispatcher. A failed hand-off is recorded like a
// failed delivery so the redelivery sweep picks it up.
func (s *RegistrationService) notify(ctx context.Context, reg *domain.Registration) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Enqueue(ctx, reg.ID)
	if err == nil {
		return
	}
	s.logger.Warn("failed to enqueue ticket notification", zap.String("registration_id", reg.ID), zap.Error(err))
	if err := s.registrations.RecordNotification(ctx, reg.ID, domain.NotificationFailed, "enqueue: "+err.Error(), s.now()); err != nil {
		s.logger.Error("failed to record notification status", zap.String("registration_id", reg.ID), zap.Error(err))
	}
}

// Cancel releases the registration's capacity. Cancelling twice is an error.
func (s *RegistrationService) Cancel(ctx context.Context, actor domain.Actor, id string) (*domain.Registration, error) {
	ctx, span := telemetry.StartSpan(ctx, "registration.cancel", attribute.String("registration.id", id))
	defer span.End()

	current, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(current) {
		return nil, domain.ErrForbidden
	}
	if !current.Active() {
		return nil, domain.ErrAlreadyCancelled
	}

	err = s.tx.WithinEvent(ctx, current.EventID, func(ctx context.Context, uow repository.UnitOfWork) error {
		locked, err := uow.Registrations().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !locked.Active() {
			return domain.ErrAlreadyCancelled
		}
		if err := uow.Registrations().Cancel(ctx, id, s.now()); err != nil {
			return err
		}
		return uow.Ledger().Release(ctx, ledger.Handle{
			ID:       locked.ReservationID,
			EventID:  locked.EventID,
			Quantity: locked.Quantity,
		})
	})
	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return nil, err
	}

	cancelled, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("registration cancelled",
		zap.String("registration_id", id), zap.Int64("exhibition_id", cancelled.EventID), zap.Int64("actor_id", actor.ID))
	s.events.Invalidate(ctx, cancelled.EventID)
	s.publish(ctx, kafka.EventRegistrationCancelled, cancelled)
	return cancelled, nil
}

func (s *RegistrationService) Get(ctx context.Context, actor domain.Actor, id string) (*domain.Registration, error) {
	reg, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(reg) {
		return nil, domain.ErrForbidden
	}
	return reg, nil
}

func (s *RegistrationService) ListMine(ctx context.Context, actor domain.Actor) ([]domain.Registration, error) {
	return s.registrations.ListByRegistrant(ctx, actor.ID)
}

// ListByEvent is for administrators. eventID 0 lists every exhibition.
func (s *RegistrationService) ListByEvent(ctx context.Context, actor domain.Actor, eventID int64, limit, offset int) ([]domain.Registration, error) {
	if !actor.Admin {
		return nil, domain.ErrForbidden
	}
	if eventID < 0 {
		return nil, domain.ErrInvalidEventID
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.registrations.ListByEvent(ctx, eventID, limit, offset)
}

func (s *RegistrationService) publish(ctx context.Context, eventType string, reg *domain.Registration) {
	if s.producer == nil || s.registrationsTopic == "" {
		return
	}
	event := kafka.RegistrationEvent{
		Type:           eventType,
		RegistrationID: reg.ID,
		ExhibitionID:   reg.EventID,
		RegistrantID:   reg.RegistrantID,
		Quantity:       reg.Quantity,
		Status:         string(reg.Status),
		OccurredAt:     s.now(),
	}
	if err := s.producer.Publish(ctx, s.registrationsTopic, reg.ID, event); err != nil {
		s.logger.Warn("failed to publish registration event",
			zap.String("type", eventType), zap.String("registration_id", reg.ID), zap.Error(err))
	}
}

var _ RegistrationUseCase = (*RegistrationService)(nil)
