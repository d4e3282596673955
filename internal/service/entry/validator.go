package entry

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/Domenick1991/exhibitions/internal/kafka"
	"github.com/Domenick1991/exhibitions/internal/telemetry"
	"github.com/Domenick1991/exhibitions/internal/ticket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type Outcome string

const (
	Accepted      Outcome = "accepted"
	InvalidToken  Outcome = "invalid_token"
	UnknownTicket Outcome = "unknown_ticket"
	AlreadyUsed   Outcome = "already_used"
	EventClosed   Outcome = "event_closed"
	// Revoked is returned for tickets whose registration was cancelled.
	Revoked Outcome = "revoked"
)

type Result struct {
	Outcome        Outcome    `json:"outcome"`
	RegistrationID string     `json:"registration_id,omitempty"`
	RegistrantID   int64      `json:"registrant_id,omitempty"`
	RegistrantName string     `json:"registrant_name,omitempty"`
	Quantity       int        `json:"quantity,omitempty"`
	ValidatedAt    *time.Time `json:"validated_at,omitempty"`
}

type ValidatorUseCase interface {
	Validate(ctx context.Context, actor domain.Actor, token string) (Result, error)
}

type RegistrationStore interface {
	GetByID(ctx context.Context, id string) (*domain.Registration, error)
	MarkValidated(ctx context.Context, id string, at time.Time) (*domain.Registration, error)
}

type EventLookup interface {
	Lookup(ctx context.Context, id int64) (*domain.Exhibition, error)
}

type RegistrantLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.Registrant, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

type Validator struct {
	codec         *ticket.Codec
	registrations RegistrationStore
	events        EventLookup
	registrants   RegistrantLookup
	producer      Producer
	topic         string
	logger        *zap.Logger
	now           func() time.Time
}

func NewValidator(codec *ticket.Codec, registrations RegistrationStore, events EventLookup, registrants RegistrantLookup, logger *zap.Logger) *Validator {
	return &Validator{
		codec:         codec,
		registrations: registrations,
		events:        events,
		registrants:   registrants,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithProducer publishes a ticket_validated event for every accepted ticket.
func (v *Validator) WithProducer(producer Producer, topic string) *Validator {
	v.producer = producer
	v.topic = topic
	return v
}

// Validate admits the holder of token at most once. Errors are reserved for the caller
// not being staff and for infrastructure failures; everything about the ticket itself is
// reported as an Outcome.
func (v *Validator) Validate(ctx context.Context, actor domain.Actor, token string) (Result, error) {
	if !actor.Admin {
		return Result{}, domain.ErrForbidden
	}
	ctx, span := telemetry.StartSpan(ctx, "entry.validate")
	defer span.End()

	payload, err := v.codec.Decode(token)
	if err != nil {
		v.logger.Info("rejected undecodable ticket", zap.Error(err))
		return Result{Outcome: InvalidToken}, nil
	}
	span.SetAttributes(attribute.String("registration.id", payload.RegistrationID))

	reg, err := v.registrations.GetByID(ctx, payload.RegistrationID)
	if errors.Is(err, domain.ErrRegistrationNotFound) {
		return Result{Outcome: UnknownTicket}, nil
	}
	if err != nil {
		return Result{}, err
	}
	if reg.Token != token {
		// Signed with our key but never stored: not a ticket we issued for this registration.
		v.logger.Warn("ticket does not match the issued token", zap.String("registration_id", reg.ID))
		return Result{Outcome: InvalidToken}, nil
	}

	switch {
	case reg.Status == domain.RegistrationStatusCancelled:
		return v.result(Revoked, reg), nil
	case reg.Validated():
		return v.result(AlreadyUsed, reg), nil
	}

	event, err := v.events.Lookup(ctx, reg.EventID)
	switch {
	case errors.Is(err, domain.ErrExhibitionNotFound):
		return v.result(EventClosed, reg), nil
	case err != nil:
		return Result{}, err
	case event.ClosedAt(v.now()):
		return v.result(EventClosed, reg), nil
	}

	validated, err := v.registrations.MarkValidated(ctx, reg.ID, v.now())
	switch {
	case errors.Is(err, domain.ErrAlreadyValidated):
		current, getErr := v.registrations.GetByID(ctx, reg.ID)
		if getErr == nil {
			reg = current
		}
		return v.result(AlreadyUsed, reg), nil
	case errors.Is(err, domain.ErrAlreadyCancelled):
		return v.result(Revoked, reg), nil
	case err != nil:
		return Result{}, err
	}

	res := v.result(Accepted, validated)
	if registrant, err := v.registrants.GetByID(ctx, validated.RegistrantID); err == nil {
		res.RegistrantName = registrant.Name
	} else {
		v.logger.Warn("registrant lookup failed", zap.Int64("registrant_id", validated.RegistrantID), zap.Error(err))
	}
	v.logger.Info("ticket accepted",
		zap.String("registration_id", validated.ID),
		zap.Int64("exhibition_id", validated.EventID),
		zap.Int("quantity", validated.Quantity),
		zap.Int64("validated_by", actor.ID))
	v.publish(ctx, validated)
	return res, nil
}

func (v *Validator) result(outcome Outcome, reg *domain.Registration) Result {
	return Result{
		Outcome:        outcome,
		RegistrationID: reg.ID,
		RegistrantID:   reg.RegistrantID,
		Quantity:       reg.Quantity,
		ValidatedAt:    reg.ValidatedAt,
	}
}

func (v *Validator) publish(ctx context.Context, reg *domain.Registration) {
	if v.producer == nil || v.topic == "" {
		return
	}
	err := v.producer.Publish(ctx, v.topic, reg.ID, kafka.RegistrationEvent{
		Type:           kafka.EventTicketValidated,
		RegistrationID: reg.ID,
		ExhibitionID:   reg.EventID,
		RegistrantID:   reg.RegistrantID,
		Quantity:       reg.Quantity,
		Status:         string(reg.Status),
		OccurredAt:     v.now(),
	})
	if err != nil {
		v.logger.Warn("failed to publish validation event", zap.String("registration_id", reg.ID), zap.Error(err))
	}
}

var _ ValidatorUseCase = (*Validator)(nil)
