package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/exhibitions/config"
	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/Domenick1991/exhibitions/internal/telemetry"
	"github.com/Domenick1991/exhibitions/internal/ticket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const ReasonTimeout = "timeout"

// Outcome is Delivered, or DeliveryFailed with a reason.
type Outcome struct {
	Delivered bool   `json:"delivered"`
	Reason    string `json:"reason,omitempty"`
}

func Delivered() Outcome { return Outcome{Delivered: true} }

func DeliveryFailed(reason string) Outcome { return Outcome{Reason: reason} }

// Message is everything a transport needs to send one ticket.
type Message struct {
	To           string
	ToName       string
	Exhibition   domain.Exhibition
	Registration domain.Registration
	QRCode       []byte
}

type Transport interface {
	Send(ctx context.Context, msg Message) error
}

type RegistrationStore interface {
	GetByID(ctx context.Context, id string) (*domain.Registration, error)
	ListFailedNotifications(ctx context.Context, limit int) ([]domain.Registration, error)
	RecordNotification(ctx context.Context, id string, status domain.NotificationStatus, reason string, at time.Time) error
}

type EventLookup interface {
	Lookup(ctx context.Context, id int64) (*domain.Exhibition, error)
}

type RegistrantLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.Registrant, error)
}

// Dispatcher sends issued tickets. It never retries on its own and never changes the
// registration status; it only records how the last attempt went.
type Dispatcher struct {
	registrations RegistrationStore
	events        EventLookup
	registrants   RegistrantLookup
	renderer      *ticket.Renderer
	transport     Transport
	cfg           config.NotificationsConfig
	logger        *zap.Logger
	now           func() time.Time
}

func NewDispatcher(
	registrations RegistrationStore,
	events EventLookup,
	registrants RegistrantLookup,
	renderer *ticket.Renderer,
	transport Transport,
	cfg config.NotificationsConfig,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		registrations: registrations,
		events:        events,
		registrants:   registrants,
		renderer:      renderer,
		transport:     transport,
		cfg:           cfg,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Deliver attempts one delivery of reg's token and records the result on reg.
func (d *Dispatcher) Deliver(ctx context.Context, reg *domain.Registration) Outcome {
	ctx, span := telemetry.StartSpan(ctx, "notification.deliver", attribute.String("registration.id", reg.ID))
	defer span.End()

	log := d.logger.With(zap.String("registration_id", reg.ID))
	if reg.Status != domain.RegistrationStatusConfirmed || reg.Token == "" {
		log.Warn("skipping notification for registration without a live ticket", zap.String("status", string(reg.Status)))
		return DeliveryFailed("registration is " + string(reg.Status))
	}

	outcome := d.attempt(ctx, reg)
	status := domain.NotificationSent
	if !outcome.Delivered {
		status = domain.NotificationFailed
		telemetry.SetSpanError(ctx, errors.New(outcome.Reason))
		log.Warn("ticket delivery failed", zap.String("reason", outcome.Reason))
	}
	if err := d.registrations.RecordNotification(ctx, reg.ID, status, outcome.Reason, d.now()); err != nil {
		log.Error("failed to record notification status", zap.Error(err))
	}
	return outcome
}

func (d *Dispatcher) attempt(ctx context.Context, reg *domain.Registration) Outcome {
	registrant, err := d.registrants.GetByID(ctx, reg.RegistrantID)
	if err != nil {
		return DeliveryFailed(fmt.Sprintf("registrant lookup: %v", err))
	}
	event, err := d.events.Lookup(ctx, reg.EventID)
	if err != nil {
		return DeliveryFailed(fmt.Sprintf("exhibition lookup: %v", err))
	}

	if d.cfg.Mode != config.NotificationsLive || d.transport == nil {
		d.logger.Info("notification transport disabled, ticket not sent",
			zap.String("registration_id", reg.ID),
			zap.String("to", registrant.Email),
			zap.String("exhibition", event.Title))
		return Delivered()
	}

	png, err := d.renderer.PNG(reg.Token)
	if err != nil {
		return DeliveryFailed(fmt.Sprintf("render ticket: %v", err))
	}

	sendCtx := ctx
	if timeout := d.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err = d.transport.Send(sendCtx, Message{
		To:           registrant.Email,
		ToName:       registrant.Name,
		Exhibition:   *event,
		Registration: *reg,
		QRCode:       png,
	})
	switch {
	case err == nil:
		return Delivered()
	case errors.Is(err, context.DeadlineExceeded):
		return DeliveryFailed(ReasonTimeout)
	default:
		return DeliveryFailed(err.Error())
	}
}

// DeliverByID loads the registration and delivers it.
func (d *Dispatcher) DeliverByID(ctx context.Context, id string) (Outcome, error) {
	reg, err := d.registrations.GetByID(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	return d.Deliver(ctx, reg), nil
}

// Redeliver re-sends the token already issued to a registration. Only the owner or an
// administrator may ask for it.
func (d *Dispatcher) Redeliver(ctx context.Context, actor domain.Actor, id string) (Outcome, error) {
	reg, err := d.registrations.GetByID(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if !actor.CanManage(reg) {
		return Outcome{}, domain.ErrForbidden
	}
	if reg.Status != domain.RegistrationStatusConfirmed || reg.Token == "" {
		return Outcome{}, domain.ErrNotificationState
	}
	return d.Deliver(ctx, reg), nil
}

// RedeliverFailed retries up to limit registrations whose last delivery failed and
// reports how many went through. Each registration is re-read before sending so one
// cancelled or delivered since the listing is left alone.
func (d *Dispatcher) RedeliverFailed(ctx context.Context, limit int) (int, error) {
	failed, err := d.registrations.ListFailedNotifications(ctx, limit)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for i := range failed {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		reg, err := d.registrations.GetByID(ctx, failed[i].ID)
		if errors.Is(err, domain.ErrRegistrationNotFound) {
			continue
		}
		if err != nil {
			return delivered, err
		}
		if reg.Status != domain.RegistrationStatusConfirmed || reg.NotificationStatus != domain.NotificationFailed {
			continue
		}
		if d.Deliver(ctx, reg).Delivered {
			delivered++
		}
	}
	return delivered, nil
}
