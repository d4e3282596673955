package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/Domenick1991/exhibitions/internal/ledger"
)

type ExhibitionRepository interface {
	List(ctx context.Context, publishedOnly bool) ([]domain.Exhibition, error)
	GetByID(ctx context.Context, id int64) (*domain.Exhibition, error)
}

type RegistrantRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Registrant, error)
}

// RegistrationRepository covers reads and the updates that never touch capacity.
type RegistrationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Registration, error)
	ListByRegistrant(ctx context.Context, registrantID int64) ([]domain.Registration, error)
	// ListByEvent lists newest first; eventID 0 lists every event.
	ListByEvent(ctx context.Context, eventID int64, limit, offset int) ([]domain.Registration, error)
	ListFailedNotifications(ctx context.Context, limit int) ([]domain.Registration, error)
	RecordNotification(ctx context.Context, id string, status domain.NotificationStatus, reason string, at time.Time) error
	// MarkValidated flips a confirmed, unvalidated registration to validated. Only one
	// concurrent caller can win; the others get domain.ErrAlreadyValidated.
	MarkValidated(ctx context.Context, id string, at time.Time) (*domain.Registration, error)
}

// RegistrationWriter is the part of registration storage that runs under an event lock.
type RegistrationWriter interface {
	// FindActive returns nil when the registrant has no non-cancelled registration for the event.
	FindActive(ctx context.Context, registrantID, eventID int64) (*domain.Registration, error)
	GetByID(ctx context.Context, id string) (*domain.Registration, error)
	Insert(ctx context.Context, r *domain.Registration) error
	Confirm(ctx context.Context, id, token string, at time.Time) error
	Cancel(ctx context.Context, id string, at time.Time) error
}

// UnitOfWork groups the registration writes and ledger calls of one transaction.
type UnitOfWork interface {
	Registrations() RegistrationWriter
	Ledger() ledger.Ledger
}

// Transactor runs fn with the event locked. Nothing fn did is visible to others unless
// fn returns nil, and then all of it is.
type Transactor interface {
	WithinEvent(ctx context.Context, eventID int64, fn func(ctx context.Context, uow UnitOfWork) error) error
}
