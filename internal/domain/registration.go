package domain

import "time"

type RegistrationStatus string

const (
	RegistrationStatusPending   RegistrationStatus = "pending"
	RegistrationStatusConfirmed RegistrationStatus = "confirmed"
	RegistrationStatusCancelled RegistrationStatus = "cancelled"
)

type NotificationStatus string

const (
	NotificationNotSent NotificationStatus = "not_sent"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

type ValidationStatus string

const (
	ValidationUnvalidated ValidationStatus = "unvalidated"
	ValidationValidated   ValidationStatus = "validated"
)

// MaxTicketsPerRegistration bounds a single registration regardless of remaining capacity.
const MaxTicketsPerRegistration = 10

type Registration struct {
	ID                 string
	EventID            int64
	RegistrantID       int64
	ReservationID      string
	Quantity           int
	Status             RegistrationStatus
	Token              string
	NotificationStatus NotificationStatus
	NotificationError  string
	NotifiedAt         *time.Time
	ValidationStatus   ValidationStatus
	ValidatedAt        *time.Time
	CreatedAt          time.Time
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	UpdatedAt          time.Time
}

func (r *Registration) Active() bool {
	return r.Status != RegistrationStatusCancelled
}

func (r *Registration) Validated() bool {
	return r.ValidationStatus == ValidationValidated
}
