package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const registrationColumns = `id, exhibition_id, user_id, reservation_id, quantity, status, token,
	notification_status, notification_error, notified_at, validation_status, validated_at,
	created_at, confirmed_at, cancelled_at, updated_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGRegistrationRepository struct {
	db querier
}

func NewRegistrationRepository(db *pgxpool.Pool) RegistrationRepository {
	return &PGRegistrationRepository{db: db}
}

func (r *PGRegistrationRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	return getRegistration(ctx, r.db, id, false)
}

func (r *PGRegistrationRepository) ListByRegistrant(ctx context.Context, registrantID int64) ([]domain.Registration, error) {
	return listRegistrations(ctx, r.db, `SELECT `+registrationColumns+` FROM registrations
		WHERE user_id=$1 ORDER BY created_at DESC`, registrantID)
}

func (r *PGRegistrationRepository) ListByEvent(ctx context.Context, eventID int64, limit, offset int) ([]domain.Registration, error) {
	return listRegistrations(ctx, r.db, `SELECT `+registrationColumns+` FROM registrations
		WHERE $1::bigint = 0 OR exhibition_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, eventID, limit, offset)
}

func (r *PGRegistrationRepository) ListFailedNotifications(ctx context.Context, limit int) ([]domain.Registration, error) {
	return listRegistrations(ctx, r.db, `SELECT `+registrationColumns+` FROM registrations
		WHERE notification_status=$1 AND status=$2 ORDER BY updated_at LIMIT $3`,
		domain.NotificationFailed, domain.RegistrationStatusConfirmed, limit)
}

// RecordNotification stores the outcome of a delivery attempt. A failure never replaces
// an earlier successful delivery.
func (r *PGRegistrationRepository) RecordNotification(ctx context.Context, id string, status domain.NotificationStatus, reason string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE registrations
		SET notification_status=$2, notification_error=$3, notified_at=$4, updated_at=now()
		WHERE id=$1 AND NOT ($2::text = $5::text AND notification_status = $6)`,
		id, status, reason, at, domain.NotificationFailed, domain.NotificationSent)
	if err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM registrations WHERE id=$1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("look up registration: %w", err)
	}
	if !exists {
		return domain.ErrRegistrationNotFound
	}
	return nil
}

func (r *PGRegistrationRepository) MarkValidated(ctx context.Context, id string, at time.Time) (*domain.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx, `UPDATE registrations
		SET validation_status=$2, validated_at=$3, updated_at=now()
		WHERE id=$1 AND validation_status=$4 AND status=$5
		RETURNING `+registrationColumns,
		id, domain.ValidationValidated, at, domain.ValidationUnvalidated, domain.RegistrationStatusConfirmed))
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mark validated: %w", err)
	}

	// The guard did not match; find out which part of it failed.
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.RegistrationStatusCancelled {
		return nil, domain.ErrAlreadyCancelled
	}
	return nil, domain.ErrAlreadyValidated
}

// pgRegistrationWriter runs inside the transaction opened by PGTransactor.
type pgRegistrationWriter struct {
	tx pgx.Tx
}

func (w *pgRegistrationWriter) FindActive(ctx context.Context, registrantID, eventID int64) (*domain.Registration, error) {
	reg, err := scanRegistration(w.tx.QueryRow(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE user_id=$1 AND exhibition_id=$2 AND status<>$3`,
		registrantID, eventID, domain.RegistrationStatusCancelled))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return reg, err
}

func (w *pgRegistrationWriter) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	return getRegistration(ctx, w.tx, id, true)
}

func (w *pgRegistrationWriter) Insert(ctx context.Context, reg *domain.Registration) error {
	err := w.tx.QueryRow(ctx, `INSERT INTO registrations
		(id, exhibition_id, user_id, reservation_id, quantity, status, notification_status, validation_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		reg.ID, reg.EventID, reg.RegistrantID, reg.ReservationID, reg.Quantity, reg.Status,
		reg.NotificationStatus, reg.ValidationStatus).Scan(&reg.CreatedAt, &reg.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateRegistration
	}
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (w *pgRegistrationWriter) Confirm(ctx context.Context, id, token string, at time.Time) error {
	tag, err := w.tx.Exec(ctx, `UPDATE registrations
		SET status=$2, token=$3, confirmed_at=$4, updated_at=now()
		WHERE id=$1 AND status=$5 AND token=''`,
		id, domain.RegistrationStatusConfirmed, token, at, domain.RegistrationStatusPending)
	if err != nil {
		return fmt.Errorf("confirm registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTokenAlreadyIssued
	}
	return nil
}

func (w *pgRegistrationWriter) Cancel(ctx context.Context, id string, at time.Time) error {
	tag, err := w.tx.Exec(ctx, `UPDATE registrations
		SET status=$2, cancelled_at=$3, updated_at=now()
		WHERE id=$1 AND status<>$2`, id, domain.RegistrationStatusCancelled, at)
	if err != nil {
		return fmt.Errorf("cancel registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyCancelled
	}
	return nil
}

func getRegistration(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	reg, err := scanRegistration(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRegistrationNotFound
	}
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func listRegistrations(ctx context.Context, q querier, query string, args ...any) ([]domain.Registration, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	regs := make([]domain.Registration, 0)
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

func scanRegistration(row pgx.Row) (*domain.Registration, error) {
	var reg domain.Registration
	if err := row.Scan(&reg.ID, &reg.EventID, &reg.RegistrantID, &reg.ReservationID, &reg.Quantity,
		&reg.Status, &reg.Token, &reg.NotificationStatus, &reg.NotificationError, &reg.NotifiedAt,
		&reg.ValidationStatus, &reg.ValidatedAt, &reg.CreatedAt, &reg.ConfirmedAt, &reg.CancelledAt,
		&reg.UpdatedAt); err != nil {
		return nil, err
	}
	return &reg, nil
}

var (
	_ RegistrationRepository = (*PGRegistrationRepository)(nil)
	_ RegistrationWriter     = (*pgRegistrationWriter)(nil)
)
