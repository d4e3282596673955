package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx.Tx the ledger needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres keeps the counter in exhibitions.reserved_units and one row per handle in
// reservations. Each method issues more than one statement, so q must be a transaction.
type Postgres struct {
	q Querier
}

func NewPostgres(q Querier) *Postgres {
	return &Postgres{q: q}
}

func (l *Postgres) Reserve(ctx context.Context, eventID int64, quantity int) (Handle, error) {
	if quantity <= 0 {
		return Handle{}, ErrInvalidQuantity
	}

	var remaining int
	err := l.q.QueryRow(ctx, `
		UPDATE exhibitions
		SET reserved_units = reserved_units + $2, updated_at = now()
		WHERE id = $1 AND active AND published AND reserved_units + $2 <= capacity
		RETURNING capacity - reserved_units`, eventID, quantity).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return Handle{}, l.refusal(ctx, eventID, quantity)
	}
	if err != nil {
		return Handle{}, fmt.Errorf("reserve capacity: %w", err)
	}

	h := Handle{ID: uuid.NewString(), EventID: eventID, Quantity: quantity}
	if _, err := l.q.Exec(ctx, `INSERT INTO reservations (id, exhibition_id, quantity) VALUES ($1, $2, $3)`,
		h.ID, h.EventID, h.Quantity); err != nil {
		return Handle{}, fmt.Errorf("record reservation: %w", err)
	}
	return h, nil
}

// refusal explains why the conditional update matched no row.
func (l *Postgres) refusal(ctx context.Context, eventID int64, quantity int) error {
	var remaining int
	var available bool
	err := l.q.QueryRow(ctx, `SELECT capacity - reserved_units, active AND published FROM exhibitions WHERE id = $1`, eventID).
		Scan(&remaining, &available)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrUnknownEvent, eventID)
	}
	if err != nil {
		return fmt.Errorf("read capacity: %w", err)
	}
	if !available {
		return ErrEventNotAvailable
	}
	return &InsufficientCapacityError{EventID: eventID, Requested: quantity, Remaining: remaining}
}

func (l *Postgres) Release(ctx context.Context, h Handle) error {
	var eventID int64
	var quantity int
	err := l.q.QueryRow(ctx, `
		UPDATE reservations SET released_at = now()
		WHERE id = $1 AND released_at IS NULL
		RETURNING exhibition_id, quantity`, h.ID).Scan(&eventID, &quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := l.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`, h.ID).Scan(&exists); err != nil {
			return fmt.Errorf("look up reservation: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrUnknownHandle, h.ID)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}

	if _, err := l.q.Exec(ctx, `
		UPDATE exhibitions
		SET reserved_units = reserved_units - $2, updated_at = now()
		WHERE id = $1`, eventID, quantity); err != nil {
		return fmt.Errorf("restore capacity: %w", err)
	}
	return nil
}

func (l *Postgres) Remaining(ctx context.Context, eventID int64) (int, error) {
	var remaining int
	err := l.q.QueryRow(ctx, `SELECT capacity - reserved_units FROM exhibitions WHERE id = $1`, eventID).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownEvent, eventID)
	}
	if err != nil {
		return 0, fmt.Errorf("read capacity: %w", err)
	}
	return remaining, nil
}

func (l *Postgres) SetCapacity(ctx context.Context, eventID int64, capacity int) error {
	if capacity <= 0 {
		return ErrInvalidQuantity
	}
	tag, err := l.q.Exec(ctx, `
		UPDATE exhibitions SET capacity = $2, updated_at = now()
		WHERE id = $1 AND reserved_units <= $2`, eventID, capacity)
	if err != nil {
		return fmt.Errorf("set capacity: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := l.Remaining(ctx, eventID); err != nil {
		return err
	}
	return ErrCapacityBelowReserved
}

var _ Ledger = (*Postgres)(nil)
