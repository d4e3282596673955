package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/Domenick1991/exhibitions/internal/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// TxBeginner opens transactions; *pgxpool.Pool satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PGTransactor runs a unit of work in one transaction holding the exhibition row lock.
// Serialization failures and deadlocks are retried up to maxRetries times.
type PGTransactor struct {
	db         TxBeginner
	maxRetries int
	logger     *zap.Logger
}

func NewTransactor(db TxBeginner, maxRetries int, logger *zap.Logger) *PGTransactor {
	return &PGTransactor{db: db, maxRetries: maxRetries, logger: logger}
}

func (t *PGTransactor) WithinEvent(ctx context.Context, eventID int64, fn func(ctx context.Context, uow UnitOfWork) error) error {
	for attempt := 0; ; attempt++ {
		err := t.runOnce(ctx, eventID, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt >= t.maxRetries {
			return fmt.Errorf("%w: %v", domain.ErrWriteConflict, err)
		}
		t.logger.Warn("retrying transaction after write conflict",
			zap.Int64("exhibition_id", eventID), zap.Int("attempt", attempt+1), zap.Error(err))
	}
}

func (t *PGTransactor) runOnce(ctx context.Context, eventID int64, fn func(ctx context.Context, uow UnitOfWork) error) error {
	tx, err := t.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked int64
	err = tx.QueryRow(ctx, `SELECT id FROM exhibitions WHERE id=$1 FOR UPDATE`, eventID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrExhibitionNotFound
	}
	if err != nil {
		return fmt.Errorf("lock exhibition: %w", err)
	}

	if err := fn(ctx, &pgUnit{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgUnit struct {
	tx pgx.Tx
}

func (u *pgUnit) Registrations() RegistrationWriter {
	return &pgRegistrationWriter{tx: u.tx}
}

func (u *pgUnit) Ledger() ledger.Ledger {
	return ledger.NewPostgres(u.tx)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation
}

var _ Transactor = (*PGTransactor)(nil)
