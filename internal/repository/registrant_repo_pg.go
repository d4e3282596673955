package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGRegistrantRepository struct {
	db *pgxpool.Pool
}

func NewRegistrantRepository(db *pgxpool.Pool) RegistrantRepository {
	return &PGRegistrantRepository{db: db}
}

func (r *PGRegistrantRepository) GetByID(ctx context.Context, id int64) (*domain.Registrant, error) {
	var u domain.Registrant
	err := r.db.QueryRow(ctx, `SELECT id, email, name, is_admin FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.IsAdmin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRegistrantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

var _ RegistrantRepository = (*PGRegistrantRepository)(nil)
