package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const exhibitionColumns = `id, title, description, location, starts_at, ends_at, capacity, reserved_units, active, published, created_at, updated_at`

type PGExhibitionRepository struct {
	db *pgxpool.Pool
}

func NewExhibitionRepository(db *pgxpool.Pool) ExhibitionRepository {
	return &PGExhibitionRepository{db: db}
}

func (r *PGExhibitionRepository) List(ctx context.Context, publishedOnly bool) ([]domain.Exhibition, error) {
	rows, err := r.db.Query(ctx, `SELECT `+exhibitionColumns+` FROM exhibitions
		WHERE NOT $1::boolean OR (published AND active)
		ORDER BY starts_at NULLS LAST, id`, publishedOnly)
	if err != nil {
		return nil, fmt.Errorf("list exhibitions: %w", err)
	}
	defer rows.Close()

	exhibitions := make([]domain.Exhibition, 0)
	for rows.Next() {
		e, err := scanExhibition(rows)
		if err != nil {
			return nil, err
		}
		exhibitions = append(exhibitions, *e)
	}
	return exhibitions, rows.Err()
}

func (r *PGExhibitionRepository) GetByID(ctx context.Context, id int64) (*domain.Exhibition, error) {
	e, err := scanExhibition(r.db.QueryRow(ctx, `SELECT `+exhibitionColumns+` FROM exhibitions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrExhibitionNotFound
	}
	return e, err
}

func scanExhibition(row pgx.Row) (*domain.Exhibition, error) {
	var e domain.Exhibition
	var startsAt, endsAt *time.Time
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &startsAt, &endsAt,
		&e.Capacity, &e.ReservedUnits, &e.Active, &e.Published, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if startsAt != nil {
		e.StartsAt = *startsAt
	}
	if endsAt != nil {
		e.EndsAt = *endsAt
	}
	return &e, nil
}

var _ ExhibitionRepository = (*PGExhibitionRepository)(nil)
