package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/dinehall/tablebook/libs/db"
	"github.com/dinehall/tablebook/services/reservation-service/internal/model"
	"github.com/dinehall/tablebook/services/reservation-service/internal/tables"
)

// TableRepository serves the table registry from Postgres. The admin side of
// the system owns the rows; this side only reads them.
type TableRepository struct {
	pool *db.Pool
}

func NewTableRepository(pool *db.Pool) *TableRepository {
	return &TableRepository{pool: pool}
}

func (r *TableRepository) ListActive(ctx context.Context) ([]model.Table, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, capacity, min_party_size, active
		FROM restaurant_tables
		WHERE active
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Table
	for rows.Next() {
		var t model.Table
		if err := rows.Scan(&t.ID, &t.Capacity, &t.MinPartySize, &t.Active); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *TableRepository) Get(ctx context.Context, id string) (model.Table, error) {
	var t model.Table
	err := r.pool.QueryRow(ctx, `
		SELECT id, capacity, min_party_size, active
		FROM restaurant_tables
		WHERE id = $1 AND active
	`, id).Scan(&t.ID, &t.Capacity, &t.MinPartySize, &t.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Table{}, tables.ErrNotFound
	}
	if err != nil {
		return model.Table{}, err
	}
	return t, nil
}
