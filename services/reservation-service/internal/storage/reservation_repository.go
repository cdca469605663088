package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dinehall/tablebook/libs/db"
	"github.com/dinehall/tablebook/services/reservation-service/internal/model"
	"github.com/dinehall/tablebook/services/reservation-service/internal/outbox"
	"github.com/dinehall/tablebook/services/reservation-service/internal/reservations"
)

// ReservationRepository persists reservations in Postgres. Each mutation
// commits the reservation row and its lifecycle event in one transaction.
type ReservationRepository struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewReservationRepository(pool *db.Pool, outboxRepo *outbox.Repository) *ReservationRepository {
	return &ReservationRepository{pool: pool, outboxRepo: outboxRepo}
}

const reservationColumns = `
	id, table_id, customer_name, customer_email, customer_phone, party_size,
	start_time, end_time, duration_minutes, grace_period_minutes, max_sitting_minutes,
	special_requests, status, actual_arrival, actual_departure, late_arrival,
	arrival_notes, created_at, updated_at`

func (r *ReservationRepository) Create(ctx context.Context, res *model.Reservation, evt *outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO reservations
			(id, table_id, customer_name, customer_email, customer_phone, party_size,
			 start_time, end_time, duration_minutes, grace_period_minutes, max_sitting_minutes,
			 special_requests, status, late_arrival, arrival_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, res.ID, res.TableID, res.CustomerName, res.CustomerEmail, res.CustomerPhone, res.PartySize,
		res.StartTime, res.EndTime, res.DurationMinutes, res.GracePeriodMinutes, res.MaxSittingMinutes,
		res.SpecialRequests, string(res.Status), res.LateArrival, res.ArrivalNotes, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		return mapMutationErr(err, res)
	}

	if evt != nil {
		if err := r.outboxRepo.Insert(ctx, tx, *evt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *ReservationRepository) Get(ctx context.Context, id string) (model.Reservation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = $1
	`, id)
	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Reservation{}, &reservations.NotFoundError{Kind: "reservation", ID: id}
	}
	return res, err
}

func (r *ReservationRepository) Update(ctx context.Context, res model.Reservation, evt *outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE reservations
		SET table_id = $2,
			customer_name = $3,
			customer_email = $4,
			customer_phone = $5,
			party_size = $6,
			start_time = $7,
			end_time = $8,
			duration_minutes = $9,
			grace_period_minutes = $10,
			max_sitting_minutes = $11,
			special_requests = $12,
			status = $13,
			actual_arrival = $14,
			actual_departure = $15,
			late_arrival = $16,
			arrival_notes = $17,
			updated_at = $18
		WHERE id = $1
	`, res.ID, res.TableID, res.CustomerName, res.CustomerEmail, res.CustomerPhone, res.PartySize,
		res.StartTime, res.EndTime, res.DurationMinutes, res.GracePeriodMinutes, res.MaxSittingMinutes,
		res.SpecialRequests, string(res.Status), res.ActualArrival, res.ActualDeparture, res.LateArrival,
		res.ArrivalNotes, res.UpdatedAt)
	if err != nil {
		return mapMutationErr(err, &res)
	}
	if tag.RowsAffected() == 0 {
		return &reservations.NotFoundError{Kind: "reservation", ID: res.ID}
	}

	if evt != nil {
		if err := r.outboxRepo.Insert(ctx, tx, *evt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *ReservationRepository) ListBlocking(ctx context.Context, tableID string, start, end time.Time, excludeID string) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE table_id = $1
			AND status IN ('confirmed', 'seated')
			AND start_time < $3
			AND end_time > $2
			AND ($4 = '' OR id::text <> $4)
		ORDER BY start_time ASC
	`, tableID, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *ReservationRepository) ListByDay(ctx context.Context, dayStart, dayEnd time.Time) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE start_time >= $1 AND start_time < $2
		ORDER BY start_time ASC
	`, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// ListOccupiedByDay returns the reservations that occupied a table on the
// day: everything except cancellations.
func (r *ReservationRepository) ListOccupiedByDay(ctx context.Context, dayStart, dayEnd time.Time) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE start_time >= $1 AND start_time < $2
			AND status <> 'cancelled'
		ORDER BY start_time ASC
	`, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// ListCompleted returns departed reservations starting in [from, to).
func (r *ReservationRepository) ListCompleted(ctx context.Context, from, to time.Time) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE start_time >= $1 AND start_time < $2
			AND status = 'departed'
		ORDER BY start_time ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (model.Reservation, error) {
	var res model.Reservation
	var status string
	var arrival, departure *time.Time
	err := row.Scan(
		&res.ID,
		&res.TableID,
		&res.CustomerName,
		&res.CustomerEmail,
		&res.CustomerPhone,
		&res.PartySize,
		&res.StartTime,
		&res.EndTime,
		&res.DurationMinutes,
		&res.GracePeriodMinutes,
		&res.MaxSittingMinutes,
		&res.SpecialRequests,
		&status,
		&arrival,
		&departure,
		&res.LateArrival,
		&res.ArrivalNotes,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return model.Reservation{}, err
	}
	res.Status = model.Status(status)
	res.ActualArrival = arrival
	res.ActualDeparture = departure
	return res, nil
}

func collectReservations(rows pgx.Rows) ([]model.Reservation, error) {
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// mapMutationErr converts a violation of the no-overlap exclusion constraint
// into the domain conflict error.
func mapMutationErr(err error, res *model.Reservation) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
		return &reservations.ConflictError{TableID: res.TableID, Start: res.StartTime, End: res.EndTime}
	}
	return err
}
