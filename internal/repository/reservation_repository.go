package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/restaurant-reservations/internal/model"
)

// ReservationRepo is the authoritative reservation store backed by the
// `reservations` table.  Timestamps are written in UTC; the creation
// day used for the "no past dates" rule is taken in loc.
type ReservationRepo struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
}

// NewReservationRepo returns a ReservationRepo bound to db.  A nil loc
// means UTC.
func NewReservationRepo(db *sql.DB, loc *time.Location) *ReservationRepo {
	if loc == nil {
		loc = time.UTC
	}
	return &ReservationRepo{db: db, loc: loc, now: time.Now}
}

const reservationColumns = `id, first_name, last_name, phone, DATE_FORMAT(res_date, '%Y-%m-%d'), res_time,
       party_size, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (model.Reservation, error) {
	var r model.Reservation
	var st string
	err := s.Scan(&r.ID, &r.FirstName, &r.LastName, &r.Phone, &r.Date, &r.Time,
		&r.PartySize, &st, &r.CreatedAt, &r.UpdatedAt)
	r.Status = model.Status(st)
	return r, err
}

// Create validates in, assigns a new id and stores it as pending.
// Invalid input yields a *model.ValidationError.
func (r *ReservationRepo) Create(ctx context.Context, in model.NewReservation) (model.Reservation, error) {
	in = in.Normalize()
	now := r.now()
	if err := in.Validate(now.In(r.loc).Format(model.DateLayout)); err != nil {
		return model.Reservation{}, err
	}
	rec := model.Reservation{
		ID:        uuid.NewString(),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Phone:     in.Phone,
		Date:      in.Date,
		Time:      in.Time,
		PartySize: in.PartySize,
		Status:    model.StatusPending,
		CreatedAt: now.UTC().Truncate(time.Millisecond),
	}
	rec.UpdatedAt = rec.CreatedAt

	const q = `INSERT INTO reservations
        (id, first_name, last_name, phone, res_date, res_time, party_size, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, rec.ID, rec.FirstName, rec.LastName, rec.Phone, rec.Date, rec.Time,
		rec.PartySize, string(rec.Status), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return model.Reservation{}, fmt.Errorf("insert reservation: %w: %w", model.ErrWrite, err)
	}
	return rec, nil
}

// Query returns the reservations matching q ordered by date, time and
// creation so equal slots come back in a stable order.
func (r *ReservationRepo) Query(ctx context.Context, q model.Query) ([]model.Reservation, error) {
	var (
		where []string
		args  []any
	)
	if q.From != "" {
		where = append(where, "res_date >= ?")
		args = append(args, q.From)
	}
	if q.To != "" {
		where = append(where, "res_date <= ?")
		args = append(args, q.To)
	}
	if q.Status != "" && q.Status != model.StatusAny {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	stmt := "SELECT " + reservationColumns + " FROM reservations"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY res_date, res_time, created_at"

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w: %w", model.ErrQuery, err)
	}
	defer rows.Close()

	out := []model.Reservation{}
	for rows.Next() {
		rec, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w: %w", model.ErrQuery, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w: %w", model.ErrQuery, err)
	}
	return out, nil
}

// Get loads one reservation.  A missing id yields model.ErrNotFound.
func (r *ReservationRepo) Get(ctx context.Context, id string) (model.Reservation, error) {
	return getReservation(ctx, r.db, id)
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getReservation(ctx context.Context, q rowQueryer, id string) (model.Reservation, error) {
	row := q.QueryRowContext(ctx, "SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id)
	rec, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, model.ErrNotFound
	}
	if err != nil {
		return model.Reservation{}, fmt.Errorf("get reservation: %w: %w", model.ErrQuery, err)
	}
	return rec, nil
}

// Update changes the status of one reservation.  With p.ExpectStatus set
// the row is only touched while it still holds that status; otherwise a
// *model.ConflictError is returned carrying the status found.  The write
// and its read-back share a transaction, so a failed read-back leaves the
// status unchanged.
func (r *ReservationRepo) Update(ctx context.Context, id string, p model.Patch) (model.Reservation, error) {
	if !p.Status.Valid() {
		return model.Reservation{}, &model.ValidationError{Fields: map[string]string{"status": "unknown status"}}
	}
	stmt := "UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?"
	args := []any{string(p.Status), r.now().UTC().Truncate(time.Millisecond), id}
	if p.ExpectStatus != "" {
		stmt += " AND status = ?"
		args = append(args, string(p.ExpectStatus))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Reservation{}, fmt.Errorf("update reservation: %w: %w", model.ErrWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return model.Reservation{}, fmt.Errorf("update reservation: %w: %w", model.ErrWrite, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Reservation{}, fmt.Errorf("update reservation: %w: %w", model.ErrWrite, err)
	}

	cur, err := getReservation(ctx, tx, id)
	if err != nil {
		if n > 0 {
			return model.Reservation{}, fmt.Errorf("update reservation: %w: read back: %v", model.ErrWrite, err)
		}
		return model.Reservation{}, err
	}
	if n == 0 && p.ExpectStatus != "" && cur.Status != p.Status {
		return model.Reservation{}, &model.ConflictError{ID: id, Expected: p.ExpectStatus, Actual: cur.Status}
	}
	if err := tx.Commit(); err != nil {
		return model.Reservation{}, fmt.Errorf("update reservation: %w: %w", model.ErrWrite, err)
	}
	return cur, nil
}
