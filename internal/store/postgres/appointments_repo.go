package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"clinicagenda/internal/domain"
	"clinicagenda/internal/store"
)

const (
	exclusionViolation = "23P01"
	uniqueViolation    = "23505"
	overlapConstraint  = "appointments_no_overlap"
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type agendaTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db, id)
}

func (r *AppointmentRepo) List(ctx context.Context, filter store.ListFilter) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().Model(&rows)
	switch {
	case filter.Date != "":
		q = q.Where("date = ?", filter.Date)
	case filter.StartDate != "" && filter.EndDate != "":
		q = q.Where("date >= ?", filter.StartDate).Where("date <= ?", filter.EndDate)
	}
	if err := q.OrderExpr("date ASC, start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) MarkComplete(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.db.NewUpdate().
		Model(&out).
		Set("completed = TRUE").
		Set("updated_at = now()").
		Where("id = ?", id).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapError(err)
	}
	return out, nil
}

func (r *AppointmentRepo) Delete(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.db.NewDelete().
		Model(&out).
		Where("id = ?", id).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapError(err)
	}
	return out, nil
}

func (r *AppointmentRepo) InDateTransaction(ctx context.Context, date string, fn func(ctx context.Context, tx store.AgendaTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockAgendaDate(ctx, tx, date); err != nil {
			return err
		}
		return fn(ctx, agendaTx{tx: tx})
	})
}

// lockAgendaDate takes a transaction-scoped advisory lock so concurrent
// bookings for the same date check conflicts one at a time.
func lockAgendaDate(ctx context.Context, tx bun.Tx, date string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "agenda:"+date).Exec(ctx)
	return err
}

func (t agendaTx) ListByDate(ctx context.Context, date string) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := t.tx.NewSelect().
		Model(&rows).
		Where("date = ?", date).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t agendaTx) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, t.tx, id)
}

func (t agendaTx) Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	if _, err := t.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, mapError(err)
	}
	return m, nil
}

func (t agendaTx) Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := t.tx.NewUpdate().
		Model(&m).
		Column("date", "start_time", "duration_minutes", "title", "client_id", "client_name",
			"value", "note", "starts_at", "ends_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func getAppointment(ctx context.Context, db bun.IDB, id uuid.UUID) (domain.Appointment, error) {
	var out domain.Appointment
	err := db.NewSelect().
		Model(&out).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapError(err)
	}
	return out, nil
}

// mapError translates driver errors into store sentinels. The exclusion
// constraint only fires when the advisory lock was bypassed, for example by a
// write from outside this service.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == exclusionViolation && pgErr.ConstraintName == overlapConstraint:
			return store.ErrConflict
		case pgErr.Code == uniqueViolation:
			return store.ErrConflict
		}
	}
	return err
}
