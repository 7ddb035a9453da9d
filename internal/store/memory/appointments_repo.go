package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinicagenda/internal/domain"
	"clinicagenda/internal/store"
)

// AppointmentRepo keeps appointments in process memory. Writes for a date are
// serialized by a per-date mutex, mirroring the advisory lock used by the
// postgres store.
type AppointmentRepo struct {
	mu    sync.RWMutex
	rows  map[uuid.UUID]domain.Appointment
	locks sync.Map // date -> *sync.Mutex
}

func NewAppointmentRepo() *AppointmentRepo {
	return &AppointmentRepo{rows: make(map[uuid.UUID]domain.Appointment)}
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.rows[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (r *AppointmentRepo) List(ctx context.Context, filter store.ListFilter) ([]domain.Appointment, error) {
	r.mu.RLock()
	out := make([]domain.Appointment, 0, len(r.rows))
	for _, a := range r.rows {
		if matches(a, filter) {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Appointment) int {
		if c := strings.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.Time, b.Time)
	})
	return out, nil
}

func matches(a domain.Appointment, f store.ListFilter) bool {
	switch {
	case f.Date != "":
		return a.Date == f.Date
	case f.StartDate != "" && f.EndDate != "":
		return a.Date >= f.StartDate && a.Date <= f.EndDate
	default:
		return true
	}
}

func (r *AppointmentRepo) MarkComplete(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	a.Completed = true
	a.UpdatedAt = time.Now().UTC()
	r.rows[id] = a
	return a, nil
}

func (r *AppointmentRepo) Delete(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	delete(r.rows, id)
	return a, nil
}

func (r *AppointmentRepo) InDateTransaction(ctx context.Context, date string, fn func(ctx context.Context, tx store.AgendaTx) error) error {
	v, _ := r.locks.LoadOrStore(date, &sync.Mutex{})
	lock := v.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, agendaTx{repo: r})
}

type agendaTx struct {
	repo *AppointmentRepo
}

func (t agendaTx) ListByDate(ctx context.Context, date string) ([]domain.Appointment, error) {
	return t.repo.List(ctx, store.ListFilter{Date: date})
}

func (t agendaTx) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return t.repo.Get(ctx, id)
}

func (t agendaTx) Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now

	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if _, exists := t.repo.rows[appt.ID]; exists {
		return domain.Appointment{}, store.ErrConflict
	}
	t.repo.rows[appt.ID] = appt
	return appt, nil
}

func (t agendaTx) Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	prev, ok := t.repo.rows[appt.ID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	appt.CreatedAt = prev.CreatedAt
	appt.UpdatedAt = time.Now().UTC()
	t.repo.rows[appt.ID] = appt
	return appt, nil
}
