package store

import (
	"context"

	"github.com/google/uuid"

	"clinicagenda/internal/domain"
)

// ListFilter selects appointments by exact date or by an inclusive date range.
// An empty filter matches everything.
type ListFilter struct {
	Date      string
	StartDate string
	EndDate   string
}

type AppointmentRepository interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Appointment, error)
	MarkComplete(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) (domain.Appointment, error)

	// InDateTransaction runs fn with booking writes for date serialized
	// against every other InDateTransaction call for the same date.
	InDateTransaction(ctx context.Context, date string, fn func(ctx context.Context, tx AgendaTx) error) error
}

// AgendaTx is the set of operations available while a date is locked.
type AgendaTx interface {
	ListByDate(ctx context.Context, date string) ([]domain.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
}
