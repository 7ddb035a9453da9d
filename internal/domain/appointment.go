package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultDurationMinutes applies when a booking omits its duration.
const DefaultDurationMinutes = 60

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID              uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Date            string    `bun:"date,notnull" json:"date"`
	Time            string    `bun:"start_time,notnull" json:"time"`
	DurationMinutes int       `bun:"duration_minutes,notnull" json:"duration"`
	Title           string    `bun:"title,notnull" json:"title"`
	ClientID        string    `bun:"client_id,notnull" json:"clientId"`
	ClientName      string    `bun:"client_name,notnull" json:"clientName"`
	Value           float64   `bun:"value,notnull" json:"value"`
	Note            string    `bun:"note" json:"note,omitempty"`
	Completed       bool      `bun:"completed,notnull" json:"completed"`
	StartsAt        time.Time `bun:"starts_at,notnull" json:"-"`
	EndsAt          time.Time `bun:"ends_at,notnull" json:"-"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt       time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// Duration returns the booked length, falling back to the default for
// records that never stored one.
func (a Appointment) Duration() time.Duration {
	if a.DurationMinutes <= 0 {
		return DefaultDurationMinutes * time.Minute
	}
	return time.Duration(a.DurationMinutes) * time.Minute
}

// Span returns the half-open wall-clock interval the appointment occupies.
func (a Appointment) Span() (Interval, error) {
	start, err := At(a.Date, a.Time)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: start, End: start.Add(a.Duration())}, nil
}

// Schedule normalizes Time to HH:MM and refreshes the derived StartsAt/EndsAt
// columns from Date, Time and DurationMinutes.
func (a *Appointment) Schedule() error {
	clock, err := ParseClock(a.Time)
	if err != nil {
		return err
	}
	a.Time = clock.String()
	span, err := a.Span()
	if err != nil {
		return err
	}
	a.StartsAt = span.Start
	a.EndsAt = span.End
	return nil
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
