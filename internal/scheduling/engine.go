package scheduling

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"clinicagenda/internal/domain"
)

// MaxDurationMinutes bounds a single appointment to one day.
const MaxDurationMinutes = 24 * 60

var (
	ErrOutsideBusinessHours = errors.New("time is outside business hours")
	ErrDurationTooLong      = fmt.Errorf("duration must not exceed %d minutes", MaxDurationMinutes)
)

// Rules are the clinic's booking constraints.
type Rules struct {
	OpenHour        int
	CloseHour       int
	SlotStep        time.Duration
	DefaultDuration time.Duration
}

func DefaultRules() Rules {
	return Rules{
		OpenHour:        7,
		CloseHour:       22,
		SlotStep:        15 * time.Minute,
		DefaultDuration: domain.DefaultDurationMinutes * time.Minute,
	}
}

func (r Rules) Validate() error {
	if r.OpenHour < 0 || r.CloseHour > 23 || r.OpenHour > r.CloseHour {
		return fmt.Errorf("invalid business hours %d-%d", r.OpenHour, r.CloseHour)
	}
	if r.SlotStep < time.Minute || r.SlotStep%time.Minute != 0 {
		return fmt.Errorf("slot step must be a positive whole number of minutes, got %s", r.SlotStep)
	}
	if r.DefaultDuration < time.Minute || r.DefaultDuration > MaxDurationMinutes*time.Minute {
		return fmt.Errorf("default duration must be between 1m and 24h, got %s", r.DefaultDuration)
	}
	return nil
}

// ValidateBusinessHours checks the start hour only. Any start inside the
// CloseHour hour is accepted, and nothing bounds where the appointment ends.
func (r Rules) ValidateBusinessHours(c domain.Clock) error {
	if c.Hour < r.OpenHour || c.Hour > r.CloseHour {
		return ErrOutsideBusinessHours
	}
	return nil
}

// Conflicts returns the appointments in existing whose interval overlaps the
// candidate's. Appointments on other dates and the one matching excludeID are
// ignored.
func Conflicts(candidate domain.Appointment, existing []domain.Appointment, excludeID uuid.UUID) ([]domain.Appointment, error) {
	if candidate.DurationMinutes > MaxDurationMinutes {
		return nil, ErrDurationTooLong
	}
	span, err := candidate.Span()
	if err != nil {
		return nil, err
	}
	booked, err := bookedOn(candidate.Date, existing, excludeID)
	if err != nil {
		return nil, err
	}

	var out []domain.Appointment
	for _, b := range booked {
		if span.Overlaps(b.span) {
			out = append(out, b.appt)
		}
	}
	return out, nil
}

type booking struct {
	appt domain.Appointment
	span domain.Interval
}

// bookedOn keeps the appointments of existing that can block a booking on
// date, paired with the interval each occupies.
func bookedOn(date string, existing []domain.Appointment, excludeID uuid.UUID) ([]booking, error) {
	out := make([]booking, 0, len(existing))
	for _, a := range existing {
		if a.Date != date {
			continue
		}
		if excludeID != uuid.Nil && a.ID == excludeID {
			continue
		}
		span, err := a.Span()
		if err != nil {
			return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
		}
		out = append(out, booking{appt: a, span: span})
	}
	return out, nil
}

// CheckConflict reports whether the candidate overlaps any appointment in existing.
func CheckConflict(candidate domain.Appointment, existing []domain.Appointment, excludeID uuid.UUID) (bool, error) {
	conflicts, err := Conflicts(candidate, existing, excludeID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// GenerateTimeSlots yields every SlotStep-aligned start between OpenHour:00 and
// CloseHour:00 inclusive, marking a slot unavailable when an appointment of
// durationMinutes starting there would overlap an existing one. A zero
// duration probes with DefaultDuration.
//
// The returned sequence holds no iteration state and can be ranged over
// repeatedly.
func (r Rules) GenerateTimeSlots(date string, existing []domain.Appointment, durationMinutes int, excludeID uuid.UUID) (iter.Seq[Slot], error) {
	day, err := domain.ParseDate(date)
	if err != nil {
		return nil, err
	}
	if durationMinutes < 0 {
		return nil, fmt.Errorf("duration must be positive, got %d", durationMinutes)
	}
	if durationMinutes > MaxDurationMinutes {
		return nil, ErrDurationTooLong
	}
	probe := time.Duration(durationMinutes) * time.Minute
	if probe == 0 {
		probe = r.DefaultDuration
	}

	booked, err := bookedOn(date, existing, excludeID)
	if err != nil {
		return nil, err
	}

	step := int(r.SlotStep / time.Minute)
	first := r.OpenHour * 60
	last := r.CloseHour * 60

	return func(yield func(Slot) bool) {
		for m := first; m <= last; m += step {
			start := day.Add(time.Duration(m) * time.Minute)
			candidate := domain.Interval{Start: start, End: start.Add(probe)}
			slot := Slot{Time: domain.ClockFromMinutes(m).String(), Available: true}
			for _, b := range booked {
				if candidate.Overlaps(b.span) {
					slot.Available = false
					break
				}
			}
			if !yield(slot) {
				return
			}
		}
	}, nil
}
