package appointments

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"

	"clinicagenda/internal/domain"
	"clinicagenda/internal/scheduling"
	"clinicagenda/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// InvalidTimeError reports a start time outside the clinic's operating window.
type InvalidTimeError struct {
	msg string
}

func (e *InvalidTimeError) Error() string {
	return e.msg
}

// Observer receives booking outcomes. *metrics.SchedulingMetrics satisfies it.
type Observer interface {
	ObserveBooking(operation, outcome string)
	ObserveSlotQuery()
}

type nopObserver struct{}

func (nopObserver) ObserveBooking(string, string) {}
func (nopObserver) ObserveSlotQuery()             {}

type Service struct {
	repo  store.AppointmentRepository
	rules scheduling.Rules
	obs   Observer
}

func NewService(repo store.AppointmentRepository, rules scheduling.Rules, obs Observer) *Service {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Service{repo: repo, rules: rules, obs: obs}
}

// Input carries the caller-supplied appointment fields. Pointer fields
// distinguish "omitted" from a zero value.
type Input struct {
	Date       string
	Time       string
	Title      string
	ClientID   string
	ClientName string
	Value      *float64
	Duration   *int
	Note       *string
}

func (s *Service) Create(ctx context.Context, in Input) (domain.Appointment, error) {
	appt, err := s.candidate(in, nil)
	if err != nil {
		s.obs.ObserveBooking("create", outcome(err))
		return domain.Appointment{}, err
	}
	appt.Completed = false

	var out domain.Appointment
	err = s.repo.InDateTransaction(ctx, appt.Date, func(ctx context.Context, tx store.AgendaTx) error {
		if err := s.ensureFree(ctx, tx, appt, uuid.Nil); err != nil {
			return err
		}
		created, err := tx.Insert(ctx, appt)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	s.obs.ObserveBooking("create", outcome(err))
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

// Update replaces the booking fields of id. Note and duration keep their
// stored values when omitted; completed is never touched.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("id is required")
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		s.obs.ObserveBooking("update", outcome(err))
		return domain.Appointment{}, err
	}

	appt, err := s.candidate(in, &current)
	if err != nil {
		s.obs.ObserveBooking("update", outcome(err))
		return domain.Appointment{}, err
	}

	var out domain.Appointment
	err = s.repo.InDateTransaction(ctx, appt.Date, func(ctx context.Context, tx store.AgendaTx) error {
		// Re-read under the date lock; the record may have moved or vanished.
		latest, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		appt.Completed = latest.Completed
		appt.CreatedAt = latest.CreatedAt

		if err := s.ensureFree(ctx, tx, appt, id); err != nil {
			return err
		}
		updated, err := tx.Update(ctx, appt)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	s.obs.ObserveBooking("update", outcome(err))
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (s *Service) MarkComplete(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("id is required")
	}
	out, err := s.repo.MarkComplete(ctx, id)
	s.obs.ObserveBooking("complete", outcome(err))
	return out, err
}

func (s *Service) Remove(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("id is required")
	}
	out, err := s.repo.Delete(ctx, id)
	s.obs.ObserveBooking("delete", outcome(err))
	return out, err
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("id is required")
	}
	return s.repo.Get(ctx, id)
}

// List returns appointments for a single date, an inclusive date range or,
// with no filter, everything. Results are ordered by date then time.
func (s *Service) List(ctx context.Context, filter store.ListFilter) ([]domain.Appointment, error) {
	switch {
	case filter.Date != "":
		if _, err := domain.ParseDate(filter.Date); err != nil {
			return nil, validationError("invalid date")
		}
		filter.StartDate, filter.EndDate = "", ""
	case filter.StartDate != "" || filter.EndDate != "":
		if filter.StartDate == "" || filter.EndDate == "" {
			return nil, validationError("startDate and endDate must be given together")
		}
		if _, err := domain.ParseDate(filter.StartDate); err != nil {
			return nil, validationError("invalid startDate")
		}
		if _, err := domain.ParseDate(filter.EndDate); err != nil {
			return nil, validationError("invalid endDate")
		}
	}
	return s.repo.List(ctx, filter)
}

// Slots returns the availability grid for date, probing each start with
// durationMinutes (0 means the default duration). excludeID lets an
// appointment being edited ignore its own booking.
func (s *Service) Slots(ctx context.Context, date string, durationMinutes int, excludeID uuid.UUID) (iter.Seq[scheduling.Slot], error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, validationError("invalid date")
	}
	if err := checkDuration(durationMinutes); err != nil {
		return nil, err
	}
	existing, err := s.repo.List(ctx, store.ListFilter{Date: date})
	if err != nil {
		return nil, err
	}
	s.obs.ObserveSlotQuery()
	return s.rules.GenerateTimeSlots(date, existing, s.durationOrDefault(durationMinutes), excludeID)
}

// Availability is the outcome of probing a single start time.
type Availability struct {
	Available bool
	Conflicts []domain.Appointment
}

// CheckAvailability reports whether a booking could be placed at date/time
// without writing anything.
func (s *Service) CheckAvailability(ctx context.Context, date, clock string, durationMinutes int, excludeID uuid.UUID) (Availability, error) {
	if err := checkDuration(durationMinutes); err != nil {
		return Availability{}, err
	}
	probe := domain.Appointment{Date: date, Time: clock, DurationMinutes: s.durationOrDefault(durationMinutes)}
	if err := s.checkClock(&probe); err != nil {
		return Availability{}, err
	}
	existing, err := s.repo.List(ctx, store.ListFilter{Date: date})
	if err != nil {
		return Availability{}, err
	}
	conflicts, err := scheduling.Conflicts(probe, existing, excludeID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{Available: len(conflicts) == 0, Conflicts: conflicts}, nil
}

// candidate validates in and builds the record to persist. When current is
// non-nil the result starts from it so omitted optional fields are kept.
func (s *Service) candidate(in Input, current *domain.Appointment) (domain.Appointment, error) {
	var appt domain.Appointment
	if current != nil {
		appt = *current
	}

	title := strings.TrimSpace(in.Title)
	clientID := strings.TrimSpace(in.ClientID)
	clientName := strings.TrimSpace(in.ClientName)
	switch {
	case in.Date == "", in.Time == "", title == "", clientID == "", clientName == "", in.Value == nil:
		return domain.Appointment{}, validationError("incomplete data: date, time, title, clientId, clientName and value are required")
	case *in.Value < 0:
		return domain.Appointment{}, validationError("value must not be negative")
	}

	appt.Date = in.Date
	appt.Time = in.Time
	appt.Title = title
	appt.ClientID = clientID
	appt.ClientName = clientName
	appt.Value = *in.Value

	switch {
	case in.Duration != nil:
		if err := checkDuration(*in.Duration); err != nil {
			return domain.Appointment{}, err
		}
		if *in.Duration == 0 {
			return domain.Appointment{}, validationError("duration must be positive")
		}
		appt.DurationMinutes = *in.Duration
	case appt.DurationMinutes <= 0:
		appt.DurationMinutes = s.durationOrDefault(0)
	}
	if in.Note != nil {
		appt.Note = strings.TrimSpace(*in.Note)
	}

	if err := s.checkClock(&appt); err != nil {
		return domain.Appointment{}, err
	}
	return appt, nil
}

// checkClock validates date and time formats, enforces business hours and
// fills the derived interval columns.
func (s *Service) checkClock(appt *domain.Appointment) error {
	if _, err := domain.ParseDate(appt.Date); err != nil {
		return validationError("invalid date: " + err.Error())
	}
	clock, err := domain.ParseClock(appt.Time)
	if err != nil {
		return validationError("invalid time: " + err.Error())
	}
	if err := s.rules.ValidateBusinessHours(clock); err != nil {
		return &InvalidTimeError{msg: fmt.Sprintf("invalid time: appointments must start between %02d:00 and %02d:59", s.rules.OpenHour, s.rules.CloseHour)}
	}
	return appt.Schedule()
}

// checkDuration bounds a caller-supplied length in minutes. Zero is left to
// the caller, which either defaults it or rejects it.
func checkDuration(minutes int) error {
	switch {
	case minutes < 0:
		return validationError("duration must be positive")
	case minutes > scheduling.MaxDurationMinutes:
		return validationError(fmt.Sprintf("duration too long: at most %d minutes", scheduling.MaxDurationMinutes))
	}
	return nil
}

func (s *Service) ensureFree(ctx context.Context, tx store.AgendaTx, appt domain.Appointment, excludeID uuid.UUID) error {
	existing, err := tx.ListByDate(ctx, appt.Date)
	if err != nil {
		return err
	}
	conflict, err := scheduling.CheckConflict(appt, existing, excludeID)
	if err != nil {
		return err
	}
	if conflict {
		return fmt.Errorf("time conflict with an existing appointment: %w", store.ErrConflict)
	}
	return nil
}

// DefaultDurationMinutes is the probe and booking length used when a caller
// gives none.
func (s *Service) DefaultDurationMinutes() int {
	return s.durationOrDefault(0)
}

func (s *Service) durationOrDefault(minutes int) int {
	if minutes > 0 {
		return minutes
	}
	return int(s.rules.DefaultDuration.Minutes())
}

func outcome(err error) string {
	var vErr *ValidationError
	var tErr *InvalidTimeError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &vErr):
		return "invalid"
	case errors.As(err, &tErr):
		return "invalid_time"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
