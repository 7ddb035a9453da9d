package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"clinicagenda/internal/domain"
	"clinicagenda/internal/scheduling"
	"clinicagenda/internal/service/appointments"
	"clinicagenda/internal/store"
)

const maxBodyBytes = 1 << 20

// appointmentRequest is the JSON body accepted by create and update.
type appointmentRequest struct {
	Date       string   `json:"date" validate:"required,datetime=2006-01-02"`
	Time       string   `json:"time" validate:"required"`
	Duration   *int     `json:"duration" validate:"omitempty,gt=0,lte=1440"`
	Title      string   `json:"title" validate:"required"`
	ClientID   string   `json:"clientId" validate:"required"`
	ClientName string   `json:"clientName" validate:"required"`
	Value      *float64 `json:"value" validate:"required,gte=0"`
	Note       *string  `json:"note"`
}

func (r appointmentRequest) input() appointments.Input {
	return appointments.Input{
		Date:       strings.TrimSpace(r.Date),
		Time:       strings.TrimSpace(r.Time),
		Title:      r.Title,
		ClientID:   r.ClientID,
		ClientName: r.ClientName,
		Value:      r.Value,
		Duration:   r.Duration,
		Note:       r.Note,
	}
}

type slotsResponse struct {
	Date     string            `json:"date"`
	Duration int               `json:"duration"`
	Slots    []scheduling.Slot `json:"slots"`
}

type Handler struct {
	svc      *appointments.Service
	log      *slog.Logger
	validate *validator.Validate
}

func NewHandler(svc *appointments.Service, log *slog.Logger) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{svc: svc, log: log.With(slog.String("component", "agenda_http")), validate: v}
}

// List handles GET /api/agenda?date= or ?startDate=&endDate=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{
		Date:      q.Get("date"),
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
	}
	out, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, "list", err)
		return
	}
	if out == nil {
		out = []domain.Appointment{}
	}
	writeJSON(w, http.StatusOK, out)
}

// Slots handles GET /api/agenda/slots?date=&duration=&excludeId=.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	duration := 0
	if raw := q.Get("duration"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > scheduling.MaxDurationMinutes {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid duration"))
			return
		}
		duration = n
	}
	exclude, ok := optionalID(w, q.Get("excludeId"))
	if !ok {
		return
	}

	seq, err := h.svc.Slots(r.Context(), q.Get("date"), duration, exclude)
	if err != nil {
		h.writeError(w, r, "slots", err)
		return
	}
	if duration == 0 {
		duration = h.svc.DefaultDurationMinutes()
	}
	writeJSON(w, http.StatusOK, slotsResponse{Date: q.Get("date"), Duration: duration, Slots: slices.Collect(seq)})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Create(r.Context(), req.input())
	if err != nil {
		h.writeError(w, r, "create", err)
		return
	}
	h.log.Info("appointment created",
		slog.String("id", out.ID.String()),
		slog.String("date", out.Date),
		slog.String("time", out.Time),
	)
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Update(r.Context(), id, req.input())
	if err != nil {
		h.writeError(w, r, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) MarkComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.MarkComplete(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "complete", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Remove(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "delete", err)
		return
	}
	h.log.Info("appointment deleted", slog.String("id", out.ID.String()))
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (appointmentRequest, bool) {
	var req appointmentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return appointmentRequest{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(validationMessage(err)))
		return appointmentRequest{}, false
	}
	return req, true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "incomplete data"
	}
	var missing, invalid []string
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fe.Field())
		}
	}
	if len(missing) > 0 {
		return "incomplete data: missing " + strings.Join(missing, ", ")
	}
	return "invalid fields: " + strings.Join(invalid, ", ")
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	log := h.log.With(slog.String("op", op))

	var vErr *appointments.ValidationError
	var tErr *appointments.InvalidTimeError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, errorBody(vErr.Error()))
	case errors.As(err, &tErr):
		writeJSON(w, http.StatusBadRequest, errorBody(tErr.Error()))
	case errors.Is(err, store.ErrConflict):
		log.Info("booking conflict", slog.String("path", r.URL.Path))
		writeJSON(w, http.StatusBadRequest, errorBody("time conflict: the selected slot overlaps another appointment"))
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("appointment not found"))
	default:
		log.Error("agenda request failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

func optionalID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid excludeId"))
		return uuid.Nil, false
	}
	return id, true
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
