package grpc

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"clinicagenda/internal/scheduling"
	"clinicagenda/internal/service/appointments"
)

type SchedulingServer struct {
	svc schedulingService
	log *slog.Logger
}

type schedulingService interface {
	Slots(ctx context.Context, date string, durationMinutes int, excludeID uuid.UUID) (iter.Seq[scheduling.Slot], error)
	CheckAvailability(ctx context.Context, date, clock string, durationMinutes int, excludeID uuid.UUID) (appointments.Availability, error)
}

func NewSchedulingServer(svc schedulingService, log *slog.Logger) *SchedulingServer {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.scheduling")),
	}
}

func (s *SchedulingServer) ListSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListSlots"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date := stringField(req, "date")
	duration, err := minutesField(req, "duration")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	exclude, err := idField(req, "exclude_id")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	seq, err := s.svc.Slots(ctx, date, duration, exclude)
	if err != nil {
		return nil, s.toStatus(log, err, slog.String("date", date))
	}

	slots := make([]any, 0, 64)
	for slot := range seq {
		slots = append(slots, map[string]any{"time": slot.Time, "available": slot.Available})
	}
	out, err := structpb.NewStruct(map[string]any{"date": date, "slots": slots})
	if err != nil {
		log.Error("encode response failed", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "internal error")
	}

	log.Debug("slots listed", slog.String("date", date), slog.Int("count", len(slots)))
	return out, nil
}

func (s *SchedulingServer) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CheckAvailability"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date := stringField(req, "date")
	clock := stringField(req, "time")
	duration, err := minutesField(req, "duration")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	exclude, err := idField(req, "exclude_id")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.svc.CheckAvailability(ctx, date, clock, duration, exclude)
	if err != nil {
		return nil, s.toStatus(log, err, slog.String("date", date), slog.String("time", clock))
	}

	conflicts := make([]any, 0, len(res.Conflicts))
	for _, c := range res.Conflicts {
		conflicts = append(conflicts, c.ID.String())
	}
	out, err := structpb.NewStruct(map[string]any{"available": res.Available, "conflicts": conflicts})
	if err != nil {
		log.Error("encode response failed", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func (s *SchedulingServer) toStatus(log *slog.Logger, err error, attrs ...any) error {
	var vErr *appointments.ValidationError
	if errors.As(err, &vErr) {
		log.Warn("invalid request", append([]any{slog.Any("err", err)}, attrs...)...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	}
	var tErr *appointments.InvalidTimeError
	if errors.As(err, &tErr) {
		log.Info("time outside business hours", attrs...)
		return status.Error(codes.InvalidArgument, tErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("request timed out", attrs...)
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}
	log.Error("scheduling request failed", append([]any{slog.Any("err", err)}, attrs...)...)
	return status.Error(codes.Internal, "internal error")
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func minutesField(s *structpb.Struct, key string) (int, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, nil
	}
	n := v.GetNumberValue()
	if n < 0 || n != math.Trunc(n) || n > scheduling.MaxDurationMinutes {
		return 0, errors.New(key + " must be a whole number of minutes")
	}
	return int(n), nil
}

func idField(s *structpb.Struct, key string) (uuid.UUID, error) {
	raw := stringField(s, key)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.New("invalid " + key)
	}
	return id, nil
}

// DefaultTimeoutInterceptor gives unary calls without a deadline a bounded
// lifetime.
func DefaultTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}
