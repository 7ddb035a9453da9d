package grpc

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"clinicagenda/internal/domain"
	"clinicagenda/internal/scheduling"
	"clinicagenda/internal/service/appointments"
)

type fakeSchedulingService struct {
	slotsFn func(ctx context.Context, date string, durationMinutes int, excludeID uuid.UUID) (iter.Seq[scheduling.Slot], error)
	checkFn func(ctx context.Context, date, clock string, durationMinutes int, excludeID uuid.UUID) (appointments.Availability, error)
}

func (f *fakeSchedulingService) Slots(ctx context.Context, date string, durationMinutes int, excludeID uuid.UUID) (iter.Seq[scheduling.Slot], error) {
	if f.slotsFn == nil {
		panic("Slots not configured")
	}
	return f.slotsFn(ctx, date, durationMinutes, excludeID)
}

func (f *fakeSchedulingService) CheckAvailability(ctx context.Context, date, clock string, durationMinutes int, excludeID uuid.UUID) (appointments.Availability, error) {
	if f.checkFn == nil {
		panic("CheckAvailability not configured")
	}
	return f.checkFn(ctx, date, clock, durationMinutes, excludeID)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct error: %v", err)
	}
	return s
}

func TestListSlots_PassesArgumentsAndEncodes(t *testing.T) {
	exclude := uuid.MustParse("00000000-0000-0000-0000-000000000401")
	srv := NewSchedulingServer(&fakeSchedulingService{
		slotsFn: func(ctx context.Context, date string, durationMinutes int, excludeID uuid.UUID) (iter.Seq[scheduling.Slot], error) {
			if date != "2026-03-02" || durationMinutes != 30 || excludeID != exclude {
				t.Fatalf("args = %q %d %s", date, durationMinutes, excludeID)
			}
			return func(yield func(scheduling.Slot) bool) {
				_ = yield(scheduling.Slot{Time: "07:00", Available: true}) &&
					yield(scheduling.Slot{Time: "07:15", Available: false})
			}, nil
		},
	}, slog.Default())

	out, err := srv.ListSlots(context.Background(), mustStruct(t, map[string]any{
		"date":       "2026-03-02",
		"duration":   30,
		"exclude_id": exclude.String(),
	}))
	if err != nil {
		t.Fatalf("ListSlots error: %v", err)
	}

	slots := out.GetFields()["slots"].GetListValue().GetValues()
	if len(slots) != 2 {
		t.Fatalf("len(slots) = %d, want 2", len(slots))
	}
	second := slots[1].GetStructValue().GetFields()
	if second["time"].GetStringValue() != "07:15" || second["available"].GetBoolValue() {
		t.Fatalf("second slot = %v, want 07:15 unavailable", second)
	}
}

func TestListSlots_RejectsBadArguments(t *testing.T) {
	srv := NewSchedulingServer(&fakeSchedulingService{}, nil)

	tests := []map[string]any{
		{"date": "2026-03-02", "duration": 12.5},
		{"date": "2026-03-02", "duration": -15},
		{"date": "2026-03-02", "exclude_id": "nope"},
	}
	for _, in := range tests {
		_, err := srv.ListSlots(context.Background(), mustStruct(t, in))
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("ListSlots(%v) code = %v, want %v", in, status.Code(err), codes.InvalidArgument)
		}
	}

	if _, err := srv.ListSlots(context.Background(), nil); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("nil request code = %v, want %v", status.Code(err), codes.InvalidArgument)
	}
}

func TestCheckAvailability_MapsErrors(t *testing.T) {
	var next error
	srv := NewSchedulingServer(&fakeSchedulingService{
		checkFn: func(ctx context.Context, date, clock string, durationMinutes int, excludeID uuid.UUID) (appointments.Availability, error) {
			return appointments.Availability{}, next
		},
	}, nil)

	req := mustStruct(t, map[string]any{"date": "2026-03-02", "time": "23:00"})

	tests := []struct {
		err  error
		want codes.Code
	}{
		{err: &appointments.InvalidTimeError{}, want: codes.InvalidArgument},
		{err: &appointments.ValidationError{}, want: codes.InvalidArgument},
		{err: context.DeadlineExceeded, want: codes.DeadlineExceeded},
		{err: errors.New("db down"), want: codes.Internal},
	}
	for _, tt := range tests {
		next = tt.err
		_, err := srv.CheckAvailability(context.Background(), req)
		if status.Code(err) != tt.want {
			t.Fatalf("err %v -> code %v, want %v", tt.err, status.Code(err), tt.want)
		}
	}
}

func TestSchedulingService_OverBufconn(t *testing.T) {
	conflictID := uuid.MustParse("00000000-0000-0000-0000-000000000402")
	var sawDeadline bool

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.UnaryInterceptor(DefaultTimeoutInterceptor(time.Second)))
	RegisterSchedulingServiceServer(server, NewSchedulingServer(&fakeSchedulingService{
		checkFn: func(ctx context.Context, date, clock string, durationMinutes int, excludeID uuid.UUID) (appointments.Availability, error) {
			_, sawDeadline = ctx.Deadline()
			return appointments.Availability{
				Available: false,
				Conflicts: []domain.Appointment{{ID: conflictID}},
			}, nil
		},
	}, nil))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	out, err := NewSchedulingClient(conn).CheckAvailability(context.Background(), mustStruct(t, map[string]any{
		"date":     "2026-03-02",
		"time":     "10:30",
		"duration": 30,
	}))
	if err != nil {
		t.Fatalf("CheckAvailability error: %v", err)
	}
	if out.GetFields()["available"].GetBoolValue() {
		t.Fatalf("available = true, want false")
	}
	ids := out.GetFields()["conflicts"].GetListValue().GetValues()
	if len(ids) != 1 || ids[0].GetStringValue() != conflictID.String() {
		t.Fatalf("conflicts = %v, want [%s]", ids, conflictID)
	}
	if !sawDeadline {
		t.Fatalf("handler context had no deadline")
	}
}
