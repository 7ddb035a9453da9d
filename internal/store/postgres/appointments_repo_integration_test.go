package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/uptrace/bun"

	"clinicagenda/internal/domain"
	"clinicagenda/internal/store"
)

func TestPostgresIntegration_BookListCompleteDelete(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("CLINIC_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("CLINIC_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	schema := "clinic_test_" + randomHex(t, 8)
	db := openTestSchema(ctx, t, databaseURL, schema)
	repo := NewAppointmentRepo(db)

	book := func(a domain.Appointment) (domain.Appointment, error) {
		if err := a.Schedule(); err != nil {
			return domain.Appointment{}, err
		}
		var out domain.Appointment
		err := repo.InDateTransaction(ctx, a.Date, func(ctx context.Context, tx store.AgendaTx) error {
			var err error
			out, err = tx.Insert(ctx, a)
			return err
		})
		return out, err
	}

	first, err := book(domain.Appointment{Date: "2026-03-02", Time: "10:00", DurationMinutes: 60, Title: "Consulta", ClientID: "c1", ClientName: "Ana"})
	if err != nil {
		t.Fatalf("book first: %v", err)
	}

	// Bypasses the service-level check, so only the exclusion constraint stops it.
	if _, err := book(domain.Appointment{Date: "2026-03-02", Time: "10:30", DurationMinutes: 30, Title: "x", ClientID: "c2", ClientName: "Bia"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("overlap err = %v, want %v", err, store.ErrConflict)
	}

	if _, err := book(domain.Appointment{Date: "2026-03-02", Time: "11:00", DurationMinutes: 60, Title: "Retorno", ClientID: "c2", ClientName: "Bia"}); err != nil {
		t.Fatalf("back-to-back booking: %v", err)
	}

	// Conflicts are per date, so a late booking that runs past midnight does
	// not block the next morning.
	if _, err := book(domain.Appointment{Date: "2026-03-04", Time: "22:00", DurationMinutes: 600, Title: "Plantão", ClientID: "c3", ClientName: "Caio"}); err != nil {
		t.Fatalf("late booking: %v", err)
	}
	if _, err := book(domain.Appointment{Date: "2026-03-05", Time: "07:00", DurationMinutes: 60, Title: "Consulta", ClientID: "c4", ClientName: "Duda"}); err != nil {
		t.Fatalf("next-morning booking: %v", err)
	}

	rows, err := repo.List(ctx, store.ListFilter{Date: "2026-03-02"})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(rows) != 2 || rows[0].Time != "10:00" || rows[1].Time != "11:00" {
		t.Fatalf("rows = %+v, want 10:00 then 11:00", rows)
	}

	done, err := repo.MarkComplete(ctx, first.ID)
	if err != nil {
		t.Fatalf("MarkComplete error: %v", err)
	}
	if !done.Completed {
		t.Fatalf("completed = false, want true")
	}

	deleted, err := repo.Delete(ctx, first.ID)
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if deleted.ID != first.ID {
		t.Fatalf("deleted id = %s, want %s", deleted.ID, first.ID)
	}
	if _, err := repo.Get(ctx, first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get after delete err = %v, want %v", err, store.ErrNotFound)
	}
}

func TestPostgresIntegration_ConcurrentBookingsSerialize(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("CLINIC_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("CLINIC_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	schema := "clinic_test_" + randomHex(t, 8)
	db := openTestSchema(ctx, t, databaseURL, schema)
	repo := NewAppointmentRepo(db)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := domain.Appointment{Date: "2026-03-03", Time: "09:00", DurationMinutes: 60, Title: "t", ClientID: "c", ClientName: "n"}
			if err := a.Schedule(); err != nil {
				t.Errorf("Schedule error: %v", err)
				return
			}
			err := repo.InDateTransaction(ctx, a.Date, func(ctx context.Context, tx store.AgendaTx) error {
				existing, err := tx.ListByDate(ctx, a.Date)
				if err != nil {
					return err
				}
				if len(existing) > 0 {
					return store.ErrConflict
				}
				_, err = tx.Insert(ctx, a)
				return err
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else if !errors.Is(err, store.ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("successful bookings = %d, want 1", success)
	}
}

// openTestSchema migrates a throwaway schema and returns a bun.DB whose
// connections resolve unqualified names there.
func openTestSchema(ctx context.Context, t *testing.T, databaseURL, schema string) *bun.DB {
	t.Helper()

	admin, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if _, err := admin.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := admin.NewRaw("CREATE EXTENSION IF NOT EXISTS btree_gist SCHEMA public").Exec(ctx); err != nil {
		t.Fatalf("create extension: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
		_ = Close(admin)
	})

	scopedURL := withSearchPath(databaseURL, schema)

	migDB, err := Open(ctx, scopedURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open migration db: %v", err)
	}
	m, err := NewMigrator(migDB.DB, schema)
	if err != nil {
		t.Fatalf("NewMigrator error: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate up: %v", err)
	}
	_, _ = m.Close()

	db, err := Open(ctx, scopedURL, PoolConfig{MaxOpenConns: 10})
	if err != nil {
		t.Fatalf("Open scoped db: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func withSearchPath(databaseURL, schema string) string {
	sep := "?"
	if strings.Contains(databaseURL, "?") {
		sep = "&"
	}
	return databaseURL + sep + "search_path=" + schema + ",public"
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}
