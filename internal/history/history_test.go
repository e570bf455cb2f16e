package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/garage-bridge/internal/bridge"
	"github.com/nerrad567/garage-bridge/internal/door"
	"github.com/nerrad567/garage-bridge/internal/infrastructure/database"
	"github.com/nerrad567/garage-bridge/migrations"
)

var _ bridge.Sink = (*SQLiteRepository)(nil)

// setupTestRepo opens a migrated database in a temp directory.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func transition(id string, from, to door.DoorState, at time.Time) bridge.Transition {
	return bridge.Transition{
		Device: door.Device{ID: id, Name: "Garage " + id, Family: door.FamilyGarageDoor},
		From:   from,
		To:     to,
		At:     at,
	}
}

func TestRecordAndList(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	steps := []bridge.Transition{
		transition("CG1", door.StateClosed, door.StateOpening, base),
		transition("CG1", door.StateOpening, door.StateOpen, base.Add(12*time.Second)),
		transition("CG2", door.StateOpen, door.StateClosing, base.Add(time.Second)),
		transition("CG1", door.StateOpen, door.StateClosing, base.Add(10*time.Minute)),
	}
	for _, s := range steps {
		if err := repo.DoorChanged(ctx, s); err != nil {
			t.Fatalf("DoorChanged() error = %v", err)
		}
	}

	entries, err := repo.List(ctx, "CG1", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(entries))
	}

	want := []door.DoorState{door.StateClosing, door.StateOpen, door.StateOpening}
	for i, e := range entries {
		if e.To != want[i] {
			t.Errorf("entries[%d].To = %s, want %s", i, e.To, want[i])
		}
		if e.DeviceName != "Garage CG1" {
			t.Errorf("entries[%d].DeviceName = %q", i, e.DeviceName)
		}
	}
	if !entries[0].OccurredAt.Equal(base.Add(10 * time.Minute)) {
		t.Errorf("OccurredAt = %v", entries[0].OccurredAt)
	}
}

func TestList_Limit(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := range 5 {
		if err := repo.Record(ctx, transition("CG1", door.StateClosed, door.StateOpen, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	tests := []struct {
		limit int
		want  int
	}{
		{limit: 2, want: 2},
		{limit: 0, want: 5},
		{limit: -1, want: 5},
		{limit: 1000, want: 5},
	}
	for _, tt := range tests {
		entries, err := repo.List(ctx, "CG1", tt.limit)
		if err != nil {
			t.Fatalf("List(%d) error = %v", tt.limit, err)
		}
		if len(entries) != tt.want {
			t.Errorf("List(%d) returned %d, want %d", tt.limit, len(entries), tt.want)
		}
	}
}

func TestSubSecondOrdering(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 5, 0, time.UTC)

	// Recorded out of order, half a second apart.
	_ = repo.Record(ctx, transition("CG1", door.StateOpening, door.StateOpen, base.Add(500*time.Millisecond)))
	_ = repo.Record(ctx, transition("CG1", door.StateClosed, door.StateOpening, base))

	entries, err := repo.List(ctx, "CG1", 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 || entries[0].To != door.StateOpen {
		t.Errorf("entries = %+v, want newest (open) first", entries)
	}
}

func TestRecord_Validation(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.Record(ctx, bridge.Transition{}); !errors.Is(err, ErrDeviceRequired) {
		t.Errorf("Record() error = %v, want ErrDeviceRequired", err)
	}
	if _, err := repo.List(ctx, "", 10); !errors.Is(err, ErrDeviceRequired) {
		t.Errorf("List() error = %v, want ErrDeviceRequired", err)
	}

	if err := repo.Record(ctx, transition("CG1", door.StateClosed, door.StateOpen, time.Time{})); err != nil {
		t.Fatalf("Record() zero time error = %v", err)
	}
	entries, _ := repo.List(ctx, "CG1", 1)
	if len(entries) != 1 || time.Since(entries[0].OccurredAt) > time.Minute {
		t.Errorf("zero time was not recorded as now: %+v", entries)
	}
}

func TestPrune(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	_ = repo.Record(ctx, transition("CG1", door.StateClosed, door.StateOpen, now.Add(-48*time.Hour)))
	_ = repo.Record(ctx, transition("CG1", door.StateOpen, door.StateClosed, now.Add(-time.Hour)))

	n, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() deleted %d, want 1", n)
	}

	if _, err := repo.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) should fail")
	}
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func TestRunPruner(t *testing.T) {
	repo := setupTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())

	_ = repo.Record(ctx, transition("CG1", door.StateClosed, door.StateOpen, time.Now().Add(-48*time.Hour)))

	done := make(chan struct{})
	go func() {
		RunPruner(ctx, repo, 24*time.Hour, time.Hour, nopLogger{})
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, _ := repo.List(context.Background(), "CG1", 10)
		if len(entries) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pruner did not remove old history")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPruner did not stop")
	}
}
