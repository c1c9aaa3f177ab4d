package lightstate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/lightbridge/internal/bridges/lighting"
	"github.com/nerrad567/lightbridge/internal/infrastructure/config"
	"github.com/nerrad567/lightbridge/internal/infrastructure/database"
	_ "github.com/nerrad567/lightbridge/migrations"
)

var _ lighting.StateRecorder = (*SQLiteRepository)(nil)

// setupTestRepo opens a migrated database in a temp dir with a stepping clock.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "lightbridge.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	repo := NewSQLiteRepository(db.DB)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return repo
}

func TestRecordStateAndLastKnown(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	steps := []struct {
		device lighting.Device
		action lighting.Action
		source string
	}{
		{lighting.DeviceEntrance, lighting.ActionOn, lighting.SourceCommand},
		{lighting.DeviceDiningMain, lighting.ActionOn, lighting.SourceStatus},
		{lighting.DeviceEntrance, lighting.ActionOff, lighting.SourceStatus},
	}
	for _, s := range steps {
		if err := repo.RecordState(ctx, s.device, s.action, s.source); err != nil {
			t.Fatalf("RecordState(%s, %s) error = %v", s.device, s.action, err)
		}
	}

	states, err := repo.LastKnown(ctx)
	if err != nil {
		t.Fatalf("LastKnown() error = %v", err)
	}

	want := map[lighting.Device]lighting.Action{
		lighting.DeviceEntrance:   lighting.ActionOff,
		lighting.DeviceDiningMain: lighting.ActionOn,
	}
	if len(states) != len(want) {
		t.Fatalf("LastKnown() = %v, want %v", states, want)
	}
	for d, a := range want {
		if states[d] != a {
			t.Errorf("LastKnown()[%s] = %q, want %q", d, states[d], a)
		}
	}
}

func TestRecordStateValidation(t *testing.T) {
	repo := setupTestRepo(t)

	if err := repo.RecordState(context.Background(), "", lighting.ActionOn, lighting.SourceCommand); err == nil {
		t.Error("RecordState() with empty device should fail")
	}
	// The schema only accepts on/off.
	if err := repo.RecordState(context.Background(), lighting.DeviceEntrance, "dim", lighting.SourceCommand); err == nil {
		t.Error("RecordState() with invalid action should fail")
	}
}

func TestRecordStateDefaultsSource(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.RecordState(ctx, lighting.DeviceEntrance, lighting.ActionOn, ""); err != nil {
		t.Fatalf("RecordState() error = %v", err)
	}

	entries, err := repo.History(ctx, lighting.DeviceEntrance, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Source != lighting.SourceStatus {
		t.Errorf("History() = %+v, want one entry with source %q", entries, lighting.SourceStatus)
	}
}

func TestLastKnownSkipsUnknownDevices(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if _, err := repo.db.ExecContext(ctx,
		"INSERT INTO light_state (device, action, source, updated_at) VALUES ('garage', 'on', 'status', '2026-03-01T09:00:00Z')",
	); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if err := repo.RecordState(ctx, lighting.DeviceCorridor, lighting.ActionOn, lighting.SourceStatus); err != nil {
		t.Fatalf("RecordState() error = %v", err)
	}

	states, err := repo.LastKnown(ctx)
	if err != nil {
		t.Fatalf("LastKnown() error = %v", err)
	}
	if len(states) != 1 || states[lighting.DeviceCorridor] != lighting.ActionOn {
		t.Errorf("LastKnown() = %v, want only corridor=on", states)
	}
}

func TestHistory(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		action := lighting.ActionOn
		if i%2 == 1 {
			action = lighting.ActionOff
		}
		if err := repo.RecordState(ctx, lighting.DeviceEntrance, action, lighting.SourceCommand); err != nil {
			t.Fatalf("RecordState() error = %v", err)
		}
	}
	if err := repo.RecordState(ctx, lighting.DeviceDiningMain, lighting.ActionOn, lighting.SourceStatus); err != nil {
		t.Fatalf("RecordState() error = %v", err)
	}

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default limit", 0, 5},
		{"explicit limit", 2, 2},
		{"clamped limit", 1000, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := repo.History(ctx, lighting.DeviceEntrance, tt.limit)
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}
			if len(entries) != tt.want {
				t.Fatalf("History() returned %d entries, want %d", len(entries), tt.want)
			}
			// Newest first: the fifth write was "on".
			if entries[0].Action != lighting.ActionOn {
				t.Errorf("newest action = %q, want on", entries[0].Action)
			}
			for i := 1; i < len(entries); i++ {
				if entries[i].RecordedAt.After(entries[i-1].RecordedAt) {
					t.Errorf("entries not ordered newest first at %d", i)
				}
			}
		})
	}
}

func TestHistoryOrderWithinSecond(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 5, 0, time.UTC)
	stamps := []time.Time{
		base,
		base.Add(120 * time.Millisecond),
		base.Add(123 * time.Millisecond),
	}
	actions := []lighting.Action{lighting.ActionOff, lighting.ActionOn, lighting.ActionOff}

	i := 0
	repo.now = func() time.Time {
		ts := stamps[i]
		i++
		return ts
	}
	for _, a := range actions {
		if err := repo.RecordState(ctx, lighting.DeviceCorridor, a, lighting.SourceStatus); err != nil {
			t.Fatalf("RecordState() error = %v", err)
		}
	}

	entries, err := repo.History(ctx, lighting.DeviceCorridor, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("History() returned %d entries, want 3", len(entries))
	}
	for j, e := range entries {
		want := stamps[len(stamps)-1-j]
		if !e.RecordedAt.Equal(want) {
			t.Errorf("entries[%d].RecordedAt = %v, want %v", j, e.RecordedAt, want)
		}
	}

	// The stored text must also sort chronologically on its own.
	rows, err := repo.db.QueryContext(ctx,
		"SELECT recorded_at FROM light_state_history ORDER BY recorded_at DESC")
	if err != nil {
		t.Fatalf("query error = %v", err)
	}
	defer rows.Close()

	var got []time.Time
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			t.Fatalf("scan error = %v", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			t.Fatalf("parse %q: %v", text, err)
		}
		got = append(got, ts)
	}
	for j := 1; j < len(got); j++ {
		if got[j].After(got[j-1]) {
			t.Errorf("recorded_at text out of order at %d: %v after %v", j, got[j], got[j-1])
		}
	}
}

func TestHistoryRequiresDevice(t *testing.T) {
	repo := setupTestRepo(t)

	if _, err := repo.History(context.Background(), "", 10); err == nil {
		t.Error("History() with empty device should fail")
	}
}
