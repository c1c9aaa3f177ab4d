package lightstate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/lightbridge/internal/bridges/lighting"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// timestampLayout keeps nanoseconds at a fixed width so the text
	// column sorts in time order.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Entry is one recorded state change.
type Entry struct {
	ID         int64           `json:"id"`
	Device     lighting.Device `json:"device"`
	Action     lighting.Action `json:"action"`
	Source     string          `json:"source"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Repository stores and retrieves light states.
type Repository interface {
	RecordState(ctx context.Context, device lighting.Device, action lighting.Action, source string) error
	LastKnown(ctx context.Context) (map[lighting.Device]lighting.Action, error)
	History(ctx context.Context, device lighting.Device, limit int) ([]Entry, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// RecordState upserts the last known state and appends a history row in a
// single transaction.
func (r *SQLiteRepository) RecordState(ctx context.Context, device lighting.Device, action lighting.Action, source string) error {
	if device == "" {
		return fmt.Errorf("device is required")
	}
	if source == "" {
		source = lighting.SourceStatus
	}

	ts := r.now().UTC().Format(timestampLayout)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO light_state (device, action, source, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (device) DO UPDATE SET
		     action = excluded.action,
		     source = excluded.source,
		     updated_at = excluded.updated_at`,
		string(device), string(action), source, ts,
	); err != nil {
		return fmt.Errorf("upserting light state: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO light_state_history (device, action, source, recorded_at) VALUES (?, ?, ?, ?)",
		string(device), string(action), source, ts,
	); err != nil {
		return fmt.Errorf("inserting light state history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing light state: %w", err)
	}
	return nil
}

// LastKnown returns the stored action for every device. Rows naming a
// device or action the codec no longer knows are skipped.
func (r *SQLiteRepository) LastKnown(ctx context.Context) (map[lighting.Device]lighting.Action, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT device, action FROM light_state")
	if err != nil {
		return nil, fmt.Errorf("querying light state: %w", err)
	}
	defer rows.Close()

	states := make(map[lighting.Device]lighting.Action)
	for rows.Next() {
		var device, action string
		if err := rows.Scan(&device, &action); err != nil {
			return nil, fmt.Errorf("scanning light state: %w", err)
		}

		d, err := lighting.ParseDevice(device)
		if err != nil {
			continue
		}
		a, err := lighting.ParseAction(action)
		if err != nil {
			continue
		}
		states[d] = a
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating light state: %w", err)
	}
	return states, nil
}

// History returns recent state changes for a device, newest first by
// insertion order.
// limit defaults to 50 and is capped at 200.
func (r *SQLiteRepository) History(ctx context.Context, device lighting.Device, limit int) ([]Entry, error) {
	if device == "" {
		return nil, fmt.Errorf("device is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device, action, source, recorded_at
		 FROM light_state_history
		 WHERE device = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		string(device),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying light state history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var device, action, recordedAt string
		if err := rows.Scan(&e.ID, &device, &action, &e.Source, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning light state history: %w", err)
		}
		e.Device = lighting.Device(device)
		e.Action = lighting.Action(action)

		e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating light state history: %w", err)
	}
	return entries, nil
}
