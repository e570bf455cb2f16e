// Package history records garage door transitions in SQLite so the API can
// show what a door did recently, independent of whether a hub was listening.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/garage-bridge/internal/bridge"
	"github.com/nerrad567/garage-bridge/internal/door"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout is fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// ErrDeviceRequired is returned when a query or record has no device ID.
var ErrDeviceRequired = errors.New("history: device id is required")

// Entry is one recorded transition.
type Entry struct {
	ID         int64          `json:"id"`
	DeviceID   string         `json:"deviceId"`
	DeviceName string         `json:"name,omitempty"`
	From       door.DoorState `json:"from"`
	To         door.DoorState `json:"to"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Repository stores and retrieves door transitions.
type Repository interface {
	Record(ctx context.Context, t bridge.Transition) error
	List(ctx context.Context, deviceID string, limit int) ([]Entry, error)
}

// SQLiteRepository implements Repository on the door_transitions table.
// It is also a bridge.Sink.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a transition. A zero time is recorded as now.
func (r *SQLiteRepository) Record(ctx context.Context, t bridge.Transition) error {
	if t.Device.ID == "" {
		return ErrDeviceRequired
	}
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO door_transitions (device_id, device_name, from_state, to_state, occurred_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.Device.ID,
		t.Device.Name,
		string(t.From),
		string(t.To),
		at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting door transition: %w", err)
	}
	return nil
}

// DoorChanged records t as a bridge sink.
func (r *SQLiteRepository) DoorChanged(ctx context.Context, t bridge.Transition) error {
	return r.Record(ctx, t)
}

// List returns a device's most recent transitions, newest first.
// limit defaults to 50 and is capped at 200.
func (r *SQLiteRepository) List(ctx context.Context, deviceID string, limit int) ([]Entry, error) {
	if deviceID == "" {
		return nil, ErrDeviceRequired
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, device_name, from_state, to_state, occurred_at
		 FROM door_transitions
		 WHERE device_id = ?
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying door transitions: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var from, to, occurredAt string
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.DeviceName, &from, &to, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning door transition: %w", err)
		}
		e.From, e.To = door.DoorState(from), door.DoorState(to)
		if e.OccurredAt, err = time.Parse(timeLayout, occurredAt); err != nil {
			return nil, fmt.Errorf("parsing occurred_at %q: %w", occurredAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating door transitions: %w", err)
	}
	return entries, nil
}

// Prune deletes transitions older than olderThan and returns how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM door_transitions WHERE occurred_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting door transitions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
