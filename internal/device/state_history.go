package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// State history source values, recording which signal produced an
// observed power-state change.
const (
	StateHistorySourceSocket  = "socket"
	StateHistorySourceProbe   = "probe"
	StateHistorySourceCloud   = "cloud"
	StateHistorySourceCommand = "command"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// StateHistoryEntry represents a single observed power-state change.
//
// The local audit trail stays available even when the time-series
// database is down.
type StateHistoryEntry struct {
	ID         int64     `json:"id"`
	DeviceID   string    `json:"device_id"`
	PowerState string    `json:"power_state"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recorded_at"`
}

// StateHistoryRepository stores and retrieves power-state change history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordStateChange records an observed power-state change.
	RecordStateChange(ctx context.Context, deviceID, powerState, source string) error

	// GetHistory returns recent power-state history for the device,
	// ordered newest first. Limit defaults to 50 and is clamped to 200.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)
}

// SQLiteStateHistoryRepository implements StateHistoryRepository using SQLite.
type SQLiteStateHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteStateHistoryRepository creates a new SQLite state history repository.
func NewSQLiteStateHistoryRepository(db *sql.DB) *SQLiteStateHistoryRepository {
	return &SQLiteStateHistoryRepository{db: db}
}

// RecordStateChange inserts a new power-state history entry for a device.
func (r *SQLiteStateHistoryRepository) RecordStateChange(ctx context.Context, deviceID, powerState, source string) error {
	if deviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if powerState == "" {
		return fmt.Errorf("power state is required")
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO power_state_history (device_id, power_state, source, recorded_at) VALUES (?, ?, ?, ?)",
		deviceID,
		powerState,
		source,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting power state history: %w", err)
	}

	return nil
}

// GetHistory returns recent power-state entries for a device, newest first.
func (r *SQLiteStateHistoryRepository) GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, power_state, source, recorded_at
		 FROM power_state_history
		 WHERE device_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying power state history: %w", err)
	}
	defer rows.Close()

	entries := make([]StateHistoryEntry, 0, limit)
	for rows.Next() {
		var entry StateHistoryEntry
		var recordedAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &entry.PowerState, &entry.Source, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning power state history: %w", err)
		}

		entry.RecordedAt, err = time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating power state history: %w", err)
	}

	return entries, nil
}

// PruneHistory deletes history entries older than the given duration.
func (r *SQLiteStateHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM power_state_history WHERE recorded_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting power state history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}
