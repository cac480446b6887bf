package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock)
// and enables unit testing without database dependencies.
type Repository interface {
	// Get retrieves a device by its unique identifier.
	// Returns ErrNotFound if the device does not exist.
	Get(ctx context.Context, identifier string) (*Config, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Config, error)

	// Create inserts a new device.
	// Returns ErrExists if a device with the same identifier already exists.
	Create(ctx context.Context, cfg *Config) error

	// Update modifies an existing device.
	// Returns ErrNotFound if the device does not exist.
	Update(ctx context.Context, cfg *Config) error

	// Delete removes a device by identifier.
	// Returns ErrNotFound if the device does not exist.
	Delete(ctx context.Context, identifier string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `identifier, name, address, auth_token, mac_address,
	reports_power_state, supports_art_mode, supports_cloud_wake,
	cloud_access_token, cloud_refresh_token, cloud_token_expires_at,
	created_at, updated_at`

// Get retrieves a device by its unique identifier.
func (r *SQLiteRepository) Get(ctx context.Context, identifier string) (*Config, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE identifier = ?`

	row := r.db.QueryRowContext(ctx, query, identifier)
	cfg, err := scanConfig(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return cfg, nil
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Config, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var configs []Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		configs = append(configs, *cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return configs, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		cfg.Identifier,
		cfg.Name,
		cfg.Address,
		cfg.AuthToken,
		cfg.MACAddress,
		boolToInt(cfg.ReportsPowerState),
		boolToInt(cfg.SupportsArtMode),
		boolToInt(cfg.SupportsCloudWake),
		cfg.CloudAccessToken,
		cfg.CloudRefreshToken,
		nullableTime(cfg.CloudTokenExpiresAt),
		cfg.CreatedAt.Format(time.RFC3339),
		cfg.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// Update modifies an existing device. The identifier never changes.
func (r *SQLiteRepository) Update(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	cfg.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			name = ?, address = ?, auth_token = ?, mac_address = ?,
			reports_power_state = ?, supports_art_mode = ?, supports_cloud_wake = ?,
			cloud_access_token = ?, cloud_refresh_token = ?, cloud_token_expires_at = ?,
			updated_at = ?
		WHERE identifier = ?`

	result, err := r.db.ExecContext(ctx, query,
		cfg.Name,
		cfg.Address,
		cfg.AuthToken,
		cfg.MACAddress,
		boolToInt(cfg.ReportsPowerState),
		boolToInt(cfg.SupportsArtMode),
		boolToInt(cfg.SupportsCloudWake),
		cfg.CloudAccessToken,
		cfg.CloudRefreshToken,
		nullableTime(cfg.CloudTokenExpiresAt),
		cfg.UpdatedAt.Format(time.RFC3339),
		cfg.Identifier,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a device by identifier.
func (r *SQLiteRepository) Delete(ctx context.Context, identifier string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE identifier = ?", identifier)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanConfig scans a row or rows result into a Config.
func scanConfig(scanner rowScanner) (*Config, error) {
	var c Config
	var reportsPower, artMode, cloudWake int
	var cloudExpiry sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&c.Identifier,
		&c.Name,
		&c.Address,
		&c.AuthToken,
		&c.MACAddress,
		&reportsPower,
		&artMode,
		&cloudWake,
		&c.CloudAccessToken,
		&c.CloudRefreshToken,
		&cloudExpiry,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.ReportsPowerState = reportsPower != 0
	c.SupportsArtMode = artMode != 0
	c.SupportsCloudWake = cloudWake != 0

	if cloudExpiry.Valid && cloudExpiry.String != "" {
		t, err := time.Parse(time.RFC3339, cloudExpiry.String)
		if err != nil {
			return nil, fmt.Errorf("parsing cloud_token_expires_at: %w", err)
		}
		c.CloudTokenExpiresAt = &t
	}

	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &c, nil
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
