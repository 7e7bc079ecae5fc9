package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"

	"github.com/Abir7109/neon-trace-backend/internal/domain"
	"github.com/Abir7109/neon-trace-backend/internal/metrics"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	// migrationLockID is a PostgreSQL advisory lock ID for coordinating
	// migrations across instances. Value: 0x6e656f6e7472 ("neontr" in ASCII hex)
	migrationLockID             = 0x6e656f6e7472
	migrationLockReleaseTimeout = 5 * time.Second
)

// ConnectPostgres opens a pgx pool and brings the schema up to date.
func ConnectPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrationsWithLock(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

func runMigrationsWithLock(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migration: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), migrationLockReleaseTimeout)
		defer cancel()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			slog.Error("failed to release migration lock", "error", err)
		}
	}()

	slog.Info("running database migrations")
	return runMigrations(ctx, conn.Conn())
}

func runMigrations(ctx context.Context, conn *pgx.Conn) error {
	migrationFS, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	migrator, err := migrate.NewMigrator(ctx, conn, "public.schema_version")
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := migrator.LoadMigrations(migrationFS); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

const deviceColumns = `id, push_token, platform, username, last_lat, last_lng, updated_at`

// PostgresDeviceRepo implements domain.DeviceRepository backed by PostgreSQL.
type PostgresDeviceRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresDeviceRepo(pool *pgxpool.Pool) *PostgresDeviceRepo {
	return &PostgresDeviceRepo{pool: pool}
}

func scanDevice(row pgx.Row) (*domain.Device, error) {
	var d domain.Device
	err := row.Scan(&d.ID, &d.PushToken, &d.Platform, &d.Username, &d.LastLat, &d.LastLng, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PostgresDeviceRepo) Get(ctx context.Context, id string) (*domain.Device, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id)
	d, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.StoreOpsTotal.WithLabelValues("device_get", "miss").Inc()
		return nil, domain.ErrDeviceNotFound
	}
	if err != nil {
		metrics.StoreOpsTotal.WithLabelValues("device_get", "error").Inc()
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	metrics.StoreOpsTotal.WithLabelValues("device_get", "ok").Inc()
	return d, nil
}

func (r *PostgresDeviceRepo) Upsert(ctx context.Context, device *domain.Device) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO devices (id, push_token, platform, username, last_lat, last_lng, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			push_token = EXCLUDED.push_token,
			platform = EXCLUDED.platform,
			username = EXCLUDED.username,
			last_lat = EXCLUDED.last_lat,
			last_lng = EXCLUDED.last_lng,
			updated_at = NOW()`,
		device.ID, device.PushToken, device.Platform, device.Username, device.LastLat, device.LastLng,
	)
	if err != nil {
		metrics.StoreOpsTotal.WithLabelValues("device_upsert", "error").Inc()
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	metrics.StoreOpsTotal.WithLabelValues("device_upsert", "ok").Inc()
	return nil
}

func (r *PostgresDeviceRepo) List(ctx context.Context, limit int, platform string) ([]*domain.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices`
	args := []any{}
	if platform != "" {
		query += ` WHERE platform = $1`
		args = append(args, platform)
	}
	query += ` ORDER BY id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var out []*domain.Device
	for rows.Next() {
		var d domain.Device
		if err := rows.Scan(&d.ID, &d.PushToken, &d.Platform, &d.Username, &d.LastLat, &d.LastLng, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read device rows: %w", err)
	}
	return out, nil
}

func (r *PostgresDeviceRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM devices`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	return n, nil
}

// PostgresLocationRepo implements domain.LocationRepository backed by PostgreSQL.
type PostgresLocationRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresLocationRepo(pool *pgxpool.Pool) *PostgresLocationRepo {
	return &PostgresLocationRepo{pool: pool}
}

func (r *PostgresLocationRepo) Append(ctx context.Context, log *domain.LocationLog) error {
	id := log.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	recordedAt := log.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO location_logs (id, device_id, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, log.DeviceID, log.Lat, log.Lng, recordedAt,
	)
	if err != nil {
		metrics.StoreOpsTotal.WithLabelValues("location_append", "error").Inc()
		return fmt.Errorf("failed to append location log: %w", err)
	}
	metrics.StoreOpsTotal.WithLabelValues("location_append", "ok").Inc()
	return nil
}

func (r *PostgresLocationRepo) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*domain.LocationLog, error) {
	query := `SELECT id, device_id, lat, lng, recorded_at FROM location_logs
		WHERE device_id = $1 ORDER BY recorded_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := r.pool.Query(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list location logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.LocationLog
	for rows.Next() {
		var l domain.LocationLog
		if err := rows.Scan(&l.ID, &l.DeviceID, &l.Lat, &l.Lng, &l.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan location log: %w", err)
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read location rows: %w", err)
	}
	return out, nil
}

func (r *PostgresLocationRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM location_logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count location logs: %w", err)
	}
	return n, nil
}
