package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sima-events/internal/domain"

	log "github.com/sirupsen/logrus"
)

const deviceColumns = `id, device_id, name, type, status, asset_id, created_at, updated_at`

type postgresDeviceRepository struct {
	db *sql.DB
}

func NewPostgresDeviceRepository(db *sql.DB) *postgresDeviceRepository {
	return &postgresDeviceRepository{db: db}
}

func (r *postgresDeviceRepository) Create(ctx context.Context, device *domain.Device) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO devices (id, device_id, name, type, status, asset_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		device.ID,
		device.DeviceID,
		device.Name,
		device.Type,
		device.Status,
		device.AssetID,
	).Scan(&device.CreatedAt, &device.UpdatedAt)

	if err != nil {
		log.WithError(err).WithField("device_id", device.DeviceID).Error("Failed to create device")
		return fmt.Errorf("failed to create device: %w", err)
	}

	return nil
}

func (r *postgresDeviceRepository) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	return r.getBy(ctx, "id", id)
}

func (r *postgresDeviceRepository) GetByDeviceID(ctx context.Context, deviceID string) (*domain.Device, error) {
	return r.getBy(ctx, "device_id", deviceID)
}

func (r *postgresDeviceRepository) getBy(ctx context.Context, column, value string) (*domain.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM devices WHERE %s = $1", deviceColumns, column)

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDeviceNotFound
	}
	if err != nil {
		log.WithError(err).WithField(column, value).Error("Failed to get device")
		return nil, fmt.Errorf("failed to get device by %s: %w", column, err)
	}

	return device, nil
}

func (r *postgresDeviceRepository) Update(ctx context.Context, id string, req domain.UpdateDeviceRequest) (*domain.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	setParts := []string{}
	args := []any{}
	argPos := 1

	if req.Name != nil {
		setParts = append(setParts, fmt.Sprintf("name = $%d", argPos))
		args = append(args, *req.Name)
		argPos++
	}
	if req.Type != nil {
		setParts = append(setParts, fmt.Sprintf("type = $%d", argPos))
		args = append(args, *req.Type)
		argPos++
	}
	if req.Status != nil {
		setParts = append(setParts, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.AssetID != nil {
		setParts = append(setParts, fmt.Sprintf("asset_id = NULLIF($%d, '')::uuid", argPos))
		args = append(args, *req.AssetID)
		argPos++
	}

	if len(setParts) == 0 {
		return r.GetByID(ctx, id)
	}

	setParts = append(setParts, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE devices SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setParts, ", "), argPos, deviceColumns)

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDeviceNotFound
	}
	if err != nil {
		log.WithError(err).WithField("device_id", id).Error("Failed to update device")
		return nil, fmt.Errorf("failed to update device: %w", err)
	}

	return device, nil
}

func (r *postgresDeviceRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		log.WithError(err).WithField("device_id", id).Error("Failed to delete device")
		return fmt.Errorf("failed to delete device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not determine rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrDeviceNotFound
	}

	return nil
}

func (r *postgresDeviceRepository) List(ctx context.Context, limit, offset int) ([]domain.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		log.WithError(err).Error("Failed to list devices")
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	devices := []domain.Device{}
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", err)
		}
		devices = append(devices, *device)
	}

	return devices, rows.Err()
}

func scanDevice(row rowScanner) (*domain.Device, error) {
	var device domain.Device
	var assetID sql.NullString

	err := row.Scan(
		&device.ID,
		&device.DeviceID,
		&device.Name,
		&device.Type,
		&device.Status,
		&assetID,
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	device.AssetID = nullString(assetID)
	return &device, nil
}
