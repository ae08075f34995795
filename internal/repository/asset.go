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

const assetColumns = `id, asset_code, name, type, status, description, location, assigned_to, created_at, updated_at`

type postgresAssetRepository struct {
	db *sql.DB
}

func NewPostgresAssetRepository(db *sql.DB) *postgresAssetRepository {
	return &postgresAssetRepository{db: db}
}

func (r *postgresAssetRepository) Create(ctx context.Context, asset *domain.Asset) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	log.WithFields(log.Fields{
		"asset_id":   asset.ID,
		"asset_code": asset.AssetCode,
	}).Info("Creating new asset")

	query := `
		INSERT INTO assets (id, asset_code, name, type, status, description, location, assigned_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		asset.ID,
		asset.AssetCode,
		asset.Name,
		asset.Type,
		asset.Status,
		asset.Description,
		asset.Location,
		asset.AssignedTo,
	).Scan(&asset.CreatedAt, &asset.UpdatedAt)

	if err != nil {
		log.WithError(err).WithField("asset_code", asset.AssetCode).Error("Failed to create asset")
		return fmt.Errorf("failed to create asset: %w", err)
	}

	return nil
}

func (r *postgresAssetRepository) GetByID(ctx context.Context, id string) (*domain.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`

	asset, err := scanAsset(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAssetNotFound
	}
	if err != nil {
		log.WithError(err).WithField("asset_id", id).Error("Failed to get asset by ID")
		return nil, fmt.Errorf("failed to get asset by ID: %w", err)
	}

	return asset, nil
}

func (r *postgresAssetRepository) GetByCode(ctx context.Context, code string) (*domain.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + assetColumns + ` FROM assets WHERE asset_code = $1`

	asset, err := scanAsset(r.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAssetNotFound
	}
	if err != nil {
		log.WithError(err).WithField("asset_code", code).Error("Failed to get asset by code")
		return nil, fmt.Errorf("failed to get asset by code: %w", err)
	}

	return asset, nil
}

func (r *postgresAssetRepository) Update(ctx context.Context, id string, req domain.UpdateAssetRequest) (*domain.Asset, error) {
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
	if req.Description != nil {
		setParts = append(setParts, fmt.Sprintf("description = $%d", argPos))
		args = append(args, *req.Description)
		argPos++
	}
	if req.Location != nil {
		setParts = append(setParts, fmt.Sprintf("location = $%d", argPos))
		args = append(args, *req.Location)
		argPos++
	}
	// An empty assignee unassigns the asset.
	if req.AssignedTo != nil {
		setParts = append(setParts, fmt.Sprintf("assigned_to = NULLIF($%d, '')::uuid", argPos))
		args = append(args, *req.AssignedTo)
		argPos++
	}

	if len(setParts) == 0 {
		return r.GetByID(ctx, id)
	}

	setParts = append(setParts, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE assets SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setParts, ", "), argPos, assetColumns)

	asset, err := scanAsset(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAssetNotFound
	}
	if err != nil {
		log.WithError(err).WithField("asset_id", id).Error("Failed to update asset")
		return nil, fmt.Errorf("failed to update asset: %w", err)
	}

	return asset, nil
}

func (r *postgresAssetRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	log.WithField("asset_id", id).Info("Deleting asset")

	result, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		log.WithError(err).WithField("asset_id", id).Error("Failed to delete asset")
		return fmt.Errorf("failed to delete asset: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not determine rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrAssetNotFound
	}

	return nil
}

func (r *postgresAssetRepository) List(ctx context.Context, status *domain.AssetStatus, limit, offset int) ([]domain.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var query strings.Builder
	args := []any{}
	argPos := 1

	query.WriteString(`SELECT ` + assetColumns + ` FROM assets WHERE 1=1`)

	if status != nil {
		query.WriteString(fmt.Sprintf(" AND status = $%d", argPos))
		args = append(args, *status)
		argPos++
	}

	query.WriteString(" ORDER BY created_at DESC")
	query.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argPos, argPos+1))
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		log.WithError(err).Error("Failed to list assets")
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	assets := []domain.Asset{}
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			log.WithError(err).Error("Failed to scan asset row")
			return nil, fmt.Errorf("failed to scan asset row: %w", err)
		}
		assets = append(assets, *asset)
	}

	return assets, rows.Err()
}

func scanAsset(row rowScanner) (*domain.Asset, error) {
	var asset domain.Asset
	var description, location, assignedTo sql.NullString

	err := row.Scan(
		&asset.ID,
		&asset.AssetCode,
		&asset.Name,
		&asset.Type,
		&asset.Status,
		&description,
		&location,
		&assignedTo,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	asset.Description = description.String
	asset.Location = nullString(location)
	asset.AssignedTo = nullString(assignedTo)
	return &asset, nil
}
