package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"sima-events/internal/domain"

	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

type AssetRepository interface {
	Create(ctx context.Context, asset *domain.Asset) error
	GetByID(ctx context.Context, id string) (*domain.Asset, error)
	GetByCode(ctx context.Context, code string) (*domain.Asset, error)
	Update(ctx context.Context, id string, req domain.UpdateAssetRequest) (*domain.Asset, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, status *domain.AssetStatus, limit, offset int) ([]domain.Asset, error)
}

type assetService struct {
	assetRepo AssetRepository
	events    EventPublisher
}

func NewAssetService(assetRepo AssetRepository, events EventPublisher) *assetService {
	return &assetService{assetRepo: assetRepo, events: events}
}

func (s *assetService) CreateAsset(ctx context.Context, req domain.CreateAssetRequest) (*domain.Asset, error) {
	req.AssetCode = strings.TrimSpace(req.AssetCode)
	if err := domain.ValidateAssetCode(req.AssetCode); err != nil {
		return nil, err
	}
	if err := domain.ValidateAssetName(req.Name); err != nil {
		return nil, err
	}
	if err := domain.ValidateAssetType(req.Type); err != nil {
		return nil, err
	}
	if req.Status == "" {
		req.Status = domain.AssetStatusActive
	}
	if err := domain.ValidateAssetStatus(req.Status); err != nil {
		return nil, err
	}

	existing, err := s.assetRepo.GetByCode(ctx, req.AssetCode)
	if err != nil && !errors.Is(err, domain.ErrAssetNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrAssetCodeExists
	}

	asset := &domain.Asset{
		ID:          uuid.NewString(),
		AssetCode:   req.AssetCode,
		Name:        req.Name,
		Type:        req.Type,
		Status:      req.Status,
		Description: req.Description,
		Location:    req.Location,
		AssignedTo:  req.AssignedTo,
	}
	if err := s.assetRepo.Create(ctx, asset); err != nil {
		return nil, err
	}

	s.events.Publish(ctx, domain.TopicAssetCreated, assetPayload(asset))

	log.WithFields(log.Fields{
		"asset_id":   asset.ID,
		"asset_code": asset.AssetCode,
	}).Info("Asset successfully created")

	return asset, nil
}

func (s *assetService) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrInvalidUUID
	}
	return s.assetRepo.GetByID(ctx, id)
}

func (s *assetService) UpdateAsset(ctx context.Context, id string, req domain.UpdateAssetRequest) (*domain.Asset, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrInvalidUUID
	}
	if req.Name != nil {
		if err := domain.ValidateAssetName(*req.Name); err != nil {
			return nil, err
		}
	}
	if req.Type != nil {
		if err := domain.ValidateAssetType(*req.Type); err != nil {
			return nil, err
		}
	}
	if req.Status != nil {
		if err := domain.ValidateAssetStatus(*req.Status); err != nil {
			return nil, err
		}
	}

	asset, err := s.assetRepo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, domain.TopicAssetUpdated, assetPayload(asset))

	log.WithField("asset_id", id).Info("Asset successfully updated")
	return asset, nil
}

func (s *assetService) DeleteAsset(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrInvalidUUID
	}
	return s.assetRepo.Delete(ctx, id)
}

func (s *assetService) ListAssets(ctx context.Context, status *domain.AssetStatus, limit, offset int) ([]domain.Asset, error) {
	if status != nil {
		if err := domain.ValidateAssetStatus(*status); err != nil {
			return nil, err
		}
	}
	offset, limit = page(offset, limit)

	assets, err := s.assetRepo.List(ctx, status, limit, offset)
	if err != nil {
		log.WithError(err).Error("Failed to list assets")
		return nil, err
	}
	return assets, nil
}

func assetPayload(a *domain.Asset) domain.AssetPayload {
	return domain.AssetPayload{
		ID:         domain.ID(a.ID),
		AssetCode:  a.AssetCode,
		Status:     string(a.Status),
		Type:       string(a.Type),
		AssignedTo: lo.FromPtr(a.AssignedTo),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
}
