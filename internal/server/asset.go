package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"sima-events/internal/domain"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

type AssetService interface {
	CreateAsset(ctx context.Context, req domain.CreateAssetRequest) (*domain.Asset, error)
	GetAsset(ctx context.Context, id string) (*domain.Asset, error)
	UpdateAsset(ctx context.Context, id string, req domain.UpdateAssetRequest) (*domain.Asset, error)
	DeleteAsset(ctx context.Context, id string) error
	ListAssets(ctx context.Context, status *domain.AssetStatus, limit, offset int) ([]domain.Asset, error)
}

type assetServer struct {
	assetService AssetService
}

func NewAssetServer(assetService AssetService) *assetServer {
	return &assetServer{assetService: assetService}
}

func handleAssetError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAssetNotFound):
		return http.StatusNotFound, "asset not found"
	case errors.Is(err, domain.ErrAssetCodeExists):
		return http.StatusConflict, "asset code already exists"
	case errors.Is(err, domain.ErrInvalidAssetCode), errors.Is(err, domain.ErrInvalidAssetName),
		errors.Is(err, domain.ErrInvalidAssetType), errors.Is(err, domain.ErrInvalidAssetState),
		errors.Is(err, domain.ErrInvalidUUID):
		return http.StatusBadRequest, "invalid request"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *assetServer) CreateAsset(c echo.Context) error {
	var req domain.CreateAssetRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	asset, err := s.assetService.CreateAsset(c.Request().Context(), req)
	if err != nil {
		log.WithError(err).WithField("asset_code", req.AssetCode).Error("Failed to create asset")
		statusCode, errorMsg := handleAssetError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.JSON(http.StatusCreated, asset)
}

func (s *assetServer) GetAsset(c echo.Context) error {
	id := c.Param("id")

	asset, err := s.assetService.GetAsset(c.Request().Context(), id)
	if err != nil {
		log.WithError(err).WithField("asset_id", id).Error("Failed to get asset")
		statusCode, errorMsg := handleAssetError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.JSON(http.StatusOK, asset)
}

func (s *assetServer) UpdateAsset(c echo.Context) error {
	id := c.Param("id")

	var req domain.UpdateAssetRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	asset, err := s.assetService.UpdateAsset(c.Request().Context(), id, req)
	if err != nil {
		log.WithError(err).WithField("asset_id", id).Error("Failed to update asset")
		statusCode, errorMsg := handleAssetError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.JSON(http.StatusOK, asset)
}

func (s *assetServer) DeleteAsset(c echo.Context) error {
	id := c.Param("id")

	if err := s.assetService.DeleteAsset(c.Request().Context(), id); err != nil {
		log.WithError(err).WithField("asset_id", id).Error("Failed to delete asset")
		statusCode, errorMsg := handleAssetError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *assetServer) ListAssets(c echo.Context) error {
	limit, offset := limitOffset(c)

	var status *domain.AssetStatus
	if raw := c.QueryParam("status"); raw != "" {
		st := domain.AssetStatus(strings.ToUpper(raw))
		if err := domain.ValidateAssetStatus(st); err != nil {
			statusCode, errorMsg := handleAssetError(err)
			return errorJSON(c, statusCode, errorMsg)
		}
		status = &st
	}

	assets, err := s.assetService.ListAssets(c.Request().Context(), status, limit, offset)
	if err != nil {
		log.WithError(err).Error("Failed to list assets")
		statusCode, errorMsg := handleAssetError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.JSON(http.StatusOK, assets)
}
