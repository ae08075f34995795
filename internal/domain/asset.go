package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	maxAssetNameLength = 200
	maxAssetCodeLength = 50
)

var (
	ErrAssetNotFound     = errors.New("asset not found")
	ErrAssetCodeExists   = errors.New("asset code already exists")
	ErrInvalidAssetCode  = errors.New("invalid asset code")
	ErrInvalidAssetName  = errors.New("invalid asset name")
	ErrInvalidAssetType  = errors.New("invalid asset type")
	ErrInvalidAssetState = errors.New("invalid asset status")
)

type AssetStatus string

const (
	AssetStatusActive      AssetStatus = "ACTIVE"
	AssetStatusInactive    AssetStatus = "INACTIVE"
	AssetStatusMaintenance AssetStatus = "MAINTENANCE"
	AssetStatusRetired     AssetStatus = "RETIRED"
)

type AssetType string

const (
	AssetTypeHardware AssetType = "HARDWARE"
	AssetTypeSoftware AssetType = "SOFTWARE"
	AssetTypeNetwork  AssetType = "NETWORK"
	AssetTypeOther    AssetType = "OTHER"
)

type Asset struct {
	ID          string      `json:"id"`
	AssetCode   string      `json:"assetCode"`
	Name        string      `json:"name"`
	Type        AssetType   `json:"type"`
	Status      AssetStatus `json:"status"`
	Description string      `json:"description,omitempty"`
	Location    *string     `json:"location,omitempty"`
	AssignedTo  *string     `json:"assignedTo,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type CreateAssetRequest struct {
	AssetCode   string      `json:"assetCode"`
	Name        string      `json:"name"`
	Type        AssetType   `json:"type"`
	Status      AssetStatus `json:"status,omitempty"`
	Description string      `json:"description"`
	Location    *string     `json:"location,omitempty"`
	AssignedTo  *string     `json:"assignedTo,omitempty"`
}

type UpdateAssetRequest struct {
	Name        *string      `json:"name,omitempty"`
	Type        *AssetType   `json:"type,omitempty"`
	Status      *AssetStatus `json:"status,omitempty"`
	Description *string      `json:"description,omitempty"`
	Location    *string      `json:"location,omitempty"`
	AssignedTo  *string      `json:"assignedTo,omitempty"`
}

func ValidateAssetCode(code string) error {
	if code == "" || len(code) > maxAssetCodeLength {
		return ErrInvalidAssetCode
	}
	if strings.ContainsAny(code, " ") {
		return ErrInvalidAssetCode
	}
	return nil
}

func ValidateAssetName(name string) error {
	if name == "" || len(name) > maxAssetNameLength {
		return ErrInvalidAssetName
	}
	return nil
}

func ValidateAssetType(t AssetType) error {
	switch t {
	case AssetTypeHardware, AssetTypeSoftware, AssetTypeNetwork, AssetTypeOther:
		return nil
	}
	return ErrInvalidAssetType
}

func ValidateAssetStatus(s AssetStatus) error {
	switch s {
	case AssetStatusActive, AssetStatusInactive, AssetStatusMaintenance, AssetStatusRetired:
		return nil
	}
	return ErrInvalidAssetState
}
