package models

import (
	"strings"

	"github.com/shopspring/decimal"

	dErrors "catalog/pkg/domain-errors"
)

// CreateProductRequest carries the caller-supplied fields of a new product.
type CreateProductRequest struct {
	Name        string           `json:"name"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
}

func (r *CreateProductRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
}

func (r *CreateProductRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if r.Price == nil {
		return dErrors.New(dErrors.CodeValidation, "price is required")
	}
	if r.Stock == nil {
		return dErrors.New(dErrors.CodeValidation, "stock is required")
	}
	return nil
}

// UpdateProductRequest is a partial update; nil fields are left unchanged.
type UpdateProductRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Stock       *int             `json:"stock,omitempty"`
}

func (r *UpdateProductRequest) Validate() error {
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "name must not be empty")
	}
	if r.Price != nil {
		if msg := checkPrice(*r.Price); msg != "" {
			return dErrors.New(dErrors.CodeValidation, msg)
		}
	}
	if r.Stock != nil {
		if msg := checkStock(*r.Stock); msg != "" {
			return dErrors.New(dErrors.CodeValidation, msg)
		}
	}
	return nil
}
