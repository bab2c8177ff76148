package models

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	dErrors "catalog/pkg/domain-errors"
)

func init() {
	// prices travel as JSON numbers, e.g. 999.99
	decimal.MarshalJSONWithoutQuotes = true
}

// MaxNameLength bounds product names.
const MaxNameLength = 255

// Bounds of the products table columns: price NUMERIC(10,2), stock INTEGER.
const (
	PriceScale = 2
	MaxStock   = math.MaxInt32
)

// MaxPrice is the largest price a NUMERIC(10,2) column holds.
var MaxPrice = decimal.RequireFromString("99999999.99")

// Product is the record managed by the catalog.
//
// Invariants:
//   - ID is assigned by the store on insert and never changes
//   - Name is non-empty after trimming
//   - Price and Stock are non-negative and fit their columns
//   - CreatedAt is immutable; UpdatedAt moves on every mutation
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate enforces the product invariants.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "name is required")
	}
	if len(p.Name) > MaxNameLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "name must be at most 255 characters")
	}
	if msg := checkPrice(p.Price); msg != "" {
		return dErrors.New(dErrors.CodeInvariantViolation, msg)
	}
	if msg := checkStock(p.Stock); msg != "" {
		return dErrors.New(dErrors.CodeInvariantViolation, msg)
	}
	return nil
}

func checkPrice(price decimal.Decimal) string {
	switch {
	case price.IsNegative():
		return "price must be greater than or equal to 0"
	case price.GreaterThan(MaxPrice):
		return "price must be at most " + MaxPrice.StringFixed(PriceScale)
	case !price.Equal(price.Truncate(PriceScale)):
		return "price must have at most 2 decimal places"
	}
	return ""
}

func checkStock(stock int) string {
	switch {
	case stock < 0:
		return "stock must be greater than or equal to 0"
	case stock > MaxStock:
		return "stock must be at most 2147483647"
	}
	return ""
}

// NewProduct builds an unsaved product from caller fields and validates it.
func NewProduct(name string, description *string, price decimal.Decimal, stock int) (*Product, error) {
	p := &Product{
		Name:        strings.TrimSpace(name),
		Description: description,
		Price:       price,
		Stock:       stock,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Apply merges the non-nil fields of an update into p and revalidates.
func (p *Product) Apply(req *UpdateProductRequest) error {
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = req.Description
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.Stock != nil {
		p.Stock = *req.Stock
	}
	return p.Validate()
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Description != nil {
		d := *p.Description
		cp.Description = &d
	}
	return &cp
}

// DeleteResult is the acknowledgement returned by a successful delete.
type DeleteResult struct {
	Message string `json:"message"`
}
