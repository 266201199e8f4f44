package service

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

const (
	maxItemIDLen   = 100
	maxNameLen     = 200
	maxCategoryLen = 100
	maxSupplierLen = 200
	maxLocationLen = 200
	maxAlertType   = 50
	priceScale     = 2
)

// Prices are stored as DECIMAL(10,2).
var maxPrice = decimal.New(1, 8)

// Validator is the write-side policy for item and rule fields.
// Negative quantities are rejected unless AllowNegativeQuantity is set;
// negative prices are always rejected.
type Validator struct {
	AllowNegativeQuantity bool
}

func (v Validator) ValidateItem(item domain.InventoryItem) error {
	if strings.TrimSpace(item.ItemID) == "" {
		return &domain.ValidationError{Field: "item_id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(item.Name) == "" {
		return &domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	for _, f := range []struct {
		name  string
		value string
		max   int
	}{
		{"item_id", item.ItemID, maxItemIDLen},
		{"name", item.Name, maxNameLen},
		{"category", item.Category, maxCategoryLen},
		{"supplier", item.Supplier, maxSupplierLen},
		{"warehouse_location", item.WarehouseLocation, maxLocationLen},
	} {
		if utf8.RuneCountInString(f.value) > f.max {
			return &domain.ValidationError{Field: f.name, Reason: "too long"}
		}
	}

	if err := v.ValidateQuantity(item.Quantity); err != nil {
		return err
	}

	if item.Price.IsNegative() {
		return &domain.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if item.Price.Exponent() < -priceScale && !item.Price.Equal(item.Price.Round(priceScale)) {
		return &domain.ValidationError{Field: "price", Reason: "at most 2 decimal places"}
	}
	if item.Price.GreaterThanOrEqual(maxPrice) {
		return &domain.ValidationError{Field: "price", Reason: "exceeds 8 integer digits"}
	}
	return nil
}

func (v Validator) ValidateQuantity(quantity int) error {
	if quantity < 0 && !v.AllowNegativeQuantity {
		return &domain.ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	return nil
}

func (v Validator) ValidateRule(alertType string, threshold int) error {
	if utf8.RuneCountInString(alertType) > maxAlertType {
		return &domain.ValidationError{Field: "alert_type", Reason: "too long"}
	}
	if threshold < 0 && !v.AllowNegativeQuantity {
		return &domain.ValidationError{Field: "threshold", Reason: "must not be negative"}
	}
	return nil
}
