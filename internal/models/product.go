package models

import (
	"fmt"
	"time"
)

// ExpiryDateLayout is the calendar-date format products carry on the wire.
const ExpiryDateLayout = "2006-01-02"

// Product represents a single inventory item as the console sees it.
// ID and the timestamps are assigned by the remote inventory API and are
// never submitted back to it.
type Product struct {
	ID                    int64     `json:"id"`
	Name                  string    `json:"name"`
	Description           string    `json:"description,omitempty"`
	Price                 float64   `json:"price"`
	StockQuantity         int       `json:"stockQuantity"`
	Category              string    `json:"category"`
	Supplier              string    `json:"supplier"`
	ExpiryDate            string    `json:"expiryDate"`
	MinimumStockThreshold int       `json:"minimumStockThreshold,omitempty"`
	CreatedAt             time.Time `json:"createdAt,omitempty"`
	UpdatedAt             time.Time `json:"updatedAt,omitempty"`
}

// ExpiryTime parses the product's expiry date.
func (p *Product) ExpiryTime() (time.Time, error) {
	t, err := time.Parse(ExpiryDateLayout, p.ExpiryDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry date %q: %w", p.ExpiryDate, err)
	}
	return t, nil
}

// ProductInput is the payload submitted on create and update. It deliberately
// carries no id and no timestamps; the server assigns those.
type ProductInput struct {
	Name                  string  `json:"name" validate:"required,max=100"`
	Description           string  `json:"description" validate:"omitempty,max=500"`
	Price                 float64 `json:"price" validate:"required,gt=0"`
	StockQuantity         int     `json:"stockQuantity" validate:"gte=0"`
	Category              string  `json:"category" validate:"required"`
	Supplier              string  `json:"supplier" validate:"required"`
	ExpiryDate            string  `json:"expiryDate" validate:"required,datetime=2006-01-02"`
	MinimumStockThreshold int     `json:"minimumStockThreshold" validate:"omitempty,gt=0"`
}
