package model

import "strings"

// Product is a read-mostly snapshot of a catalog entry.
// Only the backend mutates products; the client caches them.
type Product struct {
	ID            int64   `json:"product_id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	StockQuantity int     `json:"stock_quantity"`
	Description   string  `json:"description,omitempty"`
	ImageURL      string  `json:"imageUrl,omitempty"`
}

// ProductID returns the product identity. Used by rosters keyed on id.
func ProductID(p Product) int64 { return p.ID }

// IsSentinel reports whether id is a placeholder identity (zero or negative).
func IsSentinel(id int64) bool { return id <= 0 }

// ProductDraft is the payload for creating a product. The backend assigns the id.
type ProductDraft struct {
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	StockQuantity int     `json:"stock_quantity"`
	Description   string  `json:"description,omitempty"`
	ImageURL      string  `json:"imageUrl,omitempty"`
}

// Complete reports whether the draft carries the fields the admin form requires.
func (d ProductDraft) Complete() bool {
	return strings.TrimSpace(d.Name) != "" && d.Price != 0
}

// Product converts the draft to a product with the given id.
func (d ProductDraft) Product(id int64) Product {
	return Product{
		ID:            id,
		Name:          d.Name,
		Price:         d.Price,
		StockQuantity: d.StockQuantity,
		Description:   d.Description,
		ImageURL:      d.ImageURL,
	}
}
