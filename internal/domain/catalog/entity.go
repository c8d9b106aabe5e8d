// internal/domain/catalog/entity.go
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog product
type Product struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Title     string          `gorm:"not null;size:255" json:"title"`
	About     string          `gorm:"type:text" json:"about"`
	Category  string          `gorm:"not null;size:100;index" json:"category"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Stock     int             `gorm:"not null;default:0" json:"stock"`
	CreatedAt time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName overrides the table name
func (Product) TableName() string {
	return "products"
}

// StockSnapshot is a point-in-time read of a product's stock and price.
// It may be stale as soon as it is returned.
type StockSnapshot struct {
	ProductID uint            `json:"product_id"`
	Title     string          `json:"title"`
	Category  string          `json:"category"`
	Stock     int             `json:"stock"`
	Price     decimal.Decimal `json:"price"`
}

// Snapshot returns the stock snapshot view of the product
func (p *Product) Snapshot() StockSnapshot {
	return StockSnapshot{
		ProductID: p.ID,
		Title:     p.Title,
		Category:  p.Category,
		Stock:     p.Stock,
		Price:     p.Price,
	}
}
