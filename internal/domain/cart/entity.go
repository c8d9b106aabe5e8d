// internal/domain/cart/entity.go
package cart

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/quickcart-backend/internal/domain/catalog"
)

// CartLine is one user's quantity of one product. There is at most one line
// per (UserID, ProductID) and Quantity is never below 1.
type CartLine struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_cart_lines_user_product,priority:1" json:"user_id"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_cart_lines_user_product,priority:2" json:"product_id"`
	Quantity  int       `gorm:"not null;check:chk_cart_lines_quantity,quantity >= 1" json:"quantity"`
	Version   int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (CartLine) TableName() string {
	return "cart_lines"
}

// CartLineView is a cart line joined with the product's current snapshot
type CartLineView struct {
	CartLine
	Product      *catalog.StockSnapshot `json:"product,omitempty"`
	LineTotal    decimal.Decimal        `json:"line_total"`
	ExceedsStock bool                   `json:"exceeds_stock"` // stock dropped since the line was written
	Unavailable  bool                   `json:"unavailable"`   // product no longer in the catalog
}

// CartView is the read-only cart with derived totals
type CartView struct {
	UserID        uint            `json:"user_id"`
	Lines         []CartLineView  `json:"lines"`
	ItemCount     int             `json:"item_count"`     // Number of lines
	TotalQuantity int             `json:"total_quantity"` // Sum of all quantities
	SubTotal      decimal.Decimal `json:"sub_total"`      // Sum of price x quantity over available lines
}
