// internal/domain/catalog/service.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// PageSize is the number of products per listing page
	PageSize = 8

	newProductsLimit     = 4
	relatedProductsLimit = 4
)

// Sort options for product listings
const (
	SortPriceLowToHigh = "lowToHigh"
	SortPriceHighToLow = "highToLow"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrInvalidProduct     = errors.New("invalid product")
	ErrCatalogUnavailable = errors.New("catalog temporarily unavailable")
)

// StockReader is the read-only catalog view used by the cart
type StockReader interface {
	GetStock(ctx context.Context, productID uint) (StockSnapshot, error)
}

// Service handles catalog business logic
type Service struct {
	db *gorm.DB
}

// NewService creates a new catalog service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// ListQuery holds listing filters
type ListQuery struct {
	Search      string `form:"search"`
	Category    string `form:"category"`
	Page        int    `form:"page"`
	SortByPrice string `form:"sortByPrice"`
}

// ListResult is a page of products plus listing metadata
type ListResult struct {
	Products      []Product `json:"products"`
	Categories    []string  `json:"categories"`
	NewProducts   []Product `json:"new_products"`
	Page          int       `json:"page"`
	TotalPages    int       `json:"total_pages"`
	TotalProducts int64     `json:"total_products"`
}

// ProductDetail is a product with related products from the same category
type ProductDetail struct {
	Product         *Product  `json:"product"`
	RelatedProducts []Product `json:"related_products"`
}

// CreateProductRequest represents product creation data
type CreateProductRequest struct {
	Title    string          `json:"title" binding:"required"`
	About    string          `json:"about"`
	Category string          `json:"category" binding:"required"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock" binding:"min=0"`
}

// UpdateProductRequest represents a partial product update
type UpdateProductRequest struct {
	Title    *string          `json:"title"`
	About    *string          `json:"about"`
	Category *string          `json:"category"`
	Price    *decimal.Decimal `json:"price"`
	Stock    *int             `json:"stock"`
}

// GetStock reads the current stock and price of a product. Nothing is cached.
func (s *Service) GetStock(ctx context.Context, productID uint) (StockSnapshot, error) {
	var prod Product
	err := s.db.WithContext(ctx).Where("id = ?", productID).First(&prod).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StockSnapshot{}, ErrProductNotFound
	}
	if err != nil {
		return StockSnapshot{}, fmt.Errorf("failed to read product stock: %w", err)
	}
	return prod.Snapshot(), nil
}

// ListProducts returns a filtered, sorted page of products
func (s *Service) ListProducts(ctx context.Context, q ListQuery) (*ListResult, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}

	db := s.db.WithContext(ctx)

	filtered := func() *gorm.DB {
		tx := db.Model(&Product{})
		if q.Search != "" {
			tx = tx.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(q.Search)+"%")
		}
		if q.Category != "" {
			tx = tx.Where("category = ?", q.Category)
		}
		return tx
	}

	order := "created_at DESC, id DESC"
	switch q.SortByPrice {
	case SortPriceLowToHigh:
		order = "price ASC, id ASC"
	case SortPriceHighToLow:
		order = "price DESC, id ASC"
	}

	var products []Product
	if err := filtered().Order(order).Offset((page - 1) * PageSize).Limit(PageSize).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	var categories []string
	if err := db.Model(&Product{}).Distinct().Order("category").Pluck("category", &categories).Error; err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	var newest []Product
	if err := db.Order("created_at DESC, id DESC").Limit(newProductsLimit).Find(&newest).Error; err != nil {
		return nil, fmt.Errorf("failed to list new products: %w", err)
	}

	return &ListResult{
		Products:      products,
		Categories:    categories,
		NewProducts:   newest,
		Page:          page,
		TotalPages:    int(math.Ceil(float64(total) / float64(PageSize))),
		TotalProducts: total,
	}, nil
}

// GetProduct returns a product and up to four related products
func (s *Service) GetProduct(ctx context.Context, productID uint) (*ProductDetail, error) {
	db := s.db.WithContext(ctx)

	var prod Product
	err := db.Where("id = ?", productID).First(&prod).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve product: %w", err)
	}

	var related []Product
	err = db.Where("category = ? AND id <> ?", prod.Category, prod.ID).
		Order("created_at DESC, id DESC").
		Limit(relatedProductsLimit).
		Find(&related).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve related products: %w", err)
	}

	return &ProductDetail{Product: &prod, RelatedProducts: related}, nil
}

// CreateProduct creates a new product
func (s *Service) CreateProduct(ctx context.Context, req *CreateProductRequest) (*Product, error) {
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidProduct)
	}
	if req.Stock < 0 {
		return nil, fmt.Errorf("%w: stock cannot be negative", ErrInvalidProduct)
	}

	prod := &Product{
		Title:    strings.TrimSpace(req.Title),
		About:    req.About,
		Category: strings.TrimSpace(req.Category),
		Price:    req.Price,
		Stock:    req.Stock,
	}

	if err := s.db.WithContext(ctx).Create(prod).Error; err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	return prod, nil
}

// UpdateProduct applies the non-nil fields of req to the product
func (s *Service) UpdateProduct(ctx context.Context, productID uint, req *UpdateProductRequest) (*Product, error) {
	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = strings.TrimSpace(*req.Title)
	}
	if req.About != nil {
		updates["about"] = *req.About
	}
	if req.Category != nil {
		updates["category"] = strings.TrimSpace(*req.Category)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidProduct)
		}
		updates["price"] = *req.Price
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, fmt.Errorf("%w: stock cannot be negative", ErrInvalidProduct)
		}
		updates["stock"] = *req.Stock
	}

	db := s.db.WithContext(ctx)

	var prod Product
	err := db.Where("id = ?", productID).First(&prod).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve product: %w", err)
	}

	if len(updates) > 0 {
		if err := db.Model(&prod).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update product: %w", err)
		}
	}

	if err := db.Where("id = ?", productID).First(&prod).Error; err != nil {
		return nil, fmt.Errorf("failed to reload product: %w", err)
	}

	return &prod, nil
}
