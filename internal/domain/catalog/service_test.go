package catalog_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/quickcart-backend/internal/domain/catalog"
	"github.com/your-org/quickcart-backend/internal/testutil"
)

func setupService(t *testing.T) *catalog.Service {
	db := testutil.NewSQLiteDB(t, &catalog.Product{})
	return catalog.NewService(db)
}

func createProduct(t *testing.T, s *catalog.Service, title, category, price string, stock int) *catalog.Product {
	t.Helper()
	prod, err := s.CreateProduct(context.Background(), &catalog.CreateProductRequest{
		Title:    title,
		Category: category,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
	})
	require.NoError(t, err)
	return prod
}

func TestGetStock_ReturnsCurrentValues(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	prod := createProduct(t, s, "Desk Lamp", "home", "24.50", 3)

	snap, err := s.GetStock(ctx, prod.ID)
	require.NoError(t, err)
	assert.Equal(t, prod.ID, snap.ProductID)
	assert.Equal(t, 3, snap.Stock)
	assert.True(t, decimal.RequireFromString("24.5").Equal(snap.Price))

	stock := 0
	_, err = s.UpdateProduct(ctx, prod.ID, &catalog.UpdateProductRequest{Stock: &stock})
	require.NoError(t, err)

	snap, err = s.GetStock(ctx, prod.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Stock)
}

func TestGetStock_NotFound(t *testing.T) {
	s := setupService(t)

	_, err := s.GetStock(context.Background(), 999)
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestCreateProduct_RejectsNegativeValues(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()

	_, err := s.CreateProduct(ctx, &catalog.CreateProductRequest{Title: "x", Category: "c", Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, catalog.ErrInvalidProduct)

	_, err = s.CreateProduct(ctx, &catalog.CreateProductRequest{Title: "x", Category: "c", Price: decimal.NewFromInt(1), Stock: -2})
	assert.ErrorIs(t, err, catalog.ErrInvalidProduct)
}

func TestUpdateProduct_PartialFields(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	prod := createProduct(t, s, "Mug", "kitchen", "8.00", 10)

	title := "Large Mug"
	updated, err := s.UpdateProduct(ctx, prod.ID, &catalog.UpdateProductRequest{Title: &title})
	require.NoError(t, err)

	assert.Equal(t, "Large Mug", updated.Title)
	assert.Equal(t, "kitchen", updated.Category)
	assert.Equal(t, 10, updated.Stock)
	assert.True(t, decimal.NewFromInt(8).Equal(updated.Price))
}

func TestUpdateProduct_NotFound(t *testing.T) {
	s := setupService(t)

	title := "ghost"
	_, err := s.UpdateProduct(context.Background(), 42, &catalog.UpdateProductRequest{Title: &title})
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestListProducts_Pagination(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		createProduct(t, s, fmt.Sprintf("Item %02d", i), "misc", "1.00", 1)
	}

	first, err := s.ListProducts(ctx, catalog.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Page)
	assert.Len(t, first.Products, catalog.PageSize)
	assert.Equal(t, int64(10), first.TotalProducts)
	assert.Equal(t, 2, first.TotalPages)
	assert.Len(t, first.NewProducts, 4)
	assert.Equal(t, "Item 09", first.Products[0].Title)

	second, err := s.ListProducts(ctx, catalog.ListQuery{Page: 2})
	require.NoError(t, err)
	assert.Len(t, second.Products, 2)
}

func TestListProducts_SearchCategoryAndSort(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	createProduct(t, s, "Red Shirt", "clothing", "30.00", 5)
	createProduct(t, s, "Blue Shirt", "clothing", "12.00", 5)
	createProduct(t, s, "Shirt Hanger", "home", "3.00", 5)
	createProduct(t, s, "Sofa", "home", "500.00", 1)

	result, err := s.ListProducts(ctx, catalog.ListQuery{Search: "SHIRT", SortByPrice: catalog.SortPriceLowToHigh})
	require.NoError(t, err)
	require.Len(t, result.Products, 3)
	assert.Equal(t, "Shirt Hanger", result.Products[0].Title)
	assert.Equal(t, "Red Shirt", result.Products[2].Title)
	assert.Equal(t, []string{"clothing", "home"}, result.Categories)

	result, err = s.ListProducts(ctx, catalog.ListQuery{Category: "home", SortByPrice: catalog.SortPriceHighToLow})
	require.NoError(t, err)
	require.Len(t, result.Products, 2)
	assert.Equal(t, "Sofa", result.Products[0].Title)
	assert.Equal(t, int64(2), result.TotalProducts)
	assert.Equal(t, 1, result.TotalPages)
}

func TestGetProduct_WithRelated(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	kettle := createProduct(t, s, "Kettle", "kitchen", "40.00", 2)
	for i := 0; i < 5; i++ {
		createProduct(t, s, fmt.Sprintf("Pan %d", i), "kitchen", "15.00", 2)
	}
	createProduct(t, s, "Chair", "home", "70.00", 2)

	detail, err := s.GetProduct(ctx, kettle.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kettle", detail.Product.Title)
	assert.Len(t, detail.RelatedProducts, 4)
	for _, rel := range detail.RelatedProducts {
		assert.Equal(t, "kitchen", rel.Category)
		assert.NotEqual(t, kettle.ID, rel.ID)
	}

	_, err = s.GetProduct(ctx, 999)
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}
