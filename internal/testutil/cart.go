package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/quickcart-backend/internal/domain/cart"
	"github.com/your-org/quickcart-backend/internal/domain/catalog"
	"github.com/your-org/quickcart-backend/internal/pkg/logger"
)

// FixedStock reports the same stock level for every product
type FixedStock int

// GetStock implements catalog.StockReader
func (f FixedStock) GetStock(_ context.Context, productID uint) (catalog.StockSnapshot, error) {
	return catalog.StockSnapshot{
		ProductID: productID,
		Stock:     int(f),
		Price:     decimal.NewFromInt(10),
	}, nil
}

// AssertIncrementsStopAtStock runs n concurrent increments through the cart
// service against store, starting from quantity 2 with stock 7. Exactly
// min(2+n, 7)-2 must succeed and every other call must be ErrOutOfStock.
func AssertIncrementsStopAtStock(t *testing.T, store cart.LineStore, n int) {
	t.Helper()

	const stock = 7
	svc := cart.NewService(store, FixedStock(stock), logger.Discard())
	ctx := context.Background()

	line, err := svc.AddToCart(ctx, 1, 10)
	require.NoError(t, err)
	_, err = svc.IncrementLine(ctx, 1, line.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var successes, outOfStock int64
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.IncrementLine(ctx, 1, line.ID)
			switch {
			case err == nil:
				atomic.AddInt64(&successes, 1)
			case errors.Is(err, cart.ErrOutOfStock):
				atomic.AddInt64(&outOfStock, 1)
			default:
				t.Errorf("unexpected increment error: %v", err)
			}
		}()
	}
	wg.Wait()

	want := min(2+n, stock)
	assert.Equal(t, int64(want-2), successes)
	assert.Equal(t, int64(n-(want-2)), outOfStock)

	final, err := store.GetByID(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, want, final.Quantity)
}

// AssertConcurrentUpdatesApply runs n concurrent +1 updates directly against
// store with plentiful headroom; all of them must land.
func AssertConcurrentUpdatesApply(t *testing.T, store cart.LineStore, n int) {
	t.Helper()
	ctx := context.Background()

	line, err := store.Create(ctx, 1, 2, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var failures int64
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AtomicUpdate(ctx, line.ID, func(current cart.CartLine) (cart.CartLine, error) {
				current.Quantity++
				return current, nil
			})
			if err != nil {
				atomic.AddInt64(&failures, 1)
				t.Errorf("unexpected update error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures)
	stored, err := store.GetByID(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, n+1, stored.Quantity)
}
