package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/quickcart-backend/internal/config"
	"github.com/your-org/quickcart-backend/internal/domain/cart"
	"github.com/your-org/quickcart-backend/internal/testutil"
	"gorm.io/gorm"
)

func setupCartStore(t *testing.T, lockWait time.Duration) (*CartLineStore, *gorm.DB) {
	db := testutil.NewSQLiteDB(t, &cart.CartLine{})
	return NewCartLineStore(db, lockWait), db
}

func TestCartLineStore_CreateAndGet(t *testing.T) {
	store, _ := setupCartStore(t, config.DefaultCartLockWait)
	ctx := context.Background()

	line, err := store.Create(ctx, 1, 2, 1)
	require.NoError(t, err)
	assert.Len(t, line.ID, 36)
	assert.Equal(t, int64(1), line.Version)

	byKey, err := store.Get(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, line.ID, byKey.ID)

	byID, err := store.GetByID(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, byID.Quantity)

	_, err = store.Get(ctx, 1, 3)
	assert.ErrorIs(t, err, cart.ErrLineNotFound)
	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, cart.ErrLineNotFound)
}

func TestCartLineStore_CreateConflict(t *testing.T) {
	store, _ := setupCartStore(t, config.DefaultCartLockWait)
	ctx := context.Background()

	_, err := store.Create(ctx, 1, 2, 1)
	require.NoError(t, err)

	_, err = store.Create(ctx, 1, 2, 1)
	assert.ErrorIs(t, err, cart.ErrLineConflict)

	_, err = store.Create(ctx, 2, 2, 1)
	assert.NoError(t, err)
}

func TestCartLineStore_ListByUserOrder(t *testing.T) {
	store, _ := setupCartStore(t, config.DefaultCartLockWait)
	ctx := context.Background()

	a, err := store.Create(ctx, 1, 30, 1)
	require.NoError(t, err)
	b, err := store.Create(ctx, 1, 10, 2)
	require.NoError(t, err)
	_, err = store.Create(ctx, 2, 10, 1)
	require.NoError(t, err)

	lines, err := store.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, a.ID, lines[0].ID)
	assert.Equal(t, b.ID, lines[1].ID)
}

func TestCartLineStore_AtomicUpdate(t *testing.T) {
	store, _ := setupCartStore(t, config.DefaultCartLockWait)
	ctx := context.Background()
	line, err := store.Create(ctx, 1, 2, 1)
	require.NoError(t, err)

	updated, err := store.AtomicUpdate(ctx, line.ID, func(current cart.CartLine) (cart.CartLine, error) {
		current.Quantity += 2
		return current, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Quantity)
	assert.Equal(t, int64(2), updated.Version)

	rejected := errors.New("rejected")
	_, err = store.AtomicUpdate(ctx, line.ID, func(current cart.CartLine) (cart.CartLine, error) {
		return current, rejected
	})
	assert.ErrorIs(t, err, rejected)

	stored, err := store.GetByID(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Quantity)
	assert.Equal(t, int64(2), stored.Version)
}

func TestCartLineStore_AtomicUpdateWaitsForLockedRow(t *testing.T) {
	store, db := setupCartStore(t, config.DefaultCartLockWait)
	ctx := context.Background()
	line, err := store.Create(ctx, 1, 2, 1)
	require.NoError(t, err)

	// Hold the row in another transaction while the update is issued
	tx := db.Begin()
	require.NoError(t, tx.Error)
	require.NoError(t, tx.Model(&cart.CartLine{}).Where("id = ?", line.ID).
		Updates(map[string]interface{}{"quantity": 5, "version": 2}).Error)

	done := make(chan *cart.CartLine, 1)
	go func() {
		updated, err := store.AtomicUpdate(ctx, line.ID, func(current cart.CartLine) (cart.CartLine, error) {
			current.Quantity++
			return current, nil
		})
		assert.NoError(t, err)
		done <- updated
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, tx.Commit().Error)

	updated := <-done
	require.NotNil(t, updated)
	assert.Equal(t, 6, updated.Quantity)
	assert.Equal(t, int64(3), updated.Version)
}

func TestCartLineStore_AtomicUpdateTimesOutOnBusyRow(t *testing.T) {
	store, db := setupCartStore(t, 20*time.Millisecond)
	ctx := context.Background()
	line, err := store.Create(ctx, 1, 2, 1)
	require.NoError(t, err)

	tx := db.Begin()
	require.NoError(t, tx.Error)

	_, err = store.AtomicUpdate(ctx, line.ID, func(current cart.CartLine) (cart.CartLine, error) {
		current.Quantity++
		return current, nil
	})
	assert.ErrorIs(t, err, cart.ErrUpdateContention)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tx.Rollback().Error)
	stored, err := store.GetByID(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Quantity)
	assert.Equal(t, int64(1), stored.Version)
}

func TestCartLineStore_AtomicUpdateAfterDelete(t *testing.T) {
	store, _ := setupCartStore(t, config.DefaultCartLockWait)
	ctx := context.Background()
	line, err := store.Create(ctx, 1, 2, 1)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, line.ID))

	called := false
	_, err = store.AtomicUpdate(ctx, line.ID, func(current cart.CartLine) (cart.CartLine, error) {
		called = true
		return current, nil
	})
	assert.ErrorIs(t, err, cart.ErrLineNotFound)
	assert.False(t, called)
}

func TestCartLineStore_ConcurrentIncrements(t *testing.T) {
	store, db := setupCartStore(t, config.DefaultCartLockWait)
	testutil.AssertConcurrentUpdatesApply(t, store, 50)

	var line cart.CartLine
	require.NoError(t, db.Take(&line).Error)
	assert.Equal(t, int64(51), line.Version)
}

func TestCartService_IncrementsStopAtStock(t *testing.T) {
	store, _ := setupCartStore(t, config.DefaultCartLockWait)
	testutil.AssertIncrementsStopAtStock(t, store, 12)
}

func TestCartLineStore_DeleteIsIdempotent(t *testing.T) {
	store, _ := setupCartStore(t, config.DefaultCartLockWait)
	ctx := context.Background()
	line, err := store.Create(ctx, 1, 2, 1)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, line.ID))
	require.NoError(t, store.Delete(ctx, line.ID))

	_, err = store.Get(ctx, 1, 2)
	assert.ErrorIs(t, err, cart.ErrLineNotFound)
}
