// internal/infrastructure/database/postgres/cart_store.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/your-org/quickcart-backend/internal/domain/cart"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartLineStore persists cart lines in the cart_lines table. Updates lock
// the row for the length of a transaction so they apply one at a time.
type CartLineStore struct {
	db       *gorm.DB
	lockWait time.Duration
}

// NewCartLineStore creates a gorm backed line store. lockWait bounds how long
// an update waits for a locked row; zero means wait for the context.
func NewCartLineStore(db *gorm.DB, lockWait time.Duration) *CartLineStore {
	return &CartLineStore{db: db, lockWait: lockWait}
}

// Get returns the line for (userID, productID)
func (s *CartLineStore) Get(ctx context.Context, userID, productID uint) (*cart.CartLine, error) {
	var line cart.CartLine
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Take(&line).Error
	return lineResult(&line, err)
}

// GetByID returns the line with the given id
func (s *CartLineStore) GetByID(ctx context.Context, lineID string) (*cart.CartLine, error) {
	var line cart.CartLine
	err := s.db.WithContext(ctx).Where("id = ?", lineID).Take(&line).Error
	return lineResult(&line, err)
}

// ListByUser returns the user's lines in insertion order
func (s *CartLineStore) ListByUser(ctx context.Context, userID uint) ([]cart.CartLine, error) {
	var lines []cart.CartLine
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}
	return lines, nil
}

// Create inserts a new line; the unique index rejects a second line per key
func (s *CartLineStore) Create(ctx context.Context, userID, productID uint, quantity int) (*cart.CartLine, error) {
	if quantity < 1 {
		return nil, cart.ErrInvalidQuantity
	}

	line := cart.CartLine{
		ID:        uuid.New().String(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		Version:   1,
	}

	if err := s.db.WithContext(ctx).Create(&line).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, cart.ErrLineConflict
		}
		return nil, fmt.Errorf("failed to create cart line: %w", err)
	}
	return &line, nil
}

// AtomicUpdate reads the line with SELECT ... FOR UPDATE, applies fn and
// writes it back in the same transaction.
func (s *CartLineStore) AtomicUpdate(ctx context.Context, lineID string, fn cart.UpdateFunc) (*cart.CartLine, error) {
	if s.lockWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockWait)
		defer cancel()
	}

	var updated cart.CartLine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the row until commit
		var current cart.CartLine
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", lineID).
			Take(&current).Error
		if _, err := lineResult(&current, err); err != nil {
			return err
		}

		next, err := cart.ApplyUpdate(current, fn)
		if err != nil {
			return err
		}
		next.Version = current.Version + 1
		next.UpdatedAt = time.Now().UTC()

		// Write back quantity and bump the version
		err = tx.Model(&cart.CartLine{}).
			Where("id = ?", current.ID).
			Updates(map[string]interface{}{
				"quantity":   next.Quantity,
				"version":    next.Version,
				"updated_at": next.UpdatedAt,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to update cart line: %w", err)
		}

		updated = next
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, cart.WaitExpired(ctxErr)
		}
		return nil, err
	}
	return &updated, nil
}

// Delete removes the line if present
func (s *CartLineStore) Delete(ctx context.Context, lineID string) error {
	err := s.db.WithContext(ctx).Where("id = ?", lineID).Delete(&cart.CartLine{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete cart line: %w", err)
	}
	return nil
}

func lineResult(line *cart.CartLine, err error) (*cart.CartLine, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, cart.ErrLineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cart line: %w", err)
	}
	return line, nil
}
