// internal/domain/cart/store.go
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/your-org/quickcart-backend/internal/domain/catalog"
)

// Cart errors. Every one of them leaves the stored cart unchanged.
var (
	ErrOutOfStock       = errors.New("out of stock")
	ErrMinimumQuantity  = errors.New("quantity cannot go below one, remove the item instead")
	ErrLineNotFound     = errors.New("cart line not found")
	ErrProductNotFound  = catalog.ErrProductNotFound
	ErrForbidden        = errors.New("cart line belongs to another user")
	ErrLineConflict     = errors.New("cart line already exists for this product")
	ErrInvalidQuantity  = errors.New("cart line quantity must be at least one")
	ErrUpdateContention = errors.New("timed out waiting for a concurrent update of the cart line")
)

// UpdateFunc computes the next state of a line from its current state.
// Returning an error rejects the update and nothing is written.
type UpdateFunc func(current CartLine) (CartLine, error)

// LineStore is durable keyed storage for cart lines
type LineStore interface {
	// Get returns the line for (userID, productID) or ErrLineNotFound
	Get(ctx context.Context, userID, productID uint) (*CartLine, error)

	// GetByID returns the line with the given id or ErrLineNotFound
	GetByID(ctx context.Context, lineID string) (*CartLine, error)

	// ListByUser returns the user's lines in insertion order
	ListByUser(ctx context.Context, userID uint) ([]CartLine, error)

	// Create inserts a new line. Returns ErrLineConflict if the key exists.
	Create(ctx context.Context, userID, productID uint, quantity int) (*CartLine, error)

	// AtomicUpdate reads the line, applies fn and writes the result as one
	// linearizable step with respect to other operations on the same line.
	// Only the quantity of the returned line is persisted. A store gives up
	// only when its wait window or ctx ends, with ErrUpdateContention.
	AtomicUpdate(ctx context.Context, lineID string, fn UpdateFunc) (*CartLine, error)

	// Delete removes the line. Deleting an absent line is not an error.
	Delete(ctx context.Context, lineID string) error
}

// WaitExpired wraps a context error from waiting on a busy line so callers
// can match both ErrUpdateContention and the context cause.
func WaitExpired(err error) error {
	return fmt.Errorf("%w: %w", ErrUpdateContention, err)
}

// ApplyUpdate runs fn against current and validates the result. Stores call
// it inside their atomic section.
func ApplyUpdate(current CartLine, fn UpdateFunc) (CartLine, error) {
	next, err := fn(current)
	if err != nil {
		return current, err
	}
	if next.Quantity < 1 {
		return current, ErrInvalidQuantity
	}

	// identity is not writable through an update
	next.ID = current.ID
	next.UserID = current.UserID
	next.ProductID = current.ProductID
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version
	return next, nil
}
