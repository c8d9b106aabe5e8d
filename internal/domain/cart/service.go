// internal/domain/cart/service.go
package cart

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/quickcart-backend/internal/domain/catalog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	// viewConcurrency caps the concurrent stock lookups of a single ViewCart
	viewConcurrency = 8

	// addAttempts bounds the create/increment passes of one AddToCart
	addAttempts = 5
)

var errAddRaced = errors.New("cart line changed during add")

// Service handles cart business logic
type Service struct {
	store  LineStore
	stock  catalog.StockReader
	logger *logrus.Logger
	views  singleflight.Group

	// epochs counts committed mutations per user (uint -> *atomic.Uint64)
	epochs sync.Map
}

// NewService creates a new cart service
func NewService(store LineStore, stock catalog.StockReader, logger *logrus.Logger) *Service {
	return &Service{
		store:  store,
		stock:  stock,
		logger: logger,
	}
}

// AddToCartRequest represents add to cart request
type AddToCartRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
}

// UpdateCartRequest represents the legacy inc/dec request
type UpdateCartRequest struct {
	ID string `json:"id" binding:"required"`
}

// AddToCart adds one unit of a product, creating the line on first add
func (s *Service) AddToCart(ctx context.Context, userID, productID uint) (*CartLine, error) {
	// A concurrent add or remove of the same line can move it between
	// absent and present; each pass re-reads and takes the matching path.
	for attempt := 0; attempt < addAttempts; attempt++ {
		line, err := s.addOnce(ctx, userID, productID)
		if errors.Is(err, errAddRaced) {
			continue
		}
		return line, err
	}

	s.logOutcome(userID, productID, "", "add", ErrUpdateContention)
	return nil, ErrUpdateContention
}

func (s *Service) addOnce(ctx context.Context, userID, productID uint) (*CartLine, error) {
	line, err := s.store.Get(ctx, userID, productID)
	if err == nil {
		updated, err := s.incrementExisting(ctx, userID, line.ID, "add")
		if errors.Is(err, ErrLineNotFound) {
			// removed after we found it
			return nil, errAddRaced
		}
		return updated, err
	}
	if !errors.Is(err, ErrLineNotFound) {
		return nil, fmt.Errorf("failed to read cart line: %w", err)
	}

	// Line is absent, check stock before creating it
	snapshot, err := s.stock.GetStock(ctx, productID)
	if err != nil {
		return nil, err
	}
	if snapshot.Stock <= 0 {
		s.logOutcome(userID, productID, "", "add", ErrOutOfStock)
		return nil, ErrOutOfStock
	}

	created, err := s.store.Create(ctx, userID, productID, 1)
	if errors.Is(err, ErrLineConflict) {
		// lost a creation race with a concurrent add for the same product
		return nil, errAddRaced
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create cart line: %w", err)
	}

	s.bumpEpoch(userID)
	s.logOutcome(userID, productID, created.ID, "add", nil)
	return created, nil
}

// IncrementLine adds one unit to an existing line, bounded by current stock
func (s *Service) IncrementLine(ctx context.Context, userID uint, lineID string) (*CartLine, error) {
	if _, err := s.ownedLine(ctx, userID, lineID); err != nil {
		return nil, err
	}
	return s.incrementExisting(ctx, userID, lineID, "increment")
}

// DecrementLine removes one unit; the last unit can only be removed explicitly
func (s *Service) DecrementLine(ctx context.Context, userID uint, lineID string) (*CartLine, error) {
	line, err := s.ownedLine(ctx, userID, lineID)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.AtomicUpdate(ctx, lineID, func(current CartLine) (CartLine, error) {
		if current.UserID != userID {
			return current, ErrForbidden
		}
		if current.Quantity <= 1 {
			return current, ErrMinimumQuantity
		}
		current.Quantity--
		return current, nil
	})

	s.logOutcome(userID, line.ProductID, lineID, "decrement", err)
	if err != nil {
		return nil, err
	}
	s.bumpEpoch(userID)
	return updated, nil
}

// RemoveFromCart deletes a line owned by the user
func (s *Service) RemoveFromCart(ctx context.Context, userID uint, lineID string) error {
	line, err := s.ownedLine(ctx, userID, lineID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, lineID); err != nil {
		return fmt.Errorf("failed to remove cart line: %w", err)
	}
	s.bumpEpoch(userID)

	s.logOutcome(userID, line.ProductID, lineID, "remove", nil)
	return nil
}

// ClearCart removes every line of the user
func (s *Service) ClearCart(ctx context.Context, userID uint) error {
	lines, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list cart lines: %w", err)
	}

	// a partial clear still counts as a mutation for later views
	for _, line := range lines {
		if err := s.store.Delete(ctx, line.ID); err != nil {
			s.bumpEpoch(userID)
			return fmt.Errorf("failed to remove cart line: %w", err)
		}
	}
	s.bumpEpoch(userID)

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"lines":   len(lines),
	}).Info("Cart cleared")
	return nil
}

// CountItems returns the sum of quantities in the user's cart
func (s *Service) CountItems(ctx context.Context, userID uint) (int, error) {
	lines, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list cart lines: %w", err)
	}

	count := 0
	for _, line := range lines {
		count += line.Quantity
	}
	return count, nil
}

// ViewCart joins the user's lines with current stock snapshots. Concurrent
// views of the same cart share one computation, but only with views that
// saw the same committed mutations, so a caller always sees its own writes.
func (s *Service) ViewCart(ctx context.Context, userID uint) (*CartView, error) {
	key := strconv.FormatUint(uint64(userID), 10) + ":" + strconv.FormatUint(s.epoch(userID).Load(), 10)
	ch := s.views.DoChan(key, func() (interface{}, error) {
		return s.buildView(context.WithoutCancel(ctx), userID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// each caller gets its own copy of the lines
		view := *res.Val.(*CartView)
		view.Lines = append([]CartLineView(nil), view.Lines...)
		return &view, nil
	}
}

func (s *Service) buildView(ctx context.Context, userID uint) (*CartView, error) {
	lines, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}

	views := make([]CartLineView, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(viewConcurrency)

	for i := range lines {
		i := i
		g.Go(func() error {
			views[i] = CartLineView{CartLine: lines[i], LineTotal: decimal.Zero}

			snapshot, err := s.stock.GetStock(gctx, lines[i].ProductID)
			if errors.Is(err, catalog.ErrProductNotFound) {
				views[i].Unavailable = true
				return nil
			}
			if err != nil {
				return err
			}

			views[i].Product = &snapshot
			views[i].LineTotal = snapshot.Price.Mul(decimal.NewFromInt(int64(lines[i].Quantity)))
			views[i].ExceedsStock = lines[i].Quantity > snapshot.Stock
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load cart products: %w", err)
	}

	view := &CartView{
		UserID:    userID,
		Lines:     views,
		ItemCount: len(views),
		SubTotal:  decimal.Zero,
	}
	for _, line := range views {
		view.TotalQuantity += line.Quantity
		view.SubTotal = view.SubTotal.Add(line.LineTotal)
	}

	return view, nil
}

// incrementExisting fetches a fresh snapshot, then bumps the quantity
// inside the store's atomic section if stock allows it.
func (s *Service) incrementExisting(ctx context.Context, userID uint, lineID, op string) (*CartLine, error) {
	line, err := s.store.GetByID(ctx, lineID)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.stock.GetStock(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.AtomicUpdate(ctx, lineID, func(current CartLine) (CartLine, error) {
		if current.UserID != userID {
			return current, ErrForbidden
		}
		if current.Quantity >= snapshot.Stock {
			return current, ErrOutOfStock
		}
		current.Quantity++
		return current, nil
	})

	s.logOutcome(userID, line.ProductID, lineID, op, err)
	if err != nil {
		return nil, err
	}
	s.bumpEpoch(userID)
	return updated, nil
}

func (s *Service) epoch(userID uint) *atomic.Uint64 {
	v, _ := s.epochs.LoadOrStore(userID, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

func (s *Service) bumpEpoch(userID uint) {
	s.epoch(userID).Add(1)
}

func (s *Service) ownedLine(ctx context.Context, userID uint, lineID string) (*CartLine, error) {
	line, err := s.store.GetByID(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if line.UserID != userID {
		return nil, ErrForbidden
	}
	return line, nil
}

func (s *Service) logOutcome(userID, productID uint, lineID, op string, err error) {
	entry := s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"product_id": productID,
		"line_id":    lineID,
		"operation":  op,
	})

	switch {
	case err == nil:
		entry.WithField("outcome", "success").Debug("Cart mutation applied")
	case errors.Is(err, ErrOutOfStock), errors.Is(err, ErrMinimumQuantity):
		entry.WithField("outcome", err.Error()).Info("Cart mutation rejected")
	default:
		entry.WithError(err).Warn("Cart mutation failed")
	}
}
