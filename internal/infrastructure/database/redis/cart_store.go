// internal/infrastructure/database/redis/cart_store.go
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/your-org/quickcart-backend/internal/domain/cart"
)

// CartLineStore keeps cart lines in redis:
//
//	cart:line:{id}                     line JSON
//	cart:user:{uid}:product:{pid}      line id
//	cart:user:{uid}:lines              line ids in insertion order
//
// Every write runs under WATCH so a concurrent change aborts the EXEC and
// the operation is retried against fresh state after a jittered backoff.
type CartLineStore struct {
	rdb      *redis.Client
	lockWait time.Duration
}

// Backoff between aborted transactions grows from retryBaseDelay up to
// retryMaxDelay.
const (
	retryBaseDelay = time.Millisecond
	retryMaxDelay  = 50 * time.Millisecond
)

// NewCartLineStore creates a redis backed line store. lockWait bounds how
// long a write keeps retrying a contended key; zero means until ctx ends.
func NewCartLineStore(rdb *redis.Client, lockWait time.Duration) *CartLineStore {
	return &CartLineStore{rdb: rdb, lockWait: lockWait}
}

func lineKey(lineID string) string {
	return "cart:line:" + lineID
}

func indexKey(userID, productID uint) string {
	return fmt.Sprintf("cart:user:%d:product:%d", userID, productID)
}

func userLinesKey(userID uint) string {
	return fmt.Sprintf("cart:user:%d:lines", userID)
}

// Get returns the line for (userID, productID)
func (s *CartLineStore) Get(ctx context.Context, userID, productID uint) (*cart.CartLine, error) {
	lineID, err := s.rdb.Get(ctx, indexKey(userID, productID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrLineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cart index: %w", err)
	}
	return s.GetByID(ctx, lineID)
}

// GetByID returns the line with the given id
func (s *CartLineStore) GetByID(ctx context.Context, lineID string) (*cart.CartLine, error) {
	return readLine(ctx, s.rdb, lineID)
}

// ListByUser returns the user's lines in insertion order
func (s *CartLineStore) ListByUser(ctx context.Context, userID uint) ([]cart.CartLine, error) {
	ids, err := s.rdb.LRange(ctx, userLinesKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}
	if len(ids) == 0 {
		return []cart.CartLine{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = lineKey(id)
	}

	// Load all lines in one round trip
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load cart lines: %w", err)
	}

	lines := make([]cart.CartLine, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			// removed between LRANGE and MGET
			continue
		}
		var line cart.CartLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			return nil, fmt.Errorf("failed to decode cart line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Create inserts a new line unless the (user, product) index already exists
func (s *CartLineStore) Create(ctx context.Context, userID, productID uint, quantity int) (*cart.CartLine, error) {
	if quantity < 1 {
		return nil, cart.ErrInvalidQuantity
	}

	now := time.Now().UTC()
	line := cart.CartLine{
		ID:        uuid.New().String(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	payload, err := json.Marshal(line)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart line: %w", err)
	}

	idx := indexKey(userID, productID)
	err = s.retry(ctx, func(ctx context.Context) error {
		return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			// Check the (user, product) index under WATCH
			exists, err := tx.Exists(ctx, idx).Result()
			if err != nil {
				return err
			}
			if exists > 0 {
				return cart.ErrLineConflict
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				// Write line, index and list entry together
				pipe.Set(ctx, lineKey(line.ID), payload, 0)
				pipe.Set(ctx, idx, line.ID, 0)
				pipe.RPush(ctx, userLinesKey(userID), line.ID)
				return nil
			})
			return err
		}, idx)
	})
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// AtomicUpdate applies fn under WATCH on the line key
func (s *CartLineStore) AtomicUpdate(ctx context.Context, lineID string, fn cart.UpdateFunc) (*cart.CartLine, error) {
	key := lineKey(lineID)
	var updated cart.CartLine

	err := s.retry(ctx, func(ctx context.Context) error {
		return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			current, err := readLine(ctx, tx, lineID)
			if err != nil {
				return err
			}

			next, err := cart.ApplyUpdate(*current, fn)
			if err != nil {
				return err
			}
			next.Version = current.Version + 1
			next.UpdatedAt = time.Now().UTC()

			payload, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("failed to encode cart line: %w", err)
			}

			// EXEC fails with TxFailedErr if the line changed since WATCH
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				return nil
			})
			if err == nil {
				updated = next
			}
			return err
		}, key)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes the line and its index entries if present
func (s *CartLineStore) Delete(ctx context.Context, lineID string) error {
	key := lineKey(lineID)

	return s.retry(ctx, func(ctx context.Context) error {
		return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			line, err := readLine(ctx, tx, lineID)
			if errors.Is(err, cart.ErrLineNotFound) {
				return nil
			}
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key, indexKey(line.UserID, line.ProductID))
				pipe.LRem(ctx, userLinesKey(line.UserID), 0, lineID)
				return nil
			})
			return err
		}, key)
	})
}

// retry reruns op while its transaction is aborted by a concurrent write.
// It gives up only when the wait window or ctx ends.
func (s *CartLineStore) retry(ctx context.Context, op func(ctx context.Context) error) error {
	if s.lockWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockWait)
		defer cancel()
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return cart.WaitExpired(err)
		}

		err := op(ctx)
		if !errors.Is(err, redis.TxFailedErr) {
			if err != nil && ctx.Err() != nil {
				return cart.WaitExpired(ctx.Err())
			}
			return err
		}

		// Lost the race, back off before reading fresh state
		timer := time.NewTimer(backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return cart.WaitExpired(ctx.Err())
		case <-timer.C:
		}
	}
}

// backoff doubles the delay per attempt up to retryMaxDelay and adds up to
// half of it again as jitter.
func backoff(attempt int) time.Duration {
	delay := retryMaxDelay
	if attempt < 6 {
		delay = min(retryBaseDelay<<attempt, retryMaxDelay)
	}
	return delay + rand.N(delay/2+1)
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readLine(ctx context.Context, c stringGetter, lineID string) (*cart.CartLine, error) {
	raw, err := c.Get(ctx, lineKey(lineID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrLineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cart line: %w", err)
	}

	var line cart.CartLine
	if err := json.Unmarshal(raw, &line); err != nil {
		return nil, fmt.Errorf("failed to decode cart line: %w", err)
	}
	return &line, nil
}
