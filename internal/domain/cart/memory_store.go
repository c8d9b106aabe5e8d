// internal/domain/cart/memory_store.go
package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

type lineKey struct {
	userID    uint
	productID uint
}

// MemoryStore is an in-process LineStore. Updates to the same line are
// serialized by a per-line lock; updates to different lines run in parallel.
type MemoryStore struct {
	mu     sync.RWMutex
	lines  map[string]CartLine
	byKey  map[lineKey]string
	byUser map[uint][]string

	locks    *keyedLocks
	lockWait time.Duration
}

// NewMemoryStore creates an empty store. lockWait bounds how long an update
// waits for a busy line before giving up; zero means wait for the context.
func NewMemoryStore(lockWait time.Duration) *MemoryStore {
	return &MemoryStore{
		lines:    make(map[string]CartLine),
		byKey:    make(map[lineKey]string),
		byUser:   make(map[uint][]string),
		locks:    newKeyedLocks(),
		lockWait: lockWait,
	}
}

// Get returns the line for (userID, productID)
func (s *MemoryStore) Get(_ context.Context, userID, productID uint) (*CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[lineKey{userID, productID}]
	if !ok {
		return nil, ErrLineNotFound
	}
	line := s.lines[id]
	return &line, nil
}

// GetByID returns the line with the given id
func (s *MemoryStore) GetByID(_ context.Context, lineID string) (*CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	line, ok := s.lines[lineID]
	if !ok {
		return nil, ErrLineNotFound
	}
	return &line, nil
}

// ListByUser returns the user's lines in insertion order
func (s *MemoryStore) ListByUser(_ context.Context, userID uint) ([]CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	lines := make([]CartLine, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, s.lines[id])
	}
	return lines, nil
}

// Create inserts a new line
func (s *MemoryStore) Create(_ context.Context, userID, productID uint, quantity int) (*CartLine, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := lineKey{userID, productID}
	if _, exists := s.byKey[key]; exists {
		return nil, ErrLineConflict
	}

	now := time.Now().UTC()
	line := CartLine{
		ID:        uuid.New().String(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.lines[line.ID] = line
	s.byKey[key] = line.ID
	s.byUser[userID] = append(s.byUser[userID], line.ID)

	return &line, nil
}

// AtomicUpdate applies fn to the line while holding its lock
func (s *MemoryStore) AtomicUpdate(ctx context.Context, lineID string, fn UpdateFunc) (*CartLine, error) {
	unlock, err := s.lock(ctx, lineID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.GetByID(ctx, lineID)
	if err != nil {
		return nil, err
	}

	next, err := ApplyUpdate(*current, fn)
	if err != nil {
		return nil, err
	}

	// Store the new quantity and bump the version
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.lines[lineID]
	if !ok {
		return nil, ErrLineNotFound
	}
	stored.Quantity = next.Quantity
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	s.lines[lineID] = stored

	return &stored, nil
}

// Delete removes the line if present
func (s *MemoryStore) Delete(ctx context.Context, lineID string) error {
	unlock, err := s.lock(ctx, lineID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[lineID]
	if !ok {
		return nil
	}
	// Drop the line and its index entries
	delete(s.lines, lineID)
	delete(s.byKey, lineKey{line.UserID, line.ProductID})

	ids := s.byUser[line.UserID]
	for i, id := range ids {
		if id == lineID {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.byUser, line.UserID)
	} else {
		s.byUser[line.UserID] = ids
	}
	return nil
}

func (s *MemoryStore) lock(ctx context.Context, lineID string) (func(), error) {
	if s.lockWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockWait)
		defer cancel()
	}

	unlock, err := s.locks.acquire(ctx, lineID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, WaitExpired(err)
		}
		return nil, err
	}
	return unlock, nil
}

// keyedLocks hands out one weighted semaphore per key and drops it once the
// last holder or waiter is done.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

func (k *keyedLocks) acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{sem: semaphore.NewWeighted(1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		k.release(key, l)
		return nil, err
	}

	return func() {
		l.sem.Release(1)
		k.release(key, l)
	}, nil
}

func (k *keyedLocks) release(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// size reports how many keys currently have a lock allocated
func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
