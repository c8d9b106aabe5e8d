// internal/domain/catalog/resilient.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/your-org/quickcart-backend/internal/config"
)

// ResilientStockReader wraps a StockReader with a bounded retry and a circuit
// breaker. Unknown products are returned immediately and never trip the breaker.
type ResilientStockReader struct {
	next    StockReader
	breaker *gobreaker.CircuitBreaker[StockSnapshot]
	retries int
	backoff time.Duration
	logger  *logrus.Logger
}

// NewResilientStockReader creates a resilient reader around next
func NewResilientStockReader(next StockReader, cfg *config.Config, logger *logrus.Logger) *ResilientStockReader {
	failures := cfg.Catalog.BreakerFailures
	if failures == 0 {
		failures = 1
	}

	settings := gobreaker.Settings{
		Name:        "catalog-stock",
		MaxRequests: 1,
		Timeout:     cfg.Catalog.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Catalog circuit breaker changed state")
		},
		// Unknown products and abandoned requests say nothing about catalog health
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrProductNotFound) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
	}

	return &ResilientStockReader{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[StockSnapshot](settings),
		retries: cfg.Catalog.RetryAttempts,
		backoff: cfg.Catalog.RetryBackoff,
		logger:  logger,
	}
}

// GetStock reads a fresh snapshot, retrying transient failures
func (r *ResilientStockReader) GetStock(ctx context.Context, productID uint) (StockSnapshot, error) {
	var lastErr error

	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(r.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return StockSnapshot{}, ctx.Err()
			case <-timer.C:
			}
		}

		snapshot, err := r.breaker.Execute(func() (StockSnapshot, error) {
			return r.next.GetStock(ctx, productID)
		})
		if err == nil {
			return snapshot, nil
		}

		if errors.Is(err, ErrProductNotFound) || ctx.Err() != nil {
			return StockSnapshot{}, err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return StockSnapshot{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}

		r.logger.WithFields(logrus.Fields{
			"product_id": productID,
			"attempt":    attempt + 1,
			"error":      err.Error(),
		}).Warn("Stock lookup failed")
		lastErr = err
	}

	return StockSnapshot{}, lastErr
}

// State reports the breaker state, used by the health endpoint
func (r *ResilientStockReader) State() gobreaker.State {
	return r.breaker.State()
}
