// Package keepalive periodically requests a URL so an idle deployment is not
// put to sleep by its host.
package keepalive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Pinger issues a GET to a URL on a fixed interval between Start and Stop
type Pinger struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPinger creates a stopped pinger
func NewPinger(url string, interval time.Duration, logger *logrus.Logger) *Pinger {
	return &Pinger{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// Start launches the ping loop. Calling Start on a running pinger is a no-op.
func (p *Pinger) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx, p.done)

	p.logger.WithFields(logrus.Fields{
		"url":      p.url,
		"interval": p.interval.String(),
	}).Info("Keep-alive pinger started")
}

// Stop ends the loop and waits for an in-flight ping to finish
func (p *Pinger) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	p.logger.Info("Keep-alive pinger stopped")
}

func (p *Pinger) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.ping(ctx); err != nil && ctx.Err() == nil {
				p.logger.WithError(err).WithField("url", p.url).Warn("Keep-alive ping failed")
			}
		}
	}
}

func (p *Pinger) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
