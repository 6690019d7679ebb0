// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package vectorstore is the resilient Weaviate-backed store behind the
// engine's chunk memory (spec.md §4.9). It wraps the raw client with a
// circuit breaker, retry with backoff, and a health checker so the rest
// of the engine can call Execute without ever hand-rolling resilience
// logic, and degrades to an in-memory fallback when Weaviate is down
// rather than failing every memory lookup.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

var (
	// ErrUnavailable is returned when Weaviate is not reachable and no
	// in-memory fallback applies to the requested operation.
	ErrUnavailable = errors.New("vectorstore: weaviate unavailable")

	// ErrCircuitOpen is returned when the breaker is blocking requests.
	ErrCircuitOpen = errors.New("vectorstore: circuit breaker open")

	// ErrClosed is returned on operations against a closed client.
	ErrClosed = errors.New("vectorstore: client is closed")
)

// ConnectionState tracks the resilient client's view of Weaviate's
// reachability.
type ConnectionState int32

const (
	StateConnected ConnectionState = iota
	StateDegraded
	StateCircuitOpen
	StateHalfOpen
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateCircuitOpen:
		return "circuit_open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ClientConfig configures the resilient client.
type ClientConfig struct {
	URL                 string
	RetryAttempts       int
	RetryBackoff        time.Duration
	MaxRetryBackoff     time.Duration
	RetryJitter         float64
	CircuitThreshold    int
	CircuitCooldown     time.Duration
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
}

// DefaultClientConfig mirrors the defaults named in spec.md §6 for the
// vectorstore section: a local Weaviate instance with conservative
// resilience knobs.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:                 url,
		RetryAttempts:       3,
		RetryBackoff:        100 * time.Millisecond,
		MaxRetryBackoff:     5 * time.Second,
		RetryJitter:         0.25,
		CircuitThreshold:    5,
		CircuitCooldown:     30 * time.Second,
		HealthCheckInterval: 10 * time.Second,
		HealthCheckTimeout:  5 * time.Second,
	}
}

// ResilientClient wraps a raw Weaviate client with circuit breaking,
// retry-with-backoff, and a background health checker.
type ResilientClient struct {
	cfg    ClientConfig
	client *weaviate.Client

	state           atomic.Int32
	consecutiveFail atomic.Int32
	lastFailure     atomic.Int64 // unix nanos

	handlers   []DegradationHandler
	handlersMu sync.Mutex

	stop   chan struct{}
	closed atomic.Bool
}

// NewResilientClient builds the Weaviate client for cfg.URL and starts
// the background health checker. Building the client does not contact
// Weaviate, so construction never blocks startup; the first request
// goes out on the first Execute call or health check.
func NewResilientClient(cfg ClientConfig) (*ResilientClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("vectorstore: URL is required")
	}
	raw, err := weaviate.NewClient(weaviate.Config{Scheme: "http", Host: trimScheme(cfg.URL)})
	if err != nil {
		return nil, fmt.Errorf("build weaviate client: %w", err)
	}

	c := &ResilientClient{cfg: cfg, client: raw, stop: make(chan struct{})}
	c.state.Store(int32(StateConnected))
	go c.runHealthChecker()
	return c, nil
}

func trimScheme(url string) string {
	for _, prefix := range []string{"http://", "https://"} {
		if len(url) > len(prefix) && url[:len(prefix)] == prefix {
			return url[len(prefix):]
		}
	}
	return url
}

// Client exposes the raw Weaviate client for callers that need schema
// or batch operations Execute doesn't cover.
func (c *ResilientClient) Client() *weaviate.Client { return c.client }

// State returns the client's current connection state.
func (c *ResilientClient) State() ConnectionState { return ConnectionState(c.state.Load()) }

// RegisterHandler subscribes handler to degradation/recovery events.
func (c *ResilientClient) RegisterHandler(h DegradationHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Execute runs fn with circuit-breaker gating and exponential backoff
// retry. It is the only way the rest of the package talks to Weaviate.
func (c *ResilientClient) Execute(ctx context.Context, fn func() error) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.allow() {
		return ErrCircuitOpen
	}

	backoff := c.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(); err != nil {
			lastErr = err
			c.recordFailure()
			if attempt == c.cfg.RetryAttempts {
				break
			}
			wait := jitter(backoff, c.cfg.RetryJitter)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			backoff *= 2
			if backoff > c.cfg.MaxRetryBackoff {
				backoff = c.cfg.MaxRetryBackoff
			}
			continue
		}
		c.recordSuccess()
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// Close stops the health checker.
func (c *ResilientClient) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		close(c.stop)
	}
	return nil
}

func jitter(base time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return base
	}
	delta := (rand.Float64()*2 - 1) * factor
	return time.Duration(float64(base) * (1 + delta))
}

func (c *ResilientClient) allow() bool {
	switch ConnectionState(c.state.Load()) {
	case StateConnected, StateDegraded:
		return true
	case StateCircuitOpen:
		last := time.Unix(0, c.lastFailure.Load())
		if time.Since(last) >= c.cfg.CircuitCooldown {
			c.state.Store(int32(StateHalfOpen))
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

func (c *ResilientClient) recordSuccess() {
	c.consecutiveFail.Store(0)
	prev := ConnectionState(c.state.Swap(int32(StateConnected)))
	if prev != StateConnected {
		c.notifyRecovered()
	}
}

func (c *ResilientClient) recordFailure() {
	c.lastFailure.Store(time.Now().UnixNano())
	n := c.consecutiveFail.Add(1)
	if int(n) >= c.cfg.CircuitThreshold {
		prev := ConnectionState(c.state.Swap(int32(StateCircuitOpen)))
		if prev != StateCircuitOpen {
			c.notifyDegraded("circuit breaker opened after consecutive failures")
		}
		return
	}
	prev := ConnectionState(c.state.Swap(int32(StateDegraded)))
	if prev == StateConnected {
		c.notifyDegraded("weaviate request failed")
	}
}

func (c *ResilientClient) runHealthChecker() {
	ticker := time.NewTicker(c.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HealthCheckTimeout)
			live, err := c.client.Misc().LiveChecker().Do(ctx)
			cancel()
			if err == nil && live {
				c.recordSuccess()
			} else {
				c.recordFailure()
			}
		}
	}
}

func (c *ResilientClient) notifyDegraded(reason string) {
	slog.Warn("vectorstore degraded", "reason", reason)
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	for _, h := range c.handlers {
		h.OnDegraded(reason)
	}
}

func (c *ResilientClient) notifyRecovered() {
	slog.Info("vectorstore recovered")
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	for _, h := range c.handlers {
		h.OnRecovered()
	}
}
