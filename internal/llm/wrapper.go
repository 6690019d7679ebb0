// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the backend has failed enough
// consecutive times that Client is refusing to dial it.
var ErrCircuitOpen = errors.New("llm: circuit breaker open")

// ErrExhausted is returned when every retry attempt failed.
var ErrExhausted = errors.New("llm: all attempts exhausted")

// circuitState mirrors the closed/open/half-open cycle used to shield
// the cognitive loop from a flapping backend.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

type circuitBreaker struct {
	mu                   sync.Mutex
	state                circuitState
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenRequests     int
	lastFailure          time.Time

	failureThreshold    int
	resetTimeout        time.Duration
	halfOpenMaxRequests int
	successThreshold    int
}

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{
		state:               circuitClosed,
		failureThreshold:    5,
		resetTimeout:        30 * time.Second,
		halfOpenMaxRequests: 2,
		successThreshold:    2,
	}
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitClosed:
		return true
	case circuitOpen:
		if time.Since(cb.lastFailure) >= cb.resetTimeout {
			cb.state = circuitHalfOpen
			cb.halfOpenRequests = 1
			return true
		}
		return false
	case circuitHalfOpen:
		if cb.halfOpenRequests < cb.halfOpenMaxRequests {
			cb.halfOpenRequests++
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case circuitClosed:
		cb.consecutiveFailures = 0
	case circuitHalfOpen:
		cb.consecutiveSuccesses++
		cb.consecutiveFailures = 0
		if cb.consecutiveSuccesses >= cb.successThreshold {
			cb.state = circuitClosed
			cb.consecutiveSuccesses = 0
		}
	}
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastFailure = time.Now()
	switch cb.state {
	case circuitClosed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.state = circuitOpen
		}
	case circuitHalfOpen:
		cb.state = circuitOpen
		cb.consecutiveSuccesses = 0
	}
}

// Client wraps a Backend with the retry, backoff and circuit-breaking
// behavior spec.md §4.7 requires of structured_query and
// check_connection. It is the type every engine component that talks
// to an LLM depends on; nothing outside this package touches a
// Backend directly.
type Client struct {
	backend      Backend
	maxRetries   int
	timeout      time.Duration
	temperature  float32
	schemaStrict bool
	cb           *circuitBreaker
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithMaxRetries overrides the number of retry attempts after the
// first failed call. Default: 2.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithTimeout overrides the per-attempt deadline. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithTemperature overrides the sampling temperature passed on every
// call that does not specify its own. Default: 0.2.
func WithTemperature(t float32) Option {
	return func(c *Client) { c.temperature = t }
}

// WithSchemaStrict enables validating a structured response's parsed
// value against the schema passed to StructuredQuery (spec.md §4.7a,
// the llm_schema_strict option), not just unmarshaling it as generic
// JSON. Default: off.
func WithSchemaStrict(strict bool) Option {
	return func(c *Client) { c.schemaStrict = strict }
}

// NewClient builds a Client around backend with the given options.
func NewClient(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend:     backend,
		maxRetries:  2,
		timeout:     5 * time.Second,
		temperature: 0.2,
		cb:          newCircuitBreaker(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StructuredQuery sends prompt to the backend and unmarshals the
// response into a value matching schema, retrying with exponential
// backoff and jitter on transport failures (spec.md §4.7). It returns
// (nil, nil) — not an error — when every attempt produced a response
// that failed schema validation, mirroring the "validated_value |
// None" contract; it returns a non-nil error only for transport and
// circuit-breaker failures.
//
// Worst-case latency is bounded by timeout * (maxRetries + 1).
func (c *Client) StructuredQuery(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	if !c.cb.allow() {
		return nil, ErrCircuitOpen
	}

	messages := []Message{{Role: "user", Content: prompt}}
	temp := c.temperature
	params := GenerationParams{Temperature: &temp, Schema: schema}

	backoff := 250 * time.Millisecond
	const maxBackoff = 5 * time.Second

	var lastErr error
	var lastWasParseFailure bool
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		raw, err := c.backend.Chat(attemptCtx, messages, params)
		cancel()

		if err != nil {
			c.cb.recordFailure()
			lastErr = err
			lastWasParseFailure = false
			slog.Warn("llm call failed", "attempt", attempt+1, "error", err)
		} else {
			c.cb.recordSuccess()
			value, parseErr := parseStructured(raw)
			if parseErr == nil && c.schemaStrict {
				parseErr = validateAgainstSchema(value, schema)
			}
			if parseErr == nil {
				return value, nil
			}
			lastErr = parseErr
			lastWasParseFailure = true
			slog.Warn("llm response failed schema parse", "attempt", attempt+1, "error", parseErr)
		}

		if attempt == c.maxRetries {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		wait := backoff + time.Duration(rand.Int63n(int64(backoff)/2+1))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	if lastWasParseFailure {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

// CheckConnection issues a minimal chat call to confirm the backend is
// reachable (spec.md §4.7).
func (c *Client) CheckConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.backend.Chat(ctx, []Message{{Role: "user", Content: "ping"}}, GenerationParams{})
	return err == nil
}

func parseStructured(raw string) (map[string]any, error) {
	var value map[string]any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("unmarshal structured response: %w", err)
	}
	return value, nil
}

// validateAgainstSchema checks value against a JSON-schema-shaped
// document: every name in "required" must be present, and every
// property named under "properties" that is present in value must
// match its declared "type". It's a deliberately narrow subset of
// JSON Schema — enough to catch a backend that ignored the requested
// shape, not a general validator.
func validateAgainstSchema(value map[string]any, schema map[string]any) error {
	if schema == nil {
		return nil
	}

	for _, key := range requiredFields(schema) {
		if _, present := value[key]; !present {
			return fmt.Errorf("missing required field %q", key)
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for key, rawProp := range properties {
		prop, ok := rawProp.(map[string]any)
		if !ok {
			continue
		}
		wantType, _ := prop["type"].(string)
		got, present := value[key]
		if wantType == "" || !present {
			continue
		}
		if !jsonTypeMatches(got, wantType) {
			return fmt.Errorf("field %q: expected type %q", key, wantType)
		}
	}
	return nil
}

func requiredFields(schema map[string]any) []string {
	switch raw := schema["required"].(type) {
	case []string:
		return raw
	case []any:
		fields := make([]string, 0, len(raw))
		for _, r := range raw {
			if s, ok := r.(string); ok {
				fields = append(fields, s)
			}
		}
		return fields
	default:
		return nil
	}
}

func jsonTypeMatches(v any, wantType string) bool {
	switch wantType {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := v.(float64)
		return ok
	case "integer":
		f, ok := v.(float64)
		return ok && f == math.Trunc(f)
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}
