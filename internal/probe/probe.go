// Package probe implements the readiness barrier used before handing a
// locally started service to its clients: repeated TCP connect attempts until
// one succeeds.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Probe defaults.
const (
	DefaultRetryInterval = 10 * time.Millisecond
	DefaultDialTimeout   = time.Second
)

// ErrStartupTimeout is matched by every *StartupTimeoutError.
var ErrStartupTimeout = errors.New("startup timeout")

// StartupTimeoutError reports that addr did not accept connections within Timeout.
type StartupTimeoutError struct {
	Addr     string
	Timeout  time.Duration
	Attempts int
	LastErr  error
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("%s not accepting connections after %s (%d attempts): %v", e.Addr, e.Timeout, e.Attempts, e.LastErr)
}

// Is makes errors.Is(err, ErrStartupTimeout) true.
func (e *StartupTimeoutError) Is(target error) bool {
	return target == ErrStartupTimeout
}

// Unwrap exposes the last dial error.
func (e *StartupTimeoutError) Unwrap() error {
	return e.LastErr
}

type options struct {
	retryInterval time.Duration
	dialTimeout   time.Duration
	ceiling       time.Duration
}

// Option configures WaitForTCP.
type Option func(*options)

// WithRetryInterval sets the pause between failed attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryInterval = d
		}
	}
}

// WithDialTimeout sets the per-attempt connect timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithCeiling bounds the total wait. Zero, the default, waits forever.
func WithCeiling(d time.Duration) Option {
	return func(o *options) { o.ceiling = d }
}

// WaitForTCP blocks until a TCP connection to addr succeeds. Without a ceiling
// only ctx can end the wait early.
func WaitForTCP(ctx context.Context, addr string, opts ...Option) error {
	o := options{
		retryInterval: DefaultRetryInterval,
		dialTimeout:   DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var deadline time.Time
	if o.ceiling > 0 {
		deadline = time.Now().Add(o.ceiling)
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		dialer := net.Dialer{Timeout: o.dialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("wait for %s: %w", addr, ctx.Err())
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return &StartupTimeoutError{Addr: addr, Timeout: o.ceiling, Attempts: attempt, LastErr: lastErr}
		}

		select {
		case <-time.After(o.retryInterval):
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", addr, ctx.Err())
		}
	}
}
