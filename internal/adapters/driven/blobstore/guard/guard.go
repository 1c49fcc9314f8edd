// Package guard decorates a driven.BlobStore with per-call timeouts and a
// token bucket rate limit.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.BlobStore = (*Store)(nil)

// Config holds the guard settings.
type Config struct {
	// Timeout bounds every call. Zero disables the timeout.
	Timeout time.Duration

	// RequestsPerSecond is the sustained rate. Zero disables limiting.
	RequestsPerSecond float64

	// Burst is the bucket size. Values below 1 are treated as 1.
	Burst int
}

// Store forwards to an inner store under a timeout and rate limit.
type Store struct {
	inner   driven.BlobStore
	timeout time.Duration
	limiter *rate.Limiter
}

// New wraps inner.
func New(inner driven.BlobStore, cfg Config) *Store {
	s := &Store{inner: inner, timeout: cfg.Timeout}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return s
}

// Get forwards to the inner store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.do(ctx, "get", func(ctx context.Context) error {
		var err error
		data, err = s.inner.Get(ctx, key)
		return err
	})
	return data, err
}

// Put forwards to the inner store.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	return s.do(ctx, "put", func(ctx context.Context) error {
		return s.inner.Put(ctx, key, data)
	})
}

// Copy forwards to the inner store.
func (s *Store) Copy(ctx context.Context, src, dst string) error {
	return s.do(ctx, "copy", func(ctx context.Context) error {
		return s.inner.Copy(ctx, src, dst)
	})
}

// Delete forwards to the inner store.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.do(ctx, "delete", func(ctx context.Context) error {
		return s.inner.Delete(ctx, key)
	})
}

// List forwards to the inner store.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.do(ctx, "list", func(ctx context.Context) error {
		var err error
		keys, err = s.inner.List(ctx, prefix)
		return err
	})
	return keys, err
}

// Exists forwards to the inner store.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.do(ctx, "exists", func(ctx context.Context) error {
		var err error
		ok, err = s.inner.Exists(ctx, key)
		return err
	})
	return ok, err
}

// do waits for a token, then runs fn under the call timeout. A timeout is
// reported as ErrTransient.
func (s *Store) do(ctx context.Context, op string, fn func(context.Context) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("blobstore %s: rate limit: %w: %w", op, domain.ErrTransient, err)
		}
	}

	err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTransient) {
		return fmt.Errorf("blobstore %s timed out after %s: %w: %w", op, s.timeout, domain.ErrTransient, err)
	}
	return err
}
