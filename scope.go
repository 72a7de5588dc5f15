package ioc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Scope owns the lifetime policy for instances keyed by a string.
//
// Factories passed to Get must be safe to discard: a scope that already holds
// an instance for the key never calls the factory.
type Scope interface {
	// Get returns the instance stored under key, creating it with factory
	// if the scope does not hold one yet.
	Get(ctx context.Context, key string, factory func() (any, error)) (any, error)

	// Clear drops every instance held by the scope.
	Clear()

	// Remove drops the instance stored under key. It reports whether an
	// entry was present.
	Remove(key string) bool
}

// SingletonScope keeps one instance per key for the lifetime of the process.
// It is safe for concurrent use; under concurrent first access exactly one
// construction occurs per key.
type SingletonScope struct {
	mu      sync.Mutex
	entries map[string]*singletonEntry
	order   []string
}

type singletonEntry struct {
	once     sync.Once
	instance any
	err      error
}

// NewSingletonScope creates an empty singleton scope.
func NewSingletonScope() *SingletonScope {
	return &SingletonScope{entries: make(map[string]*singletonEntry)}
}

// Get returns the instance for key, constructing it on first access. A failed
// construction is cached; Remove the key to retry.
func (s *SingletonScope) Get(ctx context.Context, key string, factory func() (any, error)) (any, error) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	if !ok {
		entry = &singletonEntry{}
		s.entries[key] = entry
		s.order = append(s.order, key)
	}
	s.mu.Unlock()

	// The per-entry Once keeps construction of distinct keys concurrent
	// while guaranteeing at most one construction per key.
	entry.once.Do(func() {
		entry.instance, entry.err = factory()
	})

	return entry.instance, entry.err
}

// Clear disposes and drops every stored instance, in reverse creation order.
func (s *SingletonScope) Clear() {
	s.mu.Lock()
	entries := s.entries
	order := s.order
	s.entries = make(map[string]*singletonEntry)
	s.order = nil
	s.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		entry := entries[order[i]]
		if entry.err == nil && entry.instance != nil {
			// Disposal errors are intentionally discarded here; use a
			// container for error-reporting teardown.
			_ = dispose(context.Background(), entry.instance)
		}
	}
}

// Remove drops the instance stored under key without disposing it.
func (s *SingletonScope) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return false
	}

	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// TransientScope never stores instances: every Get calls the factory.
type TransientScope struct{}

// NewTransientScope creates a transient scope.
func NewTransientScope() *TransientScope {
	return &TransientScope{}
}

// Get always constructs a fresh instance.
func (s *TransientScope) Get(ctx context.Context, key string, factory func() (any, error)) (any, error) {
	return factory()
}

// Clear is a no-op.
func (s *TransientScope) Clear() {}

// Remove always reports false.
func (s *TransientScope) Remove(key string) bool {
	return false
}

// RequestContext holds the per-request instance map used by RequestScope.
//
// A RequestContext is exclusively owned by its request: it must not be shared
// across concurrent requests, which is what makes it safe without locking.
// In web applications one is created per HTTP request and attached to the
// request's context.Context.
//
// Example:
//
//	rc := ioc.NewRequestContext()
//	defer rc.Close()
//	ctx := ioc.WithRequestContext(r.Context(), rc)
type RequestContext struct {
	id        string
	instances map[string]any
	order     []string
}

// NewRequestContext creates an empty request context with a unique ID.
func NewRequestContext() *RequestContext {
	return &RequestContext{
		id:        uuid.NewString(),
		instances: make(map[string]any),
	}
}

// ID returns the unique ID of this request context.
func (rc *RequestContext) ID() string {
	return rc.id
}

// Remove drops the instance stored under key without disposing it.
func (rc *RequestContext) Remove(key string) bool {
	if _, ok := rc.instances[key]; !ok {
		return false
	}

	delete(rc.instances, key)
	for i, k := range rc.order {
		if k == key {
			rc.order = append(rc.order[:i], rc.order[i+1:]...)
			break
		}
	}
	return true
}

// Close disposes every stored instance in reverse creation order and empties
// the context. Disposal errors are joined.
func (rc *RequestContext) Close() error {
	var errs []error
	for i := len(rc.order) - 1; i >= 0; i-- {
		if instance, ok := rc.instances[rc.order[i]]; ok {
			if err := dispose(context.Background(), instance); err != nil {
				errs = append(errs, err)
			}
		}
	}

	rc.instances = make(map[string]any)
	rc.order = nil

	return errors.Join(errs...)
}

// requestContextKey is the key for storing the request context in a Context.
type requestContextKey struct{}

// WithRequestContext returns a context carrying rc.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom extracts the active request context, if any.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}

// RequestScope stores one instance per key per active request context. The
// instance map lives inside the RequestContext carried in ctx, never in the
// scope itself, so concurrent requests never share instances.
type RequestScope struct{}

// NewRequestScope creates a request scope.
func NewRequestScope() *RequestScope {
	return &RequestScope{}
}

// Get looks up or creates the instance inside the active request context.
// Calling Get without an active request context fails.
func (s *RequestScope) Get(ctx context.Context, key string, factory func() (any, error)) (any, error) {
	rc, ok := RequestContextFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("request scope: resolving %q: %w", key, ErrNoRequestContext)
	}

	if instance, ok := rc.instances[key]; ok {
		return instance, nil
	}

	instance, err := factory()
	if err != nil {
		return nil, err
	}

	rc.instances[key] = instance
	rc.order = append(rc.order, key)
	return instance, nil
}

// Clear is a no-op: instances live in request contexts, not in the scope.
func (s *RequestScope) Clear() {}

// Remove always reports false; use RequestContext.Remove for per-request
// eviction.
func (s *RequestScope) Remove(key string) bool {
	return false
}
