package ioc

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// ExecutorOption configures an InjectionExecutor.
type ExecutorOption func(*InjectionExecutor)

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(logger *zap.Logger) ExecutorOption {
	return func(e *InjectionExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// InjectionExecutor walks a component instance's injection points, resolves
// each through an InjectionRegistry and writes the resolved values onto the
// instance.
//
// The executor maintains its own cache keyed by (instance identity, field),
// independent of the per-point cache flag, to support bulk invalidation via
// ClearCache.
//
// Identity is the instance's pointer, so cache entries are never evicted on
// their own: callers that release an injected instance must ClearCache it
// first, or a later allocation at the same address could observe the stale
// entries.
type InjectionExecutor struct {
	registry *InjectionRegistry
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[executorCacheKey]any
}

type executorCacheKey struct {
	instance uintptr
	field    string
}

// NewInjectionExecutor creates an executor resolving through registry. A nil
// registry gets a fresh, empty one.
func NewInjectionExecutor(registry *InjectionRegistry, opts ...ExecutorOption) *InjectionExecutor {
	if registry == nil {
		registry = NewInjectionRegistry()
	}

	e := &InjectionExecutor{
		registry: registry,
		logger:   zap.NewNop(),
		cache:    make(map[executorCacheKey]any),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Registry returns the executor's injection registry.
func (e *InjectionExecutor) Registry() *InjectionRegistry {
	return e.registry
}

// Inject fills every injection point declared in metadata on instance, which
// must be a non-nil pointer to a struct.
//
// Fields the caller already assigned (for example a test double) are left
// untouched. A required point whose dependency cannot be supplied fails with
// a RegistryError naming the owning type, the field and the dependency; an
// optional one is left unset so callers can distinguish "never assigned" from
// "explicitly nil".
func (e *InjectionExecutor) Inject(ctx context.Context, instance any, metadata *InjectionMetadata) error {
	if instance == nil {
		return fmt.Errorf("inject: %w", ErrNilInstance)
	}

	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("inject: instance must be a non-nil struct pointer, got %T", instance)
	}

	elem := v.Elem()
	id := v.Pointer()

	for _, point := range metadata.points {
		field := elem.FieldByIndex(point.fieldIndex)

		// A directly-assigned value short-circuits resolution entirely.
		if !field.IsZero() {
			continue
		}

		if point.CacheEnabled {
			if cached, ok := e.cached(id, point.Field); ok {
				field.Set(reflect.ValueOf(cached))
				continue
			}
		}

		value, err := e.registry.Resolve(ctx, point.Dependency)
		if err != nil {
			return err
		}

		if value == nil {
			if point.Required {
				return RegistryError{
					Op:    "inject",
					Owner: metadata.Type,
					Field: point.Field,
					Name:  point.Dependency,
					Cause: ErrUnresolvable,
				}
			}

			e.logger.Debug("optional dependency unresolved",
				zap.String("type", formatType(metadata.Type)),
				zap.String("field", point.Field),
				zap.String("dependency", point.Dependency))
			continue
		}

		rv := reflect.ValueOf(value)
		if !rv.Type().AssignableTo(field.Type()) {
			return RegistryError{
				Op:    "inject",
				Owner: metadata.Type,
				Field: point.Field,
				Name:  point.Dependency,
				Cause: fmt.Errorf("resolved value of type %T is not assignable to %s", value, field.Type()),
			}
		}

		field.Set(rv)

		if point.CacheEnabled {
			e.store(id, point.Field, value)
		}
	}

	return nil
}

// InjectInstance injects instance using metadata registered (or analyzed on
// demand) for its type.
func (e *InjectionExecutor) InjectInstance(ctx context.Context, instance any) error {
	if instance == nil {
		return fmt.Errorf("inject: %w", ErrNilInstance)
	}

	metadata, err := e.registry.RegisterType(reflect.TypeOf(instance))
	if err != nil {
		return err
	}

	return e.Inject(ctx, instance, metadata)
}

// ClearCache invalidates cached resolutions for one instance, or for all
// instances when instance is nil. Call it before releasing an injected
// instance; entries are otherwise kept for the executor's lifetime.
func (e *InjectionExecutor) ClearCache(instance any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if instance == nil {
		e.cache = make(map[executorCacheKey]any)
		return
	}

	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Pointer {
		return
	}

	id := v.Pointer()
	for key := range e.cache {
		if key.instance == id {
			delete(e.cache, key)
		}
	}
}

func (e *InjectionExecutor) cached(id uintptr, field string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	value, ok := e.cache[executorCacheKey{instance: id, field: field}]
	return value, ok
}

func (e *InjectionExecutor) store(id uintptr, field string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cache[executorCacheKey{instance: id, field: field}] = value
}
