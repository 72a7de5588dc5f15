package ioc

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// Provider is a unit of "how to produce an instance".
//
// Providers are stored in registries and consulted during dependency
// resolution. Get may construct a new instance or return a cached one
// depending on the provider's lifetime semantics.
type Provider interface {
	// Get returns the provided instance, constructing it if necessary.
	Get(ctx context.Context) (any, error)

	// IsSingleton reports whether Get always returns the same instance.
	IsSingleton() bool
}

// InstanceProvider wraps a pre-built instance. It is always a singleton.
type InstanceProvider struct {
	instance any
}

// NewInstanceProvider creates a provider for an already-constructed instance.
func NewInstanceProvider(instance any) (*InstanceProvider, error) {
	if isNil(instance) {
		return nil, fmt.Errorf("instance provider: %w", ErrNilInstance)
	}
	return &InstanceProvider{instance: instance}, nil
}

// Get returns the wrapped instance.
func (p *InstanceProvider) Get(ctx context.Context) (any, error) {
	return p.instance, nil
}

// IsSingleton always reports true.
func (p *InstanceProvider) IsSingleton() bool {
	return true
}

// TypeProvider constructs instances of a type. In singleton mode the instance
// is constructed lazily exactly once and cached; in transient mode every Get
// constructs a fresh instance.
type TypeProvider struct {
	typ       reflect.Type
	singleton bool

	mu       sync.Mutex
	built    atomic.Bool
	instance any
}

// NewTypeProvider creates a provider that constructs t. Pointer types yield
// pointers to zero values, value types yield zero values. Interface types
// cannot be constructed and are rejected.
func NewTypeProvider(t reflect.Type, singleton bool) (*TypeProvider, error) {
	if t == nil {
		return nil, fmt.Errorf("type provider: %w", ErrNilType)
	}
	if t.Kind() == reflect.Interface {
		return nil, fmt.Errorf("type provider: cannot construct interface type %s", formatType(t))
	}

	return &TypeProvider{typ: t, singleton: singleton}, nil
}

// Get returns an instance of the provider's type.
func (p *TypeProvider) Get(ctx context.Context) (any, error) {
	if !p.singleton {
		return p.construct(), nil
	}

	// Double-checked: the fast path reads the flag outside the lock,
	// construction re-checks inside.
	if p.built.Load() {
		return p.instance, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.built.Load() {
		return p.instance, nil
	}

	p.instance = p.construct()
	p.built.Store(true)
	return p.instance, nil
}

func (p *TypeProvider) construct() any {
	if p.typ.Kind() == reflect.Pointer {
		return reflect.New(p.typ.Elem()).Interface()
	}
	return reflect.New(p.typ).Elem().Interface()
}

// IsSingleton reports whether the provider caches its instance.
func (p *TypeProvider) IsSingleton() bool {
	return p.singleton
}

// FactoryProvider delegates construction to a zero-argument factory with the
// same singleton/transient semantics as TypeProvider.
type FactoryProvider struct {
	factory   func() (any, error)
	singleton bool

	mu       sync.Mutex
	built    atomic.Bool
	instance any
}

// NewFactoryProvider creates a provider backed by factory.
func NewFactoryProvider(factory func() (any, error), singleton bool) (*FactoryProvider, error) {
	if factory == nil {
		return nil, fmt.Errorf("factory provider: %w", ErrNilFactory)
	}
	return &FactoryProvider{factory: factory, singleton: singleton}, nil
}

// Get returns the factory's instance. In singleton mode a failed factory call
// is not cached, so a later Get retries construction.
func (p *FactoryProvider) Get(ctx context.Context) (any, error) {
	if !p.singleton {
		return p.factory()
	}

	if p.built.Load() {
		return p.instance, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.built.Load() {
		return p.instance, nil
	}

	instance, err := p.factory()
	if err != nil {
		return nil, err
	}

	p.instance = instance
	p.built.Store(true)
	return instance, nil
}

// IsSingleton reports whether the provider caches its instance.
func (p *FactoryProvider) IsSingleton() bool {
	return p.singleton
}

// ScopedProvider delegates both lifetime and key-based lookup to an external
// Scope.
type ScopedProvider struct {
	scope   Scope
	key     string
	factory func() (any, error)
}

// NewScopedProvider creates a provider whose instances live in scope under
// the given key.
func NewScopedProvider(scope Scope, key string, factory func() (any, error)) (*ScopedProvider, error) {
	if scope == nil {
		return nil, fmt.Errorf("scoped provider: %w", ErrNilScope)
	}
	if key == "" {
		return nil, fmt.Errorf("scoped provider: %w", ErrEmptyName)
	}
	if factory == nil {
		return nil, fmt.Errorf("scoped provider: %w", ErrNilFactory)
	}

	return &ScopedProvider{scope: scope, key: key, factory: factory}, nil
}

// Get looks up or creates the instance through the bound scope.
func (p *ScopedProvider) Get(ctx context.Context) (any, error) {
	return p.scope.Get(ctx, p.key, p.factory)
}

// IsSingleton reports whether the bound scope is the singleton scope.
func (p *ScopedProvider) IsSingleton() bool {
	_, ok := p.scope.(*SingletonScope)
	return ok
}

// isNil reports whether v is nil, including typed nil pointers.
func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
