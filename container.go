package ioc

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Resolution priorities for the sources a Container wires together. The
// generic provider table sits below domain registries (service, controller
// layers) so that domain registrations win when both can supply a name.
const (
	PriorityProviderTable = 0
	PriorityDomain        = 100
)

// ContainerOption configures a Container.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	logger    *zap.Logger
	injection *InjectionRegistry
	lifecycle *LifecycleManager
	policy    DuplicatePolicy
}

// WithLogger sets the logger used by the container and every sub-component
// it constructs.
func WithLogger(logger *zap.Logger) ContainerOption {
	return func(c *containerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithInjectionRegistry supplies a pre-built injection registry instead of
// the container constructing its own.
func WithInjectionRegistry(registry *InjectionRegistry) ContainerOption {
	return func(c *containerConfig) {
		if registry != nil {
			c.injection = registry
		}
	}
}

// WithLifecycle supplies a pre-built lifecycle manager, typically to choose
// a startup policy:
//
//	c := ioc.New(ioc.WithLifecycle(
//	    ioc.NewLifecycleManager(ioc.WithStartupPolicy(ioc.StartupWarn)),
//	))
func WithLifecycle(manager *LifecycleManager) ContainerOption {
	return func(c *containerConfig) {
		if manager != nil {
			c.lifecycle = manager
		}
	}
}

// WithProviderPolicy sets the duplicate policy of the container's provider
// table. The default is DuplicateError.
func WithProviderPolicy(policy DuplicatePolicy) ContainerOption {
	return func(c *containerConfig) {
		c.policy = policy
	}
}

// Container is the facade unifying the three resolution paths of the core:
// the provider table, injection resolution and lifecycle management. Callers
// outside the core register providers and components here and resolve
// through it.
//
// Example:
//
//	c := ioc.New()
//	_ = c.RegisterInstance("Database", db)
//	_ = ioc.RegisterType[*UserService](c, "UserService", true)
//
//	svc, err := ioc.Resolve[*UserService](c, "UserService")
type Container struct {
	logger    *zap.Logger
	providers *Registry[Provider]
	injection *InjectionRegistry
	executor  *InjectionExecutor
	lifecycle *LifecycleManager

	mu          sync.Mutex
	disposables []any
	tracked     map[any]struct{}
	closed      atomic.Bool
}

// New creates a Container with its provider table registered as the
// lowest-priority provider source.
func New(opts ...ContainerOption) *Container {
	cfg := containerConfig{
		logger: zap.NewNop(),
		policy: DuplicateError,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.injection == nil {
		cfg.injection = NewInjectionRegistry(WithInjectionLogger(cfg.logger))
	}
	if cfg.lifecycle == nil {
		cfg.lifecycle = NewLifecycleManager(WithLifecycleLogger(cfg.logger))
	}

	c := &Container{
		logger:    cfg.logger,
		providers: NewRegistry[Provider]("providers", WithDuplicatePolicy(cfg.policy), WithRegistryLogger(cfg.logger)),
		injection: cfg.injection,
		lifecycle: cfg.lifecycle,
		tracked:   make(map[any]struct{}),
	}
	c.executor = NewInjectionExecutor(cfg.injection, WithExecutorLogger(cfg.logger))

	c.injection.AddSource(&providerTableSource{container: c})

	return c
}

// Providers returns the container's provider table.
func (c *Container) Providers() *Registry[Provider] {
	return c.providers
}

// Injection returns the container's injection registry.
func (c *Container) Injection() *InjectionRegistry {
	return c.injection
}

// Executor returns the container's injection executor.
func (c *Container) Executor() *InjectionExecutor {
	return c.executor
}

// Lifecycle returns the container's lifecycle manager.
func (c *Container) Lifecycle() *LifecycleManager {
	return c.lifecycle
}

// RegisterProvider stores a provider in the provider table.
func (c *Container) RegisterProvider(name string, provider Provider, opts ...RegisterOption) error {
	if provider == nil {
		return RegistryError{Op: "register", Registry: c.providers.Name(), Name: name, Cause: ErrNilItem}
	}
	return c.providers.Register(name, provider, opts...)
}

// RegisterInstance registers a pre-built instance under name.
func (c *Container) RegisterInstance(name string, instance any, opts ...RegisterOption) error {
	provider, err := NewInstanceProvider(instance)
	if err != nil {
		return RegistryError{Op: "register", Registry: c.providers.Name(), Name: name, Cause: err}
	}
	return c.providers.Register(name, provider, opts...)
}

// RegisterFactory registers a factory-backed provider under name.
func (c *Container) RegisterFactory(name string, factory func() (any, error), singleton bool, opts ...RegisterOption) error {
	provider, err := NewFactoryProvider(factory, singleton)
	if err != nil {
		return RegistryError{Op: "register", Registry: c.providers.Name(), Name: name, Cause: err}
	}
	return c.providers.Register(name, provider, opts...)
}

// RegisterScoped registers a provider whose instances live in scope under
// the registration name.
func (c *Container) RegisterScoped(name string, scope Scope, factory func() (any, error), opts ...RegisterOption) error {
	provider, err := NewScopedProvider(scope, name, factory)
	if err != nil {
		return RegistryError{Op: "register", Registry: c.providers.Name(), Name: name, Cause: err}
	}
	return c.providers.Register(name, provider, opts...)
}

// RegisterType registers a type-constructing provider under name and eagerly
// analyzes the type's injection points, so malformed declarations surface at
// registration rather than first resolution.
func RegisterType[T any](c *Container, name string, singleton bool, opts ...RegisterOption) error {
	t := reflect.TypeOf((*T)(nil)).Elem()

	provider, err := NewTypeProvider(t, singleton)
	if err != nil {
		return RegistryError{Op: "register", Registry: c.providers.Name(), Name: name, Cause: err}
	}

	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
		if _, err := c.injection.RegisterType(t); err != nil {
			return RegistryError{Op: "register", Registry: c.providers.Name(), Name: name, Cause: err}
		}
	}

	return c.providers.Register(name, provider, opts...)
}

// RegisterComponent adds an already-constructed instance to the lifecycle
// manager and the provider table under the same name, so the component is
// both startable and resolvable.
func (c *Container) RegisterComponent(name string, instance any, opts ...ComponentOption) error {
	if err := c.lifecycle.Register(name, instance, opts...); err != nil {
		return err
	}

	if err := c.RegisterInstance(name, instance); err != nil {
		c.lifecycle.Unregister(name)
		return err
	}
	return nil
}

// Resolve resolves a dependency name through every provider source. Unlike
// InjectionRegistry.Resolve, a miss is an error.
func (c *Container) Resolve(ctx context.Context, name string) (any, error) {
	instance, err := c.injection.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, DependencyResolutionError{Name: name}
	}
	return instance, nil
}

// Inject fills the injection points of an already-constructed instance.
func (c *Container) Inject(ctx context.Context, instance any) error {
	return c.executor.InjectInstance(ctx, instance)
}

// Start drives lifecycle startup. See LifecycleManager.Start.
func (c *Container) Start() error {
	return c.lifecycle.Start()
}

// StartContext drives lifecycle startup with a context.
func (c *Container) StartContext(ctx context.Context) error {
	return c.lifecycle.StartContext(ctx)
}

// Stop drives lifecycle shutdown. See LifecycleManager.Stop.
func (c *Container) Stop() error {
	return c.lifecycle.Stop()
}

// StopContext drives lifecycle shutdown with a context.
func (c *Container) StopContext(ctx context.Context) error {
	return c.lifecycle.StopContext(ctx)
}

// ApplyModules applies one or more module configurations to the container.
func (c *Container) ApplyModules(modules ...ModuleOption) error {
	for _, module := range modules {
		if module == nil {
			continue
		}
		if err := module(c); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the lifecycle (if running) and disposes every tracked instance
// in reverse resolution order.
func (c *Container) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if err := c.lifecycle.StopContext(context.Background()); err != nil {
		errs = append(errs, err)
	}

	c.mu.Lock()
	disposables := c.disposables
	c.disposables = nil
	c.tracked = make(map[any]struct{})
	c.mu.Unlock()

	for i := len(disposables) - 1; i >= 0; i-- {
		if err := dispose(context.Background(), disposables[i]); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// track remembers a resolved instance for disposal on Close. Duplicate and
// non-comparable instances are skipped.
func (c *Container) track(instance any) {
	switch instance.(type) {
	case Disposable, DisposableWithContext:
	default:
		return
	}

	if t := reflect.TypeOf(instance); t == nil || !t.Comparable() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.tracked[instance]; seen {
		return
	}
	c.tracked[instance] = struct{}{}
	c.disposables = append(c.disposables, instance)
}

// providerTableSource exposes the provider table as the container's generic
// provider source. Freshly provided instances with registered injection
// metadata are injected before being handed out, which is what makes nested
// (and circular) resolution flow through the shared resolution path.
type providerTableSource struct {
	container *Container
}

func (s *providerTableSource) CanProvide(name string) bool {
	return s.container.providers.Has(name)
}

func (s *providerTableSource) Provide(ctx context.Context, name string) (any, error) {
	provider, ok := s.container.providers.Get(name)
	if !ok {
		return nil, nil
	}

	instance, err := provider.Get(ctx)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, nil
	}

	if metadata, ok := s.container.injection.MetadataFor(reflect.TypeOf(instance)); ok && metadata.Len() > 0 {
		if err := s.container.executor.Inject(ctx, instance, metadata); err != nil {
			return nil, err
		}
	}

	s.container.track(instance)
	return instance, nil
}

func (s *providerTableSource) Priority() int {
	return PriorityProviderTable
}

// Resolve resolves name from the container and asserts the result to T.
func Resolve[T any](c *Container, name string) (T, error) {
	return ResolveContext[T](context.Background(), c, name)
}

// ResolveContext resolves name from the container with a context, which
// carries the active request context for request-scoped providers.
func ResolveContext[T any](ctx context.Context, c *Container, name string) (T, error) {
	var zero T

	instance, err := c.Resolve(ctx, name)
	if err != nil {
		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("resolve %q: value is %T, expected %s",
			name, instance, formatType(reflect.TypeOf((*T)(nil)).Elem()))
	}
	return typed, nil
}

// MustResolve is like Resolve but panics on failure. Intended for
// application wiring where a missing dependency is unrecoverable.
func MustResolve[T any](c *Container, name string) T {
	v, err := Resolve[T](c, name)
	if err != nil {
		panic(err)
	}
	return v
}

// Construct builds a fresh *T and injects its declared dependencies: the
// two-phase construction contract, with injection owned by the container
// rather than hidden inside a constructor.
func Construct[T any](ctx context.Context, c *Container) (*T, error) {
	instance := new(T)

	metadata, err := c.injection.RegisterType(reflect.TypeOf(instance))
	if err != nil {
		return nil, err
	}

	if err := c.executor.Inject(ctx, instance, metadata); err != nil {
		return nil, err
	}

	c.track(instance)
	return instance, nil
}
