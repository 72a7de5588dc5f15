package ioc

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Entry is a single registration inside a Registry.
type Entry[T any] struct {
	Name         string
	Item         T
	Metadata     map[string]any
	Dependencies []string

	seq int
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	policy DuplicatePolicy
	logger *zap.Logger
}

// WithDuplicatePolicy sets how duplicate names are handled.
// The default is DuplicateError.
func WithDuplicatePolicy(p DuplicatePolicy) RegistryOption {
	return func(c *registryConfig) {
		c.policy = p
	}
}

// WithRegistryLogger sets the logger used for duplicate warnings.
func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(c *registryConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// RegisterOption attaches metadata to a single registration.
type RegisterOption func(*registerConfig)

type registerConfig struct {
	metadata     map[string]any
	dependencies []string
}

// WithMetadata attaches an open key/value pair to the registration.
func WithMetadata(key string, value any) RegisterOption {
	return func(c *registerConfig) {
		if c.metadata == nil {
			c.metadata = make(map[string]any)
		}
		c.metadata[key] = value
	}
}

// WithDependencies declares the names of other components this registration
// depends on. The names are carried as registration metadata; they are not
// validated against the registry contents.
func WithDependencies(names ...string) RegisterOption {
	return func(c *registerConfig) {
		c.dependencies = append(c.dependencies, names...)
	}
}

// Registry is an ordered, thread-safe name→item store with open metadata and
// a configurable duplicate-registration policy.
//
// Registries are the storage building block for the container: the provider
// table, service and controller layers are all registries that additionally
// expose themselves as provider sources via Source.
//
// Example:
//
//	services := ioc.NewRegistry[*UserService]("services")
//	err := services.Register("userService", svc, ioc.WithDependencies("database"))
type Registry[T any] struct {
	name   string
	policy DuplicatePolicy
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]*Entry[T]
	order   []string
	seq     int

	preRegister  []func(*Entry[T]) error
	postRegister []func(*Entry[T])
}

// NewRegistry creates an empty registry. The name is used in error messages
// and log fields only.
func NewRegistry[T any](name string, opts ...RegistryOption) *Registry[T] {
	cfg := registryConfig{
		policy: DuplicateError,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return &Registry[T]{
		name:    name,
		policy:  cfg.policy,
		logger:  cfg.logger,
		entries: make(map[string]*Entry[T]),
	}
}

// Name returns the registry's name.
func (r *Registry[T]) Name() string {
	return r.name
}

// OnPreRegister adds a hook invoked before each registration is stored.
// A hook error aborts the registration. Pre hooks run while the registry
// lock is held and must not call back into the same registry.
func (r *Registry[T]) OnPreRegister(fn func(*Entry[T]) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preRegister = append(r.preRegister, fn)
}

// OnPostRegister adds a hook invoked after each successful registration,
// outside the registry lock, so the hook may register further entries.
// Higher layers use these hooks to attach domain logic without
// reimplementing storage.
func (r *Registry[T]) OnPostRegister(fn func(*Entry[T])) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.postRegister = append(r.postRegister, fn)
}

// Register stores item under name. Duplicate names are handled according to
// the registry's DuplicatePolicy. Registrations rejected or skipped by the
// duplicate policy fire no hooks.
func (r *Registry[T]) Register(name string, item T, opts ...RegisterOption) error {
	if name == "" {
		return RegistryError{Op: "register", Registry: r.name, Name: name, Cause: ErrEmptyName}
	}

	cfg := registerConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	r.mu.Lock()

	existing, duplicate := r.entries[name]

	if duplicate {
		switch r.policy {
		case DuplicateWarn:
			r.mu.Unlock()
			r.logger.Warn("duplicate registration ignored",
				zap.String("registry", r.name),
				zap.String("name", name))
			return nil
		case DuplicateReplace:
			// Overwrite in place, keeping the original ordering slot.
		default:
			r.mu.Unlock()
			return RegistryError{Op: "register", Registry: r.name, Name: name, Cause: ErrAlreadyRegistered}
		}
	}

	entry := &Entry[T]{
		Name:         name,
		Item:         item,
		Metadata:     cfg.metadata,
		Dependencies: cfg.dependencies,
	}

	if duplicate {
		entry.seq = existing.seq
	} else {
		entry.seq = r.seq
		r.seq++
	}

	for _, hook := range r.preRegister {
		if err := hook(entry); err != nil {
			r.mu.Unlock()
			return RegistryError{Op: "register", Registry: r.name, Name: name, Cause: err}
		}
	}

	r.entries[name] = entry
	if !duplicate {
		r.order = append(r.order, name)
	}

	post := make([]func(*Entry[T]), len(r.postRegister))
	copy(post, r.postRegister)
	r.mu.Unlock()

	// Post hooks run outside the lock so they may call back into the
	// registry, for example to register derived entries.
	for _, hook := range post {
		hook(entry)
	}

	return nil
}

// Get returns the item registered under name.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		var zero T
		return zero, false
	}
	return entry.Item, true
}

// Has reports whether name is registered.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[name]
	return ok
}

// Metadata returns a copy of the metadata attached to name.
func (r *Registry[T]) Metadata(name string) (map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil, false
	}

	md := make(map[string]any, len(entry.Metadata))
	for k, v := range entry.Metadata {
		md[k] = v
	}
	return md, true
}

// Dependencies returns the declared dependency names of a registration.
func (r *Registry[T]) Dependencies(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil
	}

	deps := make([]string, len(entry.Dependencies))
	copy(deps, entry.Dependencies)
	return deps
}

// Names returns all registered names in registration order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All returns a name→item mapping of every registration.
func (r *Registry[T]) All() map[string]T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make(map[string]T, len(r.entries))
	for name, entry := range r.entries {
		all[name] = entry.Item
	}
	return all
}

// Unregister removes a registration. It reports whether name was present.
func (r *Registry[T]) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; !ok {
		return false
	}

	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every registration.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*Entry[T])
	r.order = nil
	r.seq = 0
}

// Count returns the number of registrations.
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// Source adapts the registry into a ProviderSource with the given priority,
// so it can take part in priority-ordered dependency resolution. Stored items
// that implement Provider are unwrapped via Get; anything else is supplied
// as-is.
func (r *Registry[T]) Source(priority int) ProviderSource {
	return &registrySource[T]{registry: r, priority: priority}
}

type registrySource[T any] struct {
	registry *Registry[T]
	priority int
}

func (s *registrySource[T]) CanProvide(name string) bool {
	return s.registry.Has(name)
}

func (s *registrySource[T]) Provide(ctx context.Context, name string) (any, error) {
	item, ok := s.registry.Get(name)
	if !ok {
		return nil, nil
	}

	if provider, ok := any(item).(Provider); ok {
		return provider.Get(ctx)
	}
	return item, nil
}

func (s *registrySource[T]) Priority() int {
	return s.priority
}
