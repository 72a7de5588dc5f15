package ioc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fwkit/ioc/internal/graph"
)

// ComponentState is the position of a component in its lifecycle state
// machine. Transitions are driven exclusively by the LifecycleManager.
type ComponentState int

const (
	StateRegistered ComponentState = iota
	StatePostConstructed
	StateStarted
	StateStopped
	StatePreDestroyed
)

// String returns the string representation of the ComponentState.
func (s ComponentState) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StatePostConstructed:
		return "post-constructed"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StatePreDestroyed:
		return "pre-destroyed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Lifecycle hooks. All are optional; a component implements the synchronous
// form, the context-aware form, or neither. The synchronous entry points
// (Start, Stop) refuse to run a component that only declares the
// context-aware form - callers needing context-aware hooks must use
// StartContext/StopContext.

// PostConstructor is invoked after construction, before startup.
type PostConstructor interface {
	PostConstruct() error
}

// PostConstructorContext is the context-aware form of PostConstructor.
type PostConstructorContext interface {
	PostConstructContext(ctx context.Context) error
}

// Starter is invoked during ordered startup.
type Starter interface {
	Start() error
}

// StarterContext is the context-aware form of Starter.
type StarterContext interface {
	StartContext(ctx context.Context) error
}

// Stopper is invoked during ordered shutdown.
type Stopper interface {
	Stop() error
}

// StopperContext is the context-aware form of Stopper.
type StopperContext interface {
	StopContext(ctx context.Context) error
}

// PreDestroyer is invoked after shutdown, before the component is abandoned.
type PreDestroyer interface {
	PreDestroy() error
}

// PreDestroyerContext is the context-aware form of PreDestroyer.
type PreDestroyerContext interface {
	PreDestroyContext(ctx context.Context) error
}

// Phased lets a component declare its startup phase. Lower phases start
// earlier and stop later. Components without a phase default to 0.
type Phased interface {
	Phase() int
}

// LifecycleComponent is a named, already-constructed instance registered for
// ordered startup and shutdown.
type LifecycleComponent struct {
	Name         string
	Instance     any
	Dependencies []string
	Phase        int

	state ComponentState
	seq   int
}

// ComponentOption configures a component registration.
type ComponentOption func(*LifecycleComponent)

// DependsOn declares the names of components that must start before this
// one. Names that are never registered are ignored for ordering.
func DependsOn(names ...string) ComponentOption {
	return func(c *LifecycleComponent) {
		c.Dependencies = append(c.Dependencies, names...)
	}
}

// WithPhase sets the component's startup phase, overriding any Phased
// implementation on the instance.
func WithPhase(phase int) ComponentOption {
	return func(c *LifecycleComponent) {
		c.Phase = phase
	}
}

// LifecycleOption configures a LifecycleManager.
type LifecycleOption func(*LifecycleManager)

// WithStartupPolicy sets how startup hook failures are treated.
// The default is StartupStrict.
func WithStartupPolicy(policy StartupPolicy) LifecycleOption {
	return func(m *LifecycleManager) {
		m.policy = policy
	}
}

// WithLifecycleLogger sets the manager's logger.
func WithLifecycleLogger(logger *zap.Logger) LifecycleOption {
	return func(m *LifecycleManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDrainTimeout sets how long shutdown waits for in-flight work to drain
// before stopping components. Zero (the default) skips the wait.
func WithDrainTimeout(d time.Duration) LifecycleOption {
	return func(m *LifecycleManager) {
		m.drainTimeout = d
	}
}

// WithDrainInterval sets the polling interval of the drain wait.
func WithDrainInterval(d time.Duration) LifecycleOption {
	return func(m *LifecycleManager) {
		if d > 0 {
			m.drainInterval = d
		}
	}
}

// LifecycleManager orders registered components by their declared dependency
// names and numeric phase, then drives startup and shutdown hooks in that
// order. Startup runs dependencies first; shutdown runs the exact reverse of
// the computed startup order.
//
// Hooks run strictly sequentially - no two lifecycle hooks ever run
// concurrently - while registration and inspection are safe for concurrent
// callers.
type LifecycleManager struct {
	policy        StartupPolicy
	logger        *zap.Logger
	drainTimeout  time.Duration
	drainInterval time.Duration

	// runMu serializes whole startup/shutdown passes.
	runMu sync.Mutex

	mu           sync.RWMutex
	components   map[string]*LifecycleComponent
	order        []string // registration order
	startedOrder []string // components actually started, in start order
	ready        map[string]struct{}
	running      bool
	seq          int

	inflight atomic.Int64
}

// NewLifecycleManager creates an empty lifecycle manager.
func NewLifecycleManager(opts ...LifecycleOption) *LifecycleManager {
	m := &LifecycleManager{
		policy:        StartupStrict,
		logger:        zap.NewNop(),
		drainInterval: 10 * time.Millisecond,
		components:    make(map[string]*LifecycleComponent),
		ready:         make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Register adds an already-constructed instance as a lifecycle component.
// The instance's Phased implementation, if any, supplies the default phase.
func (m *LifecycleManager) Register(name string, instance any, opts ...ComponentOption) error {
	if name == "" {
		return RegistryError{Op: "register", Registry: "lifecycle", Name: name, Cause: ErrEmptyName}
	}
	if instance == nil {
		return RegistryError{Op: "register", Registry: "lifecycle", Name: name, Cause: ErrNilInstance}
	}

	component := &LifecycleComponent{
		Name:     name,
		Instance: instance,
		state:    StateRegistered,
	}
	if phased, ok := instance.(Phased); ok {
		component.Phase = phased.Phase()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(component)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.components[name]; exists {
		return RegistryError{Op: "register", Registry: "lifecycle", Name: name, Cause: ErrAlreadyRegistered}
	}

	component.seq = m.seq
	m.seq++
	m.components[name] = component
	m.order = append(m.order, name)
	return nil
}

// Unregister removes a component that has not been started. It reports
// whether the name was present.
func (m *LifecycleManager) Unregister(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.components[name]; !ok {
		return false
	}
	if _, started := m.ready[name]; started {
		return false
	}

	delete(m.components, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Components returns the registered component names in registration order.
func (m *LifecycleManager) Components() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// Count returns the number of registered components.
func (m *LifecycleManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.components)
}

// State returns the lifecycle state of the named component.
func (m *LifecycleManager) State(name string) (ComponentState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	component, ok := m.components[name]
	if !ok {
		return 0, false
	}
	return component.state, true
}

// Started returns the names of components in the ready set, in start order.
func (m *LifecycleManager) Started() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.ready))
	for _, name := range m.startedOrder {
		if _, ok := m.ready[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// IsStarted reports whether the named component is in the ready set.
func (m *LifecycleManager) IsStarted(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.ready[name]
	return ok
}

// Order computes and returns the startup order: a topological sort of the
// declared dependency edges, ties broken by ascending phase, then by
// registration order. Dependency names that were never registered are
// ignored. A dependency cycle yields a CircularDependencyError.
func (m *LifecycleManager) Order() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.computeOrder()
}

// computeOrder builds the dependency graph and sorts it. Callers must hold
// at least the read lock.
func (m *LifecycleManager) computeOrder() ([]string, error) {
	g := graph.New()
	phases := make(map[string]int, len(m.components))

	for _, name := range m.order {
		g.Add(name)
		phases[name] = m.components[name].Phase
	}

	for _, name := range m.order {
		for _, dep := range m.components[name].Dependencies {
			if !g.Has(dep) {
				// Unregistered dependency names are treated as
				// missing optional edges.
				m.logger.Debug("ignoring unknown dependency",
					zap.String("component", name),
					zap.String("dependency", dep))
				continue
			}
			if err := g.AddEdge(name, dep); err != nil {
				return nil, err
			}
		}
	}

	return g.Sort(func(a, b *graph.Node) bool {
		if phases[a.Name] != phases[b.Name] {
			return phases[a.Name] < phases[b.Name]
		}
		return a.Seq < b.Seq
	})
}

// Start drives post-construct and startup hooks for every component in
// computed order. It refuses components that only declare context-aware
// hooks; use StartContext for those.
func (m *LifecycleManager) Start() error {
	return m.start(context.Background(), false)
}

// StartContext is the context-aware startup entry point. It accepts both
// synchronous and context-aware hooks.
func (m *LifecycleManager) StartContext(ctx context.Context) error {
	return m.start(ctx, true)
}

func (m *LifecycleManager) start(ctx context.Context, allowContext bool) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("lifecycle: %w", ErrAlreadyStarted)
	}

	order, err := m.computeOrder()
	if err != nil {
		m.mu.Unlock()
		return err
	}

	components := make([]*LifecycleComponent, 0, len(order))
	for _, name := range order {
		// A prior aborted pass may have started some components; they
		// keep their state and never see their startup hooks again.
		if _, started := m.ready[name]; started {
			continue
		}
		components = append(components, m.components[name])
	}
	m.mu.Unlock()

	for _, component := range components {
		ok, err := m.runStartupHook(ctx, component, hookPostConstruct, StatePostConstructed, allowContext)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		ok, err = m.runStartupHook(ctx, component, hookStart, StateStarted, allowContext)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		m.mu.Lock()
		m.ready[component.Name] = struct{}{}
		m.startedOrder = append(m.startedOrder, component.Name)
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.running = true
	m.mu.Unlock()
	return nil
}

// runStartupHook invokes one startup-path hook and applies the startup
// policy. It returns whether the component should continue its transitions;
// an error aborts the whole pass.
func (m *LifecycleManager) runStartupHook(ctx context.Context, component *LifecycleComponent, hook hookKind, next ComponentState, allowContext bool) (bool, error) {
	err := invokeHook(ctx, component.Instance, hook, allowContext)

	if err != nil {
		// A sync entry point meeting a context-only hook is a caller
		// error, never a policy matter.
		if errors.Is(err, ErrSyncHookOnly) {
			return false, LifecycleError{Component: component.Name, Hook: hook.String(), Cause: err}
		}

		switch m.policy {
		case StartupWarn:
			m.logger.Warn("startup hook failed",
				zap.String("component", component.Name),
				zap.String("hook", hook.String()),
				zap.Error(err))
			return false, nil
		case StartupIgnore:
			m.logger.Debug("startup hook failure ignored",
				zap.String("component", component.Name),
				zap.String("hook", hook.String()),
				zap.Error(err))
		default:
			return false, LifecycleError{Component: component.Name, Hook: hook.String(), Cause: err}
		}
	}

	m.mu.Lock()
	component.state = next
	m.mu.Unlock()
	return true, nil
}

// Stop drives shutdown and pre-destroy hooks in the exact reverse of the
// startup order. Hook failures are logged, never fatal, so later components
// still get a chance to release resources. Components that only declare
// context-aware hooks are reported in the returned error; use StopContext
// for those.
func (m *LifecycleManager) Stop() error {
	return m.stop(context.Background(), false)
}

// StopContext is the context-aware shutdown entry point. The context's
// deadline, if any, bounds the drain wait.
func (m *LifecycleManager) StopContext(ctx context.Context) error {
	return m.stop(ctx, true)
}

func (m *LifecycleManager) stop(ctx context.Context, allowContext bool) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	m.mu.Lock()
	// A strict-policy abort leaves running false with components already
	// started; those still need their shutdown hooks.
	if !m.running && len(m.startedOrder) == 0 {
		m.mu.Unlock()
		return nil
	}

	reversed := make([]*LifecycleComponent, 0, len(m.startedOrder))
	for i := len(m.startedOrder) - 1; i >= 0; i-- {
		reversed = append(reversed, m.components[m.startedOrder[i]])
	}
	m.mu.Unlock()

	if m.drainTimeout > 0 {
		drainCtx := ctx
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			drainCtx, cancel = context.WithTimeout(ctx, m.drainTimeout)
			defer cancel()
		}
		if !m.Drain(drainCtx) {
			m.logger.Warn("shutdown proceeding with in-flight work remaining",
				zap.Int64("inflight", m.inflight.Load()))
		}
	}

	var misuse []error

	for _, component := range reversed {
		m.runShutdownHook(ctx, component, hookStop, StateStopped, allowContext, &misuse)
		m.runShutdownHook(ctx, component, hookPreDestroy, StatePreDestroyed, allowContext, &misuse)

		m.mu.Lock()
		delete(m.ready, component.Name)
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.running = false
	m.startedOrder = nil
	m.mu.Unlock()

	return errors.Join(misuse...)
}

// runShutdownHook invokes one shutdown-path hook. Hook failures are logged
// and the pass continues; context-only hooks reached from the sync entry
// point are collected into misuse.
func (m *LifecycleManager) runShutdownHook(ctx context.Context, component *LifecycleComponent, hook hookKind, next ComponentState, allowContext bool, misuse *[]error) {
	if err := invokeHook(ctx, component.Instance, hook, allowContext); err != nil {
		if errors.Is(err, ErrSyncHookOnly) {
			*misuse = append(*misuse, LifecycleError{Component: component.Name, Hook: hook.String(), Cause: err})
		} else {
			m.logger.Error("shutdown hook failed",
				zap.String("component", component.Name),
				zap.String("hook", hook.String()),
				zap.Error(err))
		}
	}

	m.mu.Lock()
	component.state = next
	m.mu.Unlock()
}

// InflightAdd records one unit of in-flight work the drain wait should
// account for.
func (m *LifecycleManager) InflightAdd() {
	m.inflight.Add(1)
}

// InflightDone marks one unit of in-flight work as finished.
func (m *LifecycleManager) InflightDone() {
	m.inflight.Add(-1)
}

// Inflight returns the current in-flight work counter.
func (m *LifecycleManager) Inflight() int64 {
	return m.inflight.Load()
}

// Drain polls the in-flight counter until it reaches zero or ctx is done.
// It reports whether the counter reached zero. This is a best-effort wait,
// not a cancellation.
func (m *LifecycleManager) Drain(ctx context.Context) bool {
	if m.inflight.Load() == 0 {
		return true
	}

	ticker := time.NewTicker(m.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return m.inflight.Load() == 0
		case <-ticker.C:
			if m.inflight.Load() == 0 {
				return true
			}
		}
	}
}

// hookKind identifies one of the four lifecycle hooks.
type hookKind int

const (
	hookPostConstruct hookKind = iota
	hookStart
	hookStop
	hookPreDestroy
)

func (k hookKind) String() string {
	switch k {
	case hookPostConstruct:
		return "post-construct"
	case hookStart:
		return "start"
	case hookStop:
		return "stop"
	case hookPreDestroy:
		return "pre-destroy"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// invokeHook runs the requested hook on instance. Context entry points
// prefer the context-aware form; synchronous entry points use the
// synchronous form and fail with ErrSyncHookOnly when only the context-aware
// form exists.
func invokeHook(ctx context.Context, instance any, hook hookKind, allowContext bool) error {
	switch hook {
	case hookPostConstruct:
		if h, ok := instance.(PostConstructorContext); ok {
			if allowContext {
				return h.PostConstructContext(ctx)
			}
			if _, hasSync := instance.(PostConstructor); !hasSync {
				return ErrSyncHookOnly
			}
		}
		if h, ok := instance.(PostConstructor); ok {
			return h.PostConstruct()
		}
	case hookStart:
		if h, ok := instance.(StarterContext); ok {
			if allowContext {
				return h.StartContext(ctx)
			}
			if _, hasSync := instance.(Starter); !hasSync {
				return ErrSyncHookOnly
			}
		}
		if h, ok := instance.(Starter); ok {
			return h.Start()
		}
	case hookStop:
		if h, ok := instance.(StopperContext); ok {
			if allowContext {
				return h.StopContext(ctx)
			}
			if _, hasSync := instance.(Stopper); !hasSync {
				return ErrSyncHookOnly
			}
		}
		if h, ok := instance.(Stopper); ok {
			return h.Stop()
		}
	case hookPreDestroy:
		if h, ok := instance.(PreDestroyerContext); ok {
			if allowContext {
				return h.PreDestroyContext(ctx)
			}
			if _, hasSync := instance.(PreDestroyer); !hasSync {
				return ErrSyncHookOnly
			}
		}
		if h, ok := instance.(PreDestroyer); ok {
			return h.PreDestroy()
		}
	}

	return nil
}
