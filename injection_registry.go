package ioc

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ProviderSource is anything able to answer "can you supply dependency X?"
// and, if so, supply it. Multiple sources coexist inside an
// InjectionRegistry; resolution always tries the highest-priority source
// first and falls through on miss.
type ProviderSource interface {
	// CanProvide reports whether the source can supply the named
	// dependency.
	CanProvide(name string) bool

	// Provide supplies the named dependency. A nil result with a nil
	// error is a miss: resolution falls through to the next source.
	Provide(ctx context.Context, name string) (any, error)

	// Priority orders this source relative to others; higher is consulted
	// first.
	Priority() int
}

// InjectionOption configures an InjectionRegistry.
type InjectionOption func(*InjectionRegistry)

// WithInjectionLogger sets the registry's logger.
func WithInjectionLogger(logger *zap.Logger) InjectionOption {
	return func(r *InjectionRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// InjectionRegistry is the central resolver. It stores injection-point
// metadata per component type and maintains a priority-ordered list of
// provider sources used to resolve dependency names.
type InjectionRegistry struct {
	logger *zap.Logger

	mu       sync.RWMutex
	metadata map[reflect.Type]*InjectionMetadata
	sources  []sourceEntry
	seq      int
}

type sourceEntry struct {
	priority int
	seq      int
	source   ProviderSource
}

// NewInjectionRegistry creates an empty injection registry.
func NewInjectionRegistry(opts ...InjectionOption) *InjectionRegistry {
	r := &InjectionRegistry{
		logger:   zap.NewNop(),
		metadata: make(map[reflect.Type]*InjectionMetadata),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RegisterType analyzes t's inject tags and stores the resulting metadata.
// Registering an already-known type returns the existing metadata unchanged.
func (r *InjectionRegistry) RegisterType(t reflect.Type) (*InjectionMetadata, error) {
	r.mu.RLock()
	if md, ok := r.metadata[t]; ok {
		r.mu.RUnlock()
		return md, nil
	}
	r.mu.RUnlock()

	md, err := AnalyzeType(t)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have analyzed the type meanwhile.
	if existing, ok := r.metadata[t]; ok {
		return existing, nil
	}

	r.metadata[t] = md
	return md, nil
}

// RegisterMetadata stores explicitly-built metadata, replacing any analysis
// result for the same type.
func (r *InjectionRegistry) RegisterMetadata(md *InjectionMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[md.Type] = md
}

// MetadataFor returns the stored metadata for a component type.
func (r *InjectionRegistry) MetadataFor(t reflect.Type) (*InjectionMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	md, ok := r.metadata[t]
	return md, ok
}

// AddSource registers a provider source. The source list is re-sorted on
// every addition so resolution always iterates highest priority first;
// sources with equal priority keep their addition order.
func (r *InjectionRegistry) AddSource(source ProviderSource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sources = append(r.sources, sourceEntry{
		priority: source.Priority(),
		seq:      r.seq,
		source:   source,
	})
	r.seq++

	sort.SliceStable(r.sources, func(i, j int) bool {
		return r.sources[i].priority > r.sources[j].priority
	})
}

// RemoveSource unregisters a previously added source. It reports whether the
// source was present.
func (r *InjectionRegistry) RemoveSource(source ProviderSource) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range r.sources {
		if entry.source == source {
			r.sources = append(r.sources[:i], r.sources[i+1:]...)
			return true
		}
	}
	return false
}

// SourceCount returns the number of registered provider sources.
func (r *InjectionRegistry) SourceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sources)
}

// Resolve resolves a dependency name by consulting the provider sources in
// descending priority order. It returns the first non-nil result, or
// (nil, nil) when no source can supply the name.
//
// The set of names on the active resolution path travels in ctx: a source
// whose Provide recursively resolves further dependencies must pass ctx
// along, which is what allows cycles to be detected immediately instead of
// recursing until stack overflow.
func (r *InjectionRegistry) Resolve(ctx context.Context, name string) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	path := resolutionPathFrom(ctx)
	for _, active := range path {
		if active == name {
			cycle := append(append([]string{}, path...), name)
			return nil, DependencyResolutionError{
				Name:  name,
				Cause: &CircularDependencyError{Node: name, Path: cycle},
			}
		}
	}
	ctx = withResolutionPath(ctx, append(append([]string{}, path...), name))

	r.mu.RLock()
	sources := make([]sourceEntry, len(r.sources))
	copy(sources, r.sources)
	r.mu.RUnlock()

	for _, entry := range sources {
		if !entry.source.CanProvide(name) {
			continue
		}

		instance, err := entry.source.Provide(ctx, name)
		if err != nil {
			if errors.Is(err, ErrUnresolvable) {
				return nil, err
			}
			return nil, DependencyResolutionError{Name: name, Cause: err}
		}
		if instance != nil {
			return instance, nil
		}

		r.logger.Debug("provider source missed",
			zap.String("dependency", name),
			zap.Int("priority", entry.priority))
	}

	return nil, nil
}

// resolutionPathKey carries the active resolution path in a Context.
type resolutionPathKey struct{}

func withResolutionPath(ctx context.Context, path []string) context.Context {
	return context.WithValue(ctx, resolutionPathKey{}, path)
}

func resolutionPathFrom(ctx context.Context) []string {
	path, _ := ctx.Value(resolutionPathKey{}).([]string)
	return path
}
