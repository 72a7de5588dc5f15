package ioc

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fwkit/ioc/internal/graph"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================
// These are base errors that should be wrapped in typed errors when returned.
// Never return these directly to users - always wrap them with context.

var (
	// Registration errors.
	ErrEmptyName         = errors.New("name cannot be empty")
	ErrNilItem           = errors.New("item cannot be nil")
	ErrNilInstance       = errors.New("instance cannot be nil")
	ErrNilType           = errors.New("type cannot be nil")
	ErrNilFactory        = errors.New("factory cannot be nil")
	ErrNilScope          = errors.New("scope cannot be nil")
	ErrAlreadyRegistered = errors.New("name already registered")

	// Resolution errors.
	ErrUnresolvable     = errors.New("dependency could not be resolved")
	ErrNoRequestContext = errors.New("no active request context")

	// Lifecycle errors.
	ErrAlreadyStarted = errors.New("startup already executed")
	ErrSyncHookOnly   = errors.New("component declares a context-aware hook; use the context entry point")
)

var (
	_ error = RegistryError{}
	_ error = DependencyResolutionError{}
	_ error = LifecycleError{}
	_ error = PolicyError{}
	_ error = ModuleError{}
)

// CircularDependencyError reports a dependency cycle, either between lifecycle
// components or on the active injection-resolution path. Resolution-time
// cycles are surfaced wrapped in a DependencyResolutionError, so both
// errors.As with this type and errors.Is(err, ErrUnresolvable) match.
type CircularDependencyError = graph.CircularDependencyError

// ========================================
// Typed Errors for Rich Context
// ========================================
// Always use these typed errors instead of fmt.Errorf() or errors.New()
// for domain-specific errors. Wrap sentinel errors with these types.

// RegistryError indicates an invalid registration, or a required dependency
// that could not be supplied while injecting an instance.
type RegistryError struct {
	Op       string       // "register", "unregister", "inject"
	Registry string       // registry name, empty when not applicable
	Owner    reflect.Type // owning component type for injection failures
	Field    string       // injection target field, empty for registration failures
	Name     string       // offending registration or dependency name
	Cause    error
}

func (e RegistryError) Error() string {
	if e.Owner != nil {
		if errors.Is(e.Cause, ErrUnresolvable) {
			return fmt.Sprintf("required dependency %q for %s.%s could not be resolved",
				e.Name, formatType(e.Owner), e.Field)
		}
		return fmt.Sprintf("injecting %q into %s.%s: %v",
			e.Name, formatType(e.Owner), e.Field, e.Cause)
	}

	if e.Registry != "" {
		return fmt.Sprintf("registry %q: %s %q: %v", e.Registry, e.Op, e.Name, e.Cause)
	}

	return fmt.Sprintf("%s %q: %v", e.Op, e.Name, e.Cause)
}

func (e RegistryError) Unwrap() error {
	return e.Cause
}

// DependencyResolutionError indicates that no provider source could supply a
// dependency name. The Cause carries the underlying failure when resolution
// was attempted but failed (for example a CircularDependencyError).
type DependencyResolutionError struct {
	Name  string
	Cause error
}

func (e DependencyResolutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("resolving dependency %q: %v", e.Name, e.Cause)
	}
	return fmt.Sprintf("no provider source could supply dependency %q", e.Name)
}

func (e DependencyResolutionError) Unwrap() error {
	return e.Cause
}

func (e DependencyResolutionError) Is(target error) bool {
	return target == ErrUnresolvable
}

// LifecycleError indicates a lifecycle hook failure.
type LifecycleError struct {
	Component string
	Hook      string // "post-construct", "start", "stop", "pre-destroy"
	Cause     error
}

func (e LifecycleError) Error() string {
	if e.Hook != "" {
		return fmt.Sprintf("component %q: %s hook: %v", e.Component, e.Hook, e.Cause)
	}
	return fmt.Sprintf("component %q: %v", e.Component, e.Cause)
}

func (e LifecycleError) Unwrap() error {
	return e.Cause
}

// PolicyError indicates an invalid policy value.
type PolicyError struct {
	Value any
}

func (e PolicyError) Error() string {
	return fmt.Sprintf("invalid policy: %v", e.Value)
}

// formatType formats a reflect.Type for error messages.
func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind() {
	case reflect.Pointer:
		// Format pointers as *Type instead of *package.Type
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "*" + elem.Name()
		}
		return t.String()
	case reflect.Interface, reflect.Struct:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	default:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	}
}
