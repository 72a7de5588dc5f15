package ioc

import "fmt"

// ModuleOption is a single configuration step applied to a container.
// Modules group related registrations so an application can assemble its
// container from named feature bundles:
//
//	storage := ioc.NewModule("storage",
//	    ioc.Instance("Database", db),
//	    ioc.Factory("Cache", newCache, true),
//	)
//	if err := c.ApplyModules(storage); err != nil { ... }
type ModuleOption func(*Container) error

// ModuleError wraps a registration failure with the module it came from.
type ModuleError struct {
	Module string
	Cause  error
}

func (e ModuleError) Error() string {
	return fmt.Sprintf("module %q: %v", e.Module, e.Cause)
}

func (e ModuleError) Unwrap() error {
	return e.Cause
}

// NewModule bundles builders into a single named module. The first builder
// failure stops the module and is returned wrapped in a ModuleError.
func NewModule(name string, builders ...ModuleOption) ModuleOption {
	return func(c *Container) error {
		for _, builder := range builders {
			if builder == nil {
				continue
			}
			if err := builder(c); err != nil {
				return ModuleError{Module: name, Cause: err}
			}
		}
		return nil
	}
}

// Instance registers a pre-built instance under name.
func Instance(name string, instance any, opts ...RegisterOption) ModuleOption {
	return func(c *Container) error {
		return c.RegisterInstance(name, instance, opts...)
	}
}

// Factory registers a factory-backed provider under name.
func Factory(name string, factory func() (any, error), singleton bool, opts ...RegisterOption) ModuleOption {
	return func(c *Container) error {
		return c.RegisterFactory(name, factory, singleton, opts...)
	}
}

// Scoped registers a provider whose instances live in scope.
func Scoped(name string, scope Scope, factory func() (any, error), opts ...RegisterOption) ModuleOption {
	return func(c *Container) error {
		return c.RegisterScoped(name, scope, factory, opts...)
	}
}

// Type registers a type-constructing provider for T under name.
func Type[T any](name string, singleton bool, opts ...RegisterOption) ModuleOption {
	return func(c *Container) error {
		return RegisterType[T](c, name, singleton, opts...)
	}
}

// Component registers a lifecycle component under name.
func Component(name string, instance any, opts ...ComponentOption) ModuleOption {
	return func(c *Container) error {
		return c.RegisterComponent(name, instance, opts...)
	}
}
