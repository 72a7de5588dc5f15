// Package ioc provides an embeddable inversion-of-control container and
// component lifecycle runtime for Go applications. It combines a generic
// named registry, a layered provider model, struct-tag dependency injection
// and dependency-ordered startup behind one small facade.
//
// # Overview
//
// The package is built from a few composable pieces:
//   - Registry: a generic named store with duplicate policies and hooks
//   - Provider and Scope: instance, type, factory and scoped construction
//   - InjectionRegistry: priority-ordered resolution across provider sources
//   - InjectionExecutor: struct-tag field injection with per-field caching
//   - LifecycleManager: topological, phase-aware startup and shutdown
//   - Container: the facade wiring all of the above together
//
// # Basic Usage
//
// Create a container, register providers, declare injection points with the
// inject struct tag, and resolve:
//
//	type UserService struct {
//	    DB    *Database `inject:"Database"`
//	    Cache *Cache    `inject:"Cache,optional"`
//	}
//
//	c := ioc.New()
//	_ = c.RegisterInstance("Database", db)
//	_ = ioc.RegisterType[*UserService](c, "UserService", true)
//
//	svc, err := ioc.Resolve[*UserService](c, "UserService")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
// # Injection Tags
//
// The inject tag names the dependency and accepts two flags:
//
//	`inject:"Database"`               required, cached after first resolution
//	`inject:"Cache,optional"`         left unset when unresolvable
//	`inject:"Clock,nocache"`          re-resolved on every injection
//
// An empty name derives the dependency name from the field's type. Required
// points that cannot be resolved fail injection; optional points are skipped.
//
// # Scopes
//
// Providers control instance sharing through scopes:
//
//   - SingletonScope: at most one instance per key, shared by all callers
//   - TransientScope: a fresh instance on every resolution
//   - RequestScope: one instance per key per active RequestContext
//
// Request-scoped resolution requires a RequestContext carried in the
// context.Context:
//
//	ctx := ioc.WithRequestContext(r.Context(), ioc.NewRequestContext())
//	svc, err := ioc.ResolveContext[*TxManager](ctx, c, "TxManager")
//
// # Lifecycle
//
// Components registered with the lifecycle manager start in dependency
// order, grouped by phase, and stop in exact reverse start order. Hook
// interfaces are discovered by type assertion: PostConstructor, Starter,
// Stopper and PreDestroyer, each with a context-aware Context variant.
//
//	_ = c.RegisterComponent("database", db)
//	_ = c.RegisterComponent("server", srv, ioc.DependsOn("database"))
//
//	if err := c.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Stop()
//
// Startup failure handling is governed by a StartupPolicy: strict (default)
// aborts, warn logs and skips the failed component, ignore proceeds as if
// the hook succeeded.
//
// # Modules
//
// Related registrations group into named modules:
//
//	storage := ioc.NewModule("storage",
//	    ioc.Instance("Database", db),
//	    ioc.Factory("Cache", newCache, true),
//	)
//	if err := c.ApplyModules(storage); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// All container operations are safe for concurrent use. RequestContext is
// the exception: it is owned by a single request and must not be shared
// across concurrent requests.
package ioc
