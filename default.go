package ioc

import "sync"

var (
	defaultMu        sync.RWMutex
	defaultContainer *Container
)

// Default returns the process-wide container, creating it on first use.
// Libraries that want ambient resolution without threading a *Container
// through their APIs use this, in the manner of slog.Default.
func Default() *Container {
	defaultMu.RLock()
	c := defaultContainer
	defaultMu.RUnlock()
	if c != nil {
		return c
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultContainer == nil {
		defaultContainer = New()
	}
	return defaultContainer
}

// SetDefault replaces the process-wide container. A nil container is
// ignored.
func SetDefault(c *Container) {
	if c == nil {
		return
	}
	defaultMu.Lock()
	defaultContainer = c
	defaultMu.Unlock()
}

// ResetDefault discards the process-wide container. The next Default call
// creates a fresh one. Primarily for tests.
func ResetDefault() {
	defaultMu.Lock()
	defaultContainer = nil
	defaultMu.Unlock()
}
