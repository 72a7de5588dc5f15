package ioc

import "context"

// Disposable is implemented by instances that hold resources needing cleanup
// when their owning scope or container is torn down.
//
// Example:
//
//	type DatabaseConnection struct {
//	    conn *sql.DB
//	}
//
//	func (dc *DatabaseConnection) Close() error {
//	    return dc.conn.Close()
//	}
type Disposable interface {
	// Close disposes the resource.
	Close() error
}

// DisposableWithContext allows disposal with a context for graceful shutdown.
// Implementations should respect context cancellation.
type DisposableWithContext interface {
	// Close disposes the resource with the provided context.
	Close(ctx context.Context) error
}

// dispose invokes the appropriate disposal method on instance, if any.
func dispose(ctx context.Context, instance any) error {
	switch v := instance.(type) {
	case DisposableWithContext:
		return v.Close(ctx)
	case Disposable:
		return v.Close()
	default:
		return nil
	}
}
