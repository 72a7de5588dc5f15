package ioc_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwkit/ioc"
)

type closableService struct {
	name   string
	closed bool
}

func (c *closableService) Close() error {
	c.closed = true
	return nil
}

func TestSingletonScope(t *testing.T) {
	t.Run("constructs once per key", func(t *testing.T) {
		t.Parallel()

		scope := ioc.NewSingletonScope()
		calls := 0
		factory := func() (any, error) {
			calls++
			return &fakeService{}, nil
		}

		first, err := scope.Get(context.Background(), "a", factory)
		require.NoError(t, err)
		second, err := scope.Get(context.Background(), "a", factory)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, calls)
	})

	t.Run("distinct keys get distinct instances", func(t *testing.T) {
		t.Parallel()

		scope := ioc.NewSingletonScope()
		factory := func() (any, error) { return &fakeService{}, nil }

		a, _ := scope.Get(context.Background(), "a", factory)
		b, _ := scope.Get(context.Background(), "b", factory)
		assert.NotSame(t, a, b)
	})

	t.Run("concurrent first access constructs once", func(t *testing.T) {
		t.Parallel()

		scope := ioc.NewSingletonScope()
		var calls int
		var callMu sync.Mutex
		factory := func() (any, error) {
			callMu.Lock()
			calls++
			callMu.Unlock()
			return &fakeService{}, nil
		}

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := scope.Get(context.Background(), "shared", factory)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, calls)
	})

	t.Run("caches factory errors until removed", func(t *testing.T) {
		t.Parallel()

		scope := ioc.NewSingletonScope()
		boom := errors.New("boom")
		calls := 0
		failing := func() (any, error) {
			calls++
			return nil, boom
		}

		_, err := scope.Get(context.Background(), "a", failing)
		assert.ErrorIs(t, err, boom)

		_, err = scope.Get(context.Background(), "a", failing)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)

		assert.True(t, scope.Remove("a"))
		got, err := scope.Get(context.Background(), "a", func() (any, error) {
			return &fakeService{}, nil
		})
		require.NoError(t, err)
		assert.NotNil(t, got)
	})

	t.Run("clear disposes instances", func(t *testing.T) {
		t.Parallel()

		scope := ioc.NewSingletonScope()
		svc := &closableService{name: "db"}
		_, err := scope.Get(context.Background(), "db", func() (any, error) { return svc, nil })
		require.NoError(t, err)

		scope.Clear()
		assert.True(t, svc.closed)

		calls := 0
		_, err = scope.Get(context.Background(), "db", func() (any, error) {
			calls++
			return &fakeService{}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestTransientScope(t *testing.T) {
	t.Parallel()

	scope := ioc.NewTransientScope()
	calls := 0
	factory := func() (any, error) {
		calls++
		return &fakeService{}, nil
	}

	a, _ := scope.Get(context.Background(), "x", factory)
	b, _ := scope.Get(context.Background(), "x", factory)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, calls)
	assert.False(t, scope.Remove("x"))
}

func TestRequestScope(t *testing.T) {
	t.Run("requires an active request context", func(t *testing.T) {
		t.Parallel()

		scope := ioc.NewRequestScope()
		_, err := scope.Get(context.Background(), "svc", func() (any, error) {
			return &fakeService{}, nil
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, ioc.ErrNoRequestContext)
	})

	t.Run("one instance per key per request", func(t *testing.T) {
		t.Parallel()

		scope := ioc.NewRequestScope()
		rc := ioc.NewRequestContext()
		ctx := ioc.WithRequestContext(context.Background(), rc)

		calls := 0
		factory := func() (any, error) {
			calls++
			return &fakeService{}, nil
		}

		first, err := scope.Get(ctx, "svc", factory)
		require.NoError(t, err)
		second, err := scope.Get(ctx, "svc", factory)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, calls)
	})

	t.Run("concurrent requests never share instances", func(t *testing.T) {
		t.Parallel()

		scope := ioc.NewRequestScope()
		calls := 0
		var callMu sync.Mutex
		factory := func() (any, error) {
			callMu.Lock()
			calls++
			callMu.Unlock()
			return &fakeService{}, nil
		}

		var wg sync.WaitGroup
		results := make([]any, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ctx := ioc.WithRequestContext(context.Background(), ioc.NewRequestContext())
				got, err := scope.Get(ctx, "svc", factory)
				assert.NoError(t, err)
				results[i] = got
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 2, calls)
		assert.NotSame(t, results[0], results[1])
	})

	t.Run("request contexts have distinct ids", func(t *testing.T) {
		t.Parallel()

		a := ioc.NewRequestContext()
		b := ioc.NewRequestContext()
		assert.NotEmpty(t, a.ID())
		assert.NotEqual(t, a.ID(), b.ID())
	})

	t.Run("close disposes stored instances", func(t *testing.T) {
		t.Parallel()

		scope := ioc.NewRequestScope()
		rc := ioc.NewRequestContext()
		ctx := ioc.WithRequestContext(context.Background(), rc)

		svc := &closableService{name: "tx"}
		_, err := scope.Get(ctx, "tx", func() (any, error) { return svc, nil })
		require.NoError(t, err)

		require.NoError(t, rc.Close())
		assert.True(t, svc.closed)
	})

	t.Run("remove evicts a single key", func(t *testing.T) {
		t.Parallel()

		scope := ioc.NewRequestScope()
		rc := ioc.NewRequestContext()
		ctx := ioc.WithRequestContext(context.Background(), rc)

		calls := 0
		factory := func() (any, error) {
			calls++
			return &fakeService{}, nil
		}

		_, err := scope.Get(ctx, "svc", factory)
		require.NoError(t, err)
		assert.True(t, rc.Remove("svc"))
		assert.False(t, rc.Remove("svc"))

		_, err = scope.Get(ctx, "svc", factory)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})
}
