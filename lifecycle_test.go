package ioc_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwkit/ioc"
)

// recorder appends hook invocations to a shared journal so tests can assert
// exact ordering across components.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	j.entries = append(j.entries, entry)
	j.mu.Unlock()
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

func (j *journal) count(entry string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, e := range j.entries {
		if e == entry {
			n++
		}
	}
	return n
}

type recorder struct {
	name     string
	journal  *journal
	phase    int
	startErr error
	postErr  error
}

func (r *recorder) PostConstruct() error {
	r.journal.add(r.name + ":post-construct")
	return r.postErr
}

func (r *recorder) Start() error {
	r.journal.add(r.name + ":start")
	return r.startErr
}

func (r *recorder) Stop() error {
	r.journal.add(r.name + ":stop")
	return nil
}

func (r *recorder) PreDestroy() error {
	r.journal.add(r.name + ":pre-destroy")
	return nil
}

func (r *recorder) Phase() int {
	return r.phase
}

// ctxRecorder only implements the context-aware hook forms.
type ctxRecorder struct {
	name    string
	journal *journal
}

func (r *ctxRecorder) StartContext(ctx context.Context) error {
	r.journal.add(r.name + ":start-ctx")
	return nil
}

func (r *ctxRecorder) StopContext(ctx context.Context) error {
	r.journal.add(r.name + ":stop-ctx")
	return nil
}

func TestLifecycleManager_Register(t *testing.T) {
	t.Run("rejects empty name and nil instance", func(t *testing.T) {
		t.Parallel()

		m := ioc.NewLifecycleManager()
		assert.ErrorIs(t, m.Register("", &recorder{}), ioc.ErrEmptyName)
		assert.ErrorIs(t, m.Register("a", nil), ioc.ErrNilInstance)
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager()
		require.NoError(t, m.Register("a", &recorder{name: "a", journal: j}))
		assert.ErrorIs(t, m.Register("a", &recorder{name: "a", journal: j}), ioc.ErrAlreadyRegistered)
	})

	t.Run("tracks state and membership", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager()
		require.NoError(t, m.Register("a", &recorder{name: "a", journal: j}))

		state, ok := m.State("a")
		require.True(t, ok)
		assert.Equal(t, ioc.StateRegistered, state)
		assert.Equal(t, []string{"a"}, m.Components())
		assert.Equal(t, 1, m.Count())
		assert.False(t, m.IsStarted("a"))

		assert.True(t, m.Unregister("a"))
		assert.False(t, m.Unregister("a"))
	})
}

func TestLifecycleManager_Order(t *testing.T) {
	t.Run("dependencies start first", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager()
		require.NoError(t, m.Register("a", &recorder{name: "a", journal: j}, ioc.DependsOn("b")))
		require.NoError(t, m.Register("b", &recorder{name: "b", journal: j}))

		order, err := m.Order()
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, order)
	})

	t.Run("phases group the order", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager()
		require.NoError(t, m.Register("late", &recorder{name: "late", journal: j, phase: 10}))
		require.NoError(t, m.Register("early", &recorder{name: "early", journal: j, phase: -10}))
		require.NoError(t, m.Register("mid", &recorder{name: "mid", journal: j}))

		order, err := m.Order()
		require.NoError(t, err)
		assert.Equal(t, []string{"early", "mid", "late"}, order)
	})

	t.Run("dependency edges outrank phases", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager()
		require.NoError(t, m.Register("a", &recorder{name: "a", journal: j, phase: -10}, ioc.DependsOn("b")))
		require.NoError(t, m.Register("b", &recorder{name: "b", journal: j, phase: 10}))

		order, err := m.Order()
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, order)
	})

	t.Run("unknown dependency names are ignored", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager()
		require.NoError(t, m.Register("a", &recorder{name: "a", journal: j}, ioc.DependsOn("never-registered")))

		order, err := m.Order()
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, order)
	})

	t.Run("cycles are reported", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager()
		require.NoError(t, m.Register("a", &recorder{name: "a", journal: j}, ioc.DependsOn("b")))
		require.NoError(t, m.Register("b", &recorder{name: "b", journal: j}, ioc.DependsOn("a")))

		_, err := m.Order()
		require.Error(t, err)

		var cycleErr *ioc.CircularDependencyError
		assert.ErrorAs(t, err, &cycleErr)
	})

	t.Run("WithPhase overrides the Phased implementation", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager()
		require.NoError(t, m.Register("a", &recorder{name: "a", journal: j, phase: 10}, ioc.WithPhase(-10)))
		require.NoError(t, m.Register("b", &recorder{name: "b", journal: j}))

		order, err := m.Order()
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, order)
	})
}

func TestLifecycleManager_StartStop(t *testing.T) {
	t.Run("hooks run in order, shutdown reversed", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager()
		require.NoError(t, m.Register("a", &recorder{name: "a", journal: j}, ioc.DependsOn("b")))
		require.NoError(t, m.Register("b", &recorder{name: "b", journal: j}))

		require.NoError(t, m.Start())
		assert.Equal(t, []string{"b", "a"}, m.Started())
		assert.True(t, m.IsStarted("a"))

		state, _ := m.State("a")
		assert.Equal(t, ioc.StateStarted, state)

		require.NoError(t, m.Stop())
		assert.Empty(t, m.Started())

		assert.Equal(t, []string{
			"b:post-construct", "b:start",
			"a:post-construct", "a:start",
			"a:stop", "a:pre-destroy",
			"b:stop", "b:pre-destroy",
		}, j.all())

		state, _ = m.State("a")
		assert.Equal(t, ioc.StatePreDestroyed, state)
	})

	t.Run("double start fails", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager()
		require.NoError(t, m.Register("a", &recorder{name: "a", journal: j}))

		require.NoError(t, m.Start())
		assert.ErrorIs(t, m.Start(), ioc.ErrAlreadyStarted)
	})

	t.Run("stop without start is a no-op", func(t *testing.T) {
		t.Parallel()

		m := ioc.NewLifecycleManager()
		assert.NoError(t, m.Stop())
	})

	t.Run("restart after stop", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager()
		require.NoError(t, m.Register("a", &recorder{name: "a", journal: j}))

		require.NoError(t, m.Start())
		require.NoError(t, m.Stop())
		require.NoError(t, m.Start())
		assert.True(t, m.IsStarted("a"))
	})
}

func TestLifecycleManager_StartupPolicies(t *testing.T) {
	t.Run("strict aborts before later components", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		boom := errors.New("boom")
		m := ioc.NewLifecycleManager()
		require.NoError(t, m.Register("a", &recorder{name: "a", journal: j}))
		require.NoError(t, m.Register("f", &recorder{name: "f", journal: j, startErr: boom}, ioc.DependsOn("a")))
		require.NoError(t, m.Register("z", &recorder{name: "z", journal: j}, ioc.DependsOn("f")))

		err := m.Start()
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)

		var lcErr ioc.LifecycleError
		require.ErrorAs(t, err, &lcErr)
		assert.Equal(t, "f", lcErr.Component)
		assert.Equal(t, "start", lcErr.Hook)

		assert.NotContains(t, j.all(), "z:post-construct")
		assert.True(t, m.IsStarted("a"))
		assert.False(t, m.IsStarted("f"))

		// Components started before the abort still shut down.
		require.NoError(t, m.Stop())
		assert.Contains(t, j.all(), "a:stop")
	})

	t.Run("retried start after a strict abort does not repeat hooks", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		f := &recorder{name: "f", journal: j, startErr: errors.New("boom")}
		m := ioc.NewLifecycleManager()
		require.NoError(t, m.Register("a", &recorder{name: "a", journal: j}))
		require.NoError(t, m.Register("f", f, ioc.DependsOn("a")))

		require.Error(t, m.Start())
		assert.True(t, m.IsStarted("a"))

		// The failure is resolved and startup retried. The component
		// started by the aborted pass keeps its state.
		f.startErr = nil
		require.NoError(t, m.Start())
		assert.True(t, m.IsStarted("f"))
		assert.Equal(t, 1, j.count("a:start"))
		assert.Equal(t, 1, j.count("a:post-construct"))

		require.NoError(t, m.Stop())
		assert.Equal(t, 1, j.count("a:stop"))
		assert.Equal(t, 1, j.count("a:pre-destroy"))
		assert.Equal(t, 1, j.count("f:stop"))
	})

	t.Run("warn skips the failed component and continues", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager(ioc.WithStartupPolicy(ioc.StartupWarn))
		require.NoError(t, m.Register("f", &recorder{name: "f", journal: j, startErr: errors.New("boom")}))
		require.NoError(t, m.Register("h", &recorder{name: "h", journal: j}))

		require.NoError(t, m.Start())
		assert.False(t, m.IsStarted("f"))
		assert.True(t, m.IsStarted("h"))

		// The failed component never entered the ready set, so shutdown
		// skips it.
		require.NoError(t, m.Stop())
		assert.NotContains(t, j.all(), "f:stop")
		assert.Contains(t, j.all(), "h:stop")
	})

	t.Run("ignore treats the failure as success", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager(ioc.WithStartupPolicy(ioc.StartupIgnore))
		require.NoError(t, m.Register("f", &recorder{name: "f", journal: j, startErr: errors.New("boom")}))

		require.NoError(t, m.Start())
		assert.True(t, m.IsStarted("f"))
	})

	t.Run("post-construct failures follow the same policy", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager(ioc.WithStartupPolicy(ioc.StartupWarn))
		require.NoError(t, m.Register("f", &recorder{name: "f", journal: j, postErr: errors.New("boom")}))

		require.NoError(t, m.Start())
		assert.False(t, m.IsStarted("f"))
		assert.NotContains(t, j.all(), "f:start")
	})
}

func TestLifecycleManager_ContextHooks(t *testing.T) {
	t.Run("context entry point runs context hooks", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager()
		require.NoError(t, m.Register("a", &ctxRecorder{name: "a", journal: j}))

		require.NoError(t, m.StartContext(context.Background()))
		require.NoError(t, m.StopContext(context.Background()))
		assert.Equal(t, []string{"a:start-ctx", "a:stop-ctx"}, j.all())
	})

	t.Run("sync start refuses context-only hooks regardless of policy", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager(ioc.WithStartupPolicy(ioc.StartupIgnore))
		require.NoError(t, m.Register("a", &ctxRecorder{name: "a", journal: j}))

		err := m.Start()
		require.Error(t, err)
		assert.ErrorIs(t, err, ioc.ErrSyncHookOnly)
	})

	t.Run("sync stop reports context-only hooks", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager()
		require.NoError(t, m.Register("a", &ctxRecorder{name: "a", journal: j}))

		require.NoError(t, m.StartContext(context.Background()))
		err := m.Stop()
		require.Error(t, err)
		assert.ErrorIs(t, err, ioc.ErrSyncHookOnly)
	})
}

func TestLifecycleManager_Drain(t *testing.T) {
	t.Run("drain returns once in-flight work finishes", func(t *testing.T) {
		t.Parallel()

		m := ioc.NewLifecycleManager(ioc.WithDrainInterval(time.Millisecond))
		m.InflightAdd()
		assert.Equal(t, int64(1), m.Inflight())

		go func() {
			time.Sleep(10 * time.Millisecond)
			m.InflightDone()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.True(t, m.Drain(ctx))
	})

	t.Run("drain gives up at the deadline", func(t *testing.T) {
		t.Parallel()

		m := ioc.NewLifecycleManager(ioc.WithDrainInterval(time.Millisecond))
		m.InflightAdd()
		defer m.InflightDone()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.False(t, m.Drain(ctx))
	})

	t.Run("shutdown waits for the drain", func(t *testing.T) {
		t.Parallel()

		j := &journal{}
		m := ioc.NewLifecycleManager(
			ioc.WithDrainTimeout(time.Second),
			ioc.WithDrainInterval(time.Millisecond),
		)
		require.NoError(t, m.Register("a", &recorder{name: "a", journal: j}))
		require.NoError(t, m.Start())

		m.InflightAdd()
		done := make(chan struct{})
		go func() {
			time.Sleep(10 * time.Millisecond)
			m.InflightDone()
			close(done)
		}()

		require.NoError(t, m.Stop())
		<-done
		assert.Equal(t, int64(0), m.Inflight())
	})
}
