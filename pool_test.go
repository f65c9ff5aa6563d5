package pool_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pool "github.com/comdata/jrobin"
	"github.com/comdata/jrobin/rrd"
)

func newTestPool(t *testing.T, opts ...pool.Option) *pool.Pool {
	t.Helper()
	p := pool.New(opts...)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func defPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

func mustCreate(t *testing.T, p *pool.Pool, path string) rrd.Handle {
	t.Helper()
	h, err := p.RequestDefinition(context.Background(), rrd.Definition{
		Path: path,
		Step: time.Minute,
	})
	require.NoError(t, err)
	return h
}

// seedFile writes a valid header to path without going through any pool,
// so that a subsequent p.Request(path) is a genuine miss.
func seedFile(t *testing.T, path string) {
	t.Helper()
	h, err := rrd.NewFileFactory().CreateFromDefinition(rrd.Definition{Path: path, Step: time.Minute})
	require.NoError(t, err)
	require.NoError(t, h.Close())
}

func TestPool(t *testing.T) {
	t.Parallel()

	t.Run("basic cache hit", func(t *testing.T) {
		t.Parallel()
		p := newTestPool(t, pool.WithCapacity(10))
		path := defPath(t, "a.rrd")
		seedFile(t, path)

		h1, err := p.Request(context.Background(), path)
		require.NoError(t, err)
		h2, err := p.Request(context.Background(), path)
		require.NoError(t, err)

		require.Same(t, h1, h2)
		require.EqualValues(t, 2, p.Requests())
		require.EqualValues(t, 1, p.Hits())
		require.Equal(t, 1, p.MaxUsedCapacity())
		require.Len(t, p.CachedPaths(), 1)

		require.NoError(t, p.Release(h1))
		require.NoError(t, p.Release(h2))
	})

	t.Run("release and reclaim", func(t *testing.T) {
		t.Parallel()
		p := newTestPool(t, pool.WithCapacity(10))
		path := defPath(t, "a.rrd")

		h := mustCreate(t, p, path)
		require.NoError(t, p.Release(h))

		p.SetCapacity(0)

		require.Eventually(t, func() bool {
			return len(p.CachedPaths()) == 0
		}, time.Second, 5*time.Millisecond)
		require.Eventually(t, h.IsClosed, time.Second, 5*time.Millisecond)
	})

	t.Run("re-create over idle handle", func(t *testing.T) {
		t.Parallel()
		p := newTestPool(t, pool.WithCapacity(10))
		path := defPath(t, "b.rrd")

		h := mustCreate(t, p, path)
		require.NoError(t, p.Release(h))

		h2, err := p.RequestDefinition(context.Background(), rrd.Definition{Path: path, Step: time.Minute})
		require.NoError(t, err)

		require.True(t, h.IsClosed())
		require.NotSame(t, h, h2)
		require.Len(t, p.CachedPaths(), 1)
	})

	t.Run("re-create over live handle rejected", func(t *testing.T) {
		t.Parallel()
		p := newTestPool(t, pool.WithCapacity(10))
		path := defPath(t, "c.rrd")

		h := mustCreate(t, p, path)

		_, err := p.RequestDefinition(context.Background(), rrd.Definition{Path: path, Step: time.Minute})
		require.Error(t, err)

		var perr *pool.Error
		require.ErrorAs(t, err, &perr)
		require.Equal(t, pool.KindInUse, perr.Kind)
		require.False(t, h.IsClosed())
		require.Len(t, p.CachedPaths(), 1)
	})

	t.Run("limited capacity blocks until release", func(t *testing.T) {
		t.Parallel()
		p := newTestPool(t, pool.WithCapacity(1), pool.WithLimitedCapacity(true))

		pathX := defPath(t, "x.rrd")
		pathY := defPath(t, "y.rrd")

		hx := mustCreate(t, p, pathX)

		var blocked atomic.Bool
		blocked.Store(true)
		resultCh := make(chan rrd.Handle, 1)
		errCh := make(chan error, 1)

		go func() {
			h, err := p.RequestDefinition(context.Background(), rrd.Definition{Path: pathY, Step: time.Minute})
			blocked.Store(false)
			if err != nil {
				errCh <- err
				return
			}
			resultCh <- h
		}()

		time.Sleep(50 * time.Millisecond)
		require.True(t, blocked.Load(), "creator should still be waiting for capacity")

		require.NoError(t, p.Release(hx))

		select {
		case h := <-resultCh:
			require.NotNil(t, h)
		case err := <-errCh:
			t.Fatalf("unexpected error: %v", err)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for blocked creator to proceed")
		}
	})

	t.Run("reset closes all handles", func(t *testing.T) {
		t.Parallel()
		p := newTestPool(t, pool.WithCapacity(10))

		var handles []rrd.Handle
		for i := 0; i < 5; i++ {
			h := mustCreate(t, p, defPath(t, "r.rrd"))
			handles = append(handles, h)
			if i%2 == 0 {
				require.NoError(t, p.Release(h))
			}
		}

		require.NoError(t, p.Reset())

		for _, h := range handles {
			require.True(t, h.IsClosed())
		}
		require.Empty(t, p.CachedPaths())
	})

	t.Run("unsupported backend rejected", func(t *testing.T) {
		t.Parallel()
		p := newTestPool(t, pool.WithFactory(rrd.NewMemFactory()))

		_, err := p.Request(context.Background(), "/does/not/matter")
		require.Error(t, err)

		var perr *pool.Error
		require.ErrorAs(t, err, &perr)
		require.Equal(t, pool.KindUnsupportedBackend, perr.Kind)
		require.Empty(t, p.CachedPaths())
	})

	t.Run("release of unknown handle fails NotInPool", func(t *testing.T) {
		t.Parallel()
		p := newTestPool(t, pool.WithCapacity(10))
		other := newTestPool(t, pool.WithCapacity(10))

		h := mustCreate(t, other, defPath(t, "foreign.rrd"))

		err := p.Release(h)
		require.Error(t, err)
		var perr *pool.Error
		require.ErrorAs(t, err, &perr)
		require.Equal(t, pool.KindNotInPool, perr.Kind)
	})

	t.Run("double release fails", func(t *testing.T) {
		t.Parallel()
		p := newTestPool(t, pool.WithCapacity(10))
		h := mustCreate(t, p, defPath(t, "d.rrd"))

		require.NoError(t, p.Release(h))
		err := p.Release(h)
		require.Error(t, err)
	})

	t.Run("interrupted wait returns Interrupted", func(t *testing.T) {
		t.Parallel()
		p := newTestPool(t, pool.WithCapacity(1), pool.WithLimitedCapacity(true))
		_ = mustCreate(t, p, defPath(t, "only.rrd"))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := p.RequestDefinition(ctx, rrd.Definition{Path: defPath(t, "blocked.rrd"), Step: time.Minute})
		require.Error(t, err)
		var perr *pool.Error
		require.ErrorAs(t, err, &perr)
		require.Equal(t, pool.KindInterrupted, perr.Kind)
	})

	t.Run("eviction is FIFO by release order", func(t *testing.T) {
		t.Parallel()
		p := newTestPool(t, pool.WithCapacity(2))

		ha := mustCreate(t, p, defPath(t, "fifo-a.rrd"))
		hb := mustCreate(t, p, defPath(t, "fifo-b.rrd"))

		require.NoError(t, p.Release(ha))
		require.NoError(t, p.Release(hb))

		p.SetCapacity(2) // arm the collector with the table already at capacity
		require.Eventually(t, ha.IsClosed, time.Second, 5*time.Millisecond)
		require.False(t, hb.IsClosed(), "b released after a must not be reclaimed first")
	})

	t.Run("efficiency and invariants hold under mixed use", func(t *testing.T) {
		t.Parallel()
		p := newTestPool(t, pool.WithCapacity(10))

		var wg sync.WaitGroup
		paths := make([]string, 4)
		for i := range paths {
			paths[i] = defPath(t, "m.rrd")
			_ = mustCreate(t, p, paths[i])
		}

		for _, path := range paths {
			path := path
			wg.Add(1)
			go func() {
				defer wg.Done()
				h, err := p.Request(context.Background(), path)
				if err == nil {
					_ = p.Release(h)
				}
			}()
		}
		wg.Wait()

		eff := p.Efficiency()
		require.GreaterOrEqual(t, eff, 0.0)
		require.LessOrEqual(t, eff, 1.0)
		require.LessOrEqual(t, p.Hits(), p.Requests())
		require.GreaterOrEqual(t, p.MaxUsedCapacity(), len(p.CachedPaths()))
	})
}

func TestDefaultSingleton(t *testing.T) {
	t.Cleanup(func() { _ = pool.ClosePool() })

	first := pool.Default()
	require.NotNil(t, first)
	require.Same(t, first, pool.Default(), "Default must return the same pool until replaced")

	path := defPath(t, "singleton.rrd")
	h := mustCreate(t, first, path)
	require.NoError(t, first.Release(h))

	replacement := pool.New(pool.WithCapacity(3))
	pool.SetDefault(replacement)
	require.Same(t, replacement, pool.Default())
	require.Empty(t, first.CachedPaths(), "SetDefault must close the pool it replaces")

	require.NoError(t, pool.ClosePool())
	require.NotSame(t, replacement, pool.Default(), "ClosePool must force a fresh pool on next Default()")
}

func TestPoolDump(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, pool.WithCapacity(10))
	path := defPath(t, "dump.rrd")
	h := mustCreate(t, p, path)
	t.Cleanup(func() { _ = p.Release(h) })

	out := p.Dump(true)
	require.Contains(t, out, "size=1")
	require.Contains(t, out, path)
}
