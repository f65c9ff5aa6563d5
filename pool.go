// Package pool implements a reference-counted pool of open round-robin
// database (RRD) file handles shared across concurrent workers. Opening a
// handle is expensive; the pool amortises that cost by holding handles
// across request cycles and reclaiming them lazily through a background
// collector once the table grows past capacity.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/comdata/jrobin/rrd"
)

// DefaultCapacity and DefaultLimitedCapacity are the out-of-the-box settings
// a Pool starts with when no Option overrides them.
const (
	DefaultCapacity        = 500
	DefaultLimitedCapacity = false
)

// Pool is a reference-counted table of open rrd.Handle values, keyed by
// canonical path, with FIFO idle-queue reclamation. The zero value is not
// usable; construct with New.
//
// A *Pool must not be copied after first use — it embeds a sync.Mutex and
// the condition variable associated with it.
type Pool struct {
	id  uuid.UUID
	log *slog.Logger

	mu   sync.Mutex
	cond *sync.Cond

	table map[string]*entry
	idle  *idleQueue

	capacity        int
	limitedCapacity bool
	maxUsedCapacity int
	hits            uint64
	requests        uint64

	factory     rrd.Factory
	factoryOnce sync.Once
	factoryErr  error

	cancel    context.CancelFunc
	group     *errgroup.Group
	closeOnce sync.Once
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(p *Pool) { p.capacity = n }
}

// WithLimitedCapacity overrides DefaultLimitedCapacity.
func WithLimitedCapacity(b bool) Option {
	return func(p *Pool) { p.limitedCapacity = b }
}

// WithFactory injects a factory in place of rrd.DefaultFactory(). Mostly
// useful in tests, e.g. to exercise the UnsupportedBackend path with
// rrd.NewMemFactory().
func WithFactory(f rrd.Factory) Option {
	return func(p *Pool) { p.factory = f }
}

// WithLogger overrides the pool's logger, which otherwise defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// New constructs a Pool and starts its background reclamation worker. The
// worker is a daemon goroutine that runs for the lifetime of the Pool; call
// Close to stop it and release every held handle.
func New(opts ...Option) *Pool {
	p := &Pool{
		id:              uuid.New(),
		log:             slog.Default(),
		table:           make(map[string]*entry),
		idle:            newIdleQueue(),
		capacity:        DefaultCapacity,
		limitedCapacity: DefaultLimitedCapacity,
	}
	p.cond = sync.NewCond(&p.mu)

	for _, opt := range opts {
		opt(p)
	}

	p.log = p.log.With("pool_id", p.id.String())

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	group, gctx := errgroup.WithContext(ctx)
	p.group = group
	group.Go(func() error { return p.runReclaimer(gctx) })

	return p
}

func (p *Pool) resolveFactory() (rrd.Factory, error) {
	p.factoryOnce.Do(func() {
		if p.factory == nil {
			p.factory = rrd.DefaultFactory()
		}
		if p.factory.Kind() != rrd.FileBacked {
			p.factoryErr = newErr(KindUnsupportedBackend, "", "default factory is not file-backed", nil)
		}
	})
	return p.factory, p.factoryErr
}

// waitLocked blocks on the pool's condition until woken, returning early
// with ctx.Err() if ctx is cancelled first. Must be called with p.mu held;
// it is released for the duration of the wait and re-acquired before
// returning, per sync.Cond.Wait's contract.
func (p *Pool) waitLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, p.cond.Broadcast)
	defer stop()
	p.cond.Wait()
	return ctx.Err()
}

// Request looks up path in the table, bumping usage on a hit and opening a
// fresh handle via the factory on a miss.
func (p *Pool) Request(ctx context.Context, path string) (rrd.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++

	canonical, err := canonicalise(path)
	if err != nil {
		return nil, err
	}

	for {
		if e, ok := p.table[canonical]; ok {
			wasIdle := e.usage == 0
			e.acquire()
			if wasIdle {
				p.idle.remove(canonical)
			}
			p.hits++
			p.cond.Broadcast()
			p.log.Debug("request hit", "path", canonical, "usage", e.usage)
			return e.handle, nil
		}

		if !p.limitedCapacity || len(p.table) < p.capacity {
			factory, ferr := p.resolveFactory()
			if ferr != nil {
				return nil, ferr
			}
			h, err := factory.OpenExisting(path)
			if err != nil {
				return nil, newErr(KindIO, canonical, "open existing", err)
			}
			p.insertLocked(canonical, h)
			p.log.Debug("request miss, opened", "path", canonical)
			return h, nil
		}

		if err := p.waitLocked(ctx); err != nil {
			return nil, newErr(KindInterrupted, canonical, "interrupted waiting for capacity", err)
		}
	}
}

// RequestXML opens path by importing it fresh from an XML dump, failing if
// a live handle for the same path already exists.
func (p *Pool) RequestXML(ctx context.Context, path, xmlDumpPath string) (rrd.Handle, error) {
	return p.requestNew(ctx, path, func(f rrd.Factory) (rrd.Handle, error) {
		return f.ImportXML(path, xmlDumpPath)
	})
}

// RequestDefinition creates path fresh from a structured Definition, failing
// if a live handle for the same path already exists.
func (p *Pool) RequestDefinition(ctx context.Context, def rrd.Definition) (rrd.Handle, error) {
	return p.requestNew(ctx, def.Path, func(f rrd.Factory) (rrd.Handle, error) {
		return f.CreateFromDefinition(def)
	})
}

func (p *Pool) requestNew(ctx context.Context, path string, open func(rrd.Factory) (rrd.Handle, error)) (rrd.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++

	canonical, err := canonicalise(path)
	if err != nil {
		return nil, err
	}

	for {
		if e, ok := p.table[canonical]; ok {
			if e.usage > 0 {
				return nil, newErr(KindInUse, canonical, "cannot create new file: already in use", nil)
			}
			// Idle: close and remove, then fall through to open a fresh
			// handle under the same key. This shrinks the table, so
			// waiters parked on admission must be woken even if the
			// open below fails.
			p.idle.remove(canonical)
			delete(p.table, canonical)
			if cerr := e.handle.Close(); cerr != nil {
				p.log.Warn("close idle entry before re-create", "path", canonical, "err", cerr)
			}
			p.cond.Broadcast()
		}

		if !p.limitedCapacity || len(p.table) < p.capacity {
			factory, ferr := p.resolveFactory()
			if ferr != nil {
				return nil, ferr
			}
			h, err := open(factory)
			if err != nil {
				return nil, newErr(KindIO, canonical, "create", err)
			}
			p.insertLocked(canonical, h)
			p.log.Debug("created new entry", "path", canonical)
			return h, nil
		}

		if err := p.waitLocked(ctx); err != nil {
			return nil, newErr(KindInterrupted, canonical, "interrupted waiting for capacity", err)
		}
	}
}

// insertLocked inserts a freshly opened handle, updates the high-water
// mark, and broadcasts — must be called with p.mu held.
func (p *Pool) insertLocked(canonical string, h rrd.Handle) {
	p.table[canonical] = newEntry(canonical, h)
	if len(p.table) > p.maxUsedCapacity {
		p.maxUsedCapacity = len(p.table)
	}
	p.cond.Broadcast()
}

// Release gives back a handle obtained from Request, RequestXML, or
// RequestDefinition. Releasing a nil handle is a no-op; releasing a handle
// twice without an intervening request fails with NotInPool or
// AlreadyClosed.
func (p *Pool) Release(handle rrd.Handle) error {
	if handle == nil {
		return nil
	}
	if handle.IsClosed() {
		return newErr(KindAlreadyClosed, handle.Path(), "handle already closed", nil)
	}

	canonical, err := canonicalise(handle.Path())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.table[canonical]
	if !ok {
		return newErr(KindNotInPool, canonical, "handle not issued by this pool", nil)
	}
	if e.usage == 0 {
		return newErr(KindNotInPool, canonical, "handle already released", nil)
	}

	if e.release() {
		p.idle.push(e)
		p.log.Debug("release, now idle", "path", canonical)
	} else {
		p.log.Debug("release", "path", canonical, "usage", e.usage)
	}
	p.cond.Broadcast()
	return nil
}

// Reset closes every open handle and clears the table and idle queue,
// leaving counters untouched. Every close error is collected via
// errors.Join (see DESIGN.md), not just the first.
func (p *Pool) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetLocked()
}

func (p *Pool) resetLocked() error {
	var errs []error
	for path, e := range p.table {
		if err := e.handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
	}
	p.table = make(map[string]*entry)
	p.idle = newIdleQueue()
	p.cond.Broadcast()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Close stops the background reclamation worker and reclaims every entry
// still held. It is safe to call more than once.
func (p *Pool) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		_ = p.group.Wait()
		err = p.Reset()
		p.log.Info("pool closed")
	})
	return err
}

// Capacity returns the soft threshold that arms the collector.
func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// SetCapacity changes the soft threshold at runtime and wakes waiters, so a
// lowered capacity can immediately arm the collector.
func (p *Pool) SetCapacity(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capacity = n
	p.cond.Broadcast()
}

// LimitedCapacity reports whether capacity is enforced as a hard ceiling.
func (p *Pool) LimitedCapacity() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limitedCapacity
}

// SetLimitedCapacity toggles hard-ceiling back-pressure.
func (p *Pool) SetLimitedCapacity(b bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limitedCapacity = b
	p.cond.Broadcast()
}

// String implements fmt.Stringer with a short, log-friendly identifier.
func (p *Pool) String() string {
	return fmt.Sprintf("pool[%s]", p.id.String())
}
