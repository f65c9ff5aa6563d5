package pool

import "context"

// runReclaimer is the background worker that closes idle entries from the
// idle-queue head whenever the table is at or over capacity. It acts only
// when the table itself is at or over capacity — idle entries below capacity are
// retained indefinitely by design; this is a cache, not a timeout-based
// pool.
//
// It owns nothing beyond the shared pool state and exits when ctx is
// cancelled.
func (p *Pool) runReclaimer(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if len(p.table) >= p.capacity && p.idle.len() > 0 {
			e := p.idle.oldest()
			p.idle.remove(e.canonical)
			delete(p.table, e.canonical)

			if err := e.handle.Close(); err != nil {
				p.log.Warn("reclaim: close failed", "path", e.canonical, "err", err)
			} else {
				p.log.Debug("reclaimed idle entry", "path", e.canonical)
			}
			p.cond.Broadcast()
			continue
		}

		if err := p.waitLocked(ctx); err != nil {
			return nil
		}
	}
}
