package pool

import "sync"

// Process-wide singleton accessor, kept for callers that want a package-level
// pool instead of threading an explicit *Pool through their own code. Default
// is that thin accessor; New (pool.go) remains the primary, recommended API.
var (
	defaultMu   sync.Mutex
	defaultPool *Pool
)

// Default returns the process-wide pool, constructing it with DefaultCapacity
// and DefaultLimitedCapacity on first call.
func Default() *Pool {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPool == nil {
		defaultPool = New()
	}
	return defaultPool
}

// SetDefault installs p as the process-wide pool, closing and replacing any
// previous one. Intended for tests and for processes that want the
// singleton built from a Config rather than New()'s bare defaults.
func SetDefault(p *Pool) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPool != nil && defaultPool != p {
		_ = defaultPool.Close()
	}
	defaultPool = p
}

// ClosePool shuts down the process-wide pool, if one was constructed, and
// clears the singleton so a later Default() call builds a fresh one.
func ClosePool() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPool == nil {
		return nil
	}
	err := defaultPool.Close()
	defaultPool = nil
	return err
}
