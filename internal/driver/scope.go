package driver

import (
	"sync"

	"github.com/jpequegn/parallelcache/internal/backend"
	"github.com/jpequegn/parallelcache/internal/cache"
	pcerrors "github.com/jpequegn/parallelcache/internal/errors"
)

// globalMu and active implement the process-wide "active driver" slot: at
// most one driver is active per process at any time, so Call can discover
// the current mode without threading a context through every call site.
var (
	globalMu sync.Mutex
	active   *Driver
)

// Scope acquires the process-wide active-driver slot and returns a new
// Driver plus a closer the caller must defer. Nested scopes are rejected
// with ErrNestedScope to avoid ambiguous batch attribution.
func Scope(b backend.Backend, oracle cache.Oracle, opts ...Option) (*Driver, func(), error) {
	if b == nil {
		return nil, nil, &pcerrors.ConfigurationError{Reason: "driver scope requires a backend"}
	}
	if oracle == nil {
		return nil, nil, &pcerrors.ConfigurationError{Reason: "driver scope requires a cache oracle"}
	}

	globalMu.Lock()
	defer globalMu.Unlock()

	if active != nil {
		return nil, nil, pcerrors.ErrNestedScope
	}

	d := New(b, oracle, opts...)
	active = d

	var once sync.Once
	closer := func() {
		once.Do(func() {
			globalMu.Lock()
			defer globalMu.Unlock()
			if active == d {
				active = nil
			}
		})
	}

	return d, closer, nil
}

// activeDriver returns the process's currently scoped driver, or nil if
// none is active.
func activeDriver() *Driver {
	globalMu.Lock()
	defer globalMu.Unlock()
	return active
}
