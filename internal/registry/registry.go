// Package registry resolves parallelizable functions by their stable
// cross-process name, adapted from executor.DefaultParserRegistry's
// language->Parser lookup, repurposed to name->*call.Function so a
// backend worker can recover a ParallelizableFunction it was only handed
// the identity string for.
package registry

import (
	"sync"

	"github.com/jpequegn/parallelcache/internal/call"
	pcerrors "github.com/jpequegn/parallelcache/internal/errors"
)

// Registry is a thread-safe name -> *call.Function lookup table.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]*call.Function
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		functions: make(map[string]*call.Function),
	}
}

// Register makes fn resolvable by fn.Name. Registering a second function
// under the same name replaces the first.
func (r *Registry) Register(fn *call.Function) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[fn.Name] = fn
}

// Resolve looks up a function by its stable name. Returns a ContractError
// if no function was registered under that name — the core's invariant
// that every parallelizable function be resolvable by name has been
// violated.
func (r *Registry) Resolve(name string) (*call.Function, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.functions[name]
	if !ok {
		return nil, &pcerrors.ContractError{
			Reason: "no function registered under name " + name,
		}
	}
	return fn, nil
}
