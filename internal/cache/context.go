package cache

import "context"

type contextKey struct{}

// WithStore returns a context carrying store as the active cache oracle
// for the duration of the returned context's lifetime. Components that
// need the current store but aren't handed one directly (notably backend
// workers resolving a cache handle purely from context) call StoreFrom.
func WithStore(ctx context.Context, store Oracle) context.Context {
	return context.WithValue(ctx, contextKey{}, store)
}

// StoreFrom returns the cache oracle active on ctx, if any.
func StoreFrom(ctx context.Context) (Oracle, bool) {
	store, ok := ctx.Value(contextKey{}).(Oracle)
	return store, ok
}
