package shared

import "context"

// Read-model scopes invalidated after committed mutations.
const (
	ScopeStock       = "stock"
	ScopeAllocations = "allocations"
	ScopeSuppliers   = "suppliers"
)

// CacheBumper invalidates cached read models for a scope.
type CacheBumper interface {
	Bump(ctx context.Context, scope string) error
}

// ReadCache serves versioned JSON read models.
type ReadCache interface {
	CacheBumper
	Key(ctx context.Context, scope string, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}
