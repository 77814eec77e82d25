package memory

import "context"

// Adapter is the contract every source adapter implements (spec §4.B).
// Implementations must be safe to call concurrently with themselves;
// the Parallel Executor invokes them from multiple goroutines.
type Adapter interface {
	Query(ctx context.Context, question string, filter SourceFilter) (AdapterResult, error)
	Search(ctx context.Context, query string, filter SourceFilter) (AdapterResult, error)
	Store(ctx context.Context, key string, value interface{}, filter SourceFilter) (AdapterResult, error)
	HealthCheck(ctx context.Context) (HealthStatus, error)
}

// BaseAdapter gives adapters a default Search that returns
// ErrNotImplemented (it does not delegate to the embedding adapter's
// Query) and a default Store that fails with "read-only".
// Embed it and override what the adapter actually supports.
type BaseAdapter struct {
	Name string
}

func (b BaseAdapter) Search(ctx context.Context, query string, filter SourceFilter) (AdapterResult, error) {
	return AdapterResult{}, &ErrNotImplemented{Source: b.Name, Method: "search"}
}

func (b BaseAdapter) Store(ctx context.Context, key string, value interface{}, filter SourceFilter) (AdapterResult, error) {
	return AdapterResult{Source: b.Name, Error: "read-only"}, nil
}

// ErrNotImplemented signals an adapter has no meaningful implementation
// for a method its declared capabilities don't include.
type ErrNotImplemented struct {
	Source string
	Method string
}

func (e *ErrNotImplemented) Error() string {
	return "adapter " + e.Source + " does not implement " + e.Method
}
