package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Interface is the public façade composing the Classifier, Router,
// Executor, and Merger (spec §4.G). Every public method is total: it
// never panics or returns an error to the caller, reporting failures
// inside the returned QueryResult/AdapterResult instead.
type Interface struct {
	registry    *Registry
	classifier  *Classifier
	router      *Router
	executor    *Executor
	broadcaster *Broadcaster
	log         *logrus.Logger

	defaultMaxItems      int
	defaultDedup         float64
	defaultSearchLimit   int
	includeSlowByDefault bool
	mergeStrategy        MergeStrategy
}

type InterfaceOption func(*Interface)

func WithIncludeSlow(v bool) InterfaceOption {
	return func(i *Interface) { i.includeSlowByDefault = v }
}

func WithMergeStrategy(s MergeStrategy) InterfaceOption {
	return func(i *Interface) { i.mergeStrategy = s }
}

func NewInterface(registry *Registry, classifier *Classifier, router *Router, executor *Executor, broadcaster *Broadcaster, maxItems int, dedupThreshold float64, searchLimit int, log *logrus.Logger, opts ...InterfaceOption) *Interface {
	if log == nil {
		log = logrus.New()
	}
	iface := &Interface{
		registry:           registry,
		classifier:         classifier,
		router:             router,
		executor:           executor,
		broadcaster:        broadcaster,
		log:                log,
		defaultMaxItems:    maxItems,
		defaultDedup:       dedupThreshold,
		defaultSearchLimit: searchLimit,
	}
	for _, o := range opts {
		o(iface)
	}
	return iface
}

// AnySource is the union type spec.md's Design Notes call for at the
// API boundary: callers may pass a bare adapter name, a SourceFilter,
// or (for the handful of call sites that still receive untyped JSON)
// a map, and NormalizeSources converts all three to []SourceFilter
// exactly once at the boundary, per Design Note §9 ("do not accept raw
// mappings internally").
type AnySource interface{}

// NormalizeSources accepts strings, maps, or SourceFilter values
// interchangeably (spec §4.G) and returns one canonical slice.
func NormalizeSources(raw []AnySource) []SourceFilter {
	out := make([]SourceFilter, 0, len(raw))
	for _, r := range raw {
		switch v := r.(type) {
		case string:
			out = append(out, SourceFilter{Name: v})
		case SourceFilter:
			out = append(out, v)
		case *SourceFilter:
			out = append(out, *v)
		case map[string]interface{}:
			out = append(out, sourceFilterFromMap(v))
		}
	}
	return out
}

func sourceFilterFromMap(m map[string]interface{}) SourceFilter {
	sf := SourceFilter{}
	if name, ok := m["name"].(string); ok {
		sf.Name = name
	}
	if project, ok := m["project"].(string); ok {
		sf.Project = project
	}
	if namespace, ok := m["namespace"].(string); ok {
		sf.Namespace = namespace
	}
	if key, ok := m["key"].(string); ok {
		sf.Key = key
	}
	if limit, ok := m["limit"].(int); ok {
		sf.Limit = &limit
	}
	if extra, ok := m["extra"].(map[string]interface{}); ok {
		sf.Extra = extra
	}
	return sf
}

// Query implements spec §4.G's query operation.
func (i *Interface) Query(ctx context.Context, question string, sources []AnySource, includeSlow *bool) (result QueryResult) {
	defer func() {
		if r := recover(); r != nil {
			result = QueryResult{Query: question, Errors: map[string]string{"query": fmt.Sprintf("panic: %v", r)}}
		}
	}()

	queryID := uuid.NewString()
	start := time.Now()
	slow := i.includeSlowByDefault
	if includeSlow != nil {
		slow = *includeSlow
	}

	i.emit(ctx, Event{Type: "query_started", QueryID: queryID, Query: question})

	explicit := NormalizeSources(sources)
	intent, selections := i.router.Route(ctx, question, explicit, CapabilityQuery, slow)
	outcomes := i.executor.Run(ctx, selections, MethodQuery, question)

	merger := NewMerger(i.mergeStrategy, i.defaultMaxItems, i.defaultDedup)
	result = merger.Merge(question, intent, viewsFromExecutor(outcomes))
	result.LatencyMs = float64(time.Since(start).Milliseconds())

	i.emit(ctx, Event{
		Type: "query_completed", QueryID: queryID, Query: question,
		Adapters: result.SourcesQueried, Count: len(result.Items), LatencyMs: result.LatencyMs,
	})
	return result
}

// Search implements spec §4.G's search operation: capability=search,
// a per-source limit default.
func (i *Interface) Search(ctx context.Context, query string, sources []AnySource, limit int) (result QueryResult) {
	defer func() {
		if r := recover(); r != nil {
			result = QueryResult{Query: query, Errors: map[string]string{"search": fmt.Sprintf("panic: %v", r)}}
		}
	}()

	if limit <= 0 {
		limit = i.defaultSearchLimit
	}
	explicit := NormalizeSources(sources)
	for idx := range explicit {
		if explicit[idx].Limit == nil {
			l := limit
			explicit[idx].Limit = &l
		}
	}

	intent, selections := i.router.Route(ctx, query, explicit, CapabilitySearch, i.includeSlowByDefault)
	for idx := range selections {
		if selections[idx].Filter.Limit == nil {
			l := limit
			selections[idx].Filter.Limit = &l
		}
	}
	outcomes := i.executor.Run(ctx, selections, MethodSearch, query)

	merger := NewMerger(i.mergeStrategy, i.defaultMaxItems, i.defaultDedup)
	result = merger.Merge(query, intent, viewsFromExecutor(outcomes))
	return result
}

// Store implements spec §4.G's store operation: routes to one
// adapter.
func (i *Interface) Store(ctx context.Context, key string, value interface{}, source string) AdapterResult {
	if source == "" {
		source = "yaml"
	}
	info, ok := i.registry.Get(source)
	if !ok {
		return AdapterResult{Source: source, Error: "adapter not found"}
	}
	if !info.HasCapability(CapabilityStore) {
		return AdapterResult{Source: source, Error: "store not supported"}
	}
	instance, ok := i.registry.GetInstance(source)
	if !ok {
		return AdapterResult{Source: source, Error: "adapter not found"}
	}
	result, err := instance.Store(ctx, key, value, SourceFilter{Name: source, Key: key})
	if err != nil {
		return AdapterResult{Source: source, Error: err.Error()}
	}
	return result
}

// Learn appends a structured entry via Store to learned/patterns (spec
// §4.G).
func (i *Interface) Learn(ctx context.Context, learning, category string, context_ map[string]interface{}) bool {
	entry := map[string]interface{}{
		"learning": learning,
		"category": category,
		"context":  context_,
	}
	result := i.Store(ctx, "learned/patterns", entry, "yaml")
	return result.Error == ""
}

// HealthCheck implements spec §4.G: mapping name -> HealthStatus.
func (i *Interface) HealthCheck(ctx context.Context) map[string]HealthStatus {
	out := map[string]HealthStatus{}
	for _, info := range i.registry.List() {
		status, err := i.registry.HealthCheck(ctx, info.Name)
		if err != nil {
			status = HealthStatus{Healthy: false, Error: err.Error()}
		}
		out[info.Name] = status
	}
	return out
}

func (i *Interface) emit(ctx context.Context, ev Event) {
	if i.broadcaster == nil {
		return
	}
	i.broadcaster.Publish(ctx, ev)
}
