package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devbackplane/backplane/pkg/metrics"
)

// healthCacheEntry is the per-adapter last-known-healthy memo (spec §4.D,
// §5): TTL 60s, cleared on demand.
type healthCacheEntry struct {
	healthy   bool
	checkedAt time.Time
}

// Router combines explicit filters, classifier output, registry
// capability, and health gating into an ordered adapter selection
// (spec §4.D).
type Router struct {
	registry   *Registry
	classifier *Classifier
	ttl        time.Duration
	log        *logrus.Logger
	metrics    *metrics.Registry

	mu    sync.Mutex
	cache map[string]healthCacheEntry
}

// SetMetrics installs an optional Prometheus sink for adapter health.
func (r *Router) SetMetrics(m *metrics.Registry) {
	r.metrics = m
}

func NewRouter(registry *Registry, classifier *Classifier, ttl time.Duration, log *logrus.Logger) *Router {
	if log == nil {
		log = logrus.New()
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Router{
		registry:   registry,
		classifier: classifier,
		ttl:        ttl,
		log:        log,
		cache:      make(map[string]healthCacheEntry),
	}
}

// Selection is one (adapter, filter) pair the executor will call.
type Selection struct {
	Info   *AdapterInfo
	Filter SourceFilter
}

// Route implements spec §4.D's five-step algorithm.
func (r *Router) Route(ctx context.Context, query string, explicit []SourceFilter, capability Capability, includeSlow bool) (IntentClassification, []Selection) {
	intent := r.classifier.Classify(ctx, query)

	var selections []Selection
	if len(explicit) > 0 {
		selections = r.routeExplicit(ctx, explicit, capability)
	} else {
		selections = r.routeSuggested(ctx, intent, capability, includeSlow)
	}

	sortByPriority(selections)
	return intent, selections
}

func (r *Router) routeExplicit(ctx context.Context, explicit []SourceFilter, capability Capability) []Selection {
	var out []Selection
	for _, filter := range explicit {
		info, ok := r.registry.Get(filter.Name)
		if !ok {
			r.log.WithField("adapter", filter.Name).Warn("explicit source not registered, dropping")
			continue
		}
		if !info.HasCapability(capability) {
			r.log.WithField("adapter", filter.Name).Warn("explicit source lacks capability, dropping")
			continue
		}
		if !r.healthy(ctx, info.Name) {
			r.log.WithField("adapter", filter.Name).Warn("explicit source unhealthy, dropping")
			continue
		}
		out = append(out, Selection{Info: info, Filter: filter})
	}
	return out
}

func (r *Router) routeSuggested(ctx context.Context, intent IntentClassification, capability Capability, includeSlow bool) []Selection {
	names := intent.SourcesSuggested
	if len(names) == 0 {
		for _, info := range r.registry.ListByCapability(capability) {
			names = append(names, info.Name)
		}
	}

	var out []Selection
	for _, name := range names {
		info, ok := r.registry.Get(name)
		if !ok || !info.HasCapability(capability) {
			continue
		}
		if info.LatencyClass == LatencySlow && !includeSlow {
			continue
		}
		if !r.healthy(ctx, name) {
			continue
		}
		out = append(out, Selection{Info: info, Filter: SourceFilter{Name: name}})
	}
	return out
}

// healthy consults the TTL cache, refreshing it with a live health
// check when stale.
func (r *Router) healthy(ctx context.Context, name string) bool {
	r.mu.Lock()
	entry, ok := r.cache[name]
	fresh := ok && time.Since(entry.checkedAt) < r.ttl
	r.mu.Unlock()

	if fresh {
		return entry.healthy
	}

	status, err := r.registry.HealthCheck(ctx, name)
	healthy := err == nil && status.Healthy

	r.mu.Lock()
	r.cache[name] = healthCacheEntry{healthy: healthy, checkedAt: time.Now()}
	r.mu.Unlock()

	if r.metrics != nil {
		v := 0.0
		if healthy {
			v = 1.0
		}
		r.metrics.MemoryAdapterHealthy.WithLabelValues(name).Set(v)
	}

	return healthy
}

// ClearHealthCache drops all cached health entries on demand (spec §4.D).
func (r *Router) ClearHealthCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]healthCacheEntry)
}

func sortByPriority(selections []Selection) {
	// stable insertion sort keeps declaration order on ties, matching
	// spec §4.D step 4 ("ties: declaration order").
	for i := 1; i < len(selections); i++ {
		j := i
		for j > 0 && selections[j-1].Info.Priority < selections[j].Info.Priority {
			selections[j-1], selections[j] = selections[j], selections[j-1]
			j--
		}
	}
}
