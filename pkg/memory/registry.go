package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

// Registry is the process-wide adapter registry (spec §4.A): a mapping
// name -> AdapterInfo plus a lazily-constructed, memoized instance
// cache. It is mutated only at discovery time and then frozen.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]*AdapterInfo
	instances map[string]Adapter
	breakers  map[string]*gobreaker.CircuitBreaker
	frozen    bool
	group     singleflight.Group
	log       *logrus.Logger
}

func NewRegistry(log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		byName:    make(map[string]*AdapterInfo),
		instances: make(map[string]Adapter),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		log:       log,
	}
}

// Register is idempotent with last-writer-wins, unless the registry is
// frozen: then the registration is logged and ignored. This is the
// spec's recommended semantics for the "repeated registration while
// frozen" open question (see DESIGN.md).
func (r *Registry) Register(info *AdapterInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		r.log.WithField("adapter", info.Name).Warn("registry frozen, ignoring registration")
		return
	}
	if _, exists := r.byName[info.Name]; exists {
		r.log.WithField("adapter", info.Name).Warn("overwriting existing adapter registration")
	}
	r.byName[info.Name] = info
	r.breakers[info.Name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        info.Name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

func (r *Registry) Get(name string) (*AdapterInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byName[name]
	return info, ok
}

func (r *Registry) List() []*AdapterInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*AdapterInfo, 0, len(r.byName))
	for _, info := range r.byName {
		out = append(out, info)
	}
	return out
}

func (r *Registry) ListByCapability(cap Capability) []*AdapterInfo {
	var out []*AdapterInfo
	for _, info := range r.List() {
		if info.HasCapability(cap) {
			out = append(out, info)
		}
	}
	return out
}

func (r *Registry) ListFast() []*AdapterInfo  { return r.listByLatency(LatencyFast) }
func (r *Registry) ListSlow() []*AdapterInfo  { return r.listByLatency(LatencySlow) }

func (r *Registry) listByLatency(class LatencyClass) []*AdapterInfo {
	var out []*AdapterInfo
	for _, info := range r.List() {
		if info.LatencyClass == class {
			out = append(out, info)
		}
	}
	return out
}

// GetInstance lazily constructs the adapter singleton on first use and
// caches it. Concurrent first callers share one construction via
// singleflight. Construction failures are logged and return (nil,
// false); they are not retried automatically (spec §5).
func (r *Registry) GetInstance(name string) (Adapter, bool) {
	r.mu.RLock()
	if inst, ok := r.instances[name]; ok {
		r.mu.RUnlock()
		return inst, true
	}
	info, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	v, err, _ := r.group.Do(name, func() (interface{}, error) {
		return info.NewInstance()
	})
	if err != nil {
		r.log.WithField("adapter", name).WithError(err).Warn("adapter construction failed")
		return nil, false
	}
	inst := v.(Adapter)

	r.mu.Lock()
	r.instances[name] = inst
	r.mu.Unlock()
	return inst, true
}

// Breaker returns the circuit breaker guarding calls to the named
// adapter, or nil if the adapter isn't registered.
func (r *Registry) Breaker(name string) *gobreaker.CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[name]
}

// Freeze disables further registration; used after startup discovery.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Clear resets the registry to empty. Tests only.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]*AdapterInfo)
	r.instances = make(map[string]Adapter)
	r.breakers = make(map[string]*gobreaker.CircuitBreaker)
	r.frozen = false
}

// HealthCheck runs an adapter's HealthCheck through its circuit
// breaker, translating a tripped breaker into an unhealthy status
// rather than propagating gobreaker's own error type.
func (r *Registry) HealthCheck(ctx context.Context, name string) (HealthStatus, error) {
	inst, ok := r.GetInstance(name)
	if !ok {
		return HealthStatus{Healthy: false, Error: "adapter not available"}, nil
	}
	breaker := r.Breaker(name)
	if breaker == nil {
		return inst.HealthCheck(ctx)
	}
	v, err := breaker.Execute(func() (interface{}, error) {
		return inst.HealthCheck(ctx)
	})
	if err != nil {
		return HealthStatus{Healthy: false, Error: err.Error()}, nil
	}
	return v.(HealthStatus), nil
}
