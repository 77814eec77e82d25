package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/devbackplane/backplane/pkg/metrics"
)

// Method is the adapter operation the Parallel Executor dispatches.
type Method string

const (
	MethodQuery  Method = "query"
	MethodSearch Method = "search"
	MethodStore  Method = "store"
)

// Outcome is one adapter's result from a fan-out call: either a
// successful AdapterResult or a captured error (spec §4.E). The
// executor never throws; every outcome is represented here.
type Outcome struct {
	Result AdapterResult
	Err    error
}

// namedOutcome pairs an outcome with its source name, preserving input
// order in the returned slice (spec §4.E).
type namedOutcome struct {
	Name    string
	Outcome Outcome
}

// Executor is the structured-concurrency fan-out of spec §4.E /
// Design Note §9: it owns all child tasks via an errgroup, enforces a
// global wall-clock deadline across the whole batch, and joins all
// before returning.
type Executor struct {
	registry *Registry
	deadline time.Duration
	log      *logrus.Logger
	metrics  *metrics.Registry
}

func NewExecutor(registry *Registry, deadline time.Duration, log *logrus.Logger) *Executor {
	if log == nil {
		log = logrus.New()
	}
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	return &Executor{registry: registry, deadline: deadline, log: log}
}

// SetMetrics installs an optional Prometheus sink for query latency.
func (e *Executor) SetMetrics(m *metrics.Registry) {
	e.metrics = m
}

// Run invokes method on every selection concurrently and returns
// (name, outcome) pairs in input order. It never returns an error
// itself — per-adapter failures and timeouts live inside each Outcome.
func (e *Executor) Run(ctx context.Context, selections []Selection, method Method, query string) []namedOutcome {
	out := make([]namedOutcome, len(selections))
	ctx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for i, sel := range selections {
		i, sel := i, sel
		g.Go(func() error {
			outcome := e.call(gctx, sel, method, query)
			mu.Lock()
			out[i] = namedOutcome{Name: sel.Info.Name, Outcome: outcome}
			mu.Unlock()
			return nil // never propagate: executor must not throw
		})
	}
	// errgroup.Wait only returns an error if a Go func returns one;
	// ours never do, so the error is always nil here.
	_ = g.Wait()
	return out
}

func (e *Executor) call(ctx context.Context, sel Selection, method Method, query string) Outcome {
	start := time.Now()

	instance, ok := e.registry.GetInstance(sel.Info.Name)
	if !ok {
		return Outcome{Err: &notAvailableError{Name: sel.Info.Name}}
	}

	breaker := e.registry.Breaker(sel.Info.Name)
	invoke := func() (AdapterResult, error) {
		switch method {
		case MethodSearch:
			return instance.Search(ctx, query, sel.Filter)
		case MethodStore:
			return instance.Store(ctx, sel.Filter.Key, query, sel.Filter)
		default:
			return instance.Query(ctx, query, sel.Filter)
		}
	}

	var (
		result AdapterResult
		err    error
	)
	if breaker != nil {
		var v interface{}
		v, err = breaker.Execute(func() (interface{}, error) {
			r, callErr := invoke()
			return r, callErr
		})
		if v != nil {
			result = v.(AdapterResult)
		}
	} else {
		result, err = invoke()
	}

	if e.metrics != nil {
		outcome := "ok"
		if ctx.Err() == context.DeadlineExceeded {
			outcome = "timeout"
		} else if err != nil {
			outcome = "error"
		}
		e.metrics.MemoryQueryDuration.WithLabelValues(sel.Info.Name, outcome).Observe(time.Since(start).Seconds())
	}

	if ctx.Err() == context.DeadlineExceeded {
		return timeoutOutcome(sel.Info.Name).Outcome
	}
	if err != nil {
		return Outcome{Err: err}
	}

	if result.LatencyMs == 0 {
		result.LatencyMs = float64(time.Since(start).Milliseconds())
	}
	result.Source = sel.Info.Name
	return Outcome{Result: result}
}

func timeoutOutcome(name string) namedOutcome {
	return namedOutcome{
		Name: name,
		Outcome: Outcome{
			Err: &timeoutError{Name: name},
		},
	}
}

type timeoutError struct{ Name string }

func (e *timeoutError) Error() string { return "adapter " + e.Name + " exceeded the global deadline" }

type notAvailableError struct{ Name string }

func (e *notAvailableError) Error() string { return "adapter " + e.Name + " instance not available" }
