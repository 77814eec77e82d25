package memory

import (
	"context"
	"regexp"
	"testing"
	"time"
)

type stubAdapter struct {
	BaseAdapter
	items []MemoryItem
}

func (s *stubAdapter) Query(ctx context.Context, question string, filter SourceFilter) (AdapterResult, error) {
	return AdapterResult{Source: s.Name, Items: s.items}, nil
}

func (s *stubAdapter) Store(ctx context.Context, key string, value interface{}, filter SourceFilter) (AdapterResult, error) {
	return AdapterResult{Source: s.Name, Items: []MemoryItem{{Source: s.Name, Summary: "stored"}}}, nil
}

func (s *stubAdapter) HealthCheck(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{Healthy: true}, nil
}

func newTestRegistry(items []MemoryItem) *Registry {
	reg := NewRegistry(nil)
	reg.Register(&AdapterInfo{
		Name:           "yaml",
		Capabilities:   map[Capability]bool{CapabilityQuery: true, CapabilityStore: true, CapabilitySearch: true},
		IntentKeywords: []string{"working on", "current"},
		Priority:       10,
		LatencyClass:   LatencyFast,
		NewInstance: func() (Adapter, error) {
			return &stubAdapter{BaseAdapter: BaseAdapter{Name: "yaml"}, items: items}, nil
		},
	})
	return reg
}

func newTestInterface(reg *Registry) *Interface {
	patterns := []IntentPattern{
		{Intent: "status_check", Patterns: []*regexp.Regexp{regexp.MustCompile(`(?i)working on|current`)}, Sources: []string{"yaml"}, Weight: 1},
	}
	classifier := NewClassifier(reg, nil, patterns, "", nil)
	router := NewRouter(reg, classifier, time.Minute, nil)
	executor := NewExecutor(reg, 5*time.Second, nil)
	return NewInterface(reg, classifier, router, executor, nil, 20, 0.9, 10, nil)
}

func TestInterface_Query_AutoIntentYAMLHit(t *testing.T) {
	reg := newTestRegistry([]MemoryItem{
		{Source: "yaml", Type: "state", Relevance: 0.95, Summary: "1 active issue", Content: "AAP-1: In Progress (branch feat/aap-1)"},
	})
	iface := newTestInterface(reg)

	result := iface.Query(context.Background(), "What am I working on?", nil, nil)

	if result.Intent != "status_check" {
		t.Errorf("expected status_check intent, got %q", result.Intent)
	}
	if len(result.SourcesQueried) != 1 || result.SourcesQueried[0] != "yaml" {
		t.Errorf("expected sources_queried=[yaml], got %v", result.SourcesQueried)
	}
	if len(result.Items) != 1 || result.Items[0].Source != "yaml" {
		t.Fatalf("expected one yaml item, got %+v", result.Items)
	}
}

func TestInterface_Store_RoutesToNamedAdapter(t *testing.T) {
	reg := newTestRegistry(nil)
	iface := newTestInterface(reg)

	result := iface.Store(context.Background(), "learned/patterns", map[string]interface{}{"a": 1}, "yaml")
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if len(result.Items) != 1 || result.Items[0].Summary != "stored" {
		t.Errorf("unexpected store result: %+v", result)
	}
}

func TestInterface_Store_AdapterNotFound(t *testing.T) {
	reg := newTestRegistry(nil)
	iface := newTestInterface(reg)

	result := iface.Store(context.Background(), "k", "v", "nope")
	if result.Error != "adapter not found" {
		t.Errorf("expected adapter not found error, got %q", result.Error)
	}
}

func TestInterface_Learn_AppendsViaStore(t *testing.T) {
	reg := newTestRegistry(nil)
	iface := newTestInterface(reg)

	ok := iface.Learn(context.Background(), "retry with backoff", "infra", nil)
	if !ok {
		t.Errorf("expected Learn to succeed")
	}
}

func TestInterface_HealthCheck(t *testing.T) {
	reg := newTestRegistry(nil)
	iface := newTestInterface(reg)

	statuses := iface.HealthCheck(context.Background())
	status, ok := statuses["yaml"]
	if !ok || !status.Healthy {
		t.Errorf("expected yaml healthy, got %+v", statuses)
	}
}

func TestNormalizeSources_AcceptsMixedTypes(t *testing.T) {
	limit := 5
	raw := []AnySource{
		"yaml",
		SourceFilter{Name: "jira", Project: "AAP"},
		map[string]interface{}{"name": "gitlab", "limit": limit},
	}
	out := NormalizeSources(raw)
	if len(out) != 3 {
		t.Fatalf("expected 3 filters, got %d", len(out))
	}
	if out[0].Name != "yaml" || out[1].Name != "jira" || out[2].Name != "gitlab" {
		t.Errorf("unexpected filters: %+v", out)
	}
	if out[2].Limit == nil || *out[2].Limit != 5 {
		t.Errorf("expected limit 5 from map, got %+v", out[2].Limit)
	}
}
