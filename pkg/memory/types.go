// Package memory implements the Memory Abstraction Layer: a pluggable
// query engine unifying heterogeneous data sources (local YAML state,
// vector stores, external SaaS APIs) behind one intent-routed, fanned
// out, deduplicated query interface (spec §2 components A-G).
package memory

import "time"

// Capability is one of the three operations a source adapter may
// declare support for.
type Capability string

const (
	CapabilityQuery  Capability = "query"
	CapabilitySearch Capability = "search"
	CapabilityStore  Capability = "store"
)

// LatencyClass determines default inclusion: fast (local) adapters are
// queried by default, slow (external SaaS) adapters require opt-in.
type LatencyClass string

const (
	LatencyFast LatencyClass = "fast"
	LatencySlow LatencyClass = "slow"
)

// SourceFilter is a request to one named adapter (spec §3).
type SourceFilter struct {
	Name      string                 `json:"name" yaml:"name"`
	Project   string                 `json:"project,omitempty" yaml:"project,omitempty"`
	Namespace string                 `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Limit     *int                   `json:"limit,omitempty" yaml:"limit,omitempty"`
	Key       string                 `json:"key,omitempty" yaml:"key,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// MemoryItem is one atomic result (spec §3). Relevance must stay in
// [0,1]; Summary must be nonempty whenever the item represents a find.
type MemoryItem struct {
	Source    string                 `json:"source"`
	Type      string                 `json:"type"`
	Relevance float64                `json:"relevance"`
	Summary   string                 `json:"summary"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp *time.Time             `json:"timestamp,omitempty"`
}

// IntentClassification is the classifier's output (spec §3).
type IntentClassification struct {
	Intent           string   `json:"intent"`
	Confidence       float64  `json:"confidence"`
	SourcesSuggested []string `json:"sources_suggested"`
}

// AdapterResult is one adapter's response to one call (spec §3).
type AdapterResult struct {
	Source    string       `json:"source"`
	Items     []MemoryItem `json:"items"`
	Error     string       `json:"error,omitempty"`
	LatencyMs float64      `json:"latency_ms"`
	found     *bool
}

// Found reports len(items) > 0 unless explicitly overridden by SetFound.
func (r *AdapterResult) Found() bool {
	if r.found != nil {
		return *r.found
	}
	return len(r.Items) > 0
}

func (r *AdapterResult) SetFound(v bool) {
	r.found = &v
}

// QueryResult is the aggregated response of one query/search call
// (spec §3).
type QueryResult struct {
	Query          string            `json:"query"`
	Intent         string            `json:"intent"`
	SourcesQueried []string          `json:"sources_queried"`
	Items          []MemoryItem      `json:"items"`
	TotalCount     int               `json:"total_count"`
	LatencyMs      float64           `json:"latency_ms"`
	Errors         map[string]string `json:"errors,omitempty"`
}

// HealthStatus is the result of an adapter health check (spec §3).
type HealthStatus struct {
	Healthy bool                   `json:"healthy"`
	Error   string                 `json:"error,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// AdapterInfo is a registry record (spec §3 / §4.A).
type AdapterInfo struct {
	Name            string
	DisplayName     string
	Capabilities    map[Capability]bool
	IntentKeywords  []string
	Priority        int
	LatencyClass    LatencyClass
	NewInstance     func() (Adapter, error)
}

func (a *AdapterInfo) HasCapability(c Capability) bool {
	return a.Capabilities != nil && a.Capabilities[c]
}

// MergeStrategy selects the Result Merger's sort order (spec §4.F).
type MergeStrategy string

const (
	StrategyRelevance      MergeStrategy = "relevance"
	StrategyRecency        MergeStrategy = "recency"
	StrategySourcePriority MergeStrategy = "source_priority"
)
