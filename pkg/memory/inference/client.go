// Package inference implements the Intent Classifier's pluggable
// "external model path" (spec §4.C-1): a small local inference
// endpoint, or a hosted LLM, asked to return {intent, confidence,
// sources} for a free-text query. Three providers share one interface,
// mirroring the teacher's own pkg/slm provider-by-config-string design
// (internal/config/config_test.go decodes a `provider: "localai"`
// field the same way InferenceConfig.Provider does here).
package inference

import (
	"context"
	"encoding/json"
	"time"
)

// Response is the structured reply every provider must normalize to.
type Response struct {
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`
}

// Client is implemented by each provider backend.
type Client interface {
	Classify(ctx context.Context, query string, vocabulary []string) (*Response, error)
	// Unavailable reports true only when the endpoint's cached health
	// (populated by the outcome of the last Classify call, TTL-bounded)
	// is known bad; the classifier must skip this path in that case
	// (spec §4.C-1 "skipped when known-unavailable, cached health <=
	// 30s"). A cold/expired cache is NOT "known unavailable" — it
	// returns false so the classifier still attempts the call.
	Unavailable() bool
}

// parseJSONResponse is shared by providers that get raw JSON text back
// from a chat-completion-shaped API.
func parseJSONResponse(raw []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// cachedHealth is a tiny TTL memo shared by providers whose health
// check is "did the last call succeed recently", avoiding a live probe
// on every classification attempt.
type cachedHealth struct {
	ok       bool
	checked  time.Time
	ttl      time.Duration
}

func (c *cachedHealth) fresh() bool {
	return !c.checked.IsZero() && time.Since(c.checked) < c.ttl
}

func (c *cachedHealth) record(ok bool) {
	c.ok = ok
	c.checked = time.Now()
}

// unavailable reports true only when the cache is fresh and the last
// outcome was a failure.
func (c *cachedHealth) unavailable() bool {
	return c.fresh() && !c.ok
}
