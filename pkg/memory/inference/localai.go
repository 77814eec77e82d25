package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// LocalAIClient talks to the "optional local inference endpoint" of
// spec §6: HTTP POST {model, prompt, format="json", options} returning
// a JSON body with at least intent/confidence/sources. Always
// available when an endpoint URL is configured; this is the default
// provider.
type LocalAIClient struct {
	endpoint string
	model    string
	timeout  time.Duration
	http     *http.Client
	health   cachedHealth
}

func NewLocalAIClient(endpoint, model string, timeout, healthTTL time.Duration) *LocalAIClient {
	return &LocalAIClient{
		endpoint: endpoint,
		model:    model,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
		health:   cachedHealth{ttl: healthTTL},
	}
}

type localAIRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Format  string                 `json:"format"`
	Options map[string]interface{} `json:"options,omitempty"`
}

func (c *LocalAIClient) Classify(ctx context.Context, query string, vocabulary []string) (*Response, error) {
	prompt := buildClassificationPrompt(query, vocabulary)
	body, err := json.Marshal(localAIRequest{Model: c.model, Prompt: prompt, Format: "json"})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.health.record(false)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.health.record(false)
		return nil, fmt.Errorf("inference endpoint returned %d", resp.StatusCode)
	}

	var raw bytes.Buffer
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		c.health.record(false)
		return nil, err
	}

	parsed, err := parseJSONResponse(raw.Bytes())
	if err != nil {
		c.health.record(false)
		return nil, err
	}
	c.health.record(true)
	return parsed, nil
}

func (c *LocalAIClient) Unavailable() bool {
	return c.health.unavailable()
}

func buildClassificationPrompt(query string, vocabulary []string) string {
	return fmt.Sprintf(
		"Classify the following query into one of these intents: %v. "+
			"Respond with JSON {\"intent\":..,\"confidence\":..,\"sources\":[..]}. Query: %q",
		vocabulary, query,
	)
}
