package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockClient classifies queries through AWS Bedrock, for operators
// who want the classifier's external-model path backed by a managed
// model rather than a self-hosted one. Mirrors the teacher's own
// multi-provider pkg/slm (its config_test.go shows a `provider` string
// selecting between backends); "bedrock" is one of that same set of
// provider names here.
type BedrockClient struct {
	runtime *bedrockruntime.Client
	modelID string
	timeout time.Duration
	health  cachedHealth
}

func NewBedrockClient(ctx context.Context, region, modelID string, timeout, healthTTL time.Duration) (*BedrockClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &BedrockClient{
		runtime: bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
		timeout: timeout,
		health:  cachedHealth{ttl: healthTTL},
	}, nil
}

type bedrockInvokeBody struct {
	Prompt            string  `json:"prompt"`
	MaxTokensToSample int     `json:"max_tokens_to_sample"`
	Temperature       float64 `json:"temperature"`
}

func (c *BedrockClient) Classify(ctx context.Context, query string, vocabulary []string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := buildClassificationPrompt(query, vocabulary)
	body, err := json.Marshal(bedrockInvokeBody{Prompt: prompt, MaxTokensToSample: 256, Temperature: 0})
	if err != nil {
		return nil, err
	}

	out, err := c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		c.health.record(false)
		return nil, err
	}
	c.health.record(true)
	return parseJSONResponse(out.Body)
}

func (c *BedrockClient) Unavailable() bool {
	return c.health.unavailable()
}
