// Package bedrock provides a Bedrock Titan-backed embedding client.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"golang.org/x/time/rate"

	"github.com/GridwatchAI/gridwatch-mvp/pkg/fn"
	"github.com/GridwatchAI/gridwatch-mvp/pkg/resilience"
)

// DefaultModelID is the Titan text embedding model.
const DefaultModelID = "amazon.titan-embed-text-v2:0"

// InvokeAPI is the slice of the Bedrock runtime client we use.
type InvokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Options configures the embedding client.
type Options struct {
	ModelID    string
	Dimensions int     // 0 uses the model default
	RPS        float64 // requests per second, 0 disables throttling
	Burst      int
}

// EmbedClient calls Bedrock Titan for text embeddings. Calls are throttled
// with a token bucket and guarded by a circuit breaker so a degraded
// endpoint fails fast instead of stalling ingestion.
type EmbedClient struct {
	api     InvokeAPI
	modelID string
	dims    int
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// NewEmbedClient creates a Titan embedding client.
func NewEmbedClient(api InvokeAPI, opts Options) *EmbedClient {
	if opts.ModelID == "" {
		opts.ModelID = DefaultModelID
	}
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &EmbedClient{
		api:     api,
		modelID: opts.ModelID,
		dims:    opts.Dimensions,
		limiter: rate.NewLimiter(limit, opts.Burst),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

type titanEmbedReq struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize"`
}

type titanEmbedResp struct {
	Embedding           []float64 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// EmbedText embeds a single text.
func (c *EmbedClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var out []float32
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		body, err := json.Marshal(titanEmbedReq{
			InputText:  text,
			Dimensions: c.dims,
			Normalize:  true,
		})
		if err != nil {
			return err
		}
		resp, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(c.modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return fmt.Errorf("bedrock invoke: %w", err)
		}
		var result titanEmbedResp
		if err := json.Unmarshal(resp.Body, &result); err != nil {
			return fmt.Errorf("bedrock embed decode: %w", err)
		}
		if len(result.Embedding) == 0 {
			return fmt.Errorf("bedrock embed: empty embedding for model %s", c.modelID)
		}
		out = make([]float32, len(result.Embedding))
		for i, v := range result.Embedding {
			out[i] = float32(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedTexts embeds texts in batches of batchSize, with the texts inside a
// batch embedded concurrently. Results keep the input order.
func (c *EmbedClient) EmbedTexts(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	vectors := make([][]float32, 0, len(texts))
	for _, batch := range fn.Chunk(texts, batchSize) {
		results := fn.ParMapResult(batch, batchSize, func(text string) fn.Result[[]float32] {
			return fn.FromPair(c.EmbedText(ctx, text))
		})
		batchVecs, err := fn.Collect(results).Unwrap()
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		vectors = append(vectors, batchVecs...)
	}
	return vectors, nil
}
