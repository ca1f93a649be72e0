// Package openai provides an embedding function backed by an
// OpenAI-compatible embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/internal/metrics"
)

// Embedder computes query embeddings via an OpenAI-compatible API.
// It satisfies the embedding function contract; pair it with the
// registry's retry decorator for rate-limit backoff.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	provider   string
	logger     *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Provider   string
	Logger     *zap.Logger
}

// New creates an OpenAI-compatible embedding function.
func New(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		provider:   cfg.Provider,
		logger:     l,
	}
}

// ComputeQueryEmbeddings embeds the query text. Rate-limit responses map
// to domain.ErrRateLimited so callers can apply their retry budget; other
// API failures surface as domain.ErrUpstream.
func (e *Embedder) ComputeQueryEmbeddings(ctx context.Context, queryText string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{queryText},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "error").Inc()
		e.logger.Warn("Embedding request failed",
			zap.String("model", string(e.model)), zap.Error(err))
		return nil, e.classify(err)
	}
	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "error").Inc()
		return nil, fmt.Errorf("%w: empty embedding response", domain.ErrUpstream)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, string(e.model)).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, string(e.model), "prompt").
			Add(float64(resp.Usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, string(e.model), "total").
			Add(float64(resp.Usage.TotalTokens))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (e *Embedder) classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: embedding API returned 429", domain.ErrRateLimited)
	}
	if status != 0 {
		return fmt.Errorf("%w: embedding API error %d: %v", domain.ErrUpstream, status, err)
	}
	return fmt.Errorf("%w: embedding request failed: %v", domain.ErrUpstream, err)
}
