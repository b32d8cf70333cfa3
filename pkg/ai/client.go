package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/fedsearch-io/fedsearch-engine/pkg/apperrors"
	"github.com/fedsearch-io/fedsearch-engine/pkg/config"
	"github.com/fedsearch-io/fedsearch-engine/pkg/metrics"
)

const rewriteSystemPrompt = `You are a search query expansion assistant. Given a user's search phrase, produce an expanded full-text search expression that includes synonyms and closely related terms, so a keyword index can match records the literal phrase would miss.

Rules:
- Keep the original intent. Do not broaden into unrelated topics.
- Prefer single words and short phrases over sentences.
- Respond with JSON only, no prose, in this exact shape:
{"rewritten_text": "<expanded expression>", "terms": ["<term>", ...], "confidence": <0.0-1.0>}
- confidence reflects how sure you are the expansion preserves the user's intent.`

// Client rewrites search queries through an OpenAI-compatible endpoint.
// A circuit breaker guards the provider so repeated failures stop adding
// latency to semantic searches.
type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	timeout        time.Duration
	breaker        *CircuitBreaker
	logger         *zap.Logger
}

// NewClient creates an optimizer client from AI configuration. Returns an
// error if the endpoint or model is missing; callers should check
// cfg.IsAvailable() first and pass a nil optimizer to the orchestrator when
// semantic mode is not configured.
func NewClient(cfg config.AIConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("AI endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("AI model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		client:         openai.NewClientWithConfig(clientConfig),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		timeout:        timeout,
		breaker:        NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		logger:         logger.Named("ai"),
	}, nil
}

// Available reports whether the circuit currently admits requests.
func (c *Client) Available() bool {
	return c.breaker.State() != CircuitOpen
}

// OptimizeQuery expands rawText into a richer full-text expression. The call
// is bounded by the configured timeout; on any failure the caller falls back
// to the original text.
func (c *Client) OptimizeQuery(ctx context.Context, rawText string, searchContext string) (*RewriteResult, error) {
	if allowed, err := c.breaker.Allow(); !allowed {
		metrics.AIRewrites.WithLabelValues("circuit_open").Inc()
		return nil, fmt.Errorf("%w: %v", apperrors.ErrAIUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Search phrase: %q", rawText)
	if searchContext != "" {
		prompt += fmt.Sprintf("\nSearch domain: %s", searchContext)
	}

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: rewriteSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		c.breaker.RecordFailure()
		metrics.AIRewrites.WithLabelValues("error").Inc()
		c.logger.Warn("query rewrite failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", apperrors.ErrAIUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		c.breaker.RecordFailure()
		metrics.AIRewrites.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: no choices in response", apperrors.ErrAIUnavailable)
	}

	result, err := parseJSONResponse[RewriteResult](resp.Choices[0].Message.Content)
	if err != nil {
		c.breaker.RecordFailure()
		metrics.AIRewrites.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %v", apperrors.ErrAIUnavailable, err)
	}

	c.breaker.RecordSuccess()

	result.RewrittenText = strings.TrimSpace(result.RewrittenText)
	if result.RewrittenText == "" {
		metrics.AIRewrites.WithLabelValues("empty").Inc()
		return nil, fmt.Errorf("%w: empty rewrite", apperrors.ErrAIUnavailable)
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}

	metrics.AIRewrites.WithLabelValues("success").Inc()
	c.logger.Debug("query rewritten",
		zap.Float64("confidence", result.Confidence),
		zap.Int("terms", len(result.Terms)),
		zap.Duration("elapsed", time.Since(start)))

	return &result, nil
}

// Embed generates an embedding vector for the input text.
func (c *Client) Embed(ctx context.Context, input string) ([]float32, error) {
	model := c.embeddingModel
	if model == "" {
		model = "text-embedding-3-small"
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(model),
		Input: []string{input},
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	return resp.Data[0].Embedding, nil
}
