package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fedsearch-io/fedsearch-engine/pkg/apperrors"
	"github.com/fedsearch-io/fedsearch-engine/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(config.AIConfig{
		Endpoint:       srv.URL + "/v1",
		Model:          "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
		APIKey:         "test-key",
		TimeoutSeconds: 2,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func chatResponse(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func TestOptimizeQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		json.NewEncoder(w).Encode(chatResponse(
			`{"rewritten_text": "golang concurrency goroutines channels", "terms": ["goroutines", "channels"], "confidence": 0.85}`))
	})

	result, err := client.OptimizeQuery(context.Background(), "go concurrency", "")
	require.NoError(t, err)
	assert.Equal(t, "golang concurrency goroutines channels", result.RewrittenText)
	assert.Equal(t, []string{"goroutines", "channels"}, result.Terms)
	assert.InDelta(t, 0.85, result.Confidence, 0.001)
}

func TestOptimizeQueryClampsConfidence(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(chatResponse(
			`{"rewritten_text": "wider", "terms": [], "confidence": 1.7}`))
	})

	result, err := client.OptimizeQuery(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestOptimizeQueryMalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(chatResponse("sorry, I cannot help with that"))
	})

	_, err := client.OptimizeQuery(context.Background(), "q", "")
	assert.ErrorIs(t, err, apperrors.ErrAIUnavailable)
}

func TestOptimizeQueryCircuitOpensAfterRepeatedFailures(t *testing.T) {
	var requests int
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < DefaultCircuitBreakerConfig().Threshold; i++ {
		_, err := client.OptimizeQuery(context.Background(), "q", "")
		assert.ErrorIs(t, err, apperrors.ErrAIUnavailable)
	}
	served := requests

	// Circuit is now open: the next call fails without reaching the server.
	assert.False(t, client.Available())
	_, err := client.OptimizeQuery(context.Background(), "q", "")
	assert.ErrorIs(t, err, apperrors.ErrAIUnavailable)
	assert.Equal(t, served, requests)
}

func TestEmbed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1, -0.2, 0.3}},
			},
		})
	})

	vec, err := client.Embed(context.Background(), "full text search")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, -0.2, 0.3}, vec)
}
