// Package ai provides AI-assisted query rewriting for semantic search mode.
// The optimizer expands a raw search phrase into related terms so that
// full-text matching catches records the literal phrase would miss.
package ai

import "context"

// RewriteResult is the outcome of a query rewrite.
type RewriteResult struct {
	// RewrittenText is the expanded search expression.
	RewrittenText string `json:"rewritten_text"`
	// Terms lists the individual expansion terms the model produced.
	Terms []string `json:"terms"`
	// Confidence is the model's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`
}

// QueryOptimizer rewrites search phrases for semantic mode.
type QueryOptimizer interface {
	// OptimizeQuery expands rawText into a richer full-text expression.
	// searchContext describes the tables and columns being searched so the
	// model can bias its expansion toward the domain.
	OptimizeQuery(ctx context.Context, rawText string, searchContext string) (*RewriteResult, error)

	// Available reports whether the optimizer can currently serve requests.
	Available() bool
}

// Embedder generates embedding vectors. Kept separate from QueryOptimizer
// because most deployments only configure the chat model.
type Embedder interface {
	Embed(ctx context.Context, input string) ([]float32, error)
}
