package ai

import "context"

// MockOptimizer is a QueryOptimizer for tests. Configure Result or Err to
// control behavior; calls are recorded for assertions.
type MockOptimizer struct {
	Result      *RewriteResult
	Err         error
	Unavailable bool

	Calls []string
}

// OptimizeQuery returns the configured result or error.
func (m *MockOptimizer) OptimizeQuery(_ context.Context, rawText string, _ string) (*RewriteResult, error) {
	m.Calls = append(m.Calls, rawText)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &RewriteResult{RewrittenText: rawText, Confidence: 1.0}, nil
}

// Available reports the inverse of Unavailable.
func (m *MockOptimizer) Available() bool {
	return !m.Unavailable
}
