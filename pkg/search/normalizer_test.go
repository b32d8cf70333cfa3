package search

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
)

func testStatement(sourceID uuid.UUID) Statement {
	return Statement{
		SourceID:     sourceID,
		Table:        "articles",
		MatchColumns: []string{"title", "body"},
		PKColumn:     "id",
	}
}

func TestNormalizeBasic(t *testing.T) {
	sourceID := uuid.New()
	n := NewNormalizer(200, 0.3)
	q := &models.SearchQuery{RawText: "mysql", Mode: models.ModeNatural}

	rows := []map[string]any{
		{"id": int64(7), "title": "MySQL tuning", "body": "a guide", "_fedsearch_score": 1.5},
	}

	results := n.Normalize(rows, testStatement(sourceID), q, -1)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "7", r.ID)
	assert.Equal(t, sourceID, r.SourceID)
	assert.Equal(t, "articles", r.Table)
	assert.Equal(t, []string{"title", "body"}, r.MatchedColumns)
	assert.InDelta(t, 1.5, r.RelevanceScore, 1e-9)
	assert.Equal(t, "MySQL tuning", r.Snippet)

	// The score alias never leaks into the record.
	_, present := r.RawRecord["_fedsearch_score"]
	assert.False(t, present)
	assert.Equal(t, "MySQL tuning", r.RawRecord["title"])
}

func TestNormalizeScoreRepresentations(t *testing.T) {
	n := NewNormalizer(200, 0.3)
	q := &models.SearchQuery{RawText: "x", Mode: models.ModeNatural}
	stmt := testStatement(uuid.New())

	rows := []map[string]any{
		{"id": int64(1), "title": "a", "_fedsearch_score": []byte("2.25")},
		{"id": int64(2), "title": "b", "_fedsearch_score": "1.75"},
		{"id": int64(3), "title": "c", "_fedsearch_score": float32(0.5)},
		{"id": int64(4), "title": "d", "_fedsearch_score": nil},
	}

	results := n.Normalize(rows, stmt, q, -1)
	require.Len(t, results, 4)
	assert.InDelta(t, 2.25, results[0].RelevanceScore, 1e-9)
	assert.InDelta(t, 1.75, results[1].RelevanceScore, 1e-9)
	assert.InDelta(t, 0.5, results[2].RelevanceScore, 1e-6)
	assert.Zero(t, results[3].RelevanceScore)
}

func TestNormalizeSemanticBlend(t *testing.T) {
	n := NewNormalizer(200, 0.3)
	q := &models.SearchQuery{RawText: "mysql", Mode: models.ModeSemantic}
	stmt := testStatement(uuid.New())
	rows := []map[string]any{{"id": int64(1), "title": "mysql", "_fedsearch_score": 2.0}}

	// Full confidence leaves the score untouched.
	results := n.Normalize(rows, stmt, q, 1.0)
	assert.InDelta(t, 2.0, results[0].RelevanceScore, 1e-9)

	// Confidence 0.8 with weight 0.3 scales by 1 - 0.3*0.2 = 0.94.
	results = n.Normalize(rows, stmt, q, 0.8)
	assert.InDelta(t, 1.88, results[0].RelevanceScore, 1e-9)

	// Negative confidence disables blending (fallback path).
	results = n.Normalize(rows, stmt, q, -1)
	assert.InDelta(t, 2.0, results[0].RelevanceScore, 1e-9)
}

func TestNormalizeSnippetWindow(t *testing.T) {
	n := NewNormalizer(60, 0.3)
	q := &models.SearchQuery{RawText: "needle", Mode: models.ModeNatural}
	stmt := testStatement(uuid.New())

	long := strings.Repeat("padding ", 40) + "the needle is here" + strings.Repeat(" trailing", 40)
	rows := []map[string]any{{"id": int64(1), "title": "", "body": long, "_fedsearch_score": 1.0}}

	results := n.Normalize(rows, stmt, q, -1)
	require.Len(t, results, 1)

	snippet := results[0].Snippet
	assert.Contains(t, snippet, "needle")
	assert.LessOrEqual(t, len([]rune(strings.Trim(snippet, "…"))), 60)
	assert.True(t, strings.HasPrefix(snippet, "…"))
	assert.True(t, strings.HasSuffix(snippet, "…"))
}

func TestNormalizeSnippetCaseFoldedLengthChange(t *testing.T) {
	n := NewNormalizer(60, 0.3)
	q := &models.SearchQuery{RawText: "mysql", Mode: models.ModeNatural}
	stmt := testStatement(uuid.New())

	// U+023A lower-cases to U+2C65, which is one byte longer in UTF-8, so
	// byte offsets in the lowered text overrun the original string.
	long := strings.Repeat("Ⱥ", 300) + " mysql performance tuning"
	rows := []map[string]any{{"id": int64(1), "title": "", "body": long, "_fedsearch_score": 1.0}}

	results := n.Normalize(rows, stmt, q, -1)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Snippet, "mysql")
}

func TestNormalizeSnippetFallsBackToHead(t *testing.T) {
	n := NewNormalizer(30, 0.3)
	q := &models.SearchQuery{RawText: "absent", Mode: models.ModeNatural}
	stmt := testStatement(uuid.New())

	rows := []map[string]any{{"id": int64(1), "title": "short title", "body": "no match here", "_fedsearch_score": 1.0}}

	results := n.Normalize(rows, stmt, q, -1)
	assert.Equal(t, "short title", results[0].Snippet)
}

func TestNormalizeRowIDWithoutPrimaryKey(t *testing.T) {
	n := NewNormalizer(200, 0.3)
	q := &models.SearchQuery{RawText: "x", Mode: models.ModeNatural}
	stmt := testStatement(uuid.New())
	stmt.PKColumn = ""

	rows := []map[string]any{{"title": "a", "body": "b", "_fedsearch_score": 1.0}}

	first := n.Normalize(rows, stmt, q, -1)
	second := n.Normalize(rows, stmt, q, -1)
	require.NotEmpty(t, first[0].ID)
	// Content-derived identity is stable across runs.
	assert.Equal(t, first[0].ID, second[0].ID)
}
