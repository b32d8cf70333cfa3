package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
)

// Normalizer maps raw rows into uniform SearchResult values with provenance
// and a relevance score.
type Normalizer struct {
	snippetLength int
	blendWeight   float64
}

// NewNormalizer creates a normalizer. snippetLength bounds extracted
// snippets; blendWeight in [0,1] controls how much the AI confidence
// influences semantic-mode scores.
func NewNormalizer(snippetLength int, blendWeight float64) *Normalizer {
	if snippetLength <= 0 {
		snippetLength = 200
	}
	return &Normalizer{snippetLength: snippetLength, blendWeight: blendWeight}
}

// Normalize converts the raw rows of one statement execution into results.
// For semantic mode, confidence is the optimizer's self-reported confidence
// and scales the full-text score by the configured blend weight; pass a
// negative confidence to skip blending.
func (n *Normalizer) Normalize(rows []map[string]any, stmt Statement, q *models.SearchQuery, confidence float64) []models.SearchResult {
	results := make([]models.SearchResult, 0, len(rows))
	terms := searchTerms(q.NormalizedText())

	for _, row := range rows {
		score := extractScore(row[scoreColumn])
		if q.Mode == models.ModeSemantic && confidence >= 0 {
			score = score * (1 - n.blendWeight*(1-confidence))
		}

		record := make(map[string]any, len(row))
		for k, v := range row {
			if k == scoreColumn {
				continue
			}
			record[k] = v
		}

		results = append(results, models.SearchResult{
			ID:             rowID(record, stmt.PKColumn),
			SourceID:       stmt.SourceID,
			Table:          stmt.Table,
			MatchedColumns: stmt.MatchColumns,
			RelevanceScore: score,
			Snippet:        n.snippet(record, stmt.MatchColumns, terms),
			RawRecord:      record,
		})
	}
	return results
}

// extractScore tolerates the driver's numeric representations: the MATCH
// score arrives as float64 or, depending on connection settings, as text.
func extractScore(v any) float64 {
	switch s := v.(type) {
	case float64:
		return s
	case float32:
		return float64(s)
	case int64:
		return float64(s)
	case []byte:
		f, err := strconv.ParseFloat(string(s), 64)
		if err == nil {
			return f
		}
	case string:
		f, err := strconv.ParseFloat(s, 64)
		if err == nil {
			return f
		}
	}
	return 0
}

// rowID prefers the table's primary key; rows without one get a
// deterministic digest of the record content so identity is stable across
// repeated runs.
func rowID(record map[string]any, pkColumn string) string {
	if pkColumn != "" {
		if v, ok := record[pkColumn]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
	}

	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v;", k, record[k])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// snippet extracts a window from the first matched column that contains a
// search term. Falls back to the head of the first non-empty matched column
// when no term offset is found.
func (n *Normalizer) snippet(record map[string]any, matchedColumns []string, terms []string) string {
	for _, col := range matchedColumns {
		text, ok := record[col].(string)
		if !ok || text == "" {
			continue
		}

		offset := firstMatchRune(text, terms)
		if offset >= 0 {
			return n.window(text, offset)
		}
	}

	for _, col := range matchedColumns {
		if text, ok := record[col].(string); ok && text != "" {
			return n.window(text, 0)
		}
	}
	return ""
}

// firstMatchRune returns the rune offset of the earliest term match, or -1.
// Matching happens in the lower-cased text, whose byte length can differ
// from the original; the rune count is identical, so the byte index is
// converted to a rune offset before it touches the original string.
func firstMatchRune(text string, terms []string) int {
	lower := strings.ToLower(text)
	best := -1
	for _, term := range terms {
		if idx := strings.Index(lower, term); idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	if best < 0 {
		return -1
	}
	return len([]rune(lower[:best]))
}

// window returns up to snippetLength runes around runeOffset, preferring
// to start a little before the match so it reads in context.
func (n *Normalizer) window(text string, runeOffset int) string {
	runes := []rune(text)
	if len(runes) <= n.snippetLength {
		return text
	}
	if runeOffset > len(runes) {
		runeOffset = len(runes)
	}

	start := runeOffset - n.snippetLength/4
	if start < 0 {
		start = 0
	}
	end := start + n.snippetLength
	if end > len(runes) {
		end = len(runes)
		start = end - n.snippetLength
	}

	out := string(runes[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}

// searchTerms splits normalized query text into match candidates, dropping
// boolean operators and wildcards so offsets land on real words.
func searchTerms(normalized string) []string {
	fields := strings.Fields(normalized)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `+-*"()~<>`)
		if f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}
