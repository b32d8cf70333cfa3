package models

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// SearchMode selects how the search text is interpreted.
type SearchMode string

const (
	// ModeNatural ranks rows by natural-language relevance.
	ModeNatural SearchMode = "natural"
	// ModeBoolean supports +term, -term, quoted phrases and trailing-*
	// wildcards, with implicit OR between bare terms.
	ModeBoolean SearchMode = "boolean"
	// ModeSemantic asks the AI collaborator to rewrite the query, then
	// matches the rewritten text naturally with the original text as a
	// fallback disjunct.
	ModeSemantic SearchMode = "semantic"
)

// Valid reports whether the mode is one of the supported three.
func (m SearchMode) Valid() bool {
	switch m {
	case ModeNatural, ModeBoolean, ModeSemantic:
		return true
	}
	return false
}

// FilterOp is a supported filter predicate operator.
type FilterOp string

const (
	OpEq      FilterOp = "eq"
	OpIn      FilterOp = "in"
	OpGte     FilterOp = "gte"
	OpLte     FilterOp = "lte"
	OpBetween FilterOp = "between"
)

// Filter is an additional predicate ANDed into every statement. Values are
// always bound parameters, never interpolated.
type Filter struct {
	Column string   `json:"column"`
	Op     FilterOp `json:"op"`
	Values []string `json:"values"`
}

// SearchQuery is the logical search request. It is immutable once
// constructed for a request; NormalizedText and the sorted accessors feed
// cache-key derivation.
type SearchQuery struct {
	RawText string      `json:"raw_text"`
	Mode    SearchMode  `json:"mode"`
	Sources []uuid.UUID `json:"sources"`
	Tables  []string    `json:"tables"`
	Columns []string    `json:"columns"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	Filters []Filter    `json:"filters,omitempty"`
}

// NormalizedText returns the lower-cased, whitespace-trimmed search text.
func (q *SearchQuery) NormalizedText() string {
	return strings.ToLower(strings.TrimSpace(q.RawText))
}

// SortedSources returns the source ids in lexical order without mutating
// the query.
func (q *SearchQuery) SortedSources() []string {
	ids := make([]string, len(q.Sources))
	for i, id := range q.Sources {
		ids[i] = id.String()
	}
	sort.Strings(ids)
	return ids
}

// SortedTables returns the table list in lexical order.
func (q *SearchQuery) SortedTables() []string {
	tables := append([]string(nil), q.Tables...)
	sort.Strings(tables)
	return tables
}

// SortedColumns returns the column list in lexical order.
func (q *SearchQuery) SortedColumns() []string {
	cols := append([]string(nil), q.Columns...)
	sort.Strings(cols)
	return cols
}

// SortedFilters returns filters ordered by (column, op, values) so that
// semantically identical requests serialize identically.
func (q *SearchQuery) SortedFilters() []Filter {
	filters := append([]Filter(nil), q.Filters...)
	sort.Slice(filters, func(i, j int) bool {
		if filters[i].Column != filters[j].Column {
			return filters[i].Column < filters[j].Column
		}
		if filters[i].Op != filters[j].Op {
			return filters[i].Op < filters[j].Op
		}
		return strings.Join(filters[i].Values, ",") < strings.Join(filters[j].Values, ",")
	})
	return filters
}

// SearchResult is one normalized row from one source table. Never mutated
// after creation.
type SearchResult struct {
	ID             string         `json:"id"`
	SourceID       uuid.UUID      `json:"source_id"`
	Table          string         `json:"table"`
	MatchedColumns []string       `json:"matched_columns"`
	RelevanceScore float64        `json:"relevance_score"`
	Snippet        string         `json:"snippet"`
	RawRecord      map[string]any `json:"raw_record"`
}

// Less orders results by relevance descending with a stable tie-break on
// (source id, row id) so pagination is deterministic across runs.
func (r *SearchResult) Less(other *SearchResult) bool {
	if r.RelevanceScore != other.RelevanceScore {
		return r.RelevanceScore > other.RelevanceScore
	}
	a, b := r.SourceID.String(), other.SourceID.String()
	if a != b {
		return a < b
	}
	return r.ID < other.ID
}

// SourceFailure records one failed source during fan-out.
type SourceFailure struct {
	SourceID uuid.UUID `json:"source_id"`
	Stage    string    `json:"stage"`
	Reason   string    `json:"reason"` // sanitized, safe to return to callers
}

// SearchResponse is the assembled, read-only response envelope.
type SearchResponse struct {
	Results         []SearchResult  `json:"results"`
	TotalCount      int             `json:"total_count"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	SourcesQueried  []uuid.UUID     `json:"sources_queried"`
	SourcesFailed   []SourceFailure `json:"sources_failed"`
	Cached          bool            `json:"cached"`
}
