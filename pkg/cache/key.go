// Package cache stores merged search responses in Redis with a TTL that
// adapts to result volume and query cost. Cache failures never fail a
// search; every operation degrades to a miss or a no-op.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
)

const (
	// keyPrefix namespaces all cache entries.
	keyPrefix = "fedsearch:results:"
	// sourceIndexPrefix namespaces the per-source key sets used for
	// targeted invalidation.
	sourceIndexPrefix = "fedsearch:srcindex:"
)

// BuildKey derives a deterministic cache key from the canonical form of a
// query. Source, table, column, and filter order do not affect the key;
// text is case-folded and whitespace-collapsed. Limit and offset are part
// of the key because the cached value is the final paginated response.
func BuildKey(q *models.SearchQuery) string {
	h := sha256.New()

	writeField(h, "text", q.NormalizedText())
	writeField(h, "mode", string(q.Mode))

	sources := q.SortedSources()
	ids := make([]string, len(sources))
	for i, s := range sources {
		ids[i] = s
	}
	writeField(h, "sources", strings.Join(ids, ","))
	writeField(h, "tables", strings.Join(q.SortedTables(), ","))
	writeField(h, "columns", strings.Join(q.SortedColumns(), ","))

	for _, f := range q.SortedFilters() {
		writeField(h, "filter", fmt.Sprintf("%s|%s|%s", f.Column, f.Op, strings.Join(f.Values, ",")))
	}

	writeField(h, "limit", fmt.Sprintf("%d", q.Limit))
	writeField(h, "offset", fmt.Sprintf("%d", q.Offset))

	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// SourceIndexKey returns the Redis set that tracks all cache keys whose
// responses include results from the given source.
func SourceIndexKey(sourceID uuid.UUID) string {
	return sourceIndexPrefix + sourceID.String()
}

func writeField(h interface{ Write([]byte) (int, error) }, name, value string) {
	// Length-prefixed fields prevent ambiguity between adjacent values.
	fmt.Fprintf(h, "%s=%d:%s;", name, len(value), value)
}
