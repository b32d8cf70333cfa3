package search

import (
	"sort"

	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
)

// Merge sorts results from all sources by relevance descending with a
// deterministic tie-break, then applies pagination. Pagination happens
// after the global sort so ranking stays correct across sources.
func Merge(results []models.SearchResult, limit, offset int) ([]models.SearchResult, int) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Less(&results[j])
	})

	total := len(results)

	if offset >= total {
		return []models.SearchResult{}, total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return results[offset:end], total
}
