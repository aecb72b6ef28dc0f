package models

import (
	"sort"
	"time"
)

// DefaultSearchResults is used when a search request leaves NResults unset.
const DefaultSearchResults = 10

// SearchRequest looks up existing tests related to a query.
type SearchRequest struct {
	Query    string `json:"query" validate:"required,notblank"`
	NResults int    `json:"n_results,omitempty" validate:"gte=0,lte=100"`
}

// Limit returns the requested result count, applying the default.
func (r SearchRequest) Limit() int {
	if r.NResults <= 0 {
		return DefaultSearchResults
	}
	return r.NResults
}

// SearchEntry is one matching test snippet.
type SearchEntry struct {
	SourcePath     string    `json:"source_path"`
	SnippetPreview string    `json:"snippet_preview"`
	RelevanceScore float64   `json:"relevance_score"`
	CapturedAt     time.Time `json:"captured_at"`
}

// SearchResult is returned by the search operation. An empty Results slice
// with Success set means nothing matched.
type SearchResult struct {
	Success bool          `json:"success"`
	Results []SearchEntry `json:"results"`
	Error   string        `json:"error,omitempty"`
	Backend string        `json:"backend,omitempty"`
}

// OK reports whether the search succeeded.
func (r *SearchResult) OK() bool {
	return r != nil && r.Success
}

// SortEntries orders entries by descending relevance, keeping insertion order
// for equal scores.
func SortEntries(entries []SearchEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].RelevanceScore > entries[j].RelevanceScore
	})
}
