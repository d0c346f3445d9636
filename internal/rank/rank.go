// Package rank implements the similarity and source re-rankers that score
// candidate evidences between retrieval and evaluation.
package rank

import (
	"context"
	"strconv"
	"strings"

	"github.com/tablefill/table-fill/internal/table"
)

// ReRanker adds a named score to each evidence. Re-rankers are chained by
// the pipeline; a nil re-ranker is a valid no-op stage.
type ReRanker interface {
	// Name returns the score key this re-ranker writes.
	Name() string

	// ReRankEvidences scores the evidences against the query table and
	// returns them. Implementations mutate the passed evidences.
	ReRankEvidences(ctx context.Context, qt *table.QueryTable, evidences []*table.Evidence) ([]*table.Evidence, error)
}

// contextText renders an evidence context value for string comparison.
// Source-row payloads arrive as decoded JSON, so lists and numbers show up
// as []any and float64.
func contextText(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, contextText(item))
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}
