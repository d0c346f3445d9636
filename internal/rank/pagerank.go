package rank

import (
	"context"
	"strings"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
	"github.com/tablefill/table-fill/internal/pkg/logger"
	"github.com/tablefill/table-fill/internal/table"
)

// pageRankName is the score key written by the page-rank re-ranker.
const pageRankName = "page_rank_re_ranker"

// HostRankStore looks up the rescaled page rank of a hostname. The second
// return value reports whether the host is known.
type HostRankStore interface {
	PageRank(ctx context.Context, host string) (float64, bool, error)
}

// PageRankReRanker scores evidences by the page rank of the host their
// source table was extracted from.
type PageRankReRanker struct {
	store HostRankStore
	log   *logger.Logger
}

// NewPageRankReRanker creates a source re-ranker backed by a host rank
// store.
func NewPageRankReRanker(store HostRankStore, log *logger.Logger) (*PageRankReRanker, error) {
	if store == nil {
		return nil, apperrors.ValidationError("page rank re-ranker requires a host rank store")
	}
	if log == nil {
		log = logger.Default()
	}

	return &PageRankReRanker{store: store, log: log}, nil
}

func (r *PageRankReRanker) Name() string {
	return pageRankName
}

// ReRankEvidences writes each evidence's host page rank into its score
// map. Unknown hosts and malformed table names score 0; store failures
// propagate.
func (r *PageRankReRanker) ReRankEvidences(ctx context.Context, qt *table.QueryTable, evidences []*table.Evidence) ([]*table.Evidence, error) {
	for _, evidence := range evidences {
		host, err := ExtractHost(evidence.Table)
		if err != nil {
			r.log.WithTable(qt.ID).Warn("cannot derive host from table name",
				"table", evidence.Table)
			evidence.SetScore(pageRankName, 0)
			continue
		}

		rank, ok, err := r.store.PageRank(ctx, host)
		if err != nil {
			return nil, err
		}
		if !ok {
			rank = 0
		}
		evidence.SetScore(pageRankName, rank)
	}

	return evidences, nil
}

// ExtractHost derives the host from a source table name of the form
// <class>_<host>_<crawl> and reverses its segments (marriott.com becomes
// com.marriott), matching the reversed hostnames the rank files are keyed
// by.
func ExtractHost(tableName string) (string, error) {
	parts := strings.Split(tableName, "_")
	if len(parts) != 3 {
		return "", apperrors.ValidationErrorf("table name %q does not follow <class>_<host>_<crawl>", tableName)
	}

	segments := strings.Split(parts[1], ".")
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}

	return strings.Join(segments, "."), nil
}
