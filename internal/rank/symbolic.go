package rank

import (
	"context"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
	"github.com/tablefill/table-fill/internal/pkg/logger"
	"github.com/tablefill/table-fill/internal/similarity"
	"github.com/tablefill/table-fill/internal/table"
)

// Similarity measures accepted by the symbolic re-ranker.
const (
	MeasureStringSimilarity = "string_similarity"
	MeasureJaccard          = "jaccard"
	MeasureLevenshtein      = "levenshtein"
	MeasureContainment      = "containment"
)

// SymbolicReRanker scores an evidence by comparing its source-row context
// against the query-table row, attribute by attribute, with a symbolic
// string measure. The score is the mean over the compared attributes.
type SymbolicReRanker struct {
	measure           string
	contextAttributes []string
	compare           func(a, b string) float64
	log               *logger.Logger
}

// NewSymbolicReRanker creates a symbolic re-ranker. An empty attribute
// list compares every context attribute of the query table.
func NewSymbolicReRanker(measure string, contextAttributes []string, log *logger.Logger) (*SymbolicReRanker, error) {
	if log == nil {
		log = logger.Default()
	}

	var compare func(a, b string) float64
	switch measure {
	case MeasureStringSimilarity:
		compare = similarity.StringSimilarity
	case MeasureJaccard:
		compare = similarity.JaccardSimilarity
	case MeasureLevenshtein:
		compare = similarity.LevenshteinSimilarity
	case MeasureContainment:
		compare = func(a, b string) float64 {
			if similarity.StringContainment(a, b) {
				return 1
			}
			return 0
		}
	default:
		return nil, apperrors.ValidationErrorf("unknown similarity measure %q", measure)
	}

	return &SymbolicReRanker{
		measure:           measure,
		contextAttributes: contextAttributes,
		compare:           compare,
		log:               log,
	}, nil
}

func (r *SymbolicReRanker) Name() string {
	return "symbolic_" + r.measure
}

// ReRankEvidences scores every evidence. Evidences whose entity no longer
// exists in the table, or whose context shares no attribute with the query
// row, score 0.
func (r *SymbolicReRanker) ReRankEvidences(ctx context.Context, qt *table.QueryTable, evidences []*table.Evidence) ([]*table.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	attributes := r.contextAttributes
	if len(attributes) == 0 {
		attributes = qt.ContextAttributes
	}

	for _, evidence := range evidences {
		row, ok := qt.Row(evidence.EntityID)
		if !ok {
			r.log.WithTable(qt.ID).Warn("evidence references unknown entity",
				"entity_id", evidence.EntityID)
			evidence.SetScore(r.Name(), 0)
			continue
		}

		evidence.SetScore(r.Name(), r.scoreRow(row, evidence, attributes))
	}

	return evidences, nil
}

func (r *SymbolicReRanker) scoreRow(row table.Row, evidence *table.Evidence, attributes []string) float64 {
	total := 0.0
	compared := 0

	for _, attribute := range attributes {
		queryValue, ok := row.Get(attribute)
		if !ok || queryValue.IsMissing() {
			continue
		}

		raw, ok := evidence.Context[attribute]
		if !ok {
			continue
		}
		evidenceText := contextText(raw)
		if evidenceText == "" {
			continue
		}

		total += r.compare(queryValue.Text(), evidenceText)
		compared++
	}

	if compared == 0 {
		return 0
	}
	return total / float64(compared)
}
