package strategy

import (
	"context"

	"github.com/tablefill/table-fill/internal/pkg/logger"
	"github.com/tablefill/table-fill/internal/table"
)

// GoldStandardStrategy replays the query table's own verified evidences as
// candidates. It provides an upper bound for the retrieval metrics and is
// exclusive: one pipeline per experiment regardless of re-ranker
// configuration.
type GoldStandardStrategy struct {
	base
}

// NewGoldStandardStrategy creates the gold-standard replay strategy.
func NewGoldStandardStrategy(groundTruthTables []string, log *logger.Logger) *GoldStandardStrategy {
	return &GoldStandardStrategy{base: newBase(NameGoldStandard, groundTruthTables, log)}
}

// RetrieveEvidence copies the verified evidences into fresh candidates,
// capped at evidenceCount per entity. Identity fields are preserved so the
// candidates match their verified counterparts during evaluation; scores
// are reset.
func (s *GoldStandardStrategy) RetrieveEvidence(ctx context.Context, qt *table.QueryTable, evidenceCount int, entityID *int) ([]*table.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	perEntity := make(map[int]int)
	evidences := make([]*table.Evidence, 0, len(qt.VerifiedEvidences))

	for _, verified := range qt.VerifiedEvidences {
		if entityID != nil && verified.EntityID != *entityID {
			continue
		}
		if perEntity[verified.EntityID] >= evidenceCount {
			continue
		}
		perEntity[verified.EntityID]++

		candidate := table.NewEvidence(len(evidences)+1, verified.QueryTableID, verified.EntityID,
			copyValue(verified.Value), verified.Table, verified.RowID, verified.Attribute)
		candidate.Context = copyContext(verified.Context)
		candidate.SetScore(retrievalScore, 1)

		evidences = append(evidences, candidate)
	}

	return evidences, nil
}

func copyValue(v *table.Value) *table.Value {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

func copyContext(context map[string]any) map[string]any {
	if context == nil {
		return nil
	}

	clone := make(map[string]any, len(context))
	for k, v := range context {
		clone[k] = v
	}

	return clone
}
