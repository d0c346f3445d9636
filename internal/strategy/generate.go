package strategy

import (
	"context"

	"github.com/tablefill/table-fill/internal/pkg/logger"
	"github.com/tablefill/table-fill/internal/table"
)

// generatedTable is the synthetic source-table name attached to generated
// evidences. Generated values have no corpus row behind them; the name
// keeps the evidence identity well-formed.
const generatedTable = "generated"

// sequenceScore is the score key carrying the generator's confidence.
const sequenceScore = "sequence_score"

// ValueGenerator produces a target-attribute value for a query-table row.
// Implementations wrap a generative model and live outside this module.
type ValueGenerator interface {
	Generate(ctx context.Context, qt *table.QueryTable, row table.Row) (value string, score float64, err error)
}

// GenerateEntityStrategy produces one evidence per row through a value
// generator. Exclusive: results bypass re-ranking and are evaluated with
// weighted voting only, so the generator's sequence score drives fusion.
type GenerateEntityStrategy struct {
	base
	generator ValueGenerator
}

// NewGenerateEntityStrategy creates the generative strategy.
func NewGenerateEntityStrategy(generator ValueGenerator, log *logger.Logger) *GenerateEntityStrategy {
	return &GenerateEntityStrategy{
		base:      newBase(NameGenerateEntity, nil, log),
		generator: generator,
	}
}

// RetrieveEvidence asks the generator for one value per row. Rows the
// generator fails on are skipped with a warning; the evidence count cap
// does not apply since there is one evidence per row.
func (s *GenerateEntityStrategy) RetrieveEvidence(ctx context.Context, qt *table.QueryTable, evidenceCount int, entityID *int) ([]*table.Evidence, error) {
	attribute := targetAttribute(qt)

	var evidences []*table.Evidence
	for _, row := range rowsToQuery(qt, entityID) {
		generated, score, err := s.generator.Generate(ctx, qt, row)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			s.log.WithTable(qt.ID).WithError(err).Warn("value generation failed",
				"entity_id", row.EntityID)
			continue
		}

		value := table.String(generated)
		evidence := table.NewEvidence(len(evidences)+1, qt.ID, row.EntityID,
			&value, generatedTable, row.EntityID, attribute)
		evidence.SetScore(sequenceScore, score)

		evidences = append(evidences, evidence)
	}

	return evidences, nil
}
