// Package strategy implements the retrieval strategies that produce
// candidate evidences for the rows of a query table.
package strategy

import (
	"context"

	"github.com/tablefill/table-fill/internal/pkg/logger"
	"github.com/tablefill/table-fill/internal/table"
)

// Strategy names accepted in experiment configurations.
const (
	// NameQueryByEntity retrieves candidate rows from the entity index.
	NameQueryByEntity = "query_by_entity"

	// NameGoldStandard replays the verified evidences as candidates.
	NameGoldStandard = "query_by_goldstandard"

	// NameGenerateEntity produces values through a generative model.
	NameGenerateEntity = "generate_entity"
)

// retrievalScore is the score key set by retrieval strategies.
const retrievalScore = "retrieval"

// RetrievalStrategy produces candidate evidences for a query table.
type RetrievalStrategy interface {
	// Name returns the configured strategy name.
	Name() string

	// RetrieveEvidence returns up to evidenceCount candidate evidences
	// per row, or only for the row matching entityID when it is non-nil.
	RetrieveEvidence(ctx context.Context, qt *table.QueryTable, evidenceCount int, entityID *int) ([]*table.Evidence, error)

	// FilterEvidencesByGroundTruthTables drops evidences sourced from
	// one of the tables the query table's own rows were sampled from.
	// The filter is applied to retrieved and verified evidence sets
	// symmetrically before evaluation.
	FilterEvidencesByGroundTruthTables(evidences []*table.Evidence) []*table.Evidence
}

// Exclusive reports whether a strategy contributes at most one pipeline
// to an experiment regardless of how many re-ranker combinations are
// configured.
func Exclusive(name string) bool {
	return name == NameGoldStandard || name == NameGenerateEntity
}

// base carries the state shared by all strategies.
type base struct {
	name              string
	groundTruthTables map[string]struct{}
	log               *logger.Logger
}

func newBase(name string, groundTruthTables []string, log *logger.Logger) base {
	if log == nil {
		log = logger.Default()
	}

	set := make(map[string]struct{}, len(groundTruthTables))
	for _, t := range groundTruthTables {
		set[t] = struct{}{}
	}

	return base{name: name, groundTruthTables: set, log: log}
}

func (b base) Name() string {
	return b.name
}

func (b base) FilterEvidencesByGroundTruthTables(evidences []*table.Evidence) []*table.Evidence {
	if len(b.groundTruthTables) == 0 {
		return evidences
	}

	filtered := make([]*table.Evidence, 0, len(evidences))
	for _, evidence := range evidences {
		if _, ok := b.groundTruthTables[evidence.Table]; ok {
			continue
		}
		filtered = append(filtered, evidence)
	}

	return filtered
}

// rowsToQuery resolves which rows a retrieval call covers.
func rowsToQuery(qt *table.QueryTable, entityID *int) []table.Row {
	if entityID == nil {
		return qt.Rows
	}

	if row, ok := qt.Row(*entityID); ok {
		return []table.Row{row}
	}

	return nil
}

// targetAttribute returns the attribute candidate evidences carry a value
// for, empty for retrieval-only tables.
func targetAttribute(qt *table.QueryTable) string {
	if qt.Type == table.TypeAugmentation {
		return qt.TargetAttribute
	}
	return ""
}
