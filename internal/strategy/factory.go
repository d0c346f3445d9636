package strategy

import (
	"github.com/tablefill/table-fill/internal/index"
	"github.com/tablefill/table-fill/internal/pkg/errors"
	"github.com/tablefill/table-fill/internal/pkg/logger"
)

// Config selects a retrieval strategy in an experiment configuration.
type Config struct {
	Name string `yaml:"name"`
}

// Dependencies holds the collaborators a strategy may need.
type Dependencies struct {
	// Index backs query_by_entity.
	Index index.EntityIndex

	// Generator backs generate_entity.
	Generator ValueGenerator

	// GroundTruthTables lists source tables the query tables were
	// sampled from, excluded from retrieval results.
	GroundTruthTables []string

	Logger *logger.Logger
}

// Select instantiates the configured retrieval strategy.
func Select(cfg Config, deps Dependencies) (RetrievalStrategy, error) {
	switch cfg.Name {
	case NameQueryByEntity:
		if deps.Index == nil {
			return nil, errors.ValidationError("query_by_entity requires an entity index")
		}
		return NewEntityQueryStrategy(deps.Index, deps.GroundTruthTables, deps.Logger), nil

	case NameGoldStandard:
		return NewGoldStandardStrategy(deps.GroundTruthTables, deps.Logger), nil

	case NameGenerateEntity:
		if deps.Generator == nil {
			return nil, errors.ValidationError("generate_entity requires a value generator")
		}
		return NewGenerateEntityStrategy(deps.Generator, deps.Logger), nil

	default:
		return nil, errors.ValidationErrorf("unknown retrieval strategy %q", cfg.Name)
	}
}
