package rank

import (
	"github.com/tablefill/table-fill/internal/pkg/errors"
	"github.com/tablefill/table-fill/internal/pkg/logger"
)

// Names accepted for re-ranking strategies in experiment configurations.
const (
	NameSymbolic = "symbolic_re_ranker"
	NamePageRank = "page_rank_re_ranker"
)

// Config selects a re-ranking strategy. A nil Config means no re-ranking
// at that stage.
type Config struct {
	Name string `yaml:"name"`

	// SimilarityMeasure configures the symbolic re-ranker.
	SimilarityMeasure string `yaml:"similarity-measure"`
}

// SelectSimilarityReRanker instantiates the configured similarity
// re-ranker, nil for a no-op stage.
func SelectSimilarityReRanker(cfg *Config, contextAttributes []string, log *logger.Logger) (ReRanker, error) {
	if cfg == nil {
		return nil, nil
	}

	switch cfg.Name {
	case NameSymbolic:
		measure := cfg.SimilarityMeasure
		if measure == "" {
			measure = MeasureStringSimilarity
		}
		return NewSymbolicReRanker(measure, contextAttributes, log)
	default:
		return nil, errors.ValidationErrorf("unknown similarity re-ranking strategy %q", cfg.Name)
	}
}

// SelectSourceReRanker instantiates the configured source re-ranker, nil
// for a no-op stage.
func SelectSourceReRanker(cfg *Config, store HostRankStore, log *logger.Logger) (ReRanker, error) {
	if cfg == nil {
		return nil, nil
	}

	switch cfg.Name {
	case NamePageRank:
		return NewPageRankReRanker(store, log)
	default:
		return nil, errors.ValidationErrorf("unknown source re-ranking strategy %q", cfg.Name)
	}
}
