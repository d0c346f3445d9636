// Package pipeline assembles retrieval, re-ranking, and voting stages into
// runnable pipelines from an experiment configuration.
package pipeline

import (
	"context"
	"strings"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
	"github.com/tablefill/table-fill/internal/pkg/logger"
	"github.com/tablefill/table-fill/internal/rank"
	"github.com/tablefill/table-fill/internal/strategy"
	"github.com/tablefill/table-fill/internal/table"
)

// Voting strategy names carried through to the evaluation engine.
const (
	VotingSimple   = "simple"
	VotingWeighted = "weighted"
)

// Options is the pipelines section of an experiment configuration. The
// cross product of the three strategy lists is built, except for exclusive
// retrieval strategies.
type Options struct {
	RetrievalStrategies           []strategy.Config `yaml:"retrieval-strategies"`
	SimilarityReRankingStrategies []*rank.Config    `yaml:"similarity-re-ranking-strategies"`
	SourceReRankingStrategies     []*rank.Config    `yaml:"source-re-ranking-strategies"`
	VotingStrategies              []string          `yaml:"voting-strategies"`
}

// Validate checks that every pipeline stage list is present.
func (o Options) Validate() error {
	if len(o.RetrievalStrategies) == 0 {
		return apperrors.ValidationError("configuration for pipelines - retrieval-strategies missing")
	}
	if len(o.SimilarityReRankingStrategies) == 0 {
		return apperrors.ValidationError("configuration for pipelines - similarity-re-ranking-strategies missing")
	}
	if len(o.SourceReRankingStrategies) == 0 {
		return apperrors.ValidationError("configuration for pipelines - source-re-ranking-strategies missing")
	}
	if len(o.VotingStrategies) == 0 {
		return apperrors.ValidationError("configuration for pipelines - voting-strategies missing")
	}
	return nil
}

// Spec is one built pipeline configuration, not yet wired to its
// collaborators.
type Spec struct {
	Retrieval           strategy.Config
	SimilarityReRanking *rank.Config
	SourceReRanking     *rank.Config
	VotingStrategies    []string
}

// Name renders a stable identifier for logs and results.
func (s Spec) Name() string {
	parts := []string{s.Retrieval.Name}
	if s.SimilarityReRanking != nil {
		parts = append(parts, s.SimilarityReRanking.Name)
	}
	if s.SourceReRanking != nil {
		parts = append(parts, s.SourceReRanking.Name)
	}
	return strings.Join(parts, "+")
}

// Build enumerates the cross product of the configured strategies.
// Exclusive retrieval strategies contribute at most one pipeline each:
// query_by_goldstandard keeps similarity re-ranking but never source
// re-ranking, generate_entity bypasses re-ranking entirely and is
// evaluated with weighted voting only.
func Build(opts Options, log *logger.Logger) ([]Spec, error) {
	if log == nil {
		log = logger.Default()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var specs []Spec
	goldStandardAdded := false
	generateAdded := false

	for _, retrieval := range opts.RetrievalStrategies {
		for _, similarityRR := range opts.SimilarityReRankingStrategies {
			for _, sourceRR := range opts.SourceReRankingStrategies {
				switch retrieval.Name {
				case strategy.NameGoldStandard:
					if goldStandardAdded {
						continue
					}
					specs = append(specs, Spec{
						Retrieval:           retrieval,
						SimilarityReRanking: similarityRR,
						VotingStrategies:    opts.VotingStrategies,
					})
					goldStandardAdded = true

				case strategy.NameGenerateEntity:
					if generateAdded {
						continue
					}
					specs = append(specs, Spec{
						Retrieval:        retrieval,
						VotingStrategies: []string{VotingWeighted},
					})
					generateAdded = true

				default:
					specs = append(specs, Spec{
						Retrieval:           retrieval,
						SimilarityReRanking: similarityRR,
						SourceReRanking:     sourceRR,
						VotingStrategies:    opts.VotingStrategies,
					})
				}
			}
		}
	}

	log.Info("built pipelines", "count", len(specs))

	return specs, nil
}

// Pipeline is a runnable retrieval chain.
type Pipeline struct {
	spec       Spec
	retrieval  strategy.RetrievalStrategy
	similarity rank.ReRanker
	source     rank.ReRanker
	log        *logger.Logger
}

// Dependencies holds the collaborators pipelines are wired with.
type Dependencies struct {
	Strategy  strategy.Dependencies
	HostRanks rank.HostRankStore
}

// New instantiates the strategies a spec names.
func New(spec Spec, deps Dependencies, contextAttributes []string, log *logger.Logger) (*Pipeline, error) {
	if log == nil {
		log = logger.Default()
	}

	retrieval, err := strategy.Select(spec.Retrieval, deps.Strategy)
	if err != nil {
		return nil, err
	}

	similarityRR, err := rank.SelectSimilarityReRanker(spec.SimilarityReRanking, contextAttributes, log)
	if err != nil {
		return nil, err
	}

	sourceRR, err := rank.SelectSourceReRanker(spec.SourceReRanking, deps.HostRanks, log)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		spec:       spec,
		retrieval:  retrieval,
		similarity: similarityRR,
		source:     sourceRR,
		log:        log.WithPipeline(spec.Name()),
	}, nil
}

// Name returns the spec name.
func (p *Pipeline) Name() string {
	return p.spec.Name()
}

// Retrieval exposes the retrieval strategy, used by the evaluation engine
// to filter verified evidences symmetrically.
func (p *Pipeline) Retrieval() strategy.RetrievalStrategy {
	return p.retrieval
}

// VotingStrategies returns the voting strategies this pipeline is
// evaluated with.
func (p *Pipeline) VotingStrategies() []string {
	return p.spec.VotingStrategies
}

// StageNames returns the names of the retrieval and re-ranking stages,
// empty where a stage is absent.
func (p *Pipeline) StageNames() (retrieval, similarity, source string) {
	retrieval = p.retrieval.Name()
	if p.similarity != nil {
		similarity = p.similarity.Name()
	}
	if p.source != nil {
		source = p.source.Name()
	}
	return retrieval, similarity, source
}

// Run retrieves candidate evidences for the query table, filters them by
// ground-truth tables, applies the re-ranking chain, and aggregates the
// accumulated scores into each evidence's similarity score.
func (p *Pipeline) Run(ctx context.Context, qt *table.QueryTable, evidenceCount int, entityID *int) ([]*table.Evidence, error) {
	evidences, err := p.retrieval.RetrieveEvidence(ctx, qt, evidenceCount, entityID)
	if err != nil {
		return nil, err
	}

	evidences = p.retrieval.FilterEvidencesByGroundTruthTables(evidences)

	if p.similarity != nil {
		if evidences, err = p.similarity.ReRankEvidences(ctx, qt, evidences); err != nil {
			return nil, err
		}
	}
	if p.source != nil {
		if evidences, err = p.source.ReRankEvidences(ctx, qt, evidences); err != nil {
			return nil, err
		}
	}

	for _, evidence := range evidences {
		evidence.AggregateScores()
	}

	p.log.WithTable(qt.ID).Debug("pipeline run finished", "evidences", len(evidences))

	return evidences, nil
}
