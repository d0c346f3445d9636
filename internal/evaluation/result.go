// Package evaluation scores retrieved evidences against the verified
// ground truth of a query table and produces persistable results.
package evaluation

import (
	"github.com/tablefill/table-fill/internal/table"
)

// RankingLevelCorrectEntity is the relevance partition used by this
// system: scales 1-3 count as positive.
const RankingLevelCorrectEntity = "3,2,1 - Correct Entity"

// relevantScales is the positive scale set for the fixed ranking level.
var relevantScales = []int{table.ScaleCorrectValue, table.ScaleRelevantValue, table.ScaleCorrectEntity}

// ValueCount is one entry of a vote distribution. Count holds the raw
// occurrence count for simple voting and the normalized weight for
// weighted voting.
type ValueCount struct {
	Value         string   `json:"value"`
	Count         float64  `json:"count"`
	SequenceScore *float64 `json:"sequenceScore,omitempty"`
}

// RetrievedEvidence echoes one retrieved evidence into the result for
// analysis, context included.
type RetrievedEvidence struct {
	Table           string         `json:"table"`
	RowID           int            `json:"rowId"`
	SimilarityScore float64        `json:"similarityScore"`
	Relevant        bool           `json:"relevant"`
	Context         map[string]any `json:"context,omitempty"`
}

// Result holds the metrics of one (query table, ranking level) evaluation.
// The per-entity maps are dense: every row and every evaluated k has an
// entry, keyed k first, entity second.
type Result struct {
	QueryTableID       int    `json:"queryTableId"`
	SchemaOrgClass     string `json:"schemaOrgClass"`
	Category           string `json:"category"`
	ExperimentType     string `json:"experimentType"`
	AssemblingStrategy string `json:"assemblingStrategy"`

	RetrievalStrategy  string `json:"retrievalStrategy"`
	SimilarityReRanker string `json:"similarityReRanker,omitempty"`
	SourceReRanker     string `json:"sourceReRanker,omitempty"`
	RankingLevel       string `json:"rankingLevel"`
	Voting             string `json:"voting"`
	KIntervals         []int  `json:"kIntervals"`

	PrecisionPerEntity     map[int]map[int]float64 `json:"precisionPerEntity"`
	RecallPerEntity        map[int]map[int]float64 `json:"recallPerEntity"`
	F1PerEntity            map[int]map[int]float64 `json:"f1PerEntity"`
	NotAnnotatedPerEntity  map[int]map[int]float64 `json:"notAnnotatedPerEntity"`
	KnownRelevantEvidences map[int]map[int]int     `json:"knownRelevantEvidences"`
	VerifiedEvidences      map[int]map[int]int     `json:"verifiedEvidences"`
	SeenTraining           map[int]map[int]*bool   `json:"seenTraining"`
	CornerCases            map[int]map[int]int     `json:"cornerCases"`
	RetrievedCornerCases   map[int]map[int]int     `json:"retrievedCornerCases"`
	DifferentTables        map[int]map[int][]string `json:"differentTables"`

	// Augmentation-only fields.
	FusionAccuracy  map[int]map[int]float64      `json:"fusionAccuracy,omitempty"`
	DifferentValues map[int]map[int][]ValueCount `json:"differentValues,omitempty"`
	FoundValues     map[int]map[int]int          `json:"foundValues,omitempty"`
	PredictedValues map[int]map[int]string       `json:"predictedValues,omitempty"`
	TargetValues    map[int]string               `json:"targetValues,omitempty"`

	// DifferentEvidences echoes the retrieved evidences, stripped by the
	// writer unless results are saved with evidences.
	DifferentEvidences map[int]map[int][]RetrievedEvidence `json:"differentEvidences,omitempty"`
}

// PipelineProvenance names the strategies a result was produced with.
type PipelineProvenance struct {
	RetrievalStrategy  string
	SimilarityReRanker string
	SourceReRanker     string
}

// NewResult initializes an empty result for a query table.
func NewResult(qt *table.QueryTable, provenance PipelineProvenance, ks []int, rankingLevel, voting string) *Result {
	return &Result{
		QueryTableID:       qt.ID,
		SchemaOrgClass:     qt.SchemaOrgClass,
		Category:           qt.Category,
		ExperimentType:     string(qt.Type),
		AssemblingStrategy: qt.AssemblingStrategy,

		RetrievalStrategy:  provenance.RetrievalStrategy,
		SimilarityReRanker: provenance.SimilarityReRanker,
		SourceReRanker:     provenance.SourceReRanker,
		RankingLevel:       rankingLevel,
		Voting:             voting,
		KIntervals:         ks,

		PrecisionPerEntity:     make(map[int]map[int]float64),
		RecallPerEntity:        make(map[int]map[int]float64),
		F1PerEntity:            make(map[int]map[int]float64),
		NotAnnotatedPerEntity:  make(map[int]map[int]float64),
		KnownRelevantEvidences: make(map[int]map[int]int),
		VerifiedEvidences:      make(map[int]map[int]int),
		SeenTraining:           make(map[int]map[int]*bool),
		CornerCases:            make(map[int]map[int]int),
		RetrievedCornerCases:   make(map[int]map[int]int),
		DifferentTables:        make(map[int]map[int][]string),

		FusionAccuracy:  make(map[int]map[int]float64),
		DifferentValues: make(map[int]map[int][]ValueCount),
		FoundValues:     make(map[int]map[int]int),
		PredictedValues: make(map[int]map[int]string),
		TargetValues:    make(map[int]string),

		DifferentEvidences: make(map[int]map[int][]RetrievedEvidence),
	}
}

func setFloat(m map[int]map[int]float64, k, entityID int, v float64) {
	if m[k] == nil {
		m[k] = make(map[int]float64)
	}
	m[k][entityID] = v
}

func setInt(m map[int]map[int]int, k, entityID, v int) {
	if m[k] == nil {
		m[k] = make(map[int]int)
	}
	m[k][entityID] = v
}

func setBoolPtr(m map[int]map[int]*bool, k, entityID int, v *bool) {
	if m[k] == nil {
		m[k] = make(map[int]*bool)
	}
	m[k][entityID] = v
}

func setString(m map[int]map[int]string, k, entityID int, v string) {
	if m[k] == nil {
		m[k] = make(map[int]string)
	}
	m[k][entityID] = v
}
