package evaluation

import (
	"sort"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
	"github.com/tablefill/table-fill/internal/pkg/logger"
	"github.com/tablefill/table-fill/internal/strategy"
	"github.com/tablefill/table-fill/internal/table"
	"github.com/tablefill/table-fill/internal/values"
)

// EvaluateQueryTable scores the retrieved evidences of one pipeline run
// against the query table's verified ground truth, one Result per ranking
// level. The ranking level is fixed to "correct entity" (scales 1-3).
//
// The evidences are expected to be re-ranked already; their score maps are
// re-aggregated here, which is idempotent.
func EvaluateQueryTable(qt *table.QueryTable, retrieval strategy.RetrievalStrategy, provenance PipelineProvenance,
	evidences []*table.Evidence, ks []int, voting string, log *logger.Logger) ([]*Result, error) {

	if log == nil {
		log = logger.Default()
	}
	log = log.WithTable(qt.ID)
	if voting != VotingSimple && voting != VotingWeighted {
		return nil, apperrors.ValidationErrorf("unknown voting strategy %q", voting)
	}

	for _, evidence := range evidences {
		evidence.AggregateScores()
	}

	result := NewResult(qt, provenance, ks, RankingLevelCorrectEntity, voting)

	if !qt.HasVerifiedEvidences() {
		log.Warn("no verified evidences found for query table")
		return []*Result{result}, nil
	}

	positives, negatives := partitionVerified(qt, retrieval)

	positiveKeys := keySet(positives)
	negativeKeys := keySet(negatives)

	for _, row := range qt.Rows {
		rowEvidences := evidencesForEntity(evidences, row.EntityID)

		sort.SliceStable(rowEvidences, func(i, j int) bool {
			return rowEvidences[i].SimilarityScore > rowEvidences[j].SimilarityScore
		})

		rowPositives := evidencesForEntity(positives, row.EntityID)

		if qt.Type == table.TypeAugmentation {
			result.TargetValues[row.EntityID] = rowText(row, qt.TargetAttribute)
		}

		for _, k := range ks {
			// A single evidence cannot be meaningfully weighted-voted.
			if k == 1 && voting == VotingWeighted {
				continue
			}

			topK := rowEvidences
			if len(topK) > k {
				topK = topK[:k]
			}

			evaluateCutoff(result, qt, row, k, topK, rowPositives, positiveKeys, negativeKeys, voting, log)
		}
	}

	return []*Result{result}, nil
}

// partitionVerified splits the verified evidences into positive and
// negative sets at the fixed ranking level and applies the ground-truth
// table filter to both, symmetrically with the retrieved set.
func partitionVerified(qt *table.QueryTable, retrieval strategy.RetrievalStrategy) (positives, negatives []*table.Evidence) {
	if qt.Type == table.TypeAugmentation {
		for _, evidence := range qt.VerifiedEvidences {
			if evidence.HasScaleIn(relevantScales) {
				positives = append(positives, evidence)
			} else {
				negatives = append(negatives, evidence)
			}
		}
	} else {
		positives = qt.VerifiedEvidences
	}

	positives = retrieval.FilterEvidencesByGroundTruthTables(positives)
	negatives = retrieval.FilterEvidencesByGroundTruthTables(negatives)

	return positives, negatives
}

func evaluateCutoff(result *Result, qt *table.QueryTable, row table.Row, k int, topK []*table.Evidence,
	rowPositives []*table.Evidence, positiveKeys, negativeKeys map[table.Key]struct{}, voting string, log *logger.Logger) {

	entityID := row.EntityID

	retrieved := len(topK)
	verified := len(rowPositives)

	matched := 0
	notAnnotated := 0
	for _, evidence := range topK {
		_, positive := positiveKeys[evidence.Key()]
		_, negative := negativeKeys[evidence.Key()]
		if positive {
			matched++
		}
		if !positive && !negative {
			notAnnotated++
		}
	}

	precision := 0.0
	if retrieved > 0 {
		precision = float64(matched) / float64(retrieved)
	}

	// The recall denominator is capped at k: retrieving every relevant
	// evidence that fits in the cutoff counts as full recall.
	recall := 0.0
	if verified > 0 {
		recall = float64(matched) / float64(min(verified, k))
	}

	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	notAnnotatedShare := 0.0
	if retrieved > 0 {
		notAnnotatedShare = float64(notAnnotated) / float64(retrieved)
	}

	setFloat(result.PrecisionPerEntity, k, entityID, precision)
	setFloat(result.RecallPerEntity, k, entityID, recall)
	setFloat(result.F1PerEntity, k, entityID, f1)
	setFloat(result.NotAnnotatedPerEntity, k, entityID, notAnnotatedShare)
	setInt(result.KnownRelevantEvidences, k, entityID, matched)
	setInt(result.VerifiedEvidences, k, entityID, verified)

	// Corner cases annotated for this entity and how many of them the
	// cutoff actually retrieved.
	cornerCases := 0
	cornerCaseKeys := make(map[table.Key]struct{})
	for _, evidence := range rowPositives {
		if evidence.CornerCase {
			cornerCases++
			cornerCaseKeys[evidence.Key()] = struct{}{}
		}
	}
	retrievedCornerCases := 0
	for _, evidence := range topK {
		if _, ok := cornerCaseKeys[evidence.Key()]; ok {
			retrievedCornerCases++
		}
	}
	setInt(result.CornerCases, k, entityID, cornerCases)
	setInt(result.RetrievedCornerCases, k, entityID, retrievedCornerCases)

	if len(rowPositives) > 0 {
		setBoolPtr(result.SeenTraining, k, entityID, rowPositives[0].SeenTraining)
	} else {
		setBoolPtr(result.SeenTraining, k, entityID, nil)
	}

	tables := make([]string, 0, len(topK))
	seenTables := make(map[string]struct{})
	dumps := make([]RetrievedEvidence, 0, len(topK))
	for _, evidence := range topK {
		if _, ok := seenTables[evidence.Table]; !ok {
			seenTables[evidence.Table] = struct{}{}
			tables = append(tables, evidence.Table)
		}

		_, positive := positiveKeys[evidence.Key()]
		dumps = append(dumps, RetrievedEvidence{
			Table:           evidence.Table,
			RowID:           evidence.RowID,
			SimilarityScore: evidence.SimilarityScore,
			Relevant:        positive,
			Context:         evidence.Context,
		})
	}
	if result.DifferentTables[k] == nil {
		result.DifferentTables[k] = make(map[int][]string)
	}
	result.DifferentTables[k][entityID] = tables
	if result.DifferentEvidences[k] == nil {
		result.DifferentEvidences[k] = make(map[int][]RetrievedEvidence)
	}
	result.DifferentEvidences[k][entityID] = dumps

	if qt.Type == table.TypeAugmentation {
		evaluateFusion(result, qt, row, k, topK, voting, log)
	}
}

// evaluateFusion votes over the top-k values and scores the winner against
// the row's target value.
func evaluateFusion(result *Result, qt *table.QueryTable, row table.Row, k int, topK []*table.Evidence,
	voting string, log *logger.Logger) {

	entityID := row.EntityID

	counts, err := Vote(voting, topK)
	if err != nil {
		// Voting strategies are validated up front; this is unreachable.
		log.WithError(err).Error("voting failed")
		return
	}

	found := 0
	for _, evidence := range topK {
		if evidence.Value != nil {
			found++
		}
	}

	accuracy := 0.0
	predicted := ""
	if len(counts) > 0 {
		predicted = counts[0].Value
		datatype := values.Datatype(qt.TargetAttribute)

		if datatype == values.TypeCoordinate {
			predictedCoord, targetCoord, ok := determineFullCoordinates(predicted, qt.TargetAttribute, row, topK, log)
			if ok {
				accuracy = CoordinateAccuracy(predictedCoord, targetCoord)
			}
		} else if target, ok := row.Get(qt.TargetAttribute); ok {
			if evidenceValue := winningValue(topK, predicted); evidenceValue != nil {
				// Set comparison for list values tolerates ordering and
				// whitespace differences.
				if target.Equal(*evidenceValue) {
					accuracy = 1
				}
			} else {
				accuracy = CalculateAccuracy(predicted, target.Text(), datatype)
			}
		}

		setString(result.PredictedValues, k, entityID, predicted)
	}

	setFloat(result.FusionAccuracy, k, entityID, accuracy)
	setInt(result.FoundValues, k, entityID, found)
	if result.DifferentValues[k] == nil {
		result.DifferentValues[k] = make(map[int][]ValueCount)
	}
	result.DifferentValues[k][entityID] = counts
}

// winningValue finds the original (possibly list-valued) evidence value
// behind the winning serialized vote string.
func winningValue(evidences []*table.Evidence, winner string) *table.Value {
	for _, evidence := range evidences {
		if evidence.Value != nil && evidence.Value.Text() == winner {
			return evidence.Value
		}
	}
	return nil
}

func evidencesForEntity(evidences []*table.Evidence, entityID int) []*table.Evidence {
	matching := make([]*table.Evidence, 0)
	for _, evidence := range evidences {
		if evidence.EntityID == entityID {
			matching = append(matching, evidence)
		}
	}
	return matching
}

func keySet(evidences []*table.Evidence) map[table.Key]struct{} {
	set := make(map[table.Key]struct{}, len(evidences))
	for _, evidence := range evidences {
		set[evidence.Key()] = struct{}{}
	}
	return set
}
