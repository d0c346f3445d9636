package evaluation

import (
	"sort"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
	"github.com/tablefill/table-fill/internal/table"
)

// Voting strategy names.
const (
	VotingSimple   = "simple"
	VotingWeighted = "weighted"
)

// sequenceScoreKey is the score generative strategies attach to their
// evidences; it is carried into the vote distribution for analysis.
const sequenceScoreKey = "sequence_score"

// Vote fuses the values proposed by the top-k evidences into a ranked
// distribution. Evidences without a value do not vote. The returned slice
// is sorted by descending count/weight; ties keep the order values were
// first encountered in, which follows the evidence ranking.
func Vote(voting string, evidences []*table.Evidence) ([]ValueCount, error) {
	values := make([]string, 0, len(evidences))
	similarities := make([]float64, 0, len(evidences))
	sequenceScores := make(map[string]float64)

	for _, evidence := range evidences {
		if evidence.Value == nil {
			continue
		}

		value := evidence.Value.Text()
		values = append(values, value)
		similarities = append(similarities, evidence.SimilarityScore)
		if score, ok := evidence.Scores[sequenceScoreKey]; ok {
			sequenceScores[value] = score
		}
	}

	var counts []ValueCount
	switch voting {
	case VotingSimple:
		counts = simpleVote(values)
	case VotingWeighted:
		counts = weightedVote(values, similarities)
	default:
		return nil, apperrors.ValidationErrorf("unknown voting strategy %q", voting)
	}

	for i := range counts {
		if score, ok := sequenceScores[counts[i].Value]; ok {
			s := score
			counts[i].SequenceScore = &s
		}
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})

	return counts, nil
}

// simpleVote counts raw occurrences per distinct value.
func simpleVote(values []string) []ValueCount {
	counts := make([]ValueCount, 0)
	seen := make(map[string]int)

	for _, value := range values {
		if i, ok := seen[value]; ok {
			counts[i].Count++
			continue
		}
		seen[value] = len(counts)
		counts = append(counts, ValueCount{Value: value, Count: 1})
	}

	return counts
}

// weightedVote sums the similarity scores per distinct value, averages by
// occurrence count, and normalizes by the total similarity mass. When the
// total similarity is 0 every candidate gets weight 0.
func weightedVote(values []string, similarities []float64) []ValueCount {
	counts := make([]ValueCount, 0)
	seen := make(map[string]int)
	occurrences := make(map[string]float64)
	totalSimilarity := 0.0

	for i, value := range values {
		if _, ok := seen[value]; !ok {
			seen[value] = len(counts)
			counts = append(counts, ValueCount{Value: value})
		}
		counts[seen[value]].Count += similarities[i]
		occurrences[value]++
		totalSimilarity += similarities[i]
	}

	for i := range counts {
		averaged := counts[i].Count / occurrences[counts[i].Value]
		if totalSimilarity > 0 {
			counts[i].Count = averaged / totalSimilarity
		} else {
			counts[i].Count = 0
		}
	}

	return counts
}
