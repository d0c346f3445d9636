package evaluation

import (
	"encoding/json"
	"os"
	"sync"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
)

// Writer persists results append-only, one JSON object per line. Writes
// are serialized so a single writer can collect results from concurrent
// workers.
type Writer struct {
	mu            sync.Mutex
	file          *os.File
	withEvidences bool
}

// NewWriter opens (or creates) the result file for appending.
func NewWriter(path string, withEvidences bool) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, apperrors.StorageError("opening result file", err)
	}

	return &Writer{file: file, withEvidences: withEvidences}, nil
}

// Write appends one result. The retrieved-evidence echo is stripped unless
// the writer was opened with evidences.
func (w *Writer) Write(result *Result) error {
	record := *result
	if !w.withEvidences {
		record.DifferentEvidences = nil
	}

	data, err := json.Marshal(&record)
	if err != nil {
		return apperrors.StorageError("encoding result", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Write(data); err != nil {
		return apperrors.StorageError("writing result", err)
	}

	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Summary aggregates metrics across results: the per-k means of the
// per-entity metrics, averaged over entities first and results second.
type Summary struct {
	ResultCount   int             `json:"resultCount"`
	MeanPrecision map[int]float64 `json:"meanPrecision"`
	MeanRecall    map[int]float64 `json:"meanRecall"`
	MeanF1        map[int]float64 `json:"meanF1"`
	MeanAccuracy  map[int]float64 `json:"meanAccuracy,omitempty"`
}

// Summarize averages the per-entity metrics of each result per k, then
// averages across results.
func Summarize(results []*Result) *Summary {
	summary := &Summary{
		ResultCount:   len(results),
		MeanPrecision: make(map[int]float64),
		MeanRecall:    make(map[int]float64),
		MeanF1:        make(map[int]float64),
		MeanAccuracy:  make(map[int]float64),
	}
	if len(results) == 0 {
		return summary
	}

	counts := make(map[int]int)
	accuracyCounts := make(map[int]int)

	for _, result := range results {
		for k, perEntity := range result.PrecisionPerEntity {
			summary.MeanPrecision[k] += meanOf(perEntity)
			summary.MeanRecall[k] += meanOf(result.RecallPerEntity[k])
			summary.MeanF1[k] += meanOf(result.F1PerEntity[k])
			counts[k]++
		}
		for k, perEntity := range result.FusionAccuracy {
			summary.MeanAccuracy[k] += meanOf(perEntity)
			accuracyCounts[k]++
		}
	}

	for k, n := range counts {
		summary.MeanPrecision[k] /= float64(n)
		summary.MeanRecall[k] /= float64(n)
		summary.MeanF1[k] /= float64(n)
	}
	for k, n := range accuracyCounts {
		summary.MeanAccuracy[k] /= float64(n)
	}

	return summary
}

func meanOf(perEntity map[int]float64) float64 {
	if len(perEntity) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range perEntity {
		total += v
	}
	return total / float64(len(perEntity))
}
