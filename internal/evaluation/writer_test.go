package evaluation

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tablefill/table-fill/internal/table"
)

func sampleResult(id int) *Result {
	qt := &table.QueryTable{ID: id, Type: table.TypeAugmentation, SchemaOrgClass: "movie"}
	result := NewResult(qt, PipelineProvenance{RetrievalStrategy: "query_by_entity"}, []int{2}, RankingLevelCorrectEntity, VotingSimple)

	setFloat(result.PrecisionPerEntity, 2, 0, 0.5)
	setFloat(result.RecallPerEntity, 2, 0, 1)
	setFloat(result.F1PerEntity, 2, 0, 2.0/3.0)
	setFloat(result.FusionAccuracy, 2, 0, 1)

	result.DifferentEvidences[2] = map[int][]RetrievedEvidence{
		0: {{Table: "movie_imdb.com_sep2020", RowID: 3, SimilarityScore: 0.9, Relevant: true}},
	}

	return result
}

func TestWriterAppendsOneObjectPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")

	writer, err := NewWriter(path, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := writer.Write(sampleResult(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := writer.Write(sampleResult(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var decoded Result
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if decoded.QueryTableID != 1 {
		t.Errorf("expected query table 1, got %d", decoded.QueryTableID)
	}
	if strings.Contains(lines[0], "differentEvidences") {
		t.Error("evidence echo must be stripped without the with-evidences flag")
	}
}

func TestWriterKeepsEvidencesWhenConfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")

	writer, err := NewWriter(path, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := writer.Write(sampleResult(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	writer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "differentEvidences") {
		t.Error("evidence echo should be kept with the with-evidences flag")
	}
}

func TestSummarize(t *testing.T) {
	first := sampleResult(1)
	second := sampleResult(2)
	setFloat(second.PrecisionPerEntity, 2, 0, 1)
	setFloat(second.FusionAccuracy, 2, 0, 0)

	summary := Summarize([]*Result{first, second})

	if summary.ResultCount != 2 {
		t.Errorf("result count = %d, want 2", summary.ResultCount)
	}
	if got := summary.MeanPrecision[2]; got != 0.75 {
		t.Errorf("mean precision@2 = %f, want 0.75", got)
	}
	if got := summary.MeanAccuracy[2]; got != 0.5 {
		t.Errorf("mean accuracy@2 = %f, want 0.5", got)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	if summary.ResultCount != 0 || len(summary.MeanPrecision) != 0 {
		t.Errorf("empty summary expected, got %+v", summary)
	}
}
