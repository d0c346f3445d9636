package rank

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
	"github.com/tablefill/table-fill/internal/table"
)

func TestExtractHost(t *testing.T) {
	tests := []struct {
		tableName string
		want      string
		wantErr   bool
	}{
		{tableName: "hotel_marriott.com_sep2020", want: "com.marriott"},
		{tableName: "movie_imdb.com_sep2020", want: "com.imdb"},
		{tableName: "localbusiness_yellowpages.co.uk_sep2020", want: "uk.co.yellowpages"},
		{tableName: "generated", wantErr: true},
		{tableName: "too_many_parts_here", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.tableName, func(t *testing.T) {
			got, err := ExtractHost(tt.tableName)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractHost(%q) = %q, want %q", tt.tableName, got, tt.want)
			}
		})
	}
}

func queryTableWithRow() *table.QueryTable {
	row := table.NewRow(0)
	row.Set("name", table.String("Marriott Frankfurt"))
	row.Set("addresslocality", table.String("Frankfurt"))

	return &table.QueryTable{
		ID:                10,
		Type:              table.TypeAugmentation,
		SchemaOrgClass:    "hotel",
		ContextAttributes: []string{"name", "addresslocality"},
		TargetAttribute:   "telephone",
		Rows:              []table.Row{row},
	}
}

func TestSymbolicReRankerScoresMatchingContext(t *testing.T) {
	qt := queryTableWithRow()

	evidence := table.NewEvidence(1, 10, 0, nil, "hotel_marriott.com_sep2020", 4, "telephone")
	evidence.Context = map[string]any{
		"name":            "Marriott Frankfurt",
		"addresslocality": "Frankfurt",
	}

	reranker, err := NewSymbolicReRanker(MeasureStringSimilarity, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evidences, err := reranker.ReRankEvidences(context.Background(), qt, []*table.Evidence{evidence})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	score := evidences[0].Scores[reranker.Name()]
	if math.Abs(score-1) > 1e-9 {
		t.Errorf("identical context should score 1, got %f", score)
	}
}

func TestSymbolicReRankerContainment(t *testing.T) {
	qt := queryTableWithRow()

	matching := table.NewEvidence(1, 10, 0, nil, "hotel_marriott.com_sep2020", 4, "telephone")
	matching.Context = map[string]any{"name": "Marriott"}

	disjoint := table.NewEvidence(2, 10, 0, nil, "hotel_booking.com_sep2020", 9, "telephone")
	disjoint.Context = map[string]any{"name": "Hilton Munich"}

	noContext := table.NewEvidence(3, 10, 0, nil, "hotel_yelp.com_sep2020", 2, "telephone")

	reranker, err := NewSymbolicReRanker(MeasureContainment, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evidences, err := reranker.ReRankEvidences(context.Background(), qt,
		[]*table.Evidence{matching, disjoint, noContext})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := evidences[0].Scores[reranker.Name()]; got != 1 {
		t.Errorf("contained name should score 1, got %f", got)
	}
	if got := evidences[1].Scores[reranker.Name()]; got != 0 {
		t.Errorf("disjoint name should score 0, got %f", got)
	}
	if got := evidences[2].Scores[reranker.Name()]; got != 0 {
		t.Errorf("evidence without context should score 0, got %f", got)
	}
}

func TestSymbolicReRankerUnknownEntityScoresZero(t *testing.T) {
	qt := queryTableWithRow()

	evidence := table.NewEvidence(1, 10, 99, nil, "hotel_marriott.com_sep2020", 4, "telephone")
	evidence.Context = map[string]any{"name": "Marriott Frankfurt"}

	reranker, err := NewSymbolicReRanker(MeasureJaccard, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evidences, err := reranker.ReRankEvidences(context.Background(), qt, []*table.Evidence{evidence})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := evidences[0].Scores[reranker.Name()]; got != 0 {
		t.Errorf("unknown entity should score 0, got %f", got)
	}
}

func TestNewSymbolicReRankerRejectsUnknownMeasure(t *testing.T) {
	if _, err := NewSymbolicReRanker("soundex", nil, nil); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

type fakeHostRanks struct {
	ranks map[string]float64
}

func (f *fakeHostRanks) PageRank(ctx context.Context, host string) (float64, bool, error) {
	rank, ok := f.ranks[host]
	return rank, ok, nil
}

func TestPageRankReRanker(t *testing.T) {
	qt := queryTableWithRow()

	ranked := table.NewEvidence(1, 10, 0, nil, "hotel_marriott.com_sep2020", 4, "telephone")
	unknown := table.NewEvidence(2, 10, 0, nil, "hotel_smallhotel.de_sep2020", 2, "telephone")
	malformed := table.NewEvidence(3, 10, 0, nil, "generated", 0, "telephone")

	store := &fakeHostRanks{ranks: map[string]float64{"com.marriott": 0.84}}
	reranker, err := NewPageRankReRanker(store, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evidences, err := reranker.ReRankEvidences(context.Background(), qt,
		[]*table.Evidence{ranked, unknown, malformed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := evidences[0].Scores[pageRankName]; got != 0.84 {
		t.Errorf("expected page rank 0.84, got %f", got)
	}
	if got := evidences[1].Scores[pageRankName]; got != 0 {
		t.Errorf("unknown host should score 0, got %f", got)
	}
	if got := evidences[2].Scores[pageRankName]; got != 0 {
		t.Errorf("malformed table name should score 0, got %f", got)
	}
}

func TestFileHostRanks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page-ranks.txt")
	content := "reserved hostname\trescaled page rank\ncom.marriott\t0.84\ncom.booking\t0.97\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	ranks, err := NewFileHostRanks(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rank, ok, err := ranks.PageRank(context.Background(), "com.booking")
	if err != nil || !ok || rank != 0.97 {
		t.Errorf("expected (0.97, true, nil), got (%f, %v, %v)", rank, ok, err)
	}

	_, ok, err = ranks.PageRank(context.Background(), "de.unknown")
	if err != nil || ok {
		t.Errorf("expected miss for unknown host, got (%v, %v)", ok, err)
	}
}

func TestNewFileHostRanksMissingFile(t *testing.T) {
	if _, err := NewFileHostRanks(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("expected error for missing rank file")
	}
}

func TestContextText(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want string
	}{
		{name: "string", raw: "Frankfurt", want: "Frankfurt"},
		{name: "number", raw: 49.5, want: "49.5"},
		{name: "list", raw: []any{"a", "b"}, want: "a, b"},
		{name: "string slice", raw: []string{"x", "y"}, want: "x, y"},
		{name: "unsupported", raw: map[string]any{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := contextText(tt.raw); got != tt.want {
				t.Errorf("contextText(%v) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSelectReRankers(t *testing.T) {
	similarityRR, err := SelectSimilarityReRanker(&Config{Name: NameSymbolic}, nil, nil)
	if err != nil || similarityRR == nil {
		t.Fatalf("expected symbolic re-ranker, got (%v, %v)", similarityRR, err)
	}

	if rr, err := SelectSimilarityReRanker(nil, nil, nil); rr != nil || err != nil {
		t.Errorf("nil config must yield a no-op stage, got (%v, %v)", rr, err)
	}

	if _, err := SelectSimilarityReRanker(&Config{Name: "neural"}, nil, nil); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error for unknown strategy, got %v", err)
	}

	sourceRR, err := SelectSourceReRanker(&Config{Name: NamePageRank}, &fakeHostRanks{}, nil)
	if err != nil || sourceRR == nil {
		t.Fatalf("expected page rank re-ranker, got (%v, %v)", sourceRR, err)
	}

	if _, err := SelectSourceReRanker(&Config{Name: NamePageRank}, nil, nil); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error for missing store, got %v", err)
	}
}
