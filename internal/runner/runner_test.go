package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tablefill/table-fill/internal/bus"
	"github.com/tablefill/table-fill/internal/evaluation"
	"github.com/tablefill/table-fill/internal/index"
	"github.com/tablefill/table-fill/internal/pipeline"
	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
	"github.com/tablefill/table-fill/internal/rank"
	"github.com/tablefill/table-fill/internal/strategy"
	"github.com/tablefill/table-fill/internal/table"
)

type memoryWriter struct {
	mu      sync.Mutex
	results []*evaluation.Result
}

func (w *memoryWriter) Write(result *evaluation.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.results = append(w.results, result)
	return nil
}

func (w *memoryWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.results)
}

type failingIndex struct{}

func (failingIndex) QueryByEntity(ctx context.Context, label, schemaOrgClass string, limit int) ([]index.EntityRecord, error) {
	return nil, apperrors.RetrievalError("index unreachable", nil)
}

func (failingIndex) ByTableRowID(ctx context.Context, tableName string, rowID int) (*index.EntityRecord, error) {
	return nil, apperrors.RetrievalError("index unreachable", nil)
}

func intp(i int) *int { return &i }

func hotelTable(id int) *table.QueryTable {
	row := table.NewRow(0)
	row.Set("name", table.String("Marriott Frankfurt"))
	row.Set("telephone", table.String("+49 69 0000"))

	phone := table.String("+49 69 0000")
	wrong := table.String("+49 30 1111")

	positive := table.NewEvidence(1, id, 0, &phone, "hotel_marriott.com_sep2020", 4, "telephone")
	positive.Scale = intp(3)
	negative := table.NewEvidence(2, id, 0, &wrong, "hotel_spam.com_sep2020", 9, "telephone")
	negative.Scale = intp(0)

	return &table.QueryTable{
		ID:                id,
		Type:              table.TypeAugmentation,
		SchemaOrgClass:    "hotel",
		ContextAttributes: []string{"name"},
		TargetAttribute:   "telephone",
		Rows:              []table.Row{row},
		VerifiedEvidences: []*table.Evidence{positive, negative},
	}
}

func goldStandardPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()

	spec := pipeline.Spec{
		Retrieval:           strategy.Config{Name: strategy.NameGoldStandard},
		SimilarityReRanking: &rank.Config{Name: rank.NameSymbolic, SimilarityMeasure: rank.MeasureContainment},
		VotingStrategies:    []string{pipeline.VotingSimple, pipeline.VotingWeighted},
	}

	p, err := pipeline.New(spec, pipeline.Dependencies{}, []string{"name"}, nil)
	if err != nil {
		t.Fatalf("pipeline.New() error = %v", err)
	}
	return p
}

func TestRunProducesResults(t *testing.T) {
	writer := &memoryWriter{}

	r, err := New([]*pipeline.Pipeline{goldStandardPipeline(t)}, writer, nil, Options{
		EvidenceCount: 10,
		KIntervals:    []int{2},
		Workers:       2,
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tables := []*table.QueryTable{hotelTable(10), hotelTable(11)}

	summary, err := r.Run(context.Background(), tables)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// One pipeline, two tables, two voting strategies each.
	if writer.count() != 4 {
		t.Errorf("wrote %d results, want 4", writer.count())
	}
	if summary.ResultCount != 4 {
		t.Errorf("summary.ResultCount = %d, want 4", summary.ResultCount)
	}
	if got := len(r.Results()); got != 4 {
		t.Errorf("Results() = %d results, want 4", got)
	}
}

func TestRunPublishesProgressEvents(t *testing.T) {
	events := bus.NewMemoryBus()
	defer events.Close()

	var runEvents, tableEvents atomic.Int32
	events.Subscribe(context.Background(), bus.TopicRunProgress, func(ctx context.Context, event bus.Event) error {
		runEvents.Add(1)
		return nil
	})
	events.Subscribe(context.Background(), bus.TopicTableProgress, func(ctx context.Context, event bus.Event) error {
		tableEvents.Add(1)
		return nil
	})

	writer := &memoryWriter{}
	r, err := New([]*pipeline.Pipeline{goldStandardPipeline(t)}, writer, events, Options{
		EvidenceCount: 10,
		KIntervals:    []int{2},
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := r.Run(context.Background(), []*table.QueryTable{hotelTable(10)}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !events.Drain(time.Second) {
		t.Fatal("event handlers did not finish")
	}

	// run started, pipeline started, run finished.
	if got := runEvents.Load(); got != 3 {
		t.Errorf("run events = %d, want 3", got)
	}
	// one table evaluated.
	if got := tableEvents.Load(); got != 1 {
		t.Errorf("table events = %d, want 1", got)
	}
}

func TestRunPropagatesPipelineFailure(t *testing.T) {
	spec := pipeline.Spec{
		Retrieval:        strategy.Config{Name: strategy.NameQueryByEntity},
		VotingStrategies: []string{pipeline.VotingSimple},
	}
	p, err := pipeline.New(spec, pipeline.Dependencies{
		Strategy: strategy.Dependencies{Index: failingIndex{}},
	}, []string{"name"}, nil)
	if err != nil {
		t.Fatalf("pipeline.New() error = %v", err)
	}

	writer := &memoryWriter{}
	r, err := New([]*pipeline.Pipeline{p}, writer, nil, Options{
		EvidenceCount: 10,
		KIntervals:    []int{2},
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := r.Run(context.Background(), []*table.QueryTable{hotelTable(10)}); err == nil {
		t.Fatal("Run() did not propagate the retrieval failure")
	}
}

func TestNewValidation(t *testing.T) {
	p := goldStandardPipeline(t)
	writer := &memoryWriter{}
	valid := Options{EvidenceCount: 10, KIntervals: []int{2}}

	tests := []struct {
		name      string
		pipelines []*pipeline.Pipeline
		writer    ResultWriter
		opts      Options
	}{
		{"no pipelines", nil, writer, valid},
		{"no writer", []*pipeline.Pipeline{p}, nil, valid},
		{"no evidence count", []*pipeline.Pipeline{p}, writer, Options{KIntervals: []int{2}}},
		{"no k intervals", []*pipeline.Pipeline{p}, writer, Options{EvidenceCount: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.pipelines, tt.writer, nil, tt.opts, nil); !apperrors.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRunRejectsEmptyTables(t *testing.T) {
	writer := &memoryWriter{}
	r, err := New([]*pipeline.Pipeline{goldStandardPipeline(t)}, writer, nil, Options{
		EvidenceCount: 10,
		KIntervals:    []int{2},
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := r.Run(context.Background(), nil); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}
