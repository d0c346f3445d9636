// Package runner drives experiment runs: it fans the (pipeline × query
// table) cross product out over a bounded worker pool, funnels results
// into a single writer, and publishes progress events.
package runner

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tablefill/table-fill/internal/bus"
	"github.com/tablefill/table-fill/internal/evaluation"
	"github.com/tablefill/table-fill/internal/pipeline"
	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
	"github.com/tablefill/table-fill/internal/pkg/logger"
	"github.com/tablefill/table-fill/internal/table"
)

// ResultWriter receives results as workers complete. Implementations must
// be safe for concurrent use.
type ResultWriter interface {
	Write(result *evaluation.Result) error
}

// Options holds the run-wide evaluation settings.
type Options struct {
	// EvidenceCount is the per-entity retrieval budget.
	EvidenceCount int

	// KIntervals are the cutoffs metrics are reported at.
	KIntervals []int

	// Workers bounds the worker pool, 0 means one per CPU.
	Workers int
}

// Runner executes every configured pipeline against every query table.
type Runner struct {
	pipelines []*pipeline.Pipeline
	writer    ResultWriter
	events    bus.Bus
	opts      Options
	log       *logger.Logger

	mu      sync.Mutex
	results []*evaluation.Result
}

// New creates a runner. A nil events bus defaults to an in-memory bus.
func New(pipelines []*pipeline.Pipeline, writer ResultWriter, events bus.Bus, opts Options, log *logger.Logger) (*Runner, error) {
	if len(pipelines) == 0 {
		return nil, apperrors.ValidationError("runner needs at least one pipeline")
	}
	if writer == nil {
		return nil, apperrors.ValidationError("runner needs a result writer")
	}
	if opts.EvidenceCount < 1 {
		return nil, apperrors.ValidationError("runner needs a positive evidence count")
	}
	if len(opts.KIntervals) == 0 {
		return nil, apperrors.ValidationError("runner needs at least one k interval")
	}
	if events == nil {
		events = bus.NewMemoryBus()
	}
	if log == nil {
		log = logger.Default()
	}

	return &Runner{
		pipelines: pipelines,
		writer:    writer,
		events:    events,
		opts:      opts,
		log:       log,
	}, nil
}

// Run evaluates every pipeline against every query table and returns a
// summary of the produced results. The first task error cancels the
// remaining work and is returned.
func (r *Runner) Run(ctx context.Context, tables []*table.QueryTable) (*evaluation.Summary, error) {
	if len(tables) == 0 {
		return nil, apperrors.ValidationError("no query tables to evaluate")
	}

	start := time.Now()

	r.publish(ctx, bus.TopicRunProgress, bus.NewEvent("run", bus.EventRunStarted, bus.RunStartedPayload{
		Pipelines: len(r.pipelines),
		Tables:    len(tables),
	}))

	workers := r.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	var failures int64
	var failuresMu sync.Mutex

	for _, p := range r.pipelines {
		r.publish(ctx, bus.TopicRunProgress, bus.NewEvent(p.Name(), bus.EventPipelineStarted, bus.PipelineStartedPayload{
			Pipeline: p.Name(),
			Tables:   len(tables),
		}))

		for _, qt := range tables {
			p, qt := p, qt
			group.Go(func() error {
				if err := r.evaluateTable(groupCtx, p, qt); err != nil {
					failuresMu.Lock()
					failures++
					failuresMu.Unlock()
					return err
				}
				return nil
			})
		}
	}

	runErr := group.Wait()

	r.mu.Lock()
	produced := len(r.results)
	r.mu.Unlock()

	failuresMu.Lock()
	failed := failures
	failuresMu.Unlock()

	r.publish(ctx, bus.TopicRunProgress, bus.NewEvent("run", bus.EventRunFinished, bus.RunFinishedPayload{
		Results:   produced,
		Failures:  int(failed),
		ElapsedMs: time.Since(start).Milliseconds(),
	}))

	if runErr != nil {
		return nil, runErr
	}

	r.log.Info("experiment run finished",
		"pipelines", len(r.pipelines),
		"tables", len(tables),
		"results", produced,
		"elapsed", time.Since(start).String(),
	)

	r.mu.Lock()
	defer r.mu.Unlock()
	return evaluation.Summarize(r.results), nil
}

// Results returns the collected results, for callers that want more than
// the summary.
func (r *Runner) Results() []*evaluation.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*evaluation.Result, len(r.results))
	copy(out, r.results)
	return out
}

func (r *Runner) evaluateTable(ctx context.Context, p *pipeline.Pipeline, qt *table.QueryTable) error {
	start := time.Now()
	log := r.log.WithPipeline(p.Name()).WithTable(qt.ID)

	evidences, err := p.Run(ctx, qt, r.opts.EvidenceCount, nil)
	if err != nil {
		r.reportFailure(ctx, p, qt, err)
		return apperrors.Wrap(apperrors.CodeRetrieval, fmt.Sprintf("pipeline %s on table %d", p.Name(), qt.ID), err)
	}

	retrievalName, similarityName, sourceName := p.StageNames()
	provenance := evaluation.PipelineProvenance{
		RetrievalStrategy:  retrievalName,
		SimilarityReRanker: similarityName,
		SourceReRanker:     sourceName,
	}

	produced := 0
	for _, voting := range p.VotingStrategies() {
		results, err := evaluation.EvaluateQueryTable(qt, p.Retrieval(), provenance, evidences, r.opts.KIntervals, voting, log)
		if err != nil {
			r.reportFailure(ctx, p, qt, err)
			return err
		}

		for _, result := range results {
			if err := r.writer.Write(result); err != nil {
				r.reportFailure(ctx, p, qt, err)
				return apperrors.StorageError("writing result", err)
			}

			r.mu.Lock()
			r.results = append(r.results, result)
			r.mu.Unlock()
			produced++
		}
	}

	r.publish(ctx, bus.TopicTableProgress, bus.NewEvent(taskID(p, qt), bus.EventTableEvaluated, bus.TableEvaluatedPayload{
		Pipeline:  p.Name(),
		TableID:   qt.ID,
		Results:   produced,
		ElapsedMs: time.Since(start).Milliseconds(),
	}))

	log.Debug("query table evaluated", "results", produced)

	return nil
}

func (r *Runner) reportFailure(ctx context.Context, p *pipeline.Pipeline, qt *table.QueryTable, err error) {
	r.log.WithPipeline(p.Name()).WithTable(qt.ID).WithError(err).Error("query table evaluation failed")

	r.publish(ctx, bus.TopicTableProgress, bus.NewEvent(taskID(p, qt), bus.EventTableFailed, bus.TableFailedPayload{
		Pipeline: p.Name(),
		TableID:  qt.ID,
		Error:    err.Error(),
	}))
}

// publish is best-effort, progress events never fail a run.
func (r *Runner) publish(ctx context.Context, topic string, event bus.Event) {
	if err := r.events.Publish(ctx, topic, event); err != nil {
		r.log.Warn("Failed to publish progress event",
			"topic", topic,
			"event_type", event.Type,
			"error", err.Error(),
		)
	}
}

func taskID(p *pipeline.Pipeline, qt *table.QueryTable) string {
	return fmt.Sprintf("%s/%d", p.Name(), qt.ID)
}
