// Package pipeline links meteorite records to fireball events, selects a
// processing tier and enriches it concurrently, flushing results to the
// store in batches from a single goroutine.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kervino2/Meteora/internal/match"
	"github.com/kervino2/Meteora/internal/model"
	"github.com/kervino2/Meteora/internal/worker"
)

// Store is the snapshot the orchestrator resumes from and flushes to
type Store interface {
	Keys(ctx context.Context) (map[model.Key]struct{}, error)
	Save(ctx context.Context, records []model.MeteoriteRecord) (int, error)
}

// Orchestrator runs one enrichment pass
type Orchestrator struct {
	matcher       *match.Matcher
	processor     *Processor
	store         Store
	mode          string
	workers       int
	flushEvery    int
	massThreshold float64
	logger        *slog.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithMode selects the tier to process
func WithMode(mode string) Option {
	return func(o *Orchestrator) {
		o.mode = mode
	}
}

// WithWorkers sets the worker pool width
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		o.workers = n
	}
}

// WithFlushEvery sets how many results are buffered before a store write
func WithFlushEvery(n int) Option {
	return func(o *Orchestrator) {
		o.flushEvery = n
	}
}

// WithMassThreshold sets the qualifying mass in grams
func WithMassThreshold(grams float64) Option {
	return func(o *Orchestrator) {
		o.massThreshold = grams
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an Orchestrator with the default manual mode, 8 workers and
// a flush every 10 results.
func New(matcher *match.Matcher, processor *Processor, st Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		matcher:       matcher,
		processor:     processor,
		store:         st,
		mode:          model.ModeManual,
		workers:       8,
		flushEvery:    10,
		massThreshold: DefaultMassThreshold,
		logger:        slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	if o.flushEvery < 1 {
		o.flushEvery = 1
	}
	return o
}

// Run matches, selects and enriches. Per-record failures are counted in the
// summary and never abort the run. The returned error is set when the store
// cannot be read, the final flush fails or ctx ends before every record ran.
func (o *Orchestrator) Run(ctx context.Context, records []model.MeteoriteRecord, events []model.ImpactEvent, filters []string) (*Summary, error) {
	started := time.Now()
	summary := &Summary{
		RunID:   uuid.NewString(),
		Mode:    o.mode,
		Started: started.UTC(),
	}
	logger := o.logger.With("run_id", summary.RunID)

	matched := o.matcher.Match(records, events)
	summary.Records = len(matched.Records)
	summary.Matched = matched.Matched
	summary.Synthetic = matched.Synthetic

	selected, duplicates := dedupe(Classify(matched.Records, o.massThreshold, filters).Select(o.mode))
	summary.Selected = len(selected)
	summary.Skipped += duplicates

	persisted, err := o.store.Keys(ctx)
	if err != nil {
		return summary, fmt.Errorf("load persisted keys: %w", err)
	}

	pool, err := worker.NewPool(ctx, o.workers)
	if err != nil {
		return summary, err
	}

	logger.Info("run started",
		"mode", o.mode,
		"records", summary.Records,
		"selected", summary.Selected,
		"persisted", len(persisted),
		"workers", pool.Workers(),
	)

	batcher := worker.NewBatcher(o.flushEvery, func(ctx context.Context, batch []model.MeteoriteRecord) error {
		size, err := o.store.Save(ctx, batch)
		if err != nil {
			return err
		}
		summary.SnapshotSize = size
		logger.Info("flushed batch", "records", len(batch), "snapshot", size)
		return nil
	})

	go func() {
		defer pool.Close()
		for _, rec := range selected {
			if ctx.Err() != nil {
				return
			}
			job := &recordJob{
				processor: o.processor,
				record:    rec,
				persisted: persisted,
				skeleton:  o.mode == model.ModeSkeleton,
			}
			if err := pool.Submit(job); err != nil {
				logger.Error("submit failed", "record", rec.Key().String(), "error", err)
				return
			}
		}
	}()

	// Flushes must outlive a cancelled run so finished work is kept.
	flushCtx := context.WithoutCancel(ctx)

	for res := range pool.Results() {
		var r *recordResult
		switch v := res.(type) {
		case *recordResult:
			r = v
		case *worker.PanicResult:
			job, _ := v.Job.(*recordJob)
			r = &recordResult{outcome: OutcomeFailed, err: v.Err}
			if job != nil {
				r.record = job.record
			}
		default:
			continue
		}

		summary.count(r)
		key := r.record.Key().String()
		switch {
		case r.outcome == OutcomeFailed:
			logger.Error("record failed", "record", key, "error", r.err)
		case r.outcome == OutcomeOracleFailed:
			logger.Warn("generation failed, record left for next run", "record", key, "error", r.err)
		case r.outcome != OutcomeSkipped:
			logger.Info("record processed", "record", key, "outcome", r.outcome.String())
		}

		if r.outcome.Persisted() {
			if err := batcher.Add(flushCtx, r.record); err != nil {
				summary.FlushErrors++
				logger.Error("flush failed, keeping buffer", "pending", batcher.Pending(), "error", err)
			}
		}
	}

	finalErr := batcher.Flush(flushCtx)
	if finalErr != nil {
		summary.FlushErrors++
		logger.Error("final flush failed", "pending", batcher.Pending(), "error", finalErr)
	}
	summary.Persisted = batcher.Flushed()
	summary.Flushes = batcher.Flushes()
	summary.Duration = time.Since(started)
	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].Key < summary.Failures[j].Key
	})

	logger.Info("run finished",
		"enriched", summary.Enriched,
		"rejected", summary.Rejected,
		"skeleton", summary.Skeleton,
		"skipped", summary.Skipped,
		"oracle_failed", summary.OracleFailed,
		"failed", summary.Failed,
		"persisted", summary.Persisted,
		"duration", summary.Duration.Round(time.Millisecond),
	)

	if finalErr != nil {
		return summary, fmt.Errorf("final flush: %w", finalErr)
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

// dedupe keeps the first record per key
func dedupe(records []model.MeteoriteRecord) ([]model.MeteoriteRecord, int) {
	seen := make(map[model.Key]struct{}, len(records))
	out := make([]model.MeteoriteRecord, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.Key()]; ok {
			continue
		}
		seen[r.Key()] = struct{}{}
		out = append(out, r)
	}
	return out, len(records) - len(out)
}

type recordJob struct {
	processor *Processor
	record    model.MeteoriteRecord
	persisted map[model.Key]struct{}
	skeleton  bool
}

func (j *recordJob) Execute(ctx context.Context) worker.Result {
	if j.skeleton {
		rec, outcome := j.processor.Skeleton(j.record, j.persisted)
		return &recordResult{record: rec, outcome: outcome}
	}
	rec, outcome, err := j.processor.Process(ctx, j.record, j.persisted)
	if err != nil && outcome != OutcomeOracleFailed {
		outcome = OutcomeFailed
	}
	return &recordResult{record: rec, outcome: outcome, err: err}
}

type recordResult struct {
	record  model.MeteoriteRecord
	outcome Outcome
	err     error
}

func (r *recordResult) GetError() error {
	return r.err
}
