package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kervino2/Meteora/internal/enrich"
	"github.com/kervino2/Meteora/internal/llm"
	"github.com/kervino2/Meteora/internal/model"
	"github.com/kervino2/Meteora/internal/search"
)

// Outcome is what happened to one record
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeEnriched
	OutcomeRejected
	OutcomeSkeleton
	OutcomeOracleFailed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeEnriched:
		return "enriched"
	case OutcomeRejected:
		return "rejected"
	case OutcomeSkeleton:
		return "skeleton"
	case OutcomeOracleFailed:
		return "oracle_failed"
	default:
		return "failed"
	}
}

// Persisted reports whether records with this outcome are written to the store
func (o Outcome) Persisted() bool {
	return o == OutcomeEnriched || o == OutcomeRejected || o == OutcomeSkeleton
}

// Searcher retrieves reference text for a record
type Searcher interface {
	Search(ctx context.Context, rec model.MeteoriteRecord, n int) search.Result
}

// RelevanceGate decides whether retrieved text is worth a generation call
type RelevanceGate interface {
	IsRelevant(text, name string) bool
}

// Processor runs the per-record pipeline: search, gate, generate, parse, merge.
// It holds no per-record state and is safe for concurrent use.
type Processor struct {
	searcher    Searcher
	gate        RelevanceGate
	provider    llm.Provider
	results     int
	maxRefChars int
	logger      *slog.Logger
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithSearchResults sets how many search results are requested per record
func WithSearchResults(n int) ProcessorOption {
	return func(p *Processor) {
		p.results = n
	}
}

// WithMaxReferenceChars caps the retrieved text embedded in the prompt
func WithMaxReferenceChars(n int) ProcessorOption {
	return func(p *Processor) {
		p.maxRefChars = n
	}
}

// WithProcessorLogger sets the logger
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a Processor. provider may be nil for skeleton runs.
func NewProcessor(searcher Searcher, gate RelevanceGate, provider llm.Provider, opts ...ProcessorOption) *Processor {
	p := &Processor{
		searcher:    searcher,
		gate:        gate,
		provider:    provider,
		results:     3,
		maxRefChars: llm.DefaultMaxReferenceChars,
		logger:      slog.Default().With("component", "processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process enriches one record. Records whose key is in persisted are skipped
// without any search or generation. On a generation failure the record is
// returned unmodified with OutcomeOracleFailed and an error wrapping
// llm.ErrGeneration. When ctx ends during retrieval the record is returned
// unmodified with OutcomeFailed, so it is retried on the next run rather than
// persisted as rejected.
func (p *Processor) Process(ctx context.Context, rec model.MeteoriteRecord, persisted map[model.Key]struct{}) (model.MeteoriteRecord, Outcome, error) {
	if _, ok := persisted[rec.Key()]; ok {
		return rec, OutcomeSkipped, nil
	}

	result := p.searcher.Search(ctx, rec, p.results)
	if err := ctx.Err(); err != nil {
		return rec, OutcomeFailed, fmt.Errorf("retrieval interrupted: %w", err)
	}
	if !p.gate.IsRelevant(result.CombinedText, rec.Name) {
		p.logger.Debug("reference text rejected", "record", rec.Key().String(), "sources", len(result.Matches))
		return enrich.Reject(rec), OutcomeRejected, nil
	}

	if p.provider == nil {
		return rec, OutcomeOracleFailed, fmt.Errorf("%w: %w", llm.ErrGeneration, llm.ErrNoProvider)
	}

	resp, err := p.provider.Generate(ctx, llm.GenerateRequest{
		Prompt: llm.BuildPrompt(rec, result.CombinedText, p.maxRefChars),
	})
	if err != nil {
		if errors.Is(err, llm.ErrGeneration) {
			return rec, OutcomeOracleFailed, err
		}
		return rec, OutcomeOracleFailed, fmt.Errorf("%w: %w", llm.ErrGeneration, err)
	}

	bundle := enrich.ParseResponse(resp.Text)
	if len(bundle) == 0 {
		p.logger.Warn("response had no recognizable fields", "record", rec.Key().String(), "model", resp.Model)
	}

	return enrich.Merge(rec, bundle), OutcomeEnriched, nil
}

// Skeleton persists a record with every enrichment slot set to the sentinel,
// without retrieval or generation.
func (p *Processor) Skeleton(rec model.MeteoriteRecord, persisted map[model.Key]struct{}) (model.MeteoriteRecord, Outcome) {
	if _, ok := persisted[rec.Key()]; ok {
		return rec, OutcomeSkipped
	}
	return enrich.Reject(rec), OutcomeSkeleton
}
