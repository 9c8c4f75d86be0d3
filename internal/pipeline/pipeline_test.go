package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kervino2/Meteora/internal/extract"
	"github.com/kervino2/Meteora/internal/llm"
	"github.com/kervino2/Meteora/internal/match"
	"github.com/kervino2/Meteora/internal/model"
	"github.com/kervino2/Meteora/internal/score"
	"github.com/kervino2/Meteora/internal/search"
	"github.com/kervino2/Meteora/internal/store"
)

type fakeSearcher struct {
	mu      sync.Mutex
	calls   []string
	texts   map[string]string
	panicOn string
}

func (f *fakeSearcher) Search(ctx context.Context, rec model.MeteoriteRecord, n int) search.Result {
	f.mu.Lock()
	f.calls = append(f.calls, rec.Name)
	f.mu.Unlock()
	if rec.Name == f.panicOn {
		panic("parser exploded")
	}
	text := f.texts[rec.Name]
	return search.Result{
		Query:        search.Query(rec),
		Matches:      []search.Match{{Title: rec.Name, URL: "https://example.org/" + rec.Name, Body: text}},
		CombinedText: text,
	}
}

func (f *fakeSearcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// gateByText accepts any text containing "relevant"
type gateByText struct{}

func (gateByText) IsRelevant(text, name string) bool {
	return strings.Contains(text, "relevant")
}

type fakeProvider struct {
	calls  atomic.Int32
	fail   bool
	answer func(prompt string) string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *fakeProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	p.calls.Add(1)
	if p.fail {
		return nil, errors.New("connection reset")
	}
	text := "name: Generated\nhistory: A long story."
	if p.answer != nil {
		text = p.answer(req.Prompt)
	}
	return &llm.GenerateResponse{Text: text, Model: "fake-1"}, nil
}

func rec(name, year, mass string) model.MeteoriteRecord {
	return model.MeteoriteRecord{Name: name, Year: year, Mass: mass}
}

func TestQualifies(t *testing.T) {
	tests := []struct {
		name string
		rec  model.MeteoriteRecord
		want bool
	}{
		{"heavy", rec("Hoba", "1920", "60000000"), true},
		{"exact threshold", rec("A", "2000", "4000"), true},
		{"light", rec("B", "2000", "3999.9"), false},
		{"comma mass", rec("C", "2000", "4,500"), true},
		{"non-numeric", rec("D", "2000", "unknown"), false},
		{"photos only", model.MeteoriteRecord{Name: "E", Mass: "1", Photos: []model.Photo{{Author: "x"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Qualifies(tt.rec, DefaultMassThreshold))
		})
	}
}

func TestClassify(t *testing.T) {
	records := []model.MeteoriteRecord{
		rec("Allende", "1969", "2000000"),
		rec("Sikhote-Alin", "1947", "23000000"),
		rec("Small", "2001", "12"),
		rec("ALI", "2002", "5"),
		rec("Gibeon", "1836", "26000000"),
	}

	tiers := Classify(records, DefaultMassThreshold, []string{"allende", "sikhote-ALIN", "ali", "  "})

	names := func(rs []model.MeteoriteRecord) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.Name)
		}
		return out
	}

	assert.Equal(t, []string{"Allende", "Sikhote-Alin", "Gibeon"}, names(tiers.Qualifying))
	assert.Equal(t, []string{"Small", "ALI"}, names(tiers.NonQualifying))
	// "ali" is a substring filter, so it also catches Sikhote-Alin.
	assert.Equal(t, []string{"Allende", "Sikhote-Alin", "ALI"}, names(tiers.Manual))

	assert.Equal(t, names(tiers.Manual), names(tiers.Select(model.ModeManual)))
	assert.Equal(t, names(tiers.Qualifying), names(tiers.Select(model.ModeQualifying)))
	assert.Equal(t, names(tiers.NonQualifying), names(tiers.Select(model.ModeSkeleton)))
}

func TestNameFilter_UnicodeFolding(t *testing.T) {
	f := NewNameFilter([]string{"ÉTAIN", "straße"})
	assert.True(t, f.Match("Meteorite d'étain"))
	assert.True(t, f.Match("STRASSE 12"))
	assert.False(t, f.Match("Hoba"))
	assert.False(t, NewNameFilter(nil).Match("Hoba"))
}

func TestProcessor_Process(t *testing.T) {
	searcher := &fakeSearcher{texts: map[string]string{
		"Hoba":   "relevant reference text",
		"Boring": "cookie policy",
	}}
	provider := &fakeProvider{}
	p := NewProcessor(searcher, gateByText{}, provider)
	ctx := context.Background()

	t.Run("accepted text is generated and merged", func(t *testing.T) {
		out, outcome, err := p.Process(ctx, rec("Hoba", "1920", "60000000"), nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeEnriched, outcome)
		name, _ := out.Get(model.FieldName)
		history, _ := out.Get(model.FieldHistory)
		videos, ok := out.Get(model.FieldVideos)
		assert.Equal(t, "Generated", name)
		assert.Equal(t, "A long story.", history)
		assert.True(t, ok)
		assert.Equal(t, model.NoInformation, videos)
		assert.True(t, out.Complete())
	})

	t.Run("rejected text spends no generation call", func(t *testing.T) {
		before := provider.calls.Load()
		out, outcome, err := p.Process(ctx, rec("Boring", "2000", "1"), nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRejected, outcome)
		assert.Equal(t, before, provider.calls.Load())
		for _, spec := range model.Fields() {
			v, _ := out.Get(spec.Field)
			assert.Equal(t, model.NoInformation, v, spec.Label)
		}
	})

	t.Run("persisted key is skipped", func(t *testing.T) {
		before := searcher.count()
		r := rec("Hoba", "1920", "1")
		out, outcome, err := p.Process(ctx, r, map[model.Key]struct{}{r.Key(): {}})
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, outcome)
		assert.Equal(t, r, out)
		assert.Equal(t, before, searcher.count())
	})
}

func TestProcessor_OracleFailureKeepsRecord(t *testing.T) {
	searcher := &fakeSearcher{texts: map[string]string{"Hoba": "relevant"}}
	in := rec("Hoba", "1920", "60000000")
	history := "Known since 1920."
	in.AIHistory = &history

	for _, provider := range []llm.Provider{&fakeProvider{fail: true}, nil} {
		p := NewProcessor(searcher, gateByText{}, provider)
		out, outcome, err := p.Process(context.Background(), in, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, llm.ErrGeneration)
		assert.Equal(t, OutcomeOracleFailed, outcome)
		assert.Equal(t, in, out, "record must come back unmodified")
	}
}

func TestProcessor_Skeleton(t *testing.T) {
	p := NewProcessor(&fakeSearcher{}, gateByText{}, nil)
	out, outcome := p.Skeleton(rec("Small", "2001", "3"), nil)
	assert.Equal(t, OutcomeSkeleton, outcome)
	assert.True(t, out.Complete())

	_, outcome = p.Skeleton(out, map[model.Key]struct{}{out.Key(): {}})
	assert.Equal(t, OutcomeSkipped, outcome)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(filepath.Join(t.TempDir(), "enriched.json"))
}

func TestOrchestrator_Run(t *testing.T) {
	records := []model.MeteoriteRecord{
		rec("Hoba", "1920", "60000000"),
		rec("Willamette", "1902", "15500000"),
		rec("Allende", "1969", "2000000"),
		rec("Unlisted", "1999", "10"),
		rec("Hoba", "1920", "60000000"),
	}
	searcher := &fakeSearcher{texts: map[string]string{
		"Hoba":       "relevant",
		"Willamette": "relevant",
		"Allende":    "nothing useful",
	}}
	provider := &fakeProvider{}
	st := newTestStore(t)

	o := New(match.New(), NewProcessor(searcher, gateByText{}, provider), st,
		WithWorkers(3), WithFlushEvery(2))

	filters := []string{"hoba", "willamette", "allende"}
	summary, err := o.Run(context.Background(), records, nil, filters)
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, model.ModeManual, summary.Mode)
	assert.Equal(t, 3, summary.Selected)
	assert.Equal(t, 1, summary.Skipped, "duplicate key counts as skipped")
	assert.Equal(t, 2, summary.Enriched)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 3, summary.Persisted)
	assert.Equal(t, 2, summary.Flushes)
	assert.Equal(t, 3, summary.SnapshotSize)
	assert.Equal(t, int32(2), provider.calls.Load())

	loaded, err := st.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.NotContains(t, loaded, model.Key{Name: "Unlisted", Year: "1999"})
	for _, r := range loaded {
		assert.True(t, r.Complete(), r.Name)
	}

	// A second run over the same inputs makes no oracle or search calls.
	searches := searcher.count()
	summary, err = o.Run(context.Background(), records, nil, filters)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Skipped)
	assert.Equal(t, 0, summary.Enriched+summary.Rejected)
	assert.Equal(t, 0, summary.Persisted)
	assert.Equal(t, 0, summary.Flushes)
	assert.Equal(t, int32(2), provider.calls.Load())
	assert.Equal(t, searches, searcher.count())
}

func TestOrchestrator_FailuresDoNotAbort(t *testing.T) {
	records := []model.MeteoriteRecord{
		rec("Hoba", "1920", "60000000"),
		rec("Gibeon", "1836", "26000000"),
		rec("Allende", "1969", "2000000"),
	}
	searcher := &fakeSearcher{
		texts:   map[string]string{"Hoba": "relevant", "Allende": "relevant"},
		panicOn: "Gibeon",
	}
	provider := &fakeProvider{answer: func(prompt string) string {
		if strings.Contains(prompt, "name: Allende") {
			return "name: Allende"
		}
		return "name: Hoba"
	}}
	st := newTestStore(t)
	o := New(match.New(), NewProcessor(searcher, gateByText{}, provider), st, WithWorkers(2))

	summary, err := o.Run(context.Background(), records, nil, []string{"o", "e"})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Enriched)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "Gibeon (1836)", summary.Failures[0].Key)
	assert.Contains(t, summary.Failures[0].Error, "panicked")

	keys, err := st.Keys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	_, ok := keys[model.Key{Name: "Gibeon", Year: "1836"}]
	assert.False(t, ok, "failed record is not persisted")
}

func TestOrchestrator_OracleFailureRetriedNextRun(t *testing.T) {
	records := []model.MeteoriteRecord{rec("Hoba", "1920", "60000000")}
	searcher := &fakeSearcher{texts: map[string]string{"Hoba": "relevant"}}
	st := newTestStore(t)

	down := &fakeProvider{fail: true}
	summary, err := New(match.New(), NewProcessor(searcher, gateByText{}, down), st).
		Run(context.Background(), records, nil, []string{"Hoba"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.OracleFailed)
	assert.Equal(t, 0, summary.Persisted)
	assert.Equal(t, 1, summary.OracleCalls())

	up := &fakeProvider{}
	summary, err = New(match.New(), NewProcessor(searcher, gateByText{}, up), st).
		Run(context.Background(), records, nil, []string{"Hoba"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Enriched)
	assert.Equal(t, 1, summary.Persisted)
}

func TestOrchestrator_SkeletonMode(t *testing.T) {
	records := []model.MeteoriteRecord{
		rec("Hoba", "1920", "60000000"),
		rec("Tiny", "2001", "3"),
		rec("Speck", "2002", "nope"),
	}
	searcher := &fakeSearcher{}
	st := newTestStore(t)

	o := New(match.New(), NewProcessor(searcher, gateByText{}, nil), st, WithMode(model.ModeSkeleton))
	summary, err := o.Run(context.Background(), records, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Selected)
	assert.Equal(t, 2, summary.Skeleton)
	assert.Equal(t, 2, summary.Persisted)
	assert.Zero(t, searcher.count(), "skeleton mode never searches")

	loaded, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, loaded, model.Key{Name: "Tiny", Year: "2001"})
	assert.NotContains(t, loaded, model.Key{Name: "Hoba", Year: "1920"})
}

func TestOrchestrator_SyntheticImpacts(t *testing.T) {
	records := []model.MeteoriteRecord{{
		Name: "Chelyabinsk", Year: "2013", Mass: "100000",
		Exact: model.Coordinates{Lat: "54.82", Lon: "61.12"},
	}}
	events := []model.ImpactEvent{
		{Date: "2013-02-15 03:20:33", Lat: "54.8", Lon: "61.1", ImpactEnergy: "440"},
		{Date: "2020-01-01 00:00:00", Lat: "10", Lon: "10", ImpactEnergy: "0.1"},
	}
	st := newTestStore(t)

	o := New(match.New(), NewProcessor(&fakeSearcher{}, gateByText{}, nil), st, WithMode(model.ModeQualifying))
	summary, err := o.Run(context.Background(), records, events, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Records)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Synthetic)
	assert.Equal(t, 1, summary.Selected, "only Chelyabinsk qualifies")
	assert.Equal(t, 1, summary.Rejected)
}

func TestOrchestrator_RealRelevanceGate(t *testing.T) {
	text := "Chelyabinsk meteor: the superbolide exploded over Russia in 2013, " +
		"and the impact shock wave damaged buildings. Fragments were recovered and " +
		"classified as an LL5 ordinary chondrite by researchers studying its composition."
	searcher := &fakeSearcher{texts: map[string]string{"Chelyabinsk": text}}
	provider := &fakeProvider{}
	st := newTestStore(t)

	o := New(match.New(), NewProcessor(searcher, score.NewRelevanceFilter(), provider), st)
	summary, err := o.Run(context.Background(), []model.MeteoriteRecord{rec("Chelyabinsk", "2013", "100000")}, nil, []string{"chelyabinsk"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Enriched)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestOrchestrator_CancelledBeforeRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	searcher := &fakeSearcher{}
	o := New(match.New(), NewProcessor(searcher, gateByText{}, nil), newTestStore(t))
	_, err := o.Run(ctx, []model.MeteoriteRecord{rec("Hoba", "1920", "1")}, nil, []string{"hoba"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, searcher.count())
}

// blockingEngine holds every query until its context ends
type blockingEngine struct {
	once    sync.Once
	started chan struct{}
}

func (e *blockingEngine) Search(ctx context.Context, query string, n int) ([]extract.SearchHit, error) {
	e.once.Do(func() { close(e.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestProcessor_CancelDuringSearchKeepsRecord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := &blockingEngine{started: make(chan struct{})}
	go func() {
		<-engine.started
		cancel()
	}()

	provider := &fakeProvider{}
	p := NewProcessor(search.New(engine, nil), score.NewRelevanceFilter(), provider)
	in := rec("Hoba", "1920", "60000000")
	out, outcome, err := p.Process(ctx, in, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.False(t, outcome.Persisted())
	assert.Equal(t, in, out)
	assert.Zero(t, provider.calls.Load())
}

func TestOrchestrator_CancelDuringSearchRetriedNextRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := &blockingEngine{started: make(chan struct{})}
	go func() {
		<-engine.started
		cancel()
	}()

	st := newTestStore(t)
	records := []model.MeteoriteRecord{rec("Hoba", "1920", "1")}
	key := model.Key{Name: "Hoba", Year: "1920"}

	o := New(match.New(), NewProcessor(search.New(engine, nil), score.NewRelevanceFilter(), &fakeProvider{}), st)
	summary, err := o.Run(ctx, records, nil, []string{"hoba"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Rejected)
	assert.Zero(t, summary.Persisted)
	require.Len(t, summary.Failures, 1)
	assert.Contains(t, summary.Failures[0].Error, context.Canceled.Error())

	keys, err := st.Keys(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, keys, key)

	provider := &fakeProvider{}
	searcher := &fakeSearcher{texts: map[string]string{"Hoba": "relevant"}}
	o = New(match.New(), NewProcessor(searcher, gateByText{}, provider), st)
	summary, err = o.Run(context.Background(), records, nil, []string{"hoba"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Enriched)
	assert.Equal(t, int32(1), provider.calls.Load())

	loaded, err := st.Load(context.Background())
	require.NoError(t, err)
	require.Contains(t, loaded, key)
	name, _ := loaded[key].Get(model.FieldName)
	assert.Equal(t, "Generated", name)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "oracle_failed", OutcomeOracleFailed.String())
	assert.True(t, OutcomeSkeleton.Persisted())
	assert.False(t, OutcomeOracleFailed.Persisted())
	assert.False(t, OutcomeSkipped.Persisted())
}
