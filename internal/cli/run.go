package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kervino2/Meteora/internal/cache"
	"github.com/kervino2/Meteora/internal/ingest"
	"github.com/kervino2/Meteora/internal/llm"
	"github.com/kervino2/Meteora/internal/match"
	"github.com/kervino2/Meteora/internal/model"
	"github.com/kervino2/Meteora/internal/pipeline"
	"github.com/kervino2/Meteora/internal/score"
	"github.com/kervino2/Meteora/internal/search"
	"github.com/kervino2/Meteora/internal/store"
	"github.com/kervino2/Meteora/internal/util"
	"github.com/kervino2/Meteora/internal/worker"
)

var (
	filtersFile string
	noCache     bool
	runTimeout  time.Duration
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Link, enrich and persist meteorite records",
	Long: `Run performs one enrichment pass:
- Read the MetBull and CNEOS tables
- Link records to fireball events by position and year
- Select a tier (manual, qualifying or skeleton)
- Search the web, gate the text for relevance and ask the model for notes
- Merge results into the JSON snapshot every few records

Records already in the snapshot are skipped, so an interrupted run resumes
where it stopped.

Example:
  meteora run
  meteora run --mode qualifying --workers 4
  meteora run --mode manual --filters-file famous.txt --llm-provider openai`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, runFlagKeys)
	},
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.String("mode", "", "processing tier: manual, qualifying, skeleton")
	f.Int("workers", 0, "number of concurrent workers")
	f.String("meteorites", "", "MetBull CSV path")
	f.String("events", "", "CNEOS fireball CSV path")
	f.String("llm-provider", "", "LLM provider (openai, anthropic, ollama, none)")
	f.String("llm-model", "", "LLM model name")
	f.StringVar(&filtersFile, "filters-file", "", "file with one manual filter name per line")
	f.BoolVar(&noCache, "no-cache", false, "disable the page and search cache")
	f.DurationVar(&runTimeout, "timeout", 0, "overall run timeout (0 means none)")

}

var runFlagKeys = map[string]string{
	"mode":         "pipeline.mode",
	"workers":      "pipeline.workers",
	"meteorites":   "inputs.meteorites",
	"events":       "inputs.events",
	"llm-provider": "llm.provider",
	"llm-model":    "llm.model",
}

// bindFlags binds the command's flags to config keys. It runs before the
// command executes, since a viper key holds one flag binding at a time.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	return nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if noCache {
		cfg.Cache.Enabled = false
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	logger := slog.Default()
	reader := ingest.NewReader(logger)
	records, err := reader.Meteorites(cfg.Inputs.Meteorites)
	if err != nil {
		return fmt.Errorf("read meteorites: %w", err)
	}
	events, err := reader.Events(cfg.Inputs.Events)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}

	filters := cfg.Pipeline.ManualFilters
	if filtersFile != "" {
		if filters, err = worker.ReadLines(filtersFile); err != nil {
			return fmt.Errorf("read filters: %w", err)
		}
	}

	orch, err := buildOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	printBanner(os.Stderr, cfg, len(records), len(events))
	summary, runErr := orch.Run(ctx, records, events, filters)
	if summary != nil {
		printSummary(os.Stderr, summary, shouldColorize(os.Stderr))
	}
	return runErr
}

// buildOrchestrator wires the retrieval stack, the provider and the store
// from cfg. A missing provider is not fatal: records then end as oracle
// failures and are retried on the next run.
func buildOrchestrator(cfg model.Config, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	component := func(name string) *slog.Logger {
		return logger.With("component", name)
	}

	pageCache := cache.New(cfg.Cache)
	limiter := worker.NewLimiter(cfg.Search.RequestsPerSecond, cfg.Search.Burst)

	fetchOpts := []search.FetcherOption{
		search.WithLimiter(limiter),
		search.WithPageCache(pageCache, cfg.Cache.DiskTTL),
		search.WithFetcherLogger(component("fetcher")),
	}
	if cfg.Search.RespectRobots {
		transport := util.NewTransport(cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)
		fetchOpts = append(fetchOpts, search.WithRobots(util.NewRobotsChecker(cfg.HTTP.UserAgent, cfg.HTTP.Timeout, transport)))
	}
	fetcher := search.NewFetcher(cfg.HTTP, fetchOpts...)
	engine := search.NewDuckDuckGo(cfg.Search, cfg.HTTP, limiter, pageCache, cfg.Cache.DiskTTL)
	searcher := search.FromConfig(cfg.Search, engine, fetcher, component("search"))

	var provider llm.Provider
	if cfg.Pipeline.Mode != model.ModeSkeleton {
		p, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
		switch {
		case errors.Is(err, llm.ErrNoProvider):
			logger.Warn("no LLM provider configured; selected records will not be enriched")
		case err != nil:
			return nil, fmt.Errorf("create LLM provider: %w", err)
		default:
			provider = p
		}
	}

	processor := pipeline.NewProcessor(searcher, score.NewRelevanceFilter(), provider,
		pipeline.WithSearchResults(cfg.Search.Results),
		pipeline.WithMaxReferenceChars(cfg.LLM.MaxRefChars),
		pipeline.WithProcessorLogger(component("processor")),
	)
	matcher := match.New(
		match.WithMaxDistance(cfg.Match.MaxDistance),
		match.WithYearTolerance(cfg.Match.YearTolerance),
		match.WithLogger(component("match")),
	)
	st := store.New(cfg.Store.Path, store.WithLogger(component("store")))

	return pipeline.New(matcher, processor, st,
		pipeline.WithMode(cfg.Pipeline.Mode),
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithFlushEvery(cfg.Store.FlushEvery),
		pipeline.WithMassThreshold(cfg.Pipeline.MassThreshold),
		pipeline.WithLogger(component("pipeline")),
	), nil
}
