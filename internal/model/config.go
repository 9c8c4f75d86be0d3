package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate
var ErrInvalidConfig = errors.New("invalid config")

// Processing modes
const (
	ModeManual     = "manual"
	ModeQualifying = "qualifying"
	ModeSkeleton   = "skeleton"
)

// Config is the complete Meteora configuration
type Config struct {
	Inputs   InputsConfig   `yaml:"inputs" mapstructure:"inputs"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Match    MatchConfig    `yaml:"match" mapstructure:"match"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	LLM      LLMConfig      `yaml:"llm" mapstructure:"llm"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
}

// InputsConfig points at the two source tables
type InputsConfig struct {
	Meteorites string `yaml:"meteorites" mapstructure:"meteorites"`
	Events     string `yaml:"events" mapstructure:"events"`
}

// StoreConfig configures the JSON snapshot
type StoreConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	FlushEvery int    `yaml:"flush_every" mapstructure:"flush_every"`
}

// MatchConfig holds the linkage thresholds
type MatchConfig struct {
	MaxDistance   float64 `yaml:"max_distance" mapstructure:"max_distance"`
	YearTolerance int     `yaml:"year_tolerance" mapstructure:"year_tolerance"`
}

// PipelineConfig selects and schedules the records to enrich
type PipelineConfig struct {
	Mode          string   `yaml:"mode" mapstructure:"mode"`
	Workers       int      `yaml:"workers" mapstructure:"workers"`
	MassThreshold float64  `yaml:"mass_threshold" mapstructure:"mass_threshold"`
	ManualFilters []string `yaml:"manual_filters" mapstructure:"manual_filters"`
}

// SearchConfig configures web retrieval
type SearchConfig struct {
	Endpoint          string        `yaml:"endpoint" mapstructure:"endpoint"`
	Results           int           `yaml:"results" mapstructure:"results"`
	ExcludeDomains    []string      `yaml:"exclude_domains" mapstructure:"exclude_domains"`
	MaxBodyChars      int           `yaml:"max_body_chars" mapstructure:"max_body_chars"`
	SearchTimeout     time.Duration `yaml:"search_timeout" mapstructure:"search_timeout"`
	Deadline          time.Duration `yaml:"deadline" mapstructure:"deadline"`
	FetchConcurrency  int           `yaml:"fetch_concurrency" mapstructure:"fetch_concurrency"`
	RespectRobots     bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
}

// HTTPConfig is shared by every outbound page fetch
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy    string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// CacheConfig configures the page cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// LLMConfig configures the generation provider
type LLMConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider"`
	Model       string        `yaml:"model" mapstructure:"model"`
	APIKey      string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	MaxRefChars int           `yaml:"max_reference_chars" mapstructure:"max_reference_chars"`
	Retries     int           `yaml:"retries" mapstructure:"retries"`
	RetryDelay  time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
}

// ServerConfig configures the read-only API
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// DefaultManualFilters is the curated list of well-known falls and finds
var DefaultManualFilters = []string{
	"Canyon Diablo", "Ali", "Willamette", "Winchcombe", "Fukang", "Hoba",
	"Gancedo", "El Chaco", "Ahnighito", "Bacubirito", "Tunguska",
	"Chelyabinsk", "Barringer", "Chicxulub", "Sikhote-Alin", "Allende",
	"Mbozi", "Armanty",
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() Config {
	return Config{
		Inputs: InputsConfig{
			Meteorites: "data/metbull.csv",
			Events:     "data/cneos_fireballs.csv",
		},
		Store: StoreConfig{
			Path:       "data/meteorites_enriched.json",
			FlushEvery: 10,
		},
		Match: MatchConfig{
			MaxDistance:   0.5,
			YearTolerance: 1,
		},
		Pipeline: PipelineConfig{
			Mode:          ModeManual,
			Workers:       8,
			MassThreshold: 4000,
			ManualFilters: append([]string(nil), DefaultManualFilters...),
		},
		Search: SearchConfig{
			Endpoint:          "https://html.duckduckgo.com/html/",
			Results:           3,
			ExcludeDomains:    []string{"lpi.usra.edu"},
			MaxBodyChars:      5000,
			SearchTimeout:     12 * time.Second,
			Deadline:          time.Minute,
			FetchConcurrency:  3,
			RespectRobots:     true,
			RequestsPerSecond: 1,
			Burst:             2,
		},
		HTTP: HTTPConfig{
			Timeout:      10 * time.Second,
			UserAgent:    "Mozilla/5.0 (compatible; Meteora/0.3; +https://github.com/kervino2/Meteora)",
			MaxBodyBytes: 2 << 20,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".meteora-cache",
			MemoryTTL: time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider:    "ollama",
			Model:       "llama3",
			Timeout:     120 * time.Second,
			MaxTokens:   1500,
			Temperature: 0.3,
			MaxRefChars: 15000,
			Retries:     2,
			RetryDelay:  2 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Validate checks values the pipeline cannot work around
func (c Config) Validate() error {
	switch c.Pipeline.Mode {
	case ModeManual, ModeQualifying, ModeSkeleton:
	default:
		return fmt.Errorf("%w: unknown mode %q (supported: manual, qualifying, skeleton)", ErrInvalidConfig, c.Pipeline.Mode)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("%w: pipeline.workers must be at least 1", ErrInvalidConfig)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required", ErrInvalidConfig)
	}
	if c.Store.FlushEvery < 1 {
		return fmt.Errorf("%w: store.flush_every must be at least 1", ErrInvalidConfig)
	}
	if c.Match.MaxDistance <= 0 {
		return fmt.Errorf("%w: match.max_distance must be positive", ErrInvalidConfig)
	}
	if c.Match.YearTolerance < 0 {
		return fmt.Errorf("%w: match.year_tolerance must not be negative", ErrInvalidConfig)
	}
	if c.Search.Results < 0 {
		return fmt.Errorf("%w: search.results must not be negative", ErrInvalidConfig)
	}
	if c.Search.Deadline < 0 {
		return fmt.Errorf("%w: search.deadline must not be negative", ErrInvalidConfig)
	}
	return nil
}
