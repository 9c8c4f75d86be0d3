package llm

import (
	"context"
	"errors"
	"time"

	"github.com/kervino2/Meteora/internal/model"
)

var (
	// ErrGeneration tags every failure of a generation call. Callers treat it
	// as "no enrichment this round" rather than a record failure.
	ErrGeneration = errors.New("generation failed")
	// ErrNoProvider is returned by NewProvider when no provider is configured
	ErrNoProvider = errors.New("no LLM provider configured")
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate returns the model's free-form answer to a prompt
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// GenerateRequest contains the input for one generation call
type GenerateRequest struct {
	// Prompt is the user message
	Prompt string

	// System overrides the default system message
	System string

	// Model overrides the configured model
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// GenerateResponse contains the model output
type GenerateResponse struct {
	// Text is the raw answer, trimmed
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption when the provider reports it
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout per request
	Timeout time.Duration

	// MaxTokens for response generation
	MaxTokens int

	// Temperature for sampling
	Temperature float64

	// Retries after the first failed attempt
	Retries    int
	RetryDelay time.Duration

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return ConfigFromModel(model.DefaultConfig().LLM, model.HTTPConfig{})
}

// ConfigFromModel converts the application config sections to a provider config
func ConfigFromModel(c model.LLMConfig, h model.HTTPConfig) Config {
	return Config{
		Provider:    c.Provider,
		Model:       c.Model,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Timeout:     c.Timeout,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Retries:     c.Retries,
		RetryDelay:  c.RetryDelay,
		HTTPProxy:   h.HTTPProxy,
		HTTPSProxy:  h.HTTPSProxy,
		NoProxy:     h.NoProxy,
	}
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return fallback
}

func (c Config) maxTokens(req GenerateRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 1500
}

func (c Config) modelFor(req GenerateRequest, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	if c.Model != "" {
		return c.Model
	}
	return fallback
}

func systemFor(req GenerateRequest) string {
	if req.System != "" {
		return req.System
	}
	return SystemPrompt
}
