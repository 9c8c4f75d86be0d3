package llm

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/kervino2/Meteora/internal/util"
)

// NewProvider creates the provider named in config, wrapped with retries.
// An empty provider name returns ErrNoProvider.
func NewProvider(config Config) (Provider, error) {
	var (
		p   Provider
		err error
	)

	switch strings.ToLower(config.Provider) {
	case "openai":
		p, err = NewOpenAIProvider(config)
	case "anthropic", "claude":
		p, err = NewAnthropicProvider(config)
	case "ollama":
		p, err = NewOllamaProvider(config)
	case "", "none":
		return nil, ErrNoProvider
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
	if err != nil {
		return nil, err
	}

	if config.Retries > 0 {
		return WithRetry(p, config.Retries, config.RetryDelay), nil
	}
	return p, nil
}

func proxyTransport(config Config) http.RoundTripper {
	return util.NewTransport(config.HTTPProxy, config.HTTPSProxy, config.NoProxy)
}
