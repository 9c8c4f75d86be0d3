package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const ollamaDefaultURL = "http://localhost:11434"

// OllamaProvider implements the Provider interface for local Ollama models
type OllamaProvider struct {
	client     llms.Model
	baseURL    string
	httpClient *http.Client
	config     Config
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = ollamaDefaultURL
	}
	if config.Model == "" {
		config.Model = "llama3"
	}

	httpClient := &http.Client{
		Timeout:   config.timeout(120 * time.Second),
		Transport: proxyTransport(config),
	}

	client, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(config.Model),
		ollama.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}

	return &OllamaProvider{
		client:     client,
		baseURL:    baseURL,
		httpClient: httpClient,
		config:     config,
	}, nil
}

// Name returns the provider name
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// IsAvailable checks that the Ollama server answers /api/tags
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		slog.Warn("Ollama availability check failed", "error", err)
		return false
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		slog.Warn("Ollama availability check failed", "url", p.baseURL, "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("Ollama availability check failed", "url", p.baseURL, "status", resp.StatusCode)
		return false
	}
	return true
}

// Generate runs one chat exchange against the local model
func (p *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemFor(req))},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(req.Prompt)},
		},
	}

	model := p.config.modelFor(req, "llama3")
	response, err := p.client.GenerateContent(ctx, content,
		llms.WithModel(model),
		llms.WithTemperature(p.config.Temperature),
		llms.WithMaxTokens(p.config.maxTokens(req)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: Ollama error: %w", ErrGeneration, err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response from Ollama", ErrGeneration)
	}

	text := strings.TrimSpace(response.Choices[0].Content)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response from Ollama", ErrGeneration)
	}

	return &GenerateResponse{
		Text:       text,
		Model:      model,
		TokensUsed: tokensFrom(response.Choices[0].GenerationInfo),
	}, nil
}

func tokensFrom(info map[string]any) int {
	total := 0
	for _, k := range []string{"PromptTokens", "CompletionTokens"} {
		if v, ok := info[k].(int); ok {
			total += v
		}
	}
	return total
}
