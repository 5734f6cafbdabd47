package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider turns text into a vector. Implementations return the raw
// provider output; callers check the dimension.
type Provider interface {
	Name() string
	Model() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
	ProviderGemini = "gemini"
	ProviderJina   = "jina"
	ProviderHash   = "hash"
)

const jinaBaseURL = "https://api.jina.ai/v1"

type Options struct {
	Provider        string
	Model           string
	BaseURL         string
	APIKey          string
	AzureEndpoint   string
	AzureDeployment string
	Dimension       int
	Timeout         time.Duration
}

// New builds the provider named by opts.Provider.
func New(opts Options) (Provider, error) {
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", opts.Dimension)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	switch strings.ToLower(opts.Provider) {
	case ProviderOllama, "":
		return NewOllamaProvider(opts.BaseURL, opts.Model, opts.Dimension, opts.Timeout), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(opts.APIKey, opts.BaseURL, opts.Model, opts.Dimension)
	case ProviderJina:
		// Jina serves an OpenAI-compatible embeddings endpoint.
		baseURL := opts.BaseURL
		if baseURL == "" {
			baseURL = jinaBaseURL
		}
		return NewOpenAIProvider(opts.APIKey, baseURL, opts.Model, opts.Dimension)
	case ProviderAzure:
		return NewAzureProvider(opts.AzureEndpoint, opts.APIKey, opts.AzureDeployment, opts.Dimension)
	case ProviderGemini:
		return NewGeminiProvider(opts.APIKey, opts.Model, opts.Dimension, opts.Timeout), nil
	case ProviderHash:
		return NewHashProvider(opts.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}
}
