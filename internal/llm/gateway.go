package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/neuralchat/ragserver/internal/config"
	"github.com/neuralchat/ragserver/internal/retry"
)

type gateway struct {
	providers         map[string]Provider
	defaultProvider   string
	fallbackProvider  string
	embeddingProvider string
}

// NewGateway registers every provider that has credentials in cfg. Chat
// calls are made once per provider: a failed primary call falls over to
// the fallback provider, except on timeouts and cancellation.
func NewGateway(cfg config.LLMConfig, emb config.EmbeddingConfig) Gateway {
	providers := make(map[string]Provider)

	if cfg.APIKey != "" || cfg.BaseURL != "" {
		providers["openai"] = NewOpenAIProvider(OpenAIOptions{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			VerifySSL: cfg.VerifySSL,
		})
	}
	if cfg.AnthropicKey != "" {
		providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicKey)
	}
	if cfg.OllamaURL != "" {
		providers["ollama"] = NewOllamaProvider(cfg.OllamaURL)
	}

	return NewGatewayWithProviders(providers, cfg.Provider, cfg.FallbackProvider, emb.Provider)
}

func NewGatewayWithProviders(providers map[string]Provider, defaultProvider, fallbackProvider, embeddingProvider string) Gateway {
	if embeddingProvider == "" {
		embeddingProvider = defaultProvider
	}
	return &gateway{
		providers:         providers,
		defaultProvider:   defaultProvider,
		fallbackProvider:  fallbackProvider,
		embeddingProvider: embeddingProvider,
	}
}

func (g *gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

func (g *gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	resp, err := g.chat(ctx, providerName, req)
	if err == nil || !g.canFallback(ctx, providerName, err) {
		return resp, err
	}

	slog.Warn("primary provider failed, trying fallback",
		"primary", providerName,
		"fallback", g.fallbackProvider,
		"error", err,
	)
	return g.chat(ctx, g.fallbackProvider, req)
}

func (g *gateway) canFallback(ctx context.Context, primary string, err error) bool {
	if g.fallbackProvider == "" || g.fallbackProvider == primary {
		return false
	}
	if ctx.Err() != nil || retry.IsTimeout(err) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func (g *gateway) chat(ctx context.Context, providerName string, req ChatRequest) (*ChatResponse, error) {
	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}
	resp, err := p.ChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s chat: %w", providerName, err)
	}
	return resp, nil
}

func (g *gateway) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.embeddingProvider
	}

	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}

	return p.GenerateEmbedding(ctx, req)
}

func (g *gateway) ListModels() []ModelInfo {
	var models []ModelInfo
	for _, p := range g.providers {
		for _, m := range p.Models() {
			models = append(models, ModelInfo{
				Provider: p.Name(),
				Model:    m,
				Type:     modelType(m),
			})
		}
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].Provider != models[j].Provider {
			return models[i].Provider < models[j].Provider
		}
		return models[i].Model < models[j].Model
	})
	return models
}
