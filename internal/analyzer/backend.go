package analyzer

import (
	"context"
	"fmt"
	"strings"

	"pinganalyst/internal/services/gemini"
	"pinganalyst/internal/services/llm"
	"pinganalyst/internal/services/openai"
)

// Provider names accepted in configuration.
const (
	ProviderGateway = "gateway"
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
)

// BackendConfig selects and configures a Backend.
type BackendConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// NewBackend builds the backend named by cfg.Provider.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderGateway:
		return llm.NewClient(llm.Config{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			Referer:        cfg.Referer,
			Title:          cfg.Title,
			TimeoutSeconds: cfg.TimeoutSeconds,
		}), nil
	case ProviderGemini:
		return gemini.NewClient(ctx, gemini.Config{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			TimeoutSeconds: cfg.TimeoutSeconds,
		})
	case ProviderOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			TimeoutSeconds: cfg.TimeoutSeconds,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
