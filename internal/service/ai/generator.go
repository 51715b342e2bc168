package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-mentor/backend/internal/config"
	"github.com/zhouzirui/z-mentor/backend/internal/observe"
	"github.com/zhouzirui/z-mentor/backend/internal/service/secret"
)

// Generator is implemented by every provider client in this package.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Reply, error)
}

// NewFromConfig builds the client selected by cfg.Responder.Provider.
func NewFromConfig(ctx context.Context, cfg *config.Config, secrets secret.Provider, logger *zap.Logger, metrics *observe.Metrics) (Generator, error) {
	switch cfg.Responder.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg.Responder, secrets, logger, metrics), nil
	case config.ProviderGenAI:
		return NewGenAIClient(cfg.Responder, secrets, logger, metrics), nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg.Responder, secrets, logger, metrics), nil
	case config.ProviderArk:
		chatModel, err := cfg.Ark.NewChatModel(ctx, cfg.Responder)
		if err != nil {
			return nil, fmt.Errorf("failed to create ark chat model: %w", err)
		}
		return NewArkClient(ctx, chatModel, cfg.Responder.ModelID, logger, metrics)
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Responder.Provider)
	}
}
