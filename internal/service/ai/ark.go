package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-mentor/backend/internal/config"
	"github.com/zhouzirui/z-mentor/backend/internal/observe"
)

// ArkClient generates replies through an eino chain over an Ark chat model.
type ArkClient struct {
	modelID string
	chain   compose.Runnable[map[string]any, *schema.Message]
	logger  *zap.Logger
	metrics *observe.Metrics
}

// NewArkClient compiles the single-message chain around chatModel.
func NewArkClient(ctx context.Context, chatModel model.ChatModel, modelID string, logger *zap.Logger, metrics *observe.Metrics) (*ArkClient, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// The whole prompt travels as one user message, mirroring the REST client.
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.UserMessage("{prompt}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkClient{
		modelID: modelID,
		chain:   runnable,
		logger:  logger.Named("ark"),
		metrics: metrics,
	}, nil
}

// Generate runs the chain once. Provider errors are logged and reported as
// OutcomeFailed; an empty answer yields FallbackText.
func (c *ArkClient) Generate(ctx context.Context, promptText string) (Reply, error) {
	start := time.Now()
	reply := c.generate(ctx, promptText)
	c.metrics.RecordGeneration(ctx, config.ProviderArk, string(reply.Outcome), time.Since(start))
	return reply, nil
}

func (c *ArkClient) generate(ctx context.Context, promptText string) Reply {
	response, err := c.chain.Invoke(ctx, map[string]any{"prompt": promptText})
	if err != nil {
		c.logger.Error("generator call failed", zap.String("model", c.modelID), zap.Error(err))
		return Reply{Outcome: OutcomeFailed}
	}

	if response == nil || strings.TrimSpace(response.Content) == "" {
		c.logger.Warn("generator response had no usable text, using fallback", zap.String("model", c.modelID))
		return fallbackReply()
	}

	c.logger.Debug("generated response", zap.String("model", c.modelID), zap.Int("length", len(response.Content)))
	return Reply{Text: strings.TrimSpace(response.Content), Outcome: OutcomeOK}
}
