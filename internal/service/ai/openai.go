package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-mentor/backend/internal/config"
	"github.com/zhouzirui/z-mentor/backend/internal/observe"
	"github.com/zhouzirui/z-mentor/backend/internal/service/secret"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// including Gemini's compatibility layer under .../v1beta/openai.
type OpenAIClient struct {
	baseURL         string
	model           string
	temperature     float64
	maxOutputTokens int64
	apiKeySecret    string

	secrets secret.Provider
	options clientOptions
	logger  *zap.Logger
	metrics *observe.Metrics
}

// NewOpenAIClient builds a chat completions client from cfg.
func NewOpenAIClient(cfg config.ResponderConfig, secrets secret.Provider, logger *zap.Logger, metrics *observe.Metrics, opts ...Option) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIClient{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/") + "/",
		model:           cfg.ModelID,
		temperature:     cfg.Temperature,
		maxOutputTokens: int64(cfg.MaxOutputTokens),
		apiKeySecret:    cfg.APIKeySecret,
		secrets:         secrets,
		options:         applyOptions(opts),
		logger:          logger.Named("openai"),
		metrics:         metrics,
	}
}

// Generate sends prompt as a single user message.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (Reply, error) {
	start := time.Now()
	reply, err := c.generate(ctx, prompt)

	outcome := string(reply.Outcome)
	if err != nil {
		outcome = "error"
	}
	c.metrics.RecordGeneration(ctx, config.ProviderOpenAI, outcome, time.Since(start))
	return reply, err
}

func (c *OpenAIClient) generate(ctx context.Context, prompt string) (Reply, error) {
	apiKey, err := c.secrets.Resolve(ctx, c.apiKeySecret)
	if err != nil {
		return Reply{}, fmt.Errorf("resolve generator api key: %w", err)
	}

	client := oai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(c.baseURL),
		option.WithHTTPClient(c.options.httpClient),
		// One request per prompt; the pipeline never retries.
		option.WithMaxRetries(0),
	)

	resp, err := client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    []oai.ChatCompletionMessageParamUnion{oai.UserMessage(prompt)},
		Temperature: param.NewOpt(c.temperature),
		MaxTokens:   param.NewOpt(c.maxOutputTokens),
	})
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			c.logger.Error("generator call failed",
				zap.Int("status", apiErr.StatusCode),
				zap.String("body", truncate(apiErr.RawJSON(), maxLoggedBody)),
				zap.String("model", c.model),
			)
			return Reply{Outcome: OutcomeFailed}, nil
		}
		return Reply{}, fmt.Errorf("generator request failed: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		c.logger.Warn("generator response had no usable text, using fallback", zap.String("model", c.model))
		return fallbackReply(), nil
	}
	return Reply{Text: strings.TrimSpace(resp.Choices[0].Message.Content), Outcome: OutcomeOK}, nil
}
