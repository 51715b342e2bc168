package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zhouzirui/z-mentor/backend/internal/config"
	"github.com/zhouzirui/z-mentor/backend/internal/observe"
	"github.com/zhouzirui/z-mentor/backend/internal/service/secret"
)

// GenAIClient sends the same single-turn request as GeminiClient through the
// official SDK. The key travels in a header instead of the query string.
type GenAIClient struct {
	model           string
	temperature     float32
	maxOutputTokens int32
	apiKeySecret    string
	httpOptions     genai.HTTPOptions

	secrets    secret.Provider
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *observe.Metrics
}

// NewGenAIClient builds an SDK-backed client. The API key is resolved on every
// call, so rotated secrets apply without a restart.
func NewGenAIClient(cfg config.ResponderConfig, secrets secret.Provider, logger *zap.Logger, metrics *observe.Metrics, opts ...Option) *GenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	root, version := splitAPIVersion(cfg.BaseURL)
	return &GenAIClient{
		model:           cfg.ModelID,
		temperature:     float32(cfg.Temperature),
		maxOutputTokens: int32(cfg.MaxOutputTokens),
		apiKeySecret:    cfg.APIKeySecret,
		httpOptions:     genai.HTTPOptions{BaseURL: root, APIVersion: version},
		secrets:         secrets,
		httpClient:      applyOptions(opts).httpClient,
		logger:          logger.Named("genai"),
		metrics:         metrics,
	}
}

// Generate mirrors GeminiClient.Generate: provider rejections are logged and
// reported as OutcomeFailed, empty answers yield FallbackText.
func (c *GenAIClient) Generate(ctx context.Context, prompt string) (Reply, error) {
	start := time.Now()
	reply, err := c.generate(ctx, prompt)

	outcome := string(reply.Outcome)
	if err != nil {
		outcome = "error"
	}
	c.metrics.RecordGeneration(ctx, config.ProviderGenAI, outcome, time.Since(start))
	return reply, err
}

func (c *GenAIClient) generate(ctx context.Context, prompt string) (Reply, error) {
	apiKey, err := c.secrets.Resolve(ctx, c.apiKeySecret)
	if err != nil {
		return Reply{}, fmt.Errorf("resolve generator api key: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  c.httpClient,
		HTTPOptions: c.httpOptions,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("create genai client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: c.maxOutputTokens,
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			c.logger.Error("generator call failed",
				zap.Int("status", apiErr.Code),
				zap.String("body", truncate(apiErr.Message, maxLoggedBody)),
				zap.String("model", c.model),
			)
			return Reply{Outcome: OutcomeFailed}, nil
		}
		return Reply{}, fmt.Errorf("generator request failed: %w", err)
	}

	text := firstPartText(resp)
	if text == "" {
		c.logger.Warn("generator response had no usable text, using fallback", zap.String("model", c.model))
		return fallbackReply(), nil
	}
	return Reply{Text: text, Outcome: OutcomeOK}, nil
}

// firstPartText reads only the first part of the first candidate, matching
// the REST client; resp.Text() would join every part.
func firstPartText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 || content.Parts[0] == nil {
		return ""
	}
	return strings.TrimSpace(content.Parts[0].Text)
}

// splitAPIVersion turns ".../v1beta" into the SDK's separate base URL and
// version. An empty base keeps the SDK defaults.
func splitAPIVersion(base string) (string, string) {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return "", ""
	}
	idx := strings.LastIndex(base, "/")
	if idx < 0 {
		return base + "/", ""
	}
	if last := base[idx+1:]; strings.HasPrefix(last, "v1") {
		return base[:idx+1], last
	}
	return base + "/", ""
}
