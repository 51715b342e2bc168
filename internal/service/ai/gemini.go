package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-mentor/backend/internal/config"
	"github.com/zhouzirui/z-mentor/backend/internal/observe"
	"github.com/zhouzirui/z-mentor/backend/internal/service/secret"
)

const (
	maxResponseBytes = 1 << 20
	maxLoggedBody    = 4 << 10
)

// GeminiClient calls the generateContent REST endpoint once per prompt.
type GeminiClient struct {
	baseURL         string
	model           string
	temperature     float64
	maxOutputTokens int
	apiKeySecret    string

	secrets    secret.Provider
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *observe.Metrics
}

// Option customises a provider client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

func applyOptions(opts []Option) clientOptions {
	// No Timeout: the platform default and the caller's context apply.
	o := clientOptions{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewGeminiClient builds a client from the responder configuration. The API key
// is looked up in secrets under cfg.APIKeySecret on every call.
func NewGeminiClient(cfg config.ResponderConfig, secrets secret.Provider, logger *zap.Logger, metrics *observe.Metrics, opts ...Option) *GeminiClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiClient{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		model:           cfg.ModelID,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		apiKeySecret:    cfg.APIKeySecret,
		secrets:         secrets,
		httpClient:      applyOptions(opts).httpClient,
		logger:          logger.Named("gemini"),
		metrics:         metrics,
	}
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate sends prompt and returns the first candidate's text.
//
// A non-2xx status is logged and reported as OutcomeFailed with a nil error.
// A 2xx response without usable text yields FallbackText. Transport failures
// and secret lookup failures are returned as errors.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (Reply, error) {
	start := time.Now()
	reply, err := c.generate(ctx, prompt)

	outcome := string(reply.Outcome)
	if err != nil {
		outcome = "error"
	}
	c.metrics.RecordGeneration(ctx, config.ProviderGemini, outcome, time.Since(start))
	return reply, err
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (Reply, error) {
	apiKey, err := c.secrets.Resolve(ctx, c.apiKeySecret)
	if err != nil {
		return Reply{}, fmt.Errorf("resolve generator api key: %w", err)
	}

	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: c.maxOutputTokens,
		},
	})
	if err != nil {
		return Reply{}, fmt.Errorf("encode generator request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(apiKey), bytes.NewReader(payload))
	if err != nil {
		return Reply{}, fmt.Errorf("build generator request: %w", c.redact(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("generator request failed: %w", c.redact(err))
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Error("generator call failed",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), maxLoggedBody)),
			zap.String("model", c.model),
		)
		return Reply{Outcome: OutcomeFailed}, nil
	}
	if readErr != nil {
		return Reply{}, fmt.Errorf("read generator response: %w", readErr)
	}

	text := extractCandidateText(body)
	if text == "" {
		c.logger.Warn("generator response had no usable text, using fallback",
			zap.Int("bodyBytes", len(body)),
			zap.String("model", c.model),
		)
		return fallbackReply(), nil
	}

	return Reply{Text: text, Outcome: OutcomeOK}, nil
}

// endpoint returns the generateContent URL with the key as a query parameter.
func (c *GeminiClient) endpoint(apiKey string) string {
	query := url.Values{}
	query.Set("key", apiKey)
	return c.endpointWithoutKey() + "?" + query.Encode()
}

func (c *GeminiClient) endpointWithoutKey() string {
	return fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
}

// redact strips the query string, which carries the API key, from URL errors.
func (c *GeminiClient) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = c.endpointWithoutKey()
	}
	return err
}

// extractCandidateText reads candidates[0].content.parts[0].text. Malformed
// bodies and missing fields produce "".
func extractCandidateText(body []byte) string {
	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}
