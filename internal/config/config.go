package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// 生成服务提供方。
const (
	ProviderGemini = "gemini"
	// ProviderGenAI 通过官方 SDK 调用同一个 Gemini 接口。
	ProviderGenAI  = "genai"
	// ProviderOpenAI 调用任意兼容 OpenAI chat completions 的接口。
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// 聊天日志存储驱动。
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Responder ResponderConfig `yaml:"responder"`
	Ark       ArkConfig       `yaml:"ark"`
	Store     StoreConfig     `yaml:"store"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ResponderConfig 描述回复流水线的部署期常量。
type ResponderConfig struct {
	Region          string  `yaml:"region"`
	ModelID         string  `yaml:"model_id"`
	HistoryLimit    int     `yaml:"history_limit"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	Provider        string  `yaml:"provider"`
	BaseURL         string  `yaml:"base_url"`
	// APIKeySecret 是生成服务 API Key 在密钥存储中的名字，不是密钥本身。
	APIKeySecret string `yaml:"api_key_secret"`
}

// ArkConfig 描述 Ark 模型的访问参数。
type ArkConfig struct {
	APIKey    string `yaml:"-"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
	BaseURL   string `yaml:"base_url"`
	Region    string `yaml:"region"`
}

// StoreConfig 选择聊天日志的存储实现。
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"-"`
	// Path 是 sqlite 驱动使用的数据库文件路径。
	Path string `yaml:"path"`
}

// SecretsConfig 描述挂载的密钥目录。
type SecretsConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig 描述日志级别。
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Defaults 返回未做任何覆盖时的配置。
func Defaults() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Responder: ResponderConfig{
			Region:          "asia-northeast1",
			ModelID:         "gemini-1.5-flash",
			HistoryLimit:    30,
			Temperature:     0.4,
			MaxOutputTokens: 700,
			Provider:        ProviderGemini,
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			APIKeySecret:    "GEMINI_API_KEY",
		},
		Ark: ArkConfig{
			BaseURL: "https://ark.cn-beijing.volces.com/api/v3",
			Region:  "cn-beijing",
		},
		Store: StoreConfig{Driver: DriverMemory, Path: "z-mentor.db"},
		Log:   LogConfig{Level: "info"},
	}
}

// Load 依次应用默认值、CONFIG_FILE 指向的 YAML 文件以及环境变量。
func Load() (*Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置是否自洽，并返回所有问题。
func Validate(cfg *Config) error {
	var errs []error

	r := cfg.Responder
	if r.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("history limit must be positive, got %d", r.HistoryLimit))
	}
	if r.MaxOutputTokens < 1 {
		errs = append(errs, fmt.Errorf("max output tokens must be positive, got %d", r.MaxOutputTokens))
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2], got %g", r.Temperature))
	}
	if strings.TrimSpace(r.ModelID) == "" {
		errs = append(errs, errors.New("model id is required"))
	}

	switch r.Provider {
	case ProviderGemini, ProviderGenAI, ProviderOpenAI:
		if r.Provider != ProviderGenAI && r.BaseURL == "" {
			errs = append(errs, errors.New("generator base url is required"))
		}
		if r.APIKeySecret == "" {
			errs = append(errs, errors.New("generator api key secret name is required"))
		}
	case ProviderArk:
	default:
		errs = append(errs, fmt.Errorf("unknown generator provider %q", r.Provider))
	}

	switch cfg.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.Store.DSN == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverSQLite:
		if strings.TrimSpace(cfg.Store.Path) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown chat log driver %q", cfg.Store.Driver))
	}

	return errors.Join(errs...)
}

func applyEnv(cfg *Config) error {
	server, err := loadServerConfig(cfg.Server)
	if err != nil {
		return err
	}
	cfg.Server = server

	responder, err := loadResponderConfig(cfg.Responder)
	if err != nil {
		return err
	}
	cfg.Responder = responder

	cfg.Ark = ArkConfig{
		APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		BaseURL:   getEnvOrDefault("ARK_BASE_URL", cfg.Ark.BaseURL),
		Region:    getEnvOrDefault("ARK_REGION", cfg.Ark.Region),
	}

	cfg.Store = StoreConfig{
		Driver: strings.ToLower(getEnvOrDefault("CHATLOG_DRIVER", cfg.Store.Driver)),
		DSN:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Path:   getEnvOrDefault("SQLITE_PATH", cfg.Store.Path),
	}

	cfg.Secrets.Dir = getEnvOrDefault("SECRETS_DIR", cfg.Secrets.Dir)

	development, err := parseBoolEnv("LOG_DEVELOPMENT", cfg.Log.Development)
	if err != nil {
		return err
	}
	cfg.Log = LogConfig{
		Level:       getEnvOrDefault("LOG_LEVEL", cfg.Log.Level),
		Development: development,
	}
	return nil
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(base ServerConfig) (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		return base, nil
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

func loadResponderConfig(base ResponderConfig) (ResponderConfig, error) {
	cfg := base

	limit, err := parseOptionalIntEnv("HISTORY_LIMIT")
	if err != nil {
		return ResponderConfig{}, err
	}
	if limit != nil {
		cfg.HistoryLimit = *limit
	}

	temperature, err := parseOptionalFloatEnv("GENERATOR_TEMPERATURE")
	if err != nil {
		return ResponderConfig{}, err
	}
	if temperature != nil {
		cfg.Temperature = *temperature
	}

	maxTokens, err := parseOptionalIntEnv("GENERATOR_MAX_OUTPUT_TOKENS")
	if err != nil {
		return ResponderConfig{}, err
	}
	if maxTokens != nil {
		cfg.MaxOutputTokens = *maxTokens
	}

	cfg.Region = getEnvOrDefault("RESPONDER_REGION", cfg.Region)
	cfg.ModelID = getEnvOrDefault("GENERATOR_MODEL", cfg.ModelID)
	cfg.Provider = strings.ToLower(getEnvOrDefault("GENERATOR_PROVIDER", cfg.Provider))
	cfg.BaseURL = strings.TrimRight(getEnvOrDefault("GENERATOR_BASE_URL", cfg.BaseURL), "/")
	cfg.APIKeySecret = getEnvOrDefault("GENERATOR_API_KEY_SECRET", cfg.APIKeySecret)
	return cfg, nil
}

// Enabled 表示是否提供了必需的 Ark 凭证。
func (c ArkConfig) Enabled() bool {
	return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
}

// NewChatModel 使用 Ark 凭证和回复参数创建一个模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context, r ResponderConfig) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证缺失，至少提供 ARK_API_KEY 或 AK/SK 组合")
	}

	temperature := float32(r.Temperature)
	maxTokens := r.MaxOutputTokens

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       r.ModelID,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
