package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the workspace.
const FileName = "moveline.yml"

// Config models moveline.yml.
type Config struct {
	Server   ServerConfig    `yaml:"server" mapstructure:"server"`
	Store    StoreConfig     `yaml:"store" mapstructure:"store"`
	Cache    CacheConfig     `yaml:"cache" mapstructure:"cache"`
	AI       AIConfig        `yaml:"ai" mapstructure:"ai"`
	Log      LogConfig       `yaml:"log" mapstructure:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks" mapstructure:"webhooks"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr" mapstructure:"addr"`
	BasePath    string   `yaml:"base_path" mapstructure:"base_path"`
	JWTSecret   string   `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// StoreConfig selects where estimates are persisted.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Workspace   string `yaml:"workspace" mapstructure:"workspace"`
	PostgresURL string `yaml:"postgres_url" mapstructure:"postgres_url"`
}

// CacheConfig configures the session snapshot cache. An empty RedisURL
// keeps sessions in memory only.
type CacheConfig struct {
	RedisURL string        `yaml:"redis_url" mapstructure:"redis_url"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

type AIConfig struct {
	Provider          string        `yaml:"provider" mapstructure:"provider"`
	Model             string        `yaml:"model" mapstructure:"model"`
	GeminiAPIKey      string        `yaml:"gemini_api_key" mapstructure:"gemini_api_key"`
	AnthropicAPIKey   string        `yaml:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	Temperature       float64       `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens         int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerMinute int           `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxAttempts       int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// WebhookConfig is one outbound subscription for estimate events.
type WebhookConfig struct {
	URL            string   `yaml:"url" mapstructure:"url"`
	Events         []string `yaml:"events" mapstructure:"events"`
	Secret         string   `yaml:"secret" mapstructure:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled" mapstructure:"enabled"`
}

// IsEnabled treats an unset flag as enabled.
func (w WebhookConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

var defaults = map[string]any{
	"server.addr":            "127.0.0.1:8080",
	"server.base_path":       "/v1",
	"server.jwt_secret":      "",
	"server.cors_origins":    []string{},
	"store.driver":           "sqlite",
	"store.workspace":        ".",
	"store.postgres_url":     "",
	"cache.redis_url":        "",
	"cache.ttl":              "24h",
	"ai.provider":            "none",
	"ai.model":               "",
	"ai.gemini_api_key":      "",
	"ai.anthropic_api_key":   "",
	"ai.temperature":         0.1,
	"ai.max_tokens":          2048,
	"ai.requests_per_minute": 60,
	"ai.max_attempts":        3,
	"ai.timeout":             "20s",
	"log.level":              "info",
	"log.format":             "json",
}

// DefaultModel is the model used when ai.model is empty.
func DefaultModel(provider string) string {
	switch provider {
	case "gemini":
		return "gemini-2.0-flash"
	case "anthropic":
		return "claude-haiku-4-5-20251001"
	}
	return ""
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads moveline.yml from the workspace when present, then applies
// MOVELINE_* environment overrides and defaults.
func Load(workspace string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MOVELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetDefault("store.workspace", workspace)

	path := Path(workspace)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, eris.Wrapf(err, "config: read %s", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, eris.Wrapf(err, "config: stat %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to moveline.yml form.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (c *Config) fill() {
	if c.Server.Addr == "" {
		c.Server.Addr = defaults["server.addr"].(string)
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = defaults["server.base_path"].(string)
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Workspace == "" {
		c.Store.Workspace = "."
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 24 * time.Hour
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "none"
	}
	if c.AI.Model == "" {
		c.AI.Model = DefaultModel(c.AI.Provider)
	}
	if c.AI.MaxTokens == 0 {
		c.AI.MaxTokens = 2048
	}
	if c.AI.MaxAttempts == 0 {
		c.AI.MaxAttempts = 3
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 20 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("config.store.postgres_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config.store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	switch c.AI.Provider {
	case "none":
	case "gemini":
		if c.AI.GeminiAPIKey == "" {
			return fmt.Errorf("config.ai.gemini_api_key is required for the gemini provider")
		}
	case "anthropic":
		if c.AI.AnthropicAPIKey == "" {
			return fmt.Errorf("config.ai.anthropic_api_key is required for the anthropic provider")
		}
	default:
		return fmt.Errorf("config.ai.provider must be gemini, anthropic or none, got %q", c.AI.Provider)
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("config.ai.temperature must be within [0,2]")
	}
	if c.AI.RequestsPerMinute < 0 {
		return fmt.Errorf("config.ai.requests_per_minute must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config.log.level: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("config.log.format must be json or console")
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	for i, wh := range c.Webhooks {
		u, err := url.Parse(wh.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.webhooks[%d].url is invalid: %q", i, wh.URL)
		}
		if wh.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// InitLogger builds the zap logger and installs it globally.
func InitLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1
  jwt_secret: ""
  cors_origins: []

store:
  driver: sqlite
  workspace: .
  postgres_url: ""

cache:
  redis_url: ""
  ttl: 24h

ai:
  provider: none
  model: ""
  gemini_api_key: ""
  anthropic_api_key: ""
  temperature: 0.1
  max_tokens: 2048
  requests_per_minute: 60
  max_attempts: 3
  timeout: 20s

log:
  level: info
  format: json

webhooks: []
`
