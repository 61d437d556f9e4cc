package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Webhook    WebhookConfig    `yaml:"webhook" mapstructure:"webhook"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	HubSpot    HubSpotConfig    `yaml:"hubspot" mapstructure:"hubspot"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	AuthToken string `yaml:"auth_token" mapstructure:"auth_token"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ScrapeConfig configures the testimonial scraper.
type ScrapeConfig struct {
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinFragmentLen int     `yaml:"min_fragment_len" mapstructure:"min_fragment_len"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// JinaConfig holds Jina AI Reader settings (fallback scraper).
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ExtractConfig configures the feature extractor.
type ExtractConfig struct {
	MinTokens int `yaml:"min_tokens" mapstructure:"min_tokens"`
}

// PipelineConfig configures the analysis orchestrator.
type PipelineConfig struct {
	MaxInFlight int `yaml:"max_in_flight" mapstructure:"max_in_flight"`
}

// WebhookConfig configures the notification dispatcher.
type WebhookConfig struct {
	Secret      string `yaml:"secret" mapstructure:"secret"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ReportConfig configures report artifact storage.
type ReportConfig struct {
	ArtifactDir string      `yaml:"artifact_dir" mapstructure:"artifact_dir"`
	Minio       MinioConfig `yaml:"minio" mapstructure:"minio"`
}

// MinioConfig holds object-storage settings for report artifacts. When
// Endpoint is empty the local filesystem store is used instead.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Region    string `yaml:"region" mapstructure:"region"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string  `yaml:"client_id" mapstructure:"client_id"`
	Username string  `yaml:"username" mapstructure:"username"`
	KeyPath  string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string  `yaml:"login_url" mapstructure:"login_url"`
	RateRPS  float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
}

// HubSpotConfig holds HubSpot private-app settings.
type HubSpotConfig struct {
	Token   string  `yaml:"token" mapstructure:"token"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RateRPS float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
}

// AnthropicConfig holds Anthropic API settings for advanced insights.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ICP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "icp.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("scrape.timeout_secs", 30)
	v.SetDefault("scrape.min_fragment_len", 40)
	v.SetDefault("scrape.requests_per_sec", 2.0)
	v.SetDefault("scrape.user_agent", "icp-analyzer/1.0")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("extract.min_tokens", 20)
	v.SetDefault("pipeline.max_in_flight", 5)
	v.SetDefault("webhook.max_attempts", 3)
	v.SetDefault("webhook.timeout_secs", 10)
	v.SetDefault("report.artifact_dir", "reports")
	v.SetDefault("report.minio.bucket", "icp-reports")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_rps", 5.0)
	v.SetDefault("hubspot.base_url", "https://api.hubapi.com")
	v.SetDefault("hubspot.rate_rps", 5.0)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given command mode
// ("analyze" or "serve"). It collects all problems into one error so the
// operator sees the full list at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(cond bool, msg string) {
		if cond {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "serve":
		check(c.Server.Port <= 0, "server.port must be > 0")
		check(c.Server.AuthToken == "", "server.auth_token is required")
		fallthrough
	case "analyze":
		check(c.Store.DatabaseURL == "", "store.database_url is required")
		check(c.Pipeline.MaxInFlight < 1 || c.Pipeline.MaxInFlight > 50,
			"pipeline.max_in_flight must be between 1 and 50")
		check(c.Scrape.MinFragmentLen < 0, "scrape.min_fragment_len must be >= 0")
		check(c.Extract.MinTokens < 1, "extract.min_tokens must be >= 1")
		check(c.Webhook.MaxAttempts < 1, "webhook.max_attempts must be >= 1")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
