// Package config loads application configuration from config.yaml and the
// environment and owns the global logger setup.
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
	HubSpot    HubSpotConfig    `yaml:"hubspot" mapstructure:"hubspot"`
	Slack      SlackConfig      `yaml:"slack" mapstructure:"slack"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Semrush    SemrushConfig    `yaml:"semrush" mapstructure:"semrush"`
	Similarweb SimilarwebConfig `yaml:"similarweb" mapstructure:"similarweb"`
	Ollama     OllamaConfig     `yaml:"ollama" mapstructure:"ollama"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Ledger     LedgerConfig     `yaml:"ledger" mapstructure:"ledger"`
	Payment    PaymentConfig    `yaml:"payment" mapstructure:"payment"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// HubSpotConfig holds CRM credentials and the deal filters.
type HubSpotConfig struct {
	Token         string `yaml:"token" mapstructure:"token"`
	ClientSecret  string `yaml:"client_secret" mapstructure:"client_secret"`
	PipelineID    string `yaml:"pipeline_id" mapstructure:"pipeline_id"`
	Source        string `yaml:"source" mapstructure:"source"`
	DealURLFormat string `yaml:"deal_url_format" mapstructure:"deal_url_format"`
}

// SlackConfig holds the bot token and report channel.
type SlackConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	Channel string `yaml:"channel" mapstructure:"channel"`
}

// AnthropicConfig holds the API key and triage model.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	TriageModel string `yaml:"triage_model" mapstructure:"triage_model"`
}

// SemrushConfig holds SEMrush API settings.
type SemrushConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	Database string `yaml:"database" mapstructure:"database"`
}

// SimilarwebConfig holds Similarweb API settings.
type SimilarwebConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// OllamaConfig holds the local model endpoint used for last-resort revenue
// extraction.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// SearchConfig holds the web-search provider keys for extractor fallbacks.
type SearchConfig struct {
	TavilyKey       string `yaml:"tavily_key" mapstructure:"tavily_key"`
	WebSearchAPIKey string `yaml:"websearchapi_key" mapstructure:"websearchapi_key"`
	RatePerMinute   int    `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
}

// LedgerConfig configures the processed-deals ledger.
type LedgerConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// PaymentConfig configures the BNPL detector.
type PaymentConfig struct {
	KeywordsPath  string `yaml:"keywords_path" mapstructure:"keywords_path"`
	BrowserBinary string `yaml:"browser_binary" mapstructure:"browser_binary"`
	UseBrowser    bool   `yaml:"use_browser" mapstructure:"use_browser"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port                int `yaml:"port" mapstructure:"port"`
	PendingSweepMinutes int `yaml:"pending_sweep_minutes" mapstructure:"pending_sweep_minutes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("QUALIFIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 5001)
	v.SetDefault("server.pending_sweep_minutes", 10)
	v.SetDefault("hubspot.pipeline_id", "77766861")
	v.SetDefault("hubspot.source", "Marketing - Interactions & Inbound requests")
	v.SetDefault("hubspot.deal_url_format", "https://app-eu1.hubspot.com/contacts/26230674/record/0-3/%s")
	v.SetDefault("slack.channel", "C0A9K3A9WA3")
	v.SetDefault("anthropic.triage_model", "claude-haiku-4-5-20251001")
	v.SetDefault("semrush.database", "it")
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "gemma3:4b")
	v.SetDefault("search.rate_per_minute", 30)
	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("ledger.path", "deal-qualifier.db")
	v.SetDefault("payment.use_browser", true)

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
