package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Sweep     SweepConfig     `yaml:"sweep" mapstructure:"sweep"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Sector    SectorConfig    `yaml:"sector" mapstructure:"sector"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings. SweepModel runs the daily
// classification and the web-search fetchers; DeepModel runs the escalation
// pass on material findings.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	SweepModel string `yaml:"sweep_model" mapstructure:"sweep_model"`
	DeepModel  string `yaml:"deep_model" mapstructure:"deep_model"`
}

// FetchConfig configures source fetchers.
type FetchConfig struct {
	UserAgent       string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	OraclePaceMS    int    `yaml:"oracle_pace_ms" mapstructure:"oracle_pace_ms"`
	EdinetBaseURL   string `yaml:"edinet_base_url" mapstructure:"edinet_base_url"`
	EdinetKey       string `yaml:"edinet_api_key" mapstructure:"edinet_api_key"`
	EdinetWindowDay int    `yaml:"edinet_window_days" mapstructure:"edinet_window_days"`
}

// Timeout returns the per-fetch HTTP timeout.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSecs) * time.Second
}

// OraclePace returns the minimum spacing between oracle-backed calls.
func (f FetchConfig) OraclePace() time.Duration {
	return time.Duration(f.OraclePaceMS) * time.Millisecond
}

// SweepConfig configures the change-detection engine.
type SweepConfig struct {
	SnapshotMaxChars   int  `yaml:"snapshot_max_chars" mapstructure:"snapshot_max_chars"`
	ClassifierMaxChars int  `yaml:"classifier_max_chars" mapstructure:"classifier_max_chars"`
	DirectMaxChars     int  `yaml:"direct_max_chars" mapstructure:"direct_max_chars"`
	MarketCapEnrich    bool `yaml:"market_cap_enrich" mapstructure:"market_cap_enrich"`
}

// SchedulerConfig configures batch execution. WeeklyJurisdictions maps a
// jurisdiction tag to the weekday name its companies sweep on; companies
// with no entry run daily.
type SchedulerConfig struct {
	PageSize            int               `yaml:"page_size" mapstructure:"page_size"`
	WeeklyJurisdictions map[string]string `yaml:"weekly_jurisdictions" mapstructure:"weekly_jurisdictions"`
}

// SectorConfig configures sector aggregation.
type SectorConfig struct {
	ConfigPath string `yaml:"config_path" mapstructure:"config_path"`
}

// ServerConfig configures the HTTP trigger surface. AuthToken, when set, is
// required as a bearer token on the sweep trigger endpoints (cron secret
// pattern).
type ServerConfig struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	AuthToken string `yaml:"auth_token" mapstructure:"auth_token"`
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
	v.SetEnvPrefix("SWEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "sweep.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.auth_token", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.sweep_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.deep_model", "claude-opus-4-6")
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; KabutenBot/1.0)")
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.oracle_pace_ms", 2000)
	v.SetDefault("fetch.edinet_base_url", "https://api.edinet-fsa.go.jp/api/v2")
	v.SetDefault("fetch.edinet_api_key", "")
	v.SetDefault("fetch.edinet_window_days", 7)
	v.SetDefault("sweep.snapshot_max_chars", 50000)
	v.SetDefault("sweep.classifier_max_chars", 4000)
	v.SetDefault("sweep.direct_max_chars", 8000)
	v.SetDefault("sweep.market_cap_enrich", true)
	v.SetDefault("scheduler.page_size", 8)
	v.SetDefault("scheduler.weekly_jurisdictions", map[string]string{})
	v.SetDefault("sector.config_path", "sectors.yaml")

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

// WeeklyRules converts the configured weekday names into time.Weekday
// values. Unknown names are rejected so a typo fails loudly at startup
// rather than silently skipping companies forever.
func (c SchedulerConfig) WeeklyRules() (map[string]time.Weekday, error) {
	days := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}
	rules := make(map[string]time.Weekday, len(c.WeeklyJurisdictions))
	for jurisdiction, day := range c.WeeklyJurisdictions {
		wd, ok := days[strings.ToLower(day)]
		if !ok {
			return nil, eris.Errorf("config: unknown weekday %q for jurisdiction %q", day, jurisdiction)
		}
		rules[jurisdiction] = wd
	}
	return rules, nil
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
