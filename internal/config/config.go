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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Keepa     KeepaConfig     `yaml:"keepa" mapstructure:"keepa"`
	Ingestion IngestionConfig `yaml:"ingestion" mapstructure:"ingestion"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Shortlist ShortlistConfig `yaml:"shortlist" mapstructure:"shortlist"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SSLMode     string `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// KeepaConfig holds product data API credentials and budget settings.
type KeepaConfig struct {
	Key             string  `yaml:"key" mapstructure:"key"`
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	Domain          int     `yaml:"domain" mapstructure:"domain"`
	BucketCapacity  int     `yaml:"bucket_capacity" mapstructure:"bucket_capacity"`
	RefillPerMinute float64 `yaml:"refill_per_minute" mapstructure:"refill_per_minute"`
	DiscoveryCost   int     `yaml:"discovery_cost" mapstructure:"discovery_cost"`
	PerProductCost  int     `yaml:"per_product_cost" mapstructure:"per_product_cost"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// IngestionConfig configures discovery and fetch behavior.
type IngestionConfig struct {
	CategoryID        int64 `yaml:"category_id" mapstructure:"category_id"`
	BatchSize         int   `yaml:"batch_size" mapstructure:"batch_size"`
	FreshnessHours    int   `yaml:"freshness_hours" mapstructure:"freshness_hours"`
	MaxProducts       int   `yaml:"max_products" mapstructure:"max_products"`
	ReviewsPerProduct int   `yaml:"reviews_per_product" mapstructure:"reviews_per_product"`
}

// ScoringConfig exposes the headline scorer overrides. The full threshold
// tables live in the scorer package; each run serializes the effective set
// into its config snapshot.
type ScoringConfig struct {
	RiskFactor           float64 `yaml:"risk_factor" mapstructure:"risk_factor"`
	ImprovementBonusRate float64 `yaml:"improvement_bonus_rate" mapstructure:"improvement_bonus_rate"`
	COGSPriceDivisor     float64 `yaml:"cogs_price_divisor" mapstructure:"cogs_price_divisor"`
	TimePressureMinimum  int     `yaml:"time_pressure_minimum" mapstructure:"time_pressure_minimum"`
}

// ShortlistConfig configures the selection gates.
type ShortlistConfig struct {
	MinScore int     `yaml:"min_score" mapstructure:"min_score"`
	MinValue float64 `yaml:"min_value" mapstructure:"min_value"`
	MaxItems int     `yaml:"max_items" mapstructure:"max_items"`
}

// PipelineConfig configures run-level gates and timeouts.
type PipelineConfig struct {
	DQThresholdPct        float64 `yaml:"dq_threshold_pct" mapstructure:"dq_threshold_pct"`
	ErrorBudget           float64 `yaml:"error_budget" mapstructure:"error_budget"`
	RetentionDays         int     `yaml:"retention_days" mapstructure:"retention_days"`
	SnapshotRetentionDays int     `yaml:"snapshot_retention_days" mapstructure:"snapshot_retention_days"`
	DiscoveryTimeoutSecs  int     `yaml:"discovery_timeout_secs" mapstructure:"discovery_timeout_secs"`
	FetchTimeoutSecsPerK  int     `yaml:"fetch_timeout_secs_per_1000" mapstructure:"fetch_timeout_secs_per_1000"`
	ScoringTimeoutSecs    int     `yaml:"scoring_timeout_secs" mapstructure:"scoring_timeout_secs"`
	ArtifactDir           string  `yaml:"artifact_dir" mapstructure:"artifact_dir"`
	ScoreWorkers          int     `yaml:"score_workers" mapstructure:"score_workers"`
}

// ServerConfig configures the read API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("SMARTACUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.ssl_mode", "prefer")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("keepa.base_url", "https://api.keepa.com")
	v.SetDefault("keepa.domain", 1)
	v.SetDefault("keepa.bucket_capacity", 200)
	v.SetDefault("keepa.refill_per_minute", 21)
	v.SetDefault("keepa.discovery_cost", 5)
	v.SetDefault("keepa.per_product_cost", 2)
	v.SetDefault("keepa.timeout_secs", 30)
	v.SetDefault("ingestion.batch_size", 100)
	v.SetDefault("ingestion.freshness_hours", 20)
	v.SetDefault("ingestion.max_products", 100)
	v.SetDefault("ingestion.reviews_per_product", 500)
	v.SetDefault("scoring.risk_factor", 0.3)
	v.SetDefault("scoring.improvement_bonus_rate", 0.2)
	v.SetDefault("scoring.cogs_price_divisor", 5)
	v.SetDefault("scoring.time_pressure_minimum", 3)
	v.SetDefault("shortlist.min_score", 50)
	v.SetDefault("shortlist.min_value", 5000)
	v.SetDefault("shortlist.max_items", 10)
	v.SetDefault("pipeline.dq_threshold_pct", 30)
	v.SetDefault("pipeline.error_budget", 0.10)
	v.SetDefault("pipeline.retention_days", 180)
	v.SetDefault("pipeline.snapshot_retention_days", 90)
	v.SetDefault("pipeline.discovery_timeout_secs", 60)
	v.SetDefault("pipeline.fetch_timeout_secs_per_1000", 300)
	v.SetDefault("pipeline.scoring_timeout_secs", 120)
	v.SetDefault("pipeline.artifact_dir", "data")
	v.SetDefault("pipeline.score_workers", 0) // 0 = GOMAXPROCS

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

// InitLogger initializes the global zap logger. A non-empty logFile tees
// output to that path in addition to stderr.
func InitLogger(cfg LogConfig, logFile string) error {
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

	if logFile != "" {
		zapCfg.OutputPaths = append(zapCfg.OutputPaths, logFile)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
