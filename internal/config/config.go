package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	Import     ImportConfig     `yaml:"import"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Exports    ExportsConfig    `yaml:"exports"`
	Wallet     WalletConfig     `yaml:"wallet"`
	Logging    LoggingConfig    `yaml:"logging"`
	Features   FeaturesConfig   `yaml:"features"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port                   int      `yaml:"port" env:"PORT"`
	Host                   string   `yaml:"host" env:"SERVER_HOST"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
	CORSOrigins            []string `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
}

// Addr returns host:port for the listener.
func (c ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// Document store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// StoreConfig selects the document store backend
type StoreConfig struct {
	Backend         string `yaml:"backend" env:"STORE_BACKEND"`
	DatabaseURL     string `yaml:"database_url" env:"DATABASE_URL"`
	DynamoDBTable   string `yaml:"dynamodb_table" env:"DYNAMODB_TABLE"`
	Region          string `yaml:"region" env:"AWS_REGION"`
	AWSProfile      string `yaml:"aws_profile" env:"AWS_PROFILE"`
	AccessKeyID     string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
}

// RedisConfig holds the connection for history, previews and import locks.
// An empty URL keeps that state in process memory.
type RedisConfig struct {
	URL            string `yaml:"url" env:"REDIS_URL"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
}

// ImportConfig tunes the bulk import pipeline
type ImportConfig struct {
	BatchSize            int     `yaml:"batch_size" env:"IMPORT_BATCH_SIZE"`
	HashLookupBatch      int     `yaml:"hash_lookup_batch"`
	MaxRows              int     `yaml:"max_rows" env:"IMPORT_MAX_ROWS"`
	PreviewTTLMinutes    int     `yaml:"preview_ttl_minutes"`
	RetryFailedBatches   int     `yaml:"retry_failed_batches" env:"IMPORT_RETRY_FAILED_BATCHES"`
	SimilarityThreshold  float64 `yaml:"similarity_threshold" env:"IMPORT_SIMILARITY_THRESHOLD"`
	LoadExpiryGraceHours int     `yaml:"load_expiry_grace_hours"`
}

func (c ImportConfig) PreviewTTL() time.Duration {
	return time.Duration(c.PreviewTTLMinutes) * time.Minute
}

func (c ImportConfig) ExpiryGrace() time.Duration {
	return time.Duration(c.LoadExpiryGraceHours) * time.Hour
}

// Similarity scorer providers.
const (
	ProviderLocal   = "local"
	ProviderHTTP    = "http"
	ProviderBedrock = "bedrock"
)

// SimilarityConfig selects the duplicate similarity scorer
type SimilarityConfig struct {
	Provider       string `yaml:"provider" env:"SIMILARITY_PROVIDER"`
	BaseURL        string `yaml:"base_url" env:"SIMILARITY_BASE_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	BedrockModelID string `yaml:"bedrock_model_id" env:"BEDROCK_MODEL_ID"`
	Region         string `yaml:"region" env:"BEDROCK_REGION"`
}

func (c SimilarityConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ExportsConfig holds where skipped-row exports are archived. With no bucket
// they go under LocalPath.
type ExportsConfig struct {
	S3Bucket  string `yaml:"s3_bucket" env:"EXPORTS_S3_BUCKET"`
	S3Region  string `yaml:"s3_region" env:"EXPORTS_S3_REGION"`
	LocalPath string `yaml:"local_path"`
}

// WalletConfig holds platform fee settings
type WalletConfig struct {
	PlatformFeePercent float64 `yaml:"platform_fee_percent" env:"PLATFORM_FEE_PERCENT"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level     string `yaml:"level" env:"LOG_LEVEL"`
	RedactPII *bool  `yaml:"redact_pii" env:"LOG_REDACT_PII"`
}

// Redact reports whether PII redaction is on. Defaults to true.
func (c LoggingConfig) Redact() bool { return c.RedactPII == nil || *c.RedactPII }

// FeaturesConfig holds feature flags
type FeaturesConfig struct {
	DevPanels bool `yaml:"dev_panels" env:"FEATURE_DEV_PANELS"`
}

// Load reads configuration from a YAML file and applies defaults. An empty
// path yields the defaults alone.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = 15
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	if c.Store.Region == "" {
		c.Store.Region = "us-west-2"
	}
	if c.Store.DynamoDBTable == "" {
		c.Store.DynamoDBTable = "loadboard-documents"
	}
	if c.Redis.LockTTLSeconds == 0 {
		c.Redis.LockTTLSeconds = 600
	}
	// Import defaults
	if c.Import.BatchSize == 0 {
		c.Import.BatchSize = 400
	}
	if c.Import.HashLookupBatch == 0 {
		c.Import.HashLookupBatch = 30
	}
	if c.Import.MaxRows == 0 {
		c.Import.MaxRows = 5000
	}
	if c.Import.PreviewTTLMinutes == 0 {
		c.Import.PreviewTTLMinutes = 1440
	}
	if c.Import.SimilarityThreshold == 0 {
		c.Import.SimilarityThreshold = 0.75
	}
	if c.Import.LoadExpiryGraceHours == 0 {
		c.Import.LoadExpiryGraceHours = 24
	}
	// Similarity defaults
	if c.Similarity.Provider == "" {
		c.Similarity.Provider = ProviderLocal
	}
	if c.Similarity.TimeoutSeconds == 0 {
		c.Similarity.TimeoutSeconds = 15
	}
	if c.Similarity.MaxRetries == 0 {
		c.Similarity.MaxRetries = 3
	}
	if c.Similarity.BedrockModelID == "" {
		c.Similarity.BedrockModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if c.Similarity.Region == "" {
		c.Similarity.Region = c.Store.Region
	}
	if c.Exports.S3Region == "" {
		c.Exports.S3Region = c.Store.Region
	}
	if c.Exports.LocalPath == "" {
		c.Exports.LocalPath = "./data/exports"
	}
	if c.Wallet.PlatformFeePercent == 0 {
		c.Wallet.PlatformFeePercent = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects settings the pipeline cannot honour.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendDynamoDB:
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("config: store.database_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	switch c.Similarity.Provider {
	case ProviderLocal, ProviderBedrock:
	case ProviderHTTP:
		if c.Similarity.BaseURL == "" {
			return fmt.Errorf("config: similarity.base_url is required for the http provider")
		}
	default:
		return fmt.Errorf("config: unknown similarity provider %q", c.Similarity.Provider)
	}
	if c.Import.BatchSize < 1 || c.Import.BatchSize > 400 {
		return fmt.Errorf("config: import.batch_size must be between 1 and 400, got %d", c.Import.BatchSize)
	}
	if c.Import.HashLookupBatch < 1 || c.Import.HashLookupBatch > 30 {
		return fmt.Errorf("config: import.hash_lookup_batch must be between 1 and 30, got %d", c.Import.HashLookupBatch)
	}
	if c.Import.SimilarityThreshold <= 0 || c.Import.SimilarityThreshold > 1 {
		return fmt.Errorf("config: import.similarity_threshold must be in (0,1], got %g", c.Import.SimilarityThreshold)
	}
	if c.Import.RetryFailedBatches < 0 {
		return fmt.Errorf("config: import.retry_failed_batches must not be negative")
	}
	if c.Wallet.PlatformFeePercent < 0 || c.Wallet.PlatformFeePercent > 100 {
		return fmt.Errorf("config: wallet.platform_fee_percent must be between 0 and 100")
	}
	return nil
}
