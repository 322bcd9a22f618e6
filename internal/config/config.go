// Package config loads the service configuration from YAML with
// environment overrides, and watches the config directory for
// hot-reloadable files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Vendor       VendorConfig       `mapstructure:"vendor"`
	Backend      BackendConfig      `mapstructure:"backend"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	Knowledge    KnowledgeConfig    `mapstructure:"knowledge"`
	Embeddings   EmbeddingsConfig   `mapstructure:"embeddings"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
}

type ServerConfig struct {
	MetricsPort int `mapstructure:"metrics_port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// VendorConfig names the vendor whose perspective the account plans
// take.
type VendorConfig struct {
	Name string `mapstructure:"name"`
}

type BackendConfig struct {
	Model string `mapstructure:"model"`
	// APIKeys is the ordered credential pool for rotation. The
	// GEMINI_API_KEYS env var (comma-separated) overrides the file.
	APIKeys []string `mapstructure:"api_keys"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type KnowledgeConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Documents    string        `mapstructure:"documents_collection"`
	Reference    string        `mapstructure:"reference_collection"`
	TopK         int           `mapstructure:"top_k"`
	Threshold    float64       `mapstructure:"threshold"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinDocuments int           `mapstructure:"min_documents"`
	MinQuality   float64       `mapstructure:"min_quality"`
	SampleSize   int           `mapstructure:"sample_size"`
	ReferenceDir string        `mapstructure:"reference_dir"`
}

type EmbeddingsConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Model    string        `mapstructure:"model"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	MaxLRU   int           `mapstructure:"max_lru"`
}

type OrchestratorConfig struct {
	MaxParallel int           `mapstructure:"max_parallel"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// Load reads the config file from CONFIG_PATH (default
// config/scout.yaml), applies env overrides, and fills defaults.
func Load() (*Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/scout.yaml"
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)
	v.SetEnvPrefix("SCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Missing file is fine: defaults plus env carry the load
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if keys := os.Getenv("GEMINI_API_KEYS"); keys != "" {
		cfg.Backend.APIKeys = splitAndTrim(keys)
	}
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.Password = pw
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants configuration cannot recover from at
// runtime.
func (c *Config) Validate() error {
	if len(c.Backend.APIKeys) == 0 {
		return fmt.Errorf("backend: at least one API key is required (set backend.api_keys or GEMINI_API_KEYS)")
	}
	if c.Knowledge.MinQuality < 0 || c.Knowledge.MinQuality > 1 {
		return fmt.Errorf("knowledge: min_quality must be in [0,1], got %v", c.Knowledge.MinQuality)
	}
	if c.Knowledge.Threshold < 0 || c.Knowledge.Threshold > 1 {
		return fmt.Errorf("knowledge: threshold must be in [0,1], got %v", c.Knowledge.Threshold)
	}
	if c.Orchestrator.MaxParallel < 0 {
		return fmt.Errorf("orchestrator: max_parallel must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.metrics_port", 2112)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("vendor.name", "Praxian AI")
	v.SetDefault("backend.model", "gemini-2.0-flash")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.ssl_mode", "require")
	v.SetDefault("knowledge.enabled", true)
	v.SetDefault("knowledge.host", "localhost")
	v.SetDefault("knowledge.port", 6333)
	v.SetDefault("knowledge.documents_collection", "company_documents")
	v.SetDefault("knowledge.reference_collection", "reference_documents")
	v.SetDefault("knowledge.top_k", 5)
	v.SetDefault("knowledge.threshold", 0.3)
	v.SetDefault("knowledge.timeout", "5s")
	v.SetDefault("knowledge.min_documents", 10)
	v.SetDefault("knowledge.reference_dir", "config/reference")
	v.SetDefault("knowledge.min_quality", 0.6)
	v.SetDefault("knowledge.sample_size", 5)
	v.SetDefault("embeddings.base_url", "http://localhost:8000")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.cache_ttl", "24h")
	v.SetDefault("embeddings.max_lru", 1000)
	v.SetDefault("orchestrator.max_parallel", 8)
	v.SetDefault("orchestrator.task_timeout", "2m")
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
