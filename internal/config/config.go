// Package config loads service configuration from a YAML file and
// DEEPCRAWL_-prefixed environment variables, with sane defaults for local
// use.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	LLM     LLMConfig     `mapstructure:"llm"`
	DB      DBConfig      `mapstructure:"db"`
	Storage StorageConfig `mapstructure:"storage"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig covers the HTTP API listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CrawlerConfig covers crawl behavior defaults; per-job requests may narrow
// them.
type CrawlerConfig struct {
	MaxDepth             int           `mapstructure:"max_depth"`
	MaxPages             int           `mapstructure:"max_pages"`
	Concurrency          int           `mapstructure:"concurrency"`
	MaxChunkSize         int           `mapstructure:"max_chunk_size"`
	MaxRequestsPerSecond int           `mapstructure:"max_requests_per_second"`
	MinRequestInterval   time.Duration `mapstructure:"min_request_interval"`
}

// HTTPConfig covers outbound page fetching.
type HTTPConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	RespectRobots bool          `mapstructure:"respect_robots"`
}

// LLMConfig covers the Ollama endpoint.
type LLMConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	SystemPrompt   string        `mapstructure:"system_prompt"`
	EmbeddingDim   int           `mapstructure:"embedding_dim"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// DBConfig covers remote persistence. An empty DSN disables it.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// StorageConfig covers local artifacts.
type StorageConfig struct {
	ArtifactDir string `mapstructure:"artifact_dir"`
}

// JobsConfig covers job lifecycle.
type JobsConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

// LoggingConfig selects logger flavor.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DEEPCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("crawler.max_depth", 2)
	v.SetDefault("crawler.max_pages", 100)
	v.SetDefault("crawler.concurrency", 5)
	v.SetDefault("crawler.max_chunk_size", 1000)
	v.SetDefault("crawler.max_requests_per_second", 5)
	v.SetDefault("crawler.min_request_interval", 100*time.Millisecond)

	v.SetDefault("http.user_agent", "deepcrawl/1.0")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.retry_delay", time.Second)
	v.SetDefault("http.respect_robots", false)

	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.model", "llama3.2")
	v.SetDefault("llm.embedding_model", "nomic-embed-text")
	v.SetDefault("llm.embedding_dim", 1536)
	v.SetDefault("llm.timeout", 2*time.Minute)

	v.SetDefault("db.dsn", "")
	v.SetDefault("storage.artifact_dir", "results")
	v.SetDefault("jobs.retention", 5*time.Minute)
	v.SetDefault("logging.development", false)
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0, got %d", c.Crawler.MaxDepth)
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be positive, got %d", c.Crawler.MaxPages)
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be positive, got %d", c.Crawler.Concurrency)
	}
	if c.Crawler.MaxRequestsPerSecond < 0 {
		return fmt.Errorf("crawler.max_requests_per_second must be >= 0, got %d", c.Crawler.MaxRequestsPerSecond)
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be positive, got %d", c.HTTP.MaxRetries)
	}
	if c.LLM.BaseURL == "" {
		return errors.New("llm.base_url is required")
	}
	if c.LLM.EmbeddingDim <= 0 {
		return fmt.Errorf("llm.embedding_dim must be positive, got %d", c.LLM.EmbeddingDim)
	}
	if c.Jobs.Retention <= 0 {
		return fmt.Errorf("jobs.retention must be positive, got %v", c.Jobs.Retention)
	}
	return nil
}
