// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Index, Search, Highlight, Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Highlight HighlightConfig `yaml:"highlight"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// RateLimit is the number of API requests a client IP may make per
	// minute. Zero disables limiting.
	RateLimit   int      `yaml:"rateLimit"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// IndexConfig controls the two-tier index: where disk segments live, how
// large the memory segment may grow before it is sealed, and the merge
// policy applied to disk segments.
type IndexConfig struct {
	DataDir         string         `yaml:"dataDir"`
	InMemory        bool           `yaml:"inMemory"`
	RAMBufferSize   int64          `yaml:"ramBufferSize"`
	MaxBufferedDocs int            `yaml:"maxBufferedDocs"`
	FlushInterval   time.Duration  `yaml:"flushInterval"`
	MergeFactor     int            `yaml:"mergeFactor"`
	MaxFieldTokens  int            `yaml:"maxFieldTokens"`
	FlushEachAdd    bool           `yaml:"flushEachAdd"`
	Analyzer        AnalyzerConfig `yaml:"analyzer"`
	Retry           RetryConfig    `yaml:"retry"`
}

// AnalyzerConfig selects the options of the standard analyzer.
type AnalyzerConfig struct {
	StopWords     bool     `yaml:"stopWords"`
	Stem          bool     `yaml:"stem"`
	KeywordFields []string `yaml:"keywordFields"`
}

// RetryConfig controls how failed merges are retried.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	MaxResults    int           `yaml:"maxResults"`
	DefaultLimit  int           `yaml:"defaultLimit"`
	Timeout       time.Duration `yaml:"timeout"`
	TieBreaker    float64       `yaml:"tieBreaker"`
	DefaultFields []string      `yaml:"defaultFields"`
	DefaultSort   string        `yaml:"defaultSort"`
}

// HighlightConfig controls the markers and fragment size of highlighted
// search results.
type HighlightConfig struct {
	PreTag       string   `yaml:"preTag"`
	PostTag      string   `yaml:"postTag"`
	FragmentSize int      `yaml:"fragmentSize"`
	NoMatchSize  int      `yaml:"noMatchSize"`
	Fields       []string `yaml:"fields"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RecordIngest    string `yaml:"recordIngest"`
	SearchAnalytics string `yaml:"searchAnalytics"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Index: IndexConfig{
			DataDir:         "data/index",
			RAMBufferSize:   16 * 1024 * 1024,
			MaxBufferedDocs: 10000,
			FlushInterval:   30 * time.Second,
			MergeFactor:     3,
			MaxFieldTokens:  10000,
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 50 * time.Millisecond,
				MaxDelay:     2 * time.Second,
			},
		},
		Search: SearchConfig{
			MaxResults:   100,
			DefaultLimit: 10,
			Timeout:      5 * time.Second,
		},
		Highlight: HighlightConfig{
			PreTag:       "<font color='red'>",
			PostTag:      "</font>",
			FragmentSize: 4,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "fulltext",
			User:            "fulltext",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "fulltext-indexer",
			Topics: KafkaTopics{
				RecordIngest:    "record-ingest",
				SearchAnalytics: "search-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if !c.Index.InMemory && c.Index.DataDir == "" {
		return fmt.Errorf("index.dataDir is required unless index.inMemory is set")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative")
	}
	if c.Index.MergeFactor < 2 {
		return fmt.Errorf("index.mergeFactor must be at least 2, got %d", c.Index.MergeFactor)
	}
	if c.Index.RAMBufferSize <= 0 {
		return fmt.Errorf("index.ramBufferSize must be positive")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search.defaultLimit must be positive and not exceed search.maxResults")
	}
	if c.Search.TieBreaker < 0 || c.Search.TieBreaker > 1 {
		return fmt.Errorf("search.tieBreaker must be within [0,1], got %v", c.Search.TieBreaker)
	}
	if c.Highlight.FragmentSize <= 0 {
		return fmt.Errorf("highlight.fragmentSize must be positive")
	}
	return nil
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("SP_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("SP_INDEX_IN_MEMORY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Index.InMemory = b
		}
	}
	if v := os.Getenv("SP_INDEX_MERGE_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.MergeFactor = n
		}
	}
	if v := os.Getenv("SP_INDEX_FLUSH_EACH_ADD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Index.FlushEachAdd = b
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
