package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Upstream struct {
		BaseURL        string        `yaml:"base_url"`
		AppKey         string        `yaml:"app_key"`
		SecretKey      string        `yaml:"secret_key"`
		RatePerSecond  float64       `yaml:"rate_per_second"`
		Burst          int           `yaml:"burst"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		RetryMax       int           `yaml:"retry_max"`
		RetryInitial   time.Duration `yaml:"retry_initial"`
		RetryMaxWait   time.Duration `yaml:"retry_max_wait"`
		PageDelay      time.Duration `yaml:"page_delay"`
		MaxPages       int           `yaml:"max_pages"`
		MaxWalkTime    time.Duration `yaml:"max_walk_time"`
	} `yaml:"upstream"`
	Redis struct {
		Addr        string        `yaml:"addr"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		ProgressTTL time.Duration `yaml:"progress_ttl"`
	} `yaml:"redis"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	Backfill struct {
		FloorDate       string        `yaml:"floor_date"`
		UniverseFloor   string        `yaml:"universe_floor"`
		FlushEvery      int           `yaml:"flush_every"`
		InstrumentDelay time.Duration `yaml:"instrument_delay"`
		Instruments     []string      `yaml:"instruments"`
	} `yaml:"backfill"`
	QuoteStream struct {
		Enabled        bool          `yaml:"enabled"`
		URL            string        `yaml:"url"`
		Instruments    []string      `yaml:"instruments"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"quotestream"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("UPSTREAM_APP_KEY"); v != "" {
		c.Upstream.AppKey = v
	}
	if v := os.Getenv("UPSTREAM_SECRET_KEY"); v != "" {
		c.Upstream.SecretKey = v
	}
	if v := os.Getenv("UPSTREAM_BASE_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("QUOTESTREAM_INSTRUMENTS"); v != "" {
		c.QuoteStream.Instruments = strings.Split(v, ",")
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Upstream.AppKey == "" || c.Upstream.SecretKey == "" {
		return fmt.Errorf("upstream.app_key and upstream.secret_key are required")
	}
	if c.Upstream.RatePerSecond <= 0 {
		return fmt.Errorf("upstream.rate_per_second must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.QuoteStream.Enabled && c.QuoteStream.URL == "" {
		return fmt.Errorf("quotestream.url is required when quotestream is enabled")
	}
	return nil
}
