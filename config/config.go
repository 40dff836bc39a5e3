package config

import (
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                string            `mapstructure:"env"`
	LogLevel           string            `mapstructure:"log_level"`
	LogType            string            `mapstructure:"log_type"`
	ServiceName        string            `mapstructure:"service_name"`
	Port               string            `mapstructure:"port"`
	Version            string            `mapstructure:"version"`
	CrawlerSettings    *CrawlerConfig    `mapstructure:"crawler"`
	StrategySettings   *StrategyConfig   `mapstructure:"strategy"`
	ExtractionSettings *ExtractionConfig `mapstructure:"extraction"`
	RateLimiterSetting *RateLimiterConf  `mapstructure:"rate_limiter"`
	ThrottleSettings   *ThrottleConfig   `mapstructure:"throttle"`
	UrlCacheSettings   *UrlCacheConfig   `mapstructure:"url_cache"`
	CacheSettings      *CacheConfig      `mapstructure:"cache"`
	DbSettings         *DatabaseConfig   `mapstructure:"database"`
	KafkaSettings      *KafkaConfig      `mapstructure:"kafka"`
	S3Settings         *S3Config         `mapstructure:"s3"`
	TelemetrySettings  *TelemetryConfig  `mapstructure:"telemetry"`
	HttpClientSettings *HttpClientConfig `mapstructure:"http_client"`
}

// CrawlerConfig holds the orchestrator and scheduler knobs.
type CrawlerConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	RunImmediately    bool          `mapstructure:"run_immediately"`
	RunAnyTime        bool          `mapstructure:"run_any_time"`
	MaxSources        int           `mapstructure:"max_sources"`
	MaxUrlsPerSource  int           `mapstructure:"max_urls_per_source"`
	BatchSize         int           `mapstructure:"batch_size"`
	JobHistoryLimit   int           `mapstructure:"job_history_limit"`
	CollectionLinkCap int           `mapstructure:"collection_link_cap"`
	OffPeakStartHour  int           `mapstructure:"off_peak_start_hour"`
	OffPeakEndHour    int           `mapstructure:"off_peak_end_hour"`
}

type StrategyConfig struct {
	BrowserEnabled  bool          `mapstructure:"browser_enabled"`
	BrowserTimeout  time.Duration `mapstructure:"browser_timeout"`
	ArchiveEnabled  bool          `mapstructure:"archive_enabled"`
	ArchiveTimeout  int           `mapstructure:"archive_timeout"`
	ArchiveRetries  int           `mapstructure:"archive_retries"`
	ArchiveIndexes  int           `mapstructure:"archive_indexes"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	DisableDelays   bool          `mapstructure:"disable_delays"`
	DefaultLanguage string        `mapstructure:"default_language"`
}

// ExtractionConfig carries the tunable pattern tables of the pipeline.
// Empty slices fall back to the built-in tables.
type ExtractionConfig struct {
	MeaninglessIngredients []string `mapstructure:"meaningless_ingredients"`
	CollectionTitleHints   []string `mapstructure:"collection_title_hints"`
	CollectionPathHints    []string `mapstructure:"collection_path_hints"`
}

type RateLimiterConf struct {
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	MinDelay     time.Duration `mapstructure:"min_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	ResetCeiling int           `mapstructure:"reset_ceiling"`
}

type ThrottleConfig struct {
	DefaultInterval time.Duration `mapstructure:"default_interval"`
	MinInterval     time.Duration `mapstructure:"min_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
	Domains         []string      `mapstructure:"domains"`
}

type UrlCacheConfig struct {
	Capacity        int           `mapstructure:"capacity"`
	SuccessCooldown time.Duration `mapstructure:"success_cooldown"`
	FailureCooldown time.Duration `mapstructure:"failure_cooldown"`
}

type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Servers       []string      `mapstructure:"servers"`
	TtlForSuccess time.Duration `mapstructure:"ttl_for_success"`
	TtlForFailure time.Duration `mapstructure:"ttl_for_failure"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
}

type KafkaConfig struct {
	Producer *ProducerConfig `mapstructure:"producer"`
}

type ProducerConfig struct {
	Addr                []string      `mapstructure:"addr"`
	DeadLetterTopicName string        `mapstructure:"dlq_topic_name"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	BatchSize           int           `mapstructure:"batch_size"`
	BatchTimeout        time.Duration `mapstructure:"batch_timeout"`
	ReadTimeout         time.Duration `mapstructure:"read_timeout"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
	RequiredAsks        int           `mapstructure:"required_acks"`
	Async               bool          `mapstructure:"async"`
}

type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	AwsBaseEndpoint string `mapstructure:"aws_base_endpoint"`
	Region          string `mapstructure:"region"`
	BucketName      string `mapstructure:"bucket_name"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CollectorUrl string `mapstructure:"collector_url"`
}

type HttpClientConfig struct {
	RequestTimeout            time.Duration `mapstructure:"request_timeout"`
	MaxIdleConnections        int           `mapstructure:"max_idle_connections"`
	MaxIdleConnectionsPerHost int           `mapstructure:"max_idle_connections_per_host"`
	MaxConnectionsPerHost     int           `mapstructure:"max_connections_per_host"`
	IdleConnectionTimeout     time.Duration `mapstructure:"idle_connection_timeout"`
	TlsHandshakeTimeout       time.Duration `mapstructure:"tls_handshake_timeout"`
	DialTimeout               time.Duration `mapstructure:"dial_timeout"`
	DialKeepAlive             time.Duration `mapstructure:"dial_keep_alive"`
	TlsInsecureSkipVerify     bool          `mapstructure:"tls_insecure_skip_verify"`
}

func MustLoad() *Config {
	viper.AddConfigPath(path.Join("."))
	viper.SetConfigName("config")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		slog.Error("can't initialize config file.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("error unmarshalling viper config.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	cfg.applyDefaults()

	return &cfg
}

func (c *Config) applyDefaults() {
	if c.CrawlerSettings == nil {
		c.CrawlerSettings = &CrawlerConfig{}
	}
	cr := c.CrawlerSettings
	if cr.Interval <= 0 {
		cr.Interval = 6 * time.Hour
	}
	if cr.MaxSources <= 0 {
		cr.MaxSources = 3
	}
	if cr.MaxUrlsPerSource <= 0 {
		cr.MaxUrlsPerSource = 25
	}
	if cr.BatchSize <= 0 {
		cr.BatchSize = 5
	}
	if cr.JobHistoryLimit <= 0 {
		cr.JobHistoryLimit = 50
	}
	if cr.CollectionLinkCap <= 0 {
		cr.CollectionLinkCap = 20
	}
	if cr.OffPeakEndHour <= cr.OffPeakStartHour {
		cr.OffPeakStartHour = 1
		cr.OffPeakEndHour = 6
	}

	if c.RateLimiterSetting == nil {
		c.RateLimiterSetting = &RateLimiterConf{}
	}
	rl := c.RateLimiterSetting
	if rl.BaseDelay <= 0 {
		rl.BaseDelay = 3 * time.Second
	}
	if rl.MinDelay <= 0 {
		rl.MinDelay = 500 * time.Millisecond
	}
	if rl.MaxDelay <= 0 {
		rl.MaxDelay = 30 * time.Second
	}
	if rl.ResetCeiling <= 0 {
		rl.ResetCeiling = 100
	}

	if c.ThrottleSettings == nil {
		c.ThrottleSettings = &ThrottleConfig{}
	}
	th := c.ThrottleSettings
	if th.DefaultInterval <= 0 {
		th.DefaultInterval = 8 * time.Second
	}
	if th.MinInterval <= 0 {
		th.MinInterval = 5 * time.Second
	}
	if th.MaxInterval <= 0 {
		th.MaxInterval = 30 * time.Second
	}
	if th.MaxJitter <= 0 {
		th.MaxJitter = 3 * time.Second
	}

	if c.UrlCacheSettings == nil {
		c.UrlCacheSettings = &UrlCacheConfig{}
	}
	uc := c.UrlCacheSettings
	if uc.Capacity <= 0 {
		uc.Capacity = 10000
	}
	if uc.SuccessCooldown <= 0 {
		uc.SuccessCooldown = 2 * time.Hour
	}
	if uc.FailureCooldown <= 0 {
		uc.FailureCooldown = 15 * time.Minute
	}

	if c.StrategySettings == nil {
		c.StrategySettings = &StrategyConfig{}
	}
	st := c.StrategySettings
	if st.BrowserTimeout <= 0 {
		st.BrowserTimeout = 45 * time.Second
	}
	if st.ArchiveTimeout <= 0 {
		st.ArchiveTimeout = 30
	}
	if st.ArchiveRetries <= 0 {
		st.ArchiveRetries = 2
	}
	if st.ArchiveIndexes <= 0 {
		st.ArchiveIndexes = 2
	}
	if st.MaxBodyBytes <= 0 {
		st.MaxBodyBytes = 5 * 1024 * 1024
	}
	if st.DefaultLanguage == "" {
		st.DefaultLanguage = "en-US,en;q=0.9"
	}

	if c.ExtractionSettings == nil {
		c.ExtractionSettings = &ExtractionConfig{}
	}
	if c.HttpClientSettings == nil {
		c.HttpClientSettings = &HttpClientConfig{RequestTimeout: 20 * time.Second}
	}
	if c.HttpClientSettings.RequestTimeout <= 0 {
		c.HttpClientSettings.RequestTimeout = 20 * time.Second
	}
}
