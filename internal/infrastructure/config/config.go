package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Scheduler    SchedulerConfig
	Telemetry    TelemetryConfig
	Ingestion    IngestionConfig
	Marketplaces MarketplacesConfig
	Shops        []ShopConfig
	Storage      StorageConfig
	Kafka        KafkaConfig
	Swagger      SwaggerConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings.
// An empty Host disables Redis and renewal locks stay in process.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	LockTTL  time.Duration
}

// JWTConfig holds settings for the ops API bearer tokens
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	TrustedProxies   []string
	TriggerRateLimit int // manual triggers per operator per minute
}

// SchedulerConfig holds the interval trigger configuration
type SchedulerConfig struct {
	Enabled           bool
	DefaultInterval   time.Duration
	MaxConcurrentJobs int
	JobTimeout        time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	LogsEnabled       bool
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
	Profiling         ProfilingConfig
}

// ProfilingConfig holds Pyroscope continuous profiling settings
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string // e.g. "http://pyroscope:4040"
	ApplicationName   string // defaults to telemetry.service_name
	BasicAuthUser     string
	BasicAuthPassword string
	ProfileTypes      []string
	UploadRate        time.Duration
	SpanProfiles      bool // link CPU samples to trace spans; needs telemetry.enabled
}

// SwaggerConfig controls the ops API documentation endpoint
type SwaggerConfig struct {
	Enabled     bool
	RequireAuth bool // require an ops bearer token with runs:read
}

// IngestionConfig tunes fetch, pacing, token renewal and retries
type IngestionConfig struct {
	PageSize        int
	PageCap         int
	DetailDelay     time.Duration
	TokenBuffer     time.Duration
	InitialLookback time.Duration
	WindowOverlap   time.Duration
	ArchiveRaw      bool
	Retry           RetryConfig
}

// RetryConfig is the resilience policy for marketplace calls
type RetryConfig struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	TerminateOnFallback bool
}

// MarketplacesConfig holds per-marketplace endpoint settings
type MarketplacesConfig struct {
	Yahoo   YahooConfig
	Rakuten RakutenConfig
}

// YahooConfig holds endpoint settings of the XML family.
// Empty URLs fall back to production endpoints.
type YahooConfig struct {
	Enabled          bool
	OrderListURL     string
	OrderInfoURL     string
	TokenURL         string
	RedirectURI      string
	PublicKey        string
	PublicKeyVersion string
	TimeoutSeconds   int
}

// RakutenConfig holds endpoint settings of the JSON family
type RakutenConfig struct {
	Enabled        bool
	SearchOrderURL string
	GetOrderURL    string
	ServiceSecret  string
	TimeoutSeconds int
}

// ShopConfig is one shop ingested by the scheduler
type ShopConfig struct {
	Code        string        `mapstructure:"code" validate:"required,max=64"`
	Marketplace string        `mapstructure:"marketplace" validate:"required,oneof=yahoo rakuten"`
	SellerID    string        `mapstructure:"seller_id" validate:"max=64"`
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval" validate:"omitempty,min=1m"`
	Statuses    []string      `mapstructure:"statuses"`
	UserTag     string        `mapstructure:"user_tag" validate:"max=64"`
}

// StorageConfig holds the S3 raw payload archive settings
type StorageConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	UsePathStyle    bool
}

// KafkaConfig holds run-completed event publishing settings
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with INGEST_ prefix (e.g., INGEST_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from an explicit file, or searches the
// default locations when path is empty
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("swagger.enabled", true)
	v.SetDefault("swagger.require_auth", true)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			LockTTL:  v.GetDuration("redis.lock_ttl"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			TriggerRateLimit: v.GetInt("http.trigger_rate_limit"),
		},
		Scheduler: SchedulerConfig{
			Enabled:           v.GetBool("scheduler.enabled"),
			DefaultInterval:   v.GetDuration("scheduler.default_interval"),
			MaxConcurrentJobs: v.GetInt("scheduler.max_concurrent_jobs"),
			JobTimeout:        v.GetDuration("scheduler.job_timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			Profiling: ProfilingConfig{
				Enabled:           v.GetBool("telemetry.profiling.enabled"),
				ServerAddress:     v.GetString("telemetry.profiling.server_address"),
				ApplicationName:   v.GetString("telemetry.profiling.application_name"),
				BasicAuthUser:     v.GetString("telemetry.profiling.basic_auth_user"),
				BasicAuthPassword: v.GetString("telemetry.profiling.basic_auth_password"),
				ProfileTypes:      v.GetStringSlice("telemetry.profiling.profile_types"),
				UploadRate:        v.GetDuration("telemetry.profiling.upload_rate"),
				SpanProfiles:      v.GetBool("telemetry.profiling.span_profiles"),
			},
		},
		Ingestion: IngestionConfig{
			PageSize:        v.GetInt("ingestion.page_size"),
			PageCap:         v.GetInt("ingestion.page_cap"),
			DetailDelay:     v.GetDuration("ingestion.detail_delay"),
			TokenBuffer:     v.GetDuration("ingestion.token_buffer"),
			InitialLookback: v.GetDuration("ingestion.initial_lookback"),
			WindowOverlap:   v.GetDuration("ingestion.window_overlap"),
			ArchiveRaw:      v.GetBool("ingestion.archive_raw"),
			Retry: RetryConfig{
				MaxAttempts:         v.GetInt("ingestion.retry.max_attempts"),
				InitialInterval:     v.GetDuration("ingestion.retry.initial_interval"),
				MaxInterval:         v.GetDuration("ingestion.retry.max_interval"),
				Multiplier:          v.GetFloat64("ingestion.retry.multiplier"),
				RandomizationFactor: v.GetFloat64("ingestion.retry.randomization_factor"),
				TerminateOnFallback: v.GetBool("ingestion.retry.terminate_on_fallback"),
			},
		},
		Marketplaces: MarketplacesConfig{
			Yahoo: YahooConfig{
				Enabled:          v.GetBool("marketplaces.yahoo.enabled"),
				OrderListURL:     v.GetString("marketplaces.yahoo.order_list_url"),
				OrderInfoURL:     v.GetString("marketplaces.yahoo.order_info_url"),
				TokenURL:         v.GetString("marketplaces.yahoo.token_url"),
				RedirectURI:      v.GetString("marketplaces.yahoo.redirect_uri"),
				PublicKey:        v.GetString("marketplaces.yahoo.public_key"),
				PublicKeyVersion: v.GetString("marketplaces.yahoo.public_key_version"),
				TimeoutSeconds:   v.GetInt("marketplaces.yahoo.timeout_seconds"),
			},
			Rakuten: RakutenConfig{
				Enabled:        v.GetBool("marketplaces.rakuten.enabled"),
				SearchOrderURL: v.GetString("marketplaces.rakuten.search_order_url"),
				GetOrderURL:    v.GetString("marketplaces.rakuten.get_order_url"),
				ServiceSecret:  v.GetString("marketplaces.rakuten.service_secret"),
				TimeoutSeconds: v.GetInt("marketplaces.rakuten.timeout_seconds"),
			},
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			Prefix:          v.GetString("storage.prefix"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
		Kafka: KafkaConfig{
			Enabled:      v.GetBool("kafka.enabled"),
			Brokers:      v.GetStringSlice("kafka.brokers"),
			Topic:        v.GetString("kafka.topic"),
			WriteTimeout: v.GetDuration("kafka.write_timeout"),
		},
		Swagger: SwaggerConfig{
			Enabled:     v.GetBool("swagger.enabled"),
			RequireAuth: v.GetBool("swagger.require_auth"),
		},
	}

	if err := v.UnmarshalKey("shops", &cfg.Shops); err != nil {
		return nil, &integration.ConfigurationError{Key: "shops", Reason: err.Error()}
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "marketplace-ingest"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "ingest"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = 30 * time.Second
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "marketplace-ingest"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.TriggerRateLimit == 0 {
		cfg.HTTP.TriggerRateLimit = 30
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.Scheduler.DefaultInterval == 0 {
		cfg.Scheduler.DefaultInterval = 15 * time.Minute
	}
	if cfg.Scheduler.MaxConcurrentJobs == 0 {
		cfg.Scheduler.MaxConcurrentJobs = 3
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 30 * time.Minute
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 30 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.Profiling.ApplicationName == "" {
		cfg.Telemetry.Profiling.ApplicationName = cfg.Telemetry.ServiceName
	}
	if len(cfg.Telemetry.Profiling.ProfileTypes) == 0 {
		cfg.Telemetry.Profiling.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}
	}
	if cfg.Telemetry.Profiling.UploadRate == 0 {
		cfg.Telemetry.Profiling.UploadRate = 15 * time.Second
	}

	if cfg.Ingestion.PageSize == 0 {
		cfg.Ingestion.PageSize = 100
	}
	if cfg.Ingestion.PageCap == 0 {
		cfg.Ingestion.PageCap = integration.DefaultPageCap
	}
	if cfg.Ingestion.DetailDelay == 0 {
		cfg.Ingestion.DetailDelay = 300 * time.Millisecond
	}
	if cfg.Ingestion.TokenBuffer == 0 {
		cfg.Ingestion.TokenBuffer = integration.DefaultTokenBuffer
	}
	if cfg.Ingestion.InitialLookback == 0 {
		cfg.Ingestion.InitialLookback = 24 * time.Hour
	}
	if cfg.Ingestion.WindowOverlap == 0 {
		cfg.Ingestion.WindowOverlap = 10 * time.Minute
	}
	if cfg.Ingestion.Retry.MaxAttempts == 0 {
		cfg.Ingestion.Retry.MaxAttempts = 5
	}
	if cfg.Ingestion.Retry.InitialInterval == 0 {
		cfg.Ingestion.Retry.InitialInterval = time.Second
	}
	if cfg.Ingestion.Retry.MaxInterval == 0 {
		cfg.Ingestion.Retry.MaxInterval = 30 * time.Second
	}
	if cfg.Ingestion.Retry.Multiplier == 0 {
		cfg.Ingestion.Retry.Multiplier = 2
	}
	if cfg.Ingestion.Retry.RandomizationFactor == 0 {
		cfg.Ingestion.Retry.RandomizationFactor = 0.5
	}

	if cfg.Marketplaces.Yahoo.TimeoutSeconds == 0 {
		cfg.Marketplaces.Yahoo.TimeoutSeconds = 30
	}
	if cfg.Marketplaces.Rakuten.TimeoutSeconds == 0 {
		cfg.Marketplaces.Rakuten.TimeoutSeconds = 30
	}

	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "raw"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "ingestion.runs"
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 10 * time.Second
	}
}

// validate performs validation on the configuration.
// Every failure is a *integration.ConfigurationError.
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return configErr("database.max_open_conns", "must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return configErr("database.max_idle_conns", "cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return configErr("database.max_idle_conns",
			fmt.Sprintf("(%d) cannot exceed database.max_open_conns (%d)", c.Database.MaxIdleConns, c.Database.MaxOpenConns))
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return configErr("jwt.secret", "is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return configErr("jwt.secret", "must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return configErr("database.password", "is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return configErr("database.sslmode", "cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return configErr("telemetry.db_log_full_sql", "must be false in production")
		}
		if c.Swagger.Enabled && !c.Swagger.RequireAuth {
			return configErr("swagger.require_auth", "must be true in production while swagger.enabled")
		}
	}

	if c.Telemetry.Profiling.Enabled && c.Telemetry.Profiling.ServerAddress == "" {
		return configErr("telemetry.profiling.server_address", "is required when profiling is enabled")
	}
	if c.Telemetry.Profiling.UploadRate < time.Second {
		return configErr("telemetry.profiling.upload_rate", "must be at least 1s")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return configErr("telemetry.sampling_ratio", fmt.Sprintf("must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio))
	}

	if c.Ingestion.PageSize < 1 {
		return configErr("ingestion.page_size", "must be positive")
	}
	if c.Ingestion.PageCap < 1 {
		return configErr("ingestion.page_cap", "must be positive")
	}
	if c.Ingestion.DetailDelay < 0 {
		return configErr("ingestion.detail_delay", "cannot be negative")
	}
	if c.Ingestion.Retry.Multiplier < 1 {
		return configErr("ingestion.retry.multiplier", "must be at least 1")
	}

	if c.Marketplaces.Rakuten.Enabled && c.Marketplaces.Rakuten.ServiceSecret == "" {
		return configErr("marketplaces.rakuten.service_secret", "is required when rakuten is enabled")
	}
	if c.Marketplaces.Yahoo.PublicKey != "" && c.Marketplaces.Yahoo.PublicKeyVersion == "" {
		return configErr("marketplaces.yahoo.public_key_version", "is required with a public key")
	}

	if err := c.validateShops(); err != nil {
		return err
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return configErr("storage.bucket", "is required when storage is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return configErr("kafka.brokers", "at least one broker is required when kafka is enabled")
	}

	return nil
}

func (c *Config) validateShops() error {
	validate := validator.New()
	seen := make(map[string]bool, len(c.Shops))
	for i, shop := range c.Shops {
		if err := validate.Struct(shop); err != nil {
			return configErr(fmt.Sprintf("shops[%d]", i), err.Error())
		}
		if seen[shop.Code] {
			return configErr(fmt.Sprintf("shops[%d].code", i), fmt.Sprintf("duplicate shop code %q", shop.Code))
		}
		seen[shop.Code] = true

		switch integration.Marketplace(shop.Marketplace) {
		case integration.MarketplaceYahoo:
			if !c.Marketplaces.Yahoo.Enabled {
				return configErr(fmt.Sprintf("shops[%d].marketplace", i), "yahoo is not enabled")
			}
		case integration.MarketplaceRakuten:
			if !c.Marketplaces.Rakuten.Enabled {
				return configErr(fmt.Sprintf("shops[%d].marketplace", i), "rakuten is not enabled")
			}
		}
	}
	return nil
}

// EnabledShops returns the shops the scheduler should ingest
func (c *Config) EnabledShops() []ShopConfig {
	out := make([]ShopConfig, 0, len(c.Shops))
	for _, s := range c.Shops {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Shop returns the configured shop with the given code
func (c *Config) Shop(code string) (ShopConfig, bool) {
	for _, s := range c.Shops {
		if s.Code == code {
			return s, true
		}
	}
	return ShopConfig{}, false
}

func configErr(key, reason string) error {
	return &integration.ConfigurationError{Key: key, Reason: reason}
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis address, or "" when Redis is disabled
func (r *RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
