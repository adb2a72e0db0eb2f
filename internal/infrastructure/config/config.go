package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Log           LogConfig
	HTTP          HTTPConfig
	Scheduler     SchedulerConfig
	Telemetry     TelemetryConfig
	BusinessRules BusinessRulesConfig
	Lock          LockConfig
	Audit         AuditConfig
	Idempotency   IdempotencyConfig
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

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds the ops HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// SchedulerConfig holds overdue sweep scheduler configuration
type SchedulerConfig struct {
	Enabled             bool
	OverdueCronSchedule string
	MaxConcurrentJobs   int
	JobTimeout          time.Duration
	RetryAttempts       int
	RetryDelay          time.Duration
	ServiceActorName    string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// BusinessRulesConfig holds the ledger rule thresholds
type BusinessRulesConfig struct {
	AllowNegativeBalance        bool
	MaxTransactionAmount        decimal.Decimal
	MinTransactionAmount        decimal.Decimal
	MaxDailyTransactionLimit    decimal.Decimal
	RequireFutureDateValidation bool
}

// LockConfig holds per-customer write serialization settings
type LockConfig struct {
	Driver     string        // memory or redis
	Expiry     time.Duration // Redis lock TTL
	Tries      int           // Redis acquire attempts
	RetryDelay time.Duration // Delay between acquire attempts
	MaxRetries int           // Optimistic version-conflict retries
}

// AuditConfig holds audit pipeline settings
type AuditConfig struct {
	Sinks        []string // database, log, kafka
	QueueSize    int
	KafkaBrokers []string
	KafkaTopic   string
	// Circuit breaker guarding the Kafka sink
	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
}

// HasSink reports whether name is among the configured sinks
func (a AuditConfig) HasSink(name string) bool {
	for _, s := range a.Sinks {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return true
		}
	}
	return false
}

// IdempotencyConfig holds payment idempotency settings
type IdempotencyConfig struct {
	Enabled bool
	Driver  string // memory or redis
	TTL     time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with LEDGER_ prefix (e.g., LEDGER_DATABASE_PASSWORD),
// including those loaded from a .env file
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	// A missing .env file is fine; variables already set are not overridden
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans whose default is true cannot be told apart from unset
	v.SetDefault("business_rules.require_future_date_validation", true)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("idempotency.enabled", true)

	rules, err := loadBusinessRules(v)
	if err != nil {
		return nil, err
	}

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
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
		Scheduler: SchedulerConfig{
			Enabled:             v.GetBool("scheduler.enabled"),
			OverdueCronSchedule: v.GetString("scheduler.overdue_cron_schedule"),
			MaxConcurrentJobs:   v.GetInt("scheduler.max_concurrent_jobs"),
			JobTimeout:          v.GetDuration("scheduler.job_timeout"),
			RetryAttempts:       v.GetInt("scheduler.retry_attempts"),
			RetryDelay:          v.GetDuration("scheduler.retry_delay"),
			ServiceActorName:    v.GetString("scheduler.service_actor_name"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		BusinessRules: rules,
		Lock: LockConfig{
			Driver:     v.GetString("lock.driver"),
			Expiry:     v.GetDuration("lock.expiry"),
			Tries:      v.GetInt("lock.tries"),
			RetryDelay: v.GetDuration("lock.retry_delay"),
			MaxRetries: v.GetInt("lock.max_retries"),
		},
		Audit: AuditConfig{
			Sinks:               v.GetStringSlice("audit.sinks"),
			QueueSize:           v.GetInt("audit.queue_size"),
			KafkaBrokers:        v.GetStringSlice("audit.kafka_brokers"),
			KafkaTopic:          v.GetString("audit.kafka_topic"),
			BreakerMaxRequests:  v.GetUint32("audit.breaker_max_requests"),
			BreakerInterval:     v.GetDuration("audit.breaker_interval"),
			BreakerTimeout:      v.GetDuration("audit.breaker_timeout"),
			BreakerMinRequests:  v.GetUint32("audit.breaker_min_requests"),
			BreakerFailureRatio: v.GetFloat64("audit.breaker_failure_ratio"),
		},
		Idempotency: IdempotencyConfig{
			Enabled: v.GetBool("idempotency.enabled"),
			Driver:  v.GetString("idempotency.driver"),
			TTL:     v.GetDuration("idempotency.ttl"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadBusinessRules reads the rule thresholds, parsing amounts as decimals
func loadBusinessRules(v *viper.Viper) (BusinessRulesConfig, error) {
	rules := BusinessRulesConfig{
		AllowNegativeBalance:        v.GetBool("business_rules.allow_negative_balance"),
		RequireFutureDateValidation: v.GetBool("business_rules.require_future_date_validation"),
	}
	amounts := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"business_rules.max_transaction_amount", &rules.MaxTransactionAmount},
		{"business_rules.min_transaction_amount", &rules.MinTransactionAmount},
		{"business_rules.max_daily_transaction_limit", &rules.MaxDailyTransactionLimit},
	}
	for _, a := range amounts {
		raw := strings.TrimSpace(v.GetString(a.key))
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return rules, fmt.Errorf("%s must be a decimal amount: %w", a.key, err)
		}
		*a.dst = d
	}
	return rules, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ledger-engine"
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
		cfg.Database.DBName = "ledger"
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
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
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
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Scheduler.OverdueCronSchedule == "" {
		cfg.Scheduler.OverdueCronSchedule = "0 1 * * *"
	}
	if cfg.Scheduler.MaxConcurrentJobs == 0 {
		cfg.Scheduler.MaxConcurrentJobs = 2
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 10 * time.Minute
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 3
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = 5 * time.Minute
	}
	if cfg.Scheduler.ServiceActorName == "" {
		cfg.Scheduler.ServiceActorName = "ledger-scheduler"
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ledger-engine"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}

	// Business rule defaults
	if cfg.BusinessRules.MaxTransactionAmount.IsZero() {
		cfg.BusinessRules.MaxTransactionAmount = decimal.NewFromInt(1000000)
	}
	if cfg.BusinessRules.MinTransactionAmount.IsZero() {
		cfg.BusinessRules.MinTransactionAmount = decimal.New(1, -2)
	}
	if cfg.BusinessRules.MaxDailyTransactionLimit.IsZero() {
		cfg.BusinessRules.MaxDailyTransactionLimit = decimal.NewFromInt(100000)
	}

	if cfg.Lock.Driver == "" {
		cfg.Lock.Driver = "memory"
	}
	if cfg.Lock.Expiry == 0 {
		cfg.Lock.Expiry = 10 * time.Second
	}
	if cfg.Lock.Tries == 0 {
		cfg.Lock.Tries = 32
	}
	if cfg.Lock.RetryDelay == 0 {
		cfg.Lock.RetryDelay = 50 * time.Millisecond
	}
	if cfg.Lock.MaxRetries == 0 {
		cfg.Lock.MaxRetries = 3
	}

	if len(cfg.Audit.Sinks) == 0 {
		cfg.Audit.Sinks = []string{"database", "log"}
	}
	if cfg.Audit.QueueSize == 0 {
		cfg.Audit.QueueSize = 1024
	}
	if cfg.Audit.KafkaTopic == "" {
		cfg.Audit.KafkaTopic = "ledger.audit"
	}
	if cfg.Audit.BreakerMaxRequests == 0 {
		cfg.Audit.BreakerMaxRequests = 3
	}
	if cfg.Audit.BreakerInterval == 0 {
		cfg.Audit.BreakerInterval = 30 * time.Second
	}
	if cfg.Audit.BreakerTimeout == 0 {
		cfg.Audit.BreakerTimeout = 10 * time.Second
	}
	if cfg.Audit.BreakerMinRequests == 0 {
		cfg.Audit.BreakerMinRequests = 5
	}
	if cfg.Audit.BreakerFailureRatio == 0 {
		cfg.Audit.BreakerFailureRatio = 0.6
	}

	if cfg.Idempotency.Driver == "" {
		cfg.Idempotency.Driver = "memory"
	}
	if cfg.Idempotency.TTL == 0 {
		cfg.Idempotency.TTL = 24 * time.Hour
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	rules := c.BusinessRules
	if rules.MinTransactionAmount.IsNegative() {
		return fmt.Errorf("business_rules.min_transaction_amount cannot be negative")
	}
	if rules.MinTransactionAmount.GreaterThan(rules.MaxTransactionAmount) {
		return fmt.Errorf("business_rules.min_transaction_amount (%s) cannot exceed business_rules.max_transaction_amount (%s)",
			rules.MinTransactionAmount, rules.MaxTransactionAmount)
	}
	if rules.MaxDailyTransactionLimit.IsNegative() {
		return fmt.Errorf("business_rules.max_daily_transaction_limit cannot be negative")
	}

	switch c.Lock.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("lock.driver must be memory or redis, got %q", c.Lock.Driver)
	}
	if c.Lock.MaxRetries < 0 {
		return fmt.Errorf("lock.max_retries cannot be negative")
	}

	switch c.Idempotency.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("idempotency.driver must be memory or redis, got %q", c.Idempotency.Driver)
	}

	for _, sink := range c.Audit.Sinks {
		switch strings.ToLower(strings.TrimSpace(sink)) {
		case "database", "log", "kafka":
		default:
			return fmt.Errorf("audit.sinks contains unknown sink %q", sink)
		}
	}
	if c.Audit.HasSink("kafka") && len(c.Audit.KafkaBrokers) == 0 {
		return fmt.Errorf("audit.kafka_brokers is required when the kafka sink is enabled")
	}
	if c.Audit.QueueSize <= 0 {
		return fmt.Errorf("audit.queue_size must be positive")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
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
