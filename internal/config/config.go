// Package config provides application configuration loaded from environment
// variables, optionally layered over a TOML file named by CONFIG_FILE.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                 string        `toml:"port"`                   // e.g. "8080"
	BackofficePort       string        `toml:"backoffice_port"`        // e.g. "8081"
	Env                  string        `toml:"env"`                    // "development" | "production"
	ReadTimeout          time.Duration `toml:"read_timeout"`           // default 10s
	WriteTimeout         time.Duration `toml:"write_timeout"`          // default 10s
	BackofficeAllowedIPs string        `toml:"backoffice_allowed_ips"` // comma-separated IPs; "" = allow all
	AllowedOrigins       []string      `toml:"allowed_origins"`        // WebSocket origins; empty = allow all
	RateLimitRPS         int           `toml:"rate_limit_rps"`         // per caller on mutations; 0 disables
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        `toml:"dsn"`               // full postgres DSN
	MaxOpenConns    int           `toml:"max_open_conns"`    // default 25
	MaxIdleConns    int           `toml:"max_idle_conns"`    // default 10
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"` // default 5m
}

// JWTConfig holds the key used to verify access tokens issued by the
// platform's identity service.
type JWTConfig struct {
	AccessSecret string `toml:"access_secret"` // must be set
	Issuer       string `toml:"issuer"`        // optional; checked when set
}

// RedisConfig holds Redis connection settings. An empty Addr disables the
// event bus and the archive lock.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Channel    string `toml:"channel"` // pub/sub channel for domain events
	Stream     string `toml:"stream"`  // durable stream for domain events
}

// S3Config holds object storage settings for the settlement archive. An empty
// Bucket disables archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"` // empty for AWS; set for MinIO, R2, ...
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"` // key prefix, default "settlements/"
}

// CurveConfig holds bonding curve settings.
type CurveConfig struct {
	K int64 `toml:"k"` // price(s) = s²/K, default 16000
}

// LiquidityConfig holds pool and fee settings.
type LiquidityConfig struct {
	TradeFeeRate float64 `toml:"trade_fee_rate"` // share of each trade accrued to LPs, default 0.02
}

// ResolutionConfig holds resolution and dispute settings.
type ResolutionConfig struct {
	DisputeWindow time.Duration `toml:"dispute_window"` // default 2h
	DisputeFee    float64       `toml:"dispute_fee"`    // fixed fee in currency units, default 10
	OpinionQuorum int           `toml:"opinion_quorum"` // matching submissions that finalize an OPINION option, default 1
}

// ArchiveConfig holds settings for the settlement archive loop.
type ArchiveConfig struct {
	Interval  time.Duration `toml:"interval"`   // default 1m
	BatchSize int           `toml:"batch_size"` // default 100
	LockTTL   time.Duration `toml:"lock_ttl"`   // default 2m
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	DB         DBConfig         `toml:"db"`
	JWT        JWTConfig        `toml:"jwt"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Curve      CurveConfig      `toml:"curve"`
	Liquidity  LiquidityConfig  `toml:"liquidity"`
	Resolution ResolutionConfig `toml:"resolution"`
	Archive    ArchiveConfig    `toml:"archive"`
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool { return c.Redis.Addr != "" }

// ArchiveEnabled reports whether settlement records are archived to S3.
func (c *Config) ArchiveEnabled() bool { return c.S3.Bucket != "" }

// Validate checks that all required configuration values are present and valid.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be set"))
	}

	// In production, DB DSN must be explicit
	if c.IsProd() && c.DB.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
	}

	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must not be negative, got %d", c.Server.RateLimitRPS))
	}

	if c.Curve.K <= 0 {
		errs = append(errs, fmt.Errorf("CURVE_K must be positive, got %d", c.Curve.K))
	}
	if c.Liquidity.TradeFeeRate < 0 || c.Liquidity.TradeFeeRate >= 1 {
		errs = append(errs, fmt.Errorf(
			"LIQUIDITY_TRADE_FEE_RATE must be in [0, 1), got %.4f",
			c.Liquidity.TradeFeeRate,
		))
	}
	if c.Resolution.DisputeWindow <= 0 {
		errs = append(errs, fmt.Errorf("RESOLUTION_DISPUTE_WINDOW must be positive, got %s", c.Resolution.DisputeWindow))
	}
	if c.Resolution.DisputeFee <= 0 {
		errs = append(errs, fmt.Errorf("RESOLUTION_DISPUTE_FEE must be positive, got %.6f", c.Resolution.DisputeFee))
	}
	if c.Resolution.OpinionQuorum < 1 {
		errs = append(errs, fmt.Errorf("RESOLUTION_OPINION_QUORUM must be at least 1, got %d", c.Resolution.OpinionQuorum))
	}

	if c.ArchiveEnabled() {
		if c.S3.Region == "" {
			errs = append(errs, errors.New("S3_REGION must be set when S3_BUCKET is set"))
		}
		if c.Archive.Interval <= 0 || c.Archive.BatchSize <= 0 {
			errs = append(errs, errors.New("ARCHIVE_INTERVAL and ARCHIVE_BATCH_SIZE must be positive"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from the environment.
// Panics if loading fails; call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		// .env is optional; real environment variables take precedence.
		_ = godotenv.Load()
		instance, loadErr = Load(os.Getenv("CONFIG_FILE"))
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Loader
// ──────────────────────────────────────────────────────────────────────────────

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			BackofficePort: "8081",
			Env:            "development",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			RateLimitRPS:   20,
		},
		DB: DBConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:   20,
			MaxRetries: 3,
			Channel:    "settlement:events",
			Stream:     "settlement:events:stream",
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
			Prefix: "settlements/",
		},
		Curve:     CurveConfig{K: 16000},
		Liquidity: LiquidityConfig{TradeFeeRate: 0.02},
		Resolution: ResolutionConfig{
			DisputeWindow: 2 * time.Hour,
			DisputeFee:    10,
			OpinionQuorum: 1,
		},
		Archive: ArchiveConfig{
			Interval:  time.Minute,
			BatchSize: 100,
			LockTTL:   2 * time.Minute,
		},
	}
}

// Load builds a Config from the defaults, the TOML file at path (skipped when
// path is empty) and finally the environment. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.BackofficePort = getEnv("BACKOFFICE_PORT", cfg.Server.BackofficePort)
	cfg.Server.Env = getEnv("ENVIRONMENT", cfg.Server.Env)
	cfg.Server.ReadTimeout = getDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.BackofficeAllowedIPs = getEnv("BACKOFFICE_ALLOWED_IPS", cfg.Server.BackofficeAllowedIPs)
	if cfg.Server.RateLimitRPS, err = getInt("RATE_LIMIT_RPS", cfg.Server.RateLimitRPS); err != nil {
		return fmt.Errorf("RATE_LIMIT_RPS: %w", err)
	}
	if v := os.Getenv("WS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	// ── Database ──────────────────────────────────────────────────────────────
	cfg.DB.DSN = getEnv("DATABASE_DSN", cfg.DB.DSN)
	if cfg.DB.DSN == "" {
		// Build DSN from individual components for convenience in dev
		cfg.DB.DSN = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "evetabi_settlement"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}
	if cfg.DB.MaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", cfg.DB.MaxOpenConns); err != nil {
		return fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	if cfg.DB.MaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", cfg.DB.MaxIdleConns); err != nil {
		return fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}
	cfg.DB.ConnMaxLifetime = getDuration("DB_CONN_MAX_LIFETIME", cfg.DB.ConnMaxLifetime)

	// ── JWT ───────────────────────────────────────────────────────────────────
	cfg.JWT.AccessSecret = getEnv("JWT_ACCESS_SECRET", cfg.JWT.AccessSecret)
	cfg.JWT.Issuer = getEnv("JWT_ISSUER", cfg.JWT.Issuer)

	// ── Redis ─────────────────────────────────────────────────────────────────
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	if cfg.Redis.DB, err = getInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return fmt.Errorf("REDIS_DB: %w", err)
	}
	if cfg.Redis.PoolSize, err = getInt("REDIS_POOL_SIZE", cfg.Redis.PoolSize); err != nil {
		return fmt.Errorf("REDIS_POOL_SIZE: %w", err)
	}
	cfg.Redis.TLSEnabled = getBool("REDIS_TLS", cfg.Redis.TLSEnabled)
	cfg.Redis.Channel = getEnv("REDIS_EVENT_CHANNEL", cfg.Redis.Channel)
	cfg.Redis.Stream = getEnv("REDIS_EVENT_STREAM", cfg.Redis.Stream)

	// ── S3 ────────────────────────────────────────────────────────────────────
	cfg.S3.Endpoint = getEnv("S3_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.Region = getEnv("S3_REGION", cfg.S3.Region)
	cfg.S3.Bucket = getEnv("S3_BUCKET", cfg.S3.Bucket)
	cfg.S3.AccessKey = getEnv("S3_ACCESS_KEY", cfg.S3.AccessKey)
	cfg.S3.SecretKey = getEnv("S3_SECRET_KEY", cfg.S3.SecretKey)
	cfg.S3.UseSSL = getBool("S3_USE_SSL", cfg.S3.UseSSL)
	cfg.S3.ForcePathStyle = getBool("S3_FORCE_PATH_STYLE", cfg.S3.ForcePathStyle)
	cfg.S3.Prefix = getEnv("S3_PREFIX", cfg.S3.Prefix)

	// ── Curve / liquidity / resolution ────────────────────────────────────────
	k, err := getInt("CURVE_K", int(cfg.Curve.K))
	if err != nil {
		return fmt.Errorf("CURVE_K: %w", err)
	}
	cfg.Curve.K = int64(k)

	if cfg.Liquidity.TradeFeeRate, err = getFloat("LIQUIDITY_TRADE_FEE_RATE", cfg.Liquidity.TradeFeeRate); err != nil {
		return fmt.Errorf("LIQUIDITY_TRADE_FEE_RATE: %w", err)
	}

	cfg.Resolution.DisputeWindow = getDuration("RESOLUTION_DISPUTE_WINDOW", cfg.Resolution.DisputeWindow)
	if cfg.Resolution.DisputeFee, err = getFloat("RESOLUTION_DISPUTE_FEE", cfg.Resolution.DisputeFee); err != nil {
		return fmt.Errorf("RESOLUTION_DISPUTE_FEE: %w", err)
	}
	if cfg.Resolution.OpinionQuorum, err = getInt("RESOLUTION_OPINION_QUORUM", cfg.Resolution.OpinionQuorum); err != nil {
		return fmt.Errorf("RESOLUTION_OPINION_QUORUM: %w", err)
	}

	// ── Archive ───────────────────────────────────────────────────────────────
	cfg.Archive.Interval = getDuration("ARCHIVE_INTERVAL", cfg.Archive.Interval)
	if cfg.Archive.BatchSize, err = getInt("ARCHIVE_BATCH_SIZE", cfg.Archive.BatchSize); err != nil {
		return fmt.Errorf("ARCHIVE_BATCH_SIZE: %w", err)
	}
	cfg.Archive.LockTTL = getDuration("ARCHIVE_LOCK_TTL", cfg.Archive.LockTTL)

	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

func getBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// do not crash on parse error
		return defaultVal
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
