package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Auth     AuthConfig     `yaml:"auth"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Log      LogConfig      `yaml:"log"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type HTTPConfig struct {
	Address             string   `yaml:"address"`
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
	CORSOrigins         []string `yaml:"cors_origins"`
	SwaggerFile         string   `yaml:"swagger_file"`
	// RateLimit uses the limiter format, e.g. "30-M" for 30 requests per minute.
	RateLimit string `yaml:"rate_limit"`
}

func (h HTTPConfig) ReadTimeout() time.Duration {
	return time.Duration(h.ReadTimeoutSeconds) * time.Second
}

func (h HTTPConfig) WriteTimeout() time.Duration {
	return time.Duration(h.WriteTimeoutSeconds) * time.Second
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a redis address was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingTopic       string   `yaml:"booking_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type BookingConfig struct {
	HoldTTLMinutes           int    `yaml:"hold_ttl_minutes"`
	StandaloneHoldTTLMinutes int    `yaml:"standalone_hold_ttl_minutes"`
	CancellationCutoffHours  int    `yaml:"cancellation_cutoff_hours"`
	CodePrefix               string `yaml:"code_prefix"`
	CodeMaxAttempts          int    `yaml:"code_max_attempts"`
	CancelOrphanedPending    *bool  `yaml:"cancel_orphaned_pending"`
	FlightsCacheTTL          int    `yaml:"flights_cache_ttl_seconds"`
	ExtraPieceFeeCents       int64  `yaml:"extra_piece_fee_cents"`
}

func (b BookingConfig) HoldTTL() time.Duration {
	return time.Duration(b.HoldTTLMinutes) * time.Minute
}

func (b BookingConfig) StandaloneHoldTTL() time.Duration {
	return time.Duration(b.StandaloneHoldTTLMinutes) * time.Minute
}

func (b BookingConfig) CancellationCutoff() time.Duration {
	return time.Duration(b.CancellationCutoffHours) * time.Hour
}

func (b BookingConfig) FlightsCacheTTLDuration() time.Duration {
	return time.Duration(b.FlightsCacheTTL) * time.Second
}

func (b BookingConfig) CancelsOrphans() bool {
	return b.CancelOrphanedPending == nil || *b.CancelOrphanedPending
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type WorkerConfig struct {
	ExpirationSweepMinutes int `yaml:"expiration_sweep_minutes"`
}

// LoadConfig reads .env (if present), the yaml file at path, fills defaults,
// applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.HTTP.Address, ":8080")
	setDefault(&c.HTTP.ReadTimeoutSeconds, 10)
	setDefault(&c.HTTP.WriteTimeoutSeconds, 10)
	setDefault(&c.HTTP.RateLimit, "60-M")

	setDefault(&c.Database.Driver, DriverPostgres)
	setDefault(&c.Database.Port, 5432)
	setDefault(&c.Database.SSLMode, "disable")
	setDefault(&c.Database.MaxConns, 10)
	setDefault(&c.Database.MinConns, 2)

	setDefault(&c.Kafka.BookingTopic, "booking-events")
	setDefault(&c.Kafka.NotificationsTopic, "booking-notifications")
	setDefault(&c.Kafka.GroupID, "skybooking-worker")

	setDefault(&c.Booking.HoldTTLMinutes, 15)
	setDefault(&c.Booking.StandaloneHoldTTLMinutes, 10)
	setDefault(&c.Booking.CancellationCutoffHours, 24)
	setDefault(&c.Booking.CodePrefix, "BK")
	setDefault(&c.Booking.CodeMaxAttempts, 10)
	setDefault(&c.Booking.FlightsCacheTTL, 60)

	setDefault(&c.Auth.Issuer, "skybooking")

	setDefault(&c.SMTP.Port, 587)

	setDefault(&c.Log.Level, "info")
	setDefault(&c.Log.Format, "text")
	setDefault(&c.Log.MaxSizeMB, 100)
	setDefault(&c.Log.MaxBackups, 3)
	setDefault(&c.Log.MaxAgeDays, 28)

	setDefault(&c.Worker.ExpirationSweepMinutes, 1)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverMemory {
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q", DriverPostgres, DriverMemory))
	}
	if c.Database.Driver == DriverPostgres && c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required for the postgres driver"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Booking.HoldTTLMinutes <= 0 || c.Booking.StandaloneHoldTTLMinutes <= 0 {
		errs = append(errs, errors.New("booking hold durations must be positive"))
	}
	if c.Booking.CancellationCutoffHours < 0 {
		errs = append(errs, errors.New("booking.cancellation_cutoff_hours must not be negative"))
	}
	if c.Booking.CodeMaxAttempts <= 0 {
		errs = append(errs, errors.New("booking.code_max_attempts must be positive"))
	}
	if c.Booking.ExtraPieceFeeCents < 0 {
		errs = append(errs, errors.New("booking.extra_piece_fee_cents must not be negative"))
	}
	if c.Worker.ExpirationSweepMinutes <= 0 {
		errs = append(errs, errors.New("worker.expiration_sweep_minutes must be positive"))
	}
	return errors.Join(errs...)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}
