package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

// EnvPrefix is the prefix of every environment override, e.g. CLINIC_SCHEDULE_CAPACITY.
const EnvPrefix = "CLINIC"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" split_words:"true"`
	Log       LogConfig       `mapstructure:"log"`
	Doctors   []DoctorConfig  `mapstructure:"doctors" ignored:"true"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" split_words:"true"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" split_words:"true"`
	AllowOrigins    []string      `mapstructure:"allow_origins" split_words:"true"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" split_words:"true"`
}

type ScheduleConfig struct {
	GranularityMinutes int           `mapstructure:"granularity_minutes" split_words:"true"`
	Capacity           int           `mapstructure:"capacity"`
	TokenStrategy      string        `mapstructure:"token_strategy" split_words:"true"`
	TokenPrefix        bool          `mapstructure:"token_prefix" split_words:"true"`
	Timezone           string        `mapstructure:"timezone"`
	MaxAdvanceDays     int           `mapstructure:"max_advance_days" split_words:"true"`
	SnapshotTTL        time.Duration `mapstructure:"snapshot_ttl" split_words:"true"`
	SessionTTL         time.Duration `mapstructure:"session_ttl" split_words:"true"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	Sheets SheetsConfig `mapstructure:"sheets"`
}

type SheetsConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures" split_words:"true"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" split_words:"true"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Channel      string        `mapstructure:"channel"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// DoctorConfig overrides the built-in roster. Hours are "HH:MM-HH:MM" spans.
type DoctorConfig struct {
	ID             string   `mapstructure:"id"`
	Name           string   `mapstructure:"name"`
	Specialization string   `mapstructure:"specialization"`
	Department     string   `mapstructure:"department"`
	Hours          []string `mapstructure:"hours"`
}

func (d DoctorConfig) ToModel() (model.Doctor, error) {
	doc := model.Doctor{
		ID:             d.ID,
		Name:           d.Name,
		Specialization: d.Specialization,
		Department:     d.Department,
	}
	for _, span := range d.Hours {
		parts := strings.SplitN(span, "-", 2)
		if len(parts) != 2 {
			return doc, fmt.Errorf("doctor %s: invalid hours %q", d.ID, span)
		}
		start, err := model.ParseTimeOfDay(parts[0], nil)
		if err != nil {
			return doc, fmt.Errorf("doctor %s: %w", d.ID, err)
		}
		end, err := model.ParseTimeOfDay(parts[1], nil)
		if err != nil {
			return doc, fmt.Errorf("doctor %s: %w", d.ID, err)
		}
		doc.WorkingHours = append(doc.WorkingHours, model.WorkingWindow{Start: start, End: end})
	}
	return doc, doc.Validate()
}

// Location resolves the schedule timezone, falling back to the host zone.
func (c ScheduleConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c ScheduleConfig) Granularity() time.Duration {
	return time.Duration(c.GranularityMinutes) * time.Minute
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 35*time.Second)
	v.SetDefault("server.request_timeout", 25*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 64<<10)

	v.SetDefault("schedule.granularity_minutes", 30)
	v.SetDefault("schedule.capacity", 1)
	v.SetDefault("schedule.token_strategy", "arrival")
	v.SetDefault("schedule.token_prefix", false)
	v.SetDefault("schedule.timezone", "Local")
	v.SetDefault("schedule.max_advance_days", 90)
	v.SetDefault("schedule.snapshot_ttl", 10*time.Minute)
	v.SetDefault("schedule.session_ttl", 30*time.Minute)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.sheets.timeout", 10*time.Second)
	v.SetDefault("storage.sheets.breaker_failures", 5)
	v.SetDefault("storage.sheets.breaker_timeout", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.channel", "booking.confirmed")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)

	v.SetDefault("smtp.port", 587)

	v.SetDefault("rate_limit.rps", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yml from the usual locations (or the given
// directories), then applies CLINIC_* environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Schedule.GranularityMinutes <= 0 {
		return fmt.Errorf("schedule.granularity_minutes must be positive")
	}
	if c.Schedule.Capacity < 1 {
		return fmt.Errorf("schedule.capacity must be at least 1")
	}
	if _, err := c.Schedule.Location(); err != nil {
		return err
	}
	// The timeout middleware must answer before net/http drops the connection.
	if c.Server.RequestTimeout > 0 && c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.Server.RequestTimeout {
		return fmt.Errorf("server.write_timeout (%s) must exceed server.request_timeout (%s)",
			c.Server.WriteTimeout, c.Server.RequestTimeout)
	}
	switch c.Storage.Driver {
	case "memory", "postgres":
	case "sheets":
		if c.Storage.Sheets.Endpoint == "" {
			return fmt.Errorf("storage.sheets.endpoint is required for the sheets driver")
		}
		// A booking fetches the sheet and then appends to it.
		if c.Server.RequestTimeout > 0 && c.Server.RequestTimeout <= 2*c.Storage.Sheets.Timeout {
			return fmt.Errorf("server.request_timeout (%s) must exceed twice storage.sheets.timeout (%s)",
				c.Server.RequestTimeout, c.Storage.Sheets.Timeout)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// DoctorModels converts configured doctors, or returns nil when none are set.
func (c *Config) DoctorModels() ([]model.Doctor, error) {
	if len(c.Doctors) == 0 {
		return nil, nil
	}
	out := make([]model.Doctor, 0, len(c.Doctors))
	for _, d := range c.Doctors {
		doc, err := d.ToModel()
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}
