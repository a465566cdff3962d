package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the notification engine.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Email    EmailConfig    `mapstructure:"email"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Reset    ResetConfig    `mapstructure:"reset"`
	Brand    BrandConfig    `mapstructure:"brand"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// EmailConfig captures outbound email settings. Provider selects the primary
// HTTP transport; SMTP is the fallback and stays disabled unless switched on.
type EmailConfig struct {
	Provider string        `mapstructure:"provider"` // sendgrid | resend | ""
	From     string        `mapstructure:"from"`
	FromName string        `mapstructure:"from_name"`
	SendGrid HTTPAPIConfig `mapstructure:"sendgrid"`
	Resend   HTTPAPIConfig `mapstructure:"resend"`
	SMTP     SMTPConfig    `mapstructure:"smtp"`
}

// HTTPAPIConfig holds credentials for an HTTP email provider.
type HTTPAPIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SMTPConfig defines SMTP dialer settings for the fallback transport.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// NotifyConfig tunes inline dispatch and the catch-up sweep.
type NotifyConfig struct {
	Workers       int    `mapstructure:"workers"`
	QueueSize     int    `mapstructure:"queue_size"`
	SweepSchedule string `mapstructure:"sweep_schedule"`
	SweepBatch    int    `mapstructure:"sweep_batch"`
	GCSchedule    string `mapstructure:"gc_schedule"`
}

// ResetConfig tunes the password reset OTP flow.
type ResetConfig struct {
	CodeTTL     time.Duration `mapstructure:"code_ttl"`
	GuardTTL    time.Duration `mapstructure:"guard_ttl"`
	GuardSecret string        `mapstructure:"guard_secret"`
}

// BrandConfig customises user-facing email copy.
type BrandConfig struct {
	Name    string `mapstructure:"name"`
	LogoURL string `mapstructure:"logo_url"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("EPETCARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/epetcare.sqlite")

	v.SetDefault("email.provider", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.from_name", "ePetCare")
	v.SetDefault("email.sendgrid.timeout", "15s")
	v.SetDefault("email.resend.timeout", "15s")
	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("notify.workers", 4)
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.sweep_schedule", "@every 5m")
	v.SetDefault("notify.sweep_batch", 100)
	v.SetDefault("notify.gc_schedule", "@daily")

	v.SetDefault("reset.code_ttl", "10m")
	v.SetDefault("reset.guard_ttl", "5m")

	v.SetDefault("brand.name", "ePetCare")
	v.SetDefault("brand.logo_url", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
