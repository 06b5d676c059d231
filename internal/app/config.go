package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the subwatch backend.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Push       PushConfig       `mapstructure:"push"`
	Delivery   DeliveryConfig   `mapstructure:"delivery"`
	Sweep      SweepConfig      `mapstructure:"sweep"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
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

// AuthConfig captures authentication settings for the API surface.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access token validation.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// PushConfig holds the process-wide Web Push (VAPID) settings. When the key
// pair is absent the push path is disabled and notifications stay
// record-only.
type PushConfig struct {
	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	Subscriber      string `mapstructure:"subscriber"`
	TTLSeconds      int    `mapstructure:"ttl_seconds"`
}

// Enabled reports whether a push transport can be constructed.
func (c PushConfig) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// DeliveryConfig bounds the batched delivery fan-out.
type DeliveryConfig struct {
	ChunkSize  int           `mapstructure:"chunk_size"`
	ChunkDelay time.Duration `mapstructure:"chunk_delay"`
}

// SweepConfig tunes the scheduled sweeps.
type SweepConfig struct {
	EventSchedule       string `mapstructure:"event_schedule"`
	RetentionSchedule   string `mapstructure:"retention_schedule"`
	RenewalReminderDays []int  `mapstructure:"renewal_reminder_days"`
	PaymentReminderDays []int  `mapstructure:"payment_reminder_days"`
	ReadRetentionDays   int    `mapstructure:"read_retention_days"`
	UnreadRetentionDays int    `mapstructure:"unread_retention_days"`
	IdleEndpointDays    int    `mapstructure:"idle_endpoint_days"`
	Optimize            bool   `mapstructure:"optimize"`
}

// MonitoringConfig enables metrics endpoints.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles the metrics endpoint.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with
// sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("SUBWATCH")
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
	v.SetDefault("database.path", "./data/subwatch.sqlite")

	v.SetDefault("auth.jwt.issuer", "subwatch")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")

	v.SetDefault("push.subscriber", "mailto:ops@subwatch.io")
	v.SetDefault("push.ttl_seconds", 86400)

	v.SetDefault("delivery.chunk_size", 10)
	v.SetDefault("delivery.chunk_delay", "500ms")

	v.SetDefault("sweep.event_schedule", "0 8 * * *")
	v.SetDefault("sweep.retention_schedule", "@daily")
	v.SetDefault("sweep.renewal_reminder_days", []int{7, 3, 1})
	v.SetDefault("sweep.payment_reminder_days", []int{3, 1})
	v.SetDefault("sweep.read_retention_days", 30)
	v.SetDefault("sweep.unread_retention_days", 90)
	v.SetDefault("sweep.idle_endpoint_days", 180)
	v.SetDefault("sweep.optimize", true)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
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
