package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Env       string          `mapstructure:"env"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Events    EventsConfig    `mapstructure:"events"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port                 string   `mapstructure:"port"`
	ReadTimeout          int      `mapstructure:"read_timeout_seconds"`
	WriteTimeout         int      `mapstructure:"write_timeout_seconds"`
	IdleTimeout          int      `mapstructure:"idle_timeout_seconds"`
	CORSOrigins          []string `mapstructure:"cors_origins"`
	MaxBodyBytes         int64    `mapstructure:"max_body_bytes"`
	ExposeInternalErrors bool     `mapstructure:"expose_internal_errors"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            string `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time_seconds"`
}

// Token modes accepted in auth.token_mode.
const (
	TokenModeUsername = "username"
	TokenModeJWT      = "jwt"
)

type AuthConfig struct {
	BcryptCost      int    `mapstructure:"bcrypt_cost"`
	TokenMode       string `mapstructure:"token_mode"`
	JWTSecret       string `mapstructure:"jwt_secret"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
}

// Event drivers accepted in events.driver.
const (
	EventsDriverNone  = "none"
	EventsDriverNATS  = "nats"
	EventsDriverKafka = "kafka"
)

type EventsConfig struct {
	Driver string      `mapstructure:"driver"`
	NATS   NATSConfig  `mapstructure:"nats"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type TelemetryConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	OTLPEndpoint          string `mapstructure:"otlp_endpoint"`
	ExportIntervalSeconds int    `mapstructure:"export_interval_seconds"`
}

func Load() (*Config, error) {
	env := os.Getenv("ENV")
	if env == "" {
		env = "local"
	}

	v := viper.New()
	setDefaults(v, env)

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	v.SetConfigType("yaml")
	v.AddConfigPath("/configs") // Kubernetes mount
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("../../configs")

	// The config file is optional; ENV variables fill the gaps.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper, env string) {
	v.SetDefault("env", env)

	v.SetDefault("server.port", "5000")
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.idle_timeout_seconds", 60)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("server.expose_internal_errors", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "students")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime_seconds", 300)
	v.SetDefault("database.conn_max_idle_time_seconds", 60)

	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.token_mode", TokenModeUsername)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_minutes", 60)

	v.SetDefault("events.driver", EventsDriverNone)
	v.SetDefault("events.nats.url", "nats://localhost:4222")
	v.SetDefault("events.nats.subject", "students.events")
	v.SetDefault("events.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("events.kafka.topic", "students.events")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.export_interval_seconds", 10)
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Auth.TokenMode {
	case TokenModeUsername:
	case TokenModeJWT:
		if c.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is required when auth.token_mode is jwt")
		}
	default:
		return fmt.Errorf("unknown auth.token_mode %q", c.Auth.TokenMode)
	}

	switch c.Events.Driver {
	case EventsDriverNone, EventsDriverNATS, EventsDriverKafka:
	default:
		return fmt.Errorf("unknown events.driver %q", c.Events.Driver)
	}

	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	return nil
}
