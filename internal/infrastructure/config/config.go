// Package config loads the service configuration: struct defaults, then an
// optional yaml file, then SSY_-prefixed environment variables, each layer
// overriding the previous.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/shiftsentry/attendance-backend/internal/infrastructure/baseline"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/broadcast"
	anomalysvc "github.com/shiftsentry/attendance-backend/internal/service/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/service/correlation"
	"github.com/shiftsentry/attendance-backend/internal/service/detection"
	"github.com/shiftsentry/attendance-backend/internal/service/validation"
)

const envPrefix = "SSY_"

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Telemetry TelemetryConfig `koanf:"telemetry"`

	Validation  validation.Config      `koanf:"validation"`
	Anomaly     anomalysvc.Config      `koanf:"anomaly"`
	Baseline    baseline.UpdaterConfig `koanf:"baseline"`
	Detection   detection.Config       `koanf:"detection"`
	Correlation correlation.Config     `koanf:"correlation"`
	Broadcast   BroadcastConfig        `koanf:"broadcast"`
	Predictor   PredictorConfig        `koanf:"predictor"`
	Audit       AuditConfig            `koanf:"audit"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	BurstSize         int     `koanf:"burst_size"`
}

type DatabaseConfig struct {
	// URL empty runs the service on in-memory stores.
	URL             string        `koanf:"url"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	QueryTimeout    time.Duration `koanf:"query_timeout"`
}

type RedisConfig struct {
	// Addr empty runs history and baselines in process.
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	PoolSize int    `koanf:"pool_size"`
}

type TelemetryConfig struct {
	Enabled       bool          `koanf:"enabled"`
	OTLPEndpoint  string        `koanf:"otlp_endpoint"`
	SamplingRate  float64       `koanf:"sampling_rate"`
	ExportTimeout time.Duration `koanf:"export_timeout"`
}

// BroadcastConfig selects the optional broker mirror behind the hub.
type BroadcastConfig struct {
	Hub broadcast.Config `koanf:"hub"`

	// Transport is "none", "nats" or "kafka".
	Transport string `koanf:"transport"`

	NATSURL      string   `koanf:"nats_url"`
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`
}

type PredictorConfig struct {
	// URL empty disables the external model.
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

type AuditConfig struct {
	// NATSURL, when set, routes audit records to NATS instead of the log sink.
	NATSURL string `koanf:"nats_url"`
}

func defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				BurstSize:         200,
			},
		},
		Database: DatabaseConfig{
			MaxConns:        25,
			MinConns:        2,
			ConnMaxLifetime: 5 * time.Minute,
			QueryTimeout:    250 * time.Millisecond,
		},
		Redis: RedisConfig{
			PoolSize: 16,
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			OTLPEndpoint:  "localhost:4317",
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
		},
		Broadcast: BroadcastConfig{
			Transport: "none",
		},
	}
}

// Load builds the configuration from defaults, the optional yaml file at
// path (or configs/config.yaml when path is empty), and the environment.
// A file named explicitly must exist; the default path may be absent.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	fileRequired := path != ""
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && fileRequired {
		return nil, fmt.Errorf("loading config file %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that would wire an unusable service.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Broadcast.Transport {
	case "", "none":
	case "nats":
		if c.Broadcast.NATSURL == "" {
			return fmt.Errorf("broadcast.nats_url required for the nats transport")
		}
	case "kafka":
		if len(c.Broadcast.KafkaBrokers) == 0 {
			return fmt.Errorf("broadcast.kafka_brokers required for the kafka transport")
		}
	default:
		return fmt.Errorf("unknown broadcast.transport %q", c.Broadcast.Transport)
	}
	return nil
}
