package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Load fills it from defaults, then an
// optional YAML file, then the environment.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	Session struct {
		RoundDurationSec int           `yaml:"round_duration_sec"`
		TickInterval     time.Duration `yaml:"tick_interval"`
	} `yaml:"session"`

	WebSocket struct {
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		MaxMessageSize  int64         `yaml:"max_message_size"`
		SendBufferSize  int           `yaml:"send_buffer_size"`
		BroadcastBuffer int           `yaml:"broadcast_buffer"`
	} `yaml:"websocket"`

	Reconnect struct {
		Interval    time.Duration `yaml:"interval"`
		MaxAttempts int           `yaml:"max_attempts"`
	} `yaml:"reconnect"`

	Store struct {
		Driver   string `yaml:"driver"` // memory or postgres
		SeedFile string `yaml:"seed_file"`
	} `yaml:"store"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	Outbox struct {
		Enabled       bool          `yaml:"enabled"`
		NATSURL       string        `yaml:"nats_url"`
		Stream        string        `yaml:"stream"`
		SubjectPrefix string        `yaml:"subject_prefix"`
		BatchSize     int           `yaml:"batch_size"`
		PollInterval  time.Duration `yaml:"poll_interval"`
	} `yaml:"outbox"`
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

func Default() *Config {
	c := &Config{LogLevel: "info"}
	c.Server.Port = "8080"
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Server.AllowedOrigins = []string{"*"}
	c.Session.RoundDurationSec = 300
	c.Session.TickInterval = time.Second
	c.WebSocket.WriteTimeout = 10 * time.Second
	c.WebSocket.ReadTimeout = 60 * time.Second
	c.WebSocket.PingInterval = 30 * time.Second
	c.WebSocket.MaxMessageSize = 32 * 1024
	c.WebSocket.SendBufferSize = 256
	c.WebSocket.BroadcastBuffer = 1000
	c.Reconnect.Interval = 3 * time.Second
	c.Reconnect.MaxAttempts = 5
	c.Store.Driver = StoreMemory
	c.Auth.TokenTTL = 12 * time.Hour
	c.Outbox.NATSURL = "nats://localhost:4222"
	c.Outbox.Stream = "BRAINSTORM_EVENTS"
	c.Outbox.SubjectPrefix = "brainstorm.sessions"
	c.Outbox.BatchSize = 100
	c.Outbox.PollInterval = 5 * time.Second
	return c
}

// Load reads the configuration. path may be empty.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Session.RoundDurationSec = getEnvAsInt("ROUND_DURATION_SEC", c.Session.RoundDurationSec)
	c.Session.TickInterval = getEnvAsDuration("TICK_INTERVAL", c.Session.TickInterval)
	c.Reconnect.Interval = getEnvAsDuration("RECONNECT_INTERVAL", c.Reconnect.Interval)
	c.Reconnect.MaxAttempts = getEnvAsInt("RECONNECT_MAX_ATTEMPTS", c.Reconnect.MaxAttempts)
	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.SeedFile = getEnv("SEED_FILE", c.Store.SeedFile)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Outbox.Enabled = getEnvAsBool("OUTBOX_ENABLED", c.Outbox.Enabled)
	c.Outbox.NATSURL = getEnv("NATS_URL", c.Outbox.NATSURL)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Session.RoundDurationSec <= 0 {
		errs = append(errs, errors.New("session.round_duration_sec must be positive"))
	}
	if c.Session.TickInterval <= 0 {
		errs = append(errs, errors.New("session.tick_interval must be positive"))
	}
	if c.Reconnect.MaxAttempts <= 0 {
		errs = append(errs, errors.New("reconnect.max_attempts must be positive"))
	}
	switch c.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of memory, postgres", c.Store.Driver))
	}
	if c.Outbox.Enabled && c.Store.Driver != StorePostgres {
		errs = append(errs, errors.New("outbox requires the postgres store"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
