package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Session storage backends.
const (
	SessionBackendFile   = "file"
	SessionBackendRedis  = "redis"
	SessionBackendMemory = "memory"
)

type Config struct {
	// Backend
	APIBaseURL  string        `yaml:"api_base_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// Session storage
	SessionBackend string `yaml:"session_backend"` // "file", "redis" or "memory"
	SessionFile    string `yaml:"session_file"`
	RedisURL       string `yaml:"redis_url"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`

	// Polling
	InvitePollInterval       time.Duration `yaml:"invite_poll_interval"`
	NotificationPollInterval time.Duration `yaml:"notification_poll_interval"`

	// Alerts
	AlertTTL time.Duration `yaml:"alert_ttl"`

	// Push feed (empty URL disables it)
	NatsURL           string `yaml:"nats_url"`
	NatsSubjectPrefix string `yaml:"nats_subject_prefix"`

	// Status server
	StatusAddr         string `yaml:"status_addr"`
	GinMode            string `yaml:"gin_mode"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Optional auto-login when no session is stored.
	LoginEmail    string `yaml:"login_email"`
	LoginPassword string `yaml:"-"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

var AppConfig *Config

// LoadConfig loads .env, the environment and an optional YAML overlay into AppConfig.
func LoadConfig() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := FromEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			log.Fatalf("Failed to open config file %s: %v", path, err)
		}
		defer f.Close()

		if err := LoadConfigFile(f, cfg); err != nil {
			log.Fatalf("Failed to parse config file %s: %v", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	AppConfig = cfg
}

// FromEnv builds a Config from environment variables and defaults.
func FromEnv() *Config {
	return &Config{
		APIBaseURL:  getEnvOrDefault("API_BASE_URL", "http://localhost:8686/api/v1"),
		HTTPTimeout: getEnvAsDuration("HTTP_TIMEOUT", 15*time.Second),

		SessionBackend: getEnvOrDefault("SESSION_BACKEND", SessionBackendFile),
		SessionFile:    getEnvOrDefault("SESSION_FILE", ".groupspend/session.json"),
		RedisURL:       getEnvOrDefault("REDIS_URL", ""),
		RedisKeyPrefix: getEnvOrDefault("REDIS_KEY_PREFIX", "groupspend:session:"),

		InvitePollInterval:       getEnvAsDuration("INVITE_POLL_INTERVAL", 30*time.Second),
		NotificationPollInterval: getEnvAsDuration("NOTIFICATION_POLL_INTERVAL", 30*time.Second),

		AlertTTL: getEnvAsDuration("ALERT_TTL", 5*time.Second),

		NatsURL:           getEnvOrDefault("NATS_URL", ""),
		NatsSubjectPrefix: getEnvOrDefault("NATS_SUBJECT_PREFIX", "groupspend.events"),

		StatusAddr:         getEnvOrDefault("STATUS_ADDR", "127.0.0.1:8787"),
		GinMode:            getEnvOrDefault("GIN_MODE", "release"),
		CORSAllowedOrigins: getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		LoginEmail:    getEnvOrDefault("LOGIN_EMAIL", ""),
		LoginPassword: getEnvOrDefault("LOGIN_PASSWORD", ""),

		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.InvitePollInterval <= 0 || c.NotificationPollInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.AlertTTL <= 0 {
		return fmt.Errorf("ALERT_TTL must be positive")
	}

	switch c.SessionBackend {
	case SessionBackendFile:
		if c.SessionFile == "" {
			return fmt.Errorf("SESSION_FILE is required for the file backend")
		}
	case SessionBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	case SessionBackendMemory:
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as time.Duration, using default %v: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

// LoadConfigFile overlays YAML values onto config. Keys absent from the file keep their current value.
func LoadConfigFile(reader io.Reader, config *Config) error {
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(config); err != nil {
		return err
	}

	return nil
}
