package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
)

// Config is the runtime configuration: an optional YAML file overridden by
// environment variables.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	Backend       string `yaml:"backend"`
	DataPath      string `yaml:"dataPath"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	KeyPrefix     string `yaml:"keyPrefix"`
	TableName     string `yaml:"tableName"`
	Region        string `yaml:"region"`

	AMQPURL   string `yaml:"amqpURL"`
	AMQPQueue string `yaml:"amqpQueue"`

	AuthMode           string        `yaml:"authMode"`
	JWTSecret          string        `yaml:"jwtSecret"`
	SessionTTL         time.Duration `yaml:"sessionTTL"`
	PollInterval       time.Duration `yaml:"pollInterval"`
	NotificationTTL    time.Duration `yaml:"notificationTTL"`
	MaxAttachmentBytes int64         `yaml:"maxAttachmentBytes"`
}

func defaults() Config {
	return Config{
		Port:               "8080",
		LogLevel:           "info",
		Backend:            BackendFile,
		DataPath:           "filetrack.json",
		KeyPrefix:          "filetrack",
		AMQPQueue:          "filetrack.audit",
		AuthMode:           "token",
		SessionTTL:         12 * time.Hour,
		PollInterval:       5 * time.Second,
		NotificationTTL:    5 * time.Second,
		MaxAttachmentBytes: 5 << 20,
	}
}

// Load reads path when it is non-empty, applies environment overrides and
// validates the result. A missing file is an error only when path was given.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	cfg.AuthMode = strings.ToLower(strings.TrimSpace(cfg.AuthMode))
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	str(&cfg.Port, "FILETRACK_PORT", "PORT")
	str(&cfg.LogLevel, "FILETRACK_LOG_LEVEL", "LOG_LEVEL")
	str(&cfg.Backend, "FILETRACK_BACKEND")
	str(&cfg.DataPath, "FILETRACK_DATA_PATH")
	str(&cfg.RedisAddr, "FILETRACK_REDIS_ADDR", "REDIS_ADDR")
	str(&cfg.RedisPassword, "FILETRACK_REDIS_PASSWORD", "REDIS_PASSWORD")
	str(&cfg.KeyPrefix, "FILETRACK_KEY_PREFIX")
	str(&cfg.TableName, "FILETRACK_TABLE_NAME", "TABLE_NAME")
	str(&cfg.Region, "FILETRACK_REGION", "AWS_REGION")
	str(&cfg.AMQPURL, "FILETRACK_AMQP_URL", "AMQP_URL")
	str(&cfg.AMQPQueue, "FILETRACK_AMQP_QUEUE")
	str(&cfg.AuthMode, "FILETRACK_AUTH_MODE")
	str(&cfg.JWTSecret, "FILETRACK_JWT_SECRET", "JWT_SECRET")

	if v := os.Getenv("FILETRACK_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: FILETRACK_REDIS_DB: %w", err)
		}
		cfg.RedisDB = n
	}
	if v := os.Getenv("FILETRACK_MAX_ATTACHMENT_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: FILETRACK_MAX_ATTACHMENT_BYTES: %w", err)
		}
		cfg.MaxAttachmentBytes = n
	}
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"FILETRACK_SESSION_TTL", &cfg.SessionTTL},
		{"FILETRACK_POLL_INTERVAL", &cfg.PollInterval},
		{"FILETRACK_NOTIFICATION_TTL", &cfg.NotificationTTL},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: port is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set in config file or JWT_SECRET)")
	}
	if cfg.AuthMode != "token" && cfg.AuthMode != "local" {
		return fmt.Errorf("config: unknown authMode %q", cfg.AuthMode)
	}
	switch cfg.Backend {
	case BackendMemory:
	case BackendFile:
		if cfg.DataPath == "" {
			return errors.New("config: dataPath is required for the file backend")
		}
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required for the redis backend")
		}
	case BackendDynamoDB:
		if cfg.TableName == "" || cfg.Region == "" {
			return errors.New("config: tableName and region are required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", cfg.Backend)
	}
	if cfg.PollInterval <= 0 || cfg.NotificationTTL <= 0 || cfg.SessionTTL <= 0 {
		return errors.New("config: durations must be positive")
	}
	if cfg.MaxAttachmentBytes <= 0 {
		return errors.New("config: maxAttachmentBytes must be positive")
	}
	return nil
}
