package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type WorkerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	MaxRunTime   time.Duration `mapstructure:"max_run_time"`
	Queue        string        `mapstructure:"queue"`
	Name         string        `mapstructure:"name"`
}

type Config struct {
	DatabaseURL   string        `mapstructure:"database_url"`
	ServerPort    string        `mapstructure:"server_port"`
	AppURL        string        `mapstructure:"app_url"`
	SessionSecret string        `mapstructure:"session_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	CORSOrigins   []string      `mapstructure:"cors_origins"`
	Worker        WorkerConfig  `mapstructure:"worker"`
	Email         EmailConfig   `mapstructure:"email"`
}

type EmailConfig struct {
	From     string `mapstructure:"from"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Load reads the configuration from config.yaml and STATUSIFY_* environment
// variables. It exits the process when the configuration is unusable.
func Load() *Config {
	// A missing .env file is normal outside of local development.
	_ = godotenv.Load()

	v := New()
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatalf("Error reading config file: %v", err)
		}
	}

	cfg, err := Decode(v)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// New returns a viper instance with defaults and environment bindings applied.
func New() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix("statusify")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database_url", "postgres://localhost:5432/statusify?sslmode=disable")
	v.SetDefault("server_port", "8080")
	v.SetDefault("app_url", "http://localhost:8080")
	v.SetDefault("session_secret", "")
	v.SetDefault("session_ttl", 14*24*time.Hour)
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.poll_interval", 5*time.Second)
	v.SetDefault("worker.max_attempts", 25)
	v.SetDefault("worker.max_run_time", 4*time.Hour)
	v.SetDefault("worker.queue", "")
	v.SetDefault("worker.name", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")

	return v
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	config.AppURL = strings.TrimRight(strings.TrimSpace(config.AppURL), "/")

	if config.SessionSecret == "" {
		return nil, errors.New("session_secret must be set")
	}
	if config.DatabaseURL == "" {
		return nil, errors.New("database_url must be set")
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 14 * 24 * time.Hour
	}
	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}
	if config.Worker.PollInterval <= 0 {
		config.Worker.PollInterval = 5 * time.Second
	}
	if config.Worker.MaxAttempts <= 0 {
		config.Worker.MaxAttempts = 25
	}

	return &config, nil
}
