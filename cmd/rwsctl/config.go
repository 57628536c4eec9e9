package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/andaru/rws/session"
	"github.com/joho/godotenv"
)

// Config holds the rwsctl settings
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	HTTPTimeout time.Duration
	LogLevel    string
	LogFile     string
}

// LoadConfig reads configuration from environment variables and an
// optional .env file
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		Host:        getEnvOrDefault("RWS_HOST", "192.168.125.1"),
		Port:        getEnvIntOrDefault("RWS_PORT", 80),
		Username:    getEnvOrDefault("RWS_USERNAME", session.DefaultUsername),
		Password:    getEnvOrDefault("RWS_PASSWORD", session.DefaultPassword),
		HTTPTimeout: getEnvDurationOrDefault("RWS_HTTP_TIMEOUT", 10*time.Second),
		LogLevel:    getEnvOrDefault("RWS_LOG_LEVEL", "info"),
		LogFile:     getEnvOrDefault("RWS_LOG_FILE", "logs/rwsctl.log"),
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("RWS_PORT out of range: %d", cfg.Port)
	}
	return cfg, nil
}

// BaseURL returns the controller base URL
func (c *Config) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// Session returns the session configuration for c
func (c *Config) Session(logger *slog.Logger) session.Config {
	return session.Config{
		Host:     c.BaseURL(),
		Username: c.Username,
		Password: c.Password,
		Timeout:  c.HTTPTimeout,
		Logger:   logger,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
