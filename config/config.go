// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Host           string
	Port           string
	DataDir        string
	StoreBackend   string
	RedisURL       string
	AllowedOrigins []string
	LogLevel       slog.Level
	LogFormat      string
	MaxBodyBytes   int64

	// Recipe behaviour switches. The zero values keep the historical API.
	IDStrategy     string
	StrictUpdate   bool
	TouchOnUpdate  bool
	SerializeIndex bool
}

func Load() (Config, error) {
	config := Config{
		Host:           envOrDefault("HOST", "0.0.0.0"),
		Port:           envOrDefault("PORT", "8080"),
		DataDir:        envOrDefault("DATA_DIR", "./data"),
		StoreBackend:   envOrDefault("STORE_BACKEND", "json"),
		RedisURL:       os.Getenv("REDIS_URL"),
		AllowedOrigins: strings.Split(envOrDefault("ALLOWED_ORIGINS", "*"), ","),
		LogFormat:      envOrDefault("LOG_FORMAT", "text"),
		IDStrategy:     envOrDefault("ID_STRATEGY", "timestamp"),
	}

	if err := config.LogLevel.UnmarshalText([]byte(envOrDefault("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if config.LogFormat != "text" && config.LogFormat != "json" {
		return Config{}, fmt.Errorf("LOG_FORMAT must be text or json, got %q", config.LogFormat)
	}
	if config.IDStrategy != "timestamp" && config.IDStrategy != "uuid" {
		return Config{}, fmt.Errorf("ID_STRATEGY must be timestamp or uuid, got %q", config.IDStrategy)
	}
	if config.StoreBackend == "redis" && config.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL is required when STORE_BACKEND=redis")
	}

	maxBody, err := strconv.ParseInt(envOrDefault("MAX_BODY_BYTES", "1048576"), 10, 64)
	if err != nil || maxBody <= 0 {
		return Config{}, fmt.Errorf("MAX_BODY_BYTES must be a positive integer")
	}
	config.MaxBodyBytes = maxBody

	for name, dst := range map[string]*bool{
		"STRICT_UPDATE":   &config.StrictUpdate,
		"TOUCH_ON_UPDATE": &config.TouchOnUpdate,
		"SERIALIZE_INDEX": &config.SerializeIndex,
	} {
		if *dst, err = envBool(name); err != nil {
			return Config{}, err
		}
	}

	return config, nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, value)
	}
	return b, nil
}
