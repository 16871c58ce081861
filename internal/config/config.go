package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "dev-secret-change-me"

type Config struct {
	Port            string
	DatabaseDSN     string
	JWTSecret       string
	Env             string
	LogLevel        string
	TokenTTLHours   int
	StoreTimeout    time.Duration
	HistoryLimit    int
	ShutdownTimeout time.Duration
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// getenvInt 读取正整数环境变量，非法值回落到默认值。
func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, ""))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Load 读取环境变量（若存在 .env 则先加载）。
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Port:            getenv("APP_PORT", "4001"),
		DatabaseDSN:     getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=soinech_chat port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:       getenv("JWT_SECRET", defaultJWTSecret),
		Env:             getenv("APP_ENV", "dev"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		TokenTTLHours:   getenvInt("TOKEN_TTL_HOURS", 168),
		StoreTimeout:    time.Duration(getenvInt("STORE_TIMEOUT_MS", 5000)) * time.Millisecond,
		HistoryLimit:    getenvInt("HISTORY_LIMIT", 200),
		ShutdownTimeout: time.Duration(getenvInt("SHUTDOWN_TIMEOUT_SECONDS", 15)) * time.Second,
	}
}

func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("APP_PORT is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be set outside dev")
	}
	return nil
}
