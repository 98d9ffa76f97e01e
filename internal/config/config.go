/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Redis cache configuration
	CacheEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnv("DAGR_ENV", "development"),
		HTTPBind:      getEnv("DAGR_HTTP_BIND", "0.0.0.0"),
		HTTPPort:      getEnvInt("DAGR_HTTP_PORT", 8080),
		DBBackend:     DatabaseBackend(getEnv("DAGR_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:         getEnv("DAGR_DB_DSN", ""),
		JWTSigningKey: getEnv("DAGR_JWT_SIGNING_KEY", ""),

		TracingEnabled:    getEnvBool("DAGR_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("DAGR_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("DAGR_TRACING_SAMPLE_RATE", 1.0),

		CacheEnabled:  getEnvBool("DAGR_CACHE_ENABLED", false),
		RedisAddr:     getEnv("DAGR_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("DAGR_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("DAGR_REDIS_DB", 0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DAGR_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("DAGR_JWT_SIGNING_KEY must be provided")
	}

	if strings.EqualFold(cfg.Environment, "production") && len(cfg.JWTSigningKey) < 32 {
		return nil, fmt.Errorf("DAGR_JWT_SIGNING_KEY must be at least 32 bytes in production")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}
