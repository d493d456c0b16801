// Package config provides configuration management for the repinning service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Indexer  IndexerConfig
	Engine   EngineConfig
	Gateway  GatewayConfig
	Logging  LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// IndexerConfig holds Algorand indexer client configuration
type IndexerConfig struct {
	BaseURL string
	Timeout time.Duration
}

// EngineConfig holds migration engine configuration
type EngineConfig struct {
	Workers         int
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	PerCallTimeout  time.Duration
	RequestsPerSec  float64
	Verify          bool
	OutcomeCacheTTL time.Duration
}

// GatewayConfig holds IPFS gateway configuration
type GatewayConfig struct {
	Gateways []string
	Timeout  time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "nft_repin"),
				User:           getEnv("POSTGRES_USER", "repin"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Indexer: IndexerConfig{
			BaseURL: getEnv("INDEXER_BASE_URL", "https://mainnet-idx.algonode.cloud"),
			Timeout: getEnvAsDuration("INDEXER_TIMEOUT", 30*time.Second),
		},
		Engine: EngineConfig{
			Workers:         getEnvAsInt("ENGINE_WORKERS", 4),
			MaxAttempts:     getEnvAsInt("ENGINE_MAX_ATTEMPTS", 3),
			InitialDelay:    getEnvAsDuration("ENGINE_INITIAL_DELAY", 1*time.Second),
			MaxDelay:        getEnvAsDuration("ENGINE_MAX_DELAY", 30*time.Second),
			PerCallTimeout:  getEnvAsDuration("ENGINE_PER_CALL_TIMEOUT", 60*time.Second),
			RequestsPerSec:  getEnvAsFloat("ENGINE_REQUESTS_PER_SEC", 0),
			Verify:          getEnvAsBool("ENGINE_VERIFY", true),
			OutcomeCacheTTL: getEnvAsDuration("ENGINE_OUTCOME_CACHE_TTL", 24*time.Hour),
		},
		Gateway: GatewayConfig{
			Gateways: []string{
				getEnv("IPFS_GATEWAY_PRIMARY", "https://ipfs.io/ipfs/"),
				getEnv("IPFS_GATEWAY_SECONDARY", "https://dweb.link/ipfs/"),
				getEnv("IPFS_GATEWAY_TERTIARY", "https://cloudflare-ipfs.com/ipfs/"),
			},
			Timeout: getEnvAsDuration("IPFS_GATEWAY_TIMEOUT", 20*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// DatabaseURL builds a Postgres connection URL for migrations
func (c *PostgresConfig) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
