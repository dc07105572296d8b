// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
	DriverMongo    = "mongo"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Mongo    MongoConfig
	JWT      JWTConfig
	Workflow WorkflowConfig
	Webhook  WebhookConfig
	Log      LogConfig
}

type ServerConfig struct {
	GRPCPort         string
	HTTPPort         string
	Environment      string
	EnableReflection bool
	AutoMigrate      bool
}

type DatabaseConfig struct {
	Driver    string
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	SQLiteDSN string
}

type MongoConfig struct {
	URI      string
	Database string
}

type JWTConfig struct {
	AccessSecret        string
	AccessTokenDuration time.Duration
}

type WorkflowConfig struct {
	MaxCASRetries      int
	PermissionCacheTTL time.Duration
}

type WebhookConfig struct {
	Secret string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			GRPCPort:         getEnv("GRPC_PORT", "50051"),
			HTTPPort:         getEnv("HTTP_PORT", "8080"),
			Environment:      getEnv("ENVIRONMENT", "development"),
			EnableReflection: getEnvAsBool("ENABLE_REFLECTION", false),
			AutoMigrate:      getEnvAsBool("AUTO_MIGRATE", true),
		},
		Database: DatabaseConfig{
			Driver:    strings.ToLower(getEnv("STORAGE_DRIVER", DriverPostgres)),
			Host:      getEnv("DB_HOST", "localhost"),
			Port:      getEnvAsInt("DB_PORT", 5432),
			User:      getEnv("DB_USER", "postgres"),
			Password:  getEnv("DB_PASSWORD", "postgres"),
			DBName:    getEnv("DB_NAME", "taskflow"),
			SSLMode:   getEnv("DB_SSL_MODE", "disable"),
			SQLiteDSN: getEnv("SQLITE_DSN", "file:taskflow.db?_fk=1"),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DATABASE", "taskflow"),
		},
		JWT: JWTConfig{
			AccessSecret:        getEnv("JWT_ACCESS_SECRET", getEnv("JWT_SECRET", "dev-access-secret-change-in-production")),
			AccessTokenDuration: getEnvAsDuration("JWT_ACCESS_TOKEN_DURATION", 15*time.Minute),
		},
		Workflow: WorkflowConfig{
			MaxCASRetries:      getEnvAsInt("WORKFLOW_MAX_CAS_RETRIES", 3),
			PermissionCacheTTL: getEnvAsDuration("PERMISSION_CACHE_TTL", 30*time.Second),
		},
		Webhook: WebhookConfig{
			Secret: getEnv("WEBHOOK_SECRET", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "INFO"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
	return cfg, nil
}

// ValidateConfig rejects settings the server cannot start with.
func (c *Config) ValidateConfig() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverMongo:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Database.Driver)
	}

	if c.Workflow.MaxCASRetries < 0 {
		return fmt.Errorf("WORKFLOW_MAX_CAS_RETRIES must not be negative")
	}
	if c.Workflow.PermissionCacheTTL < 0 {
		return fmt.Errorf("PERMISSION_CACHE_TTL must not be negative")
	}
	if c.JWT.AccessTokenDuration <= 0 {
		return fmt.Errorf("JWT_ACCESS_TOKEN_DURATION must be positive")
	}

	if !c.IsDevelopment() {
		if strings.HasPrefix(c.JWT.AccessSecret, "dev-") {
			return fmt.Errorf("JWT_ACCESS_SECRET must be set outside development")
		}
		if c.Webhook.Secret == "" {
			return fmt.Errorf("WEBHOOK_SECRET must be set outside development")
		}
		if c.Server.EnableReflection {
			return fmt.Errorf("gRPC reflection must be disabled outside development")
		}
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	// Try parsing as duration string (e.g., "15m", "24h")
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}

	// Fall back to whole seconds
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
