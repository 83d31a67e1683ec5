package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jjckrbbt/phoenix/internal/logger"
)

// Config holds all application-wide configuration loaded from environment variables.
type Config struct {
	AppEnv    string
	SentryDSN string

	AppTitle     string
	MCPMountPath string
	Host         string
	Port         int
	LogLevel     string
	CORSOrigins  []string

	ELKBaseURL string
	ELKIndex   string
	ELKAPIKey  string

	EndpointsFile string
	RAGTimeout    time.Duration
	ToolTimeout   time.Duration
	ELKTimeout    time.Duration
	IndexCacheTTL time.Duration
}

// Addr is the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from environment variables or a .env file.
// It is the single source of truth for application configuration.
func LoadConfig() (*Config, error) {
	// In production these are set directly in the environment.
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:        getenv("APP_ENV", "development"),
		SentryDSN:     os.Getenv("SENTRY_DSN"),
		AppTitle:      getenv("PHOENIX_APP_TITLE", "Phoenix AI Services - RAG Framework"),
		MCPMountPath:  getenv("PHOENIX_MCP_MOUNT_PATH", "/mcp"),
		Host:          getenv("PHOENIX_HOST", "0.0.0.0"),
		LogLevel:      getenv("PHOENIX_LOG_LEVEL", "info"),
		ELKBaseURL:    os.Getenv("PHOENIX_ELK_BASE_URL"),
		ELKIndex:      os.Getenv("PHOENIX_ELK_INDEX"),
		ELKAPIKey:     os.Getenv("PHOENIX_ELK_API_KEY"),
		EndpointsFile: os.Getenv("PHOENIX_ENDPOINTS_FILE"),
	}

	port, err := strconv.Atoi(getenv("PHOENIX_PORT", "8003"))
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("FATAL: PHOENIX_PORT must be a port number between 1 and 65535, got '%s'", os.Getenv("PHOENIX_PORT"))
	}
	cfg.Port = port

	if !strings.HasPrefix(cfg.MCPMountPath, "/") {
		return nil, fmt.Errorf("FATAL: PHOENIX_MCP_MOUNT_PATH must start with '/', got '%s'", cfg.MCPMountPath)
	}
	cfg.MCPMountPath = strings.TrimRight(cfg.MCPMountPath, "/")
	if cfg.MCPMountPath == "" {
		return nil, fmt.Errorf("FATAL: PHOENIX_MCP_MOUNT_PATH must not be the root path")
	}

	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("FATAL: PHOENIX_LOG_LEVEL: %w", err)
	}

	durations := []struct {
		name string
		def  string
		dst  *time.Duration
	}{
		{"PHOENIX_RAG_TIMEOUT", "90s", &cfg.RAGTimeout},
		{"PHOENIX_TOOL_TIMEOUT", "5s", &cfg.ToolTimeout},
		{"PHOENIX_ELK_TIMEOUT", "30s", &cfg.ELKTimeout},
		{"PHOENIX_INDEX_CACHE_TTL", "5m", &cfg.IndexCacheTTL},
	}
	for _, d := range durations {
		raw := getenv(d.name, d.def)
		v, err := time.ParseDuration(raw)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("FATAL: %s must be a positive duration such as '%s', got '%s'", d.name, d.def, raw)
		}
		*d.dst = v
	}

	for _, origin := range strings.Split(getenv("PHOENIX_CORS_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
