// Package config loads the process-level configuration for the
// promptroute-gateway binary: server, engine runtime, and gateway security
// settings. It is distinct from internal/routeconfig, which validates the
// prompt-routing document the Engine executes.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete gateway process configuration (spec.md §6's
// GatewayConfig plus the Engine's runtime inputs).
type Config struct {
	Server     ServerConfig          `yaml:"server"`
	Engine     EngineConfig          `yaml:"engine"`
	Logging    LoggingConfig         `yaml:"logging"`
	Auth       AuthConfig            `yaml:"auth"`
	RateLimit  RateLimitConfig       `yaml:"rateLimit"`
	Validation ValidationConfig      `yaml:"validation"`
	Audit      AuditConfig           `yaml:"audit"`
	Security   RequestSecurityConfig `yaml:"security"`
}

// ServerConfig holds the HTTP listener's own settings.
type ServerConfig struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	MaxHeaderBytes int           `yaml:"maxHeaderBytes"`
}

// EngineConfig holds the Engine's construction inputs (engine.RuntimeConfig
// minus the logger and sink, which the binary wires separately).
type EngineConfig struct {
	ConfigPath      string `yaml:"configPath"`
	Environment     string `yaml:"environment"`
	SDKVersion      string `yaml:"sdkVersion"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GoogleAPIKey    string `yaml:"-"`
}

// LoggingConfig controls the logrus logger shared by the Engine and Gateway.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AuthConfig mirrors SPEC_FULL.md §6's `auth.apiKeys`/`auth.jwtSecret`.
type AuthConfig struct {
	APIKeys []string `yaml:"apiKeys"`
	// APIKeyPrompts scopes an API key to the prompt IDs it may invoke; a key
	// absent from this map defaults to unrestricted ("*") access.
	APIKeyPrompts map[string][]string `yaml:"apiKeyPrompts"`
	JWTSecret     string              `yaml:"jwtSecret"`
	JWTExpiry     time.Duration       `yaml:"jwtExpiry"`
}

// RateLimitConfig mirrors `rateLimit.requestsPerMinute`/`rateLimit.burstSize`.
type RateLimitConfig struct {
	Enabled           bool                        `yaml:"enabled"`
	RequestsPerMinute int                         `yaml:"requestsPerMinute"`
	BurstSize         int                         `yaml:"burstSize"`
	CleanupInterval   time.Duration               `yaml:"cleanupInterval"`
	PerRouteLimits    map[string]RouteLimitConfig `yaml:"perRouteLimits"`
}

// RouteLimitConfig overrides RateLimitConfig's requests-per-minute/burst for
// one gateway route (e.g. "chat" vs "templates" — chat completions reach a
// paid provider and warrant a tighter default than local template rendering).
type RouteLimitConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

// ValidationConfig mirrors `validation.openapiSpecPath`.
type ValidationConfig struct {
	Enabled        bool   `yaml:"enabled"`
	OpenAPISpecPath string `yaml:"openapiSpecPath"`
}

// AuditConfig mirrors `audit.bufferSize`.
type AuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BufferSize    int           `yaml:"bufferSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// RequestSecurityConfig mirrors the teacher's WAF-style request validator
// (size limits, allowed methods/content-types, blocked patterns) ahead of
// the OpenAPI-schema ValidationConfig above.
type RequestSecurityConfig struct {
	Enabled         bool     `yaml:"enabled"`
	MaxRequestSize  int64    `yaml:"maxRequestSize"`
	AllowedMethods  []string `yaml:"allowedMethods"`
	ContentTypes    []string `yaml:"allowedContentTypes"`
	BlockedPatterns []string `yaml:"blockedPatterns"`
	MaxJSONDepth    int      `yaml:"maxJSONDepth"`
	MaxFieldLength  int      `yaml:"maxFieldLength"`
}

// LoadConfig reads configPath (if non-empty), layers environment overrides
// on top, and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{}
	cfg.setDefaults()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) setDefaults() {
	c.Server = ServerConfig{
		Port:           "8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	c.Engine = EngineConfig{
		ConfigPath:  "routes.json",
		Environment: "development",
		SDKVersion:  "0.1.0",
	}
	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
	c.Auth = AuthConfig{
		APIKeys:   []string{},
		JWTExpiry: 24 * time.Hour,
	}
	c.RateLimit = RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 60,
		BurstSize:         10,
		CleanupInterval:   5 * time.Minute,
		PerRouteLimits: map[string]RouteLimitConfig{
			"chat": {RequestsPerMinute: 20, BurstSize: 5},
		},
	}
	c.Validation = ValidationConfig{
		Enabled:         true,
		OpenAPISpecPath: "internal/gateway/openapi.yaml",
	}
	c.Audit = AuditConfig{
		Enabled:       true,
		BufferSize:    1000,
		FlushInterval: 10 * time.Second,
	}
	c.Security = RequestSecurityConfig{
		Enabled:        true,
		MaxRequestSize: 1 << 20,
		AllowedMethods: []string{"GET", "POST"},
		ContentTypes:   []string{"application/json"},
		MaxJSONDepth:   10,
		MaxFieldLength: 10000,
	}
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

func (c *Config) loadFromEnv() {
	if port := os.Getenv("PROMPTROUTE_PORT"); port != "" {
		c.Server.Port = port
	}
	if path := os.Getenv("PROMPTROUTE_CONFIG"); path != "" {
		c.Engine.ConfigPath = path
	}
	if env := os.Getenv("PROMPTROUTE_ENVIRONMENT"); env != "" {
		c.Engine.Environment = env
	}

	c.Engine.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.Engine.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.Engine.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")

	if level := os.Getenv("PROMPTROUTE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("PROMPTROUTE_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
	if secret := os.Getenv("PROMPTROUTE_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Engine.ConfigPath == "" {
		return fmt.Errorf("engine configPath cannot be empty")
	}

	if len(c.Auth.APIKeys) == 0 && c.Auth.JWTSecret == "" {
		return fmt.Errorf("at least one API key or a JWT secret must be configured")
	}

	return nil
}

// SaveToFile saves the current configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
