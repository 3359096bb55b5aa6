// ABOUTME: Configuration loading and parsing for coven-relay
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete coven-relay configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Conversation ConversationConfig `yaml:"conversation"`
	Completion   CompletionConfig   `yaml:"completion"`
	Messaging    MessagingConfig    `yaml:"messaging"`
	Relay        RelayConfig        `yaml:"relay"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds the outcome-ledger database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ConversationConfig bounds per-user conversation state
type ConversationConfig struct {
	MaxTurns int           `yaml:"max_turns"`
	IdleTTL  time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	IdleTTLRaw string `yaml:"idle_ttl"`
}

// CompletionConfig holds the completion backend settings
type CompletionConfig struct {
	APIKey       string        `yaml:"api_key"`
	Model        string        `yaml:"model"`
	BaseURL      string        `yaml:"base_url"`
	SystemPrompt string        `yaml:"system_prompt"`
	MaxRetries   int           `yaml:"max_retries"`
	Timeout      time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// MessagingConfig holds the messaging provider settings
type MessagingConfig struct {
	AccountSID        string        `yaml:"account_sid"`
	AuthToken         string        `yaml:"auth_token"`
	From              string        `yaml:"from"`
	BaseURL           string        `yaml:"base_url"`
	MaxRetries        int           `yaml:"max_retries"`
	ValidateSignature bool          `yaml:"validate_signature"`
	Timeout           time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// RelayConfig holds orchestration tunables
type RelayConfig struct {
	QueueDepth    int           `yaml:"queue_depth"`
	BackoffBase   time.Duration `yaml:"-"`
	DedupeTTL     time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	BackoffBaseRaw   string `yaml:"retry_backoff_base"`
	DedupeTTLRaw     string `yaml:"dedupe_ttl"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in every tunable the file left unset
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Conversation.MaxTurns <= 0 {
		c.Conversation.MaxTurns = 20
	}
	if c.Conversation.IdleTTL <= 0 {
		c.Conversation.IdleTTL = 30 * time.Minute
	}
	if c.Completion.Timeout <= 0 {
		c.Completion.Timeout = 30 * time.Second
	}
	if c.Completion.MaxRetries <= 0 {
		c.Completion.MaxRetries = 3
	}
	if c.Messaging.Timeout <= 0 {
		c.Messaging.Timeout = 15 * time.Second
	}
	if c.Messaging.MaxRetries <= 0 {
		c.Messaging.MaxRetries = 3
	}
	if c.Relay.QueueDepth <= 0 {
		c.Relay.QueueDepth = 8
	}
	if c.Relay.BackoffBase <= 0 {
		c.Relay.BackoffBase = 500 * time.Millisecond
	}
	if c.Relay.DedupeTTL <= 0 {
		c.Relay.DedupeTTL = time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Completion.APIKey == "" {
		return fmt.Errorf("completion.api_key is required")
	}
	if c.Completion.Model == "" {
		return fmt.Errorf("completion.model is required")
	}
	if c.Messaging.AccountSID == "" {
		return fmt.Errorf("messaging.account_sid is required")
	}
	if c.Messaging.AuthToken == "" {
		return fmt.Errorf("messaging.auth_token is required")
	}
	if c.Messaging.From == "" {
		return fmt.Errorf("messaging.from is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Conversation.IdleTTLRaw, "conversation.idle_ttl", &cfg.Conversation.IdleTTL},
		{cfg.Completion.TimeoutRaw, "completion.timeout", &cfg.Completion.Timeout},
		{cfg.Messaging.TimeoutRaw, "messaging.timeout", &cfg.Messaging.Timeout},
		{cfg.Relay.BackoffBaseRaw, "relay.retry_backoff_base", &cfg.Relay.BackoffBase},
		{cfg.Relay.DedupeTTLRaw, "relay.dedupe_ttl", &cfg.Relay.DedupeTTL},
		{cfg.Relay.SweepIntervalRaw, "relay.sweep_interval", &cfg.Relay.SweepInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
