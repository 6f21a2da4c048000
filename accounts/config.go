package accounts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/msimon/mcaccounts/namesync"
	"github.com/msimon/mcaccounts/natsconn"
	"github.com/msimon/mcaccounts/ops"
	"github.com/msimon/mcaccounts/resolver"
	"github.com/msimon/mcaccounts/store"
	"github.com/msimon/mcaccounts/whitelist"
)

// Config holds the complete configuration for the account binding service.
type Config struct {
	NATS      natsconn.Config `json:"nats" yaml:"nats"`
	Database  store.Config    `json:"database" yaml:"database"`
	Resolver  resolver.Config `json:"resolver" yaml:"resolver"`
	Whitelist WhitelistConfig `json:"whitelist" yaml:"whitelist"`
	Handlers  HandlersConfig  `json:"handlers" yaml:"handlers"`
	NameSync  namesync.Config `json:"nameSync" yaml:"nameSync"`
	Ops       ops.Config      `json:"ops" yaml:"ops"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// WhitelistConfig configures the whitelist service client.
type WhitelistConfig struct {
	// Timeout bounds each whitelist request as a duration string (e.g. "5s").
	// Empty waits as long as the request context allows.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	AddSubject    string `json:"addSubject,omitempty" yaml:"addSubject,omitempty"`
	RemoveSubject string `json:"removeSubject,omitempty" yaml:"removeSubject,omitempty"`
}

// GetTimeout returns the timeout, or zero when unset.
func (c *WhitelistConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// Options converts the section into whitelist client options.
func (c *WhitelistConfig) Options() []whitelist.Option {
	var opts []whitelist.Option
	if d := c.GetTimeout(); d > 0 {
		opts = append(opts, whitelist.WithTimeout(d))
	}
	if c.AddSubject != "" || c.RemoveSubject != "" {
		opts = append(opts, whitelist.WithSubjects(c.AddSubject, c.RemoveSubject))
	}
	return opts
}

// HandlersConfig tunes request handling.
type HandlersConfig struct {
	// QueueGroup shared by replicas. Default: "mcaccounts".
	QueueGroup string `json:"queueGroup,omitempty" yaml:"queueGroup,omitempty"`

	// RequireWhitelistSuccess aborts a mutation when the whitelist service replies with success=false.
	RequireWhitelistSuccess bool `json:"requireWhitelistSuccess,omitempty" yaml:"requireWhitelistSuccess,omitempty"`

	// SerializePerAccount serializes mutations per Minecraft UUID within this process.
	SerializePerAccount bool `json:"serializePerAccount,omitempty" yaml:"serializePerAccount,omitempty"`

	// BroadcastSubject overrides the change notification subject.
	BroadcastSubject string `json:"broadcastSubject,omitempty" yaml:"broadcastSubject,omitempty"`
}

// Options converts the section into handler options.
func (c *HandlersConfig) Options() []Option {
	return []Option{
		WithRequireWhitelistSuccess(c.RequireWhitelistSuccess),
		WithSerializePerAccount(c.SerializePerAccount),
		WithBroadcastSubject(c.BroadcastSubject),
	}
}

// LoggingConfig selects the log level and format.
type LoggingConfig struct {
	// Level is debug, info, warn or error. Default: info.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is "json" or "text". Default: json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the value of VAR, or an empty string when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// LoadConfig reads and parses a configuration file. Files ending in .yaml or
// .yml are parsed as YAML, anything else as JSON.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	expanded := []byte(expandEnvVars(string(data)))

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(expanded, &config)
	default:
		err = json.Unmarshal(expanded, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &config, nil
}

// Validate fills defaults, applies environment overrides and checks every section.
func (c *Config) Validate() error {
	if err := c.NATS.Validate(); err != nil {
		return err
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" && (c.Database.Driver == "" || c.Database.Driver == "postgres") {
		c.Database.DSN = dsn
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}

	if err := c.Resolver.Validate(); err != nil {
		return err
	}

	if c.Whitelist.Timeout != "" {
		if d, err := time.ParseDuration(c.Whitelist.Timeout); err != nil {
			return fmt.Errorf("whitelist.timeout: %w", err)
		} else if d < 0 {
			return fmt.Errorf("whitelist.timeout cannot be negative")
		}
	}

	if c.Handlers.QueueGroup == "" {
		c.Handlers.QueueGroup = DefaultQueueGroup
	}

	if c.NameSync.Enabled {
		if err := c.NameSync.Validate(); err != nil {
			return err
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "":
		c.Logging.Format = "json"
	case "json", "text":
	default:
		return fmt.Errorf("unsupported logging.format: %s", c.Logging.Format)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	return nil
}
