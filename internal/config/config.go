// Package config loads the snowclient configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/gerhard-ee/snowclient/internal/credentials"
	"github.com/gerhard-ee/snowclient/internal/source"
	"github.com/gerhard-ee/snowclient/internal/state"
	"github.com/gerhard-ee/snowclient/pkg/notify"
	"github.com/gerhard-ee/snowclient/pkg/snowflake"
)

// ErrConfigValidation is returned when configuration validation fails
var ErrConfigValidation = errors.New("configuration validation failed")

// Defaults
const (
	DefaultLogLevel  = "info"
	DefaultStateType = "memory"
	DefaultLockTTL   = 10 * time.Minute
	DefaultMetricJob = "snowclient"
)

// Config represents the snowclient configuration
type Config struct {
	Snowflake SnowflakeConfig          `yaml:"snowflake"`
	Staging   StagingConfig            `yaml:"staging"`
	Load      LoadConfig               `yaml:"load"`
	Slack     SlackConfig              `yaml:"slack"`
	State     StateConfig              `yaml:"state"`
	Metrics   MetricsConfig            `yaml:"metrics"`
	Log       LogConfig                `yaml:"log"`
	Sources   map[string]source.Config `yaml:"sources"`
}

// SnowflakeConfig holds the warehouse connection settings. Exactly one of
// Password, PrivateKey and PrivateKeyPath must be set.
type SnowflakeConfig struct {
	Account              string        `yaml:"account"`
	Username             string        `yaml:"username"`
	Password             string        `yaml:"password"`
	PrivateKey           string        `yaml:"private_key"` // PEM, optionally base64 encoded
	PrivateKeyPath       string        `yaml:"private_key_path"`
	PrivateKeyPassphrase string        `yaml:"private_key_passphrase"`
	Warehouse            string        `yaml:"warehouse"`
	Role                 string        `yaml:"role"`
	Database             string        `yaml:"database"`
	Schema               string        `yaml:"schema"`
	LoginTimeout         time.Duration `yaml:"login_timeout"`
	QueryTimeout         time.Duration `yaml:"query_timeout"`
	Application          string        `yaml:"application"`
}

// StagingConfig is the scratch location used for schema validation
type StagingConfig struct {
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	KeepTable bool   `yaml:"keep_table"`
}

// LoadConfig controls bulk loads
type LoadConfig struct {
	ChunkSize        int  `yaml:"chunk_size"`
	QuoteIdentifiers bool `yaml:"quote_identifiers"`
}

// SlackConfig configures the Slack notifier
type SlackConfig struct {
	Enabled       bool   `yaml:"enabled"`
	WebhookURL    string `yaml:"webhook_url"`
	Channel       string `yaml:"channel"`
	Username      string `yaml:"username"`
	PostEphemeral bool   `yaml:"post_ephemeral"`
	QueueSize     int    `yaml:"queue_size"`
}

// StateConfig selects the journal and lock store
type StateConfig struct {
	Type       string        `yaml:"type"`
	Dir        string        `yaml:"dir"`
	Namespace  string        `yaml:"namespace"`
	Kubeconfig string        `yaml:"kubeconfig"`
	LockTTL    time.Duration `yaml:"lock_ttl"`
}

// MetricsConfig configures pushing metrics to a Prometheus Pushgateway
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level"`
}

// legacy `key: !ENV value` tags
var envTag = regexp.MustCompile(`!ENV\s+`)

// Load loads configuration from the specified file
func Load(path string) (*Config, error) {
	// Load .env files first
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("failed to load environment files: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses, expands and validates configuration data
func Parse(data []byte) (*Config, error) {
	data = envTag.ReplaceAll(data, nil)

	// Parse YAML with strict mode to detect unknown fields
	var config Config
	if err := yaml.UnmarshalWithOptions(data, &config, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	expandConfigEnvVars(&config)
	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Staging.Database == "" {
		config.Staging.Database = snowflake.DefaultStagingDatabase
	}
	if config.Staging.Schema == "" {
		config.Staging.Schema = snowflake.DefaultStagingSchema
	}
	if config.State.Type == "" {
		config.State.Type = DefaultStateType
	}
	if config.State.LockTTL == 0 {
		config.State.LockTTL = DefaultLockTTL
	}
	if config.Log.Level == "" {
		config.Log.Level = DefaultLogLevel
	}
	if config.Metrics.Job == "" {
		config.Metrics.Job = DefaultMetricJob
	}
}

// validateConfig validates the configuration for common errors and inconsistencies
func validateConfig(config *Config) error {
	sf := config.Snowflake
	if sf.Account == "" {
		return fmt.Errorf("%w: snowflake.account is required", ErrConfigValidation)
	}
	if sf.Username == "" {
		return fmt.Errorf("%w: snowflake.username is required", ErrConfigValidation)
	}

	creds := 0
	for _, v := range []string{sf.Password, sf.PrivateKey, sf.PrivateKeyPath} {
		if v != "" {
			creds++
		}
	}
	if creds != 1 {
		return fmt.Errorf("%w: exactly one of snowflake.password, snowflake.private_key and snowflake.private_key_path is required", ErrConfigValidation)
	}

	if sf.LoginTimeout < 0 || sf.QueryTimeout < 0 {
		return fmt.Errorf("%w: snowflake timeouts must be non-negative", ErrConfigValidation)
	}
	if config.Load.ChunkSize < 0 {
		return fmt.Errorf("%w: load.chunk_size must be non-negative, got %d", ErrConfigValidation, config.Load.ChunkSize)
	}

	if config.Slack.Enabled && config.Slack.WebhookURL == "" {
		return fmt.Errorf("%w: slack.webhook_url is required when slack is enabled", ErrConfigValidation)
	}

	validStates := map[string]bool{
		"memory":     true,
		"file":       true,
		"kubernetes": true,
	}
	if !validStates[config.State.Type] {
		return fmt.Errorf("%w: invalid state.type '%s': must be one of memory, file, kubernetes", ErrConfigValidation, config.State.Type)
	}
	if config.State.Type == "file" && config.State.Dir == "" {
		return fmt.Errorf("%w: state.dir is required for the file state type", ErrConfigValidation)
	}
	if config.State.LockTTL < 0 {
		return fmt.Errorf("%w: state.lock_ttl must be non-negative", ErrConfigValidation)
	}

	for name, src := range config.Sources {
		if !source.Known(src.Type) {
			return fmt.Errorf("%w: source '%s': unknown type '%s': must be one of %v", ErrConfigValidation, name, src.Type, source.Types())
		}
	}

	return nil
}

// Params returns the connection parameters, decoding the private key if one
// is configured
func (c *Config) Params() (snowflake.Params, error) {
	sf := c.Snowflake
	params := snowflake.Params{
		Account:      sf.Account,
		User:         sf.Username,
		Password:     sf.Password,
		Warehouse:    sf.Warehouse,
		Role:         sf.Role,
		Database:     sf.Database,
		Schema:       sf.Schema,
		LoginTimeout: sf.LoginTimeout,
		Application:  sf.Application,
	}

	pem := sf.PrivateKey
	if sf.PrivateKeyPath != "" {
		data, err := os.ReadFile(sf.PrivateKeyPath)
		if err != nil {
			return snowflake.Params{}, fmt.Errorf("failed to read private key: %w", err)
		}
		pem = string(data)
	}
	if pem != "" {
		key, err := credentials.ParsePrivateKey(pem, sf.PrivateKeyPassphrase)
		if err != nil {
			return snowflake.Params{}, fmt.Errorf("invalid snowflake private key: %w", err)
		}
		params.PrivateKey = key
	}

	return params, nil
}

// SlackNotifier returns the notifier configuration
func (c *Config) SlackNotifier() notify.SlackConfig {
	return notify.SlackConfig{
		WebhookURL:    c.Slack.WebhookURL,
		Channel:       c.Slack.Channel,
		Username:      c.Slack.Username,
		PostEphemeral: c.Slack.PostEphemeral,
		QueueSize:     c.Slack.QueueSize,
	}
}

// StateManager returns the journal and lock store configuration
func (c *Config) StateManager() state.Config {
	return state.Config{
		Type:       c.State.Type,
		Dir:        c.State.Dir,
		Namespace:  c.State.Namespace,
		Kubeconfig: c.State.Kubeconfig,
	}
}

// Source returns the named source configuration
func (c *Config) Source(name string) (source.Config, error) {
	src, ok := c.Sources[name]
	if !ok {
		return source.Config{}, fmt.Errorf("source '%s' is not configured", name)
	}
	return src, nil
}

func loadEnvFiles() error {
	// Try to load .env file from current directory
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}
	return nil
}

var (
	bracedEnvVar = regexp.MustCompile(`\$\{([^}]+)\}`)
	bareEnvVar   = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
func expandEnvVars(s string) string {
	s = bracedEnvVar.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
	return bareEnvVar.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[1:])
	})
}

func expandAll(fields ...*string) {
	for _, f := range fields {
		*f = expandEnvVars(*f)
	}
}

// expandConfigEnvVars expands environment variables in every string setting
func expandConfigEnvVars(config *Config) {
	sf := &config.Snowflake
	expandAll(&sf.Account, &sf.Username, &sf.Password, &sf.PrivateKey, &sf.PrivateKeyPath,
		&sf.PrivateKeyPassphrase, &sf.Warehouse, &sf.Role, &sf.Database, &sf.Schema, &sf.Application)
	expandAll(&config.Staging.Database, &config.Staging.Schema)
	expandAll(&config.Slack.WebhookURL, &config.Slack.Channel, &config.Slack.Username)
	expandAll(&config.State.Type, &config.State.Dir, &config.State.Namespace, &config.State.Kubeconfig)
	expandAll(&config.Metrics.PushgatewayURL, &config.Metrics.Job)
	expandAll(&config.Log.Level)

	for name, src := range config.Sources {
		expandAll(&src.Type, &src.Host, &src.User, &src.Password, &src.Database, &src.Schema, &src.SSLMode,
			&src.ProjectID, &src.Location, &src.CredentialsFile, &src.Token, &src.HTTPPath, &src.Catalog, &src.Path)
		config.Sources[name] = src
	}
}
