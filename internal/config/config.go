package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Update failure policies
const (
	UpdatePolicyAbort    = "abort"
	UpdatePolicyContinue = "continue"
)

// Flag and environment keys shared by the CLI and LoadConfig
const (
	KeyInput         = "input"
	KeyConfig        = "config"
	KeyGitLabURL     = "gitlaburl"
	KeyProject       = "project"
	KeyToken         = "token"
	KeySudo          = "sudo"
	KeyFrom          = "from"
	KeyDryRun        = "dry-run"
	KeyOnUpdateError = "on-update-error"
	KeyPageSize      = "page-size"
	KeyRedisURL      = "redis-url"
	KeyLockTTL       = "lock-ttl"
	KeyNotifyURL     = "notify-url"
	KeyLogLevel      = "log-level"
	KeySkipTLS       = "skip-tls-verify"
	KeyHTTPTimeout   = "http-timeout"
	KeyStrictUsers   = "strict-users"

	// EnvPrefix is prepended to every key when read from the environment,
	// e.g. M2GL_TOKEN or M2GL_REDIS_URL.
	EnvPrefix = "M2GL"
)

// Config holds application configuration
type Config struct {
	// Logging configuration
	LogLevel string

	// Input files
	InputPath   string
	MappingPath string

	// GitLab configuration
	GitLabURL   string
	GitLabToken string
	Sudo        string
	ProjectPath string
	SkipTLS     bool
	HTTPTimeout time.Duration
	PageSize    int

	// Import behaviour
	FromID              int
	DryRun              bool
	UpdateFailurePolicy string
	StrictUsers         bool // no fallback user; every Mantis username must be mapped

	// Run lock (optional)
	RedisURL string
	LockTTL  time.Duration

	// Completion webhook (optional)
	NotifyURL string
}

// SetDefaults registers default values for the optional settings
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyPageSize, 100)
	v.SetDefault(KeyOnUpdateError, UpdatePolicyAbort)
	v.SetDefault(KeyLockTTL, 2*time.Hour)
	v.SetDefault(KeyHTTPTimeout, 30*time.Second)
}

// LoadConfig loads configuration from flags bound to v, the environment and
// an optional .env file in the working directory
func LoadConfig(v *viper.Viper) *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	return &Config{
		LogLevel: v.GetString(KeyLogLevel),

		InputPath:   v.GetString(KeyInput),
		MappingPath: v.GetString(KeyConfig),

		GitLabURL:   strings.TrimRight(v.GetString(KeyGitLabURL), "/"),
		GitLabToken: v.GetString(KeyToken),
		Sudo:        v.GetString(KeySudo),
		ProjectPath: strings.Trim(v.GetString(KeyProject), "/"),
		SkipTLS:     v.GetBool(KeySkipTLS),
		HTTPTimeout: v.GetDuration(KeyHTTPTimeout),
		PageSize:    v.GetInt(KeyPageSize),

		FromID:              v.GetInt(KeyFrom),
		DryRun:              v.GetBool(KeyDryRun),
		UpdateFailurePolicy: strings.ToLower(v.GetString(KeyOnUpdateError)),
		StrictUsers:         v.GetBool(KeyStrictUsers),

		RedisURL: v.GetString(KeyRedisURL),
		LockTTL:  v.GetDuration(KeyLockTTL),

		NotifyURL: v.GetString(KeyNotifyURL),
	}
}

// APIBaseURL returns the GitLab REST v4 endpoint for the configured host
func (c *Config) APIBaseURL() string {
	return c.GitLabURL + "/api/v4"
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	required := []struct {
		field string
		value string
		msg   string
	}{
		{KeyInput, c.InputPath, "CSV file exported from Mantis is required"},
		{KeyConfig, c.MappingPath, "configuration file is required"},
		{KeyGitLabURL, c.GitLabURL, "GitLab URL is required"},
		{KeyProject, c.ProjectPath, "GitLab project name including namespace is required"},
		{KeyToken, c.GitLabToken, "an admin user's private token is required"},
		{KeySudo, c.Sudo, "the username performing the import is required"},
	}
	for _, r := range required {
		if r.value == "" {
			return &ConfigError{Field: r.field, Message: r.msg}
		}
	}

	if !strings.HasPrefix(c.GitLabURL, "http://") && !strings.HasPrefix(c.GitLabURL, "https://") {
		return &ConfigError{Field: KeyGitLabURL, Message: "GitLab URL must start with http:// or https://"}
	}

	if c.FromID < 0 {
		return &ConfigError{Field: KeyFrom, Message: "first issue number must not be negative"}
	}

	if c.PageSize < 1 || c.PageSize > 100 {
		return &ConfigError{Field: KeyPageSize, Message: "page size must be between 1 and 100"}
	}

	switch c.UpdateFailurePolicy {
	case UpdatePolicyAbort, UpdatePolicyContinue:
	default:
		return &ConfigError{Field: KeyOnUpdateError, Message: "must be \"abort\" or \"continue\""}
	}

	if c.RedisURL != "" && c.LockTTL <= 0 {
		return &ConfigError{Field: KeyLockTTL, Message: "lock TTL must be positive when a Redis URL is set"}
	}

	return nil
}

// GetLogLevel returns the slog.Level for the configured log level
func (c *Config) GetLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "Configuration error for " + e.Field + ": " + e.Message
}
