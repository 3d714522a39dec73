// Package config manages dbsweep runtime configuration.
// Settings are read once at process start and are immutable afterward.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AuthModeSSO selects the SSO-profile credential strategy.
	AuthModeSSO = "sso"
	// AuthModeIAMRole selects the role-assumption credential strategy.
	AuthModeIAMRole = "iam_role"

	DefaultLogLevel = "info"
)

// Config holds every setting the collector consumes. The account and region
// lists define the sweep matrix; everything else tunes the session broker
// and the history store.
type Config struct {
	Accounts    []string `yaml:"accounts" json:"accounts"`
	Regions     []string `yaml:"regions" json:"regions"`
	Environment string   `yaml:"environment" json:"environment"`

	SSOProfilePrefix    string `yaml:"sso_profile_prefix" json:"sso_profile_prefix"`
	ValidationAccountID string `yaml:"validation_account_id" json:"validation_account_id"`
	RoleName            string `yaml:"role_name" json:"role_name"`
	DefaultRegion       string `yaml:"default_region" json:"default_region"`

	SessionTTLSeconds        int `yaml:"session_ttl_seconds" json:"session_ttl_seconds"`
	WorkerPoolSize           int `yaml:"worker_pool_size" json:"worker_pool_size"`
	ValidationTimeoutSeconds int `yaml:"validation_timeout_seconds" json:"validation_timeout_seconds"`

	LocalTimezone string `yaml:"local_timezone" json:"local_timezone"`
	HistoryDBPath string `yaml:"history_db_path" json:"history_db_path"`
	LogLevel      string `yaml:"log_level" json:"log_level"`
}

// Default returns sensible defaults. Accounts and regions have no default;
// a sweep with an empty matrix is a configuration error.
func Default() Config {
	return Config{
		Environment:              "production",
		SSOProfilePrefix:         "AdministratorAccess-",
		RoleName:                 "mgmt-db-monitoring-assumerole",
		DefaultRegion:            "ap-northeast-2",
		SessionTTLSeconds:        8 * 3600,
		WorkerPoolSize:           10,
		ValidationTimeoutSeconds: 30,
		LocalTimezone:            "Asia/Seoul",
		HistoryDBPath:            "dbsweep.db",
		LogLevel:                 DefaultLogLevel,
	}
}

// Load reads configuration from the given file path, falling back to a
// config.yml / config.yaml / config.json found in the working directory when
// path is empty. Environment variables override file values. A missing file
// is not an error; env-only configuration is supported.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				// YAML is a superset of JSON, but keep the explicit JSON
				// fallback for files the YAML parser rejects outright.
				if jsonErr := json.Unmarshal(data, &cfg); jsonErr != nil {
					return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
				}
			}
		case !os.IsNotExist(err):
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for _, name := range []string{"config.yml", "config.yaml", "config.json"} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// applyEnv overlays DBSWEEP_* environment variables. Account and region
// lists are JSON arrays, matching the deployment convention.
func (c *Config) applyEnv() error {
	if v := os.Getenv("DBSWEEP_ACCOUNTS"); v != "" {
		if err := json.Unmarshal([]byte(v), &c.Accounts); err != nil {
			return fmt.Errorf("DBSWEEP_ACCOUNTS is not a valid JSON array: %w", err)
		}
	}
	if v := os.Getenv("DBSWEEP_REGIONS"); v != "" {
		if err := json.Unmarshal([]byte(v), &c.Regions); err != nil {
			return fmt.Errorf("DBSWEEP_REGIONS is not a valid JSON array: %w", err)
		}
	}
	if v := os.Getenv("DBSWEEP_ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("DBSWEEP_VALIDATION_ACCOUNT_ID"); v != "" {
		c.ValidationAccountID = v
	}
	if v := os.Getenv("DBSWEEP_ROLE_NAME"); v != "" {
		c.RoleName = v
	}
	if v := os.Getenv("DBSWEEP_DEFAULT_REGION"); v != "" {
		c.DefaultRegion = v
	}
	if v := os.Getenv("DBSWEEP_HISTORY_DB"); v != "" {
		c.HistoryDBPath = v
	}
	if v := os.Getenv("DBSWEEP_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks for a usable sweep matrix and strategy settings.
// Any error here is fatal at startup; nothing is collected with a bad config.
func (c Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("no accounts configured; set accounts in the config file or DBSWEEP_ACCOUNTS")
	}
	if len(c.Regions) == 0 {
		return fmt.Errorf("no regions configured; set regions in the config file or DBSWEEP_REGIONS")
	}
	for _, a := range c.Accounts {
		if a == "" {
			return fmt.Errorf("account list contains an empty account id")
		}
	}
	for _, r := range c.Regions {
		if r == "" {
			return fmt.Errorf("region list contains an empty region")
		}
	}
	if c.DefaultRegion == "" {
		return fmt.Errorf("default_region must not be empty")
	}
	if c.SessionTTLSeconds <= 0 {
		return fmt.Errorf("session_ttl_seconds must be positive, got %d", c.SessionTTLSeconds)
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("worker_pool_size must be positive, got %d", c.WorkerPoolSize)
	}
	if c.ValidationTimeoutSeconds <= 0 {
		return fmt.Errorf("validation_timeout_seconds must be positive, got %d", c.ValidationTimeoutSeconds)
	}
	if c.AuthMode() == AuthModeIAMRole && c.RoleName == "" {
		return fmt.Errorf("role_name must be set for %s authentication", AuthModeIAMRole)
	}
	if _, err := time.LoadLocation(c.LocalTimezone); err != nil {
		return fmt.Errorf("invalid local_timezone %q: %w", c.LocalTimezone, err)
	}
	return nil
}

// AuthMode derives the credential strategy from the environment: development
// deployments authenticate through local SSO profiles, everything else
// assumes a per-account monitoring role.
func (c Config) AuthMode() string {
	if strings.EqualFold(c.Environment, "development") {
		return AuthModeSSO
	}
	return AuthModeIAMRole
}

// SessionTTL returns the session cache TTL as a duration.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

// ValidationTimeout bounds the STS identity check during session validation.
func (c Config) ValidationTimeout() time.Duration {
	return time.Duration(c.ValidationTimeoutSeconds) * time.Second
}

// Location resolves the operator-local timezone used for human-readable
// collection timestamps. Validate guarantees this cannot fail after startup.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.LocalTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
