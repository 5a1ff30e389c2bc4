package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Config represents the top-level YAML configuration file. It is loaded once
// at startup and passed by value to every component.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Backup   BackupConfig   `mapstructure:"backup"   yaml:"backup"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"  yaml:"cleanup"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  yaml:"metrics"`
}

// DatabaseConfig locates the live data store.
type DatabaseConfig struct {
	ConnectionString string      `mapstructure:"connection_string" yaml:"connection_string"`
	Vault            VaultConfig `mapstructure:"vault"             yaml:"vault"`
}

// VaultConfig holds connection settings for HashiCorp Vault. When SecretPath
// is set the connection string is read from Vault instead of the file.
type VaultConfig struct {
	Address     string `mapstructure:"address"      yaml:"address,omitempty"`
	SecretPath  string `mapstructure:"secret_path"  yaml:"secret_path,omitempty"`
	ApproleName string `mapstructure:"approle_name" yaml:"approle_name,omitempty"`
	RoleID      string `mapstructure:"role_id"      yaml:"role_id,omitempty"`
}

// Enabled reports whether the connection string should come from Vault.
func (v VaultConfig) Enabled() bool { return v.SecretPath != "" }

// BackupConfig contains snapshot creation options.
type BackupConfig struct {
	Directory     string        `mapstructure:"directory"      yaml:"directory"`
	Prefix        string        `mapstructure:"prefix"         yaml:"prefix"`
	Extension     string        `mapstructure:"extension"      yaml:"extension,omitempty"`
	RetentionDays int           `mapstructure:"retention_days" yaml:"retention_days"`
	IntervalHours int           `mapstructure:"interval_hours" yaml:"interval_hours"`
	Schedule      string        `mapstructure:"schedule"       yaml:"schedule,omitempty"`
	Warmup        time.Duration `mapstructure:"warmup"         yaml:"warmup"`
	Timeout       time.Duration `mapstructure:"timeout"        yaml:"timeout"`
}

// CleanupConfig controls the periodic retention pass.
type CleanupConfig struct {
	IntervalHours int           `mapstructure:"interval_hours" yaml:"interval_hours"`
	Schedule      string        `mapstructure:"schedule"       yaml:"schedule,omitempty"`
	Warmup        time.Duration `mapstructure:"warmup"         yaml:"warmup"`
}

// LoggingConfig selects the zap logger flavour.
type LoggingConfig struct {
	Level       string `mapstructure:"level"       yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// MetricsConfig controls the prometheus endpoint served by `serve`.
type MetricsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen,omitempty"`
}

// Interval returns the fixed backup interval.
func (b BackupConfig) Interval() time.Duration {
	return time.Duration(b.IntervalHours) * time.Hour
}

// Interval returns the fixed cleanup interval.
func (c CleanupConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// ResolveDirectory returns the absolute backup directory for a live data store
// at dbPath. Relative directories are taken as siblings of the data store.
func (b BackupConfig) ResolveDirectory(dbPath string) string {
	dir := b.Directory
	if dir == "" {
		dir = DefaultBackupDirectory
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(filepath.Dir(dbPath), dir)
}

// ResolveExtension returns the snapshot extension without a leading dot.
// It defaults to the live data store's own extension.
func (b BackupConfig) ResolveExtension(dbPath string) string {
	ext := strings.TrimPrefix(b.Extension, ".")
	if ext != "" {
		return ext
	}
	if ext = strings.TrimPrefix(filepath.Ext(dbPath), "."); ext != "" {
		return ext
	}
	return DefaultExtension
}
