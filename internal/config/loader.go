package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

const (
	AppName                 = "budgetease"
	EnvPrefix               = "BUDGETEASE"
	DefaultConnectionString = "Data Source=budgetease.db"
	DefaultDatabaseFile     = "budgetease.db"
	DefaultBackupDirectory  = "DatabaseBackups"
	DefaultPrefix           = "budgetease_backup"
	DefaultExtension        = "db"
	DefaultRetentionDays    = 30
	DefaultIntervalHours    = 24
	DefaultBackupWarmup     = 30 * time.Second
	DefaultBackupTimeout    = 10 * time.Minute
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.connection_string", DefaultConnectionString)
	v.SetDefault("database.vault.address", "")
	v.SetDefault("database.vault.secret_path", "")
	v.SetDefault("database.vault.approle_name", "")
	v.SetDefault("database.vault.role_id", "")

	v.SetDefault("backup.directory", DefaultBackupDirectory)
	v.SetDefault("backup.prefix", DefaultPrefix)
	v.SetDefault("backup.extension", "")
	v.SetDefault("backup.retention_days", DefaultRetentionDays)
	v.SetDefault("backup.interval_hours", DefaultIntervalHours)
	v.SetDefault("backup.schedule", "")
	v.SetDefault("backup.warmup", DefaultBackupWarmup)
	v.SetDefault("backup.timeout", DefaultBackupTimeout)

	v.SetDefault("cleanup.interval_hours", DefaultIntervalHours)
	v.SetDefault("cleanup.schedule", "")
	v.SetDefault("cleanup.warmup", time.Duration(0))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", true)

	v.SetDefault("metrics.listen", "")
}

// Load reads the configuration from the given YAML file using Viper, applies
// BUDGETEASE_* environment overrides and validates the result. An empty path
// searches ./budgetease.yaml and then $XDG_CONFIG_HOME/budgetease/config.yaml;
// when neither exists only defaults and environment apply.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = discover()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Newf("%w: read config %s: %v", ErrLoadConfig, path, err)
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, errors.Newf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// discover returns the first existing default config file, or "".
func discover() string {
	local := AppName + ".yaml"
	if _, err := os.Stat(local); err == nil {
		return local
	}
	if p, err := xdg.SearchConfigFile(filepath.Join(AppName, "config.yaml")); err == nil {
		return p
	}
	return ""
}

// Validate checks the loaded configuration. Retention may be any integer:
// zero or negative values mean every existing snapshot is eligible.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Backup.Prefix) == "" {
		return errors.Newf("%w: backup.prefix is required", ErrValidateConfig)
	}
	if strings.ContainsAny(c.Backup.Prefix, `/\`) {
		return errors.Newf("%w: backup.prefix %q must not contain path separators", ErrValidateConfig, c.Backup.Prefix)
	}
	if err := validateSchedule("backup", c.Backup.Schedule, c.Backup.IntervalHours); err != nil {
		return err
	}
	if err := validateSchedule("cleanup", c.Cleanup.Schedule, c.Cleanup.IntervalHours); err != nil {
		return err
	}
	if c.Backup.Warmup < 0 || c.Cleanup.Warmup < 0 {
		return errors.Newf("%w: warmup must not be negative", ErrValidateConfig)
	}
	if c.Backup.Timeout < 0 {
		return errors.Newf("%w: backup.timeout must not be negative", ErrValidateConfig)
	}
	if c.Database.Vault.Enabled() && c.Database.Vault.Address == "" && os.Getenv("VAULT_ADDR") == "" {
		return errors.Newf("%w: database.vault.address (or VAULT_ADDR) is required with secret_path", ErrValidateConfig)
	}
	return nil
}

func validateSchedule(section, spec string, intervalHours int) error {
	if spec != "" {
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return errors.Newf("%w: %s.schedule %q: %v", ErrValidateConfig, section, spec, err)
		}
		if sched.Next(time.Now()).IsZero() {
			return errors.Newf("%w: %s.schedule %q never fires", ErrValidateConfig, section, spec)
		}
		return nil
	}
	if intervalHours <= 0 {
		return errors.Newf("%w: %s.interval_hours must be positive, got %d", ErrValidateConfig, section, intervalHours)
	}
	return nil
}

// ParseDataSource extracts the live data store path from a connection string
// of ';'-separated key=value pairs. The "Data Source" key is matched case
// insensitively. Relative paths are made absolute against the working
// directory; a missing token falls back to DefaultDatabaseFile.
func ParseDataSource(conn string) string {
	for _, part := range strings.Split(conn, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "Data Source") {
			continue
		}
		if p := strings.TrimSpace(value); p != "" {
			return absPath(p)
		}
	}
	return absPath(DefaultDatabaseFile)
}

func absPath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
