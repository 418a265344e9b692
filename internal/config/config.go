package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fenilsonani/repotidy/pkg/utils"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the per-project config file looked up in the project root
const ProjectConfigName = ".repotidy.yaml"

// Config represents the application configuration
type Config struct {
	ExcludeDirs           []string       `yaml:"exclude_dirs" mapstructure:"exclude_dirs"`
	LargeFileThreshold    string         `yaml:"large_file_threshold" mapstructure:"large_file_threshold"` // e.g., "1MB"
	MaxAnalyzeSize        string         `yaml:"max_analyze_size" mapstructure:"max_analyze_size"`
	ObsoleteAgeDays       int            `yaml:"obsolete_age_days" mapstructure:"obsolete_age_days"`
	Workers               int            `yaml:"workers" mapstructure:"workers"`
	ContentCacheEntries   int            `yaml:"content_cache_entries" mapstructure:"content_cache_entries"`
	StateDir              string         `yaml:"state_dir" mapstructure:"state_dir"`
	RollbackRetentionDays int            `yaml:"rollback_retention_days" mapstructure:"rollback_retention_days"`
	Manifest              string         `yaml:"manifest" mapstructure:"manifest"`
	CriticalFiles         []string       `yaml:"critical_files" mapstructure:"critical_files"`
	CriticalScriptNames   []string       `yaml:"critical_script_names" mapstructure:"critical_script_names"`
	CriticalPathTokens    []string       `yaml:"critical_path_tokens" mapstructure:"critical_path_tokens"`
	DryRun                bool           `yaml:"dry_run" mapstructure:"dry_run"`
	MinFileAge            int            `yaml:"min_file_age" mapstructure:"min_file_age"` // in hours
	Verbose               bool           `yaml:"verbose" mapstructure:"verbose"`
	LogLevel              string         `yaml:"log_level" mapstructure:"log_level"`
	LogFile               string         `yaml:"log_file" mapstructure:"log_file"`
	Schedule              ScheduleConfig `yaml:"schedule" mapstructure:"schedule"`
	Watch                 WatchConfig    `yaml:"watch" mapstructure:"watch"`
}

// ScheduleConfig holds cron expressions for the watch command
type ScheduleConfig struct {
	Purge string `yaml:"purge" mapstructure:"purge"` // Cron expression, empty disables
	Scan  string `yaml:"scan" mapstructure:"scan"`
}

// WatchConfig holds filesystem watch settings
type WatchConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Debounce string `yaml:"debounce" mapstructure:"debounce"` // Go duration, e.g. "2s"
}

// Load loads configuration from a file, layering it over the defaults.
// Environment variables prefixed with REPOTIDY_ override both.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	registerDefaults(v, GetDefault())

	v.SetEnvPrefix("REPOTIDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// registerDefaults seeds viper with every key of the default config so that
// partial files and env overrides keep the remaining defaults.
func registerDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("exclude_dirs", d.ExcludeDirs)
	v.SetDefault("large_file_threshold", d.LargeFileThreshold)
	v.SetDefault("max_analyze_size", d.MaxAnalyzeSize)
	v.SetDefault("obsolete_age_days", d.ObsoleteAgeDays)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("content_cache_entries", d.ContentCacheEntries)
	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("rollback_retention_days", d.RollbackRetentionDays)
	v.SetDefault("manifest", d.Manifest)
	v.SetDefault("critical_files", d.CriticalFiles)
	v.SetDefault("critical_script_names", d.CriticalScriptNames)
	v.SetDefault("critical_path_tokens", d.CriticalPathTokens)
	v.SetDefault("dry_run", d.DryRun)
	v.SetDefault("min_file_age", d.MinFileAge)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("schedule.purge", d.Schedule.Purge)
	v.SetDefault("schedule.scan", d.Schedule.Scan)
	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
}

// Save saves configuration to a file
func Save(config *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ObsoleteAgeDays < 0 {
		return fmt.Errorf("obsolete age must be >= 0")
	}
	if c.RollbackRetentionDays < 0 {
		return fmt.Errorf("rollback retention must be >= 0")
	}
	if c.MinFileAge < 0 {
		return fmt.Errorf("min file age must be >= 0")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if c.ContentCacheEntries < 0 {
		return fmt.Errorf("content cache entries must be >= 0")
	}

	if _, err := utils.ParseSize(c.LargeFileThreshold); err != nil {
		return fmt.Errorf("invalid large file threshold: %w", err)
	}
	if _, err := utils.ParseSize(c.MaxAnalyzeSize); err != nil {
		return fmt.Errorf("invalid max analyze size: %w", err)
	}

	// Exclude entries are directory names, never paths
	for _, name := range c.ExcludeDirs {
		if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
			return fmt.Errorf("invalid exclude dir '%s': must be a plain directory name", name)
		}
	}

	if c.StateDir == "" {
		return fmt.Errorf("state dir must not be empty")
	}
	if c.Manifest == "" {
		return fmt.Errorf("manifest must not be empty")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{"purge": c.Schedule.Purge, "scan": c.Schedule.Scan} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("invalid %s schedule '%s': %w", name, spec, err)
		}
	}

	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("invalid watch debounce: %w", err)
		}
	}

	return nil
}

// LargeFileThresholdBytes returns the parsed large file threshold
func (c *Config) LargeFileThresholdBytes() int64 {
	n, err := utils.ParseSize(c.LargeFileThreshold)
	if err != nil {
		return utils.MB
	}
	return n
}

// MaxAnalyzeBytes returns the parsed upper bound for files read during analysis
func (c *Config) MaxAnalyzeBytes() int64 {
	n, err := utils.ParseSize(c.MaxAnalyzeSize)
	if err != nil {
		return 2 * utils.MB
	}
	return n
}

// WorkerCount returns the configured worker count, or a CPU-derived default
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}

	workers := runtime.NumCPU()
	if workers < 4 {
		workers = 4 // Minimum 4 workers for I/O parallelism
	}
	if workers > 16 {
		workers = 16 // Cap at 16 to avoid excessive context switching
	}
	return workers
}

// ObsoleteAge returns the age after which age-gated patterns mark a file obsolete
func (c *Config) ObsoleteAge() time.Duration {
	return time.Duration(c.ObsoleteAgeDays) * 24 * time.Hour
}

// RollbackRetention returns the age after which rollback points may be purged
func (c *Config) RollbackRetention() time.Duration {
	return time.Duration(c.RollbackRetentionDays) * 24 * time.Hour
}

// WatchDebounce returns the parsed debounce interval for watch mode
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// StatePath resolves the state directory against the project root
func (c *Config) StatePath(root string) string {
	if filepath.IsAbs(c.StateDir) {
		return c.StateDir
	}
	return filepath.Join(root, c.StateDir)
}

// GetConfigPath returns the config path for a project: the project-local
// file when present, otherwise the per-user file.
func GetConfigPath(root string) (string, error) {
	if root != "" {
		local := filepath.Join(root, ProjectConfigName)
		if _, err := os.Stat(local); err == nil {
			return local, nil
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	configDir := filepath.Join(homeDir, ".config", "repotidy")
	return filepath.Join(configDir, "config.yaml"), nil
}

// EnsureConfigExists creates a default config file if it doesn't exist
func EnsureConfigExists(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return Save(GetDefault(), configPath)
	}
	return nil
}
