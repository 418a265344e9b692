package config

// GetDefault returns the default configuration
func GetDefault() *Config {
	return &Config{
		ExcludeDirs: []string{
			"node_modules",
			".git",
			"dist",
			"build",
			"coverage",
			".next",
			".cache",
			".repotidy", // Our own state: archives, rollback ledger, reports
		},
		LargeFileThreshold:    "1MB",
		MaxAnalyzeSize:        "2MB",
		ObsoleteAgeDays:       30,
		Workers:               0, // 0 = derive from CPU count
		ContentCacheEntries:   512,
		StateDir:              ".repotidy",
		RollbackRetentionDays: 7,
		Manifest:              "package.json",
		CriticalFiles: []string{
			"package.json",
			"README.md",
			".gitignore",
			"tsconfig.json",
		},
		CriticalScriptNames: []string{"build", "test", "deploy", "start", "dev"},
		CriticalPathTokens:  []string{"deploy", "build", "release", "production", "migrate", "backup"},
		DryRun:              false,
		MinFileAge:          0, // Hours; 0 disables the recency guard
		Verbose:             false,
		LogLevel:            "info",
		LogFile:             "",
		Schedule: ScheduleConfig{
			Purge: "@daily",
			Scan:  "",
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: "2s",
		},
	}
}

// GetExampleConfig returns an example configuration with comments
func GetExampleConfig() string {
	return `# repotidy configuration
# Location: <project>/.repotidy.yaml or ~/.config/repotidy/config.yaml
# Every key can be overridden with REPOTIDY_<KEY> (dots become underscores).

# Directory names never descended into while scanning
exclude_dirs:
  - node_modules
  - .git
  - dist
  - build
  - coverage
  - .next
  - .cache
  - .repotidy

# Files above this size are reported as large files
large_file_threshold: "1MB"

# Files above this size are not read for reference extraction
max_analyze_size: "2MB"

# Age-gated obsolete patterns (*.orig, *.swp, ...) only apply past this age
obsolete_age_days: 30

# Worker pool size (0 = derive from CPU count)
workers: 0

# Number of file contents kept in memory between analysis and validation
content_cache_entries: 512

# Archives, rollback ledger and reports live here (relative to the project)
state_dir: ".repotidy"

# Rollback points older than this may be purged
rollback_retention_days: 7

# Package manifest consulted for build/test/deploy scripts
manifest: "package.json"

# Integrity checks warn when any of these is missing
critical_files:
  - package.json
  - README.md
  - .gitignore
  - tsconfig.json

critical_script_names: [build, test, deploy, start, dev]
critical_path_tokens: [deploy, build, release, production, migrate, backup]

# Simulate execution without touching the tree
dry_run: false

# Never delete files modified within this many hours (0 disables)
min_file_age: 0

verbose: false
log_level: info
log_file: ""

# Cron expressions used by 'repotidy watch' (empty disables a job)
schedule:
  purge: "@daily"
  scan: ""

watch:
  enabled: false
  debounce: "2s"
`
}
