// Package config holds the coordinator's project configuration as a global
// singleton. The config file lives at <projectDir>/.coordinator/config.json;
// LoadConfig reads it once at startup, GetConfig hands out copies, and the
// Update* functions are the only way to mutate and persist it.
//
// Secrets never live in the file. Installation credentials are referenced by
// environment variable name and read at call time.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"coordinator/pkg/approval"
	"coordinator/pkg/logx"
	"coordinator/pkg/proto"
	syncmachine "coordinator/pkg/sync"
)

// SchemaVersion is stamped into every config file this build writes.
const SchemaVersion = 1

// ProjectConfigDir is the dot-directory holding all coordinator files.
const ProjectConfigDir = ".coordinator"

// Global config instance with mutex protection. projectDir is set once
// during LoadConfig and never changes.
//
//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config     *Config
	projectDir string
	logger     *logx.Logger
	mu         sync.RWMutex
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// ServerConfig holds the HTTP listener addresses.
type ServerConfig struct {
	// ListenAddr serves webhook ingress and session websockets.
	ListenAddr string `json:"listen_addr"`
	// MetricsAddr serves the Prometheus endpoint. Empty disables it.
	MetricsAddr string `json:"metrics_addr,omitempty"`
	// PrometheusURL points the stats endpoint at a Prometheus server
	// scraping MetricsAddr. Empty disables the stats endpoint.
	PrometheusURL string `json:"prometheus_url,omitempty"`
}

// DatabaseConfig locates the snapshot database.
type DatabaseConfig struct {
	// Path is relative to the project dir unless absolute.
	Path string `json:"path"`
}

// GatewayConfig tunes the per-installation hosting API gateways.
type GatewayConfig struct {
	// RequestsPerSecond is the rate limit each gateway enforces.
	RequestsPerSecond float64 `json:"requests_per_second"`
}

// SyncConfig holds the repo sync policy.
type SyncConfig struct {
	ConflictPolicy proto.ConflictPolicy `json:"conflict_policy"`
	MaxAttempts    int                  `json:"max_attempts"`
	RetryBase      time.Duration        `json:"retry_base"`
	RetryCap       time.Duration        `json:"retry_cap"`
	// ItemsDir is the root the local work-item files live under.
	ItemsDir string `json:"items_dir"`
}

// RetryPolicy converts the sync section into the machine's retry schedule.
func (s SyncConfig) RetryPolicy() syncmachine.RetryPolicy {
	return syncmachine.RetryPolicy{
		MaxAttempts: s.MaxAttempts,
		Base:        s.RetryBase,
		Cap:         s.RetryCap,
	}
}

// ReviewConfig holds the PR review policy.
type ReviewConfig struct {
	// RestartOnFix restarts the reviewer sequence from the top after a fix
	// instead of resuming at the reviewer who requested changes.
	RestartOnFix bool `json:"restart_on_fix"`
	// MergeMethod is the hosting API merge method (merge, squash, rebase).
	MergeMethod string `json:"merge_method"`
	// ReviewersFile is the YAML reviewer roster, relative to the project
	// dir unless absolute.
	ReviewersFile string `json:"reviewers_file"`
}

// ApprovalConfig holds the partial approval policies per scope. Resolution
// walks issue then repo then org; fields a scope leaves nil inherit from the
// next scope out.
type ApprovalConfig struct {
	Org   *approval.ScopeConfig            `json:"org,omitempty"`
	Repos map[string]*approval.ScopeConfig `json:"repos,omitempty"`
	// Issues keys issue- or PR-level overrides as "owner/repo#number".
	Issues map[string]*approval.ScopeConfig `json:"issues,omitempty"`
}

// InstallationConfig binds one installation to its credential source.
type InstallationConfig struct {
	// TokenEnv names the environment variable holding the installation
	// token. The token itself never appears in the config file.
	TokenEnv string `json:"token_env"`
	// Repos are the repository paths (owner/repo) this installation
	// covers.
	Repos []string `json:"repos"`
}

// SandboxConfig describes how review and fix sessions run.
type SandboxConfig struct {
	// Executor selects "local" or "docker".
	Executor string `json:"executor"`
	// Image is the container image for the docker executor.
	Image string `json:"image,omitempty"`
	// Command is the session agent command line.
	Command []string `json:"command"`
	// WorkRoot is the host directory sessions run under, relative to the
	// project dir unless absolute.
	WorkRoot string `json:"work_root"`
	// Timeout bounds a single session.
	Timeout time.Duration `json:"timeout"`
	// CPUs, Memory and PIDs cap docker sessions.
	CPUs   string `json:"cpus,omitempty"`
	Memory string `json:"memory,omitempty"`
	PIDs   int    `json:"pids,omitempty"`
}

// EventLogConfig controls the durable event audit log.
type EventLogConfig struct {
	// Dir holds the daily log files, relative to the project dir unless
	// absolute. Empty disables the log.
	Dir string `json:"dir,omitempty"`
}

// Config is the complete project configuration.
type Config struct {
	SchemaVersion int `json:"schema_version"`

	Server        ServerConfig                  `json:"server"`
	Database      DatabaseConfig                `json:"database"`
	Gateway       GatewayConfig                 `json:"gateway"`
	Sync          SyncConfig                    `json:"sync"`
	Review        ReviewConfig                  `json:"review"`
	Approval      ApprovalConfig                `json:"approval"`
	Sandbox       SandboxConfig                 `json:"sandbox"`
	EventLog      EventLogConfig                `json:"event_log"`
	Installations map[string]InstallationConfig `json:"installations"`
}

// GetProjectCoordinatorDir returns the .coordinator directory path.
// Must call LoadConfig first.
func GetProjectCoordinatorDir() (string, error) {
	mu.RLock()
	defer mu.RUnlock()
	if projectDir == "" {
		return "", fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return filepath.Join(projectDir, ProjectConfigDir), nil
}

// GetProjectDir returns the current project directory.
// Must call LoadConfig first.
func GetProjectDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return projectDir
}

// GetConfig returns the current global config BY VALUE (copy, not
// reference). All updates must go through the Update* functions.
// Must call LoadConfig first.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTesting sets the global config for testing purposes. Pass nil
// to reset. This bypasses normal initialization.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
	if cfg == nil {
		projectDir = ""
	}
}

// LoadConfig loads <projectDir>/.coordinator/config.json into the global
// singleton.
//
// Behavior:
// - Missing file: creates a new config with defaults and saves it
// - Existing file: loads and validates, applying defaults for missing fields
// - Unparseable file: returns an error to avoid overwriting user changes
func LoadConfig(inputProjectDir string) error {
	mu.Lock()
	defer mu.Unlock()

	projectDir = inputProjectDir
	configPath := filepath.Join(projectDir, ProjectConfigDir, "config.json")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		getLogger().Info("config file not found, creating new config at %s", configPath)
		config = createDefaultConfig()
		if err := validateConfig(config); err != nil {
			return fmt.Errorf("default config validation failed: %w", err)
		}
		if err := saveConfigLocked(); err != nil {
			return fmt.Errorf("failed to save initial config: %w", err)
		}
		return nil
	}

	getLogger().Info("loading config from %s", configPath)
	loaded, err := loadConfigFromFile(configPath)
	if err != nil {
		return fmt.Errorf("config file exists but cannot be parsed (to avoid overwriting your changes): %w", err)
	}

	applyDefaults(loaded)
	if err := validateConfig(loaded); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	config = loaded

	// Write back so old files pick up newly defaulted fields.
	if err := saveConfigLocked(); err != nil {
		return fmt.Errorf("failed to save config with applied defaults: %w", err)
	}
	return nil
}

// UpdateSync replaces the sync section and persists to disk.
func UpdateSync(sc *SyncConfig) error {
	mu.Lock()
	defer mu.Unlock()
	if config == nil {
		return fmt.Errorf("config not initialized - call LoadConfig first")
	}

	candidate := *config
	candidate.Sync = *sc
	applyDefaults(&candidate)
	if err := validateConfig(&candidate); err != nil {
		return fmt.Errorf("sync config rejected: %w", err)
	}

	config.Sync = candidate.Sync
	return saveConfigLocked()
}

// UpdateApproval replaces the approval section and persists to disk.
func UpdateApproval(ac *ApprovalConfig) error {
	mu.Lock()
	defer mu.Unlock()
	if config == nil {
		return fmt.Errorf("config not initialized - call LoadConfig first")
	}

	config.Approval = *ac
	return saveConfigLocked()
}

// UpdateSandbox replaces the sandbox section and persists to disk.
func UpdateSandbox(sc *SandboxConfig) error {
	mu.Lock()
	defer mu.Unlock()
	if config == nil {
		return fmt.Errorf("config not initialized - call LoadConfig first")
	}

	candidate := *config
	candidate.Sandbox = *sc
	applyDefaults(&candidate)
	if err := validateConfig(&candidate); err != nil {
		return fmt.Errorf("sandbox config rejected: %w", err)
	}

	config.Sandbox = candidate.Sandbox
	return saveConfigLocked()
}

// UpdateInstallations replaces the installation map and persists to disk.
func UpdateInstallations(installations map[string]InstallationConfig) error {
	mu.Lock()
	defer mu.Unlock()
	if config == nil {
		return fmt.Errorf("config not initialized - call LoadConfig first")
	}

	candidate := *config
	candidate.Installations = installations
	if err := validateConfig(&candidate); err != nil {
		return fmt.Errorf("installations rejected: %w", err)
	}

	config.Installations = installations
	return saveConfigLocked()
}

func loadConfigFromFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON %s: %w", configPath, err)
	}
	return &cfg, nil
}

// SaveConfig saves config to <dir>/.coordinator/config.json.
func SaveConfig(cfg *Config, dir string) error {
	configPath := filepath.Join(dir, ProjectConfigDir, "config.json")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// saveConfigLocked persists the global config. Caller must hold mu.
func saveConfigLocked() error {
	config.SchemaVersion = SchemaVersion
	return SaveConfig(config, projectDir)
}

func createDefaultConfig() *Config {
	cfg := &Config{
		SchemaVersion: SchemaVersion,
		Server: ServerConfig{
			ListenAddr:  ":8080",
			MetricsAddr: ":9090",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(ProjectConfigDir, "coordinator.db"),
		},
		Gateway: GatewayConfig{
			RequestsPerSecond: 5,
		},
		Installations: map[string]InstallationConfig{},
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills fields an older or hand-edited file may omit.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(ProjectConfigDir, "coordinator.db")
	}
	if cfg.Gateway.RequestsPerSecond <= 0 {
		cfg.Gateway.RequestsPerSecond = 5
	}

	if cfg.Sync.ConflictPolicy == "" {
		cfg.Sync.ConflictPolicy = proto.ConflictManual
	}
	retry := syncmachine.DefaultRetryPolicy()
	if cfg.Sync.MaxAttempts <= 0 {
		cfg.Sync.MaxAttempts = retry.MaxAttempts
	}
	if cfg.Sync.RetryBase <= 0 {
		cfg.Sync.RetryBase = retry.Base
	}
	if cfg.Sync.RetryCap <= 0 {
		cfg.Sync.RetryCap = retry.Cap
	}
	if cfg.Sync.ItemsDir == "" {
		cfg.Sync.ItemsDir = filepath.Join(ProjectConfigDir, "items")
	}

	if cfg.Review.MergeMethod == "" {
		cfg.Review.MergeMethod = "squash"
	}
	if cfg.Review.ReviewersFile == "" {
		cfg.Review.ReviewersFile = filepath.Join(ProjectConfigDir, "reviewers.yaml")
	}

	if cfg.Sandbox.Executor == "" {
		cfg.Sandbox.Executor = "local"
	}
	if cfg.Sandbox.Timeout <= 0 {
		cfg.Sandbox.Timeout = 30 * time.Minute
	}
	if cfg.Sandbox.WorkRoot == "" {
		cfg.Sandbox.WorkRoot = filepath.Join(ProjectConfigDir, "work")
	}
	if cfg.Sandbox.CPUs == "" {
		cfg.Sandbox.CPUs = "2"
	}
	if cfg.Sandbox.Memory == "" {
		cfg.Sandbox.Memory = "2g"
	}
	if cfg.Sandbox.PIDs <= 0 {
		cfg.Sandbox.PIDs = 1024
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Sync.ConflictPolicy {
	case proto.ConflictRemoteWins, proto.ConflictLocalWins, proto.ConflictManual:
	default:
		return fmt.Errorf("unknown conflict policy %q", cfg.Sync.ConflictPolicy)
	}

	switch cfg.Review.MergeMethod {
	case "merge", "squash", "rebase":
	default:
		return fmt.Errorf("unknown merge method %q", cfg.Review.MergeMethod)
	}

	switch cfg.Sandbox.Executor {
	case "local":
	case "docker":
		if cfg.Sandbox.Image == "" {
			return fmt.Errorf("sandbox executor %q requires an image", cfg.Sandbox.Executor)
		}
	default:
		return fmt.Errorf("unknown sandbox executor %q", cfg.Sandbox.Executor)
	}

	for name, inst := range cfg.Installations {
		if inst.TokenEnv == "" {
			return fmt.Errorf("installation %q has no token_env", name)
		}
		if len(inst.Repos) == 0 {
			return fmt.Errorf("installation %q covers no repositories", name)
		}
	}

	return nil
}
