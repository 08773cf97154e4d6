package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the full pipeline definition loaded from relforge.yaml.
type Config struct {
	Project   ProjectConfig    `yaml:"project"`
	Trigger   TriggerConfig    `yaml:"trigger"`
	Runtime   RuntimeConfig    `yaml:"runtime"`
	Build     BuildConfig      `yaml:"build"`
	Platforms []PlatformConfig `yaml:"platforms"`
	Storage   StorageConfig    `yaml:"storage"`
	Forge     *ForgeConfig     `yaml:"forge,omitempty"`
	Daemon    DaemonConfig     `yaml:"daemon"`
	Notify    *NotifyConfig    `yaml:"notify,omitempty"`
}

// ProjectConfig identifies the source project being released.
type ProjectConfig struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`                 // Git clone URL
	Changelog string `yaml:"changelog,omitempty"` // Path to changelog within the repo
}

// TriggerConfig controls which events start a run and which runs may publish.
type TriggerConfig struct {
	TagPattern  string `yaml:"tag_pattern"`  // Glob on the tag name, default "v*"
	AllowManual bool   `yaml:"allow_manual"` // Permit manual dispatch runs
}

// RuntimeConfig pins the language runtime provisioned for every branch.
type RuntimeConfig struct {
	Tool    string `yaml:"tool"`    // Interpreter/toolchain binary name
	Version string `yaml:"version"` // Required version prefix, e.g. "3.11"
}

// BuildConfig describes executable synthesis.
type BuildConfig struct {
	Packager    string   `yaml:"packager"`               // Packaging tool binary, e.g. "pyinstaller"
	EntryPoint  string   `yaml:"entry_point"`            // Designated entry module
	OutputName  string   `yaml:"output_name"`            // Explicit single-file output name
	DepsInstall []string `yaml:"deps_install,omitempty"` // Commands run before packaging
}

// PlatformConfig is one target platform tuple. Three fixed instances exist in
// the default definition (linux, windows and darwin, all amd64). The asset name
// must be unique within a run: it keys both the uploaded artifact and the
// release asset filename.
type PlatformConfig struct {
	OS         string `yaml:"os"`         // Operating system identifier (GOOS-style)
	Executable string `yaml:"executable"` // Produced executable filename
	Asset      string `yaml:"asset"`      // Archive base name
}

// ArchiveName returns the archive filename for this platform.
// Always `.zip` regardless of which archiver produced it.
func (p PlatformConfig) ArchiveName() string {
	return p.Asset + ".zip"
}

// StorageConfig controls the artifact store.
type StorageConfig struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
	SweepInterval string `yaml:"sweep_interval,omitempty"` // Duration string, default "1h"
}

// DaemonConfig controls serve mode.
type DaemonConfig struct {
	Listen        string `yaml:"listen"`
	QueueSize     int    `yaml:"queue_size"`
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
	DataDir       string `yaml:"data_dir,omitempty"` // Event journal location
}

// NotifyConfig enables NATS run notifications.
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Stream  string `yaml:"stream,omitempty"`
}

// Load loads the pipeline definition from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	if err := loadEnvFile(); err != nil {
		// Don't fail if .env doesn't exist, just note it
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("pipeline definition not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline definition: %w", err)
	}

	return Parse(data)
}

// Parse parses a pipeline definition from raw YAML, expanding environment
// variables, applying defaults, and validating.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pipeline definition: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
