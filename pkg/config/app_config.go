// Package config handles user-level configuration: the persisted
// config.yml (runtime choice, worker pool size, cache backend selection,
// environment-inheritance defaults) and the process-level AppConfig that
// wraps it with build/version metadata.
//
// Grounded on lazydocker's pkg/config/app_config.go for the xdg config-dir
// resolution and load/write pattern, trimmed of every GUI/keybinding field
// (ThemeConfig, CustomCommands, KeybindingConfig, ...) since this tool has
// no interactive dashboard -- see DESIGN.md for what was dropped and why.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/OpenPeeDeeP/xdg"
	yaml "github.com/jesseduffield/yaml"
)

// UserConfig holds the user-configurable defaults that apply across builds,
// persisted at <config_dir>/config.yml.
type UserConfig struct {
	// Runtime is "docker" or "podman". Empty means auto-detect by probing
	// PATH for "docker" first, falling back to "podman".
	Runtime string `yaml:"runtime,omitempty"`

	// MaxInventoryWorkers bounds the inventory scan's worker pool (spec.md
	// §5: default min(8, candidate count)).
	MaxInventoryWorkers int `yaml:"maxInventoryWorkers,omitempty"`

	// PreserveContainerOnFailure keeps a failed build's container around
	// instead of removing it, so the operator can attach and reproduce the
	// failing command by hand.
	PreserveContainerOnFailure bool `yaml:"preserveContainerOnFailure,omitempty"`

	// InspectTimeout is read from and written to config.yml, but nothing
	// passes it to the runtime wrapper: inventory inspects are bounded by
	// the fixed runtime.InspectTimeout instead.
	InspectTimeout time.Duration `yaml:"inspectTimeout,omitempty"`

	Cache CacheConfig `yaml:"cache,omitempty"`
}

// CacheConfig selects and configures the optional remote-cache tier
// (pkg/cache's GHCR/Minio backends, both documented extension points today).
type CacheConfig struct {
	GHCRRegistry   string `yaml:"ghcrRegistry,omitempty"`
	GHCRRepository string `yaml:"ghcrRepository,omitempty"`
	MinioEndpoint  string `yaml:"minioEndpoint,omitempty"`
	MinioBucket    string `yaml:"minioBucket,omitempty"`
}

// GetDefaultConfig returns the application defaults. NOTE: don't default a
// boolean to true -- false is the zero value and would be indistinguishable
// from an explicit user override.
func GetDefaultConfig() UserConfig {
	return UserConfig{
		Runtime:             "",
		MaxInventoryWorkers: 8,
		InspectTimeout:      6 * time.Second,
	}
}

// AppConfig is the process-wide configuration: build metadata plus the
// loaded UserConfig.
type AppConfig struct {
	Debug       bool
	Version     string
	Commit      string
	BuildDate   string
	Name        string
	BuildSource string
	UserConfig  *UserConfig
	ConfigDir   string
	ProjectDir  string
}

// NewAppConfig resolves the config directory, loads (and lazily creates)
// config.yml, and merges in build metadata.
func NewAppConfig(name, version, commit, date, buildSource string, debuggingFlag bool, projectDir string) (*AppConfig, error) {
	configDir, err := findOrCreateConfigDir(name)
	if err != nil {
		return nil, err
	}

	userConfig, err := loadUserConfigWithDefaults(configDir)
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		Name:        name,
		Version:     version,
		Commit:      commit,
		BuildDate:   date,
		Debug:       debuggingFlag || os.Getenv("DEBUG") == "TRUE",
		BuildSource: buildSource,
		UserConfig:  userConfig,
		ConfigDir:   configDir,
		ProjectDir:  projectDir,
	}, nil
}

func configDirForVendor(vendor, projectName string) string {
	if envConfigDir := os.Getenv("CONFIG_DIR"); envConfigDir != "" {
		return envConfigDir
	}
	return xdg.New(vendor, projectName).ConfigHome()
}

func findOrCreateConfigDir(projectName string) (string, error) {
	folder := configDirForVendor("", projectName)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", err
	}
	return folder, nil
}

func loadUserConfigWithDefaults(configDir string) (*UserConfig, error) {
	base := GetDefaultConfig()
	return loadUserConfig(configDir, &base)
}

func loadUserConfig(configDir string, base *UserConfig) (*UserConfig, error) {
	fileName := filepath.Join(configDir, "config.yml")

	if _, err := os.Stat(fileName); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		file, err := os.Create(fileName)
		if err != nil {
			return nil, err
		}
		file.Close()
	}

	content, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(content, base); err != nil {
		return nil, err
	}
	return base, nil
}

// WriteToUserConfig loads the on-disk config, applies updateConfig, and
// persists the result.
func (c *AppConfig) WriteToUserConfig(updateConfig func(*UserConfig) error) error {
	userConfig, err := loadUserConfig(c.ConfigDir, &UserConfig{})
	if err != nil {
		return err
	}
	if err := updateConfig(userConfig); err != nil {
		return err
	}

	file, err := os.OpenFile(c.ConfigFilename(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return err
	}
	defer file.Close()

	return yaml.NewEncoder(file).Encode(userConfig)
}

// ConfigFilename returns the path of the current config file.
func (c *AppConfig) ConfigFilename() string {
	return filepath.Join(c.ConfigDir, "config.yml")
}
