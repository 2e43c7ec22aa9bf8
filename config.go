package dockbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ConfigDirEnvVar overrides the directory holding the global configuration
const ConfigDirEnvVar = "DOCKBOX_CONFIG_DIR"

// Config holds global configuration for dockbox
type Config struct {
	// DataDir is the path to dockbox's data directory (default: ~/.config/dockbox)
	DataDir string `yaml:"data_dir"`

	// Backend is the image inventory backend: "cli" or "engine" (default: "cli")
	Backend string `yaml:"backend"`

	// DefaultBaseImage is used by manifests that don't set base_image
	DefaultBaseImage string `yaml:"default_base_image"`

	// MapUser runs containers with the host uid:gid so outputs in the working
	// directory stay owned by the caller (default: true)
	MapUser bool `yaml:"map_user"`

	// Envs are passed to every run. "NAME" passes the host value through,
	// "NAME=VALUE" sets it explicitly.
	Envs []string `yaml:"envs"`
}

// ConfigDir returns the directory holding config.yaml
func ConfigDir() (string, error) {
	if dir := os.Getenv(ConfigDirEnvVar); dir != "" {
		return expandPath(dir), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "dockbox"), nil
}

// DefaultConfig returns the configuration used when no config file exists
func DefaultConfig(dataDir string) *Config {
	return &Config{
		DataDir:          dataDir,
		Backend:          string(DefaultBackend),
		DefaultBaseImage: DefaultBaseImage,
		MapUser:          true,
	}
}

// LoadConfig loads the global configuration from ConfigDir()/config.yaml
// Returns sensible defaults if the config file doesn't exist
func LoadConfig() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(dir)
}

// LoadConfigFrom loads the global configuration stored in dir
func LoadConfigFrom(dir string) (*Config, error) {
	config := DefaultConfig(dir)

	configPath := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			zlog.Debug("no config file found, using defaults",
				zap.String("config_path", configPath))
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.DataDir = expandPath(config.DataDir)
	if err := ValidateBackend(config.Backend); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	zlog.Debug("loaded config",
		zap.String("config_path", configPath),
		zap.String("data_dir", config.DataDir),
		zap.String("backend", config.Backend),
		zap.Bool("map_user", config.MapUser))

	return config, nil
}

// SaveConfig saves the global configuration to ConfigDir()/config.yaml
func SaveConfig(config *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return SaveConfigTo(dir, config)
}

// SaveConfigTo saves the global configuration to dir/config.yaml
func SaveConfigTo(dir string, config *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create dockbox config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	zlog.Debug("saved config", zap.String("config_path", configPath))
	return nil
}

// BuildDir returns the directory holding temporary build contexts
func (c *Config) BuildDir() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "build")
}

// ResolveEnvs turns env entries into KEY=VALUE pairs. Later entries override
// earlier ones with the same name. A bare NAME takes the host value and is
// dropped when the host doesn't define it.
func ResolveEnvs(entries ...[]string) []string {
	values := make(map[string]string)
	var order []string

	for _, list := range entries {
		for _, entry := range list {
			name, value, explicit := strings.Cut(entry, "=")
			if name == "" {
				continue
			}
			if !explicit {
				hostValue, ok := os.LookupEnv(name)
				if !ok {
					zlog.Debug("host env not set, skipping passthrough", zap.String("name", name))
					continue
				}
				value = hostValue
			}
			if _, seen := values[name]; !seen {
				order = append(order, name)
			}
			values[name] = value
		}
	}

	result := make([]string, 0, len(order))
	for _, name := range order {
		result = append(result, name+"="+values[name])
	}
	return result
}

// ResolveVolumePath resolves a volume path relative to a base directory.
// Paths starting with ./ or ../ are resolved relative to baseDir.
// Paths starting with ~ are expanded to the user's home directory.
// Other paths are returned as-is (absolute paths).
func ResolveVolumePath(volumePath, baseDir string) (string, error) {
	if strings.HasPrefix(volumePath, "~/") || volumePath == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		if volumePath == "~" {
			return homeDir, nil
		}
		return filepath.Join(homeDir, volumePath[2:]), nil
	}

	if strings.HasPrefix(volumePath, "./") || strings.HasPrefix(volumePath, "../") {
		return filepath.Join(baseDir, volumePath), nil
	}

	return volumePath, nil
}

// ParseVolumeSpec parses a volume specification into host path, container path, and options.
// Format: "hostpath:containerpath[:ro]"
func ParseVolumeSpec(spec string) (hostPath, containerPath string, readOnly bool, err error) {
	parts := strings.Split(spec, ":")

	switch len(parts) {
	case 2:
		return parts[0], parts[1], false, nil
	case 3:
		if parts[2] == "ro" {
			return parts[0], parts[1], true, nil
		}
		return "", "", false, fmt.Errorf("invalid volume option %q (expected 'ro')", parts[2])
	default:
		return "", "", false, fmt.Errorf("invalid volume specification %q (expected 'hostpath:containerpath[:ro]')", spec)
	}
}

// expandPath expands ~ to home directory and makes path absolute
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[1:])
		}
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
