// Package config loads and persists the global config file and the
// per-server swi.server.yml files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/swicore/switcher/pkg/types"
)

// ServerConfigFilename is the per-server config file inside each server
// directory.
const ServerConfigFilename = "swi.server.yml"

// Config is the global configuration of the daemon.
type Config struct {
	// Servers maps a lowercased server id to its directory.
	Servers map[string]string `yaml:"servers"`

	RootDirectory string `yaml:"root_directory"`
	DatabasePath  string `yaml:"database_path"`
	MaxLogLines   int    `yaml:"max_log_lines"`
	LogLevel      string `yaml:"log_level"`

	ServerDefaults types.ServerGlobalConfig `yaml:"server_defaults"`
	Backup         types.BackupConfig       `yaml:"backup"`
	Java           types.JavaConfig         `yaml:"java"`
	API            types.APIConfig          `yaml:"api"`

	path string
	mu   sync.Mutex
}

// Default returns a config with working defaults rooted at dataDir.
func Default(dataDir string) *Config {
	maxHeap, minHeap := 2048, 2048
	jar := "server.jar"
	memCheck := true
	return &Config{
		Servers:       map[string]string{},
		RootDirectory: filepath.Join(dataDir, "servers"),
		DatabasePath:  filepath.Join(dataDir, "switcher.db"),
		MaxLogLines:   10000,
		LogLevel:      "info",
		ServerDefaults: types.ServerGlobalConfig{
			LaunchOption: types.LaunchOption{
				JarFile:               &jar,
				MaxHeapMemory:         &maxHeap,
				MinHeapMemory:         &minHeap,
				EnableFreeMemoryCheck: &memCheck,
			},
			ShutdownTimeout: 30,
		},
		Backup: types.BackupConfig{
			Enabled:           true,
			Snapshots:         true,
			Directory:         filepath.Join(dataDir, "backups"),
			PreferredSuffixes: []string{"zip", "tar.zst", "7z"},
		},
		API: types.APIConfig{Host: "127.0.0.1", Port: 8080},
	}
}

// Load reads the global config, creating it with defaults when missing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default(filepath.Dir(path))
		cfg.path = path
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default(filepath.Dir(path))
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.path = path
	if cfg.Servers == nil {
		cfg.Servers = map[string]string{}
	}
	return cfg, nil
}

// Save atomically persists the global config.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return atomicWrite(c.path, data, 0o644)
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string { return c.path }

// LoadServerConfig reads swi.server.yml from a server directory.
func LoadServerConfig(dir string) (*types.ServerConfig, error) {
	path := filepath.Join(dir, ServerConfigFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc types.ServerConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	sc.Type = types.ParseServerType(string(sc.Type))
	return &sc, nil
}

// SaveServerConfig atomically persists swi.server.yml into a server directory.
func SaveServerConfig(dir string, sc *types.ServerConfig) error {
	data, err := yaml.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal server config: %w", err)
	}
	return atomicWrite(filepath.Join(dir, ServerConfigFilename), data, 0o644)
}

// EffectiveLaunchOption merges the per-server option over the global default.
func (c *Config) EffectiveLaunchOption(sc *types.ServerConfig) types.LaunchOption {
	return sc.LaunchOption.Merge(c.ServerDefaults.LaunchOption)
}

// StopCommand resolves the command written to the child's PTY on stop:
// per-server value, else the type's canonical command, else "stop".
func StopCommand(sc *types.ServerConfig) string {
	if sc.StopCommand != nil && *sc.StopCommand != "" {
		return *sc.StopCommand
	}
	if cmd := sc.Type.Meta().StopCommand; cmd != "" {
		return cmd
	}
	return "stop"
}

// ShutdownTimeout resolves the per-server stop wait in seconds.
func (c *Config) ShutdownTimeout(sc *types.ServerConfig) int {
	if sc.ShutdownTimeout != nil && *sc.ShutdownTimeout > 0 {
		return *sc.ShutdownTimeout
	}
	if c.ServerDefaults.ShutdownTimeout > 0 {
		return c.ServerDefaults.ShutdownTimeout
	}
	return 30
}

func atomicWrite(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(filepath.Base(path), ".yml")+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
