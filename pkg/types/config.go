package types

import (
	"time"

	"github.com/google/uuid"
)

// LaunchOption is the per-server launch configuration. All fields are
// pointers so that a nil field falls back to the global default at merge
// time (per-server value wins when non-nil).
type LaunchOption struct {
	JavaPreset            *string `yaml:"java_preset" json:"javaPreset"`
	JavaExecutable        *string `yaml:"java_executable" json:"javaExecutable"`
	JavaOptions           *string `yaml:"java_options" json:"javaOptions"`
	JarFile               *string `yaml:"jar_file" json:"jarFile"`
	ServerOptions         *string `yaml:"server_options" json:"serverOptions"`
	MaxHeapMemory         *int    `yaml:"max_heap_memory" json:"maxHeapMemory"`
	MinHeapMemory         *int    `yaml:"min_heap_memory" json:"minHeapMemory"`
	EnableFreeMemoryCheck *bool   `yaml:"enable_free_memory_check" json:"enableFreeMemoryCheck"`
	EnableReporterAgent   *bool   `yaml:"enable_reporter_agent" json:"enableReporterAgent"`
	EnableScreen          *bool   `yaml:"enable_screen" json:"enableScreen"`
}

// Merge returns the effective option: for each field the receiver's value
// when non-nil, else the default's.
func (o LaunchOption) Merge(def LaunchOption) LaunchOption {
	out := o
	if out.JavaPreset == nil {
		out.JavaPreset = def.JavaPreset
	}
	if out.JavaExecutable == nil {
		out.JavaExecutable = def.JavaExecutable
	}
	if out.JavaOptions == nil {
		out.JavaOptions = def.JavaOptions
	}
	if out.JarFile == nil {
		out.JarFile = def.JarFile
	}
	if out.ServerOptions == nil {
		out.ServerOptions = def.ServerOptions
	}
	if out.MaxHeapMemory == nil {
		out.MaxHeapMemory = def.MaxHeapMemory
	}
	if out.MinHeapMemory == nil {
		out.MinHeapMemory = def.MinHeapMemory
	}
	if out.EnableFreeMemoryCheck == nil {
		out.EnableFreeMemoryCheck = def.EnableFreeMemoryCheck
	}
	if out.EnableReporterAgent == nil {
		out.EnableReporterAgent = def.EnableReporterAgent
	}
	if out.EnableScreen == nil {
		out.EnableScreen = def.EnableScreen
	}
	return out
}

// InstallerInfo remembers which catalog build produced the server tree and
// whether a build step is still pending.
type InstallerInfo struct {
	Type         ServerType `yaml:"type" json:"type"`
	Version      string     `yaml:"version" json:"version"`
	Build        string     `yaml:"build" json:"build"`
	RequireBuild bool       `yaml:"require_build" json:"requireBuild"`
}

// ServerConfig is the per-server swi.server.yml schema.
type ServerConfig struct {
	Name                string         `yaml:"name" json:"name"`
	Type                ServerType     `yaml:"type" json:"type"`
	LaunchOption        LaunchOption   `yaml:"launch_option" json:"launchOption"`
	EnableLaunchCommand bool           `yaml:"enable_launch_command" json:"enableLaunchCommand"`
	LaunchCommand       string         `yaml:"launch_command" json:"launchCommand"`
	StopCommand         *string        `yaml:"stop_command" json:"stopCommand"`
	ShutdownTimeout     *int           `yaml:"shutdown_timeout" json:"shutdownTimeout"` // seconds
	CreatedAt           *time.Time     `yaml:"created_at" json:"createdAt"`
	LastLaunchAt        *time.Time     `yaml:"last_launch_at" json:"lastLaunchAt"`
	LastBackupAt        *time.Time     `yaml:"last_backup_at" json:"lastBackupAt"`
	Installer           *InstallerInfo `yaml:"installer,omitempty" json:"installer,omitempty"`
	SourceID            *uuid.UUID     `yaml:"source_id" json:"sourceID"`
	LastBackupID        *uuid.UUID     `yaml:"last_backup_id" json:"lastBackupID"`
}

// ServerGlobalConfig is the merge source for launch options plus fleet-wide
// process defaults.
type ServerGlobalConfig struct {
	LaunchOption    LaunchOption `yaml:"launch_option" json:"launchOption"`
	ShutdownTimeout int          `yaml:"shutdown_timeout" json:"shutdownTimeout"` // seconds
}

// BackupConfig controls the backup engine.
type BackupConfig struct {
	Enabled           bool     `yaml:"enabled" json:"enabled"`
	Snapshots         bool     `yaml:"snapshots" json:"snapshots"`
	Directory         string   `yaml:"directory" json:"directory"`
	PreferredSuffixes []string `yaml:"preferred_suffixes" json:"preferredSuffixes"`
}

// JavaPresetConfig is a user-registered preset in the global config.
type JavaPresetConfig struct {
	Name       string `yaml:"name" json:"name"`
	Executable string `yaml:"executable" json:"executable"`
}

// JavaConfig controls preset registration and auto-detection.
type JavaConfig struct {
	Presets   []JavaPresetConfig `yaml:"presets" json:"presets"`
	ScanPaths []string           `yaml:"scan_paths" json:"scanPaths"`
}

// APIConfig is the public control-plane bind.
type APIConfig struct {
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	TLSCert string `yaml:"tls_cert" json:"tlsCert"`
	TLSKey  string `yaml:"tls_key" json:"tlsKey"`
}
