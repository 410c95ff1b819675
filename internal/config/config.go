// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads and writes the mptsync configuration.
// It layers defaults, an optional YAML config file, environment variables
// and CLI flags via Viper, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the full mptsync configuration.
type Config struct {
	Language string `mapstructure:"language" yaml:"language"`
	Debug    bool   `mapstructure:"debug" yaml:"debug"`

	Remote  Remote       `mapstructure:"remote" yaml:"remote"`
	Paths   Paths        `mapstructure:"paths" yaml:"paths"`
	Build   Build        `mapstructure:"build" yaml:"build"`
	Mirrors []MirrorPair `mapstructure:"mirrors" yaml:"mirrors"`
	History History      `mapstructure:"history" yaml:"history"`
}

// Remote describes the course server and how to authenticate against it.
type Remote struct {
	Host         string `mapstructure:"host" yaml:"host"`
	User         string `mapstructure:"user" yaml:"user"`
	IdentityFile string `mapstructure:"identity_file" yaml:"identity_file"`
	// LoginDelay is the minimum delay between consecutive SFTP logins.
	// The server rate-limits login attempts; this throttle keeps us under it.
	LoginDelay time.Duration `mapstructure:"login_delay" yaml:"login_delay"`
}

// Paths holds the local artifact paths and the remote target paths of the
// publishing pipeline. The defaults are the literal paths of the CSSE1001
// course deployment.
type Paths struct {
	// WorkDir is the local build tree the pipeline operates in.
	WorkDir string `mapstructure:"work_dir" yaml:"work_dir"`

	// HashFiles are the submission-state files fetched from and pushed back
	// to DataDir: the hash index and the hash-to-submission mapping.
	HashFiles []string `mapstructure:"hash_files" yaml:"hash_files"`

	// DataDir is the remote directory holding submission state.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	// PublicDir is the remote directory served to students.
	PublicDir string `mapstructure:"public_dir" yaml:"public_dir"`
	// VersionFile is the remote path of the current-version marker.
	VersionFile string `mapstructure:"version_file" yaml:"version_file"`

	// TutorialsArchive is the local archive produced by the build tool.
	TutorialsArchive string `mapstructure:"tutorials_archive" yaml:"tutorials_archive"`
	// AppArchive is the local application archive rebuilt each run.
	AppArchive string `mapstructure:"app_archive" yaml:"app_archive"`
	// AppSourceDir is the subdirectory whose *.py files go into AppArchive.
	AppSourceDir string `mapstructure:"app_source_dir" yaml:"app_source_dir"`
	// AppTopFiles are the fixed top-level files added to AppArchive.
	AppTopFiles []string `mapstructure:"app_top_files" yaml:"app_top_files"`

	// Installer and Launcher are the bootstrap files published alongside
	// the application archive.
	Installer string `mapstructure:"installer" yaml:"installer"`
	Launcher  string `mapstructure:"launcher" yaml:"launcher"`
}

// Build describes the external commands the pipeline shells out to.
type Build struct {
	// Command builds the tutorial package. Its output is discarded; only
	// the exit status is consumed.
	Command []string `mapstructure:"command" yaml:"command"`
	// VersionCommand prints the release version on stdout; the captured
	// bytes are uploaded verbatim as the current-version marker.
	VersionCommand []string `mapstructure:"version_command" yaml:"version_command"`
}

// MirrorPair is one local directory mirrored one-way to a remote directory,
// deleting remote files absent locally.
type MirrorPair struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Local  string `mapstructure:"local" yaml:"local"`
	Remote string `mapstructure:"remote" yaml:"remote"`
}

// History configures the run-history database.
type History struct {
	Type string `mapstructure:"type" yaml:"type"`
	DSN  string `mapstructure:"dsn" yaml:"dsn"`
}

// Defaults returns the keyed default values fed into Viper. They mirror the
// literal host and paths of the original course deployment.
func Defaults() map[string]any {
	return map[string]any{
		"language": "en",
		"debug":    false,

		"remote.host":        "csse1001.uqcloud.net",
		"remote.user":        "mpt",
		"remote.login_delay": "2s",

		"paths.work_dir":          ".",
		"paths.hash_files":        []string{"tutorial_hashes", "tutorial_hash_mappings"},
		"paths.data_dir":          "/opt/mypytutor/MPT3_CSSE1001/data",
		"paths.public_dir":        "/var/www/mpt3/public",
		"paths.version_file":      "/opt/mypytutor/MPT3_CSSE1001/data/mpt_version",
		"paths.tutorials_archive": "CSSE1001Tutorials.zip",
		"paths.app_archive":       "MyPyTutor35.zip",
		"paths.app_source_dir":    "tutorlib",
		"paths.app_top_files":     []string{"MyPyTutor.py", "MyPyTutor.pyw"},
		"paths.installer":         "mpt_installer.py",
		"paths.launcher":          "MyPyTutor.pyw",

		"build.command":         []string{"make"},
		"build.version_command": []string{"python3", "mpt_version.py"},

		"history.type": "sqlite",
		"history.dsn":  "./mptsync.db",
	}
}

// DefaultMirrors returns the two directory pairs mirrored on every run.
func DefaultMirrors() []MirrorPair {
	return []MirrorPair{
		{Name: "cgi", Local: "cgi-bin", Remote: "/opt/mypytutor/MPT3_CSSE1001/cgi-bin"},
		{Name: "help", Local: "help", Remote: "/var/www/mpt3/public/help"},
	}
}

// getConfigPath returns the full path for the configuration file.
func getConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		// System-wide configuration paths
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "mptsync")
		default: // Linux, macOS, etc.
			configDir = "/etc/mptsync"
		}
	} else {
		// User-specific configuration paths
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "mptsync")
	}

	return filepath.Join(configDir, "mptsync.yaml"), nil
}

// Load builds the effective configuration for a command invocation.
// An explicit config file path (from the --config flag) takes precedence over
// the standard search locations.
func Load(cmd *cobra.Command, cfgFile string) (Config, error) {
	var c Config
	v := viper.New()

	// 1. Set defaults
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
	v.SetDefault("mirrors", DefaultMirrors())

	// 2. Set up file search paths
	v.SetConfigName("mptsync")
	v.SetConfigType("yaml")

	// 3. Add explicit config file path if provided via --config flag.
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	// 4. Add standard config locations
	if userConfigPath, err := getConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := getConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".") // Look for mptsync.yaml in current dir

	// 5. Read in the primary config file.
	if err := v.ReadInConfig(); err != nil {
		// It's okay if the file is not found, but other errors are fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	// 6. Read from environment variables
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvPrefix("mptsync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 7. CLI flags have the highest precedence.
	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	return c, nil
}

// WriteConfigFile serializes c and writes it to the user or system config
// location, creating the directory if needed.
func WriteConfigFile(c *Config, system bool) error {
	path, err := getConfigPath(system)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return err
	}

	return nil
}
