// Package config loads yapm runtime configuration from yapm.toml and
// YAPM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys.
const (
	KeyProjectDir          = "project_dir"
	KeyPackagesDir         = "packages_dir"
	KeyManifestFile        = "manifest_file"
	KeySettingsPath        = "settings_path"
	KeyProjectSettingsPath = "project_settings_path"
	KeyLogLevel            = "log_level"
	KeyLogFile             = "log_file"
	KeyProcessTimeout      = "process_timeout"
	KeyCodeExtensions      = "code_extensions"
	KeyExcludeNames        = "exclude.names"
	KeyExcludePaths        = "exclude.paths"
)

// Config is the resolved configuration. Relative paths are resolved against
// ProjectDir.
type Config struct {
	ProjectDir          string
	PackagesDir         string
	ManifestFile        string
	SettingsPath        string
	ProjectSettingsPath string
	LogLevel            string
	LogFile             string
	ProcessTimeout      time.Duration
	CodeExtensions      []string
	ExcludeNames        []string
	ExcludePaths        []string

	// File is the config file that was read, if any.
	File string
}

// ManifestPath returns the dependency manifest path.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.PackagesDir, c.ManifestFile)
}

// New returns a viper instance with yapm defaults, env binding and the
// search path set up for projectDir. configFile overrides the search.
func New(projectDir, configFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	if projectDir != "" {
		v.Set(KeyProjectDir, projectDir)
	} else {
		projectDir = "."
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("yapm")
		v.SetConfigType("toml")
		v.AddConfigPath(projectDir)
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "yapm"))
		}
	}

	v.SetEnvPrefix("YAPM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults installs the default values.
func SetDefaults(v *viper.Viper) {
	settingsPath := "settings.toml"
	if home, err := os.UserHomeDir(); err == nil {
		settingsPath = filepath.Join(home, ".config", "yapm", "settings.toml")
	}
	v.SetDefault(KeyProjectDir, ".")
	v.SetDefault(KeyPackagesDir, "Packages")
	v.SetDefault(KeyManifestFile, "manifest.json")
	v.SetDefault(KeySettingsPath, settingsPath)
	v.SetDefault(KeyProjectSettingsPath, filepath.Join("ProjectSettings", "yapm.toml"))
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyProcessTimeout, "10s")
	v.SetDefault(KeyCodeExtensions, []string{".cs"})
	v.SetDefault(KeyExcludeNames, []string{})
	v.SetDefault(KeyExcludePaths, []string{})
}

// Read reads the config file, if one is found, and resolves the values.
func Read(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return resolve(v)
}

// Load is New followed by Read.
func Load(projectDir, configFile string) (*Config, error) {
	return Read(New(projectDir, configFile))
}

func resolve(v *viper.Viper) (*Config, error) {
	projectDir, err := filepath.Abs(v.GetString(KeyProjectDir))
	if err != nil {
		return nil, fmt.Errorf("resolving project dir: %w", err)
	}
	timeout, err := time.ParseDuration(v.GetString(KeyProcessTimeout))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("invalid %s %q", KeyProcessTimeout, v.GetString(KeyProcessTimeout))
	}

	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(projectDir, p)
	}

	return &Config{
		ProjectDir:          projectDir,
		PackagesDir:         abs(v.GetString(KeyPackagesDir)),
		ManifestFile:        v.GetString(KeyManifestFile),
		SettingsPath:        abs(v.GetString(KeySettingsPath)),
		ProjectSettingsPath: abs(v.GetString(KeyProjectSettingsPath)),
		LogLevel:            v.GetString(KeyLogLevel),
		LogFile:             abs(v.GetString(KeyLogFile)),
		ProcessTimeout:      timeout,
		CodeExtensions:      v.GetStringSlice(KeyCodeExtensions),
		ExcludeNames:        v.GetStringSlice(KeyExcludeNames),
		ExcludePaths:        v.GetStringSlice(KeyExcludePaths),
		File:                v.ConfigFileUsed(),
	}, nil
}
