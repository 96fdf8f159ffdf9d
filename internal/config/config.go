// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads regvault settings from the config file, the
// environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	appName   = "regvault"
	envPrefix = "REGVAULT"
)

// legacyEnv lists the environment names of the earlier backup jobs.
// They are honoured next to the REGVAULT_ prefixed names.
var legacyEnv = map[string]string{
	"source_region":  "BACKUP_REGION",
	"restore_region": "RESTORE_REGION",
	"bucket":         "BACKUP_BUCKET",
	"prefix":         "BACKUP_DATE_PREFIX",
	"thing_name":     "THING_NAME",
	"max_workers":    "MAX_WORKERS",
}

// nestedFlags maps flag names onto dotted config keys. Other flags bind to
// their name with dashes replaced by underscores.
var nestedFlags = map[string]string{
	"store-type":       "store.type",
	"store-dir":        "store.dir",
	"store-endpoint":   "store.endpoint",
	"store-path-style": "store.path_style",
	"aws-endpoint":     "aws.endpoint",
	"rate-limit":       "registry.rate_limit",
	"database-type":    "database.type",
	"database-dsn":     "database.dsn",
	"log-level":        "log.level",
	"log-format":       "log.format",
}

func flagKey(name string) string {
	if key, ok := nestedFlags[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "-", "_")
}

type Store struct {
	Type            string `mapstructure:"type" yaml:"type"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	PathStyle       bool   `mapstructure:"path_style" yaml:"path_style,omitempty"`
	Dir             string `mapstructure:"dir" yaml:"dir,omitempty"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file,omitempty"`
}

type AWS struct {
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	SessionToken    string `mapstructure:"session_token" yaml:"session_token,omitempty"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

type Registry struct {
	// RateLimit caps registry calls per second. Zero disables the limit.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
}

type Database struct {
	Type string `mapstructure:"type" yaml:"type"`
	Dsn  string `mapstructure:"dsn" yaml:"dsn"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Config is the full regvault configuration.
type Config struct {
	SourceRegion  string   `mapstructure:"source_region" yaml:"source_region,omitempty"`
	RestoreRegion string   `mapstructure:"restore_region" yaml:"restore_region,omitempty"`
	Bucket        string   `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Prefix        string   `mapstructure:"prefix" yaml:"prefix,omitempty"`
	ThingName     string   `mapstructure:"thing_name" yaml:"thing_name,omitempty"`
	MaxWorkers    int      `mapstructure:"max_workers" yaml:"max_workers,omitempty"`
	KnownRegions  []string `mapstructure:"known_regions" yaml:"known_regions,omitempty"`
	Language      string   `mapstructure:"language" yaml:"language"`

	Store    Store    `mapstructure:"store" yaml:"store"`
	AWS      AWS      `mapstructure:"aws" yaml:"aws,omitempty"`
	Registry Registry `mapstructure:"registry" yaml:"registry"`
	Database Database `mapstructure:"database" yaml:"database"`
	Log      Log      `mapstructure:"log" yaml:"log"`
}

// Defaults returns the built-in default values keyed by config key.
func Defaults() map[string]any {
	return map[string]any{
		"store.type":          "s3",
		"registry.rate_limit": 0,
		"database.type":       "sqlite",
		"database.dsn":        "./regvault.db",
		"language":            "en",
		"log.level":           "info",
		"log.format":          "text",
	}
}

// GetConfigPath returns the full path for the configuration file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Regvault")
		default:
			configDir = "/etc/regvault"
		}
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(dir, appName)
	}
	return filepath.Join(configDir, appName+".yaml"), nil
}

// LoadConfig builds T from defaults, the first regvault.yaml found (or the
// explicit file), REGVAULT_* and legacy environment variables, and the flags
// of cmd, in increasing order of precedence.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, configFile *string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(appName)
	v.SetConfigType("yaml")
	if configFile != nil && *configFile != "" {
		v.SetConfigFile(*configFile)
	}
	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return c, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(key)
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return c, err
		}
	}

	if cmd != nil {
		var bindErr error
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(flagKey(f.Name), f)
		})
		if bindErr != nil {
			return c, bindErr
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

// WriteConfigFile stores c as YAML in the user or system config location.
func WriteConfigFile[T any](c *T, system bool) error {
	path, err := GetConfigPath(system)
	if err != nil {
		return err
	}
	return WriteConfigFileTo(c, path)
}

// WriteConfigFileTo stores c as YAML at path.
func WriteConfigFileTo[T any](c *T, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}
	// 0600: the file may hold static AWS credentials.
	return os.WriteFile(path, data, 0o600)
}
