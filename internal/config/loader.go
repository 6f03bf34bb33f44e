package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/logging"
)

const (
	userConfigDir  = ".config/redhat-sso"
	configFileName = "config.yaml"
	secretsDirName = "secrets"

	envAuthURL  = "RHSSO_AUTH_URL"
	envClientID = "RHSSO_CLIENT_ID"
)

// osUserHomeDir is swapped in tests.
var osUserHomeDir = os.UserHomeDir

// GetDefaultConfigPath returns ~/.config/redhat-sso.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// GetDefaultConfigPathOrPanic is GetDefaultConfigPath for flag defaults.
func GetDefaultConfigPathOrPanic() string {
	path, err := GetDefaultConfigPath()
	if err != nil {
		panic(err)
	}
	return path
}

// LoadConfig loads config.yaml from configPath on top of the defaults,
// applies environment overrides, fills derived paths and validates the result.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, NewConfigurationError(configFilePath, "io", "failed to read configuration", err.Error())
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, NewConfigurationError(configFilePath, "parse", "malformed YAML", err.Error())
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	applyEnvOverrides(&cfg)

	if cfg.Secrets.Dir == "" {
		cfg.Secrets.Dir = filepath.Join(configPath, secretsDirName)
	}

	if errs := cfg.Validate(); errs.HasErrors() {
		for i := range errs.Errors {
			errs.Errors[i].FilePath = configFilePath
		}
		return Config{}, errs
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(envAuthURL)); v != "" {
		logging.Debug("ConfigLoader", "Using auth URL from %s", envAuthURL)
		cfg.AuthURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envClientID)); v != "" {
		cfg.ClientID = v
	}
}
