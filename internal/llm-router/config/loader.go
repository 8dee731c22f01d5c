package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// CONFIG_PATH names a directory holding config.yaml. It is searched before
// the default locations.
const envConfigPath = "CONFIG_PATH"

var searchPaths = []string{
	".",
	"./config",
	"/etc/llm-router",
	"$HOME/.llm-router",
}

// testConfigDir is relative to a package directory under internal/llm-router.
const testConfigDir = "../../../test/config"

// LoadConfig loads config.yaml from CONFIG_PATH or the default locations.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv(envConfigPath))
}

// Load loads the configuration from config files and environment variables.
// configPath, when set, wins over the default locations.
func Load(configPath string) (*Config, error) {
	paths := append([]string{configPath}, searchPaths...)
	return read("config", paths...)
}

// LoadTestConfig loads test/config/config.test.yaml. It goes through the
// same validation as a production config.
func LoadTestConfig() (*Config, error) {
	return read("config.test", testConfigDir)
}

func read(name string, paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	for _, p := range paths {
		if p != "" {
			v.AddConfigPath(os.ExpandEnv(p))
		}
	}
	setDefaults(v)

	// Read environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}
