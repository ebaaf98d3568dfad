package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"prettycode/pkg/logger"
)

// Config is the root application configuration.
type Config struct {
	Version   string          `mapstructure:"version" yaml:"version"`
	Gateway   GatewayConfig   `mapstructure:"gateway" yaml:"gateway"`
	Log       logger.Config   `mapstructure:"log" yaml:"log"`
	Workspace WorkspaceConfig `mapstructure:"workspace" yaml:"workspace"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup" yaml:"cleanup"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// WorkspaceConfig configures the default working directory served to clients.
type WorkspaceConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// AgentConfig configures the coding agent subprocess.
type AgentConfig struct {
	Binary         string   `mapstructure:"binary" yaml:"binary"`
	PermissionMode string   `mapstructure:"permission_mode" yaml:"permission_mode"`
	ExtraArgs      []string `mapstructure:"extra_args" yaml:"extra_args,omitempty"`
	StopTimeout    string   `mapstructure:"stop_timeout" yaml:"stop_timeout,omitempty"`
}

// GetStopTimeout parses StopTimeout, defaulting to 5 seconds.
func (c *AgentConfig) GetStopTimeout() time.Duration {
	if c.StopTimeout == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(c.StopTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// StorageConfig configures the transcript database.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// CleanupConfig configures periodic transcript pruning.
type CleanupConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Schedule      string `mapstructure:"schedule" yaml:"schedule"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load loads configuration with precedence: ENV > config file > defaults.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("PRETTYCODE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// A missing file falls back to defaults; a malformed one is fatal.
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the currently loaded configuration.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Save persists the current configuration to the loaded config path.
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

func save() error {
	if globalConfig == nil || configPath == "" {
		return nil
	}

	data, err := yaml.Marshal(globalConfig)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo writes the given configuration to an explicit path.
func SaveTo(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Reset clears loaded state. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
