package config

import (
	"github.com/spf13/viper"
)

// SetDefaults registers default values for every configuration key.
func SetDefaults() {
	// Gateway
	viper.SetDefault("gateway.host", "127.0.0.1")
	viper.SetDefault("gateway.port", 8000)

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	// Workspace
	viper.SetDefault("workspace.root", "")

	// Agent
	viper.SetDefault("agent.binary", "claude")
	viper.SetDefault("agent.permission_mode", "default")
	viper.SetDefault("agent.stop_timeout", "5s")

	// Storage
	viper.SetDefault("storage.path", "~/.prettycode/data.db")

	// Cleanup
	viper.SetDefault("cleanup.enabled", true)
	viper.SetDefault("cleanup.schedule", "0 3 * * *")
	viper.SetDefault("cleanup.retention_days", 30)
}
