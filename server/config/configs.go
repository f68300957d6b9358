// Package config loads the API server settings.
package config

import (
	"os"

	"github.com/navid-fn/minions/configs"
)

type Config struct {
	App        *configs.AppConfig
	ServerPort string
	DebugMode  string
}

// Load reads the shared application settings plus the HTTP listener ones.
func Load() *Config {
	return &Config{
		App:        configs.AppLoad(),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		DebugMode:  getEnv("DEBUGMODE", "True"),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
