package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config aggregates service configuration loaded from the environment.
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Notify NotifyConfig
	Log    LogConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	storeCfg, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	notifyEnabled, err := parseBoolEnv("NOTIFY_ENABLED", true)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Store:  storeCfg,
		Notify: NotifyConfig{Enabled: notifyEnabled},
		Log:    LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "info")},
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// Store drivers.
const (
	StoreDriverMongo  = "mongo"
	StoreDriverMemory = "memory"
)

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Driver   string
	MongoURL string
	MongoDB  string
}

func loadStoreConfig() (StoreConfig, error) {
	driver := getEnvOrDefault("STORE_DRIVER", StoreDriverMongo)
	switch driver {
	case StoreDriverMongo, StoreDriverMemory:
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value: %q", driver)
	}

	return StoreConfig{
		Driver:   driver,
		MongoURL: getEnvOrDefault("MONGO_URL", "mongodb://localhost:27017"),
		MongoDB:  getEnvOrDefault("MONGO_DB", "tapewise"),
	}, nil
}

// NotifyConfig toggles the websocket push hub.
type NotifyConfig struct {
	Enabled bool
}

// LogConfig controls logger verbosity.
type LogConfig struct {
	Level string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
