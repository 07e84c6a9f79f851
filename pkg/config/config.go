package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/utils"
)

// Config main configuration structure
type Config struct {
	MachineID int64            `env:"MACHINE_ID"`
	Server    ServerConfig     `mapstructure:"server"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Log       logger.LogConfig `mapstructure:"log"`
	Realtime  RealtimeConfig   `mapstructure:"realtime"`
	Fallback  FallbackConfig   `mapstructure:"fallback"`
	Rooms     RoomsConfig      `mapstructure:"rooms"`
	Weather   WeatherConfig    `mapstructure:"weather"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Name        string `env:"SERVER_NAME"`
	Desc        string `env:"SERVER_DESC"`
	URL         string `env:"SERVER_URL"` // public base URL used in TwiML stream/action URLs
	Logo        string `env:"SERVER_LOGO"`
	Addr        string `env:"ADDR"`
	Mode        string `env:"MODE"`
	APIPrefix   string `env:"API_PREFIX"`
	AdminPrefix string `env:"ADMIN_PREFIX"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER"`
	DSN    string `env:"DSN"`
}

// RealtimeConfig realtime voice engine configuration
type RealtimeConfig struct {
	Enabled        bool          `env:"REALTIME_ENABLED"`
	Percentage     int           `env:"REALTIME_PERCENTAGE"` // rollout percentage 0-100
	APIKey         string        `env:"REALTIME_API_KEY"`
	URL            string        `env:"REALTIME_URL"`
	Model          string        `env:"REALTIME_MODEL"`
	Voice          string        `env:"REALTIME_VOICE"`
	Language       string        `env:"REALTIME_LANGUAGE"`
	Instructions   string        `env:"REALTIME_INSTRUCTIONS"`
	ConnectTimeout time.Duration `env:"REALTIME_CONNECT_TIMEOUT"`
	HealthInterval time.Duration `env:"REALTIME_HEALTH_INTERVAL"`
	MaxReconnects  int           `env:"REALTIME_MAX_RECONNECTS"`
	ReconnectDelay time.Duration `env:"REALTIME_RECONNECT_DELAY"` // base delay, multiplied by attempt
	ToolTimeout    time.Duration `env:"REALTIME_TOOL_TIMEOUT"`
}

// FallbackConfig turn-based fallback conversation configuration
type FallbackConfig struct {
	APIKey      string  `env:"FALLBACK_API_KEY"`
	BaseURL     string  `env:"FALLBACK_BASE_URL"`
	Model       string  `env:"FALLBACK_MODEL"`
	Temperature float32 `env:"FALLBACK_TEMPERATURE"`
	MaxTurns    int     `env:"FALLBACK_MAX_TURNS"`
}

// RoomsConfig room service configuration
type RoomsConfig struct {
	URL          string `env:"ROOMS_URL"`
	APIKey       string `env:"ROOMS_API_KEY"`
	APISecret    string `env:"ROOMS_API_SECRET"`
	EmptyTimeout int    `env:"ROOMS_EMPTY_TIMEOUT"` // seconds before an empty room is reclaimed
}

// WeatherConfig weather tool configuration
type WeatherConfig struct {
	BaseURL   string        `env:"WEATHER_BASE_URL"`
	Timeout   time.Duration `env:"WEATHER_TIMEOUT"`
	CacheSize int           `env:"WEATHER_CACHE_SIZE"`
	CacheTTL  time.Duration `env:"WEATHER_CACHE_TTL"`
}

var GlobalConfig *Config

func Load() error {
	// 1. Load .env file based on environment (don't error if it doesn't exist, use default values)
	env := os.Getenv("APP_ENV")
	err := utils.LoadEnv(env)
	if err != nil {
		// Only log when .env file doesn't exist, don't affect startup
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	// 2. Load global configuration
	GlobalConfig = &Config{
		MachineID: utils.GetIntEnv("MACHINE_ID"),
		Server: ServerConfig{
			Name:        getStringOrDefault("SERVER_NAME", "LingBridge"),
			Desc:        getStringOrDefault("SERVER_DESC", ""),
			URL:         getStringOrDefault("SERVER_URL", ""),
			Logo:        getStringOrDefault("SERVER_LOGO", ""),
			Addr:        getStringOrDefault("ADDR", ":7076"),
			Mode:        getStringOrDefault("MODE", "development"),
			APIPrefix:   getStringOrDefault("API_PREFIX", "/api"),
			AdminPrefix: getStringOrDefault("ADMIN_PREFIX", "/admin"),
		},
		Database: DatabaseConfig{
			Driver: getStringOrDefault("DB_DRIVER", "sqlite"),
			DSN:    getStringOrDefault("DSN", "./ling.db"),
		},
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/app.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG_DAILY", true),
		},
		Realtime: RealtimeConfig{
			Enabled:        getBoolOrDefault("REALTIME_ENABLED", false),
			Percentage:     getIntOrDefault("REALTIME_PERCENTAGE", 0),
			APIKey:         getStringOrDefault("REALTIME_API_KEY", ""),
			URL:            getStringOrDefault("REALTIME_URL", "wss://api.openai.com/v1/realtime"),
			Model:          getStringOrDefault("REALTIME_MODEL", "gpt-4o-realtime-preview"),
			Voice:          getStringOrDefault("REALTIME_VOICE", "alloy"),
			Language:       getStringOrDefault("REALTIME_LANGUAGE", "de"),
			Instructions:   getStringOrDefault("REALTIME_INSTRUCTIONS", ""),
			ConnectTimeout: parseDuration(getStringOrDefault("REALTIME_CONNECT_TIMEOUT", "10s"), 10*time.Second),
			HealthInterval: parseDuration(getStringOrDefault("REALTIME_HEALTH_INTERVAL", "10s"), 10*time.Second),
			MaxReconnects:  getIntOrDefault("REALTIME_MAX_RECONNECTS", 3),
			ReconnectDelay: parseDuration(getStringOrDefault("REALTIME_RECONNECT_DELAY", "1s"), time.Second),
			ToolTimeout:    parseDuration(getStringOrDefault("REALTIME_TOOL_TIMEOUT", "30s"), 30*time.Second),
		},
		Fallback: FallbackConfig{
			APIKey:      getStringOrDefault("FALLBACK_API_KEY", ""),
			BaseURL:     getStringOrDefault("FALLBACK_BASE_URL", "https://api.openai.com/v1"),
			Model:       getStringOrDefault("FALLBACK_MODEL", "gpt-4o-mini"),
			Temperature: float32(getFloatOrDefault("FALLBACK_TEMPERATURE", 0.7)),
			MaxTurns:    getIntOrDefault("FALLBACK_MAX_TURNS", 20),
		},
		Rooms: RoomsConfig{
			URL:          getStringOrDefault("ROOMS_URL", ""),
			APIKey:       getStringOrDefault("ROOMS_API_KEY", ""),
			APISecret:    getStringOrDefault("ROOMS_API_SECRET", ""),
			EmptyTimeout: getIntOrDefault("ROOMS_EMPTY_TIMEOUT", 300),
		},
		Weather: WeatherConfig{
			BaseURL:   getStringOrDefault("WEATHER_BASE_URL", "https://wttr.in"),
			Timeout:   parseDuration(getStringOrDefault("WEATHER_TIMEOUT", "5s"), 5*time.Second),
			CacheSize: getIntOrDefault("WEATHER_CACHE_SIZE", 256),
			CacheTTL:  parseDuration(getStringOrDefault("WEATHER_CACHE_TTL", "10m"), 10*time.Minute),
		},
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate database configuration
	if c.Database.DSN == "" {
		return errors.New("database DSN is required")
	}

	// Validate server configuration
	if c.Server.Addr == "" {
		return errors.New("server address is required")
	}

	if c.Realtime.Percentage < 0 || c.Realtime.Percentage > 100 {
		return fmt.Errorf("realtime percentage must be within [0,100], got %d", c.Realtime.Percentage)
	}

	if c.Realtime.Enabled && c.Realtime.APIKey == "" {
		return errors.New("realtime API key is required when realtime is enabled")
	}
	return nil
}

// getStringOrDefault gets environment variable value, returns default if empty
func getStringOrDefault(key, defaultValue string) string {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getBoolOrDefault gets boolean environment variable value, returns default if empty
func getBoolOrDefault(key string, defaultValue bool) bool {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return utils.GetBoolEnv(key)
}

// getIntOrDefault gets integer environment variable value, returns default if empty
func getIntOrDefault(key string, defaultValue int) int {
	value := utils.GetIntEnv(key)
	if value == 0 {
		return defaultValue
	}
	return int(value)
}

// getFloatOrDefault gets float environment variable value, returns default if empty
func getFloatOrDefault(key string, defaultValue float64) float64 {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return defaultValue
}

// parseDuration parses duration string with default fallback
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
