package utils

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads environment variables from .env files. When env is set it
// first tries .env.<env> (e.g. .env.production), then falls back to .env.
func LoadEnv(env string) error {
	if env != "" {
		if err := godotenv.Load(fmt.Sprintf(".env.%s", env)); err == nil {
			return nil
		}
	}
	return godotenv.Load()
}

// GetEnv returns the raw string value of an environment variable.
func GetEnv(key string) string {
	return os.Getenv(key)
}

// GetIntEnv returns the int64 value of an environment variable, 0 when unset
// or unparseable.
func GetIntEnv(key string) int64 {
	return cast.ToInt64(os.Getenv(key))
}

// GetBoolEnv returns the bool value of an environment variable.
func GetBoolEnv(key string) bool {
	return cast.ToBool(os.Getenv(key))
}

// GetFloatEnv returns the float64 value of an environment variable.
func GetFloatEnv(key string) float64 {
	return cast.ToFloat64(os.Getenv(key))
}
