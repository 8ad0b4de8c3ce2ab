package env

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

var ErrEmptyName = errors.New("environment variable name should not be empty")

// MustGetEnvString panics when a required variable is missing, use it for secrets.
func MustGetEnvString(envName string) string {
	v, err := GetEnvString(envName)
	if err != nil {
		panic(fmt.Sprintf("REQUIRED environment variable missing or empty: %s", envName))
	}
	return v
}

func GetEnvStringOrDefault(envName, defaultValue string) string {
	v, err := GetEnvString(envName)
	if err != nil {
		return defaultValue
	}
	return v
}

func GetEnvBoolOrDefault(envName string, defaultValue bool) bool {
	v, err := GetEnvBool(envName)
	if err != nil {
		return defaultValue
	}
	return v
}

func GetEnvIntOrDefault(envName string, defaultValue int) int {
	v, err := GetEnvInt(envName)
	if err != nil {
		return defaultValue
	}
	return v
}

// GetEnvDurationOrDefault accepts Go durations ("90s") and bare integers,
// which are read as milliseconds.
func GetEnvDurationOrDefault(envName string, defaultValue time.Duration) time.Duration {
	v, err := GetEnvDuration(envName)
	if err != nil {
		return defaultValue
	}
	return v
}

func SanitizeEnv(envName string) (string, error) {
	if len(envName) == 0 {
		return "", ErrEmptyName
	}

	value := strings.TrimSpace(os.Getenv(envName))
	if len(value) == 0 {
		return "", fmt.Errorf("environment variable '%s' has an empty value", envName)
	}

	return value, nil
}

func GetEnvString(envName string) (string, error) {
	return SanitizeEnv(envName)
}

func GetEnvBool(envName string) (bool, error) {
	value, err := SanitizeEnv(envName)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(value)
}

func GetEnvInt(envName string) (int, error) {
	value, err := SanitizeEnv(envName)
	if err != nil {
		return 0, err
	}

	parsed, err := strconv.ParseInt(value, 0, 0)
	if err != nil {
		return 0, err
	}
	return int(parsed), nil
}

func GetEnvDuration(envName string) (time.Duration, error) {
	value, err := SanitizeEnv(envName)
	if err != nil {
		return 0, err
	}

	var d time.Duration
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		d = time.Duration(ms) * time.Millisecond
	} else if d, err = time.ParseDuration(value); err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("environment variable '%s' must not be negative", envName)
	}
	return d, nil
}
