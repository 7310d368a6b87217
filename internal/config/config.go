// Package config holds the helpers shared by the agent and server binaries
// for layering JSON file configuration under flags and environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// LoadConfigFile loads configuration from a JSON file.
//
// Parameters:
//   - path: Path to the JSON configuration file
//   - cfg: Pointer to config struct to unmarshal into
//
// Returns:
//   - error: An error if the file cannot be read or the JSON is invalid
//
// Example:
//
//	var cfg JSONConfig
//	if err := config.LoadConfigFile("config.json", &cfg); err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFile(path string, cfg interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// GetConfigFilePath returns the config file path from the flag value or the
// CONFIG environment variable, flag taking precedence.
func GetConfigFilePath(configFlag string) string {
	if configFlag != "" {
		return configFlag
	}
	return os.Getenv("CONFIG")
}

// ParseDuration parses a duration string with an optional 's' suffix and
// returns the value in seconds.
//
// Example:
//
//	period, err := config.ParseDuration("300s")
func ParseDuration(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty duration")
	}

	s = strings.TrimSuffix(s, "s")

	var duration int
	if _, err := fmt.Sscanf(s, "%d", &duration); err != nil {
		return 0, fmt.Errorf("invalid duration format: %w", err)
	}

	if duration <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %d", duration)
	}

	return duration, nil
}

// ApplyStringIfDefault applies the JSON value only when the current value
// still equals the built-in default, so that flags and environment keep
// precedence over the file.
func ApplyStringIfDefault(current *string, defaultValue, jsonValue string) {
	if jsonValue != "" && *current == defaultValue {
		*current = jsonValue
	}
}

// ApplyIntIfDefault is ApplyStringIfDefault for integer values.
func ApplyIntIfDefault(current *int, defaultValue, jsonValue int) {
	if jsonValue != 0 && *current == defaultValue {
		*current = jsonValue
	}
}

// ApplyDurationIfDefault parses and applies a duration string from the JSON
// config only when the current value still equals the default.
func ApplyDurationIfDefault(current *int, defaultValue int, jsonValue string) {
	if jsonValue != "" && *current == defaultValue {
		if duration, err := ParseDuration(jsonValue); err == nil {
			*current = duration
		}
	}
}

// ApplyBoolIfDefault applies a true JSON value over a false current value.
func ApplyBoolIfDefault(current *bool, jsonValue bool) {
	if jsonValue && !*current {
		*current = jsonValue
	}
}
