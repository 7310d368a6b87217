package main

import (
	"flag"

	"github.com/ilyakaznacheev/cleanenv"

	configpkg "github.com/devicewatch-io/defender-agent/internal/config"
)

// JSONConfig represents configuration from a JSON file.
type JSONConfig struct {
	Address       string `json:"address"`
	Key           string `json:"key"`
	TrustedSubnet string `json:"trusted_subnet"`
	MinInterval   string `json:"min_interval"`
	LogLevel      string `json:"log_level"`
}

// Config represents the full server configuration with all sources.
type Config struct {
	Address       string `env:"ADDRESS"`
	Key           string `env:"KEY"`
	TrustedSubnet string `env:"TRUSTED_SUBNET"`
	MinInterval   int    `env:"MIN_INTERVAL"`
	LogLevel      string `env:"LOG_LEVEL"`

	// Internal field for config file path
	configFile string
}

var config = Config{
	Address:     "localhost:8080",
	MinInterval: 300,
	LogLevel:    "info",
}

// applyConfig applies values from the JSON file with lower priority than
// env and flags.
func applyConfig(cfg *JSONConfig) {
	configpkg.ApplyStringIfDefault(&config.Address, "localhost:8080", cfg.Address)
	configpkg.ApplyStringIfDefault(&config.Key, "", cfg.Key)
	configpkg.ApplyStringIfDefault(&config.TrustedSubnet, "", cfg.TrustedSubnet)
	configpkg.ApplyDurationIfDefault(&config.MinInterval, 300, cfg.MinInterval)
	configpkg.ApplyStringIfDefault(&config.LogLevel, "info", cfg.LogLevel)
}

// Init registers flags and initializes configuration from all sources.
// Priority order (lowest to highest): defaults, JSON config file,
// environment variables, command line flags.
func Init() error {
	flag.StringVar(&config.Address, "a", config.Address, "HTTP address to listen on")
	flag.StringVar(&config.Key, "k", config.Key, "Key for verifying report signatures")
	flag.StringVar(&config.TrustedSubnet, "t", config.TrustedSubnet, "CIDR of the subnet publishes are accepted from")
	flag.IntVar(&config.MinInterval, "m", config.MinInterval, "Minimum seconds between accepted reports per thing")
	flag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level")
	flag.StringVar(&config.configFile, "c", "", "Path to config file")
	flag.StringVar(&config.configFile, "config", "", "Path to config file")
	flag.Parse()

	if configFile := configpkg.GetConfigFilePath(config.configFile); configFile != "" {
		config.configFile = configFile
		var jsonCfg JSONConfig
		if err := configpkg.LoadConfigFile(configFile, &jsonCfg); err != nil {
			return err
		}
		applyConfig(&jsonCfg)
	}

	if err := cleanenv.ReadEnv(&config); err != nil {
		return err
	}

	return nil
}
