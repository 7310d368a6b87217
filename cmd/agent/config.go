package main

import (
	"flag"

	"github.com/ilyakaznacheev/cleanenv"

	configpkg "github.com/devicewatch-io/defender-agent/internal/config"
)

// JSONConfig represents configuration from a JSON file.
type JSONConfig struct {
	Endpoint   string `json:"endpoint"`
	ThingName  string `json:"thing_name"`
	Format     string `json:"format"`
	Period     string `json:"period"`
	Key        string `json:"key"`
	CryptoCert string `json:"crypto_cert"`
	CryptoKey  string `json:"crypto_key"`
	CACert     string `json:"ca_cert"`
	AuditLog   string `json:"audit_log"`
	AuditURL   string `json:"audit_url"`
	LogLevel   string `json:"log_level"`
}

// Config represents the full agent configuration with all sources.
type Config struct {
	Endpoint          string `env:"ENDPOINT"`
	ThingName         string `env:"THING_NAME"`
	Format            string `env:"FORMAT"`
	Period            int    `env:"REPORT_PERIOD"`
	Key               string `env:"KEY"`
	Username          string `env:"DEFENDER_USERNAME"`
	Password          string `env:"DEFENDER_PASSWORD"`
	CryptoCert        string `env:"CRYPTO_CERT"`
	CryptoKey         string `env:"CRYPTO_KEY"`
	CACert            string `env:"CA_CERT"`
	ReportTotal       bool   `env:"REPORT_TOTAL"`
	ReportConnections bool   `env:"REPORT_CONNECTIONS"`
	AuditLog          string `env:"AUDIT_LOG"`
	AuditURL          string `env:"AUDIT_URL"`
	LogLevel          string `env:"LOG_LEVEL"`

	// Internal field for config file path
	configFile string
}

var config = Config{
	Endpoint:          "http://localhost:8080",
	Format:            "json",
	Period:            300,
	ReportTotal:       true,
	ReportConnections: true,
	LogLevel:          "info",
}

// applyConfig applies values from the JSON file with lower priority than
// env and flags: a value is applied only while the current one is still the
// built-in default.
func applyConfig(cfg *JSONConfig) {
	configpkg.ApplyStringIfDefault(&config.Endpoint, "http://localhost:8080", cfg.Endpoint)
	configpkg.ApplyStringIfDefault(&config.ThingName, "", cfg.ThingName)
	configpkg.ApplyStringIfDefault(&config.Format, "json", cfg.Format)
	configpkg.ApplyDurationIfDefault(&config.Period, 300, cfg.Period)
	configpkg.ApplyStringIfDefault(&config.Key, "", cfg.Key)
	configpkg.ApplyStringIfDefault(&config.CryptoCert, "", cfg.CryptoCert)
	configpkg.ApplyStringIfDefault(&config.CryptoKey, "", cfg.CryptoKey)
	configpkg.ApplyStringIfDefault(&config.CACert, "", cfg.CACert)
	configpkg.ApplyStringIfDefault(&config.AuditLog, "", cfg.AuditLog)
	configpkg.ApplyStringIfDefault(&config.AuditURL, "", cfg.AuditURL)
	configpkg.ApplyStringIfDefault(&config.LogLevel, "info", cfg.LogLevel)
}

// Init registers flags and initializes configuration from all sources.
// Priority order (lowest to highest): defaults, JSON config file,
// environment variables, command line flags.
func Init() error {
	flag.StringVar(&config.Endpoint, "a", config.Endpoint, "Detection service endpoint")
	flag.StringVar(&config.ThingName, "t", config.ThingName, "Device thing name (defaults to hostname)")
	flag.StringVar(&config.Format, "f", config.Format, "Report wire format: json or cbor")
	flag.IntVar(&config.Period, "r", config.Period, "Reporting period in seconds")
	flag.StringVar(&config.Key, "k", config.Key, "Key for signing reports")
	flag.StringVar(&config.CryptoCert, "crypto-cert", config.CryptoCert, "Path to client TLS certificate")
	flag.StringVar(&config.CryptoKey, "crypto-key", config.CryptoKey, "Path to client TLS key")
	flag.StringVar(&config.CACert, "ca-cert", config.CACert, "Path to CA certificate")
	flag.BoolVar(&config.ReportTotal, "total", config.ReportTotal, "Report the established connection count")
	flag.BoolVar(&config.ReportConnections, "connections", config.ReportConnections, "Report remote addresses of established connections")
	flag.StringVar(&config.AuditLog, "audit-log", config.AuditLog, "Path to the audit trail file")
	flag.StringVar(&config.AuditURL, "audit-url", config.AuditURL, "URL to POST audit events to")
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
