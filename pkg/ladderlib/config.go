package ladderlib

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the host configuration, read from YAML and overridden by
// environment variables.
type Config struct {
	Port string `yaml:"port"`

	// HTMLPrefix is the route pages are proxied under; it is also the prefix
	// handed to the in-page engine.
	HTMLPrefix string `yaml:"htmlPrefix"`
	// RawPrefix proxies any method without touching the body.
	RawPrefix string `yaml:"rawPrefix"`

	AssetPath string `yaml:"assetPath"`
	AssetDir  string `yaml:"assetDir"`

	Ruleset        string   `yaml:"ruleset"`
	UserAgent      string   `yaml:"userAgent"`
	ForwardedFor   string   `yaml:"forwardedFor"`
	AllowedDomains []string `yaml:"allowedDomains"`
	Timeout        int      `yaml:"timeout"`
	LogURLs        bool     `yaml:"logUrls"`
	EngineDebug    bool     `yaml:"engineDebug"`

	Log LogConfig `yaml:"log"`
}

type LogConfig struct {
	Level  string   `yaml:"level"`
	Writer []string `yaml:"writer"`
	File   string   `yaml:"file"`
}

// NewConfig returns the default configuration.
func NewConfig() Config {
	return Config{
		Port:         "8080",
		HTMLPrefix:   "/htmlproxy/",
		RawPrefix:    "/proxy/",
		AssetPath:    "/unblocker/",
		AssetDir:     "static",
		UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		ForwardedFor: "",
		Timeout:      15,
		Log: LogConfig{
			Level:  "info",
			Writer: []string{"console"},
			File:   "unblocker.log",
		},
	}
}

// LoadConfig reads path (when not empty) over the defaults and applies
// environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := NewConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("syntax error in config file '%s': %w", path, err)
		}
	}

	cfg.Port = getenv("PORT", cfg.Port)
	cfg.HTMLPrefix = getenv("PREFIX", cfg.HTMLPrefix)
	cfg.Ruleset = getenv("RULESET", cfg.Ruleset)
	cfg.UserAgent = getenv("USER_AGENT", cfg.UserAgent)
	cfg.ForwardedFor = getenv("X_FORWARDED_FOR", cfg.ForwardedFor)
	cfg.AssetDir = getenv("ASSET_DIR", cfg.AssetDir)
	if v := os.Getenv("ALLOWED_DOMAINS"); v != "" {
		cfg.AllowedDomains = splitList(v)
	}
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		timeout, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid HTTP_TIMEOUT '%s': %w", v, err)
		}
		cfg.Timeout = timeout
	}
	if os.Getenv("LOG_URLS") == "true" {
		cfg.LogURLs = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	for name, prefix := range map[string]string{"htmlPrefix": c.HTMLPrefix, "rawPrefix": c.RawPrefix, "assetPath": c.AssetPath} {
		if !strings.HasPrefix(prefix, "/") || !strings.HasSuffix(prefix, "/") {
			return fmt.Errorf("%s must start and end with '/': %q", name, prefix)
		}
	}
	if c.HTMLPrefix == c.RawPrefix {
		return fmt.Errorf("htmlPrefix and rawPrefix must differ")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive: %d", c.Timeout)
	}
	return nil
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
