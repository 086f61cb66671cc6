package ladderlib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewConfigIsValid(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.validate())
	assert.Equal(t, "/htmlproxy/", cfg.HTMLPrefix)
	assert.Equal(t, "/proxy/", cfg.RawPrefix)
	assert.Equal(t, []string{"console"}, cfg.Log.Writer)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
port: "9000"
htmlPrefix: /p/
allowedDomains: [example.com]
timeout: 5
engineDebug: true
log:
  level: debug
  writer: [file]
  file: /tmp/unblocker-test.log
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "/p/", cfg.HTMLPrefix)
	assert.Equal(t, "/proxy/", cfg.RawPrefix, "unset keys keep their defaults")
	assert.Equal(t, []string{"example.com"}, cfg.AllowedDomains)
	assert.Equal(t, 5, cfg.Timeout)
	assert.True(t, cfg.EngineDebug)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"file"}, cfg.Log.Writer)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "port: \"9000\"\n")
	t.Setenv("PORT", "7000")
	t.Setenv("PREFIX", "/go/")
	t.Setenv("ALLOWED_DOMAINS", " a.test, ,b.test ")
	t.Setenv("HTTP_TIMEOUT", "30")
	t.Setenv("LOG_URLS", "true")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "/go/", cfg.HTMLPrefix)
	assert.Equal(t, []string{"a.test", "b.test"}, cfg.AllowedDomains)
	assert.Equal(t, 30, cfg.Timeout)
	assert.True(t, cfg.LogURLs)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = LoadConfig(writeConfig(t, "port: [unterminated"))
	assert.ErrorContains(t, err, "syntax error")

	t.Setenv("HTTP_TIMEOUT", "soon")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "invalid HTTP_TIMEOUT")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no leading slash", func(c *Config) { c.HTMLPrefix = "htmlproxy/" }, "htmlPrefix"},
		{"no trailing slash", func(c *Config) { c.RawPrefix = "/proxy" }, "rawPrefix"},
		{"asset path", func(c *Config) { c.AssetPath = "" }, "assetPath"},
		{"same prefixes", func(c *Config) { c.RawPrefix = c.HTMLPrefix }, "must differ"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.validate(), tt.want)
		})
	}
}
