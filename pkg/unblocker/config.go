package unblocker

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// ErrDisabled is returned when the injected configuration is missing a
// required field. The engine installs nothing in that case.
var ErrDisabled = errors.New("unblocker disabled")

// Config is the proxy configuration shared by every interceptor.
// Prefix never changes after construction; the base URL is updated on
// soft navigation through SetBase.
type Config struct {
	Prefix string
	// Origin is the proxy's own origin, e.g. "https://proxy.example".
	// Optional; used for realtime socket URLs when Prefix is relative.
	Origin string
	Debug  bool

	mu   sync.RWMutex
	base *url.URL
}

// NewConfig creates a Config. The base must be an absolute http(s) URL.
func NewConfig(prefix, base string) (*Config, error) {
	if prefix == "" {
		return nil, fmt.Errorf("%w: missing prefix", ErrDisabled)
	}
	if base == "" {
		return nil, fmt.Errorf("%w: missing base url", ErrDisabled)
	}

	c := &Config{Prefix: prefix}
	if err := c.SetBase(base); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDisabled, err)
	}
	return c, nil
}

// ParseConfig reads the configuration object injected into the page.
// The base URL is taken from the first non-empty of "url", "base" and
// "originUrl".
func ParseConfig(raw []byte) (*Config, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: config is not valid json", ErrDisabled)
	}

	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: config is not an object", ErrDisabled)
	}

	var base string
	for _, key := range []string{"url", "base", "originUrl"} {
		if v := doc.Get(key); v.Type == gjson.String && v.Str != "" {
			base = v.Str
			break
		}
	}

	prefix := doc.Get("prefix")
	if prefix.Type != gjson.String {
		return nil, fmt.Errorf("%w: missing prefix", ErrDisabled)
	}

	c, err := NewConfig(prefix.Str, base)
	if err != nil {
		return nil, err
	}
	c.Origin = strings.TrimSuffix(doc.Get("origin").String(), "/")
	c.Debug = doc.Get("debug").Bool()
	return c, nil
}

// Base returns the URL relative references are currently resolved against.
func (c *Config) Base() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.String()
}

func (c *Config) baseURL() *url.URL {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base
}

// SetBase replaces the base URL. It is the only mutation point of Config.
func (c *Config) SetBase(base string) error {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return fmt.Errorf("error parsing base url '%s': %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base url '%s' is not http(s)", base)
	}
	if u.Host == "" {
		return fmt.Errorf("base url '%s' has no host", base)
	}

	c.mu.Lock()
	c.base = u
	c.mu.Unlock()
	return nil
}
