//go:build js && wasm

package jshost

import (
	"fmt"
	"syscall/js"

	"github.com/andesco/unblocker/pkg/unblocker"
)

// ConfigGlobal is the window property the host page sets before the engine
// starts.
const ConfigGlobal = "__UNBLOCKER_CONFIG__"

// LoadConfig reads the injected configuration from window. When the page did
// not provide an origin, the page's own location origin is used.
func LoadConfig(window js.Value) (*unblocker.Config, error) {
	v := window.Get(ConfigGlobal)
	if isNullish(v) {
		return nil, fmt.Errorf("%w: window.%s is not set", unblocker.ErrDisabled, ConfigGlobal)
	}

	raw, err := guard(func() (js.Value, error) {
		return window.Get("JSON").Call("stringify", v), nil
	})
	if err != nil || raw.Type() != js.TypeString {
		return nil, fmt.Errorf("%w: window.%s is not serialisable", unblocker.ErrDisabled, ConfigGlobal)
	}

	cfg, err := unblocker.ParseConfig([]byte(raw.String()))
	if err != nil {
		return nil, err
	}

	if cfg.Origin == "" {
		if origin := window.Get("location").Get("origin"); origin.Type() == js.TypeString && origin.String() != "null" {
			cfg.Origin = origin.String()
		}
	}
	return cfg, nil
}
