//go:build js && wasm

package jshost

import (
	"errors"
	"os"
	"syscall/js"

	"github.com/rs/zerolog"

	"github.com/andesco/unblocker/pkg/unblocker"
)

// DebugGlobal names the normalizer exposed on window in debug mode.
const DebugGlobal = "__unblockerFixUrl"

// Start reads the injected configuration and installs the engine on window.
// A page without configuration gets nothing installed.
func Start(window js.Value) (*unblocker.Engine, error) {
	cfg, err := LoadConfig(window)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if cfg.Debug {
		logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "unblocker").Logger().Level(zerolog.DebugLevel)
	}

	engine, err := unblocker.Install(cfg, NewHost(window, logger), unblocker.WithLogger(logger))
	if engine == nil {
		return nil, err
	}
	if err != nil {
		logger.Warn().Err(err).Msg("some interceptors were left unwrapped")
	}

	if cfg.Debug {
		window.Set(DebugGlobal, js.FuncOf(func(this js.Value, args []js.Value) any {
			return engine.FixURL(jsString(arg(args, 0)))
		}))
	}
	return engine, nil
}

// IsDisabled reports whether err only means the page carried no usable
// configuration.
func IsDisabled(err error) bool {
	return errors.Is(err, unblocker.ErrDisabled)
}
