package unblocker

import (
	"github.com/rs/zerolog"
)

// StateCall holds the arguments of a history push or replace. HasURL is false
// when the caller omitted the url argument.
type StateCall struct {
	State  any
	Title  string
	URL    string
	HasURL bool
}

// StateFunc is a history mutation entry point.
type StateFunc func(call StateCall) error

// WrapState returns a StateFunc that rewrites the target URL and moves the
// base URL to the real location being navigated to. Bookkeeping failures are
// logged and otherwise ignored; orig always receives the rewritten URL.
func WrapState(n *Normalizer, orig StateFunc, logger zerolog.Logger) StateFunc {
	return func(call StateCall) error {
		if !call.HasURL || call.URL == "" {
			return orig(call)
		}

		r := n.Rewrite(call.URL)
		call.URL = r.Value

		if target, ok := n.Decode(r.Value); ok {
			if err := n.cfg.SetBase(target); err != nil {
				logger.Debug().Err(err).Str("url", target).Msg("base not updated")
			} else {
				logger.Debug().Str("base", target).Msg("base updated")
			}
		} else {
			logger.Debug().Str("url", call.URL).Stringer("outcome", r.Outcome).Msg("navigation target not decodable")
		}

		return orig(call)
	}
}
