package unblocker

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Hook gives the engine access to one host API: the original
// implementation, and a way to swap in the wrapper.
type Hook[T any] interface {
	Original() (T, bool)
	Replace(T) error
}

// Host lists the page APIs the engine intercepts. A nil hook, or one whose
// Original reports false, is skipped.
type Host struct {
	Fetch         Hook[FetchFunc]
	Requester     Hook[RequesterFactory]
	CreateElement Hook[CreateElementFunc]
	PushState     Hook[StateFunc]
	ReplaceState  Hook[StateFunc]
	Socket        Hook[SocketFunc]

	Observer Observer
	Root     Element
}

// Interceptor names, as reported by Engine.Installed.
const (
	InterceptFetch         = "fetch"
	InterceptRequester     = "xhr"
	InterceptCreateElement = "createElement"
	InterceptPushState     = "pushState"
	InterceptReplaceState  = "replaceState"
	InterceptSocket        = "websocket"
	InterceptReconciler    = "mutationObserver"
)

type options struct {
	logger zerolog.Logger
	names  []string
}

type Option func(*options)

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAttributes overrides the tracked URL attribute names.
func WithAttributes(names ...string) Option {
	return func(o *options) { o.names = names }
}

// Engine is an installed set of interceptors.
type Engine struct {
	Normalizer *Normalizer
	Reconciler *Reconciler

	installed []string
	logger    zerolog.Logger
}

// Install wraps every available host API. A failure to wrap one API never
// stops the others from being wrapped; the returned error joins all such
// failures and is informational. Install only fails outright when cfg is nil.
func Install(cfg *Config, host Host, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: no configuration", ErrDisabled)
	}

	o := options{logger: zerolog.Nop(), names: TrackedAttributes}
	for _, opt := range opts {
		opt(&o)
	}

	n := NewNormalizer(cfg)
	e := &Engine{
		Normalizer: n,
		Reconciler: NewReconciler(n, o.logger, o.names...),
		logger:     o.logger,
	}

	var errs []error
	collect := func(name string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			e.logger.Debug().Err(err).Str("interceptor", name).Msg("left unwrapped")
			return
		}
		e.installed = append(e.installed, name)
	}

	if orig, ok := original(host.Fetch); ok {
		collect(InterceptFetch, replace(host.Fetch, WrapFetch(n, orig)))
	}
	if orig, ok := original(host.Requester); ok {
		collect(InterceptRequester, replace(host.Requester, WrapRequester(n, orig)))
	}
	if orig, ok := original(host.CreateElement); ok {
		collect(InterceptCreateElement, replace(host.CreateElement, WrapCreateElement(n, orig, o.names...)))
	}
	if orig, ok := original(host.PushState); ok {
		collect(InterceptPushState, replace(host.PushState, WrapState(n, orig, o.logger)))
	}
	if orig, ok := original(host.ReplaceState); ok {
		collect(InterceptReplaceState, replace(host.ReplaceState, WrapState(n, orig, o.logger)))
	}
	if orig, ok := original(host.Socket); ok {
		collect(InterceptSocket, replace(host.Socket, WrapSocket(n, orig)))
	}

	if host.Observer != nil && host.Root != nil {
		if swept := e.Reconciler.Sweep(host.Root); swept > 0 {
			e.logger.Debug().Int("rewritten", swept).Msg("initial sweep")
		}
		collect(InterceptReconciler, e.Reconciler.Attach(host.Observer, host.Root))
	}

	e.logger.Debug().Strs("installed", e.installed).Str("prefix", cfg.Prefix).Str("base", cfg.Base()).Msg("unblocker installed")
	return e, errors.Join(errs...)
}

// Installed lists the interceptors that are active, in install order.
func (e *Engine) Installed() []string {
	return append([]string(nil), e.installed...)
}

// FixURL is a shortcut for e.Normalizer.FixURL.
func (e *Engine) FixURL(raw string) string {
	return e.Normalizer.FixURL(raw)
}

func original[T any](h Hook[T]) (T, bool) {
	var zero T
	if h == nil {
		return zero, false
	}
	return h.Original()
}

func replace[T any](h Hook[T], wrapped T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("replace panicked: %v", r)
		}
	}()
	return h.Replace(wrapped)
}
