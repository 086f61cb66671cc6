package unblocker

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoURL is returned by a Descriptor that cannot report its URL.
var ErrNoURL = errors.New("descriptor has no url")

// Descriptor is a request object whose URL cannot be changed in place.
// WithURL returns a copy carrying every other field of the original.
type Descriptor interface {
	URL() string
	WithURL(rawURL string) (Descriptor, error)
}

// Resource is the first argument of a fetch call: a URL string or a
// request descriptor.
type Resource struct {
	URL        string
	Descriptor Descriptor
}

// FetchFunc starts a request. init carries the optional request options,
// which the interceptor never touches.
type FetchFunc func(res Resource, init any) (any, error)

// WrapFetch returns a FetchFunc that rewrites the resource URL before calling
// orig.
func WrapFetch(n *Normalizer, orig FetchFunc) FetchFunc {
	return func(res Resource, init any) (any, error) {
		return orig(n.fixResource(res), init)
	}
}

func (n *Normalizer) fixResource(res Resource) Resource {
	if res.Descriptor == nil {
		res.URL = n.FixURL(res.URL)
		return res
	}

	r := n.Rewrite(res.Descriptor.URL())
	if !r.Changed() {
		return res
	}
	clone, err := res.Descriptor.WithURL(r.Value)
	if err != nil || clone == nil {
		return res
	}
	return Resource{Descriptor: clone}
}

// OpenArgs are the arguments of a request object's open call. A nil Async
// means the caller omitted it.
type OpenArgs struct {
	Method   string
	URL      string
	Async    *bool
	User     *string
	Password *string
}

// Requester is a request object as seen by the interceptor.
type Requester interface {
	Open(args OpenArgs) error
}

// RequesterFactory constructs request objects.
type RequesterFactory func() (Requester, error)

// WrapRequester returns a factory whose request objects rewrite the URL given
// to Open. An omitted async flag becomes true; every other argument passes
// through untouched.
func WrapRequester(n *Normalizer, orig RequesterFactory) RequesterFactory {
	return func() (Requester, error) {
		r, err := orig()
		if err != nil {
			return nil, err
		}
		return &fixedRequester{n: n, Requester: r}, nil
	}
}

type fixedRequester struct {
	Requester
	n *Normalizer
}

func (r *fixedRequester) Open(args OpenArgs) error {
	args.URL = r.n.FixURL(args.URL)
	if args.Async == nil {
		async := true
		args.Async = &async
	}
	return r.Requester.Open(args)
}

// Unwrap returns the underlying request object.
func (r *fixedRequester) Unwrap() Requester {
	return r.Requester
}

// SocketFunc opens a realtime socket.
type SocketFunc func(rawURL string, protocols []string) (any, error)

// WrapSocket returns a SocketFunc that routes ws:// and wss:// URLs through
// the proxy. Other URLs, and any URL the rewrite fails on, are passed to orig
// unchanged.
func WrapSocket(n *Normalizer, orig SocketFunc) SocketFunc {
	return func(rawURL string, protocols []string) (any, error) {
		return orig(n.FixSocketURL(rawURL), protocols)
	}
}

// FixSocketURL rewrites a ws:// or wss:// URL. It returns rawURL when the URL
// is not a realtime URL or cannot be rewritten.
func (n *Normalizer) FixSocketURL(rawURL string) string {
	fixed, err := n.fixSocketURL(rawURL)
	if err != nil {
		return rawURL
	}
	return fixed
}

func (n *Normalizer) fixSocketURL(rawURL string) (string, error) {
	trimmed := cleanURLString(rawURL)
	httpForm, ok := toHTTPScheme(trimmed)
	if !ok {
		return "", fmt.Errorf("not a realtime url: %s", rawURL)
	}

	r := n.Rewrite(httpForm)
	if !r.Changed() {
		return "", fmt.Errorf("socket url left unchanged: %s", r.Outcome)
	}

	target := strings.TrimPrefix(r.Value, n.cfg.Prefix)
	wsTarget, ok := toSocketScheme(target)
	if !ok {
		return "", fmt.Errorf("unexpected rewritten target: %s", target)
	}

	prefix, err := n.socketPrefix()
	if err != nil {
		return "", err
	}
	return prefix + wsTarget, nil
}

// socketPrefix is the proxy prefix spelled with a realtime scheme. A relative
// prefix stays relative unless the proxy origin is known.
func (n *Normalizer) socketPrefix() (string, error) {
	prefix := n.cfg.Prefix
	if strings.HasPrefix(prefix, "/") {
		if n.cfg.Origin == "" {
			return prefix, nil
		}
		origin, ok := toSocketScheme(n.cfg.Origin)
		if !ok {
			return "", fmt.Errorf("origin '%s' is not http(s)", n.cfg.Origin)
		}
		return origin + prefix, nil
	}

	if _, err := url.Parse(prefix); err != nil {
		return "", fmt.Errorf("error parsing prefix '%s': %w", prefix, err)
	}
	if ws, ok := toSocketScheme(prefix); ok {
		return ws, nil
	}
	return prefix, nil
}

// toHTTPScheme maps ws: to http: and wss: to https:.
func toHTTPScheme(s string) (string, bool) {
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "wss:"):
		return "https:" + s[len("wss:"):], true
	case strings.HasPrefix(lower, "ws:"):
		return "http:" + s[len("ws:"):], true
	}
	return "", false
}

// toSocketScheme maps https: to wss: and http: to ws:.
func toSocketScheme(s string) (string, bool) {
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "https:"):
		return "wss:" + s[len("https:"):], true
	case strings.HasPrefix(lower, "http:"):
		return "ws:" + s[len("http:"):], true
	}
	return "", false
}
