//go:build js && wasm

package jshost

import (
	"fmt"
	"syscall/js"

	"github.com/rs/zerolog"

	"github.com/andesco/unblocker/pkg/unblocker"
)

// NewHost binds the page APIs found on window. APIs the page does not have
// are left as nil hooks and skipped by unblocker.Install.
func NewHost(window js.Value, logger zerolog.Logger) unblocker.Host {
	b := newBinder(logger)
	doc := window.Get("document")
	history := window.Get("history")

	host := unblocker.Host{
		Fetch:         &fetchHook{b: b, owner: window},
		Requester:     &requesterHook{b: b, owner: window},
		CreateElement: &createElementHook{b: b, doc: doc},
		PushState:     &stateHook{b: b, history: history, name: "pushState"},
		ReplaceState:  &stateHook{b: b, history: history, name: "replaceState"},
		Socket:        &socketHook{b: b, owner: window},
	}

	if ctor := window.Get("MutationObserver"); isFunction(ctor) {
		host.Observer = &observer{ctor: ctor, b: b}
	}
	if !isNullish(doc) {
		if root, ok := newElement(doc.Get("documentElement"), b); ok {
			host.Root = root
		}
	}
	return host
}

// lookup returns owner[name] when it is a function.
func lookup(owner js.Value, name string) (js.Value, bool) {
	if isNullish(owner) {
		return js.Undefined(), false
	}
	fn := owner.Get(name)
	return fn, isFunction(fn)
}

type fetchHook struct {
	b     *binder
	owner js.Value
	orig  js.Value
}

func (h *fetchHook) Original() (unblocker.FetchFunc, bool) {
	orig, ok := lookup(h.owner, "fetch")
	if !ok {
		return nil, false
	}
	h.orig = orig
	return func(res unblocker.Resource, init any) (any, error) {
		var input any = res.URL
		if d, ok := res.Descriptor.(*requestDescriptor); ok {
			input = d.v
		}
		return call(orig, js.Undefined(), input, toValue(init))
	}, true
}

func (h *fetchHook) Replace(wrapped unblocker.FetchFunc) error {
	fn := h.b.wrap("fetch", h.orig, func(this js.Value, args []js.Value) (js.Value, error) {
		res, ok := resourceOf(arg(args, 0))
		if !ok {
			return call(h.orig, this, anyArgs(args)...)
		}
		out, err := wrapped(res, arg(args, 1))
		if err != nil {
			return js.Undefined(), err
		}
		v, _ := out.(js.Value)
		return v, nil
	})
	return setProperty(h.owner, "fetch", fn)
}

// resourceOf classifies the first fetch argument. Anything other than a
// string, a URL object or a Request is passed through untouched.
func resourceOf(v js.Value) (unblocker.Resource, bool) {
	switch v.Type() {
	case js.TypeString:
		return unblocker.Resource{URL: v.String()}, true
	case js.TypeObject:
		if ctor := js.Global().Get("Request"); isFunction(ctor) && v.InstanceOf(ctor) {
			return unblocker.Resource{Descriptor: &requestDescriptor{v: v}}, true
		}
		if ctor := js.Global().Get("URL"); isFunction(ctor) && v.InstanceOf(ctor) {
			return unblocker.Resource{URL: v.Get("href").String()}, true
		}
	}
	return unblocker.Resource{}, false
}

// requestDescriptor adapts a Request object. Its url is read-only, so
// WithURL builds a new Request from the old one.
type requestDescriptor struct {
	v js.Value
}

func (d *requestDescriptor) URL() string {
	return jsString(d.v.Get("url"))
}

func (d *requestDescriptor) WithURL(rawURL string) (unblocker.Descriptor, error) {
	v, err := construct(js.Global().Get("Request"), rawURL, d.v)
	if err != nil {
		return nil, fmt.Errorf("error cloning request: %w", err)
	}
	return &requestDescriptor{v: v}, nil
}

type requesterHook struct {
	b     *binder
	owner js.Value
	ctor  js.Value
}

func (h *requesterHook) Original() (unblocker.RequesterFactory, bool) {
	ctor, ok := lookup(h.owner, "XMLHttpRequest")
	if !ok {
		return nil, false
	}
	h.ctor = ctor
	return func() (unblocker.Requester, error) {
		v, err := construct(ctor)
		if err != nil {
			return nil, err
		}
		return &xhr{v: v, open: v.Get("open")}, nil
	}, true
}

func (h *requesterHook) Replace(wrapped unblocker.RequesterFactory) error {
	const key = "requester"
	nativeOpen := js.Undefined()
	if proto := h.ctor.Get("prototype"); !isNullish(proto) {
		nativeOpen = proto.Get("open")
	}
	// one open shared by every instance; the Requester is found through this
	open := h.b.wrap("XMLHttpRequest.open", nativeOpen, func(this js.Value, args []js.Value) (js.Value, error) {
		r, ok := h.b.objects.get(this, key).(unblocker.Requester)
		if !ok {
			return js.Undefined(), fmt.Errorf("no requester bound to this object")
		}
		return js.Undefined(), r.Open(openArgs(args))
	})

	ctor := h.b.wrap("XMLHttpRequest", h.ctor, func(this js.Value, args []js.Value) (js.Value, error) {
		r, err := wrapped()
		if err != nil {
			return js.Undefined(), err
		}
		inner, ok := unwrap(r).(*xhr)
		if !ok {
			return js.Undefined(), fmt.Errorf("unexpected request object %T", r)
		}
		if err := h.b.objects.set(inner.v, key, r); err != nil {
			return js.Undefined(), err
		}
		if err := setProperty(inner.v, "open", open); err != nil {
			return js.Undefined(), err
		}
		return inner.v, nil
	})
	copyStatics(ctor, h.ctor, "UNSENT", "OPENED", "HEADERS_RECEIVED", "LOADING", "DONE")
	return setProperty(h.owner, "XMLHttpRequest", ctor)
}

func unwrap(r unblocker.Requester) unblocker.Requester {
	for {
		u, ok := r.(interface{ Unwrap() unblocker.Requester })
		if !ok {
			return r
		}
		r = u.Unwrap()
	}
}

type xhr struct {
	v    js.Value
	open js.Value
}

func (x *xhr) Open(args unblocker.OpenArgs) error {
	callArgs := []any{args.Method, args.URL}
	if args.Async != nil {
		callArgs = append(callArgs, *args.Async)
	}
	if args.User != nil {
		callArgs = append(callArgs, *args.User)
		if args.Password != nil {
			callArgs = append(callArgs, *args.Password)
		}
	}
	_, err := call(x.open, x.v, callArgs...)
	return err
}

func openArgs(args []js.Value) unblocker.OpenArgs {
	oa := unblocker.OpenArgs{
		Method: jsString(arg(args, 0)),
		URL:    jsString(arg(args, 1)),
	}
	if a := arg(args, 2); !a.IsUndefined() {
		async := a.Truthy()
		oa.Async = &async
	}
	if u := arg(args, 3); !isNullish(u) {
		user := jsString(u)
		oa.User = &user
	}
	if p := arg(args, 4); !isNullish(p) {
		pass := jsString(p)
		oa.Password = &pass
	}
	return oa
}

type createElementHook struct {
	b    *binder
	doc  js.Value
	orig js.Value
}

func (h *createElementHook) Original() (unblocker.CreateElementFunc, bool) {
	orig, ok := lookup(h.doc, "createElement")
	if !ok {
		return nil, false
	}
	h.orig = orig
	return func(tag string, opts any) (unblocker.Element, error) {
		v, err := call(orig, h.doc, tag, toValue(opts))
		if err != nil {
			return nil, err
		}
		el, ok := newElement(v, h.b)
		if !ok {
			return nil, fmt.Errorf("createElement(%q) did not return an element", tag)
		}
		return el, nil
	}, true
}

func (h *createElementHook) Replace(wrapped unblocker.CreateElementFunc) error {
	fn := h.b.wrap("createElement", h.orig, func(this js.Value, args []js.Value) (js.Value, error) {
		el, err := wrapped(jsString(arg(args, 0)), arg(args, 1))
		if err != nil {
			return js.Undefined(), err
		}
		return el.(*element).v, nil
	})
	return setProperty(h.doc, "createElement", fn)
}

type stateHook struct {
	b       *binder
	history js.Value
	name    string
	orig    js.Value
}

func (h *stateHook) Original() (unblocker.StateFunc, bool) {
	orig, ok := lookup(h.history, h.name)
	if !ok {
		return nil, false
	}
	h.orig = orig
	return func(c unblocker.StateCall) error {
		args := []any{toValue(c.State), c.Title}
		if c.HasURL {
			args = append(args, c.URL)
		}
		_, err := call(orig, h.history, args...)
		return err
	}, true
}

func (h *stateHook) Replace(wrapped unblocker.StateFunc) error {
	fn := h.b.wrap("history."+h.name, h.orig, func(this js.Value, args []js.Value) (js.Value, error) {
		c := unblocker.StateCall{
			State: arg(args, 0),
			Title: jsString(arg(args, 1)),
		}
		if u := arg(args, 2); !isNullish(u) {
			c.URL, c.HasURL = jsString(u), true
		}
		return js.Undefined(), wrapped(c)
	})
	return setProperty(h.history, h.name, fn)
}

type socketHook struct {
	b     *binder
	owner js.Value
	ctor  js.Value
}

func (h *socketHook) Original() (unblocker.SocketFunc, bool) {
	ctor, ok := lookup(h.owner, "WebSocket")
	if !ok {
		return nil, false
	}
	h.ctor = ctor
	return func(rawURL string, protocols []string) (any, error) {
		if protocols == nil {
			return construct(ctor, rawURL)
		}
		list := make([]any, len(protocols))
		for i, p := range protocols {
			list[i] = p
		}
		return construct(ctor, rawURL, list)
	}, true
}

func (h *socketHook) Replace(wrapped unblocker.SocketFunc) error {
	ctor := h.b.wrap("WebSocket", h.ctor, func(this js.Value, args []js.Value) (js.Value, error) {
		out, err := wrapped(jsString(arg(args, 0)), protocolsOf(arg(args, 1)))
		if err != nil {
			return js.Undefined(), err
		}
		v, _ := out.(js.Value)
		return v, nil
	})
	copyStatics(ctor, h.ctor, "CONNECTING", "OPEN", "CLOSING", "CLOSED")
	return setProperty(h.owner, "WebSocket", ctor)
}

func protocolsOf(v js.Value) []string {
	switch {
	case isNullish(v):
		return nil
	case v.Type() == js.TypeString:
		return []string{v.String()}
	case js.Global().Get("Array").Call("isArray", v).Bool():
		out := make([]string, v.Length())
		for i := range out {
			out[i] = jsString(v.Index(i))
		}
		return out
	}
	return []string{jsString(v)}
}

func anyArgs(args []js.Value) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}
