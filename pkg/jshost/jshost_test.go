//go:build js && wasm

package jshost

import (
	"syscall/js"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWindowSource builds the slice of window the engine touches. Calls that
// reach the page's own APIs are recorded in window.calls.
const fakeWindowSource = `
var calls = {fetch: [], xhr: [], history: [], sockets: [], observed: null};
function El(tag) { this.tagName = tag.toUpperCase(); this.nodeType = 1; this.attrs = {}; this.children = []; }
El.prototype.getAttribute = function(n) { return n in this.attrs ? this.attrs[n] : null; };
El.prototype.setAttribute = function(n, v) { this.attrs[n] = String(v); };
Object.defineProperty(El.prototype, "src", {
	get: function() { return this.attrs.src || ""; },
	set: function(v) { this.setAttribute("src", v); },
	enumerable: true, configurable: true
});
function XHR() {}
XHR.prototype.open = function(m, u, a) { calls.xhr.push([m, u, a]); };
XHR.DONE = 4;
function WS(u) { calls.sockets.push(u); this.url = u; }
WS.OPEN = 1;
function MO(cb) { this.cb = cb; }
MO.prototype.observe = function(root, init) { calls.observed = init; };
var root = new El("html");
var history = {
	pushState: function(s, t, u) { calls.history.push(u); },
	replaceState: function(s, t, u) { calls.history.push(u); }
};
var win = {
	calls: calls,
	JSON: JSON,
	location: {origin: "https://proxy.test"},
	fetch: function(input) { calls.fetch.push(String(input)); return "response"; },
	XMLHttpRequest: XHR,
	WebSocket: WS,
	MutationObserver: MO,
	history: history,
	document: {documentElement: root, createElement: function(tag) { return new El(tag); }}
};
if (config) win.__UNBLOCKER_CONFIG__ = config;
return win;
`

func newFakeWindow(t *testing.T, config map[string]any) js.Value {
	t.Helper()
	var cfg any = js.Null()
	if config != nil {
		cfg = js.ValueOf(config)
	}
	return js.Global().Get("Function").New("config", fakeWindowSource).Invoke(cfg)
}

func recorded(win js.Value, name string) []string {
	list := win.Get("calls").Get(name)
	out := make([]string, list.Length())
	for i := range out {
		out[i] = jsString(list.Index(i))
	}
	return out
}

func TestStartInstallsEngine(t *testing.T) {
	win := newFakeWindow(t, map[string]any{"prefix": "/p/", "url": "https://site.test/a/page.html"})

	engine, err := Start(win)
	require.NoError(t, err)
	assert.Len(t, engine.Installed(), 7)
	assert.True(t, win.Get(DebugGlobal).IsUndefined(), "nothing extra is exposed outside debug mode")
	assert.False(t, win.Get("calls").Get("observed").IsNull())

	t.Run("fetch", func(t *testing.T) {
		out := win.Call("fetch", "img.png")
		assert.Equal(t, "response", out.String())
		assert.Equal(t, []string{"/p/https://site.test/a/img.png"}, recorded(win, "fetch"))
	})

	t.Run("createElement", func(t *testing.T) {
		doc := win.Get("document")
		img := doc.Call("createElement", "img")
		img.Set("src", "logo.png")
		assert.Equal(t, "/p/https://site.test/a/logo.png", img.Call("getAttribute", "src").String())
		assert.Equal(t, "/p/https://site.test/a/logo.png", img.Get("src").String())

		other := doc.Call("createElement", "script")
		other.Set("src", "https://cdn.test/lib.js")
		assert.Equal(t, "/p/https://cdn.test/lib.js", other.Call("getAttribute", "src").String())

		object := js.Global().Get("Object")
		a := object.Call("getOwnPropertyDescriptor", img, "src")
		b := object.Call("getOwnPropertyDescriptor", other, "src")
		assert.True(t, a.Get("get").Equal(b.Get("get")), "accessors are shared between elements")
		assert.True(t, a.Get("set").Equal(b.Get("set")))
	})

	t.Run("xhr", func(t *testing.T) {
		ctor := win.Get("XMLHttpRequest")
		x := ctor.New()
		y := ctor.New()
		assert.True(t, x.InstanceOf(ctor))
		assert.Equal(t, 4, ctor.Get("DONE").Int())
		assert.True(t, x.Get("open").Equal(y.Get("open")), "open is shared between instances")

		x.Call("open", "GET", "data.json")
		y.Call("open", "POST", "/submit", false)
		calls := win.Get("calls").Get("xhr")
		require.Equal(t, 2, calls.Length())
		assert.Equal(t, "/p/https://site.test/a/data.json", calls.Index(0).Index(1).String())
		assert.True(t, calls.Index(0).Index(2).Bool(), "async defaults to true")
		assert.Equal(t, "/p/https://site.test/submit", calls.Index(1).Index(1).String())
		assert.False(t, calls.Index(1).Index(2).Bool())
	})

	t.Run("websocket", func(t *testing.T) {
		win.Get("WebSocket").New("wss://chat.test/live")
		assert.Equal(t, []string{"wss://proxy.test/p/wss://chat.test/live"}, recorded(win, "sockets"))
	})

	t.Run("history resync", func(t *testing.T) {
		win.Get("history").Call("pushState", js.Null(), "", "/next/")
		assert.Equal(t, []string{"/p/https://site.test/next/"}, recorded(win, "history"))
		assert.Equal(t, "https://site.test/next/", engine.Normalizer.Config().Base())

		win.Call("fetch", "item")
		assert.Equal(t, "/p/https://site.test/next/item", recorded(win, "fetch")[1])
	})
}

func TestStartDebugExposesNormalizer(t *testing.T) {
	win := newFakeWindow(t, map[string]any{"prefix": "/p/", "url": "https://site.test/", "debug": true})

	_, err := Start(win)
	require.NoError(t, err)
	fix := win.Get(DebugGlobal)
	require.Equal(t, js.TypeFunction, fix.Type())
	assert.Equal(t, "/p/https://site.test/x", fix.Invoke("x").String())
}

func TestStartWithoutConfig(t *testing.T) {
	win := newFakeWindow(t, nil)
	fetch := win.Get("fetch")

	engine, err := Start(win)
	assert.Nil(t, engine)
	assert.True(t, IsDisabled(err))
	assert.True(t, win.Get("fetch").Equal(fetch), "page APIs are untouched")
}
