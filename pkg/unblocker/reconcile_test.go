package unblocker

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilerConvergence(t *testing.T) {
	n := newTestNormalizer(t, "/proxy/", "https://example.com/")
	r := NewReconciler(n, zerolog.Nop())

	root := newFakeElement("html")
	obs := &fakeObserver{}
	require.NoError(t, r.Attach(obs, root))

	assert.Same(t, root, obs.root)
	assert.True(t, obs.opts.Subtree)
	assert.True(t, obs.opts.Attributes)
	assert.True(t, obs.opts.ChildList)
	assert.Equal(t, []string{"src", "href", "poster"}, obs.opts.AttributeFilter)

	img := newFakeElement("img")
	img.attrs["src"] = "https://cdn.test/a.png" // set outside any interceptor

	obs.callback([]MutationRecord{{Type: MutationAttributes, Target: img, AttributeName: "src"}})
	assert.Equal(t, "/proxy/https://cdn.test/a.png", img.attrs["src"])
	assert.Equal(t, 1, img.writes)

	// the write-back produces another record; it must not write again
	for i := 0; i < 3; i++ {
		obs.callback([]MutationRecord{{Type: MutationAttributes, Target: img, AttributeName: "src"}})
	}
	assert.Equal(t, 1, img.writes)
	assert.Equal(t, "/proxy/https://cdn.test/a.png", img.attrs["src"])
}

func TestReconcileSkips(t *testing.T) {
	n := newTestNormalizer(t, "/proxy/", "https://example.com/")
	r := NewReconciler(n, zerolog.Nop())

	el := newFakeElement("a")
	el.attrs["href"] = "mailto:me@example.com"
	el.attrs["title"] = "https://example.com/"
	el.attrs["poster"] = ""

	count := r.Reconcile([]MutationRecord{
		{Type: MutationAttributes, Target: el, AttributeName: "href"},
		{Type: MutationAttributes, Target: el, AttributeName: "title"},
		{Type: MutationAttributes, Target: el, AttributeName: "poster"},
		{Type: MutationAttributes, Target: el, AttributeName: "src"},
		{Type: MutationAttributes, Target: nil, AttributeName: "src"},
		{Type: "characterData", Target: el},
	})
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, el.writes)
}

func TestReconcileChildList(t *testing.T) {
	n := newTestNormalizer(t, "/proxy/", "https://example.com/dir/")
	r := NewReconciler(n, zerolog.Nop())

	link := newFakeElement("link")
	link.attrs["href"] = "style.css"
	img := newFakeElement("img")
	img.attrs["src"] = "/proxy/https://example.com/already.png"
	section := newFakeElement("section")
	section.children = []Element{link, img}

	count := r.Reconcile([]MutationRecord{{Type: MutationChildList, AddedNodes: []Element{section}}})
	assert.Equal(t, 1, count)
	assert.Equal(t, "/proxy/https://example.com/dir/style.css", link.attrs["href"])
	assert.Equal(t, 0, img.writes)
}

func TestReconcileWriteFailure(t *testing.T) {
	n := newTestNormalizer(t, "/proxy/", "https://example.com/")
	r := NewReconciler(n, zerolog.Nop())

	el := newFakeElement("iframe")
	el.attrs["src"] = "/embed"
	el.setErr = errReadOnly

	assert.Equal(t, 0, r.Reconcile([]MutationRecord{{Type: MutationAttributes, Target: el, AttributeName: "src"}}))
	assert.Equal(t, "/embed", el.attrs["src"])
}

func TestReconcilerCustomNames(t *testing.T) {
	n := newTestNormalizer(t, "/proxy/", "https://example.com/")
	r := NewReconciler(n, zerolog.Nop(), "data-src")

	el := newFakeElement("img")
	el.attrs["data-src"] = "/lazy.png"
	el.attrs["src"] = "/eager.png"

	assert.Equal(t, 1, r.Sweep(el))
	assert.Equal(t, "/proxy/https://example.com/lazy.png", el.attrs["data-src"])
	assert.Equal(t, "/eager.png", el.attrs["src"])
}
