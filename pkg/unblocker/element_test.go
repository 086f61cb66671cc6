package unblocker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapCreateElementScenario(t *testing.T) {
	n := newTestNormalizer(t, "/p/", "https://site.test/")

	create := WrapCreateElement(n, func(tag string, opts any) (Element, error) {
		return newFakeElement(tag, "src"), nil
	})

	el, err := create("img", nil)
	require.NoError(t, err)
	img := el.(*fakeElement)

	img.set(t, "src", "/img/logo.png")
	assert.Equal(t, "/p/https://site.test/img/logo.png", img.get(t, "src"))
	assert.Equal(t, "/p/https://site.test/img/logo.png", img.attrs["src"])
}

func TestWrapCreateElementWithoutNativeAccessors(t *testing.T) {
	n := newTestNormalizer(t, "/p/", "https://site.test/")

	create := WrapCreateElement(n, func(tag string, opts any) (Element, error) {
		el := newFakeElement(tag)
		// exposed but with no accessor functions
		el.native["href"] = Property{Enumerable: false, Configurable: true}
		return el, nil
	})

	el, err := create("a", nil)
	require.NoError(t, err)
	a := el.(*fakeElement)

	a.set(t, "href", "docs/")
	assert.Equal(t, "/p/https://site.test/docs/", a.get(t, "href"), "reads return the last value written")
	assert.Equal(t, "/p/https://site.test/docs/", a.attrs["href"], "written through the attribute")

	p := a.defined["href"]
	assert.False(t, p.Enumerable)
	assert.True(t, p.Configurable)
}

func TestWrapCreateElementTrackedNames(t *testing.T) {
	n := newTestNormalizer(t, "/p/", "https://site.test/")

	var gotOpts any
	create := WrapCreateElement(n, func(tag string, opts any) (Element, error) {
		gotOpts = opts
		switch tag {
		case "video":
			return newFakeElement(tag, "src", "poster"), nil
		default:
			return newFakeElement(tag), nil
		}
	})

	el, err := create("video", map[string]string{"is": "x-player"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"is": "x-player"}, gotOpts)

	video := el.(*fakeElement)
	assert.Contains(t, video.defined, "src")
	assert.Contains(t, video.defined, "poster")
	assert.NotContains(t, video.defined, "href")

	video.set(t, "poster", "data:image/gif;base64,R0lG")
	assert.Equal(t, "data:image/gif;base64,R0lG", video.get(t, "poster"))

	el, err = create("div", nil)
	require.NoError(t, err)
	assert.Empty(t, el.(*fakeElement).defined)
}

func TestWrapCreateElementDefineFailure(t *testing.T) {
	n := newTestNormalizer(t, "/p/", "https://site.test/")

	create := WrapCreateElement(n, func(tag string, opts any) (Element, error) {
		el := newFakeElement(tag, "src")
		el.defErr = errors.New("not configurable")
		return el, nil
	})

	el, err := create("script", nil)
	require.NoError(t, err)

	script := el.(*fakeElement)
	script.set(t, "src", "/app.js")
	assert.Equal(t, "/app.js", script.attrs["src"], "native property stays in place")
}

func TestWrapCreateElementError(t *testing.T) {
	n := newTestNormalizer(t, "/p/", "https://site.test/")
	boom := errors.New("invalid tag")

	create := WrapCreateElement(n, func(tag string, opts any) (Element, error) {
		return nil, boom
	})

	_, err := create("1nvalid", nil)
	assert.ErrorIs(t, err, boom)
}
