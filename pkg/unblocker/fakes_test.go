package unblocker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestNormalizer(t *testing.T, prefix, base string) *Normalizer {
	t.Helper()
	cfg, err := NewConfig(prefix, base)
	require.NoError(t, err)
	return NewNormalizer(cfg)
}

// fakeElement behaves like a DOM element whose native URL properties reflect
// the underlying attribute.
type fakeElement struct {
	tag      string
	attrs    map[string]string
	children []Element
	native   map[string]Property
	defined  map[string]Property
	writes   int
	defErr   error
	setErr   error
}

func newFakeElement(tag string, props ...string) *fakeElement {
	el := &fakeElement{
		tag:     tag,
		attrs:   map[string]string{},
		native:  map[string]Property{},
		defined: map[string]Property{},
	}
	for _, name := range props {
		name := name
		el.native[name] = Property{
			Get:          func() string { return el.attrs[name] },
			Set:          func(v string) error { return el.SetAttribute(name, v) },
			Enumerable:   true,
			Configurable: true,
		}
	}
	return el
}

func (e *fakeElement) TagName() string { return e.tag }

func (e *fakeElement) GetAttribute(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *fakeElement) SetAttribute(name, value string) error {
	if e.setErr != nil {
		return e.setErr
	}
	e.writes++
	e.attrs[name] = value
	return nil
}

func (e *fakeElement) Children() []Element { return e.children }

func (e *fakeElement) Property(name string) (Property, bool) {
	if p, ok := e.defined[name]; ok {
		return p, true
	}
	p, ok := e.native[name]
	return p, ok
}

func (e *fakeElement) DefineProperty(name string, p Property) error {
	if e.defErr != nil {
		return e.defErr
	}
	e.defined[name] = p
	return nil
}

// set assigns through the currently visible property, like `el[name] = v`.
func (e *fakeElement) set(t *testing.T, name, value string) {
	t.Helper()
	p, ok := e.Property(name)
	require.True(t, ok, "no property %s", name)
	require.NoError(t, p.Set(value))
}

func (e *fakeElement) get(t *testing.T, name string) string {
	t.Helper()
	p, ok := e.Property(name)
	require.True(t, ok, "no property %s", name)
	return p.Get()
}

// fakeObserver hands the registered callback back to the test.
type fakeObserver struct {
	root     Element
	opts     ObserveOptions
	callback func([]MutationRecord)
	err      error
}

func (o *fakeObserver) Observe(root Element, opts ObserveOptions, cb func([]MutationRecord)) error {
	if o.err != nil {
		return o.err
	}
	o.root, o.opts, o.callback = root, opts, cb
	return nil
}

type fakeDescriptor struct {
	url    string
	method string
	err    error
}

func (d *fakeDescriptor) URL() string { return d.url }

func (d *fakeDescriptor) WithURL(rawURL string) (Descriptor, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &fakeDescriptor{url: rawURL, method: d.method}, nil
}

type fakeRequester struct {
	opened []OpenArgs
}

func (r *fakeRequester) Open(args OpenArgs) error {
	r.opened = append(r.opened, args)
	return nil
}

// slot is an in-memory Hook.
type slot[T any] struct {
	value    T
	present  bool
	replaced bool
	err      error
	panics   bool
}

func present[T any](v T) *slot[T] {
	return &slot[T]{value: v, present: true}
}

func (s *slot[T]) Original() (T, bool) { return s.value, s.present }

func (s *slot[T]) Replace(v T) error {
	if s.panics {
		panic("read-only property")
	}
	if s.err != nil {
		return s.err
	}
	s.value = v
	s.replaced = true
	return nil
}

var errReadOnly = errors.New("read-only")
