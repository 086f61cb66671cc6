package unblocker

// TrackedAttributes are the URL-bearing names handled by default.
var TrackedAttributes = []string{"src", "href", "poster"}

// Property is an accessor pair on an element. A nil Get or Set means the
// accessor is missing.
type Property struct {
	Get          func() string
	Set          func(value string) error
	Enumerable   bool
	Configurable bool
}

// Element is the slice of a DOM element the engine works with.
type Element interface {
	TagName() string
	GetAttribute(name string) (string, bool)
	SetAttribute(name, value string) error
	Children() []Element
	// Property returns the native accessor for name, if the element
	// exposes one.
	Property(name string) (Property, bool)
	DefineProperty(name string, p Property) error
}

// CreateElementFunc creates an element. opts is passed through untouched.
type CreateElementFunc func(tag string, opts any) (Element, error)

// WrapCreateElement returns a CreateElementFunc whose elements rewrite every
// write to a tracked URL property. Elements created any other way are left
// to the Reconciler.
func WrapCreateElement(n *Normalizer, orig CreateElementFunc, names ...string) CreateElementFunc {
	if len(names) == 0 {
		names = TrackedAttributes
	}
	return func(tag string, opts any) (Element, error) {
		el, err := orig(tag, opts)
		if err != nil || el == nil {
			return el, err
		}
		for _, name := range names {
			native, ok := el.Property(name)
			if !ok {
				continue
			}
			// a failed redefinition leaves the native property in place
			_ = el.DefineProperty(name, fixedProperty(n, el, name, native))
		}
		return el, nil
	}
}

func fixedProperty(n *Normalizer, el Element, name string, native Property) Property {
	var last string
	return Property{
		Get: func() string {
			if native.Get != nil {
				return native.Get()
			}
			return last
		},
		Set: func(value string) error {
			fixed := n.FixURL(value)
			last = fixed
			if native.Set != nil {
				return native.Set(fixed)
			}
			return el.SetAttribute(name, fixed)
		},
		Enumerable:   native.Enumerable,
		Configurable: native.Configurable,
	}
}
