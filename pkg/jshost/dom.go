//go:build js && wasm

package jshost

import (
	"fmt"
	"syscall/js"

	"github.com/andesco/unblocker/pkg/unblocker"
)

const elementNode = 1

// element adapts a DOM element to unblocker.Element.
type element struct {
	v js.Value
	b *binder
}

func newElement(v js.Value, b *binder) (*element, bool) {
	if v.Type() != js.TypeObject {
		return nil, false
	}
	if nt := v.Get("nodeType"); nt.Type() != js.TypeNumber || nt.Int() != elementNode {
		return nil, false
	}
	return &element{v: v, b: b}, true
}

func (e *element) TagName() string {
	return jsString(e.v.Get("tagName"))
}

func (e *element) GetAttribute(name string) (string, bool) {
	v, err := guard(func() (js.Value, error) {
		return e.v.Call("getAttribute", name), nil
	})
	if err != nil || isNullish(v) {
		return "", false
	}
	return v.String(), true
}

func (e *element) SetAttribute(name, value string) error {
	_, err := guard(func() (js.Value, error) {
		return e.v.Call("setAttribute", name, value), nil
	})
	return err
}

func (e *element) Children() []unblocker.Element {
	children := e.v.Get("children")
	if isNullish(children) {
		return nil
	}
	n := children.Length()
	out := make([]unblocker.Element, 0, n)
	for i := 0; i < n; i++ {
		if child, ok := newElement(children.Index(i), e.b); ok {
			out = append(out, child)
		}
	}
	return out
}

// Property finds the accessor for name on the element or its prototype chain.
func (e *element) Property(name string) (unblocker.Property, bool) {
	has, err := guard(func() (js.Value, error) {
		return js.Global().Get("Reflect").Call("has", e.v, name), nil
	})
	if err != nil || !has.Bool() {
		return unblocker.Property{}, false
	}

	object := js.Global().Get("Object")
	for obj := e.v; !isNullish(obj); obj = object.Call("getPrototypeOf", obj) {
		desc := object.Call("getOwnPropertyDescriptor", obj, name)
		if isNullish(desc) {
			continue
		}

		p := unblocker.Property{
			Enumerable:   desc.Get("enumerable").Bool(),
			Configurable: desc.Get("configurable").Bool(),
		}
		if get := desc.Get("get"); isFunction(get) {
			p.Get = func() string {
				v, err := call(get, e.v)
				if err != nil {
					return ""
				}
				return jsString(v)
			}
		}
		if set := desc.Get("set"); isFunction(set) {
			p.Set = func(value string) error {
				_, err := call(set, e.v, value)
				return err
			}
		}
		return p, true
	}
	return unblocker.Property{}, false
}

// DefineProperty installs p as an own accessor on the element.
func (e *element) DefineProperty(name string, p unblocker.Property) error {
	if p.Get == nil || p.Set == nil {
		return fmt.Errorf("accessor for %s is incomplete", name)
	}

	if err := e.b.objects.set(e.v, "property:"+name, p); err != nil {
		return err
	}

	a := e.b.accessor(name)
	desc := js.Global().Get("Object").New()
	desc.Set("enumerable", p.Enumerable)
	desc.Set("configurable", p.Configurable)
	desc.Set("get", a.get)
	desc.Set("set", a.set)

	_, err := guard(func() (js.Value, error) {
		return js.Global().Get("Object").Call("defineProperty", e.v, name, desc), nil
	})
	return err
}

// observer adapts MutationObserver to unblocker.Observer.
type observer struct {
	ctor js.Value
	b    *binder
}

func (o *observer) Observe(root unblocker.Element, opts unblocker.ObserveOptions, cb func([]unblocker.MutationRecord)) error {
	el, ok := root.(*element)
	if !ok {
		return fmt.Errorf("root is not a DOM element")
	}

	handler := o.b.wrap("MutationObserver", js.Undefined(), func(this js.Value, args []js.Value) (js.Value, error) {
		cb(o.records(arg(args, 0)))
		return js.Undefined(), nil
	})
	obs, err := construct(o.ctor, handler)
	if err != nil {
		return err
	}

	filter := make([]any, len(opts.AttributeFilter))
	for i, name := range opts.AttributeFilter {
		filter[i] = name
	}
	init := js.ValueOf(map[string]any{
		"subtree":         opts.Subtree,
		"attributes":      opts.Attributes,
		"childList":       opts.ChildList,
		"attributeFilter": filter,
	})
	_, err = guard(func() (js.Value, error) {
		return obs.Call("observe", el.v, init), nil
	})
	return err
}

func (o *observer) records(list js.Value) []unblocker.MutationRecord {
	if isNullish(list) {
		return nil
	}
	n := list.Length()
	out := make([]unblocker.MutationRecord, 0, n)
	for i := 0; i < n; i++ {
		rec := list.Index(i)
		mr := unblocker.MutationRecord{
			Type:          jsString(rec.Get("type")),
			AttributeName: jsString(rec.Get("attributeName")),
		}
		if target, ok := newElement(rec.Get("target"), o.b); ok {
			mr.Target = target
		}
		if added := rec.Get("addedNodes"); !isNullish(added) {
			for j := 0; j < added.Length(); j++ {
				if node, ok := newElement(added.Index(j), o.b); ok {
					mr.AddedNodes = append(mr.AddedNodes, node)
				}
			}
		}
		out = append(out, mr)
	}
	return out
}
