//go:build js && wasm

package jshost

import (
	"errors"
	"fmt"
	"syscall/js"

	"github.com/rs/zerolog"

	"github.com/andesco/unblocker/pkg/unblocker"
)

// callback is a Go implementation of a page-visible function.
type callback func(this js.Value, args []js.Value) (js.Value, error)

// trampoline turns the {value, threw, error, fallback} record returned by a Go
// callback into ordinary JS behaviour. A panic inside js.FuncOf would take
// the whole Go program down, so exceptions are rethrown from JS instead, and
// a failed interceptor hands the call to the native function.
const trampolineSource = `
return function() {
	var r = fn.apply(this, arguments);
	if (r.fallback) {
		if (typeof orig !== "function") return undefined;
		return new.target ? Reflect.construct(orig, arguments) : orig.apply(this, arguments);
	}
	if (r.threw) {
		throw r.error;
	}
	return r.value;
};`

type binder struct {
	trampoline js.Value
	logger     zerolog.Logger
	objects    *objectStates
	accessors  map[string]accessor
}

// accessor is the get/set pair shared by every element carrying a tracked
// attribute of one name.
type accessor struct {
	get js.Value
	set js.Value
}

func newBinder(logger zerolog.Logger) *binder {
	return &binder{
		trampoline: js.Global().Get("Function").New("fn", "orig", trampolineSource),
		logger:     logger,
		objects:    newObjectStates(),
		accessors:  make(map[string]accessor),
	}
}

// wrap exposes fn to page code. orig is called instead whenever fn fails for
// any reason other than an exception thrown by the page's own APIs.
// Every call allocates a js.Func that lives as long as the program, so wrap
// is only used for a bounded set of functions.
func (b *binder) wrap(name string, orig js.Value, fn callback) js.Value {
	goFn := js.FuncOf(func(this js.Value, args []js.Value) any {
		result := js.Global().Get("Object").New()

		v, err := guard(func() (js.Value, error) { return fn(this, args) })
		var jsErr js.Error
		switch {
		case err == nil:
			result.Set("value", v)
		case errors.As(err, &jsErr):
			result.Set("threw", true)
			result.Set("error", jsErr.Value)
		default:
			b.logger.Debug().Err(err).Str("api", name).Msg("falling back to original")
			result.Set("fallback", true)
		}
		return result
	})
	return b.trampoline.Invoke(goFn, orig)
}

// guard runs fn, turning panics into errors. JS exceptions keep their
// js.Error type so they can be rethrown unchanged.
func guard(fn func() (js.Value, error)) (v js.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = js.Undefined()
			switch e := r.(type) {
			case js.Error:
				err = e
			case error:
				err = fmt.Errorf("panic: %w", e)
			default:
				err = fmt.Errorf("panic: %v", r)
			}
		}
	}()
	return fn()
}

// call invokes a JS function, returning thrown exceptions as js.Error.
func call(fn js.Value, this js.Value, args ...any) (js.Value, error) {
	return guard(func() (js.Value, error) {
		return fn.Call("call", append([]any{this}, args...)...), nil
	})
}

func construct(ctor js.Value, args ...any) (js.Value, error) {
	return guard(func() (js.Value, error) {
		return ctor.New(args...), nil
	})
}

func isFunction(v js.Value) bool {
	return v.Type() == js.TypeFunction
}

func isNullish(v js.Value) bool {
	return v.IsUndefined() || v.IsNull()
}

// jsString converts v the way a DOM setter would; null and undefined become
// the empty string.
func jsString(v js.Value) string {
	switch v.Type() {
	case js.TypeString:
		return v.String()
	case js.TypeUndefined, js.TypeNull:
		return ""
	}
	s, err := guard(func() (js.Value, error) {
		return js.Global().Call("String", v), nil
	})
	if err != nil {
		return ""
	}
	return s.String()
}

func arg(args []js.Value, i int) js.Value {
	if i < len(args) {
		return args[i]
	}
	return js.Undefined()
}

// toValue turns a pass-through argument back into something js.ValueOf
// accepts.
func toValue(v any) any {
	if v == nil {
		return js.Undefined()
	}
	return v
}

// setProperty assigns obj[name] = v and checks that the assignment stuck.
func setProperty(obj js.Value, name string, v js.Value) error {
	_, err := guard(func() (js.Value, error) {
		obj.Set(name, v)
		return js.Undefined(), nil
	})
	if err != nil {
		return err
	}
	if !obj.Get(name).Equal(v) {
		return fmt.Errorf("%s is not writable", name)
	}
	return nil
}

// copyStatics copies the named static properties and the prototype of ctor
// onto its replacement, so instanceof checks and constants keep working.
func copyStatics(dst, ctor js.Value, names ...string) {
	_, _ = guard(func() (js.Value, error) {
		dst.Set("prototype", ctor.Get("prototype"))
		for _, name := range names {
			dst.Set(name, ctor.Get(name))
		}
		return js.Undefined(), nil
	})
}

// accessor returns the shared get/set pair for name. The element-specific
// unblocker.Property is looked up through this.
func (b *binder) accessor(name string) accessor {
	if a, ok := b.accessors[name]; ok {
		return a
	}
	key := "property:" + name
	a := accessor{
		get: b.wrap(name, js.Undefined(), func(this js.Value, args []js.Value) (js.Value, error) {
			p, ok := b.objects.get(this, key).(unblocker.Property)
			if !ok {
				return js.Undefined(), nil
			}
			return js.ValueOf(p.Get()), nil
		}),
		set: b.wrap(name, js.Undefined(), func(this js.Value, args []js.Value) (js.Value, error) {
			p, ok := b.objects.get(this, key).(unblocker.Property)
			if !ok {
				return js.Undefined(), fmt.Errorf("no %s accessor bound to this object", name)
			}
			return js.Undefined(), p.Set(jsString(arg(args, 0)))
		}),
	}
	b.accessors[name] = a
	return a
}

// objectStates attaches Go values to JS objects. Objects are keyed through a
// WeakMap and their entries are dropped by a FinalizationRegistry once the
// object is collected. Without FinalizationRegistry entries are kept.
type objectStates struct {
	ids      js.Value
	registry js.Value
	next     int
	values   map[int]map[string]any
}

func newObjectStates() *objectStates {
	o := &objectStates{
		ids:      js.Global().Get("WeakMap").New(),
		registry: js.Undefined(),
		values:   make(map[int]map[string]any),
	}
	if ctor := js.Global().Get("FinalizationRegistry"); isFunction(ctor) {
		release := js.FuncOf(func(this js.Value, args []js.Value) any {
			if id := arg(args, 0); id.Type() == js.TypeNumber {
				delete(o.values, id.Int())
			}
			return nil
		})
		o.registry = ctor.New(release)
	}
	return o
}

func (o *objectStates) id(obj js.Value) (int, bool) {
	if obj.Type() != js.TypeObject && obj.Type() != js.TypeFunction {
		return 0, false
	}
	v := o.ids.Call("get", obj)
	if v.Type() != js.TypeNumber {
		return 0, false
	}
	return v.Int(), true
}

func (o *objectStates) set(obj js.Value, key string, value any) error {
	if id, ok := o.id(obj); ok {
		o.values[id][key] = value
		return nil
	}
	_, err := guard(func() (js.Value, error) {
		o.next++
		o.ids.Call("set", obj, o.next)
		if !o.registry.IsUndefined() {
			o.registry.Call("register", obj, o.next)
		}
		return js.Undefined(), nil
	})
	if err != nil {
		return err
	}
	o.values[o.next] = map[string]any{key: value}
	return nil
}

func (o *objectStates) get(obj js.Value, key string) any {
	id, ok := o.id(obj)
	if !ok {
		return nil
	}
	return o.values[id][key]
}
