package dispatch

import (
	"bytes"
	"container/list"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/refgate/refgate/internal/protocol"
)

// Catalog is the symbol table behind qualified-name resolution. Types,
// constructor functions, package-level functions ("static" calls) and
// addressable package variables ("static" fields) are registered under the
// qualified names clients use on the wire.
type Catalog struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
	names map[reflect.Type]string
	ctors map[string][]reflect.Value
	funcs map[string]map[string]reflect.Value
	vars  map[string]map[string]reflect.Value
	boxed map[reflect.Kind]map[string]reflect.Value
}

// NewCatalog creates a catalog seeded with a small set of builtin types
// and function namespaces that every gateway exposes.
func NewCatalog() *Catalog {
	c := &Catalog{
		types: make(map[string]reflect.Type),
		names: make(map[reflect.Type]string),
		ctors: make(map[string][]reflect.Value),
		funcs: make(map[string]map[string]reflect.Value),
		vars:  make(map[string]map[string]reflect.Value),
		boxed: make(map[reflect.Kind]map[string]reflect.Value),
	}
	c.registerBuiltins()
	return c
}

func (c *Catalog) registerBuiltins() {
	c.RegisterType("bytes.Buffer", reflect.TypeOf(bytes.Buffer{}))
	c.RegisterConstructor("bytes.Buffer", bytes.NewBufferString)
	c.RegisterType("strings.Builder", reflect.TypeOf(strings.Builder{}))
	c.RegisterType("strings.Reader", reflect.TypeOf(strings.Reader{}))
	c.RegisterConstructor("strings.Reader", strings.NewReader)
	c.RegisterType("container/list.List", reflect.TypeOf(list.List{}))

	c.RegisterFunc("math", "Sqrt", math.Sqrt)
	c.RegisterFunc("math", "Abs", math.Abs)
	c.RegisterFunc("math", "Max", math.Max)
	c.RegisterFunc("math", "Min", math.Min)
	c.RegisterFunc("math", "Pow", math.Pow)

	c.RegisterFunc("strings", "ToUpper", strings.ToUpper)
	c.RegisterFunc("strings", "ToLower", strings.ToLower)
	c.RegisterFunc("strings", "Contains", strings.Contains)
	c.RegisterFunc("strings", "Repeat", strings.Repeat)

	// Boxed-primitive receivers: a character value used as a call target
	// answers these.
	c.RegisterBoxed(reflect.String, "ToUpper", strings.ToUpper)
	c.RegisterBoxed(reflect.String, "ToLower", strings.ToLower)
	c.RegisterBoxed(reflect.String, "Contains", strings.Contains)
	c.RegisterBoxed(reflect.String, "Length", func(s string) int { return len(s) })
}

// RegisterType exposes a type under a qualified name.
func (c *Catalog) RegisterType(name string, t reflect.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[name] = t
	c.names[t] = name
}

// RegisterConstructor adds a constructor function for a type name.
// Several constructors per name form the overload set that nearest-match
// resolution scores.
func (c *Catalog) RegisterConstructor(name string, fn any) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		panic("dispatch: constructor must be a func")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctors[name] = append(c.ctors[name], v)
}

// RegisterFunc exposes a package-level function for type-qualified
// ("static") calls under namespace.name.
func (c *Catalog) RegisterFunc(namespace, name string, fn any) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		panic("dispatch: static entry must be a func")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.funcs[namespace] == nil {
		c.funcs[namespace] = make(map[string]reflect.Value)
	}
	c.funcs[namespace][name] = v
}

// RegisterVar exposes an addressable package variable for type-qualified
// field access. ptr must be a pointer to the variable.
func (c *Catalog) RegisterVar(namespace, name string, ptr any) {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer {
		panic("dispatch: static field must be registered through a pointer")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vars[namespace] == nil {
		c.vars[namespace] = make(map[string]reflect.Value)
	}
	c.vars[namespace][name] = v.Elem()
}

// RegisterBoxed adds a method callable on a bare primitive receiver. The
// function takes the receiver as its first argument.
func (c *Catalog) RegisterBoxed(kind reflect.Kind, name string, fn any) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.Type().NumIn() == 0 {
		panic("dispatch: boxed method must be a func taking the receiver first")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.boxed[kind] == nil {
		c.boxed[kind] = make(map[string]reflect.Value)
	}
	c.boxed[kind][name] = v
}

// LookupType resolves a qualified name, consulting the primitive alias
// table first.
func (c *Catalog) LookupType(name string) (reflect.Type, bool) {
	if t, ok := aliasType(protocol.PrimKind(name)); ok {
		return t, true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[name]
	return t, ok
}

// IsNamespace reports whether the name is known for type-qualified calls,
// either as a registered type or as a function namespace.
func (c *Catalog) IsNamespace(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.types[name]; ok {
		return true
	}
	if _, ok := c.funcs[name]; ok {
		return true
	}
	_, ok := c.vars[name]
	return ok
}

// StaticFunc resolves namespace.name for a static call.
func (c *Catalog) StaticFunc(namespace, name string) (reflect.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.funcs[namespace][name]
	return fn, ok
}

// StaticVar resolves namespace.name for a static field.
func (c *Catalog) StaticVar(namespace, name string) (reflect.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vars[namespace][name]
	return v, ok
}

// BoxedMethod resolves a method on a primitive receiver kind.
func (c *Catalog) BoxedMethod(kind reflect.Kind, name string) (reflect.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.boxed[kind][name]
	return fn, ok
}

// Constructors returns the overload set registered for a type name.
func (c *Catalog) Constructors(name string) []reflect.Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ctors[name]
}

// NameOf returns the registered qualified name of a type, falling back to
// the reflect spelling. Pointer types report their element's name.
func (c *Catalog) NameOf(t reflect.Type) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name, ok := c.names[t]; ok {
		return name
	}
	if t.Kind() == reflect.Pointer {
		if name, ok := c.names[t.Elem()]; ok {
			return name
		}
	}
	return t.String()
}

// aliasType maps the primitive alias table onto Go types.
func aliasType(kind protocol.PrimKind) (reflect.Type, bool) {
	switch kind {
	case protocol.PrimInteger:
		return reflect.TypeOf(int(0)), true
	case protocol.PrimCharacter:
		return reflect.TypeOf(""), true
	case protocol.PrimNumeric:
		return reflect.TypeOf(float64(0)), true
	case protocol.PrimLogical:
		return reflect.TypeOf(false), true
	case protocol.PrimLong:
		return reflect.TypeOf(int64(0)), true
	case protocol.PrimFloat:
		return reflect.TypeOf(float32(0)), true
	}
	return nil, false
}
