package dispatch

import (
	"reflect"

	"github.com/refgate/refgate/internal/protocol"
	"github.com/refgate/refgate/internal/registry"
)

// paramVec is one marshalled parameter: a declared type plus the vector of
// values supplied for it. Vectors longer than one drive broadcast calls.
type paramVec struct {
	typ  reflect.Type
	vals []reflect.Value
}

// marshalParams turns raw operands into typed parameter vectors, resolving
// references against the session registry and literals against the
// primitive alias table.
func (d *Dispatcher) marshalParams(operands []string) ([]paramVec, error) {
	params := make([]paramVec, 0, len(operands))
	for _, operand := range operands {
		vec, err := d.marshalOperand(operand)
		if err != nil {
			return nil, err
		}
		params = append(params, vec)
	}
	return params, nil
}

func (d *Dispatcher) marshalOperand(operand string) (paramVec, error) {
	if kind, ok := protocol.PrimAlias(operand); ok {
		vals, err := protocol.ParsePrimitives(kind, operand)
		if err != nil {
			return paramVec{}, err
		}
		typ, _ := aliasType(kind)
		vec := paramVec{typ: typ, vals: make([]reflect.Value, 0, len(vals))}
		for _, v := range vals {
			vec.vals = append(vec.vals, reflect.ValueOf(v))
		}
		return vec, nil
	}
	refs, isRef, err := protocol.ParseRefs(operand)
	if err != nil {
		return paramVec{}, err
	}
	if !isRef {
		return paramVec{}, &protocol.ProtocolError{Token: operand, Reason: "unparsable operand"}
	}
	objs := make([]registry.Object, 0, len(refs))
	for _, ref := range refs {
		obj, err := d.reg.Resolve(ref)
		if err != nil {
			return paramVec{}, err
		}
		objs = append(objs, obj)
	}
	vec := paramVec{typ: objs[0].Type, vals: make([]reflect.Value, 0, len(objs))}
	for _, obj := range objs {
		if obj.IsNull() {
			vec.vals = append(vec.vals, reflect.Zero(obj.Type))
			continue
		}
		vec.vals = append(vec.vals, reflect.ValueOf(obj.Value))
	}
	return vec, nil
}

// innerSize is the broadcast width of a parameter set: the longest vector.
// Every vector must have length 1 or exactly that width.
func innerSize(params []paramVec) (int, error) {
	size := 1
	for _, p := range params {
		if n := len(p.vals); n > 1 {
			if size > 1 && n != size {
				return 0, &protocol.DispatchError{Reason: "parameter vectors of unequal length cannot be broadcast"}
			}
			size = n
		}
	}
	return size, nil
}

// argsAt picks the i-th broadcast slice of the parameter set; length-1
// vectors are reused for every index.
func argsAt(params []paramVec, i int) []reflect.Value {
	args := make([]reflect.Value, len(params))
	for j, p := range params {
		if len(p.vals) == 1 {
			args[j] = p.vals[0]
		} else {
			args[j] = p.vals[i]
		}
	}
	return args
}

// coerce adapts an observed value to a declared parameter type: identity,
// assignability, numeric-width conversion, or extraction of an embedded
// field when the declared type sits inside the observed one.
func coerce(v reflect.Value, want reflect.Type) (reflect.Value, bool) {
	if !v.IsValid() {
		return reflect.Zero(want), true
	}
	t := v.Type()
	if t == want {
		return v, true
	}
	if t.AssignableTo(want) {
		return v, true
	}
	if numericEquivalent(want, t) {
		return v.Convert(want), true
	}
	if want.Kind() == reflect.Interface {
		if t.Implements(want) {
			return v, true
		}
		if v.CanAddr() && reflect.PointerTo(t).Implements(want) {
			return v.Addr(), true
		}
		return reflect.Value{}, false
	}
	if fv, ok := embedField(v, want); ok {
		return fv, true
	}
	return reflect.Value{}, false
}

// coerceArgs adapts a whole broadcast slice to a declared signature.
func coerceArgs(args []reflect.Value, declared []reflect.Type) ([]reflect.Value, bool) {
	if len(args) != len(declared) {
		return nil, false
	}
	out := make([]reflect.Value, len(args))
	for i, a := range args {
		c, ok := coerce(a, declared[i])
		if !ok {
			return nil, false
		}
		out[i] = c
	}
	return out, true
}

func funcParamTypes(fn reflect.Value) []reflect.Type {
	t := fn.Type()
	types := make([]reflect.Type, t.NumIn())
	for i := range types {
		types[i] = t.In(i)
	}
	return types
}
