package dispatch

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/refgate/refgate/internal/protocol"
	"github.com/refgate/refgate/internal/registry"
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

// Dispatcher executes decoded requests against one session's registry.
type Dispatcher struct {
	cat *Catalog
	reg *registry.Registry
}

// New creates a dispatcher bound to a catalog and a session registry.
func New(cat *Catalog, reg *registry.Registry) *Dispatcher {
	return &Dispatcher{cat: cat, reg: reg}
}

// Registry exposes the session registry, mainly for flush accounting.
func (d *Dispatcher) Registry() *registry.Registry { return d.reg }

// Execute performs one operation and returns its encoded reply value. An
// empty reply means the operation produced nothing; the caller answers
// with the Done sentinel.
func (d *Dispatcher) Execute(req protocol.Request) (string, error) {
	switch req.Op {
	case protocol.OpConstruct, protocol.OpConstructNull,
		protocol.OpConstructArray, protocol.OpConstructNullArray:
		return d.construct(req.Op, req.Operands)
	case protocol.OpMethod:
		return d.callMethod(req.Operands)
	case protocol.OpField:
		return d.accessField(req.Operands)
	case protocol.OpClassInfo:
		return d.classInfo(req.Operands)
	case protocol.OpFlush:
		return d.flush(req.Operands)
	case protocol.OpSize:
		return protocol.WrapList([]protocol.Encoded{
			protocol.EncodeInt(int64(d.reg.Size())),
		}), nil
	}
	return "", &protocol.ProtocolError{Token: string(req.Op), Reason: "unsupported operation"}
}

// construct handles co, conu, coar and cona.
func (d *Dispatcher) construct(op protocol.Op, operands []string) (string, error) {
	if len(operands) == 0 {
		return "", &protocol.ProtocolError{Token: string(op), Reason: "construct needs a type name"}
	}
	name := operands[0]
	elem, ok := d.cat.LookupType(name)
	if !ok {
		return "", &protocol.DispatchError{Reason: fmt.Sprintf("unknown type %q", name)}
	}
	params, err := d.marshalParams(operands[1:])
	if err != nil {
		return "", err
	}

	isNull := op == protocol.OpConstructNull
	isArray := op == protocol.OpConstructArray
	isNullArray := op == protocol.OpConstructNullArray

	var results []protocol.Encoded
	if len(params) == 0 {
		if isArray || isNullArray {
			return "", &protocol.DispatchError{
				Reason: "constructing an array requires one integer length per dimension",
			}
		}
		var enc protocol.Encoded
		if isNull {
			enc = d.registerNull(instanceType(elem))
		} else {
			instance, err := d.newInstance(name, elem, nil)
			if err != nil {
				return "", err
			}
			enc = d.registerValue(instance)
		}
		results = append(results, enc)
	} else {
		size, err := innerSize(params)
		if err != nil {
			return "", err
		}
		for i := 0; i < size; i++ {
			var enc protocol.Encoded
			switch {
			case isNull:
				enc = d.registerNull(instanceType(elem))
			case isNullArray:
				enc = d.registerNull(sliceTypeFor(elem, len(params)))
			case isArray:
				arr, err := d.makeArray(elem, argsAt(params, i))
				if err != nil {
					return "", err
				}
				enc = d.registerValue(arr)
			default:
				instance, err := d.newInstance(name, elem, argsAt(params, i))
				if err != nil {
					return "", err
				}
				enc = d.registerValue(instance)
			}
			results = append(results, enc)
		}
	}
	return protocol.JoinResults(results), nil
}

// newInstance builds one instance: the zero value for argument-free
// construction without constructors, otherwise the registered constructor
// overload with the best nearest-match score.
func (d *Dispatcher) newInstance(name string, elem reflect.Type, args []reflect.Value) (reflect.Value, error) {
	ctors := d.cat.Constructors(name)
	if len(args) == 0 {
		for _, ctor := range ctors {
			if ctor.Type().NumIn() == 0 {
				outs, err := safeCall(ctor, nil)
				if err != nil {
					return reflect.Value{}, err
				}
				return outs[0], nil
			}
		}
		if elem.Kind() == reflect.Interface {
			return reflect.Value{}, &protocol.DispatchError{
				Reason: fmt.Sprintf("type %q is abstract and has no constructor", name),
			}
		}
		return reflect.New(elem), nil
	}

	observed := make([]reflect.Type, len(args))
	for i, a := range args {
		observed[i] = a.Type()
	}
	best := reflect.Value{}
	bestScore := noMatch
	for _, ctor := range ctors {
		score := signatureScore(funcParamTypes(ctor), observed)
		if score < 0 {
			continue
		}
		if bestScore < 0 || score < bestScore {
			best = ctor
			bestScore = score
		}
	}
	if bestScore < 0 {
		return reflect.Value{}, &protocol.DispatchError{
			Reason: fmt.Sprintf("no constructor of %q matches the supplied parameters", name),
		}
	}
	coerced, ok := coerceArgs(args, funcParamTypes(best))
	if !ok {
		return reflect.Value{}, &protocol.DispatchError{
			Reason: fmt.Sprintf("parameters cannot be adapted to a constructor of %q", name),
		}
	}
	outs, err := safeCall(best, coerced)
	if err != nil {
		return reflect.Value{}, err
	}
	if len(outs) == 0 {
		return reflect.Value{}, &protocol.DispatchError{
			Reason: fmt.Sprintf("constructor of %q returns nothing", name),
		}
	}
	return outs[0], nil
}

// makeArray allocates a (possibly nested) slice, one dimension per
// supplied length.
func (d *Dispatcher) makeArray(elem reflect.Type, dims []reflect.Value) (reflect.Value, error) {
	lengths := make([]int, len(dims))
	intType := reflect.TypeOf(int(0))
	for i, dim := range dims {
		c, ok := coerce(dim, intType)
		if !ok {
			return reflect.Value{}, &protocol.DispatchError{
				Reason: "array dimensions must be integers",
			}
		}
		lengths[i] = int(c.Int())
		if lengths[i] < 0 {
			return reflect.Value{}, &protocol.DispatchError{Reason: "negative array dimension"}
		}
	}
	return allocSlice(sliceTypeFor(elem, len(lengths)), lengths), nil
}

func sliceTypeFor(elem reflect.Type, dims int) reflect.Type {
	t := elem
	for i := 0; i < dims; i++ {
		t = reflect.SliceOf(t)
	}
	return t
}

func allocSlice(t reflect.Type, lengths []int) reflect.Value {
	v := reflect.MakeSlice(t, lengths[0], lengths[0])
	if len(lengths) > 1 {
		for i := 0; i < lengths[0]; i++ {
			v.Index(i).Set(allocSlice(t.Elem(), lengths[1:]))
		}
	}
	return v
}

// instanceType is the runtime type a constructed instance of elem gets:
// structs are handled through pointers so pointer-receiver methods and
// field assignment work.
func instanceType(elem reflect.Type) reflect.Type {
	if elem.Kind() == reflect.Struct {
		return reflect.PointerTo(elem)
	}
	return elem
}

// callTarget is a resolved call or field-access target.
type callTarget struct {
	static    bool
	namespace string
	receivers []reflect.Value
	typ       reflect.Type
}

// resolveTarget interprets the target operand: a reference vector is an
// instance target; a single character value naming a catalog entry is a
// type-qualified (static) target; any other primitive is a boxed receiver.
func (d *Dispatcher) resolveTarget(operand string) (callTarget, error) {
	refs, isRef, err := protocol.ParseRefs(operand)
	if err != nil {
		return callTarget{}, err
	}
	if isRef {
		receivers := make([]reflect.Value, 0, len(refs))
		var typ reflect.Type
		for _, ref := range refs {
			obj, err := d.reg.Resolve(ref)
			if err != nil {
				return callTarget{}, err
			}
			if obj.IsNull() {
				receivers = append(receivers, reflect.Zero(obj.Type))
			} else {
				receivers = append(receivers, reflect.ValueOf(obj.Value))
			}
			// The most general type among the targets wins, so a mixed
			// vector dispatches on the common embedded base.
			if typ == nil || (typ.AssignableTo(obj.Type) && !obj.Type.AssignableTo(typ)) {
				typ = obj.Type
			}
		}
		return callTarget{receivers: receivers, typ: typ}, nil
	}

	kind, ok := protocol.PrimAlias(operand)
	if !ok {
		return callTarget{}, &protocol.ProtocolError{Token: operand, Reason: "unparsable call target"}
	}
	vals, err := protocol.ParsePrimitives(kind, operand)
	if err != nil {
		return callTarget{}, err
	}
	if kind == protocol.PrimCharacter && len(vals) == 1 {
		if name := vals[0].(string); d.cat.IsNamespace(name) {
			return callTarget{static: true, namespace: name}, nil
		}
	}
	receivers := make([]reflect.Value, 0, len(vals))
	for _, v := range vals {
		receivers = append(receivers, reflect.ValueOf(v))
	}
	typ, _ := aliasType(kind)
	return callTarget{receivers: receivers, typ: typ}, nil
}

// callMethod handles the method operation.
func (d *Dispatcher) callMethod(operands []string) (string, error) {
	if len(operands) < 2 {
		return "", &protocol.ProtocolError{Token: protocol.MainSplitter, Reason: "method needs a target and a name"}
	}
	target, err := d.resolveTarget(operands[0])
	if err != nil {
		return "", err
	}
	name := operands[1]
	params, err := d.marshalParams(operands[2:])
	if err != nil {
		return "", err
	}
	size, err := innerSize(params)
	if err != nil {
		return "", err
	}

	if target.static {
		return d.callStatic(target.namespace, name, params, size)
	}

	targets := target.receivers
	if len(targets) > 1 && size > 1 && len(targets) != size {
		return "", &protocol.DispatchError{
			Reason: "the number of call targets differs from the parameter vector length",
		}
	}
	n := max(len(targets), size)
	var results []protocol.Encoded
	for i := 0; i < n; i++ {
		recv := targets[0]
		if len(targets) > 1 {
			recv = targets[i]
		}
		fn, prepend, err := d.methodOn(recv, name)
		if err != nil {
			return "", err
		}
		args := argsAt(params, min(i, size-1))
		if prepend {
			args = append([]reflect.Value{recv}, args...)
		}
		outs, err := d.invoke(fn, args, name)
		if err != nil {
			return "", err
		}
		results = d.appendResults(results, outs)
	}
	return protocol.JoinResults(results), nil
}

// callStatic resolves and invokes a package function.
func (d *Dispatcher) callStatic(namespace, name string, params []paramVec, size int) (string, error) {
	fn, ok := d.cat.StaticFunc(namespace, name)
	if !ok {
		if t, isType := d.cat.LookupType(namespace); isType {
			if _, found := reflect.PointerTo(t).MethodByName(name); found {
				return "", &protocol.DispatchError{
					Reason: fmt.Sprintf("%s.%s is not a static method", namespace, name),
				}
			}
		}
		return "", &protocol.DispatchError{
			Reason: fmt.Sprintf("no function %s.%s is registered", namespace, name),
		}
	}
	var results []protocol.Encoded
	for i := 0; i < size; i++ {
		outs, err := d.invoke(fn, argsAt(params, i), name)
		if err != nil {
			return "", err
		}
		results = d.appendResults(results, outs)
	}
	return protocol.JoinResults(results), nil
}

// methodOn finds the callable for a receiver: a reflect method, or a
// boxed-primitive function that wants the receiver prepended.
func (d *Dispatcher) methodOn(recv reflect.Value, name string) (reflect.Value, bool, error) {
	if fn, ok := d.cat.BoxedMethod(recv.Kind(), name); ok {
		return fn, true, nil
	}
	m := recv.MethodByName(name)
	if m.IsValid() {
		return m, false, nil
	}
	return reflect.Value{}, false, &protocol.DispatchError{
		Reason: fmt.Sprintf("no method %q on %s", name, recv.Type()),
	}
}

// invoke validates a signature with the nearest-match scorer, coerces the
// arguments and calls.
func (d *Dispatcher) invoke(fn reflect.Value, args []reflect.Value, name string) ([]reflect.Value, error) {
	declared := funcParamTypes(fn)
	observed := make([]reflect.Type, len(args))
	for i, a := range args {
		observed[i] = a.Type()
	}
	if signatureScore(declared, observed) < 0 {
		return nil, &protocol.DispatchError{
			Reason: fmt.Sprintf("parameters do not match the signature of %q", name),
		}
	}
	coerced, ok := coerceArgs(args, declared)
	if !ok {
		return nil, &protocol.DispatchError{
			Reason: fmt.Sprintf("parameters cannot be adapted to the signature of %q", name),
		}
	}
	return safeCall(fn, coerced)
}

// accessField handles the field operation: a get with no parameters, a
// set with exactly one.
func (d *Dispatcher) accessField(operands []string) (string, error) {
	if len(operands) < 2 {
		return "", &protocol.ProtocolError{Token: protocol.MainSplitter, Reason: "field needs a target and a name"}
	}
	target, err := d.resolveTarget(operands[0])
	if err != nil {
		return "", err
	}
	name := operands[1]
	params, err := d.marshalParams(operands[2:])
	if err != nil {
		return "", err
	}
	if len(params) > 1 {
		return "", &protocol.DispatchError{
			Reason: "setting a field takes a single argument",
		}
	}

	if target.static {
		return d.staticField(target.namespace, name, params)
	}

	// Pseudo-field length on arrays, which expose no declared fields.
	if len(params) == 0 && name == "length" && isArrayish(target.typ) {
		var results []protocol.Encoded
		for _, recv := range target.receivers {
			results = d.appendResults(results, []reflect.Value{reflect.ValueOf(recv.Len())})
		}
		return protocol.JoinResults(results), nil
	}

	if len(params) == 0 {
		var results []protocol.Encoded
		for _, recv := range target.receivers {
			fv, err := fieldOn(recv, name)
			if err != nil {
				return "", err
			}
			results = d.appendResults(results, []reflect.Value{fv})
		}
		return protocol.JoinResults(results), nil
	}

	size, err := innerSize(params)
	if err != nil {
		return "", err
	}
	targets := target.receivers
	if len(targets) > 1 && size > 1 && len(targets) != size {
		return "", &protocol.DispatchError{
			Reason: "the number of assignment targets differs from the parameter vector length",
		}
	}
	n := max(len(targets), size)
	for i := 0; i < n; i++ {
		recv := targets[0]
		if len(targets) > 1 {
			recv = targets[i]
		}
		fv, err := fieldOn(recv, name)
		if err != nil {
			return "", err
		}
		if !fv.CanSet() {
			return "", &protocol.DispatchError{
				Reason: fmt.Sprintf("field %q of %s is not assignable", name, recv.Type()),
			}
		}
		val := argsAt(params, min(i, size-1))[0]
		c, ok := coerce(val, fv.Type())
		if !ok {
			return "", &protocol.DispatchError{
				Reason: fmt.Sprintf("value cannot be adapted to field %q", name),
			}
		}
		fv.Set(c)
	}
	return "", nil
}

// staticField reads or writes a registered package variable.
func (d *Dispatcher) staticField(namespace, name string, params []paramVec) (string, error) {
	v, ok := d.cat.StaticVar(namespace, name)
	if !ok {
		if t, isType := d.cat.LookupType(namespace); isType && deref(t).Kind() == reflect.Struct {
			if _, found := deref(t).FieldByName(name); found {
				return "", &protocol.DispatchError{
					Reason: fmt.Sprintf("%s.%s is not a static field", namespace, name),
				}
			}
		}
		return "", &protocol.DispatchError{
			Reason: fmt.Sprintf("no variable %s.%s is registered", namespace, name),
		}
	}
	if len(params) == 0 {
		var results []protocol.Encoded
		results = d.appendResults(results, []reflect.Value{v})
		return protocol.JoinResults(results), nil
	}
	c, ok := coerce(params[0].vals[0], v.Type())
	if !ok {
		return "", &protocol.DispatchError{
			Reason: fmt.Sprintf("value cannot be adapted to variable %s.%s", namespace, name),
		}
	}
	v.Set(c)
	return "", nil
}

// fieldOn resolves an exported struct field through any pointer.
func fieldOn(recv reflect.Value, name string) (reflect.Value, error) {
	v := recv
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, &protocol.InvocationFailure{
				Cause: fmt.Errorf("field %q read through a null reference", name),
			}
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, &protocol.DispatchError{
			Reason: fmt.Sprintf("%s has no fields", recv.Type()),
		}
	}
	fv := v.FieldByName(name)
	if !fv.IsValid() {
		return reflect.Value{}, &protocol.DispatchError{
			Reason: fmt.Sprintf("no field %q on %s", name, recv.Type()),
		}
	}
	return fv, nil
}

func isArrayish(t reflect.Type) bool {
	if t == nil {
		return false
	}
	k := deref(t).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// classInfo lists public method names, an end marker, then public field
// names for a named type. The array marker gets the synthetic clone
// method and length field.
func (d *Dispatcher) classInfo(operands []string) (string, error) {
	if len(operands) == 0 {
		return "", &protocol.ProtocolError{Token: string(protocol.OpClassInfo), Reason: "class-info needs a type name"}
	}
	name := operands[0]
	var items []protocol.Encoded
	if strings.HasPrefix(name, "[") {
		items = append(items,
			protocol.EncodeString("clone"),
			protocol.EncodeString("endOfMethods"),
			protocol.EncodeString("length"),
		)
		return protocol.JoinResults(items), nil
	}
	t, ok := d.cat.LookupType(name)
	if !ok {
		return "", &protocol.DispatchError{Reason: fmt.Sprintf("unknown type %q", name)}
	}
	mt := instanceType(deref(t))
	for i := 0; i < mt.NumMethod(); i++ {
		items = append(items, protocol.EncodeString(mt.Method(i).Name))
	}
	items = append(items, protocol.EncodeString("endOfMethods"))
	if st := deref(t); st.Kind() == reflect.Struct {
		for i := 0; i < st.NumField(); i++ {
			if f := st.Field(i); f.IsExported() {
				items = append(items, protocol.EncodeString(f.Name))
			}
		}
	}
	return protocol.JoinResults(items), nil
}

// flush releases every reference named by the operand. Unknown references
// are ignored so a client can flush the same batch twice.
func (d *Dispatcher) flush(operands []string) (string, error) {
	if len(operands) == 0 {
		return "", nil
	}
	refs, isRef, err := protocol.ParseRefs(operands[0])
	if err != nil || !isRef {
		return "", err
	}
	for _, ref := range refs {
		d.reg.Release(ref)
	}
	return "", nil
}

func (d *Dispatcher) registerValue(v reflect.Value) protocol.Encoded {
	ref := d.reg.Register(v.Interface())
	return protocol.EncodeObject(d.cat.NameOf(v.Type()), ref)
}

func (d *Dispatcher) registerNull(t reflect.Type) protocol.Encoded {
	ref := d.reg.RegisterNull(t)
	return protocol.EncodeObject(d.cat.NameOf(t), ref)
}

// appendResults encodes call outputs, registering non-primitive values.
// Nil results vanish, matching a void reply when nothing accumulates.
func (d *Dispatcher) appendResults(results []protocol.Encoded, outs []reflect.Value) []protocol.Encoded {
	for _, out := range outs {
		v := out
		if v.Kind() == reflect.Interface {
			v = v.Elem()
		}
		if !v.IsValid() {
			continue
		}
		switch v.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			if v.IsNil() {
				continue
			}
		}
		switch v.Kind() {
		case reflect.Bool:
			results = append(results, protocol.EncodeBool(v.Bool()))
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			results = append(results, protocol.EncodeInt(v.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			results = append(results, protocol.EncodeInt(int64(v.Uint())))
		case reflect.Float32, reflect.Float64:
			results = append(results, protocol.EncodeFloat(v.Float()))
		case reflect.String:
			results = append(results, protocol.EncodeString(v.String()))
		default:
			results = append(results, d.registerValue(v))
		}
	}
	return results
}

// safeCall invokes a function, converting panics and trailing error
// returns into InvocationFailures that carry the real cause.
func safeCall(fn reflect.Value, args []reflect.Value) (outs []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &protocol.InvocationFailure{Cause: fmt.Errorf("%v", r)}
		}
	}()
	outs = fn.Call(args)
	t := fn.Type()
	if n := t.NumOut(); n > 0 && t.Out(n-1) == errType {
		if e, _ := outs[n-1].Interface().(error); e != nil {
			return nil, &protocol.InvocationFailure{Cause: e}
		}
		outs = outs[:n-1]
	}
	return outs, nil
}
