package dispatch

import "reflect"

// Nearest-match scoring. A candidate signature is scored against the
// observed parameter types position by position: identical types (and
// numeric-width counterparts) score 0, each struct-embedding hop scores 1,
// a match through interface satisfaction scores 0.5, and no relationship
// rejects the candidate outright. The candidate with the lowest
// nonnegative total wins.

const noMatch = -1.0

// signatureScore sums per-position distances, or returns noMatch when the
// arity differs or any position has no relationship.
func signatureScore(declared, observed []reflect.Type) float64 {
	if len(declared) != len(observed) {
		return noMatch
	}
	total := 0.0
	for i := range declared {
		score := typeDistance(declared[i], observed[i])
		if score < 0 {
			return noMatch
		}
		total += score
	}
	return total
}

// typeDistance scores one declared/observed type pair.
func typeDistance(declared, observed reflect.Type) float64 {
	if declared == observed {
		return 0
	}
	if numericEquivalent(declared, observed) {
		return 0
	}
	if dk := declared.Kind(); dk == reflect.Slice || dk == reflect.Array {
		ok := observed.Kind() == reflect.Slice || observed.Kind() == reflect.Array
		if !ok {
			return noMatch
		}
		return typeDistance(declared.Elem(), observed.Elem())
	}
	if depth := embedDepth(observed, declared); depth > 0 {
		return float64(depth)
	}
	if declared.Kind() == reflect.Interface {
		if observed.Implements(declared) {
			return 0.5
		}
		if observed.Kind() != reflect.Pointer && reflect.PointerTo(observed).Implements(declared) {
			return 0.5
		}
		return noMatch
	}
	return noMatch
}

// numericEquivalent treats width variants of the same numeric family as
// identical, playing the role of the primitive/wrapper equivalence table.
func numericEquivalent(a, b reflect.Type) bool {
	return numericFamily(a.Kind()) != 0 && numericFamily(a.Kind()) == numericFamily(b.Kind())
}

func numericFamily(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return 1
	case reflect.Float32, reflect.Float64:
		return 2
	}
	return 0
}

// embedDepth counts struct-embedding hops from an observed type up to a
// declared one: 1 for a directly embedded field, 2 for an embed of an
// embed, and so on. 0 means no embedding relationship.
func embedDepth(observed, declared reflect.Type) int {
	want := deref(declared)
	type node struct {
		t     reflect.Type
		depth int
	}
	queue := []node{{deref(observed), 0}}
	seen := map[reflect.Type]bool{}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n.t] {
			continue
		}
		seen[n.t] = true
		if n.t == want && n.depth > 0 {
			return n.depth
		}
		if n.t.Kind() != reflect.Struct {
			continue
		}
		for i := 0; i < n.t.NumField(); i++ {
			f := n.t.Field(i)
			if !f.Anonymous {
				continue
			}
			queue = append(queue, node{deref(f.Type), n.depth + 1})
		}
	}
	return 0
}

func deref(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

// embedField extracts the embedded value matching the declared type from
// an observed value, following the same hops embedDepth counts. The
// second return is false when no such field exists.
func embedField(v reflect.Value, declared reflect.Type) (reflect.Value, bool) {
	want := deref(declared)
	cur := v
	for cur.Kind() == reflect.Pointer && !cur.IsNil() {
		cur = cur.Elem()
	}
	if cur.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	t := cur.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		fv := cur.Field(i)
		if deref(f.Type) == want {
			return matchPointerShape(fv, declared)
		}
		if inner, ok := embedField(fv, declared); ok {
			return inner, true
		}
	}
	return reflect.Value{}, false
}

// matchPointerShape adapts an embedded field to the declared pointerness.
func matchPointerShape(fv reflect.Value, declared reflect.Type) (reflect.Value, bool) {
	if fv.Type() == declared {
		return fv, true
	}
	if declared.Kind() == reflect.Pointer && fv.CanAddr() && fv.Addr().Type() == declared {
		return fv.Addr(), true
	}
	if fv.Kind() == reflect.Pointer && fv.Type().Elem() == declared {
		return fv.Elem(), true
	}
	return reflect.Value{}, false
}
