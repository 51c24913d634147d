// Package registry owns per-session live-object references.
//
// Ownership boundary:
// - identity-hash bucket map with collision colliders
// - occurrence counting for register/release pairs
//
// A registry belongs to exactly one client session; its mutex only guards
// against concurrent operations within that session.
package registry

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/refgate/refgate/internal/protocol"
)

// Object is a registered value together with its runtime type. A typed
// null keeps Type set while Value stays nil, so the declared type survives
// with no instance behind it.
type Object struct {
	Value any
	Type  reflect.Type
}

// IsNull reports whether the object is a typed null marker.
func (o Object) IsNull() bool { return o.Value == nil }

// HashFunc computes the identity hash of a value. It is injectable so
// tests can force hash collisions.
type HashFunc func(any) int64

// Registry maps identity hash -> collider -> occurrence list.
type Registry struct {
	mu      sync.Mutex
	buckets map[int64]map[int][]Object
	hash    HashFunc
}

// New creates a registry using the default identity hash.
func New() *Registry {
	return NewWithHash(IdentityHash)
}

// NewWithHash creates a registry with a custom identity hash.
func NewWithHash(h HashFunc) *Registry {
	return &Registry{
		buckets: make(map[int64]map[int][]Object),
		hash:    h,
	}
}

// Register stores a live value and returns its reference. A value equal to
// one already held under the same hash reuses that collider and gains one
// occurrence; a distinct colliding value is assigned max(existing)+1.
func (r *Registry) Register(v any) protocol.Ref {
	return r.register(Object{Value: v, Type: reflect.TypeOf(v)})
}

// RegisterNull stores a typed null marker for the given type.
func (r *Registry) RegisterNull(t reflect.Type) protocol.Ref {
	return r.register(Object{Type: t})
}

func (r *Registry) register(obj Object) protocol.Ref {
	hash := r.hash(obj.Value)
	if obj.IsNull() {
		hash = r.hash(obj.Type.String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.buckets[hash]
	if !ok {
		bucket = make(map[int][]Object)
		r.buckets[hash] = bucket
	}
	if len(bucket) == 0 {
		bucket[1] = []Object{obj}
		return protocol.Ref{Hash: hash, Collider: 1}
	}
	maxKey := 0
	for collider, occurrences := range bucket {
		if collider > maxKey {
			maxKey = collider
		}
		if equivalent(occurrences[0], obj) {
			bucket[collider] = append(occurrences, obj)
			return protocol.Ref{Hash: hash, Collider: collider}
		}
	}
	// True hash collision: distinct value sharing the bucket.
	collider := maxKey + 1
	bucket[collider] = []Object{obj}
	return protocol.Ref{Hash: hash, Collider: collider}
}

// Resolve returns the most recently registered live occurrence behind a
// reference, or a ReferenceError when the bucket or collider is absent.
func (r *Registry) Resolve(ref protocol.Ref) (Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.buckets[ref.Hash]
	if !ok {
		return Object{}, &protocol.ReferenceError{Ref: protocol.FormatRef(ref)}
	}
	occurrences, ok := bucket[ref.Collider]
	if !ok || len(occurrences) == 0 {
		return Object{}, &protocol.ReferenceError{Ref: protocol.FormatRef(ref)}
	}
	return occurrences[0], nil
}

// Release pops one occurrence of the reference. Releasing an unknown
// reference is a no-op: flush notifications may outlive the object.
func (r *Registry) Release(ref protocol.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.buckets[ref.Hash]
	if !ok {
		return
	}
	occurrences, ok := bucket[ref.Collider]
	if !ok {
		return
	}
	if len(occurrences) > 0 {
		occurrences = occurrences[1:]
		bucket[ref.Collider] = occurrences
	}
	if len(occurrences) == 0 {
		delete(bucket, ref.Collider)
		if len(bucket) == 0 {
			delete(r.buckets, ref.Hash)
		}
	}
}

// Size reports the number of live buckets.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

// equivalent reports whether two registered objects denote the same value.
// Pointer-shaped values compare by identity; everything else structurally.
func equivalent(a, b Object) bool {
	if a.Type != b.Type {
		return false
	}
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	va := reflect.ValueOf(a.Value)
	vb := reflect.ValueOf(b.Value)
	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	default:
		return reflect.DeepEqual(a.Value, b.Value)
	}
}

// IdentityHash folds a value's identity into 31 bits, mirroring the
// nonnegative hash shape the wire format expects. Pointer-shaped values
// hash their pointer word; other values hash their printed representation.
func IdentityHash(v any) int64 {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Slice, reflect.UnsafePointer:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(rv.Pointer()))
		return fold(xxhash.Sum64(buf[:]))
	default:
		return fold(xxhash.Sum64String(rv.Type().String() + fmt.Sprintf("%#v", v)))
	}
}

func fold(sum uint64) int64 {
	return int64(sum & 0x7fffffff)
}
