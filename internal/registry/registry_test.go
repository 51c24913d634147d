package registry

import (
	"errors"
	"reflect"
	"testing"

	"github.com/refgate/refgate/internal/protocol"
)

func TestRegisterResolveRoundTrip(t *testing.T) {
	r := New()
	buf := &struct{ N int }{N: 7}
	ref := r.Register(buf)
	obj, err := r.Resolve(ref)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if obj.Value != buf {
		t.Fatalf("resolved a different instance")
	}
	if obj.Type != reflect.TypeOf(buf) {
		t.Fatalf("resolved type %v", obj.Type)
	}
}

func TestSameObjectSharesColliderAndCountsOccurrences(t *testing.T) {
	r := New()
	v := &struct{ N int }{}
	first := r.Register(v)
	second := r.Register(v)
	if first != second {
		t.Fatalf("same object got distinct references: %v vs %v", first, second)
	}
	if r.Size() != 1 {
		t.Fatalf("expected one bucket, got %d", r.Size())
	}
	// Two occurrences: the first release keeps the bucket alive.
	r.Release(first)
	if _, err := r.Resolve(first); err != nil {
		t.Fatalf("bucket dropped after releasing one of two occurrences: %v", err)
	}
	r.Release(first)
	if _, err := r.Resolve(first); err == nil {
		t.Fatalf("bucket survived releasing all occurrences")
	}
	if r.Size() != 0 {
		t.Fatalf("expected empty registry, got %d buckets", r.Size())
	}
}

func TestHashCollisionAllocatesDistinctColliders(t *testing.T) {
	collide := func(any) int64 { return 99 }
	r := NewWithHash(collide)
	a := &struct{ N int }{1}
	b := &struct{ N int }{1} // distinct instance, same forced hash
	refA := r.Register(a)
	refB := r.Register(b)
	if refA.Hash != refB.Hash {
		t.Fatalf("forced hash not shared: %v vs %v", refA, refB)
	}
	if refA.Collider == refB.Collider {
		t.Fatalf("distinct objects share a collider")
	}
	if refB.Collider != refA.Collider+1 {
		t.Fatalf("collider not max+1: %v then %v", refA, refB)
	}
	if r.Size() != 1 {
		t.Fatalf("collision must stay one bucket, got %d", r.Size())
	}
	objA, err := r.Resolve(refA)
	if err != nil || objA.Value != a {
		t.Fatalf("collider A resolves wrong object: %v %v", objA, err)
	}
	objB, err := r.Resolve(refB)
	if err != nil || objB.Value != b {
		t.Fatalf("collider B resolves wrong object: %v %v", objB, err)
	}
}

func TestStructuralEqualitySharesReference(t *testing.T) {
	collide := func(any) int64 { return 7 }
	r := NewWithHash(collide)
	refA := r.Register("hello")
	refB := r.Register("hello")
	if refA != refB {
		t.Fatalf("structurally equal values got distinct references")
	}
}

func TestReleaseUnknownIsNoOp(t *testing.T) {
	r := New()
	r.Release(protocol.Ref{Hash: 12345, Collider: 1})
	ref := r.Register(&struct{}{})
	r.Release(protocol.Ref{Hash: ref.Hash, Collider: ref.Collider + 5})
	if _, err := r.Resolve(ref); err != nil {
		t.Fatalf("live reference damaged by bogus release: %v", err)
	}
}

func TestResolveUnknownIsReferenceError(t *testing.T) {
	r := New()
	_, err := r.Resolve(protocol.Ref{Hash: 1, Collider: 1})
	var re *protocol.ReferenceError
	if !errors.As(err, &re) {
		t.Fatalf("expected ReferenceError, got %v", err)
	}
}

func TestTypedNullKeepsDeclaredType(t *testing.T) {
	r := New()
	typ := reflect.TypeOf(&struct{ N int }{})
	ref := r.RegisterNull(typ)
	obj, err := r.Resolve(ref)
	if err != nil {
		t.Fatalf("resolve null marker: %v", err)
	}
	if !obj.IsNull() {
		t.Fatalf("expected null marker")
	}
	if obj.Type != typ {
		t.Fatalf("declared type lost: %v", obj.Type)
	}
}

func TestSizeTracksDistinctBuckets(t *testing.T) {
	r := New()
	refs := []protocol.Ref{
		r.Register(&struct{ A int }{}),
		r.Register(&struct{ B int }{}),
		r.Register(&struct{ C int }{}),
	}
	if r.Size() != 3 {
		t.Fatalf("expected 3 buckets, got %d", r.Size())
	}
	for _, ref := range refs {
		r.Release(ref)
	}
	if r.Size() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Size())
	}
}
