package auth

import (
	"errors"
	"testing"
)

func TestStaticKeyValidate(t *testing.T) {
	v := StaticKey{Key: 271828}
	if err := v.Validate("271828"); err != nil {
		t.Fatalf("matching key rejected: %v", err)
	}
	if err := v.Validate(" 271828\n"); err != nil {
		t.Fatalf("whitespace around the key must be ignored: %v", err)
	}
	if err := v.Validate("271829"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("mismatched key must be unauthorized, got %v", err)
	}
	if err := v.Validate(""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token must be unauthorized, got %v", err)
	}
}
