// Package auth provides minimal authentication helpers.
//
// It intentionally avoids policy decisions and storage concerns.
package auth

import (
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates a handshake token.
type Validator interface {
	Validate(token string) error
}

// StaticKey validates the decimal rendering of a single shared integer
// key, the form clients read from the discovery file.
type StaticKey struct {
	Key int
}

func (s StaticKey) Validate(token string) error {
	want := strconv.Itoa(s.Key)
	got := strings.TrimSpace(token)
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return ErrUnauthorized
	}
	return nil
}
