package protocol

import (
	"strconv"
	"strings"
)

// Ref identifies a live server-side object by identity hash and collision
// index.
type Ref struct {
	Hash     int64
	Collider int
}

// FormatRef renders a reference in its wire shape, hash_collider.
func FormatRef(r Ref) string {
	return strconv.FormatInt(r.Hash, 10) + ColliderSplitter + strconv.Itoa(r.Collider)
}

// ParseRefs decodes a reference operand into hash/collider pairs. The
// boolean reports whether the operand carries the reference prefix at all.
func ParseRefs(operand string) ([]Ref, bool, error) {
	if !strings.HasPrefix(operand, ReferencePrefix) {
		return nil, false, nil
	}
	body := operand[len(ReferencePrefix):]
	parts := splitSub(body)
	refs := make([]Ref, 0, len(parts))
	for _, part := range parts {
		pair := strings.Split(part, ColliderSplitter)
		if len(pair) != 2 {
			return nil, true, &ProtocolError{Token: part, Reason: "malformed reference"}
		}
		hash, err := strconv.ParseInt(pair[0], 10, 64)
		if err != nil {
			return nil, true, &ProtocolError{Token: pair[0], Reason: "unparsable identity hash"}
		}
		collider, err := strconv.Atoi(pair[1])
		if err != nil {
			return nil, true, &ProtocolError{Token: pair[1], Reason: "unparsable collider"}
		}
		refs = append(refs, Ref{Hash: hash, Collider: collider})
	}
	if len(refs) == 0 {
		return nil, true, &ProtocolError{Token: operand, Reason: "empty reference operand"}
	}
	return refs, true, nil
}

// PrimKind names a primitive alias recognized in request operands.
type PrimKind string

const (
	PrimInteger   PrimKind = "integer"
	PrimCharacter PrimKind = "character"
	PrimNumeric   PrimKind = "numeric"
	PrimLogical   PrimKind = "logical"
	PrimLong      PrimKind = "long"
	PrimFloat     PrimKind = "float"
)

// primAliases is ordered so that longer aliases win over their prefixes.
var primAliases = []PrimKind{PrimCharacter, PrimInteger, PrimNumeric, PrimLogical, PrimLong, PrimFloat}

// PrimAlias reports the primitive alias starting the operand, if any.
func PrimAlias(operand string) (PrimKind, bool) {
	for _, k := range primAliases {
		if strings.HasPrefix(operand, string(k)) {
			return k, true
		}
	}
	return "", false
}

// ParsePrimitives decodes the sub-delimited literal vector that follows a
// primitive alias. Unparsable literals fail with a ProtocolError naming the
// offending token.
func ParsePrimitives(kind PrimKind, operand string) ([]any, error) {
	body := operand[len(string(kind)):]
	parts := splitSub(body)
	out := make([]any, 0, len(parts))
	for _, lit := range parts {
		v, err := parseLiteral(kind, lit)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, &ProtocolError{Token: operand, Reason: "empty value vector"}
	}
	return out, nil
}

func parseLiteral(kind PrimKind, lit string) (any, error) {
	switch kind {
	case PrimCharacter:
		return lit, nil
	case PrimNumeric:
		v, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return nil, &ProtocolError{Token: lit, Reason: "unparsable numeric literal"}
		}
		return v, nil
	case PrimInteger:
		v, err := strconv.Atoi(lit)
		if err != nil {
			return nil, &ProtocolError{Token: lit, Reason: "unparsable integer literal"}
		}
		return v, nil
	case PrimLong:
		v, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return nil, &ProtocolError{Token: lit, Reason: "unparsable long literal"}
		}
		return v, nil
	case PrimFloat:
		v, err := strconv.ParseFloat(lit, 32)
		if err != nil {
			return nil, &ProtocolError{Token: lit, Reason: "unparsable float literal"}
		}
		return float32(v), nil
	case PrimLogical:
		// Anything but "true" (case-insensitive) is false, as legacy
		// clients expect.
		return strings.EqualFold(lit, "true"), nil
	}
	return nil, &ProtocolError{Token: string(kind), Reason: "unknown primitive alias"}
}

// splitSub splits a sub-delimited vector, dropping the trailing empty
// element produced by a terminating sub-delimiter.
func splitSub(body string) []string {
	parts := strings.Split(body, SubSplitter)
	if n := len(parts); n > 1 && parts[n-1] == "" {
		parts = parts[:n-1]
	}
	return parts
}
