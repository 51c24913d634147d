package protocol

import (
	"strconv"
	"strings"
)

// Encoded is one wire-encoded result value.
type Encoded struct {
	text   string
	object bool
}

// Text returns the standalone encoding of the value.
func (e Encoded) Text() string { return e.text }

// EncodeFloat encodes a floating-point result.
func EncodeFloat(v float64) Encoded {
	return Encoded{text: NumericToken + strconv.FormatFloat(v, 'g', -1, 64)}
}

// EncodeInt encodes an integer result.
func EncodeInt(v int64) Encoded {
	return Encoded{text: IntegerToken + strconv.FormatInt(v, 10)}
}

// EncodeBool encodes a logical result.
func EncodeBool(v bool) Encoded {
	return Encoded{text: LogicalToken + strconv.FormatBool(v)}
}

// EncodeString encodes a character result.
func EncodeString(v string) Encoded {
	return Encoded{text: CharacterToken + v}
}

// EncodeObject encodes an object reference result.
func EncodeObject(typeName string, ref Ref) Encoded {
	return Encoded{
		text:   ObjectToken + MainSplitter + typeName + "@" + FormatRef(ref),
		object: true,
	}
}

// JoinResults renders a result set. A single value stands alone; several
// values are wrapped with the list token and sub-delimiter-joined, object
// items dropping their own object prefix inside the list. An empty set
// yields the empty string (the caller replies with the Done sentinel).
func JoinResults(items []Encoded) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0].text
	}
	var b strings.Builder
	b.WriteString(ListToken)
	b.WriteString(MainSplitter)
	objPrefix := ObjectToken + MainSplitter
	for _, item := range items {
		b.WriteString(strings.TrimPrefix(item.text, objPrefix))
		b.WriteString(SubSplitter)
	}
	return b.String()
}

// WrapList renders a result set with the list wrapper even when it holds a
// single value. The registry-size reply uses this shape.
func WrapList(items []Encoded) string {
	var b strings.Builder
	b.WriteString(ListToken)
	b.WriteString(MainSplitter)
	objPrefix := ObjectToken + MainSplitter
	for _, item := range items {
		b.WriteString(strings.TrimPrefix(item.text, objPrefix))
		b.WriteString(SubSplitter)
	}
	return b.String()
}
