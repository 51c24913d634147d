package protocol

import "strings"

// Delimiters and tokens are fixed literals. Legacy clients split on these
// exact byte sequences, so none of them is configurable.
const (
	MainSplitter     = "/;"
	SubSplitter      = "/,"
	ColliderSplitter = "_"

	NumericToken   = "nu"
	IntegerToken   = "in"
	LogicalToken   = "lo"
	CharacterToken = "ch"
	ObjectToken    = "JO"
	ListToken      = "JL"

	// ReferencePrefix introduces one or more hash_collider pairs in a
	// request operand.
	ReferencePrefix = "java.objecthashcode"
)

// Op is a request operation code.
type Op string

const (
	OpConstruct          Op = "co"
	OpConstructNull      Op = "conu"
	OpConstructArray     Op = "coar"
	OpConstructNullArray Op = "cona"
	OpMethod             Op = "method"
	OpField              Op = "field"
	OpClassInfo          Op = "cli"
	OpFlush              Op = "flush"
	OpSize               Op = "size"

	// OpClose is the close-connection sentinel. It carries no operands.
	OpClose Op = "closeConnection"
)

// Server reply sentinels for requests that produce no value.
const (
	ReplyDone         = "Done"
	ReplyClosing      = "ClosingConnection"
	ReplyCallAccepted = "CallAccepted"
)

// Request is one decoded client request line.
type Request struct {
	Op       Op
	Operands []string
}

var knownOps = map[Op]bool{
	OpConstruct:          true,
	OpConstructNull:      true,
	OpConstructArray:     true,
	OpConstructNullArray: true,
	OpMethod:             true,
	OpField:              true,
	OpClassInfo:          true,
	OpFlush:              true,
	OpSize:               true,
}

// DecodeRequest splits one request line into an operation and its operands.
// Unknown operation codes fail with a ProtocolError naming the token.
func DecodeRequest(line string) (Request, error) {
	trimmed := strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(trimmed) == string(OpClose) {
		return Request{Op: OpClose}, nil
	}
	fields := strings.Split(trimmed, MainSplitter)
	op := Op(fields[0])
	if !knownOps[op] {
		return Request{}, &ProtocolError{Token: fields[0], Reason: "unknown operation code"}
	}
	return Request{Op: op, Operands: fields[1:]}, nil
}
