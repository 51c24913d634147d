package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeRequestSplitsOperands(t *testing.T) {
	req, err := DecodeRequest("method/;java.objecthashcode421_1/;Add/;characterhello world!")
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Op != OpMethod {
		t.Fatalf("expected method op, got %q", req.Op)
	}
	if len(req.Operands) != 3 {
		t.Fatalf("expected 3 operands, got %d", len(req.Operands))
	}
	if req.Operands[2] != "characterhello world!" {
		t.Fatalf("operand mangled: %q", req.Operands[2])
	}
}

func TestDecodeRequestCloseSentinel(t *testing.T) {
	req, err := DecodeRequest("closeConnection\r\n")
	if err != nil {
		t.Fatalf("decode close sentinel: %v", err)
	}
	if req.Op != OpClose {
		t.Fatalf("expected close op, got %q", req.Op)
	}
}

func TestDecodeRequestUnknownOpNamesToken(t *testing.T) {
	_, err := DecodeRequest("frobnicate/;x")
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if pe.Token != "frobnicate" {
		t.Fatalf("expected offending token in error, got %q", pe.Token)
	}
}

func TestPrimitiveRoundTrip(t *testing.T) {
	cases := []struct {
		kind    PrimKind
		operand string
		want    any
	}{
		{PrimNumeric, "numeric1.5", 1.5},
		{PrimInteger, "integer-42", -42},
		{PrimLong, "long9000000000", int64(9000000000)},
		{PrimLogical, "logicaltrue", true},
		{PrimLogical, "logicalTRUE", true},
		{PrimLogical, "logicalnope", false},
		{PrimCharacter, "characterhello world!", "hello world!"},
	}
	for _, c := range cases {
		kind, ok := PrimAlias(c.operand)
		if !ok || kind != c.kind {
			t.Fatalf("alias detection failed for %q: got %q", c.operand, kind)
		}
		vals, err := ParsePrimitives(kind, c.operand)
		if err != nil {
			t.Fatalf("parse %q: %v", c.operand, err)
		}
		if len(vals) != 1 || vals[0] != c.want {
			t.Fatalf("parse %q: got %#v, want %#v", c.operand, vals, c.want)
		}
	}
}

func TestParsePrimitivesVector(t *testing.T) {
	vals, err := ParsePrimitives(PrimInteger, "integer3/,4/,5")
	if err != nil {
		t.Fatalf("parse vector: %v", err)
	}
	if len(vals) != 3 || vals[0] != 3 || vals[2] != 5 {
		t.Fatalf("unexpected vector: %#v", vals)
	}
}

func TestParsePrimitivesBadLiteral(t *testing.T) {
	_, err := ParsePrimitives(PrimNumeric, "numericNaNopeNope/,1.0")
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if pe.Token != "NaNopeNope" {
		t.Fatalf("expected offending literal in error, got %q", pe.Token)
	}
}

func TestParseRefsRoundTrip(t *testing.T) {
	ref := Ref{Hash: 987654321, Collider: 2}
	operand := ReferencePrefix + FormatRef(ref)
	refs, isRef, err := ParseRefs(operand)
	if err != nil || !isRef {
		t.Fatalf("parse refs: isRef=%v err=%v", isRef, err)
	}
	if len(refs) != 1 || refs[0] != ref {
		t.Fatalf("round trip mismatch: %#v", refs)
	}
}

func TestParseRefsMultiple(t *testing.T) {
	operand := ReferencePrefix + "11_1/,11_2/,42_1"
	refs, _, err := ParseRefs(operand)
	if err != nil {
		t.Fatalf("parse refs: %v", err)
	}
	if len(refs) != 3 || refs[1] != (Ref{Hash: 11, Collider: 2}) {
		t.Fatalf("unexpected refs: %#v", refs)
	}
}

func TestParseRefsNotAReference(t *testing.T) {
	_, isRef, err := ParseRefs("integer3")
	if isRef || err != nil {
		t.Fatalf("expected non-reference pass-through, got isRef=%v err=%v", isRef, err)
	}
}

func TestEncodeObjectShape(t *testing.T) {
	got := EncodeObject("bytes.Buffer", Ref{Hash: 77, Collider: 1}).Text()
	want := "JO/;bytes.Buffer@77_1"
	if got != want {
		t.Fatalf("object encoding: got %q want %q", got, want)
	}
}

func TestJoinResultsSingleStandsAlone(t *testing.T) {
	got := JoinResults([]Encoded{EncodeBool(true)})
	if got != "lotrue" {
		t.Fatalf("single result: got %q", got)
	}
}

func TestJoinResultsListDropsObjectPrefix(t *testing.T) {
	items := []Encoded{
		EncodeObject("bytes.Buffer", Ref{Hash: 1, Collider: 1}),
		EncodeObject("bytes.Buffer", Ref{Hash: 2, Collider: 1}),
	}
	got := JoinResults(items)
	want := "JL/;bytes.Buffer@1_1/,bytes.Buffer@2_1/,"
	if got != want {
		t.Fatalf("list result: got %q want %q", got, want)
	}
}

func TestWrapListSingle(t *testing.T) {
	got := WrapList([]Encoded{EncodeInt(3)})
	if got != "JL/;in3/," {
		t.Fatalf("size reply shape: got %q", got)
	}
}

func TestEncodeErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{&ProtocolError{Token: "xx", Reason: "unknown operation code"}, KindProtocol},
		{&ReferenceError{Ref: "java.objecthashcode1_1"}, KindReference},
		{&DispatchError{Reason: "no matching method"}, KindDispatch},
		{&InvocationFailure{Cause: errors.New("boom")}, KindInvocation},
	}
	for _, c := range cases {
		line := EncodeError(c.err)
		if !strings.HasPrefix(line, ErrorToken+MainSplitter+c.kind+MainSplitter) {
			t.Fatalf("error line %q missing kind %q", line, c.kind)
		}
	}
}

func TestEncodeErrorSingleLine(t *testing.T) {
	line := EncodeError(&InvocationFailure{Cause: errors.New("a\nb")})
	if strings.Contains(line, "\n") {
		t.Fatalf("error reply must stay a single line: %q", line)
	}
}
