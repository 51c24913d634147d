// Package protocol owns the textual wire contract of the gateway.
//
// Ownership boundary:
// - request grammar (operation codes, operand splitting)
// - value encoding/decoding for primitives, references and result lists
// - the error taxonomy serialized back to clients
//
// Decoding is purely textual. The package never inspects live objects;
// resolving a reference against a registry is the dispatcher's job.
package protocol
