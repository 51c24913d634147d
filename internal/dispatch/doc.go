// Package dispatch owns reflective request execution.
//
// Ownership boundary:
// - the type catalog (name -> type, constructors, package functions)
// - construct / call-method / get-or-set-field / class-info operations
// - nearest-match signature scoring and elementwise broadcast
//
// Go resolves nothing by name at runtime on its own, so everything a
// client may construct or call statically must be registered in a Catalog
// first. Instance methods and fields are then reached through reflect.
package dispatch
