// Package gateway owns the TCP surface of the daemon.
//
// Ownership boundary:
// - data listeners with bounded pending queues and fixed worker pools
// - per-client sessions holding one registry and one dispatcher each
// - the control channel (emergency shutdown, soft exit)
// - the flush receiver draining client finalizer batches
// - the discovery file handoff for spawned clients
//
// Everything request-shaped is delegated to internal/dispatch; this
// package never inspects live objects.
package gateway
