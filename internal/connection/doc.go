// Package connection provides the lifecycle state machine that guards a
// lazily acquired resource handle, and the arena that shares one physical
// resource between several logical owners.
//
// # States
//
//	idle → connecting → connected → closed
//	any state → error(reason), retryable with Connect
//
// # Sharing
//
// Share(arena, conn) returns a Shared handle. Every handle is one logical
// owner; the arena keeps one reference count per share id. The resource is
// acquired when the first owner connects and torn down only when the last
// owner disconnects. Acquisition and teardown run exactly once per cycle no
// matter how many owners share the connection.
//
// # Cancellation
//
// Acquisition runs detached from the caller's context. A caller whose
// context is cancelled stops waiting and drops its reference; other owners
// waiting on the same acquisition are unaffected.
package connection
