// Package harness runs YAML-defined contention scenarios against the
// loyalty service and checks their outcomes.
//
// Each scenario opens a fresh in-memory database, seeds accounts,
// rewards, and cash sessions, then executes a flow of operations.
// A flow step may fan out N concurrent calls, either sharing one
// idempotency key (a retry storm, where exactly one effect runs) or
// holding distinct keys (genuine contention, where conditional updates
// arbitrate).
//
// Traces stay deterministic for golden-file comparison: sequential
// steps record one event per call, while concurrent steps record a
// single summary event (outcome counts rather than per-call results),
// since the interleaving of winners is unspecified.
package harness
