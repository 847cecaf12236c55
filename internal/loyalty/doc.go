// Package loyalty implements the safe-operations core of the loyalty
// subsystem: idempotent, race-free mutation of customer point balances,
// reward stock, and cash-session state under concurrent invocation.
//
// The package has no in-process scheduler or lock around business state.
// Concurrency arises from multiple stateless request handlers (possibly
// separate processes) invoking the same operations against one shared
// database, so all coordination is delegated to the store: conditional
// updates arbitrate conflicting mutations, and a unique-constraint
// insert on the idempotency record arbitrates retries.
//
// Every effectful operation follows the same state machine: pending
// effect -> race for the conditional write -> the winner commits and
// logs, losers observe the post-condition failure and return a typed
// rejection (or the replayed result when they share the winner's
// idempotency key).
package loyalty
