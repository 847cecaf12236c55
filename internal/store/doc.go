// Package store provides durable storage for the loyalty safe-operations
// core: customer point balances, reward stock, cash sessions, the
// append-only points ledger, and the idempotency records that arbitrate
// exactly-once effects.
//
// All race arbitration happens inside this package via conditional
// updates (guard predicate + affected-row count) and unique-constraint
// inserts. Callers never hold in-process locks around business state;
// the application may run as multiple stateless instances against one
// database.
package store
