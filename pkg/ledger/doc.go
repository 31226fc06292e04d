// Package ledger is the key-value execution environment phivault operations
// run in.
//
// Every public operation runs inside Ledger.Invoke, which hands it a State
// scoped to one atomic, serialized invocation. Writes and events are buffered
// and become visible together when the invocation returns nil. When it
// returns an error nothing is committed except writes to durable object types
// (the audit trail), so a failed operation still leaves its audit entry.
//
// Several ledgers may share one Backend, for example two processes over one
// database. Each invocation records the version of every key and prefix it
// read; Backend.Commit rejects the changeset with ErrConflict when another
// commit changed any of them, and Invoke runs the invocation again.
//
// Secondary indexes use composite keys of the form
// (objectType, attr1, attr2, ...) and are listed with prefix range scans.
package ledger
