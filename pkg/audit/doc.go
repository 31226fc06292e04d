// Package audit provides the append-only audit trail for phivault operations.
//
// Every state-changing or access-checking operation appends exactly one Entry,
// whether it succeeds or fails. Entries are stored in the ledger, chained by
// hash to their predecessor and bound with an HMAC under a key derived from
// the data key, so any edit or reordering is detectable:
//
//	trail, err := audit.NewTrail(hmacKey, audit.WithLogger(audit.NewLogger()))
//	entry, err := trail.Record(state, audit.Entry{
//	    Principal:      "D1",
//	    Action:         "protection.unprotect",
//	    TargetResource: protectionID,
//	    Success:        true,
//	})
//
// Entries are additionally written as RFC5424 syslog lines by Logger and can
// be mirrored into a SQL "messages" table by Store (PostgreSQL or SQLite).
// Details carry identifiers and reasons, never payloads or key material.
package audit
