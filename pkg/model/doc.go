// Package model defines the database models for the phivault ledger.
//
// # Tables
//
//   - world_state: committed ledger keys and values (StateEntry)
//   - ledger_events: domain events emitted by committed invocations (LedgerEvent)
//
// Values stored in world_state are JSON documents written by the domain
// packages. Key material inside them is already sealed under the data key.
package model
