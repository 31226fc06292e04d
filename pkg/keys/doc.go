// Package keys manages the lifecycle of per-principal RSA key pairs and
// per-purpose symmetric keys.
//
// Key records live in the ledger under the "key" object type with owner,
// custodian and purpose indexes. Key material never leaves the package in
// the clear: it is stored sealed under the data key in the "keymat"
// namespace, bound to keyID#version, and is only used through SealWith,
// OpenWith, SealForRecipient and OpenAsRecipient.
//
// Rotation keeps the key id and issues a new material version. Earlier
// versions stay readable so packages sealed before a rotation still open.
// Records are never deleted; revocation flips the status and the record
// stays available for audit.
package keys
