// Package protection composes keys, envelope encryption and hashing into
// protect, unprotect, batch and share workflows.
//
// A protected package stores the sealed payload, a salted integrity hash of
// the canonical plaintext and a reference to the exact key version used.
// Payloads are sealed with the owner and protection id as associated data,
// so a ciphertext moved to another package fails to open.
package protection
