// Package hashing implements content hashing for phivault: canonical JSON
// digests, salted integrity hashes, HMAC tags, hash chains, Merkle trees with
// membership proofs, and order independent batch digests.
//
// All digests are SHA-256 and rendered as lowercase hex.
package hashing
