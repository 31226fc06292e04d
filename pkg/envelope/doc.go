// Package envelope provides the encryption primitives for protection packages.
//
// # Symmetric sealing
//
// Payloads are sealed with AES-256-GCM. The associated data (for example the
// owner id) is bound into the tag, so a package moved to another owner fails
// to open:
//
//	s, err := envelope.NewSymmetric(key)
//	sealed, err := s.Seal(payload, []byte(ownerID))
//	payload, err = s.Open(sealed, []byte(ownerID))
//
// A Sealed value records its format version, nonce and tag. Its packed form
// is "version | tag | nonce | ciphertext".
//
// # Key wrapping
//
// Symmetric keys are handed between principals by wrapping them with the
// recipient's RSA public key (OAEP, SHA-256):
//
//	wrapped, err := envelope.WrapKey(symKey, recipient.PublicKey())
//	symKey, err = envelope.UnwrapKey(wrapped, recipient)
package envelope
