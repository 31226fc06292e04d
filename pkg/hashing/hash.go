package hashing

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

// Algorithm names the digest recorded alongside integrity hashes.
const Algorithm = "sha256"

// SaltSize is the length of generated salts.
const SaltSize = 32

// IntegrityHash is a salted digest that can be persisted and re-verified later.
type IntegrityHash struct {
	Hash      string `json:"hash"`
	Algorithm string `json:"algorithm"`
	Salt      string `json:"salt"`
}

// Canonicalize renders v as JSON with object keys sorted at every depth.
// A json.RawMessage is parsed as a document, so two encodings of the same
// object canonicalize identically.
func Canonicalize(v any) ([]byte, error) {
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("canonicalize: %w", err)
		}
		raw = b
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("canonicalize: trailing data after document")
	}

	// encoding/json writes map keys in sorted order
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}

// HashBytes returns the hex SHA-256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Hash returns the hex SHA-256 of the canonical form of v.
func Hash(v any) (string, error) {
	c, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return HashBytes(c), nil
}

// SaltedHash hashes salt || canonical(v). A random salt is generated when salt is nil.
func SaltedHash(v any, salt []byte) (IntegrityHash, error) {
	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return IntegrityHash{}, err
		}
	}

	c, err := Canonicalize(v)
	if err != nil {
		return IntegrityHash{}, err
	}

	return IntegrityHash{
		Hash:      HashBytes(append(append([]byte{}, salt...), c...)),
		Algorithm: Algorithm,
		Salt:      hex.EncodeToString(salt),
	}, nil
}

// Verify recomputes the salted hash of v and compares it in constant time.
func Verify(v any, ih IntegrityHash) bool {
	if ih.Algorithm != "" && ih.Algorithm != Algorithm {
		return false
	}
	salt, err := hex.DecodeString(ih.Salt)
	if err != nil {
		return false
	}
	got, err := SaltedHash(v, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got.Hash), []byte(ih.Hash)) == 1
}

// HMAC returns the hex HMAC-SHA256 tag of data under key.
func HMAC(data, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks tag against data under key in constant time.
func VerifyHMAC(data, key []byte, tag string) bool {
	want, err := hex.DecodeString(tag)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hmac.Equal(mac.Sum(nil), want)
}
