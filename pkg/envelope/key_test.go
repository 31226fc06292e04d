package envelope

import (
	"bytes"
	"testing"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
)

func TestGenerateRSAKey(t *testing.T) {
	key, err := GenerateRSAKey(DefaultKeyBits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if key.Bits() != DefaultKeyBits {
		t.Errorf("expected %d bits, got %d", DefaultKeyBits, key.Bits())
	}

	// Fingerprint should be hex-encoded SHA256 (64 chars)
	if len(key.Fingerprint()) != 64 {
		t.Errorf("expected fingerprint length 64, got %d", len(key.Fingerprint()))
	}

	if _, err := GenerateRSAKey(1024); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Errorf("expected InvalidInput for weak key, got %v", err)
	}
}

func TestKeySerializeAndRestore(t *testing.T) {
	original, err := GenerateRSAKey(DefaultKeyBits)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	restored, err := NewKey(original.Serialize())
	if err != nil {
		t.Fatalf("failed to restore key: %v", err)
	}

	if original.Fingerprint() != restored.Fingerprint() {
		t.Errorf("fingerprints don't match: %s != %s", original.Fingerprint(), restored.Fingerprint())
	}
}

func TestPublicPemRoundTrip(t *testing.T) {
	key, err := GenerateRSAKey(DefaultKeyBits)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	pub, err := ParsePublicPem(key.PublicPem())
	if err != nil {
		t.Fatalf("failed to parse pem: %v", err)
	}
	if PublicFingerprint(pub) != key.Fingerprint() {
		t.Error("parsed key has a different fingerprint")
	}

	if _, err := ParsePublicPem([]byte("garbage")); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestWrapUnwrap(t *testing.T) {
	recipient, err := GenerateRSAKey(DefaultKeyBits)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	other, err := GenerateRSAKey(DefaultKeyBits)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	symKey, _ := GenerateKey()
	wrapped, err := WrapKey(symKey, recipient.PublicKey())
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}

	unwrapped, err := UnwrapKey(wrapped, recipient)
	if err != nil {
		t.Fatalf("unwrap failed: %v", err)
	}
	if !bytes.Equal(unwrapped, symKey) {
		t.Error("unwrapped key differs")
	}

	if _, err := UnwrapKey(wrapped, other); !apperr.Is(err, apperr.KindIntegrityViolation) {
		t.Errorf("expected IntegrityViolation for wrong recipient, got %v", err)
	}

	if _, err := WrapKey([]byte("short"), recipient.PublicKey()); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Errorf("expected InvalidInput for short key, got %v", err)
	}
}
