package envelope

import (
	"bytes"
	"errors"
	"testing"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestNewSymmetric(t *testing.T) {
	s, err := NewSymmetric(testKey())
	if err != nil {
		t.Fatalf("unexpected error with valid key: %v", err)
	}
	if s == nil {
		t.Fatal("expected non-nil cipher")
	}

	// AES-128 keys are refused, only AES-256 is accepted
	_, err = NewSymmetric(make([]byte, 16))
	if !apperr.Is(err, apperr.KindInvalidInput) {
		t.Errorf("expected InvalidInput for short key, got %v", err)
	}
}

func TestSealOpen(t *testing.T) {
	s, err := NewSymmetric(testKey())
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	tests := []struct {
		name      string
		aad       []byte
		plaintext []byte
	}{
		{name: "json payload", aad: []byte("provider-1"), plaintext: []byte(`{"patientId":"P1","diagnosis":"x"}`)},
		{name: "empty plaintext", aad: []byte("provider-1"), plaintext: []byte("")},
		{name: "no aad", aad: nil, plaintext: []byte("hello")},
		{name: "long message", aad: []byte("long-context-data"), plaintext: bytes.Repeat([]byte("x"), 10000)},
		{name: "binary data", aad: []byte("binary"), plaintext: []byte{0x00, 0x01, 0x02, 0xff, 0xfe, 0xfd}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := s.Seal(tt.plaintext, tt.aad)
			if err != nil {
				t.Fatalf("seal failed: %v", err)
			}
			if sealed.Version != VersionGCM || len(sealed.Nonce) != ivSize || len(sealed.AuthTag) != tagSize {
				t.Fatalf("unexpected parameters: version=%q nonce=%d tag=%d", sealed.Version, len(sealed.Nonce), len(sealed.AuthTag))
			}

			opened, err := s.Open(sealed, tt.aad)
			if err != nil {
				t.Fatalf("open failed: %v", err)
			}
			if !bytes.Equal(opened, tt.plaintext) {
				t.Errorf("opened doesn't match original: got %v, want %v", opened, tt.plaintext)
			}
		})
	}
}

func TestOpenWithWrongAAD(t *testing.T) {
	s, _ := NewSymmetric(testKey())

	sealed, err := s.Seal([]byte("secret data"), []byte("owner-a"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	plain, err := s.Open(sealed, []byte("owner-b"))
	if !errors.Is(err, apperr.ErrIntegrityViolation) {
		t.Errorf("expected IntegrityViolation, got %v", err)
	}
	if plain != nil {
		t.Error("expected no plaintext on failure")
	}
}

func TestOpenWithWrongKey(t *testing.T) {
	sealed, err := Seal(testKey(), []byte("secret data"), nil)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	other := make([]byte, KeySize)
	if _, err := Open(other, sealed, nil); !errors.Is(err, apperr.ErrIntegrityViolation) {
		t.Errorf("expected IntegrityViolation, got %v", err)
	}
}

func TestTamperDetection(t *testing.T) {
	s, _ := NewSymmetric(testKey())
	plaintext := []byte(`{"patientId":"P1","diagnosis":"x"}`)
	sealed, err := s.Seal(plaintext, []byte("aad"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	// flip every bit of the ciphertext and the tag in turn
	for _, field := range []string{"ciphertext", "tag", "nonce"} {
		var target []byte
		switch field {
		case "ciphertext":
			target = sealed.Ciphertext
		case "tag":
			target = sealed.AuthTag
		case "nonce":
			target = sealed.Nonce
		}
		for i := 0; i < len(target)*8; i++ {
			target[i/8] ^= 1 << (i % 8)
			plain, err := s.Open(sealed, []byte("aad"))
			if !apperr.Is(err, apperr.KindIntegrityViolation) || plain != nil {
				t.Fatalf("%s bit %d: expected IntegrityViolation, got %v", field, i, err)
			}
			target[i/8] ^= 1 << (i % 8)
		}
	}

	if _, err := s.Open(sealed, []byte("aad")); err != nil {
		t.Fatalf("restored package should open: %v", err)
	}
}

func TestOpenRejectsUnknownVersion(t *testing.T) {
	s, _ := NewSymmetric(testKey())
	sealed, _ := s.Seal([]byte("x"), nil)
	sealed.Version = 'H'

	if _, err := s.Open(sealed, nil); !apperr.Is(err, apperr.KindIntegrityViolation) {
		t.Errorf("expected IntegrityViolation, got %v", err)
	}
}

func TestPackUnpack(t *testing.T) {
	s, _ := NewSymmetric(testKey())
	sealed, err := s.Seal([]byte("secret"), []byte("aad"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	packed := sealed.Pack()
	if packed[0] != VersionGCM {
		t.Errorf("expected version magic, got %q", packed[0])
	}
	if len(packed) != 1+tagSize+ivSize+len("secret") {
		t.Errorf("unexpected packed length %d", len(packed))
	}

	unpacked, err := Unpack(packed)
	if err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	plain, err := s.Open(unpacked, []byte("aad"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if string(plain) != "secret" {
		t.Errorf("got %q", plain)
	}

	if _, err := Unpack(packed[:10]); err == nil {
		t.Error("expected error for short input")
	}
}

func TestRandomBytes(t *testing.T) {
	a, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := RandomBytes(32)
	if bytes.Equal(a, b) {
		t.Error("random values should differ")
	}
}
