package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
)

// KeySize is the AES-256 key length.
const KeySize = 32

const ivSize = 12
const tagSize = aes.BlockSize

// VersionGCM tags AES-256-GCM packages with a 12 byte nonce and 16 byte tag.
const VersionGCM = byte('G')

// Sealed is an authenticated ciphertext with its parameters.
type Sealed struct {
	Version    byte   `json:"version"`
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	AuthTag    []byte `json:"authTag"`
}

// Symmetric seals and opens payloads under one key.
type Symmetric struct {
	aesgcm cipher.AEAD
}

func NewSymmetric(key []byte) (*Symmetric, error) {
	if len(key) != KeySize {
		return nil, apperr.New(apperr.KindInvalidInput, "envelope", fmt.Sprintf("key must be %d bytes", KeySize))
	}

	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aesgcm, err := cipher.NewGCM(c)
	if err != nil {
		return nil, err
	}

	return &Symmetric{aesgcm: aesgcm}, nil
}

// GenerateKey returns a fresh random AES-256 key.
func GenerateKey() ([]byte, error) {
	return RandomBytes(KeySize)
}

func RandomNonce() ([]byte, error) {
	// Never use more than 2^32 random nonces with a given key because of
	// the risk of a repeat.
	return RandomBytes(ivSize)
}

func RandomBytes(size int) ([]byte, error) {
	value := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, value); err != nil {
		return nil, err
	}

	return value, nil
}

func (s *Symmetric) Seal(plainText, aad []byte) (*Sealed, error) {
	nonce, err := RandomNonce()
	if err != nil {
		return nil, err
	}

	return s.seal(plainText, aad, nonce)
}

func (s *Symmetric) seal(plainText, aad, nonce []byte) (*Sealed, error) {
	if len(nonce) != ivSize {
		return nil, errors.New("nonce size is invalid")
	}

	cipherTextWithTag := s.aesgcm.Seal(nil, nonce, plainText, aad)
	tagStart := len(cipherTextWithTag) - tagSize

	return &Sealed{
		Version:    VersionGCM,
		Ciphertext: cipherTextWithTag[:tagStart],
		Nonce:      nonce,
		AuthTag:    cipherTextWithTag[tagStart:],
	}, nil
}

// Open authenticates and decrypts sealed. Any mismatch of key, tag, nonce,
// ciphertext or associated data is an IntegrityViolation and yields no plaintext.
func (s *Symmetric) Open(sealed *Sealed, aad []byte) ([]byte, error) {
	if sealed == nil {
		return nil, apperr.New(apperr.KindInvalidInput, "open", "sealed payload is missing")
	}
	if sealed.Version != VersionGCM {
		return nil, apperr.New(apperr.KindIntegrityViolation, "open", fmt.Sprintf("unsupported version %q", sealed.Version))
	}
	if len(sealed.Nonce) != ivSize || len(sealed.AuthTag) != tagSize {
		return nil, apperr.New(apperr.KindIntegrityViolation, "open", "malformed nonce or tag")
	}

	cipherTextWithTag := make([]byte, 0, len(sealed.Ciphertext)+tagSize)
	cipherTextWithTag = append(cipherTextWithTag, sealed.Ciphertext...)
	cipherTextWithTag = append(cipherTextWithTag, sealed.AuthTag...)

	plainText, err := s.aesgcm.Open(nil, sealed.Nonce, cipherTextWithTag, aad)
	if err != nil {
		return nil, apperr.New(apperr.KindIntegrityViolation, "open", "authentication failed")
	}
	return plainText, nil
}

// Seal is a one-shot helper around NewSymmetric(key).Seal.
func Seal(key, plainText, aad []byte) (*Sealed, error) {
	s, err := NewSymmetric(key)
	if err != nil {
		return nil, err
	}
	return s.Seal(plainText, aad)
}

// Open is a one-shot helper around NewSymmetric(key).Open.
func Open(key []byte, sealed *Sealed, aad []byte) ([]byte, error) {
	s, err := NewSymmetric(key)
	if err != nil {
		return nil, err
	}
	return s.Open(sealed, aad)
}

// Pack renders sealed as "version | tag | nonce | ciphertext".
func (s *Sealed) Pack() []byte {
	data := make([]byte, 0, 1+len(s.AuthTag)+len(s.Nonce)+len(s.Ciphertext))
	data = append(data, s.Version)
	data = append(data, s.AuthTag...)
	data = append(data, s.Nonce...)
	data = append(data, s.Ciphertext...)
	return data
}

// Unpack parses the packed form produced by Pack.
func Unpack(packed []byte) (*Sealed, error) {
	if len(packed) < 1+tagSize+ivSize {
		return nil, apperr.New(apperr.KindIntegrityViolation, "unpack", "ciphertext is too short")
	}
	if packed[0] != VersionGCM {
		return nil, apperr.New(apperr.KindIntegrityViolation, "unpack", fmt.Sprintf("unsupported version %q", packed[0]))
	}

	index := 1
	tag := packed[index : index+tagSize]
	index += tagSize
	nonce := packed[index : index+ivSize]
	index += ivSize

	return &Sealed{
		Version:    packed[0],
		Ciphertext: append([]byte(nil), packed[index:]...),
		Nonce:      append([]byte(nil), nonce...),
		AuthTag:    append([]byte(nil), tag...),
	}, nil
}
