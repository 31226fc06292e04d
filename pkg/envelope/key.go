package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
)

// DefaultKeyBits is the RSA modulus size used when none is given.
const DefaultKeyBits = 2048

// MinKeyBits is the smallest RSA modulus accepted for key wrapping.
const MinKeyBits = 2048

// Key is an RSA key pair used to receive wrapped symmetric keys.
type Key struct {
	privateKey *rsa.PrivateKey
}

func NewKey(pkeyDer []byte) (*Key, error) {
	pkey, err := x509.ParsePKCS1PrivateKey(pkeyDer)
	if err != nil {
		return nil, err
	}

	return &Key{privateKey: pkey}, nil
}

// GenerateRSAKey generates a new RSA key pair of the given size.
func GenerateRSAKey(bits int) (*Key, error) {
	if bits < MinKeyBits {
		return nil, apperr.New(apperr.KindInvalidInput, "generateKey", fmt.Sprintf("key size must be at least %d bits", MinKeyBits))
	}

	pkey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}

	return &Key{privateKey: pkey}, nil
}

// Serialize returns the DER-encoded private key
func (k *Key) Serialize() []byte {
	return x509.MarshalPKCS1PrivateKey(k.privateKey)
}

func (k *Key) PublicKey() *rsa.PublicKey {
	return &k.privateKey.PublicKey
}

func (k *Key) Bits() int {
	return k.privateKey.N.BitLen()
}

func (k *Key) PublicPem() []byte {
	bytes, err := x509.MarshalPKIXPublicKey(&k.privateKey.PublicKey)
	if err != nil {
		panic(err)
	}
	return pem.EncodeToMemory(
		&pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: bytes,
		},
	)
}

func (k *Key) Fingerprint() string {
	return PublicFingerprint(&k.privateKey.PublicKey)
}

// PublicFingerprint is the hex SHA-256 of the PKIX encoding of pub.
func PublicFingerprint(pub *rsa.PublicKey) string {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// ParsePublicPem reads a PKIX "PUBLIC KEY" block holding an RSA key.
func ParsePublicPem(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return rsaPub, nil
}

// WrapKey encrypts symmetricKey for the holder of recipient.
func WrapKey(symmetricKey []byte, recipient *rsa.PublicKey) ([]byte, error) {
	if len(symmetricKey) != KeySize {
		return nil, apperr.New(apperr.KindInvalidInput, "wrapKey", fmt.Sprintf("key must be %d bytes", KeySize))
	}
	if recipient == nil {
		return nil, apperr.New(apperr.KindInvalidInput, "wrapKey", "recipient public key is missing")
	}

	return rsa.EncryptOAEP(sha256.New(), rand.Reader, recipient, symmetricKey, nil)
}

// UnwrapKey recovers a symmetric key wrapped for k.
func UnwrapKey(wrapped []byte, k *Key) ([]byte, error) {
	if k == nil {
		return nil, apperr.New(apperr.KindInvalidInput, "unwrapKey", "recipient key is missing")
	}

	symmetricKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, k.privateKey, wrapped, nil)
	if err != nil {
		return nil, apperr.New(apperr.KindIntegrityViolation, "unwrapKey", "wrapped key does not open with this key")
	}
	return symmetricKey, nil
}
