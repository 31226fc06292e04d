// Package datakey loads the master data key that seals key material at rest
// and derives purpose-bound sub-keys from it.
//
// The key is 32 bytes, base64 encoded, and comes either from the
// PHIVAULT_DATA_KEY environment variable or from a HashiCorp Vault KV v2
// secret.
package datakey

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/vault/api"
	"golang.org/x/crypto/hkdf"
)

// Size is the data key length.
const Size = 32

// EnvVar holds the base64 data key for the env source.
const EnvVar = "PHIVAULT_DATA_KEY"

// Purposes for Derive.
const (
	PurposeAudit       = "audit-hmac"
	PurposeAccessToken = "access-token"
)

// Source provides the master data key.
type Source interface {
	DataKey(ctx context.Context) ([]byte, error)
}

// EnvSource reads the key from an environment variable.
type EnvSource struct {
	Var string
}

func (s EnvSource) DataKey(_ context.Context) ([]byte, error) {
	name := s.Var
	if name == "" {
		name = EnvVar
	}
	value := os.Getenv(name)
	if value == "" {
		return nil, fmt.Errorf("%s environment variable is required", name)
	}
	return Decode(value)
}

type kvReader interface {
	ReadWithContext(ctx context.Context, path string) (*api.Secret, error)
}

// VaultSource reads the key from a Vault KV v2 secret.
type VaultSource struct {
	reader kvReader
	Path   string
	Field  string
}

// NewVaultSource builds a client from VAULT_ADDR, VAULT_TOKEN and
// VAULT_NAMESPACE. path is the full KV v2 data path, e.g.
// "secret/data/phivault".
func NewVaultSource(path, field string) (*VaultSource, error) {
	config := api.DefaultConfig()
	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		config.Address = addr
	}
	if config.Address == "" {
		return nil, errors.New("VAULT_ADDR environment variable is required")
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if ns := os.Getenv("VAULT_NAMESPACE"); ns != "" {
		client.SetNamespace(ns)
	}
	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}

	return newVaultSource(client.Logical(), path, field), nil
}

func newVaultSource(reader kvReader, path, field string) *VaultSource {
	if field == "" {
		field = "data_key"
	}
	return &VaultSource{reader: reader, Path: path, Field: field}
}

func (s *VaultSource) DataKey(ctx context.Context) ([]byte, error) {
	secret, err := s.reader.ReadWithContext(ctx, s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data key from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret at %s", s.Path)
	}

	// KV v2 wraps the actual data in a "data" key
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid KV v2 secret format at %s", s.Path)
	}
	value, ok := data[s.Field].(string)
	if !ok {
		return nil, fmt.Errorf("field %q not found at %s", s.Field, s.Path)
	}
	return Decode(value)
}

// Decode parses a base64 data key and checks its length.
func Decode(value string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("data key is not valid base64: %w", err)
	}
	if len(key) != Size {
		return nil, fmt.Errorf("data key must be %d bytes, got %d", Size, len(key))
	}
	return key, nil
}

// Derive returns a 32 byte sub-key bound to purpose (HKDF-SHA256).
func Derive(dataKey []byte, purpose string) ([]byte, error) {
	if len(dataKey) != Size {
		return nil, fmt.Errorf("data key must be %d bytes", Size)
	}
	out := make([]byte, Size)
	r := hkdf.New(sha256.New, dataKey, nil, []byte("phivault "+purpose))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
