package datakey

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "6QrDHLBWYXieY5FM5DlRWRXX/wA8hefCuwMciHQ5ms0="

type fakeReader struct {
	secret *api.Secret
	err    error
	path   string
}

func (f *fakeReader) ReadWithContext(_ context.Context, path string) (*api.Secret, error) {
	f.path = path
	return f.secret, f.err
}

func TestEnvSource(t *testing.T) {
	t.Setenv(EnvVar, testKey)
	key, err := EnvSource{}.DataKey(context.Background())
	require.NoError(t, err)
	assert.Len(t, key, Size)

	t.Setenv(EnvVar, "")
	_, err = EnvSource{}.DataKey(context.Background())
	assert.Error(t, err)

	t.Setenv("OTHER_KEY", base64.StdEncoding.EncodeToString([]byte("short")))
	_, err = EnvSource{Var: "OTHER_KEY"}.DataKey(context.Background())
	assert.ErrorContains(t, err, "must be 32 bytes")
}

func TestVaultSource(t *testing.T) {
	reader := &fakeReader{secret: &api.Secret{Data: map[string]interface{}{
		"data": map[string]interface{}{"data_key": testKey},
	}}}
	src := newVaultSource(reader, "secret/data/phivault", "")

	key, err := src.DataKey(context.Background())
	require.NoError(t, err)
	assert.Len(t, key, Size)
	assert.Equal(t, "secret/data/phivault", reader.path)
}

func TestVaultSourceErrors(t *testing.T) {
	tests := []struct {
		name   string
		reader *fakeReader
	}{
		{"read error", &fakeReader{err: errors.New("sealed")}},
		{"missing secret", &fakeReader{}},
		{"not kv v2", &fakeReader{secret: &api.Secret{Data: map[string]interface{}{"data_key": testKey}}}},
		{"missing field", &fakeReader{secret: &api.Secret{Data: map[string]interface{}{"data": map[string]interface{}{}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newVaultSource(tt.reader, "secret/data/phivault", "data_key").DataKey(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestDerive(t *testing.T) {
	key, err := Decode(testKey)
	require.NoError(t, err)

	a, err := Derive(key, PurposeAudit)
	require.NoError(t, err)
	b, err := Derive(key, PurposeAccessToken)
	require.NoError(t, err)
	again, err := Derive(key, PurposeAudit)
	require.NoError(t, err)

	assert.Len(t, a, Size)
	assert.False(t, bytes.Equal(a, b))
	assert.Equal(t, a, again)

	_, err = Derive([]byte("short"), PurposeAudit)
	assert.Error(t, err)
}
