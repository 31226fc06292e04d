package hashing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIgnoresKeyOrder(t *testing.T) {
	a := json.RawMessage(`{"patientId":"P1","vitals":{"hr":72,"bp":"120/80"},"codes":[1,2]}`)
	b := json.RawMessage(`{"codes":[1,2],"vitals":{"bp":"120/80","hr":72},"patientId":"P1"}`)

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	hm, err := Hash(map[string]any{"patientId": "P1", "codes": []int{1, 2}, "vitals": map[string]any{"bp": "120/80", "hr": 72}})
	require.NoError(t, err)
	assert.Equal(t, ha, hm)
}

func TestHashDistinguishesValues(t *testing.T) {
	ha, err := Hash(map[string]any{"diagnosis": "x"})
	require.NoError(t, err)
	hb, err := Hash(map[string]any{"diagnosis": "y"})
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestCanonicalizePreservesNumbers(t *testing.T) {
	c, err := Canonicalize(json.RawMessage(`{"b":12345678901234567890,"a":1.50}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1.50,"b":12345678901234567890}`, string(c))
}

func TestCanonicalizeRejectsInvalidJSON(t *testing.T) {
	_, err := Canonicalize(json.RawMessage(`{"a":`))
	assert.Error(t, err)
	_, err = Canonicalize(json.RawMessage(`{"a":1} {"b":2}`))
	assert.Error(t, err)
}

func TestSaltedHashAndVerify(t *testing.T) {
	data := map[string]string{"patientId": "P1", "diagnosis": "x"}

	ih, err := SaltedHash(data, nil)
	require.NoError(t, err)
	assert.Equal(t, Algorithm, ih.Algorithm)
	assert.Len(t, ih.Salt, SaltSize*2)
	assert.True(t, Verify(data, ih))

	other, err := SaltedHash(data, nil)
	require.NoError(t, err)
	assert.NotEqual(t, ih.Hash, other.Hash, "fresh salts give different hashes")

	assert.False(t, Verify(map[string]string{"patientId": "P1", "diagnosis": "y"}, ih))

	bad := ih
	bad.Salt = "zz"
	assert.False(t, Verify(data, bad))

	bad = ih
	bad.Algorithm = "md5"
	assert.False(t, Verify(data, bad))
}

func TestSaltedHashWithGivenSalt(t *testing.T) {
	salt := []byte("0123456789abcdef0123456789abcdef")
	a, err := SaltedHash("value", salt)
	require.NoError(t, err)
	b, err := SaltedHash("value", salt)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHMAC(t *testing.T) {
	key := []byte("audit-key")
	tag := HMAC([]byte("entry"), key)

	assert.True(t, VerifyHMAC([]byte("entry"), key, tag))
	assert.False(t, VerifyHMAC([]byte("entry2"), key, tag))
	assert.False(t, VerifyHMAC([]byte("entry"), []byte("other-key"), tag))
	assert.False(t, VerifyHMAC([]byte("entry"), key, "not-hex"))
}

func TestChain(t *testing.T) {
	var links []ChainLink
	prev := ""
	for _, p := range []string{"a", "b", "c"} {
		h, err := ChainHash(prev, p)
		require.NoError(t, err)
		links = append(links, ChainLink{PrevHash: prev, Hash: h, Payload: p})
		prev = h
	}
	assert.Equal(t, -1, VerifyChain(links))

	links[1].Payload = "tampered"
	assert.Equal(t, 1, VerifyChain(links))

	links[1].Payload = "b"
	links[2].PrevHash = links[0].Hash
	assert.Equal(t, 2, VerifyChain(links))
}
