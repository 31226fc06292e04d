package keys

import (
	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/envelope"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

// SharedEnvelope is a payload sealed under a one-off key that only the
// recipient's RSA pair can unwrap.
type SharedEnvelope struct {
	Sealed         *envelope.Sealed `json:"sealed"`
	WrappedKey     []byte           `json:"wrappedKey"`
	RecipientKeyID string           `json:"recipientKeyId"`
}

func (m *Manager) storeMaterial(st ledger.State, keyID string, version int, material []byte) (string, error) {
	handle, err := materialKey(keyID, version)
	if err != nil {
		return "", err
	}
	sealed, err := m.vault.Seal(material, materialAAD(keyID, version))
	if err != nil {
		return "", err
	}
	return handle, st.PutState(handle, sealed.Pack())
}

func (m *Manager) loadMaterial(st ledger.State, op, keyID string, version int) ([]byte, error) {
	handle, err := materialKey(keyID, version)
	if err != nil {
		return nil, err
	}
	packed, err := st.GetState(handle)
	if err != nil {
		return nil, err
	}
	if packed == nil {
		return nil, apperr.New(apperr.KindNotFound, op, "key material missing").With("keyId", keyID)
	}
	sealed, err := envelope.Unpack(packed)
	if err != nil {
		return nil, err
	}
	return m.vault.Open(sealed, materialAAD(keyID, version))
}

func usable(rec KeyRecord, op string) error {
	if rec.Status == StatusRevoked {
		return apperr.New(apperr.KindInvalidState, op, "key is revoked").With("keyId", rec.KeyID)
	}
	return nil
}

// SealWith encrypts plaintext under the current version of a symmetric key
// and returns the reference needed to open it later.
func (m *Manager) SealWith(st ledger.State, keyID string, plaintext, aad []byte) (*envelope.Sealed, Ref, error) {
	const op = "keys.sealWith"
	rec, err := getRecord(st, op, keyID)
	if err != nil {
		return nil, Ref{}, err
	}
	if rec.Algorithm != AlgorithmAES {
		return nil, Ref{}, apperr.New(apperr.KindInvalidInput, op, "not a symmetric key").With("keyId", keyID)
	}
	if err := usable(rec, op); err != nil {
		return nil, Ref{}, err
	}
	if rec.Expired(st.Timestamp()) {
		return nil, Ref{}, apperr.New(apperr.KindExpired, op, "key expired and must be rotated").With("keyId", keyID)
	}

	key, err := m.loadMaterial(st, op, keyID, rec.Version)
	if err != nil {
		return nil, Ref{}, err
	}
	sealed, err := envelope.Seal(key, plaintext, aad)
	if err != nil {
		return nil, Ref{}, err
	}
	if _, err := m.recordUsage(st, keyID, OpEncrypt); err != nil {
		return nil, Ref{}, err
	}
	return sealed, Ref{KeyID: keyID, KeyType: AlgorithmAES, Version: rec.Version}, nil
}

// OpenWith decrypts a payload sealed by SealWith. Rotated versions still
// open; revoked keys do not.
func (m *Manager) OpenWith(st ledger.State, ref Ref, sealed *envelope.Sealed, aad []byte) ([]byte, error) {
	const op = "keys.openWith"
	rec, err := getRecord(st, op, ref.KeyID)
	if err != nil {
		return nil, err
	}
	if err := usable(rec, op); err != nil {
		return nil, err
	}
	if ref.Version < 1 || ref.Version > rec.Version {
		return nil, apperr.New(apperr.KindIntegrityViolation, op, "unknown key version").With("keyId", ref.KeyID)
	}

	key, err := m.loadMaterial(st, op, ref.KeyID, ref.Version)
	if err != nil {
		return nil, err
	}
	plain, err := envelope.Open(key, sealed, aad)
	if err != nil {
		return nil, err
	}
	if _, err := m.recordUsage(st, ref.KeyID, OpDecrypt); err != nil {
		return nil, err
	}
	return plain, nil
}

// SealForRecipient encrypts plaintext under a fresh key wrapped to the
// recipient's active pair, creating the pair on first use.
func (m *Manager) SealForRecipient(st ledger.State, recipient string, plaintext, aad []byte) (*SharedEnvelope, error) {
	const op = "keys.sealForRecipient"
	pair, err := m.ActiveKeyPair(st, recipient)
	if err != nil {
		return nil, err
	}
	pub, err := envelope.ParsePublicPem([]byte(pair.PublicPem))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIntegrityViolation, op, err)
	}

	oneOff, err := envelope.GenerateKey()
	if err != nil {
		return nil, err
	}
	sealed, err := envelope.Seal(oneOff, plaintext, aad)
	if err != nil {
		return nil, err
	}
	wrapped, err := envelope.WrapKey(oneOff, pub)
	if err != nil {
		return nil, err
	}
	if _, err := m.recordUsage(st, pair.KeyID, OpEncrypt); err != nil {
		return nil, err
	}
	return &SharedEnvelope{Sealed: sealed, WrappedKey: wrapped, RecipientKeyID: pair.KeyID}, nil
}

// OpenAsRecipient unwraps and decrypts env on behalf of recipient, who must
// own the pair it was wrapped to.
func (m *Manager) OpenAsRecipient(st ledger.State, recipient string, env *SharedEnvelope, aad []byte) ([]byte, error) {
	const op = "keys.openAsRecipient"
	if env == nil || env.Sealed == nil {
		return nil, apperr.New(apperr.KindInvalidInput, op, "envelope is empty")
	}
	rec, err := getRecord(st, op, env.RecipientKeyID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != recipient {
		return nil, apperr.New(apperr.KindAccessDenied, op, "envelope was wrapped for another principal").
			With("keyId", rec.KeyID).With("requester", recipient)
	}
	if err := usable(rec, op); err != nil {
		return nil, err
	}

	der, err := m.loadMaterial(st, op, rec.KeyID, rec.Version)
	if err != nil {
		return nil, err
	}
	pair, err := envelope.NewKey(der)
	if err != nil {
		return nil, err
	}
	oneOff, err := envelope.UnwrapKey(env.WrappedKey, pair)
	if err != nil {
		return nil, err
	}
	plain, err := envelope.Open(oneOff, env.Sealed, aad)
	if err != nil {
		return nil, err
	}
	if _, err := m.recordUsage(st, rec.KeyID, OpDecrypt); err != nil {
		return nil, err
	}
	return plain, nil
}
