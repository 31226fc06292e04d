package keys

import (
	"strconv"
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/envelope"
	"github.com/doodlesbykumbi/phivault/pkg/hashing"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

const (
	DefaultSymmetricTTL    = 30 * 24 * time.Hour
	DefaultRotationHorizon = 7
)

// Manager creates, rotates and revokes keys. It holds no per-key state of
// its own; everything lives in the ledger state passed to each call.
type Manager struct {
	vault        *envelope.Symmetric
	trail        *audit.Trail
	symmetricTTL time.Duration
	rsaBits      int
}

type Option func(*Manager)

// WithSymmetricTTL sets the lifetime of new and rotated symmetric keys.
func WithSymmetricTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.symmetricTTL = ttl }
}

// WithRSABits sets the modulus size used when a pair is created implicitly.
func WithRSABits(bits int) Option {
	return func(m *Manager) { m.rsaBits = bits }
}

// NewManager returns a manager sealing key material under dataKey.
func NewManager(dataKey []byte, trail *audit.Trail, opts ...Option) (*Manager, error) {
	vault, err := envelope.NewSymmetric(dataKey)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		vault:        vault,
		trail:        trail,
		symmetricTTL: DefaultSymmetricTTL,
		rsaBits:      envelope.DefaultKeyBits,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func keyID(prefix, owner, purpose string, ts time.Time) (string, error) {
	h, err := hashing.Hash(map[string]string{
		"owner":     owner,
		"purpose":   purpose,
		"timestamp": ts.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	return prefix + h[:32], nil
}

// GenerateAsymmetricKeyPair creates an RSA pair for owner. An owner holds at
// most one active pair; with allowCoexist the previous pair is marked
// rotated instead of failing with DuplicateEntity.
func (m *Manager) GenerateAsymmetricKeyPair(st ledger.State, owner string, bits int, allowCoexist bool) (KeyRecord, error) {
	rec, err := m.generateAsymmetric(st, owner, bits, allowCoexist)
	target := rec.KeyID
	if target == "" {
		target = owner
	}
	return rec, m.trail.Outcome(st, audit.Entry{
		Principal:      owner,
		Action:         "key.generate_rsa",
		TargetResource: target,
		Details:        map[string]string{"owner": owner},
	}, err)
}

func (m *Manager) generateAsymmetric(st ledger.State, owner string, bits int, allowCoexist bool) (KeyRecord, error) {
	const op = "keys.generateAsymmetricKeyPair"
	if owner == "" {
		return KeyRecord{}, apperr.New(apperr.KindInvalidInput, op, "owner is required")
	}
	if bits == 0 {
		bits = m.rsaBits
	}

	currentID, err := pointer(st, pairIndex, owner)
	if err != nil {
		return KeyRecord{}, err
	}
	if currentID != "" {
		current, err := getRecord(st, op, currentID)
		if err != nil {
			return KeyRecord{}, err
		}
		if current.Status == StatusActive {
			if !allowCoexist {
				return KeyRecord{}, apperr.New(apperr.KindDuplicateEntity, op, "owner already has an active key pair").
					With("owner", owner).With("keyId", currentID)
			}
			current.Status = StatusRotated
			if err := putRecord(st, current); err != nil {
				return KeyRecord{}, err
			}
		}
	}

	now := st.Timestamp()
	id, err := keyID("rsa-", owner, "rsa", now)
	if err != nil {
		return KeyRecord{}, err
	}
	if existing, _ := getRecord(st, op, id); existing.KeyID != "" {
		return KeyRecord{}, apperr.New(apperr.KindDuplicateEntity, op, "key id already issued").With("keyId", id)
	}

	pair, err := envelope.GenerateRSAKey(bits)
	if err != nil {
		return KeyRecord{}, err
	}
	handle, err := m.storeMaterial(st, id, 1, pair.Serialize())
	if err != nil {
		return KeyRecord{}, err
	}

	rec := KeyRecord{
		KeyID:          id,
		OwnerID:        owner,
		CustodianID:    owner,
		Algorithm:      AlgorithmRSA,
		PublicPem:      string(pair.PublicPem()),
		MaterialHandle: handle,
		Status:         StatusActive,
		Version:        1,
		CreatedAt:      now,
	}
	if err := m.saveNew(st, rec); err != nil {
		return KeyRecord{}, err
	}
	if err := setPointer(st, pairIndex, id, owner); err != nil {
		return KeyRecord{}, err
	}
	return rec, nil
}

// GenerateSymmetricKey creates a symmetric key for (owner, purpose) held by
// custodian. The custodian defaults to the owner.
func (m *Manager) GenerateSymmetricKey(st ledger.State, owner, purpose, custodian string) (KeyRecord, error) {
	rec, err := m.generateSymmetric(st, owner, purpose, custodian)
	target := rec.KeyID
	if target == "" {
		target = owner
	}
	return rec, m.trail.Outcome(st, audit.Entry{
		Principal:      firstNonEmpty(custodian, owner),
		Action:         "key.generate_symmetric",
		TargetResource: target,
		Details:        map[string]string{"owner": owner, "purpose": purpose},
	}, err)
}

func (m *Manager) generateSymmetric(st ledger.State, owner, purpose, custodian string) (KeyRecord, error) {
	const op = "keys.generateSymmetricKey"
	if owner == "" || purpose == "" {
		return KeyRecord{}, apperr.New(apperr.KindInvalidInput, op, "owner and purpose are required")
	}
	custodian = firstNonEmpty(custodian, owner)

	now := st.Timestamp()
	id, err := keyID("sym-", owner, purpose, now)
	if err != nil {
		return KeyRecord{}, err
	}
	if existing, _ := getRecord(st, op, id); existing.KeyID != "" {
		return KeyRecord{}, apperr.New(apperr.KindDuplicateEntity, op, "key id already issued").With("keyId", id)
	}

	material, err := envelope.GenerateKey()
	if err != nil {
		return KeyRecord{}, err
	}
	handle, err := m.storeMaterial(st, id, 1, material)
	if err != nil {
		return KeyRecord{}, err
	}

	rec := KeyRecord{
		KeyID:          id,
		OwnerID:        owner,
		CustodianID:    custodian,
		Purpose:        purpose,
		Algorithm:      AlgorithmAES,
		MaterialHandle: handle,
		Status:         StatusActive,
		Version:        1,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.symmetricTTL),
	}
	if err := m.saveNew(st, rec); err != nil {
		return KeyRecord{}, err
	}
	if err := setPointer(st, purposeIndex, id, owner, purpose); err != nil {
		return KeyRecord{}, err
	}
	return rec, nil
}

// RotateSymmetricKey issues fresh material for keyID under the same id.
func (m *Manager) RotateSymmetricKey(st ledger.State, keyID, requester string) (KeyRecord, error) {
	rec, err := m.rotate(st, keyID, requester)
	details := map[string]string{}
	if err == nil {
		details["version"] = strconv.Itoa(rec.Version)
	}
	return rec, m.trail.Outcome(st, audit.Entry{
		Principal:      requester,
		Action:         "key.rotate",
		TargetResource: keyID,
		Details:        details,
	}, err)
}

func (m *Manager) rotate(st ledger.State, keyID, requester string) (KeyRecord, error) {
	const op = "keys.rotateSymmetricKey"
	rec, err := getRecord(st, op, keyID)
	if err != nil {
		return KeyRecord{}, err
	}
	if rec.Algorithm != AlgorithmAES {
		return KeyRecord{}, apperr.New(apperr.KindInvalidInput, op, "only symmetric keys rotate in place").With("keyId", keyID)
	}
	if requester != rec.OwnerID && requester != rec.CustodianID {
		return KeyRecord{}, apperr.New(apperr.KindAccessDenied, op, "requester is neither owner nor custodian").
			With("keyId", keyID).With("requester", requester)
	}
	if rec.Status != StatusActive {
		return KeyRecord{}, apperr.New(apperr.KindInvalidState, op, "key is "+string(rec.Status)).With("keyId", keyID)
	}

	material, err := envelope.GenerateKey()
	if err != nil {
		return KeyRecord{}, err
	}
	next := rec.Version + 1
	handle, err := m.storeMaterial(st, keyID, next, material)
	if err != nil {
		return KeyRecord{}, err
	}

	now := st.Timestamp()
	rec.RotationHistory = append(rec.RotationHistory, Rotation{
		FromVersion: rec.Version,
		ToVersion:   next,
		RotatedAt:   now,
		RotatedBy:   requester,
	})
	rec.Version = next
	rec.MaterialHandle = handle
	rec.ExpiresAt = now.Add(m.symmetricTTL)
	return rec, putRecord(st, rec)
}

// Revoke retires keyID. The record stays readable; its material is refused
// for every further encrypt or decrypt.
func (m *Manager) Revoke(st ledger.State, keyID, requester, reason string) (KeyRecord, error) {
	rec, err := m.revoke(st, keyID, requester, reason)
	return rec, m.trail.Outcome(st, audit.Entry{
		Principal:      requester,
		Action:         "key.revoke",
		TargetResource: keyID,
		Details:        map[string]string{"revocationReason": reason},
	}, err)
}

func (m *Manager) revoke(st ledger.State, keyID, requester, reason string) (KeyRecord, error) {
	const op = "keys.revoke"
	rec, err := getRecord(st, op, keyID)
	if err != nil {
		return KeyRecord{}, err
	}
	if requester != rec.OwnerID && requester != rec.CustodianID {
		return KeyRecord{}, apperr.New(apperr.KindAccessDenied, op, "requester is neither owner nor custodian").
			With("keyId", keyID).With("requester", requester)
	}
	if rec.Status == StatusRevoked {
		return KeyRecord{}, apperr.New(apperr.KindInvalidState, op, "key is already revoked").With("keyId", keyID)
	}
	rec.Status = StatusRevoked
	rec.RevokedReason = reason
	return rec, putRecord(st, rec)
}

// RecordUsage bumps the encrypt or decrypt counter of keyID.
func (m *Manager) RecordUsage(st ledger.State, keyID string, op Operation) (KeyRecord, error) {
	rec, err := m.recordUsage(st, keyID, op)
	return rec, m.trail.Outcome(st, audit.Entry{
		Principal:      rec.OwnerID,
		Action:         "key.usage",
		TargetResource: keyID,
		Details:        map[string]string{"operation": string(op)},
	}, err)
}

func (m *Manager) recordUsage(st ledger.State, keyID string, op Operation) (KeyRecord, error) {
	const opName = "keys.recordUsage"
	rec, err := getRecord(st, opName, keyID)
	if err != nil {
		return KeyRecord{}, err
	}
	if rec.Status == StatusRevoked {
		return rec, apperr.New(apperr.KindInvalidState, opName, "key is revoked").With("keyId", keyID)
	}
	switch op {
	case OpEncrypt:
		rec.Usage.Encrypt++
	case OpDecrypt:
		rec.Usage.Decrypt++
	default:
		return rec, apperr.New(apperr.KindInvalidInput, opName, "unknown operation "+string(op))
	}
	return rec, putRecord(st, rec)
}

// CheckRotationNeeded lists the active symmetric keys held by custodian that
// expire within horizonDays.
func (m *Manager) CheckRotationNeeded(st ledger.State, custodian string, horizonDays int) ([]KeyRecord, error) {
	due, err := m.rotationDue(st, custodian, horizonDays)
	return due, m.trail.Outcome(st, audit.Entry{
		Principal:      custodian,
		Action:         "key.rotation_check",
		TargetResource: custodian,
		Details:        map[string]string{"due": strconv.Itoa(len(due))},
	}, err)
}

func (m *Manager) rotationDue(st ledger.State, custodian string, horizonDays int) ([]KeyRecord, error) {
	if custodian == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "keys.checkRotationNeeded", "custodian is required")
	}
	if horizonDays <= 0 {
		horizonDays = DefaultRotationHorizon
	}
	recs, err := indexedRecords(st, custodianIndex, custodian)
	if err != nil {
		return nil, err
	}
	horizon := st.Timestamp().Add(time.Duration(horizonDays) * 24 * time.Hour)
	due := []KeyRecord{}
	for _, rec := range recs {
		if rec.Algorithm == AlgorithmAES && rec.Status == StatusActive && !rec.ExpiresAt.After(horizon) {
			due = append(due, rec)
		}
	}
	return due, nil
}

// OwnerKeys lists every key owned by owner, including retired ones.
func (m *Manager) OwnerKeys(st ledger.State, owner string) ([]KeyRecord, error) {
	if owner == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "keys.ownerKeys", "owner is required")
	}
	return indexedRecords(st, ownerIndex, owner)
}

// Custodians lists every principal that holds at least one key, in key order.
func (m *Manager) Custodians(st ledger.State) ([]string, error) {
	kvs, err := st.GetStateByPartialCompositeKey(custodianIndex, nil)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, kv := range kvs {
		_, attrs, err := ledger.SplitCompositeKey(kv.Key)
		if err != nil {
			return nil, err
		}
		if len(attrs) > 0 && (len(out) == 0 || out[len(out)-1] != attrs[0]) {
			out = append(out, attrs[0])
		}
	}
	return out, nil
}

// Get returns the record of keyID.
func (m *Manager) Get(st ledger.State, keyID string) (KeyRecord, error) {
	return getRecord(st, "keys.get", keyID)
}

// ActiveSymmetricKey returns the usable key for (owner, purpose), creating it
// on first use and rotating it once expired.
func (m *Manager) ActiveSymmetricKey(st ledger.State, owner, purpose, custodian string) (KeyRecord, error) {
	id, err := pointer(st, purposeIndex, owner, purpose)
	if err != nil {
		return KeyRecord{}, err
	}
	if id != "" {
		rec, err := getRecord(st, "keys.activeSymmetricKey", id)
		if err != nil {
			return KeyRecord{}, err
		}
		if rec.Status == StatusActive {
			if rec.Expired(st.Timestamp()) {
				return m.RotateSymmetricKey(st, rec.KeyID, rec.OwnerID)
			}
			return rec, nil
		}
	}
	return m.GenerateSymmetricKey(st, owner, purpose, custodian)
}

// ActiveKeyPair returns the active RSA pair of owner, creating one on first use.
func (m *Manager) ActiveKeyPair(st ledger.State, owner string) (KeyRecord, error) {
	id, err := pointer(st, pairIndex, owner)
	if err != nil {
		return KeyRecord{}, err
	}
	if id != "" {
		rec, err := getRecord(st, "keys.activeKeyPair", id)
		if err != nil {
			return KeyRecord{}, err
		}
		if rec.Status == StatusActive {
			return rec, nil
		}
	}
	return m.GenerateAsymmetricKeyPair(st, owner, m.rsaBits, true)
}

func (m *Manager) saveNew(st ledger.State, rec KeyRecord) error {
	if err := putRecord(st, rec); err != nil {
		return err
	}
	if err := putIndex(st, ownerIndex, rec.OwnerID, rec.KeyID); err != nil {
		return err
	}
	return putIndex(st, custodianIndex, rec.CustodianID, rec.KeyID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
