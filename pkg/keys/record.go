package keys

import (
	"fmt"
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

type Algorithm string

const (
	AlgorithmAES Algorithm = "AES-256-GCM"
	AlgorithmRSA Algorithm = "RSA-OAEP-SHA256"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusRotated Status = "rotated"
	StatusRevoked Status = "revoked"
)

// Operation is a usage counter selector.
type Operation string

const (
	OpEncrypt Operation = "encrypt"
	OpDecrypt Operation = "decrypt"
)

type Usage struct {
	Encrypt uint64 `json:"encrypt"`
	Decrypt uint64 `json:"decrypt"`
}

// Rotation is one entry of a key's rotation history.
type Rotation struct {
	FromVersion int       `json:"fromVersion"`
	ToVersion   int       `json:"toVersion"`
	RotatedAt   time.Time `json:"rotatedAt"`
	RotatedBy   string    `json:"rotatedBy"`
}

// KeyRecord describes a key without its material. MaterialHandle names the
// ledger entry holding the sealed material of the current version.
type KeyRecord struct {
	KeyID           string     `json:"keyId"`
	OwnerID         string     `json:"ownerId"`
	CustodianID     string     `json:"custodianId"`
	Purpose         string     `json:"purpose,omitempty"`
	Algorithm       Algorithm  `json:"algorithm"`
	PublicPem       string     `json:"publicPem,omitempty"`
	MaterialHandle  string     `json:"materialHandle"`
	Status          Status     `json:"status"`
	Version         int        `json:"version"`
	CreatedAt       time.Time  `json:"createdAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	RevokedReason   string     `json:"revokedReason,omitempty"`
	Usage           Usage      `json:"usage"`
	RotationHistory []Rotation `json:"rotationHistory,omitempty"`
}

// Expired reports whether the key has an expiry that is not after now.
// RSA pairs carry no expiry.
func (r KeyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Ref identifies the exact key version a payload was sealed with.
type Ref struct {
	KeyID   string    `json:"keyId"`
	KeyType Algorithm `json:"keyType"`
	Version int       `json:"version"`
}

// Ledger object types.
const (
	recordType     = "key"
	materialType   = "keymat"
	ownerIndex     = "key~owner"
	custodianIndex = "key~custodian"
	purposeIndex   = "key~purpose"
	pairIndex      = "key~rsa"
)

func recordKey(keyID string) (string, error) {
	return ledger.CreateCompositeKey(recordType, []string{keyID})
}

func materialKey(keyID string, version int) (string, error) {
	return ledger.CreateCompositeKey(materialType, []string{keyID, fmt.Sprintf("%06d", version)})
}

func materialAAD(keyID string, version int) []byte {
	return []byte(fmt.Sprintf("%s#%d", keyID, version))
}

func getRecord(st ledger.State, op, keyID string) (KeyRecord, error) {
	if keyID == "" {
		return KeyRecord{}, apperr.New(apperr.KindInvalidInput, op, "key id is required")
	}
	key, err := recordKey(keyID)
	if err != nil {
		return KeyRecord{}, apperr.Wrap(apperr.KindInvalidInput, op, err)
	}
	var rec KeyRecord
	found, err := ledger.GetJSON(st, key, &rec)
	if err != nil {
		return KeyRecord{}, err
	}
	if !found {
		return KeyRecord{}, apperr.New(apperr.KindNotFound, op, "unknown key").With("keyId", keyID)
	}
	return rec, nil
}

func putRecord(st ledger.State, rec KeyRecord) error {
	key, err := recordKey(rec.KeyID)
	if err != nil {
		return err
	}
	return ledger.PutJSON(st, key, rec)
}

func putIndex(st ledger.State, index string, attrs ...string) error {
	key, err := ledger.CreateCompositeKey(index, attrs)
	if err != nil {
		return err
	}
	return st.PutState(key, []byte(attrs[len(attrs)-1]))
}

// pointer reads a single-valued index such as the active pair of an owner.
func pointer(st ledger.State, index string, attrs ...string) (string, error) {
	key, err := ledger.CreateCompositeKey(index, attrs)
	if err != nil {
		return "", err
	}
	b, err := st.GetState(key)
	return string(b), err
}

func setPointer(st ledger.State, index, value string, attrs ...string) error {
	key, err := ledger.CreateCompositeKey(index, attrs)
	if err != nil {
		return err
	}
	return st.PutState(key, []byte(value))
}

func indexedRecords(st ledger.State, index, owner string) ([]KeyRecord, error) {
	kvs, err := st.GetStateByPartialCompositeKey(index, []string{owner})
	if err != nil {
		return nil, err
	}
	out := make([]KeyRecord, 0, len(kvs))
	for _, kv := range kvs {
		rec, err := getRecord(st, "keys.list", string(kv.Value))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
