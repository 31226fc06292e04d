package protection

import (
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/consent"
	"github.com/doodlesbykumbi/phivault/pkg/envelope"
	"github.com/doodlesbykumbi/phivault/pkg/hashing"
	"github.com/doodlesbykumbi/phivault/pkg/keys"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Package is a sealed record. It is immutable once written apart from the
// active to revoked transition.
type Package struct {
	ProtectionID   string                `json:"protectionId"`
	OwnerID        string                `json:"ownerPrincipalId"`
	PatientID      string                `json:"patientId,omitempty"`
	Sealed         envelope.Sealed       `json:"sealedPayload"`
	IntegrityHash  hashing.IntegrityHash `json:"integrityHash"`
	KeyRef         keys.Ref              `json:"keyReference"`
	Classification string                `json:"classification"`
	Category       consent.Category      `json:"category"`
	BatchID        string                `json:"batchId,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
	Status         Status                `json:"status"`
	RevokedAt      time.Time             `json:"revokedAt"`
	RevokedBy      string                `json:"revokedBy,omitempty"`
}

// Metadata is the part of a package that is safe to show without access to
// the payload.
type Metadata struct {
	ProtectionID   string           `json:"protectionId"`
	OwnerID        string           `json:"ownerPrincipalId"`
	PatientID      string           `json:"patientId,omitempty"`
	Classification string           `json:"classification"`
	Category       consent.Category `json:"category"`
	KeyID          string           `json:"keyId"`
	KeyVersion     int              `json:"keyVersion"`
	IntegrityHash  string           `json:"integrityHash"`
	CreatedAt      time.Time        `json:"createdAt"`
	Status         Status           `json:"status"`
}

func (p Package) Metadata() Metadata {
	return Metadata{
		ProtectionID:   p.ProtectionID,
		OwnerID:        p.OwnerID,
		PatientID:      p.PatientID,
		Classification: p.Classification,
		Category:       p.Category,
		KeyID:          p.KeyRef.KeyID,
		KeyVersion:     p.KeyRef.Version,
		IntegrityHash:  p.IntegrityHash.Hash,
		CreatedAt:      p.CreatedAt,
		Status:         p.Status,
	}
}

func (p Package) aad() []byte {
	return []byte(p.OwnerID + "|" + p.ProtectionID)
}

// Ledger object types.
const (
	packageType    = "protection"
	ownerIndex     = "protection~owner"
	patientIndex   = "protection~patient"
	batchType      = "protection~batch"
	shareType      = "share"
	recipientIndex = "share~recipient"
)

func load(st ledger.State, op, objectType, id string, v any) error {
	if id == "" {
		return apperr.New(apperr.KindInvalidInput, op, "id is required")
	}
	key, err := ledger.CreateCompositeKey(objectType, []string{id})
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, op, err)
	}
	found, err := ledger.GetJSON(st, key, v)
	if err != nil {
		return err
	}
	if !found {
		return apperr.New(apperr.KindNotFound, op, "unknown "+objectType).With("id", id)
	}
	return nil
}

func exists(st ledger.State, objectType, id string) (bool, error) {
	key, err := ledger.CreateCompositeKey(objectType, []string{id})
	if err != nil {
		return false, err
	}
	b, err := st.GetState(key)
	return b != nil, err
}

func store(st ledger.State, objectType, id string, v any) error {
	key, err := ledger.CreateCompositeKey(objectType, []string{id})
	if err != nil {
		return err
	}
	return ledger.PutJSON(st, key, v)
}

func putIndex(st ledger.State, index string, attrs ...string) error {
	key, err := ledger.CreateCompositeKey(index, attrs)
	if err != nil {
		return err
	}
	return st.PutState(key, []byte(attrs[len(attrs)-1]))
}

func indexed(st ledger.State, index string, attrs ...string) ([]string, error) {
	kvs, err := st.GetStateByPartialCompositeKey(index, attrs)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		ids = append(ids, string(kv.Value))
	}
	return ids, nil
}
