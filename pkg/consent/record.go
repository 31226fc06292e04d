package consent

import (
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// Record is one patient consent for a grantee and category.
type Record struct {
	ConsentID      string    `json:"consentId"`
	PatientID      string    `json:"patientId"`
	GranteeID      string    `json:"granteeId"`
	Category       Category  `json:"dataCategory"`
	GrantedAt      time.Time `json:"grantedAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	IsActive       bool      `json:"isActive"`
	Status         Status    `json:"status"`
	Purpose        string    `json:"purpose"`
	AllowSubAccess bool      `json:"allowSubAccess"`
	ClosedAt       time.Time `json:"closedAt"`
}

// Valid reports whether r currently grants access.
func (r Record) Valid(now time.Time) bool {
	return r.IsActive && now.Before(r.ExpiresAt)
}

// EmergencyAccess is a consent bypass granted by an emergency-role principal.
type EmergencyAccess struct {
	AccessID   string    `json:"accessId"`
	PatientID  string    `json:"patientId"`
	AccessorID string    `json:"accessorId"`
	Reason     string    `json:"reason"`
	GrantedAt  time.Time `json:"grantedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Used       bool      `json:"used"`
}

// Ledger object types.
const (
	consentType           = "consent"
	patientIndex          = "consent~patient"
	granteeIndex          = "consent~grantee"
	activeIndex           = "consent~active"
	emergencyType         = "emergency"
	emergencyIndex        = "emergency~accessor"
	emergencyPatientIndex = "emergency~patient"
)

func getJSON(st ledger.State, op, objectType, id string, v any) error {
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

func putJSON(st ledger.State, objectType, id string, v any) error {
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
	ids := make([]string, len(kvs))
	for i, kv := range kvs {
		ids[i] = string(kv.Value)
	}
	return ids, nil
}
