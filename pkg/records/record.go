package records

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/consent"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
	"github.com/doodlesbykumbi/phivault/pkg/protection"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Revision is one protected version of a record. Older revisions stay
// listed after an update so their audit history remains reachable.
type Revision struct {
	Version      int       `json:"version"`
	ProtectionID string    `json:"protectionId"`
	CreatedAt    time.Time `json:"createdAt"`
	CreatedBy    string    `json:"createdBy"`
}

// MedicalRecord maps a record id to its current protection package.
type MedicalRecord struct {
	RecordID     string           `json:"recordId"`
	PatientID    string           `json:"patientId"`
	ProviderID   string           `json:"providerId"`
	Category     consent.Category `json:"category"`
	ProtectionID string           `json:"protectionId"`
	Version      int              `json:"version"`
	History      []Revision       `json:"history"`
	Status       Status           `json:"status"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	RevokedAt    time.Time        `json:"revokedAt"`
}

// Metadata describes a record without its payload or ciphertext.
type Metadata struct {
	RecordID   string              `json:"recordId"`
	PatientID  string              `json:"patientId"`
	ProviderID string              `json:"providerId"`
	Category   consent.Category    `json:"category"`
	Version    int                 `json:"version"`
	Status     Status              `json:"status"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
	Protection protection.Metadata `json:"protection"`
}

// Summary is a record's metadata together with its audit history.
type Summary struct {
	Metadata
	AuditTrail []audit.Entry `json:"auditTrail"`
}

const (
	recordType   = "record"
	patientIndex = "record~patient"
)

func protectionIDFor(recordID string, version int) string {
	return fmt.Sprintf("%s-v%d", recordID, version)
}

func getRecord(st ledger.State, op, recordID string) (MedicalRecord, error) {
	if recordID == "" {
		return MedicalRecord{}, apperr.New(apperr.KindInvalidInput, op, "record id is required")
	}
	key, err := ledger.CreateCompositeKey(recordType, []string{recordID})
	if err != nil {
		return MedicalRecord{}, apperr.Wrap(apperr.KindInvalidInput, op, err)
	}
	var rec MedicalRecord
	found, err := ledger.GetJSON(st, key, &rec)
	if err != nil {
		return MedicalRecord{}, err
	}
	if !found {
		return MedicalRecord{}, apperr.New(apperr.KindNotFound, op, "unknown record").With("recordId", recordID)
	}
	return rec, nil
}

func putRecord(st ledger.State, rec MedicalRecord) error {
	key, err := ledger.CreateCompositeKey(recordType, []string{rec.RecordID})
	if err != nil {
		return err
	}
	return ledger.PutJSON(st, key, rec)
}

// categoryOf reads the optional "category" member of a payload. Records
// without one are GENERAL.
func categoryOf(op string, payload []byte) (consent.Category, bool, error) {
	var hint struct {
		Category *consent.Category `json:"category"`
	}
	if err := json.Unmarshal(payload, &hint); err != nil {
		return 0, false, apperr.New(apperr.KindInvalidInput, op, "payload must be a JSON object with a known category")
	}
	if hint.Category == nil {
		return consent.CategoryGeneral, false, nil
	}
	return *hint.Category, true, nil
}

func (r MedicalRecord) metadata(pkg protection.Package) Metadata {
	return Metadata{
		RecordID:   r.RecordID,
		PatientID:  r.PatientID,
		ProviderID: r.ProviderID,
		Category:   r.Category,
		Version:    r.Version,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		Protection: pkg.Metadata(),
	}
}

func (r MedicalRecord) isParty(principal string) bool {
	return principal != "" && (principal == r.ProviderID || principal == r.PatientID)
}

func putPatientIndex(st ledger.State, patient, recordID string) error {
	key, err := ledger.CreateCompositeKey(patientIndex, []string{patient, recordID})
	if err != nil {
		return err
	}
	return st.PutState(key, []byte(recordID))
}

func patientRecordIDs(st ledger.State, patient string) ([]string, error) {
	kvs, err := st.GetStateByPartialCompositeKey(patientIndex, []string{patient})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		ids = append(ids, string(kv.Value))
	}
	return ids, nil
}
