package records

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/access"
	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
	"github.com/doodlesbykumbi/phivault/pkg/protection"
)

// Stored is the result of StoreProtectedMedicalData.
type Stored struct {
	ProtectionID string    `json:"protectionId"`
	Timestamp    time.Time `json:"timestamp"`
}

// Grant is a short-lived access token for one record.
type Grant struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Retrieved is a decrypted record.
type Retrieved struct {
	Data     json.RawMessage `json:"data"`
	Metadata Metadata        `json:"metadata"`
}

// Updated is the result of UpdateMedicalRecord.
type Updated struct {
	Version      int    `json:"version"`
	ProtectionID string `json:"protectionId"`
}

// authorize checks perm on class for principal acting under its primary
// role. Unknown principals are denied.
func (c *Contract) authorize(st ledger.State, op, principal string, perm access.Permission, class access.ResourceClass) (access.Role, error) {
	denied := apperr.New(apperr.KindAccessDenied, op, "principal may not "+perm.String()+" "+class.String()).
		With("principal", principal)
	p, err := c.matrix.Principal(st, principal)
	if apperr.Is(err, apperr.KindNotFound) {
		return 0, denied
	}
	if err != nil {
		return 0, err
	}
	role, ok := p.PrimaryRole()
	if !ok {
		return 0, denied
	}
	allowed, err := c.matrix.HasPermission(st, principal, role, perm, class)
	if err != nil {
		return role, err
	}
	if !allowed {
		return role, denied
	}
	return role, nil
}

// StoreProtectedMedicalData seals payload for patient under provider's key
// and registers it as version 1 of recordID.
func (c *Contract) StoreProtectedMedicalData(ctx context.Context, recordID string, payload []byte, provider, patient string) (Stored, error) {
	var out Stored
	err := c.invoke(ctx, "record.store", func(st ledger.State) error {
		var err error
		out, err = c.storeRecord(st, recordID, payload, provider, patient)
		return c.trail.Outcome(st, audit.Entry{
			Principal:      provider,
			Action:         "record.store",
			TargetResource: firstNonEmpty(recordID, patient),
			Details:        map[string]string{"patient": patient, "protectionId": out.ProtectionID},
		}, err)
	})
	return out, err
}

func (c *Contract) storeRecord(st ledger.State, recordID string, payload []byte, provider, patient string) (Stored, error) {
	const op = "record.store"
	if recordID == "" || provider == "" || patient == "" {
		return Stored{}, apperr.New(apperr.KindInvalidInput, op, "record, provider and patient ids are required")
	}
	if _, err := getRecord(st, op, recordID); err == nil {
		return Stored{}, apperr.New(apperr.KindDuplicateEntity, op, "record already exists").With("recordId", recordID)
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return Stored{}, err
	}
	if _, err := c.authorize(st, op, provider, access.PermissionWrite, access.ResourceMedicalRecord); err != nil {
		return Stored{}, err
	}
	isPatient, err := c.matrix.HasRole(st, patient, access.RolePatient)
	if err != nil {
		return Stored{}, err
	}
	if !isPatient {
		return Stored{}, apperr.New(apperr.KindRoleMismatch, op, "subject is not a registered patient").With("patient", patient)
	}
	category, _, err := categoryOf(op, payload)
	if err != nil {
		return Stored{}, err
	}

	pkg, err := c.protection.Protect(st, payload, provider, protection.Options{
		ProtectionID: protectionIDFor(recordID, 1),
		PatientID:    patient,
		Category:     category,
	})
	if err != nil {
		return Stored{}, err
	}

	now := st.Timestamp()
	rec := MedicalRecord{
		RecordID:     recordID,
		PatientID:    patient,
		ProviderID:   provider,
		Category:     category,
		ProtectionID: pkg.ProtectionID,
		Version:      1,
		History:      []Revision{{Version: 1, ProtectionID: pkg.ProtectionID, CreatedAt: now, CreatedBy: provider}},
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := putRecord(st, rec); err != nil {
		return Stored{}, err
	}
	if err := putPatientIndex(st, patient, recordID); err != nil {
		return Stored{}, err
	}
	if err := emit(st, "MedicalDataStored", map[string]string{
		"recordId":     recordID,
		"protectionId": pkg.ProtectionID,
		"patientId":    patient,
		"providerId":   provider,
	}); err != nil {
		return Stored{}, err
	}
	return Stored{ProtectionID: pkg.ProtectionID, Timestamp: now}, nil
}

// IssueAccessToken mints a grant for requester on recordID. The record's
// provider and patient always get one; anyone else needs read permission
// and a positive data access decision.
func (c *Contract) IssueAccessToken(ctx context.Context, recordID, requester string) (Grant, error) {
	var out Grant
	err := c.invoke(ctx, "record.issue_token", func(st ledger.State) error {
		var err error
		out, err = c.issueToken(st, recordID, requester)
		return c.trail.Outcome(st, audit.Entry{
			Principal:      requester,
			Action:         "record.issue_token",
			TargetResource: firstNonEmpty(recordID, requester),
		}, err)
	})
	return out, err
}

func (c *Contract) issueToken(st ledger.State, recordID, requester string) (Grant, error) {
	const op = "record.issue_token"
	if requester == "" {
		return Grant{}, apperr.New(apperr.KindInvalidInput, op, "requester is required")
	}
	rec, err := getRecord(st, op, recordID)
	if err != nil {
		return Grant{}, err
	}
	if rec.Status != StatusActive {
		return Grant{}, apperr.New(apperr.KindAccessDenied, op, "record access is revoked").With("recordId", recordID)
	}
	if !rec.isParty(requester) {
		if _, err := c.authorize(st, op, requester, access.PermissionRead, access.ResourceMedicalRecord); err != nil {
			c.metrics.ObserveDecision(false)
			return Grant{}, err
		}
		d, err := c.consent.Decide(st, rec.PatientID, requester, rec.Category)
		if err != nil {
			return Grant{}, err
		}
		c.metrics.ObserveDecision(d.Allowed)
		if !d.Allowed {
			return Grant{}, apperr.New(apperr.KindAccessDenied, op, "no consent for "+rec.Category.String()).
				With("recordId", recordID).With("requester", requester)
		}
	}
	tok, exp, err := c.grants.Issue(requester, recordID, rec.PatientID, st.Timestamp())
	if err != nil {
		return Grant{}, err
	}
	return Grant{Token: tok, ExpiresAt: exp}, nil
}

// RetrieveProtectedMedicalData decrypts the current version of recordID.
// Requesters other than the provider and patient must present a grant from
// IssueAccessToken; consent is checked again when the package is opened.
func (c *Contract) RetrieveProtectedMedicalData(ctx context.Context, recordID, requester, accessToken string) (Retrieved, error) {
	var out Retrieved
	err := c.invoke(ctx, "record.retrieve", func(st ledger.State) error {
		var err error
		out, err = c.retrieve(st, recordID, requester, accessToken)
		return c.trail.Outcome(st, audit.Entry{
			Principal:      requester,
			Action:         "record.retrieve",
			TargetResource: firstNonEmpty(recordID, requester),
		}, err)
	})
	return out, err
}

func (c *Contract) retrieve(st ledger.State, recordID, requester, accessToken string) (Retrieved, error) {
	const op = "record.retrieve"
	if requester == "" {
		return Retrieved{}, apperr.New(apperr.KindInvalidInput, op, "requester is required")
	}
	rec, err := getRecord(st, op, recordID)
	if err != nil {
		return Retrieved{}, err
	}
	if rec.Status != StatusActive {
		return Retrieved{}, apperr.New(apperr.KindAccessDenied, op, "record access is revoked").With("recordId", recordID)
	}
	if !rec.isParty(requester) {
		claims, err := c.grants.Validate(accessToken, requester, recordID, st.Timestamp())
		if err != nil {
			return Retrieved{}, err
		}
		if claims.PatientID != rec.PatientID {
			return Retrieved{}, apperr.New(apperr.KindAccessDenied, op, "access token was issued for another patient").
				With("recordId", recordID)
		}
	}

	data, pkg, err := c.protection.Unprotect(st, rec.ProtectionID, requester)
	if err != nil {
		return Retrieved{}, err
	}
	if err := emit(st, "MedicalDataAccessed", map[string]string{
		"recordId":     recordID,
		"protectionId": pkg.ProtectionID,
		"requesterId":  requester,
	}); err != nil {
		return Retrieved{}, err
	}
	return Retrieved{Data: data, Metadata: rec.metadata(pkg)}, nil
}

// UpdateMedicalRecord seals payload as the next version of recordID and
// revokes the previous package. Only the record's provider may update it.
func (c *Contract) UpdateMedicalRecord(ctx context.Context, recordID string, payload []byte, provider string) (Updated, error) {
	var out Updated
	err := c.invoke(ctx, "record.update", func(st ledger.State) error {
		var err error
		out, err = c.update(st, recordID, payload, provider)
		details := map[string]string{}
		if out.Version > 0 {
			details["version"] = strconv.Itoa(out.Version)
		}
		return c.trail.Outcome(st, audit.Entry{
			Principal:      provider,
			Action:         "record.update",
			TargetResource: firstNonEmpty(recordID, provider),
			Details:        details,
		}, err)
	})
	return out, err
}

func (c *Contract) update(st ledger.State, recordID string, payload []byte, provider string) (Updated, error) {
	const op = "record.update"
	rec, err := getRecord(st, op, recordID)
	if err != nil {
		return Updated{}, err
	}
	if provider == "" || provider != rec.ProviderID {
		return Updated{}, apperr.New(apperr.KindAccessDenied, op, "only the record's provider may update it").
			With("recordId", recordID).With("provider", provider)
	}
	if rec.Status != StatusActive {
		return Updated{}, apperr.New(apperr.KindInvalidState, op, "record is revoked").With("recordId", recordID)
	}
	if _, err := c.authorize(st, op, provider, access.PermissionWrite, access.ResourceMedicalRecord); err != nil {
		return Updated{}, err
	}
	category, explicit, err := categoryOf(op, payload)
	if err != nil {
		return Updated{}, err
	}
	if !explicit {
		category = rec.Category
	}

	version := rec.Version + 1
	pkg, err := c.protection.Protect(st, payload, provider, protection.Options{
		ProtectionID: protectionIDFor(recordID, version),
		PatientID:    rec.PatientID,
		Category:     category,
	})
	if err != nil {
		return Updated{}, err
	}
	if _, err := c.protection.Revoke(st, rec.ProtectionID, provider); err != nil {
		return Updated{}, err
	}

	now := st.Timestamp()
	rec.Version = version
	rec.ProtectionID = pkg.ProtectionID
	rec.Category = category
	rec.UpdatedAt = now
	rec.History = append(rec.History, Revision{Version: version, ProtectionID: pkg.ProtectionID, CreatedAt: now, CreatedBy: provider})
	if err := putRecord(st, rec); err != nil {
		return Updated{}, err
	}
	if err := emit(st, "MedicalRecordUpdated", map[string]string{
		"recordId":     recordID,
		"protectionId": pkg.ProtectionID,
		"version":      strconv.Itoa(version),
		"providerId":   provider,
	}); err != nil {
		return Updated{}, err
	}
	return Updated{Version: version, ProtectionID: pkg.ProtectionID}, nil
}

// GetPatientRecords lists metadata and audit history for patient's records.
// The patient sees every record; other requesters see the records they
// provided plus those their consent covers.
func (c *Contract) GetPatientRecords(ctx context.Context, patient, requester string) ([]Summary, error) {
	var out []Summary
	err := c.invoke(ctx, "record.list", func(st ledger.State) error {
		var err error
		out, err = c.patientRecords(st, patient, requester)
		return c.trail.Outcome(st, audit.Entry{
			Principal:      requester,
			Action:         "record.list",
			TargetResource: firstNonEmpty(patient, requester),
			Details:        map[string]string{"count": strconv.Itoa(len(out))},
		}, err)
	})
	return out, err
}

func (c *Contract) patientRecords(st ledger.State, patient, requester string) ([]Summary, error) {
	const op = "record.list"
	if patient == "" || requester == "" {
		return nil, apperr.New(apperr.KindInvalidInput, op, "patient and requester are required")
	}
	ids, err := patientRecordIDs(st, patient)
	if err != nil {
		return nil, err
	}
	if requester != patient {
		if _, err := c.authorize(st, op, requester, access.PermissionRead, access.ResourceMedicalRecord); err != nil {
			return nil, err
		}
	}

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		rec, err := getRecord(st, op, id)
		if err != nil {
			return nil, err
		}
		if !rec.isParty(requester) {
			allowed, err := c.consent.HasDataAccess(st, patient, requester, rec.Category)
			if err != nil {
				return nil, err
			}
			if !allowed {
				continue
			}
		}
		pkg, err := c.protection.Package(st, rec.ProtectionID)
		if err != nil {
			return nil, err
		}
		trail, err := c.recordTrail(st, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{Metadata: rec.metadata(pkg), AuditTrail: trail})
	}
	return out, nil
}

// RevokeRecordAccess lets the patient withdraw a record. The current
// package is revoked and the record refuses further reads and updates.
func (c *Contract) RevokeRecordAccess(ctx context.Context, recordID, patient string) error {
	return c.invoke(ctx, "record.revoke", func(st ledger.State) error {
		return c.trail.Outcome(st, audit.Entry{
			Principal:      patient,
			Action:         "record.revoke",
			TargetResource: firstNonEmpty(recordID, patient),
		}, c.revokeRecord(st, recordID, patient))
	})
}

func (c *Contract) revokeRecord(st ledger.State, recordID, patient string) error {
	const op = "record.revoke"
	rec, err := getRecord(st, op, recordID)
	if err != nil {
		return err
	}
	if patient == "" || patient != rec.PatientID {
		return apperr.New(apperr.KindAccessDenied, op, "only the patient may revoke record access").
			With("recordId", recordID)
	}
	if rec.Status == StatusRevoked {
		return apperr.New(apperr.KindInvalidState, op, "record access already revoked").With("recordId", recordID)
	}
	if _, err := c.protection.Revoke(st, rec.ProtectionID, patient); err != nil {
		return err
	}
	rec.Status = StatusRevoked
	rec.RevokedAt = st.Timestamp()
	rec.UpdatedAt = rec.RevokedAt
	if err := putRecord(st, rec); err != nil {
		return err
	}
	return emit(st, "RecordAccessRevoked", map[string]string{
		"recordId":     recordID,
		"protectionId": rec.ProtectionID,
		"patientId":    patient,
	})
}

// GetRecordAuditTrail returns every audit entry about recordID and its
// packages, oldest first. The provider and patient may read it, as may any
// principal whose role can read audit logs.
func (c *Contract) GetRecordAuditTrail(ctx context.Context, recordID, requester string) ([]audit.Entry, error) {
	var out []audit.Entry
	err := c.invoke(ctx, "record.audit_trail", func(st ledger.State) error {
		var err error
		out, err = c.auditTrail(st, recordID, requester)
		return c.trail.Outcome(st, audit.Entry{
			Principal:      requester,
			Action:         "record.audit_trail",
			TargetResource: firstNonEmpty(recordID, requester),
		}, err)
	})
	return out, err
}

func (c *Contract) auditTrail(st ledger.State, recordID, requester string) ([]audit.Entry, error) {
	const op = "record.audit_trail"
	if requester == "" {
		return nil, apperr.New(apperr.KindInvalidInput, op, "requester is required")
	}
	rec, err := getRecord(st, op, recordID)
	if err != nil {
		return nil, err
	}
	if !rec.isParty(requester) {
		if _, err := c.authorize(st, op, requester, access.PermissionRead, access.ResourceAuditLog); err != nil {
			return nil, err
		}
	}
	return c.recordTrail(st, rec)
}

func (c *Contract) recordTrail(st ledger.State, rec MedicalRecord) ([]audit.Entry, error) {
	targets := []string{rec.RecordID}
	for _, rev := range rec.History {
		targets = append(targets, rev.ProtectionID)
	}

	seen := make(map[uint64]bool)
	var out []audit.Entry
	for _, target := range targets {
		entries, err := c.trail.ForResource(st, target)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !seen[e.Seq] {
				seen[e.Seq] = true
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
