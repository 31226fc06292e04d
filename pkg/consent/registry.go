package consent

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/hengadev/errsx"

	"github.com/doodlesbykumbi/phivault/pkg/access"
	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/hashing"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

const (
	MaxConsentDuration   = 365 * 24 * time.Hour
	MaxEmergencyDuration = 24 * time.Hour
	// MaxReasonLength bounds the free-text emergency reason in bytes.
	MaxReasonLength = 512
)

// Registry owns consent and emergency access state.
type Registry struct {
	trail        *audit.Trail
	matrix       *access.Matrix
	maxConsent   time.Duration
	maxEmergency time.Duration
}

type Option func(*Registry)

// WithMaxDurations lowers the consent and emergency duration caps. Values
// above the built-in caps are ignored.
func WithMaxDurations(consent, emergency time.Duration) Option {
	return func(r *Registry) {
		if consent > 0 && consent <= MaxConsentDuration {
			r.maxConsent = consent
		}
		if emergency > 0 && emergency <= MaxEmergencyDuration {
			r.maxEmergency = emergency
		}
	}
}

// NewRegistry returns a registry that resolves roles through matrix.
func NewRegistry(trail *audit.Trail, matrix *access.Matrix, opts ...Option) *Registry {
	r := &Registry{
		trail:        trail,
		matrix:       matrix,
		maxConsent:   MaxConsentDuration,
		maxEmergency: MaxEmergencyDuration,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func derivedID(prefix string, fields map[string]string) (string, error) {
	h, err := hashing.Hash(fields)
	if err != nil {
		return "", err
	}
	return prefix + h[:32], nil
}

// GrantConsent records patient's consent for grantee to access category for
// duration. Only patients may grant, and only to healthcare principals.
func (r *Registry) GrantConsent(st ledger.State, patient, grantee string, category Category, duration time.Duration, purpose string, allowSubAccess bool) (Record, error) {
	rec, err := r.grant(st, patient, grantee, category, duration, purpose, allowSubAccess)
	target := rec.ConsentID
	if target == "" {
		target = patient
	}
	return rec, r.trail.Outcome(st, audit.Entry{
		Principal:      patient,
		Role:           access.RolePatient.String(),
		Action:         "consent.grant",
		TargetResource: target,
		Details: map[string]string{
			"grantee":  grantee,
			"category": category.String(),
		},
	}, err)
}

func (r *Registry) grant(st ledger.State, patient, grantee string, category Category, duration time.Duration, purpose string, allowSubAccess bool) (Record, error) {
	const op = "consent.grantConsent"

	var errs errsx.Map
	if patient == "" {
		errs.Set("patient", "patient is required")
	}
	if grantee == "" {
		errs.Set("grantee", "grantee is required")
	} else if grantee == patient {
		errs.Set("grantee", "patients cannot grant consent to themselves")
	}
	if duration <= 0 || duration > r.maxConsent {
		errs.Set("duration", "duration must be positive and at most "+r.maxConsent.String())
	}
	if !category.IsACategory() {
		errs.Set("category", "unknown category "+category.String())
	}
	if purpose == "" {
		errs.Set("purpose", "purpose is required")
	}
	if err := apperr.Invalid(op, errs); err != nil {
		return Record{}, err
	}

	isPatient, err := r.matrix.HasRole(st, patient, access.RolePatient)
	if err != nil {
		return Record{}, err
	}
	if !isPatient {
		return Record{}, apperr.New(apperr.KindAccessDenied, op, "only patients may grant consent").With("principal", patient)
	}
	if ok, err := r.isHealthcare(st, grantee); err != nil {
		return Record{}, err
	} else if !ok {
		return Record{}, apperr.New(apperr.KindRoleMismatch, op, "grantee holds no healthcare role").With("grantee", grantee)
	}

	now := st.Timestamp()
	if existing, err := r.activeFor(st, patient, grantee, category); err != nil {
		return Record{}, err
	} else if existing.Valid(now) {
		return Record{}, apperr.New(apperr.KindDuplicateEntity, op, "an identical consent is already active").
			With("consentId", existing.ConsentID)
	}

	id, err := derivedID("consent-", map[string]string{
		"patient":   patient,
		"grantee":   grantee,
		"category":  category.String(),
		"purpose":   purpose,
		"timestamp": now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ConsentID:      id,
		PatientID:      patient,
		GranteeID:      grantee,
		Category:       category,
		GrantedAt:      now,
		ExpiresAt:      now.Add(duration),
		IsActive:       true,
		Status:         StatusActive,
		Purpose:        purpose,
		AllowSubAccess: allowSubAccess,
	}
	if err := putJSON(st, consentType, id, rec); err != nil {
		return Record{}, err
	}
	if err := putIndex(st, patientIndex, patient, id); err != nil {
		return Record{}, err
	}
	if err := putIndex(st, granteeIndex, grantee, id); err != nil {
		return Record{}, err
	}
	activeKey, err := ledger.CreateCompositeKey(activeIndex, []string{patient, grantee, category.String()})
	if err != nil {
		return Record{}, err
	}
	return rec, st.PutState(activeKey, []byte(id))
}

func (r *Registry) isHealthcare(st ledger.State, id string) (bool, error) {
	p, err := r.matrix.Principal(st, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, role := range p.Roles {
		if role.IsHealthcare() {
			return true, nil
		}
	}
	return false, nil
}

func (r *Registry) activeFor(st ledger.State, patient, grantee string, category Category) (Record, error) {
	key, err := ledger.CreateCompositeKey(activeIndex, []string{patient, grantee, category.String()})
	if err != nil {
		return Record{}, err
	}
	id, err := st.GetState(key)
	if err != nil || id == nil {
		return Record{}, err
	}
	var rec Record
	err = getJSON(st, "consent.activeFor", consentType, string(id), &rec)
	return rec, err
}

// RevokeConsent ends consentID. Only the owning patient may revoke, and only
// an active consent.
func (r *Registry) RevokeConsent(st ledger.State, caller, consentID string) (Record, error) {
	rec, err := r.revoke(st, caller, consentID)
	return rec, r.trail.Outcome(st, audit.Entry{
		Principal:      caller,
		Action:         "consent.revoke",
		TargetResource: consentID,
	}, err)
}

func (r *Registry) revoke(st ledger.State, caller, consentID string) (Record, error) {
	const op = "consent.revokeConsent"
	var rec Record
	if err := getJSON(st, op, consentType, consentID, &rec); err != nil {
		return Record{}, err
	}
	if caller != rec.PatientID {
		return Record{}, apperr.New(apperr.KindAccessDenied, op, "only the patient may revoke consent").
			With("consentId", consentID).With("principal", caller)
	}
	if !rec.IsActive {
		return rec, apperr.New(apperr.KindInvalidState, op, "consent is already "+string(rec.Status)).With("consentId", consentID)
	}
	rec.IsActive = false
	rec.Status = StatusRevoked
	rec.ClosedAt = st.Timestamp()
	return rec, putJSON(st, consentType, consentID, rec)
}

// Decision explains a data access answer.
type Decision struct {
	Allowed     bool   `json:"allowed"`
	Basis       string `json:"basis"`
	ConsentID   string `json:"consentId,omitempty"`
	EmergencyID string `json:"emergencyId,omitempty"`
}

// HasDataAccess decides whether accessor may read patient's data in
// category. A live emergency grant held by an emergency-role accessor wins;
// otherwise an active, unexpired consent for the category or the full
// record is required.
func (r *Registry) HasDataAccess(st ledger.State, patient, accessor string, category Category) (bool, error) {
	d, err := r.Decide(st, patient, accessor, category)
	return d.Allowed, err
}

// Decide is HasDataAccess returning the basis of the answer.
func (r *Registry) Decide(st ledger.State, patient, accessor string, category Category) (Decision, error) {
	d, err := r.decide(st, patient, accessor, category)
	if err != nil {
		return Decision{}, err
	}
	details := map[string]string{
		"patient":  patient,
		"category": category.String(),
		"basis":    d.Basis,
	}
	if d.ConsentID != "" {
		details["consentId"] = d.ConsentID
	}
	if d.EmergencyID != "" {
		details["emergencyId"] = d.EmergencyID
	}
	if _, err := r.trail.Record(st, audit.Entry{
		Principal:      accessor,
		Action:         "consent.check",
		TargetResource: patient,
		Success:        d.Allowed,
		Details:        details,
	}); err != nil {
		return Decision{}, err
	}
	return d, nil
}

func (r *Registry) decide(st ledger.State, patient, accessor string, category Category) (Decision, error) {
	if patient == "" || accessor == "" || !category.IsACategory() {
		return Decision{Basis: "malformed"}, nil
	}
	now := st.Timestamp()

	isEmergency, err := r.matrix.HasRole(st, accessor, access.RoleEmergency)
	if err != nil {
		return Decision{}, err
	}
	if isEmergency {
		grant, err := r.liveEmergency(st, patient, accessor, now)
		if err != nil {
			return Decision{}, err
		}
		if grant != nil {
			if !grant.Used {
				grant.Used = true
				if err := putJSON(st, emergencyType, grant.AccessID, grant); err != nil {
					return Decision{}, err
				}
			}
			return Decision{Allowed: true, Basis: "emergency", EmergencyID: grant.AccessID}, nil
		}
	}

	ids, err := indexed(st, granteeIndex, accessor)
	if err != nil {
		return Decision{}, err
	}
	for _, id := range ids {
		var rec Record
		if err := getJSON(st, "consent.hasDataAccess", consentType, id, &rec); err != nil {
			return Decision{}, err
		}
		if rec.PatientID == patient && rec.Valid(now) && rec.Category.Covers(category) {
			return Decision{Allowed: true, Basis: "consent", ConsentID: rec.ConsentID}, nil
		}
	}
	return Decision{Basis: "none"}, nil
}

func (r *Registry) liveEmergency(st ledger.State, patient, accessor string, now time.Time) (*EmergencyAccess, error) {
	ids, err := indexed(st, emergencyIndex, patient, accessor)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		var grant EmergencyAccess
		if err := getJSON(st, "consent.emergency", emergencyType, id, &grant); err != nil {
			return nil, err
		}
		if now.Before(grant.ExpiresAt) {
			return &grant, nil
		}
	}
	return nil, nil
}

// GrantEmergencyAccess lets an emergency-role accessor bypass consent for
// patient for up to 24 hours. A reason is mandatory.
func (r *Registry) GrantEmergencyAccess(st ledger.State, accessor, patient, reason string, duration time.Duration) (EmergencyAccess, error) {
	grant, err := r.grantEmergency(st, accessor, patient, reason, duration)
	target := grant.AccessID
	if target == "" {
		target = patient
	}
	details := map[string]string{
		"patient":         patient,
		"durationSeconds": strconv.Itoa(int(duration / time.Second)),
	}
	// the trail is readable by every auditor; only the grant keeps the text
	if reason != "" {
		if ih, herr := hashing.SaltedHash(reason, nil); herr == nil {
			details["emergencyReasonHash"] = ih.Hash
			details["emergencyReasonSalt"] = ih.Salt
		}
	}
	return grant, r.trail.Outcome(st, audit.Entry{
		Principal:      accessor,
		Role:           access.RoleEmergency.String(),
		Action:         "consent.emergency_grant",
		TargetResource: target,
		Details:        details,
	}, err)
}

func (r *Registry) grantEmergency(st ledger.State, accessor, patient, reason string, duration time.Duration) (EmergencyAccess, error) {
	const op = "consent.grantEmergencyAccess"

	var errs errsx.Map
	if accessor == "" {
		errs.Set("accessor", "accessor is required")
	}
	if patient == "" {
		errs.Set("patient", "patient is required")
	} else if patient == accessor {
		errs.Set("patient", "accessor and patient must differ")
	}
	if reason == "" {
		errs.Set("reason", "reason is required")
	} else if len(reason) > MaxReasonLength {
		errs.Set("reason", "reason must be at most "+strconv.Itoa(MaxReasonLength)+" bytes")
	}
	if duration <= 0 || duration > r.maxEmergency {
		errs.Set("duration", "duration must be positive and at most "+r.maxEmergency.String())
	}
	if err := apperr.Invalid(op, errs); err != nil {
		return EmergencyAccess{}, err
	}

	isEmergency, err := r.matrix.HasRole(st, accessor, access.RoleEmergency)
	if err != nil {
		return EmergencyAccess{}, err
	}
	if !isEmergency {
		return EmergencyAccess{}, apperr.New(apperr.KindAccessDenied, op, "emergency role required").With("principal", accessor)
	}

	now := st.Timestamp()
	id, err := derivedID("emergency-", map[string]string{
		"patient":   patient,
		"accessor":  accessor,
		"reason":    reason,
		"timestamp": now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return EmergencyAccess{}, err
	}
	grant := EmergencyAccess{
		AccessID:   id,
		PatientID:  patient,
		AccessorID: accessor,
		Reason:     reason,
		GrantedAt:  now,
		ExpiresAt:  now.Add(duration),
	}
	if err := putJSON(st, emergencyType, id, grant); err != nil {
		return EmergencyAccess{}, err
	}
	if err := putIndex(st, emergencyIndex, patient, accessor, id); err != nil {
		return EmergencyAccess{}, err
	}
	return grant, putIndex(st, emergencyPatientIndex, patient, id)
}

// CleanupExpiredConsents closes every listed consent whose expiry has
// passed. It is idempotent; unknown and already closed consents are skipped.
// One audit entry is written per consent expired here plus one for the sweep.
func (r *Registry) CleanupExpiredConsents(st ledger.State, caller string, consentIDs []string) ([]string, error) {
	now := st.Timestamp()
	expired := []string{}
	for _, id := range consentIDs {
		var rec Record
		err := getJSON(st, "consent.cleanupExpiredConsents", consentType, id, &rec)
		if apperr.Is(err, apperr.KindNotFound) || apperr.Is(err, apperr.KindInvalidInput) {
			continue
		}
		if err != nil {
			return expired, err
		}
		if !rec.IsActive || now.Before(rec.ExpiresAt) {
			continue
		}
		rec.IsActive = false
		rec.Status = StatusExpired
		rec.ClosedAt = now
		if err := putJSON(st, consentType, id, rec); err != nil {
			return expired, err
		}
		if _, err := r.trail.Record(st, audit.Entry{
			Principal:      caller,
			Action:         "consent.expired",
			TargetResource: id,
			Success:        true,
			Details:        map[string]string{"patient": rec.PatientID, "grantee": rec.GranteeID},
		}); err != nil {
			return expired, err
		}
		expired = append(expired, id)
	}

	_, err := r.trail.Record(st, audit.Entry{
		Principal:      caller,
		Action:         "consent.cleanup",
		TargetResource: "consent",
		Success:        true,
		Details: map[string]string{
			"checked": strconv.Itoa(len(consentIDs)),
			"expired": strconv.Itoa(len(expired)),
		},
	})
	return expired, err
}

// Consent returns one consent record.
func (r *Registry) Consent(st ledger.State, consentID string) (Record, error) {
	var rec Record
	err := getJSON(st, "consent.consent", consentType, consentID, &rec)
	return rec, err
}

// PatientConsents lists every consent granted by patient.
func (r *Registry) PatientConsents(st ledger.State, patient string) ([]Record, error) {
	return r.list(st, patientIndex, patient)
}

// GranteeConsents lists every consent granted to grantee.
func (r *Registry) GranteeConsents(st ledger.State, grantee string) ([]Record, error) {
	return r.list(st, granteeIndex, grantee)
}

// ExpiredCandidates lists active consents whose expiry has passed, for the
// maintenance sweep.
func (r *Registry) ExpiredCandidates(st ledger.State) ([]string, error) {
	kvs, err := st.GetStateByPartialCompositeKey(consentType, nil)
	if err != nil {
		return nil, err
	}
	now := st.Timestamp()
	var ids []string
	for _, kv := range kvs {
		var rec Record
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			return nil, err
		}
		if rec.IsActive && !now.Before(rec.ExpiresAt) {
			ids = append(ids, rec.ConsentID)
		}
	}
	return ids, nil
}

func (r *Registry) list(st ledger.State, index, owner string) ([]Record, error) {
	if owner == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "consent.list", "principal is required")
	}
	ids, err := indexed(st, index, owner)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		var rec Record
		if err := getJSON(st, "consent.list", consentType, id, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// EmergencyGrants lists every emergency access record naming patient.
func (r *Registry) EmergencyGrants(st ledger.State, patient string) ([]EmergencyAccess, error) {
	if patient == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "consent.emergencyGrants", "patient is required")
	}
	ids, err := indexed(st, emergencyPatientIndex, patient)
	if err != nil {
		return nil, err
	}
	out := make([]EmergencyAccess, 0, len(ids))
	for _, id := range ids {
		var grant EmergencyAccess
		if err := getJSON(st, "consent.emergencyGrants", emergencyType, id, &grant); err != nil {
			return nil, err
		}
		out = append(out, grant)
	}
	return out, nil
}
