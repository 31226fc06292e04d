package protection

import (
	"encoding/json"
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/access"
	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/consent"
	"github.com/doodlesbykumbi/phivault/pkg/hashing"
	"github.com/doodlesbykumbi/phivault/pkg/keys"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

const (
	DefaultChunkSize  = 50
	DefaultSampleSize = 3

	// KeyPurpose scopes the symmetric key a provider seals packages with.
	KeyPurpose = "phi"
)

// Orchestrator runs the protect and unprotect workflows over the key
// manager, the access matrix and the consent registry.
type Orchestrator struct {
	trail      *audit.Trail
	keys       *keys.Manager
	matrix     *access.Matrix
	consent    *consent.Registry
	chunkSize  int
	sampleSize int
}

type Option func(*Orchestrator)

// WithChunkSize bounds how many new batch items one ProtectBatch call seals.
func WithChunkSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithSampleSize sets how many items VerifyBatchIntegrity opens.
func WithSampleSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sampleSize = n
		}
	}
}

func NewOrchestrator(trail *audit.Trail, km *keys.Manager, matrix *access.Matrix, registry *consent.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		trail:      trail,
		keys:       km,
		matrix:     matrix,
		consent:    registry,
		chunkSize:  DefaultChunkSize,
		sampleSize: DefaultSampleSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Options describe a package being protected. An empty ProtectionID is
// derived from the owner and the invocation time.
type Options struct {
	ProtectionID   string
	PatientID      string
	Classification string
	Category       consent.Category
}

func (o Options) classification() string {
	if o.Classification == "" {
		return "PHI"
	}
	return o.Classification
}

// Protect validates payload, seals it under the owner's active key and
// stores the resulting package.
func (o *Orchestrator) Protect(st ledger.State, payload []byte, owner string, opts Options) (Package, error) {
	pkg, err := o.protect(st, "protection.protect", payload, owner, opts, "")
	target := pkg.ProtectionID
	if target == "" {
		target = firstNonEmpty(opts.ProtectionID, owner)
	}
	details := map[string]string{"classification": opts.classification()}
	if pkg.KeyRef.KeyID != "" {
		details["keyId"] = pkg.KeyRef.KeyID
	}
	if opts.PatientID != "" {
		details["patient"] = opts.PatientID
	}
	return pkg, o.trail.Outcome(st, audit.Entry{
		Principal:      owner,
		Action:         "protection.protect",
		TargetResource: target,
		Details:        details,
	}, err)
}

func (o *Orchestrator) protect(st ledger.State, op string, payload []byte, owner string, opts Options, batchID string) (Package, error) {
	if owner == "" {
		return Package{}, apperr.New(apperr.KindInvalidInput, op, "owner is required")
	}
	if !opts.Category.IsACategory() {
		return Package{}, apperr.New(apperr.KindInvalidInput, op, "unknown data category")
	}
	canonical, err := validatePayload(op, payload)
	if err != nil {
		return Package{}, err
	}

	now := st.Timestamp()
	id := opts.ProtectionID
	if id == "" {
		h, err := hashing.Hash(map[string]string{
			"owner":     owner,
			"txId":      st.TxID(),
			"timestamp": now.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return Package{}, err
		}
		id = "prot-" + h[:32]
	}
	if _, err := ledger.CreateCompositeKey(packageType, []string{id}); err != nil {
		return Package{}, apperr.Wrap(apperr.KindInvalidInput, op, err)
	}
	found, err := exists(st, packageType, id)
	if err != nil {
		return Package{}, err
	}
	if found {
		return Package{}, apperr.New(apperr.KindDuplicateEntity, op, "protection id already in use").With("protectionId", id)
	}

	key, err := o.keys.ActiveSymmetricKey(st, owner, KeyPurpose, owner)
	if err != nil {
		return Package{}, err
	}
	pkg := Package{
		ProtectionID:   id,
		OwnerID:        owner,
		PatientID:      opts.PatientID,
		Classification: opts.classification(),
		Category:       opts.Category,
		BatchID:        batchID,
		CreatedAt:      now,
		Status:         StatusActive,
	}
	sealed, ref, err := o.keys.SealWith(st, key.KeyID, canonical, pkg.aad())
	if err != nil {
		return Package{}, err
	}
	ih, err := hashing.SaltedHash(json.RawMessage(canonical), nil)
	if err != nil {
		return Package{}, err
	}
	pkg.Sealed = *sealed
	pkg.KeyRef = ref
	pkg.IntegrityHash = ih

	if err := store(st, packageType, id, pkg); err != nil {
		return Package{}, err
	}
	if err := putIndex(st, ownerIndex, owner, id); err != nil {
		return Package{}, err
	}
	if pkg.PatientID != "" {
		if err := putIndex(st, patientIndex, pkg.PatientID, id); err != nil {
			return Package{}, err
		}
	}
	return pkg, nil
}

// Unprotect opens a package for requester. The owner and the package's
// patient always may; anyone else needs read permission on medical records
// and a consent or emergency grant from the patient.
func (o *Orchestrator) Unprotect(st ledger.State, protectionID, requester string) (json.RawMessage, Package, error) {
	data, pkg, err := o.unprotect(st, "protection.unprotect", protectionID, requester)
	details := map[string]string{}
	if pkg.KeyRef.KeyID != "" {
		details["keyId"] = pkg.KeyRef.KeyID
	}
	return data, pkg, o.trail.Outcome(st, audit.Entry{
		Principal:      requester,
		Action:         "protection.unprotect",
		TargetResource: firstNonEmpty(protectionID, requester),
		Details:        details,
	}, err)
}

func (o *Orchestrator) unprotect(st ledger.State, op, protectionID, requester string) (json.RawMessage, Package, error) {
	if requester == "" {
		return nil, Package{}, apperr.New(apperr.KindInvalidInput, op, "requester is required")
	}
	var pkg Package
	if err := load(st, op, packageType, protectionID, &pkg); err != nil {
		return nil, Package{}, err
	}
	if err := o.authorizeRead(st, op, pkg, requester); err != nil {
		return nil, pkg, err
	}
	if pkg.Status == StatusRevoked {
		return nil, pkg, apperr.New(apperr.KindAccessDenied, op, "package is revoked").With("protectionId", pkg.ProtectionID)
	}
	data, err := o.open(st, op, pkg)
	return data, pkg, err
}

func (o *Orchestrator) open(st ledger.State, op string, pkg Package) (json.RawMessage, error) {
	sealed := pkg.Sealed
	plain, err := o.keys.OpenWith(st, pkg.KeyRef, &sealed, pkg.aad())
	if err != nil {
		if _, tagged := apperr.KindOf(err); tagged {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindIntegrityViolation, op, err).With("protectionId", pkg.ProtectionID)
	}
	if !hashing.Verify(json.RawMessage(plain), pkg.IntegrityHash) {
		return nil, apperr.New(apperr.KindIntegrityViolation, op, "integrity hash mismatch").With("protectionId", pkg.ProtectionID)
	}
	return json.RawMessage(plain), nil
}

func (o *Orchestrator) authorizeRead(st ledger.State, op string, pkg Package, requester string) error {
	if requester == pkg.OwnerID || (pkg.PatientID != "" && requester == pkg.PatientID) {
		return nil
	}
	denied := apperr.New(apperr.KindAccessDenied, op, "requester may not read this package").
		With("protectionId", pkg.ProtectionID).With("requester", requester)
	if pkg.PatientID == "" {
		return denied
	}

	p, err := o.matrix.Principal(st, requester)
	if apperr.Is(err, apperr.KindNotFound) {
		return denied
	}
	if err != nil {
		return err
	}
	role, ok := p.PrimaryRole()
	if !ok {
		return denied
	}
	allowed, err := o.matrix.HasPermission(st, requester, role, access.PermissionRead, access.ResourceMedicalRecord)
	if err != nil {
		return err
	}
	if !allowed {
		return denied
	}
	allowed, err = o.consent.HasDataAccess(st, pkg.PatientID, requester, pkg.Category)
	if err != nil {
		return err
	}
	if !allowed {
		return denied
	}
	return nil
}

// Revoke retires a package. Only its owner or patient may revoke it, and a
// package is revoked at most once.
func (o *Orchestrator) Revoke(st ledger.State, protectionID, requester string) (Package, error) {
	pkg, err := o.revoke(st, protectionID, requester)
	return pkg, o.trail.Outcome(st, audit.Entry{
		Principal:      requester,
		Action:         "protection.revoke",
		TargetResource: firstNonEmpty(protectionID, requester),
	}, err)
}

func (o *Orchestrator) revoke(st ledger.State, protectionID, requester string) (Package, error) {
	const op = "protection.revoke"
	var pkg Package
	if err := load(st, op, packageType, protectionID, &pkg); err != nil {
		return Package{}, err
	}
	if requester == "" || (requester != pkg.OwnerID && requester != pkg.PatientID) {
		return pkg, apperr.New(apperr.KindAccessDenied, op, "only the owner or patient may revoke").
			With("protectionId", pkg.ProtectionID).With("requester", requester)
	}
	if pkg.Status == StatusRevoked {
		return pkg, apperr.New(apperr.KindInvalidState, op, "package already revoked").With("protectionId", pkg.ProtectionID)
	}
	pkg.Status = StatusRevoked
	pkg.RevokedAt = st.Timestamp()
	pkg.RevokedBy = requester
	return pkg, store(st, packageType, pkg.ProtectionID, pkg)
}

// Package returns a stored package without opening it.
func (o *Orchestrator) Package(st ledger.State, protectionID string) (Package, error) {
	var pkg Package
	err := load(st, "protection.package", packageType, protectionID, &pkg)
	return pkg, err
}

// OwnerPackages lists the packages owner protected, oldest id first.
func (o *Orchestrator) OwnerPackages(st ledger.State, owner string) ([]Package, error) {
	return o.list(st, ownerIndex, owner)
}

// PatientPackages lists the packages protected on behalf of patient.
func (o *Orchestrator) PatientPackages(st ledger.State, patient string) ([]Package, error) {
	return o.list(st, patientIndex, patient)
}

func (o *Orchestrator) list(st ledger.State, index, owner string) ([]Package, error) {
	if owner == "" {
		return nil, nil
	}
	ids, err := indexed(st, index, owner)
	if err != nil {
		return nil, err
	}
	out := make([]Package, 0, len(ids))
	for _, id := range ids {
		var pkg Package
		if err := load(st, "protection.list", packageType, id, &pkg); err != nil {
			return nil, err
		}
		out = append(out, pkg)
	}
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
