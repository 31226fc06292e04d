package protection

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/phivault/pkg/access"
	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/consent"
	"github.com/doodlesbykumbi/phivault/pkg/keys"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
	"github.com/doodlesbykumbi/phivault/pkg/ledger/ledgertest"
)

const day = 24 * time.Hour

const record = `{"diagnosis":"influenza","vitals":{"bp":"120/80","pulse":72}}`

type fixture struct {
	*ledgertest.Env
	keys     *keys.Manager
	matrix   *access.Matrix
	registry *consent.Registry
	o        *Orchestrator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	env := ledgertest.New(t)
	km, err := keys.NewManager(env.DataKey, env.Trail)
	require.NoError(t, err)
	matrix := access.NewMatrix(env.Trail)
	registry := consent.NewRegistry(env.Trail, matrix)
	f := &fixture{
		Env:      env,
		keys:     km,
		matrix:   matrix,
		registry: registry,
		o:        NewOrchestrator(env.Trail, km, matrix, registry, opts...),
	}
	for id, role := range map[string]access.Role{
		"P1": access.RolePatient,
		"D1": access.RoleDoctor,
		"D2": access.RoleDoctor,
		"N1": access.RoleNurse,
		"R1": access.RoleResearcher,
	} {
		require.NoError(t, env.Invoke(func(st ledger.State) error {
			_, err := matrix.RegisterPrincipal(st, id, []access.Role{role})
			return err
		}))
	}
	return f
}

func (f *fixture) protect(t *testing.T, payload, owner string, opts Options) Package {
	t.Helper()
	var pkg Package
	require.NoError(t, f.Invoke(func(st ledger.State) error {
		var err error
		pkg, err = f.o.Protect(st, []byte(payload), owner, opts)
		return err
	}))
	return pkg
}

func (f *fixture) unprotect(t *testing.T, id, requester string) (string, error) {
	t.Helper()
	var data []byte
	err := f.Invoke(func(st ledger.State) error {
		raw, _, err := f.o.Unprotect(st, id, requester)
		data = raw
		return err
	})
	return string(data), err
}

func lastEntry(t *testing.T, f *fixture) (string, bool) {
	t.Helper()
	entries := f.Audit(t)
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	return last.Action, last.Success
}

func TestProtectAndUnprotectByOwner(t *testing.T) {
	f := newFixture(t)
	pkg := f.protect(t, record, "D1", Options{PatientID: "P1", Category: consent.CategoryGeneral})

	assert.NotEmpty(t, pkg.ProtectionID)
	assert.Equal(t, "PHI", pkg.Classification)
	assert.Equal(t, StatusActive, pkg.Status)
	assert.Equal(t, 1, pkg.KeyRef.Version)
	assert.NotContains(t, string(pkg.Sealed.Ciphertext), "influenza")

	data, err := f.unprotect(t, pkg.ProtectionID, "D1")
	require.NoError(t, err)
	assert.JSONEq(t, record, data)

	data, err = f.unprotect(t, pkg.ProtectionID, "P1")
	require.NoError(t, err)
	assert.JSONEq(t, record, data)
}

func TestUnprotectDeniedWithoutConsent(t *testing.T) {
	f := newFixture(t)
	pkg := f.protect(t, record, "D1", Options{PatientID: "P1", Category: consent.CategoryGeneral})

	_, err := f.unprotect(t, pkg.ProtectionID, "D2")
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)

	action, success := lastEntry(t, f)
	assert.Equal(t, "protection.unprotect", action)
	assert.False(t, success)
}

func TestUnprotectWithConsent(t *testing.T) {
	f := newFixture(t)
	pkg := f.protect(t, record, "D1", Options{PatientID: "P1", Category: consent.CategoryLabResults})

	require.NoError(t, f.Invoke(func(st ledger.State) error {
		_, err := f.registry.GrantConsent(st, "P1", "D2", consent.CategoryLabResults, day, "second opinion", false)
		return err
	}))
	data, err := f.unprotect(t, pkg.ProtectionID, "D2")
	require.NoError(t, err)
	assert.JSONEq(t, record, data)

	// consent without read permission is not enough
	require.NoError(t, f.Invoke(func(st ledger.State) error {
		_, err := f.registry.GrantConsent(st, "P1", "R1", consent.CategoryFullRecord, day, "study", false)
		return err
	}))
	_, err = f.unprotect(t, pkg.ProtectionID, "R1")
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
}

func TestUnprotectUnknownPackage(t *testing.T) {
	f := newFixture(t)
	_, err := f.unprotect(t, "prot-missing", "D1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestProtectRejectsInvalidPayloads(t *testing.T) {
	f := newFixture(t)
	for name, payload := range map[string]string{
		"empty":             ``,
		"not json":          `diagnosis: flu`,
		"array":             `[1,2,3]`,
		"script":            `{"note":"<script>alert(1)</script>"}`,
		"sql":               `{"note":"x'; DROP TABLE patients"}`,
		"operator":          `{"age":{"$gt":1}}`,
		"path traversal":    `{"file":"../../etc/passwd"}`,
		"escaped script":    `{"note":"\u003cscript>alert(1)\u003c/script>"}`,
		"escaped operator":  `{"\u0024where":"sleep(1000)"}`,
		"nested operator":   `{"filter":[{"$ne":null}]}`,
		"escaped traversal": `{"path":"..\u002f..\u002fetc/passwd"}`,
		"escaped in key":    `{"\u003cscript\u003e":"x"}`,
		"escaped js url":    `{"link":"javascript\u003aalert(1)"}`,
	} {
		t.Run(name, func(t *testing.T) {
			err := f.Invoke(func(st ledger.State) error {
				_, err := f.o.Protect(st, []byte(payload), "D1", Options{Category: consent.CategoryGeneral})
				return err
			})
			assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		})
	}
}

func TestProtectDuplicateID(t *testing.T) {
	f := newFixture(t)
	f.protect(t, record, "D1", Options{ProtectionID: "rec-1", Category: consent.CategoryGeneral})

	err := f.Invoke(func(st ledger.State) error {
		_, err := f.o.Protect(st, []byte(record), "D1", Options{ProtectionID: "rec-1", Category: consent.CategoryGeneral})
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrDuplicateEntity)
}

func TestProtectReusesOwnerKey(t *testing.T) {
	f := newFixture(t)
	a := f.protect(t, record, "D1", Options{Category: consent.CategoryGeneral})
	b := f.protect(t, record, "D1", Options{Category: consent.CategoryGeneral})

	assert.Equal(t, a.KeyRef.KeyID, b.KeyRef.KeyID)
	assert.NotEqual(t, a.ProtectionID, b.ProtectionID)
	assert.NotEqual(t, a.IntegrityHash.Salt, b.IntegrityHash.Salt)
}

func TestUnprotectDetectsTampering(t *testing.T) {
	f := newFixture(t)
	pkg := f.protect(t, record, "D1", Options{PatientID: "P1", Category: consent.CategoryGeneral})

	tamper := func(mutate func(*Package)) {
		require.NoError(t, f.Invoke(func(st ledger.State) error {
			var stored Package
			require.NoError(t, load(st, "test", packageType, pkg.ProtectionID, &stored))
			mutate(&stored)
			return store(st, packageType, pkg.ProtectionID, stored)
		}))
	}

	tamper(func(p *Package) { p.IntegrityHash.Hash = pkg.IntegrityHash.Salt })
	_, err := f.unprotect(t, pkg.ProtectionID, "D1")
	assert.ErrorIs(t, err, apperr.ErrIntegrityViolation)

	tamper(func(p *Package) {
		p.IntegrityHash = pkg.IntegrityHash
		p.Sealed.Ciphertext[0] ^= 0xff
	})
	_, err = f.unprotect(t, pkg.ProtectionID, "D1")
	assert.ErrorIs(t, err, apperr.ErrIntegrityViolation)
}

func TestUnprotectAfterKeyRotation(t *testing.T) {
	f := newFixture(t)
	pkg := f.protect(t, record, "D1", Options{Category: consent.CategoryGeneral})

	require.NoError(t, f.Invoke(func(st ledger.State) error {
		_, err := f.keys.RotateSymmetricKey(st, pkg.KeyRef.KeyID, "D1")
		return err
	}))
	data, err := f.unprotect(t, pkg.ProtectionID, "D1")
	require.NoError(t, err)
	assert.JSONEq(t, record, data)

	next := f.protect(t, record, "D1", Options{Category: consent.CategoryGeneral})
	assert.Equal(t, 2, next.KeyRef.Version)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	pkg := f.protect(t, record, "D1", Options{PatientID: "P1", Category: consent.CategoryGeneral})

	revoke := func(requester string) error {
		return f.Invoke(func(st ledger.State) error {
			_, err := f.o.Revoke(st, pkg.ProtectionID, requester)
			return err
		})
	}

	assert.ErrorIs(t, revoke("D2"), apperr.ErrAccessDenied)
	require.NoError(t, revoke("P1"))
	assert.ErrorIs(t, revoke("D1"), apperr.ErrInvalidState)

	_, err := f.unprotect(t, pkg.ProtectionID, "D1")
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	f.protect(t, record, "D1", Options{PatientID: "P1", Category: consent.CategoryGeneral})
	f.protect(t, record, "D1", Options{Category: consent.CategoryGeneral})
	f.protect(t, record, "D2", Options{PatientID: "P1", Category: consent.CategoryImaging})

	require.NoError(t, f.Invoke(func(st ledger.State) error {
		owned, err := f.o.OwnerPackages(st, "D1")
		require.NoError(t, err)
		assert.Len(t, owned, 2)

		forPatient, err := f.o.PatientPackages(st, "P1")
		require.NoError(t, err)
		assert.Len(t, forPatient, 2)

		none, err := f.o.OwnerPackages(st, "")
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	}))
}

func jsonRaw(b []byte) json.RawMessage {
	return json.RawMessage(b)
}
