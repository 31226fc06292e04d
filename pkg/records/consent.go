package records

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/consent"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

func (c *Contract) GrantConsent(ctx context.Context, patient, grantee string, category consent.Category, duration time.Duration, purpose string, allowSubAccess bool) (consent.Record, error) {
	var out consent.Record
	err := c.invoke(ctx, "consent.grant", func(st ledger.State) error {
		var err error
		if out, err = c.consent.GrantConsent(st, patient, grantee, category, duration, purpose, allowSubAccess); err != nil {
			return err
		}
		return emit(st, "ConsentGranted", map[string]string{
			"consentId": out.ConsentID,
			"patientId": patient,
			"granteeId": grantee,
			"category":  category.String(),
			"expiresAt": out.ExpiresAt.Format(time.RFC3339Nano),
		})
	})
	return out, err
}

// RevokeConsent closes a consent immediately. Only its patient may revoke it.
func (c *Contract) RevokeConsent(ctx context.Context, patient, consentID string) (consent.Record, error) {
	var out consent.Record
	err := c.invoke(ctx, "consent.revoke", func(st ledger.State) error {
		var err error
		if out, err = c.consent.RevokeConsent(st, patient, consentID); err != nil {
			return err
		}
		return emit(st, "ConsentRevoked", map[string]string{
			"consentId": consentID,
			"patientId": out.PatientID,
			"granteeId": out.GranteeID,
		})
	})
	return out, err
}

// HasDataAccess answers a consent question without opening any record.
func (c *Contract) HasDataAccess(ctx context.Context, patient, accessor string, category consent.Category) (bool, error) {
	var allowed bool
	err := c.invoke(ctx, "consent.check", func(st ledger.State) error {
		var err error
		allowed, err = c.consent.HasDataAccess(st, patient, accessor, category)
		return err
	})
	if err == nil {
		c.metrics.ObserveDecision(allowed)
	}
	return allowed, err
}

func (c *Contract) GrantEmergencyAccess(ctx context.Context, accessor, patient, reason string, duration time.Duration) (consent.EmergencyAccess, error) {
	var out consent.EmergencyAccess
	err := c.invoke(ctx, "consent.emergency", func(st ledger.State) error {
		var err error
		if out, err = c.consent.GrantEmergencyAccess(st, accessor, patient, reason, duration); err != nil {
			return err
		}
		return emit(st, "EmergencyAccessGranted", map[string]string{
			"accessId":   out.AccessID,
			"patientId":  patient,
			"accessorId": accessor,
			"expiresAt":  out.ExpiresAt.Format(time.RFC3339Nano),
		})
	})
	return out, err
}

func (c *Contract) GetPatientConsents(ctx context.Context, patient string) ([]consent.Record, error) {
	return c.listConsents(ctx, "consent.list_patient", patient, c.consent.PatientConsents)
}

func (c *Contract) GetGranteeConsents(ctx context.Context, grantee string) ([]consent.Record, error) {
	return c.listConsents(ctx, "consent.list_grantee", grantee, c.consent.GranteeConsents)
}

func (c *Contract) listConsents(ctx context.Context, action, principal string, list func(ledger.State, string) ([]consent.Record, error)) ([]consent.Record, error) {
	var out []consent.Record
	err := c.invoke(ctx, action, func(st ledger.State) error {
		var err error
		out, err = list(st, principal)
		return c.trail.Outcome(st, audit.Entry{
			Principal:      principal,
			Action:         action,
			TargetResource: principal,
			Details:        map[string]string{"count": strconv.Itoa(len(out))},
		}, err)
	})
	return out, err
}

// CleanupExpiredConsents expires the listed consents that are past their
// expiry. Anyone may call it; a second call over the same ids is a no-op.
func (c *Contract) CleanupExpiredConsents(ctx context.Context, caller string, consentIDs []string) ([]string, error) {
	var expired []string
	err := c.invoke(ctx, "consent.cleanup", func(st ledger.State) error {
		var err error
		expired, err = c.cleanup(st, caller, consentIDs)
		return err
	})
	return expired, err
}

func (c *Contract) cleanup(st ledger.State, caller string, consentIDs []string) ([]string, error) {
	expired, err := c.consent.CleanupExpiredConsents(st, caller, consentIDs)
	if err != nil {
		return expired, err
	}
	if len(expired) == 0 {
		return expired, nil
	}
	return expired, emit(st, "ConsentExpired", map[string]string{
		"consentIds": strings.Join(expired, ","),
		"count":      strconv.Itoa(len(expired)),
	})
}
