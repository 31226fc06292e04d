package records

import (
	"context"
	"strconv"

	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/keys"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

// GenerateRSAKeyPair creates the RSA pair used to receive shared records.
// An owner holds at most one active pair.
func (c *Contract) GenerateRSAKeyPair(ctx context.Context, owner string) (keys.KeyRecord, error) {
	var out keys.KeyRecord
	err := c.invoke(ctx, "key.generate_rsa", func(st ledger.State) error {
		var err error
		if out, err = c.keys.GenerateAsymmetricKeyPair(st, owner, 0, false); err != nil {
			return err
		}
		return emit(st, "KeyGenerated", map[string]string{
			"keyId":     out.KeyID,
			"ownerId":   owner,
			"algorithm": string(out.Algorithm),
		})
	})
	return out, err
}

// GenerateSymmetricKey creates a data key for (owner, purpose) held by
// custodian.
func (c *Contract) GenerateSymmetricKey(ctx context.Context, owner, purpose, custodian string) (keys.KeyRecord, error) {
	var out keys.KeyRecord
	err := c.invoke(ctx, "key.generate_symmetric", func(st ledger.State) error {
		var err error
		if out, err = c.keys.GenerateSymmetricKey(st, owner, purpose, custodian); err != nil {
			return err
		}
		return emit(st, "KeyGenerated", map[string]string{
			"keyId":     out.KeyID,
			"ownerId":   owner,
			"algorithm": string(out.Algorithm),
		})
	})
	return out, err
}

func (c *Contract) RotateSymmetricKey(ctx context.Context, keyID, requester string) (keys.KeyRecord, error) {
	var out keys.KeyRecord
	err := c.invoke(ctx, "key.rotate", func(st ledger.State) error {
		var err error
		if out, err = c.keys.RotateSymmetricKey(st, keyID, requester); err != nil {
			return err
		}
		return emit(st, "KeyRotated", map[string]string{
			"keyId":   keyID,
			"version": strconv.Itoa(out.Version),
			"rotator": requester,
		})
	})
	return out, err
}

func (c *Contract) RevokeKey(ctx context.Context, keyID, requester, reason string) (keys.KeyRecord, error) {
	var out keys.KeyRecord
	err := c.invoke(ctx, "key.revoke", func(st ledger.State) error {
		var err error
		if out, err = c.keys.Revoke(st, keyID, requester, reason); err != nil {
			return err
		}
		return emit(st, "KeyRevoked", map[string]string{
			"keyId":   keyID,
			"revoker": requester,
		})
	})
	return out, err
}

// GetOwnerKeys lists owner's keys, retired ones included. Material is never
// part of a KeyRecord.
func (c *Contract) GetOwnerKeys(ctx context.Context, owner string) ([]keys.KeyRecord, error) {
	var out []keys.KeyRecord
	err := c.invoke(ctx, "key.list", func(st ledger.State) error {
		var err error
		out, err = c.keys.OwnerKeys(st, owner)
		return c.trail.Outcome(st, audit.Entry{
			Principal:      owner,
			Action:         "key.list",
			TargetResource: owner,
			Details:        map[string]string{"count": strconv.Itoa(len(out))},
		}, err)
	})
	return out, err
}

// CheckKeyRotationNeeded lists custodian's data keys expiring within
// horizonDays. Zero uses the configured horizon.
func (c *Contract) CheckKeyRotationNeeded(ctx context.Context, custodian string, horizonDays int) ([]keys.KeyRecord, error) {
	if horizonDays <= 0 {
		horizonDays = c.horizonDays
	}
	var out []keys.KeyRecord
	err := c.invoke(ctx, "key.rotation_check", func(st ledger.State) error {
		var err error
		out, err = c.keys.CheckRotationNeeded(st, custodian, horizonDays)
		return err
	})
	return out, err
}
