package records

import (
	"context"
	"encoding/json"
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/access"
	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
	"github.com/doodlesbykumbi/phivault/pkg/protection"
)

// ShareRecord re-seals the current version of recordID for recipient's RSA
// key. from must be able to read the record.
func (c *Contract) ShareRecord(ctx context.Context, recordID, from, to string, expiresAt time.Time) (protection.Share, error) {
	var out protection.Share
	err := c.invoke(ctx, "record.share", func(st ledger.State) error {
		var err error
		out, err = c.share(st, recordID, from, to, expiresAt)
		return c.trail.Outcome(st, audit.Entry{
			Principal:      from,
			Action:         "record.share",
			TargetResource: firstNonEmpty(recordID, from),
			Details:        map[string]string{"recipient": to, "shareId": out.ShareID},
		}, err)
	})
	return out, err
}

func (c *Contract) share(st ledger.State, recordID, from, to string, expiresAt time.Time) (protection.Share, error) {
	const op = "record.share"
	rec, err := getRecord(st, op, recordID)
	if err != nil {
		return protection.Share{}, err
	}
	if rec.Status != StatusActive {
		return protection.Share{}, apperr.New(apperr.KindAccessDenied, op, "record access is revoked").With("recordId", recordID)
	}
	if !rec.isParty(from) {
		if _, err := c.authorize(st, op, from, access.PermissionShare, access.ResourceMedicalRecord); err != nil {
			return protection.Share{}, err
		}
	}
	sh, err := c.protection.Share(st, rec.ProtectionID, from, to, protection.ShareOptions{ExpiresAt: expiresAt})
	if err != nil {
		return protection.Share{}, err
	}
	return sh, emit(st, "RecordShared", map[string]string{
		"recordId":     recordID,
		"shareId":      sh.ShareID,
		"protectionId": sh.ProtectionID,
		"fromId":       from,
		"toId":         to,
	})
}

// AccessSharedRecord opens a share addressed to requester.
func (c *Contract) AccessSharedRecord(ctx context.Context, shareID, requester string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.invoke(ctx, "record.access_shared", func(st ledger.State) error {
		var err error
		if out, err = c.protection.AccessShared(st, shareID, requester); err != nil {
			return err
		}
		return emit(st, "SharedRecordAccessed", map[string]string{
			"shareId":     shareID,
			"requesterId": requester,
		})
	})
	return out, err
}
