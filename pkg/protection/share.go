package protection

import (
	"encoding/json"
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/hashing"
	"github.com/doodlesbykumbi/phivault/pkg/keys"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

// Share is a copy of a package's plaintext sealed for a single recipient.
// It never uses the owner's package key.
type Share struct {
	ShareID      string              `json:"shareId"`
	ProtectionID string              `json:"protectionId"`
	FromID       string              `json:"from"`
	ToID         string              `json:"to"`
	Envelope     keys.SharedEnvelope `json:"envelope"`
	CreatedAt    time.Time           `json:"createdAt"`
	ExpiresAt    time.Time           `json:"expiresAt"`
}

func (s Share) aad() []byte {
	return []byte(s.ShareID)
}

type ShareOptions struct {
	// ExpiresAt is optional; a zero value never expires.
	ExpiresAt time.Time
}

// Share seals the plaintext of a package for to. from must be able to
// unprotect the package.
func (o *Orchestrator) Share(st ledger.State, protectionID, from, to string, opts ShareOptions) (Share, error) {
	sh, err := o.share(st, protectionID, from, to, opts)
	details := map[string]string{"recipient": to, "protectionId": protectionID}
	if sh.Envelope.RecipientKeyID != "" {
		details["keyId"] = sh.Envelope.RecipientKeyID
	}
	return sh, o.trail.Outcome(st, audit.Entry{
		Principal:      from,
		Action:         "protection.share",
		TargetResource: firstNonEmpty(sh.ShareID, protectionID, from),
		Details:        details,
	}, err)
}

func (o *Orchestrator) share(st ledger.State, protectionID, from, to string, opts ShareOptions) (Share, error) {
	const op = "protection.share"
	if to == "" {
		return Share{}, apperr.New(apperr.KindInvalidInput, op, "recipient is required")
	}
	if to == from {
		return Share{}, apperr.New(apperr.KindInvalidInput, op, "cannot share with yourself")
	}
	now := st.Timestamp()
	if !opts.ExpiresAt.IsZero() && !opts.ExpiresAt.After(now) {
		return Share{}, apperr.New(apperr.KindInvalidInput, op, "expiry must be in the future")
	}
	if _, err := o.matrix.Principal(st, to); err != nil {
		return Share{}, err
	}

	data, _, err := o.unprotect(st, op, protectionID, from)
	if err != nil {
		return Share{}, err
	}

	h, err := hashing.Hash(map[string]string{
		"protectionId": protectionID,
		"from":         from,
		"to":           to,
		"timestamp":    now.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return Share{}, err
	}
	sh := Share{
		ShareID:      "share-" + h[:32],
		ProtectionID: protectionID,
		FromID:       from,
		ToID:         to,
		CreatedAt:    now,
		ExpiresAt:    opts.ExpiresAt,
	}
	env, err := o.keys.SealForRecipient(st, to, data, sh.aad())
	if err != nil {
		return Share{}, err
	}
	sh.Envelope = *env

	if err := store(st, shareType, sh.ShareID, sh); err != nil {
		return Share{}, err
	}
	if err := putIndex(st, recipientIndex, to, sh.ShareID); err != nil {
		return Share{}, err
	}
	return sh, nil
}

// AccessShared opens a share for its recipient. A share stops opening once
// it expires or its source package is revoked.
func (o *Orchestrator) AccessShared(st ledger.State, shareID, requester string) (json.RawMessage, error) {
	data, err := o.accessShared(st, shareID, requester)
	return data, o.trail.Outcome(st, audit.Entry{
		Principal:      requester,
		Action:         "protection.access_shared",
		TargetResource: firstNonEmpty(shareID, requester),
	}, err)
}

func (o *Orchestrator) accessShared(st ledger.State, shareID, requester string) (json.RawMessage, error) {
	const op = "protection.accessShared"
	var sh Share
	if err := load(st, op, shareType, shareID, &sh); err != nil {
		return nil, err
	}
	if requester == "" || requester != sh.ToID {
		return nil, apperr.New(apperr.KindAccessDenied, op, "share belongs to another recipient").
			With("shareId", shareID).With("requester", requester)
	}
	if !sh.ExpiresAt.IsZero() && !st.Timestamp().Before(sh.ExpiresAt) {
		return nil, apperr.New(apperr.KindExpired, op, "share has expired").With("shareId", shareID)
	}
	var pkg Package
	if err := load(st, op, packageType, sh.ProtectionID, &pkg); err != nil {
		return nil, err
	}
	if pkg.Status == StatusRevoked {
		return nil, apperr.New(apperr.KindAccessDenied, op, "source package is revoked").With("shareId", shareID)
	}

	plain, err := o.keys.OpenAsRecipient(st, requester, &sh.Envelope, sh.aad())
	if err != nil {
		if _, tagged := apperr.KindOf(err); tagged {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindIntegrityViolation, op, err).With("shareId", shareID)
	}
	return json.RawMessage(plain), nil
}

// RecipientShares lists shares addressed to recipient.
func (o *Orchestrator) RecipientShares(st ledger.State, recipient string) ([]Share, error) {
	if recipient == "" {
		return nil, nil
	}
	ids, err := indexed(st, recipientIndex, recipient)
	if err != nil {
		return nil, err
	}
	out := make([]Share, 0, len(ids))
	for _, id := range ids {
		var sh Share
		if err := load(st, "protection.recipientShares", shareType, id, &sh); err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, nil
}
