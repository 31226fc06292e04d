package records

import (
	"context"
	"errors"

	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

// Verification is the result of checking stored audit entries.
type Verification struct {
	Checked  int      `json:"checked"`
	Tampered []string `json:"tampered"`
}

// VerifyAudit checks the hash and MAC of every entry about resource. An
// empty resource checks the whole trail including the links between
// entries.
func (c *Contract) VerifyAudit(ctx context.Context, resource string) (Verification, error) {
	var out Verification
	err := c.ledger.Invoke(ctx, func(st ledger.State) error {
		if resource == "" {
			entries, err := c.trail.All(st)
			if err != nil {
				return err
			}
			out.Checked = len(entries)
			return c.trail.VerifyChain(entries)
		}

		entries, err := c.trail.ForResource(st, resource)
		if err != nil {
			return err
		}
		out.Checked = len(entries)
		for _, e := range entries {
			if err := c.trail.VerifyEntry(e); err != nil {
				out.Tampered = append(out.Tampered, e.ID)
			}
		}
		return nil
	})
	if errors.Is(err, audit.ErrTampered) {
		out.Tampered = append(out.Tampered, err.Error())
		return out, nil
	}
	return out, err
}
