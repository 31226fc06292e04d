package records

import (
	"context"

	"github.com/doodlesbykumbi/phivault/pkg/keys"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

// SweepReport summarizes one maintenance pass.
type SweepReport struct {
	Expired []string                    `json:"expired"`
	Due     map[string][]keys.KeyRecord `json:"due"`
}

// KeysDue counts the keys in the report that need rotation.
func (r SweepReport) KeysDue() int {
	n := 0
	for _, recs := range r.Due {
		n += len(recs)
	}
	return n
}

// Maintain expires every lapsed consent and reports, per custodian, the
// data keys expiring within horizonDays. Zero uses the configured horizon.
func (c *Contract) Maintain(ctx context.Context, caller string, horizonDays int) (SweepReport, error) {
	if horizonDays <= 0 {
		horizonDays = c.horizonDays
	}
	var report SweepReport
	err := c.invoke(ctx, "maintenance.sweep", func(st ledger.State) error {
		report = SweepReport{Due: map[string][]keys.KeyRecord{}}

		candidates, err := c.consent.ExpiredCandidates(st)
		if err != nil {
			return err
		}
		if report.Expired, err = c.cleanup(st, caller, candidates); err != nil {
			return err
		}

		custodians, err := c.keys.Custodians(st)
		if err != nil {
			return err
		}
		for _, custodian := range custodians {
			due, err := c.keys.CheckRotationNeeded(st, custodian, horizonDays)
			if err != nil {
				return err
			}
			if len(due) > 0 {
				report.Due[custodian] = due
			}
		}
		return nil
	})
	if err == nil {
		c.metrics.ObserveSweep(len(report.Expired), report.KeysDue())
	}
	return report, err
}
