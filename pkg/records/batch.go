package records

import (
	"context"
	"fmt"

	"github.com/doodlesbykumbi/phivault/pkg/access"
	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/consent"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
	"github.com/doodlesbykumbi/phivault/pkg/protection"
)

// ProtectBatch seals payloads for patient under provider's key as one
// batch. Each ledger invocation stores one chunk; the loop resumes the same
// batch until every item is stored, so a failed run can be retried with the
// same input.
func (c *Contract) ProtectBatch(ctx context.Context, payloads [][]byte, provider, patient string, category consent.Category) (protection.Batch, error) {
	for {
		var res protection.BatchResult
		err := c.invoke(ctx, "batch.protect", func(st ledger.State) error {
			var err error
			res, err = c.protectChunk(st, payloads, provider, patient, category)
			return err
		})
		if err != nil {
			return res.Batch, err
		}
		if res.Batch.Complete {
			return res.Batch, nil
		}
		if res.Processed == 0 {
			return res.Batch, apperr.New(apperr.KindInvalidState, "batch.protect", "no progress on incomplete batch").
				With("batchId", res.Batch.BatchID)
		}
		if err := ctx.Err(); err != nil {
			return res.Batch, err
		}
	}
}

func (c *Contract) protectChunk(st ledger.State, payloads [][]byte, provider, patient string, category consent.Category) (protection.BatchResult, error) {
	const op = "batch.protect"
	if _, err := c.authorize(st, op, provider, access.PermissionWrite, access.ResourceMedicalRecord); err != nil {
		return protection.BatchResult{}, err
	}
	if patient != "" {
		isPatient, err := c.matrix.HasRole(st, patient, access.RolePatient)
		if err != nil {
			return protection.BatchResult{}, err
		}
		if !isPatient {
			return protection.BatchResult{}, apperr.New(apperr.KindRoleMismatch, op, "subject is not a registered patient").With("patient", patient)
		}
	}

	res, err := c.protection.ProtectBatch(st, payloads, provider, protection.BatchOptions{
		Options: protection.Options{PatientID: patient, Category: category},
	})
	if err != nil {
		return res, err
	}
	if res.Batch.Complete && res.Processed > 0 {
		err = emit(st, "BatchProtected", map[string]string{
			"batchId":    res.Batch.BatchID,
			"merkleRoot": res.Batch.MerkleRoot,
			"items":      fmt.Sprint(res.Batch.Total),
			"providerId": provider,
		})
	}
	return res, err
}

// VerifyBatchIntegrity spot-checks a stored batch as requester.
func (c *Contract) VerifyBatchIntegrity(ctx context.Context, batchID, requester string) (protection.BatchVerification, error) {
	var out protection.BatchVerification
	err := c.invoke(ctx, "batch.verify", func(st ledger.State) error {
		var err error
		out, err = c.protection.VerifyBatchIntegrity(st, batchID, requester)
		return err
	})
	return out, err
}
