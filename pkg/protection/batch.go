package protection

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/hashing"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

// Batch tracks a set of packages protected together. Proofs and Digest are
// only present once every item is stored.
type Batch struct {
	BatchID     string                `json:"batchId"`
	OwnerID     string                `json:"ownerPrincipalId"`
	ItemIDs     []string              `json:"itemIds"`
	Total       int                   `json:"total"`
	MerkleRoot  string                `json:"merkleRoot,omitempty"`
	Proofs      [][]hashing.ProofStep `json:"proofs,omitempty"`
	Digest      hashing.BatchDigest   `json:"digest"`
	Complete    bool                  `json:"complete"`
	CreatedAt   time.Time             `json:"createdAt"`
	CompletedAt time.Time             `json:"completedAt"`
}

// BatchOptions apply to every item of a batch. An empty BatchID is derived
// from the owner and the payload contents, so retrying the same call
// resumes the same batch.
type BatchOptions struct {
	BatchID string
	Options
}

// BatchResult reports the progress made by one ProtectBatch call.
type BatchResult struct {
	Batch     Batch `json:"batch"`
	Processed int   `json:"processed"`
	Remaining int   `json:"remaining"`
}

func itemID(batchID string, index int) string {
	return fmt.Sprintf("%s-%06d", batchID, index)
}

// ProtectBatch protects payloads as one batch. Each call seals at most the
// configured chunk size of new items; items already stored are reused, so
// calling again with the same input resumes where the last call stopped.
// Stored items must match the payloads at their index.
// The Merkle root and batch hash cover the canonical plaintexts.
func (o *Orchestrator) ProtectBatch(st ledger.State, payloads [][]byte, owner string, opts BatchOptions) (BatchResult, error) {
	res, err := o.protectBatch(st, payloads, owner, opts)
	target := firstNonEmpty(res.Batch.BatchID, opts.BatchID, owner)
	return res, o.trail.Outcome(st, audit.Entry{
		Principal:      owner,
		Action:         "protection.protect_batch",
		TargetResource: target,
		Details: map[string]string{
			"items":     fmt.Sprint(len(payloads)),
			"processed": fmt.Sprint(res.Processed),
			"remaining": fmt.Sprint(res.Remaining),
		},
	}, err)
}

func (o *Orchestrator) protectBatch(st ledger.State, payloads [][]byte, owner string, opts BatchOptions) (BatchResult, error) {
	const op = "protection.protectBatch"
	if owner == "" {
		return BatchResult{}, apperr.New(apperr.KindInvalidInput, op, "owner is required")
	}
	if len(payloads) == 0 {
		return BatchResult{}, apperr.New(apperr.KindInvalidInput, op, "batch is empty")
	}

	leaves := make([]any, len(payloads))
	hashes := make([]string, len(payloads))
	for i, p := range payloads {
		canonical, err := validatePayload(op, p)
		if err != nil {
			if ae, ok := err.(*apperr.Error); ok {
				ae.With("index", fmt.Sprint(i))
			}
			return BatchResult{}, err
		}
		leaves[i] = json.RawMessage(canonical)
		hashes[i] = hashing.HashBytes(canonical)
	}

	batchID := opts.BatchID
	if batchID == "" {
		h, err := hashing.Hash(map[string]any{"owner": owner, "items": hashes})
		if err != nil {
			return BatchResult{}, err
		}
		batchID = "batch-" + h[:32]
	}

	var batch Batch
	err := load(st, op, batchType, batchID, &batch)
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		batch = Batch{BatchID: batchID, OwnerID: owner, Total: len(payloads), CreatedAt: st.Timestamp()}
	case err != nil:
		return BatchResult{}, err
	case batch.OwnerID != owner:
		return BatchResult{}, apperr.New(apperr.KindDuplicateEntity, op, "batch id already in use").With("batchId", batchID)
	case batch.Total != len(payloads):
		return BatchResult{}, apperr.New(apperr.KindInvalidInput, op, "batch size differs from the stored batch").With("batchId", batchID)
	}

	processed := 0
	ids := make([]string, 0, len(payloads))
	for i, p := range payloads {
		id := itemID(batchID, i)
		var existing Package
		err := load(st, op, packageType, id, &existing)
		if err == nil {
			if existing.OwnerID != owner || existing.BatchID != batchID {
				return BatchResult{}, apperr.New(apperr.KindDuplicateEntity, op, "protection id already in use").With("protectionId", id)
			}
			if !hashing.Verify(leaves[i], existing.IntegrityHash) {
				return BatchResult{}, apperr.New(apperr.KindInvalidInput, op, "payload differs from the item stored in the batch").
					With("protectionId", id).
					With("index", fmt.Sprint(i))
			}
			ids = append(ids, id)
			continue
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return BatchResult{}, err
		}
		if processed == o.chunkSize {
			break
		}
		item := opts.Options
		item.ProtectionID = id
		if _, err := o.protect(st, op, p, owner, item, batchID); err != nil {
			return BatchResult{}, err
		}
		processed++
		ids = append(ids, id)
	}
	if batch.Complete {
		return BatchResult{Batch: batch}, nil
	}
	batch.ItemIDs = ids

	if len(ids) == len(payloads) {
		tree, err := hashing.BuildMerkleTree(leaves)
		if err != nil {
			return BatchResult{}, err
		}
		proofs := make([][]hashing.ProofStep, len(leaves))
		for i := range leaves {
			if proofs[i], err = hashing.GenerateProof(tree, i); err != nil {
				return BatchResult{}, err
			}
		}
		digest, err := hashing.BatchHash(leaves)
		if err != nil {
			return BatchResult{}, err
		}
		batch.MerkleRoot = tree.Root()
		batch.Proofs = proofs
		batch.Digest = digest
		batch.Complete = true
		batch.CompletedAt = st.Timestamp()
	}

	if err := store(st, batchType, batchID, batch); err != nil {
		return BatchResult{}, err
	}
	return BatchResult{Batch: batch, Processed: processed, Remaining: len(payloads) - len(ids)}, nil
}

// SpotCheck is the outcome of opening one sampled batch item.
type SpotCheck struct {
	Index        int    `json:"index"`
	ProtectionID string `json:"protectionId"`
	ProofValid   bool   `json:"proofValid"`
	HashValid    bool   `json:"hashValid"`
	Error        string `json:"error,omitempty"`
}

// BatchVerification is the result of VerifyBatchIntegrity.
type BatchVerification struct {
	BatchID    string      `json:"batchId"`
	MerkleRoot string      `json:"merkleRoot"`
	IsValid    bool        `json:"isValid"`
	SpotChecks []SpotCheck `json:"spotChecks"`
}

// VerifyBatchIntegrity checks the stored digest against the stored root,
// then opens a random sample of items as requester and checks each against
// its Merkle proof and recorded hash. The sample is seeded from the
// transaction id so every peer replaying the invocation picks the same items.
func (o *Orchestrator) VerifyBatchIntegrity(st ledger.State, batchID, requester string) (BatchVerification, error) {
	v, err := o.verifyBatch(st, batchID, requester)
	return v, o.trail.Outcome(st, audit.Entry{
		Principal:      requester,
		Action:         "protection.verify_batch",
		TargetResource: firstNonEmpty(batchID, requester),
		Details: map[string]string{
			"valid":   fmt.Sprint(v.IsValid),
			"sampled": fmt.Sprint(len(v.SpotChecks)),
		},
	}, err)
}

func (o *Orchestrator) verifyBatch(st ledger.State, batchID, requester string) (BatchVerification, error) {
	const op = "protection.verifyBatchIntegrity"
	if requester == "" {
		return BatchVerification{}, apperr.New(apperr.KindInvalidInput, op, "requester is required")
	}
	var batch Batch
	if err := load(st, op, batchType, batchID, &batch); err != nil {
		return BatchVerification{}, err
	}
	if !batch.Complete {
		return BatchVerification{}, apperr.New(apperr.KindInvalidState, op, "batch is not complete").With("batchId", batchID)
	}

	v := BatchVerification{BatchID: batch.BatchID, MerkleRoot: batch.MerkleRoot, IsValid: true}
	tree, err := hashing.BuildMerkleTreeFromHashes(batch.Digest.IndividualHashes)
	if err != nil || tree.Root() != batch.MerkleRoot || !hashing.VerifyBatch(batch.Digest) ||
		len(batch.Proofs) != len(batch.ItemIDs) || len(batch.ItemIDs) != batch.Total {
		v.IsValid = false
		return v, nil
	}

	for _, index := range sample(st.TxID(), batch.Total, o.sampleSize) {
		check := SpotCheck{Index: index, ProtectionID: batch.ItemIDs[index]}
		data, _, err := o.unprotect(st, op, check.ProtectionID, requester)
		switch {
		case apperr.Is(err, apperr.KindAccessDenied), apperr.Is(err, apperr.KindNotFound):
			return BatchVerification{}, err
		case err != nil:
			check.Error = err.Error()
		default:
			check.ProofValid = hashing.VerifyProof(data, batch.Proofs[index], batch.MerkleRoot)
			check.HashValid = hashing.SpotCheck(data, index, batch.Digest)
		}
		if !check.ProofValid || !check.HashValid {
			v.IsValid = false
		}
		v.SpotChecks = append(v.SpotChecks, check)
	}
	return v, nil
}

// sample picks min(k, n) distinct indexes in [0, n) from a generator seeded
// by seed.
func sample(seed string, n, k int) []int {
	if k > n {
		k = n
	}
	sum, _ := hex.DecodeString(hashing.HashBytes([]byte(seed)))
	r := rand.New(rand.NewPCG(binary.BigEndian.Uint64(sum[:8]), binary.BigEndian.Uint64(sum[8:16])))
	return r.Perm(n)[:k]
}
