package protection

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/consent"
	"github.com/doodlesbykumbi/phivault/pkg/hashing"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

func payloads(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte(fmt.Sprintf(`{"reading":%d,"unit":"mmol/L"}`, i))
	}
	return out
}

func (f *fixture) batch(t *testing.T, items [][]byte, owner string, opts BatchOptions) BatchResult {
	t.Helper()
	var res BatchResult
	require.NoError(t, f.Invoke(func(st ledger.State) error {
		var err error
		res, err = f.o.ProtectBatch(st, items, owner, opts)
		return err
	}))
	return res
}

func TestProtectBatchInOneCall(t *testing.T) {
	f := newFixture(t)
	items := payloads(5)
	res := f.batch(t, items, "D1", BatchOptions{Options: Options{PatientID: "P1", Category: consent.CategoryLabResults}})

	assert.Equal(t, 5, res.Processed)
	assert.Zero(t, res.Remaining)
	require.True(t, res.Batch.Complete)
	assert.Len(t, res.Batch.ItemIDs, 5)
	assert.Len(t, res.Batch.Proofs, 5)
	assert.True(t, hashing.VerifyBatch(res.Batch.Digest))

	for i, item := range items {
		canonical, err := hashing.Canonicalize(jsonRaw(item))
		require.NoError(t, err)
		assert.True(t, hashing.VerifyProof(jsonRaw(canonical), res.Batch.Proofs[i], res.Batch.MerkleRoot))

		data, err := f.unprotect(t, res.Batch.ItemIDs[i], "P1")
		require.NoError(t, err)
		assert.JSONEq(t, string(item), data)
	}
}

func TestProtectBatchResumesInChunks(t *testing.T) {
	f := newFixture(t, WithChunkSize(2))
	items := payloads(5)
	opts := BatchOptions{Options: Options{Category: consent.CategoryLabResults}}

	first := f.batch(t, items, "D1", opts)
	assert.Equal(t, 2, first.Processed)
	assert.Equal(t, 3, first.Remaining)
	assert.False(t, first.Batch.Complete)
	assert.Empty(t, first.Batch.MerkleRoot)

	second := f.batch(t, items, "D1", opts)
	assert.Equal(t, first.Batch.BatchID, second.Batch.BatchID)
	assert.Equal(t, 2, second.Processed)
	assert.Equal(t, 1, second.Remaining)
	assert.Equal(t, first.Batch.ItemIDs, second.Batch.ItemIDs[:2])

	third := f.batch(t, items, "D1", opts)
	assert.Equal(t, 1, third.Processed)
	assert.Zero(t, third.Remaining)
	assert.True(t, third.Batch.Complete)

	again := f.batch(t, items, "D1", opts)
	assert.Zero(t, again.Processed)
	assert.Equal(t, third.Batch.MerkleRoot, again.Batch.MerkleRoot)

	require.NoError(t, f.Invoke(func(st ledger.State) error {
		owned, err := f.o.OwnerPackages(st, "D1")
		require.NoError(t, err)
		assert.Len(t, owned, 5)
		return nil
	}))
}

func TestProtectBatchIsAtomicPerCall(t *testing.T) {
	f := newFixture(t)
	items := payloads(3)
	items[2] = []byte(`{"note":"<script>"}`)

	err := f.Invoke(func(st ledger.State) error {
		_, err := f.o.ProtectBatch(st, items, "D1", BatchOptions{BatchID: "b1", Options: Options{Category: consent.CategoryGeneral}})
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	require.NoError(t, f.Invoke(func(st ledger.State) error {
		owned, err := f.o.OwnerPackages(st, "D1")
		require.NoError(t, err)
		assert.Empty(t, owned)
		return nil
	}))
}

func TestProtectBatchRejectsForeignBatchID(t *testing.T) {
	f := newFixture(t)
	f.batch(t, payloads(2), "D1", BatchOptions{BatchID: "b1", Options: Options{Category: consent.CategoryGeneral}})

	err := f.Invoke(func(st ledger.State) error {
		_, err := f.o.ProtectBatch(st, payloads(2), "D2", BatchOptions{BatchID: "b1", Options: Options{Category: consent.CategoryGeneral}})
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrDuplicateEntity)
}

func TestProtectBatchResumeRejectsChangedPayloads(t *testing.T) {
	f := newFixture(t, WithChunkSize(2))
	opts := BatchOptions{BatchID: "b1", Options: Options{Category: consent.CategoryLabResults}}
	first := f.batch(t, payloads(4), "D1", opts)
	require.Equal(t, 2, first.Processed)

	changed := payloads(4)
	changed[1] = []byte(`{"reading":99,"unit":"mmol/L"}`)
	err := f.Invoke(func(st ledger.State) error {
		_, err := f.o.ProtectBatch(st, changed, "D1", opts)
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	// a different encoding of the same documents still resumes
	reordered := payloads(4)
	reordered[0] = []byte(`{"unit":"mmol/L","reading":0}`)
	second := f.batch(t, reordered, "D1", opts)
	assert.Equal(t, 2, second.Processed)
	assert.True(t, second.Batch.Complete)

	err = f.Invoke(func(st ledger.State) error {
		_, err := f.o.ProtectBatch(st, changed, "D1", opts)
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func verify(t *testing.T, f *fixture, batchID, requester string) (BatchVerification, error) {
	t.Helper()
	var v BatchVerification
	err := f.Invoke(func(st ledger.State) error {
		var err error
		v, err = f.o.VerifyBatchIntegrity(st, batchID, requester)
		return err
	})
	return v, err
}

func TestVerifyBatchIntegrity(t *testing.T) {
	f := newFixture(t)
	res := f.batch(t, payloads(6), "D1", BatchOptions{BatchID: "b1", Options: Options{Category: consent.CategoryGeneral}})

	v, err := verify(t, f, res.Batch.BatchID, "D1")
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.Equal(t, res.Batch.MerkleRoot, v.MerkleRoot)
	require.Len(t, v.SpotChecks, DefaultSampleSize)
	seen := map[int]bool{}
	for _, c := range v.SpotChecks {
		assert.True(t, c.ProofValid)
		assert.True(t, c.HashValid)
		assert.False(t, seen[c.Index])
		seen[c.Index] = true
	}

	_, err = verify(t, f, res.Batch.BatchID, "D2")
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
}

func TestVerifyBatchIntegrityDetectsTamperedDigest(t *testing.T) {
	f := newFixture(t)
	res := f.batch(t, payloads(4), "D1", BatchOptions{BatchID: "b1", Options: Options{Category: consent.CategoryGeneral}})

	require.NoError(t, f.Invoke(func(st ledger.State) error {
		b := res.Batch
		b.Digest.IndividualHashes[1] = b.Digest.IndividualHashes[0]
		return store(st, batchType, b.BatchID, b)
	}))
	v, err := verify(t, f, "b1", "D1")
	require.NoError(t, err)
	assert.False(t, v.IsValid)
}

func TestVerifyBatchIntegrityRequiresCompleteBatch(t *testing.T) {
	f := newFixture(t, WithChunkSize(1))
	f.batch(t, payloads(2), "D1", BatchOptions{BatchID: "b1", Options: Options{Category: consent.CategoryGeneral}})

	_, err := verify(t, f, "b1", "D1")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestSampleIsDeterministic(t *testing.T) {
	a := sample("tx-1", 10, 3)
	assert.Equal(t, a, sample("tx-1", 10, 3))
	assert.Len(t, a, 3)
	assert.Len(t, sample("tx-1", 2, 3), 2)
	assert.Empty(t, sample("tx-1", 0, 3))
}
