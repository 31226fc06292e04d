package hashing

import (
	"sort"
	"strings"
)

// BatchDigest identifies a set of items independently of their order while
// keeping per-item hashes for spot checks.
type BatchDigest struct {
	BatchHash        string   `json:"batchHash"`
	IndividualHashes []string `json:"individualHashes"`
}

// BatchHash hashes every item, then hashes the sorted item hashes concatenated.
// IndividualHashes keeps input order.
func BatchHash(items []any) (BatchDigest, error) {
	hashes := make([]string, len(items))
	for i, item := range items {
		h, err := Hash(item)
		if err != nil {
			return BatchDigest{}, err
		}
		hashes[i] = h
	}
	return BatchDigest{BatchHash: batchOf(hashes), IndividualHashes: hashes}, nil
}

// VerifyBatch recomputes the batch hash from the individual hashes.
func VerifyBatch(d BatchDigest) bool {
	return batchOf(d.IndividualHashes) == d.BatchHash
}

// SpotCheck reports whether item still hashes to the recorded hash at index.
func SpotCheck(item any, index int, d BatchDigest) bool {
	if index < 0 || index >= len(d.IndividualHashes) {
		return false
	}
	h, err := Hash(item)
	return err == nil && h == d.IndividualHashes[index]
}

func batchOf(hashes []string) string {
	sorted := append([]string(nil), hashes...)
	sort.Strings(sorted)
	return HashBytes([]byte(strings.Join(sorted, "")))
}
