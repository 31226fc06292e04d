package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Side marks which side of the running hash a proof sibling sits on.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// ProofStep is one sibling on the path from a leaf to the root.
type ProofStep struct {
	Hash     string `json:"hash"`
	Position Side   `json:"position"`
}

// MerkleTree keeps every level so proofs can be generated after construction.
// Leaves are Hash(leaf); a parent is sha256(left || right) over raw digests.
// A node without a sibling is promoted unchanged to the next level.
type MerkleTree struct {
	levels [][][]byte
}

// BuildMerkleTree hashes each leaf and builds the tree bottom-up.
func BuildMerkleTree(leaves []any) (*MerkleTree, error) {
	hashes := make([]string, len(leaves))
	for i, leaf := range leaves {
		h, err := Hash(leaf)
		if err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		hashes[i] = h
	}
	return BuildMerkleTreeFromHashes(hashes)
}

// BuildMerkleTreeFromHashes builds a tree over precomputed hex leaf hashes.
func BuildMerkleTreeFromHashes(leafHashes []string) (*MerkleTree, error) {
	if len(leafHashes) == 0 {
		return &MerkleTree{}, nil
	}

	level := make([][]byte, len(leafHashes))
	for i, h := range leafHashes {
		b, err := decodeDigest(h)
		if err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		level[i] = b
	}

	t := &MerkleTree{levels: [][][]byte{level}}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, combine(level[i], level[i+1]))
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t, nil
}

// Root is the hex root hash, or "" for an empty tree.
func (t *MerkleTree) Root() string {
	if len(t.levels) == 0 {
		return ""
	}
	return hex.EncodeToString(t.levels[len(t.levels)-1][0])
}

// Depth is the number of levels above the leaves.
func (t *MerkleTree) Depth() int {
	if len(t.levels) == 0 {
		return 0
	}
	return len(t.levels) - 1
}

func (t *MerkleTree) LeafCount() int {
	if len(t.levels) == 0 {
		return 0
	}
	return len(t.levels[0])
}

// GenerateProof returns the sibling path for the leaf at index.
func GenerateProof(t *MerkleTree, index int) ([]ProofStep, error) {
	if t == nil || index < 0 || index >= t.LeafCount() {
		return nil, fmt.Errorf("leaf index %d out of range", index)
	}

	var proof []ProofStep
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := index ^ 1
		if sibling < len(level) {
			side := SideRight
			if sibling < index {
				side = SideLeft
			}
			proof = append(proof, ProofStep{Hash: hex.EncodeToString(level[sibling]), Position: side})
		}
		index /= 2
	}
	return proof, nil
}

// VerifyProof recomputes the path from leaf to the root. Malformed steps make
// the proof fail rather than error.
func VerifyProof(leaf any, proof []ProofStep, root string) bool {
	h, err := Hash(leaf)
	if err != nil {
		return false
	}
	return VerifyProofHash(h, proof, root)
}

// VerifyProofHash is VerifyProof for an already hashed leaf.
func VerifyProofHash(leafHash string, proof []ProofStep, root string) bool {
	current, err := decodeDigest(leafHash)
	if err != nil {
		return false
	}
	want, err := decodeDigest(root)
	if err != nil {
		return false
	}

	for _, step := range proof {
		sibling, err := decodeDigest(step.Hash)
		if err != nil {
			return false
		}
		switch step.Position {
		case SideLeft:
			current = combine(sibling, current)
		case SideRight:
			current = combine(current, sibling)
		default:
			return false
		}
	}
	return hex.EncodeToString(current) == hex.EncodeToString(want)
}

func combine(left, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

func decodeDigest(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != sha256.Size {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", sha256.Size, len(b))
	}
	return b, nil
}
