package hashing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaves(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = map[string]any{"recordId": fmt.Sprintf("R%d", i), "value": i}
	}
	return out
}

func TestMerkleEmpty(t *testing.T) {
	tree, err := BuildMerkleTree(nil)
	require.NoError(t, err)
	assert.Equal(t, "", tree.Root())
	assert.Equal(t, 0, tree.Depth())
	assert.Equal(t, 0, tree.LeafCount())

	_, err = GenerateProof(tree, 0)
	assert.Error(t, err)
}

func TestMerkleSingleLeaf(t *testing.T) {
	l := leaves(1)
	tree, err := BuildMerkleTree(l)
	require.NoError(t, err)

	h, err := Hash(l[0])
	require.NoError(t, err)
	assert.Equal(t, h, tree.Root())
	assert.Equal(t, 0, tree.Depth())

	proof, err := GenerateProof(tree, 0)
	require.NoError(t, err)
	assert.Empty(t, proof)
	assert.True(t, VerifyProof(l[0], proof, tree.Root()))
}

func TestMerkleProofsVerifyForEveryLeaf(t *testing.T) {
	for n := 1; n <= 9; n++ {
		l := leaves(n)
		tree, err := BuildMerkleTree(l)
		require.NoError(t, err)
		assert.Equal(t, n, tree.LeafCount())

		for i := range l {
			proof, err := GenerateProof(tree, i)
			require.NoError(t, err)
			assert.True(t, VerifyProof(l[i], proof, tree.Root()), "n=%d i=%d", n, i)
			assert.False(t, VerifyProof(map[string]any{"tampered": i}, proof, tree.Root()), "n=%d i=%d", n, i)
		}
	}
}

func TestMerkleFiveLeaves(t *testing.T) {
	l := leaves(5)
	tree, err := BuildMerkleTree(l)
	require.NoError(t, err)
	assert.Equal(t, 3, tree.Depth())

	proof, err := GenerateProof(tree, 3)
	require.NoError(t, err)
	assert.True(t, VerifyProof(l[3], proof, tree.Root()))

	tampered := map[string]any{"recordId": "R3", "value": 99}
	assert.False(t, VerifyProof(tampered, proof, tree.Root()))

	// leaf 4 is promoted twice before pairing
	proof4, err := GenerateProof(tree, 4)
	require.NoError(t, err)
	assert.Len(t, proof4, 1)
	assert.Equal(t, SideLeft, proof4[0].Position)
}

func TestMerkleMalformedProofs(t *testing.T) {
	l := leaves(4)
	tree, err := BuildMerkleTree(l)
	require.NoError(t, err)
	proof, err := GenerateProof(tree, 1)
	require.NoError(t, err)

	tests := []struct {
		name  string
		proof []ProofStep
		root  string
	}{
		{"bad hex", []ProofStep{{Hash: "zz", Position: SideLeft}, proof[1]}, tree.Root()},
		{"short digest", []ProofStep{{Hash: "abcd", Position: SideLeft}, proof[1]}, tree.Root()},
		{"unknown side", []ProofStep{{Hash: proof[0].Hash, Position: "up"}, proof[1]}, tree.Root()},
		{"empty root", proof, ""},
		{"truncated", proof[:1], tree.Root()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, VerifyProof(l[1], tt.proof, tt.root))
			})
		})
	}
}

func TestBuildMerkleTreeFromHashesRejectsBadDigest(t *testing.T) {
	_, err := BuildMerkleTreeFromHashes([]string{"00"})
	assert.Error(t, err)
}
