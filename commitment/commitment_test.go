package commitment

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/battlechain/board"
)

func fixture(t *testing.T, seed int64) (board.Placement, board.Occupancy, Seeds) {
	t.Helper()
	p, err := board.ParsePlacement("H005H104H203H303H402")
	require.NoError(t, err)
	occ, err := p.Occupancy()
	require.NoError(t, err)
	seeds, err := NewSeeds(rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return p, occ, seeds
}

func TestKeccakVectors(t *testing.T) {
	assert.Equal(t,
		"0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		Keccak(nil).Hex())
	assert.Equal(t, Keccak([]byte{0, 0}), LeafHash(0, 0))
	assert.Equal(t, Keccak([]byte{1, 0xfe}), LeafHash(1, 254))
}

func TestLeafSeparatesClaimFromSeed(t *testing.T) {
	seen := make(map[Hash][2]int)
	for occ := 0; occ <= 1; occ++ {
		for seed := 0; seed <= MaxSeed; seed++ {
			h := LeafHash(occ, seed)
			prev, dup := seen[h]
			require.False(t, dup, "(%d,%d) collides with %v", occ, seed, prev)
			seen[h] = [2]int{occ, seed}
		}
	}
	// a hit under seed s must not pass as a miss under seed s+1
	assert.NotEqual(t, LeafHash(1, 4), LeafHash(0, 5))
}

func TestHitCannotBeDeniedWithShiftedSeed(t *testing.T) {
	_, occ, seeds := fixture(t, 11)
	tree := BuildTree(occ, seeds)
	cell := board.Index(0, 0)
	require.EqualValues(t, 1, occ[cell])
	lie := LeafHash(0, int(seeds[cell])+1)
	assert.False(t, VerifyProof(tree.Root(), lie, tree.Proof(cell)))
}

func TestEveryCellProves(t *testing.T) {
	for _, s := range []int64{1, 2, 3} {
		_, occ, seeds := fixture(t, s)
		tree := BuildTree(occ, seeds)
		for i := 0; i < board.Cells; i++ {
			proof := tree.Proof(i)
			require.Len(t, proof, Depth)
			leaf := LeafHash(int(occ[i]), int(seeds[i]))
			assert.Equal(t, leaf, tree.Leaf(i))
			assert.True(t, VerifyProof(tree.Root(), leaf, proof), "cell %d", i)
		}
	}
}

func TestTamperingFails(t *testing.T) {
	_, occ, seeds := fixture(t, 7)
	tree := BuildTree(occ, seeds)
	root := tree.Root()

	for i := 0; i < board.Cells; i += 9 {
		leaf := tree.Leaf(i)
		proof := tree.Proof(i)

		badLeaf := leaf
		badLeaf[31] ^= 1
		assert.False(t, VerifyProof(root, badLeaf, proof))

		badRoot := root
		badRoot[0] ^= 0x80
		assert.False(t, VerifyProof(badRoot, leaf, proof))

		for k := range proof {
			bad := append(Proof(nil), proof...)
			bad[k][5] ^= 0x04
			assert.False(t, VerifyProof(root, leaf, bad), "cell %d sibling %d", i, k)
		}

		assert.False(t, VerifyProof(root, leaf, proof[:Depth-1]))
	}
}

func TestWrongClaimFails(t *testing.T) {
	_, occ, seeds := fixture(t, 11)
	tree := BuildTree(occ, seeds)
	cell := board.Index(0, 0) // occupied
	require.EqualValues(t, 1, occ[cell])
	proof := tree.Proof(cell)
	assert.False(t, VerifyProof(tree.Root(), LeafHash(0, int(seeds[cell])), proof))
}

func TestRootIsDeterministic(t *testing.T) {
	_, occ, seeds := fixture(t, 5)
	assert.Equal(t, BuildTree(occ, seeds).Root(), BuildTree(occ, seeds).Root())

	other := seeds
	other[10] = (other[10] + 1) % MaxSeed
	assert.NotEqual(t, BuildTree(occ, seeds).Root(), BuildTree(occ, other).Root())
}

func TestCommitShipsBindsOrderAndSeed(t *testing.T) {
	p, _, _ := fixture(t, 1)
	reordered, err := board.ParsePlacement("H104H005H203H303H402")
	require.NoError(t, err)

	h := CommitShips(p, "seed")
	assert.Equal(t, Keccak([]byte("H005H104H203H303H402seed")), h)
	assert.NotEqual(t, h, CommitShips(reordered, "seed"))
	assert.NotEqual(t, h, CommitShips(p, "seee"))
}

func TestNewSeedsSkipsMax(t *testing.T) {
	src := bytes.Repeat([]byte{MaxSeed, 3}, board.Cells)
	seeds, err := NewSeeds(bytes.NewReader(src))
	require.NoError(t, err)
	for _, s := range seeds {
		assert.EqualValues(t, 3, s)
	}

	_, err = NewSeeds(bytes.NewReader([]byte{1, 2}))
	assert.Error(t, err)
}

func TestNewShipSeed(t *testing.T) {
	seed, err := NewShipSeed(rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	assert.Len(t, seed, ShipSeedLen)
	for _, c := range seed {
		assert.Contains(t, alphanumeric, string(c))
	}

	again, err := NewShipSeed(rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	assert.Equal(t, seed, again)
}

func TestSeedsFromInts(t *testing.T) {
	_, _, seeds := fixture(t, 3)
	back, err := SeedsFromInts(seeds.Ints())
	require.NoError(t, err)
	assert.Equal(t, seeds, back)

	_, err = SeedsFromInts(seeds.Ints()[:10])
	assert.Error(t, err)
	vals := seeds.Ints()
	vals[0] = 256
	_, err = SeedsFromInts(vals)
	assert.Error(t, err)
}

func TestCommitmentJSON(t *testing.T) {
	p, occ, seeds := fixture(t, 9)
	c := Commit(occ, seeds, p, "abc")
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), c.MerkleRoot.Hex())

	var back Commitment
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, c, back)
	assert.False(t, back.IsZero())
	assert.True(t, Commitment{}.IsZero())
}
