package commitment

import (
	"fmt"
	"sort"

	"github.com/tolelom/battlechain/board"
)

// Depth is the number of siblings in every proof of a 64-leaf tree.
const Depth = 6

// MaxSeed is the largest value a seed may take in a reveal.
const MaxSeed = 255

// Seeds holds one secret mask per board cell.
type Seeds [board.Cells]uint8

// Ints returns the seeds as ints, the form used in payloads.
func (s Seeds) Ints() []int {
	out := make([]int, len(s))
	for i, v := range s {
		out[i] = int(v)
	}
	return out
}

// SeedsFromInts validates and converts a payload seed vector.
func SeedsFromInts(vals []int) (Seeds, error) {
	var s Seeds
	if len(vals) != len(s) {
		return s, fmt.Errorf("seeds: got %d values, want %d", len(vals), len(s))
	}
	for i, v := range vals {
		if v < 0 || v > MaxSeed {
			return s, fmt.Errorf("seeds: cell %d has seed %d", i, v)
		}
		s[i] = uint8(v)
	}
	return s, nil
}

// Proof is the sibling path from a leaf to the root.
type Proof []Hash

// LeafHash returns keccak256 of the two packed bytes occ and seed. Both
// must fit in a byte; distinct pairs never share a leaf.
func LeafHash(occ, seed int) Hash {
	return Keccak([]byte{byte(occ), byte(seed)})
}

func hashPair(a, b Hash) Hash {
	if b.Less(a) {
		a, b = b, a
	}
	return Keccak(a[:], b[:])
}

// Tree is the Merkle tree over a seeded board. Leaves are sorted before the
// first level is built and every pair is sorted before hashing, so proofs do
// not depend on cell order.
type Tree struct {
	leaves [board.Cells]Hash // by cell index
	levels [][]Hash          // levels[0] is the sorted leaf row; the last level holds the root
}

// BuildTree computes the tree for occ masked with seeds.
func BuildTree(occ board.Occupancy, seeds Seeds) *Tree {
	t := &Tree{}
	row := make([]Hash, board.Cells)
	for i := range occ {
		t.leaves[i] = LeafHash(int(occ[i]), int(seeds[i]))
		row[i] = t.leaves[i]
	}
	sort.Slice(row, func(i, j int) bool { return row[i].Less(row[j]) })
	t.levels = append(t.levels, row)
	for len(row) > 1 {
		next := make([]Hash, len(row)/2)
		for i := range next {
			next[i] = hashPair(row[2*i], row[2*i+1])
		}
		t.levels = append(t.levels, next)
		row = next
	}
	return t
}

// Root returns the tree root.
func (t *Tree) Root() Hash { return t.levels[len(t.levels)-1][0] }

// Leaf returns the leaf of cell i.
func (t *Tree) Leaf(i int) Hash { return t.leaves[i] }

// Proof returns the sibling path for cell i. Cells with equal leaves share a
// sorted position, so the proof is that of the first matching leaf.
func (t *Tree) Proof(i int) Proof {
	leaf := t.leaves[i]
	pos := sort.Search(len(t.levels[0]), func(k int) bool { return !t.levels[0][k].Less(leaf) })
	proof := make(Proof, 0, Depth)
	for _, level := range t.levels[:len(t.levels)-1] {
		proof = append(proof, level[pos^1])
		pos /= 2
	}
	return proof
}

// VerifyProof recomputes the root from leaf and proof, sorting each pair on
// the way up.
func VerifyProof(root, leaf Hash, proof Proof) bool {
	acc := leaf
	for _, sib := range proof {
		acc = hashPair(acc, sib)
	}
	return acc == root
}
