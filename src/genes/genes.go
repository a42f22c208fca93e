// Package genes mixes the genomes of two parent kitties into the genome of their kitten.
//
// A genome is read as a sequence of decimal digit groups laid out by GeneSizes, most
// significant group first. For every group the kitten inherits either the dad's or the
// mum's digits, chosen by a bit of the mixing mask, unless the group mutates, in which
// case it gets a freshly derived random value instead. Mixing is a pure function of the
// parents and the seed.
package genes

import (
	"math/big"

	"github.com/skycoin/skycoin/src/cipher"
)

// GeneSizes is the width in decimal digits of each gene group, most significant first
var GeneSizes = []int{2, 2, 2, 2, 1, 1, 2, 2, 1, 1}

const (
	// RandomThreshold is the highest chance digit that still inherits from a parent.
	// A chance digit above it replaces the gene group with a random value.
	RandomThreshold = 7

	// maskModulus reduces the seed to a mask of len(GeneSizes) bits
	maskModulus = 1023

	seedBytes = 32
)

var (
	// MaxGenes is the largest genome that can be stored, 2^256-1. The sentinel kitty carries it.
	MaxGenes = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	ten = big.NewInt(10)
)

// Entropy is everything the mixer derives from a seed
type Entropy struct {
	// Mask selects the parent per group: bit set means dad, clear means mum.
	// Group 0 is the most significant of the len(GeneSizes) bits.
	Mask uint16
	// Chance holds one digit (0-9) per group. Digits above RandomThreshold mutate the group.
	Chance []uint8
	// Random holds the replacement value for each group, below 10^GeneSizes[i]
	Random []uint64
}

// NewEntropy derives the mixing entropy from a seed. The seed is reduced modulo 2^256.
func NewEntropy(seed *big.Int) Entropy {
	s := new(big.Int).And(seed, MaxGenes)

	n := len(GeneSizes)
	e := Entropy{
		Mask:   uint16(new(big.Int).Mod(s, big.NewInt(maskModulus)).Uint64()),
		Chance: make([]uint8, n),
		Random: make([]uint64, n),
	}

	h := cipher.SumSHA256(s.FillBytes(make([]byte, seedBytes)))

	// chance digit i is the i-th of the lowest n decimal digits of h, most significant first
	chance := new(big.Int).Mod(new(big.Int).SetBytes(h[:]), pow10(n))
	m := new(big.Int)
	for i := n - 1; i >= 0; i-- {
		chance.DivMod(chance, ten, m)
		e.Chance[i] = uint8(m.Uint64())
	}

	// random values are cut from a second hash, walking the layout from the least significant group
	h2 := cipher.SumSHA256(h[:])
	rnd := new(big.Int).SetBytes(h2[:])
	for i := n - 1; i >= 0; i-- {
		rnd.DivMod(rnd, pow10(GeneSizes[i]), m)
		e.Random[i] = m.Uint64()
	}

	return e
}

// Mix returns the kitten genome for the given parents and seed
func Mix(dadGenes, mumGenes, seed *big.Int) *big.Int {
	return MixEntropy(dadGenes, mumGenes, NewEntropy(seed))
}

// MixEntropy returns the kitten genome for the given parents and already derived entropy.
// Digits of the parents above the gene layout are not inherited.
func MixEntropy(dadGenes, mumGenes *big.Int, e Entropy) *big.Int {
	dad := Split(dadGenes)
	mum := Split(mumGenes)

	n := len(GeneSizes)
	kitten := make([]uint64, n)
	for i := 0; i < n; i++ {
		switch {
		case i < len(e.Chance) && i < len(e.Random) && e.Chance[i] > RandomThreshold:
			kitten[i] = e.Random[i] % pow10(GeneSizes[i]).Uint64()
		case e.Mask&(1<<uint(n-1-i)) != 0:
			kitten[i] = dad[i]
		default:
			kitten[i] = mum[i]
		}
	}

	return Join(kitten)
}

// Split breaks a genome into its gene groups, most significant first
func Split(g *big.Int) []uint64 {
	groups := make([]uint64, len(GeneSizes))
	rest := new(big.Int).Abs(g)
	m := new(big.Int)
	for i := len(GeneSizes) - 1; i >= 0; i-- {
		rest.DivMod(rest, pow10(GeneSizes[i]), m)
		groups[i] = m.Uint64()
	}
	return groups
}

// Join concatenates gene groups, most significant first, into a genome
func Join(groups []uint64) *big.Int {
	g := new(big.Int)
	for i, v := range groups {
		g.Mul(g, pow10(GeneSizes[i]))
		g.Add(g, new(big.Int).SetUint64(v))
	}
	return g
}

// Valid reports whether g fits the 256 bit genome domain
func Valid(g *big.Int) bool {
	return g != nil && g.Sign() >= 0 && g.Cmp(MaxGenes) <= 0
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}
