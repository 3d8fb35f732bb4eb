package merkle

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const HashSize = common.HashLength

// LeafHash encodes an (account, maxAmount) allotment into its canonical leaf:
// keccak256 over the 20-byte account followed by the amount as a 32-byte
// big-endian word.
func LeafHash(account common.Address, maxAmount *big.Int) common.Hash {
	buf := make([]byte, common.AddressLength+common.HashLength)
	copy(buf, account.Bytes())
	if maxAmount != nil {
		maxAmount.FillBytes(buf[common.AddressLength:])
	}
	return crypto.Keccak256Hash(buf)
}

// Verify folds the proof over the leaf with commutative pairwise hashing and
// compares the result to root. An empty proof verifies a single-leaf tree
// where the leaf is the root.
func Verify(proof []common.Hash, root, leaf common.Hash) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed == root
}

// hashPair orders the operands byte-lexicographically before hashing, so a
// proof carries no left/right position information.
func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}
