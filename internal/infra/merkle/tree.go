package merkle

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrEmptyTree    = errors.New("empty merkle tree")
	ErrUnknownLeaf  = errors.New("leaf not in tree")
	ErrInvalidEntry = errors.New("invalid allowlist entry")
)

// Entry is one allowlist row fed to the off-chain tree builder.
type Entry struct {
	Account   common.Address
	MaxAmount *big.Int
}

// Tree is the off-chain side of the protocol: it commits an allowlist to a
// root and produces the per-recipient proofs that the vault later verifies.
// Leaves are zero-padded to the next power of two so every proof has the
// same length.
type Tree struct {
	levels [][]common.Hash
	index  map[common.Hash]int
}

func Build(entries []Entry) (*Tree, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyTree
	}
	leaves := make([]common.Hash, 0, len(entries))
	index := make(map[common.Hash]int, len(entries))
	for _, entry := range entries {
		if entry.MaxAmount == nil || entry.MaxAmount.Sign() <= 0 {
			return nil, ErrInvalidEntry
		}
		leaf := LeafHash(entry.Account, entry.MaxAmount)
		if _, dup := index[leaf]; dup {
			return nil, ErrInvalidEntry
		}
		index[leaf] = len(leaves)
		leaves = append(leaves, leaf)
	}
	for len(leaves)&(len(leaves)-1) != 0 {
		leaves = append(leaves, common.Hash{})
	}

	levels := [][]common.Hash{leaves}
	for level := leaves; len(level) > 1; {
		next := make([]common.Hash, len(level)/2)
		for i := range next {
			next[i] = hashPair(level[2*i], level[2*i+1])
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{levels: levels, index: index}, nil
}

func (t *Tree) Root() common.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof returns the bottom-up sibling path for the given allotment.
func (t *Tree) Proof(account common.Address, maxAmount *big.Int) ([]common.Hash, error) {
	pos, ok := t.index[LeafHash(account, maxAmount)]
	if !ok {
		return nil, ErrUnknownLeaf
	}
	proof := make([]common.Hash, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		proof = append(proof, level[pos^1])
		pos >>= 1
	}
	return proof, nil
}
