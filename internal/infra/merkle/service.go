package merkle

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type Service struct{}

func (s *Service) LeafHash(account common.Address, maxAmount *big.Int) common.Hash {
	return LeafHash(account, maxAmount)
}

func (s *Service) Verify(proof []common.Hash, root, leaf common.Hash) bool {
	return Verify(proof, root, leaf)
}
