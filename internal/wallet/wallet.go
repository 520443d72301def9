package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer signs transactions for one externally-owned account.
type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}

/// Wallet is the narrow interface the bridge manager consumes: one master
// EOA, optional per-chain smart accounts, and chain-bound ledger readers.
type Wallet interface {
	Address() common.Address
	SafeAddress(chainID int64) (common.Address, bool)
	Signer() Signer
	Ledger(ctx context.Context, chainID int64) (*Ledger, error)
}
