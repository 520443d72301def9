package native

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/model"
	"github.com/ggonzalez94/bridge-cli/internal/registry"
)

var nativeERC20ABI = mustNativeABI(registry.ERC20MinimalABI)

func packNativeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := nativeERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack approve calldata", err)
	}
	return data, nil
}

// BridgeMatch carries everything an adaptor needs to build a bridge call
// and later recognize its finalization on the destination chain.
type BridgeMatch struct {
	RequestID    string
	Sender       common.Address
	Recipient    common.Address
	SourceToken  common.Address
	DestToken    common.Address
	Amount       *big.Int
	SourceTxHash common.Hash
}

// Native returns true for a native-coin transfer; both sides must carry the
// sentinel for the match to be native.
func (m BridgeMatch) Native() bool {
	return registry.IsNativeToken(m.SourceToken) && registry.IsNativeToken(m.DestToken)
}

// ReplayTag distinguishes concurrent bridge calls carrying identical
// sender/recipient/amount tuples. It travels in the bridge call's extra
// data and is matched back when scanning finalize events.
func ReplayTag(requestID string) []byte {
	return crypto.Keccak256([]byte(requestID))
}

// Adaptor is one contract strategy behind the native provider: it decides
// token bridgeability, builds the bridge call and locates the matching
// finalize event on the destination chain.
type Adaptor interface {
	Kind() registry.AdaptorKind
	CanBridgeToken(ctx context.Context, ep registry.BridgeEndpoint, spec model.TransferSpec) bool
	// BuildBridgeTx returns the call target, value and call data of the
	// bridge transaction. Approvals are the provider's concern.
	BuildBridgeTx(ctx context.Context, ep registry.BridgeEndpoint, m BridgeMatch) (common.Address, *big.Int, []byte, error)
	// FindFinalizeEvent searches [fromBlock, toBlock] on the destination
	// chain for the finalization of m, returning the containing transaction
	// hash on a match.
	FindFinalizeEvent(ctx context.Context, ep registry.BridgeEndpoint, m BridgeMatch, fromBlock, toBlock uint64) (string, bool, error)
	// ExplorerLink renders the user-facing link for the source transaction.
	ExplorerLink(ep registry.BridgeEndpoint, txHash string) string
}

func explorerTxLink(chainID int64, txHash string) string {
	c, ok := registry.ChainByID(chainID)
	if !ok || c.ExplorerURL == "" {
		return ""
	}
	return c.ExplorerURL + "/tx/" + txHash
}
