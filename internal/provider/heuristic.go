package provider

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ggonzalez94/bridge-cli/internal/model"
)

// FailureHeuristic decides whether a pending transfer should be judged
// failed without further polling, so status checks do not loop forever on
// unreachable RPC or API data. The window constants are configuration, not
// hard-coded behavior.
type FailureHeuristic struct {
	// SoftFloor is the minimum age below which a transfer is never judged
	// failed, regardless of eta.
	SoftFloor time.Duration
	// HardCeiling is the age above which a transfer is always judged failed.
	HardCeiling time.Duration
}

func DefaultFailureHeuristic() FailureHeuristic {
	return FailureHeuristic{
		SoftFloor:   15 * time.Minute,
		HardCeiling: 20 * time.Minute,
	}
}

// ReceiptFetcher reads the source-chain receipt for a transaction hash.
type ReceiptFetcher func(ctx context.Context, hash common.Hash) (*types.Receipt, error)

// LikelyFailed applies the staleness heuristic:
//   - no execution data: failed
//   - age > hard ceiling: failed
//   - age within the soft window (max(eta*10, soft floor)): not failed,
//     no receipt check
//   - otherwise the source receipt decides: reverted, missing or
//     unreadable means failed.
func (h FailureHeuristic) LikelyFailed(ctx context.Context, req *model.ProviderRequest, nowUnix int64, fetch ReceiptFetcher) bool {
	if req.ExecutionData == nil {
		return true
	}
	age := time.Duration(nowUnix-req.ExecutionData.Timestamp) * time.Second
	if age > h.HardCeiling {
		return true
	}
	soft := h.SoftFloor
	if req.QuoteData != nil && req.QuoteData.ETA != nil && *req.QuoteData.ETA > 0 {
		if window := time.Duration(*req.QuoteData.ETA*10) * time.Second; window > soft {
			soft = window
		}
	}
	if age <= soft {
		return false
	}
	if req.ExecutionData.FromTxHash == nil || fetch == nil {
		return true
	}
	receipt, err := fetch(ctx, common.HexToHash(*req.ExecutionData.FromTxHash))
	if err != nil || receipt == nil {
		return true
	}
	return receipt.Status != types.ReceiptStatusSuccessful
}
