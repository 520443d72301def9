package native

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
)

// HeaderSource is the slice of an RPC client the block scanner needs.
type HeaderSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// scanChunkBlocks is the fixed block window per finalize-event query.
const scanChunkBlocks = uint64(5000)

// FindBlockBelowTimestamp binary-searches the chain for the highest block
// whose timestamp is strictly below target. Returns 0 when even the genesis
// block is at or past the target.
func FindBlockBelowTimestamp(ctx context.Context, src HeaderSource, target uint64) (uint64, error) {
	head, err := src.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeUnavailable, "read chain head", err)
	}

	lo := uint64(0)
	hi := head.Number.Uint64()
	var best uint64
	for lo <= hi {
		mid := lo + (hi-lo)/2
		header, err := src.HeaderByNumber(ctx, new(big.Int).SetUint64(mid))
		if err != nil {
			return 0, clierr.Wrap(clierr.CodeUnavailable, "read block header", err)
		}
		if header.Time < target {
			best = mid
			if mid == hi {
				break
			}
			lo = mid + 1
		} else {
			if mid == 0 {
				break
			}
			hi = mid - 1
		}
	}
	return best, nil
}

// ScanOutcome is the terminal state of one finalize-event scan pass.
type ScanOutcome int

const (
	// ScanPending: the chain head was reached without a match and within
	// the finality window.
	ScanPending ScanOutcome = iota
	// ScanFound: the finalize event was located.
	ScanFound
	// ScanExpired: destination block time passed the finality deadline
	// without a match.
	ScanExpired
)

// chunkFinder inspects one inclusive block window for the finalize event
// and returns the containing transaction hash on a match.
type chunkFinder func(ctx context.Context, fromBlock, toBlock uint64) (string, bool, error)

// scanChunks walks the destination chain from the start block to the current
// head in fixed windows, stopping on the first match, on the deadline
// timestamp, or at the head.
func scanChunks(ctx context.Context, src HeaderSource, start, deadline uint64, find chunkFinder) (string, ScanOutcome, error) {
	head, err := src.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", ScanPending, clierr.Wrap(clierr.CodeUnavailable, "read chain head", err)
	}
	headNum := head.Number.Uint64()

	for from := start + 1; from <= headNum; from += scanChunkBlocks {
		to := from + scanChunkBlocks - 1
		if to > headNum {
			to = headNum
		}
		hash, found, err := find(ctx, from, to)
		if err != nil {
			return "", ScanPending, err
		}
		if found {
			return hash, ScanFound, nil
		}
		header, err := src.HeaderByNumber(ctx, new(big.Int).SetUint64(to))
		if err != nil {
			return "", ScanPending, clierr.Wrap(clierr.CodeUnavailable, "read block header", err)
		}
		if header.Time > deadline {
			return "", ScanExpired, nil
		}
	}
	return "", ScanPending, nil
}
