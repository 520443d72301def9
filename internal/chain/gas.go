package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/registry"
	"github.com/ggonzalez94/bridge-cli/internal/wallet"
)

// DefaultGasBuffer is the safety multiplier applied to gas estimates.
const DefaultGasBuffer = 1.10

// FeeData carries freshly fetched network fee fields. Either the EIP-1559
// pair or the legacy gas price is set, never both.
type FeeData struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasPrice             *big.Int
}

func (f FeeData) Dynamic() bool {
	return f.MaxFeePerGas != nil && f.MaxPriorityFeePerGas != nil
}

// Price returns the per-gas price used for requirement sums: the fee cap for
// dynamic transactions, the legacy price otherwise.
func (f FeeData) Price() *big.Int {
	if f.Dynamic() {
		return f.MaxFeePerGas
	}
	if f.GasPrice != nil {
		return f.GasPrice
	}
	return big.NewInt(0)
}

// FetchFeeData replaces any prior fee fields with live network data:
// EIP-1559 fields when the chain offers them, legacy gas price otherwise.
// A chain offering neither is a protocol error.
func FetchFeeData(ctx context.Context, ledger *wallet.Ledger) (FeeData, error) {
	client := ledger.Client()
	header, headerErr := client.HeaderByNumber(ctx, nil)
	if headerErr == nil && header.BaseFee != nil {
		tipCap, err := client.SuggestGasTipCap(ctx)
		if err != nil {
			tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
		}
		feeCap := new(big.Int).Mul(header.BaseFee, big.NewInt(2))
		feeCap.Add(feeCap, tipCap)
		return FeeData{MaxFeePerGas: feeCap, MaxPriorityFeePerGas: tipCap}, nil
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err == nil && gasPrice != nil && gasPrice.Sign() > 0 {
		return FeeData{GasPrice: gasPrice}, nil
	}
	return FeeData{}, clierr.New(clierr.CodeProtocol, "invalid gas pricing: chain offers neither EIP-1559 fees nor a legacy gas price")
}

// EstimateGasSafe estimates gas for msg from the real sender, retrying with
// well-known burn placeholder senders when the network returns a degenerate
// estimate (typically because the real sender lacks funds or approval to
// simulate). The buffer multiplier is applied to whichever estimate
// succeeds; if all attempts fail, the original gas value is returned
// unmodified.
func EstimateGasSafe(ctx context.Context, ledger *wallet.Ledger, msg ethereum.CallMsg, original uint64, buffer float64) uint64 {
	if buffer <= 0 {
		buffer = DefaultGasBuffer
	}
	if estimated, err := ledger.Client().EstimateGas(ctx, msg); err == nil && estimated > 0 {
		return uint64(float64(estimated) * buffer)
	}
	for _, placeholder := range registry.PlaceholderSenders {
		msg.From = common.HexToAddress(placeholder)
		if estimated, err := ledger.Client().EstimateGas(ctx, msg); err == nil && estimated > 0 {
			return uint64(float64(estimated) * buffer)
		}
	}
	return original
}
