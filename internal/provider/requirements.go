package provider

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/registry"
)

var (
	requirementsERC20ABI = mustABI(registry.ERC20MinimalABI)

	approveSelector  = requirementsERC20ABI.Methods["approve"].ID
	transferSelector = requirementsERC20ABI.Methods["transfer"].ID
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// SumPlan totals a transaction plan's source-chain cost. Native coin is
// value + gas * gas-price per transaction; the token total is the sum of
// amounts carried by ERC-20 approve/transfer call data, read from the fixed
// second-argument offset. A plan whose approve/transfer call data is
// malformed must not silently under-report cost, so it is a protocol error.
func SumPlan(plan []PlannedTx) (Requirement, error) {
	req := zeroRequirement()
	for i, tx := range plan {
		if tx.Value != nil {
			req.Native.Add(req.Native, tx.Value)
		}
		gasCost := new(big.Int).Mul(new(big.Int).SetUint64(tx.Gas), tx.Fee.Price())
		req.Native.Add(req.Native, gasCost)

		amount, ok, err := erc20CallAmount(tx.Data)
		if err != nil {
			return Requirement{}, clierr.Wrap(clierr.CodeProtocol, fmt.Sprintf("transaction %d has corrupted ERC-20 call data", i+1), err)
		}
		if ok {
			req.Token.Add(req.Token, amount)
		}
	}
	return req, nil
}

// erc20CallAmount extracts the uint256 amount from approve/transfer call
// data. Both methods place the amount as the second 32-byte word after the
// 4-byte selector.
func erc20CallAmount(data []byte) (*big.Int, bool, error) {
	if len(data) < 4 {
		return nil, false, nil
	}
	selector := data[:4]
	if !bytes.Equal(selector, approveSelector) && !bytes.Equal(selector, transferSelector) {
		return nil, false, nil
	}
	if len(data) != 4+2*32 {
		return nil, false, fmt.Errorf("expected %d call data bytes, got %d", 4+2*32, len(data))
	}
	amount := new(big.Int).SetBytes(data[4+32 : 4+64])
	return amount, true, nil
}
