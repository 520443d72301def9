package wallet

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/registry"
)

// Ledger is a signer/reader bound to one chain's RPC endpoint.
type Ledger struct {
	chainID      *big.Int
	client       *ethclient.Client
	pollInterval time.Duration
	stepTimeout  time.Duration
}

var ledgerERC20ABI = mustABI(registry.ERC20MinimalABI)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

func Dial(ctx context.Context, rpcURL string, chainID int64) (*Ledger, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect chain rpc", err)
	}
	return NewLedger(client, chainID), nil
}

func NewLedger(client *ethclient.Client, chainID int64) *Ledger {
	return &Ledger{
		chainID:      big.NewInt(chainID),
		client:       client,
		pollInterval: 2 * time.Second,
		stepTimeout:  2 * time.Minute,
	}
}

func (l *Ledger) ChainID() int64             { return l.chainID.Int64() }
func (l *Ledger) Client() *ethclient.Client  { return l.client }
func (l *Ledger) Close()                     { l.client.Close() }

func (l *Ledger) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	nonce, err := l.client.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}
	return nonce, nil
}

func (l *Ledger) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := l.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch native balance", err)
	}
	return balance, nil
}

func (l *Ledger) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	data, err := ledgerERC20ABI.Pack("balanceOf", holder)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack balanceOf call", err)
	}
	raw, err := l.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read token balance", err)
	}
	out, err := ledgerERC20ABI.Unpack("balanceOf", raw)
	if err != nil || len(out) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode token balance", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid token balance response type")
	}
	return balance, nil
}

// SubmitPrebuilt signs and broadcasts an already-built transaction, then
// waits for its receipt. This is the single submission entry point; callers
// construct the transaction themselves and never swap settler behavior.
func (l *Ledger) SubmitPrebuilt(ctx context.Context, signer Signer, tx *types.Transaction) (*types.Receipt, error) {
	signed, err := signer.SignTx(l.chainID, tx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := l.client.SendTransaction(ctx, signed); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	return l.WaitForReceipt(ctx, signed.Hash())
}

func (l *Ledger) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.stepTimeout)
	defer cancel()
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := l.client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
			// Transient polling failures are absorbed until the timeout.
			_ = err
		}
		select {
		case <-waitCtx.Done():
			return nil, clierr.Wrap(clierr.CodeUnavailable, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// Balances returns nested holder -> token -> balance readings. The zero
// token address reads the native coin balance.
func Balances(ctx context.Context, ledger *Ledger, tokens, holders []common.Address) (map[common.Address]map[common.Address]*big.Int, error) {
	out := make(map[common.Address]map[common.Address]*big.Int, len(holders))
	for _, holder := range holders {
		byToken := make(map[common.Address]*big.Int, len(tokens))
		for _, token := range tokens {
			var (
				balance *big.Int
				err     error
			)
			if registry.IsNativeToken(token) {
				balance, err = ledger.NativeBalance(ctx, holder)
			} else {
				balance, err = ledger.TokenBalance(ctx, token, holder)
			}
			if err != nil {
				return nil, err
			}
			byToken[token] = balance
		}
		out[holder] = byToken
	}
	return out, nil
}
