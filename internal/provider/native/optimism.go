package native

import (
	"bytes"
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/model"
	"github.com/ggonzalez94/bridge-cli/internal/registry"
	"github.com/ggonzalez94/bridge-cli/internal/wallet"
)

var (
	l1BridgeABI = mustNativeABI(registry.L1StandardBridgeABI)
	l2BridgeABI = mustNativeABI(registry.L2StandardBridgeABI)
	mintableABI = mustNativeABI(registry.OptimismMintableERC20ABI)
)

func mustNativeABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// bridgeMinGasLimit is the minimum gas forwarded to the L2 finalization
// call, passed verbatim to the standard bridge.
const bridgeMinGasLimit = uint32(200_000)

// OptimismAdaptor speaks the OP-stack standard bridge pair: the L1 bridge
// on the source chain, the canonical L2 bridge on the destination.
type OptimismAdaptor struct {
	wallet wallet.Wallet
	log    *logrus.Entry
}

func NewOptimismAdaptor(w wallet.Wallet, log *logrus.Logger) *OptimismAdaptor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OptimismAdaptor{
		wallet: w,
		log:    log.WithField("adaptor", string(registry.AdaptorOptimism)),
	}
}

func (a *OptimismAdaptor) Kind() registry.AdaptorKind { return registry.AdaptorOptimism }

// CanBridgeToken accepts the native pair, any token pair from the static
// mapping table, and otherwise asks the destination token contract which L1
// token it wraps.
func (a *OptimismAdaptor) CanBridgeToken(ctx context.Context, ep registry.BridgeEndpoint, spec model.TransferSpec) bool {
	fromNative := registry.IsNativeToken(spec.From.Token)
	toNative := registry.IsNativeToken(spec.To.Token)
	if fromNative && toNative {
		return true
	}
	if fromNative != toNative {
		return false
	}
	if registry.IsMatchedTokenPair(ep.FromChainID, spec.From.Token, ep.ToChainID, spec.To.Token) {
		return true
	}
	mapped, err := a.lookupL1Token(ctx, ep.ToChainID, spec.To.Token)
	if err != nil {
		a.log.Debugf("token mapping lookup failed: %v", err)
		return false
	}
	return mapped == spec.From.Token
}

// lookupL1Token reads the wrapped token's recorded L1 counterpart, trying
// the legacy l1Token() accessor first and remoteToken() as fallback.
func (a *OptimismAdaptor) lookupL1Token(ctx context.Context, chainID int64, token common.Address) (common.Address, error) {
	ledger, err := a.wallet.Ledger(ctx, chainID)
	if err != nil {
		return common.Address{}, err
	}
	for _, method := range []string{"l1Token", "remoteToken"} {
		data, err := mintableABI.Pack(method)
		if err != nil {
			continue
		}
		out, err := ledger.Client().CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
		if err != nil || len(out) < 32 {
			continue
		}
		values, err := mintableABI.Unpack(method, out)
		if err != nil || len(values) == 0 {
			continue
		}
		if addr, ok := values[0].(common.Address); ok {
			return addr, nil
		}
	}
	return common.Address{}, clierr.New(clierr.CodeUnavailable, "token does not expose an L1 counterpart")
}

func (a *OptimismAdaptor) BuildBridgeTx(ctx context.Context, ep registry.BridgeEndpoint, m BridgeMatch) (common.Address, *big.Int, []byte, error) {
	tag := ReplayTag(m.RequestID)
	target := common.HexToAddress(ep.L1Bridge)
	if m.Native() {
		data, err := l1BridgeABI.Pack("bridgeETHTo", m.Recipient, bridgeMinGasLimit, tag)
		if err != nil {
			return common.Address{}, nil, nil, clierr.Wrap(clierr.CodeInternal, "pack bridgeETHTo", err)
		}
		return target, new(big.Int).Set(m.Amount), data, nil
	}
	data, err := l1BridgeABI.Pack("bridgeERC20To", m.SourceToken, m.DestToken, m.Recipient, m.Amount, bridgeMinGasLimit, tag)
	if err != nil {
		return common.Address{}, nil, nil, clierr.Wrap(clierr.CodeInternal, "pack bridgeERC20To", err)
	}
	return target, big.NewInt(0), data, nil
}

func (a *OptimismAdaptor) FindFinalizeEvent(ctx context.Context, ep registry.BridgeEndpoint, m BridgeMatch, fromBlock, toBlock uint64) (string, bool, error) {
	ledger, err := a.wallet.Ledger(ctx, ep.ToChainID)
	if err != nil {
		return "", false, err
	}
	event := l2BridgeABI.Events["ETHBridgeFinalized"]
	if !m.Native() {
		event = l2BridgeABI.Events["ERC20BridgeFinalized"]
	}
	bridge := common.HexToAddress(ep.L2Bridge)
	logs, err := ledger.Client().FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{bridge},
		Topics:    [][]common.Hash{{event.ID}},
	})
	if err != nil {
		return "", false, clierr.Wrap(clierr.CodeUnavailable, "filter finalize events", err)
	}
	tag := ReplayTag(m.RequestID)
	for _, lg := range logs {
		if m.Native() {
			if a.matchETHFinalized(lg, m, tag) {
				return lg.TxHash.Hex(), true, nil
			}
			continue
		}
		if a.matchERC20Finalized(lg, m, tag) {
			return lg.TxHash.Hex(), true, nil
		}
	}
	return "", false, nil
}

// ETHBridgeFinalized(address indexed from, address indexed to, uint256 amount, bytes extraData)
func (a *OptimismAdaptor) matchETHFinalized(lg types.Log, m BridgeMatch, tag []byte) bool {
	if len(lg.Topics) != 3 {
		return false
	}
	if common.BytesToAddress(lg.Topics[1].Bytes()) != m.Sender {
		return false
	}
	if common.BytesToAddress(lg.Topics[2].Bytes()) != m.Recipient {
		return false
	}
	fields := map[string]any{}
	if err := l2BridgeABI.UnpackIntoMap(fields, "ETHBridgeFinalized", lg.Data); err != nil {
		return false
	}
	amount, _ := fields["amount"].(*big.Int)
	extra, _ := fields["extraData"].([]byte)
	return amount != nil && amount.Cmp(m.Amount) == 0 && bytes.Equal(extra, tag)
}

// ERC20BridgeFinalized(address indexed localToken, address indexed remoteToken,
// address indexed from, address to, uint256 amount, bytes extraData)
func (a *OptimismAdaptor) matchERC20Finalized(lg types.Log, m BridgeMatch, tag []byte) bool {
	if len(lg.Topics) != 4 {
		return false
	}
	if common.BytesToAddress(lg.Topics[1].Bytes()) != m.DestToken {
		return false
	}
	if common.BytesToAddress(lg.Topics[2].Bytes()) != m.SourceToken {
		return false
	}
	if common.BytesToAddress(lg.Topics[3].Bytes()) != m.Sender {
		return false
	}
	fields := map[string]any{}
	if err := l2BridgeABI.UnpackIntoMap(fields, "ERC20BridgeFinalized", lg.Data); err != nil {
		return false
	}
	to, _ := fields["to"].(common.Address)
	amount, _ := fields["amount"].(*big.Int)
	extra, _ := fields["extraData"].([]byte)
	return to == m.Recipient && amount != nil && amount.Cmp(m.Amount) == 0 && bytes.Equal(extra, tag)
}

func (a *OptimismAdaptor) ExplorerLink(ep registry.BridgeEndpoint, txHash string) string {
	return explorerTxLink(ep.FromChainID, txHash)
}
