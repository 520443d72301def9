package native

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/bridge-cli/internal/cache"
	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/model"
	"github.com/ggonzalez94/bridge-cli/internal/registry"
	"github.com/ggonzalez94/bridge-cli/internal/wallet"
)

var omnibridgeABI = mustNativeABI(registry.OmnibridgeABI)

// OmnibridgeAdaptor speaks the AMB token mediator pair used by Gnosis.
// Completion tracking is two-phase: the bridging transaction emits a message
// id on the source mediator, and the destination mediator emits TokensBridged
// carrying the same id once the transfer settles.
type OmnibridgeAdaptor struct {
	wallet   wallet.Wallet
	messages *cache.MessageStore
	log      *logrus.Entry
}

// NewOmnibridgeAdaptor builds the adaptor; messages may be nil, in which
// case the message id is re-read from the source logs on every poll.
func NewOmnibridgeAdaptor(w wallet.Wallet, messages *cache.MessageStore, log *logrus.Logger) *OmnibridgeAdaptor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OmnibridgeAdaptor{
		wallet:   w,
		messages: messages,
		log:      log.WithField("adaptor", string(registry.AdaptorOmnibridge)),
	}
}

func (a *OmnibridgeAdaptor) Kind() registry.AdaptorKind { return registry.AdaptorOmnibridge }

// CanBridgeToken: the mediator moves ERC-20 tokens only, and only pairs from
// the static mapping table.
func (a *OmnibridgeAdaptor) CanBridgeToken(ctx context.Context, ep registry.BridgeEndpoint, spec model.TransferSpec) bool {
	if registry.IsNativeToken(spec.From.Token) || registry.IsNativeToken(spec.To.Token) {
		return false
	}
	return registry.IsMatchedTokenPair(ep.FromChainID, spec.From.Token, ep.ToChainID, spec.To.Token)
}

func (a *OmnibridgeAdaptor) BuildBridgeTx(ctx context.Context, ep registry.BridgeEndpoint, m BridgeMatch) (common.Address, *big.Int, []byte, error) {
	if m.Native() {
		return common.Address{}, nil, nil, clierr.New(clierr.CodeProtocol, "omnibridge cannot move the native coin")
	}
	data, err := omnibridgeABI.Pack("relayTokens", m.SourceToken, m.Recipient, m.Amount)
	if err != nil {
		return common.Address{}, nil, nil, clierr.Wrap(clierr.CodeInternal, "pack relayTokens", err)
	}
	return common.HexToAddress(ep.ForeignMediator), big.NewInt(0), data, nil
}

// resolveMessageID reads the message id the source mediator emitted for the
// bridging transaction, consulting the cache first. A bridging transaction
// with no TokensBridgingInitiated log is unanswerable: without the id the
// destination side can never be matched, so the condition is fatal rather
// than indefinitely pending.
func (a *OmnibridgeAdaptor) resolveMessageID(ctx context.Context, ep registry.BridgeEndpoint, m BridgeMatch) (common.Hash, error) {
	key := m.SourceTxHash.Hex()
	if cached, ok, err := a.messages.MessageID(key); err == nil && ok {
		return common.HexToHash(cached), nil
	}

	ledger, err := a.wallet.Ledger(ctx, ep.FromChainID)
	if err != nil {
		return common.Hash{}, err
	}
	receipt, err := ledger.Client().TransactionReceipt(ctx, m.SourceTxHash)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "read bridging receipt", err)
	}
	mediator := common.HexToAddress(ep.ForeignMediator)
	initiated := omnibridgeABI.Events["TokensBridgingInitiated"].ID
	for _, lg := range receipt.Logs {
		if lg.Address != mediator || len(lg.Topics) != 4 || lg.Topics[0] != initiated {
			continue
		}
		id := lg.Topics[3]
		if err := a.messages.PutMessageID(key, id.Hex()); err != nil {
			a.log.Warnf("cache message id: %v", err)
		}
		return id, nil
	}
	return common.Hash{}, clierr.New(clierr.CodeProtocol, "bridging transaction "+key+" emitted no message id")
}

func (a *OmnibridgeAdaptor) FindFinalizeEvent(ctx context.Context, ep registry.BridgeEndpoint, m BridgeMatch, fromBlock, toBlock uint64) (string, bool, error) {
	messageID, err := a.resolveMessageID(ctx, ep, m)
	if err != nil {
		return "", false, err
	}
	ledger, err := a.wallet.Ledger(ctx, ep.ToChainID)
	if err != nil {
		return "", false, err
	}
	logs, err := ledger.Client().FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{common.HexToAddress(ep.HomeMediator)},
		Topics: [][]common.Hash{
			{omnibridgeABI.Events["TokensBridged"].ID},
			nil,
			{common.BytesToHash(m.Recipient.Bytes())},
			{messageID},
		},
	})
	if err != nil {
		return "", false, clierr.Wrap(clierr.CodeUnavailable, "filter tokens-bridged events", err)
	}
	if len(logs) == 0 {
		return "", false, nil
	}
	return logs[0].TxHash.Hex(), true, nil
}

func (a *OmnibridgeAdaptor) ExplorerLink(ep registry.BridgeEndpoint, txHash string) string {
	return explorerTxLink(ep.FromChainID, txHash)
}
