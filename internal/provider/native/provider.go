package native

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/bridge-cli/internal/cache"
	"github.com/ggonzalez94/bridge-cli/internal/chain"
	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/model"
	"github.com/ggonzalez94/bridge-cli/internal/provider"
	"github.com/ggonzalez94/bridge-cli/internal/registry"
	"github.com/ggonzalez94/bridge-cli/internal/wallet"
)

// Fallback gas for the bridge call when live estimation is unavailable.
const bridgeGasDefault = uint64(300_000)

// canHandleProbeTimeout bounds the contract lookup inside CanHandleRequest,
// which has no caller-supplied context.
const canHandleProbeTimeout = 10 * time.Second

// Provider moves funds over a chain's canonical bridge contracts. One
// instance serves all endpoints of a single adaptor kind.
type Provider struct {
	provider.Base
	wallet    wallet.Wallet
	adaptor   Adaptor
	heuristic provider.FailureHeuristic
}

func NewOptimismProvider(w wallet.Wallet, log *logrus.Logger) *Provider {
	return &Provider{
		Base:      provider.NewBase(registry.ProviderOptimism, log),
		wallet:    w,
		adaptor:   NewOptimismAdaptor(w, log),
		heuristic: provider.DefaultFailureHeuristic(),
	}
}

func NewOmnibridgeProvider(w wallet.Wallet, messages *cache.MessageStore, log *logrus.Logger) *Provider {
	return &Provider{
		Base:      provider.NewBase(registry.ProviderOmnibridge, log),
		wallet:    w,
		adaptor:   NewOmnibridgeAdaptor(w, messages, log),
		heuristic: provider.DefaultFailureHeuristic(),
	}
}

func (p *Provider) SetFailureHeuristic(h provider.FailureHeuristic) { p.heuristic = h }

func (p *Provider) endpointFor(spec model.TransferSpec) (registry.BridgeEndpoint, bool) {
	fromChain, err := registry.ParseChain(spec.From.Chain)
	if err != nil {
		return registry.BridgeEndpoint{}, false
	}
	toChain, err := registry.ParseChain(spec.To.Chain)
	if err != nil {
		return registry.BridgeEndpoint{}, false
	}
	ep, ok := registry.FindBridgeEndpoint(fromChain.ID, toChain.ID)
	if !ok || ep.Adaptor != p.adaptor.Kind() {
		return registry.BridgeEndpoint{}, false
	}
	return ep, true
}

func (p *Provider) CanHandleRequest(spec model.TransferSpec) bool {
	ep, ok := p.endpointFor(spec)
	if !ok {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), canHandleProbeTimeout)
	defer cancel()
	return p.adaptor.CanBridgeToken(ctx, ep, spec)
}

// Quote never touches the network: the endpoint table fixes the eta for a
// canonical bridge route.
func (p *Provider) Quote(ctx context.Context, req *model.ProviderRequest) error {
	return p.Base.Quote(ctx, req, func(ctx context.Context) (*model.QuoteData, error) {
		ep, ok := p.endpointFor(req.Params)
		if !ok {
			return nil, clierr.New(clierr.CodeUnsupported, "no native bridge endpoint for route")
		}
		eta := ep.ETASeconds
		return &model.QuoteData{ETA: &eta}, nil
	})
}

func (p *Provider) Requirements(ctx context.Context, req *model.ProviderRequest) (provider.Requirement, error) {
	return p.Base.Requirements(ctx, req, func(ctx context.Context) ([]provider.PlannedTx, error) {
		return p.plan(ctx, req)
	})
}

func (p *Provider) Execute(ctx context.Context, req *model.ProviderRequest) error {
	return p.Base.Execute(ctx, req, p.wallet, func(ctx context.Context) ([]provider.PlannedTx, error) {
		return p.plan(ctx, req)
	})
}

func (p *Provider) matchFor(req *model.ProviderRequest) BridgeMatch {
	m := BridgeMatch{
		RequestID:   req.ID,
		Sender:      req.Params.From.Address,
		Recipient:   req.Params.To.Address,
		SourceToken: req.Params.From.Token,
		DestToken:   req.Params.To.Token,
		Amount:      req.Params.ToAmount,
	}
	if req.ExecutionData != nil && req.ExecutionData.FromTxHash != nil {
		m.SourceTxHash = common.HexToHash(*req.ExecutionData.FromTxHash)
	}
	return m
}

// plan builds the approval (ERC-20 only) followed by the adaptor's bridge
// call. Canonical bridges are 1:1, so the source amount equals the requested
// destination amount.
func (p *Provider) plan(ctx context.Context, req *model.ProviderRequest) ([]provider.PlannedTx, error) {
	if req.Params.ToAmount != nil && req.Params.ToAmount.Sign() == 0 {
		return nil, nil
	}
	ep, ok := p.endpointFor(req.Params)
	if !ok {
		return nil, clierr.New(clierr.CodeUnsupported, "no native bridge endpoint for route")
	}
	m := p.matchFor(req)

	target, value, data, err := p.adaptor.BuildBridgeTx(ctx, ep, m)
	if err != nil {
		return nil, err
	}

	fromChain, _ := registry.ParseChain(req.Params.From.Chain)
	ledger, err := p.wallet.Ledger(ctx, fromChain.ID)
	if err != nil {
		return nil, err
	}
	fee, err := chain.FetchFeeData(ctx, ledger)
	if err != nil {
		return nil, err
	}
	nonce, err := ledger.PendingNonce(ctx, m.Sender)
	if err != nil {
		return nil, err
	}

	var plan []provider.PlannedTx
	if !m.Native() {
		approveData, err := packNativeApprove(target, m.Amount)
		if err != nil {
			return nil, err
		}
		approve := provider.PlannedTx{
			ChainID: fromChain.ID,
			From:    m.Sender,
			To:      m.SourceToken,
			Value:   big.NewInt(0),
			Data:    approveData,
			Gas:     100_000,
			Fee:     fee,
			Nonce:   nonce,
		}
		approve.Gas = chain.EstimateGasSafe(ctx, ledger, approve.CallMsg(), approve.Gas, p.GasBuffer())
		plan = append(plan, approve)
		nonce++
	}

	bridge := provider.PlannedTx{
		ChainID: fromChain.ID,
		From:    m.Sender,
		To:      target,
		Value:   value,
		Data:    data,
		Gas:     bridgeGasDefault,
		Fee:     fee,
		Nonce:   nonce,
	}
	bridge.Gas = chain.EstimateGasSafe(ctx, ledger, bridge.CallMsg(), bridge.Gas, p.GasBuffer())
	return append(plan, bridge), nil
}

func (p *Provider) StatusJSON(ctx context.Context, req *model.ProviderRequest) (provider.StatusReport, error) {
	return p.Base.StatusJSON(ctx, req, func() string {
		if req.ExecutionData == nil || req.ExecutionData.FromTxHash == nil {
			return ""
		}
		ep, ok := p.endpointFor(req.Params)
		if !ok {
			return ""
		}
		return p.adaptor.ExplorerLink(ep, *req.ExecutionData.FromTxHash)
	}, func(ctx context.Context) error {
		return p.refreshStatus(ctx, req)
	})
}

// refreshStatus reconciles a pending bridge transfer directly against the
// chains: confirm the source receipt, then walk the destination chain from
// the source block's timestamp looking for the matching finalize event.
func (p *Provider) refreshStatus(ctx context.Context, req *model.ProviderRequest) error {
	ep, ok := p.endpointFor(req.Params)
	if !ok {
		return clierr.New(clierr.CodeProtocol, "request route has no native bridge endpoint")
	}
	m := p.matchFor(req)
	if req.ExecutionData.FromTxHash == nil {
		req.Status = model.StatusExecutionFailed
		return nil
	}

	srcLedger, err := p.wallet.Ledger(ctx, ep.FromChainID)
	if err != nil {
		return p.judgeUnreachable(ctx, req, err)
	}
	receipt, err := srcLedger.Client().TransactionReceipt(ctx, m.SourceTxHash)
	if err != nil {
		return p.judgeUnreachable(ctx, req, err)
	}
	if receipt.Status != 1 {
		msg := "bridge transaction reverted on the source chain"
		req.ExecutionData.Message = &msg
		req.Status = model.StatusExecutionFailed
		return nil
	}
	srcHeader, err := srcLedger.Client().HeaderByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		return p.judgeUnreachable(ctx, req, err)
	}
	startTime := srcHeader.Time

	destLedger, err := p.wallet.Ledger(ctx, ep.ToChainID)
	if err != nil {
		return p.judgeUnreachable(ctx, req, err)
	}
	start, err := FindBlockBelowTimestamp(ctx, destLedger.Client(), startTime)
	if err != nil {
		return p.judgeUnreachable(ctx, req, err)
	}

	eta := ep.ETASeconds
	if req.QuoteData != nil && req.QuoteData.ETA != nil && *req.QuoteData.ETA > 0 {
		eta = *req.QuoteData.ETA
	}
	deadline := startTime + uint64(2*eta)

	hash, outcome, err := scanChunks(ctx, destLedger.Client(), start, deadline, func(ctx context.Context, fromBlock, toBlock uint64) (string, bool, error) {
		return p.adaptor.FindFinalizeEvent(ctx, ep, m, fromBlock, toBlock)
	})
	if err != nil {
		if clierr.HasCode(err, clierr.CodeProtocol) {
			return err
		}
		return p.judgeUnreachable(ctx, req, err)
	}
	switch outcome {
	case ScanFound:
		req.Status = model.StatusExecutionDone
		req.ExecutionData.ToTxHash = &hash
		req.ExecutionData.ElapsedTime = time.Since(time.Unix(int64(startTime), 0)).Seconds()
	case ScanExpired:
		msg := "finality window exceeded with no finalize event"
		req.ExecutionData.Message = &msg
		req.Status = model.StatusExecutionFailed
	case ScanPending:
		req.Status = model.StatusExecutionPending
	}
	return nil
}

// judgeUnreachable applies the staleness heuristic when chain state cannot
// be read, then reports the original error for logging.
func (p *Provider) judgeUnreachable(ctx context.Context, req *model.ProviderRequest, err error) error {
	fetch := provider.SourceReceiptFetcher(p.wallet, req.Params.From.Chain)
	if p.heuristic.LikelyFailed(ctx, req, time.Now().Unix(), fetch) {
		req.Status = model.StatusExecutionFailed
	} else {
		req.Status = model.StatusExecutionUnknown
	}
	return err
}
