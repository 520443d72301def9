package lifi

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/bridge-cli/internal/chain"
	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/httpx"
	"github.com/ggonzalez94/bridge-cli/internal/model"
	"github.com/ggonzalez94/bridge-cli/internal/provider"
	"github.com/ggonzalez94/bridge-cli/internal/registry"
	"github.com/ggonzalez94/bridge-cli/internal/wallet"
)

// DefaultETASeconds is the quote eta reported for LI.FI transfers. The API
// response does not carry a reliable finality estimate, so a provider
// constant is used instead.
const DefaultETASeconds = int64(30 * 60)

// Provider quotes and executes transfers through the LI.FI
// quote-by-destination-amount aggregator API.
type Provider struct {
	provider.Base
	http      *httpx.Client
	baseURL   string
	wallet    wallet.Wallet
	heuristic provider.FailureHeuristic
}

func New(httpClient *httpx.Client, w wallet.Wallet, log *logrus.Logger) *Provider {
	return &Provider{
		Base:      provider.NewBase(registry.ProviderLiFi, log),
		http:      httpClient,
		baseURL:   registry.LiFiBaseURL,
		wallet:    w,
		heuristic: provider.DefaultFailureHeuristic(),
	}
}

// SetBaseURL points the provider at an alternate API host; used by tests.
func (p *Provider) SetBaseURL(base string) { p.baseURL = base }

func (p *Provider) SetFailureHeuristic(h provider.FailureHeuristic) { p.heuristic = h }

// CanHandleRequest: the aggregator accepts any known EVM chain pair; it is
// selected through the preferred-route table or as part of quoting.
func (p *Provider) CanHandleRequest(spec model.TransferSpec) bool {
	_, fromErr := registry.ParseChain(spec.From.Chain)
	_, toErr := registry.ParseChain(spec.To.Chain)
	return fromErr == nil && toErr == nil
}

type quoteResponse struct {
	Action struct {
		FromToken struct {
			Address string `json:"address"`
		} `json:"fromToken"`
		FromAmount string `json:"fromAmount"`
	} `json:"action"`
	TransactionRequest struct {
		To       string `json:"to"`
		From     string `json:"from"`
		Value    string `json:"value"`
		Data     string `json:"data"`
		ChainID  int64  `json:"chainId"`
		GasPrice string `json:"gasPrice"`
		GasLimit string `json:"gasLimit"`
	} `json:"transactionRequest"`
}

type statusResponse struct {
	Status           string `json:"status"`
	SubstatusMessage string `json:"substatusMessage"`
	Message          string `json:"message"`
	Receiving        struct {
		TxHash string `json:"txHash"`
	} `json:"receiving"`
}

func (p *Provider) Quote(ctx context.Context, req *model.ProviderRequest) error {
	return p.Base.Quote(ctx, req, func(ctx context.Context) (*model.QuoteData, error) {
		fromChain, _ := registry.ParseChain(req.Params.From.Chain)
		toChain, _ := registry.ParseChain(req.Params.To.Chain)

		vals := url.Values{}
		vals.Set("fromChain", strconv.FormatInt(fromChain.ID, 10))
		vals.Set("fromAddress", req.Params.From.Address.Hex())
		vals.Set("fromToken", req.Params.From.Token.Hex())
		vals.Set("toChain", strconv.FormatInt(toChain.ID, 10))
		vals.Set("toAddress", req.Params.To.Address.Hex())
		vals.Set("toToken", req.Params.To.Token.Hex())
		vals.Set("toAmount", req.Params.ToAmount.String())
		vals.Set("maxPriceImpact", registry.MaxPriceImpact)

		var raw json.RawMessage
		if _, err := p.http.GetJSON(ctx, p.baseURL+"/quote/toAmount?"+vals.Encode(), &raw); err != nil {
			return nil, err
		}
		var resp quoteResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "decode lifi quote", err)
		}
		if strings.TrimSpace(resp.TransactionRequest.To) == "" || strings.TrimSpace(resp.TransactionRequest.Data) == "" {
			return nil, clierr.New(clierr.CodeUnavailable, "lifi quote missing executable transaction payload")
		}

		eta := DefaultETASeconds
		var stored map[string]any
		if err := json.Unmarshal(raw, &stored); err != nil {
			stored = map[string]any{}
		}
		return &model.QuoteData{
			ETA:          &eta,
			ProviderData: map[string]any{"response": stored},
		}, nil
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

// plan rebuilds the approval + bridge transaction pair from the stored quote
// response, applying live fee data, gas estimates and nonces.
func (p *Provider) plan(ctx context.Context, req *model.ProviderRequest) ([]provider.PlannedTx, error) {
	if req.Params.ToAmount != nil && req.Params.ToAmount.Sign() == 0 {
		return nil, nil
	}
	resp, err := storedQuote(req)
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
	sender := req.Params.From.Address
	nonce, err := ledger.PendingNonce(ctx, sender)
	if err != nil {
		return nil, err
	}

	var plan []provider.PlannedTx
	// An approval precedes the bridge call only for a non-native source
	// token with a spendable action in the response.
	if !registry.IsNativeToken(req.Params.From.Token) && strings.TrimSpace(resp.Action.FromAmount) != "" {
		fromAmount, ok := new(big.Int).SetString(strings.TrimSpace(resp.Action.FromAmount), 10)
		if !ok {
			return nil, clierr.New(clierr.CodeUnavailable, "lifi quote has invalid fromAmount")
		}
		spender := common.HexToAddress(resp.TransactionRequest.To)
		data, err := packApprove(spender, fromAmount)
		if err != nil {
			return nil, err
		}
		approve := provider.PlannedTx{
			ChainID: fromChain.ID,
			From:    sender,
			To:      req.Params.From.Token,
			Value:   big.NewInt(0),
			Data:    data,
			Gas:     100_000,
			Fee:     fee,
			Nonce:   nonce,
		}
		approve.Gas = chain.EstimateGasSafe(ctx, ledger, approve.CallMsg(), approve.Gas, p.GasBuffer())
		plan = append(plan, approve)
		// The bridge transaction follows the approval back-to-back; its
		// nonce is the expected next value, not re-queried.
		nonce++
	}

	value, err := parseHexOrDecimal(resp.TransactionRequest.Value)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "parse lifi transaction value", err)
	}
	gasLimit, err := parseHexOrDecimal(resp.TransactionRequest.GasLimit)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "parse lifi gas limit", err)
	}
	data, err := decodeHexData(resp.TransactionRequest.Data)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode lifi transaction data", err)
	}
	bridge := provider.PlannedTx{
		ChainID: fromChain.ID,
		From:    sender,
		To:      common.HexToAddress(resp.TransactionRequest.To),
		Value:   value,
		Data:    data,
		Gas:     gasLimit.Uint64(),
		Fee:     fee,
		Nonce:   nonce,
	}
	bridge.Gas = chain.EstimateGasSafe(ctx, ledger, bridge.CallMsg(), bridge.Gas, p.GasBuffer())
	return append(plan, bridge), nil
}

func (p *Provider) StatusJSON(ctx context.Context, req *model.ProviderRequest) (provider.StatusReport, error) {
	return p.Base.StatusJSON(ctx, req, func() string {
		if req.ExecutionData != nil && req.ExecutionData.FromTxHash != nil {
			return registry.LiFiScanURL + "/" + *req.ExecutionData.FromTxHash
		}
		return ""
	}, func(ctx context.Context) error {
		return p.refreshStatus(ctx, req)
	})
}

func (p *Provider) refreshStatus(ctx context.Context, req *model.ProviderRequest) error {
	if req.ExecutionData.FromTxHash == nil {
		req.Status = model.StatusExecutionFailed
		return nil
	}
	vals := url.Values{}
	vals.Set("txHash", *req.ExecutionData.FromTxHash)
	var resp statusResponse
	if _, err := p.http.GetJSON(ctx, p.baseURL+"/status?"+vals.Encode(), &resp); err != nil {
		if p.heuristic.LikelyFailed(ctx, req, nowUnix(), p.sourceReceiptFetcher(req)) {
			req.Status = model.StatusExecutionFailed
		} else {
			req.Status = model.StatusExecutionUnknown
		}
		return err
	}

	if msg := firstNonEmpty(resp.SubstatusMessage, resp.Message); msg != "" {
		req.ExecutionData.Message = &msg
	}
	switch strings.ToUpper(strings.TrimSpace(resp.Status)) {
	case "DONE":
		req.Status = model.StatusExecutionDone
		if hash := strings.TrimSpace(resp.Receiving.TxHash); hash != "" {
			req.ExecutionData.ToTxHash = &hash
		}
		if elapsed, err := p.crossChainElapsed(ctx, req); err == nil {
			req.ExecutionData.ElapsedTime = elapsed
		}
	case "FAILED":
		req.Status = model.StatusExecutionFailed
	case "PENDING":
		req.Status = model.StatusExecutionPending
	default:
		req.Status = model.StatusExecutionUnknown
	}
	return nil
}

// crossChainElapsed computes destination block time minus source block time
// for a completed transfer.
func (p *Provider) crossChainElapsed(ctx context.Context, req *model.ProviderRequest) (float64, error) {
	if req.ExecutionData.FromTxHash == nil || req.ExecutionData.ToTxHash == nil {
		return 0, fmt.Errorf("missing transaction hashes")
	}
	fromChain, _ := registry.ParseChain(req.Params.From.Chain)
	toChain, _ := registry.ParseChain(req.Params.To.Chain)
	srcTime, err := blockTimeOf(ctx, p.wallet, fromChain.ID, *req.ExecutionData.FromTxHash)
	if err != nil {
		return 0, err
	}
	dstTime, err := blockTimeOf(ctx, p.wallet, toChain.ID, *req.ExecutionData.ToTxHash)
	if err != nil {
		return 0, err
	}
	return float64(dstTime) - float64(srcTime), nil
}

func blockTimeOf(ctx context.Context, w wallet.Wallet, chainID int64, txHash string) (uint64, error) {
	ledger, err := w.Ledger(ctx, chainID)
	if err != nil {
		return 0, err
	}
	receipt, err := ledger.Client().TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return 0, err
	}
	header, err := ledger.Client().HeaderByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		return 0, err
	}
	return header.Time, nil
}

func (p *Provider) sourceReceiptFetcher(req *model.ProviderRequest) provider.ReceiptFetcher {
	return provider.SourceReceiptFetcher(p.wallet, req.Params.From.Chain)
}
