package relay

import (
	"context"
	"encoding/json"
	"math"
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

// Provider routes transfers through the Relay liquidity network. Quotes are
// requested as exact-output so the recipient receives the requested amount.
type Provider struct {
	provider.Base
	http      *httpx.Client
	baseURL   string
	wallet    wallet.Wallet
	heuristic provider.FailureHeuristic
}

func New(httpClient *httpx.Client, w wallet.Wallet, log *logrus.Logger) *Provider {
	return &Provider{
		Base:      provider.NewBase(registry.ProviderRelay, log),
		http:      httpClient,
		baseURL:   registry.RelayBaseURL,
		wallet:    w,
		heuristic: provider.DefaultFailureHeuristic(),
	}
}

func (p *Provider) SetBaseURL(base string) { p.baseURL = base }

func (p *Provider) SetFailureHeuristic(h provider.FailureHeuristic) { p.heuristic = h }

// CanHandleRequest: the liquidity network is the catch-all fallback for any
// known chain pair.
func (p *Provider) CanHandleRequest(spec model.TransferSpec) bool {
	_, fromErr := registry.ParseChain(spec.From.Chain)
	_, toErr := registry.ParseChain(spec.To.Chain)
	return fromErr == nil && toErr == nil
}

type quoteBody struct {
	User                  string `json:"user"`
	OriginChainID         int64  `json:"originChainId"`
	OriginCurrency        string `json:"originCurrency"`
	DestinationChainID    int64  `json:"destinationChainId"`
	DestinationCurrency   string `json:"destinationCurrency"`
	Recipient             string `json:"recipient"`
	Amount                string `json:"amount"`
	TradeType             string `json:"tradeType"`
	EnableTrueExactOutput bool   `json:"enableTrueExactOutput"`
}

type quoteItemData struct {
	From                 string `json:"from"`
	To                   string `json:"to"`
	Data                 string `json:"data"`
	Value                string `json:"value"`
	Gas                  string `json:"gas"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
	ChainID              int64  `json:"chainId"`
}

type quoteStep struct {
	ID    string `json:"id"`
	Items []struct {
		Data quoteItemData `json:"data"`
	} `json:"items"`
}

type quoteResponse struct {
	Steps   []quoteStep `json:"steps"`
	Details struct {
		TimeEstimate float64 `json:"timeEstimate"`
	} `json:"details"`
}

type statusResponse struct {
	Requests []struct {
		Status string `json:"status"`
		Data   struct {
			InTxs []struct {
				Hash    string `json:"hash"`
				ChainID int64  `json:"chainId"`
			} `json:"inTxs"`
			OutTxs []struct {
				Hash    string `json:"hash"`
				ChainID int64  `json:"chainId"`
			} `json:"outTxs"`
		} `json:"data"`
	} `json:"requests"`
}

func (p *Provider) quoteBodyFor(req *model.ProviderRequest, user common.Address) quoteBody {
	fromChain, _ := registry.ParseChain(req.Params.From.Chain)
	toChain, _ := registry.ParseChain(req.Params.To.Chain)
	return quoteBody{
		User:                  user.Hex(),
		OriginChainID:         fromChain.ID,
		OriginCurrency:        req.Params.From.Token.Hex(),
		DestinationChainID:    toChain.ID,
		DestinationCurrency:   req.Params.To.Token.Hex(),
		Recipient:             req.Params.To.Address.Hex(),
		Amount:                req.Params.ToAmount.String(),
		TradeType:             "EXACT_OUTPUT",
		EnableTrueExactOutput: true,
	}
}

func (p *Provider) Quote(ctx context.Context, req *model.ProviderRequest) error {
	return p.Base.Quote(ctx, req, func(ctx context.Context) (*model.QuoteData, error) {
		resp, raw, err := p.postQuote(ctx, p.quoteBodyFor(req, req.Params.From.Address))
		if err != nil {
			return nil, err
		}
		if len(resp.Steps) == 0 {
			return nil, clierr.New(clierr.CodeUnavailable, "relay quote has no route steps")
		}
		if err := p.repairGas(ctx, req, resp); err != nil {
			return nil, err
		}

		eta := int64(math.Ceil(resp.Details.TimeEstimate))
		var stored map[string]any
		if err := json.Unmarshal(raw, &stored); err != nil {
			stored = map[string]any{}
		}
		stored["steps"] = repairedSteps(resp)
		return &model.QuoteData{
			ETA:          &eta,
			ProviderData: map[string]any{"response": stored},
		}, nil
	})
}

func (p *Provider) postQuote(ctx context.Context, body quoteBody) (*quoteResponse, json.RawMessage, error) {
	var raw json.RawMessage
	if _, err := p.http.PostJSON(ctx, p.baseURL+"/quote", body, &raw); err != nil {
		return nil, nil, err
	}
	var resp quoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, clierr.Wrap(clierr.CodeUnavailable, "decode relay quote", err)
	}
	return &resp, raw, nil
}

// repairGas backfills any item whose data lacks a gas field. The server
// omits gas when its simulation fails, typically because the real sender
// holds no funds or approval yet, so the same quote is repeated for the
// well-known placeholder senders and the gas values copied over. Items still
// uncovered fall back to the static default table.
func (p *Provider) repairGas(ctx context.Context, req *model.ProviderRequest, resp *quoteResponse) error {
	if !missingGas(resp) {
		return nil
	}
	for _, placeholder := range registry.PlaceholderSenders {
		alt, _, err := p.postQuote(ctx, p.quoteBodyFor(req, common.HexToAddress(placeholder)))
		if err != nil {
			p.Log().Warnf("placeholder quote for gas repair failed: %v", err)
			continue
		}
		copyGas(resp, alt)
		if !missingGas(resp) {
			return nil
		}
	}
	for si := range resp.Steps {
		step := &resp.Steps[si]
		for ii := range step.Items {
			if strings.TrimSpace(step.Items[ii].Data.Gas) == "" {
				step.Items[ii].Data.Gas = strconv.FormatUint(defaultGas(step.ID, step.Items[ii].Data.ChainID), 10)
			}
		}
	}
	return nil
}

func missingGas(resp *quoteResponse) bool {
	for _, step := range resp.Steps {
		for _, item := range step.Items {
			if strings.TrimSpace(item.Data.Gas) == "" {
				return true
			}
		}
	}
	return false
}

// copyGas fills gas fields from an alternate quote, matched positionally.
// Placeholder quotes return the same route shape for the same parameters.
func copyGas(dst, src *quoteResponse) {
	for si := range dst.Steps {
		if si >= len(src.Steps) {
			return
		}
		for ii := range dst.Steps[si].Items {
			if ii >= len(src.Steps[si].Items) {
				break
			}
			if strings.TrimSpace(dst.Steps[si].Items[ii].Data.Gas) == "" {
				dst.Steps[si].Items[ii].Data.Gas = src.Steps[si].Items[ii].Data.Gas
			}
		}
	}
}

// repairedSteps re-encodes the steps for persistence so the stored quote
// carries the backfilled gas values.
func repairedSteps(resp *quoteResponse) []any {
	raw, err := json.Marshal(resp.Steps)
	if err != nil {
		return nil
	}
	var steps []any
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil
	}
	return steps
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

// plan turns every step item of the stored quote into one transaction, with
// live fee data, gas estimate and nonce per item.
func (p *Provider) plan(ctx context.Context, req *model.ProviderRequest) ([]provider.PlannedTx, error) {
	if req.Params.ToAmount != nil && req.Params.ToAmount.Sign() == 0 {
		return nil, nil
	}
	resp, err := storedQuote(req)
	if err != nil {
		return nil, err
	}

	nonces := map[int64]uint64{}
	var plan []provider.PlannedTx
	for _, step := range resp.Steps {
		for _, item := range step.Items {
			data := item.Data
			if !common.IsHexAddress(data.To) {
				return nil, clierr.New(clierr.CodeUnavailable, "relay step "+step.ID+" has an invalid target address")
			}
			value, err := parseDecimal(data.Value)
			if err != nil {
				return nil, clierr.Wrap(clierr.CodeUnavailable, "parse relay step value", err)
			}
			gas, err := parseDecimalUint(data.Gas)
			if err != nil {
				return nil, clierr.Wrap(clierr.CodeUnavailable, "parse relay step gas", err)
			}
			payload := common.FromHex(data.Data)

			ledger, err := p.wallet.Ledger(ctx, data.ChainID)
			if err != nil {
				return nil, err
			}
			fee, err := chain.FetchFeeData(ctx, ledger)
			if err != nil {
				return nil, err
			}
			nonce, tracked := nonces[data.ChainID]
			if !tracked {
				nonce, err = ledger.PendingNonce(ctx, req.Params.From.Address)
				if err != nil {
					return nil, err
				}
			}
			nonces[data.ChainID] = nonce + 1

			tx := provider.PlannedTx{
				ChainID: data.ChainID,
				From:    req.Params.From.Address,
				To:      common.HexToAddress(data.To),
				Value:   value,
				Data:    payload,
				Gas:     gas,
				Fee:     fee,
				Nonce:   nonce,
			}
			tx.Gas = chain.EstimateGasSafe(ctx, ledger, tx.CallMsg(), tx.Gas, p.GasBuffer())
			plan = append(plan, tx)
		}
	}
	return plan, nil
}

func (p *Provider) StatusJSON(ctx context.Context, req *model.ProviderRequest) (provider.StatusReport, error) {
	return p.Base.StatusJSON(ctx, req, func() string {
		if req.ExecutionData != nil && req.ExecutionData.FromTxHash != nil {
			return registry.RelayScanURL + "/" + *req.ExecutionData.FromTxHash
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
	vals.Set("hash", *req.ExecutionData.FromTxHash)
	vals.Set("sortBy", "createdAt")
	var resp statusResponse
	if _, err := p.http.GetJSON(ctx, p.baseURL+"/requests/v2?"+vals.Encode(), &resp); err != nil {
		if p.heuristic.LikelyFailed(ctx, req, nowUnix(), provider.SourceReceiptFetcher(p.wallet, req.Params.From.Chain)) {
			req.Status = model.StatusExecutionFailed
		} else {
			req.Status = model.StatusExecutionUnknown
		}
		return err
	}
	if len(resp.Requests) == 0 {
		req.Status = model.StatusExecutionUnknown
		return nil
	}

	entry := resp.Requests[0]
	switch strings.ToLower(strings.TrimSpace(entry.Status)) {
	case "success":
		req.Status = model.StatusExecutionDone
		fromChain, _ := registry.ParseChain(req.Params.From.Chain)
		toChain, _ := registry.ParseChain(req.Params.To.Chain)
		if fromChain.ID == toChain.ID {
			req.ExecutionData.ToTxHash = req.ExecutionData.FromTxHash
		} else {
			for _, out := range entry.Data.OutTxs {
				if out.ChainID == toChain.ID && strings.TrimSpace(out.Hash) != "" {
					hash := out.Hash
					req.ExecutionData.ToTxHash = &hash
					break
				}
			}
		}
	case "failure", "refund":
		req.Status = model.StatusExecutionFailed
	case "pending", "delayed", "waiting":
		req.Status = model.StatusExecutionPending
	default:
		req.Status = model.StatusExecutionUnknown
	}
	return nil
}

func parseDecimal(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid decimal string "+strconv.Quote(s))
	}
	return v, nil
}

func parseDecimalUint(s string) (uint64, error) {
	v, err := parseDecimal(s)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, clierr.New(clierr.CodeUnavailable, "gas value out of range")
	}
	return v.Uint64(), nil
}

// storedQuote recovers the typed quote from the persisted provider data.
func storedQuote(req *model.ProviderRequest) (*quoteResponse, error) {
	if req.QuoteData == nil {
		return nil, clierr.New(clierr.CodeProtocol, "request has no quote data")
	}
	stored, ok := req.QuoteData.ProviderData["response"]
	if !ok {
		return nil, clierr.New(clierr.CodeProtocol, "quote data carries no provider response")
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "re-encode stored quote", err)
	}
	var resp quoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "decode stored quote", err)
	}
	return &resp, nil
}
