package provider

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/bridge-cli/internal/chain"
	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/model"
	"github.com/ggonzalez94/bridge-cli/internal/registry"
	"github.com/ggonzalez94/bridge-cli/internal/wallet"
)

// Provider converts a transfer description into a managed request, quotes
// it, computes funding requirements, executes it and reports status. External
// failures (network, contract) are encoded in the request's status fields;
// only protocol misuse returns an error.
type Provider interface {
	ID() string
	CanHandleRequest(spec model.TransferSpec) bool
	CreateRequest(raw RawTransferSpec) (*model.ProviderRequest, error)
	Quote(ctx context.Context, req *model.ProviderRequest) error
	Requirements(ctx context.Context, req *model.ProviderRequest) (Requirement, error)
	Execute(ctx context.Context, req *model.ProviderRequest) error
	StatusJSON(ctx context.Context, req *model.ProviderRequest) (StatusReport, error)
}

// RawTransferSpec is the map-shaped caller input before sanitization.
type RawTransferSpec struct {
	From RawEndpoint   `json:"from"`
	To   RawToEndpoint `json:"to"`
}

type RawEndpoint struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`
	Token   string `json:"token"`
}

type RawToEndpoint struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

// Requirement is the funding a single request needs on its source chain.
type Requirement struct {
	Native *big.Int
	Token  *big.Int
}

func zeroRequirement() Requirement {
	return Requirement{Native: big.NewInt(0), Token: big.NewInt(0)}
}

// StatusReport is the JSON-shaped status block returned per request.
type StatusReport struct {
	ETA          *int64  `json:"eta"`
	ExplorerLink string  `json:"explorer_link,omitempty"`
	Message      *string `json:"message"`
	Status       string  `json:"status"`
	TxHash       *string `json:"tx_hash,omitempty"`
}

// PlannedTx is one transaction of a provider's ordered execution plan.
type PlannedTx struct {
	ChainID int64
	From    common.Address
	To      common.Address
	Value   *big.Int
	Data    []byte
	Gas     uint64
	Fee     chain.FeeData
	Nonce   uint64
}

// Transaction builds the go-ethereum transaction: dynamic-fee when EIP-1559
// fields were fetched, legacy otherwise.
func (p PlannedTx) Transaction() *types.Transaction {
	to := p.To
	value := p.Value
	if value == nil {
		value = big.NewInt(0)
	}
	if p.Fee.Dynamic() {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   big.NewInt(p.ChainID),
			Nonce:     p.Nonce,
			GasTipCap: p.Fee.MaxPriorityFeePerGas,
			GasFeeCap: p.Fee.MaxFeePerGas,
			Gas:       p.Gas,
			To:        &to,
			Value:     value,
			Data:      p.Data,
		})
	}
	gasPrice := p.Fee.GasPrice
	if gasPrice == nil {
		gasPrice = big.NewInt(0)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    p.Nonce,
		GasPrice: gasPrice,
		Gas:      p.Gas,
		To:       &to,
		Value:    value,
		Data:     p.Data,
	})
}

// CallMsg shapes the planned transaction for gas estimation.
func (p PlannedTx) CallMsg() ethereum.CallMsg {
	to := p.To
	return ethereum.CallMsg{
		From:  p.From,
		To:    &to,
		Value: p.Value,
		Data:  p.Data,
	}
}

// SourceReceiptFetcher builds a ReceiptFetcher over the wallet's ledger for
// the given source chain. Ledger dial errors surface as fetch errors.
func SourceReceiptFetcher(w wallet.Wallet, chainSlug string) ReceiptFetcher {
	return func(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
		c, err := registry.ParseChain(chainSlug)
		if err != nil {
			return nil, err
		}
		ledger, err := w.Ledger(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		return ledger.Client().TransactionReceipt(ctx, hash)
	}
}

// Fixed messages persisted on the short-circuit paths.
const (
	msgZeroAmount  = "zero-amount transfer, quote skipped"
	msgQuoteFailed = "quote failed, transfer not executed"
	msgPlanEmpty   = "execution skipped: empty transaction plan"
)

// Base carries the state-machine logic shared by all providers.
type Base struct {
	id         string
	log        *logrus.Entry
	attempts   int
	retryDelay time.Duration
	gasBuffer  float64
	sleep      func(time.Duration)
	now        func() int64
}

func NewBase(id string, log *logrus.Logger) Base {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return Base{
		id:         id,
		log:        log.WithField("provider", id),
		attempts:   3,
		retryDelay: 2 * time.Second,
		gasBuffer:  chain.DefaultGasBuffer,
		sleep:      time.Sleep,
		now:        func() int64 { return time.Now().Unix() },
	}
}

func (b *Base) ID() string { return b.id }

// SetRetryPolicy overrides the quote retry budget; used by configuration
// and by tests to avoid real sleeps.
func (b *Base) SetRetryPolicy(attempts int, delay time.Duration) {
	if attempts > 0 {
		b.attempts = attempts
	}
	if delay >= 0 {
		b.retryDelay = delay
	}
}

func (b *Base) SetGasBuffer(buffer float64) {
	if buffer > 0 {
		b.gasBuffer = buffer
	}
}

func (b *Base) GasBuffer() float64 { return b.gasBuffer }

func (b *Base) Log() *logrus.Entry { return b.log }

// ensureOwned enforces that only the creating provider mutates a request.
func (b *Base) ensureOwned(req *model.ProviderRequest) error {
	if req == nil {
		return clierr.New(clierr.CodeProtocol, "nil provider request")
	}
	if req.ProviderID != b.id {
		return clierr.New(clierr.CodeProtocol, fmt.Sprintf("request %s belongs to provider %s, not %s", req.ID, req.ProviderID, b.id))
	}
	return nil
}

// CreateRequest validates and freezes the caller's map-shaped input:
// checksumming and amount coercion happen exactly once, here.
func (b *Base) CreateRequest(raw RawTransferSpec) (*model.ProviderRequest, error) {
	spec, err := SanitizeSpec(raw)
	if err != nil {
		return nil, err
	}
	return &model.ProviderRequest{
		ID:         model.NewRequestID(),
		ProviderID: b.id,
		Params:     spec,
		Status:     model.StatusCreated,
	}, nil
}

// SanitizeSpec validates the raw input shape and produces a frozen
// TransferSpec. Missing keys and malformed addresses are usage errors.
func SanitizeSpec(raw RawTransferSpec) (model.TransferSpec, error) {
	from, err := sanitizeEndpoint(raw.From.Chain, raw.From.Address, raw.From.Token, "from")
	if err != nil {
		return model.TransferSpec{}, err
	}
	to, err := sanitizeEndpoint(raw.To.Chain, raw.To.Address, raw.To.Token, "to")
	if err != nil {
		return model.TransferSpec{}, err
	}
	amountStr := strings.TrimSpace(raw.To.Amount)
	if amountStr == "" {
		return model.TransferSpec{}, clierr.New(clierr.CodeUsage, "to.amount is required")
	}
	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok {
		return model.TransferSpec{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("to.amount %q is not an integer", raw.To.Amount))
	}
	if amount.Sign() < 0 {
		return model.TransferSpec{}, clierr.New(clierr.CodeUsage, "to.amount must be non-negative")
	}
	return model.TransferSpec{From: from, To: to, ToAmount: amount}, nil
}

func sanitizeEndpoint(chainSlug, address, token, side string) (model.TransferEndpoint, error) {
	parsed, err := registry.ParseChain(chainSlug)
	if err != nil {
		return model.TransferEndpoint{}, clierr.Wrap(clierr.CodeUsage, "parse "+side+".chain", err)
	}
	addr := strings.TrimSpace(address)
	if addr == "" {
		return model.TransferEndpoint{}, clierr.New(clierr.CodeUsage, side+".address is required")
	}
	if !common.IsHexAddress(addr) {
		return model.TransferEndpoint{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s.address %q is not a valid address", side, address))
	}
	tok := strings.TrimSpace(token)
	tokenAddr := common.Address{}
	if tok != "" {
		if !common.IsHexAddress(tok) {
			return model.TransferEndpoint{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s.token %q is not a valid address", side, token))
		}
		tokenAddr = common.HexToAddress(tok)
	}
	return model.TransferEndpoint{
		Chain:   parsed.Slug,
		Address: common.HexToAddress(addr),
		Token:   tokenAddr,
	}, nil
}

// QuoteFunc performs one provider-specific quote attempt.
type QuoteFunc func(ctx context.Context) (*model.QuoteData, error)

// Quote runs the shared quote state machine around fn: legality checks,
// the zero-amount short-circuit, and the fixed-delay retry budget. External
// failures end in QUOTE_FAILED, never an error.
func (b *Base) Quote(ctx context.Context, req *model.ProviderRequest, fn QuoteFunc) error {
	if err := b.ensureOwned(req); err != nil {
		return err
	}
	if !req.Status.CanQuote() {
		return clierr.New(clierr.CodeProtocol, fmt.Sprintf("cannot quote request %s from status %s", req.ID, req.Status))
	}
	if req.ExecutionData != nil {
		return clierr.New(clierr.CodeProtocol, fmt.Sprintf("cannot re-quote request %s after execution", req.ID))
	}

	if req.Params.ToAmount != nil && req.Params.ToAmount.Sign() == 0 {
		eta := int64(0)
		msg := msgZeroAmount
		req.QuoteData = &model.QuoteData{
			ETA:       &eta,
			Message:   &msg,
			Timestamp: b.now(),
		}
		req.Status = model.StatusQuoteDone
		return nil
	}

	started := time.Now()
	var lastErr error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		if attempt > 1 {
			b.sleep(b.retryDelay)
		}
		quote, err := fn(ctx)
		if err == nil {
			quote.ElapsedTime = time.Since(started).Seconds()
			quote.Timestamp = b.now()
			if quote.ProviderData == nil {
				quote.ProviderData = map[string]any{}
			}
			quote.ProviderData["attempts"] = attempt
			req.QuoteData = quote
			req.Status = model.StatusQuoteDone
			return nil
		}
		lastErr = err
		b.log.WithFields(logrus.Fields{"request_id": req.ID, "attempt": attempt}).
			Warnf("quote attempt failed: %v", err)
	}

	msg := lastErr.Error()
	req.QuoteData = &model.QuoteData{
		ElapsedTime: time.Since(started).Seconds(),
		Message:     &msg,
		Timestamp:   b.now(),
		ProviderData: map[string]any{
			"attempts": b.attempts,
		},
	}
	req.Status = model.StatusQuoteFailed
	return nil
}

// PlanFunc builds the provider's ordered transaction plan for a request.
type PlanFunc func(ctx context.Context) ([]PlannedTx, error)

// Requirements builds the plan and sums its source-chain cost: native coin
// (value + gas * gas price per transaction) and source ERC-20 amounts
// decoded from approve/transfer call data. An empty plan costs nothing.
func (b *Base) Requirements(ctx context.Context, req *model.ProviderRequest, plan PlanFunc) (Requirement, error) {
	if err := b.ensureOwned(req); err != nil {
		return Requirement{}, err
	}
	txs, err := plan(ctx)
	if err != nil {
		return Requirement{}, err
	}
	return SumPlan(txs)
}

// ExecuteFunc builds the plan for execution; it may differ from the
// requirements plan only by carrying live nonces.
type ExecuteFunc func(ctx context.Context) ([]PlannedTx, error)

// Execute runs the shared execution state machine: the QUOTE_FAILED and
// empty-plan short-circuits, in-order submission via the wallet signer, and
// conversion of any submission failure into EXECUTION_FAILED. Once a plan
// exists, execution never raises.
func (b *Base) Execute(ctx context.Context, req *model.ProviderRequest, w wallet.Wallet, buildPlan ExecuteFunc) error {
	if err := b.ensureOwned(req); err != nil {
		return err
	}
	if req.Status == model.StatusQuoteFailed {
		msg := msgQuoteFailed
		req.ExecutionData = &model.ExecutionData{Message: &msg, Timestamp: b.now()}
		req.Status = model.StatusExecutionFailed
		return nil
	}
	if !req.Status.CanExecute() {
		return clierr.New(clierr.CodeProtocol, fmt.Sprintf("cannot execute request %s from status %s", req.ID, req.Status))
	}
	if req.QuoteData == nil {
		return clierr.New(clierr.CodeProtocol, fmt.Sprintf("request %s has no quote data", req.ID))
	}
	if req.ExecutionData != nil {
		return clierr.New(clierr.CodeProtocol, fmt.Sprintf("request %s was already executed", req.ID))
	}

	started := time.Now()
	plan, err := buildPlan(ctx)
	if err != nil {
		msg := err.Error()
		req.ExecutionData = &model.ExecutionData{
			ElapsedTime: time.Since(started).Seconds(),
			Message:     &msg,
			Timestamp:   b.now(),
		}
		req.Status = model.StatusExecutionFailed
		return nil
	}
	if len(plan) == 0 {
		msg := msgPlanEmpty
		req.ExecutionData = &model.ExecutionData{
			ElapsedTime: time.Since(started).Seconds(),
			Message:     &msg,
			Timestamp:   b.now(),
		}
		req.Status = model.StatusExecutionDone
		return nil
	}

	var lastHash string
	settled := 0
	var failure error
	for i, planned := range plan {
		ledger, err := w.Ledger(ctx, planned.ChainID)
		if err != nil {
			failure = err
			break
		}
		receipt, err := ledger.SubmitPrebuilt(ctx, w.Signer(), planned.Transaction())
		if err != nil {
			failure = err
			break
		}
		lastHash = receipt.TxHash.Hex()
		if receipt.Status != types.ReceiptStatusSuccessful {
			failure = fmt.Errorf("transaction %d/%d reverted (%s)", i+1, len(plan), lastHash)
			break
		}
		settled++
	}

	exec := &model.ExecutionData{
		ElapsedTime: time.Since(started).Seconds(),
		Timestamp:   b.now(),
	}
	if lastHash != "" {
		exec.FromTxHash = &lastHash
	}
	if failure != nil || settled != len(plan) {
		msg := "transaction settlement failed"
		if failure != nil {
			msg = failure.Error()
		}
		exec.Message = &msg
		req.ExecutionData = exec
		req.Status = model.StatusExecutionFailed
		b.log.WithField("request_id", req.ID).Warnf("execution failed: %s", msg)
		return nil
	}
	req.ExecutionData = exec
	req.Status = model.StatusExecutionPending
	return nil
}

// RefreshFunc reconciles a pending transfer against chain/API state,
// mutating the request's status and execution data in place.
type RefreshFunc func(ctx context.Context) error

// StatusJSON returns the request's status block, triggering the provider's
// reconciliation only when both quote and execution data exist.
func (b *Base) StatusJSON(ctx context.Context, req *model.ProviderRequest, explorerLink func() string, refresh RefreshFunc) (StatusReport, error) {
	if err := b.ensureOwned(req); err != nil {
		return StatusReport{}, err
	}
	if req.QuoteData != nil && req.ExecutionData != nil {
		if refresh != nil && !req.Status.Terminal() {
			if err := refresh(ctx); err != nil {
				if clierr.HasCode(err, clierr.CodeProtocol) {
					return StatusReport{}, err
				}
				// Other reconciliation errors are non-fatal; the request
				// stays in a recoverable state and is retried on the next
				// poll.
				b.log.WithField("request_id", req.ID).Warnf("status refresh failed: %v", err)
			}
		}
		report := StatusReport{
			ETA:     req.QuoteData.ETA,
			Message: req.ExecutionData.Message,
			Status:  string(req.Status),
			TxHash:  req.ExecutionData.FromTxHash,
		}
		if explorerLink != nil {
			report.ExplorerLink = explorerLink()
		}
		return report, nil
	}
	if req.QuoteData != nil {
		return StatusReport{
			ETA:     req.QuoteData.ETA,
			Message: req.QuoteData.Message,
			Status:  string(req.Status),
		}, nil
	}
	return StatusReport{Status: string(req.Status)}, nil
}
