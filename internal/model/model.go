package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Status tracks one transfer request through the provider pipeline. Values
// only ever gain information; no transition skips a stage.
type Status string

const (
	StatusCreated          Status = "CREATED"
	StatusQuoteDone        Status = "QUOTE_DONE"
	StatusQuoteFailed      Status = "QUOTE_FAILED"
	StatusExecutionPending Status = "EXECUTION_PENDING"
	StatusExecutionDone    Status = "EXECUTION_DONE"
	StatusExecutionFailed  Status = "EXECUTION_FAILED"
	StatusExecutionUnknown Status = "EXECUTION_UNKNOWN"
)

// CanQuote reports whether a quote call is legal from this status.
func (s Status) CanQuote() bool {
	switch s {
	case StatusCreated, StatusQuoteDone, StatusQuoteFailed:
		return true
	}
	return false
}

// CanExecute reports whether an execute call is legal from this status.
// QUOTE_FAILED is handled separately: execute short-circuits to
// EXECUTION_FAILED without a network call.
func (s Status) CanExecute() bool {
	return s == StatusQuoteDone
}

// Terminal reports whether status polling can stop refreshing the request.
func (s Status) Terminal() bool {
	switch s {
	case StatusExecutionDone, StatusExecutionFailed:
		return true
	}
	return false
}

// TransferEndpoint is one side of a transfer. The zero token address denotes
// the chain's native coin.
type TransferEndpoint struct {
	Chain   string         `json:"chain"`
	Address common.Address `json:"address"`
	Token   common.Address `json:"token"`
}

// TransferSpec is the frozen, validated unit of caller input. Addresses are
// checksummed and the amount coerced exactly once, in CreateRequest.
type TransferSpec struct {
	From     TransferEndpoint `json:"from"`
	To       TransferEndpoint `json:"to"`
	ToAmount *big.Int         `json:"to_amount"`
}

// Equal performs the deep comparison used by the bundle reuse policy.
func (s TransferSpec) Equal(other TransferSpec) bool {
	if s.From != other.From || s.To != other.To {
		return false
	}
	if s.ToAmount == nil || other.ToAmount == nil {
		return s.ToAmount == other.ToAmount
	}
	return s.ToAmount.Cmp(other.ToAmount) == 0
}

func SpecsEqual(a, b []TransferSpec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// QuoteData is attached once per quote attempt cycle.
type QuoteData struct {
	ETA          *int64         `json:"eta"`
	ElapsedTime  float64        `json:"elapsed_time"`
	Message      *string        `json:"message"`
	Timestamp    int64          `json:"timestamp"`
	ProviderData map[string]any `json:"provider_data,omitempty"`
}

// ExecutionData is created once by execute; status refreshes may update the
// message, destination hash, elapsed time and provider sub-status.
type ExecutionData struct {
	ElapsedTime  float64        `json:"elapsed_time"`
	Message      *string        `json:"message"`
	Timestamp    int64          `json:"timestamp"`
	FromTxHash   *string        `json:"from_tx_hash"`
	ToTxHash     *string        `json:"to_tx_hash"`
	ProviderData map[string]any `json:"provider_data,omitempty"`
}

// ProviderRequest is one transfer under management. It is owned exclusively
// by the provider identified by ProviderID; the manager only holds
// references inside bundles.
type ProviderRequest struct {
	ID            string         `json:"id"`
	ProviderID    string         `json:"provider_id"`
	Params        TransferSpec   `json:"params"`
	Status        Status         `json:"status"`
	QuoteData     *QuoteData     `json:"quote_data,omitempty"`
	ExecutionData *ExecutionData `json:"execution_data,omitempty"`
}

// RequestBundle is a batch of transfer requests created together and reused
// verbatim until expiry or input change.
type RequestBundle struct {
	ID             string             `json:"id"`
	Timestamp      int64              `json:"timestamp"`
	RequestsParams []TransferSpec     `json:"requests_params"`
	Requests       []*ProviderRequest `json:"requests"`
}

// Expired reports whether now is past timestamp + validity seconds.
func (b *RequestBundle) Expired(now, validitySeconds int64) bool {
	return now > b.Timestamp+validitySeconds
}

func (b *RequestBundle) SameParams(specs []TransferSpec) bool {
	return SpecsEqual(b.RequestsParams, specs)
}

func NewRequestID() string {
	return "r-" + randomHex()
}

func NewBundleID() string {
	return "b-" + randomHex()
}

func randomHex() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%x", [16]byte{})
	}
	return hex.EncodeToString(buf)
}
