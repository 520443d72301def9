package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/bridge-cli/internal/httpx"
	"github.com/ggonzalez94/bridge-cli/internal/model"
	"github.com/ggonzalez94/bridge-cli/internal/provider"
	"github.com/ggonzalez94/bridge-cli/internal/wallet"
)

type offlineWallet struct{}

func (offlineWallet) Address() common.Address { return common.Address{} }
func (offlineWallet) SafeAddress(int64) (common.Address, bool) {
	return common.Address{}, false
}
func (offlineWallet) Signer() wallet.Signer { return nil }
func (offlineWallet) Ledger(context.Context, int64) (*wallet.Ledger, error) {
	return nil, fmt.Errorf("no rpc in tests")
}

func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	p := New(httpx.New(5*time.Second, 0), offlineWallet{}, log)
	p.SetBaseURL(baseURL)
	p.SetRetryPolicy(1, 0)
	return p
}

func newEthToBaseRequest(t *testing.T, p *Provider) *model.ProviderRequest {
	t.Helper()
	req, err := p.CreateRequest(provider.RawTransferSpec{
		From: provider.RawEndpoint{
			Chain:   "ethereum",
			Address: "0x1234567890123456789012345678901234567890",
		},
		To: provider.RawToEndpoint{
			Chain:   "base",
			Address: "0x1234567890123456789012345678901234567890",
			Amount:  "2500000000000000000",
		},
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func stepJSON(gas string) string {
	return fmt.Sprintf(`{
		"steps": [{"id": "deposit", "items": [{"data": {
			"from": "0x1234567890123456789012345678901234567890",
			"to": "0xa5F565650890fBA1824Ee0F21EbBbF660a179934",
			"data": "0x01",
			"value": "2500000000000000000",
			"gas": %q,
			"maxFeePerGas": "30000000000",
			"maxPriorityFeePerGas": "1000000000",
			"chainId": 1
		}}]}],
		"details": {"timeEstimate": 12.3}
	}`, gas)
}

func TestQuoteExactOutputBody(t *testing.T) {
	var body quoteBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, stepJSON("210000"))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	req := newEthToBaseRequest(t, p)
	if err := p.Quote(context.Background(), req); err != nil {
		t.Fatalf("quote: %v", err)
	}
	if req.Status != model.StatusQuoteDone {
		t.Fatalf("status = %s", req.Status)
	}
	if body.TradeType != "EXACT_OUTPUT" || !body.EnableTrueExactOutput {
		t.Fatalf("trade type = %s, exact output = %v", body.TradeType, body.EnableTrueExactOutput)
	}
	if body.OriginChainID != 1 || body.DestinationChainID != 8453 {
		t.Fatalf("chain ids = %d/%d", body.OriginChainID, body.DestinationChainID)
	}
	if body.Amount != "2500000000000000000" {
		t.Fatalf("amount = %s", body.Amount)
	}
	if req.QuoteData.ETA == nil || *req.QuoteData.ETA != 13 {
		t.Fatalf("eta = %v, want ceil(12.3) = 13", req.QuoteData.ETA)
	}
}

func TestQuoteRepairsGasFromPlaceholderSender(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body quoteBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if strings.EqualFold(body.User, "0x1234567890123456789012345678901234567890") {
			fmt.Fprint(w, stepJSON(""))
			return
		}
		fmt.Fprint(w, stepJSON("250000"))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	req := newEthToBaseRequest(t, p)
	if err := p.Quote(context.Background(), req); err != nil {
		t.Fatalf("quote: %v", err)
	}
	if req.Status != model.StatusQuoteDone {
		t.Fatalf("status = %s", req.Status)
	}
	if calls != 2 {
		t.Fatalf("quote calls = %d, want 2 (real sender + one placeholder)", calls)
	}
	stored, err := storedQuote(req)
	if err != nil {
		t.Fatalf("stored quote: %v", err)
	}
	if got := stored.Steps[0].Items[0].Data.Gas; got != "250000" {
		t.Fatalf("repaired gas = %s, want 250000", got)
	}
}

func TestQuoteFallsBackToStaticGasTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, stepJSON(""))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	req := newEthToBaseRequest(t, p)
	if err := p.Quote(context.Background(), req); err != nil {
		t.Fatalf("quote: %v", err)
	}
	if req.Status != model.StatusQuoteDone {
		t.Fatalf("status = %s", req.Status)
	}
	stored, err := storedQuote(req)
	if err != nil {
		t.Fatalf("stored quote: %v", err)
	}
	want := fmt.Sprintf("%d", defaultGas("deposit", 1))
	if got := stored.Steps[0].Items[0].Data.Gas; got != want {
		t.Fatalf("fallback gas = %s, want %s", got, want)
	}
}

func pendingRequest(t *testing.T, p *Provider, toChain string) *model.ProviderRequest {
	t.Helper()
	req, err := p.CreateRequest(provider.RawTransferSpec{
		From: provider.RawEndpoint{
			Chain:   "ethereum",
			Address: "0x1234567890123456789012345678901234567890",
		},
		To: provider.RawToEndpoint{
			Chain:   toChain,
			Address: "0x1234567890123456789012345678901234567890",
			Amount:  "1000",
		},
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	eta := int64(30)
	hash := "0x" + strings.Repeat("cd", 32)
	now := time.Now().Unix()
	req.Status = model.StatusExecutionPending
	req.QuoteData = &model.QuoteData{ETA: &eta, Timestamp: now}
	req.ExecutionData = &model.ExecutionData{Timestamp: now, FromTxHash: &hash}
	return req
}

func TestStatusMapsRelayStates(t *testing.T) {
	cases := []struct {
		body string
		want model.Status
	}{
		{`{"requests": []}`, model.StatusExecutionUnknown},
		{`{"requests": [{"status": "success", "data": {"outTxs": [{"hash": "0xbb", "chainId": 8453}]}}]}`, model.StatusExecutionDone},
		{`{"requests": [{"status": "failure"}]}`, model.StatusExecutionFailed},
		{`{"requests": [{"status": "refund"}]}`, model.StatusExecutionFailed},
		{`{"requests": [{"status": "pending"}]}`, model.StatusExecutionPending},
		{`{"requests": [{"status": "delayed"}]}`, model.StatusExecutionPending},
		{`{"requests": [{"status": "waiting"}]}`, model.StatusExecutionPending},
		{`{"requests": [{"status": "banana"}]}`, model.StatusExecutionUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("sortBy") != "createdAt" {
					t.Errorf("sortBy = %s", r.URL.Query().Get("sortBy"))
				}
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			p := newTestProvider(t, srv.URL)
			req := pendingRequest(t, p, "base")
			if _, err := p.StatusJSON(context.Background(), req); err != nil {
				t.Fatalf("status: %v", err)
			}
			if req.Status != tc.want {
				t.Fatalf("status = %s, want %s", req.Status, tc.want)
			}
		})
	}
}

func TestStatusSuccessReadsDestinationHashFromOutTxs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"requests": [{"status": "success", "data": {"outTxs": [
			{"hash": "0x1111", "chainId": 42161},
			{"hash": "0x2222", "chainId": 8453}
		]}}]}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	req := pendingRequest(t, p, "base")
	if _, err := p.StatusJSON(context.Background(), req); err != nil {
		t.Fatalf("status: %v", err)
	}
	if req.ExecutionData.ToTxHash == nil || *req.ExecutionData.ToTxHash != "0x2222" {
		t.Fatalf("destination hash = %v, want the base outbound tx", req.ExecutionData.ToTxHash)
	}
}

func TestStatusSuccessSameChainCopiesSourceHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"requests": [{"status": "success", "data": {}}]}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	req := pendingRequest(t, p, "ethereum")
	if _, err := p.StatusJSON(context.Background(), req); err != nil {
		t.Fatalf("status: %v", err)
	}
	if req.ExecutionData.ToTxHash == nil || *req.ExecutionData.ToTxHash != *req.ExecutionData.FromTxHash {
		t.Fatal("same-chain success must copy the source hash")
	}
}

func TestDefaultGasTable(t *testing.T) {
	if got := defaultGas("approve", 1); got != approvalGasDefault {
		t.Fatalf("approve gas = %d", got)
	}
	if got := defaultGas("deposit", 8453); got != rollupGasDefault {
		t.Fatalf("rollup gas = %d", got)
	}
	if got := defaultGas("deposit", 999999); got != mainnetGasDefault {
		t.Fatalf("unknown chain gas = %d", got)
	}
}
