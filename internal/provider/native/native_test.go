package native

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/model"
	"github.com/ggonzalez94/bridge-cli/internal/provider"
	"github.com/ggonzalez94/bridge-cli/internal/registry"
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

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeHeaders serves headers from a slice indexed by block number.
type fakeHeaders struct {
	times []uint64
	reads int
}

func (f *fakeHeaders) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	f.reads++
	idx := len(f.times) - 1
	if number != nil {
		idx = int(number.Int64())
	}
	if idx < 0 || idx >= len(f.times) {
		return nil, fmt.Errorf("block %d out of range", idx)
	}
	return &types.Header{Number: big.NewInt(int64(idx)), Time: f.times[idx]}, nil
}

func TestFindBlockBelowTimestamp(t *testing.T) {
	times := make([]uint64, 101)
	for i := range times {
		times[i] = uint64(1000 + 12*i)
	}
	src := &fakeHeaders{times: times}

	cases := []struct {
		target uint64
		want   uint64
	}{
		{1000, 0},     // nothing below the genesis timestamp
		{999, 0},      // ditto
		{1001, 0},     // genesis qualifies
		{1012, 0},     // block 1 is exactly at target, so block 0
		{1013, 1},     // block 1 is the highest below target
		{1500, 41},    // 1000+12*41 = 1492 < 1500 <= 1504
		{999999, 100}, // everything is below target
	}
	for _, tc := range cases {
		got, err := FindBlockBelowTimestamp(context.Background(), src, tc.target)
		if err != nil {
			t.Fatalf("target %d: %v", tc.target, err)
		}
		if got != tc.want {
			t.Fatalf("target %d: block = %d, want %d", tc.target, got, tc.want)
		}
	}
}

func TestFindBlockBelowTimestampIsLogarithmic(t *testing.T) {
	times := make([]uint64, 100_000)
	for i := range times {
		times[i] = uint64(i * 2)
	}
	src := &fakeHeaders{times: times}
	if _, err := FindBlockBelowTimestamp(context.Background(), src, 100_001); err != nil {
		t.Fatal(err)
	}
	if src.reads > 40 {
		t.Fatalf("binary search made %d header reads", src.reads)
	}
}

func TestScanChunksOutcomes(t *testing.T) {
	times := make([]uint64, 12_001)
	for i := range times {
		times[i] = uint64(i)
	}
	src := &fakeHeaders{times: times}

	t.Run("found", func(t *testing.T) {
		hash, outcome, err := scanChunks(context.Background(), src, 0, 999_999, func(_ context.Context, from, to uint64) (string, bool, error) {
			if from <= 7000 && 7000 <= to {
				return "0xmatch", true, nil
			}
			return "", false, nil
		})
		if err != nil || outcome != ScanFound || hash != "0xmatch" {
			t.Fatalf("outcome = %v hash = %q err = %v", outcome, hash, err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		_, outcome, err := scanChunks(context.Background(), src, 0, 4000, func(context.Context, uint64, uint64) (string, bool, error) {
			return "", false, nil
		})
		if err != nil || outcome != ScanExpired {
			t.Fatalf("outcome = %v err = %v", outcome, err)
		}
	})

	t.Run("pending at head", func(t *testing.T) {
		_, outcome, err := scanChunks(context.Background(), src, 0, 999_999, func(context.Context, uint64, uint64) (string, bool, error) {
			return "", false, nil
		})
		if err != nil || outcome != ScanPending {
			t.Fatalf("outcome = %v err = %v", outcome, err)
		}
	})

	t.Run("start at head", func(t *testing.T) {
		_, outcome, err := scanChunks(context.Background(), src, 12_000, 999_999, func(context.Context, uint64, uint64) (string, bool, error) {
			t.Fatal("no chunk should be scanned when start is the head")
			return "", false, nil
		})
		if err != nil || outcome != ScanPending {
			t.Fatalf("outcome = %v err = %v", outcome, err)
		}
	})
}

func TestReplayTag(t *testing.T) {
	a := ReplayTag("r-0011223344556677")
	b := ReplayTag("r-0011223344556678")
	if len(a) != 32 {
		t.Fatalf("tag length = %d", len(a))
	}
	if bytes.Equal(a, b) {
		t.Fatal("distinct request ids must produce distinct tags")
	}
	if !bytes.Equal(a, ReplayTag("r-0011223344556677")) {
		t.Fatal("tag must be deterministic")
	}
}

func olasSpec(fromChain, toChain, fromToken, toToken string) model.TransferSpec {
	return model.TransferSpec{
		From: model.TransferEndpoint{
			Chain:   fromChain,
			Address: common.HexToAddress("0x1234567890123456789012345678901234567890"),
			Token:   common.HexToAddress(fromToken),
		},
		To: model.TransferEndpoint{
			Chain:   toChain,
			Address: common.HexToAddress("0x1234567890123456789012345678901234567890"),
			Token:   common.HexToAddress(toToken),
		},
		ToAmount: big.NewInt(1_000_000),
	}
}

const (
	olasEthereum = "0x0001A500A6B18995B03f44bb040A5fFc28E45CB0"
	olasBase     = "0x54330d28ca3357F294334BDC454a032e7f353416"
	olasGnosis   = "0xcE11e14225575945b8E6Dc0D4F2dD4C570f79d9f"
	zeroToken    = "0x0000000000000000000000000000000000000000"
)

func TestCanHandleRequest(t *testing.T) {
	optimism := NewOptimismProvider(offlineWallet{}, quietLogger())
	omni := NewOmnibridgeProvider(offlineWallet{}, nil, quietLogger())

	cases := []struct {
		name string
		p    *Provider
		spec model.TransferSpec
		want bool
	}{
		{"optimism native eth->base", optimism, olasSpec("ethereum", "base", zeroToken, zeroToken), true},
		{"optimism matched olas pair", optimism, olasSpec("ethereum", "base", olasEthereum, olasBase), true},
		{"optimism mixed native/erc20", optimism, olasSpec("ethereum", "base", zeroToken, olasBase), false},
		{"optimism wrong endpoint kind", optimism, olasSpec("ethereum", "gnosis", olasEthereum, olasGnosis), false},
		{"optimism unknown route", optimism, olasSpec("base", "ethereum", zeroToken, zeroToken), false},
		{"omnibridge matched olas pair", omni, olasSpec("ethereum", "gnosis", olasEthereum, olasGnosis), true},
		{"omnibridge native rejected", omni, olasSpec("ethereum", "gnosis", zeroToken, zeroToken), false},
		{"omnibridge wrong endpoint kind", omni, olasSpec("ethereum", "base", olasEthereum, olasBase), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p.CanHandleRequest(tc.spec); got != tc.want {
				t.Fatalf("CanHandleRequest = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestQuoteIsStaticTableLookup(t *testing.T) {
	p := NewOptimismProvider(offlineWallet{}, quietLogger())
	req, err := p.CreateRequest(provider.RawTransferSpec{
		From: provider.RawEndpoint{Chain: "ethereum", Address: "0x1234567890123456789012345678901234567890"},
		To:   provider.RawToEndpoint{Chain: "base", Address: "0x1234567890123456789012345678901234567890", Amount: "5"},
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if err := p.Quote(context.Background(), req); err != nil {
		t.Fatalf("quote: %v", err)
	}
	if req.Status != model.StatusQuoteDone {
		t.Fatalf("status = %s", req.Status)
	}
	ep, _ := registry.FindBridgeEndpoint(1, 8453)
	if req.QuoteData.ETA == nil || *req.QuoteData.ETA != ep.ETASeconds {
		t.Fatalf("eta = %v, want %d from the endpoint table", req.QuoteData.ETA, ep.ETASeconds)
	}
}

func TestOptimismBuildBridgeTx(t *testing.T) {
	a := NewOptimismAdaptor(offlineWallet{}, quietLogger())
	ep, _ := registry.FindBridgeEndpoint(1, 8453)

	t.Run("native path", func(t *testing.T) {
		m := BridgeMatch{
			RequestID: "r-0102030405060708",
			Sender:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Recipient: common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Amount:    big.NewInt(7_000_000),
		}
		target, value, data, err := a.BuildBridgeTx(context.Background(), ep, m)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if target != common.HexToAddress(ep.L1Bridge) {
			t.Fatalf("target = %s", target)
		}
		if value.Cmp(m.Amount) != 0 {
			t.Fatalf("value = %s, native path must carry the amount", value)
		}
		method := l1BridgeABI.Methods["bridgeETHTo"]
		if !bytes.Equal(data[:4], method.ID) {
			t.Fatal("selector is not bridgeETHTo")
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			t.Fatalf("unpack: %v", err)
		}
		if args[0].(common.Address) != m.Recipient {
			t.Fatalf("recipient = %v", args[0])
		}
		if !bytes.Equal(args[2].([]byte), ReplayTag(m.RequestID)) {
			t.Fatal("extra data must carry the replay tag")
		}
	})

	t.Run("erc20 path", func(t *testing.T) {
		m := BridgeMatch{
			RequestID:   "r-0102030405060708",
			Sender:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Recipient:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
			SourceToken: common.HexToAddress(olasEthereum),
			DestToken:   common.HexToAddress(olasBase),
			Amount:      big.NewInt(7_000_000),
		}
		target, value, data, err := a.BuildBridgeTx(context.Background(), ep, m)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if target != common.HexToAddress(ep.L1Bridge) {
			t.Fatalf("target = %s", target)
		}
		if value.Sign() != 0 {
			t.Fatalf("value = %s, erc20 path must not carry value", value)
		}
		method := l1BridgeABI.Methods["bridgeERC20To"]
		if !bytes.Equal(data[:4], method.ID) {
			t.Fatal("selector is not bridgeERC20To")
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			t.Fatalf("unpack: %v", err)
		}
		if args[0].(common.Address) != m.SourceToken || args[1].(common.Address) != m.DestToken {
			t.Fatal("token pair mismatch")
		}
		if args[3].(*big.Int).Cmp(m.Amount) != 0 {
			t.Fatal("amount mismatch")
		}
	})
}

func TestOmnibridgeBuildBridgeTx(t *testing.T) {
	a := NewOmnibridgeAdaptor(offlineWallet{}, nil, quietLogger())
	ep, _ := registry.FindBridgeEndpoint(1, 100)

	t.Run("native coin is fatal", func(t *testing.T) {
		_, _, _, err := a.BuildBridgeTx(context.Background(), ep, BridgeMatch{Amount: big.NewInt(1)})
		if !clierr.HasCode(err, clierr.CodeProtocol) {
			t.Fatalf("err = %v, want protocol error", err)
		}
	})

	t.Run("relayTokens call", func(t *testing.T) {
		m := BridgeMatch{
			RequestID:   "r-0a0b0c0d0e0f1011",
			Recipient:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
			SourceToken: common.HexToAddress(olasEthereum),
			DestToken:   common.HexToAddress(olasGnosis),
			Amount:      big.NewInt(9_000),
		}
		target, value, data, err := a.BuildBridgeTx(context.Background(), ep, m)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if target != common.HexToAddress(ep.ForeignMediator) {
			t.Fatalf("target = %s", target)
		}
		if value.Sign() != 0 {
			t.Fatalf("value = %s", value)
		}
		method := omnibridgeABI.Methods["relayTokens"]
		if !bytes.Equal(data[:4], method.ID) {
			t.Fatal("selector is not relayTokens")
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			t.Fatalf("unpack: %v", err)
		}
		if args[0].(common.Address) != m.SourceToken || args[1].(common.Address) != m.Recipient {
			t.Fatal("relayTokens arguments mismatch")
		}
	})
}
