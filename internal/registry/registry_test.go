package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func TestParseChain(t *testing.T) {
	chain, err := ParseChain(" Gnosis ")
	if err != nil {
		t.Fatalf("ParseChain failed: %v", err)
	}
	if chain.ID != 100 {
		t.Fatalf("unexpected chain id: %d", chain.ID)
	}
	if _, err := ParseChain("solana"); err == nil {
		t.Fatal("expected error for unknown chain")
	}
}

func TestFindBridgeEndpointIsDirectional(t *testing.T) {
	if _, ok := FindBridgeEndpoint(1, 8453); !ok {
		t.Fatal("expected ethereum->base endpoint")
	}
	if _, ok := FindBridgeEndpoint(8453, 1); ok {
		t.Fatal("base->ethereum must not be in the native endpoint table")
	}
	ep, ok := FindBridgeEndpoint(1, 100)
	if !ok {
		t.Fatal("expected ethereum->gnosis endpoint")
	}
	if ep.Adaptor != AdaptorOmnibridge {
		t.Fatalf("unexpected adaptor: %s", ep.Adaptor)
	}
	if ep.ETASeconds <= 0 {
		t.Fatal("endpoint needs a positive eta")
	}
}

func TestIsMatchedTokenPairCaseInsensitive(t *testing.T) {
	olasEth := common.HexToAddress("0x0001a500a6b18995b03f44bb040a5ffc28e45cb0")
	olasBase := common.HexToAddress("0x54330D28CA3357F294334BDC454A032E7F353416")
	if !IsMatchedTokenPair(1, olasEth, 8453, olasBase) {
		t.Fatal("expected OLAS pair to match across chains")
	}
	usdcBase := common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	if IsMatchedTokenPair(1, olasEth, 8453, usdcBase) {
		t.Fatal("OLAS->USDC must not match")
	}
}

func TestABIsParse(t *testing.T) {
	for name, raw := range map[string]string{
		"erc20":      ERC20MinimalABI,
		"l1bridge":   L1StandardBridgeABI,
		"l2bridge":   L2StandardBridgeABI,
		"mintable":   OptimismMintableERC20ABI,
		"omnibridge": OmnibridgeABI,
	} {
		if _, err := abi.JSON(strings.NewReader(raw)); err != nil {
			t.Fatalf("abi %s does not parse: %v", name, err)
		}
	}
}

func TestPreferredProviderLookup(t *testing.T) {
	key := NewRouteKey(1,
		common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		8453,
		common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"))
	id, ok := PreferredProvider(key)
	if !ok || id != ProviderLiFi {
		t.Fatalf("expected lifi preferred route, got %q ok=%v", id, ok)
	}
}
