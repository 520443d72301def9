package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the zero-address sentinel denoting a chain's native coin.
var NativeToken = common.Address{}

func IsNativeToken(addr common.Address) bool {
	return addr == NativeToken
}

type Token struct {
	Symbol   string
	Address  string
	Decimals int
}

// Known token deployments per chain ID. The matched-pair lookup used by the
// native bridge providers requires the same symbol to appear on both chains.
var tokensByChainID = map[int64][]Token{
	1: {
		{Symbol: "OLAS", Address: "0x0001A500A6B18995B03f44bb040A5fFc28E45CB0", Decimals: 18},
		{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
	},
	10: {
		{Symbol: "OLAS", Address: "0xFC2E6e6BCbd49ccf3A5f029c79984372DcBFE527", Decimals: 18},
		{Symbol: "USDC", Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", Decimals: 6},
	},
	100: {
		{Symbol: "OLAS", Address: "0xcE11e14225575945b8E6Dc0D4F2dD4C570f79d9f", Decimals: 18},
		{Symbol: "USDC", Address: "0xDDAfbb505ad214D7b80b1f830fcCc89B60fb7A83", Decimals: 6},
		{Symbol: "WXDAI", Address: "0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d", Decimals: 18},
	},
	137: {
		{Symbol: "OLAS", Address: "0xFEF5d947472e72Efbb2E388c730B7428406F2F95", Decimals: 18},
		{Symbol: "USDC", Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6},
	},
	8453: {
		{Symbol: "OLAS", Address: "0x54330d28ca3357F294334BDC454a032e7f353416", Decimals: 18},
		{Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
	},
	34443: {
		{Symbol: "OLAS", Address: "0xcfD1D50ce23C46D3Cf6407487B2F8934e96DC8f9", Decimals: 18},
		{Symbol: "USDC", Address: "0xd988097fb8612cc24eeC14542bC03424c656005f", Decimals: 6},
	},
	42161: {
		{Symbol: "OLAS", Address: "0x064F8B858C2A603e1b106a2039f5446D32dc81c1", Decimals: 18},
		{Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
	},
}

func KnownTokens(chainID int64) []Token {
	return tokensByChainID[chainID]
}

// TokenSymbol resolves the symbol of a known token address on a chain.
func TokenSymbol(chainID int64, addr common.Address) (string, bool) {
	for _, token := range tokensByChainID[chainID] {
		if strings.EqualFold(token.Address, addr.Hex()) {
			return token.Symbol, true
		}
	}
	return "", false
}

// IsMatchedTokenPair reports whether fromToken on fromChain and toToken on
// toChain are known deployments of the same asset. Comparison is
// case-insensitive on addresses.
func IsMatchedTokenPair(fromChainID int64, fromToken common.Address, toChainID int64, toToken common.Address) bool {
	fromSymbol, ok := TokenSymbol(fromChainID, fromToken)
	if !ok {
		return false
	}
	toSymbol, ok := TokenSymbol(toChainID, toToken)
	if !ok {
		return false
	}
	return strings.EqualFold(fromSymbol, toSymbol)
}
