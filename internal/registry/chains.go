package registry

import (
	"fmt"
	"strings"
)

// Chain is a statically enumerated chain descriptor. The set is fixed at
// compile time; there is no runtime enum merging.
type Chain struct {
	Name        string
	Slug        string
	ID          int64
	LedgerKind  string
	ExplorerURL string
}

const (
	LedgerKindEVM = "evm"
)

var chainBySlug = map[string]Chain{
	"ethereum": {Name: "Ethereum", Slug: "ethereum", ID: 1, LedgerKind: LedgerKindEVM, ExplorerURL: "https://etherscan.io"},
	"optimism": {Name: "Optimism", Slug: "optimism", ID: 10, LedgerKind: LedgerKindEVM, ExplorerURL: "https://optimistic.etherscan.io"},
	"gnosis":   {Name: "Gnosis", Slug: "gnosis", ID: 100, LedgerKind: LedgerKindEVM, ExplorerURL: "https://gnosisscan.io"},
	"polygon":  {Name: "Polygon", Slug: "polygon", ID: 137, LedgerKind: LedgerKindEVM, ExplorerURL: "https://polygonscan.com"},
	"base":     {Name: "Base", Slug: "base", ID: 8453, LedgerKind: LedgerKindEVM, ExplorerURL: "https://basescan.org"},
	"mode":     {Name: "Mode", Slug: "mode", ID: 34443, LedgerKind: LedgerKindEVM, ExplorerURL: "https://explorer.mode.network"},
	"arbitrum": {Name: "Arbitrum", Slug: "arbitrum", ID: 42161, LedgerKind: LedgerKindEVM, ExplorerURL: "https://arbiscan.io"},
}

var chainByID = func() map[int64]Chain {
	out := make(map[int64]Chain, len(chainBySlug))
	for _, chain := range chainBySlug {
		out[chain.ID] = chain
	}
	return out
}()

func ParseChain(input string) (Chain, error) {
	slug := strings.ToLower(strings.TrimSpace(input))
	if chain, ok := chainBySlug[slug]; ok {
		return chain, nil
	}
	return Chain{}, fmt.Errorf("unknown chain %q", input)
}

func ChainByID(id int64) (Chain, bool) {
	chain, ok := chainByID[id]
	return chain, ok
}

func Chains() []Chain {
	out := make([]Chain, 0, len(chainBySlug))
	for _, chain := range chainBySlug {
		out = append(out, chain)
	}
	return out
}

// Canonical default EVM RPC endpoints by chain ID, used whenever the
// configuration does not supply an override.
var defaultRPCByChainID = map[int64]string{
	1:     "https://eth.llamarpc.com",
	10:    "https://mainnet.optimism.io",
	100:   "https://rpc.gnosischain.com",
	137:   "https://polygon-rpc.com",
	8453:  "https://mainnet.base.org",
	34443: "https://mainnet.mode.network",
	42161: "https://arb1.arbitrum.io/rpc",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	value, ok := defaultRPCByChainID[chainID]
	return value, ok
}

func ResolveRPCURL(override string, chainID int64) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if value, ok := DefaultRPCURL(chainID); ok {
		return value, nil
	}
	return "", fmt.Errorf("no default rpc configured for chain id %d", chainID)
}
