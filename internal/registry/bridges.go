package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Provider identifiers. The bridge manager owns an explicit id -> Provider
// map keyed by these values.
const (
	ProviderLiFi       = "lifi"
	ProviderRelay      = "relay"
	ProviderOptimism   = "native-optimism"
	ProviderOmnibridge = "native-omnibridge"
)

// AdaptorKind selects the contract strategy for a native bridge endpoint.
type AdaptorKind string

const (
	AdaptorOptimism   AdaptorKind = "optimism"
	AdaptorOmnibridge AdaptorKind = "omnibridge"
)

// BridgeEndpoint is one directed from-chain -> to-chain native bridge route.
type BridgeEndpoint struct {
	FromChainID int64
	ToChainID   int64
	Adaptor     AdaptorKind
	// Optimism-style endpoints: the L1 standard bridge on the source chain
	// and the canonical L2 standard bridge on the destination.
	L1Bridge string
	L2Bridge string
	// Omnibridge endpoints: mediator contracts on each side plus the source
	// AMB used to resolve message ids.
	ForeignMediator string
	HomeMediator    string
	ForeignAMB      string
	// ETASeconds is the expected time to cross-chain finality.
	ETASeconds int64
}

const l2StandardBridge = "0x4200000000000000000000000000000000000010"

// Native bridge endpoints, in priority order. Only L1 -> L2 directions are
// shipped; reverse withdrawals go through the aggregator providers.
var bridgeEndpoints = []BridgeEndpoint{
	{
		FromChainID: 1,
		ToChainID:   8453,
		Adaptor:     AdaptorOptimism,
		L1Bridge:    "0x3154Cf16ccdb4C6d922629664174b904d80F2C35",
		L2Bridge:    l2StandardBridge,
		ETASeconds:  1200,
	},
	{
		FromChainID: 1,
		ToChainID:   10,
		Adaptor:     AdaptorOptimism,
		L1Bridge:    "0x99C9fc46f92E8a1c0deC1b1747d010903E884bE1",
		L2Bridge:    l2StandardBridge,
		ETASeconds:  1200,
	},
	{
		FromChainID: 1,
		ToChainID:   34443,
		Adaptor:     AdaptorOptimism,
		L1Bridge:    "0x735aDBbE72226BD52e818E7181953f42E3b0FF21",
		L2Bridge:    l2StandardBridge,
		ETASeconds:  1200,
	},
	{
		FromChainID:     1,
		ToChainID:       100,
		Adaptor:         AdaptorOmnibridge,
		ForeignMediator: "0x88ad09518695c6c3712AC10a214bE5109a655671",
		HomeMediator:    "0xf6A78083ca3e2a662D6dd1703c939c8aCE2e268d",
		ForeignAMB:      "0x4C36d2919e407f0Cc2Ee3c993ccF8ac26d9CE64e",
		ETASeconds:      1800,
	},
}

// BridgeEndpoints returns the endpoints served by the given adaptor kind,
// preserving table order.
func BridgeEndpoints(kind AdaptorKind) []BridgeEndpoint {
	out := make([]BridgeEndpoint, 0, len(bridgeEndpoints))
	for _, ep := range bridgeEndpoints {
		if ep.Adaptor == kind {
			out = append(out, ep)
		}
	}
	return out
}

// AllBridgeEndpoints returns the full endpoint table in priority order.
func AllBridgeEndpoints() []BridgeEndpoint {
	out := make([]BridgeEndpoint, len(bridgeEndpoints))
	copy(out, bridgeEndpoints)
	return out
}

// FindBridgeEndpoint looks up the directed chain pair in the endpoint table.
func FindBridgeEndpoint(fromChainID, toChainID int64) (BridgeEndpoint, bool) {
	for _, ep := range bridgeEndpoints {
		if ep.FromChainID == fromChainID && ep.ToChainID == toChainID {
			return ep, true
		}
	}
	return BridgeEndpoint{}, false
}

// RouteKey identifies one exact transfer route for preferred-provider lookup.
type RouteKey struct {
	FromChainID int64
	FromToken   string
	ToChainID   int64
	ToToken     string
}

func NewRouteKey(fromChainID int64, fromToken common.Address, toChainID int64, toToken common.Address) RouteKey {
	return RouteKey{
		FromChainID: fromChainID,
		FromToken:   strings.ToLower(fromToken.Hex()),
		ToChainID:   toChainID,
		ToToken:     strings.ToLower(toToken.Hex()),
	}
}

// Preferred providers for exact routes, consulted before the native-endpoint
// table. USDC routes stay on the aggregators because the canonical bridges
// mint bridged (non-Circle) representations.
var preferredRouteProvider = map[RouteKey]string{
	{FromChainID: 1, FromToken: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", ToChainID: 8453, ToToken: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"}: ProviderLiFi,
	{FromChainID: 1, FromToken: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", ToChainID: 100, ToToken: "0xddafbb505ad214d7b80b1f830fccc89b60fb7a83"}:  ProviderLiFi,
}

func PreferredProvider(key RouteKey) (string, bool) {
	id, ok := preferredRouteProvider[key]
	return id, ok
}

// PreferredRoutes returns a copy of the preferred-route table.
func PreferredRoutes() map[RouteKey]string {
	out := make(map[RouteKey]string, len(preferredRouteProvider))
	for k, v := range preferredRouteProvider {
		out[k] = v
	}
	return out
}

// Burn placeholder senders used to repair gas estimates when the real sender
// cannot simulate (no funds or missing approval).
var PlaceholderSenders = []string{
	"0x000000000000000000000000000000000000dEaD",
	"0x0000000000000000000000000000000000000000",
}
