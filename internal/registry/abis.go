package registry

// ABI fragments used by the bridge providers and contract adaptors.
const (
	ERC20MinimalABI = `[
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
	]`

	// Optimism-style L1 standard bridge (source side).
	L1StandardBridgeABI = `[
		{"name":"bridgeETHTo","type":"function","stateMutability":"payable","inputs":[{"name":"_to","type":"address"},{"name":"_minGasLimit","type":"uint32"},{"name":"_extraData","type":"bytes"}],"outputs":[]},
		{"name":"bridgeERC20To","type":"function","stateMutability":"nonpayable","inputs":[{"name":"_localToken","type":"address"},{"name":"_remoteToken","type":"address"},{"name":"_to","type":"address"},{"name":"_amount","type":"uint256"},{"name":"_minGasLimit","type":"uint32"},{"name":"_extraData","type":"bytes"}],"outputs":[]}
	]`

	// Optimism-style L2 standard bridge finalization events (destination side).
	L2StandardBridgeABI = `[
		{"name":"ETHBridgeFinalized","type":"event","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"extraData","type":"bytes","indexed":false}]},
		{"name":"ERC20BridgeFinalized","type":"event","anonymous":false,"inputs":[{"name":"localToken","type":"address","indexed":true},{"name":"remoteToken","type":"address","indexed":true},{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false},{"name":"extraData","type":"bytes","indexed":false}]}
	]`

	// Bridged-token introspection on OP-stack L2 tokens; used to prove an
	// L1/L2 token mapping by contract lookup.
	OptimismMintableERC20ABI = `[
		{"name":"l1Token","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"name":"remoteToken","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
	]`

	// Omnibridge token mediator, both sides.
	OmnibridgeABI = `[
		{"name":"relayTokens","type":"function","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"_receiver","type":"address"},{"name":"_value","type":"uint256"}],"outputs":[]},
		{"name":"TokensBridgingInitiated","type":"event","anonymous":false,"inputs":[{"name":"token","type":"address","indexed":true},{"name":"sender","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false},{"name":"messageId","type":"bytes32","indexed":true}]},
		{"name":"TokensBridged","type":"event","anonymous":false,"inputs":[{"name":"token","type":"address","indexed":true},{"name":"recipient","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false},{"name":"messageId","type":"bytes32","indexed":true}]}
	]`
)
