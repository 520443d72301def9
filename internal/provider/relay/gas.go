package relay

import (
	"strings"
	"time"
)

// Fallback gas limits used when neither the real quote nor a placeholder
// quote carried a server-side estimate. Values are deliberately generous;
// the live estimator trims them down when the node cooperates.
const (
	approvalGasDefault = uint64(100_000)
	mainnetGasDefault  = uint64(400_000)
	rollupGasDefault   = uint64(1_000_000)
)

var gasDefaultsByChain = map[int64]uint64{
	1:     mainnetGasDefault,
	10:    rollupGasDefault,
	100:   mainnetGasDefault,
	137:   mainnetGasDefault,
	8453:  rollupGasDefault,
	34443: rollupGasDefault,
	42161: rollupGasDefault,
}

// defaultGas picks the static fallback for a step kind on a chain. Approval
// steps are cheap regardless of chain; everything else uses the per-chain
// default.
func defaultGas(stepID string, chainID int64) uint64 {
	if strings.Contains(strings.ToLower(stepID), "approv") {
		return approvalGasDefault
	}
	if gas, ok := gasDefaultsByChain[chainID]; ok {
		return gas
	}
	return mainnetGasDefault
}

func nowUnix() int64 { return time.Now().Unix() }
