package registry

// External aggregator API endpoints.
const (
	LiFiBaseURL    = "https://li.quest/v1"
	LiFiScanURL    = "https://scan.li.fi/tx"
	RelayBaseURL   = "https://api.relay.link"
	RelayScanURL   = "https://relay.link/transaction"
	MaxPriceImpact = "0.50"
)
