package lifi

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/model"
	"github.com/ggonzalez94/bridge-cli/internal/registry"
)

var lifiERC20ABI = mustLifiABI(registry.ERC20MinimalABI)

func mustLifiABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

func packApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := lifiERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack approve calldata", err)
	}
	return data, nil
}

// storedQuote recovers the typed quote response from the request's persisted
// provider data. The data has been through a JSON round trip, so it is
// re-marshalled before decoding.
func storedQuote(req *model.ProviderRequest) (*quoteResponse, error) {
	if req.QuoteData == nil {
		return nil, clierr.New(clierr.CodeProtocol, "request has no quote data")
	}
	stored, ok := req.QuoteData.ProviderData["response"]
	if !ok {
		return nil, clierr.New(clierr.CodeProtocol, "quote data carries no provider response")
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "re-encode stored quote", err)
	}
	var resp quoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "decode stored quote", err)
	}
	return &resp, nil
}

// parseHexOrDecimal reads amounts the API returns as either 0x-prefixed hex
// or plain decimal strings. Empty means zero.
func parseHexOrDecimal(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), nil
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("invalid numeric string %q", s)
	}
	return v, nil
}

func decodeHexData(s string) ([]byte, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if s == "" {
		return nil, fmt.Errorf("empty call data")
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex data")
	}
	data := common.FromHex("0x" + s)
	if len(data)*2 != len(s) {
		return nil, fmt.Errorf("invalid hex data")
	}
	return data, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func nowUnix() int64 { return time.Now().Unix() }
