package model

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func spec(amount int64) TransferSpec {
	return TransferSpec{
		From: TransferEndpoint{
			Chain:   "gnosis",
			Address: common.HexToAddress("0x00000000000000000000000000000000000000AA"),
			Token:   common.Address{},
		},
		To: TransferEndpoint{
			Chain:   "base",
			Address: common.HexToAddress("0x00000000000000000000000000000000000000BB"),
			Token:   common.Address{},
		},
		ToAmount: big.NewInt(amount),
	}
}

func TestStatusGuards(t *testing.T) {
	for _, status := range []Status{StatusCreated, StatusQuoteDone, StatusQuoteFailed} {
		if !status.CanQuote() {
			t.Fatalf("%s must allow quoting", status)
		}
	}
	for _, status := range []Status{StatusExecutionPending, StatusExecutionDone, StatusExecutionFailed, StatusExecutionUnknown} {
		if status.CanQuote() {
			t.Fatalf("%s must not allow quoting", status)
		}
	}
	if !StatusQuoteDone.CanExecute() {
		t.Fatal("QUOTE_DONE must allow execution")
	}
	if StatusCreated.CanExecute() || StatusQuoteFailed.CanExecute() {
		t.Fatal("only QUOTE_DONE allows execution")
	}
}

func TestSpecEqualDeepComparesAmount(t *testing.T) {
	a, b := spec(5), spec(5)
	if !a.Equal(b) {
		t.Fatal("identical specs must compare equal")
	}
	b.ToAmount = big.NewInt(6)
	if a.Equal(b) {
		t.Fatal("different amounts must not compare equal")
	}
	b.ToAmount = nil
	if a.Equal(b) {
		t.Fatal("nil amount must not compare equal to non-nil")
	}
}

func TestBundleExpiry(t *testing.T) {
	bundle := RequestBundle{ID: NewBundleID(), Timestamp: 1000}
	if bundle.Expired(1180, 180) {
		t.Fatal("bundle must be valid at exactly timestamp+validity")
	}
	if !bundle.Expired(1181, 180) {
		t.Fatal("bundle must expire after timestamp+validity")
	}
}

func TestBundleRoundTripsThroughJSON(t *testing.T) {
	eta := int64(1200)
	msg := "ok"
	bundle := RequestBundle{
		ID:             NewBundleID(),
		Timestamp:      42,
		RequestsParams: []TransferSpec{spec(7)},
		Requests: []*ProviderRequest{{
			ID:         NewRequestID(),
			ProviderID: "native-optimism",
			Params:     spec(7),
			Status:     StatusQuoteDone,
			QuoteData:  &QuoteData{ETA: &eta, Message: &msg, Timestamp: 42},
		}},
	}
	buf, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("marshal bundle: %v", err)
	}
	var decoded RequestBundle
	if err := json.Unmarshal(buf, &decoded); err != nil {
		t.Fatalf("unmarshal bundle: %v", err)
	}
	if !decoded.SameParams(bundle.RequestsParams) {
		t.Fatal("params must survive the round trip")
	}
	if decoded.Requests[0].Status != StatusQuoteDone {
		t.Fatalf("unexpected status: %s", decoded.Requests[0].Status)
	}
	if *decoded.Requests[0].QuoteData.ETA != 1200 {
		t.Fatal("quote eta must survive the round trip")
	}
}
