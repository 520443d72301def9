package wallet

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Well-known throwaway key (hardhat account #0); never funded on mainnet.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNewLocalSignerFromHex(t *testing.T) {
	signer, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: "0x" + testKeyHex})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	want := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if signer.Address() != want {
		t.Fatalf("unexpected address: %s", signer.Address())
	}
}

func TestSignTxProducesValidSignature(t *testing.T) {
	signer, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: testKeyHex})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	to := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	chainID := big.NewInt(100)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     1,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})
	signed, err := signer.SignTx(chainID, tx)
	if err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != signer.Address() {
		t.Fatalf("recovered sender %s does not match signer %s", sender, signer.Address())
	}
}

func TestLocalWalletSafeAddresses(t *testing.T) {
	signer, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: testKeyHex})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	safe := common.HexToAddress("0x00000000000000000000000000000000000000CC")
	w := NewLocalWallet(signer, map[int64]common.Address{100: safe}, nil)
	got, ok := w.SafeAddress(100)
	if !ok || got != safe {
		t.Fatalf("expected safe address on gnosis, got %s ok=%v", got, ok)
	}
	if _, ok := w.SafeAddress(1); ok {
		t.Fatal("no safe configured for ethereum")
	}
}
