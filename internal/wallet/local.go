package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ggonzalez94/bridge-cli/internal/registry"
)

const (
	EnvPrivateKey           = "BRIDGE_PRIVATE_KEY"
	EnvPrivateKeyFile       = "BRIDGE_PRIVATE_KEY_FILE"
	EnvKeystorePath         = "BRIDGE_KEYSTORE_PATH"
	EnvKeystorePassword     = "BRIDGE_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "BRIDGE_KEYSTORE_PASSWORD_FILE"
)

// LocalSigner signs with an in-process ECDSA key loaded from the
// environment, a key file, or a go-ethereum keystore.
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	signer := types.LatestSignerForChainID(chainID)
	return types.SignTx(tx, signer, s.privateKey)
}

type LocalSignerConfig struct {
	PrivateKeyHex        string
	PrivateKeyFile       string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
}

func NewLocalSignerFromEnv() (*LocalSigner, error) {
	return NewLocalSigner(LocalSignerConfig{
		PrivateKeyHex:        strings.TrimSpace(os.Getenv(EnvPrivateKey)),
		PrivateKeyFile:       strings.TrimSpace(os.Getenv(EnvPrivateKeyFile)),
		KeystorePath:         strings.TrimSpace(os.Getenv(EnvKeystorePath)),
		KeystorePassword:     strings.TrimSpace(os.Getenv(EnvKeystorePassword)),
		KeystorePasswordFile: strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile)),
	})
}

func NewLocalSigner(cfg LocalSignerConfig) (*LocalSigner, error) {
	pk, err := loadPrivateKey(cfg)
	if err != nil {
		return nil, err
	}
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid ECDSA public key")
	}
	return &LocalSigner{privateKey: pk, address: crypto.PubkeyToAddress(*pub)}, nil
}

func loadPrivateKey(cfg LocalSignerConfig) (*ecdsa.PrivateKey, error) {
	if strings.TrimSpace(cfg.PrivateKeyHex) != "" {
		return parseHexKey(cfg.PrivateKeyHex)
	}
	if strings.TrimSpace(cfg.PrivateKeyFile) != "" {
		buf, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		return parseHexKey(string(buf))
	}
	if strings.TrimSpace(cfg.KeystorePath) != "" {
		password := cfg.KeystorePassword
		if strings.TrimSpace(password) == "" && strings.TrimSpace(cfg.KeystorePasswordFile) != "" {
			buf, err := os.ReadFile(cfg.KeystorePasswordFile)
			if err != nil {
				return nil, fmt.Errorf("read keystore password file: %w", err)
			}
			password = strings.TrimSpace(string(buf))
		}
		if strings.TrimSpace(password) == "" {
			return nil, fmt.Errorf("keystore password is required")
		}
		buf, err := os.ReadFile(cfg.KeystorePath)
		if err != nil {
			return nil, fmt.Errorf("read keystore file: %w", err)
		}
		key, err := keystore.DecryptKey(buf, password)
		if err != nil {
			return nil, fmt.Errorf("decrypt keystore: %w", err)
		}
		return key.PrivateKey, nil
	}
	return nil, fmt.Errorf("missing signing key: set %s or %s or %s", EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath)
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}

// LocalWallet binds a local signer to per-chain ledgers and an optional
// smart-account address table.
type LocalWallet struct {
	signer        Signer
	safeAddresses map[int64]common.Address
	rpcOverrides  map[int64]string

	mu      sync.Mutex
	ledgers map[int64]*Ledger
}

func NewLocalWallet(signer Signer, safeAddresses map[int64]common.Address, rpcOverrides map[int64]string) *LocalWallet {
	return &LocalWallet{
		signer:        signer,
		safeAddresses: safeAddresses,
		rpcOverrides:  rpcOverrides,
		ledgers:       make(map[int64]*Ledger),
	}
}

func (w *LocalWallet) Address() common.Address {
	return w.signer.Address()
}

func (w *LocalWallet) Signer() Signer {
	return w.signer
}

func (w *LocalWallet) SafeAddress(chainID int64) (common.Address, bool) {
	addr, ok := w.safeAddresses[chainID]
	return addr, ok
}

func (w *LocalWallet) Ledger(ctx context.Context, chainID int64) (*Ledger, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ledger, ok := w.ledgers[chainID]; ok {
		return ledger, nil
	}
	rpcURL, err := registry.ResolveRPCURL(w.rpcOverrides[chainID], chainID)
	if err != nil {
		return nil, err
	}
	ledger, err := Dial(ctx, rpcURL, chainID)
	if err != nil {
		return nil, err
	}
	w.ledgers[chainID] = ledger
	return ledger, nil
}

func (w *LocalWallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ledger := range w.ledgers {
		ledger.Close()
	}
	w.ledgers = make(map[int64]*Ledger)
}
