package evm

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/zynpay/zynpay_service/internal/infrastructure/config"
	"github.com/zynpay/zynpay_service/pkg/crypto"
)

// Keystore holds the private keys of the accounts this service signs for and
// the user each account belongs to.
type Keystore struct {
	keys   map[common.Address]*ecdsa.PrivateKey
	owners map[common.Address]string
}

// NewKeystore loads hex private keys, decrypting them first when the config
// says they are sealed.
func NewKeystore(cfg config.SignerConfig) (*Keystore, error) {
	ks := &Keystore{
		keys:   make(map[common.Address]*ecdsa.PrivateKey, len(cfg.PrivateKeys)),
		owners: make(map[common.Address]string, len(cfg.AccountOwners)),
	}
	for addr, email := range cfg.AccountOwners {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("signer owner: %q is not an address", addr)
		}
		ks.owners[common.HexToAddress(addr)] = strings.ToLower(strings.TrimSpace(email))
	}
	for i, raw := range cfg.PrivateKeys {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if cfg.Encrypted {
			plain, err := crypto.Decrypt(raw, cfg.EncryptionKey)
			if err != nil {
				return nil, fmt.Errorf("signer key %d: %w", i, err)
			}
			raw = plain
		}
		if err := ks.Add(raw); err != nil {
			return nil, fmt.Errorf("signer key %d: %w", i, err)
		}
	}
	return ks, nil
}

// Add registers a hex private key under its derived address.
func (k *Keystore) Add(hexKey string) error {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}
	k.keys[ethcrypto.PubkeyToAddress(key.PublicKey)] = key
	return nil
}

// Key returns the signing key for account.
func (k *Keystore) Key(account common.Address) (*ecdsa.PrivateKey, bool) {
	key, ok := k.keys[account]
	return key, ok
}

// Accounts lists the addresses that can sign.
func (k *Keystore) Accounts() []string {
	out := make([]string, 0, len(k.keys))
	for addr := range k.keys {
		out = append(out, addr.Hex())
	}
	return out
}

// CanSign reports whether the user with email may spend from account. An
// account with no configured owner can be signed for by nobody.
func (k *Keystore) CanSign(email, account string) bool {
	email = strings.TrimSpace(email)
	if email == "" || !common.IsHexAddress(account) {
		return false
	}
	owner, ok := k.owners[common.HexToAddress(account)]
	return ok && strings.EqualFold(owner, email)
}
