// Package wallet loads the signing key that pays for settlements.
package wallet

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/Abdullah1738/itheum-agent/offchain/solana"
)

var ErrInvalidKeypair = errors.New("invalid keypair")

type Wallet struct {
	priv ed25519.PrivateKey
	pub  solana.Pubkey
}

func FromPrivateKey(priv ed25519.PrivateKey) (*Wallet, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeypair
	}
	pk, ok := priv.Public().(ed25519.PublicKey)
	if !ok || len(pk) != ed25519.PublicKeySize {
		return nil, ErrInvalidKeypair
	}
	w := &Wallet{priv: priv}
	copy(w.pub[:], pk)
	return w, nil
}

func (w *Wallet) PublicKey() solana.Pubkey { return w.pub }

func (w *Wallet) Address() string { return w.pub.Base58() }

// Signers is the signer set for transactions paid by this wallet.
func (w *Wallet) Signers() map[solana.Pubkey]ed25519.PrivateKey {
	return map[solana.Pubkey]ed25519.PrivateKey{w.pub: w.priv}
}

func DefaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

// Load reads a Solana CLI keypair file: a JSON array of 64 byte values.
func Load(path string) (*Wallet, error) {
	if path == "" {
		return nil, fmt.Errorf("keypair path required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse accepts the Solana CLI JSON array form or a base58 encoded 64-byte
// secret key as exported by browser wallets.
func Parse(raw []byte) (*Wallet, error) {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, ErrInvalidKeypair
		}
		if len(ints) != ed25519.PrivateKeySize {
			return nil, ErrInvalidKeypair
		}
		key := make([]byte, ed25519.PrivateKeySize)
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, ErrInvalidKeypair
			}
			key[i] = byte(v)
		}
		return fromSecret(key)
	}

	key, err := base58.Decode(s)
	if err != nil {
		return nil, ErrInvalidKeypair
	}
	return fromSecret(key)
}

// fromSecret rejects secrets whose public half does not match the seed.
func fromSecret(key []byte) (*Wallet, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeypair
	}
	priv := ed25519.NewKeyFromSeed(key[:ed25519.SeedSize])
	if string(priv[ed25519.SeedSize:]) != string(key[ed25519.SeedSize:]) {
		return nil, ErrInvalidKeypair
	}
	return FromPrivateKey(priv)
}
