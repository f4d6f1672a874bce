package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Generate writes a fresh keypair in Solana CLI format with 0600 permissions.
func Generate(path string, force bool) (*Wallet, error) {
	path = filepath.Clean(path)
	if path == "." || path == "" {
		return nil, errors.New("keypair path required")
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("keypair already exists: %s", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	_, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	w, err := FromPrivateKey(sk)
	if err != nil {
		return nil, err
	}

	ints := make([]int, 0, ed25519.PrivateKeySize)
	for _, b := range sk {
		ints = append(ints, int(b))
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-keypair-*.json")
	if err != nil {
		return nil, err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return nil, err
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return nil, err
	}
	return w, nil
}
