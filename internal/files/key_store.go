package files

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrylevesque/scanfulfill/internal/crypto"
)

// ErrKeyExists is returned by WriteMasterKey when the key file is
// already present.
var ErrKeyExists = errors.New("master key already exists")

// ReadMasterKey returns the device master key from MASTER_KEY_HEX or,
// if that is unset, from the hex file at path.
func ReadMasterKey(path string) ([]byte, error) {
	h := os.Getenv("MASTER_KEY_HEX")
	if h == "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("MASTER_KEY_HEX not set and %s unreadable: %w", path, err)
		}
		h = string(data)
	}
	b, err := hex.DecodeString(strings.TrimSpace(h))
	if err != nil {
		return nil, fmt.Errorf("master key hex decode error: %w", err)
	}
	if len(b) != crypto.KeySize {
		return nil, fmt.Errorf("master key length must be %d bytes (hex %d chars)", crypto.KeySize, 2*crypto.KeySize)
	}
	return b, nil
}

// WriteMasterKey generates a key and writes it to path. It never
// overwrites an existing file.
func WriteMasterKey(path string) ([]byte, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrKeyExists)
	}
	key, err := crypto.NewKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, err
	}
	if _, err := f.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		f.Close()
		return nil, err
	}
	return key, f.Close()
}

// LoadOrCreateMasterKey reads the master key, generating one on first
// boot of a station.
func LoadOrCreateMasterKey(path string) ([]byte, error) {
	if os.Getenv("MASTER_KEY_HEX") == "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return WriteMasterKey(path)
		}
	}
	return ReadMasterKey(path)
}
