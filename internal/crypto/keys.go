package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of the device master key and of derived keys.
const KeySize = chacha20poly1305.KeySize

// ErrInvalidKeyLength is returned when a key is not KeySize bytes.
var ErrInvalidKeyLength = errors.New("invalid key length")

// DeriveKey derives a purpose-bound key from the device master key. The
// device fingerprint is mixed in as salt so a settings file copied to
// another station cannot be opened there.
func DeriveKey(master []byte, fingerprint, purpose string) ([]byte, error) {
	if len(master) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	h := hkdf.New(sha256.New, master, []byte(fingerprint), []byte(purpose))
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// NewKey returns a fresh random master key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
