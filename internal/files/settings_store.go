package files

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/crypto"
)

const sealedPrefix = "sealed:"

// settingsPurpose scopes the derived key to this file format.
const settingsPurpose = "scanfulfill settings v1"

// SettingsStore is a config.Provider backed by a JSON object on disk.
// The credential is sealed with a key derived from the device master
// key and fingerprint; other values are stored in the clear.
type SettingsStore struct {
	path string
	key  []byte

	mu sync.Mutex
}

// NewSettingsStore derives the sealing key and returns a store for path.
// The file is created on the first Set.
func NewSettingsStore(path string, masterKey []byte, fingerprint string) (*SettingsStore, error) {
	key, err := crypto.DeriveKey(masterKey, fingerprint, settingsPurpose)
	if err != nil {
		return nil, fmt.Errorf("deriving settings key: %w", err)
	}
	return &SettingsStore{path: path, key: key}, nil
}

func (s *SettingsStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return "", err
	}
	v := values[key]
	if !sealed(key) || v == "" {
		return v, nil
	}
	return s.open(key, v)
}

func (s *SettingsStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return err
	}
	if sealed(key) && value != "" {
		blob, err := crypto.Seal(s.key, []byte(value), []byte(key))
		if err != nil {
			return fmt.Errorf("sealing %s: %w", key, err)
		}
		value = sealedPrefix + base64.StdEncoding.EncodeToString(blob)
	}
	values[key] = value
	return s.save(values)
}

func sealed(key string) bool { return key == config.KeyCredential }

func (s *SettingsStore) open(key, stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, sealedPrefix)
	if !ok {
		return "", fmt.Errorf("%s is not sealed", key)
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", key, err)
	}
	plain, err := crypto.Open(s.key, blob, []byte(key))
	if err != nil {
		return "", fmt.Errorf("opening %s (was the settings file copied from another device?): %w", key, err)
	}
	return string(plain), nil
}

func (s *SettingsStore) load() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	return values, nil
}

// save writes through a temp file so a power cut never leaves a torn
// settings file behind.
func (s *SettingsStore) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
