// Package credentials stores per-project database credentials. The OS
// keyring is preferred; headless machines fall back to an encrypted file.
package credentials

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"

	"db_declarative_schema_syncer/internal/secret"
)

const service = "declsync"

var ErrNotFound = errors.New("credential not found")

// Store reads and writes named credentials, typically connection strings
// keyed by project ref.
type Store interface {
	Set(name, value string) error
	Get(name string) (string, error)
	Delete(name string) error
}

// SystemStore uses the operating system keyring.
type SystemStore struct{}

func (SystemStore) Set(name, value string) error {
	return keyring.Set(service, name, value)
}

func (SystemStore) Get(name string) (string, error) {
	v, err := keyring.Get(service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return v, err
}

func (SystemStore) Delete(name string) error {
	err := keyring.Delete(service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// Available probes the system keyring. D-Bus-less servers fail here, in
// which case the caller should use a FileStore.
func (SystemStore) Available() bool {
	probe := service + "-probe"
	if err := keyring.Set(service, probe, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(service, probe)
	return true
}

// FileStore keeps credentials AES-GCM encrypted in a single JSON file.
type FileStore struct {
	Path string
	key  []byte
}

// NewFileStore derives the encryption key from passphrase. The file and
// its directory are created lazily on first Set.
func NewFileStore(path, passphrase string) (*FileStore, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase must not be empty")
	}
	sum := sha256.Sum256([]byte(passphrase))
	return &FileStore{Path: path, key: sum[:]}, nil
}

func (f *FileStore) Set(name, value string) error {
	entries, err := f.load()
	if err != nil {
		return err
	}
	sealed, err := secret.Encrypt(f.key, []byte(value))
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}
	entries[name] = base64.StdEncoding.EncodeToString(sealed)
	return f.save(entries)
}

func (f *FileStore) Get(name string) (string, error) {
	entries, err := f.load()
	if err != nil {
		return "", err
	}
	encoded, ok := entries[name]
	if !ok {
		return "", ErrNotFound
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode credential %s: %w", name, err)
	}
	plain, err := secret.Decrypt(f.key, sealed)
	if err != nil {
		return "", fmt.Errorf("decrypt credential %s: %w", name, err)
	}
	return string(plain), nil
}

func (f *FileStore) Delete(name string) error {
	entries, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := entries[name]; !ok {
		return nil
	}
	delete(entries, name)
	return f.save(entries)
}

func (f *FileStore) load() (map[string]string, error) {
	entries := map[string]string{}
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("read credential store: %w", err)
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse credential store: %w", err)
	}
	return entries, nil
}

func (f *FileStore) save(entries map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create credential store dir: %w", err)
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode credential store: %w", err)
	}
	return os.WriteFile(f.Path, raw, 0o600)
}

// Open picks the system keyring when it works and falls back to the
// encrypted file store otherwise.
func Open(filePath, passphrase string) (Store, error) {
	sys := SystemStore{}
	if sys.Available() {
		return sys, nil
	}
	return NewFileStore(filePath, passphrase)
}
