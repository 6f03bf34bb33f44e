package secrets

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/logging"
)

const (
	masterKeyFile = "master.key"
	secretSuffix  = ".secret"
	tempPrefix    = ".tmp-"

	// DefaultDebounceInterval coalesces the burst of fsnotify events a
	// single atomic write produces.
	DefaultDebounceInterval = 200 * time.Millisecond
)

// deletedMarker is the digest recorded for keys deleted by this process.
var deletedMarker [sha256.Size]byte

// ErrCorrupted is returned when a secret file cannot be decrypted.
var ErrCorrupted = errors.New("secret file is corrupted or was sealed with another key")

// FileStorageConfig configures a FileStorage.
type FileStorageConfig struct {
	// Dir holds the secret files and the master key. Created 0700 if missing.
	Dir string

	// DebounceInterval delays change notifications from the watcher.
	// Defaults to DefaultDebounceInterval.
	DebounceInterval time.Duration
}

// FileStorage is a Storage keeping one encrypted file per key.
type FileStorage struct {
	dir      string
	debounce time.Duration
	aead     cipher.AEAD

	mu sync.Mutex
	// written records the digest of the last file this process wrote for
	// each key so the watcher can ignore its own writes.
	written   map[string][sha256.Size]byte
	listeners listeners

	watchMu   sync.Mutex
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	timers    map[string]*time.Timer
}

// NewFileStorage opens (or initialises) the encrypted store in cfg.Dir.
func NewFileStorage(cfg FileStorageConfig) (*FileStorage, error) {
	if cfg.Dir == "" {
		return nil, errors.New("secret storage directory is required")
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = DefaultDebounceInterval
	}

	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create secret storage directory: %w", err)
	}

	key, err := loadOrCreateMasterKey(filepath.Join(cfg.Dir, masterKeyFile))
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise cipher: %w", err)
	}

	return &FileStorage{
		dir:      cfg.Dir,
		debounce: cfg.DebounceInterval,
		aead:     aead,
		written:  make(map[string][sha256.Size]byte),
		timers:   make(map[string]*time.Timer),
	}, nil
}

func loadOrCreateMasterKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("master key %s has invalid length %d", path, len(key))
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read master key: %w", err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, os.ErrExist) {
		// Another process created it first.
		return loadOrCreateMasterKey(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	if _, err := f.Write(key); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write master key: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write master key: %w", err)
	}

	logging.Info("SecretStorage", "Created new master key in %s", filepath.Dir(path))
	return key, nil
}

// Get implements Storage.
func (s *FileStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read secret %q: %w", key, err)
	}

	plaintext, err := s.open(key, data)
	if err != nil {
		return "", false, fmt.Errorf("secret %q: %w", key, err)
	}
	return string(plaintext), true, nil
}

// Store implements Storage.
func (s *FileStorage) Store(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sealed, err := s.seal(key, []byte(value))
	if err != nil {
		return err
	}

	s.mu.Lock()
	err = writeFileAtomic(s.dir, s.path(key), sealed)
	if err == nil {
		s.written[key] = sha256.Sum256(sealed)
	}
	s.mu.Unlock()

	if err != nil {
		logging.Warn("SecretStorage", "Failed to store secret %q: %v", key, err)
		return fmt.Errorf("failed to store secret %q: %w", key, err)
	}

	logging.Debug("SecretStorage", "Stored secret %q", key)
	s.listeners.notify(key)
	return nil
}

// Delete implements Storage.
func (s *FileStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	err := os.Remove(s.path(key))
	s.written[key] = deletedMarker
	s.mu.Unlock()

	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete secret %q: %w", key, err)
	}

	logging.Debug("SecretStorage", "Deleted secret %q", key)
	s.listeners.notify(key)
	return nil
}

// OnDidChange implements Storage.
func (s *FileStorage) OnDidChange(fn func(key string)) func() {
	return s.listeners.add(fn)
}

func (s *FileStorage) path(key string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+secretSuffix)
}

// keyFromPath reverses path. ok is false for files that are not secrets.
func keyFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, secretSuffix) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, secretSuffix))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// seal returns nonce||ciphertext. The key is bound as additional data so a
// file renamed to another key fails to open.
func (s *FileStorage) seal(key string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, []byte(key)), nil
}

func (s *FileStorage) open(key string, data []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(data) < n {
		return nil, ErrCorrupted
	}
	plaintext, err := s.aead.Open(nil, data[:n], data[n:], []byte(key))
	if err != nil {
		return nil, ErrCorrupted
	}
	return plaintext, nil
}

func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
