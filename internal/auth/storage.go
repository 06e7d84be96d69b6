package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "egnyte-desktop"
	keyringUser    = "oauth-tokens"
	tokenFileName  = "tokens.json"
)

// TokenSet holds the OAuth tokens for one domain
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Storage persists a TokenSet
type Storage interface {
	Save(tokens TokenSet) error
	Load() (*TokenSet, error)
	Delete() error
	Name() string
}

// KeyringStorage keeps tokens in the system keyring
type KeyringStorage struct{}

// NewKeyringStorage creates a keyring storage backend
func NewKeyringStorage() *KeyringStorage {
	return &KeyringStorage{}
}

func (s *KeyringStorage) Save(tokens TokenSet) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return keyring.Set(keyringService, keyringUser, string(data))
}

func (s *KeyringStorage) Load() (*TokenSet, error) {
	raw, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var tokens TokenSet
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return nil, fmt.Errorf("corrupt keyring entry: %w", err)
	}
	return &tokens, nil
}

func (s *KeyringStorage) Delete() error {
	err := keyring.Delete(keyringService, keyringUser)
	if err == keyring.ErrNotFound {
		return nil
	}
	return err
}

func (s *KeyringStorage) Name() string { return "system-keyring" }

// FileStorage keeps tokens in a mode-0600 JSON file, used when no
// keyring daemon is available (headless sessions)
type FileStorage struct {
	path string
}

// NewFileStorage creates a file storage backend under dir
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{path: filepath.Join(dir, tokenFileName)}
}

func (s *FileStorage) Save(tokens TokenSet) error {
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

func (s *FileStorage) Load() (*TokenSet, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var tokens TokenSet
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("corrupt token file: %w", err)
	}
	return &tokens, nil
}

func (s *FileStorage) Delete() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FileStorage) Name() string { return "file" }
