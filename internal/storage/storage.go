// Package storage persists exported session artifacts, optional
// credentials, and last-known device locations for the CLI, encrypted
// at rest with a locally generated key.
package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	SessionDir      = ".local/golojack/db"
	SessionFile     = "session.enc"
	KeyFile         = ".key"
	CredentialsFile = "credentials.enc"
	CacheFile       = "cache.enc"
)

func NewStorage() (*Storage, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewStorageAt(filepath.Join(homeDir, SessionDir))
}

// NewStorageAt opens (or initializes) a store rooted at basePath.
func NewStorageAt(basePath string) (*Storage, error) {
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	s := &Storage{basePath: basePath}
	if err := s.loadOrGenerateKey(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) GetBasePath() string {
	return s.basePath
}

func (s *Storage) loadOrGenerateKey() error {
	keyPath := filepath.Join(s.basePath, KeyFile)

	keyData, err := os.ReadFile(keyPath)
	if err == nil && len(keyData) == 32 {
		s.key = keyData
		return nil
	}

	s.key = make([]byte, 32)
	if _, err := rand.Read(s.key); err != nil {
		return fmt.Errorf("failed to generate encryption key: %w", err)
	}

	if err := os.WriteFile(keyPath, s.key, 0600); err != nil {
		return fmt.Errorf("failed to save encryption key: %w", err)
	}
	return nil
}

func (s *Storage) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Storage) decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// SaveSession persists exported auth artifacts.
func (s *Storage) SaveSession(artifacts map[string]string) error {
	stored := &StoredSession{
		Artifacts: artifacts,
		SavedAt:   time.Now().Unix(),
	}

	jsonData, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	encrypted, err := s.encrypt(jsonData)
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	sessionPath := filepath.Join(s.basePath, SessionFile)
	if err := os.WriteFile(sessionPath, encrypted, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// LoadSession returns the stored session, or nil when none exists.
func (s *Storage) LoadSession() (*StoredSession, error) {
	sessionPath := filepath.Join(s.basePath, SessionFile)

	encrypted, err := os.ReadFile(sessionPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	decrypted, err := s.decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}

	var stored StoredSession
	if err := json.Unmarshal(decrypted, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &stored, nil
}

func (s *Storage) HasSession() bool {
	sessionPath := filepath.Join(s.basePath, SessionFile)
	_, err := os.Stat(sessionPath)
	return err == nil
}

func (s *Storage) DeleteSession() error {
	sessionPath := filepath.Join(s.basePath, SessionFile)
	err := os.Remove(sessionPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// SaveCredentials stores username/password for quick re-login.
func (s *Storage) SaveCredentials(baseURL, username, password string) error {
	creds := &StoredCredentials{
		BaseURL:  baseURL,
		Username: username,
		Password: password,
	}

	jsonData, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	encrypted, err := s.encrypt(jsonData)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	credsPath := filepath.Join(s.basePath, CredentialsFile)
	if err := os.WriteFile(credsPath, encrypted, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return nil
}

// LoadCredentials returns stored credentials, or nil when none exist.
func (s *Storage) LoadCredentials() (*StoredCredentials, error) {
	credsPath := filepath.Join(s.basePath, CredentialsFile)

	encrypted, err := os.ReadFile(credsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	decrypted, err := s.decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	var creds StoredCredentials
	if err := json.Unmarshal(decrypted, &creds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	return &creds, nil
}

func (s *Storage) DeleteCredentials() error {
	credsPath := filepath.Join(s.basePath, CredentialsFile)
	err := os.Remove(credsPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}

// LoadCache returns the device-location cache, creating an empty one
// when the file is missing or unreadable.
func (s *Storage) LoadCache() (*CacheData, error) {
	cachePath := filepath.Join(s.basePath, CacheFile)

	encrypted, err := os.ReadFile(cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &CacheData{Locations: make(map[string]*CachedLocation)}, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	decrypted, err := s.decrypt(encrypted)
	if err != nil {
		return &CacheData{Locations: make(map[string]*CachedLocation)}, nil
	}

	var cache CacheData
	if err := json.Unmarshal(decrypted, &cache); err != nil {
		return &CacheData{Locations: make(map[string]*CachedLocation)}, nil
	}
	if cache.Locations == nil {
		cache.Locations = make(map[string]*CachedLocation)
	}
	return &cache, nil
}

func (s *Storage) SaveCache(cache *CacheData) error {
	jsonData, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	encrypted, err := s.encrypt(jsonData)
	if err != nil {
		return fmt.Errorf("failed to encrypt cache: %w", err)
	}

	cachePath := filepath.Join(s.basePath, CacheFile)
	if err := os.WriteFile(cachePath, encrypted, 0600); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

// CacheLocation stores a device's last-known location with a TTL.
func (s *Storage) CacheLocation(deviceID string, data []byte, ttlSeconds int64) error {
	cache, err := s.LoadCache()
	if err != nil {
		cache = &CacheData{Locations: make(map[string]*CachedLocation)}
	}

	now := time.Now().Unix()
	cache.Locations[deviceID] = &CachedLocation{
		Data:      data,
		CachedAt:  now,
		ExpiresAt: now + ttlSeconds,
	}
	return s.SaveCache(cache)
}

// GetCachedLocation returns a device's cached location, if it is still
// within its TTL.
func (s *Storage) GetCachedLocation(deviceID string) ([]byte, bool) {
	cache, err := s.LoadCache()
	if err != nil || cache.Locations == nil {
		return nil, false
	}

	cached, ok := cache.Locations[deviceID]
	if !ok {
		return nil, false
	}
	if time.Now().Unix() > cached.ExpiresAt {
		return nil, false
	}
	return cached.Data, true
}

func (s *Storage) ClearCache() error {
	cachePath := filepath.Join(s.basePath, CacheFile)
	err := os.Remove(cachePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
