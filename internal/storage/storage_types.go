package storage

import (
	"encoding/json"
)

type Storage struct {
	basePath string
	key      []byte
}

// StoredSession wraps exported auth artifacts for persistence.
type StoredSession struct {
	Artifacts map[string]string `json:"artifacts"`
	SavedAt   int64             `json:"saved_at"`
}

// StoredCredentials holds encrypted username/password for quick
// re-login.
type StoredCredentials struct {
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// CacheData holds last-known device locations with TTL.
type CacheData struct {
	Locations map[string]*CachedLocation `json:"locations,omitempty"`
}

// CachedLocation is one device's last fetched location.
type CachedLocation struct {
	Data      json.RawMessage `json:"data"`
	CachedAt  int64           `json:"cached_at"`
	ExpiresAt int64           `json:"expires_at"`
}
