// Package providers wires stored sessions, configuration, and the API
// client together for the CLI commands.
package providers

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/golojack/golojack/client"
	"github.com/golojack/golojack/internal/config"
	"github.com/golojack/golojack/internal/storage"
)

// DeviceProvider resumes a client from the locally stored session.
type DeviceProvider struct {
	Client  *client.Client
	Storage *storage.Storage
	Config  *config.Config
	Logger  *zap.Logger
}

// NewDeviceProvider loads the stored session and builds a resumed
// client. It fails when no session is stored; commands should point
// the user at `login`.
func NewDeviceProvider(debug bool) (*DeviceProvider, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := storage.NewStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session storage: %w", err)
	}

	stored, err := store.LoadSession()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if stored == nil {
		return nil, fmt.Errorf("not logged in (run 'golojack login' first)")
	}

	artifacts, err := client.ArtifactsFromMap(stored.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("stored session is corrupted: %w", err)
	}

	logger := NewLogger(debug || cfg.Debug)

	c, err := client.FromAuth(cfg.BaseURL, artifacts,
		client.WithTimeout(cfg.Timeout),
		client.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resume session: %w", err)
	}

	return &DeviceProvider{
		Client:  c,
		Storage: store,
		Config:  cfg,
		Logger:  logger,
	}, nil
}

// PersistSession writes the client's current auth state back to disk,
// capturing any token refresh that happened during the command.
func (p *DeviceProvider) PersistSession() error {
	artifacts, ok := p.Client.ExportAuth()
	if !ok {
		return nil
	}
	return p.Storage.SaveSession(artifacts.ToMap())
}

// Close persists the session and releases the client.
func (p *DeviceProvider) Close() {
	if err := p.PersistSession(); err != nil {
		p.Logger.Warn("failed to persist session", zap.Error(err))
	}
	_ = p.Client.Close()
}

// NewLogger builds the CLI logger: a development logger when debug is
// set, a no-op otherwise.
func NewLogger(debug bool) *zap.Logger {
	if !debug {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
