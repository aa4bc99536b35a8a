package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/ashureev/aria/internal/domain"
	"github.com/ashureev/aria/internal/store"
)

var (
	// ErrNotInstalled is returned by Activate before a successful Install.
	ErrNotInstalled = errors.New("cache generation not installed")

	// ErrBadStatus is returned when a manifest asset answers with a non-2xx status.
	ErrBadStatus = errors.New("unexpected response status")
)

// ClaimFunc is called after activation so open clients switch to the new generation.
type ClaimFunc func(generation string)

// Status describes the cache manager state.
type Status struct {
	Current   string   `json:"current"`
	Active    string   `json:"active,omitempty"`
	Installed bool     `json:"installed"`
	Manifest  Manifest `json:"manifest"`
}

// Manager owns the app-shell cache lifecycle: install, activate, fetch.
type Manager struct {
	storage  store.CacheStorage
	origin   Origin
	manifest Manifest
	current  string
	logger   *slog.Logger

	mu        sync.Mutex // Serializes Install and Activate
	installed atomic.Bool
	active    atomic.Pointer[string]

	claimMu sync.RWMutex
	claims  []ClaimFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithManifest overrides the default manifest.
func WithManifest(m Manifest) Option {
	return func(mgr *Manager) { mgr.manifest = m }
}

// WithGeneration overrides the current cache generation name.
func WithGeneration(name string) Option {
	return func(mgr *Manager) {
		if name != "" {
			mgr.current = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(mgr *Manager) {
		if logger != nil {
			mgr.logger = logger
		}
	}
}

// NewManager creates a cache manager over storage, fetching from origin.
func NewManager(storage store.CacheStorage, origin Origin, opts ...Option) *Manager {
	m := &Manager{
		storage:  storage,
		origin:   origin,
		manifest: DefaultManifest(),
		current:  DefaultGeneration,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnClaim registers fn to run after every successful activation.
func (m *Manager) OnClaim(fn ClaimFunc) {
	m.claimMu.Lock()
	defer m.claimMu.Unlock()
	m.claims = append(m.claims, fn)
}

// Install fetches every manifest asset and stores them under the current
// generation, then activates it without waiting for older clients.
//
// Install is all-or-nothing. Every asset is fetched before anything is
// written and the write is one transaction, so a failed fetch leaves no
// partially populated generation behind.
func (m *Manager) Install(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.installLocked(ctx); err != nil {
		return err
	}
	return m.activateLocked(ctx)
}

func (m *Manager) installLocked(ctx context.Context) error {
	created, err := m.storage.Open(ctx, m.current)
	if err != nil {
		return fmt.Errorf("install %s: open cache: %w", m.current, err)
	}

	m.logger.Info("Caching app shell", "generation", m.current, "assets", len(m.manifest))

	assets, err := m.fetchManifest(ctx)
	if err == nil {
		err = m.storage.PutAll(ctx, m.current, assets)
	}
	if err != nil {
		if created {
			if _, delErr := m.storage.Delete(ctx, m.current); delErr != nil {
				m.logger.Warn("Failed to remove incomplete cache", "generation", m.current, "error", delErr)
			}
		}
		return fmt.Errorf("install %s: %w", m.current, err)
	}

	m.installed.Store(true)
	m.logger.Info("App shell cached", "generation", m.current)
	return nil
}

func (m *Manager) fetchManifest(ctx context.Context) ([]*domain.CachedAsset, error) {
	assets := make([]*domain.CachedAsset, 0, len(m.manifest))
	for _, path := range m.manifest {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, fmt.Errorf("build request for %s: %w", path, err)
		}
		asset, err := m.origin.Fetch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", path, err)
		}
		if asset.Status < 200 || asset.Status > 299 {
			return nil, fmt.Errorf("fetch %s: %w: %d", path, ErrBadStatus, asset.Status)
		}
		asset.URL = path
		asset.ETag = etagFor(asset.Body)
		assets = append(assets, asset)
	}
	return assets, nil
}

// Activate deletes every cache generation other than the current one and
// takes control of all open clients.
func (m *Manager) Activate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activateLocked(ctx)
}

func (m *Manager) activateLocked(ctx context.Context) error {
	if !m.installed.Load() {
		return fmt.Errorf("activate %s: %w", m.current, ErrNotInstalled)
	}

	names, err := m.storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("activate %s: list caches: %w", m.current, err)
	}
	for _, name := range names {
		if name == m.current {
			continue
		}
		m.logger.Info("Removing old cache", "generation", name)
		if _, err := m.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("activate %s: delete %s: %w", m.current, name, err)
		}
	}

	current := m.current
	m.active.Store(&current)
	m.logger.Info("App shell activated", "generation", current)

	m.claimMu.RLock()
	claims := append([]ClaimFunc(nil), m.claims...)
	m.claimMu.RUnlock()
	for _, fn := range claims {
		fn(current)
	}
	return nil
}

// Generation returns the generation serving fetches, or "" before activation.
func (m *Manager) Generation() string {
	if p := m.active.Load(); p != nil {
		return *p
	}
	return ""
}

// Status returns a snapshot of the manager state.
func (m *Manager) Status() Status {
	return Status{
		Current:   m.current,
		Active:    m.Generation(),
		Installed: m.installed.Load(),
		Manifest:  m.manifest,
	}
}

// Ping verifies the cache storage is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.storage.Ping(ctx)
}
