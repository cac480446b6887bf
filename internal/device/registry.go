package device

import (
	"context"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device configuration management with caching and
// thread safety. It wraps a Repository and adds an in-memory cache so
// command dispatch and polling never block on the database.
//
// All writes go through to the repository before the cache is updated,
// so a crash never loses a learned token or MAC address.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Config
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Config),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	configs, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Config, len(configs))
	for i := range configs {
		c := configs[i]
		r.cache[c.Identifier] = c.Copy()
	}

	r.logger.Info("device cache refreshed", "count", len(configs))
	return nil
}

// Get retrieves a device by identifier.
// Returns ErrNotFound if the device does not exist.
// The returned config is a copy; callers can safely modify it.
func (r *Registry) Get(ctx context.Context, identifier string) (*Config, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[identifier]
	r.cacheMu.RUnlock()

	if ok {
		return cached.Copy(), nil
	}

	// Fall back to repository (might be a new device not yet cached)
	cfg, err := r.repo.Get(ctx, identifier)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[identifier] = cfg.Copy()
	r.cacheMu.Unlock()

	return cfg, nil
}

// List retrieves all devices.
// The returned configs are copies; callers can safely modify them.
func (r *Registry) List(ctx context.Context) ([]Config, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		configs := make([]Config, 0, len(r.cache))
		for _, c := range r.cache {
			configs = append(configs, *c.Copy())
		}
		return configs, nil
	}

	return r.repo.List(ctx)
}

// Create validates and persists a new device, then caches it.
func (r *Registry) Create(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, cfg); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[cfg.Identifier] = cfg.Copy()
	r.cacheMu.Unlock()

	r.logger.Info("device created", "identifier", cfg.Identifier, "name", cfg.Name)
	return nil
}

// Update persists device changes, then updates the cache. Tokens and
// discovered capabilities flow through here so they survive restarts.
func (r *Registry) Update(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, cfg); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[cfg.Identifier] = cfg.Copy()
	r.cacheMu.Unlock()

	r.logger.Debug("device updated", "identifier", cfg.Identifier)
	return nil
}

// Delete removes a device.
func (r *Registry) Delete(ctx context.Context, identifier string) error {
	if err := r.repo.Delete(ctx, identifier); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, identifier)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "identifier", identifier)
	return nil
}

// Count returns the number of cached devices.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
