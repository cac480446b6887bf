package device

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu      sync.Mutex
	configs map[string]*Config
	// For testing error paths
	createErr error
	updateErr error
	deleteErr error
	listCalls int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		configs: make(map[string]*Config),
	}
}

func (m *MockRepository) Get(_ context.Context, identifier string) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.configs[identifier]; ok {
		return c.Copy(), nil
	}
	return nil, ErrNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++
	configs := make([]Config, 0, len(m.configs))
	for _, c := range m.configs {
		configs = append(configs, *c.Copy())
	}
	return configs, nil
}

func (m *MockRepository) Create(_ context.Context, cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.configs[cfg.Identifier]; ok {
		return ErrExists
	}
	m.configs[cfg.Identifier] = cfg.Copy()
	return nil
}

func (m *MockRepository) Update(_ context.Context, cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.configs[cfg.Identifier]; !ok {
		return ErrNotFound
	}
	m.configs[cfg.Identifier] = cfg.Copy()
	return nil
}

func (m *MockRepository) Delete(_ context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.configs[identifier]; !ok {
		return ErrNotFound
	}
	delete(m.configs, identifier)
	return nil
}

func TestRegistryCreateAndGet(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	cfg := testConfig("tv-1", "TV One")
	if err := registry.Create(ctx, cfg); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := registry.Get(ctx, "tv-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Name != "TV One" {
		t.Errorf("Name = %q, want %q", got.Name, "TV One")
	}

	// Returned config is a copy; mutating it must not affect the cache.
	got.Name = "Mutated"
	again, err := registry.Get(ctx, "tv-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if again.Name != "TV One" {
		t.Error("registry cache was mutated through a returned copy")
	}
}

func TestRegistryCreateValidates(t *testing.T) {
	registry := NewRegistry(NewMockRepository())

	err := registry.Create(context.Background(), &Config{Identifier: "tv-1"})
	if !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Create() error = %v, want ErrInvalidAddress", err)
	}
}

func TestRegistryUpdatePersistsBeforeCache(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	cfg := testConfig("tv-1", "TV One")
	if err := registry.Create(ctx, cfg); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	repo.updateErr = errors.New("disk full")
	cfg.AuthToken = "lost-token"
	if err := registry.Update(ctx, cfg); err == nil {
		t.Fatal("Update() expected error, got nil")
	}

	// Failed write must not poison the cache.
	got, err := registry.Get(ctx, "tv-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.AuthToken == "lost-token" {
		t.Error("cache updated despite repository failure")
	}
}

func TestRegistryRefreshCache(t *testing.T) {
	repo := NewMockRepository()
	repo.configs["tv-1"] = testConfig("tv-1", "TV One")
	repo.configs["tv-2"] = testConfig("tv-2", "TV Two")

	registry := NewRegistry(repo)
	ctx := context.Background()

	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error: %v", err)
	}
	if registry.Count() != 2 {
		t.Errorf("Count() = %d, want 2", registry.Count())
	}

	// Subsequent lists are served from cache.
	before := repo.listCalls
	if _, err := registry.List(ctx); err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if repo.listCalls != before {
		t.Error("List() hit the repository despite populated cache")
	}
}

func TestRegistryDelete(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	if err := registry.Create(ctx, testConfig("tv-1", "TV One")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := registry.Delete(ctx, "tv-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := registry.Get(ctx, "tv-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete = %v, want ErrNotFound", err)
	}
}
