// Package device provides the device registry for TV Bridge.
//
// The registry is the catalogue of every television the bridge manages.
// It wraps a SQLite-backed repository with an in-memory cache so hot
// paths (command dispatch, polling) never touch the database, and writes
// configuration changes through to disk so learned facts — pairing
// tokens, MAC addresses, capability flags — survive restarts.
//
// # Key Types
//
//   - Config: Per-device configuration (address, token, MAC, capabilities)
//   - Repository: Persistence interface (SQLite implementation provided)
//   - Registry: Cached, thread-safe device store
//   - StateHistoryRepository: Audit trail of observed power-state changes
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	cfg, _ := registry.Get(ctx, "living-room-tv")
//	cfg.AuthToken = newToken
//	_ = registry.Update(ctx, cfg)
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All cache access is protected
// by a read-write mutex; the Repository implementation must also be
// thread-safe.
package device
