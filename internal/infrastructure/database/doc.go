// Package database provides SQLite database connectivity for TV Bridge.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded schema migrations
//   - Connection lifecycle management
//
// The database backs the persistent device store (pairing tokens, discovered
// capabilities) and the power-state transition history.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// All queries use parameterised statements, and the database file is created
// with 0600 permissions (pairing tokens are stored in it).
package database
