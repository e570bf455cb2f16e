// Package database provides the SQLite store behind the door history.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Applying embedded, forward-only schema migrations
//   - Health checks for the HTTP health endpoint
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is created with 0600 permissions
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
