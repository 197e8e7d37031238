// Package database provides SQLite connectivity for the automation service.
//
// It stores the device and sensor inventory, the automation link table
// (when the sqlite link store is selected) and the transition history.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations loaded from an fs.FS (embedded by the migrations package)
//   - Connection lifecycle, including private in-memory databases for tests
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default,
// and each .up.sql has a matching .down.sql.
package database
