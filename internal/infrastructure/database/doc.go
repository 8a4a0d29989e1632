// Package database opens the KeyRhythm SQLite store and applies schema
// migrations.
//
// The store runs in WAL mode with a busy timeout, on a single pooled
// connection, with the file restricted to 0600. Migrations are read from
// any fs.FS (the migrations package embeds the production set) and each
// one is applied in its own transaction.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default,
// and every .up.sql has a matching .down.sql.
package database
