package main

import (
	"fmt"
	"io"

	"swing-service/internal/store"
)

// runMigrate handles the -migrate flag against the database at path.
// Opening the store already applies pending migrations.
func runMigrate(w io.Writer, action, path string) error {
	if path == "" {
		return fmt.Errorf("migrate: storage.sqlite_path is not set")
	}
	db, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	switch action {
	case "up":
	case "down":
		if err := db.MigrateDown(); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q (want up, down or version)", action)
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	fmt.Fprintf(w, "schema version %d", version)
	if dirty {
		fmt.Fprint(w, " (dirty)")
	}
	fmt.Fprintln(w)
	return nil
}
