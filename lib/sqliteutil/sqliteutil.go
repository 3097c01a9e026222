package sqliteutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// OpenDB opens a local sqlite file (or a remote libsql url) and applies
// the given schema. Schemas are expected to be written with
// `CREATE TABLE IF NOT EXISTS` so reopening an existing database is safe.
func OpenDB(schema, path string) (*sql.DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(path, "libsql://") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "wss://") {
		driver = "libsql"
	} else if path != ":memory:" {
		os.MkdirAll(filepath.Dir(path), 0777)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	if driver == "sqlite" {
		// see this stackoverflow post for information on why the following
		// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
		db.SetMaxOpenConns(1)
		if path != ":memory:" {
			_, err = db.Exec("PRAGMA journal_mode=WAL")
			if err != nil {
				return nil, wrapOpenDB(err)
			}
		}
	}

	_, err = db.Exec(schema)
	if err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return db, nil
}
