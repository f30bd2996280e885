// ObjectDB persists the device/state hierarchy and the raw telegram log.
// It is written only by the bridge's reconciliation queue; the HTTP
// surface reads from it.
package objectdb

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/NotCoffee418/dbmigrator"
	log "github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// DB wraps *sql.DB with the object store queries.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	raw, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("objectdb: open %s: %w", path, err)
	}
	if err := raw.Ping(); err != nil {
		raw.Close()
		return nil, fmt.Errorf("objectdb: ping: %w", err)
	}
	// One writer; the queue never has more than one mutation in flight anyway.
	raw.SetMaxOpenConns(1)

	// Create DB before migrations
	if _, err := raw.Exec("SELECT 1;"); err != nil {
		log.WithField("component", "objectdb").Warnf("Could not create DB: %v", err)
	}

	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		raw,
		migrationFS,
		"migrations",
	)

	return &DB{db: raw}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
