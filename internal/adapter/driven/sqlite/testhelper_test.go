package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"
)

// setupTestDB builds a migrated writer/reader pair over a shared in-memory
// database named after the test, so parallel tests never see each other's
// rows. In-memory databases cannot run in WAL mode, so the journal_mode
// pragma of the production DSN is dropped here.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// The test name goes into the "file:%s?..." DSN; percent-encode it so
	// subtest slashes cannot smuggle in extra URI components.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		url.PathEscape(t.Name()),
	)

	open := func(role string, maxConns int) *sql.DB {
		conn, err := sql.Open("sqlite", dsn)
		if err != nil {
			t.Fatalf("open test db %s: %v", role, err)
		}
		conn.SetMaxOpenConns(maxConns)
		if err := conn.PingContext(context.Background()); err != nil {
			_ = conn.Close()
			t.Fatalf("ping test db %s: %v", role, err)
		}
		return conn
	}

	db := &DB{Writer: open("writer", 1), Reader: open("reader", 4), path: dsn}
	t.Cleanup(func() { _ = db.Close() })

	if err := Migrate(db.Writer); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	return db
}
