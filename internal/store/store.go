package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store is the durable local buffer of readings. It is the sole owner of the
// readings table: the poller appends, the sync engine marks rows synced, and
// the retention manager deletes, all through this type.
//
// Uses SQLite with WAL mode. The connection pool is limited to a single
// connection and mutating multi-statement operations additionally take an
// internal mutex, so the sync engine's batch handling and the retention
// manager's deletions take turns rather than interleave.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// StorageError wraps a local persistence failure. Callers treat it as fatal
// to the current operation only: log, skip the cycle, retry on the next
// cadence tick.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err is (or wraps) a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Open creates or opens the SQLite database at the given path and applies
// pragmas and schema. Idempotent - safe to call on an existing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, storageErr("open", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageErr("connect", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent cadence loops.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, storageErr("apply schema", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return storageErr(fmt.Sprintf("execute %q", pragma), err)
		}
	}
	return nil
}
