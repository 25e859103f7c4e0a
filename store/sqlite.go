package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

//The SQLiteCache stores entries in a SQLite database.
// It is safe for concurrent use by multiple goroutines, writes are
// serialized on a mutex because SQLite only supports a single writer.
type SQLiteCache struct {
	db        *sql.DB
	writeLock sync.Mutex
}

//NewSQLiteCache opens (and if needed initializes) a cache database at the
// given file name. An empty file name opens a shared in-memory database.
func NewSQLiteCache(filename string) (*SQLiteCache, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("unable to open cache database: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		value BLOB
	)`); err != nil {
		return nil, fmt.Errorf("unable to create cache table: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("unable to enable WAL mode: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Get(key string) ([]byte, bool, error) {
	var value []byte

	err := c.db.QueryRow("SELECT value FROM cache WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}

		return nil, false, err
	}

	return value, true, nil
}

func (c *SQLiteCache) Set(key string, value []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	_, err := c.db.Exec("INSERT OR REPLACE INTO cache (key, value) VALUES (?, ?)", key, value)
	return err
}

func (c *SQLiteCache) Delete(key string) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	_, err := c.db.Exec("DELETE FROM cache WHERE key = ?", key)
	return err
}

//Close closes the underlying database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
