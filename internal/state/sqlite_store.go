package state

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/brickops/fieldsync/internal/events"
)

// SQLiteStore implements SQLite-based state storage.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore creates a SQLite state store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_state_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS kv_entries (
        key TEXT PRIMARY KEY,
        data BLOB NOT NULL,
        checksum TEXT NOT NULL,
        schema_version INTEGER NOT NULL,
        updated_at TIMESTAMP NOT NULL
    );

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Get reads and verifies the entry for key.
func (s *SQLiteStore) Get(key string, out any) error {
	var data []byte
	var checksum string

	err := s.db.QueryRow(`
        SELECT data, checksum FROM kv_entries WHERE key = ?
    `, key).Scan(&data, &checksum)

	if err == sql.ErrNoRows {
		return ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("query entry: %w", err)
	}

	hash := sha256.Sum256(data)
	if hex.EncodeToString(hash[:]) != checksum {
		s.logger.WithField("key", key).Error("State checksum mismatch")
		return ErrStateCorrupt
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal state value: %w", err)
	}
	return nil
}

// Put upserts the entry for key.
func (s *SQLiteStore) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal state value: %w", err)
	}

	hash := sha256.Sum256(raw)

	_, err = s.db.Exec(`
        INSERT INTO kv_entries (key, data, checksum, schema_version, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET
            data = excluded.data,
            checksum = excluded.checksum,
            schema_version = excluded.schema_version,
            updated_at = excluded.updated_at
    `, key, raw, hex.EncodeToString(hash[:]), CurrentSchemaVersion, time.Now().UTC())

	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

// Delete removes the entry for key.
func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Keys returns all keys with the given prefix, sorted.
func (s *SQLiteStore) Keys(prefix string) ([]string, error) {
	rows, err := s.db.Query(`
        SELECT key FROM kv_entries
        WHERE key LIKE ? ESCAPE '\'
        ORDER BY key
    `, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
