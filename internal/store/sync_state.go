package store

import (
	"database/sql"
	"errors"
	"time"
)

// Sync state keys.
const (
	KeyLastCatalogSync = "last_catalog_sync"
	KeyAccountPhone    = "account_phone"
)

// SyncState returns the value stored under key, or "" when unset.
func (db *DB) SyncState(key string) (string, error) {
	var v string
	err := db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// SetSyncState stores value under key.
func (db *DB) SetSyncState(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}
