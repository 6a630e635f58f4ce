package store

import (
	"database/sql"
	"errors"
	"time"
)

// Fixed kv keys. The full notification list lives under one key as a JSON
// array, most-recent-first; the push-channel credential under another.
const (
	keyNotifications = "notifications"
	keyCredential    = "credential"
)

func (db *DB) getKV(key string) ([]byte, error) {
	var value []byte
	err := db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (db *DB) setKV(key string, value []byte) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

func (db *DB) deleteKV(key string) error {
	_, err := db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}
