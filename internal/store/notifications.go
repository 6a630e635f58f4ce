package store

import (
	"encoding/json"
	"fmt"
)

// LoadNotifications returns the persisted notification list,
// most-recent-first. A missing or corrupt payload yields an empty list,
// never an error: losing the notification history must not take the
// daemon down.
func (db *DB) LoadNotifications() ([]NotificationRecord, error) {
	raw, err := db.getKV(keyNotifications)
	if err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var records []NotificationRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		// Corrupt payload. Treat as empty; the next save overwrites it.
		return nil, nil
	}
	return records, nil
}

// SaveNotifications replaces the persisted notification list.
func (db *DB) SaveNotifications(records []NotificationRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode notifications: %w", err)
	}
	if err := db.setKV(keyNotifications, raw); err != nil {
		return fmt.Errorf("save notifications: %w", err)
	}
	return nil
}
