package store

import "fmt"

// LoadCredential returns the stored push-channel credential, or empty
// string if none is stored. The credential is opaque to this process.
func (db *DB) LoadCredential() (string, error) {
	raw, err := db.getKV(keyCredential)
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	return string(raw), nil
}

// SaveCredential stores the push-channel credential.
func (db *DB) SaveCredential(credential string) error {
	if err := db.setKV(keyCredential, []byte(credential)); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// ClearCredential removes the stored credential.
func (db *DB) ClearCredential() error {
	if err := db.deleteKV(keyCredential); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}
