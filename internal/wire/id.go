package wire

import (
	"encoding/json"
	"fmt"
)

// ID is an opaque server-assigned identifier.
//
// The marketplace backend is not consistent about identifier shape: most
// endpoints emit plain strings, but some emit the raw document form
// {"_id": "..."} or {"id": "..."}. Normalization happens here, once, at
// decode time; everything past the wire boundary sees a plain string.
type ID string

func (id ID) String() string { return string(id) }

// IsZero reports whether the id is empty.
func (id ID) IsZero() bool { return id == "" }

// UnmarshalJSON accepts a JSON string or an object carrying "_id" or "id".
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}

	var obj struct {
		UnderscoreID string `json:"_id"`
		ID           string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("id: unsupported shape %s", data)
	}
	if obj.UnderscoreID != "" {
		*id = ID(obj.UnderscoreID)
		return nil
	}
	if obj.ID != "" {
		*id = ID(obj.ID)
		return nil
	}
	return fmt.Errorf("id: empty object %s", data)
}

// MarshalJSON always emits the plain string form.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}
