package models

import (
	"encoding/json"
	"time"
)

// ContextEntry is a timestamped piece of state passed between pipeline phases.
type ContextEntry struct {
	// ID is derived from the key and insertion time.
	ID string `json:"id"`
	// Key is the logical name. Several entries may share a key over time.
	Key string `json:"key"`
	// Payload is the serialized value. The store never interprets it.
	Payload json.RawMessage `json:"payload"`
	// CreatedAt is when the entry was recorded.
	CreatedAt time.Time `json:"created_at"`
	// UnitType is the owning unit type, if any.
	UnitType UnitType `json:"unit_type,omitempty"`
	// Tokens is the estimated token cost of the payload.
	Tokens int `json:"tokens"`
	// Importance weights the entry from 0 to 10.
	Importance int `json:"importance"`
	// ArchivedAt is set when the entry was moved into the archive.
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// Clone returns a copy that shares no mutable state with e.
func (e *ContextEntry) Clone() *ContextEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.Payload = append(json.RawMessage(nil), e.Payload...)
	if e.ArchivedAt != nil {
		ts := *e.ArchivedAt
		c.ArchivedAt = &ts
	}
	return &c
}

// Decode unmarshals the payload into v.
func (e *ContextEntry) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}
