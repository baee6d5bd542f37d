package core

import "maps"

// Reserved columns present on every table.
const (
	ColumnID           = "id"
	ColumnChanged      = "_changed"
	ColumnStatus       = "_status"
	ColumnLastModified = "last_modified"
)

// ReservedColumns lists the columns every table carries in storage order.
var ReservedColumns = []string{ColumnID, ColumnChanged, ColumnStatus, ColumnLastModified}

// IsReservedColumn reports whether name is managed by the engine.
func IsReservedColumn(name string) bool {
	switch name {
	case ColumnID, ColumnChanged, ColumnStatus, ColumnLastModified:
		return true
	}
	return false
}

// RecordStatus is the sync lifecycle tag of a record.
type RecordStatus string

// Record lifecycle states.
const (
	StatusCreated RecordStatus = "created"
	StatusUpdated RecordStatus = "updated"
	StatusSynced  RecordStatus = "synced"
	StatusDeleted RecordStatus = "deleted"
)

// IsValid reports whether s is a known status.
func (s RecordStatus) IsValid() bool {
	switch s {
	case StatusCreated, StatusUpdated, StatusSynced, StatusDeleted:
		return true
	}
	return false
}

// RawRecord maps column names to stored values.
// Values are string, float64, bool or nil once sanitized.
type RawRecord map[string]any

// ID returns the record id, or "" when missing.
func (r RawRecord) ID() string {
	id, _ := r[ColumnID].(string)
	return id
}

// Status returns the lifecycle status stored in the record.
func (r RawRecord) Status() RecordStatus {
	s, _ := r[ColumnStatus].(string)
	return RecordStatus(s)
}

// Clone returns a shallow copy of the record.
func (r RawRecord) Clone() RawRecord {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Row is one element of a find or query response.
// A nil Raw means the adapter sent only the id because the caller
// already holds the record in its identity cache.
type Row struct {
	ID  string
	Raw RawRecord
}

// IDRow builds a bare-id row.
func IDRow(id string) Row {
	return Row{ID: id}
}

// RawRow builds a full-payload row.
func RawRow(raw RawRecord) Row {
	return Row{ID: raw.ID(), Raw: raw}
}

// IsBareID reports whether the row carries no payload.
func (r Row) IsBareID() bool {
	return r.Raw == nil
}
